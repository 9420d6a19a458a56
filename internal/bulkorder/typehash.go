package bulkorder

import (
	"fmt"
	"strings"
	"sync"

	"github.com/GoPolymarket/bulkgate/internal/eip712"
	"github.com/ethereum/go-ethereum/common"
)

// MaxHeight is the tallest tree the on-chain type hash directory covers.
const MaxHeight = 24

// directoryPrefix is the INVALID opcode that keeps the directory contract
// from being called.
const directoryPrefix = 0xfe

// wrapperRegistry returns reg with wrapperType redefined as a single field of
// type leafType[2]...[2], height times. The field keeps its existing name
// when the wrapper is already defined.
func wrapperRegistry(reg *eip712.Registry, leafType, wrapperType string, height int) (*eip712.Registry, error) {
	if height <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHeight, height)
	}
	if !reg.Has(leafType) {
		return nil, fmt.Errorf("%w: %s", eip712.ErrUnknownType, leafType)
	}
	field := treeField
	if fields, ok := reg.Fields(wrapperType); ok && len(fields) == 1 {
		field = fields[0].Name
	}
	return reg.With(wrapperType, []eip712.Field{
		{Name: field, Type: leafType + strings.Repeat("[2]", height)},
	})
}

// TypeStringForHeight returns the EIP-712 type string of the wrapper at the
// given height.
func TypeStringForHeight(reg *eip712.Registry, leafType, wrapperType string, height int) (string, error) {
	wreg, err := wrapperRegistry(reg, leafType, wrapperType, height)
	if err != nil {
		return "", err
	}
	return wreg.EncodeType(wrapperType)
}

// TypeHashForHeight returns the type hash of the wrapper at the given height.
func TypeHashForHeight(reg *eip712.Registry, leafType, wrapperType string, height int) (common.Hash, error) {
	wreg, err := wrapperRegistry(reg, leafType, wrapperType, height)
	if err != nil {
		return common.Hash{}, err
	}
	return wreg.TypeHash(wrapperType)
}

// TypeHashesUpTo returns the type hashes for heights 1..maxHeight in order.
func TypeHashesUpTo(reg *eip712.Registry, leafType, wrapperType string, maxHeight int) ([]common.Hash, error) {
	if maxHeight <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHeight, maxHeight)
	}
	out := make([]common.Hash, 0, maxHeight)
	for h := 1; h <= maxHeight; h++ {
		th, err := TypeHashForHeight(reg, leafType, wrapperType, h)
		if err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, nil
}

var seaportTypeHashes = struct {
	sync.RWMutex
	byHeight map[int]common.Hash
}{byHeight: make(map[int]common.Hash)}

// BulkOrderTypeHash returns the Seaport BulkOrder type hash for a height in
// [1, MaxHeight]. Results are cached for the life of the process.
func BulkOrderTypeHash(height int) (common.Hash, error) {
	if height > MaxHeight {
		return common.Hash{}, fmt.Errorf("%w: height %d exceeds %d", ErrCapacity, height, MaxHeight)
	}
	seaportTypeHashes.RLock()
	th, ok := seaportTypeHashes.byHeight[height]
	seaportTypeHashes.RUnlock()
	if ok {
		return th, nil
	}

	th, err := TypeHashForHeight(Registry, OrderComponentsType, BulkOrderType, height)
	if err != nil {
		return common.Hash{}, err
	}
	seaportTypeHashes.Lock()
	seaportTypeHashes.byHeight[height] = th
	seaportTypeHashes.Unlock()
	return th, nil
}

// BulkOrderTypeHashes returns the Seaport table for heights 1..maxHeight.
// The on-chain directory stops at MaxHeight.
func BulkOrderTypeHashes(maxHeight int) ([]common.Hash, error) {
	if maxHeight <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHeight, maxHeight)
	}
	if maxHeight > MaxHeight {
		return nil, fmt.Errorf("%w: height %d exceeds %d", ErrCapacity, maxHeight, MaxHeight)
	}
	out := make([]common.Hash, 0, maxHeight)
	for h := 1; h <= maxHeight; h++ {
		th, err := BulkOrderTypeHash(h)
		if err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, nil
}

// DirectoryCode returns the runtime code of a type hash directory holding
// hashes: a single 0xfe byte followed by the hashes back to back. The hash
// for height h sits at offset 1+32*(h-1).
func DirectoryCode(hashes []common.Hash) []byte {
	code := make([]byte, 1, 1+len(hashes)*common.HashLength)
	code[0] = directoryPrefix
	for _, h := range hashes {
		code = append(code, h[:]...)
	}
	return code
}

// LookupDirectory reads the type hash for height out of directory code.
func LookupDirectory(code []byte, height int) (common.Hash, error) {
	if height <= 0 {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrInvalidHeight, height)
	}
	if len(code) == 0 || code[0] != directoryPrefix {
		return common.Hash{}, fmt.Errorf("%w: code does not start with 0xfe", ErrInvalidDirectory)
	}
	offset := 1 + (height-1)*common.HashLength
	if offset+common.HashLength > len(code) {
		return common.Hash{}, fmt.Errorf("%w: directory holds no entry for height %d", ErrInvalidHeight, height)
	}
	return common.BytesToHash(code[offset : offset+common.HashLength]), nil
}
