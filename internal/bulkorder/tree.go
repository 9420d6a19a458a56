package bulkorder

import (
	"fmt"
	"math/bits"

	"github.com/GoPolymarket/bulkgate/internal/eip712"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type buildConfig struct {
	startIndex int
	height     int
}

// BuildOption configures BuildTree.
type BuildOption func(*buildConfig)

// WithStartIndex places the first leaf at slot n. Slots before it hold the
// default leaf.
func WithStartIndex(n int) BuildOption {
	return func(c *buildConfig) { c.startIndex = n }
}

// WithHeight requests an explicit height, which may exceed what the leaves
// need in order to reserve capacity.
func WithHeight(h int) BuildOption {
	return func(c *buildConfig) { c.height = h }
}

// AutoHeight is the smallest height holding n leaves, never below 1.
func AutoHeight(n int) int {
	if n <= 2 {
		return 1
	}
	return bits.Len(uint(n - 1))
}

// Tree is a complete binary Merkle tree over EIP-712 struct hashes. It is
// immutable once built.
type Tree struct {
	reg         *eip712.Registry
	leafType    string
	wrapperType string
	field       string

	height      int
	elements    []map[string]any
	defaultNode map[string]any
	defaultLeaf common.Hash
	// layers[0] holds the 2^height leaves, layers[height] the root.
	layers [][]common.Hash

	typeString string
	typeHash   common.Hash
}

// BuildTree hashes leaves as leafType structs, pads them to a power of two
// with the hash of the leafType default, and builds the tree bottom-up.
// wrapperType names the struct that is signed; its single field is
// redefined as leafType[2]...[2] for the chosen height.
func BuildTree(reg *eip712.Registry, leafType, wrapperType string, leaves []map[string]any, opts ...BuildOption) (*Tree, error) {
	cfg := buildConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.startIndex < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStartIndex, cfg.startIndex)
	}

	count := cfg.startIndex + len(leaves)
	if count > 1<<MaxHeight {
		return nil, fmt.Errorf("%w: %d leaves exceed height %d", ErrCapacity, count, MaxHeight)
	}
	height := AutoHeight(count)
	if cfg.height != 0 {
		if cfg.height < 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidHeight, cfg.height)
		}
		if cfg.height > MaxHeight {
			return nil, fmt.Errorf("%w: height %d exceeds %d", ErrCapacity, cfg.height, MaxHeight)
		}
		if cfg.height < height {
			return nil, fmt.Errorf("%w: %d leaves need height %d, got %d", ErrCapacity, count, height, cfg.height)
		}
		height = cfg.height
	}

	wreg, err := wrapperRegistry(reg, leafType, wrapperType, height)
	if err != nil {
		return nil, err
	}
	fields, _ := wreg.Fields(wrapperType)

	def, err := eip712.NewSynthesizer(reg).Default(leafType)
	if err != nil {
		return nil, err
	}
	defaultNode, ok := def.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a struct", eip712.ErrUnknownType, leafType)
	}
	defaultLeaf, err := reg.HashStruct(leafType, defaultNode)
	if err != nil {
		return nil, err
	}

	size := 1 << height
	hashed := make([]common.Hash, size)
	elements := make([]map[string]any, 0, count)
	for i := 0; i < cfg.startIndex; i++ {
		hashed[i] = defaultLeaf
		elements = append(elements, defaultNode)
	}
	for i, leaf := range leaves {
		h, err := reg.HashStruct(leafType, leaf)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		hashed[cfg.startIndex+i] = h
		elements = append(elements, leaf)
	}
	for i := count; i < size; i++ {
		hashed[i] = defaultLeaf
	}

	typeString, err := wreg.EncodeType(wrapperType)
	if err != nil {
		return nil, err
	}

	return &Tree{
		reg:         wreg,
		leafType:    leafType,
		wrapperType: wrapperType,
		field:       fields[0].Name,
		height:      height,
		elements:    elements,
		defaultNode: defaultNode,
		defaultLeaf: defaultLeaf,
		layers:      buildLayers(hashed, height),
		typeString:  typeString,
		typeHash:    crypto.Keccak256Hash([]byte(typeString)),
	}, nil
}

// NewBulkOrderTree builds a Seaport bulk order tree.
func NewBulkOrderTree(orders []OrderComponents, opts ...BuildOption) (*Tree, error) {
	leaves := make([]map[string]any, len(orders))
	for i := range orders {
		leaves[i] = orders[i].Message()
	}
	return BuildTree(Registry, OrderComponentsType, BulkOrderType, leaves, opts...)
}

func buildLayers(leaves []common.Hash, height int) [][]common.Hash {
	layers := make([][]common.Hash, height+1)
	layers[0] = leaves
	for level := 1; level <= height; level++ {
		below := layers[level-1]
		nodes := make([]common.Hash, len(below)/2)
		for j := range nodes {
			nodes[j] = hashPair(below[2*j], below[2*j+1])
		}
		layers[level] = nodes
	}
	return layers
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

func (t *Tree) Height() int { return t.height }

// Size is the number of leaf slots, 2^height.
func (t *Tree) Size() int { return len(t.layers[0]) }

func (t *Tree) Root() common.Hash { return t.layers[t.height][0] }

func (t *Tree) DefaultLeaf() common.Hash { return t.defaultLeaf }

// DefaultNode is the synthesized padding element. It is shared and must not
// be modified.
func (t *Tree) DefaultNode() map[string]any { return t.defaultNode }

func (t *Tree) TypeString() string { return t.typeString }

func (t *Tree) TypeHash() common.Hash { return t.typeHash }

// LeafCount is the number of slots filled by the caller, including slots
// skipped by the start index.
func (t *Tree) LeafCount() int { return len(t.elements) }

// Leaves returns a copy of every leaf hash, padding included.
func (t *Tree) Leaves() []common.Hash {
	return append([]common.Hash(nil), t.layers[0]...)
}

// CompleteElements returns the leaf values padded with the default node to
// the full tree size.
func (t *Tree) CompleteElements() []map[string]any {
	out := make([]map[string]any, t.Size())
	copy(out, t.elements)
	for i := len(t.elements); i < len(out); i++ {
		out[i] = t.defaultNode
	}
	return out
}

// DataToSign returns the complete elements nested as pairs, height levels
// deep, which is the value of the wrapper's tree field.
func (t *Tree) DataToSign() []any {
	elements := t.CompleteElements()
	layer := make([]any, len(elements))
	for i, e := range elements {
		layer[i] = e
	}
	for len(layer) > 2 {
		next := make([]any, len(layer)/2)
		for j := range next {
			next[j] = []any{layer[2*j], layer[2*j+1]}
		}
		layer = next
	}
	return layer
}

// Message is the typed-data value of the wrapper struct.
func (t *Tree) Message() map[string]any {
	return map[string]any{t.field: t.DataToSign()}
}

// Registry is the schema with the wrapper defined at this tree's height.
func (t *Tree) Registry() *eip712.Registry { return t.reg }

// WrapperType is the name of the signed struct.
func (t *Tree) WrapperType() string { return t.wrapperType }

func (t *Tree) LeafType() string { return t.leafType }

// BulkOrderHash returns keccak256(typeHash ‖ root). It is checked against
// the struct hash of the wrapper computed over DataToSign, which rehashes
// every element.
func (t *Tree) BulkOrderHash() (common.Hash, error) {
	fromRoot := t.RootHash()
	fromData, err := t.reg.HashStruct(t.wrapperType, t.Message())
	if err != nil {
		return common.Hash{}, err
	}
	if fromRoot != fromData {
		return common.Hash{}, fmt.Errorf("%w: bulk order hash %s does not match struct hash %s",
			eip712.ErrInvariantViolation, fromRoot.Hex(), fromData.Hex())
	}
	return fromRoot, nil
}

// RootHash is keccak256(typeHash ‖ root) without the struct hash check.
func (t *Tree) RootHash() common.Hash {
	root := t.Root()
	return crypto.Keccak256Hash(t.typeHash[:], root[:])
}
