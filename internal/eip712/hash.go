package eip712

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// TypeHash returns keccak256(EncodeType(primary)).
func (r *Registry) TypeHash(primary string) (common.Hash, error) {
	typeString, err := r.EncodeType(primary)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte(typeString)), nil
}

// HashStruct returns keccak256(typeHash ‖ encodeData(data)), the
// domain-independent EIP-712 struct hash.
func (r *Registry) HashStruct(primary string, data map[string]any) (common.Hash, error) {
	encoded, err := r.EncodeData(primary, data)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// EncodeData returns typeHash followed by one 32-byte word per field.
func (r *Registry) EncodeData(primary string, data map[string]any) ([]byte, error) {
	fields, ok := r.structs[primary]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, primary)
	}
	if len(data) > len(fields) {
		return nil, fmt.Errorf("%w: %s has %d fields, got %d", ErrInvalidValue, primary, len(fields), len(data))
	}
	typeHash, err := r.TypeHash(primary)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 32*(len(fields)+1))
	buf = append(buf, typeHash[:]...)
	for _, f := range fields {
		v, ok := data[f.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s is missing", ErrInvalidValue, primary, f.name)
		}
		word, err := r.encodeValue(f.ref, v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", primary, f.name, err)
		}
		buf = append(buf, word...)
	}
	return buf, nil
}

func (r *Registry) encodeValue(ref *TypeRef, v any) ([]byte, error) {
	switch ref.Kind {
	case KindStruct:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(ref, v)
		}
		h, err := r.HashStruct(ref.Name, m)
		if err != nil {
			return nil, err
		}
		return h[:], nil

	case KindArray:
		items, err := toSlice(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		if !ref.Dynamic() && len(items) != ref.Length {
			return nil, fmt.Errorf("%w: %s expects %d elements, got %d", ErrInvalidValue, ref, ref.Length, len(items))
		}
		buf := make([]byte, 0, 32*len(items))
		for i, item := range items {
			word, err := r.encodeValue(ref.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			buf = append(buf, word...)
		}
		return crypto.Keccak256(buf), nil

	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(ref, v)
		}
		return crypto.Keccak256([]byte(str)), nil

	case KindBytes:
		raw, err := toBytes(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		return crypto.Keccak256(raw), nil

	case KindFixedBytes:
		raw, err := toBytes(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		if len(raw) > ref.Size {
			return nil, fmt.Errorf("%w: %d bytes do not fit %s", ErrInvalidValue, len(raw), ref)
		}
		word := make([]byte, 32)
		copy(word, raw)
		return word, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(ref, v)
		}
		word := make([]byte, 32)
		if b {
			word[31] = 1
		}
		return word, nil

	case KindAddress:
		addr, err := toAddress(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		return common.LeftPadBytes(addr.Bytes(), 32), nil

	case KindUint, KindInt:
		n, err := toBigInt(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		if !fitsInteger(ref, n) {
			return nil, fmt.Errorf("%w: %s out of range for %s", ErrInvalidValue, n, ref)
		}
		return math.U256Bytes(new(big.Int).Set(n)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, ref)
}

func fitsInteger(ref *TypeRef, n *big.Int) bool {
	if ref.Kind == KindUint {
		return n.Sign() >= 0 && n.BitLen() <= ref.Size
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(ref.Size-1))
	if n.Sign() >= 0 {
		return n.Cmp(limit) < 0
	}
	return new(big.Int).Neg(n).Cmp(limit) <= 0
}

func mismatch(ref *TypeRef, v any) error {
	return fmt.Errorf("%w: %T is not a %s", ErrInvalidValue, v, ref)
}

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, ErrInvalidValue
		}
		return n, nil
	case *math.HexOrDecimal256:
		if n == nil {
			return nil, ErrInvalidValue
		}
		return (*big.Int)(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int8:
		return big.NewInt(int64(n)), nil
	case int16:
		return big.NewInt(int64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		s := strings.TrimSpace(n)
		neg := strings.HasPrefix(s, "-")
		parsed, ok := math.ParseBig256(strings.TrimPrefix(s, "-"))
		if !ok {
			return nil, ErrInvalidValue
		}
		if neg {
			parsed.Neg(parsed)
		}
		return parsed, nil
	}
	// Named integer types such as enums.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, ErrInvalidValue
}

func toAddress(v any) (common.Address, error) {
	switch a := v.(type) {
	case common.Address:
		return a, nil
	case *common.Address:
		if a == nil {
			return common.Address{}, ErrInvalidValue
		}
		return *a, nil
	case string:
		if !common.IsHexAddress(a) {
			return common.Address{}, ErrInvalidValue
		}
		return common.HexToAddress(a), nil
	case []byte:
		if len(a) != common.AddressLength {
			return common.Address{}, ErrInvalidValue
		}
		return common.BytesToAddress(a), nil
	}
	return common.Address{}, ErrInvalidValue
}

func toBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case hexutil.Bytes:
		return b, nil
	case common.Hash:
		return b.Bytes(), nil
	case string:
		if b == "" {
			return []byte{}, nil
		}
		return hexutil.Decode(b)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		out := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(out), rv)
		return out, nil
	}
	return nil, ErrInvalidValue
}

func toSlice(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, ErrInvalidValue
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
