package eip712

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Normalize converts v into the JSON form wallets expect for typ: integers
// as decimal strings, addresses as checksummed hex, bytes as 0x hex with
// bytesN right-padded to N. The value is validated the same way the hasher
// validates it.
func (r *Registry) Normalize(typ string, v any) (any, error) {
	ref, err := r.Resolve(typ)
	if err != nil {
		return nil, err
	}
	return r.normalize(ref, v)
}

func (r *Registry) normalize(ref *TypeRef, v any) (any, error) {
	switch ref.Kind {
	case KindStruct:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(ref, v)
		}
		fields := r.structs[ref.Name]
		if len(m) > len(fields) {
			return nil, fmt.Errorf("%w: %s has %d fields, got %d", ErrInvalidValue, ref.Name, len(fields), len(m))
		}
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			fv, ok := m[f.name]
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s is missing", ErrInvalidValue, ref.Name, f.name)
			}
			nv, err := r.normalize(f.ref, fv)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", ref.Name, f.name, err)
			}
			out[f.name] = nv
		}
		return out, nil

	case KindArray:
		items, err := toSlice(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		if !ref.Dynamic() && len(items) != ref.Length {
			return nil, fmt.Errorf("%w: %s expects %d elements, got %d", ErrInvalidValue, ref, ref.Length, len(items))
		}
		out := make([]any, len(items))
		for i, item := range items {
			nv, err := r.normalize(ref.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = nv
		}
		return out, nil

	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, mismatch(ref, v)
		}
		return str, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(ref, v)
		}
		return b, nil

	case KindAddress:
		addr, err := toAddress(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		return addr.Hex(), nil

	case KindBytes, KindFixedBytes:
		raw, err := toBytes(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		if ref.Kind == KindFixedBytes {
			if len(raw) > ref.Size {
				return nil, fmt.Errorf("%w: %d bytes do not fit %s", ErrInvalidValue, len(raw), ref)
			}
			padded := make([]byte, ref.Size)
			copy(padded, raw)
			raw = padded
		}
		return hexutil.Encode(raw), nil

	case KindUint, KindInt:
		n, err := toBigInt(v)
		if err != nil {
			return nil, mismatch(ref, v)
		}
		if !fitsInteger(ref, n) {
			return nil, fmt.Errorf("%w: %s out of range for %s", ErrInvalidValue, n, ref)
		}
		return n.String(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, ref)
}
