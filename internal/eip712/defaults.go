package eip712

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Synthesizer derives the canonical empty instance of a type from its
// schema. Results are memoized per Synthesizer by type string and shared
// between callers, so they must be treated as read-only.
type Synthesizer struct {
	reg        *Registry
	cache      map[string]any
	overrides  map[string]any
	inProgress map[string]struct{}
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithPrimitiveDefault replaces the base default used for one primitive type
// string (for example "uint256"). The struct emptiness check still applies,
// so a non-zero override surfaces as ErrInvariantViolation.
func WithPrimitiveDefault(typ string, value any) Option {
	return func(s *Synthesizer) {
		s.overrides[typ] = value
	}
}

func NewSynthesizer(reg *Registry, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		reg:        reg,
		cache:      make(map[string]any),
		overrides:  make(map[string]any),
		inProgress: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SynthesizeDefault runs a fresh Synthesizer for a single type.
func SynthesizeDefault(reg *Registry, typ string) (any, error) {
	return NewSynthesizer(reg).Default(typ)
}

// Default returns the empty value of typ:
//
//	uintN, intN -> *big.Int zero
//	address     -> common.Address{}
//	bool        -> false
//	string      -> ""
//	bytes       -> []byte{}
//	bytesN      -> N zero bytes
//	T[k]        -> []any of k copies of the default of T
//	T[]         -> []any{}
//	struct      -> map[string]any with every field defaulted
func (s *Synthesizer) Default(typ string) (any, error) {
	ref, err := s.reg.Resolve(typ)
	if err != nil {
		return nil, err
	}
	return s.value(ref)
}

func (s *Synthesizer) value(ref *TypeRef) (any, error) {
	key := ref.String()
	if v, ok := s.cache[key]; ok {
		return v, nil
	}
	if v, ok := s.overrides[key]; ok && ref.Kind != KindStruct && ref.Kind != KindArray {
		s.cache[key] = v
		return v, nil
	}

	var (
		v   any
		err error
	)
	switch ref.Kind {
	case KindUint, KindInt:
		v = new(big.Int)
	case KindAddress:
		v = common.Address{}
	case KindBool:
		v = false
	case KindString:
		v = ""
	case KindBytes:
		v = []byte{}
	case KindFixedBytes:
		v = make([]byte, ref.Size)
	case KindArray:
		v, err = s.array(ref)
	case KindStruct:
		v, err = s.structValue(ref)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownType, key)
	}
	if err != nil {
		return nil, err
	}
	s.cache[key] = v
	return v, nil
}

func (s *Synthesizer) array(ref *TypeRef) (any, error) {
	if ref.Dynamic() {
		return []any{}, nil
	}
	elem, err := s.value(ref.Elem)
	if err != nil {
		return nil, err
	}
	out := make([]any, ref.Length)
	for i := range out {
		out[i] = elem
	}
	return out, nil
}

func (s *Synthesizer) structValue(ref *TypeRef) (any, error) {
	if _, busy := s.inProgress[ref.Name]; busy {
		return nil, fmt.Errorf("%w: %s contains itself", ErrUnknownType, ref.Name)
	}
	s.inProgress[ref.Name] = struct{}{}
	defer delete(s.inProgress, ref.Name)

	fields := s.reg.structs[ref.Name]
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := s.value(f.ref)
		if err != nil {
			return nil, err
		}
		out[f.name] = v
	}
	if !s.reg.IsEmpty(ref, out) {
		return nil, fmt.Errorf("%w: default for %s is not empty", ErrInvariantViolation, ref.Name)
	}
	return out, nil
}

// IsEmpty reports whether v is the zero value of ref: numeric zero, the zero
// address, false, an empty string, all-zero bytes, an array whose elements
// are all empty, or a struct whose fields are all empty. Values that do not
// match the declared shape are never empty.
func (r *Registry) IsEmpty(ref *TypeRef, v any) bool {
	switch ref.Kind {
	case KindUint, KindInt:
		n, err := toBigInt(v)
		return err == nil && n.Sign() == 0
	case KindAddress:
		addr, err := toAddress(v)
		return err == nil && addr == (common.Address{})
	case KindBool:
		b, ok := v.(bool)
		return ok && !b
	case KindString:
		str, ok := v.(string)
		return ok && str == ""
	case KindBytes, KindFixedBytes:
		raw, err := toBytes(v)
		if err != nil {
			return false
		}
		if ref.Kind == KindFixedBytes && len(raw) != ref.Size {
			return false
		}
		return len(bytes.Trim(raw, "\x00")) == 0
	case KindArray:
		items, err := toSlice(v)
		if err != nil {
			return false
		}
		if !ref.Dynamic() && len(items) != ref.Length {
			return false
		}
		for _, item := range items {
			if !r.IsEmpty(ref.Elem, item) {
				return false
			}
		}
		return true
	case KindStruct:
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		for _, f := range r.structs[ref.Name] {
			fv, ok := m[f.name]
			if !ok || !r.IsEmpty(f.ref, fv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
