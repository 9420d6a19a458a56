// Package eip712 parses typed-data schemas and computes struct hashes, type
// strings and schema-derived default values.
package eip712

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Field is one named member of a struct definition, in declaration order.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Types maps a struct name to its ordered field list.
type Types map[string][]Field

// Kind tags the variant a TypeRef represents.
type Kind uint8

const (
	KindUint Kind = iota
	KindInt
	KindAddress
	KindBool
	KindString
	KindBytes
	KindFixedBytes
	KindArray
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindAddress:
		return "address"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindFixedBytes:
		return "bytesN"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// TypeRef is a field type parsed once at registry load time.
//
// Size is the bit width for KindUint/KindInt and the byte width for
// KindFixedBytes. Length is the element count for KindArray, or -1 for a
// dynamic array. Name holds the struct name for KindStruct.
type TypeRef struct {
	Kind   Kind
	Name   string
	Size   int
	Length int
	Elem   *TypeRef
}

// Dynamic reports whether the array has no fixed length.
func (t *TypeRef) Dynamic() bool {
	return t.Kind == KindArray && t.Length < 0
}

// String returns the canonical type string.
func (t *TypeRef) String() string {
	switch t.Kind {
	case KindUint:
		return "uint" + strconv.Itoa(t.Size)
	case KindInt:
		return "int" + strconv.Itoa(t.Size)
	case KindFixedBytes:
		return "bytes" + strconv.Itoa(t.Size)
	case KindArray:
		if t.Dynamic() {
			return t.Elem.String() + "[]"
		}
		return t.Elem.String() + "[" + strconv.Itoa(t.Length) + "]"
	case KindStruct:
		return t.Name
	default:
		return t.Kind.String()
	}
}

type fieldDef struct {
	name     string
	declared string
	ref      *TypeRef
}

// Registry is an immutable, parsed set of struct definitions.
type Registry struct {
	raw     Types
	structs map[string][]fieldDef
}

// NewRegistry parses every field type of every definition. A reference to a
// name that is neither a primitive nor a defined struct fails with
// ErrUnknownType.
func NewRegistry(types Types) (*Registry, error) {
	r := &Registry{
		raw:     make(Types, len(types)),
		structs: make(map[string][]fieldDef, len(types)),
	}
	for name, fields := range types {
		if name == "" {
			return nil, fmt.Errorf("%w: empty struct name", ErrUnknownType)
		}
		r.raw[name] = append([]Field(nil), fields...)
	}
	for name, fields := range r.raw {
		defs := make([]fieldDef, 0, len(fields))
		seen := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			if f.Name == "" {
				return nil, fmt.Errorf("%w: %s has a field without a name", ErrUnknownType, name)
			}
			if _, dup := seen[f.Name]; dup {
				return nil, fmt.Errorf("%w: %s declares field %q twice", ErrUnknownType, name, f.Name)
			}
			seen[f.Name] = struct{}{}
			ref, err := r.parse(f.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, f.Name, err)
			}
			defs = append(defs, fieldDef{name: f.Name, declared: f.Type, ref: ref})
		}
		r.structs[name] = defs
	}
	return r, nil
}

// MustRegistry is NewRegistry for package-level schemas known to be valid.
func MustRegistry(types Types) *Registry {
	r, err := NewRegistry(types)
	if err != nil {
		panic(err)
	}
	return r
}

// With returns a copy of the registry in which name is (re)defined by fields.
func (r *Registry) With(name string, fields []Field) (*Registry, error) {
	types := r.Types()
	types[name] = fields
	return NewRegistry(types)
}

// Types returns a copy of the raw definitions.
func (r *Registry) Types() Types {
	out := make(Types, len(r.raw))
	for name, fields := range r.raw {
		out[name] = append([]Field(nil), fields...)
	}
	return out
}

// Fields returns the declared fields of a struct.
func (r *Registry) Fields(name string) ([]Field, bool) {
	fields, ok := r.raw[name]
	if !ok {
		return nil, false
	}
	return append([]Field(nil), fields...), true
}

// Has reports whether name is a defined struct.
func (r *Registry) Has(name string) bool {
	_, ok := r.structs[name]
	return ok
}

// Resolve parses a type string against the registry.
func (r *Registry) Resolve(typ string) (*TypeRef, error) {
	return r.parse(typ)
}

func (r *Registry) parse(typ string) (*TypeRef, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return nil, fmt.Errorf("%w: empty type", ErrUnknownType)
	}
	if strings.HasSuffix(typ, "]") {
		open := strings.LastIndexByte(typ, '[')
		if open <= 0 {
			return nil, fmt.Errorf("%w: malformed array type %q", ErrUnknownType, typ)
		}
		elem, err := r.parse(typ[:open])
		if err != nil {
			return nil, err
		}
		lenStr := typ[open+1 : len(typ)-1]
		if lenStr == "" {
			return &TypeRef{Kind: KindArray, Length: -1, Elem: elem}, nil
		}
		n, err := strconv.Atoi(lenStr)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: invalid array length in %q", ErrUnknownType, typ)
		}
		return &TypeRef{Kind: KindArray, Length: n, Elem: elem}, nil
	}

	switch typ {
	case "address":
		return &TypeRef{Kind: KindAddress}, nil
	case "bool":
		return &TypeRef{Kind: KindBool}, nil
	case "string":
		return &TypeRef{Kind: KindString}, nil
	case "bytes":
		return &TypeRef{Kind: KindBytes}, nil
	}
	if ref, ok := parseSized(typ, "bytes", KindFixedBytes, 1, 32, 1); ok {
		return ref, nil
	}
	if ref, ok := parseSized(typ, "uint", KindUint, 8, 256, 8); ok {
		return ref, nil
	}
	if ref, ok := parseSized(typ, "int", KindInt, 8, 256, 8); ok {
		return ref, nil
	}
	if _, ok := r.raw[typ]; ok {
		return &TypeRef{Kind: KindStruct, Name: typ}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
}

// parseSized recognizes prefixN types. A bare "uint"/"int" is an alias for
// the 256-bit variant.
func parseSized(typ, prefix string, kind Kind, min, max, step int) (*TypeRef, bool) {
	if !strings.HasPrefix(typ, prefix) {
		return nil, false
	}
	rest := typ[len(prefix):]
	if rest == "" {
		if kind == KindFixedBytes {
			return nil, false
		}
		return &TypeRef{Kind: kind, Size: 256}, true
	}
	n, err := strconv.Atoi(rest)
	if err != nil || rest[0] == '0' || n < min || n > max || n%step != 0 {
		return nil, false
	}
	return &TypeRef{Kind: kind, Size: n}, true
}

// EncodeType returns the EIP-712 type string of primary: the primary
// definition followed by every referenced struct, sorted by name.
func (r *Registry) EncodeType(primary string) (string, error) {
	if !r.Has(primary) {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, primary)
	}
	deps := r.dependencies(primary, map[string]struct{}{})
	delete(deps, primary)
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range append([]string{primary}, names...) {
		b.WriteString(name)
		b.WriteByte('(')
		for i, f := range r.structs[name] {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.declared)
			b.WriteByte(' ')
			b.WriteString(f.name)
		}
		b.WriteByte(')')
	}
	return b.String(), nil
}

func (r *Registry) dependencies(name string, found map[string]struct{}) map[string]struct{} {
	if _, ok := found[name]; ok {
		return found
	}
	found[name] = struct{}{}
	for _, f := range r.structs[name] {
		if base := baseStruct(f.ref); base != "" {
			r.dependencies(base, found)
		}
	}
	return found
}

func baseStruct(ref *TypeRef) string {
	for ref.Kind == KindArray {
		ref = ref.Elem
	}
	if ref.Kind == KindStruct {
		return ref.Name
	}
	return ""
}
