package pytd

import (
	"strings"
)

// Well-known type names.
const (
	NameAny      = "Any"
	NameNone     = "None"
	NameUnknown  = "Unknown"
	NameUnion    = "Union"
	NameOptional = "Optional"
)

// Type is a type expression in a stub.
type Type interface {
	// String returns the stub spelling of the type.
	String() string
	isType()
}

// Named is a plain or dotted type name.
type Named struct {
	Name string
}

// Generic is a parameterized type such as list[int].
type Generic struct {
	Base   string
	Params []Type
}

// Union is a set of alternative types. Member order is preserved until the
// optimizer or the canonical ordering pass normalizes it.
type Union struct {
	Types []Type
}

func (Named) isType()   {}
func (Generic) isType() {}
func (Union) isType()   {}

func (n Named) String() string {
	return n.Name
}

func (g Generic) String() string {
	if len(g.Params) == 0 {
		return g.Base
	}

	return g.Base + "[" + joinTypes(g.Params) + "]"
}

func (u Union) String() string {
	if len(u.Types) == 0 {
		return NameAny
	}

	return NameUnion + "[" + joinTypes(u.Types) + "]"
}

func joinTypes(types []Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}

	return strings.Join(parts, ", ")
}

// Frequently used types.
var (
	AnyType     Type = Named{Name: NameAny}
	NoneType    Type = Named{Name: NameNone}
	UnknownType Type = Named{Name: NameUnknown}
)

// NamedType returns the Named type for name.
func NamedType(name string) Type {
	return Named{Name: name}
}

// GenericType returns base parameterized by params.
func GenericType(base string, params ...Type) Type {
	return Generic{Base: base, Params: params}
}

// Join returns the union of the given types, flattened, without duplicates and
// in first-seen order. A single distinct member is returned as is; no members
// yield nil.
func Join(types ...Type) Type {
	var members []Type

	seen := make(map[string]bool)

	var add func(t Type)
	add = func(t Type) {
		if t == nil {
			return
		}

		if u, ok := t.(Union); ok {
			for _, m := range u.Types {
				add(m)
			}

			return
		}

		key := t.String()
		if seen[key] {
			return
		}

		seen[key] = true
		members = append(members, t)
	}

	for _, t := range types {
		add(t)
	}

	switch len(members) {
	case 0:
		return nil
	case 1:
		return members[0]
	default:
		return Union{Types: members}
	}
}

// Equal reports whether a and b print identically.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return a.String() == b.String()
}

// IsUnknown reports whether t mentions the kept-unknown placeholder.
func IsUnknown(t Type) bool {
	switch v := t.(type) {
	case Named:
		return v.Name == NameUnknown
	case Generic:
		for _, p := range v.Params {
			if IsUnknown(p) {
				return true
			}
		}
	case Union:
		for _, m := range v.Types {
			if IsUnknown(m) {
				return true
			}
		}
	}

	return false
}

// Replace rebuilds t bottom-up, substituting every Named type for which fn
// returns a non-nil replacement.
func Replace(t Type, fn func(Named) Type) Type {
	switch v := t.(type) {
	case Named:
		if r := fn(v); r != nil {
			return r
		}

		return v
	case Generic:
		params := make([]Type, len(v.Params))
		for i, p := range v.Params {
			params[i] = Replace(p, fn)
		}

		return Generic{Base: v.Base, Params: params}
	case Union:
		members := make([]Type, len(v.Types))
		for i, m := range v.Types {
			members[i] = Replace(m, fn)
		}

		return Union{Types: members}
	default:
		return t
	}
}
