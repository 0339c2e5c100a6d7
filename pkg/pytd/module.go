// Package pytd is the stub data model: types, declarations, the text
// serializer and parser, canonical ordering and the optimizer.
//
// Stubs are written in Python syntax so that the same grammar parses both
// sources and stubs:
//
//	from typing import Any, Union, overload
//
//	VERSION: str
//
//	class Point(Base):
//	    x: int
//	    def norm(self) -> float: ...
//
//	@overload
//	def f(a: int) -> int: ...
//	@overload
//	def f(a: str) -> str: ...
package pytd

// FuncKind tells plain functions apart from decorated methods.
type FuncKind int

// Function kinds.
const (
	KindPlain FuncKind = iota
	KindStaticMethod
	KindClassMethod
	KindProperty
)

var funcKindDecorators = map[FuncKind]string{
	KindStaticMethod: "staticmethod",
	KindClassMethod:  "classmethod",
	KindProperty:     "property",
}

// Decorator returns the decorator spelling of k, or "" for plain functions.
func (k FuncKind) Decorator() string {
	return funcKindDecorators[k]
}

// ParamKind distinguishes *args and **kwargs from regular parameters.
type ParamKind int

// Parameter kinds.
const (
	ParamRegular ParamKind = iota
	ParamVarargs
	ParamKwargs
)

// Param is one function parameter. A nil Type prints the bare name.
type Param struct {
	Name     string
	Type     Type
	Optional bool
	Kind     ParamKind
}

// Signature is one overload of a function.
type Signature struct {
	Params []Param
	Return Type
}

// Function is a named function or method with one or more signatures.
type Function struct {
	Name       string
	Kind       FuncKind
	Signatures []Signature
}

// Constant is a module-level or class-level annotated name.
type Constant struct {
	Name string
	Type Type
}

// Class is a class declaration.
type Class struct {
	Name      string
	Bases     []Type
	Constants []Constant
	Methods   []Function
}

// Module is the stub of one source unit. Name is not part of the serialized
// text.
type Module struct {
	Name      string
	Constants []Constant
	Classes   []Class
	Functions []Function
}

// Lookup returns the top-level declaration called name: a *Constant, *Class
// or *Function.
func (m *Module) Lookup(name string) any {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i]
		}
	}

	for i := range m.Classes {
		if m.Classes[i].Name == name {
			return &m.Classes[i]
		}
	}

	for i := range m.Constants {
		if m.Constants[i].Name == name {
			return &m.Constants[i]
		}
	}

	return nil
}

// Method returns the method called name, if any.
func (c *Class) Method(name string) (*Function, bool) {
	for i := range c.Methods {
		if c.Methods[i].Name == name {
			return &c.Methods[i], true
		}
	}

	return nil, false
}

// Attribute returns the class-level constant called name, if any.
func (c *Class) Attribute(name string) (*Constant, bool) {
	for i := range c.Constants {
		if c.Constants[i].Name == name {
			return &c.Constants[i], true
		}
	}

	return nil, false
}

// Clone returns a deep copy of m. Types are immutable values and are shared.
func (m *Module) Clone() *Module {
	out := &Module{
		Name:      m.Name,
		Constants: append([]Constant(nil), m.Constants...),
		Classes:   make([]Class, len(m.Classes)),
		Functions: cloneFunctions(m.Functions),
	}

	for i, c := range m.Classes {
		out.Classes[i] = Class{
			Name:      c.Name,
			Bases:     append([]Type(nil), c.Bases...),
			Constants: append([]Constant(nil), c.Constants...),
			Methods:   cloneFunctions(c.Methods),
		}
	}

	return out
}

func cloneFunctions(in []Function) []Function {
	if in == nil {
		return nil
	}

	out := make([]Function, len(in))

	for i, fn := range in {
		sigs := make([]Signature, len(fn.Signatures))
		for j, sig := range fn.Signatures {
			sigs[j] = Signature{Params: append([]Param(nil), sig.Params...), Return: sig.Return}
		}

		out[i] = Function{Name: fn.Name, Kind: fn.Kind, Signatures: sigs}
	}

	return out
}

// MapTypes returns a copy of m with fn applied to every type it mentions.
func (m *Module) MapTypes(fn func(Type) Type) *Module {
	out := m.Clone()

	mapConstants(out.Constants, fn)
	mapFunctions(out.Functions, fn)

	for i := range out.Classes {
		for j, base := range out.Classes[i].Bases {
			if base != nil {
				out.Classes[i].Bases[j] = fn(base)
			}
		}

		mapConstants(out.Classes[i].Constants, fn)
		mapFunctions(out.Classes[i].Methods, fn)
	}

	return out
}

func mapConstants(list []Constant, fn func(Type) Type) {
	for i := range list {
		if list[i].Type != nil {
			list[i].Type = fn(list[i].Type)
		}
	}
}

func mapFunctions(list []Function, fn func(Type) Type) {
	for i := range list {
		for j := range list[i].Signatures {
			sig := &list[i].Signatures[j]
			for k := range sig.Params {
				if sig.Params[k].Type != nil {
					sig.Params[k].Type = fn(sig.Params[k].Type)
				}
			}

			if sig.Return != nil {
				sig.Return = fn(sig.Return)
			}
		}
	}
}
