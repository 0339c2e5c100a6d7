package infer

import (
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

type symKind int

const (
	symValue symKind = iota
	symFunc
	symClass
	symStubFunc
	symStubClass
	symModule
	symTyping
)

// symbol is what a name is bound to.
type symbol struct {
	kind      symKind
	typ       pytd.Type
	fn        *funcDef
	class     *classDef
	stubFn    *pytd.Function
	stubClass *stubClass
	module    *moduleRef
}

func valueSym(t pytd.Type) symbol {
	return symbol{kind: symValue, typ: t}
}

// moduleRef is an imported module. A nil stub marks an opaque module whose
// members are all Any.
type moduleRef struct {
	name string
	stub *pytd.Module
}

// stubClass is a class declared in a stub. Qualified is the spelling used in
// generated types.
type stubClass struct {
	qualified string
	class     *pytd.Class
	owner     *moduleRef
}

type paramDef struct {
	name       string
	kind       pytd.ParamKind
	annotation pytd.Type
	value      sitter.Node
	hasDefault bool
}

// funcDef is a function or method defined in the analyzed unit.
type funcDef struct {
	name     string
	line     int
	node     sitter.Node
	kind     pytd.FuncKind
	owner    *classDef
	params   []paramDef
	returns  pytd.Type
	calls    [][]pytd.Type
	callKeys map[string]bool
}

// isMethod reports whether the first parameter receives the instance or class.
func (f *funcDef) isMethod() bool {
	return f.owner != nil && f.kind != pytd.KindStaticMethod
}

func (f *funcDef) recordCall(args []pytd.Type) {
	key := typesKey(args)
	if f.callKeys[key] {
		return
	}

	if f.callKeys == nil {
		f.callKeys = make(map[string]bool)
	}

	f.callKeys[key] = true
	f.calls = append(f.calls, args)
}

// classDef is a class defined in the analyzed unit.
type classDef struct {
	name      string
	line      int
	node      sitter.Node
	bases     []pytd.Type
	baseDefs  []*classDef
	attrs     map[string]pytd.Type
	attrOrder []string
	methods   []*funcDef
}

func (c *classDef) setAttr(name string, t pytd.Type) {
	if c.attrs == nil {
		c.attrs = make(map[string]pytd.Type)
	}

	prev, seen := c.attrs[name]
	if !seen {
		c.attrOrder = append(c.attrOrder, name)
	}

	c.attrs[name] = pytd.Join(prev, t)
}

// method finds name on the class or, depth first, its local bases.
func (c *classDef) method(name string) (*funcDef, bool) {
	for _, m := range c.methods {
		if m.name == name {
			return m, true
		}
	}

	for _, base := range c.baseDefs {
		if m, ok := base.method(name); ok {
			return m, true
		}
	}

	return nil, false
}

func (c *classDef) attr(name string) (pytd.Type, bool) {
	if t, ok := c.attrs[name]; ok {
		return t, true
	}

	for _, base := range c.baseDefs {
		if t, ok := base.attr(name); ok {
			return t, true
		}
	}

	return nil, false
}

func (c *classDef) instanceType() pytd.Type {
	return pytd.NamedType(c.name)
}

// scope is a function's local namespace; module-level code has none.
type scope struct {
	vars   map[string]pytd.Type
	self   *classDef
	parent *scope
}

func newScope(parent *scope) *scope {
	s := &scope{vars: make(map[string]pytd.Type), parent: parent}
	if parent != nil {
		s.self = parent.self
	}

	return s
}

func (s *scope) lookup(name string) (pytd.Type, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if t, ok := cur.vars[name]; ok {
			return t, true
		}
	}

	return nil, false
}

func (s *scope) bind(name string, t pytd.Type) {
	s.vars[name] = pytd.Join(s.vars[name], t)
}

func typesKey(types []pytd.Type) string {
	key := ""

	for i, t := range types {
		if i > 0 {
			key += ", "
		}

		key += pytd.PrintType(t)
	}

	return key
}
