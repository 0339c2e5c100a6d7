package infer

import (
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/stubforge/pkg/pysyntax"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

// build assembles the unit's stub from the analyzed definitions. Classes go
// first so that instance attributes collected from method bodies are known
// when functions are analyzed.
func (a *analyzer) build() *pytd.Module {
	reach := a.reachable()
	m := &pytd.Module{Name: a.module}

	for _, class := range a.classes {
		if a.ctx.Err() != nil {
			return m
		}

		if sym, ok := a.globals[class.name]; !ok || sym.class != class {
			continue
		}

		if reach != nil && !reach[class.name] {
			continue
		}

		m.Classes = append(m.Classes, a.classStub(class))
	}

	for _, fn := range a.functions {
		if a.ctx.Err() != nil {
			return m
		}

		if sym, ok := a.globals[fn.name]; !ok || sym.fn != fn {
			continue
		}

		if reach != nil && !reach[fn.name] {
			continue
		}

		m.Functions = append(m.Functions, pytd.Function{Name: fn.name, Kind: fn.kind, Signatures: a.signatures(fn)})
	}

	seen := make(map[string]bool)

	for _, name := range a.constOrder {
		sym := a.globals[name]
		if seen[name] || a.imported[name] || sym.kind != symValue {
			continue
		}

		seen[name] = true
		m.Constants = append(m.Constants, pytd.Constant{Name: name, Type: orAny(sym.typ)})
	}

	if a.opts.SolveUnknowns {
		m = m.MapTypes(solveUnknowns)
	}

	return m
}

func solveUnknowns(t pytd.Type) pytd.Type {
	return pytd.Replace(t, func(n pytd.Named) pytd.Type {
		if n.Name == pytd.NameUnknown {
			return pytd.AnyType
		}

		return nil
	})
}

func (a *analyzer) classStub(class *classDef) pytd.Class {
	out := pytd.Class{Name: class.name, Bases: class.bases}
	methodNames := make(map[string]bool, len(class.methods))

	for _, method := range class.methods {
		methodNames[method.name] = true
		out.Methods = append(out.Methods, pytd.Function{
			Name:       method.name,
			Kind:       method.kind,
			Signatures: a.signatures(method),
		})
	}

	for _, name := range class.attrOrder {
		if methodNames[name] {
			continue
		}

		out.Constants = append(out.Constants, pytd.Constant{Name: name, Type: orAny(class.attrs[name])})
	}

	return out
}

// reachable returns the module-level functions and classes referenced,
// directly or transitively, from module-level statements. It returns nil when
// every definition is in scope.
func (a *analyzer) reachable() map[string]bool {
	if a.opts.Deep {
		return nil
	}

	reach := make(map[string]bool)

	var queue []sitter.Node

	visit := func(names []string) {
		for _, name := range names {
			if reach[name] {
				continue
			}

			sym, ok := a.globals[name]
			if !ok {
				continue
			}

			switch sym.kind {
			case symFunc:
				if sym.fn.owner == nil {
					reach[name] = true
					queue = append(queue, sym.fn.node)
				}
			case symClass:
				reach[name] = true
				queue = append(queue, sym.class.node)
			}
		}
	}

	visit(a.referencedNames(a.tree.Root(), true))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visit(a.referencedNames(node, false))
	}

	return reach
}

// referencedNames lists the identifiers used under node. At module level the
// bodies and parameter names of definitions are skipped; their decorators,
// defaults and bases are not.
func (a *analyzer) referencedNames(node sitter.Node, moduleLevel bool) []string {
	var names []string

	var walk func(n sitter.Node)
	walk = func(n sitter.Node) {
		if n.Type() == pysyntax.TypeIdentifier {
			names = append(names, a.tree.Text(n))

			return
		}

		if moduleLevel && isDefinition(n) {
			if supers, ok := pysyntax.Field(n, "superclasses"); ok {
				walk(supers)
			}

			if params, ok := pysyntax.Field(n, "parameters"); ok {
				for _, param := range pysyntax.Children(params) {
					if value, hasDefault := pysyntax.Field(param, "value"); hasDefault {
						walk(value)
					}
				}
			}

			return
		}

		for _, child := range pysyntax.Children(n) {
			walk(child)
		}
	}

	walk(node)

	return names
}

func isDefinition(n sitter.Node) bool {
	return n.Type() == pysyntax.TypeFunction || n.Type() == pysyntax.TypeClass
}
