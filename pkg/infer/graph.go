package infer

import (
	"fmt"
	"slices"
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/stubforge/internal/dump"
	"github.com/Sumatoshi-tech/stubforge/pkg/pysyntax"
	"github.com/Sumatoshi-tech/stubforge/pkg/pytd"
)

// writeDumps writes the debug artifacts the options ask for.
func (a *analyzer) writeDumps(m *pytd.Module) error {
	if a.opts.OutputCFG != "" {
		err := dump.WriteCFG(a.opts.OutputCFG, a.controlFlow())
		if err != nil {
			return err
		}
	}

	if a.opts.OutputTypegraph != "" {
		err := dump.WriteTypegraph(a.opts.OutputTypegraph, a.typegraph(m))
		if err != nil {
			return err
		}
	}

	if a.opts.OutputPseudocode != "" {
		err := dump.WritePseudocode(a.opts.OutputPseudocode, a.pseudocode())
		if err != nil {
			return err
		}
	}

	return nil
}

const (
	cfgEntry = "entry"
	cfgExit  = "exit"
)

// controlFlow builds the statement-level flow graph of module-level code.
// Definitions are single nodes.
func (a *analyzer) controlFlow() *dump.Graph {
	g := dump.NewGraph(a.module)
	g.AddNode(cfgEntry, cfgEntry, cfgEntry)

	b := &cfgBuilder{a: a, g: g}
	exits := b.block(pysyntax.Children(a.tree.Root()), []string{cfgEntry}, "")

	g.AddNode(cfgExit, cfgExit, cfgExit)

	for _, e := range exits {
		g.AddEdge(e, cfgExit, "")
	}

	return g
}

type cfgBuilder struct {
	a    *analyzer
	g    *dump.Graph
	next int
}

func (b *cfgBuilder) node(stmt sitter.Node) string {
	b.next++
	id := fmt.Sprintf("n%d", b.next)
	b.g.AddNode(id, fmt.Sprintf("%d: %s", pysyntax.Line(stmt), dump.Label(firstLine(b.a.tree.Text(stmt)))), stmt.Type())

	return id
}

func (b *cfgBuilder) link(preds []string, to, label string) {
	for _, p := range preds {
		b.g.AddEdge(p, to, label)
	}
}

// block links stmts in sequence after preds and returns the nodes control
// leaves the block from.
func (b *cfgBuilder) block(stmts []sitter.Node, preds []string, label string) []string {
	for _, stmt := range stmts {
		id := b.node(stmt)
		b.link(preds, id, label)
		label = ""

		preds = b.compound(stmt, id)
	}

	return preds
}

func (b *cfgBuilder) compound(stmt sitter.Node, id string) []string {
	switch stmt.Type() {
	case pysyntax.TypeIf:
		return b.ifFlow(stmt, id)
	case pysyntax.TypeFor, pysyntax.TypeWhile:
		body, _ := pysyntax.Field(stmt, "body")
		for _, e := range b.block(pysyntax.Children(body), []string{id}, "loop") {
			b.g.AddEdge(e, id, "next")
		}

		if alt, ok := pysyntax.Field(stmt, "alternative"); ok {
			return b.block(clauseBody(alt), []string{id}, "done")
		}

		return []string{id}
	case pysyntax.TypeTry:
		var exits []string

		for _, child := range pysyntax.Children(stmt) {
			switch child.Type() {
			case pysyntax.TypeBlock:
				exits = append(exits, b.block(pysyntax.Children(child), []string{id}, "try")...)
			case pysyntax.TypeExceptClause, pysyntax.TypeElseClause, pysyntax.TypeFinallyClause:
				exits = append(exits, b.block(clauseBody(child), []string{id}, child.Type())...)
			}
		}

		if len(exits) == 0 {
			return []string{id}
		}

		return exits
	case pysyntax.TypeWith:
		for _, child := range pysyntax.Children(stmt) {
			if child.Type() == pysyntax.TypeBlock {
				return b.block(pysyntax.Children(child), []string{id}, "")
			}
		}
	}

	return []string{id}
}

func (b *cfgBuilder) ifFlow(stmt sitter.Node, id string) []string {
	var exits []string

	if consequence, ok := pysyntax.Field(stmt, "consequence"); ok {
		exits = append(exits, b.block(pysyntax.Children(consequence), []string{id}, "true")...)
	}

	hasElse := false

	for _, clause := range pysyntax.Children(stmt) {
		switch clause.Type() {
		case pysyntax.TypeElifClause:
			exits = append(exits, b.block(clauseBody(clause), []string{id}, "elif")...)
		case pysyntax.TypeElseClause:
			hasElse = true
			exits = append(exits, b.block(clauseBody(clause), []string{id}, "false")...)
		}
	}

	if !hasElse {
		exits = append(exits, id)
	}

	return exits
}

// clauseBody returns the statements of a clause's block.
func clauseBody(clause sitter.Node) []sitter.Node {
	if clause.Type() == pysyntax.TypeBlock {
		return pysyntax.Children(clause)
	}

	for _, field := range []string{"body", "consequence"} {
		if block, ok := pysyntax.Field(clause, field); ok {
			return pysyntax.Children(block)
		}
	}

	for _, child := range pysyntax.Children(clause) {
		if child.Type() == pysyntax.TypeBlock {
			return pysyntax.Children(child)
		}
	}

	return nil
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")

	return line
}

// typegraph links declarations to the local definitions they use.
func (a *analyzer) typegraph(m *pytd.Module) *dump.Graph {
	g := dump.NewGraph(a.module)
	g.AddNode(moduleDecl, moduleDecl, "module")

	for _, c := range m.Constants {
		g.AddNode(c.Name, c.Name+": "+pytd.PrintType(c.Type), "constant")
		g.AddEdge(moduleDecl, c.Name, "defines")
	}

	for _, c := range m.Classes {
		g.AddNode(c.Name, c.Name, "class")
		g.AddEdge(moduleDecl, c.Name, "defines")
	}

	for _, fn := range m.Functions {
		label := fn.Name
		if len(fn.Signatures) > 0 {
			label += pytd.PrintSignature(fn.Signatures[0])
		}

		g.AddNode(fn.Name, label, "function")
		g.AddEdge(moduleDecl, fn.Name, "defines")
	}

	froms := make([]string, 0, len(a.edges))
	for from := range a.edges {
		froms = append(froms, from)
	}

	slices.Sort(froms)

	for _, from := range froms {
		tos := make([]string, 0, len(a.edges[from]))
		for to := range a.edges[from] {
			tos = append(tos, to)
		}

		slices.Sort(tos)

		for _, to := range tos {
			g.AddEdge(from, to, "uses")
		}
	}

	return g
}

// pseudocode lists every statement of the unit, indented by nesting depth.
func (a *analyzer) pseudocode() []dump.Line {
	var lines []dump.Line

	var walk func(stmts []sitter.Node, depth int)
	walk = func(stmts []sitter.Node, depth int) {
		for _, stmt := range stmts {
			lines = append(lines, dump.Line{
				Depth:  depth,
				Number: pysyntax.Line(stmt),
				Text:   dump.Label(firstLine(a.tree.Text(stmt))),
			})

			for _, child := range pysyntax.Children(stmt) {
				switch child.Type() {
				case pysyntax.TypeBlock:
					walk(pysyntax.Children(child), depth+1)
				case pysyntax.TypeFunction, pysyntax.TypeClass:
					walk([]sitter.Node{child}, depth)
				case pysyntax.TypeElifClause, pysyntax.TypeElseClause, pysyntax.TypeExceptClause, pysyntax.TypeFinallyClause:
					walk([]sitter.Node{child}, depth)
				}
			}
		}
	}

	walk(pysyntax.Children(a.tree.Root()), 0)

	return lines
}
