package dump

import (
	"bytes"
	"fmt"
	"strings"
)

// Node is a graph vertex. Category groups vertices in the typegraph.
type Node struct {
	ID       string
	Label    string
	Category string
}

type edge struct {
	to    int
	label string
}

// Graph is a directed graph with string node ids interned to dense integers.
// Nodes and edges keep insertion order so that output is deterministic.
type Graph struct {
	Name string

	ids      map[string]int
	nodes    []Node
	adj      [][]edge
	inDegree []int
}

// NewGraph returns an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{Name: name, ids: make(map[string]int)}
}

func (g *Graph) intern(id string) int {
	if idx, ok := g.ids[id]; ok {
		return idx
	}

	idx := len(g.nodes)
	g.ids[id] = idx
	g.nodes = append(g.nodes, Node{ID: id, Label: id})
	g.adj = append(g.adj, nil)
	g.inDegree = append(g.inDegree, 0)

	return idx
}

// AddNode inserts a node. It returns false, leaving the node unchanged, when
// the id is already present.
func (g *Graph) AddNode(id, label, category string) bool {
	if _, ok := g.ids[id]; ok {
		return false
	}

	idx := g.intern(id)
	g.nodes[idx].Label = label
	g.nodes[idx].Category = category

	return true
}

// AddEdge links from to to, creating missing nodes. Duplicate edges are
// ignored and reported as false.
func (g *Graph) AddEdge(from, to, label string) bool {
	u, v := g.intern(from), g.intern(to)

	for _, e := range g.adj[u] {
		if e.to == v {
			return false
		}
	}

	g.adj[u] = append(g.adj[u], edge{to: v, label: label})
	g.inDegree[v]++

	return true
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)

	return out
}

// Children returns the targets of the edges leaving id, in insertion order.
func (g *Graph) Children(id string) []string {
	u, ok := g.ids[id]
	if !ok {
		return nil
	}

	out := make([]string, len(g.adj[u]))
	for i, e := range g.adj[u] {
		out[i] = g.nodes[e.to].ID
	}

	return out
}

// BreadthOrder lists the nodes breadth first, starting from the nodes without
// incoming edges. Nodes only reachable through cycles follow in insertion
// order.
func (g *Graph) BreadthOrder() []string {
	visited := make([]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var queue []int

	for idx, degree := range g.inDegree {
		if degree == 0 {
			queue = append(queue, idx)
		}
	}

	drain := func() {
		for len(queue) > 0 {
			u := queue[0]
			queue = queue[1:]

			if visited[u] {
				continue
			}

			visited[u] = true
			result = append(result, g.nodes[u].ID)

			for _, e := range g.adj[u] {
				queue = append(queue, e.to)
			}
		}
	}

	drain()

	for idx := range g.nodes {
		if !visited[idx] {
			queue = append(queue, idx)
			drain()
		}
	}

	return result
}

// DOT renders the graph in Graphviz format. Node names carry their breadth
// first position.
func (g *Graph) DOT() string {
	position := make(map[string]int, len(g.nodes))
	for i, id := range g.BreadthOrder() {
		position[id] = i
	}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "digraph %q {\n", g.Name)

	for _, n := range g.nodes {
		fmt.Fprintf(&buf, "  %q [label=%q];\n", n.ID, fmt.Sprintf("%d %s", position[n.ID], n.Label))
	}

	for u, edges := range g.adj {
		for _, e := range edges {
			attrs := ""
			if e.label != "" {
				attrs = fmt.Sprintf(" [label=%q]", e.label)
			}

			fmt.Fprintf(&buf, "  %q -> %q%s;\n", g.nodes[u].ID, g.nodes[e.to].ID, attrs)
		}
	}

	buf.WriteString("}\n")

	return buf.String()
}

const maxLabel = 60

// Label collapses statement text to a single line of bounded length.
func Label(text string) string {
	label := strings.Join(strings.Fields(text), " ")
	if runes := []rune(label); len(runes) > maxLabel {
		label = string(runes[:maxLabel-3]) + "..."
	}

	return label
}
