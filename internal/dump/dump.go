// Package dump writes the engine's debug artifacts: the control-flow graph as
// Graphviz text, the typegraph as an interactive HTML chart and the
// pseudocode listing. Paths ending in ".lz4" are written as lz4 frames.
package dump

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pierrec/lz4/v4"
)

// CompressedSuffix selects lz4 compression.
const CompressedSuffix = ".lz4"

// Typegraph chart layout.
const (
	chartWidth      = "100%"
	chartHeight     = "800px"
	forceRepulsion  = 300
	forceEdgeLength = 80
	nodeSymbolSize  = 18
)

// Line is one pseudocode line.
type Line struct {
	Depth  int
	Number int
	Text   string
}

// WriteCFG writes g as Graphviz text.
func WriteCFG(path string, g *Graph) error {
	return write(path, func(w io.Writer) error {
		_, err := io.WriteString(w, g.DOT())

		return err
	})
}

// WriteTypegraph writes g as a force-directed graph page.
func WriteTypegraph(path string, g *Graph) error {
	return write(path, func(w io.Writer) error {
		return typegraphChart(g).Render(w)
	})
}

// WritePseudocode writes one indented line per statement, prefixed by its
// source line number.
func WritePseudocode(path string, lines []Line) error {
	return write(path, func(w io.Writer) error {
		for _, l := range lines {
			_, err := fmt.Fprintf(w, "%4d  %s%s\n", l.Number, strings.Repeat("  ", l.Depth), l.Text)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func typegraphChart(g *Graph) *charts.Graph {
	var categoryNames []string

	categoryIndex := make(map[string]int)
	nodes := make([]opts.GraphNode, 0, g.Len())

	for _, n := range g.Nodes() {
		idx, ok := categoryIndex[n.Category]
		if !ok {
			idx = len(categoryNames)
			categoryIndex[n.Category] = idx
			categoryNames = append(categoryNames, n.Category)
		}

		nodes = append(nodes, opts.GraphNode{Name: n.ID, Category: idx, SymbolSize: nodeSymbolSize})
	}

	var links []opts.GraphLink

	for _, n := range g.Nodes() {
		for _, child := range g.Children(n.ID) {
			links = append(links, opts.GraphLink{Source: n.ID, Target: child})
		}
	}

	categories := make([]*opts.GraphCategory, len(categoryNames))
	for i, name := range categoryNames {
		categories[i] = &opts.GraphCategory{Name: name}
	}

	chart := charts.NewGraph()
	chart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: g.Name}),
		charts.WithInitializationOpts(opts.Initialization{PageTitle: g.Name, Width: chartWidth, Height: chartHeight}),
	)
	chart.AddSeries("typegraph", nodes, links, charts.WithGraphChartOpts(opts.GraphChart{
		Layout:     "force",
		Roam:       opts.Bool(true),
		Force:      &opts.GraphForce{Repulsion: forceRepulsion, EdgeLength: forceEdgeLength},
		Categories: categories,
	}))

	return chart
}

func write(path string, render func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	if !strings.HasSuffix(path, CompressedSuffix) {
		return wrap(render(file))
	}

	zw := lz4.NewWriter(file)

	renderErr := render(zw)

	return wrap(errors.Join(renderErr, zw.Close()))
}

func wrap(err error) error {
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}

	return nil
}
