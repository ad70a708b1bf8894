package dof

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/linkage/pkg/model"
)

// ToDOT converts the constraint graph of m to Graphviz DOT. Each component
// becomes a cluster; over-constrained clusters are drawn in red. Fixed
// points are filled grey.
func ToDOT(m *model.Model, r Report) string {
	var buf bytes.Buffer
	buf.WriteString("graph G {\n")
	buf.WriteString("  layout=neato;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=circle, style=filled, fillcolor=white, fontsize=14];\n")
	buf.WriteString("\n")

	for _, c := range r.Components {
		fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", c.Index)
		color := "black"
		if c.Over() {
			color = "red"
		}
		fmt.Fprintf(&buf, "    label=%q; color=%s;\n", c.Detail(), color)
		for _, id := range c.Points {
			fmt.Fprintf(&buf, "    p%d [%s];\n", id, strings.Join(pointAttrs(m, id, color), ", "))
		}
		buf.WriteString("  }\n")
	}

	buf.WriteString("\n")
	for _, e := range edges(m) {
		fmt.Fprintf(&buf, "  p%d -- p%d [label=%q];\n", e.a, e.b, e.label)
	}
	buf.WriteString("}\n")
	return buf.String()
}

func pointAttrs(m *model.Model, id int, color string) []string {
	attrs := []string{fmt.Sprintf("label=\"P%d\"", id), "color=" + color}
	if m.IsFixed(id) {
		attrs = append(attrs, "fillcolor=lightgrey")
	}
	if p, ok := m.Points[id]; ok {
		attrs = append(attrs, fmt.Sprintf("pos=\"%s,%s!\"", fmtCoord(p.X), fmtCoord(-p.Y)))
	}
	return attrs
}

func fmtCoord(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

type dotEdge struct {
	a, b  int
	label string
}

// edges lists one labelled edge per coupled pair, merging labels of parallel
// constraints.
func edges(m *model.Model) []dotEdge {
	labels := map[[2]int][]string{}
	add := func(a, b int, label string) {
		if a == b || !m.Has(a, b) {
			return
		}
		if a > b {
			a, b = b, a
		}
		labels[[2]int{a, b}] = append(labels[[2]int{a, b}], label)
	}
	for _, l := range m.SortedLinks() {
		if !l.Ref {
			add(l.I, l.J, fmt.Sprintf("L%d", l.ID))
		}
	}
	for _, a := range m.SortedAngles() {
		if a.Enabled {
			label := fmt.Sprintf("A%d", a.ID)
			add(a.I, a.J, label)
			add(a.J, a.K, label)
		}
	}
	for _, c := range m.SortedCoincides() {
		if c.Enabled {
			add(c.A, c.B, fmt.Sprintf("C%d", c.ID))
		}
	}
	for _, pl := range m.SortedPointLines() {
		if pl.Enabled {
			label := fmt.Sprintf("PL%d", pl.ID)
			add(pl.P, pl.I, label)
			add(pl.P, pl.J, label)
		}
	}
	for _, ps := range m.SortedPointSplines() {
		if sp, ok := m.Splines[ps.Spline]; ok && ps.Enabled {
			for _, c := range m.SplineControls(sp) {
				add(ps.P, c, fmt.Sprintf("PS%d", ps.ID))
			}
		}
	}
	for _, b := range m.SortedBodies() {
		for _, e := range b.RigidEdges {
			add(e.I, e.J, fmt.Sprintf("B%d", b.ID))
		}
	}

	keys := slices.SortedFunc(maps.Keys(labels), func(x, y [2]int) int {
		if x[0] != y[0] {
			return x[0] - y[0]
		}
		return x[1] - y[1]
	})
	out := make([]dotEdge, len(keys))
	for i, k := range keys {
		out[i] = dotEdge{a: k[0], b: k[1], label: strings.Join(labels[k], ",")}
	}
	return out
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element to a zero-origin viewBox with
// matching pixel size.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
