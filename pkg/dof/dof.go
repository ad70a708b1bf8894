// Package dof performs structural degree-of-freedom analysis.
//
// [Analyze] splits the constraint graph into connected components and
// compares each component's constraint-equation count against 2·|points|.
// A (2,3) pebble game over the bar graph of each component additionally
// detects redundant distance constraints that the plain count misses, such
// as a fourth bar across an already rigid triangle. Both checks depend on
// topology only, never on positions.
package dof

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/matzehuels/linkage/pkg/model"
)

// Component is the analysis of one connected component.
type Component struct {
	Index  int   `json:"component"` // 1-based
	Points []int `json:"points"`

	DOF         int `json:"dof"`
	Fixed       int `json:"fixed"`
	Links       int `json:"links"`
	Angles      int `json:"angles"`
	Coincide    int `json:"coincide"`
	PointLines  int `json:"point_lines"`
	PointSpline int `json:"point_splines"`
	RigidEdges  int `json:"rigid_edges"`

	// Redundant counts bars rejected by the pebble game.
	Redundant int `json:"redundant"`
}

// Total returns the constraint-equation count.
func (c Component) Total() int {
	return 2*c.Fixed + c.Links + c.Angles + 2*c.Coincide + c.PointLines + c.PointSpline + c.RigidEdges
}

// Over reports whether the component is over-constrained.
func (c Component) Over() bool { return c.Total() > c.DOF || c.Redundant > 0 }

// Detail formats the component for [Check].
func (c Component) Detail() string {
	cmp := ">"
	if c.Total() <= c.DOF {
		cmp = "<="
	}
	var b strings.Builder
	fmt.Fprintf(&b, "component#%d: constraints=%d %s dof=%d (fixed=%d, links=%d, angles=%d, coincide=%d, line=%d, spline=%d, rigid=%d",
		c.Index, c.Total(), cmp, c.DOF, c.Fixed, c.Links, c.Angles, c.Coincide, c.PointLines, c.PointSpline, c.RigidEdges)
	if c.Redundant > 0 {
		fmt.Fprintf(&b, ", redundant=%d", c.Redundant)
	}
	b.WriteString(")")
	return b.String()
}

// Report is the result of [Analyze].
type Report struct {
	Components []Component `json:"components"`
}

// Over reports whether any component is over-constrained.
func (r Report) Over() bool {
	for _, c := range r.Components {
		if c.Over() {
			return true
		}
	}
	return false
}

// ComponentOf returns the index into Components holding point id, or -1.
func (r Report) ComponentOf(id int) int {
	for i, c := range r.Components {
		if _, ok := slices.BinarySearch(c.Points, id); ok {
			return i
		}
	}
	return -1
}

// Check runs [Analyze] and returns the over flag with per-component details
// joined by " | ". An empty model reports "No points".
func Check(m *model.Model) (bool, string) {
	r := Analyze(m)
	if len(r.Components) == 0 {
		return false, "No points"
	}
	details := make([]string, len(r.Components))
	for i, c := range r.Components {
		details[i] = c.Detail()
	}
	return r.Over(), strings.Join(details, " | ")
}

// Analyze computes the structural report of m.
func Analyze(m *model.Model) Report {
	g := couplingGraph(m)
	var r Report
	for i, comp := range g.components(m.PointIDs()) {
		r.Components = append(r.Components, countComponent(m, i+1, comp))
	}
	return r
}

// graph is an undirected adjacency set over point ids.
type graph map[int]map[int]bool

func (g graph) link(a, b int) {
	if _, ok := g[a]; !ok {
		return
	}
	if _, ok := g[b]; !ok || a == b {
		return
	}
	g[a][b] = true
	g[b][a] = true
}

// couplingGraph links every pair of points coupled by an active constraint.
func couplingGraph(m *model.Model) graph {
	g := make(graph, len(m.Points))
	for id := range m.Points {
		g[id] = make(map[int]bool)
	}
	for _, l := range m.Links {
		if !l.Ref {
			g.link(l.I, l.J)
		}
	}
	for _, a := range m.Angles {
		if a.Enabled {
			g.link(a.I, a.J)
			g.link(a.J, a.K)
			g.link(a.I, a.K)
		}
	}
	for _, c := range m.Coincides {
		if c.Enabled {
			g.link(c.A, c.B)
		}
	}
	for _, pl := range m.PointLines {
		if pl.Enabled {
			g.link(pl.P, pl.I)
			g.link(pl.P, pl.J)
		}
	}
	for _, ps := range m.PointSplines {
		if sp, ok := m.Splines[ps.Spline]; ok && ps.Enabled {
			for _, c := range sp.Points {
				g.link(ps.P, c)
			}
		}
	}
	for _, e := range m.RigidEdges() {
		g.link(e.I, e.J)
	}
	return g
}

// components returns connected components by BFS, seeded in the order of
// ids. Each component is sorted ascending.
func (g graph) components(ids []int) [][]int {
	seen := make(map[int]bool, len(ids))
	var out [][]int
	for _, start := range ids {
		if seen[start] {
			continue
		}
		seen[start] = true
		comp := []int{start}
		for queue := []int{start}; len(queue) > 0; {
			cur := queue[0]
			queue = queue[1:]
			for _, nb := range slices.Sorted(maps.Keys(g[cur])) {
				if !seen[nb] {
					seen[nb] = true
					comp = append(comp, nb)
					queue = append(queue, nb)
				}
			}
		}
		slices.Sort(comp)
		out = append(out, comp)
	}
	return out
}

func countComponent(m *model.Model, index int, points []int) Component {
	in := make(map[int]bool, len(points))
	for _, id := range points {
		in[id] = true
	}
	all := func(ids ...int) bool {
		for _, id := range ids {
			if !in[id] {
				return false
			}
		}
		return true
	}

	c := Component{Index: index, Points: points, DOF: 2 * len(points)}
	for _, id := range points {
		if m.IsFixed(id) {
			c.Fixed++
		}
	}
	for _, co := range m.Coincides {
		if co.Enabled && all(co.A, co.B) {
			c.Coincide++
		}
	}
	for _, pl := range m.PointLines {
		if pl.Enabled && all(pl.P, pl.I, pl.J) {
			if pl.HasOffset() {
				c.PointLines += 2
			} else {
				c.PointLines++
			}
		}
	}
	for _, ps := range m.PointSplines {
		sp, ok := m.Splines[ps.Spline]
		if ok && ps.Enabled && all(ps.P) && all(m.SplineControls(sp)...) {
			c.PointSpline++
		}
	}

	pg := newPebbleGame(points)
	for _, l := range m.SortedLinks() {
		if !l.Ref && all(l.I, l.J) {
			c.Links++
			if !pg.addBar(l.I, l.J) {
				c.Redundant++
			}
		}
	}
	for _, a := range m.Angles {
		if a.Enabled && all(a.I, a.J, a.K) {
			c.Angles++
		}
	}
	for _, e := range m.RigidEdges() {
		if all(e.I, e.J) {
			c.RigidEdges++
		}
	}
	for _, b := range m.SortedBodies() {
		for _, bar := range triangulate(m, b) {
			if all(bar[0], bar[1]) && !pg.addBar(bar[0], bar[1]) {
				c.Redundant++
			}
		}
	}
	return c
}

// triangulate returns a minimal rigid bar set for a body: m0-m1 plus m0-mi
// and m1-mi for every further member.
func triangulate(m *model.Model, b *model.Body) [][2]int {
	var members []int
	for _, id := range b.Members {
		if _, ok := m.Points[id]; ok && !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	if len(members) < 2 {
		return nil
	}
	bars := [][2]int{{members[0], members[1]}}
	for _, id := range members[2:] {
		bars = append(bars, [2]int{members[0], id}, [2]int{members[1], id})
	}
	return bars
}
