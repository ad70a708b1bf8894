package dof

import (
	"strings"
	"testing"

	"github.com/matzehuels/linkage/pkg/model"
)

func triangle(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	for _, p := range []model.Point{{ID: 0, Fixed: true}, {ID: 1, X: 2}, {ID: 2, X: 1, Y: 1}} {
		if _, err := m.AddPoint(p); err != nil {
			t.Fatal(err)
		}
	}
	for i, e := range [][2]int{{0, 1}, {1, 2}, {0, 2}} {
		l, _ := model.NewLink(i, e[0], e[1], 1)
		if err := m.AddLink(l); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func TestCheckEmpty(t *testing.T) {
	over, detail := Check(model.New())
	if over || detail != "No points" {
		t.Errorf("Check = %v, %q, want false, \"No points\"", over, detail)
	}
}

func TestRigidTriangleIsNotOver(t *testing.T) {
	over, detail := Check(triangle(t))
	if over {
		t.Errorf("triangle reported over: %s", detail)
	}
	want := "component#1: constraints=5 <= dof=6 (fixed=1, links=3, angles=0, coincide=0, line=0, spline=0, rigid=0)"
	if detail != want {
		t.Errorf("detail = %q, want %q", detail, want)
	}
}

func TestRedundantBarIsOver(t *testing.T) {
	for _, extra := range [][2]int{{0, 1}, {2, 0}} {
		m := triangle(t)
		l, _ := model.NewLink(3, extra[0], extra[1], 1)
		m.AddLink(l)

		over, detail := Check(m)
		if !over {
			t.Errorf("extra bar %v: not reported over", extra)
		}
		if !strings.Contains(detail, "redundant=1") {
			t.Errorf("extra bar %v: detail = %q", extra, detail)
		}
		r := Analyze(m)
		if got := r.Components[0].Total(); got != 6 {
			t.Errorf("total = %d, want 6", got)
		}
	}
}

func TestCountRule(t *testing.T) {
	m := triangle(t)
	m.Points[1].Fixed = true
	m.Points[2].Fixed = true
	over, detail := Check(m)
	if !over {
		t.Error("fully fixed triangle with links should be over")
	}
	if !strings.Contains(detail, "constraints=9 > dof=6") {
		t.Errorf("detail = %q", detail)
	}
}

func TestComponents(t *testing.T) {
	m := triangle(t)
	m.AddPoint(model.Point{ID: 5, X: 9})
	m.AddPoint(model.Point{ID: 7, X: 10})
	s := 0.5
	pl, _ := model.NewPointLine(0, 5, 7, 1, &s)
	m.AddPointLine(pl)
	m.AddPoint(model.Point{ID: 9, Fixed: true})

	r := Analyze(m)
	if len(r.Components) != 2 {
		t.Fatalf("components = %d, want 2", len(r.Components))
	}
	c := r.Components[0]
	if c.Index != 1 || len(c.Points) != 5 || c.PointLines != 2 || c.DOF != 10 {
		t.Errorf("component 1 = %+v", c)
	}
	if got := r.Components[1].Points; len(got) != 1 || got[0] != 9 {
		t.Errorf("component 2 points = %v, want [9]", got)
	}
	if r.ComponentOf(7) != 0 || r.ComponentOf(9) != 1 || r.ComponentOf(42) != -1 {
		t.Error("ComponentOf mismatch")
	}
	_, detail := Check(m)
	if n := strings.Count(detail, " | "); n != 1 {
		t.Errorf("detail separators = %d, want 1: %q", n, detail)
	}
}

func TestAngleCoincideAndSplineCounts(t *testing.T) {
	m := model.New()
	for id := range 6 {
		m.AddPoint(model.Point{ID: id, X: float64(id), Y: float64(id % 2)})
	}
	a, _ := model.NewAngle(0, 0, 1, 2, 0.5)
	m.AddAngle(a)
	c, _ := model.NewCoincide(0, 2, 3)
	m.AddCoincide(c)
	m.AddSpline(&model.Spline{ID: 0, Points: []int{3, 4}})
	ps, _ := model.NewPointSpline(0, 5, 0)
	m.AddPointSpline(ps)

	r := Analyze(m)
	if len(r.Components) != 1 {
		t.Fatalf("components = %d, want 1", len(r.Components))
	}
	got := r.Components[0]
	if got.Angles != 1 || got.Coincide != 1 || got.PointSpline != 1 || got.Total() != 4 {
		t.Errorf("component = %+v", got)
	}
}

func TestRefAndDisabledAreIgnored(t *testing.T) {
	m := triangle(t)
	m.Links[2].Ref = true
	r := Analyze(m)
	if got := r.Components[0].Links; got != 2 {
		t.Errorf("links = %d, want 2", got)
	}
}

func TestBodyTriangulation(t *testing.T) {
	m := model.New()
	for id := range 4 {
		m.AddPoint(model.Point{ID: id, X: float64(id), Y: float64(id * id)})
	}
	b := &model.Body{ID: 0, Members: []int{0, 1, 2, 3}}
	m.AddBody(b)

	r := Analyze(m)
	c := r.Components[0]
	if c.RigidEdges != 6 {
		t.Errorf("rigid edges = %d, want 6", c.RigidEdges)
	}
	if c.Redundant != 0 {
		t.Errorf("redundant = %d, want 0", c.Redundant)
	}

	l, _ := model.NewLink(0, 2, 3, 1)
	m.AddLink(l)
	if got := Analyze(m).Components[0].Redundant; got != 1 {
		t.Errorf("link inside a body: redundant = %d, want 1", got)
	}
}

func TestPebbleGameFourBar(t *testing.T) {
	pg := newPebbleGame([]int{0, 1, 2, 3})
	for _, e := range [][2]int{{0, 1}, {1, 2}, {2, 3}, {0, 3}} {
		if !pg.addBar(e[0], e[1]) {
			t.Errorf("bar %v rejected", e)
		}
	}
	free := 0
	for _, n := range pg.pebbles {
		free += n
	}
	if free != 4 {
		t.Errorf("free pebbles = %d, want 4", free)
	}
	if !pg.addBar(0, 2) {
		t.Error("diagonal of a quadrilateral should be independent")
	}
	if pg.addBar(1, 3) {
		t.Error("second diagonal should be redundant")
	}
}

func TestToDOT(t *testing.T) {
	m := triangle(t)
	l, _ := model.NewLink(3, 0, 1, 1)
	m.AddLink(l)
	dot := ToDOT(m, Analyze(m))
	for _, want := range []string{"graph G {", "subgraph cluster_1", "color=red", "p0 -- p1 [label=\"L0,L3\"]", "fillcolor=lightgrey"} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" viewBox="0.00 0.00 120.40 80.00"><g/></svg>`)
	got := string(normalizeViewBox(in))
	if !strings.HasPrefix(got, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 120.40 80.00" width="120" height="80">`) {
		t.Errorf("normalizeViewBox = %q", got)
	}
	if plain := []byte("<svg></svg>"); string(normalizeViewBox(plain)) != "<svg></svg>" {
		t.Error("svg without viewBox should be unchanged")
	}
}
