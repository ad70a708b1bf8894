package residual

import (
	"math"
	"testing"

	"github.com/matzehuels/linkage/pkg/model"
)

func TestEval(t *testing.T) {
	// slots: 0=(0,0) 1=(4,0) 2=(1,2) 3=(0,3)
	q := []float64{0, 0, 4, 0, 1, 2, 0, 3}

	tests := []struct {
		name string
		d    Descriptor
		want float64
	}{
		{"fixed x", Descriptor{Kind: FixedX, Slots: []int{2}, Value: 0.5}, 0.5},
		{"fixed y", Descriptor{Kind: FixedY, Slots: []int{2}, Value: 2}, 0},
		{"coincide x", Descriptor{Kind: CoincideX, Slots: []int{1, 2}}, 3},
		{"coincide y", Descriptor{Kind: CoincideY, Slots: []int{1, 2}}, -2},
		{"line distance", Descriptor{Kind: LineDistance, Slots: []int{2, 0, 1}}, -2},
		{"line offset", Descriptor{Kind: LineOffset, Slots: []int{2, 0, 1}, Value: 0.25}, 0.75},
		{"line target x", Descriptor{Kind: LineTargetX, Slots: []int{2, 0, 1}, Value: 3}, -2},
		{"line target y", Descriptor{Kind: LineTargetY, Slots: []int{2, 0, 1}, Value: 3}, 2},
		{"link", Descriptor{Kind: Link, Slots: []int{0, 1}, Value: 3}, 1},
		{"rigid edge", Descriptor{Kind: RigidEdge, Slots: []int{0, 3}, Value: 3}, 0},
		{"angle", Descriptor{Kind: Angle, Slots: []int{1, 0, 3}, Value: math.Pi / 4}, math.Pi / 4},
		{"angle cos", Descriptor{Kind: AngleCos, Slots: []int{1, 0, 3}, Value: 0}, -1},
		{"angle sin", Descriptor{Kind: AngleSin, Slots: []int{1, 0, 3}, Value: 0}, 1},
		{"heading", Descriptor{Kind: Heading, Slots: []int{0, 3}, Value: math.Pi / 2}, 0},
		{"heading sin", Descriptor{Kind: HeadingSin, Slots: []int{0, 1}, Value: math.Pi / 2}, -1},
		{"degenerate line", Descriptor{Kind: LineDistance, Slots: []int{2, 0, 0}}, 0},
		{"degenerate heading", Descriptor{Kind: Heading, Slots: []int{1, 1}, Value: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eval(tt.d, q); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Eval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvalHeadingWrapsAcrossPi(t *testing.T) {
	q := []float64{0, 0, -1, -1e-9}
	d := Descriptor{Kind: Heading, Slots: []int{0, 1}, Value: math.Pi}
	if got := Eval(d, q); math.Abs(got) > 1e-6 {
		t.Errorf("Eval = %v, want ~0", got)
	}
}

func TestEvalSpline(t *testing.T) {
	// straight spline along x through (0,0), (1,0), (2,0); point above at (1, 0.5)
	q := []float64{1, 0.5, 0, 0, 1, 0, 2, 0}
	for _, tt := range []struct {
		k    Kind
		want float64
	}{
		{SplineDistance, 0.5},
		{SplineX, 0},
		{SplineY, 0.5},
	} {
		d := Descriptor{Kind: tt.k, Slots: []int{0, 1, 2, 3}, Samples: 12}
		if got := Eval(d, q); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", tt.k, got, tt.want)
		}
	}
}

func fourBar(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	for _, p := range []model.Point{
		{ID: 0, Fixed: true}, {ID: 1, X: 1}, {ID: 2, X: 3.6667, Y: 2.9814}, {ID: 3, X: 4, Fixed: true},
	} {
		if _, err := m.AddPoint(p); err != nil {
			t.Fatal(err)
		}
	}
	for i, e := range [][3]float64{{0, 1, 1}, {1, 2, 4}, {2, 3, 3}} {
		l, _ := model.NewLink(i, int(e[0]), int(e[1]), e[2])
		m.AddLink(l)
	}
	m.Drivers = append(m.Drivers, model.NewAngleDriver(0, 1, 0))
	return m
}

func kinds(ds []Descriptor) []Kind {
	out := make([]Kind, len(ds))
	for i, d := range ds {
		out[i] = d.Kind
	}
	return out
}

func sameKinds(got []Descriptor, want ...Kind) bool {
	g := kinds(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAccurate(t *testing.T) {
	m := fourBar(t)
	lay := ModelLayout(m)
	ds := Accurate(m, lay)
	if !sameKinds(ds, HeadingCos, HeadingSin, Link, Link, Link) {
		t.Fatalf("kinds = %v", kinds(ds))
	}
	r := make([]float64, len(ds))
	EvalAll(r, ds, lay.Vector(m))
	for i, v := range r {
		if math.Abs(v) > 1e-3 {
			t.Errorf("residual %d (%s) = %v, want ~0", i, ds[i].Kind, v)
		}
	}
}

func TestAccurateOutputsCloseWithoutDrivers(t *testing.T) {
	m := fourBar(t)
	m.Drivers[0].Enabled = false
	m.Outputs = append(m.Outputs, model.Output{Enabled: true, Pivot: 3, Tip: 2, Rad: 1})
	ds := Accurate(m, ModelLayout(m))
	if ds[0].Kind != HeadingCos || ds[0].Slots[0] != 3 {
		t.Errorf("first descriptor = %+v, want output heading from slot 3", ds[0])
	}
}

func TestStatics(t *testing.T) {
	m := fourBar(t)
	ds := Statics(m, ModelLayout(m))
	if !sameKinds(ds, FixedX, FixedY, FixedX, FixedY, Link, Link, Link, Heading) {
		t.Fatalf("kinds = %v", kinds(ds))
	}
	if last := ds[len(ds)-1]; last.Role != Actuator {
		t.Errorf("closure role = %s, want actuator", last.Role)
	}

	m.Outputs = append(m.Outputs, model.Output{Enabled: true, Pivot: 3, Tip: 2, Rad: 1})
	ds = Statics(m, ModelLayout(m))
	if last := ds[len(ds)-1]; last.Role != Output || last.Slots[0] != 3 {
		t.Errorf("closure = %+v, want output from slot 3", last)
	}
	for _, d := range ds {
		if d.Role == Actuator {
			t.Error("drivers should not close the mechanism while an output is active")
		}
	}
}

func TestStaticsPointLineOffset(t *testing.T) {
	m := model.New()
	for _, p := range []model.Point{{ID: 0, Fixed: true}, {ID: 1, X: 5, Fixed: true}, {ID: 2, X: 2}} {
		m.AddPoint(p)
	}
	s := 2.0
	pl, _ := model.NewPointLine(0, 2, 0, 1, &s)
	m.AddPointLine(pl)
	m.Drivers = append(m.Drivers, model.NewTranslationDriver(0, 0, 1))

	ds := Statics(m, ModelLayout(m))
	if !sameKinds(ds, FixedX, FixedY, FixedX, FixedY, LineDistance, LineOffset, LineOffset) {
		t.Fatalf("kinds = %v", kinds(ds))
	}
	if got := Eval(ds[6], ModelLayout(m).Vector(m)); got != 1 {
		t.Errorf("translation closure = %v, want 1", got)
	}
}

func TestBuildersSkipDanglingReferences(t *testing.T) {
	m := fourBar(t)
	m.Links[9] = &model.Link{ID: 9, I: 1, J: 77, L: 1}
	m.PointSplines[0] = &model.PointSpline{ID: 0, P: 1, Spline: 3, Enabled: true}
	m.Drivers = append(m.Drivers, model.NewTranslationDriver(12, 0, 1))

	if n := len(Accurate(m, ModelLayout(m))); n != 5 {
		t.Errorf("accurate descriptors = %d, want 5", n)
	}
	if n := len(Statics(m, ModelLayout(m))); n != 8 {
		t.Errorf("statics descriptors = %d, want 8", n)
	}
}

func TestLayout(t *testing.T) {
	m := fourBar(t)
	lay := ModelLayout(m)
	if s, ok := lay.Slot(2); !ok || s != 2 {
		t.Errorf("Slot(2) = %d, %v", s, ok)
	}
	if _, ok := lay.Slot(9); ok {
		t.Error("Slot(9) should be missing")
	}
	q := lay.Vector(m)
	q[0], q[2] = 10, 20
	lay.Apply(m, q)
	if m.Points[0].X != 0 {
		t.Error("Apply moved a fixed point")
	}
	if m.Points[1].X != 20 {
		t.Errorf("x1 = %v, want 20", m.Points[1].X)
	}
}
