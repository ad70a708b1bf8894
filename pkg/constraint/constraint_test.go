package constraint

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/geom"
)

const eps = 1e-9

func near(a, b r2.Vec) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name           string
		p1, p2         r2.Vec
		L              float64
		lock1, lock2   bool
		want1, want2   r2.Vec
		wantSatisfied  bool
	}{
		{"both free", r2.Vec{}, r2.Vec{X: 4}, 2, false, false, r2.Vec{X: 1}, r2.Vec{X: 3}, true},
		{"first locked", r2.Vec{}, r2.Vec{X: 4}, 2, true, false, r2.Vec{}, r2.Vec{X: 2}, true},
		{"both locked ok", r2.Vec{}, r2.Vec{X: 2}, 2, true, true, r2.Vec{}, r2.Vec{X: 2}, true},
		{"both locked bad", r2.Vec{}, r2.Vec{X: 3}, 2, true, true, r2.Vec{}, r2.Vec{X: 3}, false},
		{"coincident free", r2.Vec{}, r2.Vec{}, 2, false, false, r2.Vec{}, r2.Vec{}, true},
		{"coincident locked", r2.Vec{}, r2.Vec{}, 2, true, true, r2.Vec{}, r2.Vec{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1, p2 := tt.p1, tt.p2
			ok := Distance(&p1, &p2, tt.L, tt.lock1, tt.lock2, 1e-6)
			if ok != tt.wantSatisfied {
				t.Errorf("Distance() = %v, want %v", ok, tt.wantSatisfied)
			}
			if !near(p1, tt.want1) || !near(p2, tt.want2) {
				t.Errorf("positions = %v, %v, want %v, %v", p1, p2, tt.want1, tt.want2)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a1, b1 := r2.Vec{X: 0.3, Y: -1}, r2.Vec{X: 2.5, Y: 1.7}
	a2, b2 := a1, b1
	Distance(&a1, &b1, 1.25, false, false, 1e-9)
	Distance(&b2, &a2, 1.25, false, false, 1e-9)
	if !near(a1, a2) || !near(b1, b2) {
		t.Errorf("order dependent: (%v, %v) vs (%v, %v)", a1, b1, a2, b2)
	}
}

func TestDistanceSatisfiedDoesNotMove(t *testing.T) {
	p1, p2 := r2.Vec{X: 1, Y: 1}, r2.Vec{X: 1, Y: 3}
	Distance(&p1, &p2, 2, false, false, 1e-6)
	if !near(p1, r2.Vec{X: 1, Y: 1}) || !near(p2, r2.Vec{X: 1, Y: 3}) {
		t.Errorf("satisfied constraint moved points to %v, %v", p1, p2)
	}
}

func TestAngle(t *testing.T) {
	target := math.Pi / 2
	tests := []struct {
		name         string
		locki, lockk bool
		want         bool
	}{
		{"i locked", true, false, true},
		{"k locked", false, true, true},
		{"both free", false, false, true},
		{"both locked", true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pi, pj, pk := r2.Vec{X: 1}, r2.Vec{}, r2.Vec{X: 1, Y: 1}
			ok := Angle(&pi, &pj, &pk, target, tt.locki, tt.lockk, 1e-9)
			if ok != tt.want {
				t.Fatalf("Angle() = %v, want %v", ok, tt.want)
			}
			if !ok {
				return
			}
			got := geom.AngleBetween(r2.Sub(pi, pj), r2.Sub(pk, pj))
			if math.Abs(got-target) > 1e-9 {
				t.Errorf("angle = %v, want %v", got, target)
			}
			if pj != (r2.Vec{}) {
				t.Errorf("vertex moved to %v", pj)
			}
			if math.Abs(r2.Norm(pk)-math.Sqrt2) > 1e-9 || math.Abs(r2.Norm(pi)-1) > 1e-9 {
				t.Error("leg lengths changed")
			}
		})
	}
}

func TestAngleDegenerate(t *testing.T) {
	pi, pj, pk := r2.Vec{}, r2.Vec{}, r2.Vec{X: 1}
	if !Angle(&pi, &pj, &pk, 1, true, true, 1e-9) {
		t.Error("degenerate angle should be skipped as satisfied")
	}
}

func TestDriverAngle(t *testing.T) {
	pivot, tip := r2.Vec{X: 1, Y: 1}, r2.Vec{X: 3, Y: 1}
	var radius float64
	if !DriverAngle(&pivot, &tip, math.Pi/2, false, &radius) {
		t.Fatal("DriverAngle() = false")
	}
	if !near(tip, r2.Vec{X: 1, Y: 3}) {
		t.Errorf("tip = %v, want {1 3}", tip)
	}
	if radius != 2 {
		t.Errorf("radius = %v, want 2", radius)
	}

	tip = pivot
	if !DriverAngle(&pivot, &tip, 0, false, &radius) || !near(tip, r2.Vec{X: 3, Y: 1}) {
		t.Errorf("coincident tip with cached radius = %v, want {3 1}", tip)
	}
	if DriverAngle(&pivot, &tip, 0, true, &radius) {
		t.Error("locked tip should fail")
	}
	zero := 0.0
	tip = pivot
	if DriverAngle(&pivot, &tip, 0, false, &zero) {
		t.Error("zero radius should fail")
	}
}

func TestCoincide(t *testing.T) {
	a, b := r2.Vec{}, r2.Vec{X: 2, Y: 2}
	Coincide(&a, &b, false, false, 1e-3)
	if !near(a, r2.Vec{X: 1, Y: 1}) || !near(b, a) {
		t.Errorf("midpoint = %v, %v", a, b)
	}
	a, b = r2.Vec{}, r2.Vec{X: 2}
	Coincide(&a, &b, true, false, 1e-3)
	if !near(b, r2.Vec{}) {
		t.Errorf("b = %v, want origin", b)
	}
	a, b = r2.Vec{}, r2.Vec{X: 2}
	if Coincide(&a, &b, true, true, 1e-3) {
		t.Error("separated locked points should fail")
	}
}

func TestPointOnLine(t *testing.T) {
	p, a, b := r2.Vec{X: 1, Y: 1}, r2.Vec{}, r2.Vec{X: 2}
	PointOnLine(&p, &a, &b, false, true, true, 1e-9)
	if !near(p, r2.Vec{X: 1}) {
		t.Errorf("p = %v, want {1 0}", p)
	}

	// Locked p with one free line point: the free end swings about the locked
	// one and keeps its length.
	p, a, b = r2.Vec{X: 1, Y: 1}, r2.Vec{}, r2.Vec{X: 2}
	PointOnLine(&p, &a, &b, true, true, false, 1e-9)
	want := r2.Vec{X: math.Sqrt2, Y: math.Sqrt2}
	if !near(b, want) {
		t.Errorf("b = %v, want %v", b, want)
	}
	if !near(a, r2.Vec{}) {
		t.Errorf("a moved to %v", a)
	}

	p, a, b = r2.Vec{X: 1, Y: 1}, r2.Vec{}, r2.Vec{X: 2}
	if PointOnLine(&p, &a, &b, true, true, true, 1e-9) {
		t.Error("all locked off the line should fail")
	}
	p, a, b = r2.Vec{X: 1, Y: 1}, r2.Vec{}, r2.Vec{}
	if !PointOnLine(&p, &a, &b, true, true, true, 1e-9) {
		t.Error("degenerate line should be skipped")
	}
}

func TestPointOnLineOffset(t *testing.T) {
	p, a, b := r2.Vec{X: 3, Y: 1}, r2.Vec{}, r2.Vec{X: 4}
	PointOnLineOffset(&p, &a, &b, 1.5, false, true, true, 1e-9)
	if !near(p, r2.Vec{X: 1.5}) {
		t.Errorf("p = %v, want {1.5 0}", p)
	}

	p, a, b = r2.Vec{X: 3}, r2.Vec{}, r2.Vec{X: 4}
	PointOnLineOffset(&p, &a, &b, 1, true, false, true, 1e-9)
	if !near(a, r2.Vec{X: 2}) {
		t.Errorf("a = %v, want {2 0}", a)
	}

	p, a, b = r2.Vec{X: 0, Y: 2}, r2.Vec{}, r2.Vec{X: 4}
	PointOnLineOffset(&p, &a, &b, 2, true, true, false, 1e-9)
	if !near(b, r2.Vec{Y: 4}) {
		t.Errorf("b = %v, want {0 4}", b)
	}
	ok := PointOnLineOffset(&p, &a, &b, 2, true, true, true, 1e-9)
	if !ok {
		t.Error("offset should now be satisfied")
	}
}

func TestPointOnSplineIdempotent(t *testing.T) {
	ctrl := []r2.Vec{{X: 0}, {X: 1, Y: 1}, {X: 2}, {X: 3, Y: 1}}
	ptrs := make([]*r2.Vec, len(ctrl))
	for i := range ctrl {
		ptrs[i] = &ctrl[i]
	}
	locks := []bool{true, true, true, true}
	p := r2.Vec{X: 1.3, Y: 2}

	PointOnSpline(&p, ptrs, false, locks, false, 1e-9)
	first := p
	PointOnSpline(&p, ptrs, false, locks, false, 1e-6)
	if !near(p, first) {
		t.Errorf("second pass moved p from %v to %v", first, p)
	}
	if PointOnSpline(&r2.Vec{X: 1.3, Y: 2}, ptrs, true, locks, false, 1e-9) {
		t.Error("fully locked spline should fail")
	}
}

func TestPointOnSplineMovesControls(t *testing.T) {
	ctrl := []r2.Vec{{X: 0}, {X: 4}}
	ptrs := []*r2.Vec{&ctrl[0], &ctrl[1]}
	p := r2.Vec{X: 2, Y: 1}
	PointOnSpline(&p, ptrs, true, []bool{false, false}, false, 1e-9)
	if p != (r2.Vec{X: 2, Y: 1}) {
		t.Errorf("locked p moved to %v", p)
	}
	if ctrl[0].Y <= 0 || ctrl[1].Y <= 0 {
		t.Errorf("controls = %v, want both pulled toward p", ctrl)
	}
}
