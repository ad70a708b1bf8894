package accurate

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/geom"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/solver"
)

func fourBar(t *testing.T, crankDeg float64) *model.Model {
	t.Helper()
	m := model.New()
	for _, p := range []model.Point{
		{ID: 0, Fixed: true},
		{ID: 1, X: 1},
		{ID: 2, X: 3.6667, Y: 2.9814},
		{ID: 3, X: 4, Fixed: true},
	} {
		if _, err := m.AddPoint(p); err != nil {
			t.Fatal(err)
		}
	}
	for i, l := range []struct {
		a, b int
		L    float64
	}{{0, 1, 1}, {1, 2, 4}, {2, 3, 3}} {
		link, _ := model.NewLink(i, l.a, l.b, l.L)
		if err := m.AddLink(link); err != nil {
			t.Fatal(err)
		}
	}
	m.Drivers = append(m.Drivers, model.NewAngleDriver(0, 1, geom.Radians(crankDeg)))
	return m
}

func TestSolveFourBarLM(t *testing.T) {
	for _, deg := range []float64{15, 30, 60} {
		m := fourBar(t, deg)
		out, err := Solve(context.Background(), m, &LevenbergMarquardt{}, Options{})
		if err != nil {
			t.Fatalf("crank %v°: %v", deg, err)
		}
		if !out.OK {
			t.Errorf("crank %v°: not converged: %s", deg, out.Message)
		}
		if maxErr, b := solver.MaxError(m); maxErr > 1e-6 {
			t.Errorf("crank %v°: max error = %v (%+v)", deg, maxErr, b)
		}
		if a, _ := m.Heading(0, 1); math.Abs(geom.WrapAngle(a-geom.Radians(deg))) > 1e-6 {
			t.Errorf("crank %v°: heading = %v", deg, geom.Degrees(a))
		}
		if p := m.Points[3]; p.X != 4 || p.Y != 0 {
			t.Errorf("fixed point moved to (%v, %v)", p.X, p.Y)
		}
		if m.OverCount() != 0 {
			t.Errorf("crank %v°: over = %d, want 0", deg, m.OverCount())
		}
	}
}

func TestSolveFourBarLBFGS(t *testing.T) {
	m := fourBar(t, 20)
	if _, err := Solve(context.Background(), m, &LBFGS{}, Options{}); err != nil {
		t.Fatal(err)
	}
	if maxErr, b := solver.MaxError(m); maxErr > 1e-3 {
		t.Errorf("max error = %v (%+v)", maxErr, b)
	}
}

func TestSolveNilBackend(t *testing.T) {
	m := fourBar(t, 30)
	before := m.Positions()
	out, err := Solve(context.Background(), m, nil, Options{})
	if out.OK {
		t.Error("OK = true, want false")
	}
	if !errors.Is(err, errors.ErrCodeSolverUnavailable) {
		t.Errorf("err = %v, want SOLVER_UNAVAILABLE", err)
	}
	if !errors.Recoverable(err) {
		t.Error("missing backend should be recoverable")
	}
	for id, p := range m.Positions() {
		if p != before[id] {
			t.Errorf("point %d moved", id)
		}
	}
}

func TestSolveNoFreePoints(t *testing.T) {
	m := model.New()
	m.AddPoint(model.Point{ID: 0, Fixed: true})
	m.AddPoint(model.Point{ID: 1, X: 3, Fixed: true})
	l, _ := model.NewLink(0, 0, 1, 2)
	m.AddLink(l)

	out, err := Solve(context.Background(), m, &LevenbergMarquardt{}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !out.OK || out.Message != "No free points" {
		t.Errorf("outcome = %+v", out)
	}
	if !m.Links[0].Over {
		t.Error("violated fixed-fixed link should be flagged over")
	}
}

func TestSolveNoConstraints(t *testing.T) {
	m := model.New()
	m.AddPoint(model.Point{ID: 0, X: 1, Y: 2})
	out, err := Solve(context.Background(), m, &LevenbergMarquardt{}, Options{})
	if err != nil || !out.OK {
		t.Errorf("Solve = %+v, %v", out, err)
	}
	if p := m.Points[0]; p.X != 1 || p.Y != 2 {
		t.Errorf("point moved to (%v, %v)", p.X, p.Y)
	}
}

func TestSolveEvaluationBudget(t *testing.T) {
	m := fourBar(t, 45)
	out, err := Solve(context.Background(), m, &LevenbergMarquardt{}, Options{MaxEvaluations: 3})
	if err != nil {
		t.Fatal(err)
	}
	if out.OK {
		t.Error("OK = true with an exhausted budget")
	}
	if !strings.Contains(out.Message, "evaluations") {
		t.Errorf("message = %q", out.Message)
	}
}

func TestSolveNotifies(t *testing.T) {
	m := fourBar(t, 30)
	var got []model.Event
	m.Subscribe(model.ObserverFunc(func(e model.Event) { got = append(got, e) }))
	if _, err := Solve(context.Background(), m, &LevenbergMarquardt{}, Options{}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Source != "accurate" || !got[0].Change.Has(model.ChangePositions) {
		t.Errorf("events = %+v", got)
	}
}

func TestBackendsQuadratic(t *testing.T) {
	target := []float64{1.5, -2, 0.25}
	p := Problem{
		X0: []float64{0, 0, 0},
		M:  3,
		Residual: func(dst, x []float64) {
			for i := range dst {
				dst[i] = x[i] - target[i]
			}
		},
	}
	for _, b := range []Backend{&LevenbergMarquardt{}, &LBFGS{}} {
		res, err := b.Solve(context.Background(), p)
		if err != nil {
			t.Fatalf("%s: %v", b.Name(), err)
		}
		for i := range target {
			if math.Abs(res.X[i]-target[i]) > 1e-4 {
				t.Errorf("%s: x[%d] = %v, want %v", b.Name(), i, res.X[i], target[i])
			}
		}
		if p.X0[0] != 0 {
			t.Errorf("%s: modified X0", b.Name())
		}
		if res.Evaluations == 0 {
			t.Errorf("%s: evaluations = 0", b.Name())
		}
	}
}

func TestBackendCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Problem{
		X0:       []float64{1},
		M:        1,
		Residual: func(dst, x []float64) { dst[0] = x[0] - 3 },
	}
	if _, err := (&LevenbergMarquardt{}).Solve(ctx, p); err == nil {
		t.Error("expected context error")
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	if got := strings.Join(r.Names(), ","); got != "lbfgs,lm" {
		t.Errorf("Names = %q, want \"lbfgs,lm\"", got)
	}
	if b, err := r.Get("lm"); err != nil || b.Name() != "lm" {
		t.Errorf("Get(lm) = %v, %v", b, err)
	}
	_, err := r.Get("scipy")
	if !errors.Is(err, errors.ErrCodeSolverUnavailable) {
		t.Errorf("Get(scipy) err = %v", err)
	}
	if !strings.Contains(err.Error(), "lbfgs") {
		t.Errorf("error should list available backends: %v", err)
	}

	r.Register(&LevenbergMarquardt{InitialDamping: 1})
	if len(r.Names()) != 2 {
		t.Errorf("re-registering lm should replace it, names = %v", r.Names())
	}
}
