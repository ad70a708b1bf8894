package sweep

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/geom"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/solver"
)

func addLinks(t *testing.T, m *model.Model, links [][3]float64) {
	t.Helper()
	for i, l := range links {
		link, err := model.NewLink(i, int(l[0]), int(l[1]), l[2])
		if err != nil {
			t.Fatal(err)
		}
		if err := m.AddLink(link); err != nil {
			t.Fatal(err)
		}
	}
}

// crank is A(0,0) fixed and B(1,0) on a unit link with an angle driver.
func crank(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	m.AddPoint(model.Point{ID: 0, Fixed: true})
	m.AddPoint(model.Point{ID: 1, X: 1})
	addLinks(t, m, [][3]float64{{0, 1, 1}})
	m.Drivers = append(m.Drivers, model.NewAngleDriver(0, 1, 0))
	return m
}

// fourBar is a Grashof crank-rocker: crank 1, coupler 4, rocker 3, ground 4.
func fourBar(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	m.AddPoint(model.Point{ID: 0, Fixed: true})
	m.AddPoint(model.Point{ID: 1, X: 1})
	m.AddPoint(model.Point{ID: 2, X: 3.6667, Y: 2.9814})
	m.AddPoint(model.Point{ID: 3, X: 4, Fixed: true})
	addLinks(t, m, [][3]float64{{0, 1, 1}, {1, 2, 4}, {2, 3, 3}})
	m.Drivers = append(m.Drivers, model.NewAngleDriver(0, 1, 0))
	return m
}

// shortBar has unit crank, coupler and rocker over a 2.5 ground. The crank
// can only reach about 49.5° before the coupler and rocker cannot close.
func shortBar(t *testing.T) *model.Model {
	t.Helper()
	m := model.New()
	m.AddPoint(model.Point{ID: 0, Fixed: true})
	m.AddPoint(model.Point{ID: 1, X: 1})
	m.AddPoint(model.Point{ID: 2, X: 1.75, Y: math.Sqrt(1 - 0.75*0.75)})
	m.AddPoint(model.Point{ID: 3, X: 2.5, Fixed: true})
	addLinks(t, m, [][3]float64{{0, 1, 1}, {1, 2, 1}, {2, 3, 1}})
	m.Drivers = append(m.Drivers, model.NewAngleDriver(0, 1, 0))
	return m
}

func sameValues(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestValues(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []float64
	}{
		{"ascending", Options{End: 30, Step: 10}, []float64{0, 10, 20, 30}},
		{"descending ignores step sign", Options{Start: 30, End: 0, Step: 10}, []float64{30, 20, 10, 0}},
		{"negative step ascending", Options{End: 20, Step: -10}, []float64{0, 10, 20}},
		{"zero step means one", Options{End: 3}, []float64{0, 1, 2, 3}},
		{"end within slack", Options{End: 0.3, Step: 0.1}, []float64{0, 0.1, 0.2, 0.3}},
		{"end not on grid", Options{End: 25, Step: 10}, []float64{0, 10, 20}},
		{"single value", Options{Start: 5, End: 5, Step: 1}, []float64{5}},
		{"count", Options{End: 90, StepCount: 3}, []float64{30, 60, 90}},
		{"count descending", Options{Start: 10, End: 0, StepCount: 2}, []float64{5, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Values()
			if err != nil {
				t.Fatal(err)
			}
			if !sameValues(got, tt.want) {
				t.Errorf("Values() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValuesInvalid(t *testing.T) {
	for _, opts := range []Options{
		{End: math.NaN()},
		{Start: math.Inf(1)},
		{StepCount: -1},
		{StepCount: MaxSteps + 1},
		{End: 1e9, Step: 1},
		{Solver: "newton"},
	} {
		if _, err := opts.Values(); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("Values(%+v) err = %v, want INVALID_INPUT", opts, err)
		}
	}
}

func TestRunFourBar(t *testing.T) {
	m := fourBar(t)
	res, err := Run(context.Background(), m, Options{End: 90, Step: 10})
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.NSteps != 10 || !res.Summary.Success || res.Summary.SuccessRate != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Status != (Status{Success: true, Reason: ReasonOK}) {
		t.Errorf("status = %+v", res.Status)
	}
	if res.Summary.MaxHardErr > DefaultHardErrTol {
		t.Errorf("max hard err = %v", res.Summary.MaxHardErr)
	}
	for i, f := range res.Frames {
		if f.Index != i || f.Value != float64(10*i) || f.Solver != string(SolverAccurate) {
			t.Errorf("frame %d = index %d value %v solver %s", i, f.Index, f.Value, f.Solver)
		}
	}
	last := res.Frames[len(res.Frames)-1]
	if last.InputDeg == nil || math.Abs(*last.InputDeg-90) > 1e-6 {
		t.Errorf("last input = %v, want 90", last.InputDeg)
	}
	if last.OutputDeg != nil {
		t.Errorf("output = %v, want nil without an output", *last.OutputDeg)
	}
	if a, _ := m.Heading(0, 1); math.Abs(geom.Degrees(a)-90) > 1e-6 {
		t.Errorf("model left at %v°, want 90", geom.Degrees(a))
	}
}

func TestRunRollsBackInfeasibleStep(t *testing.T) {
	m := shortBar(t)
	res, err := Run(context.Background(), m, Options{End: 90, Step: 20})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(res.Frames))
	}
	for i, f := range res.Frames[:3] {
		if !f.Success {
			t.Errorf("frame %d failed with hard err %v", i, f.HardErr)
		}
	}
	failed := res.Frames[3]
	if failed.Success || failed.HardErr <= DefaultHardErrTol {
		t.Errorf("frame 3 = success %v hard err %v, want a failure", failed.Success, failed.HardErr)
	}
	if res.Status.Success || res.Status.Reason != ReasonConstraintError {
		t.Errorf("status = %+v", res.Status)
	}
	if res.Summary.Success || res.Summary.SuccessRate != 0.75 {
		t.Errorf("summary = %+v", res.Summary)
	}

	if a, _ := m.Heading(0, 1); math.Abs(geom.Degrees(a)-40) > 1e-6 {
		t.Errorf("model left at %v°, want the last good pose at 40°", geom.Degrees(a))
	}
	if len(m.Points) != 4 || m.Points[3].X != 2.5 {
		t.Error("rollback damaged the model")
	}
	if d := geom.WrapAngle(m.Drivers[0].Rad - geom.Radians(40)); math.Abs(d) > 1e-6 {
		t.Errorf("driver target = %v°, want the last good target 40", geom.Degrees(m.Drivers[0].Rad))
	}

	// A later solve must not pull the mechanism toward the rejected target.
	solver.Projection(m, solver.WithIterations(solver.SweepIterations))
	if a, _ := m.Heading(0, 1); math.Abs(geom.Degrees(a)-40) > 1e-6 {
		t.Errorf("re-solved at %v°, want 40", geom.Degrees(a))
	}
}

func TestRunFallsBackToProjection(t *testing.T) {
	res, err := Run(context.Background(), crank(t), Options{End: 20, Step: 10, Backend: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Status.Success || len(res.Frames) != 3 {
		t.Fatalf("status = %+v, frames = %d", res.Status, len(res.Frames))
	}
	for _, f := range res.Frames {
		if f.Solver != string(SolverProjection) {
			t.Errorf("frame %d solver = %s, want projection", f.Index, f.Solver)
		}
	}
	if !strings.HasPrefix(res.Status.SolverError, "missing: ") {
		t.Errorf("solver error = %q, want the backend failure", res.Status.SolverError)
	}
}

func TestRunStrictAccurateStops(t *testing.T) {
	res, err := Run(context.Background(), crank(t), Options{End: 20, Step: 10, Solver: SolverAccurate, Backend: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Frames) != 0 || res.Status.Success || res.Summary.Success {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.Status.Reason, "missing") {
		t.Errorf("reason = %q, want the backend error", res.Status.Reason)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, crank(t), Options{End: 20, Step: 10, Solver: SolverProjection})
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if res == nil || len(res.Frames) != 0 || res.Status.Reason != ReasonCancelled {
		t.Errorf("result = %+v", res)
	}
}

func TestRunRejects(t *testing.T) {
	if _, err := Run(context.Background(), nil, Options{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("nil model err = %v", err)
	}
	m := crank(t)
	m.Drivers[0].Enabled = false
	if _, err := Run(context.Background(), m, Options{End: 10}); !errors.Is(err, errors.ErrCodeInvalidModel) {
		t.Errorf("no driver err = %v, want INVALID_MODEL", err)
	}
}

func TestRunOutputClosure(t *testing.T) {
	m := crank(t)
	m.Drivers = nil
	m.Outputs = append(m.Outputs, model.Output{Enabled: true, Pivot: 0, Tip: 1})
	res, err := Run(context.Background(), m, Options{End: 30, Step: 15, Solver: SolverProjection})
	if err != nil {
		t.Fatal(err)
	}
	last := res.Frames[len(res.Frames)-1]
	if last.OutputDeg == nil || math.Abs(*last.OutputDeg-30) > 1e-6 {
		t.Errorf("output = %v, want 30", last.OutputDeg)
	}
	if last.InputDeg != nil {
		t.Errorf("input = %v, want nil without a driver", *last.InputDeg)
	}
}

func TestRunMeasures(t *testing.T) {
	m := crank(t)
	m.Measures = []model.Measure{
		{Type: model.MeasureAngle, Name: "crank", Pivot: 0, Tip: 1},
		{Type: model.MeasureExpression, Name: "double", Expr: "crank * 2"},
	}
	m.Loads = []model.Load{{Type: model.LoadForce, PID: 1, FY: 1}}
	m.LoadMeasures = []model.LoadMeasure{{PID: 0, Component: model.ComponentMag}}

	res, err := Run(context.Background(), m, Options{Start: 10, End: 30, Step: 10, Solver: SolverProjection})
	if err != nil {
		t.Fatal(err)
	}
	// The first frame is driven to 10° relative to the solved start.
	for i, want := range []float64{10, 20, 30} {
		f := res.Frames[i]
		got := f.Measures["crank"]
		if got == nil || math.Abs(*got-want) > 1e-6 {
			t.Errorf("frame %d crank = %v, want %v", i, got, want)
		}
		if d := f.Measures["double"]; d == nil || math.Abs(*d-2*want) > 1e-6 {
			t.Errorf("frame %d double = %v, want %v", i, d, 2*want)
		}
		if v, ok := f.LoadMeasures["load P0 Mag"]; !ok || v == nil {
			t.Errorf("frame %d load measure missing: %v", i, f.LoadMeasures)
		}
	}
}

func TestWritePlot(t *testing.T) {
	res, err := Run(context.Background(), crank(t), Options{End: 30, Step: 10, Solver: SolverProjection})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WritePlot(&buf, res, nil); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("WritePlot did not write a PNG")
	}
	if err := WritePlot(&buf, res, []string{"nope"}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown signal err = %v", err)
	}
	if err := WritePlot(&buf, &Result{}, nil); err == nil {
		t.Error("empty result should not plot")
	}
}

func TestSignals(t *testing.T) {
	v := 1.0
	res := &Result{Frames: []Frame{
		{Measures: map[string]*float64{"b": &v, "a": nil}},
		{LoadMeasures: map[string]*float64{"load P1 Fx": &v}},
	}}
	want := []string{SignalInput, SignalOutput, SignalHardErr, "a", "b", "load P1 Fx"}
	got := Signals(res)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Signals = %v, want %v", got, want)
	}
}

func TestHistories(t *testing.T) {
	one, two := 1.0, 2.0
	res := &Result{Frames: []Frame{
		{InputDeg: &one, HardErr: 1e-4, Measures: map[string]*float64{"s": &one, "gap": nil}},
		{InputDeg: &two, HardErr: 2e-4, Measures: map[string]*float64{"s": &two, "gap": nil}},
	}}
	got := Histories(res)
	if xs := got[SignalInput]; !sameValues(xs, []float64{1, 2}) {
		t.Errorf("input history = %v", xs)
	}
	if xs := got["s"]; !sameValues(xs, []float64{1, 2}) {
		t.Errorf("s history = %v", xs)
	}
	if _, ok := got["gap"]; ok {
		t.Error("a signal that never resolves should be omitted")
	}
	if _, ok := got[SignalOutput]; ok {
		t.Error("output history should be omitted without an output")
	}
	if len(Histories(nil)) != 0 {
		t.Error("Histories(nil) should be empty")
	}
}
