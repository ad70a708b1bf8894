// Package sweep drives a mechanism through a range of input values.
//
// [Run] solves the model once, marks the solved pose as the relative zero
// and then steps the primary driver (or the primary output when no driver
// is enabled) through the values produced by [Options.Values]. Every step is
// solved, measured and recorded as a [Frame]. A step whose hard constraint
// error exceeds the tolerance is rolled back to the last good pose and
// drive targets, and ends the sweep.
package sweep

import (
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/accurate"
	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/kinematics"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/observability"
	"github.com/matzehuels/linkage/pkg/solver"
	"github.com/matzehuels/linkage/pkg/statics"
)

// Solver selects how each step is solved.
type Solver string

const (
	// SolverProjection uses only the projection solver.
	SolverProjection Solver = "projection"
	// SolverAccurate uses only the accurate solver. A backend error fails
	// the step.
	SolverAccurate Solver = "accurate"
	// SolverAccurateFallback uses the accurate solver and falls back to
	// projection for any step it fails on.
	SolverAccurateFallback Solver = "accurate-fallback"
)

// Defaults applied by [Options.WithDefaults].
const (
	DefaultHardErrTol = 1e-3
	DefaultBackend    = "lm"
	DefaultSolver     = SolverAccurateFallback

	// MaxSteps bounds the number of generated values.
	MaxSteps = 100_000

	stepSlack = 1e-9
)

// Status reasons.
const (
	ReasonOK              = "ok"
	ReasonConstraintError = "constraint_error"
	ReasonCancelled       = "cancelled"
)

// Options configures a sweep. The zero value of every field selects its
// default.
type Options struct {
	Start float64 `json:"start" toml:"start"`
	End   float64 `json:"end" toml:"end"`
	// Step is the increment of step mode. Its sign is ignored: the
	// direction follows End - Start. Zero means 1.
	Step float64 `json:"step" toml:"step"`
	// StepCount selects count mode when positive.
	StepCount int `json:"step_count,omitempty" toml:"step_count"`

	Solver         Solver  `json:"solver,omitempty" toml:"solver"`
	Backend        string  `json:"backend,omitempty" toml:"backend"`
	MaxEvaluations int     `json:"max_evaluations,omitempty" toml:"max_evaluations"`
	Iterations     int     `json:"iterations,omitempty" toml:"iterations"`
	HardErrTol     float64 `json:"hard_err_tol,omitempty" toml:"hard_err_tol"`
	// SplineSoft leaves point-on-spline errors out of the hard error.
	SplineSoft bool `json:"spline_soft,omitempty" toml:"spline_soft"`

	// Backends resolves Backend. Nil means accurate.DefaultRegistry().
	Backends *accurate.Registry `json:"-" toml:"-"`
	Logger   *log.Logger        `json:"-" toml:"-"`
}

// WithDefaults returns o with every zero field set to its default.
func (o Options) WithDefaults() Options {
	if o.Solver == "" {
		o.Solver = DefaultSolver
	}
	if o.Backend == "" {
		o.Backend = DefaultBackend
	}
	if o.Iterations <= 0 {
		o.Iterations = solver.SweepIterations
	}
	if o.HardErrTol <= 0 {
		o.HardErrTol = DefaultHardErrTol
	}
	if o.Backends == nil {
		o.Backends = accurate.DefaultRegistry()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Validate checks the range and solver selection.
func (o Options) Validate() error {
	for name, v := range map[string]float64{"start": o.Start, "end": o.End, "step": o.Step} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New(errors.ErrCodeInvalidInput, "sweep %s must be finite", name)
		}
	}
	if o.StepCount < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "step count must not be negative")
	}
	switch o.Solver {
	case "", SolverProjection, SolverAccurate, SolverAccurateFallback:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown sweep solver %q", o.Solver)
	}
	return nil
}

// Values returns the drive values of the sweep. Step mode starts at Start
// and advances by Step toward End, including End within a small slack.
// Count mode returns StepCount evenly spaced values ending at End, without
// Start.
func (o Options) Values() ([]float64, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.StepCount > 0 {
		if o.StepCount > MaxSteps {
			return nil, errors.New(errors.ErrCodeInvalidInput, "step count %d exceeds %d", o.StepCount, MaxSteps)
		}
		out := make([]float64, o.StepCount)
		for k := range out {
			out[k] = o.Start + (o.End-o.Start)*float64(k+1)/float64(o.StepCount)
		}
		return out, nil
	}

	step := math.Abs(o.Step)
	if step == 0 {
		step = 1
	}
	if n := math.Abs(o.End-o.Start) / step; n > MaxSteps {
		return nil, errors.New(errors.ErrCodeInvalidInput, "sweep of %.0f steps exceeds %d", n, MaxSteps)
	}
	var out []float64
	if o.End < o.Start {
		for k := 0; ; k++ {
			v := o.Start - float64(k)*step
			if v < o.End-stepSlack {
				break
			}
			out = append(out, v)
		}
		return out, nil
	}
	for k := 0; ; k++ {
		v := o.Start + float64(k)*step
		if v > o.End+stepSlack {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

// Frame records one sweep step. Angles are in degrees; relative angles are
// measured from the pose marked after the initial solve. Optional readings
// are nil when the geometry they read is missing.
type Frame struct {
	Index        int                 `json:"index"`
	Value        float64             `json:"value"`
	Solver       string              `json:"solver"`
	Success      bool                `json:"success"`
	InputDeg     *float64            `json:"input_deg"`
	OutputDeg    *float64            `json:"output_deg"`
	InputAbsDeg  *float64            `json:"input_abs_deg"`
	OutputAbsDeg *float64            `json:"output_abs_deg"`
	HardErr      float64             `json:"hard_err"`
	Measures     map[string]*float64 `json:"measures,omitempty"`
	LoadMeasures map[string]*float64 `json:"load_measures,omitempty"`
}

// Summary aggregates the frames of a sweep.
type Summary struct {
	Success     bool    `json:"success"`
	SuccessRate float64 `json:"success_rate"`
	NSteps      int     `json:"n_steps"`
	MaxHardErr  float64 `json:"max_hard_err"`
}

// Status reports why a sweep ended. SolverError holds the first accurate
// solver failure as "backend: message", also when a fallback recovered it.
type Status struct {
	Success     bool   `json:"success"`
	Reason      string `json:"reason"`
	SolverError string `json:"solver_error,omitempty"`
}

// Result is the outcome of [Run].
type Result struct {
	Frames  []Frame `json:"frames"`
	Summary Summary `json:"summary"`
	Status  Status  `json:"status"`
}

// Run sweeps m in place. The model is left at the last successful pose.
// Cancelling ctx stops the sweep between steps; the frames recorded so far
// are returned together with the context error.
func Run(ctx context.Context, m *model.Model, opts Options) (*Result, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil model")
	}
	values, err := opts.Values()
	if err != nil {
		return nil, err
	}
	if len(m.ActiveDrivers()) == 0 && len(m.ActiveOutputs()) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidModel, "sweep needs an enabled driver or output")
	}
	opts = opts.WithDefaults()

	hooks := observability.Sweep()
	hooks.OnSweepStart(ctx, string(opts.Solver), len(values))
	start := time.Now()

	r := &runner{m: m, opts: opts, tracker: kinematics.New(m)}
	res, err := r.run(ctx, values)

	elapsed := time.Since(start)
	hooks.OnSweepComplete(ctx, len(res.Frames), elapsed, err)
	opts.Logger.Debug("sweep", "solver", opts.Solver, "frames", len(res.Frames),
		"success", res.Status.Success, "elapsed", elapsed)
	return res, err
}

type runner struct {
	m       *model.Model
	opts    Options
	tracker *kinematics.Tracker

	solverError string
}

func (r *runner) run(ctx context.Context, values []float64) (*Result, error) {
	res := &Result{Status: Status{Success: true, Reason: ReasonOK}}

	if err := r.solve(ctx); err != nil {
		return r.finish(res, err.Error()), nil
	}
	r.tracker.MarkStart()

	hooks := observability.Sweep()
	for i, v := range values {
		if err := ctx.Err(); err != nil {
			return r.finish(res, ReasonCancelled), err
		}
		saved := r.snapshot()

		if err := r.tracker.DriveToRelative(ctx, v, nil); err != nil {
			return r.finish(res, err.Error()), err
		}
		used, err := r.solveStep(ctx)
		frame := r.frame(i, v, used)
		hooks.OnStep(ctx, i, frame.HardErr, frame.Success && err == nil)

		if err != nil {
			frame.Success = false
			res.Frames = append(res.Frames, frame)
			r.restore(saved)
			return r.finish(res, err.Error()), nil
		}
		res.Frames = append(res.Frames, frame)
		if !frame.Success {
			r.opts.Logger.Debug("sweep step infeasible", "index", i, "value", v, "hard_err", frame.HardErr)
			r.restore(saved)
			return r.finish(res, ReasonConstraintError), nil
		}
	}
	return r.finish(res, ""), nil
}

// snapshot is a pose together with the drive targets that produced it.
type snapshot struct {
	pose    map[int]r2.Vec
	drivers []model.Driver
	outputs []model.Output
}

func (r *runner) snapshot() snapshot {
	return snapshot{
		pose:    r.m.Positions(),
		drivers: slices.Clone(r.m.Drivers),
		outputs: slices.Clone(r.m.Outputs),
	}
}

// restore rolls the model back to s. Targets are copied in place so
// pointers into the driver and output slices stay valid.
func (r *runner) restore(s snapshot) {
	r.m.RestorePositions(s.pose)
	copy(r.m.Drivers, s.drivers)
	copy(r.m.Outputs, s.outputs)
}

// finish fills the summary and status. An empty reason means the sweep ran
// to completion.
func (r *runner) finish(res *Result, reason string) *Result {
	ok := 0
	for _, f := range res.Frames {
		if f.Success {
			ok++
		}
		res.Summary.MaxHardErr = max(res.Summary.MaxHardErr, f.HardErr)
	}
	res.Summary.NSteps = len(res.Frames)
	if len(res.Frames) > 0 {
		res.Summary.SuccessRate = float64(ok) / float64(len(res.Frames))
	}
	res.Summary.Success = reason == "" && ok == len(res.Frames)

	res.Status.Success = res.Summary.Success
	res.Status.Reason = ReasonOK
	if reason != "" {
		res.Status.Reason = reason
	}
	res.Status.SolverError = r.solverError
	return res
}

// solve runs the initial solve with the configured solver.
func (r *runner) solve(ctx context.Context) error {
	_, err := r.solveStep(ctx)
	return err
}

// solveStep solves the current targets and returns the name of the solver
// that produced the pose. Only strict accurate solves return an error.
func (r *runner) solveStep(ctx context.Context) (string, error) {
	if r.opts.Solver == SolverProjection {
		r.project(ctx)
		return string(SolverProjection), nil
	}

	out, err := r.accurate(ctx)
	if err == nil && out.OK {
		return string(SolverAccurate), nil
	}
	msg := out.Message
	if err != nil {
		msg = errors.UserMessage(err)
	}
	if r.solverError == "" {
		r.solverError = fmt.Sprintf("%s: %s", r.opts.Backend, msg)
	}
	if r.opts.Solver == SolverAccurate {
		if err != nil {
			return string(SolverAccurate), err
		}
		return string(SolverAccurate), nil
	}
	r.project(ctx)
	return string(SolverProjection), nil
}

func (r *runner) accurate(ctx context.Context) (accurate.Outcome, error) {
	backend, err := r.opts.Backends.Get(r.opts.Backend)
	if err != nil {
		return accurate.Outcome{Message: errors.UserMessage(err)}, err
	}
	return accurate.Solve(ctx, r.m, backend, accurate.Options{
		MaxEvaluations: r.opts.MaxEvaluations,
		Logger:         r.opts.Logger,
	})
}

func (r *runner) project(ctx context.Context) {
	solver.Projection(r.m,
		solver.WithIterations(r.opts.Iterations),
		solver.WithLogger(r.opts.Logger),
		solver.WithContext(ctx),
	)
}

func (r *runner) frame(i int, v float64, used string) Frame {
	_, b := solver.MaxError(r.m)
	f := Frame{
		Index:        i,
		Value:        v,
		Solver:       used,
		HardErr:      b.Hard(r.opts.SplineSoft),
		InputDeg:     optional(r.tracker.InputDeg()),
		OutputDeg:    optional(r.tracker.OutputDeg()),
		InputAbsDeg:  optional(r.tracker.InputAbsDeg()),
		OutputAbsDeg: optional(r.tracker.OutputAbsDeg()),
	}
	f.Success = f.HardErr <= r.opts.HardErrTol

	var loads []statics.JointLoad
	if len(r.m.LoadMeasures) > 0 {
		rep, err := statics.Compute(r.m, statics.Options{Logger: r.opts.Logger})
		if err != nil {
			r.opts.Logger.Warn("sweep step loads", "index", i, "err", err)
		} else {
			loads = rep.JointLoads
		}
	}
	if sigs := r.tracker.MeasureValues(loads); len(sigs) > 0 {
		f.Measures = make(map[string]*float64, len(sigs))
		for _, s := range sigs {
			f.Measures[s.Name] = s.Value
		}
	}
	if sigs := r.tracker.LoadMeasureValues(loads); len(sigs) > 0 {
		f.LoadMeasures = make(map[string]*float64, len(sigs))
		for _, s := range sigs {
			f.LoadMeasures[s.Name] = s.Value
		}
	}
	return f
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
