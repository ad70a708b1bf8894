// Package accurate solves a mechanism as a nonlinear least-squares problem.
//
// [Solve] formulates every active constraint as residuals (see package
// residual), minimizes them over the coordinates of all free points with a
// pluggable [Backend] and writes the result back. It converges far tighter
// than the projection solver and is used for sweeps and final poses.
//
// Backends are injected. A missing backend is a recoverable
// SOLVER_UNAVAILABLE error so callers can fall back to projection.
package accurate

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/expr"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/observability"
	"github.com/matzehuels/linkage/pkg/residual"
	"github.com/matzehuels/linkage/pkg/solver"
)

// Options configures [Solve].
type Options struct {
	MaxEvaluations int
	Tolerance      float64
	Logger         *log.Logger
	Evaluator      model.Evaluator
}

// Outcome reports an accurate solve.
type Outcome struct {
	OK          bool    `json:"ok"`
	Message     string  `json:"message"`
	Evaluations int     `json:"evaluations"`
	Cost        float64 `json:"cost"`
}

// Solve minimizes the residuals of m with backend and writes the optimized
// free-point coordinates back. Over flags are then recomputed without moving
// points. OK requires the backend to report convergence.
func Solve(ctx context.Context, m *model.Model, backend Backend, opts Options) (Outcome, error) {
	if backend == nil {
		err := errors.New(errors.ErrCodeSolverUnavailable, "no accurate solver backend configured")
		return Outcome{Message: errors.UserMessage(err)}, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if m.HasExpressions() {
		ev := opts.Evaluator
		if ev == nil {
			ev = expr.New()
		}
		if n := m.Recompute(ev); n > 0 {
			logger.Warn("expression fields kept previous values", "failed", n)
		}
	}

	hooks := observability.Solver()
	hooks.OnSolveStart(ctx, backend.Name(), len(m.Points))
	start := time.Now()

	out, err := solve(ctx, m, backend, opts)

	elapsed := time.Since(start)
	hooks.OnSolveComplete(ctx, backend.Name(), elapsed, err)
	logger.Debug("accurate solve", "backend", backend.Name(), "ok", out.OK,
		"evaluations", out.Evaluations, "cost", out.Cost, "elapsed", elapsed)
	return out, err
}

func solve(ctx context.Context, m *model.Model, backend Backend, opts Options) (Outcome, error) {
	lay := residual.ModelLayout(m)
	var free []int
	for s, id := range lay.IDs() {
		if !m.Points[id].Fixed {
			free = append(free, s)
		}
	}
	if len(free) == 0 {
		solver.CheckOverFlags(m)
		return Outcome{OK: true, Message: "No free points"}, nil
	}

	ds := residual.Accurate(m, lay)
	if len(ds) == 0 {
		solver.CheckOverFlags(m)
		return Outcome{OK: true, Message: "No constraints"}, nil
	}

	q := lay.Vector(m)
	x0 := make([]float64, 2*len(free))
	for i, s := range free {
		x0[2*i], x0[2*i+1] = q[2*s], q[2*s+1]
	}
	// scatter copies free coordinates into a private position vector.
	work := make([]float64, len(q))
	copy(work, q)
	scatter := func(x []float64) {
		for i, s := range free {
			work[2*s], work[2*s+1] = x[2*i], x[2*i+1]
		}
	}

	res, err := backend.Solve(ctx, Problem{
		X0: x0,
		M:  len(ds),
		Residual: func(dst, x []float64) {
			scatter(x)
			residual.EvalAll(dst, ds, work)
		},
		MaxEvaluations: opts.MaxEvaluations,
		Tolerance:      opts.Tolerance,
	})
	if err != nil {
		return Outcome{Message: err.Error(), Evaluations: res.Evaluations},
			errors.Wrap(errors.ErrCodeNotConverged, err, "%s backend failed", backend.Name())
	}

	if len(res.X) == len(x0) {
		scatter(res.X)
		lay.Apply(m, work)
	}
	solver.CheckOverFlags(m)
	m.Notify(model.Event{Change: model.ChangePositions | model.ChangeDiagnostics, Source: "accurate"})

	return Outcome{
		OK:          res.Converged,
		Message:     res.Message,
		Evaluations: res.Evaluations,
		Cost:        res.Cost,
	}, nil
}
