// Package pipeline runs solves, load reports and sweeps with caching.
//
// The CLI and the HTTP API both go through a [Runner] so a request behaves
// the same from either entry point. The Runner hashes the canonical model
// JSON, looks the result up in a cache under a key built from that hash and
// the options that affect the result, and only computes on a miss. Sweeps
// can additionally be persisted to a run store.
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	defer runner.Close()
//
//	solved, err := runner.Solve(ctx, m, pipeline.SolveOptions{Accurate: true})
//	loads, err := runner.Loads(ctx, m, pipeline.LoadsOptions{})
//	swept, err := runner.Sweep(ctx, m, pipeline.SweepOptions{
//	    Sweep: sweep.Options{End: 90, Step: 5},
//	})
package pipeline

import (
	"time"

	"github.com/matzehuels/linkage/pkg/accurate"
	"github.com/matzehuels/linkage/pkg/cache"
	"github.com/matzehuels/linkage/pkg/dof"
	"github.com/matzehuels/linkage/pkg/solver"
	"github.com/matzehuels/linkage/pkg/statics"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// SolveOptions configures [Runner.Solve].
type SolveOptions struct {
	// Accurate solves with the accurate solver, falling back to projection
	// when the backend is unavailable or fails.
	Accurate       bool   `json:"accurate"`
	Backend        string `json:"backend,omitempty"`
	Iterations     int    `json:"iterations,omitempty"`
	MaxEvaluations int    `json:"max_evaluations,omitempty"`

	// Refresh skips the cache lookup. The result is still stored.
	Refresh bool `json:"-"`

	Backends *accurate.Registry `json:"-"`
}

func (o SolveOptions) withDefaults() SolveOptions {
	if o.Backend == "" {
		o.Backend = sweep.DefaultBackend
	}
	if o.Iterations <= 0 {
		o.Iterations = solver.DefaultIterations
	}
	if o.Backends == nil {
		o.Backends = accurate.DefaultRegistry()
	}
	return o
}

func (o SolveOptions) keyOpts() cache.SolveKeyOpts {
	k := cache.SolveKeyOpts{Accurate: o.Accurate, Iterations: o.Iterations}
	if o.Accurate {
		k.Backend = o.Backend
	}
	return k
}

// SolveResult reports a solve.
type SolveResult struct {
	// Solver is the solver that produced the pose: "projection" or the
	// accurate backend name.
	Solver string `json:"solver"`
	// Accurate is the accurate solver outcome, nil for projection solves.
	Accurate *accurate.Outcome `json:"accurate,omitempty"`
	// Fallback holds the accurate failure that caused a projection fallback.
	Fallback string `json:"fallback,omitempty"`

	MaxError  float64          `json:"max_error"`
	Breakdown solver.Breakdown `json:"breakdown"`
	Over      int              `json:"over"`
	DOF       dof.Report       `json:"dof"`

	ModelHash string        `json:"model_hash"`
	CacheHit  bool          `json:"cache_hit"`
	Duration  time.Duration `json:"duration"`
}

// LoadsOptions configures [Runner.Loads].
type LoadsOptions struct {
	Refresh bool
}

// LoadsResult reports a quasi-static analysis.
type LoadsResult struct {
	Report    statics.Report `json:"report"`
	ModelHash string         `json:"model_hash"`
	CacheHit  bool           `json:"cache_hit"`
	Duration  time.Duration  `json:"duration"`
}

// SweepOptions configures [Runner.Sweep].
type SweepOptions struct {
	Sweep sweep.Options `json:"options"`

	// Refresh skips the cache lookup. The result is still stored.
	Refresh bool `json:"-"`
	// Save persists the run when the runner has a store.
	Save bool `json:"-"`
	// Name labels a saved run.
	Name string `json:"-"`
}

func (o SweepOptions) keyOpts() cache.SweepKeyOpts {
	s := o.Sweep.WithDefaults()
	return cache.SweepKeyOpts{
		Start:          s.Start,
		End:            s.End,
		Step:           s.Step,
		StepCount:      s.StepCount,
		Solver:         string(s.Solver),
		Backend:        s.Backend,
		MaxEvaluations: s.MaxEvaluations,
		Iterations:     s.Iterations,
		HardErrTol:     s.HardErrTol,
		SplineSoft:     s.SplineSoft,
	}
}

// SweepResult reports a sweep.
type SweepResult struct {
	*sweep.Result

	ModelHash string        `json:"model_hash"`
	CacheHit  bool          `json:"cache_hit"`
	RunID     string        `json:"run_id,omitempty"`
	Duration  time.Duration `json:"duration"`
}
