// Package optimize searches design variables for the best mechanism.
//
// A [Problem] names the design variables to sample, the cases (sweeps) a
// candidate is evaluated with, and the objectives and constraints that
// score it. [Run] performs a seeded random search: every evaluation
// samples each enabled variable uniformly within its bounds, applies the
// sample to a copy of the model, sweeps each case the scoring needs and
// evaluates the objective and constraint expressions against the case
// signals with [expr.EvalSignal].
//
// # Scoring
//
// Each objective is averaged over its cases; maximized objectives are
// negated. The score of a candidate is its primary (first) objective plus a
// penalty of 1e6 per unit of total constraint violation. Expressions that
// fail to evaluate score 1e9 as an objective and count 1e6 as a violation.
// The candidate with the lowest score wins; ties keep the earlier one.
//
// # Usage
//
//	p, err := optimize.LoadProblem("problem.toml")
//	res, err := optimize.Run(ctx, m, *p, optimize.Options{Evaluations: 200, Seed: 7})
//	best, _ := optimize.Design(m, res.Best.Vars)
package optimize

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/expr"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// Search limits.
const (
	DefaultEvaluations = 50
	MaxEvaluations     = 100_000
)

// Scoring weights.
const (
	errorScore     = 1e9
	errorViolation = 1e6
	penaltyWeight  = 1e6
)

// ReasonCancelled marks a search stopped by its context.
const ReasonCancelled = "cancelled"

// Options configures [Run].
type Options struct {
	// Evaluations is the number of candidates. Zero means DefaultEvaluations.
	Evaluations int
	// Seed seeds the sampler. Equal seeds reproduce a search.
	Seed uint64

	Logger *log.Logger
	// Trace receives one JSON line per evaluation when set. A failing
	// writer is dropped for the rest of the search.
	Trace io.Writer
	// Progress is called after every evaluation with the best so far.
	Progress func(ev, best *Evaluation)
}

// CaseOutcome is the sweep outcome of one case. Error is set when the
// sweep could not run at all.
type CaseOutcome struct {
	Summary sweep.Summary `json:"summary"`
	Status  sweep.Status  `json:"status"`
	Error   string        `json:"error,omitempty"`
}

// Evaluation is one scored candidate.
type Evaluation struct {
	Index int                `json:"index"` // 1-based
	Vars  map[string]float64 `json:"vars"`

	// Objective is the primary objective value as evaluated, before
	// negation for maximization.
	Objective float64 `json:"objective"`
	// Objectives holds every enabled objective that resolved in some case.
	Objectives []float64 `json:"objectives,omitempty"`
	// Constraints holds one value per enabled constraint and case; nil
	// entries failed to evaluate.
	Constraints []*float64 `json:"constraints,omitempty"`

	Violation float64 `json:"violation"`
	Penalty   float64 `json:"penalty"`
	Score     float64 `json:"score"`

	Cases    map[string]CaseOutcome `json:"cases"`
	Warnings []string               `json:"warnings,omitempty"`
}

// Feasible reports whether every constraint holds.
func (e *Evaluation) Feasible() bool { return e.Violation == 0 }

// Success reports whether every swept case ran to completion.
func (e *Evaluation) Success() bool {
	for _, c := range e.Cases {
		if c.Error != "" || !c.Status.Success {
			return false
		}
	}
	return true
}

// Result is the outcome of [Run].
type Result struct {
	// Best is nil when no evaluation completed.
	Best        *Evaluation `json:"best"`
	Evaluations int         `json:"evaluations"`
	Seed        uint64      `json:"seed"`
	Stopped     string      `json:"stopped,omitempty"`
}

// Design returns a copy of m with vars applied, together with the warnings
// of [Apply].
func Design(m *model.Model, vars map[string]float64) (*model.Model, []string) {
	d := m.Clone()
	return d, Apply(d, vars)
}

// Run searches p on copies of m; m itself is never modified. Cancelling
// ctx stops the search between sweep steps; the result so far is returned
// together with the context error.
func Run(ctx context.Context, m *model.Model, p Problem, opts Options) (*Result, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil model")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opts.Evaluations <= 0 {
		opts.Evaluations = DefaultEvaluations
	}
	if opts.Evaluations > MaxEvaluations {
		return nil, errors.New(errors.ErrCodeInvalidInput, "%d evaluations exceed %d", opts.Evaluations, MaxEvaluations)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	o := &optimizer{
		base:    m,
		problem: p,
		opts:    opts,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed)),
	}
	if opts.Trace != nil {
		o.trace = json.NewEncoder(opts.Trace)
	}
	return o.run(ctx)
}

type optimizer struct {
	base    *model.Model
	problem Problem
	opts    Options
	rng     *rand.Rand
	trace   *json.Encoder
}

func (o *optimizer) run(ctx context.Context) (*Result, error) {
	res := &Result{Seed: o.opts.Seed}
	start := time.Now()
	for i := range o.opts.Evaluations {
		if err := ctx.Err(); err != nil {
			res.Stopped = ReasonCancelled
			return res, err
		}
		ev, err := o.evaluate(ctx, i+1, o.sample())
		if err != nil {
			res.Stopped = ReasonCancelled
			return res, err
		}
		res.Evaluations++
		if res.Best == nil || ev.Score < res.Best.Score {
			res.Best = ev
		}
		o.record(ev)
		o.opts.Logger.Debug("evaluated design", "index", ev.Index, "score", ev.Score,
			"objective", ev.Objective, "violation", ev.Violation)
		if o.opts.Progress != nil {
			o.opts.Progress(ev, res.Best)
		}
	}
	if res.Best != nil {
		o.opts.Logger.Info("optimized",
			"evaluations", res.Evaluations,
			"score", res.Best.Score,
			"feasible", res.Best.Feasible(),
			"duration", time.Since(start))
	}
	return res, nil
}

// sample draws one candidate, visiting variables in problem order so a seed
// reproduces the same sequence.
func (o *optimizer) sample() map[string]float64 {
	vars := make(map[string]float64, len(o.problem.Variables))
	for _, v := range o.problem.Variables {
		if v.Disabled {
			continue
		}
		vars[v.Name] = v.Lower + o.rng.Float64()*(v.Upper-v.Lower)
	}
	return vars
}

// requiredCases returns the ids of the cases any enabled objective or
// constraint reads, or every case when none does.
func (o *optimizer) requiredCases() map[string]bool {
	need := make(map[string]bool)
	add := func(ids []string) {
		if len(ids) == 0 {
			ids = o.caseIDs()
		}
		for _, id := range ids {
			need[id] = true
		}
	}
	for _, obj := range o.problem.Objectives {
		if !obj.Disabled {
			add(obj.Cases)
		}
	}
	for _, con := range o.problem.Constraints {
		if !con.Disabled {
			add(con.Cases)
		}
	}
	if len(need) == 0 {
		add(nil)
	}
	return need
}

func (o *optimizer) caseIDs() []string {
	ids := make([]string, len(o.problem.Cases))
	for i, c := range o.problem.Cases {
		ids[i] = c.ID
	}
	return ids
}

func (o *optimizer) evaluate(ctx context.Context, index int, vars map[string]float64) (*Evaluation, error) {
	design, warnings := Design(o.base, vars)
	ev := &Evaluation{
		Index:    index,
		Vars:     vars,
		Cases:    make(map[string]CaseOutcome),
		Warnings: warnings,
	}

	need := o.requiredCases()
	signals := make(map[string]map[string]any, len(need))
	for _, c := range o.problem.Cases {
		if !need[c.ID] {
			continue
		}
		opts := c.Sweep
		opts.Logger = o.opts.Logger
		res, err := sweep.Run(ctx, design.Clone(), opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ev.Cases[c.ID] = CaseOutcome{Error: errors.UserMessage(err)}
			continue
		}
		ev.Cases[c.ID] = CaseOutcome{Summary: res.Summary, Status: res.Status}
		signals[c.ID] = CaseSignals(res, design)
	}

	o.score(ev, signals)
	return ev, nil
}

// score fills the objective, constraint and score fields of ev.
func (o *optimizer) score(ev *Evaluation, signals map[string]map[string]any) {
	var scores []float64
	for _, obj := range o.problem.Objectives {
		if obj.Disabled {
			continue
		}
		var caseScores, caseValues []float64
		for _, id := range o.casesOr(obj.Cases) {
			sig, ok := signals[id]
			if !ok {
				continue
			}
			v, err := evalFinite(obj.Expr, sig)
			s := v
			switch {
			case err != nil:
				ev.Warnings = append(ev.Warnings, "objective "+id+": "+errors.UserMessage(err))
				v, s = errorScore, errorScore
			case obj.Direction == Maximize:
				s = -v
			}
			caseScores = append(caseScores, s)
			caseValues = append(caseValues, v)
		}
		if len(caseScores) > 0 {
			scores = append(scores, mean(caseScores))
			ev.Objectives = append(ev.Objectives, mean(caseValues))
		}
	}
	base := 0.0
	if len(scores) > 0 {
		base = scores[0]
		ev.Objective = ev.Objectives[0]
	}

	for _, con := range o.problem.Constraints {
		if con.Disabled {
			continue
		}
		for _, id := range o.casesOr(con.Cases) {
			sig, ok := signals[id]
			if !ok {
				continue
			}
			v, err := evalFinite(con.Expr, sig)
			if err != nil {
				ev.Warnings = append(ev.Warnings, "constraint "+id+": "+errors.UserMessage(err))
				ev.Violation += errorViolation
				ev.Constraints = append(ev.Constraints, nil)
				continue
			}
			ev.Constraints = append(ev.Constraints, &v)
			if con.Comparator == AtMost {
				ev.Violation += max(0, v-con.Limit)
			} else {
				ev.Violation += max(0, con.Limit-v)
			}
		}
	}

	ev.Penalty = ev.Violation * penaltyWeight
	ev.Score = base + ev.Penalty
}

func (o *optimizer) casesOr(ids []string) []string {
	if len(ids) == 0 {
		return o.caseIDs()
	}
	return ids
}

// record writes ev to the trace.
func (o *optimizer) record(ev *Evaluation) {
	if o.trace == nil {
		return
	}
	line := struct {
		Timestamp time.Time `json:"timestamp"`
		Success   bool      `json:"success"`
		*Evaluation
	}{time.Now().UTC(), ev.Success(), ev}
	if err := o.trace.Encode(line); err != nil {
		o.opts.Logger.Warn("optimization trace disabled", "err", err)
		o.trace = nil
	}
}

// evalFinite evaluates a signal expression and rejects non-finite values.
func evalFinite(src string, signals map[string]any) (float64, error) {
	v, err := expr.EvalSignal(src, signals)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New(errors.ErrCodeInvalidExpression, "%q is not finite", src)
	}
	return v, nil
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
