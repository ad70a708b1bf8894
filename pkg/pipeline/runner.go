package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/linkage/pkg/accurate"
	"github.com/matzehuels/linkage/pkg/cache"
	"github.com/matzehuels/linkage/pkg/dof"
	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/kinematics"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/observability"
	"github.com/matzehuels/linkage/pkg/runstore"
	"github.com/matzehuels/linkage/pkg/solver"
	"github.com/matzehuels/linkage/pkg/statics"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// Runner executes requests against a cache and an optional run store.
//
// The Runner holds no per-request state. Models are mutated in place, so
// concurrent calls must use distinct models.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
	// Store persists saved sweeps. Nil disables saving.
	Store runstore.Store
	// TTL overrides the per-kind cache lifetimes when positive.
	TTL time.Duration
}

// NewRunner returns a runner. A nil keyer means a DefaultKeyer, a nil
// cache disables caching and a nil logger means log.Default().
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// solveEntry is the cached form of a solve: the result and the solved
// point positions.
type solveEntry struct {
	Result SolveResult       `json:"result"`
	Points map[int][2]float64 `json:"points"`
}

// Solve solves m in place. On a cache hit the cached positions are applied
// and over flags are recomputed.
func (r *Runner) Solve(ctx context.Context, m *model.Model, opts SolveOptions) (*SolveResult, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil model")
	}
	opts = opts.withDefaults()
	start := time.Now()

	hash, err := modelHash(m)
	if err != nil {
		return nil, err
	}
	key := r.Keyer.SolveKey(hash, opts.keyOpts())

	if !opts.Refresh {
		var entry solveEntry
		if err := cache.GetJSON(ctx, r.Cache, key, &entry); err == nil {
			observability.Cache().OnCacheHit(ctx, key)
			applyPoints(m, entry.Points)
			solver.CheckOverFlags(m)
			res := entry.Result
			res.CacheHit = true
			res.Duration = time.Since(start)
			r.Logger.Info("solved (cached)", "solver", res.Solver, "max_error", res.MaxError)
			return &res, nil
		}
		observability.Cache().OnCacheMiss(ctx, key)
	}

	res := &SolveResult{Solver: "projection", ModelHash: hash}
	if opts.Accurate {
		if err := r.solveAccurate(ctx, m, opts, res); err != nil {
			return nil, err
		}
	} else {
		solver.Projection(m, solver.WithIterations(opts.Iterations),
			solver.WithLogger(r.Logger), solver.WithContext(ctx))
	}
	res.MaxError, res.Breakdown = solver.MaxError(m)
	res.Over = m.OverCount()
	res.DOF = dof.Analyze(m)
	res.Duration = time.Since(start)

	r.Logger.Info("solved",
		"solver", res.Solver,
		"max_error", res.MaxError,
		"over", res.Over,
		"duration", res.Duration)

	r.store(ctx, key, solveEntry{Result: *res, Points: points(m)}, cache.TTLSolve)
	return res, nil
}

// solveAccurate runs the accurate solver and falls back to projection on
// recoverable failures.
func (r *Runner) solveAccurate(ctx context.Context, m *model.Model, opts SolveOptions, res *SolveResult) error {
	backend, err := opts.Backends.Get(opts.Backend)
	if err == nil {
		var out accurate.Outcome
		out, err = accurate.Solve(ctx, m, backend, accurate.Options{
			MaxEvaluations: opts.MaxEvaluations,
			Logger:         r.Logger,
		})
		res.Accurate = &out
		if err == nil {
			res.Solver = backend.Name()
			if !out.OK {
				res.Fallback = out.Message
			}
			return nil
		}
	}
	if !errors.Recoverable(err) {
		return err
	}
	res.Fallback = errors.UserMessage(err)
	r.Logger.Warn("accurate solve failed, using projection", "err", res.Fallback)
	solver.Projection(m, solver.WithIterations(opts.Iterations),
		solver.WithLogger(r.Logger), solver.WithContext(ctx))
	res.Solver = "projection"
	return nil
}

// SolveFunc returns an uncached solve for interactive driving with a
// [kinematics.Tracker].
func (r *Runner) SolveFunc(opts SolveOptions) kinematics.SolveFunc {
	opts = opts.withDefaults()
	return func(ctx context.Context, m *model.Model) error {
		if opts.Accurate {
			return r.solveAccurate(ctx, m, opts, &SolveResult{})
		}
		solver.Projection(m, solver.WithIterations(opts.Iterations),
			solver.WithLogger(r.Logger), solver.WithContext(ctx))
		return nil
	}
}

// Loads computes the quasi-static report of the current pose.
func (r *Runner) Loads(ctx context.Context, m *model.Model, opts LoadsOptions) (*LoadsResult, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil model")
	}
	start := time.Now()
	hash, err := modelHash(m)
	if err != nil {
		return nil, err
	}
	key := r.Keyer.LoadsKey(hash)

	if !opts.Refresh {
		var rep statics.Report
		if err := cache.GetJSON(ctx, r.Cache, key, &rep); err == nil {
			observability.Cache().OnCacheHit(ctx, key)
			return &LoadsResult{Report: rep, ModelHash: hash, CacheHit: true, Duration: time.Since(start)}, nil
		}
		observability.Cache().OnCacheMiss(ctx, key)
	}

	hooks := observability.Solver()
	hooks.OnSolveStart(ctx, "statics", len(m.Points))
	rep, err := statics.Compute(m, statics.Options{Logger: r.Logger})
	elapsed := time.Since(start)
	hooks.OnSolveComplete(ctx, "statics", elapsed, err)
	if err != nil {
		return nil, err
	}

	r.Logger.Info("computed loads",
		"mode", rep.Summary.Mode,
		"points", len(rep.JointLoads),
		"duration", elapsed)

	r.store(ctx, key, rep, cache.TTLLoads)
	return &LoadsResult{Report: rep, ModelHash: hash, Duration: elapsed}, nil
}

// Sweep runs a sweep of m. On a cache miss m is left at the last
// successful pose; on a hit it is not moved. A cancelled sweep is neither
// cached nor saved.
func (r *Runner) Sweep(ctx context.Context, m *model.Model, opts SweepOptions) (*SweepResult, error) {
	if m == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "nil model")
	}
	if err := opts.Sweep.Validate(); err != nil {
		return nil, err
	}
	if opts.Sweep.Logger == nil {
		opts.Sweep.Logger = r.Logger
	}
	start := time.Now()

	modelData, err := model.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode model")
	}
	hash := cache.Hash(modelData)
	key := r.Keyer.SweepKey(hash, opts.keyOpts())

	out := &SweepResult{ModelHash: hash}
	if !opts.Refresh {
		var cached sweep.Result
		if err := cache.GetJSON(ctx, r.Cache, key, &cached); err == nil {
			observability.Cache().OnCacheHit(ctx, key)
			out.Result = &cached
			out.CacheHit = true
		} else {
			observability.Cache().OnCacheMiss(ctx, key)
		}
	}

	if out.Result == nil {
		res, err := sweep.Run(ctx, m, opts.Sweep)
		if err != nil {
			return nil, err
		}
		out.Result = res
		r.store(ctx, key, res, cache.TTLSweep)
	}
	out.Duration = time.Since(start)

	r.Logger.Info("swept",
		"frames", out.Summary.NSteps,
		"success", out.Status.Success,
		"reason", out.Status.Reason,
		"cached", out.CacheHit,
		"duration", out.Duration)

	if opts.Save && r.Store != nil {
		id, err := r.save(ctx, modelData, hash, opts, out.Result)
		if err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
		out.RunID = id
		r.Logger.Info("saved run", "id", id)
	}
	return out, nil
}

func (r *Runner) save(ctx context.Context, modelData []byte, hash string, opts SweepOptions, res *sweep.Result) (string, error) {
	optData, err := json.Marshal(opts.Sweep)
	if err != nil {
		return "", err
	}
	resData, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return r.Store.Save(ctx, &runstore.Run{
		Kind:      runstore.KindSweep,
		Name:      opts.Name,
		ModelHash: hash,
		Model:     modelData,
		Options:   optData,
		Result:    resData,
		Success:   res.Status.Success,
		Frames:    len(res.Frames),
	})
}

// store writes v to the cache. Cache failures are logged, never returned.
func (r *Runner) store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		r.Logger.Debug("cache encode failed", "key", key, "err", err)
		return
	}
	if r.TTL > 0 {
		ttl = r.TTL
	}
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Debug("cache set failed", "key", key, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, key, len(data))
}

// Close releases the cache and the run store.
func (r *Runner) Close() error {
	var err error
	if r.Cache != nil {
		err = r.Cache.Close()
	}
	if r.Store != nil {
		if serr := r.Store.Close(); err == nil {
			err = serr
		}
	}
	return err
}

func modelHash(m *model.Model) (string, error) {
	data, err := model.Marshal(m)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "encode model")
	}
	return cache.Hash(data), nil
}

func points(m *model.Model) map[int][2]float64 {
	out := make(map[int][2]float64, len(m.Points))
	for id, p := range m.Points {
		out[id] = [2]float64{p.X, p.Y}
	}
	return out
}

func applyPoints(m *model.Model, pts map[int][2]float64) {
	for id, xy := range pts {
		if p, ok := m.Points[id]; ok {
			p.X, p.Y = xy[0], xy[1]
		}
	}
	m.Notify(model.Event{Change: model.ChangePositions, Source: "cache"})
}
