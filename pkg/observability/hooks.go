// Package observability provides hooks for metrics, tracing and logging.
//
// Solvers, the sweep engine, caches and the HTTP API emit events through
// hook interfaces with no-op defaults. An embedding registers its own
// implementations once at startup; library code never imports a metrics
// backend directly.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetSolverHooks(&mySolverHooks{})
//	    observability.SetSweepHooks(&mySweepHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Solver().OnSolveStart(ctx, "projection", len(m.Points))
//	// ... solve ...
//	observability.Solver().OnSolveComplete(ctx, "projection", elapsed, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Solver Hooks
// =============================================================================

// SolverHooks receives events from position solvers and the statics solver.
type SolverHooks interface {
	OnSolveStart(ctx context.Context, solver string, points int)
	OnSolveComplete(ctx context.Context, solver string, duration time.Duration, err error)
}

// =============================================================================
// Sweep Hooks
// =============================================================================

// SweepHooks receives events from the sweep engine.
type SweepHooks interface {
	// OnSweepStart records the start of a sweep with the planned step count.
	OnSweepStart(ctx context.Context, solver string, steps int)

	// OnStep records one completed (or failed) step.
	OnStep(ctx context.Context, index int, hardErr float64, ok bool)

	// OnSweepComplete records the end of a sweep.
	OnSweepComplete(ctx context.Context, frames int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the HTTP API.
type HTTPHooks interface {
	// OnRequest records an incoming request.
	OnRequest(ctx context.Context, method, path string)

	// OnResponse records the response status and handling time.
	OnResponse(ctx context.Context, method, path string, status int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopSolverHooks is a no-op implementation of SolverHooks.
type NoopSolverHooks struct{}

func (NoopSolverHooks) OnSolveStart(context.Context, string, int)                         {}
func (NoopSolverHooks) OnSolveComplete(context.Context, string, time.Duration, error) {}

// NoopSweepHooks is a no-op implementation of SweepHooks.
type NoopSweepHooks struct{}

func (NoopSweepHooks) OnSweepStart(context.Context, string, int)                  {}
func (NoopSweepHooks) OnStep(context.Context, int, float64, bool)                 {}
func (NoopSweepHooks) OnSweepComplete(context.Context, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string)                             {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	solverHooks SolverHooks = NoopSolverHooks{}
	sweepHooks  SweepHooks  = NoopSweepHooks{}
	cacheHooks  CacheHooks  = NoopCacheHooks{}
	httpHooks   HTTPHooks   = NoopHTTPHooks{}
	hooksMu     sync.RWMutex
)

// SetSolverHooks registers custom solver hooks. Nil is ignored.
func SetSolverHooks(h SolverHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		solverHooks = h
	}
}

// SetSweepHooks registers custom sweep hooks. Nil is ignored.
func SetSweepHooks(h SweepHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		sweepHooks = h
	}
}

// SetCacheHooks registers custom cache hooks. Nil is ignored.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks. Nil is ignored.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Solver returns the registered solver hooks.
func Solver() SolverHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return solverHooks
}

// Sweep returns the registered sweep hooks.
func Sweep() SweepHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return sweepHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	solverHooks = NoopSolverHooks{}
	sweepHooks = NoopSweepHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
