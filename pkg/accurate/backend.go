package accurate

import (
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/linkage/pkg/errors"
)

// Default budgets for accurate solves.
const (
	DefaultMaxEvaluations = 200
	DefaultTolerance      = 1e-10
)

// Problem is a nonlinear least-squares problem: minimize ½‖r(x)‖² over x.
type Problem struct {
	// X0 is the starting point. Backends must not modify it.
	X0 []float64

	// M is the number of residuals.
	M int

	// Residual writes r(x) into dst, which has length M. It must not modify x.
	Residual func(dst, x []float64)

	// MaxEvaluations bounds the number of Residual calls, including those
	// spent on finite-difference Jacobians. Zero means DefaultMaxEvaluations.
	MaxEvaluations int

	// Tolerance is the cost, step and gradient tolerance. Zero means
	// DefaultTolerance.
	Tolerance float64
}

func (p Problem) budget() (int, float64) {
	n, tol := p.MaxEvaluations, p.Tolerance
	if n <= 0 {
		n = DefaultMaxEvaluations
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	return n, tol
}

// Result is the outcome of a backend run.
type Result struct {
	X           []float64
	Cost        float64 // ½‖r(X)‖²
	Evaluations int
	Converged   bool
	Message     string
}

// Backend minimizes a [Problem].
type Backend interface {
	Name() string
	Solve(ctx context.Context, p Problem) (Result, error)
}

// counted wraps a residual function with an evaluation counter.
type counted struct {
	f func(dst, x []float64)
	n int
}

func (c *counted) eval(dst, x []float64) {
	c.n++
	c.f(dst, x)
}

// =============================================================================
// Registry
// =============================================================================

// Registry holds named backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns a registry holding the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// DefaultRegistry returns a registry with the Levenberg-Marquardt ("lm")
// and L-BFGS ("lbfgs") backends.
func DefaultRegistry() *Registry {
	return NewRegistry(&LevenbergMarquardt{}, &LBFGS{})
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend registered under name. Unknown names yield a
// recoverable SOLVER_UNAVAILABLE error.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeSolverUnavailable, "unknown solver backend %q (available: %v)", name, r.namesLocked())
	}
	return b, nil
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
