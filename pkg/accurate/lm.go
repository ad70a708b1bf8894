package accurate

import (
	"context"
	"math"
	"slices"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LevenbergMarquardt is a damped Gauss-Newton backend. Jacobians are taken
// by forward differences and the damped normal equations
// (JᵀJ + λ·diag(JᵀJ))·δ = Jᵀr are solved by Cholesky factorization.
type LevenbergMarquardt struct {
	// InitialDamping is the starting λ. Zero means 1e-3.
	InitialDamping float64
}

var _ Backend = (*LevenbergMarquardt)(nil)

// Name implements [Backend].
func (*LevenbergMarquardt) Name() string { return "lm" }

const maxDamping = 1e16

// Solve implements [Backend].
func (lm *LevenbergMarquardt) Solve(ctx context.Context, p Problem) (Result, error) {
	maxEval, tol := p.budget()
	n, m := len(p.X0), p.M
	x := slices.Clone(p.X0)
	if n == 0 || m == 0 {
		return Result{X: x, Converged: true, Message: "nothing to solve"}, nil
	}

	f := &counted{f: p.Residual}
	r := make([]float64, m)
	f.eval(r, x)
	cost := 0.5 * floats.Dot(r, r)

	lambda := lm.InitialDamping
	if lambda <= 0 {
		lambda = 1e-3
	}

	jac := mat.NewDense(m, n, nil)
	var (
		jtj   mat.SymDense
		a     = mat.NewSymDense(n, nil)
		g     = mat.NewVecDense(n, nil)
		delta = mat.NewVecDense(n, nil)
		chol  mat.Cholesky
		trial = make([]float64, n)
		rt    = make([]float64, m)
	)

	done := func(converged bool, msg string) (Result, error) {
		return Result{X: x, Cost: cost, Evaluations: f.n, Converged: converged, Message: msg}, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return Result{X: x, Cost: cost, Evaluations: f.n, Message: "cancelled"}, err
		}
		if cost <= tol*tol {
			return done(true, "residual below tolerance")
		}
		if f.n+n > maxEval {
			return done(false, "maximum number of evaluations exceeded")
		}

		fd.Jacobian(jac, f.eval, x, &fd.JacobianSettings{Formula: fd.Forward, OriginValue: r})
		g.MulVec(jac.T(), mat.NewVecDense(m, r))
		if mat.Norm(g, math.Inf(1)) < tol {
			return done(true, "gradient tolerance satisfied")
		}
		jtj.SymOuterK(1, jac.T())

		accepted := false
		for !accepted {
			if f.n >= maxEval {
				return done(false, "maximum number of evaluations exceeded")
			}
			if lambda > maxDamping {
				return done(false, "damping diverged")
			}
			a.CopySym(&jtj)
			for i := range n {
				d := jtj.At(i, i)
				a.SetSym(i, i, d+lambda*math.Max(d, 1e-12))
			}
			if !chol.Factorize(a) || chol.SolveVecTo(delta, g) != nil {
				lambda *= 10
				continue
			}
			for i := range n {
				trial[i] = x[i] - delta.AtVec(i)
			}
			f.eval(rt, trial)
			next := 0.5 * floats.Dot(rt, rt)
			if !(next < cost) || math.IsNaN(next) {
				lambda *= 4
				continue
			}

			accepted = true
			step := mat.Norm(delta, 2)
			reduction := cost - next
			copy(x, trial)
			copy(r, rt)
			cost = next
			lambda = math.Max(lambda/3, 1e-12)

			if reduction <= tol*cost {
				return done(true, "cost tolerance satisfied")
			}
			if step <= tol*(tol+floats.Norm(x, 2)) {
				return done(true, "step tolerance satisfied")
			}
		}
	}
}
