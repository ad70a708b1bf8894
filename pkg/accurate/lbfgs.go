package accurate

import (
	"context"
	"slices"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// LBFGS minimizes ½‖r‖² with gonum's limited-memory BFGS. The gradient Jᵀr
// uses a forward-difference Jacobian.
type LBFGS struct {
	// Store is the L-BFGS history size. Zero uses the gonum default.
	Store int
}

var _ Backend = (*LBFGS)(nil)

// Name implements [Backend].
func (*LBFGS) Name() string { return "lbfgs" }

// Solve implements [Backend].
func (b *LBFGS) Solve(ctx context.Context, p Problem) (Result, error) {
	maxEval, tol := p.budget()
	n, m := len(p.X0), p.M
	if n == 0 || m == 0 {
		return Result{X: slices.Clone(p.X0), Converged: true, Message: "nothing to solve"}, nil
	}

	f := &counted{f: p.Residual}
	r := make([]float64, m)
	jac := mat.NewDense(m, n, nil)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			f.eval(r, x)
			return 0.5 * floats.Dot(r, r)
		},
		Grad: func(grad, x []float64) {
			f.eval(r, x)
			fd.Jacobian(jac, f.eval, x, &fd.JacobianSettings{Formula: fd.Forward, OriginValue: r})
			g := mat.NewVecDense(n, grad)
			g.MulVec(jac.T(), mat.NewVecDense(m, r))
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			if f.n >= maxEval {
				return optimize.FunctionEvaluationLimit, nil
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		GradientThreshold: tol,
		Converger: &optimize.FunctionConverge{
			Absolute:   tol * tol,
			Relative:   tol,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, p.X0, settings, &optimize.LBFGS{Store: b.Store})
	if res == nil {
		return Result{X: slices.Clone(p.X0), Evaluations: f.n, Message: err.Error()}, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return Result{X: res.X, Cost: res.F, Evaluations: f.n, Message: "cancelled"}, cerr
	}

	out := Result{X: res.X, Cost: res.F, Evaluations: f.n, Message: res.Status.String()}
	switch {
	case res.F <= tol*tol:
		out.Converged = true
	case err != nil:
		out.Message = err.Error()
	default:
		out.Converged = !res.Status.Early()
	}
	return out, nil
}
