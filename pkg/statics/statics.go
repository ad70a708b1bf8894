// Package statics computes quasi-static joint reactions.
//
// [Compute] assembles the external force vector from the model's loads,
// differentiates the statics residual set (see package residual) by central
// differences and solves Jᵀλ = −f_ext for the Lagrange multipliers in the
// minimum-norm least-squares sense. Closure multipliers (driver or output)
// are summed into the report summary as input and output torques and are
// kept out of the per-point joint-load table.
//
// The pose is read, never modified.
package statics

import (
	"io"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/expr"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/residual"
)

// DefaultStep is the central-difference step of the constraint Jacobian.
const DefaultStep = 1e-6

// Mode names the closure used for the multiplier solve.
type Mode string

const (
	ModeOutput Mode = "output"
	ModeDriver Mode = "driver"
	ModeNone   Mode = "none"
)

// Options configures [Compute].
type Options struct {
	// Step is the finite-difference step. Zero means DefaultStep.
	Step float64

	Logger    *log.Logger
	Evaluator model.Evaluator
}

// JointLoad is the reaction attributed to one point.
type JointLoad struct {
	PID int     `json:"pid"`
	FX  float64 `json:"fx"`
	FY  float64 `json:"fy"`
	Mag float64 `json:"mag"`
}

// Component returns the named column of the row.
func (j JointLoad) Component(c model.LoadComponent) (float64, bool) {
	switch c {
	case model.ComponentFX:
		return j.FX, true
	case model.ComponentFY:
		return j.FY, true
	case model.ComponentMag:
		return j.Mag, true
	}
	return 0, false
}

// Summary reports the closure reactions. A torque is nil when no
// descriptor of that role took part in the solve.
type Summary struct {
	Mode      Mode     `json:"mode"`
	TauInput  *float64 `json:"tau_input"`
	TauOutput *float64 `json:"tau_output"`
}

// Report is the result of [Compute].
type Report struct {
	JointLoads []JointLoad `json:"joint_loads"`
	Summary    Summary     `json:"summary"`

	// Residual is ‖Jᵀλ + f_ext‖, zero when the loads are fully balanced.
	Residual float64 `json:"residual"`
	// Rank is the numerical rank of the constraint Jacobian.
	Rank int `json:"rank"`
}

// Load returns the joint load of pid.
func (r Report) Load(pid int) (JointLoad, bool) {
	for _, jl := range r.JointLoads {
		if jl.PID == pid {
			return jl, true
		}
	}
	return JointLoad{}, false
}

// Compute returns the quasi-static joint loads of the current pose. Load
// fields bound to expressions are recomputed first.
func Compute(m *model.Model, opts Options) (Report, error) {
	if m == nil {
		return Report{}, errors.New(errors.ErrCodeInvalidInput, "nil model")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	step := opts.Step
	if step <= 0 {
		step = DefaultStep
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
	if err := validateLoads(m); err != nil {
		return Report{}, err
	}

	rep := Report{Summary: Summary{Mode: ModeNone}}
	lay := residual.ModelLayout(m)
	if lay.Len() == 0 {
		return rep, nil
	}
	q := lay.Vector(m)
	ext := externalForces(m, lay, q)

	ds := residual.Statics(m, lay)
	if len(ds) == 0 {
		for s, id := range lay.IDs() {
			rep.JointLoads = append(rep.JointLoads, jointLoad(id, -ext.f[2*s], -ext.f[2*s+1]))
		}
		return rep, nil
	}

	switch {
	case len(m.ActiveOutputs()) > 0:
		rep.Summary.Mode = ModeOutput
	case len(m.ActiveDrivers()) > 0:
		rep.Summary.Mode = ModeDriver
	}

	rows, cols := len(ds), len(q)
	jac := mat.NewDense(rows, cols, nil)
	fd.Jacobian(jac, func(dst, x []float64) { residual.EvalAll(dst, ds, x) }, q, &fd.JacobianSettings{
		Formula: fd.Central,
		Step:    step,
	})

	lambda, rank := multipliers(jac, ext.f)
	rep.Rank = rank
	if rank == 0 {
		logger.Debug("statics: constraint jacobian has rank zero")
	}

	for k, d := range ds {
		switch d.Role {
		case residual.Actuator:
			rep.Summary.TauInput = accumulate(rep.Summary.TauInput, lambda[k])
		case residual.Output:
			rep.Summary.TauOutput = accumulate(rep.Summary.TauOutput, lambda[k])
		}
	}

	rep.JointLoads = attribute(m, lay, ds, jac, lambda, ext)

	total := reaction(jac, lambda, func(residual.Descriptor) bool { return true }, ds)
	floats.Add(total, ext.f)
	rep.Residual = floats.Norm(total, 2)

	logger.Debug("statics", "mode", rep.Summary.Mode, "rows", rows, "rank", rank, "residual", rep.Residual)
	return rep, nil
}

// multipliers solves Jᵀλ = −f in the minimum-norm least-squares sense.
// Singular values below eps·max(rows, cols) times the largest are cut.
func multipliers(jac *mat.Dense, f []float64) ([]float64, int) {
	rows, cols := jac.Dims()
	lambda := make([]float64, rows)

	var svd mat.SVD
	if !svd.Factorize(jac.T(), mat.SVDThin) {
		return lambda, 0
	}
	rank := svd.Rank(eps * float64(max(rows, cols)))
	if rank == 0 {
		return lambda, 0
	}
	b := mat.NewVecDense(cols, nil)
	for i, v := range f {
		b.SetVec(i, -v)
	}
	dst := mat.NewVecDense(rows, lambda)
	svd.SolveVecTo(dst, b, rank)
	return lambda, rank
}

const eps = 0x1p-52

// reaction returns Jᵀ(λ masked by keep).
func reaction(jac *mat.Dense, lambda []float64, keep func(residual.Descriptor) bool, ds []residual.Descriptor) []float64 {
	masked := make([]float64, len(lambda))
	for k, d := range ds {
		if keep(d) {
			masked[k] = lambda[k]
		}
	}
	_, cols := jac.Dims()
	out := make([]float64, cols)
	v := mat.NewVecDense(cols, out)
	v.MulVec(jac.T(), mat.NewVecDense(len(masked), masked))
	return out
}

// attribute builds the joint-load table. Per point, in order: the fixed
// reaction for fixed points, the largest adjacent link reaction, the
// largest point-on-spline reaction, the net passive and output reaction
// where an external force is applied, and otherwise the passive reaction
// without rigid edges and fixed rows.
func attribute(m *model.Model, lay *residual.Layout, ds []residual.Descriptor, jac *mat.Dense, lambda []float64, ext external) []JointLoad {
	isFixed := func(d residual.Descriptor) bool {
		return d.Kind == residual.FixedX || d.Kind == residual.FixedY
	}
	fixed := reaction(jac, lambda, isFixed, ds)
	net := reaction(jac, lambda, func(d residual.Descriptor) bool {
		return d.Role == residual.Passive || d.Role == residual.Output
	}, ds)
	nonRigid := reaction(jac, lambda, func(d residual.Descriptor) bool {
		return d.Role == residual.Passive && d.Kind != residual.RigidEdge && !isFixed(d)
	}, ds)

	links := largest(ds, jac, lambda, residual.Link, 0, 1)
	splines := largest(ds, jac, lambda, residual.SplineDistance, 0)

	out := make([]JointLoad, 0, lay.Len())
	for s, id := range lay.IDs() {
		var fx, fy float64
		switch jl, ok := links[s]; {
		case m.Points[id].Fixed:
			fx, fy = fixed[2*s], fixed[2*s+1]
		case ok:
			fx, fy = jl.FX, jl.FY
		default:
			if sl, ok := splines[s]; ok {
				fx, fy = sl.FX, sl.FY
			} else if f := ext.applied[id]; f.X != 0 || f.Y != 0 {
				fx, fy = net[2*s], net[2*s+1]
			} else {
				fx, fy = nonRigid[2*s], nonRigid[2*s+1]
			}
		}
		out = append(out, jointLoad(id, fx, fy))
	}
	return out
}

// largest returns, per slot, the largest single-row reaction J[k,slot]·λk
// over descriptors of kind k at the given slot positions.
func largest(ds []residual.Descriptor, jac *mat.Dense, lambda []float64, kind residual.Kind, positions ...int) map[int]JointLoad {
	out := make(map[int]JointLoad)
	for k, d := range ds {
		if d.Kind != kind {
			continue
		}
		for _, pos := range positions {
			if pos >= len(d.Slots) {
				continue
			}
			s := d.Slots[pos]
			jl := jointLoad(0, jac.At(k, 2*s)*lambda[k], jac.At(k, 2*s+1)*lambda[k])
			if jl.Mag <= 0 {
				continue
			}
			if prev, ok := out[s]; !ok || jl.Mag > prev.Mag {
				out[s] = jl
			}
		}
	}
	return out
}

func jointLoad(pid int, fx, fy float64) JointLoad {
	return JointLoad{PID: pid, FX: fx, FY: fy, Mag: math.Hypot(fx, fy)}
}

func accumulate(sum *float64, v float64) *float64 {
	if sum == nil {
		return &v
	}
	*sum += v
	return sum
}
