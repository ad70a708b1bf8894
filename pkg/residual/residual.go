// Package residual describes constraints as scalar residual functions over a
// flat position vector.
//
// A [Descriptor] is plain data: a kind, the point slots it reads and a target
// value. [Eval] is a pure function of a descriptor and a position vector, so
// Jacobians can be taken by perturbing the vector without touching the model.
// [Accurate] and [Statics] build the two descriptor sets used by the
// least-squares solver and the quasi-static solver.
package residual

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/geom"
)

// Kind identifies the residual function of a descriptor.
type Kind string

const (
	FixedX Kind = "fixed_x"
	FixedY Kind = "fixed_y"

	CoincideX Kind = "coincide_x"
	CoincideY Kind = "coincide_y"

	// LineDistance is the signed perpendicular distance of p to line i-j.
	LineDistance Kind = "point_line"
	// LineOffset is the position of p along unit(j-i) minus the target.
	LineOffset Kind = "point_line_s"
	// LineTargetX and LineTargetY are p minus i + unit(j-i)·s.
	LineTargetX Kind = "point_line_x"
	LineTargetY Kind = "point_line_y"

	SplineDistance Kind = "point_spline"
	SplineX        Kind = "point_spline_x"
	SplineY        Kind = "point_spline_y"

	RigidEdge Kind = "rigid_edge"
	Link      Kind = "link_len"

	// Angle is the wrapped signed joint angle error at the vertex.
	Angle    Kind = "angle"
	AngleCos Kind = "angle_cos"
	AngleSin Kind = "angle_sin"

	// Heading is the wrapped pivot→tip direction error.
	Heading    Kind = "heading"
	HeadingCos Kind = "heading_cos"
	HeadingSin Kind = "heading_sin"
)

// Role partitions descriptors for the quasi-static solver.
type Role string

const (
	Passive  Role = "passive"
	Actuator Role = "actuator"
	Output   Role = "output"
)

// Descriptor is one scalar residual.
//
// Slots index points in a [Layout]. Their meaning depends on Kind:
//
//	fixed             [p]
//	coincide          [a, b]
//	line kinds        [p, i, j]
//	spline kinds      [p, c0, c1, ...]
//	edge and link     [i, j]
//	angle kinds       [i, j, k] (vertex j)
//	heading kinds     [pivot, tip]
type Descriptor struct {
	Kind    Kind
	Role    Role
	Slots   []int
	Value   float64 // target coordinate, length, offset or angle
	Closed  bool    // spline only
	Samples int     // spline samples per segment
	Source  int     // id of the originating constraint or driver index
}

// Eval returns the residual of d at position vector q, laid out as
// x0, y0, x1, y1, ... by slot. Degenerate geometry yields zero.
func Eval(d Descriptor, q []float64) float64 {
	at := func(n int) r2.Vec {
		s := d.Slots[n]
		return r2.Vec{X: q[2*s], Y: q[2*s+1]}
	}

	switch d.Kind {
	case FixedX:
		return at(0).X - d.Value
	case FixedY:
		return at(0).Y - d.Value

	case CoincideX:
		return at(0).X - at(1).X
	case CoincideY:
		return at(0).Y - at(1).Y

	case LineDistance:
		p, a, b := at(0), at(1), at(2)
		ab := r2.Sub(b, a)
		n := r2.Norm(ab)
		if n < 1e-12 {
			return 0
		}
		return r2.Cross(r2.Sub(p, a), ab) / n
	case LineOffset:
		p, a, b := at(0), at(1), at(2)
		ab := r2.Sub(b, a)
		n := r2.Norm(ab)
		if n < 1e-9 {
			return 0
		}
		return r2.Dot(r2.Sub(p, a), ab)/n - d.Value
	case LineTargetX, LineTargetY:
		p, a, b := at(0), at(1), at(2)
		ab := r2.Sub(b, a)
		n := r2.Norm(ab)
		if n < 1e-12 {
			return 0
		}
		delta := r2.Sub(p, r2.Add(a, r2.Scale(d.Value/n, ab)))
		if d.Kind == LineTargetX {
			return delta.X
		}
		return delta.Y

	case SplineDistance, SplineX, SplineY:
		return evalSpline(d, at)

	case RigidEdge, Link:
		return geom.Dist(at(0), at(1)) - d.Value

	case Angle, AngleCos, AngleSin:
		v1, v2 := r2.Sub(at(0), at(1)), r2.Sub(at(2), at(1))
		if r2.Norm(v1) < 1e-12 || r2.Norm(v2) < 1e-12 {
			return 0
		}
		return angular(d.Kind, geom.AngleBetween(v1, v2), d.Value)

	case Heading, HeadingCos, HeadingSin:
		v := r2.Sub(at(1), at(0))
		if math.Abs(v.X)+math.Abs(v.Y) < 1e-12 {
			return 0
		}
		return angular(d.Kind, math.Atan2(v.Y, v.X), d.Value)
	}
	return 0
}

// EvalAll writes the residual of every descriptor into dst.
func EvalAll(dst []float64, ds []Descriptor, q []float64) {
	for i, d := range ds {
		dst[i] = Eval(d, q)
	}
}

// angular returns the wrap-safe residual of cur against target.
func angular(k Kind, cur, target float64) float64 {
	switch k {
	case AngleCos, HeadingCos:
		return math.Cos(cur) - math.Cos(target)
	case AngleSin, HeadingSin:
		return math.Sin(cur) - math.Sin(target)
	default:
		return geom.WrapAngle(cur - target)
	}
}

func evalSpline(d Descriptor, at func(int) r2.Vec) float64 {
	if len(d.Slots) < 3 {
		return 0
	}
	ctrl := make([]r2.Vec, len(d.Slots)-1)
	for i := range ctrl {
		ctrl[i] = at(i + 1)
	}
	n := d.Samples
	if n <= 0 {
		n = geom.DefaultSamplesPerSegment
	}
	samples := geom.SplineSamples(ctrl, n, d.Closed)
	if len(samples) < 2 {
		return 0
	}
	p := at(0)
	c := geom.ClosestOnSamples(p, samples)
	switch d.Kind {
	case SplineX:
		return p.X - c.Pos.X
	case SplineY:
		return p.Y - c.Pos.Y
	default:
		return math.Sqrt(c.Dist2)
	}
}
