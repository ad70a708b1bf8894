// Package constraint implements the position-correction primitives used by
// the projection solver.
//
// Every primitive receives point positions by pointer together with lock
// flags. A locked point (fixed, dragged or driven) is never moved. Each call
// performs one correction step and reports whether the constraint can be
// satisfied: false means every participating point is locked and the
// residual exceeds the tolerance. Degenerate geometry is never an error; the
// primitive skips the correction and reports true.
package constraint

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/geom"
)

// MinRadius is the smallest pivot-tip distance an angle driver accepts.
const MinRadius = 1e-9

func weight(locked bool) float64 {
	if locked {
		return 0
	}
	return 1
}

// Distance moves p1 and p2 along their connecting line so that |p2-p1| = L.
// The correction is shared equally between unlocked endpoints.
func Distance(p1, p2 *r2.Vec, L float64, lock1, lock2 bool, tol float64) bool {
	d := r2.Sub(*p2, *p1)
	n := r2.Norm(d)
	if n < geom.Degenerate {
		return !(lock1 && lock2 && L > tol)
	}
	if lock1 && lock2 {
		return math.Abs(n-L) <= tol
	}
	w1, w2 := weight(lock1), weight(lock2)
	w := w1 + w2
	c := n - L
	u := r2.Scale(1/n, d)
	*p1 = r2.Add(*p1, r2.Scale(w1/w*c, u))
	*p2 = r2.Sub(*p2, r2.Scale(w2/w*c, u))
	return true
}

// Angle rotates the legs (pi-pj) and (pk-pj) about pj until the signed angle
// from the first to the second equals target. The vertex never moves.
func Angle(pi, pj, pk *r2.Vec, target float64, locki, lockk bool, tol float64) bool {
	v1 := r2.Sub(*pi, *pj)
	v2 := r2.Sub(*pk, *pj)
	if r2.Norm(v1) < geom.Degenerate || r2.Norm(v2) < geom.Degenerate {
		return true
	}
	err := geom.WrapAngle(geom.AngleBetween(v1, v2) - target)
	if math.Abs(err) <= tol {
		return true
	}
	switch {
	case locki && lockk:
		return false
	case locki:
		*pk = r2.Add(*pj, geom.Rotate(v2, -err))
	case lockk:
		*pi = r2.Add(*pj, geom.Rotate(v1, err))
	default:
		*pi = r2.Add(*pj, geom.Rotate(v1, err/2))
		*pk = r2.Add(*pj, geom.Rotate(v2, -err/2))
	}
	return true
}

// DriverAngle places tip on the circle around pivot at angle theta. The
// radius is the current separation, cached in *radius; when the points
// coincide the cached radius is used instead.
func DriverAngle(pivot, tip *r2.Vec, theta float64, lockTip bool, radius *float64) bool {
	if lockTip {
		return false
	}
	r := geom.Dist(*pivot, *tip)
	if r < MinRadius {
		if radius != nil {
			r = *radius
		}
	} else if radius != nil {
		*radius = r
	}
	if r < MinRadius {
		return false
	}
	*tip = geom.Polar(*pivot, r, theta)
	return true
}

// Coincide snaps a free point onto a locked one, or both onto their midpoint.
func Coincide(a, b *r2.Vec, locka, lockb bool, tol float64) bool {
	switch {
	case locka && lockb:
		return r2.Norm2(r2.Sub(*a, *b)) <= tol*tol
	case locka:
		*b = *a
	case lockb:
		*a = *b
	default:
		mid := r2.Scale(0.5, r2.Add(*a, *b))
		*a, *b = mid, mid
	}
	return true
}

// PointOnLine keeps p on the infinite line through a and b.
//
// With p free, p moves toward its projection while unlocked line points move
// the opposite way. With p locked and exactly one line point free, the free
// point is rotated about the locked one so the line passes through p; its
// distance to the locked point is kept.
func PointOnLine(p, a, b *r2.Vec, lockp, locka, lockb bool, tol float64) bool {
	ab := r2.Sub(*b, *a)
	ab2 := r2.Norm2(ab)
	if ab2 < geom.Degenerate*geom.Degenerate {
		return true
	}
	t := r2.Dot(r2.Sub(*p, *a), ab) / ab2
	d := r2.Sub(r2.Add(*a, r2.Scale(t, ab)), *p)
	if r2.Norm2(d) <= tol*tol {
		return true
	}
	if lockp && locka && lockb {
		return false
	}

	if lockp && locka != lockb {
		pivot, free := a, b
		if !locka {
			pivot, free = b, a
		}
		if reorient(p, pivot, free) {
			return true
		}
	}

	wp, wa, wb := weight(lockp), weight(locka), weight(lockb)
	w := wp + wa + wb
	*p = r2.Add(*p, r2.Scale(wp/w, d))
	*a = r2.Sub(*a, r2.Scale(wa/w, d))
	*b = r2.Sub(*b, r2.Scale(wb/w, d))
	return true
}

// reorient rotates free about pivot so that pivot, free and p are collinear,
// keeping |free-pivot| and the side of p the free point was on.
func reorient(p, pivot, free *r2.Vec) bool {
	toP := r2.Sub(*p, *pivot)
	dp := r2.Norm(toP)
	r := geom.Dist(*pivot, *free)
	if dp < geom.Degenerate || r < geom.Degenerate {
		return false
	}
	u := r2.Scale(1/dp, toP)
	if r2.Dot(r2.Sub(*free, *pivot), u) < 0 {
		u = r2.Scale(-1, u)
	}
	*free = r2.Add(*pivot, r2.Scale(r, u))
	return true
}

// PointOnLineOffset keeps p at a + unit(b-a)·s.
//
// A free p moves toward the target, sharing the correction with unlocked
// line points. With p locked and only a free, a slides along the current
// direction to p - u·s. With p locked and only b free, b is swung about a
// onto the ray through p at its former distance.
func PointOnLineOffset(p, a, b *r2.Vec, s float64, lockp, locka, lockb bool, tol float64) bool {
	ab := r2.Sub(*b, *a)
	n := r2.Norm(ab)
	if n < MinRadius {
		return true
	}
	u := r2.Scale(1/n, ab)
	target := r2.Add(*a, r2.Scale(s, u))
	d := r2.Sub(target, *p)
	if r2.Norm(d) <= tol {
		return true
	}
	if lockp && locka && lockb {
		return false
	}

	if lockp {
		switch {
		case !locka && lockb:
			*a = r2.Sub(*p, r2.Scale(s, u))
			return true
		case locka && !lockb:
			toP := r2.Sub(*p, *a)
			dp := r2.Norm(toP)
			if dp < geom.Degenerate {
				return true
			}
			dir := r2.Scale(1/dp, toP)
			if s < 0 {
				dir = r2.Scale(-1, dir)
			}
			*b = r2.Add(*a, r2.Scale(n, dir))
			return true
		}
	}

	wp, wa, wb := weight(lockp), weight(locka), weight(lockb)
	w := wp + wa + wb
	*p = r2.Add(*p, r2.Scale(wp/w, d))
	*a = r2.Sub(*a, r2.Scale(wa/w, d))
	*b = r2.Sub(*b, r2.Scale(wb/w, d))
	return true
}

// PointOnSpline pulls p onto the Catmull-Rom curve through ctrl. The
// correction is shared between p and the two control points bracketing the
// closest segment, weighted by the segment parameter.
func PointOnSpline(p *r2.Vec, ctrl []*r2.Vec, lockp bool, lockCtrl []bool, closed bool, tol float64) bool {
	if len(ctrl) < 2 || len(lockCtrl) != len(ctrl) {
		return true
	}
	pts := make([]r2.Vec, len(ctrl))
	for i, c := range ctrl {
		pts[i] = *c
	}
	samples := geom.SplineSamples(pts, geom.DefaultSamplesPerSegment, closed)
	if len(samples) < 2 {
		return true
	}
	cl := geom.ClosestOnSamples(*p, samples)
	if math.Sqrt(cl.Dist2) <= tol {
		return true
	}
	i0, i1 := geom.SegmentControls(cl.Segment, len(ctrl), closed)
	if i0 < 0 {
		return true
	}
	if lockp && lockCtrl[i0] && lockCtrl[i1] {
		return false
	}

	wp := weight(lockp)
	w0 := weight(lockCtrl[i0]) * (1 - cl.T)
	w1 := weight(lockCtrl[i1]) * cl.T
	if i0 == i1 {
		w1 = 0
	}
	total := wp + w0 + w1
	if total < geom.Degenerate {
		return true
	}
	delta := r2.Sub(cl.Pos, *p)
	*p = r2.Add(*p, r2.Scale(wp/total, delta))
	*ctrl[i0] = r2.Sub(*ctrl[i0], r2.Scale(w0/total, delta))
	if i0 != i1 {
		*ctrl[i1] = r2.Sub(*ctrl[i1], r2.Scale(w1/total, delta))
	}
	return true
}
