package solver

import (
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/geom"
	"github.com/matzehuels/linkage/pkg/model"
)

// Breakdown holds the largest residual of each constraint family.
type Breakdown struct {
	Length      float64 `json:"length"`
	Angle       float64 `json:"angle"`
	Coincide    float64 `json:"coincide"`
	PointLine   float64 `json:"point_line"`
	PointSpline float64 `json:"point_spline"`
}

// Max returns the largest residual over all families.
func (b Breakdown) Max() float64 {
	return max(b.Length, b.Angle, b.Coincide, b.PointLine, b.PointSpline)
}

// Hard returns the residual used to judge sweep feasibility. Soft splines are
// left out.
func (b Breakdown) Hard(softSplines bool) float64 {
	h := max(b.Length, b.Angle, b.Coincide, b.PointLine)
	if !softSplines {
		h = max(h, b.PointSpline)
	}
	return h
}

// MaxError measures every active constraint at the current pose. Lengths
// include rigid edges; point-lines honour translation-driver targets and
// stored offsets.
func MaxError(m *model.Model) (float64, Breakdown) {
	var b Breakdown
	pos := func(id int) r2.Vec { return m.Points[id].Pos() }

	for _, e := range m.RigidEdges() {
		if m.Has(e.I, e.J) {
			b.Length = max(b.Length, linkError(pos(e.I), pos(e.J), e.L))
		}
	}
	for _, l := range m.SortedLinks() {
		if !l.Ref && m.Has(l.I, l.J) {
			b.Length = max(b.Length, linkError(pos(l.I), pos(l.J), l.L))
		}
	}
	for _, a := range m.SortedAngles() {
		if !a.Enabled || !m.Has(a.I, a.J, a.K) {
			continue
		}
		if e, ok := angleError(pos(a.I), pos(a.J), pos(a.K), a.Rad, geom.Degenerate); ok {
			b.Angle = max(b.Angle, e)
		}
	}
	for _, c := range m.SortedCoincides() {
		if c.Enabled && m.Has(c.A, c.B) {
			b.Coincide = max(b.Coincide, geom.Dist(pos(c.A), pos(c.B)))
		}
	}
	targets := m.TranslationTargets()
	for _, pl := range m.SortedPointLines() {
		if !pl.Enabled || !m.Has(pl.P, pl.I, pl.J) {
			continue
		}
		p, a, bb := pos(pl.P), pos(pl.I), pos(pl.J)
		var (
			d  float64
			ok bool
		)
		if s, driven := targets[pl.ID]; driven {
			d, ok = offsetDistance(p, a, bb, s)
		} else if pl.HasOffset() {
			d, ok = offsetDistance(p, a, bb, pl.Offset())
		} else {
			d, ok = lineDistance(p, a, bb, geom.Degenerate)
		}
		if ok {
			b.PointLine = max(b.PointLine, d)
		}
	}
	for _, ps := range m.SortedPointSplines() {
		if !ps.Enabled {
			continue
		}
		if d2, ok := modelSplineDist2(m, ps); ok {
			b.PointSpline = max(b.PointSpline, math.Sqrt(d2))
		}
	}
	return b.Max(), b
}

// CheckOverFlags recomputes every Over flag from the current pose without
// moving points. Only constraints whose points are all fixed can be flagged.
func CheckOverFlags(m *model.Model) {
	m.ResetOver()
	pos := func(id int) r2.Vec { return m.Points[id].Pos() }
	fixed := func(ids ...int) bool {
		for _, id := range ids {
			if !m.IsFixed(id) {
				return false
			}
		}
		return true
	}

	for _, c := range m.SortedCoincides() {
		if c.Enabled && m.Has(c.A, c.B) && fixed(c.A, c.B) {
			if r2.Norm2(r2.Sub(pos(c.A), pos(c.B))) > 1e-10 {
				c.Over = true
			}
		}
	}
	for _, l := range m.SortedLinks() {
		if !l.Ref && m.Has(l.I, l.J) && fixed(l.I, l.J) {
			if linkError(pos(l.I), pos(l.J), l.L) > tolLength {
				l.Over = true
			}
		}
	}
	for _, a := range m.SortedAngles() {
		if a.Enabled && m.Has(a.I, a.J, a.K) && fixed(a.I, a.K) {
			if e, ok := angleError(pos(a.I), pos(a.J), pos(a.K), a.Rad, 1e-9); ok && e > tolAngle {
				a.Over = true
			}
		}
	}
	for _, pl := range m.SortedPointLines() {
		if pl.Enabled && m.Has(pl.P, pl.I, pl.J) && fixed(pl.P, pl.I, pl.J) {
			if d, ok := lineDistance(pos(pl.P), pos(pl.I), pos(pl.J), 1e-9); ok && d > 1e-5 {
				pl.Over = true
			}
		}
	}
	for _, ps := range m.SortedPointSplines() {
		if !ps.Enabled || !m.IsFixed(ps.P) {
			continue
		}
		sp, ok := m.Splines[ps.Spline]
		if !ok || !fixed(m.SplineControls(sp)...) {
			continue
		}
		if d2, ok := modelSplineDist2(m, ps); ok && d2 > 1e-5 {
			ps.Over = true
		}
	}
	m.Notify(model.Event{Change: model.ChangeDiagnostics, Source: "check"})
}

// =============================================================================
// Residual helpers
// =============================================================================

func linkError(a, b r2.Vec, L float64) float64 {
	return math.Abs(geom.Dist(a, b) - L)
}

// angleError returns |wrap(current - target)|; legs shorter than minLeg
// report false.
func angleError(pi, pj, pk r2.Vec, target, minLeg float64) (float64, bool) {
	v1, v2 := r2.Sub(pi, pj), r2.Sub(pk, pj)
	if r2.Norm(v1) <= minLeg || r2.Norm(v2) <= minLeg {
		return 0, false
	}
	return math.Abs(geom.WrapAngle(geom.AngleBetween(v1, v2) - target)), true
}

// lineDistance returns the perpendicular distance of p to the line a-b.
func lineDistance(p, a, b r2.Vec, minLen float64) (float64, bool) {
	ab := r2.Sub(b, a)
	n := r2.Norm(ab)
	if n <= minLen {
		return 0, false
	}
	return math.Abs(r2.Cross(r2.Sub(p, a), ab)) / n, true
}

// offsetDistance returns |p - (a + unit(b-a)·s)|.
func offsetDistance(p, a, b r2.Vec, s float64) (float64, bool) {
	ab := r2.Sub(b, a)
	n := r2.Norm(ab)
	if n <= geom.Degenerate {
		return 0, false
	}
	target := r2.Add(a, r2.Scale(s/n, ab))
	return geom.Dist(p, target), true
}

func splineDist2(p r2.Vec, ctrl []r2.Vec, closed bool) (float64, bool) {
	samples := geom.SplineSamples(ctrl, geom.DefaultSamplesPerSegment, closed)
	if len(samples) < 2 {
		return 0, false
	}
	return geom.ClosestOnSamples(p, samples).Dist2, true
}

func modelSplineDist2(m *model.Model, ps *model.PointSpline) (float64, bool) {
	sp, ok := m.Splines[ps.Spline]
	if !ok || !m.Has(ps.P) {
		return 0, false
	}
	ids := m.SplineControls(sp)
	if len(ids) < 2 {
		return 0, false
	}
	ctrl := make([]r2.Vec, len(ids))
	for i, id := range ids {
		ctrl[i] = m.Points[id].Pos()
	}
	return splineDist2(m.Points[ps.P].Pos(), ctrl, sp.Closed)
}

func sortedKeys[V any](mp map[int]V) []int {
	return slices.Sorted(maps.Keys(mp))
}
