package residual

import (
	"slices"

	"github.com/matzehuels/linkage/pkg/geom"
	"github.com/matzehuels/linkage/pkg/model"
)

// Layout assigns every point id a slot in a flat position vector.
type Layout struct {
	ids  []int
	slot map[int]int
}

// NewLayout lays out ids in the given order.
func NewLayout(ids []int) *Layout {
	l := &Layout{ids: slices.Clone(ids), slot: make(map[int]int, len(ids))}
	for i, id := range ids {
		l.slot[id] = i
	}
	return l
}

// ModelLayout lays out every point of m in ascending id order.
func ModelLayout(m *model.Model) *Layout { return NewLayout(m.PointIDs()) }

// Len returns the number of points.
func (l *Layout) Len() int { return len(l.ids) }

// IDs returns the point ids in slot order.
func (l *Layout) IDs() []int { return l.ids }

// ID returns the point id at slot s.
func (l *Layout) ID(s int) int { return l.ids[s] }

// Slot returns the slot of point id.
func (l *Layout) Slot(id int) (int, bool) {
	s, ok := l.slot[id]
	return s, ok
}

func (l *Layout) slots(ids ...int) ([]int, bool) {
	out := make([]int, len(ids))
	for i, id := range ids {
		s, ok := l.slot[id]
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// Vector returns the current positions of m in slot order.
func (l *Layout) Vector(m *model.Model) []float64 {
	q := make([]float64, 2*len(l.ids))
	for i, id := range l.ids {
		if p, ok := m.Points[id]; ok {
			q[2*i], q[2*i+1] = p.X, p.Y
		}
	}
	return q
}

// Apply writes q back into m. Fixed points are left alone.
func (l *Layout) Apply(m *model.Model, q []float64) {
	for i, id := range l.ids {
		if p, ok := m.Points[id]; ok && !p.Fixed {
			p.X, p.Y = q[2*i], q[2*i+1]
		}
	}
}

type builder struct {
	lay *Layout
	out []Descriptor
}

func (b *builder) add(k Kind, role Role, source int, value float64, ids ...int) bool {
	s, ok := b.lay.slots(ids...)
	if !ok {
		return false
	}
	b.out = append(b.out, Descriptor{Kind: k, Role: role, Slots: s, Value: value, Source: source})
	return true
}

func (b *builder) pair(kx, ky Kind, role Role, source int, value float64, ids ...int) {
	if b.add(kx, role, source, value, ids...) {
		b.add(ky, role, source, value, ids...)
	}
}

func (b *builder) spline(m *model.Model, k Kind, ps *model.PointSpline, samples int) {
	sp, ok := m.Splines[ps.Spline]
	if !ok {
		return
	}
	ids := []int{ps.P}
	for _, id := range m.SplineControls(sp) {
		if _, ok := b.lay.Slot(id); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) < 3 {
		return
	}
	s, ok := b.lay.slots(ids...)
	if !ok {
		return
	}
	b.out = append(b.out, Descriptor{
		Kind: k, Role: Passive, Slots: s,
		Closed: sp.Closed, Samples: samples, Source: ps.ID,
	})
}

func (b *builder) lengths(m *model.Model) {
	for _, e := range m.RigidEdges() {
		b.add(RigidEdge, Passive, model.NoID, e.L, e.I, e.J)
	}
	for _, l := range m.SortedLinks() {
		if !l.Ref {
			b.add(Link, Passive, l.ID, l.L, l.I, l.J)
		}
	}
}

// Accurate returns the least-squares residual set: drive sources, coincides,
// point-lines, point-splines, rigid edges, links and angles. Angles and
// headings use wrap-safe (cos, sin) pairs.
func Accurate(m *model.Model, lay *Layout) []Descriptor {
	b := &builder{lay: lay}

	sources, _ := m.DriveSources()
	for i, d := range sources {
		if d.Type == model.DriverTranslation {
			if pl, ok := m.PointLines[d.PLID]; ok {
				b.pair(LineTargetX, LineTargetY, Actuator, i, d.Target(), pl.P, pl.I, pl.J)
			}
			continue
		}
		b.pair(HeadingCos, HeadingSin, Actuator, i, d.Rad, d.Pivot, d.Tip)
	}
	for _, c := range m.SortedCoincides() {
		if c.Enabled {
			b.pair(CoincideX, CoincideY, Passive, c.ID, 0, c.A, c.B)
		}
	}
	for _, pl := range m.SortedPointLines() {
		if !pl.Enabled {
			continue
		}
		if pl.HasOffset() {
			b.pair(LineTargetX, LineTargetY, Passive, pl.ID, pl.Offset(), pl.P, pl.I, pl.J)
		} else {
			b.add(LineDistance, Passive, pl.ID, 0, pl.P, pl.I, pl.J)
		}
	}
	for _, ps := range m.SortedPointSplines() {
		if ps.Enabled {
			b.spline(m, SplineX, ps, geom.ResidualSamplesPerSegment)
			b.spline(m, SplineY, ps, geom.ResidualSamplesPerSegment)
		}
	}
	b.lengths(m)
	for _, a := range m.SortedAngles() {
		if a.Enabled {
			b.pair(AngleCos, AngleSin, Passive, a.ID, a.Rad, a.I, a.J, a.K)
		}
	}
	return b.out
}

// Statics returns the quasi-static residual set with roles. Fixed points
// contribute fixed_x and fixed_y rows. The closure rows are the active
// outputs when any output is active, otherwise the active drivers.
func Statics(m *model.Model, lay *Layout) []Descriptor {
	b := &builder{lay: lay}

	for _, id := range lay.IDs() {
		p, ok := m.Points[id]
		if !ok || !p.Fixed {
			continue
		}
		b.add(FixedX, Passive, id, p.X, id)
		b.add(FixedY, Passive, id, p.Y, id)
	}
	for _, c := range m.SortedCoincides() {
		if c.Enabled {
			b.pair(CoincideX, CoincideY, Passive, c.ID, 0, c.A, c.B)
		}
	}
	for _, pl := range m.SortedPointLines() {
		if !pl.Enabled {
			continue
		}
		if b.add(LineDistance, Passive, pl.ID, 0, pl.P, pl.I, pl.J) && pl.HasOffset() {
			b.add(LineOffset, Passive, pl.ID, pl.Offset(), pl.P, pl.I, pl.J)
		}
	}
	for _, ps := range m.SortedPointSplines() {
		if ps.Enabled {
			b.spline(m, SplineDistance, ps, geom.DefaultSamplesPerSegment)
		}
	}
	b.lengths(m)
	for _, a := range m.SortedAngles() {
		if a.Enabled {
			b.add(Angle, Passive, a.ID, a.Rad, a.I, a.J, a.K)
		}
	}

	if outs := m.ActiveOutputs(); len(outs) > 0 {
		for i, o := range outs {
			b.add(Heading, Output, i, o.Rad, o.Pivot, o.Tip)
		}
		return b.out
	}
	for i, d := range m.ActiveDrivers() {
		if d.Type == model.DriverTranslation {
			if pl, ok := m.PointLines[d.PLID]; ok {
				b.add(LineOffset, Actuator, i, d.Target(), pl.P, pl.I, pl.J)
			}
			continue
		}
		b.add(Heading, Actuator, i, d.Rad, d.Pivot, d.Tip)
	}
	return b.out
}
