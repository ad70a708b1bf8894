// Package solver implements the iterative projection solver.
//
// [Projection] repeatedly applies the primitives of package constraint to
// every active constraint in a fixed priority order: drivers, translation
// targets, coincidences, point-on-line, point-on-spline, rigid-body edges,
// links and finally angles. It converges approximately and is cheap enough
// to run on every drag event.
//
// Over flags are reset at the start of every solve and set whenever a
// primitive reports that all participating points are locked and the
// constraint is violated.
package solver

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/constraint"
	"github.com/matzehuels/linkage/pkg/expr"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/observability"
)

// Defaults for projection solves.
const (
	DefaultIterations = 60
	SweepIterations   = 80
	DefaultDragAlpha  = 0.45
)

// Tolerances used by the projection passes.
const (
	tolLength    = 1e-6
	tolLine      = 1e-6
	tolSpline    = 1e-6
	tolAngle     = 1e-5
	tolCoincide2 = 1e-6 // squared separation
)

// DragTarget softly pulls a point toward a cursor position each iteration.
type DragTarget struct {
	ID    int
	Pos   r2.Vec
	Alpha float64
}

type options struct {
	ctx        context.Context
	iterations int
	drag       int
	target     *DragTarget
	logger     *log.Logger
	evaluator  model.Evaluator
}

// Option configures a projection solve.
type Option func(*options)

// WithIterations sets the iteration budget. Values below one run one pass.
func WithIterations(n int) Option { return func(o *options) { o.iterations = n } }

// WithDrag treats point id as locked for the duration of the solve.
func WithDrag(id int) Option { return func(o *options) { o.drag = id } }

// WithDragTarget pulls point id toward pos by alpha (clamped to [0, 1]) on
// every iteration.
func WithDragTarget(id int, pos r2.Vec, alpha float64) Option {
	return func(o *options) {
		o.target = &DragTarget{ID: id, Pos: pos, Alpha: min(1, max(0, alpha))}
	}
}

// WithLogger sets the logger used for solve diagnostics.
func WithLogger(l *log.Logger) Option { return func(o *options) { o.logger = l } }

// WithEvaluator sets the evaluator for expression-bound fields.
func WithEvaluator(ev model.Evaluator) Option { return func(o *options) { o.evaluator = ev } }

// WithContext sets the context passed to observability hooks.
func WithContext(ctx context.Context) Option { return func(o *options) { o.ctx = ctx } }

var defaultEvaluator = expr.New()

// Result summarises a projection solve.
type Result struct {
	Iterations   int
	Over         int // constraints flagged over
	ExprFailures int // expression fields that failed to evaluate
}

// Projection solves m in place with the projection method.
func Projection(m *model.Model, opts ...Option) Result {
	o := options{
		ctx:        context.Background(),
		iterations: DefaultIterations,
		drag:       model.NoID,
		evaluator:  defaultEvaluator,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	if o.iterations < 1 {
		o.iterations = 1
	}

	hooks := observability.Solver()
	hooks.OnSolveStart(o.ctx, "projection", len(m.Points))
	start := time.Now()

	res := Result{Iterations: o.iterations}
	if m.HasExpressions() {
		res.ExprFailures = m.Recompute(o.evaluator)
		if res.ExprFailures > 0 {
			o.logger.Warn("expression fields kept previous values", "failed", res.ExprFailures)
		}
	}
	m.ResetOver()

	s := newState(m, o.drag)
	for range o.iterations {
		s.iterate(o.target)
	}
	s.postCheck()
	s.writeBack()

	res.Over = m.OverCount()
	elapsed := time.Since(start)
	o.logger.Debug("projection solve", "iterations", o.iterations, "over", res.Over, "elapsed", elapsed)
	hooks.OnSolveComplete(o.ctx, "projection", elapsed, nil)
	m.Notify(model.Event{Change: model.ChangePositions | model.ChangeDiagnostics, Source: "projection"})
	return res
}

// state is the per-solve working set.
type state struct {
	m           *model.Model
	pos         map[int]*r2.Vec
	drag        int
	sources     []*model.Driver
	radius      []float64
	driven      map[int]bool
	driverPairs map[[2]int]bool
	translation map[int]float64
}

func newState(m *model.Model, drag int) *state {
	s := &state{
		m:           m,
		pos:         make(map[int]*r2.Vec, len(m.Points)),
		drag:        drag,
		driven:      make(map[int]bool),
		driverPairs: make(map[[2]int]bool),
		translation: m.TranslationTargets(),
	}
	for id, p := range m.Points {
		v := p.Pos()
		s.pos[id] = &v
	}
	s.sources, _ = m.DriveSources()
	s.radius = make([]float64, len(s.sources))
	for i, d := range s.sources {
		s.radius[i] = d.Radius
		if d.Type == model.DriverTranslation {
			if pl, ok := m.PointLines[d.PLID]; ok {
				s.driven[pl.P] = true
			}
			continue
		}
		if d.Tip != model.NoID {
			s.driven[d.Tip] = true
		}
		if d.Pivot != model.NoID && d.Tip != model.NoID {
			s.driverPairs[pairKey(d.Pivot, d.Tip)] = true
		}
	}
	return s
}

func pairKey(i, j int) [2]int {
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}
}

func (s *state) has(ids ...int) bool {
	for _, id := range ids {
		if _, ok := s.pos[id]; !ok {
			return false
		}
	}
	return true
}

// locked reports whether id may not move: fixed, dragged, or driven when
// driven points are honoured.
func (s *state) locked(id int, honourDriven bool) bool {
	return s.m.IsFixed(id) || id == s.drag || (honourDriven && s.driven[id])
}

func (s *state) iterate(target *DragTarget) {
	m := s.m

	if target != nil && s.has(target.ID) && !s.driven[target.ID] && !m.IsFixed(target.ID) {
		p := s.pos[target.ID]
		*p = r2.Add(*p, r2.Scale(target.Alpha, r2.Sub(target.Pos, *p)))
	}

	for i, d := range s.sources {
		if d.Type == model.DriverTranslation || !s.has(d.Pivot, d.Tip) {
			continue
		}
		if s.drag == d.Pivot || s.drag == d.Tip {
			continue
		}
		constraint.DriverAngle(s.pos[d.Pivot], s.pos[d.Tip], d.Rad, s.locked(d.Tip, false), &s.radius[i])
	}

	for _, plid := range sortedKeys(s.translation) {
		pl := m.PointLines[plid]
		if !pl.Enabled || !s.has(pl.P, pl.I, pl.J) {
			continue
		}
		if s.drag == pl.P || s.drag == pl.I || s.drag == pl.J {
			continue
		}
		constraint.PointOnLineOffset(s.pos[pl.P], s.pos[pl.I], s.pos[pl.J], s.translation[plid],
			s.locked(pl.P, false), s.locked(pl.I, false), s.locked(pl.J, false), tolLine)
	}

	for _, c := range m.SortedCoincides() {
		if !c.Enabled || !s.has(c.A, c.B) {
			continue
		}
		la, lb := s.locked(c.A, false), s.locked(c.B, false)
		a, b := s.pos[c.A], s.pos[c.B]
		if la && lb {
			if r2.Norm2(r2.Sub(*a, *b)) > tolCoincide2 {
				c.Over = true
			}
			continue
		}
		constraint.Coincide(a, b, la, lb, 0)
	}

	for _, pl := range m.SortedPointLines() {
		if !pl.Enabled || !s.has(pl.P, pl.I, pl.J) {
			continue
		}
		p, a, b := s.pos[pl.P], s.pos[pl.I], s.pos[pl.J]
		lp, la, lb := s.locked(pl.P, true), s.locked(pl.I, true), s.locked(pl.J, true)
		var ok bool
		if target, driven := s.translation[pl.ID]; driven {
			ok = constraint.PointOnLineOffset(p, a, b, target, lp, la, lb, tolLine)
		} else if pl.HasOffset() {
			ok = constraint.PointOnLineOffset(p, a, b, pl.Offset(), lp, la, lb, tolLine)
		} else {
			ok = constraint.PointOnLine(p, a, b, lp, la, lb, tolLine)
		}
		if !ok {
			pl.Over = true
		}
	}

	for _, ps := range m.SortedPointSplines() {
		if !ps.Enabled || !s.has(ps.P) {
			continue
		}
		sp, ok := m.Splines[ps.Spline]
		if !ok {
			continue
		}
		ids := m.SplineControls(sp)
		if len(ids) < 2 {
			continue
		}
		ctrl := make([]*r2.Vec, len(ids))
		locks := make([]bool, len(ids))
		for i, id := range ids {
			ctrl[i] = s.pos[id]
			locks[i] = s.locked(id, true)
		}
		if !constraint.PointOnSpline(s.pos[ps.P], ctrl, s.locked(ps.P, true), locks, sp.Closed, tolSpline) {
			ps.Over = true
		}
	}

	for _, e := range m.RigidEdges() {
		if !s.has(e.I, e.J) {
			continue
		}
		l1, l2 := s.edgeLocks(e.I, e.J)
		constraint.Distance(s.pos[e.I], s.pos[e.J], e.L, l1, l2, tolLength)
	}

	for _, l := range m.SortedLinks() {
		if l.Ref || !s.has(l.I, l.J) {
			continue
		}
		l1, l2 := s.edgeLocks(l.I, l.J)
		if !constraint.Distance(s.pos[l.I], s.pos[l.J], l.L, l1, l2, tolLength) {
			l.Over = true
		}
	}

	for _, a := range m.SortedAngles() {
		if !a.Enabled || !s.has(a.I, a.J, a.K) {
			continue
		}
		if !constraint.Angle(s.pos[a.I], s.pos[a.J], s.pos[a.K], a.Rad, s.locked(a.I, true), s.locked(a.K, true), tolAngle) {
			a.Over = true
		}
	}
}

// edgeLocks returns endpoint locks for a distance-like constraint. A driven
// point may still move along its own driver's pivot-tip pair.
func (s *state) edgeLocks(i, j int) (bool, bool) {
	own := s.driverPairs[pairKey(i, j)]
	return s.locked(i, !own), s.locked(j, !own)
}

func (s *state) writeBack() {
	for id, p := range s.m.Points {
		if v, ok := s.pos[id]; ok && !p.Fixed {
			p.SetPos(*v)
		}
	}
	for i, d := range s.sources {
		d.Radius = s.radius[i]
	}
}

// postCheck flags constraints whose points are all fixed and which are
// violated. It never moves points.
func (s *state) postCheck() {
	m := s.m
	for _, l := range m.SortedLinks() {
		if l.Ref || !s.has(l.I, l.J) || !m.IsFixed(l.I) || !m.IsFixed(l.J) {
			continue
		}
		if linkError(*s.pos[l.I], *s.pos[l.J], l.L) > tolLength {
			l.Over = true
		}
	}
	for _, a := range m.SortedAngles() {
		if !a.Enabled || !s.has(a.I, a.J, a.K) || !m.IsFixed(a.I) || !m.IsFixed(a.K) {
			continue
		}
		if e, ok := angleError(*s.pos[a.I], *s.pos[a.J], *s.pos[a.K], a.Rad, 1e-9); ok && e > tolAngle {
			a.Over = true
		}
	}
	for _, pl := range m.SortedPointLines() {
		if !pl.Enabled || !s.has(pl.P, pl.I, pl.J) {
			continue
		}
		if !m.IsFixed(pl.P) || !m.IsFixed(pl.I) || !m.IsFixed(pl.J) {
			continue
		}
		if d, ok := lineDistance(*s.pos[pl.P], *s.pos[pl.I], *s.pos[pl.J], 1e-9); ok && d > tolLine {
			pl.Over = true
		}
	}
	for _, ps := range m.SortedPointSplines() {
		if !ps.Enabled {
			continue
		}
		if d2, ok := s.splineDist2(ps, true); ok && d2 > 1e-6 {
			ps.Over = true
		}
	}
}

// splineDist2 returns the squared distance of ps.P to its spline. With
// allFixed set it reports false unless the point and every control are fixed.
func (s *state) splineDist2(ps *model.PointSpline, allFixed bool) (float64, bool) {
	m := s.m
	sp, ok := m.Splines[ps.Spline]
	if !ok || !s.has(ps.P) {
		return 0, false
	}
	ids := m.SplineControls(sp)
	if len(ids) < 2 {
		return 0, false
	}
	if allFixed && !m.IsFixed(ps.P) {
		return 0, false
	}
	ctrl := make([]r2.Vec, len(ids))
	for i, id := range ids {
		if allFixed && !m.IsFixed(id) {
			return 0, false
		}
		ctrl[i] = *s.pos[id]
	}
	return splineDist2(*s.pos[ps.P], ctrl, sp.Closed)
}
