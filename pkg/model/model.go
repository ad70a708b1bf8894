// Package model defines the mechanism data model shared by every solver.
//
// A [Model] holds points, typed constraints, splines, rigid bodies, drivers,
// outputs, loads and measurements. Solvers read the model and mutate point
// positions and diagnostic Over flags only; everything else is owned by the
// host that builds or loads the model.
//
// # Identity
//
// Points and constraints are keyed by integer ids. Iteration helpers such as
// [Model.SortedLinks] return items in ascending id order so that every solver
// pass is deterministic.
//
// # Dangling references
//
// A constraint may reference a point or spline that no longer exists. Solvers
// treat such constraints as inactive for that solve; they never fail on them.
// [Model.RemovePoint] cascades deletion so that a well-behaved host never
// produces dangling references in the first place.
//
// # Change notification
//
// Hosts subscribe with [Model.Subscribe] and receive [Event] values after
// solves and edits. The model never calls into host code any other way.
package model

import (
	"errors"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/matzehuels/linkage/pkg/geom"
)

var (
	// ErrInvalidReference is returned when a constructor receives a negative
	// point or spline id.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrRepeatedPoint is returned when a constraint references the same point
	// twice.
	ErrRepeatedPoint = errors.New("repeated point id")

	// ErrNotFinite is returned for NaN or infinite numeric fields.
	ErrNotFinite = errors.New("value must be finite")

	// ErrDuplicateID is returned by Add methods when the id is taken.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownPoint is returned by Add methods when a referenced point does
	// not exist.
	ErrUnknownPoint = errors.New("unknown point")
)

// Point is a planar point. Fixed points are never moved by a solver. Hidden
// is a display flag only.
type Point struct {
	ID     int
	X, Y   float64
	Fixed  bool
	Hidden bool
	XExpr  string
	YExpr  string
}

// Pos returns the point position.
func (p *Point) Pos() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// SetPos moves the point.
func (p *Point) SetPos(v r2.Vec) { p.X, p.Y = v.X, v.Y }

// Spline is a Catmull-Rom curve through ordered control points.
type Spline struct {
	ID     int
	Points []int
	Closed bool
	Hidden bool
}

// RigidEdge is one frozen pairwise distance of a rigid body.
type RigidEdge struct {
	I, J int
	L    float64
}

// Body is a rigid group of points. Its edges are frozen from member
// positions by [Model.FreezeBody] and act as a bundle of links.
type Body struct {
	ID         int
	Members    []int
	RigidEdges []RigidEdge
}

// DriverType selects how a driver moves the mechanism.
type DriverType string

const (
	DriverAngle       DriverType = "angle"
	DriverTranslation DriverType = "translation"
)

// Driver is a hard-enforced degree of freedom used to animate a mechanism.
//
// Angle drivers place Tip on a circle around Pivot at angle Rad. Translation
// drivers hold the point of point-line PLID at offset SBase + Value.
type Driver struct {
	Enabled    bool
	Type       DriverType
	Pivot, Tip int
	PLID       int
	Rad        float64
	SBase      float64
	Value      float64
	SweepStart float64
	SweepEnd   float64

	// Radius caches the last non-degenerate pivot-tip distance.
	Radius float64
}

// NewAngleDriver returns an enabled angle driver with default sweep range.
func NewAngleDriver(pivot, tip int, rad float64) Driver {
	return Driver{
		Enabled: true, Type: DriverAngle,
		Pivot: pivot, Tip: tip, PLID: NoID,
		Rad: rad, SweepEnd: 360,
	}
}

// NewTranslationDriver returns an enabled translation driver.
func NewTranslationDriver(plid int, sBase, value float64) Driver {
	return Driver{
		Enabled: true, Type: DriverTranslation,
		Pivot: NoID, Tip: NoID, PLID: plid,
		SBase: sBase, Value: value, SweepEnd: 360,
	}
}

// Target returns the offset a translation driver enforces.
func (d *Driver) Target() float64 { return d.SBase + d.Value }

// Output is a passively measured angle that closes the mechanism when no
// driver is active.
type Output struct {
	Enabled    bool
	Pivot, Tip int
	Rad        float64
}

// LoadType selects how a load contributes to the external force vector.
type LoadType string

const (
	LoadForce         LoadType = "force"
	LoadTorque        LoadType = "torque"
	LoadSpring        LoadType = "spring"
	LoadTorsionSpring LoadType = "torsion_spring"
)

// Load is an external load on point PID. Springs act between PID and RefPID.
type Load struct {
	Type     LoadType
	PID      int
	FX, FY   float64
	MZ       float64
	RefPID   int
	K        float64
	Theta0   float64 // radians
	Preload  float64
	FXExpr   string
	FYExpr   string
	MZExpr   string
	KExpr    string
	LoadExpr string
}

// MeasureType selects what a measurement reads.
type MeasureType string

const (
	MeasureAngle       MeasureType = "angle"
	MeasureJoint       MeasureType = "joint"
	MeasureTranslation MeasureType = "translation"
	MeasureExpression  MeasureType = "expression"
)

// Measure is a named derived signal.
type Measure struct {
	Type       MeasureType
	Name       string
	Pivot, Tip int
	I, J, K    int
	PLID       int
	Expr       string
	Unit       string
}

// LoadComponent selects a column of the joint-load table.
type LoadComponent string

const (
	ComponentFX  LoadComponent = "fx"
	ComponentFY  LoadComponent = "fy"
	ComponentMag LoadComponent = "mag"
)

// LoadMeasure reads one component of the joint load at a point.
type LoadMeasure struct {
	Name      string
	PID       int
	Component LoadComponent
}

// Model is a complete mechanism sketch.
//
// The zero value is not usable; use [New]. A Model is not safe for
// concurrent use.
type Model struct {
	Points       map[int]*Point
	Links        map[int]*Link
	Angles       map[int]*Angle
	Coincides    map[int]*Coincide
	PointLines   map[int]*PointLine
	PointSplines map[int]*PointSpline
	Splines      map[int]*Spline
	Bodies       map[int]*Body

	Drivers      []Driver
	Outputs      []Output
	Loads        []Load
	Measures     []Measure
	LoadMeasures []LoadMeasure
	Parameters   Parameters

	// ExprErrors maps a field key (see [FieldKey]) to the last evaluation
	// error for that field.
	ExprErrors map[string]string

	observers map[int]Observer
	nextObs   int
}

// New returns an empty model.
func New() *Model {
	return &Model{
		Points:       make(map[int]*Point),
		Links:        make(map[int]*Link),
		Angles:       make(map[int]*Angle),
		Coincides:    make(map[int]*Coincide),
		PointLines:   make(map[int]*PointLine),
		PointSplines: make(map[int]*PointSpline),
		Splines:      make(map[int]*Spline),
		Bodies:       make(map[int]*Body),
		ExprErrors:   make(map[string]string),
	}
}

// =============================================================================
// Building
// =============================================================================

// AddPoint inserts a point.
func (m *Model) AddPoint(p Point) (*Point, error) {
	if _, ok := m.Points[p.ID]; ok || p.ID < 0 {
		return nil, ErrDuplicateID
	}
	if err := finite(p.X); err != nil {
		return nil, err
	}
	if err := finite(p.Y); err != nil {
		return nil, err
	}
	pt := p
	m.Points[p.ID] = &pt
	return &pt, nil
}

// AddLink inserts a link; both endpoints must exist.
func (m *Model) AddLink(l *Link) error {
	if _, ok := m.Links[l.ID]; ok {
		return ErrDuplicateID
	}
	if err := m.requirePoints(l.I, l.J); err != nil {
		return err
	}
	m.Links[l.ID] = l
	return nil
}

// AddAngle inserts an angle constraint.
func (m *Model) AddAngle(a *Angle) error {
	if _, ok := m.Angles[a.ID]; ok {
		return ErrDuplicateID
	}
	if err := m.requirePoints(a.I, a.J, a.K); err != nil {
		return err
	}
	m.Angles[a.ID] = a
	return nil
}

// AddCoincide inserts a coincidence.
func (m *Model) AddCoincide(c *Coincide) error {
	if _, ok := m.Coincides[c.ID]; ok {
		return ErrDuplicateID
	}
	if err := m.requirePoints(c.A, c.B); err != nil {
		return err
	}
	m.Coincides[c.ID] = c
	return nil
}

// AddPointLine inserts a point-on-line constraint.
func (m *Model) AddPointLine(pl *PointLine) error {
	if _, ok := m.PointLines[pl.ID]; ok {
		return ErrDuplicateID
	}
	if err := m.requirePoints(pl.P, pl.I, pl.J); err != nil {
		return err
	}
	m.PointLines[pl.ID] = pl
	return nil
}

// AddSpline inserts a spline.
func (m *Model) AddSpline(s *Spline) error {
	if _, ok := m.Splines[s.ID]; ok {
		return ErrDuplicateID
	}
	if err := m.requirePoints(s.Points...); err != nil {
		return err
	}
	m.Splines[s.ID] = s
	return nil
}

// AddPointSpline inserts a point-on-spline constraint.
func (m *Model) AddPointSpline(ps *PointSpline) error {
	if _, ok := m.PointSplines[ps.ID]; ok {
		return ErrDuplicateID
	}
	if err := m.requirePoints(ps.P); err != nil {
		return err
	}
	m.PointSplines[ps.ID] = ps
	return nil
}

// AddBody inserts a body and freezes its rigid edges from the current
// member positions.
func (m *Model) AddBody(b *Body) error {
	if _, ok := m.Bodies[b.ID]; ok {
		return ErrDuplicateID
	}
	if err := m.requirePoints(b.Members...); err != nil {
		return err
	}
	m.Bodies[b.ID] = b
	m.FreezeBody(b)
	return nil
}

// FreezeBody recomputes all pairwise rigid edges of b from the current
// positions of its members. Missing members are skipped.
func (m *Model) FreezeBody(b *Body) {
	b.RigidEdges = b.RigidEdges[:0]
	for x, i := range b.Members {
		pi, ok := m.Points[i]
		if !ok {
			continue
		}
		for _, j := range b.Members[x+1:] {
			pj, ok := m.Points[j]
			if !ok || i == j {
				continue
			}
			b.RigidEdges = append(b.RigidEdges, RigidEdge{I: i, J: j, L: geom.Dist(pi.Pos(), pj.Pos())})
		}
	}
}

func (m *Model) requirePoints(ids ...int) error {
	for _, id := range ids {
		if _, ok := m.Points[id]; !ok {
			return ErrUnknownPoint
		}
	}
	return nil
}

// NextPointID returns one more than the largest point id.
func (m *Model) NextPointID() int {
	return nextID(m.Points)
}

func nextID[T any](mp map[int]*T) int {
	next := 0
	for id := range mp {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// =============================================================================
// Queries
// =============================================================================

// Pos returns the position of point id.
func (m *Model) Pos(id int) (r2.Vec, bool) {
	p, ok := m.Points[id]
	if !ok {
		return r2.Vec{}, false
	}
	return p.Pos(), true
}

// Has reports whether all ids are present points.
func (m *Model) Has(ids ...int) bool {
	for _, id := range ids {
		if _, ok := m.Points[id]; !ok {
			return false
		}
	}
	return true
}

// IsFixed reports whether point id exists and is fixed.
func (m *Model) IsFixed(id int) bool {
	p, ok := m.Points[id]
	return ok && p.Fixed
}

// Heading returns the absolute angle of tip around pivot. It reports false
// for missing or coincident points.
func (m *Model) Heading(pivot, tip int) (float64, bool) {
	a, ok1 := m.Pos(pivot)
	b, ok2 := m.Pos(tip)
	if !ok1 || !ok2 {
		return 0, false
	}
	d := r2.Sub(b, a)
	if math.Abs(d.X)+math.Abs(d.Y) < geom.Degenerate {
		return 0, false
	}
	return math.Atan2(d.Y, d.X), true
}

// JointAngle returns the signed angle at j from (i-j) to (k-j).
func (m *Model) JointAngle(i, j, k int) (float64, bool) {
	pi, ok1 := m.Pos(i)
	pj, ok2 := m.Pos(j)
	pk, ok3 := m.Pos(k)
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	v1, v2 := r2.Sub(pi, pj), r2.Sub(pk, pj)
	if r2.Norm(v1) < geom.Degenerate || r2.Norm(v2) < geom.Degenerate {
		return 0, false
	}
	return geom.AngleBetween(v1, v2), true
}

// CurrentOffset returns the signed distance of P from I along unit(J-I).
func (m *Model) CurrentOffset(pl *PointLine) (float64, bool) {
	p, ok1 := m.Pos(pl.P)
	a, ok2 := m.Pos(pl.I)
	b, ok3 := m.Pos(pl.J)
	if !ok1 || !ok2 || !ok3 {
		return 0, false
	}
	ab := r2.Sub(b, a)
	n := r2.Norm(ab)
	if n < geom.Degenerate {
		return 0, false
	}
	return r2.Dot(r2.Sub(p, a), r2.Scale(1/n, ab)), true
}

// SplineControls returns the present control-point ids of spline s.
func (m *Model) SplineControls(s *Spline) []int {
	out := make([]int, 0, len(s.Points))
	for _, id := range s.Points {
		if _, ok := m.Points[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// ActiveDrivers returns pointers to enabled drivers in declaration order.
func (m *Model) ActiveDrivers() []*Driver {
	var out []*Driver
	for i := range m.Drivers {
		if m.Drivers[i].Enabled {
			out = append(out, &m.Drivers[i])
		}
	}
	return out
}

// ActiveOutputs returns pointers to enabled outputs in declaration order.
func (m *Model) ActiveOutputs() []*Output {
	var out []*Output
	for i := range m.Outputs {
		if m.Outputs[i].Enabled {
			out = append(out, &m.Outputs[i])
		}
	}
	return out
}

// PrimaryDriver returns drivers[0], or nil.
func (m *Model) PrimaryDriver() *Driver {
	if len(m.Drivers) == 0 {
		return nil
	}
	return &m.Drivers[0]
}

// PrimaryOutput returns outputs[0], or nil.
func (m *Model) PrimaryOutput() *Output {
	if len(m.Outputs) == 0 {
		return nil
	}
	return &m.Outputs[0]
}

// DriveSources returns what a solve hard-enforces: the active drivers, or,
// when no driver is active, the active outputs as angle drivers. Driver
// sources point into the model; output sources are fresh copies.
func (m *Model) DriveSources() (sources []*Driver, fromOutputs bool) {
	if ds := m.ActiveDrivers(); len(ds) > 0 {
		return ds, false
	}
	for _, o := range m.ActiveOutputs() {
		d := NewAngleDriver(o.Pivot, o.Tip, o.Rad)
		sources = append(sources, &d)
	}
	return sources, len(sources) > 0
}

// TranslationTargets maps point-line ids to the offset enforced by active
// translation drivers.
func (m *Model) TranslationTargets() map[int]float64 {
	out := make(map[int]float64)
	for _, d := range m.ActiveDrivers() {
		if d.Type != DriverTranslation {
			continue
		}
		if _, ok := m.PointLines[d.PLID]; ok {
			out[d.PLID] = d.Target()
		}
	}
	return out
}

// RigidEdges returns the edges of all bodies in ascending body id order.
func (m *Model) RigidEdges() []RigidEdge {
	var out []RigidEdge
	for _, b := range m.SortedBodies() {
		out = append(out, b.RigidEdges...)
	}
	return out
}

// Constraints returns every typed constraint grouped by kind, each group in
// ascending id order.
func (m *Model) Constraints() []Constraint {
	var out []Constraint
	for _, c := range m.SortedLinks() {
		out = append(out, c)
	}
	for _, c := range m.SortedAngles() {
		out = append(out, c)
	}
	for _, c := range m.SortedCoincides() {
		out = append(out, c)
	}
	for _, c := range m.SortedPointLines() {
		out = append(out, c)
	}
	for _, c := range m.SortedPointSplines() {
		out = append(out, c)
	}
	return out
}

// PointIDs returns all point ids in ascending order.
func (m *Model) PointIDs() []int {
	return slices.Sorted(maps.Keys(m.Points))
}

func sortedValues[T any](mp map[int]*T) []*T {
	out := make([]*T, 0, len(mp))
	for _, id := range slices.Sorted(maps.Keys(mp)) {
		out = append(out, mp[id])
	}
	return out
}

func (m *Model) SortedPoints() []*Point             { return sortedValues(m.Points) }
func (m *Model) SortedLinks() []*Link               { return sortedValues(m.Links) }
func (m *Model) SortedAngles() []*Angle             { return sortedValues(m.Angles) }
func (m *Model) SortedCoincides() []*Coincide       { return sortedValues(m.Coincides) }
func (m *Model) SortedPointLines() []*PointLine     { return sortedValues(m.PointLines) }
func (m *Model) SortedPointSplines() []*PointSpline { return sortedValues(m.PointSplines) }
func (m *Model) SortedSplines() []*Spline           { return sortedValues(m.Splines) }
func (m *Model) SortedBodies() []*Body              { return sortedValues(m.Bodies) }

// =============================================================================
// Diagnostics and snapshots
// =============================================================================

// ResetOver clears every Over flag.
func (m *Model) ResetOver() {
	for _, c := range m.Links {
		c.Over = false
	}
	for _, c := range m.Angles {
		c.Over = false
	}
	for _, c := range m.Coincides {
		c.Over = false
	}
	for _, c := range m.PointLines {
		c.Over = false
	}
	for _, c := range m.PointSplines {
		c.Over = false
	}
}

// OverCount returns how many constraints are flagged over.
func (m *Model) OverCount() int {
	n := 0
	for _, c := range m.Links {
		if c.Over {
			n++
		}
	}
	for _, c := range m.Angles {
		if c.Over {
			n++
		}
	}
	for _, c := range m.Coincides {
		if c.Over {
			n++
		}
	}
	for _, c := range m.PointLines {
		if c.Over {
			n++
		}
	}
	for _, c := range m.PointSplines {
		if c.Over {
			n++
		}
	}
	return n
}

// Positions captures the current pose.
func (m *Model) Positions() map[int]r2.Vec {
	out := make(map[int]r2.Vec, len(m.Points))
	for id, p := range m.Points {
		out[id] = p.Pos()
	}
	return out
}

// RestorePositions writes a captured pose back. Points absent from pose are
// left untouched.
func (m *Model) RestorePositions(pose map[int]r2.Vec) {
	for id, v := range pose {
		if p, ok := m.Points[id]; ok {
			p.SetPos(v)
		}
	}
}

// Clone returns a deep copy without observers.
func (m *Model) Clone() *Model {
	c := New()
	for id, p := range m.Points {
		cp := *p
		c.Points[id] = &cp
	}
	for id, v := range m.Links {
		cp := *v
		c.Links[id] = &cp
	}
	for id, v := range m.Angles {
		cp := *v
		c.Angles[id] = &cp
	}
	for id, v := range m.Coincides {
		cp := *v
		c.Coincides[id] = &cp
	}
	for id, v := range m.PointLines {
		cp := *v
		if v.S != nil {
			cp.SetOffset(*v.S)
		}
		c.PointLines[id] = &cp
	}
	for id, v := range m.PointSplines {
		cp := *v
		c.PointSplines[id] = &cp
	}
	for id, v := range m.Splines {
		cp := *v
		cp.Points = slices.Clone(v.Points)
		c.Splines[id] = &cp
	}
	for id, v := range m.Bodies {
		cp := *v
		cp.Members = slices.Clone(v.Members)
		cp.RigidEdges = slices.Clone(v.RigidEdges)
		c.Bodies[id] = &cp
	}
	c.Drivers = slices.Clone(m.Drivers)
	c.Outputs = slices.Clone(m.Outputs)
	c.Loads = slices.Clone(m.Loads)
	c.Measures = slices.Clone(m.Measures)
	c.LoadMeasures = slices.Clone(m.LoadMeasures)
	c.Parameters = m.Parameters.Clone()
	maps.Copy(c.ExprErrors, m.ExprErrors)
	return c
}
