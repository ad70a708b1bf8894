package model

import (
	"fmt"
	"math"

	"github.com/matzehuels/linkage/pkg/geom"
)

// NoID marks an absent point, spline or point-line reference.
const NoID = -1

// Kind identifies a constraint family.
type Kind string

const (
	KindLink        Kind = "link"
	KindAngle       Kind = "angle"
	KindCoincide    Kind = "coincide"
	KindPointLine   Kind = "point_line"
	KindPointSpline Kind = "point_spline"
)

// Constraint is implemented by every typed constraint stored in a [Model].
type Constraint interface {
	// Kind reports the constraint family.
	Kind() Kind
	// PointIDs returns the point ids the constraint reads or moves directly.
	// For point-on-spline constraints this is the constrained point only;
	// control points are resolved through the spline.
	PointIDs() []int
}

// Link is a distance constraint |Pj - Pi| = L. A reference link (Ref) is
// inactive and only reports its length.
type Link struct {
	ID    int
	I, J  int
	L     float64
	Ref   bool
	LExpr string

	// Over is a diagnostic recomputed by every solve.
	Over bool
}

// Angle fixes the signed angle at vertex J from (I-J) to (K-J).
type Angle struct {
	ID      int
	I, J, K int
	Rad     float64 // target in (-π, π]
	Enabled bool
	DegExpr string

	Over bool
}

// Coincide forces A and B onto the same position.
type Coincide struct {
	ID      int
	A, B    int
	Enabled bool

	Over bool
}

// PointLine keeps P on the line through I and J. With S set, P is also held
// at signed distance *S from I along unit(J-I).
type PointLine struct {
	ID      int
	P, I, J int
	Enabled bool
	S       *float64
	SExpr   string
	Name    string

	Over bool
}

// PointSpline keeps P on the spline with id Spline.
type PointSpline struct {
	ID      int
	P       int
	Spline  int
	Enabled bool

	Over bool
}

func (*Link) Kind() Kind        { return KindLink }
func (*Angle) Kind() Kind       { return KindAngle }
func (*Coincide) Kind() Kind    { return KindCoincide }
func (*PointLine) Kind() Kind   { return KindPointLine }
func (*PointSpline) Kind() Kind { return KindPointSpline }

func (l *Link) PointIDs() []int         { return []int{l.I, l.J} }
func (a *Angle) PointIDs() []int        { return []int{a.I, a.J, a.K} }
func (c *Coincide) PointIDs() []int     { return []int{c.A, c.B} }
func (pl *PointLine) PointIDs() []int   { return []int{pl.P, pl.I, pl.J} }
func (ps *PointSpline) PointIDs() []int { return []int{ps.P} }

// HasOffset reports whether the point-line also fixes the arc position.
func (pl *PointLine) HasOffset() bool { return pl.S != nil }

// Offset returns the offset value, or 0 when absent.
func (pl *PointLine) Offset() float64 {
	if pl.S == nil {
		return 0
	}
	return *pl.S
}

// SetOffset sets the offset, creating it when absent.
func (pl *PointLine) SetOffset(s float64) {
	v := s
	pl.S = &v
}

// NewLink validates and builds a distance constraint.
func NewLink(id, i, j int, length float64) (*Link, error) {
	if err := distinct(i, j); err != nil {
		return nil, fmt.Errorf("link %d: %w", id, err)
	}
	if err := finite(length); err != nil {
		return nil, fmt.Errorf("link %d: %w", id, err)
	}
	return &Link{ID: id, I: i, J: j, L: length}, nil
}

// NewAngle validates and builds an angle constraint. The target is wrapped
// into (-π, π].
func NewAngle(id, i, j, k int, rad float64) (*Angle, error) {
	if err := distinct(i, j, k); err != nil {
		return nil, fmt.Errorf("angle %d: %w", id, err)
	}
	if err := finite(rad); err != nil {
		return nil, fmt.Errorf("angle %d: %w", id, err)
	}
	return &Angle{ID: id, I: i, J: j, K: k, Rad: geom.WrapAngle(rad), Enabled: true}, nil
}

// NewCoincide validates and builds a coincidence.
func NewCoincide(id, a, b int) (*Coincide, error) {
	if err := distinct(a, b); err != nil {
		return nil, fmt.Errorf("coincide %d: %w", id, err)
	}
	return &Coincide{ID: id, A: a, B: b, Enabled: true}, nil
}

// NewPointLine validates and builds a point-on-line constraint. A nil s
// leaves the point free to slide.
func NewPointLine(id, p, i, j int, s *float64) (*PointLine, error) {
	if err := distinct(p, i, j); err != nil {
		return nil, fmt.Errorf("point line %d: %w", id, err)
	}
	pl := &PointLine{ID: id, P: p, I: i, J: j, Enabled: true}
	if s != nil {
		if err := finite(*s); err != nil {
			return nil, fmt.Errorf("point line %d: %w", id, err)
		}
		pl.SetOffset(*s)
	}
	return pl, nil
}

// NewPointSpline builds a point-on-spline constraint.
func NewPointSpline(id, p, spline int) (*PointSpline, error) {
	if p < 0 || spline < 0 {
		return nil, fmt.Errorf("point spline %d: %w", id, ErrInvalidReference)
	}
	return &PointSpline{ID: id, P: p, Spline: spline, Enabled: true}, nil
}

func distinct(ids ...int) error {
	for i, a := range ids {
		if a < 0 {
			return ErrInvalidReference
		}
		for _, b := range ids[i+1:] {
			if a == b {
				return ErrRepeatedPoint
			}
		}
	}
	return nil
}

func finite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNotFinite
	}
	return nil
}
