package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	lerrors "github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/geom"
)

// document is the persisted project schema.
type document struct {
	Points       []pointDoc       `json:"points"`
	Links        []linkDoc        `json:"links"`
	Angles       []angleDoc       `json:"angles"`
	Coincides    []coincideDoc    `json:"coincides"`
	PointLines   []pointLineDoc   `json:"point_lines"`
	PointSplines []pointSplineDoc `json:"point_splines"`
	Splines      []splineDoc      `json:"splines"`
	Bodies       []bodyDoc        `json:"bodies"`
	Drivers      []driverDoc      `json:"drivers"`
	Outputs      []outputDoc      `json:"outputs"`
	Loads        []loadDoc        `json:"loads"`
	Measures     []measureDoc     `json:"measures"`
	LoadMeasures []loadMeasureDoc `json:"load_measures"`
	Parameters   []parameterDoc   `json:"parameters"`

	// Read-only legacy fields.
	Constraints []legacyConstraint `json:"constraints,omitempty"`
	Driver      *driverDoc         `json:"driver,omitempty"`
	Output      *outputDoc         `json:"output,omitempty"`
}

type pointDoc struct {
	ID     int     `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Fixed  bool    `json:"fixed"`
	Hidden bool    `json:"hidden"`
	XExpr  string  `json:"x_expr,omitempty"`
	YExpr  string  `json:"y_expr,omitempty"`
}

type linkDoc struct {
	ID    int     `json:"id"`
	I     int     `json:"i"`
	J     int     `json:"j"`
	L     float64 `json:"L"`
	Ref   bool    `json:"ref"`
	LExpr string  `json:"L_expr,omitempty"`
}

type angleDoc struct {
	ID      int     `json:"id"`
	I       int     `json:"i"`
	J       int     `json:"j"`
	K       int     `json:"k"`
	Deg     float64 `json:"deg"`
	Enabled *bool   `json:"enabled,omitempty"`
	DegExpr string  `json:"deg_expr,omitempty"`
}

type coincideDoc struct {
	ID      int   `json:"id"`
	A       int   `json:"a"`
	B       int   `json:"b"`
	Enabled *bool `json:"enabled,omitempty"`
}

type pointLineDoc struct {
	ID      int      `json:"id"`
	P       int      `json:"p"`
	I       int      `json:"i"`
	J       int      `json:"j"`
	Enabled *bool    `json:"enabled,omitempty"`
	S       *float64 `json:"s,omitempty"`
	SExpr   string   `json:"s_expr,omitempty"`
	Name    string   `json:"name,omitempty"`
}

type pointSplineDoc struct {
	ID      int   `json:"id"`
	P       int   `json:"p"`
	S       int   `json:"s"`
	Enabled *bool `json:"enabled,omitempty"`
}

type splineDoc struct {
	ID     int   `json:"id"`
	Points []int `json:"points"`
	Closed bool  `json:"closed"`
	Hidden bool  `json:"hidden,omitempty"`
}

type bodyDoc struct {
	ID         int          `json:"id"`
	Points     []int        `json:"points"`
	RigidEdges [][3]float64 `json:"rigid_edges"`
}

type driverDoc struct {
	Enabled    *bool    `json:"enabled,omitempty"`
	Type       string   `json:"type"`
	Pivot      *int     `json:"pivot,omitempty"`
	Tip        *int     `json:"tip,omitempty"`
	PLID       *int     `json:"plid,omitempty"`
	Rad        *float64 `json:"rad,omitempty"`
	Value      float64  `json:"value"`
	SBase      float64  `json:"s_base"`
	SweepStart *float64 `json:"sweep_start,omitempty"`
	SweepEnd   *float64 `json:"sweep_end,omitempty"`
}

type outputDoc struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Pivot   *int     `json:"pivot,omitempty"`
	Tip     *int     `json:"tip,omitempty"`
	Rad     *float64 `json:"rad,omitempty"`
}

type loadDoc struct {
	Type     string  `json:"type"`
	PID      int     `json:"pid"`
	FX       float64 `json:"fx"`
	FY       float64 `json:"fy"`
	MZ       float64 `json:"mz"`
	RefPID   *int    `json:"ref_pid,omitempty"`
	K        float64 `json:"k,omitempty"`
	Theta0   float64 `json:"theta0,omitempty"`
	Load     float64 `json:"load,omitempty"`
	FXExpr   string  `json:"fx_expr,omitempty"`
	FYExpr   string  `json:"fy_expr,omitempty"`
	MZExpr   string  `json:"mz_expr,omitempty"`
	KExpr    string  `json:"k_expr,omitempty"`
	LoadExpr string  `json:"load_expr,omitempty"`
}

type measureDoc struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Pivot *int   `json:"pivot,omitempty"`
	Tip   *int   `json:"tip,omitempty"`
	I     *int   `json:"i,omitempty"`
	J     *int   `json:"j,omitempty"`
	K     *int   `json:"k,omitempty"`
	PLID  *int   `json:"plid,omitempty"`
	Expr  string `json:"expr,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

type loadMeasureDoc struct {
	Name      string `json:"name"`
	PID       int    `json:"pid"`
	Component string `json:"component"`
}

type parameterDoc struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// legacyConstraint is one entry of the unified "constraints" array written
// by older projects.
type legacyConstraint struct {
	Type    string   `json:"type"`
	ID      int      `json:"id"`
	I       *int     `json:"i"`
	J       *int     `json:"j"`
	K       *int     `json:"k"`
	A       *int     `json:"a"`
	B       *int     `json:"b"`
	P       *int     `json:"p"`
	S       *float64 `json:"s"`
	Value   *float64 `json:"value"`
	Enabled *bool    `json:"enabled"`
	Hidden  bool     `json:"hidden"`
}

// ReadJSON decodes a project from r.
//
// A non-empty legacy "constraints" array replaces the typed links, angles,
// coincides, point_lines and point_splines arrays.
// Splines are always read from "splines". A legacy single "driver" or
// "output" object is used when the corresponding list is empty. Angle
// drivers and outputs without a stored "rad" take their angle from the
// current geometry.
//
// Duplicate ids are rejected. Dangling references are kept; solvers skip
// them.
func ReadJSON(r io.Reader) (*Model, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, lerrors.Wrap(lerrors.ErrCodeInvalidModel, err, "decode project")
	}
	m, err := doc.toModel()
	if err != nil {
		return nil, lerrors.Wrap(lerrors.ErrCodeInvalidModel, err, "load project")
	}
	return m, nil
}

// ImportJSON reads the project file at path.
func ImportJSON(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lerrors.Wrap(lerrors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ReadJSON(f)
}

// WriteJSON encodes m as indented JSON. Over flags and expression errors are
// not persisted.
func WriteJSON(w io.Writer, m *Model) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fromModel(m)); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON writes m to the file at path.
func ExportJSON(path string, m *Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteJSON(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Marshal returns the canonical JSON encoding of m. Cache keys are derived
// from it.
func Marshal(m *Model) ([]byte, error) {
	return json.Marshal(fromModel(m))
}

// Unmarshal decodes a project from data.
func Unmarshal(data []byte) (*Model, error) {
	return ReadJSON(bytes.NewReader(data))
}

// =============================================================================
// Legacy split
// =============================================================================

// legacySplit holds the typed arrays recovered from a unified constraints list.
type legacySplit struct {
	Links        []*Link
	Angles       []*Angle
	Coincides    []*Coincide
	PointLines   []*PointLine
	PointSplines []*PointSpline
}

// splitLegacy converts a unified constraints list into typed constraints.
// "length" entries map value→L (default 1) and ref = !enabled; "angle" maps
// value (degrees) to the target; point-line and point-spline accept their
// historical aliases. Unknown types are ignored.
func splitLegacy(items []legacyConstraint) legacySplit {
	var out legacySplit
	id := func(p *int) int {
		if p == nil {
			return NoID
		}
		return *p
	}
	enabled := func(b *bool) bool { return b == nil || *b }

	for _, c := range items {
		switch strings.ToLower(strings.TrimSpace(c.Type)) {
		case "length":
			L := 1.0
			if c.Value != nil {
				L = *c.Value
			}
			out.Links = append(out.Links, &Link{ID: c.ID, I: id(c.I), J: id(c.J), L: L, Ref: !enabled(c.Enabled)})
		case "angle":
			deg := 0.0
			if c.Value != nil {
				deg = *c.Value
			}
			out.Angles = append(out.Angles, &Angle{
				ID: c.ID, I: id(c.I), J: id(c.J), K: id(c.K),
				Rad: geom.WrapAngle(geom.Radians(deg)), Enabled: enabled(c.Enabled),
			})
		case "coincide":
			out.Coincides = append(out.Coincides, &Coincide{ID: c.ID, A: id(c.A), B: id(c.B), Enabled: enabled(c.Enabled)})
		case "point_line", "pointonline", "point_line_constraint":
			out.PointLines = append(out.PointLines, &PointLine{ID: c.ID, P: id(c.P), I: id(c.I), J: id(c.J), Enabled: enabled(c.Enabled)})
		case "point_spline", "pointonspline", "point_spline_constraint":
			sid := NoID
			if c.S != nil {
				sid = int(*c.S)
			}
			out.PointSplines = append(out.PointSplines, &PointSpline{ID: c.ID, P: id(c.P), Spline: sid, Enabled: enabled(c.Enabled)})
		}
	}
	return out
}

// =============================================================================
// Conversion
// =============================================================================

func (doc *document) toModel() (*Model, error) {
	m := New()
	for _, p := range doc.Points {
		if _, ok := m.Points[p.ID]; ok {
			return nil, fmt.Errorf("point %d: %w", p.ID, ErrDuplicateID)
		}
		m.Points[p.ID] = &Point{ID: p.ID, X: p.X, Y: p.Y, Fixed: p.Fixed, Hidden: p.Hidden, XExpr: p.XExpr, YExpr: p.YExpr}
	}

	var typed legacySplit
	if len(doc.Constraints) > 0 {
		typed = splitLegacy(doc.Constraints)
	} else {
		for _, l := range doc.Links {
			typed.Links = append(typed.Links, &Link{ID: l.ID, I: l.I, J: l.J, L: l.L, Ref: l.Ref, LExpr: l.LExpr})
		}
		for _, a := range doc.Angles {
			typed.Angles = append(typed.Angles, &Angle{
				ID: a.ID, I: a.I, J: a.J, K: a.K,
				Rad: geom.WrapAngle(geom.Radians(a.Deg)), Enabled: boolOr(a.Enabled, true), DegExpr: a.DegExpr,
			})
		}
		for _, c := range doc.Coincides {
			typed.Coincides = append(typed.Coincides, &Coincide{ID: c.ID, A: c.A, B: c.B, Enabled: boolOr(c.Enabled, true)})
		}
		for _, pl := range doc.PointLines {
			c := &PointLine{ID: pl.ID, P: pl.P, I: pl.I, J: pl.J, Enabled: boolOr(pl.Enabled, true), SExpr: pl.SExpr, Name: pl.Name}
			if pl.S != nil {
				c.SetOffset(*pl.S)
			} else if pl.SExpr != "" {
				c.SetOffset(0)
			}
			typed.PointLines = append(typed.PointLines, c)
		}
		for _, ps := range doc.PointSplines {
			typed.PointSplines = append(typed.PointSplines, &PointSpline{ID: ps.ID, P: ps.P, Spline: ps.S, Enabled: boolOr(ps.Enabled, true)})
		}
	}

	for _, l := range typed.Links {
		if _, ok := m.Links[l.ID]; ok {
			return nil, fmt.Errorf("link %d: %w", l.ID, ErrDuplicateID)
		}
		m.Links[l.ID] = l
	}
	for _, a := range typed.Angles {
		if _, ok := m.Angles[a.ID]; ok {
			return nil, fmt.Errorf("angle %d: %w", a.ID, ErrDuplicateID)
		}
		m.Angles[a.ID] = a
	}
	for _, c := range typed.Coincides {
		if _, ok := m.Coincides[c.ID]; ok {
			return nil, fmt.Errorf("coincide %d: %w", c.ID, ErrDuplicateID)
		}
		m.Coincides[c.ID] = c
	}
	for _, pl := range typed.PointLines {
		if _, ok := m.PointLines[pl.ID]; ok {
			return nil, fmt.Errorf("point line %d: %w", pl.ID, ErrDuplicateID)
		}
		m.PointLines[pl.ID] = pl
	}
	for _, ps := range typed.PointSplines {
		if _, ok := m.PointSplines[ps.ID]; ok {
			return nil, fmt.Errorf("point spline %d: %w", ps.ID, ErrDuplicateID)
		}
		m.PointSplines[ps.ID] = ps
	}

	for _, s := range doc.Splines {
		if _, ok := m.Splines[s.ID]; ok {
			return nil, fmt.Errorf("spline %d: %w", s.ID, ErrDuplicateID)
		}
		m.Splines[s.ID] = &Spline{ID: s.ID, Points: append([]int(nil), s.Points...), Closed: s.Closed, Hidden: s.Hidden}
	}
	for _, b := range doc.Bodies {
		if _, ok := m.Bodies[b.ID]; ok {
			return nil, fmt.Errorf("body %d: %w", b.ID, ErrDuplicateID)
		}
		body := &Body{ID: b.ID, Members: append([]int(nil), b.Points...)}
		if b.RigidEdges == nil {
			m.FreezeBody(body)
		} else {
			for _, e := range b.RigidEdges {
				body.RigidEdges = append(body.RigidEdges, RigidEdge{I: int(e[0]), J: int(e[1]), L: e[2]})
			}
		}
		m.Bodies[b.ID] = body
	}

	drivers := doc.Drivers
	if len(drivers) == 0 && doc.Driver != nil && boolOr(doc.Driver.Enabled, true) {
		drivers = []driverDoc{*doc.Driver}
	}
	for _, d := range drivers {
		m.Drivers = append(m.Drivers, d.toDriver(m))
	}
	outputs := doc.Outputs
	if len(outputs) == 0 && doc.Output != nil && boolOr(doc.Output.Enabled, true) {
		outputs = []outputDoc{*doc.Output}
	}
	for _, o := range outputs {
		out := Output{Enabled: boolOr(o.Enabled, true), Pivot: intOr(o.Pivot, NoID), Tip: intOr(o.Tip, NoID)}
		if o.Rad != nil {
			out.Rad = *o.Rad
		} else if a, ok := m.Heading(out.Pivot, out.Tip); ok {
			out.Rad = a
		}
		m.Outputs = append(m.Outputs, out)
	}

	for _, l := range doc.Loads {
		m.Loads = append(m.Loads, Load{
			Type: LoadType(strings.ToLower(l.Type)), PID: l.PID,
			FX: l.FX, FY: l.FY, MZ: l.MZ, RefPID: intOr(l.RefPID, NoID),
			K: l.K, Theta0: l.Theta0, Preload: l.Load,
			FXExpr: l.FXExpr, FYExpr: l.FYExpr, MZExpr: l.MZExpr, KExpr: l.KExpr, LoadExpr: l.LoadExpr,
		})
	}
	for _, ms := range doc.Measures {
		m.Measures = append(m.Measures, Measure{
			Type: MeasureType(strings.ToLower(ms.Type)), Name: ms.Name,
			Pivot: intOr(ms.Pivot, NoID), Tip: intOr(ms.Tip, NoID),
			I: intOr(ms.I, NoID), J: intOr(ms.J, NoID), K: intOr(ms.K, NoID),
			PLID: intOr(ms.PLID, NoID), Expr: ms.Expr, Unit: ms.Unit,
		})
	}
	for _, lm := range doc.LoadMeasures {
		m.LoadMeasures = append(m.LoadMeasures, LoadMeasure{Name: lm.Name, PID: lm.PID, Component: LoadComponent(strings.ToLower(lm.Component))})
	}
	for _, p := range doc.Parameters {
		// Invalid names are dropped, matching how hosts edit the table.
		_ = m.Parameters.Set(p.Name, p.Value)
	}
	return m, nil
}

func (d driverDoc) toDriver(m *Model) Driver {
	drv := Driver{
		Enabled:  boolOr(d.Enabled, true),
		Type:     DriverType(strings.ToLower(d.Type)),
		Pivot:    intOr(d.Pivot, NoID),
		Tip:      intOr(d.Tip, NoID),
		PLID:     intOr(d.PLID, NoID),
		Value:    d.Value,
		SBase:    d.SBase,
		SweepEnd: 360,
	}
	if drv.Type == "" {
		drv.Type = DriverAngle
	}
	if d.SweepStart != nil {
		drv.SweepStart = *d.SweepStart
	}
	if d.SweepEnd != nil {
		drv.SweepEnd = *d.SweepEnd
	}
	if d.Rad != nil {
		drv.Rad = *d.Rad
	} else if drv.Type == DriverAngle {
		if a, ok := m.Heading(drv.Pivot, drv.Tip); ok {
			drv.Rad = a
		}
	}
	return drv
}

func fromModel(m *Model) document {
	doc := document{
		Points:       []pointDoc{},
		Links:        []linkDoc{},
		Angles:       []angleDoc{},
		Coincides:    []coincideDoc{},
		PointLines:   []pointLineDoc{},
		PointSplines: []pointSplineDoc{},
		Splines:      []splineDoc{},
		Bodies:       []bodyDoc{},
		Drivers:      []driverDoc{},
		Outputs:      []outputDoc{},
		Loads:        []loadDoc{},
		Measures:     []measureDoc{},
		LoadMeasures: []loadMeasureDoc{},
		Parameters:   []parameterDoc{},
	}
	for _, p := range m.SortedPoints() {
		doc.Points = append(doc.Points, pointDoc{ID: p.ID, X: p.X, Y: p.Y, Fixed: p.Fixed, Hidden: p.Hidden, XExpr: p.XExpr, YExpr: p.YExpr})
	}
	for _, l := range m.SortedLinks() {
		doc.Links = append(doc.Links, linkDoc{ID: l.ID, I: l.I, J: l.J, L: l.L, Ref: l.Ref, LExpr: l.LExpr})
	}
	for _, a := range m.SortedAngles() {
		doc.Angles = append(doc.Angles, angleDoc{
			ID: a.ID, I: a.I, J: a.J, K: a.K,
			Deg: geom.Degrees(a.Rad), Enabled: ptr(a.Enabled), DegExpr: a.DegExpr,
		})
	}
	for _, c := range m.SortedCoincides() {
		doc.Coincides = append(doc.Coincides, coincideDoc{ID: c.ID, A: c.A, B: c.B, Enabled: ptr(c.Enabled)})
	}
	for _, pl := range m.SortedPointLines() {
		d := pointLineDoc{ID: pl.ID, P: pl.P, I: pl.I, J: pl.J, Enabled: ptr(pl.Enabled), SExpr: pl.SExpr, Name: pl.Name}
		if pl.S != nil {
			d.S = ptr(*pl.S)
		}
		doc.PointLines = append(doc.PointLines, d)
	}
	for _, ps := range m.SortedPointSplines() {
		doc.PointSplines = append(doc.PointSplines, pointSplineDoc{ID: ps.ID, P: ps.P, S: ps.Spline, Enabled: ptr(ps.Enabled)})
	}
	for _, s := range m.SortedSplines() {
		doc.Splines = append(doc.Splines, splineDoc{ID: s.ID, Points: append([]int{}, s.Points...), Closed: s.Closed, Hidden: s.Hidden})
	}
	for _, b := range m.SortedBodies() {
		bd := bodyDoc{ID: b.ID, Points: append([]int{}, b.Members...), RigidEdges: [][3]float64{}}
		for _, e := range b.RigidEdges {
			bd.RigidEdges = append(bd.RigidEdges, [3]float64{float64(e.I), float64(e.J), e.L})
		}
		doc.Bodies = append(doc.Bodies, bd)
	}
	for _, d := range m.Drivers {
		dd := driverDoc{
			Enabled: ptr(d.Enabled), Type: string(d.Type),
			SweepStart: ptr(d.SweepStart), SweepEnd: ptr(d.SweepEnd),
		}
		switch d.Type {
		case DriverTranslation:
			dd.PLID = idPtr(d.PLID)
			dd.Value = d.Value
			dd.SBase = d.SBase
		default:
			dd.Pivot = idPtr(d.Pivot)
			dd.Tip = idPtr(d.Tip)
			dd.Rad = ptr(d.Rad)
		}
		doc.Drivers = append(doc.Drivers, dd)
	}
	for _, o := range m.Outputs {
		doc.Outputs = append(doc.Outputs, outputDoc{Enabled: ptr(o.Enabled), Pivot: idPtr(o.Pivot), Tip: idPtr(o.Tip), Rad: ptr(o.Rad)})
	}
	for _, l := range m.Loads {
		doc.Loads = append(doc.Loads, loadDoc{
			Type: string(l.Type), PID: l.PID, FX: l.FX, FY: l.FY, MZ: l.MZ,
			RefPID: idPtr(l.RefPID), K: l.K, Theta0: l.Theta0, Load: l.Preload,
			FXExpr: l.FXExpr, FYExpr: l.FYExpr, MZExpr: l.MZExpr, KExpr: l.KExpr, LoadExpr: l.LoadExpr,
		})
	}
	for _, ms := range m.Measures {
		md := measureDoc{Type: string(ms.Type), Name: ms.Name, Expr: ms.Expr, Unit: ms.Unit}
		switch ms.Type {
		case MeasureAngle:
			md.Pivot, md.Tip = idPtr(ms.Pivot), idPtr(ms.Tip)
		case MeasureJoint:
			md.I, md.J, md.K = idPtr(ms.I), idPtr(ms.J), idPtr(ms.K)
		case MeasureTranslation:
			md.PLID = idPtr(ms.PLID)
		}
		doc.Measures = append(doc.Measures, md)
	}
	for _, lm := range m.LoadMeasures {
		doc.LoadMeasures = append(doc.LoadMeasures, loadMeasureDoc{Name: lm.Name, PID: lm.PID, Component: string(lm.Component)})
	}
	for _, p := range m.Parameters.List() {
		doc.Parameters = append(doc.Parameters, parameterDoc{Name: p.Name, Value: p.Value})
	}
	return doc
}

func ptr[T any](v T) *T { return &v }

func idPtr(id int) *int {
	if id < 0 {
		return nil
	}
	return &id
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
