package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/matzehuels/linkage/pkg/geom"
)

// Evaluator evaluates a field expression against the parameter table.
type Evaluator interface {
	Eval(src string, params map[string]float64) (float64, error)
}

// FieldKey names an expression-bound field in [Model.ExprErrors], e.g.
// "point/3/x" or "load/0/fx".
func FieldKey(kind string, id int, field string) string {
	return fmt.Sprintf("%s/%d/%s", kind, id, field)
}

// Recompute re-evaluates every expression-bound field from the parameter
// table. A failing expression keeps the previous value and records the error
// under the field key; a later success clears it. It returns the number of
// failed fields.
func (m *Model) Recompute(ev Evaluator) int {
	if ev == nil {
		return 0
	}
	if m.ExprErrors == nil {
		m.ExprErrors = make(map[string]string)
	}
	params := m.Parameters.Map()
	failed := 0

	apply := func(key, src string, set func(float64)) {
		if strings.TrimSpace(src) == "" {
			delete(m.ExprErrors, key)
			return
		}
		v, err := ev.Eval(src, params)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = ErrNotFinite
		}
		if err != nil {
			m.ExprErrors[key] = err.Error()
			failed++
			return
		}
		delete(m.ExprErrors, key)
		set(v)
	}

	for _, p := range m.SortedPoints() {
		apply(FieldKey("point", p.ID, "x"), p.XExpr, func(v float64) { p.X = v })
		apply(FieldKey("point", p.ID, "y"), p.YExpr, func(v float64) { p.Y = v })
	}
	for _, l := range m.SortedLinks() {
		if l.Ref {
			continue
		}
		apply(FieldKey("link", l.ID, "L"), l.LExpr, func(v float64) { l.L = v })
	}
	for _, a := range m.SortedAngles() {
		apply(FieldKey("angle", a.ID, "deg"), a.DegExpr, func(v float64) {
			a.Rad = geom.WrapAngle(geom.Radians(v))
		})
	}
	for _, pl := range m.SortedPointLines() {
		if !pl.HasOffset() {
			continue
		}
		apply(FieldKey("point_line", pl.ID, "s"), pl.SExpr, func(v float64) { pl.SetOffset(v) })
	}
	for i := range m.Loads {
		ld := &m.Loads[i]
		apply(FieldKey("load", i, "fx"), ld.FXExpr, func(v float64) { ld.FX = v })
		apply(FieldKey("load", i, "fy"), ld.FYExpr, func(v float64) { ld.FY = v })
		apply(FieldKey("load", i, "mz"), ld.MZExpr, func(v float64) { ld.MZ = v })
		apply(FieldKey("load", i, "k"), ld.KExpr, func(v float64) { ld.K = v })
		apply(FieldKey("load", i, "load"), ld.LoadExpr, func(v float64) { ld.Preload = v })
	}
	return failed
}

// HasExpressions reports whether any field is expression-bound.
func (m *Model) HasExpressions() bool {
	for _, p := range m.Points {
		if p.XExpr != "" || p.YExpr != "" {
			return true
		}
	}
	for _, l := range m.Links {
		if l.LExpr != "" {
			return true
		}
	}
	for _, a := range m.Angles {
		if a.DegExpr != "" {
			return true
		}
	}
	for _, pl := range m.PointLines {
		if pl.SExpr != "" {
			return true
		}
	}
	for _, ld := range m.Loads {
		if ld.FXExpr != "" || ld.FYExpr != "" || ld.MZExpr != "" || ld.KExpr != "" || ld.LoadExpr != "" {
			return true
		}
	}
	return false
}
