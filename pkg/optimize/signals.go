package optimize

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/matzehuels/linkage/pkg/expr"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// SignalSuccess is the per-frame step success history, 1 or 0.
const SignalSuccess = "success"

// Apply sets the design variables in vars on m and returns a warning for
// every variable that names a missing or reference-only item. Parameters
// are set first and followed by a recompute of every expression-bound
// field; direct coordinates, lengths and offsets are applied afterwards and
// win over expressions.
func Apply(m *model.Model, vars map[string]float64) []string {
	var warnings []string

	params := false
	for name, v := range vars {
		pname, ok := strings.CutPrefix(name, "Param.")
		if !ok {
			continue
		}
		if err := m.Parameters.Set(pname, v); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		params = true
	}
	if params {
		m.Recompute(expr.New())
	}

	for name, v := range vars {
		switch {
		case strings.HasPrefix(name, "Param."):
		case strings.HasPrefix(name, "PointLine"):
			id, ok := itemID(name, "PointLine", ".s")
			pl := m.PointLines[id]
			if !ok || pl == nil {
				warnings = append(warnings, fmt.Sprintf("%s: no such point line", name))
				continue
			}
			pl.SetOffset(v)
		case strings.HasPrefix(name, "Link"):
			id, ok := itemID(name, "Link", ".L")
			l := m.Links[id]
			if !ok || l == nil {
				warnings = append(warnings, fmt.Sprintf("%s: no such link", name))
				continue
			}
			if l.Ref {
				warnings = append(warnings, fmt.Sprintf("%s: reference link is not driven", name))
				continue
			}
			l.L = v
		case strings.HasPrefix(name, "P"):
			axis := name[len(name)-1:]
			id, ok := itemID(name, "P", "."+axis)
			p := m.Points[id]
			if !ok || p == nil {
				warnings = append(warnings, fmt.Sprintf("%s: no such point", name))
				continue
			}
			if axis == "x" {
				p.X = v
			} else {
				p.Y = v
			}
		default:
			warnings = append(warnings, fmt.Sprintf("%s: unknown design variable", name))
		}
	}
	slices.Sort(warnings)
	return warnings
}

func itemID(name, prefix, suffix string) (int, bool) {
	s, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	s, ok = strings.CutSuffix(s, suffix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(s)
	return id, err == nil
}

// ModelSignals returns the scalar design quantities of m under the names
// design variables use: point coordinates, link lengths, point-line offsets
// and parameters.
func ModelSignals(m *model.Model) map[string]any {
	out := make(map[string]any)
	for id, p := range m.Points {
		out[fmt.Sprintf("P%d.x", id)] = p.X
		out[fmt.Sprintf("P%d.y", id)] = p.Y
	}
	for id, l := range m.Links {
		out[fmt.Sprintf("Link%d.L", id)] = l.L
	}
	for id, pl := range m.PointLines {
		if pl.HasOffset() {
			out[fmt.Sprintf("PointLine%d.s", id)] = pl.Offset()
		}
	}
	for _, p := range m.Parameters.List() {
		out["Param."+p.Name] = p.Value
	}
	return out
}

// CaseSignals returns the signals a case exposes to objective and
// constraint expressions: every sweep signal history, the step success
// history and the scalar design quantities of the evaluated model. Load
// measures named like "load P2 Fx" are also reachable as load.P2.Fx.
func CaseSignals(res *sweep.Result, m *model.Model) map[string]any {
	out := make(map[string]any)
	for name, xs := range sweep.Histories(res) {
		out[name] = xs
		if rest, ok := cutLoadPrefix(name); ok {
			out["load."+strings.ReplaceAll(rest, " ", ".")] = xs
		}
	}
	if res != nil && len(res.Frames) > 0 {
		ok := make([]float64, len(res.Frames))
		for i, f := range res.Frames {
			if f.Success {
				ok[i] = 1
			}
		}
		out[SignalSuccess] = ok
	}
	for name, v := range ModelSignals(m) {
		out[name] = v
	}
	return out
}

func cutLoadPrefix(name string) (string, bool) {
	if len(name) < 5 || !strings.EqualFold(name[:5], "load ") {
		return "", false
	}
	return name[5:], true
}
