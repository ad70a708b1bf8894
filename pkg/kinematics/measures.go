package kinematics

import (
	"fmt"

	"github.com/matzehuels/linkage/pkg/expr"
	"github.com/matzehuels/linkage/pkg/geom"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/statics"
)

// Signal is a named measurement reading. Value is nil when unresolved.
type Signal struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
	Unit  Unit     `json:"unit,omitempty"`
}

// MeasureValues resolves the model's measures in declaration order. Angle
// and joint measures read degrees, relative to the marked pose when
// baselined; translation measures read the point-line offset. Expression
// measures are evaluated afterwards over the signals resolved so far,
// including load measures read from loads. An expression that fails yields
// its last resolved value, or nil if it never resolved.
func (t *Tracker) MeasureValues(loads []statics.JointLoad) []Signal {
	out := make([]Signal, len(t.m.Measures))
	signals := make(map[string]any)

	for i := range t.m.Measures {
		ms := &t.m.Measures[i]
		name := measureName(t.m, ms)
		out[i] = Signal{Name: name}

		switch ms.Type {
		case model.MeasureAngle, model.MeasureJoint:
			out[i].Unit = Degrees
			rad, ok := t.angleOf(ms)
			if !ok {
				continue
			}
			v := geom.Degrees(rad)
			if base, ok := t.zeroMeasDeg[name]; ok {
				v = geom.Mod360(v - base)
			}
			out[i].Value = &v
		case model.MeasureTranslation:
			out[i].Unit = Length
			s, ok := t.offsetOf(ms)
			if !ok {
				continue
			}
			if base, ok := t.zeroMeasLen[name]; ok {
				s -= base
			}
			out[i].Value = &s
		default:
			continue
		}
		signals[name] = *out[i].Value
	}

	for _, lv := range t.LoadMeasureValues(loads) {
		if lv.Value != nil {
			signals[lv.Name] = *lv.Value
		}
	}

	for i := range t.m.Measures {
		ms := &t.m.Measures[i]
		if ms.Type != model.MeasureExpression {
			continue
		}
		out[i].Unit = Unit(ms.Unit)
		v, err := expr.EvalSignal(ms.Expr, signals)
		if err != nil {
			if prev, ok := t.exprCache[out[i].Name]; ok {
				out[i].Value = &prev
			}
			continue
		}
		t.exprCache[out[i].Name] = v
		out[i].Value = &v
		signals[out[i].Name] = v
	}
	return out
}

// LoadMeasureValues reads each load measure from a joint-load table.
// Points missing from loads read nil.
func (t *Tracker) LoadMeasureValues(loads []statics.JointLoad) []Signal {
	if len(t.m.LoadMeasures) == 0 {
		return nil
	}
	byPID := make(map[int]statics.JointLoad, len(loads))
	for _, jl := range loads {
		byPID[jl.PID] = jl
	}
	out := make([]Signal, 0, len(t.m.LoadMeasures))
	for _, lm := range t.m.LoadMeasures {
		sig := Signal{Name: loadMeasureName(&lm)}
		if jl, ok := byPID[lm.PID]; ok {
			if v, ok := jl.Component(lm.Component); ok {
				sig.Value = &v
			}
		}
		out = append(out, sig)
	}
	return out
}

func (t *Tracker) angleOf(ms *model.Measure) (float64, bool) {
	if ms.Type == model.MeasureJoint {
		return t.m.JointAngle(ms.I, ms.J, ms.K)
	}
	return t.m.Heading(ms.Pivot, ms.Tip)
}

// offsetOf reads the stored offset of the measured point-line, or the
// current one when the point-line carries none.
func (t *Tracker) offsetOf(ms *model.Measure) (float64, bool) {
	pl, ok := t.m.PointLines[ms.PLID]
	if !ok {
		return 0, false
	}
	if pl.HasOffset() {
		return pl.Offset(), true
	}
	return t.m.CurrentOffset(pl)
}

func measureName(m *model.Model, ms *model.Measure) string {
	if ms.Name != "" {
		return ms.Name
	}
	switch ms.Type {
	case model.MeasureAngle:
		return fmt.Sprintf("ang P%d->P%d", ms.Pivot, ms.Tip)
	case model.MeasureJoint:
		return fmt.Sprintf("ang P%d-P%d-P%d", ms.I, ms.J, ms.K)
	case model.MeasureTranslation:
		if pl, ok := m.PointLines[ms.PLID]; ok {
			return fmt.Sprintf("s P%d on (P%d-P%d)", pl.P, pl.I, pl.J)
		}
		return "point line s"
	}
	return string(ms.Type)
}

func loadMeasureName(lm *model.LoadMeasure) string {
	if lm.Name != "" {
		return lm.Name
	}
	label := map[model.LoadComponent]string{
		model.ComponentFX:  "Fx",
		model.ComponentFY:  "Fy",
		model.ComponentMag: "Mag",
	}[lm.Component]
	if label == "" {
		label = string(lm.Component)
	}
	return fmt.Sprintf("load P%d %s", lm.PID, label)
}
