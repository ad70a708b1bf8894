// Package kinematics maps drive values onto a model's drivers and outputs.
//
// A [Tracker] holds the relative-zero baselines captured by
// [Tracker.MarkStart]. Afterwards input, output and measurement angles are
// reported relative to the marked pose in [0, 360), and
// [Tracker.DriveToRelative] interprets drive values as deltas from it.
// Only drivers[0] and outputs[0] define the displayed input and output
// angles.
package kinematics

import (
	"context"

	"github.com/matzehuels/linkage/pkg/geom"
	"github.com/matzehuels/linkage/pkg/model"
)

// SolveFunc re-solves m after a drive target changed.
type SolveFunc func(ctx context.Context, m *model.Model) error

// Unit labels a drive or measurement value.
type Unit string

const (
	Degrees Unit = "deg"
	Length  Unit = "mm"
)

// Value is an optional reading. OK is false when the geometry it reads is
// missing or degenerate.
type Value struct {
	V    float64
	OK   bool
	Unit Unit
}

// Tracker wraps a model with relative-zero state. It is not safe for
// concurrent use.
type Tracker struct {
	m *model.Model

	zeroInput  *float64 // rad
	zeroOutput *float64 // rad
	// zeroDrivers holds one baseline per active driver at MarkStart: a
	// heading in radians for angle drivers, an offset for translation drivers.
	zeroDrivers []*float64

	zeroMeasDeg map[string]float64
	zeroMeasLen map[string]float64

	// exprCache keeps the last resolved value of expression measures.
	exprCache map[string]float64
}

// New returns a tracker for m with no baselines.
func New(m *model.Model) *Tracker {
	return &Tracker{
		m:           m,
		zeroMeasDeg: make(map[string]float64),
		zeroMeasLen: make(map[string]float64),
		exprCache:   make(map[string]float64),
	}
}

// Model returns the tracked model.
func (t *Tracker) Model() *model.Model { return t.m }

// Marked reports whether MarkStart has captured a baseline.
func (t *Tracker) Marked() bool {
	return t.zeroInput != nil || t.zeroOutput != nil || len(t.zeroDrivers) > 0 ||
		len(t.zeroMeasDeg) > 0 || len(t.zeroMeasLen) > 0
}

// MarkStart captures the current pose as the relative zero: the primary
// driver and output headings, one baseline per active driver and the
// absolute value of every angle or length measurement. The primary
// output's target is set to its current heading.
func (t *Tracker) MarkStart() {
	t.Reset()
	t.zeroInput = optional(t.inputAbs())
	t.zeroOutput = optional(t.outputAbs())
	for _, d := range t.m.ActiveDrivers() {
		t.zeroDrivers = append(t.zeroDrivers, optional(t.driverAbs(d)))
	}
	if t.zeroOutput != nil && len(t.m.Outputs) > 0 {
		t.m.Outputs[0].Rad = *t.zeroOutput
	}

	for _, ms := range t.m.Measures {
		name := measureName(t.m, &ms)
		switch ms.Type {
		case model.MeasureAngle, model.MeasureJoint:
			if rad, ok := t.angleOf(&ms); ok {
				t.zeroMeasDeg[name] = geom.Degrees(rad)
			}
		case model.MeasureTranslation:
			if s, ok := t.offsetOf(&ms); ok {
				t.zeroMeasLen[name] = s
			}
		}
	}
}

// Reset drops all baselines and cached expression values.
func (t *Tracker) Reset() {
	t.zeroInput, t.zeroOutput, t.zeroDrivers = nil, nil, nil
	clear(t.zeroMeasDeg)
	clear(t.zeroMeasLen)
	clear(t.exprCache)
}

// InputAbsDeg returns the absolute heading of the primary angle driver.
func (t *Tracker) InputAbsDeg() (float64, bool) {
	rad, ok := t.inputAbs()
	return geom.Degrees(rad), ok
}

// OutputAbsDeg returns the absolute heading of the primary output.
func (t *Tracker) OutputAbsDeg() (float64, bool) {
	rad, ok := t.outputAbs()
	return geom.Degrees(rad), ok
}

// InputDeg returns the primary driver heading relative to the marked pose,
// in [0, 360). Without a baseline it is absolute.
func (t *Tracker) InputDeg() (float64, bool) {
	rad, ok := t.inputAbs()
	if !ok {
		return 0, false
	}
	return relative(rad, t.zeroInput), true
}

// OutputDeg returns the primary output heading relative to the marked pose,
// in [0, 360). Without a baseline it is absolute.
func (t *Tracker) OutputDeg() (float64, bool) {
	rad, ok := t.outputAbs()
	if !ok {
		return 0, false
	}
	return relative(rad, t.zeroOutput), true
}

// DriverValues returns one display value per active driver, relative to
// its baseline when one was captured. Angle drivers read degrees and
// translation drivers read the point-line offset in length units.
func (t *Tracker) DriverValues() []Value {
	var out []Value
	for i, d := range t.m.ActiveDrivers() {
		switch d.Type {
		case model.DriverTranslation:
			s, ok := t.driverAbs(d)
			if !ok {
				out = append(out, Value{Unit: Length})
				continue
			}
			if base := t.driverBase(i); base != nil {
				s -= *base
			}
			out = append(out, Value{V: s, OK: true, Unit: Length})
		default:
			rad, ok := t.driverAbs(d)
			if !ok {
				out = append(out, Value{Unit: Degrees})
				continue
			}
			out = append(out, Value{V: relative(rad, t.driverBase(i)), OK: true, Unit: Degrees})
		}
	}
	return out
}

// DriveToRelative drives the primary driver, or the primary output when no
// driver is enabled, to value relative to the marked pose and calls solve.
// Angle values are in degrees. Translation values are offsets added to the
// baseline offset. With no active driver or output it does nothing.
func (t *Tracker) DriveToRelative(ctx context.Context, value float64, solve SolveFunc) error {
	if len(t.m.ActiveDrivers()) == 0 && len(t.m.ActiveOutputs()) == 0 {
		return nil
	}
	if d := t.m.PrimaryDriver(); d != nil && d.Enabled {
		t.setDriver(d, 0, value)
	} else if o := t.m.PrimaryOutput(); o != nil && o.Enabled {
		o.Rad = geom.Radians(value)
		if t.zeroOutput != nil {
			o.Rad += *t.zeroOutput
		}
	}
	return t.solve(ctx, solve)
}

// DriveToRelativeMulti drives the active drivers in order to values. Extra
// values are ignored; drivers without a value keep their target.
func (t *Tracker) DriveToRelativeMulti(ctx context.Context, values []float64, solve SolveFunc) error {
	active := t.m.ActiveDrivers()
	if len(active) == 0 {
		return nil
	}
	for i, d := range active {
		if i >= len(values) {
			break
		}
		t.setDriver(d, i, values[i])
	}
	return t.solve(ctx, solve)
}

// AbsoluteDriveTo sets the primary target to value ignoring baselines:
// an absolute heading in degrees for angle drivers and outputs, an
// absolute offset for translation drivers.
func (t *Tracker) AbsoluteDriveTo(ctx context.Context, value float64, solve SolveFunc) error {
	if d := t.m.PrimaryDriver(); d != nil && d.Enabled {
		if d.Type == model.DriverTranslation {
			d.Value = value - d.SBase
		} else {
			d.Rad = geom.Radians(value)
		}
	} else if o := t.m.PrimaryOutput(); o != nil && o.Enabled {
		o.Rad = geom.Radians(value)
	} else {
		return nil
	}
	return t.solve(ctx, solve)
}

func (t *Tracker) setDriver(d *model.Driver, i int, value float64) {
	base := t.driverBase(i)
	if d.Type == model.DriverTranslation {
		if base != nil {
			d.SBase = *base
		}
		d.Value = value
		return
	}
	d.Rad = geom.Radians(value)
	if base != nil {
		d.Rad += *base
	}
}

// driverBase returns the baseline of the i-th active driver. The primary
// falls back to the input baseline.
func (t *Tracker) driverBase(i int) *float64 {
	if i < len(t.zeroDrivers) && t.zeroDrivers[i] != nil {
		return t.zeroDrivers[i]
	}
	if i == 0 {
		if d := t.m.PrimaryDriver(); d != nil && d.Type != model.DriverTranslation {
			return t.zeroInput
		}
	}
	return nil
}

func (t *Tracker) solve(ctx context.Context, solve SolveFunc) error {
	if solve == nil {
		return nil
	}
	return solve(ctx, t.m)
}

func (t *Tracker) inputAbs() (float64, bool) {
	d := t.m.PrimaryDriver()
	if d == nil || !d.Enabled || d.Type != model.DriverAngle {
		return 0, false
	}
	return t.m.Heading(d.Pivot, d.Tip)
}

func (t *Tracker) outputAbs() (float64, bool) {
	o := t.m.PrimaryOutput()
	if o == nil || !o.Enabled {
		return 0, false
	}
	return t.m.Heading(o.Pivot, o.Tip)
}

func (t *Tracker) driverAbs(d *model.Driver) (float64, bool) {
	if d.Type == model.DriverTranslation {
		pl, ok := t.m.PointLines[d.PLID]
		if !ok {
			return 0, false
		}
		return t.m.CurrentOffset(pl)
	}
	return t.m.Heading(d.Pivot, d.Tip)
}

// relative converts rad to degrees, relative to base when set.
func relative(rad float64, base *float64) float64 {
	if base == nil {
		return geom.Degrees(rad)
	}
	return geom.Mod360(geom.Degrees(rad) - geom.Degrees(*base))
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
