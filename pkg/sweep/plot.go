package sweep

import (
	"fmt"
	"io"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/matzehuels/linkage/pkg/errors"
)

// Built-in frame signals. Measures and load measures are addressed by name.
const (
	SignalInput   = "input_deg"
	SignalOutput  = "output_deg"
	SignalHardErr = "hard_err"
)

// Plot size.
const (
	PlotWidth  = 8 * vg.Inch
	PlotHeight = 5 * vg.Inch
)

// Signals returns the signal names available in res: the built-in ones
// followed by every measure and load measure, sorted.
func Signals(res *Result) []string {
	out := []string{SignalInput, SignalOutput, SignalHardErr}
	seen := make(map[string]bool)
	var named []string
	for _, f := range res.Frames {
		for _, set := range []map[string]*float64{f.Measures, f.LoadMeasures} {
			for name := range set {
				if !seen[name] {
					seen[name] = true
					named = append(named, name)
				}
			}
		}
	}
	slices.Sort(named)
	return append(out, named...)
}

// Histories returns every signal of res as its sequence of resolved
// readings in frame order. Unresolved readings are skipped, so histories can
// be shorter than the frame list; signals that never resolve are omitted.
func Histories(res *Result) map[string][]float64 {
	out := make(map[string][]float64)
	if res == nil {
		return out
	}
	for _, name := range Signals(res) {
		var xs []float64
		for k := range res.Frames {
			if v, ok := res.Frames[k].signal(name); ok {
				xs = append(xs, v)
			}
		}
		if len(xs) > 0 {
			out[name] = xs
		}
	}
	return out
}

// signal reads one signal from a frame.
func (f *Frame) signal(name string) (float64, bool) {
	var v *float64
	switch name {
	case SignalInput:
		v = f.InputDeg
	case SignalOutput:
		v = f.OutputDeg
	case SignalHardErr:
		return f.HardErr, true
	default:
		if mv, ok := f.Measures[name]; ok {
			v = mv
		} else {
			v = f.LoadMeasures[name]
		}
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// WritePlot renders the given signals against the drive value as a PNG.
// Unresolved readings are left out of their line. Empty signals plot the
// input and output angles.
func WritePlot(w io.Writer, res *Result, signals []string) error {
	if res == nil || len(res.Frames) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "nothing to plot: the sweep has no frames")
	}
	if len(signals) == 0 {
		signals = []string{SignalInput, SignalOutput}
	}
	known := Signals(res)
	for _, s := range signals {
		if !slices.Contains(known, s) {
			return errors.New(errors.ErrCodeInvalidInput, "unknown signal %q (available: %v)", s, known)
		}
	}

	p := plot.New()
	p.Title.Text = "Sweep"
	p.X.Label.Text = "drive value"
	p.Y.Label.Text = "signal"
	p.Add(plotter.NewGrid())

	for i, name := range signals {
		pts := make(plotter.XYs, 0, len(res.Frames))
		for k := range res.Frames {
			if v, ok := res.Frames[k].signal(name); ok {
				pts = append(pts, plotter.XY{X: res.Frames[k].Value, Y: v})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", name, err)
		}
		line.Color = plotutil.Color(i)
		line.Dashes = plotutil.Dashes(i)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
