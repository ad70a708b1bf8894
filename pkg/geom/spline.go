package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Sampling densities for spline polylines.
const (
	DefaultSamplesPerSegment  = 16
	ResidualSamplesPerSegment = 12
)

// Sample is one point on a sampled spline.
type Sample struct {
	Pos     r2.Vec
	Segment int     // index of the control-point segment
	T       float64 // parameter within the segment, in [0, 1]
}

// Closest is the result of a closest-point query against a sampled spline.
type Closest struct {
	Pos     r2.Vec
	Segment int
	T       float64
	Dist2   float64
}

// SplineSamples evaluates the uniform Catmull-Rom curve through ctrl.
//
// Open curves have len(ctrl)-1 segments, using the first and last control
// points as their own tangent anchors, and end with the final control point.
// Closed curves have len(ctrl) segments, wrap around, and end with a copy of
// the first sample. Fewer than two control points yield nil.
func SplineSamples(ctrl []r2.Vec, samplesPerSegment int, closed bool) []Sample {
	n := len(ctrl)
	if n < 2 {
		return nil
	}
	if samplesPerSegment < 1 {
		samplesPerSegment = 1
	}

	at := func(i int) r2.Vec {
		if closed {
			return ctrl[((i%n)+n)%n]
		}
		if i < 0 {
			return ctrl[0]
		}
		if i >= n {
			return ctrl[n-1]
		}
		return ctrl[i]
	}

	segments := n - 1
	if closed {
		segments = n
	}

	out := make([]Sample, 0, segments*samplesPerSegment+1)
	for seg := 0; seg < segments; seg++ {
		p0, p1, p2, p3 := at(seg-1), at(seg), at(seg+1), at(seg+2)
		for s := 0; s < samplesPerSegment; s++ {
			t := float64(s) / float64(samplesPerSegment)
			out = append(out, Sample{Pos: catmullRom(p0, p1, p2, p3, t), Segment: seg, T: t})
		}
	}
	if closed {
		first := out[0]
		out = append(out, Sample{Pos: first.Pos, Segment: segments - 1, T: 1})
	} else {
		out = append(out, Sample{Pos: ctrl[n-1], Segment: segments - 1, T: 1})
	}
	return out
}

func catmullRom(p0, p1, p2, p3 r2.Vec, t float64) r2.Vec {
	t2 := t * t
	t3 := t2 * t
	f := func(a, b, c, d float64) float64 {
		return 0.5 * (2*b + (-a+c)*t + (2*a-5*b+4*c-d)*t2 + (-a+3*b-3*c+d)*t3)
	}
	return r2.Vec{
		X: f(p0.X, p1.X, p2.X, p3.X),
		Y: f(p0.Y, p1.Y, p2.Y, p3.Y),
	}
}

// ClosestOnSamples projects p onto the polyline through samples and returns
// the nearest point. Ties keep the first chord. An empty sample set yields
// Dist2 = +Inf; a single sample is returned as is.
func ClosestOnSamples(p r2.Vec, samples []Sample) Closest {
	switch len(samples) {
	case 0:
		return Closest{Pos: p, Segment: -1, Dist2: math.Inf(1)}
	case 1:
		s := samples[0]
		return Closest{Pos: s.Pos, Segment: s.Segment, T: s.T, Dist2: r2.Norm2(r2.Sub(p, s.Pos))}
	}

	best := Closest{Dist2: math.Inf(1), Segment: -1}
	for i := 0; i+1 < len(samples); i++ {
		a, b := samples[i], samples[i+1]
		ab := r2.Sub(b.Pos, a.Pos)
		den := r2.Norm2(ab)
		u := 0.0
		if den > 0 {
			u = r2.Dot(r2.Sub(p, a.Pos), ab) / den
			u = math.Max(0, math.Min(1, u))
		}
		q := r2.Add(a.Pos, r2.Scale(u, ab))
		d2 := r2.Norm2(r2.Sub(p, q))
		if d2 < best.Dist2 {
			tb := b.T
			if b.Segment != a.Segment {
				tb = 1
			}
			best = Closest{
				Pos:     q,
				Segment: a.Segment,
				T:       a.T + u*(tb-a.T),
				Dist2:   d2,
			}
		}
	}
	return best
}

// SegmentControls returns the indices into a control list of the two control
// points bracketing seg.
func SegmentControls(seg, n int, closed bool) (int, int) {
	if n == 0 {
		return -1, -1
	}
	i := seg
	j := seg + 1
	if closed {
		i = ((i % n) + n) % n
		j = ((j % n) + n) % n
	} else {
		if i < 0 {
			i = 0
		}
		if j > n-1 {
			j = n - 1
		}
	}
	return i, j
}
