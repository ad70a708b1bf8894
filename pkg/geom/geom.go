// Package geom provides the planar geometry kernel used by every solver:
// signed angles, angle wrapping, rotations and Catmull-Rom spline sampling
// with closest-point queries.
//
// Vectors are gonum's [r2.Vec]. All functions are pure.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Degenerate is the length below which a vector is treated as zero.
const Degenerate = 1e-12

// AngleBetween returns the signed angle from v1 to v2 in (-π, π].
func AngleBetween(v1, v2 r2.Vec) float64 {
	return math.Atan2(r2.Cross(v1, v2), r2.Dot(v1, v2))
}

// WrapAngle wraps a into (-π, π].
func WrapAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// Rotate rotates v counter-clockwise by a radians about the origin.
func Rotate(v r2.Vec, a float64) r2.Vec {
	return r2.Rotate(v, a, r2.Vec{})
}

// Heading returns the absolute direction of to-from in (-π, π].
func Heading(from, to r2.Vec) float64 {
	d := r2.Sub(to, from)
	return math.Atan2(d.Y, d.X)
}

// Polar returns origin + r·(cos θ, sin θ).
func Polar(origin r2.Vec, r, theta float64) r2.Vec {
	return r2.Add(origin, r2.Vec{X: r * math.Cos(theta), Y: r * math.Sin(theta)})
}

// Dist returns |b-a|.
func Dist(a, b r2.Vec) float64 {
	return r2.Norm(r2.Sub(b, a))
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// Mod360 maps deg into [0, 360).
func Mod360(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d -= 360
	}
	return d
}
