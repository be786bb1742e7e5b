package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Elementwise r3.Vec helpers shared by the geometry kernel,
// the splitter and the compositor.

// Elem returns a vector with all components set to sides.
func Elem(sides float64) r3.Vec {
	return r3.Vec{X: sides, Y: sides, Z: sides}
}

// EqualWithin compares vectors component-wise with an absolute tolerance.
func EqualWithin(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol &&
		math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(a.Z-b.Z) <= tol
}

// MinElem returns a vector with the minimum components of two vectors.
func MinElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

// MaxElem returns a vector with the maximum components of two vectors.
func MaxElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}

// Max returns the maximum component of a.
func Max(a r3.Vec) float64 {
	return math.Max(a.Z, math.Max(a.X, a.Y))
}

// Min returns the minimum component of a.
func Min(a r3.Vec) float64 {
	return math.Min(a.Z, math.Min(a.X, a.Y))
}

// AbsElem returns the component-wise absolute value of a.
func AbsElem(a r3.Vec) r3.Vec {
	return r3.Vec{X: math.Abs(a.X), Y: math.Abs(a.Y), Z: math.Abs(a.Z)}
}

// LongestAxis returns the index (0, 1, 2 for X, Y, Z) of the largest
// component of a and a unit vector along that axis.
func LongestAxis(a r3.Vec) (int, r3.Vec) {
	switch {
	case a.X >= a.Y && a.X >= a.Z:
		return 0, r3.Vec{X: 1}
	case a.Y >= a.Z:
		return 1, r3.Vec{Y: 1}
	default:
		return 2, r3.Vec{Z: 1}
	}
}
