// Package math provides the vector, matrix and rotation types shared by the
// body-model packages.
package math

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a 3D vector. It doubles as a rodrigues (axis-angle) rotation:
// direction is the axis, length is the angle in radians.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return fromR3(r3.Add(v.r3(), other.r3()))
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return fromR3(r3.Sub(v.r3(), other.r3()))
}

// Scale returns v * scalar.
func (v Vec3) Scale(s float64) Vec3 {
	return fromR3(r3.Scale(s, v.r3()))
}

// Length returns the magnitude.
func (v Vec3) Length() float64 {
	return r3.Norm(v.r3())
}

// Normalize returns a unit vector. The zero vector stays zero.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

// IsFinite reports whether every component is neither NaN nor infinite.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Array returns the components as an array.
func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Vec3FromSlice builds a vector from the first three values of s.
func Vec3FromSlice(s []float64) Vec3 {
	return Vec3{s[0], s[1], s[2]}
}

func (v Vec3) r3() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

func fromR3(v r3.Vec) Vec3 {
	return Vec3{v.X, v.Y, v.Z}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
