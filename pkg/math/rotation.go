package math

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRotation is returned for rotation inputs with NaN or infinite components.
var ErrInvalidRotation = errors.New("invalid rotation")

// RodriguesToMat3 converts a rodrigues vector into a rotation matrix using
// Rodrigues' formula: cosθ·I + (1−cosθ)·r rᵗ + sinθ·K(r).
// A zero vector yields the identity.
func RodriguesToMat3(v Vec3) (Mat3, error) {
	if !v.IsFinite() {
		return Mat3{}, fmt.Errorf("%w: %v", ErrInvalidRotation, v)
	}

	theta := v.Length()
	if theta == 0 {
		return Identity3(), nil
	}

	r := v.Scale(1 / theta)
	c := math.Cos(theta)
	s := math.Sin(theta)

	return Identity3().Scale(c).
		Add(Outer(r, r).Scale(1 - c)).
		Add(Skew(r).Scale(s)), nil
}

// RodriguesToQuat converts a rodrigues vector into a unit quaternion
// (cos θ/2, sin θ/2 · r). A zero vector yields the identity quaternion.
func RodriguesToQuat(v Vec3) (Quat, error) {
	if !v.IsFinite() {
		return Quat{}, fmt.Errorf("%w: %v", ErrInvalidRotation, v)
	}

	theta := v.Length()
	if theta == 0 {
		return QuatIdentity(), nil
	}
	return QuatFromAxisAngle(v.Scale(1/theta), theta), nil
}

// QuatToRodrigues converts a quaternion back into a rodrigues vector
// (axis scaled by angle). Round-trips RodriguesToQuat for angles in [0, π).
func QuatToRodrigues(q Quat) (Vec3, error) {
	if !isFinite(q.X) || !isFinite(q.Y) || !isFinite(q.Z) || !isFinite(q.W) {
		return Vec3{}, fmt.Errorf("%w: %v", ErrInvalidRotation, q)
	}

	axis, angle := q.AxisAngle()
	if angle == 0 {
		return Vec3{}, nil
	}
	return axis.Scale(angle), nil
}

// AddRodrigues sums two rodrigues vectors component-wise.
//
// This is not a rotation composition. Relaxed hand poses are stored as
// offsets that the body model adds to the target pose before conversion,
// and corrective blend shapes were fit against that sum.
func AddRodrigues(target, reference Vec3) Vec3 {
	return target.Add(reference)
}
