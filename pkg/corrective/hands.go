package corrective

import (
	"fmt"

	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// HandPose holds one rodrigues vector per finger joint of one hand.
type HandPose []math.Vec3

// ApplyHandReference returns a copy of pose where every finger joint is
// replaced by target + reference, summed as plain vectors (see
// math.AddRodrigues). left and right must each have spec.HandJoints entries.
// Non-finger joints are copied unchanged.
func ApplyHandReference(pose Pose, v smpl.Variant, left, right HandPose) (Pose, error) {
	spec, err := smpl.Lookup(v)
	if err != nil {
		return nil, err
	}
	if len(pose) != spec.JointCount() {
		return nil, fmt.Errorf("%w: %s expects %d joints, got %d",
			ErrJointCountMismatch, spec.Name, spec.JointCount(), len(pose))
	}
	if len(left) != spec.HandJoints || len(right) != spec.HandJoints {
		return nil, fmt.Errorf("%w: want %d per hand, got %d left and %d right",
			ErrHandPoseSize, spec.HandJoints, len(left), len(right))
	}

	out := pose.Clone()
	reference := append(append(HandPose{}, left...), right...)
	for i, joint := range spec.FingerJoints() {
		out[joint] = math.AddRodrigues(pose[joint], reference[i])
	}
	return out, nil
}

// SetHands overwrites the finger joints of pose with the given hand poses.
func SetHands(pose Pose, v smpl.Variant, left, right HandPose) (Pose, error) {
	spec, err := smpl.Lookup(v)
	if err != nil {
		return nil, err
	}
	cleared := pose.Clone()
	if len(cleared) == spec.JointCount() {
		for _, joint := range spec.FingerJoints() {
			cleared[joint] = math.Vec3{}
		}
	}
	return ApplyHandReference(cleared, v, left, right)
}

// HandPoseFromFlat builds a hand pose from 3*HandJoints packed floats.
func HandPoseFromFlat(flat []float64) (HandPose, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of 3", ErrHandPoseSize, len(flat))
	}
	hand := make(HandPose, len(flat)/3)
	for i := range hand {
		hand[i] = math.Vec3FromSlice(flat[i*3:])
	}
	return hand, nil
}
