package operator

import (
	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Model identifies the body model a host object carries.
type Model interface {
	Variant() smpl.Variant
	Gender() smpl.Gender
}

// JointReader reads the current pose rotation of a joint.
type JointReader interface {
	ReadJointRotation(name string) (math.Vec3, error)
}

// JointPoser sets pose rotations and translations.
type JointPoser interface {
	WriteJointRotation(name string, v math.Vec3) error
	WriteJointTranslation(name string, p math.Vec3) error
}

// RootPoser sets the scene orientation of the armature above the pelvis.
type RootPoser interface {
	WriteRootRotation(q math.Quat) error
}

// SliderRanges adjusts shape key slider ranges.
type SliderRanges interface {
	KeyNames() []string
	SetSliderRange(name string, min, max float64) error
}

// CorrectiveWriter exposes the mesh's corrective blend-shape channels.
type CorrectiveWriter interface {
	CorrectiveChannels() []string
	WriteCorrectiveWeight(i int, w float64) error
}

// JointWriter moves rest-pose joint locations.
type JointWriter interface {
	WriteJointLocation(name string, p math.Vec3) error
}

// ShapeKeys reads and writes the Shape%03d body shape keys.
type ShapeKeys interface {
	ShapeValues() []float64
	// SetShapeValue sets key i, widening its slider range to fit v.
	SetShapeValue(i int, v float64) error
}

// Timeline keyframes a host over frames.
type Timeline interface {
	SetFrame(frame int)
	SetFrameRange(start, end, fps int)
	KeyframeJoint(name string, frame int) error
	KeyframeRoot(frame int) error
	KeyframeCorrectives(frame int) error
}

// CorrectiveHost is what corrective operators need.
type CorrectiveHost interface {
	Model
	JointReader
	CorrectiveWriter
}

// PoseHost is what posing operators need.
type PoseHost interface {
	CorrectiveHost
	JointPoser
	RootPoser
}

// ShapeHost is what shape operators need.
type ShapeHost interface {
	Model
	ShapeKeys
	JointWriter
}

// Host is a complete rigged avatar.
type Host interface {
	PoseHost
	ShapeKeys
	JointWriter
	Timeline
}
