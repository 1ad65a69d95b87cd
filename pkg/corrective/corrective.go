// Package corrective computes pose-corrective blend-shape weights from joint
// rotations.
package corrective

import (
	"errors"
	"fmt"

	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Corrective errors.
var (
	ErrJointCountMismatch   = errors.New("pose joint count does not match model")
	ErrChannelCountMismatch = errors.New("corrective channel count does not match mesh")
	ErrHandPoseSize         = errors.New("hand pose has wrong joint count")
)

// Pose holds one rodrigues vector per joint, in model joint order.
type Pose []math.Vec3

// ZeroPose returns the rest pose for a variant.
func ZeroPose(v smpl.Variant) (Pose, error) {
	spec, err := smpl.Lookup(v)
	if err != nil {
		return nil, err
	}
	return make(Pose, spec.JointCount()), nil
}

// PoseFromFlat builds a pose from 3N packed floats.
func PoseFromFlat(flat []float64) (Pose, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of 3", ErrJointCountMismatch, len(flat))
	}
	pose := make(Pose, len(flat)/3)
	for i := range pose {
		pose[i] = math.Vec3FromSlice(flat[i*3:])
	}
	return pose, nil
}

// Flat packs the pose into 3N floats.
func (p Pose) Flat() []float64 {
	out := make([]float64, 0, len(p)*3)
	for _, v := range p {
		out = append(out, v.X, v.Y, v.Z)
	}
	return out
}

// Clone returns a copy of the pose.
func (p Pose) Clone() Pose {
	out := make(Pose, len(p))
	copy(out, p)
	return out
}

// Option configures an Engine.
type Option func(*Engine)

// WithTruncation overrides the number of corrective channels kept for a
// variant. n <= 0 keeps every channel.
func WithTruncation(v smpl.Variant, n int) Option {
	return func(e *Engine) {
		e.limits[v] = n
	}
}

// Engine maps poses to corrective weights. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	limits map[smpl.Variant]int
}

// NewEngine creates an engine. Without options each variant keeps the
// channel limit from its smpl.Spec.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{limits: make(map[smpl.Variant]int)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ChannelCount returns the number of weights Compute produces for v.
func (e *Engine) ChannelCount(v smpl.Variant) (int, error) {
	spec, err := smpl.Lookup(v)
	if err != nil {
		return 0, err
	}
	return e.channelCount(spec), nil
}

func (e *Engine) channelCount(spec *smpl.Spec) int {
	n := spec.CorrectiveCount()
	limit, ok := e.limits[spec.Variant]
	if !ok {
		limit = spec.CorrectiveLimit
	}
	if limit > 0 && limit < n {
		return limit
	}
	return n
}

// Compute returns the corrective weights for pose. The result length depends
// only on the variant, never on the pose values.
func (e *Engine) Compute(pose Pose, v smpl.Variant) ([]float64, error) {
	spec, err := smpl.Lookup(v)
	if err != nil {
		return nil, err
	}
	if len(pose) != spec.JointCount() {
		return nil, fmt.Errorf("%w: %s expects %d joints, got %d",
			ErrJointCountMismatch, spec.Name, spec.JointCount(), len(pose))
	}

	var weights []float64
	switch spec.Corrective {
	case smpl.MatrixCorrective:
		weights, err = matrixWeights(pose)
	case smpl.QuaternionCorrective:
		weights, err = quaternionWeights(pose)
	default:
		return nil, fmt.Errorf("%w: corrective model %s", smpl.ErrUnknownVariant, spec.Corrective)
	}
	if err != nil {
		return nil, err
	}

	return weights[:e.channelCount(spec)], nil
}

// matrixWeights flattens R−I row by row for joints 1..N-1. The root only
// moves the body rigidly and has no correctives.
func matrixWeights(pose Pose) ([]float64, error) {
	identity := math.Identity3()
	out := make([]float64, 0, 9*(len(pose)-1))
	for i := 1; i < len(pose); i++ {
		r, err := math.RodriguesToMat3(pose[i])
		if err != nil {
			return nil, fmt.Errorf("joint %d: %w", i, err)
		}
		delta := r.Sub(identity)
		out = append(out, delta[:]...)
	}
	return out, nil
}

// quaternionWeights encodes every joint, root included, as (x, y, z, w−1)
// so the rest pose maps to all zeros.
func quaternionWeights(pose Pose) ([]float64, error) {
	out := make([]float64, 0, 4*len(pose))
	for i, v := range pose {
		q, err := math.RodriguesToQuat(v)
		if err != nil {
			return nil, fmt.Errorf("joint %d: %w", i, err)
		}
		out = append(out, q.X, q.Y, q.Z, q.W-1)
	}
	return out, nil
}

// Compute runs the default engine.
func Compute(pose Pose, v smpl.Variant) ([]float64, error) {
	return defaultEngine.Compute(pose, v)
}

var defaultEngine = NewEngine()
