package formats

import (
	"errors"
	"fmt"
	stdmath "math"
	"strings"

	"github.com/Faultbox/smplkit/pkg/math"
)

// Motion errors.
var (
	ErrMissingMotionKeys = errors.New("motion archive is missing keys")
	ErrFrameRateTooLow   = errors.New("motion frame rate below target")
	ErrFrameOutOfRange   = errors.New("frame out of range")
	ErrInvalidFrameRate  = errors.New("invalid motion frame rate")
)

// frameRateKeys are tried in order.
var frameRateKeys = []string{"mocap_frame_rate", "mocap_framerate", "fps"}

// Motion is an AMASS-style motion sequence.
type Motion struct {
	Trans     []math.Vec3
	Gender    string
	Betas     []float64
	Poses     *NPYArray // frames × (3 × joints)
	FrameRate float64
}

// ParseMotion reads a motion sequence from src. Every missing required key
// is reported in a single ErrMissingMotionKeys error.
func ParseMotion(src ArraySource) (*Motion, error) {
	var missing []string
	for _, key := range []string{"trans", "gender", "betas", "poses"} {
		if !src.Contains(key) {
			missing = append(missing, key)
		}
	}

	rateKey := ""
	for _, key := range frameRateKeys {
		if src.Contains(key) {
			rateKey = key
			break
		}
	}
	if rateKey == "" {
		missing = append(missing, strings.Join(frameRateKeys, " or "))
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingMotionKeys, strings.Join(missing, ", "))
	}

	m := &Motion{}

	trans, err := numericArray(src, "trans")
	if err != nil {
		return nil, err
	}
	if len(trans.Shape) != 2 || trans.Shape[1] != 3 {
		return nil, fmt.Errorf("%w: trans has shape %v, want (frames, 3)", ErrPoseSize, trans.Shape)
	}
	m.Trans = make([]math.Vec3, trans.Shape[0])
	for i := range m.Trans {
		m.Trans[i] = math.Vec3FromSlice(trans.Data[i*3:])
	}

	gender, err := src.Array("gender")
	if err != nil {
		return nil, err
	}
	m.Gender = gender.String()

	betas, err := numericArray(src, "betas")
	if err != nil {
		return nil, err
	}
	m.Betas = betas.Data

	m.Poses, err = numericArray(src, "poses")
	if err != nil {
		return nil, err
	}
	if len(m.Poses.Shape) != 2 {
		return nil, fmt.Errorf("%w: poses has shape %v, want (frames, values)", ErrPoseSize, m.Poses.Shape)
	}
	if m.Poses.Shape[0] != len(m.Trans) {
		return nil, fmt.Errorf("%w: %d pose frames but %d translation frames", ErrPoseSize, m.Poses.Shape[0], len(m.Trans))
	}

	rate, err := src.Array(rateKey)
	if err != nil {
		return nil, err
	}
	if m.FrameRate, err = rate.Scalar(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", rateKey, err)
	}
	if stdmath.IsNaN(m.FrameRate) || stdmath.IsInf(m.FrameRate, 0) || m.FrameRate <= 0 {
		return nil, fmt.Errorf("%w: %s is %v", ErrInvalidFrameRate, rateKey, m.FrameRate)
	}

	return m, nil
}

func numericArray(src ArraySource, key string) (*NPYArray, error) {
	arr, err := src.Array(key)
	if err != nil {
		return nil, err
	}
	if !arr.DType.IsNumeric() {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedDType, key, arr.DType)
	}
	return arr, nil
}

// FrameCount returns the number of frames.
func (m *Motion) FrameCount() int {
	return len(m.Trans)
}

// Pose returns the first joints rotation vectors of frame.
func (m *Motion) Pose(frame, joints int) ([]math.Vec3, error) {
	if frame < 0 || frame >= m.FrameCount() {
		return nil, fmt.Errorf("%w: %d of %d", ErrFrameOutOfRange, frame, m.FrameCount())
	}
	row, err := m.Poses.Row(frame)
	if err != nil {
		return nil, err
	}
	if len(row) < joints*3 {
		return nil, fmt.Errorf("%w: frame has %d values, need %d", ErrPoseSize, len(row), joints*3)
	}
	return vectors(row[:joints*3], joints)
}

// SampleFrames returns the source frames to keyframe when resampling to
// target fps: every int(FrameRate/target)-th frame, starting at 0.
func (m *Motion) SampleFrames(target float64) ([]int, error) {
	if !(target > 0) || stdmath.IsInf(target, 0) {
		return nil, fmt.Errorf("invalid target frame rate %v", target)
	}
	if stdmath.IsNaN(m.FrameRate) || stdmath.IsInf(m.FrameRate, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrameRate, m.FrameRate)
	}
	if m.FrameRate < target {
		return nil, fmt.Errorf("%w: %v < %v", ErrFrameRateTooLow, m.FrameRate, target)
	}
	ratio := m.FrameRate / target
	if ratio > float64(m.FrameCount()) {
		ratio = float64(max(m.FrameCount(), 1))
	}
	step := int(ratio)
	if step < 1 {
		return nil, fmt.Errorf("%w: step %d from %v to %v fps", ErrInvalidFrameRate, step, m.FrameRate, target)
	}
	frames := make([]int, 0, m.FrameCount()/step+1)
	for f := 0; f < m.FrameCount(); f += step {
		frames = append(frames, f)
	}
	return frames, nil
}
