package formats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Faultbox/smplkit/pkg/math"
)

// Pose format errors.
var (
	ErrPoseSize        = errors.New("pose has wrong number of values")
	ErrMissingPoseKey  = errors.New("missing pose key")
	ErrInvalidPoseJSON = errors.New("invalid pose JSON")
)

// ArraySource is a keyed collection of arrays, such as an .npz archive.
type ArraySource interface {
	Contains(key string) bool
	Array(key string) (*NPYArray, error)
}

// PoseData is a single pose: one rotation vector per joint, plus an optional
// root orientation that overrides joint 0.
type PoseData struct {
	Joints       []math.Vec3
	GlobalOrient *math.Vec3
}

type poseJSON struct {
	Pose         []float64 `json:"pose"`
	GlobalOrient []float64 `json:"global_orient,omitempty"`
}

// ParsePoseJSON parses {"pose": [...]} holding 3*joints floats.
func ParsePoseJSON(data []byte, joints int) (*PoseData, error) {
	var doc poseJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoseJSON, err)
	}
	if doc.Pose == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingPoseKey, "pose")
	}

	pose, err := vectors(doc.Pose, joints)
	if err != nil {
		return nil, err
	}

	result := &PoseData{Joints: pose}
	if doc.GlobalOrient != nil {
		if len(doc.GlobalOrient) != 3 {
			return nil, fmt.Errorf("%w: global_orient has %d values, want 3", ErrPoseSize, len(doc.GlobalOrient))
		}
		orient := math.Vec3FromSlice(doc.GlobalOrient)
		result.GlobalOrient = &orient
	}
	return result, nil
}

// ParsePoseJSONFile parses a pose JSON file from disk.
func ParsePoseJSONFile(path string, joints int) (*PoseData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pose file: %w", err)
	}
	return ParsePoseJSON(data, joints)
}

// WritePoseJSON writes pose as {"pose": [x0, y0, z0, x1, ...]}.
func WritePoseJSON(w io.Writer, pose []math.Vec3) error {
	flat := make([]float64, 0, len(pose)*3)
	for _, v := range pose {
		flat = append(flat, v.X, v.Y, v.Z)
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(poseJSON{Pose: flat}); err != nil {
		return fmt.Errorf("encoding pose: %w", err)
	}
	return nil
}

// ParsePoseNPY parses an .npy array holding a single pose of 3*joints values.
func ParsePoseNPY(data []byte, joints int) (*PoseData, error) {
	arr, err := ParseNPY(data)
	if err != nil {
		return nil, err
	}
	if !arr.DType.IsNumeric() {
		return nil, fmt.Errorf("%w: pose array has dtype %s", ErrUnsupportedDType, arr.DType)
	}
	pose, err := vectors(arr.Data, joints)
	if err != nil {
		return nil, err
	}
	return &PoseData{Joints: pose}, nil
}

// ParsePoseArchive reads frame from the "pose" (or, failing that, "poses")
// array of src. frame is clamped to the available frames. A "global_orient"
// array, when present, is returned alongside.
func ParsePoseArchive(src ArraySource, joints, frame int) (*PoseData, error) {
	key := "pose"
	if !src.Contains(key) {
		key = "poses"
	}
	if !src.Contains(key) {
		return nil, fmt.Errorf("%w: need %q or %q", ErrMissingPoseKey, "pose", "poses")
	}

	arr, err := src.Array(key)
	if err != nil {
		return nil, err
	}
	values, err := frameValues(arr, frame)
	if err != nil {
		return nil, err
	}
	pose, err := vectors(values, joints)
	if err != nil {
		return nil, err
	}

	result := &PoseData{Joints: pose}
	if src.Contains("global_orient") {
		orientArr, err := src.Array("global_orient")
		if err != nil {
			return nil, err
		}
		values, err := frameValues(orientArr, frame)
		if err != nil {
			return nil, err
		}
		if len(values) != 3 {
			return nil, fmt.Errorf("%w: global_orient has %d values, want 3", ErrPoseSize, len(values))
		}
		orient := math.Vec3FromSlice(values)
		result.GlobalOrient = &orient
	}
	return result, nil
}

// frameValues returns the values of one frame. 1-d arrays hold a single frame.
func frameValues(arr *NPYArray, frame int) ([]float64, error) {
	if !arr.DType.IsNumeric() {
		return nil, fmt.Errorf("%w: dtype %s", ErrUnsupportedDType, arr.DType)
	}
	if len(arr.Shape) < 2 {
		return arr.Data, nil
	}
	if arr.Shape[0] == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrPoseSize)
	}
	frame = max(0, min(frame, arr.Shape[0]-1))
	return arr.Row(frame)
}

// vectors splits 3*joints values into rotation vectors.
func vectors(values []float64, joints int) ([]math.Vec3, error) {
	if len(values) != joints*3 {
		return nil, fmt.Errorf("%w: got %d values, want %d (%d joints)", ErrPoseSize, len(values), joints*3, joints)
	}
	out := make([]math.Vec3, joints)
	for i := range out {
		out[i] = math.Vec3FromSlice(values[i*3:])
	}
	return out, nil
}

// ParseHandPoseNPY parses an .npy array of 3*handJoints values for one hand.
func ParseHandPoseNPY(data []byte, handJoints int) ([]math.Vec3, error) {
	arr, err := ParseNPY(data)
	if err != nil {
		return nil, err
	}
	if !arr.DType.IsNumeric() {
		return nil, fmt.Errorf("%w: hand pose array has dtype %s", ErrUnsupportedDType, arr.DType)
	}
	return vectors(arr.Data, handJoints)
}

// ParseHandPoseFile parses a hand pose .npy file from disk.
func ParseHandPoseFile(path string, handJoints int) ([]math.Vec3, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hand pose file: %w", err)
	}
	return ParseHandPoseNPY(data, handJoints)
}
