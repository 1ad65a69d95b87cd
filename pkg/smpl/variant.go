// Package smpl describes the SMPL-family body model variants and their
// per-variant constants.
package smpl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/smplkit/pkg/math"
)

// ErrUnknownVariant is returned for model variant tags outside the supported set.
var ErrUnknownVariant = errors.New("unknown model variant")

// Variant identifies a body model.
type Variant int

// Supported model variants.
const (
	SMPLX Variant = iota + 1
	SMPLH
	SUPR
)

// CorrectiveModel selects how joint rotations become corrective weights.
type CorrectiveModel int

// Corrective models.
const (
	// MatrixCorrective flattens R−I for every non-root joint (9 per joint).
	MatrixCorrective CorrectiveModel = iota
	// QuaternionCorrective encodes (x, y, z, w−1) for every joint including the root.
	QuaternionCorrective
)

// String returns the corrective model name.
func (c CorrectiveModel) String() string {
	switch c {
	case MatrixCorrective:
		return "matrix"
	case QuaternionCorrective:
		return "quaternion"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// AxisRemap maps regressor-space points into scene space: p' = Scale * (Matrix * p).
type AxisRemap struct {
	Matrix math.Mat3
	Scale  float64
}

// Apply transforms one point.
func (a AxisRemap) Apply(p math.Vec3) math.Vec3 {
	return a.Matrix.MulVec(p).Scale(a.Scale)
}

// IdentityRemap leaves points untouched.
var IdentityRemap = AxisRemap{Matrix: math.Identity3(), Scale: 1}

// YUpToZUp converts Y-up regressor coordinates into a Z-up scene: (x, -z, y).
var YUpToZUp = math.Mat3{
	1, 0, 0,
	0, 0, -1,
	0, 1, 0,
}

// Spec holds everything that differs between variants.
type Spec struct {
	Variant    Variant
	Name       string
	JointNames []string
	BodyJoints int // excluding the root
	HandJoints int // per hand
	// HandStart is the index of the first left-hand finger joint.
	HandStart       int
	Corrective      CorrectiveModel
	CorrectiveLimit int // 0 keeps every channel
	Remap           AxisRemap
	HasRegressor    bool
}

// JointCount returns the number of joints in a full pose.
func (s *Spec) JointCount() int {
	return len(s.JointNames)
}

// CorrectiveCount returns the untruncated number of corrective channels.
func (s *Spec) CorrectiveCount() int {
	switch s.Corrective {
	case QuaternionCorrective:
		return 4 * s.JointCount()
	default:
		return 9 * (s.JointCount() - 1)
	}
}

// JointIndex returns the index of a named joint, or -1.
func (s *Spec) JointIndex(name string) int {
	for i, n := range s.JointNames {
		if n == name {
			return i
		}
	}
	return -1
}

// IsFingerJoint reports whether the joint at index belongs to either hand.
func (s *Spec) IsFingerJoint(index int) bool {
	return index >= s.HandStart && index < s.HandStart+2*s.HandJoints
}

// FingerJoints returns the finger joint indices, left hand first.
func (s *Spec) FingerJoints() []int {
	out := make([]int, 0, 2*s.HandJoints)
	for i := 0; i < 2*s.HandJoints; i++ {
		out = append(out, s.HandStart+i)
	}
	return out
}

var specs = map[Variant]*Spec{
	SMPLX: {
		Variant:    SMPLX,
		Name:       "SMPLX",
		JointNames: smplxJointNames,
		BodyJoints: 21,
		HandJoints: 15,
		// root + body + jaw + two eyes
		HandStart:  1 + 21 + 3,
		Corrective: MatrixCorrective,
		// Exported meshes only carry the first 207 of 486 channels.
		CorrectiveLimit: 207,
		Remap:           AxisRemap{Matrix: math.Identity3(), Scale: 100},
		HasRegressor:    true,
	},
	SMPLH: {
		Variant:         SMPLH,
		Name:            "SMPLH",
		JointNames:      smplhJointNames,
		BodyJoints:      21,
		HandJoints:      15,
		HandStart:       1 + 21,
		Corrective:      MatrixCorrective,
		CorrectiveLimit: 207,
		Remap:           IdentityRemap,
		HasRegressor:    false,
	},
	SUPR: {
		Variant:      SUPR,
		Name:         "SUPR",
		JointNames:   suprJointNames,
		BodyJoints:   21,
		HandJoints:   15,
		HandStart:    1 + 21 + 3,
		Corrective:   QuaternionCorrective,
		Remap:        AxisRemap{Matrix: math.Identity3(), Scale: 100},
		HasRegressor: true,
	},
}

// Variants lists the supported variants in display order.
func Variants() []Variant {
	return []Variant{SMPLX, SMPLH, SUPR}
}

// Lookup returns the constants for v.
func Lookup(v Variant) (*Spec, error) {
	s, ok := specs[v]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
	return s, nil
}

// Spec returns the constants for v. It panics for unknown variants; use
// Lookup for untrusted values.
func (v Variant) Spec() *Spec {
	s, err := Lookup(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Valid reports whether v is a supported variant.
func (v Variant) Valid() bool {
	_, ok := specs[v]
	return ok
}

// String returns the variant tag ("SMPLX", "SMPLH", "SUPR").
func (v Variant) String() string {
	if s, ok := specs[v]; ok {
		return s.Name
	}
	return fmt.Sprintf("Unknown(%d)", int(v))
}

// ParseVariant parses a variant tag. Dashes and case are ignored, so
// "SMPL-X", "smplx" and "SMPLX" are equivalent.
func ParseVariant(s string) (Variant, error) {
	tag := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	for _, v := range Variants() {
		if specs[v].Name == tag {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariant, int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
