package scene

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

func TestNewAvatar(t *testing.T) {
	tests := []struct {
		variant  smpl.Variant
		joints   int
		channels int
	}{
		{smpl.SMPLX, 55, 207},
		{smpl.SMPLH, 52, 207},
		{smpl.SUPR, 75, 300},
	}

	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			a, err := NewAvatar(tt.variant, smpl.Female)
			require.NoError(t, err)
			assert.Len(t, a.Bones(), tt.joints)
			assert.Len(t, a.CorrectiveChannels(), tt.channels)
			assert.Len(t, a.ShapeValues(), 10)
			assert.Equal(t, tt.variant.String()+"-female", a.Name)
			assert.Equal(t, "Pose000", a.CorrectiveChannels()[0])
		})
	}

	_, err := NewAvatar(smpl.Variant(0), smpl.Male)
	assert.ErrorIs(t, err, smpl.ErrUnknownVariant)
	_, err = NewAvatar(smpl.SMPLX, "robot")
	assert.ErrorIs(t, err, smpl.ErrUnknownGender)
}

func TestAvatarOptions(t *testing.T) {
	a, err := NewAvatar(smpl.SMPLX, smpl.Male, WithBetas(300), WithCorrectiveChannels(486), WithName("body"))
	require.NoError(t, err)
	assert.Len(t, a.ShapeValues(), 300)
	assert.Len(t, a.CorrectiveChannels(), 486)
	assert.Equal(t, "body", a.Name)
}

func TestJointRotationRoundTrip(t *testing.T) {
	a, err := NewAvatar(smpl.SMPLX, smpl.Neutral)
	require.NoError(t, err)

	v := math.Vec3{X: 0.3, Y: -0.2, Z: 1.1}
	require.NoError(t, a.WriteJointRotation("left_knee", v))

	got, err := a.ReadJointRotation("left_knee")
	require.NoError(t, err)
	assert.InDelta(t, v.X, got.X, 1e-12)
	assert.InDelta(t, v.Y, got.Y, 1e-12)
	assert.InDelta(t, v.Z, got.Z, 1e-12)

	rest, err := a.ReadJointRotation("pelvis")
	require.NoError(t, err)
	assert.Equal(t, math.Vec3{}, rest)

	_, err = a.ReadJointRotation("tail")
	assert.ErrorIs(t, err, ErrUnknownJoint)
	assert.ErrorIs(t, a.WriteJointRotation("left_knee", math.Vec3{X: gomath.Inf(1)}), math.ErrInvalidRotation)
}

func TestShapeKeys(t *testing.T) {
	a, err := NewAvatar(smpl.SMPLX, smpl.Neutral)
	require.NoError(t, err)

	require.NoError(t, a.SetShapeValue(0, 12.5))
	require.NoError(t, a.SetShapeValue(1, -14))
	require.NoError(t, a.SetShapeValue(2, 3))

	k, err := a.ShapeKey("Shape000")
	require.NoError(t, err)
	assert.Equal(t, 12.5, k.SliderMax)
	assert.Equal(t, DefaultSliderMin, k.SliderMin)

	k, err = a.ShapeKey("Shape001")
	require.NoError(t, err)
	assert.Equal(t, -14.0, k.SliderMin)

	assert.Equal(t, []float64{12.5, -14, 3, 0, 0, 0, 0, 0, 0, 0}, a.ShapeValues())
	assert.True(t, errors.Is(a.SetShapeValue(10, 1), ErrUnknownShapeKey))

	require.NoError(t, a.WriteCorrectiveWeight(206, 0.25))
	assert.Equal(t, 0.25, a.CorrectiveWeights()[206])
	assert.ErrorIs(t, a.WriteCorrectiveWeight(207, 1), ErrUnknownShapeKey)
}

func TestKeyframes(t *testing.T) {
	a, err := NewAvatar(smpl.SMPLH, smpl.Male, WithCorrectiveChannels(2))
	require.NoError(t, err)

	require.NoError(t, a.WriteJointRotation("spine1", math.Vec3{Z: 0.5}))
	require.NoError(t, a.WriteJointTranslation("pelvis", math.Vec3{Y: 90}))
	require.NoError(t, a.KeyframeJoint("spine1", 1))
	require.NoError(t, a.KeyframeJoint("pelvis", 1))
	require.NoError(t, a.WriteCorrectiveWeight(1, 0.7))
	require.NoError(t, a.KeyframeCorrectives(1))

	require.NoError(t, a.WriteJointRotation("spine1", math.Vec3{Z: -0.5}))
	require.NoError(t, a.WriteJointTranslation("pelvis", math.Vec3{Y: 95}))
	require.NoError(t, a.KeyframeJoint("spine1", 5))
	require.NoError(t, a.KeyframeJoint("pelvis", 5))
	require.NoError(t, a.WriteCorrectiveWeight(1, -0.1))
	require.NoError(t, a.KeyframeCorrectives(5))

	assert.Equal(t, []int{1, 5}, a.Keyframes(RotationChannel("spine1")))
	assert.Contains(t, a.Channels(), KeyChannel("Pose001"))

	// Constant interpolation: frame 3 holds frame 1's key.
	a.SetFrame(3)
	assert.Equal(t, 3, a.Frame())
	v, err := a.ReadJointRotation("spine1")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v.Z, 1e-12)
	pelvis, err := a.Bone("pelvis")
	require.NoError(t, err)
	assert.Equal(t, 90.0, pelvis.Location.Y)
	assert.Equal(t, 0.7, a.CorrectiveWeights()[1])

	a.SetFrame(7)
	v, err = a.ReadJointRotation("spine1")
	require.NoError(t, err)
	assert.InDelta(t, -0.5, v.Z, 1e-12)
	assert.Equal(t, -0.1, a.CorrectiveWeights()[1])

	values, ok := a.KeyframeValues(LocationChannel("pelvis"), 5)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 95, 0}, values)
	_, ok = a.KeyframeValues(LocationChannel("pelvis"), 4)
	assert.False(t, ok)

	// Re-keying a frame replaces it.
	require.NoError(t, a.KeyframeJoint("spine1", 5))
	assert.Equal(t, []int{1, 5}, a.Keyframes(RotationChannel("spine1")))
}

func TestTrackInsertOrder(t *testing.T) {
	var tr track
	tr.set(10, []float64{10})
	tr.set(2, []float64{2})
	tr.set(6, []float64{6})
	assert.Equal(t, []int{2, 6, 10}, tr.frames)

	v, ok := tr.at(1)
	require.True(t, ok)
	assert.Equal(t, []float64{2}, v)
	v, _ = tr.at(9)
	assert.Equal(t, []float64{6}, v)
	v, _ = tr.at(10)
	assert.Equal(t, []float64{10}, v)
}

func TestSliderRange(t *testing.T) {
	a, err := NewAvatar(smpl.SMPLH, smpl.Female, WithBetas(2), WithCorrectiveChannels(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"Shape000", "Shape001", "Pose000"}, a.KeyNames())

	require.NoError(t, a.SetShapeValue(0, 25))
	require.NoError(t, a.SetSliderRange("Shape000", -10, 10))

	k, err := a.ShapeKey("Shape000")
	require.NoError(t, err)
	assert.Equal(t, -10.0, k.SliderMin)
	assert.Equal(t, 10.0, k.SliderMax)
	assert.Equal(t, 25.0, k.Value)

	assert.Error(t, a.SetSliderRange("Shape001", 1, -1))
	assert.ErrorIs(t, a.SetSliderRange("Shape009", -1, 1), ErrUnknownShapeKey)
}

func TestRootBone(t *testing.T) {
	a, err := NewAvatar(smpl.SMPLX, smpl.Neutral, WithCorrectiveChannels(0))
	require.NoError(t, err)

	root, err := a.Bone(RootBone)
	require.NoError(t, err)
	assert.Equal(t, math.QuatIdentity(), root.Rotation)
	assert.Len(t, a.Bones(), 55)

	q := math.QuatFromAxisAngle(math.Vec3{X: 1}, -gomath.Pi/2)
	require.NoError(t, a.WriteRootRotation(q))
	require.NoError(t, a.KeyframeRoot(1))

	pose, err := a.Pose()
	require.NoError(t, err)
	assert.Equal(t, math.Vec3{}, pose[0], "root rotation must not leak into the model pose")

	require.NoError(t, a.WriteRootRotation(math.QuatIdentity()))
	a.SetFrame(1)
	assert.InDelta(t, q.W, root.Rotation.W, 1e-12)
	assert.InDelta(t, q.X, root.Rotation.X, 1e-12)
	assert.Equal(t, []int{1}, a.Keyframes(RotationChannel(RootBone)))
}
