package operator

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/smplkit/internal/config"
	"github.com/Faultbox/smplkit/internal/scene"
	"github.com/Faultbox/smplkit/pkg/corrective"
	"github.com/Faultbox/smplkit/pkg/formats"
	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/regressor"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// fakeLoader serves synthetic regressors: the template puts joint j at
// (0.01·j, 0, 0) and beta 0 lifts every joint along Y.
type fakeLoader struct {
	jointLoads int
}

func (l *fakeLoader) LoadJointRegressor(_ context.Context, key regressor.Key) (*regressor.JointRegressor, error) {
	l.jointLoads++
	joints := key.Variant.Spec().JointCount()
	linear := mat.NewDense(3*joints, key.Betas, nil)
	template := mat.NewDense(joints, 3, nil)
	for j := 0; j < joints; j++ {
		template.Set(j, 0, 0.01*float64(j))
		linear.Set(3*j+1, 0, 1)
	}
	return regressor.NewJointRegressor(key, linear, template)
}

func (l *fakeLoader) LoadMeasurementRegressor(_ context.Context, gender smpl.Gender) (*regressor.MeasurementRegressor, error) {
	a := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.5})
	return regressor.NewMeasurementRegressor(gender, a, mat.NewVecDense(2, []float64{-1.7, -2}))
}

func uniformHand(v math.Vec3) corrective.HandPose {
	hand := make(corrective.HandPose, 15)
	for i := range hand {
		hand[i] = v
	}
	return hand
}

func newTestOperator(t *testing.T, mutate ...func(*config.Config)) (*Operator, *fakeLoader) {
	t.Helper()
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	for _, m := range mutate {
		m(cfg)
	}
	loader := &fakeLoader{}
	op, err := New(cfg, nil,
		WithLoader(loader),
		WithRelaxedHands(uniformHand(math.Vec3{X: 0.2}), uniformHand(math.Vec3{X: -0.2})))
	require.NoError(t, err)
	return op, loader
}

func newAvatar(t *testing.T, v smpl.Variant, opts ...scene.Option) *scene.Avatar {
	t.Helper()
	a, err := scene.NewAvatar(v, smpl.Female, opts...)
	require.NoError(t, err)
	return a
}

func TestSetPoseCorrectives(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX)
	require.NoError(t, a.WriteJointRotation("left_hip", math.Vec3{X: 0.1}))

	weights, err := op.SetPoseCorrectives(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, weights, 207)

	r, err := math.RodriguesToMat3(math.Vec3{X: 0.1})
	require.NoError(t, err)
	want := r.Sub(math.Identity3())
	assert.InDeltaSlice(t, want[:], weights[:9], 1e-12)
	assert.Equal(t, weights, a.CorrectiveWeights())
}

func TestSetPoseCorrectivesChannelMismatch(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX, scene.WithCorrectiveChannels(100))
	require.NoError(t, a.WriteJointRotation("left_hip", math.Vec3{X: 0.1}))

	_, err := op.SetPoseCorrectives(context.Background(), a)
	assert.ErrorIs(t, err, corrective.ErrChannelCountMismatch)
	assert.Zero(t, floats.Norm(a.CorrectiveWeights(), 1), "nothing written on mismatch")
}

func TestSetPoseCorrectivesConfiguredTruncation(t *testing.T) {
	op, _ := newTestOperator(t, func(c *config.Config) {
		c.Correctives.Truncation = map[string]int{"SMPLX": 0}
	})
	a := newAvatar(t, smpl.SMPLX, scene.WithCorrectiveChannels(486))

	weights, err := op.SetPoseCorrectives(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, weights, 486)
}

func TestSetPoseCorrectivesForSequence(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SUPR)

	require.NoError(t, a.WriteJointRotation("spine1", math.Vec3{Z: 0.4}))
	require.NoError(t, a.KeyframeJoint("spine1", 1))
	require.NoError(t, a.WriteJointRotation("spine1", math.Vec3{}))
	require.NoError(t, a.KeyframeJoint("spine1", 3))

	n, err := op.SetPoseCorrectivesForSequence(context.Background(), a, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	spine := a.Variant().Spec().JointIndex("spine1")
	channel := scene.KeyChannel(corrective.ChannelName(4*spine + 2))
	assert.Equal(t, []int{1, 2, 3}, a.Keyframes(channel))

	first, ok := a.KeyframeValues(channel, 1)
	require.True(t, ok)
	assert.NotZero(t, first[0])
	last, ok := a.KeyframeValues(channel, 3)
	require.True(t, ok)
	assert.Zero(t, last[0])

	_, err = op.SetPoseCorrectivesForSequence(context.Background(), a, 5, 2)
	assert.ErrorIs(t, err, ErrInvalidFrameRange)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = op.SetPoseCorrectivesForSequence(ctx, a, 1, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResetPose(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLH)
	require.NoError(t, a.WriteJointRotation("neck", math.Vec3{Y: 1}))
	require.NoError(t, a.WriteJointTranslation("pelvis", math.Vec3{Z: 5}))
	require.NoError(t, a.WriteRootRotation(math.QuatFromAxisAngle(math.Vec3{X: 1}, 1)))
	_, err := op.SetPoseCorrectives(context.Background(), a)
	require.NoError(t, err)
	require.NotZero(t, floats.Norm(a.CorrectiveWeights(), 1))

	require.NoError(t, op.ResetPose(a))

	pose, err := a.Pose()
	require.NoError(t, err)
	for _, v := range pose {
		assert.InDelta(t, 0.0, v.Length(), 1e-12)
	}
	pelvis, err := a.Bone("pelvis")
	require.NoError(t, err)
	assert.Equal(t, math.Vec3{}, pelvis.Location)
	assert.Zero(t, floats.Norm(a.CorrectiveWeights(), 1))

	root, err := a.Bone(scene.RootBone)
	require.NoError(t, err)
	assert.Equal(t, math.QuatIdentity(), root.Rotation)
}

func TestResetBodyShape(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX, scene.WithBetas(16))
	require.NoError(t, a.SetShapeValue(0, 0.5))
	require.NoError(t, a.SetShapeValue(15, -2))
	_, err := op.UpdateJointLocations(context.Background(), a)
	require.NoError(t, err)

	require.NoError(t, op.ResetBodyShape(context.Background(), a))
	assert.Equal(t, make([]float64, 16), a.ShapeValues())

	knee, err := a.Bone("left_knee")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, knee.Head.Y, 1e-9)

	// Variants without a regressor still get their keys cleared.
	h := newAvatar(t, smpl.SMPLH)
	require.NoError(t, h.SetShapeValue(3, 1))
	require.NoError(t, op.ResetBodyShape(context.Background(), h))
	assert.Zero(t, floats.Norm(h.ShapeValues(), 1))
}

func TestRandomBodyShape(t *testing.T) {
	op, _ := newTestOperator(t)
	WithNormal(func() float64 { return 1 })(op)
	a := newAvatar(t, smpl.SMPLX, scene.WithBetas(16))
	require.NoError(t, a.SetShapeValue(12, 3))

	betas, err := op.RandomBodyShape(context.Background(), a, 2)
	require.NoError(t, err)
	require.Len(t, betas, 10)
	for _, b := range betas {
		assert.InDelta(t, 1.5, b, 1e-12)
	}
	values := a.ShapeValues()
	assert.InDelta(t, 1.5, values[9], 1e-12)
	assert.Equal(t, 0.0, values[10])
	assert.Equal(t, 3.0, values[12], "keys past the first ten are left alone")

	knee, err := a.Bone("left_knee")
	require.NoError(t, err)
	assert.InDelta(t, 150.0, knee.Head.Y, 1e-9)

	few := newAvatar(t, smpl.SMPLX, scene.WithBetas(4))
	betas, err = op.RandomBodyShape(context.Background(), few, 1)
	require.NoError(t, err)
	assert.Len(t, betas, 4)

	_, err = op.RandomBodyShape(context.Background(), a, 5.5)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRandomBodyShapeDefaultSource(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX)

	betas, err := op.RandomBodyShape(context.Background(), a, 1.5)
	require.NoError(t, err)
	assert.NotZero(t, floats.Norm(betas, 1))

	zero, err := op.RandomBodyShape(context.Background(), a, 0)
	require.NoError(t, err)
	assert.Zero(t, floats.Norm(zero, 1))
}

func TestFixBlendShapeRanges(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLH, scene.WithCorrectiveChannels(3))
	require.NoError(t, a.SetShapeValue(0, 25))
	require.NoError(t, a.SetSliderRange("Pose002", -1, 0))

	require.NoError(t, op.FixBlendShapeRanges(a))
	for _, name := range a.KeyNames() {
		k, err := a.ShapeKey(name)
		require.NoError(t, err)
		assert.Equal(t, -10.0, k.SliderMin, name)
		assert.Equal(t, 10.0, k.SliderMax, name)
	}
	k, err := a.ShapeKey("Shape000")
	require.NoError(t, err)
	assert.Equal(t, 25.0, k.Value)
}

func TestCorrectForAnimFormat(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX)
	root, err := a.Bone(scene.RootBone)
	require.NoError(t, err)

	require.NoError(t, op.CorrectForAnimFormat(a, "blender"))
	assert.Equal(t, math.QuatIdentity(), root.Rotation)

	// AMASS replaces the root rotation rather than composing with it.
	for i := 0; i < 2; i++ {
		require.NoError(t, op.CorrectForAnimFormat(a, "AMASS"))
		up := root.Rotation.ToMat3().MulVec(math.Vec3{Y: 1})
		assert.InDelta(t, 0.0, up.Y, 1e-12)
		assert.InDelta(t, -1.0, up.Z, 1e-12)
	}

	assert.ErrorIs(t, op.CorrectForAnimFormat(a, "fbx"), ErrUnknownAnimFormat)
}

func TestUpdateJointLocations(t *testing.T) {
	op, loader := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX)
	require.NoError(t, a.SetShapeValue(0, 0.5))

	joints, err := op.UpdateJointLocations(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, joints, 55)

	knee, err := a.Bone("left_knee")
	require.NoError(t, err)
	j := smpl.SMPLX.Spec().JointIndex("left_knee")
	assert.InDelta(t, float64(j), knee.Head.X, 1e-9)
	assert.InDelta(t, 50.0, knee.Head.Y, 1e-9)

	// Second call hits the cache.
	_, err = op.UpdateJointLocations(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.jointLoads)
}

func TestUpdateJointLocationsZUp(t *testing.T) {
	op, _ := newTestOperator(t, func(c *config.Config) { c.Model.ZUp = true })
	a := newAvatar(t, smpl.SUPR)
	require.NoError(t, a.SetShapeValue(0, 0.5))

	_, err := op.UpdateJointLocations(context.Background(), a)
	require.NoError(t, err)

	head, err := a.Bone("head")
	require.NoError(t, err)
	// Y-up (x, 0.5, 0) lands on Z in a Z-up scene.
	assert.InDelta(t, 50.0, head.Head.Z, 1e-9)
	assert.InDelta(t, 0.0, head.Head.Y, 1e-9)
}

func TestUpdateJointLocationsNoRegressor(t *testing.T) {
	op, loader := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLH)

	_, err := op.UpdateJointLocations(context.Background(), a)
	assert.ErrorIs(t, err, ErrNoRegressor)
	assert.Zero(t, loader.jointLoads)
}

func TestSetHandPose(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX)
	spec := smpl.SMPLX.Spec()

	require.NoError(t, a.WriteJointRotation("left_index1", math.Vec3{Z: 1}))
	require.NoError(t, a.WriteJointRotation("left_wrist", math.Vec3{Z: 1}))

	require.NoError(t, op.SetHandPose(a, config.HandPoseRelaxed))
	pose, err := a.Pose()
	require.NoError(t, err)
	assert.InDelta(t, 0.2, pose[spec.JointIndex("left_index1")].X, 1e-12)
	assert.InDelta(t, 0.0, pose[spec.JointIndex("left_index1")].Z, 1e-12)
	assert.InDelta(t, -0.2, pose[spec.JointIndex("right_pinky3")].X, 1e-12)
	assert.InDelta(t, 1.0, pose[spec.JointIndex("left_wrist")].Z, 1e-12)

	require.NoError(t, op.SetHandPose(a, config.HandPoseFlat))
	pose, err = a.Pose()
	require.NoError(t, err)
	for _, j := range spec.FingerJoints() {
		assert.InDelta(t, 0.0, pose[j].Length(), 1e-12)
	}

	assert.ErrorIs(t, op.SetHandPose(a, "fist"), ErrUnknownHandPose)
}

func TestRelaxedHandsFromDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = t.TempDir()
	op, err := New(cfg, nil)
	require.NoError(t, err)

	_, _, err = op.RelaxedHands()
	require.Error(t, err, "no hand files yet")

	writeNPY(t, cfg.Data.Dir, relaxedLeftFile, constant(45, 0.1), 45)
	writeNPY(t, cfg.Data.Dir, relaxedRightFile, constant(45, -0.1), 45)

	left, right, err := op.RelaxedHands()
	require.NoError(t, err)
	assert.Len(t, left, 15)
	assert.Equal(t, math.Vec3{X: -0.1, Y: -0.1, Z: -0.1}, right[3])
}

func TestMeasurementsToShape(t *testing.T) {
	op, loader := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLX)

	betas, err := op.MeasurementsToShape(context.Background(), a, 170, 64)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0}, betas, 1e-12)
	assert.Equal(t, 1, loader.jointLoads, "joints refit after shape change")

	_, err = op.MeasurementsToShape(context.Background(), a, -1, 64)
	assert.Error(t, err)

	small := newAvatar(t, smpl.SMPLX, scene.WithBetas(1))
	_, err = op.MeasurementsToShape(context.Background(), small, 170, 64)
	assert.ErrorIs(t, err, ErrShapeKeysMissing)

	// SMPL-H has no joint regressor; the shape is still applied.
	h := newAvatar(t, smpl.SMPLH)
	_, err = op.MeasurementsToShape(context.Background(), h, 180, 90)
	require.NoError(t, err)
	assert.NotZero(t, h.ShapeValues()[0])
}

func TestWritePose(t *testing.T) {
	op, _ := newTestOperator(t)
	a := newAvatar(t, smpl.SMPLH)
	require.NoError(t, a.WriteJointRotation("head", math.Vec3{X: 0.3}))
	// SMPL-H has no jaw.
	require.Error(t, a.WriteJointRotation("jaw", math.Vec3{X: 0.3}))

	var buf bytes.Buffer
	require.NoError(t, op.WritePose(a, &buf))

	data, err := formats.ParsePoseJSON(buf.Bytes(), 52)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, data.Joints[smpl.SMPLH.Spec().JointIndex("head")].X, 1e-12)
}
