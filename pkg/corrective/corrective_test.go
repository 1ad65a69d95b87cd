package corrective

import (
	"errors"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

func zeroPose(t *testing.T, v smpl.Variant) Pose {
	t.Helper()
	pose, err := ZeroPose(v)
	require.NoError(t, err)
	return pose
}

func TestComputeZeroPoseIsZero(t *testing.T) {
	for _, v := range smpl.Variants() {
		t.Run(v.String(), func(t *testing.T) {
			weights, err := Compute(zeroPose(t, v), v)
			require.NoError(t, err)
			require.NotEmpty(t, weights)
			assert.Zero(t, floats.Norm(weights, 1), "rest pose must produce zero correctives")
		})
	}
}

func TestComputeLength(t *testing.T) {
	tests := []struct {
		variant smpl.Variant
		want    int
	}{
		{smpl.SMPLX, 207},
		{smpl.SMPLH, 207},
		{smpl.SUPR, 4 * 75},
	}

	for _, tt := range tests {
		t.Run(tt.variant.String(), func(t *testing.T) {
			pose := zeroPose(t, tt.variant)
			for i := range pose {
				pose[i] = math.Vec3{X: 0.01 * float64(i), Y: -0.2, Z: 0.3}
			}
			weights, err := Compute(pose, tt.variant)
			require.NoError(t, err)
			assert.Len(t, weights, tt.want)

			n, err := NewEngine().ChannelCount(tt.variant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestComputeUntruncated(t *testing.T) {
	e := NewEngine(WithTruncation(smpl.SMPLX, 0), WithTruncation(smpl.SMPLH, 0))

	weights, err := e.Compute(zeroPose(t, smpl.SMPLX), smpl.SMPLX)
	require.NoError(t, err)
	assert.Len(t, weights, 9*54)

	weights, err = e.Compute(zeroPose(t, smpl.SMPLH), smpl.SMPLH)
	require.NoError(t, err)
	assert.Len(t, weights, 9*51)
}

func TestComputeCustomTruncation(t *testing.T) {
	e := NewEngine(WithTruncation(smpl.SUPR, 12))
	weights, err := e.Compute(zeroPose(t, smpl.SUPR), smpl.SUPR)
	require.NoError(t, err)
	assert.Len(t, weights, 12)
}

func TestComputeMatrixLeftHip(t *testing.T) {
	pose := zeroPose(t, smpl.SMPLX)
	pose[1] = math.Vec3{X: 0.1}

	weights, err := Compute(pose, smpl.SMPLX)
	require.NoError(t, err)

	r, err := math.RodriguesToMat3(math.Vec3{X: 0.1})
	require.NoError(t, err)
	want := r.Sub(math.Identity3())

	assert.InDeltaSlice(t, want[:], weights[0:9], 1e-12)
	assert.Zero(t, floats.Norm(weights[9:], 1))

	c, s := gomath.Cos(0.1), gomath.Sin(0.1)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 0, c - 1, -s, 0, s, c - 1}, weights[0:9], 1e-12)
}

func TestComputeMatrixSkipsRoot(t *testing.T) {
	pose := zeroPose(t, smpl.SMPLX)
	pose[0] = math.Vec3{X: 1, Y: 2, Z: 3}

	weights, err := Compute(pose, smpl.SMPLX)
	require.NoError(t, err)
	assert.Zero(t, floats.Norm(weights, 1), "root rotation must not drive matrix correctives")
}

func TestComputeQuaternionRoot(t *testing.T) {
	pose := zeroPose(t, smpl.SUPR)
	pose[0] = math.Vec3{Y: gomath.Pi / 2}

	weights, err := Compute(pose, smpl.SUPR)
	require.NoError(t, err)

	h := gomath.Pi / 4
	assert.InDeltaSlice(t, []float64{0, gomath.Sin(h), 0, gomath.Cos(h) - 1}, weights[0:4], 1e-12)
	assert.Zero(t, floats.Norm(weights[4:], 1))
}

func TestComputeErrors(t *testing.T) {
	_, err := Compute(make(Pose, 10), smpl.SMPLX)
	assert.ErrorIs(t, err, ErrJointCountMismatch)

	_, err = Compute(make(Pose, 55), smpl.Variant(99))
	assert.ErrorIs(t, err, smpl.ErrUnknownVariant)

	pose := zeroPose(t, smpl.SUPR)
	pose[3] = math.Vec3{X: gomath.NaN()}
	weights, err := Compute(pose, smpl.SUPR)
	assert.ErrorIs(t, err, math.ErrInvalidRotation)
	assert.Nil(t, weights, "no partial results on error")
}

func TestPoseFlatRoundTrip(t *testing.T) {
	flat := []float64{1, 2, 3, 4, 5, 6}
	pose, err := PoseFromFlat(flat)
	require.NoError(t, err)
	assert.Equal(t, Pose{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}, pose)
	assert.Equal(t, flat, pose.Flat())

	_, err = PoseFromFlat([]float64{1, 2})
	assert.True(t, errors.Is(err, ErrJointCountMismatch))
}
