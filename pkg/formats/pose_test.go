package formats

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/smplkit/pkg/math"
)

// mapSource is an in-memory ArraySource.
type mapSource map[string]*NPYArray

func (m mapSource) Contains(key string) bool {
	_, ok := m[key]
	return ok
}

func (m mapSource) Array(key string) (*NPYArray, error) {
	arr, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("no member %s", key)
	}
	return arr, nil
}

func floatArray(t *testing.T, values []float64, shape ...int) *NPYArray {
	t.Helper()
	data, err := EncodeNPY(values, shape)
	require.NoError(t, err)
	arr, err := ParseNPY(data)
	require.NoError(t, err)
	return arr
}

func stringArray(t *testing.T, s string) *NPYArray {
	t.Helper()
	arr, err := ParseNPY(EncodeNPYString(s))
	require.NoError(t, err)
	return arr
}

func seq(n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * scale
	}
	return out
}

func TestPoseJSONRoundTrip(t *testing.T) {
	pose := []math.Vec3{{X: 0.1, Y: 0.2, Z: 0.3}, {}, {X: -1}}

	var buf bytes.Buffer
	require.NoError(t, WritePoseJSON(&buf, pose))
	assert.Contains(t, buf.String(), `"pose"`)
	assert.NotContains(t, buf.String(), "global_orient")

	got, err := ParsePoseJSON(buf.Bytes(), 3)
	require.NoError(t, err)
	assert.Equal(t, pose, got.Joints)
	assert.Nil(t, got.GlobalOrient)
}

func TestParsePoseJSON(t *testing.T) {
	got, err := ParsePoseJSON([]byte(`{"pose": [0,0,0, 1,2,3], "global_orient": [0.5, 0, 0]}`), 2)
	require.NoError(t, err)
	assert.Equal(t, math.Vec3{X: 1, Y: 2, Z: 3}, got.Joints[1])
	require.NotNil(t, got.GlobalOrient)
	assert.Equal(t, math.Vec3{X: 0.5}, *got.GlobalOrient)

	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"malformed", `{"pose": [1,2`, ErrInvalidPoseJSON},
		{"missing key", `{"poses": [0,0,0]}`, ErrMissingPoseKey},
		{"wrong size", `{"pose": [0,0,0,1]}`, ErrPoseSize},
		{"bad orient", `{"pose": [0,0,0,0,0,0], "global_orient": [1]}`, ErrPoseSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePoseJSON([]byte(tt.doc), 2)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParsePoseNPY(t *testing.T) {
	data, err := EncodeNPY(seq(6, 1), []int{1, 6})
	require.NoError(t, err)

	got, err := ParsePoseNPY(data, 2)
	require.NoError(t, err)
	assert.Equal(t, math.Vec3{X: 3, Y: 4, Z: 5}, got.Joints[1])

	_, err = ParsePoseNPY(data, 3)
	assert.ErrorIs(t, err, ErrPoseSize)
}

func TestParsePoseArchive(t *testing.T) {
	const joints = 2
	src := mapSource{
		"poses": floatArray(t, seq(3*joints*3, 1), 3, joints*3),
	}

	t.Run("frame", func(t *testing.T) {
		got, err := ParsePoseArchive(src, joints, 1)
		require.NoError(t, err)
		assert.Equal(t, math.Vec3{X: 6, Y: 7, Z: 8}, got.Joints[0])
	})

	t.Run("clamped", func(t *testing.T) {
		got, err := ParsePoseArchive(src, joints, 99)
		require.NoError(t, err)
		assert.Equal(t, math.Vec3{X: 12, Y: 13, Z: 14}, got.Joints[0])

		got, err = ParsePoseArchive(src, joints, -5)
		require.NoError(t, err)
		assert.Equal(t, math.Vec3{}, got.Joints[0])
	})

	t.Run("pose key preferred", func(t *testing.T) {
		withPose := mapSource{
			"pose":          floatArray(t, []float64{9, 9, 9, 8, 8, 8}, joints*3),
			"poses":         src["poses"],
			"global_orient": floatArray(t, []float64{0, 1, 0}, 3),
		}
		got, err := ParsePoseArchive(withPose, joints, 2)
		require.NoError(t, err)
		assert.Equal(t, math.Vec3{X: 9, Y: 9, Z: 9}, got.Joints[0])
		require.NotNil(t, got.GlobalOrient)
		assert.Equal(t, math.Vec3{Y: 1}, *got.GlobalOrient)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ParsePoseArchive(mapSource{}, joints, 0)
		assert.ErrorIs(t, err, ErrMissingPoseKey)
	})
}

func TestParseHandPoseNPY(t *testing.T) {
	data, err := EncodeNPY(seq(45, 0.01), []int{45})
	require.NoError(t, err)

	hand, err := ParseHandPoseNPY(data, 15)
	require.NoError(t, err)
	assert.Len(t, hand, 15)
	assert.InDelta(t, 0.44, hand[14].Z, 1e-12)

	_, err = ParseHandPoseNPY(data, 16)
	assert.True(t, errors.Is(err, ErrPoseSize))
}
