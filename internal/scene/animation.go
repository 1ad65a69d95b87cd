package scene

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Faultbox/smplkit/pkg/corrective"
	"github.com/Faultbox/smplkit/pkg/math"
)

// Channel name layout: "bone/<joint>/rotation", "bone/<joint>/location",
// "key/<shape key>".
const (
	bonePrefix     = "bone/"
	keyPrefix      = "key/"
	rotationSuffix = "/rotation"
	locationSuffix = "/location"
)

// RotationChannel returns the channel name of a joint's rotation.
func RotationChannel(joint string) string { return bonePrefix + joint + rotationSuffix }

// LocationChannel returns the channel name of a joint's translation.
func LocationChannel(joint string) string { return bonePrefix + joint + locationSuffix }

// KeyChannel returns the channel name of a shape key value.
func KeyChannel(key string) string { return keyPrefix + key }

// track holds keyframes of one channel, sorted by frame.
type track struct {
	frames []int
	values [][]float64
}

// set inserts or replaces the key at frame.
func (t *track) set(frame int, values []float64) {
	i := sort.SearchInts(t.frames, frame)
	if i < len(t.frames) && t.frames[i] == frame {
		t.values[i] = values
		return
	}
	t.frames = append(t.frames, 0)
	t.values = append(t.values, nil)
	copy(t.frames[i+1:], t.frames[i:])
	copy(t.values[i+1:], t.values[i:])
	t.frames[i] = frame
	t.values[i] = values
}

// at returns the key in effect at frame: the last key at or before it, or
// the first key for frames before the track starts. Interpolation is constant.
func (t *track) at(frame int) ([]float64, bool) {
	if len(t.frames) == 0 {
		return nil, false
	}
	i := sort.SearchInts(t.frames, frame+1) - 1
	if i < 0 {
		i = 0
	}
	return t.values[i], true
}

func (a *Avatar) insertKey(channel string, frame int, values ...float64) {
	tr, ok := a.tracks[channel]
	if !ok {
		tr = &track{}
		a.tracks[channel] = tr
	}
	tr.set(frame, values)
}

// KeyframeJoint records the rotation and translation of a joint at frame.
func (a *Avatar) KeyframeJoint(name string, frame int) error {
	b, err := a.Bone(name)
	if err != nil {
		return err
	}
	a.insertKey(RotationChannel(name), frame, b.Rotation.W, b.Rotation.X, b.Rotation.Y, b.Rotation.Z)
	a.insertKey(LocationChannel(name), frame, b.Location.X, b.Location.Y, b.Location.Z)
	return nil
}

// KeyframeCorrectives records every Pose key value at frame.
func (a *Avatar) KeyframeCorrectives(frame int) error {
	for _, k := range a.keysWithPrefix(corrective.ChannelPrefix) {
		a.insertKey(KeyChannel(k.Name), frame, k.Value)
	}
	return nil
}

// Keyframes returns the keyed frames of a channel.
func (a *Avatar) Keyframes(channel string) []int {
	tr, ok := a.tracks[channel]
	if !ok {
		return nil
	}
	return append([]int(nil), tr.frames...)
}

// KeyframeValues returns the values keyed on channel at exactly frame.
func (a *Avatar) KeyframeValues(channel string, frame int) ([]float64, bool) {
	tr, ok := a.tracks[channel]
	if !ok {
		return nil, false
	}
	i := sort.SearchInts(tr.frames, frame)
	if i == len(tr.frames) || tr.frames[i] != frame {
		return nil, false
	}
	return tr.values[i], true
}

func (a *Avatar) applyChannel(channel string, values []float64) {
	switch {
	case strings.HasPrefix(channel, bonePrefix) && strings.HasSuffix(channel, rotationSuffix):
		name := strings.TrimSuffix(strings.TrimPrefix(channel, bonePrefix), rotationSuffix)
		if b, err := a.Bone(name); err == nil && len(values) == 4 {
			b.Rotation = math.Quat{W: values[0], X: values[1], Y: values[2], Z: values[3]}
		}
	case strings.HasPrefix(channel, bonePrefix) && strings.HasSuffix(channel, locationSuffix):
		name := strings.TrimSuffix(strings.TrimPrefix(channel, bonePrefix), locationSuffix)
		if b, err := a.Bone(name); err == nil && len(values) == 3 {
			b.Location = math.Vec3FromSlice(values)
		}
	case strings.HasPrefix(channel, keyPrefix):
		if k, err := a.ShapeKey(strings.TrimPrefix(channel, keyPrefix)); err == nil && len(values) == 1 {
			k.Value = values[0]
		}
	}
}

// String summarizes the avatar for logs and the CLI.
func (a *Avatar) String() string {
	return fmt.Sprintf("%s (%s, %s, %d joints, %d shape keys, %d channels)",
		a.Name, a.variant, a.gender, len(a.bones), len(a.shapeKeys), len(a.tracks))
}
