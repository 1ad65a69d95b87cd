// Package scene provides an in-memory avatar: an armature, shape keys and
// keyframed animation channels that the operators read and write the way a
// DCC host would.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Faultbox/smplkit/pkg/corrective"
	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Scene errors.
var (
	ErrUnknownJoint    = errors.New("unknown joint")
	ErrUnknownShapeKey = errors.New("unknown shape key")
)

// ShapePrefix is the name prefix of body shape keys.
const ShapePrefix = "Shape"

// RootBone is the armature bone above the pelvis. It carries the scene
// orientation of the body and is not part of the model pose.
const RootBone = "root"

// Default slider range of a new shape key.
const (
	DefaultSliderMin = -10.0
	DefaultSliderMax = 10.0
)

// Bone is one armature joint.
type Bone struct {
	Name string
	// Rotation is the pose-space rotation.
	Rotation math.Quat
	// Location is the pose-space translation.
	Location math.Vec3
	// Head is the rest-pose joint location.
	Head math.Vec3
}

// ShapeKey is a named blend shape with a slider range.
type ShapeKey struct {
	Name      string
	Value     float64
	SliderMin float64
	SliderMax float64
}

// Option configures NewAvatar.
type Option func(*options)

type options struct {
	betas    int
	channels int
	name     string
}

// WithBetas sets the number of Shape keys.
func WithBetas(n int) Option {
	return func(o *options) { o.betas = n }
}

// WithCorrectiveChannels sets the number of Pose keys. Negative uses the
// variant's default channel count.
func WithCorrectiveChannels(n int) Option {
	return func(o *options) { o.channels = n }
}

// WithName sets the avatar name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Avatar is an in-memory rigged body model.
type Avatar struct {
	Name string

	variant smpl.Variant
	gender  smpl.Gender

	root      *Bone
	bones     []*Bone
	boneIndex map[string]int

	shapeKeys []*ShapeKey
	keyIndex  map[string]int

	tracks map[string]*track

	frame      int
	FrameStart int
	FrameEnd   int
	FPS        int
}

// NewAvatar creates an avatar in rest pose with zeroed shape keys.
func NewAvatar(v smpl.Variant, g smpl.Gender, opts ...Option) (*Avatar, error) {
	spec, err := smpl.Lookup(v)
	if err != nil {
		return nil, err
	}
	if _, err := smpl.ParseGender(string(g)); err != nil {
		return nil, err
	}

	o := options{betas: 10, channels: -1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.channels < 0 {
		if o.channels, err = corrective.NewEngine().ChannelCount(v); err != nil {
			return nil, err
		}
	}
	if o.name == "" {
		o.name = fmt.Sprintf("%s-%s", spec.Name, g)
	}

	a := &Avatar{
		Name:       o.name,
		variant:    v,
		gender:     g,
		boneIndex:  make(map[string]int, spec.JointCount()),
		keyIndex:   make(map[string]int, o.betas+o.channels),
		root:       &Bone{Name: RootBone, Rotation: math.QuatIdentity()},
		tracks:     make(map[string]*track),
		frame:      1,
		FrameStart: 1,
		FrameEnd:   250,
		FPS:        30,
	}

	for i, name := range spec.JointNames {
		a.bones = append(a.bones, &Bone{Name: name, Rotation: math.QuatIdentity()})
		a.boneIndex[name] = i
	}
	for i := 0; i < o.betas; i++ {
		a.addShapeKey(fmt.Sprintf("%s%03d", ShapePrefix, i))
	}
	for i := 0; i < o.channels; i++ {
		a.addShapeKey(corrective.ChannelName(i))
	}

	return a, nil
}

func (a *Avatar) addShapeKey(name string) {
	a.keyIndex[name] = len(a.shapeKeys)
	a.shapeKeys = append(a.shapeKeys, &ShapeKey{
		Name:      name,
		SliderMin: DefaultSliderMin,
		SliderMax: DefaultSliderMax,
	})
}

// Variant returns the body model variant.
func (a *Avatar) Variant() smpl.Variant { return a.variant }

// Gender returns the body model gender.
func (a *Avatar) Gender() smpl.Gender { return a.gender }

// Bone returns the named bone, including RootBone.
func (a *Avatar) Bone(name string) (*Bone, error) {
	if name == RootBone {
		return a.root, nil
	}
	i, ok := a.boneIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJoint, name)
	}
	return a.bones[i], nil
}

// Bones returns the model joints in joint order. RootBone is not included.
func (a *Avatar) Bones() []*Bone {
	return a.bones
}

// ReadJointRotation returns the pose rotation of a joint as a rotation vector.
func (a *Avatar) ReadJointRotation(name string) (math.Vec3, error) {
	b, err := a.Bone(name)
	if err != nil {
		return math.Vec3{}, err
	}
	return math.QuatToRodrigues(b.Rotation)
}

// WriteJointRotation sets the pose rotation of a joint from a rotation vector.
func (a *Avatar) WriteJointRotation(name string, v math.Vec3) error {
	b, err := a.Bone(name)
	if err != nil {
		return err
	}
	q, err := math.RodriguesToQuat(v)
	if err != nil {
		return fmt.Errorf("joint %s: %w", name, err)
	}
	b.Rotation = q
	return nil
}

// WriteRootRotation sets the rotation of RootBone.
func (a *Avatar) WriteRootRotation(q math.Quat) error {
	a.root.Rotation = q.Normalize()
	return nil
}

// KeyframeRoot records the rotation and translation of RootBone at frame.
func (a *Avatar) KeyframeRoot(frame int) error {
	return a.KeyframeJoint(RootBone, frame)
}

// WriteJointTranslation sets the pose-space translation of a joint.
func (a *Avatar) WriteJointTranslation(name string, p math.Vec3) error {
	b, err := a.Bone(name)
	if err != nil {
		return err
	}
	b.Location = p
	return nil
}

// WriteJointLocation moves the rest-pose head of a joint.
func (a *Avatar) WriteJointLocation(name string, p math.Vec3) error {
	b, err := a.Bone(name)
	if err != nil {
		return err
	}
	b.Head = p
	return nil
}

// ShapeKey returns the named shape key.
func (a *Avatar) ShapeKey(name string) (*ShapeKey, error) {
	i, ok := a.keyIndex[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShapeKey, name)
	}
	return a.shapeKeys[i], nil
}

func (a *Avatar) keysWithPrefix(prefix string) []*ShapeKey {
	var keys []*ShapeKey
	for _, k := range a.shapeKeys {
		if strings.HasPrefix(k.Name, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// CorrectiveChannels returns the names of the Pose keys in mesh order.
func (a *Avatar) CorrectiveChannels() []string {
	keys := a.keysWithPrefix(corrective.ChannelPrefix)
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return names
}

// CorrectiveWeights returns the current Pose key values.
func (a *Avatar) CorrectiveWeights() []float64 {
	keys := a.keysWithPrefix(corrective.ChannelPrefix)
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = k.Value
	}
	return out
}

// WriteCorrectiveWeight sets corrective channel i.
func (a *Avatar) WriteCorrectiveWeight(i int, w float64) error {
	k, err := a.ShapeKey(corrective.ChannelName(i))
	if err != nil {
		return err
	}
	k.Value = w
	return nil
}

// ShapeValues returns the current Shape key values (the betas).
func (a *Avatar) ShapeValues() []float64 {
	keys := a.keysWithPrefix(ShapePrefix)
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = k.Value
	}
	return out
}

// SetShapeValue sets Shape key i, widening its slider range to fit v.
func (a *Avatar) SetShapeValue(i int, v float64) error {
	k, err := a.ShapeKey(fmt.Sprintf("%s%03d", ShapePrefix, i))
	if err != nil {
		return err
	}
	if v < k.SliderMin {
		k.SliderMin = v
	} else if v > k.SliderMax {
		k.SliderMax = v
	}
	k.Value = v
	return nil
}

// KeyNames returns the names of every shape key, Shape and Pose, in order.
func (a *Avatar) KeyNames() []string {
	names := make([]string, len(a.shapeKeys))
	for i, k := range a.shapeKeys {
		names[i] = k.Name
	}
	return names
}

// SetSliderRange sets the slider range of the named shape key. The value is
// left alone even when it falls outside the new range.
func (a *Avatar) SetSliderRange(name string, min, max float64) error {
	if min > max {
		return fmt.Errorf("shape key %s: slider min %g above max %g", name, min, max)
	}
	k, err := a.ShapeKey(name)
	if err != nil {
		return err
	}
	k.SliderMin, k.SliderMax = min, max
	return nil
}

// Pose returns the rotation vectors of every joint.
func (a *Avatar) Pose() ([]math.Vec3, error) {
	pose := make([]math.Vec3, len(a.bones))
	for i, b := range a.bones {
		v, err := math.QuatToRodrigues(b.Rotation)
		if err != nil {
			return nil, fmt.Errorf("joint %s: %w", b.Name, err)
		}
		pose[i] = v
	}
	return pose, nil
}

// Frame returns the current frame.
func (a *Avatar) Frame() int {
	return a.frame
}

// SetFrame moves to frame and evaluates every animated channel there.
func (a *Avatar) SetFrame(frame int) {
	a.frame = frame
	for channel, tr := range a.tracks {
		values, ok := tr.at(frame)
		if !ok {
			continue
		}
		a.applyChannel(channel, values)
	}
}

// SetFrameRange sets the playback range and rate.
func (a *Avatar) SetFrameRange(start, end, fps int) {
	a.FrameStart, a.FrameEnd, a.FPS = start, end, fps
}

// FrameRange returns the playback range.
func (a *Avatar) FrameRange() (start, end int) {
	return a.FrameStart, a.FrameEnd
}

// Channels returns the names of every animated channel, sorted.
func (a *Avatar) Channels() []string {
	names := make([]string, 0, len(a.tracks))
	for name := range a.tracks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
