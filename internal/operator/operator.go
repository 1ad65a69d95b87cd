// Package operator implements the avatar operations of smpltool on top of
// the host interfaces: corrective updates, joint regression, hand poses,
// pose and animation import.
package operator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/Faultbox/smplkit/internal/config"
	"github.com/Faultbox/smplkit/pkg/corrective"
	"github.com/Faultbox/smplkit/pkg/formats"
	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/regressor"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Operator errors.
var (
	ErrNoRegressor       = errors.New("model variant has no joint regressor")
	ErrUnknownHandPose   = errors.New("unknown hand pose")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrInvalidFrameRange = errors.New("invalid frame range")
	ErrShapeKeysMissing  = errors.New("host has fewer shape keys than betas")
	ErrUnknownAnimFormat = errors.New("unknown animation format")
)

// Relaxed hand reference files inside the data directory.
const (
	relaxedLeftFile  = "handpose_relaxed_left.npy"
	relaxedRightFile = "handpose_relaxed_right.npy"
)

// Operator runs avatar operations. It is safe for concurrent use on
// different hosts.
type Operator struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *corrective.Engine
	cache  *regressor.Cache

	handsMu sync.Mutex
	relaxed [2]corrective.HandPose

	normal func() float64
}

// Option configures New.
type Option func(*Operator)

// WithLoader replaces the file-backed regressor loader.
func WithLoader(l regressor.Loader) Option {
	return func(o *Operator) { o.cache = regressor.NewCache(l) }
}

// WithRelaxedHands sets the relaxed reference hand pose instead of reading
// it from the data directory.
func WithRelaxedHands(left, right corrective.HandPose) Option {
	return func(o *Operator) { o.relaxed = [2]corrective.HandPose{left, right} }
}

// WithNormal replaces the standard normal source of RandomBodyShape.
func WithNormal(f func() float64) Option {
	return func(o *Operator) { o.normal = f }
}

// New creates an operator from cfg.
func New(cfg *config.Config, log *zap.Logger, opts ...Option) (*Operator, error) {
	engineOpts, err := cfg.Correctives.EngineOptions()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	o := &Operator{
		cfg:    cfg,
		log:    log,
		engine: corrective.NewEngine(engineOpts...),
		cache:  regressor.NewCache(regressor.NewFileLoader(cfg.Data.Dir)),
		normal: distuv.UnitNormal.Rand,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Engine returns the corrective engine in use.
func (o *Operator) Engine() *corrective.Engine {
	return o.engine
}

// Cache returns the regressor cache in use.
func (o *Operator) Cache() *regressor.Cache {
	return o.cache
}

// ReadPose reads the rotation of every joint of the host's variant.
func ReadPose(h interface {
	Model
	JointReader
}) (corrective.Pose, error) {
	spec, err := smpl.Lookup(h.Variant())
	if err != nil {
		return nil, err
	}
	pose := make(corrective.Pose, spec.JointCount())
	for i, name := range spec.JointNames {
		v, err := h.ReadJointRotation(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		pose[i] = v
	}
	return pose, nil
}

// writeJoints writes the rotations of the given joint indices.
func writeJoints(h JointPoser, spec *smpl.Spec, pose corrective.Pose, joints []int) error {
	for _, j := range joints {
		if err := h.WriteJointRotation(spec.JointNames[j], pose[j]); err != nil {
			return fmt.Errorf("writing %s: %w", spec.JointNames[j], err)
		}
	}
	return nil
}

func allJoints(spec *smpl.Spec) []int {
	return jointRange(0, spec.JointCount())
}

func jointRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for j := from; j < to; j++ {
		out = append(out, j)
	}
	return out
}

// SetPoseCorrectives computes the corrective weights of the host's current
// pose and writes them to its Pose channels.
func (o *Operator) SetPoseCorrectives(ctx context.Context, h CorrectiveHost) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pose, err := ReadPose(h)
	if err != nil {
		return nil, err
	}

	weights, err := o.engine.Compute(pose, h.Variant())
	if err != nil {
		return nil, err
	}
	if err := corrective.ValidateChannels(weights, h.CorrectiveChannels()); err != nil {
		return nil, err
	}

	for i, w := range weights {
		if err := h.WriteCorrectiveWeight(i, w); err != nil {
			return nil, fmt.Errorf("writing channel %s: %w", corrective.ChannelName(i), err)
		}
	}

	o.log.Debug("pose correctives set",
		zap.Stringer("variant", h.Variant()),
		zap.Int("channels", len(weights)))
	return weights, nil
}

// SequenceHost is what sequence correctives need.
type SequenceHost interface {
	CorrectiveHost
	Timeline
}

// SetPoseCorrectivesForSequence evaluates the host at every frame of
// [start, end], computes correctives and keyframes them.
func (o *Operator) SetPoseCorrectivesForSequence(ctx context.Context, h SequenceHost, start, end int) (int, error) {
	if end < start {
		return 0, fmt.Errorf("%w: %d..%d", ErrInvalidFrameRange, start, end)
	}

	keyed := 0
	for frame := start; frame <= end; frame++ {
		if err := ctx.Err(); err != nil {
			return keyed, err
		}
		h.SetFrame(frame)
		if _, err := o.SetPoseCorrectives(ctx, h); err != nil {
			return keyed, fmt.Errorf("frame %d: %w", frame, err)
		}
		if err := h.KeyframeCorrectives(frame); err != nil {
			return keyed, fmt.Errorf("frame %d: %w", frame, err)
		}
		keyed++
	}

	o.log.Info("sequence correctives keyed",
		zap.Int("start", start),
		zap.Int("end", end),
		zap.Int("frames", keyed))
	return keyed, nil
}

// ZeroOutPoseCorrectives sets every corrective channel to zero.
func (o *Operator) ZeroOutPoseCorrectives(h CorrectiveWriter) error {
	channels := h.CorrectiveChannels()
	for i := range channels {
		if err := h.WriteCorrectiveWeight(i, 0); err != nil {
			return fmt.Errorf("writing channel %s: %w", channels[i], err)
		}
	}
	o.log.Debug("pose correctives zeroed", zap.Int("channels", len(channels)))
	return nil
}

// ResetPose returns every joint and the root bone to the rest rotation,
// clears the pelvis translation and zeroes the correctives.
func (o *Operator) ResetPose(h PoseHost) error {
	spec, err := smpl.Lookup(h.Variant())
	if err != nil {
		return err
	}
	if err := h.WriteRootRotation(math.QuatIdentity()); err != nil {
		return err
	}
	for _, name := range spec.JointNames {
		if err := h.WriteJointRotation(name, math.Vec3{}); err != nil {
			return fmt.Errorf("resetting %s: %w", name, err)
		}
	}
	if err := h.WriteJointTranslation(spec.JointNames[0], math.Vec3{}); err != nil {
		return err
	}
	return o.ZeroOutPoseCorrectives(h)
}

// UpdateJointLocations regresses rest-pose joint locations from the host's
// shape keys and moves its joints there.
func (o *Operator) UpdateJointLocations(ctx context.Context, h ShapeHost) ([]math.Vec3, error) {
	spec, err := smpl.Lookup(h.Variant())
	if err != nil {
		return nil, err
	}
	if !spec.HasRegressor {
		return nil, fmt.Errorf("%w: %s", ErrNoRegressor, spec.Name)
	}

	betas := h.ShapeValues()
	key := regressor.Key{Gender: h.Gender(), Variant: h.Variant(), Betas: len(betas)}
	r, err := o.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	joints, err := regressor.PredictJointsWithRemap(betas, r, o.remap(h.Variant()))
	if err != nil {
		return nil, err
	}
	for i, p := range joints {
		if err := h.WriteJointLocation(spec.JointNames[i], p); err != nil {
			return nil, fmt.Errorf("moving %s: %w", spec.JointNames[i], err)
		}
	}

	o.log.Debug("joint locations updated", zap.Stringer("regressor", key), zap.Int("joints", len(joints)))
	return joints, nil
}

func (o *Operator) remap(v smpl.Variant) smpl.AxisRemap {
	m := o.cfg.Model
	m.Variant = v
	return m.Remap()
}

// updateJointsIfSupported runs UpdateJointLocations and treats a missing
// regressor as a skipped step.
func (o *Operator) updateJointsIfSupported(ctx context.Context, h ShapeHost) error {
	_, err := o.UpdateJointLocations(ctx, h)
	if errors.Is(err, ErrNoRegressor) {
		o.log.Info("joint locations left unchanged", zap.Stringer("variant", h.Variant()), zap.Error(err))
		return nil
	}
	return err
}

// RelaxedHands returns the relaxed reference hand pose, reading it from the
// data directory on first use.
func (o *Operator) RelaxedHands() (left, right corrective.HandPose, err error) {
	o.handsMu.Lock()
	defer o.handsMu.Unlock()

	if o.relaxed[0] != nil && o.relaxed[1] != nil {
		return o.relaxed[0], o.relaxed[1], nil
	}

	// Every variant uses 15 joints per hand.
	handJoints := smpl.SMPLX.Spec().HandJoints
	for i, file := range []string{relaxedLeftFile, relaxedRightFile} {
		hand, err := formats.ParseHandPoseFile(filepath.Join(o.cfg.Data.Dir, file), handJoints)
		if err != nil {
			return nil, nil, fmt.Errorf("loading relaxed hand pose: %w", err)
		}
		o.relaxed[i] = hand
	}
	o.log.Debug("relaxed hand pose loaded", zap.String("dir", o.cfg.Data.Dir))
	return o.relaxed[0], o.relaxed[1], nil
}

// handPose returns the left and right hand poses of a preset.
func (o *Operator) handPose(mode string, spec *smpl.Spec) (corrective.HandPose, corrective.HandPose, error) {
	switch mode {
	case config.HandPoseFlat:
		return make(corrective.HandPose, spec.HandJoints), make(corrective.HandPose, spec.HandJoints), nil
	case config.HandPoseRelaxed:
		return o.RelaxedHands()
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownHandPose, mode)
	}
}

// SetHandPose replaces the finger joints with a preset ("flat" or "relaxed").
func (o *Operator) SetHandPose(h PoseHost, mode string) error {
	spec, err := smpl.Lookup(h.Variant())
	if err != nil {
		return err
	}
	left, right, err := o.handPose(mode, spec)
	if err != nil {
		return err
	}

	pose, err := ReadPose(h)
	if err != nil {
		return err
	}
	pose, err = corrective.SetHands(pose, h.Variant(), left, right)
	if err != nil {
		return err
	}
	if err := writeJoints(h, spec, pose, spec.FingerJoints()); err != nil {
		return err
	}

	o.log.Debug("hand pose set", zap.String("mode", mode))
	return nil
}

// MeasurementsToShape derives betas from height and weight, writes them to
// the Shape keys and refits the joints.
func (o *Operator) MeasurementsToShape(ctx context.Context, h ShapeHost, heightCM, weightKG float64) ([]float64, error) {
	m, err := o.cache.Measurements(ctx, h.Gender())
	if err != nil {
		return nil, err
	}
	betas, err := m.PredictBetas(heightCM, weightKG)
	if err != nil {
		return nil, err
	}

	if have := len(h.ShapeValues()); have < len(betas) {
		return nil, fmt.Errorf("%w: %d keys for %d betas", ErrShapeKeysMissing, have, len(betas))
	}
	for i, b := range betas {
		if err := h.SetShapeValue(i, b); err != nil {
			return nil, err
		}
	}

	o.log.Info("shape set from measurements",
		zap.Float64("height_cm", heightCM),
		zap.Float64("weight_kg", weightKG),
		zap.Int("betas", len(betas)))

	if err := o.updateJointsIfSupported(ctx, h); err != nil {
		return nil, err
	}
	return betas, nil
}
