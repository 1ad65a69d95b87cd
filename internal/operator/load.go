package operator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/smplkit/pkg/corrective"
	"github.com/Faultbox/smplkit/pkg/formats"
	"github.com/Faultbox/smplkit/pkg/npz"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// translationScale converts motion translations (metres) to scene units.
const translationScale = 100

// PoseOptions controls LoadPose.
type PoseOptions struct {
	// Frame selects the pose of a multi-frame .npz; it is clamped.
	Frame int
	// HandPose overrides the finger joints after loading ("", "flat", "relaxed").
	HandPose string
	// HandsRelative adds the relaxed reference to the loaded finger rotations.
	HandsRelative bool
	// AnimFormat orients the root bone after loading ("amass" or "blender").
	AnimFormat string
}

// PoseOptions returns the pose options from the configuration.
func (o *Operator) PoseOptions() PoseOptions {
	return PoseOptions{
		HandPose:      o.cfg.Model.HandPose,
		HandsRelative: o.cfg.Model.HandsRelative,
		AnimFormat:    o.cfg.Model.AnimFormat,
	}
}

// ReadPoseFile reads a pose for variant v from a .json, .npz or .npy file.
func ReadPoseFile(path string, v smpl.Variant, frame int) (*formats.PoseData, error) {
	spec, err := smpl.Lookup(v)
	if err != nil {
		return nil, err
	}
	joints := spec.JointCount()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return formats.ParsePoseJSONFile(path, joints)
	case ".npy":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading pose file: %w", err)
		}
		return formats.ParsePoseNPY(data, joints)
	case ".npz":
		archive, err := npz.Open(path)
		if err != nil {
			return nil, err
		}
		defer archive.Close()
		return formats.ParsePoseArchive(archive, joints, frame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, ext)
	}
}

// relativeHands applies the relaxed reference to the finger joints of pose.
func (o *Operator) relativeHands(pose corrective.Pose, v smpl.Variant) (corrective.Pose, error) {
	left, right, err := o.RelaxedHands()
	if err != nil {
		return nil, err
	}
	return corrective.ApplyHandReference(pose, v, left, right)
}

// LoadPose poses the host from a file, applies the hand options and updates
// the correctives.
func (o *Operator) LoadPose(ctx context.Context, h PoseHost, path string, opts PoseOptions) (corrective.Pose, error) {
	spec, err := smpl.Lookup(h.Variant())
	if err != nil {
		return nil, err
	}

	data, err := ReadPoseFile(path, h.Variant(), opts.Frame)
	if err != nil {
		return nil, err
	}

	pose := corrective.Pose(data.Joints)
	if data.GlobalOrient != nil {
		pose[0] = *data.GlobalOrient
	}
	if opts.HandsRelative {
		if pose, err = o.relativeHands(pose, h.Variant()); err != nil {
			return nil, err
		}
	}

	if err := writeJoints(h, spec, pose, allJoints(spec)); err != nil {
		return nil, err
	}
	if opts.HandPose != "" {
		if err := o.SetHandPose(h, opts.HandPose); err != nil {
			return nil, err
		}
	}
	if err := o.CorrectForAnimFormat(h, opts.AnimFormat); err != nil {
		return nil, err
	}
	if _, err := o.SetPoseCorrectives(ctx, h); err != nil {
		return nil, err
	}

	o.log.Info("pose loaded",
		zap.String("path", path),
		zap.Stringer("variant", h.Variant()),
		zap.Bool("global_orient", data.GlobalOrient != nil))
	return ReadPose(h)
}

// WritePose writes the host's current pose as pose JSON.
func (o *Operator) WritePose(h interface {
	Model
	JointReader
}, w io.Writer) error {
	pose, err := ReadPose(h)
	if err != nil {
		return err
	}
	return formats.WritePoseJSON(w, pose)
}

// AnimationOptions controls LoadAnimation.
type AnimationOptions struct {
	TargetFPS           int
	KeyframeCorrectives bool
	HandPose            string
	HandsRelative       bool
	AnimFormat          string
	// Progress, when set, is called after each keyframe with the number of
	// keyframes written so far and the total.
	Progress func(done, total int)
}

// AnimationOptions returns the animation options from the configuration.
func (o *Operator) AnimationOptions() AnimationOptions {
	return AnimationOptions{
		TargetFPS:           o.cfg.Animation.TargetFPS,
		KeyframeCorrectives: o.cfg.Animation.KeyframeCorrectives,
		HandPose:            o.cfg.Model.HandPose,
		HandsRelative:       o.cfg.Model.HandsRelative,
		AnimFormat:          o.cfg.Model.AnimFormat,
	}
}

// ReadMotion reads an AMASS motion archive.
func ReadMotion(path string) (*formats.Motion, error) {
	archive, err := npz.Open(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	m, err := formats.ParseMotion(archive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadAnimation applies the motion's shape, then keyframes its poses
// resampled to the target frame rate starting at frame 1. It returns the
// number of keyframes written.
func (o *Operator) LoadAnimation(ctx context.Context, h Host, m *formats.Motion, opts AnimationOptions) (int, error) {
	spec, err := smpl.Lookup(h.Variant())
	if err != nil {
		return 0, err
	}

	if _, err := ParseAnimFormat(opts.AnimFormat); err != nil {
		return 0, err
	}
	frames, err := m.SampleFrames(float64(opts.TargetFPS))
	if err != nil {
		return 0, err
	}

	if spec.HasRegressor {
		keys := len(h.ShapeValues())
		for i, b := range m.Betas {
			if i >= keys {
				o.log.Warn("motion has more betas than the avatar has shape keys",
					zap.Int("betas", len(m.Betas)), zap.Int("shape_keys", keys))
				break
			}
			if err := h.SetShapeValue(i, b); err != nil {
				return 0, err
			}
		}
	}
	if err := o.updateJointsIfSupported(ctx, h); err != nil {
		return 0, err
	}

	h.SetFrameRange(1, len(frames), opts.TargetFPS)

	// With a hand override the fingers stay fixed and only the body animates.
	animated := allJoints(spec)
	if opts.HandPose != "" {
		if err := o.SetHandPose(h, opts.HandPose); err != nil {
			return 0, err
		}
		animated = jointRange(0, spec.HandStart)
	}

	var left, right corrective.HandPose
	relative := opts.HandsRelative && opts.HandPose == ""
	if relative {
		if left, right, err = o.RelaxedHands(); err != nil {
			return 0, err
		}
	}

	o.log.Info("loading animation",
		zap.Float64("source_fps", m.FrameRate),
		zap.Int("target_fps", opts.TargetFPS),
		zap.Int("keyframes", len(frames)),
		zap.Bool("keyframe_correctives", opts.KeyframeCorrectives))

	root := spec.JointNames[0]
	for index, frame := range frames {
		if err := ctx.Err(); err != nil {
			return index, err
		}
		key := index + 1

		joints, err := m.Pose(frame, spec.JointCount())
		if err != nil {
			return index, err
		}
		pose := corrective.Pose(joints)
		if relative {
			if pose, err = corrective.ApplyHandReference(pose, h.Variant(), left, right); err != nil {
				return index, err
			}
		}

		if err := h.WriteJointTranslation(root, m.Trans[frame].Scale(translationScale)); err != nil {
			return index, err
		}
		if err := writeJoints(h, spec, pose, animated); err != nil {
			return index, err
		}
		for _, j := range animated {
			if err := h.KeyframeJoint(spec.JointNames[j], key); err != nil {
				return index, err
			}
		}

		if opts.KeyframeCorrectives {
			if _, err := o.SetPoseCorrectives(ctx, h); err != nil {
				return index, fmt.Errorf("frame %d: %w", frame, err)
			}
			if err := h.KeyframeCorrectives(key); err != nil {
				return index, err
			}
		}

		if opts.Progress != nil {
			opts.Progress(key, len(frames))
		}
	}

	if err := o.CorrectForAnimFormat(h, opts.AnimFormat); err != nil {
		return len(frames), err
	}
	if err := h.KeyframeRoot(1); err != nil {
		return len(frames), err
	}

	h.SetFrame(1)
	return len(frames), nil
}
