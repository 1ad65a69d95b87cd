package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	gomath "math"
	"os"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/smplkit/internal/operator"
	"github.com/Faultbox/smplkit/internal/scene"
	"github.com/Faultbox/smplkit/internal/ui"
	"github.com/Faultbox/smplkit/pkg/corrective"
	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// version is set with -ldflags "-X main.version=...".
var version = ""

// newAvatar builds an in-memory avatar with as many Pose channels as the
// configured engine produces.
func (a *app) newAvatar(g smpl.Gender) (*scene.Avatar, error) {
	channels, err := a.op.Engine().ChannelCount(a.cfg.Model.Variant)
	if err != nil {
		return nil, err
	}
	return scene.NewAvatar(a.cfg.Model.Variant, g,
		scene.WithBetas(a.cfg.Model.Betas),
		scene.WithCorrectiveChannels(channels))
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return ui.HighlightJSON(ui.Out, append(data, '\n'), a.color)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// PoseFileOptions are shared by commands that load a pose file.
type PoseFileOptions struct {
	File  string `arg:"" type:"existingfile" help:"Pose file (.json, .npy or .npz)."`
	Frame int    `help:"Frame to read from a multi-frame .npz." default:"0"`
}

func (p PoseFileOptions) load(ctx context.Context, a *app) (*scene.Avatar, corrective.Pose, error) {
	avatar, err := a.newAvatar(a.cfg.Model.Gender)
	if err != nil {
		return nil, nil, err
	}
	opts := a.op.PoseOptions()
	opts.Frame = p.Frame
	pose, err := a.op.LoadPose(ctx, avatar, p.File, opts)
	if err != nil {
		return nil, nil, err
	}
	return avatar, pose, nil
}

// CorrectivesCmd prints the corrective weights of a pose.
type CorrectivesCmd struct {
	PoseFileOptions `embed:""`
	JSON            bool `name:"json" help:"Print every weight as JSON."`
	Top             int  `help:"Number of strongest channels to list." default:"10"`
}

func (c *CorrectivesCmd) Run(ctx context.Context, a *app) error {
	avatar, _, err := c.load(ctx, a)
	if err != nil {
		return err
	}
	weights := avatar.CorrectiveWeights()
	channels := avatar.CorrectiveChannels()

	if c.JSON {
		out := make(map[string]float64, len(weights))
		for i, w := range weights {
			out[channels[i]] = w
		}
		return a.printJSON(map[string]any{
			"variant":  a.cfg.Model.Variant,
			"channels": out,
		})
	}

	active := 0
	order := make([]int, len(weights))
	for i, w := range weights {
		order[i] = i
		if w != 0 {
			active++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return gomath.Abs(weights[order[i]]) > gomath.Abs(weights[order[j]])
	})

	ui.PrintTitle("Pose correctives")
	ui.PrintKeyValue("Pose", c.File)
	ui.PrintKeyValue("Variant", a.cfg.Model.Variant.String())
	ui.PrintKeyValue("Channels", strconv.Itoa(len(weights)))
	ui.PrintKeyValue("Active", strconv.Itoa(active))

	var rows [][]string
	for _, i := range order[:min(c.Top, active)] {
		rows = append(rows, []string{channels[i], formatFloat(weights[i])})
	}
	if len(rows) > 0 {
		ui.PrintHeader("Strongest channels")
		ui.PrintTable([]string{"Channel", "Weight"}, rows)
	}
	return nil
}

// JointsCmd regresses joint locations from betas.
type JointsCmd struct {
	Shape []float64 `help:"Shape coefficients, comma separated; missing ones are zero." placeholder:"B0,B1,..."`
	JSON  bool      `name:"json" help:"Print the joints as JSON."`
}

type jointJSON struct {
	Name     string     `json:"name"`
	Location [3]float64 `json:"location"`
}

func printJoints(a *app, spec *smpl.Spec, joints []math.Vec3, asJSON bool) error {
	if asJSON {
		out := make([]jointJSON, len(joints))
		for i, p := range joints {
			out[i] = jointJSON{Name: spec.JointNames[i], Location: p.Array()}
		}
		return a.printJSON(out)
	}

	rows := make([][]string, len(joints))
	for i, p := range joints {
		rows[i] = []string{spec.JointNames[i], formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z)}
	}
	ui.PrintTable([]string{"Joint", "X", "Y", "Z"}, rows)
	return nil
}

func (c *JointsCmd) Run(ctx context.Context, a *app) error {
	avatar, err := a.newAvatar(a.cfg.Model.Gender)
	if err != nil {
		return err
	}
	for i, b := range c.Shape {
		if err := avatar.SetShapeValue(i, b); err != nil {
			return fmt.Errorf("shape coefficient %d: %w", i, err)
		}
	}

	joints, err := a.op.UpdateJointLocations(ctx, avatar)
	if err != nil {
		return err
	}

	if !c.JSON {
		ui.PrintTitle("Joint locations")
		ui.PrintKeyValue("Regressor", fmt.Sprintf("%s/%s/%d", a.cfg.Model.Variant, avatar.Gender(), a.cfg.Model.Betas))
	}
	return printJoints(a, a.cfg.Model.Variant.Spec(), joints, c.JSON)
}

// MeasureCmd fits betas to a height and weight.
type MeasureCmd struct {
	Height float64 `required:"" help:"Body height in centimetres."`
	Weight float64 `required:"" help:"Body weight in kilograms."`
	Joints bool    `help:"Also print the regressed joint locations."`
	JSON   bool    `name:"json" help:"Print the result as JSON."`
}

func (c *MeasureCmd) Run(ctx context.Context, a *app) error {
	avatar, err := a.newAvatar(a.cfg.Model.Gender)
	if err != nil {
		return err
	}
	betas, err := a.op.MeasurementsToShape(ctx, avatar, c.Height, c.Weight)
	if err != nil {
		return err
	}

	if c.JSON {
		return a.printJSON(map[string]any{
			"gender":    avatar.Gender(),
			"height_cm": c.Height,
			"weight_kg": c.Weight,
			"betas":     betas,
		})
	}

	ui.PrintTitle("Shape from measurements")
	ui.PrintKeyValue("Gender", string(avatar.Gender()))
	ui.PrintKeyValue("Height", formatFloat(c.Height)+" cm")
	ui.PrintKeyValue("Weight", formatFloat(c.Weight)+" kg")

	rows := make([][]string, len(betas))
	for i, b := range betas {
		rows[i] = []string{fmt.Sprintf("%s%03d", scene.ShapePrefix, i), formatFloat(b)}
	}
	ui.PrintTable([]string{"Shape key", "Value"}, rows)

	if !c.Joints {
		return nil
	}
	spec := a.cfg.Model.Variant.Spec()
	if !spec.HasRegressor {
		ui.PrintWarning(fmt.Sprintf("%s has no joint regressor", spec.Name))
		return nil
	}
	joints := make([]math.Vec3, spec.JointCount())
	for i, b := range avatar.Bones() {
		joints[i] = b.Head
	}
	ui.PrintHeader("Joint locations")
	return printJoints(a, spec, joints, false)
}

// ShapeCmd edits the body shape keys of a fresh avatar.
type ShapeCmd struct {
	Shape     []float64 `help:"Starting shape coefficients, comma separated." placeholder:"B0,B1,..."`
	Reset     bool      `help:"Zero every shape key." xor:"mode"`
	Random    bool      `help:"Draw a random body shape." xor:"mode"`
	Mult      float64   `help:"Random shape multiplier, 0 to 5 (default: model.random_body_mult)." placeholder:"X"`
	FixRanges bool      `help:"Reset every shape key slider to -10..10."`
	JSON      bool      `name:"json" help:"Print the shape keys as JSON."`
}

type shapeKeyJSON struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	SliderMin float64 `json:"slider_min"`
	SliderMax float64 `json:"slider_max"`
}

func (c *ShapeCmd) Run(ctx context.Context, a *app) error {
	avatar, err := a.newAvatar(a.cfg.Model.Gender)
	if err != nil {
		return err
	}
	for i, b := range c.Shape {
		if err := avatar.SetShapeValue(i, b); err != nil {
			return fmt.Errorf("shape coefficient %d: %w", i, err)
		}
	}

	switch {
	case c.Reset:
		err = a.op.ResetBodyShape(ctx, avatar)
	case c.Random:
		mult := a.cfg.Model.RandomBodyMult
		if c.Mult != 0 {
			mult = c.Mult
		}
		_, err = a.op.RandomBodyShape(ctx, avatar, mult)
	}
	if err != nil {
		return err
	}
	if c.FixRanges {
		if err := a.op.FixBlendShapeRanges(avatar); err != nil {
			return err
		}
	}

	names := avatar.KeyNames()[:len(avatar.ShapeValues())]
	keys := make([]shapeKeyJSON, len(names))
	for i, name := range names {
		k, err := avatar.ShapeKey(name)
		if err != nil {
			return err
		}
		keys[i] = shapeKeyJSON{Name: k.Name, Value: k.Value, SliderMin: k.SliderMin, SliderMax: k.SliderMax}
	}
	if c.JSON {
		return a.printJSON(keys)
	}

	ui.PrintTitle("Body shape")
	ui.PrintKeyValue("Avatar", avatar.String())
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k.Name, formatFloat(k.Value), formatFloat(k.SliderMin), formatFloat(k.SliderMax)}
	}
	ui.PrintTable([]string{"Shape key", "Value", "Min", "Max"}, rows)
	return nil
}

// PoseCmd loads a pose and writes it back out as pose JSON.
type PoseCmd struct {
	PoseFileOptions `embed:""`
	Output          string `short:"o" type:"path" help:"Write the pose JSON here instead of stdout." placeholder:"PATH"`
	Reset           bool   `help:"Write the rest pose instead of the loaded one."`
}

func (c *PoseCmd) Run(ctx context.Context, a *app) error {
	avatar, _, err := c.load(ctx, a)
	if err != nil {
		return err
	}
	if c.Reset {
		if err := a.op.ResetPose(avatar); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := a.op.WritePose(avatar, &buf); err != nil {
		return err
	}

	if c.Output == "" {
		return ui.HighlightJSON(ui.Out, buf.Bytes(), a.color)
	}
	if err := os.WriteFile(c.Output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing pose: %w", err)
	}
	ui.PrintSuccess("Wrote " + c.Output)
	return nil
}

// AnimCmd imports an AMASS motion into an in-memory avatar.
type AnimCmd struct {
	File        string `arg:"" type:"existingfile" help:"AMASS motion archive (.npz)."`
	FPS         int    `name:"fps" help:"Target frame rate (default: animation.target_fps)."`
	Correctives bool   `help:"Keyframe pose correctives on every frame."`
	Sequence    bool   `help:"Recompute corrective keyframes over the imported range afterwards."`
	Export      int    `help:"Print the pose at this keyframe as JSON." placeholder:"FRAME"`
}

func (c *AnimCmd) gender(a *app, motionGender string) smpl.Gender {
	if a.genderSet {
		return a.cfg.Model.Gender
	}
	if g, err := smpl.GenderFromName(motionGender); err == nil {
		return g
	}
	a.log.Warn("motion gender not recognised, using configured gender",
		zap.String("motion_gender", motionGender),
		zap.String("gender", string(a.cfg.Model.Gender)))
	return a.cfg.Model.Gender
}

func (c *AnimCmd) Run(ctx context.Context, a *app) error {
	m, err := operator.ReadMotion(c.File)
	if err != nil {
		return err
	}

	avatar, err := a.newAvatar(c.gender(a, m.Gender))
	if err != nil {
		return err
	}

	opts := a.op.AnimationOptions()
	if c.FPS > 0 {
		opts.TargetFPS = c.FPS
	}
	if c.Correctives {
		opts.KeyframeCorrectives = true
	}
	if a.color && c.Export == 0 {
		opts.Progress = func(done, total int) { ui.PrintProgress(done, total, "keyframes") }
	}

	keyed, err := a.op.LoadAnimation(ctx, avatar, m, opts)
	if err != nil {
		return err
	}

	if c.Sequence {
		start, end := avatar.FrameRange()
		if _, err := a.op.SetPoseCorrectivesForSequence(ctx, avatar, start, end); err != nil {
			return err
		}
	}

	if c.Export > 0 {
		avatar.SetFrame(c.Export)
		var buf bytes.Buffer
		if err := a.op.WritePose(avatar, &buf); err != nil {
			return err
		}
		return ui.HighlightJSON(ui.Out, buf.Bytes(), a.color)
	}

	start, end := avatar.FrameRange()
	ui.PrintTitle("Animation")
	ui.PrintKeyValue("Motion", c.File)
	ui.PrintKeyValue("Avatar", avatar.String())
	ui.PrintKeyValue("Source", fmt.Sprintf("%d frames at %s fps", m.FrameCount(), formatFloat(m.FrameRate)))
	ui.PrintKeyValue("Keyframes", fmt.Sprintf("%d (frames %d-%d at %d fps)", keyed, start, end, avatar.FPS))
	ui.PrintKeyValue("Channels", strconv.Itoa(len(avatar.Channels())))
	ui.PrintSuccess("Motion imported")
	return nil
}

// VariantsCmd lists the supported body models.
type VariantsCmd struct{}

func (c *VariantsCmd) Run(a *app) error {
	rows := make([][]string, 0, len(smpl.Variants()))
	for _, v := range smpl.Variants() {
		spec := v.Spec()
		channels, err := a.op.Engine().ChannelCount(v)
		if err != nil {
			return err
		}
		regressor := "no"
		if spec.HasRegressor {
			regressor = "yes"
		}
		rows = append(rows, []string{
			spec.Name,
			strconv.Itoa(spec.JointCount()),
			strconv.Itoa(spec.BodyJoints),
			strconv.Itoa(channels),
			regressor,
		})
	}
	ui.PrintTable([]string{"Variant", "Joints", "Body", "Correctives", "Regressor"}, rows)
	return nil
}

// SettingsCmd prints or saves the effective configuration.
type SettingsCmd struct {
	Save bool   `help:"Save to the user config directory."`
	To   string `type:"path" help:"Save to this path." placeholder:"PATH"`
}

func (c *SettingsCmd) Run(a *app) error {
	switch {
	case c.To != "":
		if err := a.cfg.SaveTo(c.To); err != nil {
			return err
		}
		ui.PrintSuccess("Saved " + c.To)
		return nil
	case c.Save:
		if err := a.cfg.Save(); err != nil {
			return err
		}
		ui.PrintSuccess("Saved config")
		return nil
	}

	data, err := a.cfg.Marshal()
	if err != nil {
		return err
	}
	return ui.Highlight(ui.Out, data, "yaml", a.color)
}

// VersionCmd prints build information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	v := version
	if v == "" {
		v = "dev"
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
			v = info.Main.Version
		}
	}
	fmt.Fprintf(ui.Out, "smpltool %s (%s %s/%s)\n", v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}
