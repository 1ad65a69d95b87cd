// Package config handles smpltool configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/smplkit/internal/logger"
	"github.com/Faultbox/smplkit/pkg/corrective"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Hand pose presets.
const (
	HandPoseNone    = ""
	HandPoseFlat    = "flat"
	HandPoseRelaxed = "relaxed"
)

// Animation formats. AMASS data is Y-up and needs the root turned into a
// Z-up scene; Blender data is already Z-up.
const (
	AnimFormatAMASS   = "amass"
	AnimFormatBlender = "blender"
)

// MaxRandomBodyMult bounds ModelConfig.RandomBodyMult.
const MaxRandomBodyMult = 5.0

// Config holds all smpltool settings.
type Config struct {
	Data        DataConfig        `yaml:"data"`
	Model       ModelConfig       `yaml:"model"`
	Correctives CorrectivesConfig `yaml:"correctives"`
	Animation   AnimationConfig   `yaml:"animation"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DataConfig holds model data file paths.
type DataConfig struct {
	// Dir holds the regressor tables and hand pose files.
	Dir string `yaml:"dir"`
}

// ModelConfig selects the body model.
type ModelConfig struct {
	Variant smpl.Variant `yaml:"variant"`
	Gender  smpl.Gender  `yaml:"gender"`
	Betas   int          `yaml:"betas"`
	// HandPose is applied after loading poses: "", "flat" or "relaxed".
	HandPose string `yaml:"hand_pose"`
	// HandsRelative marks imported finger rotations as offsets from the
	// relaxed reference hand rather than from the flat hand.
	HandsRelative bool `yaml:"hands_relative"`
	// ZUp rotates regressed joints from the Y-up model frame into a Z-up scene.
	ZUp bool `yaml:"z_up"`
	// AnimFormat is the convention of loaded poses and motions: "amass" or "blender".
	AnimFormat string `yaml:"anim_format"`
	// RandomBodyMult scales random body shapes.
	RandomBodyMult float64 `yaml:"random_body_mult"`
}

// CorrectivesConfig holds corrective channel settings.
type CorrectivesConfig struct {
	// Truncation overrides the channel count per variant name; 0 keeps all.
	Truncation map[string]int `yaml:"truncation,omitempty"`
}

// AnimationConfig holds motion import settings.
type AnimationConfig struct {
	TargetFPS           int  `yaml:"target_fps"`
	KeyframeCorrectives bool `yaml:"keyframe_correctives"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir: "data",
		},
		Model: ModelConfig{
			Variant:  smpl.SMPLX,
			Gender:   smpl.Neutral,
			Betas:    10,
			HandPose: HandPoseNone,

			AnimFormat:     AnimFormatBlender,
			RandomBodyMult: 1.5,
		},
		Animation: AnimationConfig{
			TargetFPS:           30,
			KeyframeCorrectives: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if !c.Model.Variant.Valid() {
		return fmt.Errorf("%w: model.variant: %w", ErrInvalidConfig, smpl.ErrUnknownVariant)
	}
	if _, err := smpl.ParseGender(string(c.Model.Gender)); err != nil {
		return fmt.Errorf("%w: model.gender: %w", ErrInvalidConfig, err)
	}
	if c.Model.Betas <= 0 {
		return fmt.Errorf("%w: model.betas must be positive, got %d", ErrInvalidConfig, c.Model.Betas)
	}
	switch c.Model.HandPose {
	case HandPoseNone, HandPoseFlat, HandPoseRelaxed:
	default:
		return fmt.Errorf("%w: model.hand_pose %q", ErrInvalidConfig, c.Model.HandPose)
	}
	switch c.Model.AnimFormat {
	case AnimFormatAMASS, AnimFormatBlender:
	default:
		return fmt.Errorf("%w: model.anim_format %q", ErrInvalidConfig, c.Model.AnimFormat)
	}
	if !(c.Model.RandomBodyMult >= 0 && c.Model.RandomBodyMult <= MaxRandomBodyMult) {
		return fmt.Errorf("%w: model.random_body_mult must be within [0, %g], got %g",
			ErrInvalidConfig, MaxRandomBodyMult, c.Model.RandomBodyMult)
	}
	if _, err := c.Correctives.EngineOptions(); err != nil {
		return err
	}
	if c.Animation.TargetFPS <= 0 {
		return fmt.Errorf("%w: animation.target_fps must be positive, got %d", ErrInvalidConfig, c.Animation.TargetFPS)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EngineOptions converts the truncation overrides into corrective engine options.
func (c CorrectivesConfig) EngineOptions() ([]corrective.Option, error) {
	opts := make([]corrective.Option, 0, len(c.Truncation))
	for name, n := range c.Truncation {
		v, err := smpl.ParseVariant(name)
		if err != nil {
			return nil, fmt.Errorf("%w: correctives.truncation: %w", ErrInvalidConfig, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: correctives.truncation.%s must not be negative", ErrInvalidConfig, name)
		}
		opts = append(opts, corrective.WithTruncation(v, n))
	}
	return opts, nil
}

// Remap returns the axis remap for regressed joints of the configured variant.
func (m ModelConfig) Remap() smpl.AxisRemap {
	spec, err := smpl.Lookup(m.Variant)
	if err != nil {
		return smpl.IdentityRemap
	}
	remap := spec.Remap
	if m.ZUp {
		remap.Matrix = smpl.YUpToZUp.Mul(remap.Matrix)
	}
	return remap
}
