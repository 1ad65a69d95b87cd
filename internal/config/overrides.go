package config

import (
	"fmt"
	"strings"

	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Overrides carries command-line settings. Zero values leave the loaded
// config untouched.
type Overrides struct {
	ConfigPath string
	Debug      bool
	LogLevel   string
	LogFile    string
	DataDir    string
	Variant    string
	Gender     string
	Betas      int
	HandPose   string
	TargetFPS  int
	AnimFormat string

	HandsRelative bool
	ZUp           bool
}

// apply writes the non-zero overrides into cfg.
func (o Overrides) apply(cfg *Config) error {
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.Debug {
		cfg.Logging.Level = "debug"
	}
	if o.LogFile != "" {
		cfg.Logging.LogFile = o.LogFile
	}
	if o.DataDir != "" {
		cfg.Data.Dir = o.DataDir
	}
	if o.Variant != "" {
		v, err := smpl.ParseVariant(o.Variant)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		cfg.Model.Variant = v
	}
	if o.Gender != "" {
		g, err := smpl.ParseGender(o.Gender)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		cfg.Model.Gender = g
	}
	if o.Betas > 0 {
		cfg.Model.Betas = o.Betas
	}
	if o.HandPose != "" {
		cfg.Model.HandPose = o.HandPose
	}
	if o.HandsRelative {
		cfg.Model.HandsRelative = true
	}
	if o.ZUp {
		cfg.Model.ZUp = true
	}
	if o.AnimFormat != "" {
		cfg.Model.AnimFormat = strings.ToLower(o.AnimFormat)
	}
	if o.TargetFPS > 0 {
		cfg.Animation.TargetFPS = o.TargetFPS
	}
	return nil
}
