package operator

import (
	"context"
	"fmt"
	stdmath "math"
	"strings"

	"go.uber.org/zap"

	"github.com/Faultbox/smplkit/internal/config"
	"github.com/Faultbox/smplkit/pkg/math"
)

const (
	// randomBetas is how many leading Shape keys RandomBodyShape draws.
	randomBetas = 10
	// randomBodyScale keeps random shapes inside the well-sampled region.
	randomBodyScale = 0.75

	sliderMin = -10.0
	sliderMax = 10.0
)

// ResetBodyShape zeroes every Shape key and refits the joints.
func (o *Operator) ResetBodyShape(ctx context.Context, h ShapeHost) error {
	n := len(h.ShapeValues())
	for i := 0; i < n; i++ {
		if err := h.SetShapeValue(i, 0); err != nil {
			return err
		}
	}
	o.log.Debug("body shape reset", zap.Int("shape_keys", n))
	return o.updateJointsIfSupported(ctx, h)
}

// RandomBodyShape draws the leading Shape keys from a normal distribution
// scaled by mult, refits the joints and returns the drawn values.
func (o *Operator) RandomBodyShape(ctx context.Context, h ShapeHost, mult float64) ([]float64, error) {
	if !(mult >= 0 && mult <= config.MaxRandomBodyMult) {
		return nil, fmt.Errorf("%w: random body multiplier %g outside [0, %g]",
			config.ErrInvalidConfig, mult, config.MaxRandomBodyMult)
	}

	n := min(randomBetas, len(h.ShapeValues()))
	betas := make([]float64, n)
	for i := range betas {
		betas[i] = o.normal() * randomBodyScale * mult
		if err := h.SetShapeValue(i, betas[i]); err != nil {
			return nil, err
		}
	}

	o.log.Info("random body shape", zap.Float64("mult", mult), zap.Int("betas", n))
	if err := o.updateJointsIfSupported(ctx, h); err != nil {
		return nil, err
	}
	return betas, nil
}

// FixBlendShapeRanges resets the slider range of every shape key to [-10, 10].
func (o *Operator) FixBlendShapeRanges(h SliderRanges) error {
	names := h.KeyNames()
	for _, name := range names {
		if err := h.SetSliderRange(name, sliderMin, sliderMax); err != nil {
			return err
		}
	}
	o.log.Debug("slider ranges fixed", zap.Int("keys", len(names)))
	return nil
}

// ParseAnimFormat normalizes an animation format name. Empty selects Blender.
func ParseAnimFormat(s string) (string, error) {
	switch f := strings.ToLower(s); f {
	case config.AnimFormatAMASS:
		return f, nil
	case config.AnimFormatBlender, "":
		return config.AnimFormatBlender, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAnimFormat, s)
	}
}

// CorrectForAnimFormat orients the root bone for data in format. AMASS data
// is Y-up, so the root is turned -90° about X into the Z-up scene; Blender
// data needs nothing. The previous root rotation is replaced.
func (o *Operator) CorrectForAnimFormat(h RootPoser, format string) error {
	f, err := ParseAnimFormat(format)
	if err != nil {
		return err
	}
	if f != config.AnimFormatAMASS {
		return nil
	}
	if err := h.WriteRootRotation(math.QuatFromAxisAngle(math.Vec3{X: 1}, -stdmath.Pi/2)); err != nil {
		return fmt.Errorf("correcting root for %s: %w", f, err)
	}
	o.log.Debug("root corrected for animation format", zap.String("format", f))
	return nil
}
