package regressor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/smplkit/pkg/smpl"
)

// ErrInvalidMeasurement is returned for non-positive or non-finite body measurements.
var ErrInvalidMeasurement = errors.New("invalid body measurement")

// MeasurementRegressor maps body measurements to shape coefficients:
// betas = A·[height_cm, ∛weight_kg]ᵗ + B, with A B×2 and B of length B.
type MeasurementRegressor struct {
	Gender smpl.Gender
	A      *mat.Dense
	B      *mat.VecDense
}

// NewMeasurementRegressor checks that A has two columns and one row per
// entry of b.
func NewMeasurementRegressor(gender smpl.Gender, a *mat.Dense, b *mat.VecDense) (*MeasurementRegressor, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrRegressorShapeMismatch)
	}
	r, c := a.Dims()
	if c != 2 || r != b.Len() {
		return nil, fmt.Errorf("%w: A is %d×%d and B has %d rows", ErrRegressorShapeMismatch, r, c, b.Len())
	}
	return &MeasurementRegressor{Gender: gender, A: a, B: b}, nil
}

// Betas returns the number of shape coefficients produced.
func (m *MeasurementRegressor) Betas() int {
	return m.B.Len()
}

// PredictBetas returns the shape coefficients for a body of the given
// height in centimetres and weight in kilograms.
func (m *MeasurementRegressor) PredictBetas(heightCM, weightKG float64) ([]float64, error) {
	if !(heightCM > 0) || !(weightKG > 0) || math.IsInf(heightCM, 0) || math.IsInf(weightKG, 0) {
		return nil, fmt.Errorf("%w: height %v cm, weight %v kg", ErrInvalidMeasurement, heightCM, weightKG)
	}

	measurements := mat.NewVecDense(2, []float64{heightCM, math.Cbrt(weightKG)})

	var betas mat.VecDense
	betas.MulVec(m.A, measurements)
	betas.AddVec(&betas, m.B)

	out := make([]float64, betas.Len())
	for i := range out {
		out[i] = betas.AtVec(i)
	}
	return out, nil
}
