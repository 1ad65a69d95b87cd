// Package regressor predicts joint locations and shape coefficients from
// linear regressors loaded from the model data directory.
package regressor

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/smplkit/pkg/math"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Regressor errors.
var (
	ErrRegressorShapeMismatch = errors.New("regressor shape mismatch")
	ErrRegressorLoad          = errors.New("cannot load regressor")
)

// Key identifies one joint regressor table.
type Key struct {
	Gender  smpl.Gender
	Variant smpl.Variant
	Betas   int
}

// String returns the key as "variant/gender/betas".
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Variant, k.Gender, k.Betas)
}

// JointRegressor maps shape coefficients to rest-pose joint locations:
// joints = LinearMap·β + Template. LinearMap is 3J×B with rows ordered
// (joint0.x, joint0.y, joint0.z, joint1.x, ...); Template is J×3.
// A JointRegressor is immutable after construction.
type JointRegressor struct {
	Key       Key
	LinearMap *mat.Dense
	Template  *mat.Dense
}

// NewJointRegressor validates the matrix dimensions against each other and
// against key.
func NewJointRegressor(key Key, linear, template *mat.Dense) (*JointRegressor, error) {
	if linear == nil || template == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrRegressorShapeMismatch)
	}
	lr, lc := linear.Dims()
	tr, tc := template.Dims()
	if tc != 3 {
		return nil, fmt.Errorf("%w: template is %d×%d, want J×3", ErrRegressorShapeMismatch, tr, tc)
	}
	if lr != 3*tr {
		return nil, fmt.Errorf("%w: linear map has %d rows for %d template joints", ErrRegressorShapeMismatch, lr, tr)
	}
	if key.Betas != 0 && lc != key.Betas {
		return nil, fmt.Errorf("%w: linear map has %d columns, key wants %d betas", ErrRegressorShapeMismatch, lc, key.Betas)
	}
	if spec, err := smpl.Lookup(key.Variant); err == nil && tr != spec.JointCount() {
		return nil, fmt.Errorf("%w: %d joints, %s has %d", ErrRegressorShapeMismatch, tr, spec.Name, spec.JointCount())
	}
	return &JointRegressor{Key: key, LinearMap: linear, Template: template}, nil
}

// Joints returns J.
func (r *JointRegressor) Joints() int {
	n, _ := r.Template.Dims()
	return n
}

// Betas returns B.
func (r *JointRegressor) Betas() int {
	_, n := r.LinearMap.Dims()
	return n
}

// PredictJoints evaluates LinearMap·β + Template in regressor space.
func PredictJoints(betas []float64, r *JointRegressor) ([]math.Vec3, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil regressor", ErrRegressorShapeMismatch)
	}
	if len(betas) != r.Betas() {
		return nil, fmt.Errorf("%w: %d betas, regressor %s takes %d",
			ErrRegressorShapeMismatch, len(betas), r.Key, r.Betas())
	}

	var offsets mat.VecDense
	offsets.MulVec(r.LinearMap, mat.NewVecDense(len(betas), append([]float64(nil), betas...)))

	joints := make([]math.Vec3, r.Joints())
	for j := range joints {
		joints[j] = math.Vec3{
			X: offsets.AtVec(3*j) + r.Template.At(j, 0),
			Y: offsets.AtVec(3*j+1) + r.Template.At(j, 1),
			Z: offsets.AtVec(3*j+2) + r.Template.At(j, 2),
		}
	}
	return joints, nil
}

// PredictSceneJoints evaluates the regressor and maps every joint through
// the variant's axis remap.
func PredictSceneJoints(betas []float64, r *JointRegressor) ([]math.Vec3, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil regressor", ErrRegressorShapeMismatch)
	}
	return PredictJointsWithRemap(betas, r, r.remap())
}

// PredictJointsWithRemap evaluates the regressor and maps every joint
// through remap.
func PredictJointsWithRemap(betas []float64, r *JointRegressor, remap smpl.AxisRemap) ([]math.Vec3, error) {
	joints, err := PredictJoints(betas, r)
	if err != nil {
		return nil, err
	}
	for i, p := range joints {
		joints[i] = remap.Apply(p)
	}
	return joints, nil
}

func (r *JointRegressor) remap() smpl.AxisRemap {
	spec, err := smpl.Lookup(r.Key.Variant)
	if err != nil {
		return smpl.IdentityRemap
	}
	return spec.Remap
}
