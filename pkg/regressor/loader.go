package regressor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/smplkit/pkg/formats"
	"github.com/Faultbox/smplkit/pkg/npz"
	"github.com/Faultbox/smplkit/pkg/smpl"
)

// Array names inside regressor files.
const (
	keyLinearMap = "betasJ_regr"
	keyTemplate  = "template_J"
	keyA         = "A"
	keyB         = "B"
)

// FileLoader reads regressor tables from a data directory:
//
//	<dir>/<variant>_betas_to_joints_<gender><suffix>.json (or .npz)
//	<dir>/measurements_to_betas_<gender>.json
//
// where suffix is "" for 10 betas, "_300" and "_400" for the larger shape
// spaces. JSON is tried before .npz.
type FileLoader struct {
	Dir string
}

// NewFileLoader creates a loader rooted at dir.
func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{Dir: dir}
}

// betaSuffix returns the file name suffix for a shape-space size.
func betaSuffix(betas int) (string, error) {
	switch betas {
	case 10:
		return "", nil
	case 300:
		return "_300", nil
	case 400:
		return "_400", nil
	default:
		return "", fmt.Errorf("%w: no betas-to-joints regressor for %d betas", ErrRegressorLoad, betas)
	}
}

// JointRegressorBase returns the file name without extension for key.
func JointRegressorBase(key Key) (string, error) {
	spec, err := smpl.Lookup(key.Variant)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRegressorLoad, err)
	}
	if !spec.HasRegressor {
		return "", fmt.Errorf("%w: %s has no joint regressor", ErrRegressorLoad, spec.Name)
	}
	suffix, err := betaSuffix(key.Betas)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_betas_to_joints_%s%s", strings.ToLower(spec.Name), key.Gender, suffix), nil
}

// LoadJointRegressor implements Loader.
func (l *FileLoader) LoadJointRegressor(ctx context.Context, key Key) (*JointRegressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := JointRegressorBase(key)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(l.Dir, base+".json")
	linear, template, err := readJointJSON(path)
	if errors.Is(err, fs.ErrNotExist) {
		path = filepath.Join(l.Dir, base+".npz")
		linear, template, err = readJointNPZ(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRegressorLoad, path, err)
	}

	r, err := buildJointRegressor(key, linear, template)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRegressorLoad, path, err)
	}
	return r, nil
}

// LoadMeasurementRegressor implements Loader.
func (l *FileLoader) LoadMeasurementRegressor(ctx context.Context, gender smpl.Gender) (*MeasurementRegressor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(l.Dir, fmt.Sprintf("measurements_to_betas_%s.json", gender))
	doc, err := readJSONArrays(path, keyA, keyB)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRegressorLoad, path, err)
	}

	a, b := doc[keyA], doc[keyB]
	if len(b) == 0 || len(a) != 2*len(b) {
		return nil, fmt.Errorf("%w: %s: A has %d values for %d betas", ErrRegressorLoad, path, len(a), len(b))
	}

	r, err := NewMeasurementRegressor(gender, mat.NewDense(len(b), 2, a), mat.NewVecDense(len(b), b))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRegressorLoad, path, err)
	}
	return r, nil
}

// buildJointRegressor infers B from the flattened sizes: the linear map
// holds 3J·B values, the template 3J.
func buildJointRegressor(key Key, linear, template []float64) (*JointRegressor, error) {
	if len(template) == 0 || len(template)%3 != 0 {
		return nil, fmt.Errorf("%w: template has %d values", ErrRegressorShapeMismatch, len(template))
	}
	rows := len(template)
	if len(linear)%rows != 0 {
		return nil, fmt.Errorf("%w: linear map has %d values for %d rows", ErrRegressorShapeMismatch, len(linear), rows)
	}
	cols := len(linear) / rows
	if cols == 0 {
		return nil, fmt.Errorf("%w: empty linear map", ErrRegressorShapeMismatch)
	}
	return NewJointRegressor(key, mat.NewDense(rows, cols, linear), mat.NewDense(rows/3, 3, template))
}

func readJointJSON(path string) (linear, template []float64, err error) {
	doc, err := readJSONArrays(path, keyLinearMap, keyTemplate)
	if err != nil {
		return nil, nil, err
	}
	return doc[keyLinearMap], doc[keyTemplate], nil
}

func readJointNPZ(path string) (linear, template []float64, err error) {
	archive, err := npz.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer archive.Close()

	if missing := archive.Missing(keyLinearMap, keyTemplate); len(missing) > 0 {
		return nil, nil, fmt.Errorf("missing arrays %s", strings.Join(missing, ", "))
	}

	arrays := make(map[string][]float64, 2)
	for _, key := range []string{keyLinearMap, keyTemplate} {
		arr, err := archive.Array(key)
		if err != nil {
			return nil, nil, err
		}
		if !arr.DType.IsNumeric() {
			return nil, nil, fmt.Errorf("%w: %s is %s", formats.ErrUnsupportedDType, key, arr.DType)
		}
		arrays[key] = arr.Data
	}
	return arrays[keyLinearMap], arrays[keyTemplate], nil
}

// readJSONArrays decodes the named keys of a JSON object, each a number
// array of any nesting depth, flattened in row-major order.
func readJSONArrays(path string, keys ...string) (map[string][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}

	out := make(map[string][]float64, len(keys))
	for _, key := range keys {
		raw, ok := doc[key]
		if !ok {
			return nil, fmt.Errorf("missing key %q", key)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", key, err)
		}
		flat, err := flatten(value, nil)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = flat
	}
	return out, nil
}

func flatten(value any, dst []float64) ([]float64, error) {
	switch v := value.(type) {
	case float64:
		return append(dst, v), nil
	case []any:
		var err error
		for _, item := range v {
			if dst, err = flatten(item, dst); err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("unexpected %T in number array", value)
	}
}
