package model

import (
	"encoding/json"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

// BundleVersion is written into every bundle and checked on load.
const BundleVersion = "1"

// Array is a dense float64 array in row-major order.
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// IntArray is a dense int array in row-major order.
type IntArray struct {
	Shape []int `json:"shape"`
	Data  []int `json:"data"`
}

// Bundle is the opaque serializable form of a fitted model: scalar
// hyperparameters plus named numeric arrays.
type Bundle struct {
	ModelType string              `json:"model_type"`
	Version   string              `json:"version"`
	State     ModelState          `json:"state"`
	Params    map[string]float64  `json:"params,omitempty"`
	Strings   map[string]string   `json:"strings,omitempty"`
	Arrays    map[string]Array    `json:"arrays,omitempty"`
	IntArrays map[string]IntArray `json:"int_arrays,omitempty"`
}

// NewBundle creates an empty bundle for modelType.
func NewBundle(modelType string) *Bundle {
	return &Bundle{
		ModelType: modelType,
		Version:   BundleVersion,
		Params:    make(map[string]float64),
		Strings:   make(map[string]string),
		Arrays:    make(map[string]Array),
		IntArrays: make(map[string]IntArray),
	}
}

// SetParam stores a scalar hyperparameter.
func (b *Bundle) SetParam(name string, v float64) { b.Params[name] = v }

// Param returns a scalar hyperparameter.
func (b *Bundle) Param(name string) (float64, bool) {
	v, ok := b.Params[name]
	return v, ok
}

// SetString stores a string hyperparameter such as a solver name.
func (b *Bundle) SetString(name, v string) { b.Strings[name] = v }

// GetString returns a string hyperparameter.
func (b *Bundle) GetString(name string) (string, bool) {
	v, ok := b.Strings[name]
	return v, ok
}

// SetMatrix stores m under name. A nil matrix is skipped.
func (b *Bundle) SetMatrix(name string, m *mat.Dense) {
	if m == nil {
		return
	}
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	b.Arrays[name] = Array{Shape: []int{r, c}, Data: data}
}

// Matrix returns the matrix stored under name.
func (b *Bundle) Matrix(name string) (*mat.Dense, error) {
	a, ok := b.Arrays[name]
	if !ok {
		return nil, errors.NewValidationError(name, "array missing from bundle", b.ModelType)
	}
	if len(a.Shape) != 2 || a.Shape[0]*a.Shape[1] != len(a.Data) || a.Shape[0] == 0 || a.Shape[1] == 0 {
		return nil, errors.NewValidationError(name, "array is not a non-empty matrix", a.Shape)
	}
	data := make([]float64, len(a.Data))
	copy(data, a.Data)
	return mat.NewDense(a.Shape[0], a.Shape[1], data), nil
}

// SetVector stores a one-dimensional array.
func (b *Bundle) SetVector(name string, v []float64) {
	if v == nil {
		return
	}
	data := make([]float64, len(v))
	copy(data, v)
	b.Arrays[name] = Array{Shape: []int{len(v)}, Data: data}
}

// Vector returns the one-dimensional array stored under name.
func (b *Bundle) Vector(name string) ([]float64, error) {
	a, ok := b.Arrays[name]
	if !ok {
		return nil, errors.NewValidationError(name, "array missing from bundle", b.ModelType)
	}
	if len(a.Shape) != 1 || a.Shape[0] != len(a.Data) {
		return nil, errors.NewValidationError(name, "array is not a vector", a.Shape)
	}
	data := make([]float64, len(a.Data))
	copy(data, a.Data)
	return data, nil
}

// SetIntMatrix stores a ragged-free table of ints such as winner labels.
func (b *Bundle) SetIntMatrix(name string, rows [][]int) {
	if rows == nil {
		return
	}
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	data := make([]int, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, row...)
	}
	b.IntArrays[name] = IntArray{Shape: []int{len(rows), cols}, Data: data}
}

// IntMatrix returns the int table stored under name.
func (b *Bundle) IntMatrix(name string) ([][]int, error) {
	a, ok := b.IntArrays[name]
	if !ok {
		return nil, errors.NewValidationError(name, "int array missing from bundle", b.ModelType)
	}
	if len(a.Shape) != 2 || a.Shape[0]*a.Shape[1] != len(a.Data) {
		return nil, errors.NewValidationError(name, "int array is not a matrix", a.Shape)
	}
	rows := make([][]int, a.Shape[0])
	for i := range rows {
		rows[i] = make([]int, a.Shape[1])
		copy(rows[i], a.Data[i*a.Shape[1]:(i+1)*a.Shape[1]])
	}
	return rows, nil
}

// SetMask stores a boolean selection mask as 0/1 ints.
func (b *Bundle) SetMask(name string, mask []bool) {
	if mask == nil {
		return
	}
	data := make([]int, len(mask))
	for i, m := range mask {
		if m {
			data[i] = 1
		}
	}
	b.IntArrays[name] = IntArray{Shape: []int{len(mask)}, Data: data}
}

// Mask returns the boolean mask stored under name.
func (b *Bundle) Mask(name string) ([]bool, error) {
	a, ok := b.IntArrays[name]
	if !ok {
		return nil, errors.NewValidationError(name, "mask missing from bundle", b.ModelType)
	}
	mask := make([]bool, len(a.Data))
	for i, v := range a.Data {
		mask[i] = v != 0
	}
	return mask, nil
}

// RequireType checks that the bundle was produced by modelType.
func (b *Bundle) RequireType(modelType string) error {
	if b == nil {
		return errors.NewValidationError("bundle", "must not be nil", nil)
	}
	if b.ModelType != modelType {
		return errors.NewValidationError("model_type", "bundle was written by a different model, expected "+modelType, b.ModelType)
	}
	return nil
}

// Validate checks bundle-level invariants.
func (b *Bundle) Validate() error {
	if b.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", b.ModelType)
	}
	if b.Version != BundleVersion {
		return errors.NewValidationError("version", "unsupported bundle version", b.Version)
	}
	if b.State.Fitted {
		if _, ok := b.Arrays["coef"]; !ok {
			return errors.NewValidationError("coef", "fitted bundle must carry coefficients", nil)
		}
	}
	for name, a := range b.Arrays {
		n := 1
		for _, d := range a.Shape {
			n *= d
		}
		if n != len(a.Data) {
			return errors.NewValidationError(name, "shape does not match data length", a.Shape)
		}
	}
	return nil
}

// ToJSON returns an indented, human-readable export.
func (b *Bundle) ToJSON() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// FromJSON restores a bundle written by ToJSON.
func (b *Bundle) FromJSON(data []byte) error {
	if err := json.Unmarshal(data, b); err != nil {
		return errors.Wrap(err, "decode bundle json")
	}
	return b.Validate()
}
