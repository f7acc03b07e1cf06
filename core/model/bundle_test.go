package model

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

func sampleBundle() *Bundle {
	b := NewBundle("Ridge")
	b.State = ModelState{Fitted: true, NFeatures: 3, NSamples: 10, NTargets: 2}
	b.SetParam("alpha", 0.5)
	b.SetString("solver", "activeset")
	b.SetMatrix("coef", mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}))
	b.SetVector("scale", []float64{0.1, 0.2, 0.3})
	b.SetIntMatrix("labels", [][]int{{2, 0}, {1, 2}})
	b.SetMask("mask", []bool{true, false, true})
	return b
}

func TestBundleAccessors(t *testing.T) {
	b := sampleBundle()

	coef, err := b.Matrix("coef")
	require.NoError(t, err)
	assert.Equal(t, 5.0, coef.At(1, 1))

	scale, err := b.Vector("scale")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, scale)

	labels, err := b.IntMatrix("labels")
	require.NoError(t, err)
	assert.Equal(t, [][]int{{2, 0}, {1, 2}}, labels)

	mask, err := b.Mask("mask")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, mask)

	alpha, ok := b.Param("alpha")
	assert.True(t, ok)
	assert.Equal(t, 0.5, alpha)

	_, err = b.Matrix("missing")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestBundleRequireType(t *testing.T) {
	b := sampleBundle()
	assert.NoError(t, b.RequireType("Ridge"))

	err := b.RequireType("NNLS")
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "model_type", ve.ParamName)
}

func TestEncodeDecodeBundle(t *testing.T) {
	b := sampleBundle()

	var buf bytes.Buffer
	require.NoError(t, EncodeBundle(&buf, b))
	assert.Equal(t, "CMB1", string(buf.Bytes()[:4]))

	got, err := DecodeBundle(&buf)
	require.NoError(t, err)
	assert.Equal(t, b.ModelType, got.ModelType)
	assert.Equal(t, b.State, got.State)
	assert.Equal(t, b.Params, got.Params)
	assert.Equal(t, b.Strings, got.Strings)
	assert.Equal(t, b.Arrays, got.Arrays)
	assert.Equal(t, b.IntArrays, got.IntArrays)
}

func TestDecodeBundle_Corruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeBundle(&buf, sampleBundle()))
	data := buf.Bytes()

	t.Run("flipped payload byte", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[headerSize+1] ^= 0xff
		_, err := DecodeBundle(bytes.NewReader(corrupted))
		assert.True(t, errors.Is(err, errors.ErrChecksumMismatch))
	})

	t.Run("bad magic", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[0] = 'X'
		_, err := DecodeBundle(bytes.NewReader(corrupted))
		var ve *errors.ValidationError
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := DecodeBundle(bytes.NewReader(data[:len(data)-3]))
		assert.Error(t, err)
	})
}

func TestSaveLoadBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.cmb")
	require.NoError(t, SaveBundle(sampleBundle(), path))

	got, err := LoadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, "Ridge", got.ModelType)

	_, err = LoadBundle(filepath.Join(t.TempDir(), "absent.cmb"))
	assert.Error(t, err)
}

func TestBundleJSON(t *testing.T) {
	data, err := sampleBundle().ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"model_type": "Ridge"`)

	var got Bundle
	require.NoError(t, got.FromJSON(data))
	assert.Equal(t, sampleBundle().Arrays, got.Arrays)
}

func TestBundleValidate(t *testing.T) {
	b := NewBundle("Ridge")
	b.State.Fitted = true
	assert.Error(t, b.Validate(), "fitted bundle without coef")

	b = NewBundle("")
	assert.Error(t, b.Validate())

	b = NewBundle("Ridge")
	b.Arrays["bad"] = Array{Shape: []int{2, 2}, Data: []float64{1}}
	assert.Error(t, b.Validate())
}
