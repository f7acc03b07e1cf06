package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/connmodel/pkg/errors"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
model: WNTA2
alpha: 0
n: 3
positive: true
solver: quadprog
workers: 4
timeout: 1m30s
log_level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, ModelStaged, cfg.Model)
	require.NotNil(t, cfg.Alpha)
	assert.Equal(t, 0.0, *cfg.Alpha)
	assert.Equal(t, 0.0, cfg.AlphaOr(1))
	assert.Equal(t, 3, cfg.N)
	assert.True(t, cfg.Positive)
	assert.Equal(t, "activeset", cfg.Solver)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 90*time.Second, time.Duration(cfg.Timeout))
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, ModelRidge, cfg.Model)
	assert.Nil(t, cfg.Alpha)
	assert.Equal(t, 2.5, cfg.AlphaOr(2.5))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		param string
	}{
		{"unknown model", "model: svm", "model"},
		{"negative alpha", "alpha: -1", "alpha"},
		{"negative gamma", "model: nnls\ngamma: -0.5", "gamma"},
		{"nan alpha", "alpha: .nan", "alpha"},
		{"infinite tol", "model: lasso\ntol: .inf", "tol"},
		{"cv of one", "model: sequential\ncv: 1", "cv"},
		{"unknown solver", "model: nnls\nsolver: simplex", "solver"},
		{"bad log level", "log_level: loud", "log_level"},
		{"bad timeout", "timeout: soon", "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.param, ve.ParamName)
		})
	}

	_, err := Parse([]byte("alpha_typo: 3"))
	assert.Error(t, err)
}

func TestLoadAndMarshal(t *testing.T) {
	alpha := 4.0
	cfg := &Config{Model: "lasso", Alpha: &alpha, MaxIter: 200, Timeout: Duration(2 * time.Second)}
	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 2s")

	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModelLasso, loaded.Model)
	assert.Equal(t, 4.0, loaded.AlphaOr(1))
	assert.Equal(t, 200, loaded.MaxIter)
	assert.Equal(t, 2*time.Second, time.Duration(loaded.Timeout))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCanonicalModel(t *testing.T) {
	for in, want := range map[string]string{
		"Ridge":        ModelRidge,
		"L2regression": ModelRidge,
		" wnta3 ":      ModelSequential,
		"PLSRegress":   ModelPLS,
		"nnls":         ModelNNLS,
	} {
		got, err := CanonicalModel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
