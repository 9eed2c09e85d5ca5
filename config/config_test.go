package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// noEnvFile points -env-file at a path that does not exist so a stray
// .env in the package directory cannot leak into the test.
func noEnvFile(t *testing.T) string {
	return "-env-file=" + filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadServeDefaults(t *testing.T) {
	cfg, err := LoadServe([]string{noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, DefaultServeConfig(), cfg)
	assert.Equal(t, "app/data/xgb_penguin_model.json", cfg.ModelPath)
	assert.Equal(t, "app/data/label_encoder.gob", cfg.LabelEncoderPath)
}

func TestLoadServePrecedence(t *testing.T) {
	t.Setenv("PENGUIN_ADDR", ":9000")
	t.Setenv("PENGUIN_MODEL_PATH", "/env/model.json")
	t.Setenv("PENGUIN_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := LoadServe([]string{noEnvFile(t), "-model", "/flag/model.json"})
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "/flag/model.json", cfg.ModelPath)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultLabelEncoderPath, cfg.LabelEncoderPath)
}

func TestLoadServeEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.env")
	require.NoError(t, os.WriteFile(path, []byte("PENGUIN_LABEL_ENCODER_PATH=/dotenv/le.gob\nPENGUIN_RATE_LIMIT=5\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PENGUIN_LABEL_ENCODER_PATH")
		os.Unsetenv("PENGUIN_RATE_LIMIT")
	})

	cfg, err := LoadServe([]string{"-env-file", path})
	require.NoError(t, err)
	assert.Equal(t, "/dotenv/le.gob", cfg.LabelEncoderPath)
	assert.Equal(t, 5.0, cfg.RateLimit)
}

func TestLoadServeInvalid(t *testing.T) {
	_, err := LoadServe([]string{noEnvFile(t), "-rate-limit", "-1"})
	var verr *errors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "rate_limit", verr.ParamName)

	_, err = LoadServe([]string{noEnvFile(t), "-no-such-flag"})
	assert.Error(t, err)
}

func TestLoadTrainDefaults(t *testing.T) {
	cfg, err := LoadTrain([]string{noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.TestSize)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 50, cfg.NumRounds)
	assert.Equal(t, filepath.Join("app", "data", "xgb_penguin_model.json"), cfg.ModelPath())
	assert.Equal(t, filepath.Join("app", "data", "label_encoder.gob"), cfg.LabelEncoderPath())
}

func TestLoadTrainOverrides(t *testing.T) {
	t.Setenv("PENGUIN_SEED", "7")
	t.Setenv("PENGUIN_OUTPUT_DIR", "/env/out")

	cfg, err := LoadTrain([]string{noEnvFile(t), "-data", "penguins.csv", "-rounds", "10"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "penguins.csv", cfg.DataPath)
	assert.Equal(t, 10, cfg.NumRounds)
	assert.Equal(t, "/env/out/label_encoder.gob", cfg.LabelEncoderPath())
}

func TestTrainConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *TrainConfig)
		param  string
	}{
		{"no data", func(c *TrainConfig) { c.DataPath, c.DataURL = "", "" }, "data"},
		{"test size", func(c *TrainConfig) { c.TestSize = 1 }, "test_size"},
		{"seed", func(c *TrainConfig) { c.Seed = -1 }, "seed"},
		{"rounds", func(c *TrainConfig) { c.NumRounds = 0 }, "num_rounds"},
		{"eta", func(c *TrainConfig) { c.Eta = 2 }, "eta"},
		{"depth", func(c *TrainConfig) { c.MaxDepth = 0 }, "max_depth"},
		{"output", func(c *TrainConfig) { c.OutputDir = "" }, "output_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTrainConfig()
			tt.mutate(&cfg)
			var verr *errors.ValidationError
			require.True(t, errors.As(cfg.Validate(), &verr))
			assert.Equal(t, tt.param, verr.ParamName)
		})
	}
}
