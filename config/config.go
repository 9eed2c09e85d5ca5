// Package config はコマンドの設定を読み込む
//
// 優先順位は低い方から: 既定値、.envファイル、環境変数(PENGUIN_*)、コマンドライン引数。
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/YuminosukeSato/penguinml/dataset"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// 成果物の既定の置き場所とファイル名
const (
	DefaultDataDir          = "app/data"
	ModelFileName           = "xgb_penguin_model.json"
	LabelEncoderFileName    = "label_encoder.gob"
	DefaultModelPath        = DefaultDataDir + "/" + ModelFileName
	DefaultLabelEncoderPath = DefaultDataDir + "/" + LabelEncoderFileName
)

// DefaultEnvFile is read when present; a missing file is not an error.
const DefaultEnvFile = ".env"

// ServeConfig は推論サーバーの設定
type ServeConfig struct {
	Addr             string        `env:"PENGUIN_ADDR"`
	ModelPath        string        `env:"PENGUIN_MODEL_PATH"`
	LabelEncoderPath string        `env:"PENGUIN_LABEL_ENCODER_PATH"`
	LogLevel         string        `env:"PENGUIN_LOG_LEVEL"`
	ReadTimeout      time.Duration `env:"PENGUIN_READ_TIMEOUT"`
	WriteTimeout     time.Duration `env:"PENGUIN_WRITE_TIMEOUT"`
	ShutdownTimeout  time.Duration `env:"PENGUIN_SHUTDOWN_TIMEOUT"`

	// RateLimit は /predict の1秒あたりの許容リクエスト数。0で無効
	RateLimit float64 `env:"PENGUIN_RATE_LIMIT"`
	RateBurst int     `env:"PENGUIN_RATE_BURST"`

	// CacheSize は予測キャッシュのエントリ数。0で無効
	CacheSize int `env:"PENGUIN_CACHE_SIZE"`
}

// DefaultServeConfig は既定値を返す
func DefaultServeConfig() ServeConfig {
	return ServeConfig{
		Addr:             ":8000",
		ModelPath:        DefaultModelPath,
		LabelEncoderPath: DefaultLabelEncoderPath,
		LogLevel:         "info",
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		RateLimit:        0,
		RateBurst:        20,
		CacheSize:        1024,
	}
}

// Validate checks the values that cannot be caught by parsing.
func (c ServeConfig) Validate() error {
	if c.Addr == "" {
		return errors.NewValidationError("addr", "must not be empty", c.Addr)
	}
	if c.ModelPath == "" {
		return errors.NewValidationError("model_path", "must not be empty", c.ModelPath)
	}
	if c.LabelEncoderPath == "" {
		return errors.NewValidationError("label_encoder_path", "must not be empty", c.LabelEncoderPath)
	}
	if c.RateLimit < 0 {
		return errors.NewValidationError("rate_limit", "must be non-negative", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return errors.NewValidationError("rate_burst", "must be positive when rate limiting is enabled", c.RateBurst)
	}
	if c.CacheSize < 0 {
		return errors.NewValidationError("cache_size", "must be non-negative", c.CacheSize)
	}
	return nil
}

// TrainConfig は学習パイプラインの設定
type TrainConfig struct {
	// DataPath がなければ DataURL からダウンロードして CacheDir に保存する
	DataPath string `env:"PENGUIN_DATA_PATH"`
	DataURL  string `env:"PENGUIN_DATA_URL"`
	CacheDir string `env:"PENGUIN_CACHE_DIR"`

	OutputDir string `env:"PENGUIN_OUTPUT_DIR"`
	PlotPath  string `env:"PENGUIN_PLOT_PATH"`

	TestSize  float64 `env:"PENGUIN_TEST_SIZE"`
	Seed      int64   `env:"PENGUIN_SEED"`
	NumRounds int     `env:"PENGUIN_NUM_ROUNDS"`
	Eta       float64 `env:"PENGUIN_ETA"`
	MaxDepth  int     `env:"PENGUIN_MAX_DEPTH"`

	LogLevel string `env:"PENGUIN_LOG_LEVEL"`
}

// DefaultTrainConfig は既定値を返す
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		DataURL:   dataset.DefaultURL,
		CacheDir:  filepath.Join(os.TempDir(), "penguinml"),
		OutputDir: DefaultDataDir,
		TestSize:  0.2,
		Seed:      42,
		NumRounds: 50,
		Eta:       0.3,
		MaxDepth:  6,
		LogLevel:  "info",
	}
}

// ModelPath is where the trained classifier is written.
func (c TrainConfig) ModelPath() string {
	return filepath.Join(c.OutputDir, ModelFileName)
}

// LabelEncoderPath is where the label mapping is written.
func (c TrainConfig) LabelEncoderPath() string {
	return filepath.Join(c.OutputDir, LabelEncoderFileName)
}

// Validate checks the values that cannot be caught by parsing.
func (c TrainConfig) Validate() error {
	if c.DataPath == "" && c.DataURL == "" {
		return errors.NewValidationError("data", "either a data path or a data URL is required", "")
	}
	if c.OutputDir == "" {
		return errors.NewValidationError("output_dir", "must not be empty", c.OutputDir)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return errors.NewValidationError("test_size", "must be in (0, 1)", c.TestSize)
	}
	if c.Seed < 0 {
		return errors.NewValidationError("seed", "must be non-negative", c.Seed)
	}
	if c.NumRounds < 1 {
		return errors.NewValidationError("num_rounds", "must be positive", c.NumRounds)
	}
	if c.Eta <= 0 || c.Eta > 1 {
		return errors.NewValidationError("eta", "must be in (0, 1]", c.Eta)
	}
	if c.MaxDepth < 1 {
		return errors.NewValidationError("max_depth", "must be positive", c.MaxDepth)
	}
	return nil
}

// LoadServe builds the server configuration. args excludes the program
// name.
func LoadServe(args []string) (ServeConfig, error) {
	cfg := DefaultServeConfig()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.String("env-file", DefaultEnvFile, "optional dotenv file")
	if err := LoadEnvFile(envFileFromArgs(args)); err != nil {
		return cfg, err
	}
	if err := overlayEnv(&cfg); err != nil {
		return cfg, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "path of the trained classifier")
	fs.StringVar(&cfg.LabelEncoderPath, "label-encoder", cfg.LabelEncoderPath, "path of the label encoder")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP read timeout")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP write timeout")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "predict requests per second, 0 disables")
	fs.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "predict request burst")
	fs.IntVar(&cfg.CacheSize, "cache-size", cfg.CacheSize, "prediction cache entries, 0 disables")
	if err := fs.Parse(args); err != nil {
		return cfg, errors.Wrap(err, "failed to parse flags")
	}
	return cfg, cfg.Validate()
}

// LoadTrain builds the training configuration. args excludes the program
// name.
func LoadTrain(args []string) (TrainConfig, error) {
	cfg := DefaultTrainConfig()

	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.String("env-file", DefaultEnvFile, "optional dotenv file")
	if err := LoadEnvFile(envFileFromArgs(args)); err != nil {
		return cfg, err
	}
	if err := overlayEnv(&cfg); err != nil {
		return cfg, err
	}

	fs.StringVar(&cfg.DataPath, "data", cfg.DataPath, "local penguins CSV; downloads from -data-url when empty")
	fs.StringVar(&cfg.DataURL, "data-url", cfg.DataURL, "penguins CSV URL")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for the downloaded CSV")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "directory for the model and label encoder")
	fs.StringVar(&cfg.PlotPath, "plot", cfg.PlotPath, "write a feature importance PNG to this path")
	fs.Float64Var(&cfg.TestSize, "test-size", cfg.TestSize, "held-out fraction")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	fs.IntVar(&cfg.NumRounds, "rounds", cfg.NumRounds, "boosting rounds")
	fs.Float64Var(&cfg.Eta, "eta", cfg.Eta, "learning rate")
	fs.IntVar(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "maximum tree depth")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return cfg, errors.Wrap(err, "failed to parse flags")
	}
	return cfg, cfg.Validate()
}

// envFileFromArgs finds -env-file before the flags are parsed, so that
// the file can feed the environment overlay that flag defaults come from.
func envFileFromArgs(args []string) string {
	path := DefaultEnvFile
	for i, a := range args {
		switch {
		case a == "-env-file" || a == "--env-file":
			if i+1 < len(args) {
				path = args[i+1]
			}
		case strings.HasPrefix(a, "-env-file="):
			path = strings.TrimPrefix(a, "-env-file=")
		case strings.HasPrefix(a, "--env-file="):
			path = strings.TrimPrefix(a, "--env-file=")
		}
	}
	return path
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment without overriding variables that are already set. A
// missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "failed to load env file %s", path)
	}
	return nil
}

// overlayEnv replaces fields whose PENGUIN_* variable is set.
func overlayEnv(target interface{}) error {
	err := envdecode.Decode(target)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return errors.Wrap(err, "failed to decode environment")
	}
	return nil
}
