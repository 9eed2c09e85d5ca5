package training

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/penguinml/config"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
	"github.com/YuminosukeSato/penguinml/preprocessing"
	"github.com/YuminosukeSato/penguinml/sklearn/boosting"
)

const fixture = "../dataset/testdata/penguins_small.csv"

func testConfig(t *testing.T) config.TrainConfig {
	t.Helper()
	cfg := config.DefaultTrainConfig()
	cfg.DataPath = fixture
	cfg.DataURL = ""
	cfg.OutputDir = filepath.Join(t.TempDir(), "app", "data")
	cfg.NumRounds = 10
	return cfg
}

func TestRun(t *testing.T) {
	cfg := testConfig(t)

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"Adelie", "Chinstrap", "Gentoo"}, report.Classes)
	// 93行から欠損3行を除いた90行、テストは各クラス6行
	assert.Equal(t, 72, report.NumTrain)
	assert.Equal(t, 18, report.NumTest)
	assert.Len(t, report.TrainIndices, 72)
	assert.Len(t, report.TestIndices, 18)

	assert.Greater(t, report.TrainF1, 0.9)
	assert.GreaterOrEqual(t, report.TestF1, 0.0)
	assert.LessOrEqual(t, report.TestF1, 1.0)
	assert.Len(t, report.History["train-mlogloss"], cfg.NumRounds)

	r, c := report.ConfusionMatrix.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	var total float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += report.ConfusionMatrix.At(i, j)
		}
	}
	assert.Equal(t, float64(report.NumTest), total)

	assert.Len(t, report.FeatureImportance, preprocessing.NumFeatures)
	var sum float64
	for _, v := range report.FeatureImportance {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	// 出力ディレクトリは自動で作られ、両方のファイルが同じrun IDを持つ
	clf, err := boosting.LoadBooster(cfg.ModelPath())
	require.NoError(t, err)
	le, err := preprocessing.LoadLabelEncoder(cfg.LabelEncoderPath())
	require.NoError(t, err)
	assert.Equal(t, report.RunID, clf.RunID)
	assert.Equal(t, report.RunID, le.RunID())
	assert.Equal(t, preprocessing.SchemaColumns(), clf.FeatureNames())
	assert.Equal(t, le.NumClasses(), clf.NumClass())
	assert.Empty(t, report.PlotPath)
}

func TestRunIsReproducible(t *testing.T) {
	first, err := Run(context.Background(), testConfig(t))
	require.NoError(t, err)
	second, err := Run(context.Background(), testConfig(t))
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.TrainIndices, second.TrainIndices)
	assert.Equal(t, first.TestIndices, second.TestIndices)
	assert.Equal(t, first.TrainF1, second.TrainF1)
	assert.Equal(t, first.TestF1, second.TestF1)
	assert.Equal(t, first.History, second.History)

	a, err := os.ReadFile(filepath.Join(filepath.Dir(first.ModelPath), config.ModelFileName))
	require.NoError(t, err)
	assert.NotEmpty(t, a)
}

func TestRunDifferentSeed(t *testing.T) {
	base, err := Run(context.Background(), testConfig(t))
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Seed = 7
	other, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEqual(t, base.TestIndices, other.TestIndices)
}

func TestRunWritesPlot(t *testing.T) {
	cfg := testConfig(t)
	cfg.PlotPath = filepath.Join(t.TempDir(), "plots", "importance.png")

	report, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.PlotPath, report.PlotPath)

	info, err := os.Stat(cfg.PlotPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.TrainConfig)
		check  func(*testing.T, error)
	}{
		{
			name:   "missing data file",
			mutate: func(c *config.TrainConfig) { c.DataPath = "testdata/does-not-exist.csv" },
			check:  func(t *testing.T, err error) { assert.ErrorContains(t, err, "failed to load dataset") },
		},
		{
			name:   "invalid test size",
			mutate: func(c *config.TrainConfig) { c.TestSize = 1.5 },
			check: func(t *testing.T, err error) {
				var ve *errors.ValidationError
				assert.True(t, errors.As(err, &ve))
			},
		},
		{
			name: "no rows left",
			mutate: func(c *config.TrainConfig) {
				path := filepath.Join(t.TempDir(), "empty.csv")
				require.NoError(t, os.WriteFile(path, []byte(
					"species,island,bill_length_mm,bill_depth_mm,flipper_length_mm,body_mass_g,sex\n"+
						"Adelie,Torgersen,NA,NA,NA,NA,NA\n"), 0o644))
				c.DataPath = path
			},
			check: func(t *testing.T, err error) { assert.True(t, errors.Is(err, errors.ErrEmptyData)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := Run(context.Background(), cfg)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testConfig(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSaveImportancePlotErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")

	err := SaveImportancePlot(path, []string{"a", "b"}, []float64{1}, "t")
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	err = SaveImportancePlot(path, nil, nil, "t")
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestRunLogsSummary(t *testing.T) {
	provider, logger := log.NewTestLoggerProvider(log.LevelInfo)
	log.SetProvider(provider)
	t.Cleanup(func() { log.SetProvider(log.NewZerologProvider(os.Stderr, log.LevelInfo)) })

	report, err := Run(context.Background(), testConfig(t))
	require.NoError(t, err)

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)

	var messages []string
	for _, e := range entries {
		messages = append(messages, e["message"].(string))
		if e["message"] == "Training finished" {
			assert.Equal(t, report.RunID, e[log.RunIDKey])
		}
	}
	assert.Contains(t, messages, "Data prepared")
	assert.Contains(t, messages, "Evaluation finished")
	assert.Contains(t, messages, "Artifacts saved")
	assert.Contains(t, messages, "Training finished")

	logger.Clear()
	entries, err = logger.GetLogEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunKeepsPreviousArtifactsWhenSaveFails(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.OutputDir, 0o755))

	// 前回の学習で残ったモデルと、上書きできないラベルエンコーダの置き場所
	previous := []byte(`{"name":"previous run"}`)
	require.NoError(t, os.WriteFile(cfg.ModelPath(), previous, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.LabelEncoderPath(), "occupied"), 0o755))

	_, err := Run(context.Background(), cfg)
	require.Error(t, err)

	got, err := os.ReadFile(cfg.ModelPath())
	require.NoError(t, err)
	assert.Equal(t, previous, got)

	// 一時ファイルは残らない
	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{config.ModelFileName, config.LabelEncoderFileName}, names)
}
