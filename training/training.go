// Package training runs the end-to-end training pipeline: load the
// penguins table, encode it, fit the label mapping and the boosted-tree
// classifier on a stratified split, report macro F1 and persist both
// artifacts.
package training

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/config"
	"github.com/YuminosukeSato/penguinml/dataset"
	"github.com/YuminosukeSato/penguinml/metrics"
	"github.com/YuminosukeSato/penguinml/penguin"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
	"github.com/YuminosukeSato/penguinml/preprocessing"
	"github.com/YuminosukeSato/penguinml/sklearn/boosting"
	"github.com/YuminosukeSato/penguinml/sklearn/model_selection"
)

// Report summarises one training run.
type Report struct {
	RunID   string
	Classes []string

	NumTrain     int
	NumTest      int
	TrainIndices []int
	TestIndices  []int

	TrainF1       float64
	TestF1        float64
	TrainAccuracy float64
	TestAccuracy  float64

	// ConfusionMatrix is computed on the test partition; rows are true
	// classes, columns predictions, both in Classes order.
	ConfusionMatrix *mat.Dense

	// FeatureImportance is the normalised total gain per schema column.
	FeatureImportance map[string]float64
	History           map[string][]float64

	ModelPath        string
	LabelEncoderPath string
	PlotPath         string
	Duration         time.Duration
}

// Run executes the pipeline with cfg.
func Run(ctx context.Context, cfg config.TrainConfig) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	runID := uuid.NewString()
	logger := log.GetLoggerWithName("training").With(log.RunIDKey, runID)
	logger.Info("Training started",
		log.RandomSeedKey, cfg.Seed,
		log.HyperParamsKey, map[string]any{
			"num_boost_round": cfg.NumRounds,
			"eta":             cfg.Eta,
			"max_depth":       cfg.MaxDepth,
			"test_size":       cfg.TestSize,
		},
	)

	// 1-2. 読み込みと欠損行の除去
	ds, err := dataset.Load(ctx, dataset.Source{
		Path:     cfg.DataPath,
		URL:      cfg.DataURL,
		CacheDir: cfg.CacheDir,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load dataset")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3-4. 目的変数を分けて特徴量をエンコード。yearはエンコーダが落とす
	records := penguin.Records(ds.Observations)
	species := penguin.Labels(ds.Observations)
	X, err := preprocessing.NewFeatureEncoder().EncodeBatch(records)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode features")
	}

	// 5. ラベルエンコーダ
	le := preprocessing.NewLabelEncoder()
	y, err := le.FitTransform(species)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fit label encoder")
	}
	le.SetRunID(runID)
	logger.Info("Data prepared",
		log.SamplesKey, len(y),
		log.FeaturesKey, preprocessing.NumFeatures,
		log.ClassesKey, le.NumClasses(),
	)

	// 6. 層化分割
	split, err := model_selection.TrainTestSplit(len(y),
		model_selection.WithTestSize(cfg.TestSize),
		model_selection.WithRandomState(uint64(cfg.Seed)),
		model_selection.Stratified(y),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split dataset")
	}
	Xtrain := model_selection.TakeRows(X, split.TrainIndices)
	Xtest := model_selection.TakeRows(X, split.TestIndices)
	yTrain := model_selection.TakeInts(y, split.TrainIndices)
	yTest := model_selection.TakeInts(y, split.TestIndices)

	// 7. 学習
	params := boosting.DefaultParams()
	params.NumClass = le.NumClasses()
	params.NumRounds = cfg.NumRounds
	params.Eta = cfg.Eta
	params.MaxDepth = cfg.MaxDepth
	params.Seed = uint64(cfg.Seed)

	var history map[string][]float64
	clf := boosting.NewBooster(params).WithCallbacks(
		boosting.RecordEvaluation(&history),
		boosting.LogEvaluation(logger, 10),
	)
	clf.SetFeatureNames(preprocessing.SchemaColumns())
	clf.RunID = runID
	if err := clf.Fit(Xtrain, metrics.FromLabels(yTrain)); err != nil {
		return nil, errors.Wrap(err, "failed to fit classifier")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 8. 評価（診断用。結果で失敗にはしない）
	report := &Report{
		RunID:            runID,
		Classes:          le.Classes(),
		NumTrain:         len(yTrain),
		NumTest:          len(yTest),
		TrainIndices:     split.TrainIndices,
		TestIndices:      split.TestIndices,
		History:          history,
		ModelPath:        cfg.ModelPath(),
		LabelEncoderPath: cfg.LabelEncoderPath(),
	}
	if report.TrainF1, report.TrainAccuracy, _, err = evaluate(clf, Xtrain, yTrain); err != nil {
		return nil, errors.Wrap(err, "failed to evaluate training partition")
	}
	if report.TestF1, report.TestAccuracy, report.ConfusionMatrix, err = evaluate(clf, Xtest, yTest); err != nil {
		return nil, errors.Wrap(err, "failed to evaluate test partition")
	}
	logger.Info("Evaluation finished",
		log.OperationKey, log.OperationScore,
		"train_f1_macro", report.TrainF1,
		"test_f1_macro", report.TestF1,
		log.AccuracyKey, report.TestAccuracy,
	)
	logger.Debug("Test confusion matrix",
		"labels", strings.Join(report.Classes, ","),
		"matrix", formatMatrix(report.ConfusionMatrix),
	)

	importance, err := clf.FeatureImportance(boosting.ImportanceTotalGain)
	if err != nil {
		return nil, err
	}
	report.FeatureImportance = make(map[string]float64, len(importance))
	for i, name := range preprocessing.Schema {
		report.FeatureImportance[name] = importance[i]
	}

	// 9. 保存
	if err := saveArtifacts(clf, le, report.ModelPath, report.LabelEncoderPath, runID); err != nil {
		return nil, err
	}
	logger.Info("Artifacts saved",
		log.ArtifactPathKey, report.ModelPath,
		"label_encoder_path", report.LabelEncoderPath,
	)

	if cfg.PlotPath != "" {
		title := fmt.Sprintf("Feature importance (total gain), run %s", runID[:8])
		if err := SaveImportancePlot(cfg.PlotPath, preprocessing.SchemaColumns(), importance, title); err != nil {
			return nil, err
		}
		report.PlotPath = cfg.PlotPath
	}

	report.Duration = time.Since(start)
	logger.Info("Training finished", log.DurationMsKey, report.Duration.Milliseconds())
	return report, nil
}

// saveArtifacts writes both artifacts next to their destinations first and
// moves them into place only when both writes succeeded. The label encoder
// is moved first, so a failed move never leaves a new model beside an old
// label encoder.
func saveArtifacts(clf *boosting.Booster, le *preprocessing.LabelEncoder, modelPath, labelPath, runID string) error {
	tmpName := func(path string) string {
		return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+runID)
	}
	tmpModel, tmpLabels := tmpName(modelPath), tmpName(labelPath)
	defer os.Remove(tmpModel)
	defer os.Remove(tmpLabels)

	if err := clf.Save(tmpModel); err != nil {
		return err
	}
	if err := le.Save(tmpLabels); err != nil {
		return err
	}
	if err := os.Rename(tmpLabels, labelPath); err != nil {
		return errors.Wrapf(err, "failed to move label encoder into %s", labelPath)
	}
	if err := os.Rename(tmpModel, modelPath); err != nil {
		return errors.Wrapf(err, "failed to move model into %s", modelPath)
	}
	return nil
}

// evaluate returns macro F1, accuracy and the confusion matrix of clf on
// (X, y). The confusion matrix is indexed by class index; classes never
// seen in y or the predictions keep zero rows and columns.
func evaluate(clf *boosting.Booster, X mat.Matrix, y []int) (float64, float64, *mat.Dense, error) {
	pred, err := clf.PredictClasses(X)
	if err != nil {
		return 0, 0, nil, err
	}
	yTrue, yPred := metrics.FromLabels(y), metrics.FromLabels(pred)

	f1, err := metrics.F1Score(yTrue, yPred, metrics.AverageMacro)
	if err != nil {
		return 0, 0, nil, err
	}
	acc, err := metrics.Accuracy(yTrue, yPred)
	if err != nil {
		return 0, 0, nil, err
	}

	cm, labels, err := metrics.ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, 0, nil, err
	}
	k := clf.NumClass()
	full := mat.NewDense(k, k, nil)
	for i, li := range labels {
		for j, lj := range labels {
			full.Set(li, lj, cm.At(i, j))
		}
	}
	return f1, acc, full, nil
}

func formatMatrix(m *mat.Dense) string {
	r, c := m.Dims()
	rows := make([]string, r)
	for i := 0; i < r; i++ {
		cells := make([]string, c)
		for j := 0; j < c; j++ {
			cells[j] = fmt.Sprintf("%d", int(m.At(i, j)))
		}
		rows[i] = "[" + strings.Join(cells, " ") + "]"
	}
	return strings.Join(rows, " ")
}
