package serving

import (
	"fmt"
	"math"
	"os"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/core/model"
	"github.com/YuminosukeSato/penguinml/penguin"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
	"github.com/YuminosukeSato/penguinml/preprocessing"
	"github.com/YuminosukeSato/penguinml/sklearn/boosting"
)

// Artifacts は推論に必要な学習済みの状態。構築後は変更しないので
// ロックなしで複数のリクエストから共有できる
type Artifacts struct {
	encoder    preprocessing.FeatureEncoder
	classifier model.Classifier
	labels     *preprocessing.LabelEncoder
}

// LoadArtifacts reads the classifier and the label encoder written by the
// training pipeline. A missing file yields a MissingArtifactError naming
// it; a classifier whose feature names or class count disagree with the
// encoders yields a SchemaMismatchError.
func LoadArtifacts(modelPath, labelPath string) (*Artifacts, error) {
	for _, a := range []struct{ kind, path string }{
		{"classifier", modelPath},
		{"label encoder", labelPath},
	} {
		if _, err := os.Stat(a.path); errors.Is(err, os.ErrNotExist) {
			return nil, errors.NewMissingArtifactError(a.kind, a.path)
		}
	}

	clf, err := boosting.LoadBooster(modelPath)
	if err != nil {
		return nil, err
	}
	le, err := preprocessing.LoadLabelEncoder(labelPath)
	if err != nil {
		return nil, err
	}

	// run IDの不一致は警告のみ
	if clf.RunID != le.RunID() {
		log.GetLoggerWithName("serving").Warn("Artifacts come from different training runs",
			"classifier_run_id", clf.RunID,
			"label_encoder_run_id", le.RunID(),
		)
	}
	return NewArtifacts(clf, le)
}

// NewArtifacts assembles Artifacts from already loaded parts.
func NewArtifacts(clf model.Classifier, le *preprocessing.LabelEncoder) (*Artifacts, error) {
	if clf == nil || le == nil {
		return nil, errors.NewValueError("NewArtifacts", "classifier and label encoder are required")
	}
	if named, ok := clf.(model.FeatureNamer); ok {
		if names := named.FeatureNames(); !slices.Equal(names, preprocessing.SchemaColumns()) {
			return nil, errors.NewSchemaMismatchError("load", preprocessing.SchemaColumns(), names)
		}
	}
	if clf.NumClass() != le.NumClasses() {
		return nil, errors.NewSchemaMismatchError("load", le.Classes(),
			[]string{fmt.Sprintf("%d classes", clf.NumClass())})
	}
	return &Artifacts{
		encoder:    preprocessing.NewFeatureEncoder(),
		classifier: clf,
		labels:     le,
	}, nil
}

// Classes returns the species the classifier can predict.
func (a *Artifacts) Classes() []string {
	return a.labels.Classes()
}

// Predict classifies one record. Every failure, including a panic inside
// the classifier, comes back as a PredictionError.
func (a *Artifacts) Predict(r penguin.Record) (species string, err error) {
	defer func() {
		if err != nil {
			err = asPredictionError(err)
		}
	}()
	defer errors.Recover(&err, "Artifacts.Predict")

	x, err := a.encoder.Encode(r)
	if err != nil {
		return "", err
	}
	out, err := a.classifier.Predict(mat.NewDense(1, len(x), x))
	if err != nil {
		return "", err
	}
	if rows, cols := out.Dims(); rows != 1 || cols != 1 {
		return "", errors.NewDimensionError("Artifacts.Predict", 1, rows, 0)
	}

	v := out.At(0, 0)
	if math.IsNaN(v) || v != math.Trunc(v) {
		return "", errors.NewValueError("Artifacts.Predict", "classifier returned a non-integer class index")
	}
	labels, err := a.labels.InverseTransform([]int{int(v)})
	if err != nil {
		return "", err
	}
	return labels[0], nil
}

// asPredictionError はクライアントに返す理由を決める。
// スキーマ不一致とパニックの詳細は外に出さない
func asPredictionError(err error) error {
	var pe *errors.PredictionError
	if errors.As(err, &pe) {
		return err
	}
	var sm *errors.SchemaMismatchError
	if errors.As(err, &sm) {
		return errors.NewPredictionError("encoded features do not match the model schema", err)
	}
	var panicErr *errors.PanicError
	if errors.As(err, &panicErr) {
		return errors.NewPredictionError("internal error", err)
	}
	return errors.NewPredictionError(err.Error(), err)
}
