// Package model provides the interfaces shared by the classifier, the
// encoders and the serving layer, plus fitted-state bookkeeping and
// artifact persistence.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う。分類器では各行のクラスインデックスを返す
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Fitter
	Predictor

	// PredictProba returns probability estimates for each class.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// NumClass returns the number of classes the model predicts.
	NumClass() int
}

// FeatureNamer is implemented by models that record the column names they
// were trained on.
type FeatureNamer interface {
	FeatureNames() []string
}

// Persistable is the interface for models that can be saved to a file.
type Persistable interface {
	Save(path string) error
}
