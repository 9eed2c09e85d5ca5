package boosting

import (
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// Objective は学習目的関数
type Objective string

const (
	// MultiSoftmax はPredictでクラスインデックスを返す多クラス分類
	MultiSoftmax Objective = "multi:softmax"
	// MultiSoftprob はMultiSoftmaxと同じ学習を行う。区別は保存形式上のみ
	MultiSoftprob Objective = "multi:softprob"
)

// Params はブースティングのハイパーパラメータ
type Params struct {
	Objective Objective `json:"objective"`
	NumClass  int       `json:"num_class"`
	NumRounds int       `json:"num_boost_round"`

	// Tree construction
	Eta            float64 `json:"eta"`
	MaxDepth       int     `json:"max_depth"`
	MinChildWeight float64 `json:"min_child_weight"`

	// Regularization
	Lambda float64 `json:"lambda"`
	Gamma  float64 `json:"gamma"`

	BaseScore float64 `json:"base_score"`

	// Sampling. 1.0 uses every row in every round.
	Subsample float64 `json:"subsample"`
	Seed      uint64  `json:"seed"`

	// Verbosity > 0 logs training progress.
	Verbosity int `json:"verbosity"`
}

// DefaultParams はXGBoostと同じ既定値を返す。NumClassは呼び出し側で設定する
func DefaultParams() Params {
	return Params{
		Objective:      MultiSoftmax,
		NumRounds:      50,
		Eta:            0.3,
		MaxDepth:       6,
		MinChildWeight: 1,
		Lambda:         1,
		Gamma:          0,
		BaseScore:      0.5,
		Subsample:      1,
		Seed:           42,
	}
}

// Validate はパラメータの範囲を検証する
func (p Params) Validate() error {
	switch p.Objective {
	case MultiSoftmax, MultiSoftprob:
	default:
		return errors.NewValidationError("objective", "unsupported objective", p.Objective)
	}
	if p.NumClass < 2 {
		return errors.NewValidationError("num_class", "must be at least 2", p.NumClass)
	}
	if p.NumRounds < 1 {
		return errors.NewValidationError("num_boost_round", "must be positive", p.NumRounds)
	}
	if p.Eta <= 0 || p.Eta > 1 {
		return errors.NewValidationError("eta", "must be in (0, 1]", p.Eta)
	}
	if p.MaxDepth < 1 {
		return errors.NewValidationError("max_depth", "must be positive", p.MaxDepth)
	}
	if p.MinChildWeight < 0 {
		return errors.NewValidationError("min_child_weight", "must be non-negative", p.MinChildWeight)
	}
	if p.Lambda < 0 {
		return errors.NewValidationError("lambda", "must be non-negative", p.Lambda)
	}
	if p.Gamma < 0 {
		return errors.NewValidationError("gamma", "must be non-negative", p.Gamma)
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		return errors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	}
	return nil
}
