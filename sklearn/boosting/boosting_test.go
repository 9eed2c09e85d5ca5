package boosting

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
)

// threeClassData returns 3 well separated classes along feature 0 plus a
// noise feature.
func threeClassData(perClass int) (*mat.Dense, *mat.Dense) {
	n := 3 * perClass
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for c := 0; c < 3; c++ {
		for i := 0; i < perClass; i++ {
			row := c*perClass + i
			X.Set(row, 0, float64(c*10)+float64(i%5))
			X.Set(row, 1, float64(i%7))
			y.Set(row, 0, float64(c))
		}
	}
	return X, y
}

func testParams() Params {
	p := DefaultParams()
	p.NumClass = 3
	p.NumRounds = 10
	return p
}

func TestBoosterFitPredict(t *testing.T) {
	X, y := threeClassData(20)
	b := NewBooster(testParams())
	require.NoError(t, b.Fit(X, y))

	assert.True(t, b.IsFitted())
	assert.Equal(t, 10, b.NumRounds())
	assert.Len(t, b.Trees, 30)
	for i, tree := range b.Trees {
		assert.Equal(t, i%3, tree.Class, "tree %d", i)
		assert.Equal(t, 0.3, tree.ShrinkageRate)
		assert.LessOrEqual(t, tree.MaxDepth, 6)
	}

	pred, err := b.PredictClasses(X)
	require.NoError(t, err)
	for i, p := range pred {
		assert.Equal(t, int(y.At(i, 0)), p, "row %d", i)
	}

	proba, err := b.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	require.Equal(t, 60, r)
	require.Equal(t, 3, c)
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, proba)
		assert.InDelta(t, 1.0, floats.Sum(row), 1e-9)
		assert.Equal(t, pred[i], floats.MaxIdx(row))
	}
}

func TestBoosterDeterministic(t *testing.T) {
	X, y := threeClassData(15)
	params := testParams()
	params.Subsample = 0.8

	a := NewBooster(params)
	require.NoError(t, a.Fit(X, y))
	b := NewBooster(params)
	require.NoError(t, b.Fit(X, y))
	assert.Equal(t, a.Trees, b.Trees)

	params.Seed = 7
	c := NewBooster(params)
	require.NoError(t, c.Fit(X, y))
	assert.NotEqual(t, a.Trees, c.Trees)
}

func TestTreePredict(t *testing.T) {
	tree := Tree{
		ShrinkageRate: 0.5,
		Nodes: []Node{
			{NodeID: 0, LeftChild: 1, RightChild: 2, SplitFeature: 1, Threshold: 2.5, DefaultLeft: true},
			{NodeID: 1, LeftChild: -1, RightChild: -1, LeafValue: -1},
			{NodeID: 2, LeftChild: -1, RightChild: -1, LeafValue: 4},
		},
	}

	tests := []struct {
		name     string
		features []float64
		want     float64
	}{
		{"left", []float64{0, 1}, -0.5},
		{"threshold goes left", []float64{0, 2.5}, -0.5},
		{"right", []float64{0, 3}, 2},
		{"missing uses default", []float64{0, math.NaN()}, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tree.Predict(tt.features))
		})
	}
	assert.Equal(t, 2, tree.NumLeaves())
}

func TestBoosterErrors(t *testing.T) {
	X, y := threeClassData(5)

	t.Run("not fitted", func(t *testing.T) {
		_, err := NewBooster(testParams()).Predict(X)
		var nf *errors.NotFittedError
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("invalid params", func(t *testing.T) {
		p := testParams()
		p.NumClass = 1
		err := NewBooster(p).Fit(X, y)
		var verr *errors.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "num_class", verr.ParamName)
	})

	t.Run("label out of range", func(t *testing.T) {
		bad := mat.DenseCopyOf(y)
		bad.Set(0, 0, 3)
		err := NewBooster(testParams()).Fit(X, bad)
		var verr *errors.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("row mismatch", func(t *testing.T) {
		err := NewBooster(testParams()).Fit(X, mat.NewDense(2, 1, nil))
		var derr *errors.DimensionError
		assert.True(t, errors.As(err, &derr))
	})

	t.Run("feature names mismatch", func(t *testing.T) {
		b := NewBooster(testParams())
		b.SetFeatureNames([]string{"only_one"})
		err := b.Fit(X, y)
		var derr *errors.DimensionError
		assert.True(t, errors.As(err, &derr))
	})

	t.Run("predict width mismatch", func(t *testing.T) {
		b := NewBooster(testParams())
		require.NoError(t, b.Fit(X, y))
		_, err := b.Predict(mat.NewDense(1, 3, nil))
		var derr *errors.DimensionError
		require.True(t, errors.As(err, &derr))
		assert.Equal(t, 2, derr.Expected)
		assert.Equal(t, 3, derr.Got)
	})
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		param  string
	}{
		{"objective", func(p *Params) { p.Objective = "reg:squarederror" }, "objective"},
		{"rounds", func(p *Params) { p.NumRounds = 0 }, "num_boost_round"},
		{"eta", func(p *Params) { p.Eta = 0 }, "eta"},
		{"depth", func(p *Params) { p.MaxDepth = 0 }, "max_depth"},
		{"lambda", func(p *Params) { p.Lambda = -1 }, "lambda"},
		{"gamma", func(p *Params) { p.Gamma = -1 }, "gamma"},
		{"subsample", func(p *Params) { p.Subsample = 1.5 }, "subsample"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			var verr *errors.ValidationError
			require.True(t, errors.As(p.Validate(), &verr))
			assert.Equal(t, tt.param, verr.ParamName)
		})
	}
	assert.NoError(t, testParams().Validate())
}

func TestFeatureImportance(t *testing.T) {
	X, y := threeClassData(20)
	b := NewBooster(testParams())
	require.NoError(t, b.Fit(X, y))

	for _, kind := range []string{ImportanceWeight, ImportanceGain, ImportanceTotalGain, ImportanceCover} {
		imp, err := b.FeatureImportance(kind)
		require.NoError(t, err, kind)
		require.Len(t, imp, 2)
		assert.InDelta(t, 1.0, floats.Sum(imp), 1e-9, kind)
	}

	gain, err := b.FeatureImportance(ImportanceTotalGain)
	require.NoError(t, err)
	assert.Greater(t, gain[0], gain[1])

	_, err = b.FeatureImportance("permutation")
	assert.Error(t, err)
}

func TestCallbacks(t *testing.T) {
	X, y := threeClassData(10)

	var history map[string][]float64
	tl, _ := log.NewTestLogger(log.LevelDebug)
	b := NewBooster(testParams()).WithCallbacks(
		RecordEvaluation(&history),
		LogEvaluation(tl, 5),
	)
	require.NoError(t, b.Fit(X, y))

	require.Len(t, history["train-mlogloss"], 10)
	require.Len(t, history["train-merror"], 10)
	losses := history["train-mlogloss"]
	assert.Less(t, losses[len(losses)-1], losses[0])
	assert.True(t, tl.ContainsMessage("Boosting round"))
	entries, err := tl.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEarlyStopping(t *testing.T) {
	X, y := threeClassData(10)
	p := testParams()
	p.NumRounds = 50

	calls := 0
	stopAfter := func(env *CallbackEnv) error {
		calls++
		env.EvalResults["constant"] = 1
		return nil
	}
	b := NewBooster(p).WithCallbacks(stopAfter, EarlyStopping(3, "constant"))
	require.NoError(t, b.Fit(X, y))

	// 1回目で最良値、以降3回改善なしで停止
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, b.NumRounds())
}

func TestSaveLoad(t *testing.T) {
	X, y := threeClassData(20)
	b := NewBooster(testParams())
	b.SetFeatureNames([]string{"x0", "x1"})
	b.RunID = "run-42"
	require.NoError(t, b.Fit(X, y))

	path := filepath.Join(t.TempDir(), "data", "model.json")
	require.NoError(t, b.Save(path))

	loaded, err := LoadBooster(path)
	require.NoError(t, err)
	assert.Equal(t, "run-42", loaded.RunID)
	assert.Equal(t, []string{"x0", "x1"}, loaded.FeatureNames())
	assert.Equal(t, 3, loaded.NumClass())
	assert.Equal(t, b.Params, loaded.Params)
	assert.Equal(t, b.Trees, loaded.Trees)

	want, err := b.PredictProba(X)
	require.NoError(t, err)
	got, err := loaded.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))
}

func TestLoadBoosterMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xgb_penguin_model.json")
	_, err := LoadBooster(path)
	var missing *errors.MissingArtifactError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "classifier", missing.Kind)
	assert.Contains(t, err.Error(), path)
}

func TestReadJSONRejectsMalformed(t *testing.T) {
	X, y := threeClassData(5)
	b := NewBooster(testParams())
	require.NoError(t, b.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, b.WriteJSON(&buf))
	_, err := ReadJSON(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	tests := []struct {
		name string
		json string
	}{
		{"not json", "{"},
		{"bad params", `{"params":{"objective":"multi:softmax","num_class":1}}`},
		{"no trees", `{"params":{"objective":"multi:softmax","num_class":2,"num_boost_round":1,"eta":0.3,"max_depth":6,"subsample":1},"num_feature":2,"trees":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSON(bytes.NewReader([]byte(tt.json)))
			assert.Error(t, err)
		})
	}
}

func TestSoftmaxGradients(t *testing.T) {
	obj := softmaxObjective{numClass: 3}
	labels := []int{1}
	margins := []float64{0, 0, 0}
	grad := [][]float64{{0}, {0}, {0}}
	hess := [][]float64{{0}, {0}, {0}}
	obj.gradients(labels, margins, grad, hess)

	third := 1.0 / 3
	assert.InDelta(t, third, grad[0][0], 1e-12)
	assert.InDelta(t, third-1, grad[1][0], 1e-12)
	assert.InDelta(t, 2*third*(1-third), hess[2][0], 1e-12)
	assert.InDelta(t, math.Log(3), obj.loss(labels, margins), 1e-12)

	// 確率が飽和してもhessianは下限で止まる
	obj.gradients(labels, []float64{0, 1000, 0}, grad, hess)
	assert.Equal(t, minHessian, hess[0][0])
}
