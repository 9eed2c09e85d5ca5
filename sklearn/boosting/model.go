package boosting

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/core/model"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// Node is a single node of a regression tree. Leaves have both child
// indices set to -1.
type Node struct {
	NodeID     int
	LeftChild  int
	RightChild int

	// Split information (internal nodes)
	SplitFeature int
	Threshold    float64 // samples with value <= Threshold go left
	DefaultLeft  bool    // direction for NaN values
	Gain         float64

	// Leaf information
	LeafValue float64

	// Cover is the hessian sum of the training rows that reached the node.
	Cover float64
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.LeftChild == -1 && n.RightChild == -1
}

// Tree is one regression tree fitted to the gradient of a single class.
type Tree struct {
	TreeIndex     int
	Class         int
	ShrinkageRate float64
	MaxDepth      int
	Nodes         []Node
}

// Predict returns the shrunk leaf value reached by features.
func (t *Tree) Predict(features []float64) float64 {
	nodeID := 0
	for nodeID >= 0 && nodeID < len(t.Nodes) {
		node := &t.Nodes[nodeID]
		if node.IsLeaf() {
			return node.LeafValue * t.ShrinkageRate
		}

		v := features[node.SplitFeature]
		switch {
		case math.IsNaN(v):
			if node.DefaultLeft {
				nodeID = node.LeftChild
			} else {
				nodeID = node.RightChild
			}
		case v <= node.Threshold:
			nodeID = node.LeftChild
		default:
			nodeID = node.RightChild
		}
	}
	return 0
}

// NumLeaves returns the number of leaf nodes.
func (t *Tree) NumLeaves() int {
	count := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			count++
		}
	}
	return count
}

// Booster is a multi-class gradient-boosted tree ensemble.
//
// Trees are stored round-major: tree r*NumClass+c belongs to class c of
// round r.
type Booster struct {
	Params       Params
	Trees        []Tree
	NumFeatures  int
	featureNames []string

	// RunID ties the model to the label encoder written by the same
	// training run.
	RunID string

	state     *model.StateManager
	callbacks *CallbackList
}

var _ model.Classifier = (*Booster)(nil)
var _ model.FeatureNamer = (*Booster)(nil)
var _ model.Persistable = (*Booster)(nil)

// NewBooster creates an unfitted booster.
func NewBooster(params Params) *Booster {
	return &Booster{
		Params: params,
		state:  model.NewStateManager(),
	}
}

// WithCallbacks sets the callbacks invoked after every boosting round.
func (b *Booster) WithCallbacks(callbacks ...Callback) *Booster {
	b.callbacks = NewCallbackList(callbacks...)
	return b
}

// SetFeatureNames records the column names of the training matrix. Fit
// rejects a matrix whose width differs from len(names).
func (b *Booster) SetFeatureNames(names []string) {
	b.featureNames = append([]string(nil), names...)
}

// FeatureNames returns the column names recorded for training.
func (b *Booster) FeatureNames() []string {
	return append([]string(nil), b.featureNames...)
}

// NumClass returns the number of classes.
func (b *Booster) NumClass() int {
	return b.Params.NumClass
}

// IsFitted reports whether the booster holds a trained ensemble.
func (b *Booster) IsFitted() bool {
	return b.state.IsFitted()
}

// NumRounds returns the number of completed boosting rounds.
func (b *Booster) NumRounds() int {
	if b.Params.NumClass == 0 {
		return 0
	}
	return len(b.Trees) / b.Params.NumClass
}

// margins returns the raw per-class scores for one sample.
func (b *Booster) margins(features []float64) []float64 {
	k := b.Params.NumClass
	out := make([]float64, k)
	for c := range out {
		out[c] = b.Params.BaseScore
	}
	for i := range b.Trees {
		tree := &b.Trees[i]
		out[tree.Class] += tree.Predict(features)
	}
	return out
}

func (b *Booster) checkInput(X mat.Matrix, method string) (int, error) {
	if err := b.state.RequireFitted("Booster", method); err != nil {
		return 0, err
	}
	rows, cols := X.Dims()
	if cols != b.NumFeatures {
		return 0, errors.NewDimensionError("Booster."+method, b.NumFeatures, cols, 1)
	}
	return rows, nil
}

// PredictMargin returns the raw scores, n×NumClass.
func (b *Booster) PredictMargin(X mat.Matrix) (mat.Matrix, error) {
	rows, err := b.checkInput(X, "PredictMargin")
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, b.Params.NumClass, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, b.margins(mat.Row(nil, i, X)))
	}
	return out, nil
}

// PredictProba returns softmax probabilities, n×NumClass.
func (b *Booster) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, err := b.checkInput(X, "PredictProba")
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, b.Params.NumClass, nil)
	for i := 0; i < rows; i++ {
		out.SetRow(i, softmax(nil, b.margins(mat.Row(nil, i, X))))
	}
	return out, nil
}

// Predict returns the most probable class index of each row, n×1.
func (b *Booster) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, err := b.checkInput(X, "Predict")
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		out.Set(i, 0, float64(floats.MaxIdx(b.margins(mat.Row(nil, i, X)))))
	}
	return out, nil
}

// PredictClasses is Predict flattened to ints.
func (b *Booster) PredictClasses(X mat.Matrix) ([]int, error) {
	pred, err := b.Predict(X)
	if err != nil {
		return nil, err
	}
	rows, _ := pred.Dims()
	out := make([]int, rows)
	for i := range out {
		out[i] = int(pred.At(i, 0))
	}
	return out, nil
}

// Importance kinds accepted by FeatureImportance.
const (
	ImportanceWeight    = "weight"     // number of splits using the feature
	ImportanceGain      = "gain"       // average split gain
	ImportanceTotalGain = "total_gain" // summed split gain
	ImportanceCover     = "cover"      // average cover of the splits
)

// FeatureImportance returns one score per feature, normalised to sum to 1
// when any feature was used.
func (b *Booster) FeatureImportance(kind string) ([]float64, error) {
	if err := b.state.RequireFitted("Booster", "FeatureImportance"); err != nil {
		return nil, err
	}

	splits := make([]float64, b.NumFeatures)
	gain := make([]float64, b.NumFeatures)
	cover := make([]float64, b.NumFeatures)
	for _, tree := range b.Trees {
		for _, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			splits[node.SplitFeature]++
			gain[node.SplitFeature] += node.Gain
			cover[node.SplitFeature] += node.Cover
		}
	}

	var importance []float64
	switch kind {
	case ImportanceWeight:
		importance = splits
	case ImportanceTotalGain:
		importance = gain
	case ImportanceGain, ImportanceCover:
		src := gain
		if kind == ImportanceCover {
			src = cover
		}
		importance = make([]float64, b.NumFeatures)
		for j := range importance {
			if splits[j] > 0 {
				importance[j] = src[j] / splits[j]
			}
		}
	default:
		return nil, errors.NewValidationError("importance_type", "must be one of weight, gain, total_gain, cover", kind)
	}

	if total := floats.Sum(importance); total > 0 {
		floats.Scale(1/total, importance)
	}
	return importance, nil
}
