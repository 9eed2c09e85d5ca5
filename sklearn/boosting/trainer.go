package boosting

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/core/parallel"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
)

// 分割を採用する最小ゲイン
const minSplitLoss = 1e-6

// trainer はFit1回分の学習状態
type trainer struct {
	params Params
	obj    softmaxObjective

	X      *mat.Dense
	labels []int
	rows   int
	cols   int

	// margins は行優先 rows×numClass の現在の予測値
	margins []float64
	grad    [][]float64 // [class][row]
	hess    [][]float64

	rng *rand.Rand
}

// SplitInfo describes the best split found for a node.
type SplitInfo struct {
	Feature   int
	Threshold float64
	Gain      float64
	LeftGrad  float64
	LeftHess  float64
	RightGrad float64
	RightHess float64
}

// Fit trains the ensemble. y holds one class index in [0, NumClass) per
// row, as an n×1 matrix.
func (b *Booster) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "Booster.Fit")

	if err := b.Params.Validate(); err != nil {
		return err
	}

	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.NewModelError("Booster.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != rows {
		return errors.NewDimensionError("Booster.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Booster.Fit", 1, yCols, 1)
	}
	if b.featureNames != nil && len(b.featureNames) != cols {
		return errors.NewDimensionError("Booster.Fit", len(b.featureNames), cols, 1)
	}

	labels := make([]int, rows)
	for i := range labels {
		v := y.At(i, 0)
		c := int(v)
		if float64(c) != v || c < 0 || c >= b.Params.NumClass {
			return errors.NewValidationError("y", "class index out of range", map[string]interface{}{"row": i, "value": v})
		}
		labels[i] = c
	}

	t := newTrainer(b.Params, mat.DenseCopyOf(X), labels)
	logger := log.GetLoggerWithName("boosting.trainer")
	if b.Params.Verbosity > 0 {
		logger.Info("Training started",
			log.OperationKey, log.OperationFit,
			log.SamplesKey, rows,
			log.FeaturesKey, cols,
			log.ClassesKey, b.Params.NumClass,
			log.RandomSeedKey, b.Params.Seed,
		)
	}

	b.Trees = b.Trees[:0]
	b.NumFeatures = cols
	b.state.Reset()
	b.state.SetDimensions(cols, rows)
	if b.callbacks != nil {
		b.callbacks.reset()
	}

	for round := 0; round < b.Params.NumRounds; round++ {
		trees := t.boostRound(round)
		b.Trees = append(b.Trees, trees...)

		evalResults := map[string]float64{
			"train-mlogloss": t.obj.loss(t.labels, t.margins),
			"train-merror":   t.obj.errorRate(t.labels, t.margins),
		}
		if err := errors.CheckNumericalStability("Booster.Fit", []float64{evalResults["train-mlogloss"]}, round); err != nil {
			return err
		}

		if b.callbacks != nil {
			if err := b.callbacks.AfterIteration(round, b, evalResults); err != nil {
				return errors.Wrapf(err, "callback error at round %d", round)
			}
			if b.callbacks.ShouldStop() {
				if b.Params.Verbosity > 0 {
					logger.Info("Training stopped by callback", log.IterationKey, round)
				}
				break
			}
		}

		if b.Params.Verbosity > 0 && round%10 == 0 {
			logger.Debug("Training progress",
				log.IterationKey, round,
				log.LossKey, evalResults["train-mlogloss"],
			)
		}
	}

	b.state.SetFitted()
	return nil
}

func newTrainer(params Params, X *mat.Dense, labels []int) *trainer {
	rows, cols := X.Dims()
	k := params.NumClass

	t := &trainer{
		params:  params,
		obj:     softmaxObjective{numClass: k},
		X:       X,
		labels:  labels,
		rows:    rows,
		cols:    cols,
		margins: make([]float64, rows*k),
		grad:    make([][]float64, k),
		hess:    make([][]float64, k),
		rng:     rand.New(rand.NewPCG(params.Seed, params.Seed)),
	}
	for i := range t.margins {
		t.margins[i] = params.BaseScore
	}
	for c := 0; c < k; c++ {
		t.grad[c] = make([]float64, rows)
		t.hess[c] = make([]float64, rows)
	}
	return t
}

// boostRound fits one tree per class to the current gradients and adds
// their output to the margins.
func (t *trainer) boostRound(round int) []Tree {
	k := t.params.NumClass
	t.obj.gradients(t.labels, t.margins, t.grad, t.hess)
	indices := t.sampleRows()

	// クラスごとの木は互いに独立。各goroutineは自分のスロットにだけ書く
	trees := make([]Tree, k)
	parallel.Parallelize(k, func(start, end int) {
		for c := start; c < end; c++ {
			trees[c] = t.buildTree(round*k+c, c, indices)
		}
	})

	row := make([]float64, t.cols)
	for i := 0; i < t.rows; i++ {
		mat.Row(row, i, t.X)
		for c := range trees {
			t.margins[i*k+c] += trees[c].Predict(row)
		}
	}
	return trees
}

// sampleRows returns the row indices used for this round's trees.
func (t *trainer) sampleRows() []int {
	indices := make([]int, 0, t.rows)
	for i := 0; i < t.rows; i++ {
		if t.params.Subsample >= 1 || t.rng.Float64() < t.params.Subsample {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		indices = append(indices, t.rng.IntN(t.rows))
	}
	return indices
}

func (t *trainer) buildTree(treeIndex, class int, indices []int) Tree {
	tree := Tree{
		TreeIndex:     treeIndex,
		Class:         class,
		ShrinkageRate: t.params.Eta,
	}
	t.buildNode(&tree, class, indices, 0)
	return tree
}

// buildNode appends the subtree for indices in pre-order and returns its
// root's node ID.
func (t *trainer) buildNode(tree *Tree, class int, indices []int, depth int) int {
	grad, hess := t.grad[class], t.hess[class]
	sumGrad, sumHess := 0.0, 0.0
	for _, idx := range indices {
		sumGrad += grad[idx]
		sumHess += hess[idx]
	}

	nodeID := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{
		NodeID:     nodeID,
		LeftChild:  -1,
		RightChild: -1,
		Cover:      sumHess,
		LeafValue:  t.leafValue(sumGrad, sumHess),
	})
	if depth > tree.MaxDepth {
		tree.MaxDepth = depth
	}

	if depth >= t.params.MaxDepth || sumHess < 2*t.params.MinChildWeight {
		return nodeID
	}

	split := t.findBestSplit(class, indices, sumGrad, sumHess)
	if split.Gain <= minSplitLoss {
		return nodeID
	}

	left, right := t.splitData(indices, split)
	tree.Nodes[nodeID].SplitFeature = split.Feature
	tree.Nodes[nodeID].Threshold = split.Threshold
	tree.Nodes[nodeID].Gain = split.Gain
	tree.Nodes[nodeID].DefaultLeft = true
	tree.Nodes[nodeID].LeafValue = 0

	leftID := t.buildNode(tree, class, left, depth+1)
	rightID := t.buildNode(tree, class, right, depth+1)
	tree.Nodes[nodeID].LeftChild = leftID
	tree.Nodes[nodeID].RightChild = rightID
	return nodeID
}

// findBestSplit runs the exact greedy search over every feature.
func (t *trainer) findBestSplit(class int, indices []int, sumGrad, sumHess float64) SplitInfo {
	best := SplitInfo{Feature: -1, Gain: -math.MaxFloat64}
	for j := 0; j < t.cols; j++ {
		split := t.findBestSplitForFeature(class, indices, j, sumGrad, sumHess)
		if split.Gain > best.Gain {
			best = split
		}
	}
	return best
}

func (t *trainer) findBestSplitForFeature(class int, indices []int, feature int, sumGrad, sumHess float64) SplitInfo {
	grad, hess := t.grad[class], t.hess[class]

	sorted := make([]int, len(indices))
	copy(sorted, indices)
	sort.SliceStable(sorted, func(a, b int) bool {
		return t.X.At(sorted[a], feature) < t.X.At(sorted[b], feature)
	})

	best := SplitInfo{Feature: feature, Gain: -math.MaxFloat64}
	leftGrad, leftHess := 0.0, 0.0
	for i := 0; i < len(sorted)-1; i++ {
		idx := sorted[i]
		leftGrad += grad[idx]
		leftHess += hess[idx]

		value := t.X.At(idx, feature)
		next := t.X.At(sorted[i+1], feature)
		if value == next {
			continue
		}

		rightGrad := sumGrad - leftGrad
		rightHess := sumHess - leftHess
		if leftHess < t.params.MinChildWeight || rightHess < t.params.MinChildWeight {
			continue
		}

		gain := t.splitGain(leftGrad, leftHess, rightGrad, rightHess, sumGrad, sumHess)
		if gain > best.Gain {
			best = SplitInfo{
				Feature:   feature,
				Threshold: (value + next) / 2,
				Gain:      gain,
				LeftGrad:  leftGrad,
				LeftHess:  leftHess,
				RightGrad: rightGrad,
				RightHess: rightHess,
			}
		}
	}
	return best
}

// splitGain = 0.5 * (GL²/(HL+λ) + GR²/(HR+λ) - G²/(H+λ)) - γ
func (t *trainer) splitGain(leftGrad, leftHess, rightGrad, rightHess, totalGrad, totalHess float64) float64 {
	lambda := t.params.Lambda
	leftScore := leftGrad * leftGrad / (leftHess + lambda)
	rightScore := rightGrad * rightGrad / (rightHess + lambda)
	totalScore := totalGrad * totalGrad / (totalHess + lambda)
	return 0.5*(leftScore+rightScore-totalScore) - t.params.Gamma
}

func (t *trainer) splitData(indices []int, split SplitInfo) ([]int, []int) {
	var left, right []int
	for _, idx := range indices {
		if t.X.At(idx, split.Feature) <= split.Threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

// leafValue = -G/(H+λ)
func (t *trainer) leafValue(sumGrad, sumHess float64) float64 {
	return errors.SafeDivide(-sumGrad, sumHess+t.params.Lambda)
}
