// Package model_selection provides train/test partitioning.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// DefaultTestSize is the fraction of samples held out when WithTestSize is
// not given.
const DefaultTestSize = 0.25

// Split holds the row indices of each partition. Both slices are sorted.
type Split struct {
	TrainIndices []int
	TestIndices  []int
}

type splitConfig struct {
	testSize float64
	seed     uint64
	stratify []int
}

// Option configures TrainTestSplit.
type Option func(*splitConfig)

// WithTestSize sets the held-out fraction, in (0, 1).
func WithTestSize(fraction float64) Option {
	return func(c *splitConfig) { c.testSize = fraction }
}

// WithRandomState seeds the shuffle. The same seed always yields the same
// split for the same input.
func WithRandomState(seed uint64) Option {
	return func(c *splitConfig) { c.seed = seed }
}

// Stratified keeps the class proportions of labels in both partitions.
func Stratified(labels []int) Option {
	return func(c *splitConfig) { c.stratify = labels }
}

// TrainTestSplit partitions nSamples row indices into a training and a
// test set. The test set has ceil(testSize*nSamples) rows.
//
// With Stratified, each class contributes to the test set in proportion
// to its size; rounding leftovers go to the classes with the largest
// fractional share.
func TrainTestSplit(nSamples int, opts ...Option) (Split, error) {
	cfg := splitConfig{testSize: DefaultTestSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.testSize <= 0 || cfg.testSize >= 1 {
		return Split{}, errors.NewValidationError("test_size", "must be in (0, 1)", cfg.testSize)
	}
	nTest := int(math.Ceil(cfg.testSize * float64(nSamples)))
	nTrain := nSamples - nTest
	if nTest == 0 || nTrain == 0 {
		return Split{}, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%v the resulting train set would be empty", nSamples, cfg.testSize))
	}

	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed))

	var split Split
	if cfg.stratify == nil {
		split = shuffleSplit(nSamples, nTest, rng)
	} else {
		if len(cfg.stratify) != nSamples {
			return Split{}, errors.NewDimensionError("TrainTestSplit", nSamples, len(cfg.stratify), 0)
		}
		var err error
		split, err = stratifiedSplit(cfg.stratify, nTest, nTrain, rng)
		if err != nil {
			return Split{}, err
		}
	}

	sort.Ints(split.TrainIndices)
	sort.Ints(split.TestIndices)
	return split, nil
}

func shuffleSplit(n, nTest int, rng *rand.Rand) Split {
	perm := rng.Perm(n)
	return Split{
		TestIndices:  append([]int(nil), perm[:nTest]...),
		TrainIndices: append([]int(nil), perm[nTest:]...),
	}
}

func stratifiedSplit(labels []int, nTest, nTrain int, rng *rand.Rand) (Split, error) {
	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	classes := make([]int, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		if len(groups[c]) < 2 {
			return Split{}, errors.NewValueError("TrainTestSplit",
				fmt.Sprintf("the least populated class %d has only 1 member, which is too few", c))
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return Split{}, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("test size %d and train size %d must each be at least the number of classes %d", nTest, nTrain, len(classes)))
	}

	alloc := allocate(classes, groups, len(labels), nTest)

	var split Split
	for i, c := range classes {
		idx := append([]int(nil), groups[c]...)
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		split.TestIndices = append(split.TestIndices, idx[:alloc[i]]...)
		split.TrainIndices = append(split.TrainIndices, idx[alloc[i]:]...)
	}
	return split, nil
}

// allocate distributes nTest over the classes proportionally to their
// size using the largest-remainder method.
func allocate(classes []int, groups map[int][]int, n, nTest int) []int {
	alloc := make([]int, len(classes))
	type share struct {
		pos  int
		frac float64
	}
	shares := make([]share, len(classes))
	assigned := 0
	for i, c := range classes {
		exact := float64(nTest) * float64(len(groups[c])) / float64(n)
		alloc[i] = int(math.Floor(exact))
		assigned += alloc[i]
		shares[i] = share{pos: i, frac: exact - float64(alloc[i])}
	}

	sort.SliceStable(shares, func(a, b int) bool { return shares[a].frac > shares[b].frac })
	for k := 0; assigned < nTest; k++ {
		pos := shares[k%len(shares)].pos
		if alloc[pos] < len(groups[classes[pos]])-1 {
			alloc[pos]++
			assigned++
		}
	}
	return alloc
}

// TakeRows returns the rows of X at indices, in order.
func TakeRows(X mat.Matrix, indices []int) *mat.Dense {
	_, cols := X.Dims()
	out := mat.NewDense(len(indices), cols, nil)
	row := make([]float64, cols)
	for i, idx := range indices {
		mat.Row(row, idx, X)
		out.SetRow(i, row)
	}
	return out
}

// TakeInts returns y at indices, in order.
func TakeInts(y []int, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = y[idx]
	}
	return out
}
