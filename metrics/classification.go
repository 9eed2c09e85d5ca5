// Package metrics は分類モデルの評価指標を提供する
//
// ラベルはクラスインデックスを格納した *mat.VecDense で受け取る。
package metrics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// 平均化の方法
const (
	AverageMacro    = "macro"    // クラスごとのスコアの単純平均
	AverageMicro    = "micro"    // 全体のTP/FP/FNから計算
	AverageWeighted = "weighted" // サポート数による加重平均
)

// FromLabels はクラスインデックスのスライスをベクトルに変換する
func FromLabels(labels []int) *mat.VecDense {
	if len(labels) == 0 {
		return nil
	}
	data := make([]float64, len(labels))
	for i, l := range labels {
		data[i] = float64(l)
	}
	return mat.NewVecDense(len(data), data)
}

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率 (1 - Accuracy) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// unionLabels はyTrueとyPredに現れるラベルを昇順で返す
func unionLabels(yTrue, yPred *mat.VecDense) []int {
	seen := make(map[int]struct{})
	for _, v := range []*mat.VecDense{yTrue, yPred} {
		for i := 0; i < v.Len(); i++ {
			seen[int(v.AtVec(i))] = struct{}{}
		}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// ConfusionMatrix は混同行列を返す。行が正解、列が予測で、
// 順序は返り値のlabels（両ベクトルに現れるラベルの昇順）に従う
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, []int, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}
	labels := unionLabels(yTrue, yPred)
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		r := pos[int(yTrue.AtVec(i))]
		c := pos[int(yPred.AtVec(i))]
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, labels, nil
}

// ClassReport はクラスごとの適合率・再現率・F1・サポート
type ClassReport struct {
	Labels    []int
	Precision *mat.VecDense
	Recall    *mat.VecDense
	F1        *mat.VecDense
	Support   *mat.VecDense
}

// PrecisionRecallFScore はクラスごとの評価指標を計算する
//
// 予測が1件もないクラスの適合率、正解が1件もないクラスの再現率は定義できないため
// 0とし、UndefinedMetricWarningを発生させる。
func PrecisionRecallFScore(yTrue, yPred *mat.VecDense) (*ClassReport, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	k := len(labels)
	report := &ClassReport{
		Labels:    labels,
		Precision: mat.NewVecDense(k, nil),
		Recall:    mat.NewVecDense(k, nil),
		F1:        mat.NewVecDense(k, nil),
		Support:   mat.NewVecDense(k, nil),
	}

	var noPred, noTrue []int
	for i := 0; i < k; i++ {
		tp := cm.At(i, i)
		predicted := floats.Sum(mat.Col(nil, i, cm))
		actual := floats.Sum(mat.Row(nil, i, cm))

		if predicted > 0 {
			report.Precision.SetVec(i, tp/predicted)
		} else {
			noPred = append(noPred, labels[i])
		}
		if actual > 0 {
			report.Recall.SetVec(i, tp/actual)
		} else {
			noTrue = append(noTrue, labels[i])
		}
		report.Support.SetVec(i, actual)

		// 2TP / (2TP + FP + FN)。ラベルは和集合なので分母は常に正
		fp := predicted - tp
		fn := actual - tp
		report.F1.SetVec(i, 2*tp/(2*tp+fp+fn))
	}

	if len(noPred) > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Precision and F-score",
			fmt.Sprintf("no predicted samples in labels %v", noPred), 0))
	}
	if len(noTrue) > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Recall and F-score",
			fmt.Sprintf("no true samples in labels %v", noTrue), 0))
	}
	return report, nil
}

// F1Score は平均化されたF1スコアを計算する
//
// averageは "macro", "micro", "weighted" のいずれか。macroは両ベクトルに
// 現れる全ラベルの単純平均で、予測されなかったクラスも0として平均に含まれる。
func F1Score(yTrue, yPred *mat.VecDense, average string) (float64, error) {
	switch average {
	case AverageMacro, AverageMicro, AverageWeighted:
	default:
		return 0, errors.NewValidationError("average", "must be one of macro, micro, weighted", average)
	}

	if average == AverageMicro {
		// 単一ラベル分類ではmicro F1は正解率に等しい
		return Accuracy(yTrue, yPred)
	}

	report, err := PrecisionRecallFScore(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	f1 := report.F1.RawVector().Data
	if average == AverageMacro {
		return floats.Sum(f1) / float64(len(f1)), nil
	}

	support := report.Support.RawVector().Data
	return floats.Dot(f1, support) / floats.Sum(support), nil
}
