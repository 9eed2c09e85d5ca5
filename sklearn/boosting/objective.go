package boosting

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// hessian下限。確率が0か1に張り付いたときのゼロ除算を防ぐ
const minHessian = 1e-16

// softmaxObjective は多クラス交差エントロピー損失
//
// 予測値(margin)は行優先で n×k に並ぶ。
type softmaxObjective struct {
	numClass int
}

// softmax はmarginを確率に変換してdstに書き込む
func softmax(dst, margins []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(margins))
	}
	lse := floats.LogSumExp(margins)
	for i, m := range margins {
		dst[i] = math.Exp(m - lse)
	}
	return dst
}

// gradients は各クラスの勾配とhessianを計算する
//
// grad[c][i] = p_ic - 1{y_i = c}, hess[c][i] = max(2 p_ic (1 - p_ic), minHessian)
func (o softmaxObjective) gradients(labels []int, margins []float64, grad, hess [][]float64) {
	k := o.numClass
	prob := make([]float64, k)
	for i, y := range labels {
		softmax(prob, margins[i*k:(i+1)*k])
		for c := 0; c < k; c++ {
			p := prob[c]
			g := p
			if c == y {
				g = p - 1
			}
			h := 2 * p * (1 - p)
			if h < minHessian {
				h = minHessian
			}
			grad[c][i] = g
			hess[c][i] = h
		}
	}
}

// loss は平均多クラス対数損失(mlogloss)
func (o softmaxObjective) loss(labels []int, margins []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	k := o.numClass
	total := 0.0
	for i, y := range labels {
		row := margins[i*k : (i+1)*k]
		total += floats.LogSumExp(row) - row[y]
	}
	return total / float64(len(labels))
}

// errorRate は誤分類率(merror)
func (o softmaxObjective) errorRate(labels []int, margins []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	k := o.numClass
	wrong := 0
	for i, y := range labels {
		if floats.MaxIdx(margins[i*k:(i+1)*k]) != y {
			wrong++
		}
	}
	return float64(wrong) / float64(len(labels))
}
