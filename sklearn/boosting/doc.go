// Package boosting implements a gradient-boosted decision tree classifier
// for multi-class problems.
//
// Training follows the second-order boosting scheme popularised by
// XGBoost: one regression tree per class and round is fitted to the
// softmax gradient and hessian, splits are chosen by exact greedy search,
// and leaf weights are shrunk by the learning rate. The per-class trees of
// a round are built concurrently; each tree only reads the shared round
// state and writes its own slot, so results are deterministic.
//
// Basic usage:
//
//	params := boosting.DefaultParams()
//	params.NumClass = 3
//	clf := boosting.NewBooster(params)
//	if err := clf.Fit(X, y); err != nil {
//	    return err
//	}
//	pred, _ := clf.Predict(Xtest) // class indices, n×1
//
// Models are persisted as JSON with Save and restored with LoadBooster.
package boosting
