// Package preprocessing turns raw penguin records into the fixed feature
// matrix the classifier consumes, and maps species names to class indices.
//
// The same FeatureEncoder is used by the training pipeline and by the
// prediction endpoint. Its output always has the columns of Schema in that
// order, regardless of which categories happen to occur in a batch.
package preprocessing
