// Package penguinml trains a species classifier on the Palmer penguins
// table and serves its predictions over HTTP.
//
// The one contract shared by training and serving is the feature schema:
// four measurements followed by the one-hot columns of sex and island,
// always in the order declared by preprocessing.Schema. Categories absent
// from a batch are zero-filled, so a single request encodes to the same
// nine columns the classifier was trained on.
//
// # Commands
//
// Train the model and write the artifacts to app/data:
//
//	go run ./cmd/train -data penguins.csv
//
// When -data is omitted the seaborn copy of the table is downloaded and
// cached. Then serve it:
//
//	go run ./cmd/serve -addr :8000
//
//	curl -X POST localhost:8000/predict -d '{
//	    "bill_length_mm": 39.1, "bill_depth_mm": 18.7,
//	    "flipper_length_mm": 181, "body_mass_g": 3750,
//	    "year": 2007, "sex": "Male", "island": "Torgersen"}'
//
// # Packages
//
//   - penguin: the raw record and its closed category sets
//   - dataset: CSV loading and cleaning
//   - preprocessing: the feature encoder and the label encoder
//   - sklearn/boosting: multi-class gradient boosted trees
//   - sklearn/model_selection: stratified train/test split
//   - metrics: accuracy, F1 and the confusion matrix
//   - training: the end-to-end training pipeline
//   - serving: artifact loading and the HTTP endpoint
//   - config: defaults, .env, environment and flags
//   - pkg/errors, pkg/log: error types and structured logging
package penguinml
