// Package log defines standard attribute keys for training and serving.
//
// The keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") so both binaries produce logs that can be filtered the
// same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model or transformer.
	// Examples: "Booster", "LabelEncoder", "FeatureEncoder"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"

	// RunIDKey identifies one training run; both artifacts of a run carry it.
	RunIDKey = "run.id"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of target classes.
	ClassesKey = "data.classes"

	// DroppedKey counts rows removed during cleaning.
	DroppedKey = "data.dropped"

	// SourceKey names the dataset location (path or URL).
	SourceKey = "data.source"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// F1MacroKey records the macro-averaged F1 score.
	F1MacroKey = "metrics.f1_macro"

	// LossKey records loss value during training or evaluation.
	LossKey = "metrics.loss"

	// IterationKey records the current boosting round.
	IterationKey = "training.iteration"
)

// Prediction and Output Context
const (
	// SpeciesKey records a predicted or observed species label.
	SpeciesKey = "preds.species"

	// ClassIndexKey records the raw class index emitted by the classifier.
	ClassIndexKey = "preds.class_index"

	// RequestIDKey correlates log lines of one HTTP request.
	RequestIDKey = "http.request_id"
)

// Error and Artifact Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// ArtifactPathKey records the path of a persisted artifact.
	ArtifactPathKey = "artifact.path"

	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseTraining  = "training"
	PhaseTesting   = "testing"
	PhaseInference = "inference"
)
