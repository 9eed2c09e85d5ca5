package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "penguinml: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "penguinml: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Booster.Predict", 9, 7, 1)

	want := "penguinml: Booster.Predict: dimension mismatch on axis 1 (features). Expected 9, got 7"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Error("Error should be castable to *DimensionError")
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("LabelEncoder", "InverseTransform")

	want := "penguinml: LabelEncoder: this model is not fitted yet. Call Fit() before using InverseTransform()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewMissingArtifactError(t *testing.T) {
	err := NewMissingArtifactError("classifier", "app/data/xgb_penguin_model.json")

	if !strings.Contains(err.Error(), "app/data/xgb_penguin_model.json") {
		t.Errorf("Error() should name the missing file: %s", err.Error())
	}

	var missing *MissingArtifactError
	if !As(err, &missing) {
		t.Fatal("Error should be castable to *MissingArtifactError")
	}
	if missing.Kind != "classifier" {
		t.Errorf("Kind = %q, want classifier", missing.Kind)
	}
}

func TestNewSchemaMismatchError(t *testing.T) {
	err := NewSchemaMismatchError("inference", []string{"a", "b"}, []string{"b", "a"})

	want := "penguinml: feature schema mismatch in inference phase. Expected columns [a, b], got [b, a]"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var schemaErr *SchemaMismatchError
	if !As(err, &schemaErr) {
		t.Error("Error should be castable to *SchemaMismatchError")
	}
}

func TestNewPredictionError(t *testing.T) {
	cause := NewValueError("Encode", "bad row")
	err := NewPredictionError("bad row", cause)

	if err.Error() != "Prediction failed: bad row" {
		t.Errorf("Error() = %q", err.Error())
	}

	var valErr *ValueError
	if !As(err, &valErr) {
		t.Error("PredictionError should unwrap to its cause")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("sex", "must be one of [Male Female]", "Other")

	want := "penguinml: validation failed for parameter 'sex': must be one of [Male Female] (got: Other)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWarn(t *testing.T) {
	var got []error
	SetZerologWarnFunc(nil)
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(error) {})

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "'precision' is ill-defined") {
		t.Errorf("unexpected warning: %v", got[0])
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: %d rows left", "dropna", 0)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in dropna: 0 rows left") {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("gradient", []float64{0.1, -0.2}, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := CheckNumericalStability("gradient", []float64{0.1, math.NaN()}, 3)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if numErr.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", numErr.Iteration)
	}
}
