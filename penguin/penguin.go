// Package penguin defines the raw measurement record shared by the training
// pipeline and the prediction endpoint.
//
// Sex and Island are closed sets. Values are only obtained through
// ParseSex and ParseIsland (or the exported constants), so anything that
// reaches the feature encoder is already known to be a valid category.
package penguin

import (
	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// Sex is the recorded sex of a penguin.
type Sex string

const (
	Female Sex = "Female"
	Male   Sex = "Male"
)

// Sexes lists every Sex in one-hot column order.
var Sexes = [...]Sex{Female, Male}

// Valid reports whether s is one of the enumerated values.
func (s Sex) Valid() bool {
	for _, v := range Sexes {
		if s == v {
			return true
		}
	}
	return false
}

// ParseSex converts a raw string into a Sex.
func ParseSex(raw string) (Sex, error) {
	s := Sex(raw)
	if !s.Valid() {
		return "", errors.NewValidationError("sex", "value is not a valid enumeration member; permitted: 'Male', 'Female'", raw)
	}
	return s, nil
}

// Island is the island a penguin was observed on.
type Island string

const (
	Biscoe    Island = "Biscoe"
	Dream     Island = "Dream"
	Torgersen Island = "Torgersen"
)

// Islands lists every Island in one-hot column order.
var Islands = [...]Island{Biscoe, Dream, Torgersen}

// Valid reports whether i is one of the enumerated values.
func (i Island) Valid() bool {
	for _, v := range Islands {
		if i == v {
			return true
		}
	}
	return false
}

// ParseIsland converts a raw string into an Island.
func ParseIsland(raw string) (Island, error) {
	i := Island(raw)
	if !i.Valid() {
		return "", errors.NewValidationError("island", "value is not a valid enumeration member; permitted: 'Biscoe', 'Dream', 'Torgersen'", raw)
	}
	return i, nil
}

// Record is one observation's predictive attributes. Year is carried
// because both the dataset and the request contain it; it is never a
// feature.
type Record struct {
	BillLengthMM    float64
	BillDepthMM     float64
	FlipperLengthMM float64
	BodyMassG       float64
	Year            int
	Sex             Sex
	Island          Island
}

// Observation is a labeled Record as found in the training dataset.
type Observation struct {
	Record
	Species string
}

// Records returns the feature part of each observation.
func Records(obs []Observation) []Record {
	out := make([]Record, len(obs))
	for i, o := range obs {
		out[i] = o.Record
	}
	return out
}

// Labels returns the species of each observation.
func Labels(obs []Observation) []string {
	out := make([]string, len(obs))
	for i, o := range obs {
		out[i] = o.Species
	}
	return out
}
