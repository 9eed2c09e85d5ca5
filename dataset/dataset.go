// Package dataset loads the penguins table from a local CSV file or from
// the seaborn-data repository.
//
// Rows with a missing value in any column are dropped, as are rows whose
// sex or island is not one of the known categories. No imputation is
// performed.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/penguinml/penguin"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
)

// Column names of the penguins CSV.
const (
	ColSpecies         = "species"
	ColIsland          = "island"
	ColBillLengthMM    = "bill_length_mm"
	ColBillDepthMM     = "bill_depth_mm"
	ColFlipperLengthMM = "flipper_length_mm"
	ColBodyMassG       = "body_mass_g"
	ColSex             = "sex"
	ColYear            = "year"
)

var requiredColumns = []string{
	ColSpecies, ColIsland, ColBillLengthMM, ColBillDepthMM,
	ColFlipperLengthMM, ColBodyMassG, ColSex,
}

// Dataset is the cleaned table.
type Dataset struct {
	Observations []penguin.Observation

	// HasYear reports whether the source carried a year column.
	HasYear bool

	// Row counts before and after cleaning.
	TotalRows      int
	DroppedMissing int
	DroppedInvalid int
}

// Len returns the number of kept observations.
func (d *Dataset) Len() int {
	return len(d.Observations)
}

// Read parses a penguins CSV from r. The header row selects the columns;
// their order does not matter and year is optional.
func Read(r io.Reader) (*Dataset, error) {
	logger := log.GetLoggerWithName("dataset")

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewModelError("dataset.Read", "missing header row", errors.ErrEmptyData)
		}
		return nil, errors.Wrap(err, "failed to read CSV header")
	}
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := pos[name]; !ok {
			return nil, errors.NewValidationError("columns", "required column is missing", name)
		}
	}
	yearPos, hasYear := pos[ColYear]

	ds := &Dataset{HasYear: hasYear}
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read CSV line %d", line)
		}
		ds.TotalRows++

		field := func(name string) string {
			return strings.TrimSpace(rec[pos[name]])
		}

		// 欠損値を含む行は補完せずに捨てる
		missing := false
		for _, name := range requiredColumns {
			if isMissing(field(name)) {
				missing = true
				break
			}
		}
		if hasYear && isMissing(strings.TrimSpace(rec[yearPos])) {
			missing = true
		}
		if missing {
			ds.DroppedMissing++
			continue
		}

		obs, err := parseRow(field, hasYear, rec, yearPos)
		if err != nil {
			ds.DroppedInvalid++
			logger.Warn("Dropping invalid row", err, "line", line)
			continue
		}
		ds.Observations = append(ds.Observations, obs)
	}

	if len(ds.Observations) == 0 {
		return nil, errors.NewModelError("dataset.Read", "no complete rows remain after dropping missing values", errors.ErrEmptyData)
	}
	return ds, nil
}

func parseRow(field func(string) string, hasYear bool, rec []string, yearPos int) (penguin.Observation, error) {
	var obs penguin.Observation
	obs.Species = field(ColSpecies)

	var err error
	if obs.Sex, err = penguin.ParseSex(normalizeSex(field(ColSex))); err != nil {
		return obs, err
	}
	if obs.Island, err = penguin.ParseIsland(field(ColIsland)); err != nil {
		return obs, err
	}

	numeric := []struct {
		name string
		dst  *float64
	}{
		{ColBillLengthMM, &obs.BillLengthMM},
		{ColBillDepthMM, &obs.BillDepthMM},
		{ColFlipperLengthMM, &obs.FlipperLengthMM},
		{ColBodyMassG, &obs.BodyMassG},
	}
	for _, n := range numeric {
		v, err := strconv.ParseFloat(field(n.name), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return obs, errors.NewValidationError(n.name, "not a finite number", field(n.name))
		}
		*n.dst = v
	}

	if hasYear {
		raw := strings.TrimSpace(rec[yearPos])
		year, err := strconv.ParseFloat(raw, 64)
		if err != nil || year != math.Trunc(year) {
			return obs, errors.NewValidationError(ColYear, "not an integer", raw)
		}
		obs.Year = int(year)
	}
	return obs, nil
}

// isMissing は pandas が欠損として読む表記を判定する。大文字小文字は区別しない
func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "-nan", "+nan", "null", "none", ".":
		return true
	}
	return false
}

// normalizeSex は "MALE" や "male" を "Male" に揃える
func normalizeSex(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
