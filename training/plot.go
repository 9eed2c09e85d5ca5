package training

import (
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

// SaveImportancePlot writes a bar chart of importance, one bar per feature
// name, to path. The image format follows the file extension.
func SaveImportancePlot(path string, names []string, importance []float64, title string) error {
	if len(names) != len(importance) {
		return errors.NewDimensionError("SaveImportancePlot", len(names), len(importance), 0)
	}
	if len(names) == 0 {
		return errors.NewModelError("SaveImportancePlot", "empty data", errors.ErrEmptyData)
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "importance"

	bars, err := plotter.NewBarChart(plotter.Values(importance), vg.Points(18))
	if err != nil {
		return errors.Wrap(err, "failed to build bar chart")
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = 0.8
	p.X.Tick.Label.XAlign = -1

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %s", path)
	}
	return nil
}
