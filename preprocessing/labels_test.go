package preprocessing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

var species = []string{"Gentoo", "Adelie", "Chinstrap", "Adelie", "Gentoo"}

func TestLabelEncoderFitTransform(t *testing.T) {
	le := NewLabelEncoder()
	got, err := le.FitTransform(species)
	require.NoError(t, err)

	assert.Equal(t, []string{"Adelie", "Chinstrap", "Gentoo"}, le.Classes())
	assert.Equal(t, 3, le.NumClasses())
	assert.Equal(t, []int{2, 0, 1, 0, 2}, got)
}

func TestLabelEncoderRoundTrip(t *testing.T) {
	le := NewLabelEncoder()
	idx, err := le.FitTransform(species)
	require.NoError(t, err)

	back, err := le.InverseTransform(idx)
	require.NoError(t, err)
	assert.Equal(t, species, back)
}

func TestLabelEncoderErrors(t *testing.T) {
	t.Run("not fitted", func(t *testing.T) {
		_, err := NewLabelEncoder().Transform([]string{"Adelie"})
		var nf *errors.NotFittedError
		assert.True(t, errors.As(err, &nf))

		_, err = NewLabelEncoder().InverseTransform([]int{0})
		assert.True(t, errors.As(err, &nf))
	})

	t.Run("empty fit", func(t *testing.T) {
		err := NewLabelEncoder().Fit(nil)
		assert.True(t, errors.Is(err, errors.ErrEmptyData))
	})

	le := NewLabelEncoder()
	require.NoError(t, le.Fit(species))

	t.Run("unknown label", func(t *testing.T) {
		_, err := le.Transform([]string{"Emperor"})
		assert.True(t, errors.Is(err, errors.ErrUnknownLabel))
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := le.InverseTransform([]int{3})
		assert.True(t, errors.Is(err, errors.ErrUnknownLabel))
		_, err = le.InverseTransform([]int{-1})
		assert.True(t, errors.Is(err, errors.ErrUnknownLabel))
	})
}

func TestLabelEncoderSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "label_encoder.gob")

	le := NewLabelEncoder()
	require.NoError(t, le.Fit(species))
	le.SetRunID("run-1")
	require.NoError(t, le.Save(path))

	loaded, err := LoadLabelEncoder(path)
	require.NoError(t, err)
	assert.Equal(t, le.Classes(), loaded.Classes())
	assert.Equal(t, "run-1", loaded.RunID())

	idx, err := loaded.Transform([]string{"Chinstrap"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, idx)
}

func TestLoadLabelEncoderMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label_encoder.gob")
	_, err := LoadLabelEncoder(path)

	var missing *errors.MissingArtifactError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, path, missing.Path)
	assert.Contains(t, err.Error(), path)
}

func TestLoadLabelEncoderCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "label_encoder.gob")
	require.NoError(t, os.WriteFile(path, []byte("not gob"), 0o644))
	_, err := LoadLabelEncoder(path)
	assert.Error(t, err)
}

func TestLabelEncoderSaveUnfitted(t *testing.T) {
	err := NewLabelEncoder().Save(filepath.Join(t.TempDir(), "le.gob"))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}
