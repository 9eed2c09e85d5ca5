package model

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/penguinml/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()

	err := s.RequireFitted("Booster", "Predict")
	var notFitted *errors.NotFittedError
	require.True(t, errors.As(err, &notFitted))
	assert.Equal(t, "Booster", notFitted.ModelName)

	s.SetDimensions(9, 266)
	s.SetFitted()
	assert.NoError(t, s.RequireFitted("Booster", "Predict"))

	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 9, nFeatures)
	assert.Equal(t, 266, nSamples)

	s.Reset()
	assert.False(t, s.IsFitted())
}

func TestStateManagerConcurrentReads(t *testing.T) {
	s := NewStateManager()
	s.SetFitted()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, s.IsFitted())
		}()
	}
	wg.Wait()
}

type persisted struct {
	Classes []string
	RunID   string
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "labels.gob")
	in := persisted{Classes: []string{"Adelie", "Chinstrap", "Gentoo"}, RunID: "r1"}

	require.NoError(t, SaveModel(&in, path))

	var out persisted
	require.NoError(t, LoadModel(&out, path))
	assert.Equal(t, in, out)
}

func TestLoadModelMissingFile(t *testing.T) {
	var out persisted
	err := LoadModel(&out, filepath.Join(t.TempDir(), "absent.gob"))
	assert.Error(t, err)
}

func TestLoadModelFromReaderCorrupt(t *testing.T) {
	var out persisted
	err := LoadModelFromReader(&out, bytes.NewBufferString("not gob"))
	assert.Error(t, err)
}
