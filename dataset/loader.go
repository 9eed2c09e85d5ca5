package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/YuminosukeSato/penguinml/core/model"
	"github.com/YuminosukeSato/penguinml/pkg/errors"
	"github.com/YuminosukeSato/penguinml/pkg/log"
)

// DefaultURL is the penguins table distributed with seaborn.
const DefaultURL = "https://raw.githubusercontent.com/mwaskom/seaborn-data/master/penguins.csv"

// cacheFileName names the downloaded copy of url inside Source.CacheDir.
// Each URL gets its own file.
func cacheFileName(url string) string {
	return fmt.Sprintf("penguins-%016x.csv", xxhash.Sum64String(url))
}

// Source says where the table comes from. Path wins over URL.
type Source struct {
	// Path is a local CSV file.
	Path string

	// URL is downloaded when Path is empty. The first successful download
	// is kept in CacheDir, under a name derived from the URL, and reused
	// afterwards.
	URL      string
	CacheDir string

	// Client defaults to an http.Client with a 30 second timeout.
	Client *http.Client
}

// Load reads and cleans the table described by src.
func Load(ctx context.Context, src Source) (*Dataset, error) {
	logger := log.GetLoggerWithName("dataset")

	path := src.Path
	if path == "" {
		if src.URL == "" {
			return nil, errors.NewValidationError("source", "either a path or a URL is required", src)
		}
		cached, err := fetch(ctx, src, logger)
		if err != nil {
			return nil, err
		}
		path = cached
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset %s", path)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load dataset %s", path)
	}

	logger.Info("Dataset loaded",
		log.SourceKey, path,
		log.SamplesKey, ds.Len(),
		log.DroppedKey, ds.DroppedMissing+ds.DroppedInvalid,
		"dropped_missing", ds.DroppedMissing,
		"dropped_invalid", ds.DroppedInvalid,
	)
	return ds, nil
}

// fetch returns the path of a local copy of src.URL, downloading it when
// the cache is empty.
func fetch(ctx context.Context, src Source, logger log.Logger) (string, error) {
	dir := src.CacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	dest := filepath.Join(dir, cacheFileName(src.URL))

	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		logger.Debug("Using cached dataset", log.SourceKey, dest)
		return dest, nil
	}

	client := src.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", errors.Wrapf(err, "invalid dataset URL %s", src.URL)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "failed to download dataset from %s", src.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("failed to download dataset from %s: status %d", src.URL, resp.StatusCode)
	}

	err = model.WriteFileAtomic(dest, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to cache dataset in %s", dest)
	}

	logger.Info("Dataset downloaded", log.SourceKey, src.URL, log.ArtifactPathKey, dest)
	return dest, nil
}
