package serving

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/YuminosukeSato/penguinml/penguin"
)

// predictionCache memoises species by record. Year never reaches the
// classifier, so it is not part of the key.
type predictionCache struct {
	entries *lru.Cache[penguin.Record, string]
}

func newPredictionCache(size int) (*predictionCache, error) {
	c, err := lru.New[penguin.Record, string](size)
	if err != nil {
		return nil, err
	}
	return &predictionCache{entries: c}, nil
}

func cacheKey(r penguin.Record) penguin.Record {
	r.Year = 0
	return r
}

func (c *predictionCache) get(r penguin.Record) (string, bool) {
	return c.entries.Get(cacheKey(r))
}

func (c *predictionCache) add(r penguin.Record, species string) {
	c.entries.Add(cacheKey(r), species)
}
