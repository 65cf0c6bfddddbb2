package erddap

import (
	"slices"

	lru "github.com/hashicorp/golang-lru"
)

// variableCache keeps the variable lists of recently used datasets.
type variableCache struct {
	cache *lru.Cache
}

func newVariableCache(size int) (*variableCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &variableCache{cache: c}, nil
}

func (c *variableCache) get(dataset string) ([]string, bool) {
	v, ok := c.cache.Get(dataset)
	if !ok {
		return nil, false
	}
	vars, ok := v.([]string)
	return slices.Clone(vars), ok
}

// put stores a copy so callers cannot mutate cached entries.
func (c *variableCache) put(dataset string, vars []string) {
	c.cache.Add(dataset, slices.Clone(vars))
}
