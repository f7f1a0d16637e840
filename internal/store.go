package internal

import (
	"github.com/starford/vcq/internal/cache"
	"github.com/starford/vcq/internal/index"
)

// OpenStore builds the snapshot store selected by c.
func OpenStore(c CacheConfig) (cache.Store, error) {
	dir := c.Dir
	if dir == "" {
		var err error
		if dir, err = cache.DefaultDir(); err != nil {
			return nil, err
		}
	}
	if c.Backend == BackendSQLite {
		s, err := index.NewStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := cache.OpenJSONStore(dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}
