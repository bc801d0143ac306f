package unirio

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/anand-gl/jsoncanonicalizer"
	"github.com/cespare/xxhash"
)

// Cache memoizes read results. Fetch returns the cached value for key or calls
// produce and stores its value for ttl. Errors from produce must be returned
// without being stored. Concurrent misses on one key may each call produce.
type Cache interface {
	Fetch(key string, produce func() (any, error), ttl time.Duration) (any, error)
}

// CacheKey derives the cache key of a read from its path and the encoded
// query. The API key and format marker are excluded so rotating keys does not
// split the cache.
func CacheKey(path string, query url.Values) (string, error) {
	flat := make(map[string]string, len(query))
	for k, values := range query {
		if k == ParamAPIKey || k == ParamFormat || len(values) == 0 {
			continue
		}
		flat[k] = values[0]
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("unirio: encode cache key: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("unirio: canonicalize cache key: %w", err)
	}
	return path + ":" + strconv.FormatUint(xxhash.Sum64(canonical), 16), nil
}
