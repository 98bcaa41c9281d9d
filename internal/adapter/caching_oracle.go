package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"

	lru "github.com/hashicorp/golang-lru"
)

// CachingOracle remembers the traces of recently executed binaries. A
// removal often restores a mutant seen before, which then skips execution.
// Failed executions are not cached.
type CachingOracle struct {
	Oracle
	cache *lru.Cache
}

// NewCachingOracle wraps inner with a cache of size entries. A size of zero
// or less returns inner unchanged.
func NewCachingOracle(inner Oracle, size int) (Oracle, error) {
	if size <= 0 {
		return inner, nil
	}

	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create trace cache: %w", err)
	}

	return &CachingOracle{Oracle: inner, cache: cache}, nil
}

// Execute implements Oracle.
func (o *CachingOracle) Execute(ctx context.Context, candidate Candidate) ([]string, error) {
	key := cacheKey(candidate)

	if v, ok := o.cache.Get(key); ok {
		slog.Debug("Trace cache hit", "candidate", candidate.Name)

		trace, _ := v.([]string)

		return slices.Clone(trace), nil
	}

	trace, err := o.Oracle.Execute(ctx, candidate)
	if err != nil {
		return trace, err
	}

	o.cache.Add(key, slices.Clone(trace))

	return trace, nil
}

// Len returns the number of cached traces.
func (o *CachingOracle) Len() int {
	return o.cache.Len()
}

func cacheKey(candidate Candidate) string {
	h := sha256.New()
	h.Write([]byte(candidate.Class))
	h.Write([]byte{0})
	h.Write(candidate.Binary)

	return hex.EncodeToString(h.Sum(nil))
}
