package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/odiumxp/ai-brain/pkg/embedder"
)

// EmbeddingOracle turns text into vectors through an embedder.Provider.
// Repeated texts are served from a ristretto cache.
type EmbeddingOracle struct {
	caller
	provider embedder.Provider
	cache    *ristretto.Cache
	cacheTTL time.Duration
}

// NewEmbeddingOracle creates an embedding oracle. A nil provider yields an
// oracle whose every call fails with ErrUnavailable.
func NewEmbeddingOracle(provider embedder.Provider, cfg Config, opts ...Option) (*EmbeddingOracle, error) {
	o := &EmbeddingOracle{
		caller:   newCaller("embedding", cfg, applyOptions(opts)),
		provider: provider,
		cacheTTL: cfg.CacheTTL,
	}

	if cfg.CacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cfg.CacheSize * 10,
			MaxCost:     cfg.CacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		o.cache = cache
	}
	return o, nil
}

// Embed returns the embedding of text. The result is never Degraded: a
// vector is either usable or the call failed. A nil oracle always fails.
func (o *EmbeddingOracle) Embed(ctx context.Context, text string) Result[[]float64] {
	if o == nil || o.provider == nil {
		return Failure[[]float64](ErrUnavailable)
	}

	if o.cache != nil {
		if v, ok := o.cache.Get(text); ok {
			o.metrics.RecordCacheLookup(true)
			return OK(v.([]float64))
		}
		o.metrics.RecordCacheLookup(false)
	}

	start := time.Now()
	var vec []float64
	err := o.call(ctx, func(ctx context.Context) error {
		var err error
		vec, err = o.provider.Embed(ctx, text)
		return err
	})
	if err == nil && len(vec) == 0 {
		err = errors.New("empty embedding")
	}
	if err != nil {
		o.record("embed", StatusFailure, start, err)
		return Failure[[]float64](err)
	}
	o.record("embed", StatusOK, start, nil)

	if o.cache != nil {
		if o.cacheTTL > 0 {
			o.cache.SetWithTTL(text, vec, 1, o.cacheTTL)
		} else {
			o.cache.Set(text, vec, 1)
		}
		o.cache.Wait()
	}
	return OK(vec)
}

// Dimensions reports the provider's vector size, or 0 without a provider.
func (o *EmbeddingOracle) Dimensions() int {
	if o == nil || o.provider == nil {
		return 0
	}
	return o.provider.Dimensions()
}

// Close releases the cache. The provider is owned by the caller.
func (o *EmbeddingOracle) Close() {
	if o != nil && o.cache != nil {
		o.cache.Close()
	}
}
