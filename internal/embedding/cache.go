package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the cache capacity used when none is configured.
const DefaultCacheSize = 1000

// CachedProvider wraps another provider with an LRU cache keyed by text.
// Repeated embeddings of the same text (retrieval queries, consolidation
// passes) skip the underlying provider entirely.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps inner with a cache of the given capacity.
// Non-positive capacities fall back to DefaultCacheSize.
func NewCachedProvider(inner Provider, capacity int) (*CachedProvider, error) {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector when present, otherwise delegates and
// caches the result. Returned slices are copies so callers cannot corrupt
// cached entries.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := p.cache.Get(text); ok {
		return copyVector(vec), nil
	}
	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Add(text, copyVector(vec))
	return vec, nil
}

// EmbedBatch embeds each text through the cache, in order.
func (p *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, vec)
	}
	return vecs, nil
}

// Dimension returns the underlying provider's dimension.
func (p *CachedProvider) Dimension() int {
	return p.inner.Dimension()
}

// Model returns the underlying provider's model identifier.
func (p *CachedProvider) Model() string {
	return p.inner.Model()
}

// Len returns the number of cached entries.
func (p *CachedProvider) Len() int {
	return p.cache.Len()
}

func copyVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
