package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an Embedder with an in-process LRU cache keyed by a
// content hash, so repeated chunks and prompts cost one API call total.
type CachedEmbedder struct {
	inner Embedder
	model string
	cache *lru.Cache[string, []float32]
}

func NewCachedEmbedder(inner Embedder, model string, cacheSize int) (*CachedEmbedder, error) {
	if cacheSize <= 0 {
		cacheSize = 5000
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, model: model, cache: cache}, nil
}

func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed returns the cached vector for text, calling the inner embedder only
// on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch checks the cache per text and embeds only the misses, then
// reassembles results in input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	var uncachedIndices []int
	var uncachedTexts []string
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
			continue
		}
		uncachedIndices = append(uncachedIndices, i)
		uncachedTexts = append(uncachedTexts, text)
	}
	if len(uncachedTexts) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(uncachedTexts) {
		return nil, fmt.Errorf("embedding batch: got %d vectors, want %d", len(vecs), len(uncachedTexts))
	}
	for i, vec := range vecs {
		results[uncachedIndices[i]] = vec
		c.cache.Add(c.cacheKey(uncachedTexts[i]), vec)
	}
	return results, nil
}

// CacheLen reports how many vectors are currently cached.
func (c *CachedEmbedder) CacheLen() int {
	return c.cache.Len()
}

// Close releases the inner embedder's API client, if it holds one.
func (c *CachedEmbedder) Close() error {
	if closer, ok := c.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// cacheKey hashes the text together with the model name so switching models
// never serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text + "\x00" + c.model))
	return hex.EncodeToString(h[:])
}
