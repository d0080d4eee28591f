// Package embeddings generates and caches text embedding vectors. The
// process holds a single embedder so every component shares one API client
// and one vector cache.
package embeddings

import (
	"context"
	"errors"
	"sync"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/logger"
)

// ErrDimensionMismatch is returned when the embeddings API yields a vector
// whose length differs from the configured index dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder produces fixed-dimension vectors for text. Implementations must
// be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

var (
	once    sync.Once
	shared  *CachedEmbedder
	initErr error
)

// Get returns the process-wide embedder, building it on first use. A failed
// build is latched: later calls observe the same error and never retry.
func Get(ctx context.Context, cfg *config.Config) (*CachedEmbedder, error) {
	once.Do(func() {
		var inner *GoogleEmbedder
		inner, initErr = NewGoogleEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, cfg.VectorDimensions, cfg.EmbedBatchSize)
		if initErr != nil {
			logger.Error("Failed to initialize embedder", "error", initErr)
			return
		}
		shared, initErr = NewCachedEmbedder(inner, cfg.GoogleEmbeddingsModel, cfg.EmbedCacheSize)
		if initErr != nil {
			logger.Error("Failed to initialize embedding cache", "error", initErr)
		}
	})
	return shared, initErr
}
