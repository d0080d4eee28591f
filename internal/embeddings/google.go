package embeddings

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// GoogleEmbedder generates embeddings through the Gemini embeddings API. The
// underlying client is kept open for the life of the process.
type GoogleEmbedder struct {
	client    *genai.Client
	model     string
	dims      int
	batchSize int
}

func NewGoogleEmbedder(ctx context.Context, apiKey, model string, dims, batchSize int) (*GoogleEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &GoogleEmbedder{
		client:    client,
		model:     model,
		dims:      dims,
		batchSize: batchSize,
	}, nil
}

func (e *GoogleEmbedder) Dimensions() int { return e.dims }

// Embed returns the embedding vector for a single text.
func (e *GoogleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	em := e.client.EmbeddingModel(e.model)
	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("embedding text: empty response")
	}
	return e.checkDims(resp.Embedding.Values)
}

// EmbedBatch embeds texts in sub-batches of the configured size. Sub-batches
// run concurrently; result order matches input order.
func (e *GoogleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("embeddings")
	ctx, span := tracer.Start(ctx, "embeddings.embed_batch")
	span.SetAttributes(
		attribute.Int("embeddings.texts", len(texts)),
		attribute.String("embeddings.model", e.model),
	)
	defer span.End()

	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to stay under API rate limits.

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			em := e.client.EmbeddingModel(e.model)
			batch := em.NewBatch()
			for _, text := range texts[start:end] {
				batch.AddContent(genai.Text(text))
			}
			resp, err := em.BatchEmbedContents(gCtx, batch)
			if err != nil {
				return fmt.Errorf("embedding batch %d..%d: %w", start, end, err)
			}
			if len(resp.Embeddings) != end-start {
				return fmt.Errorf("embedding batch %d..%d: got %d embeddings, want %d", start, end, len(resp.Embeddings), end-start)
			}
			for i, emb := range resp.Embeddings {
				if emb == nil {
					return fmt.Errorf("embedding batch %d..%d: empty embedding at %d", start, end, i)
				}
				vec, err := e.checkDims(emb.Values)
				if err != nil {
					return err
				}
				results[start+i] = vec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.SetAttributes(attribute.Bool("embeddings.error", true))
		return nil, err
	}
	return results, nil
}

func (e *GoogleEmbedder) checkDims(vec []float32) ([]float32, error) {
	if len(vec) != e.dims {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(vec), e.dims)
	}
	return vec, nil
}

// Close releases the underlying API client.
func (e *GoogleEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
