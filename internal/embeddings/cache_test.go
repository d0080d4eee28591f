package embeddings

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

// fakeEmbedder implements Embedder for testing and counts calls.
type fakeEmbedder struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	lastBatch  []string
	err        error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.err != nil {
		return nil, f.err
	}
	return textVector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.lastBatch = append([]string(nil), texts...)
	if f.err != nil {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = textVector(text)
	}
	return vecs, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }

// textVector derives a distinct deterministic vector from the text.
func textVector(text string) []float32 {
	v := make([]float32, 4)
	for _, r := range text {
		v[0] += float32(r)
	}
	v[1] = float32(len(text))
	return v
}

func newTestCache(t *testing.T, inner Embedder) *CachedEmbedder {
	t.Helper()
	c, err := NewCachedEmbedder(inner, "test-model", 16)
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}
	return c
}

func TestEmbed_CachesRepeatedText(t *testing.T) {
	fake := &fakeEmbedder{}
	c := newTestCache(t, fake)

	first, err := c.Embed(context.Background(), "derivada de un polinomio")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := c.Embed(context.Background(), "derivada de un polinomio")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if fake.embedCalls != 1 {
		t.Errorf("inner embedder called %d times, want 1", fake.embedCalls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached vector differs: %v vs %v", first, second)
	}
	if c.CacheLen() != 1 {
		t.Errorf("cache holds %d entries, want 1", c.CacheLen())
	}
}

func TestEmbed_ErrorNotCached(t *testing.T) {
	fake := &fakeEmbedder{err: errors.New("api unavailable")}
	c := newTestCache(t, fake)

	if _, err := c.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if c.CacheLen() != 0 {
		t.Errorf("cache holds %d entries after failure, want 0", c.CacheLen())
	}

	// Once the inner embedder recovers, the text embeds normally.
	fake.err = nil
	if _, err := c.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("Embed after recovery: %v", err)
	}
	if fake.embedCalls != 2 {
		t.Errorf("inner embedder called %d times, want 2", fake.embedCalls)
	}
}

func TestEmbedBatch_OnlyEmbedsMisses(t *testing.T) {
	fake := &fakeEmbedder{}
	c := newTestCache(t, fake)

	// Warm the cache with one text.
	if _, err := c.Embed(context.Background(), "b"); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if !reflect.DeepEqual(fake.lastBatch, []string{"a", "c"}) {
		t.Errorf("inner batch got %v, want [a c]", fake.lastBatch)
	}
	for i, text := range []string{"a", "b", "c"} {
		if !reflect.DeepEqual(vecs[i], textVector(text)) {
			t.Errorf("vector %d does not match text %q", i, text)
		}
	}
}

func TestEmbedBatch_AllCachedSkipsInner(t *testing.T) {
	fake := &fakeEmbedder{}
	c := newTestCache(t, fake)

	texts := []string{"uno", "dos"}
	if _, err := c.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if _, err := c.EmbedBatch(context.Background(), texts); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if fake.batchCalls != 1 {
		t.Errorf("inner batch called %d times, want 1", fake.batchCalls)
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	fake := &fakeEmbedder{}
	c := newTestCache(t, fake)

	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
	if fake.batchCalls != 0 {
		t.Errorf("inner batch called %d times, want 0", fake.batchCalls)
	}
}
