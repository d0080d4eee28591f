package services

import (
	"math"
	"testing"

	"ai-tutor-platform/models"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mismatched lengths", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarity_ScaleInvariant(t *testing.T) {
	a := []float32{0.3, 0.7, 0.2}
	scaled := []float32{0.6, 1.4, 0.4}

	got := cosineSimilarity(a, scaled)
	if math.Abs(got-1) > 1e-6 {
		t.Errorf("cosine of a vector with its scaled copy = %v, want 1", got)
	}
}

func TestRankBySimilarity_OrdersAndTruncates(t *testing.T) {
	query := []float32{1, 0}
	docs := []models.Chunk{
		{Text: "lejano", Embedding: []float32{0, 1}},
		{Text: "exacto", Embedding: []float32{1, 0}},
		{Text: "cercano", Embedding: []float32{0.9, 0.1}},
	}

	got := rankBySimilarity(query, docs, 2)
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[0].Text != "exacto" {
		t.Errorf("best match = %q, want %q", got[0].Text, "exacto")
	}
	if got[1].Text != "cercano" {
		t.Errorf("second match = %q, want %q", got[1].Text, "cercano")
	}
	if got[0].Score < got[1].Score {
		t.Errorf("scores out of order: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestRankBySimilarity_FewerDocsThanTopK(t *testing.T) {
	query := []float32{1, 0}
	docs := []models.Chunk{{Text: "unico", Embedding: []float32{1, 0}}}

	got := rankBySimilarity(query, docs, 5)
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1", len(got))
	}
}

func TestRankBySimilarity_BadVectorsSinkToBottom(t *testing.T) {
	query := []float32{1, 0}
	docs := []models.Chunk{
		{Text: "sin vector", Embedding: nil},
		{Text: "bueno", Embedding: []float32{0.8, 0.2}},
	}

	got := rankBySimilarity(query, docs, 2)
	if got[0].Text != "bueno" {
		t.Errorf("best match = %q, want the chunk with a valid vector", got[0].Text)
	}
	if got[1].Score != 0 {
		t.Errorf("dimension-mismatched chunk score = %v, want 0", got[1].Score)
	}
}

func TestRankBySimilarity_Empty(t *testing.T) {
	if got := rankBySimilarity([]float32{1}, nil, 3); len(got) != 0 {
		t.Errorf("results = %d, want 0 for empty corpus", len(got))
	}
}
