package services

import (
	"strings"
	"testing"
)

func TestReplacementRuneRatio(t *testing.T) {
	tests := []struct {
		name  string
		pages []PageText
		want  float64
	}{
		{
			name:  "clean text",
			pages: []PageText{{Text: "derivada de x al cuadrado", Page: 1}},
			want:  0,
		},
		{
			name:  "half corrupted",
			pages: []PageText{{Text: "ab��", Page: 1}},
			want:  0.5,
		},
		{
			name:  "spread across pages",
			pages: []PageText{{Text: "abc", Page: 1}, {Text: "�", Page: 2}},
			want:  0.25,
		},
		{
			name:  "no pages",
			pages: nil,
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := replacementRuneRatio(tt.pages)
			if got != tt.want {
				t.Errorf("replacementRuneRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractPages_MissingFile(t *testing.T) {
	e := NewPDFExtractor()
	_, err := e.ExtractPages("/nonexistent/material.pdf")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "opening pdf") {
		t.Errorf("error should wrap the open failure, got %v", err)
	}
}
