package ai

import (
	"strings"
	"testing"

	"ai-tutor-platform/internal/config"
)

func TestNewEngine_SelectsProvider(t *testing.T) {
	cases := []struct {
		active string
		name   string
	}{
		{"openai", "openai"},
		{"deepseek", "deepseek"},
		{"ollama", "ollama"},
		{"OpenAI", "openai"},
	}
	for _, tc := range cases {
		cfg := &config.Config{
			ActiveEngine:    tc.active,
			OpenAIBaseURL:   "https://api.openai.com/v1",
			OpenAIModel:     "gpt-4o-mini",
			DeepSeekBaseURL: "https://api.deepseek.com/v1",
			DeepSeekModel:   "deepseek-chat",
			OllamaBaseURL:   "http://localhost:11434",
			OllamaModel:     "llama3",
		}
		engine, err := NewEngine(cfg, nil)
		if err != nil {
			t.Fatalf("NewEngine(%q): %v", tc.active, err)
		}
		if engine.Name() != tc.name {
			t.Errorf("NewEngine(%q).Name() = %q, want %q", tc.active, engine.Name(), tc.name)
		}
	}
}

func TestNewEngine_Unsupported(t *testing.T) {
	_, err := NewEngine(&config.Config{ActiveEngine: "claude"}, nil)
	if err == nil {
		t.Fatal("expected error for unsupported engine")
	}
	if !strings.Contains(err.Error(), "claude") {
		t.Errorf("error should name the engine: %v", err)
	}
}

func TestDifficultyDescriptor(t *testing.T) {
	if got := difficultyDescriptor("easy"); !strings.Contains(got, "básico") {
		t.Errorf("easy descriptor: %q", got)
	}
	if got := difficultyDescriptor("hard"); !strings.Contains(got, "avanzado") {
		t.Errorf("hard descriptor: %q", got)
	}
	// Unknown levels read as medium.
	if got := difficultyDescriptor("extreme"); !strings.Contains(got, "intermedio") {
		t.Errorf("fallback descriptor: %q", got)
	}
}
