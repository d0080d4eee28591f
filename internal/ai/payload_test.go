package ai

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseExercisePayload_FencedJSON(t *testing.T) {
	raw := "Aquí tienes el ejercicio:\n```json\n{\n" +
		`  "content": "Calcula la derivada de f(x) = 3x^2 + 2x",` + "\n" +
		`  "solution": "f'(x) = 6x + 2",` + "\n" +
		`  "methodology": "Aplica la regla de la potencia a cada término",` + "\n" +
		`  "available_procedures": [{"id": 1, "name": "Regla de la potencia", "description": "Derivar x^n"}],` + "\n" +
		`  "expected_procedures": [1]` + "\n" +
		"}\n```\n¡Suerte!"

	p := ParseExercisePayload(raw)

	if p.Content != "Calcula la derivada de f(x) = 3x^2 + 2x" {
		t.Errorf("unexpected content: %q", p.Content)
	}
	if p.Solution != "f'(x) = 6x + 2" {
		t.Errorf("unexpected solution: %q", p.Solution)
	}
	if len(p.AvailableProcedures) != 1 || p.AvailableProcedures[0].ID != 1 {
		t.Errorf("unexpected procedures: %+v", p.AvailableProcedures)
	}
	if !reflect.DeepEqual(p.ExpectedProcedures, []int{1}) {
		t.Errorf("unexpected expected procedures: %v", p.ExpectedProcedures)
	}
}

func TestParseExercisePayload_BareJSON(t *testing.T) {
	raw := `{"content": "Resuelve 2x + 4 = 10", "solution": "x = 3", "methodology": "Despeja x"}`

	p := ParseExercisePayload(raw)

	if p.Content != "Resuelve 2x + 4 = 10" {
		t.Errorf("unexpected content: %q", p.Content)
	}
	if p.Methodology != "Despeja x" {
		t.Errorf("unexpected methodology: %q", p.Methodology)
	}
}

func TestParseExercisePayload_PlainFence(t *testing.T) {
	raw := "```\n{\"content\": \"Simplifica 4/8\", \"solution\": \"1/2\", \"methodology\": \"Divide entre 4\"}\n```"

	p := ParseExercisePayload(raw)

	if p.Content != "Simplifica 4/8" {
		t.Errorf("unexpected content: %q", p.Content)
	}
}

func TestParseExercisePayload_FallbackOnProse(t *testing.T) {
	raw := "  Calcula el área de un triángulo de base 6 y altura 4.  "

	p := ParseExercisePayload(raw)

	if p.Content != "Calcula el área de un triángulo de base 6 y altura 4." {
		t.Errorf("unexpected content: %q", p.Content)
	}
	if p.Solution != "" || p.Methodology != "" {
		t.Errorf("fallback payload should only carry content, got %+v", p)
	}
}

func TestParseExercisePayload_FallbackOnTruncatedJSON(t *testing.T) {
	raw := "```json\n{\"content\": \"Resuelve el sistema"

	p := ParseExercisePayload(raw)

	if !strings.Contains(p.Content, "Resuelve el sistema") {
		t.Errorf("fallback should keep the raw text, got %q", p.Content)
	}
	if p.Solution != "" {
		t.Errorf("unexpected solution on fallback: %q", p.Solution)
	}
}

func TestParseEvaluation_Valid(t *testing.T) {
	raw := "```json\n" +
		`{"is_correct_result": true, "is_correct_methodology": false, "errors_found": ["Paso 2 mal aplicado"], "feedback": "Revisa el paso 2."}` +
		"\n```"

	ev := ParseEvaluation(raw)

	if !ev.IsCorrectResult {
		t.Error("expected correct result")
	}
	if ev.IsCorrectMethodology {
		t.Error("expected incorrect methodology")
	}
	if len(ev.ErrorsFound) != 1 || ev.ErrorsFound[0] != "Paso 2 mal aplicado" {
		t.Errorf("unexpected errors: %v", ev.ErrorsFound)
	}
	if ev.Feedback != "Revisa el paso 2." {
		t.Errorf("unexpected feedback: %q", ev.Feedback)
	}
}

func TestParseEvaluation_FallbackKeepsRawFeedback(t *testing.T) {
	raw := "No puedo evaluar esta respuesta."

	ev := ParseEvaluation(raw)

	if ev.IsCorrectResult || ev.IsCorrectMethodology {
		t.Error("fallback evaluation must not mark anything correct")
	}
	if ev.Feedback != "No puedo evaluar esta respuesta." {
		t.Errorf("unexpected feedback: %q", ev.Feedback)
	}
	if len(ev.ErrorsFound) == 0 {
		t.Error("fallback evaluation should flag the parse failure")
	}
}

func TestParseTopics_FiltersUnnamed(t *testing.T) {
	raw := "```json\n" +
		`{"topics": [{"name": "Fracciones", "description": "Operaciones básicas"}, {"name": "  "}, {"name": "Ecuaciones"}]}` +
		"\n```"

	topics := ParseTopics(raw)

	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
	if topics[0].Name != "Fracciones" || topics[1].Name != "Ecuaciones" {
		t.Errorf("unexpected topics: %+v", topics)
	}
	if topics[0].Description != "Operaciones básicas" {
		t.Errorf("unexpected description: %q", topics[0].Description)
	}
}

func TestParseTopics_MalformedYieldsEmpty(t *testing.T) {
	if topics := ParseTopics("no hay json aquí"); topics != nil {
		t.Errorf("got %v, want nil", topics)
	}
}

func TestStripCodeFences_UnclosedFence(t *testing.T) {
	got := stripCodeFences("```json\n{\"a\": 1}")
	if got != `{"a": 1}` {
		t.Errorf("got %q", got)
	}
}
