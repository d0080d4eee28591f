package ai

import (
	"fmt"
	"strings"
)

// System prompts, one per operation.
const (
	systemExercise   = "Eres un profesor de matemáticas experto en crear ejercicios didácticos."
	systemEvaluation = "Eres un profesor de matemáticas experto en evaluar trabajos de estudiantes."
	systemHint       = "Eres un tutor de matemáticas que da pistas útiles sin revelar la solución."
	systemScheme     = "Eres un tutor de matemáticas que crea esquemas visuales claros con sintaxis Mermaid."
	systemTopics     = "Eres un experto en análisis de contenido educativo."
	systemSummary    = "Eres un profesor de matemáticas experto en crear materiales de estudio didácticos y completos."
)

// Sampling temperatures, one per operation.
const (
	tempExercise   = 0.8
	tempEvaluation = 0.3
	tempHint       = 0.7
	tempScheme     = 0.5
	tempTopics     = 0.3
	tempSummary    = 0.7
)

// difficultyDescriptor expands a difficulty level into prompt wording.
func difficultyDescriptor(difficulty string) string {
	switch difficulty {
	case "easy":
		return "nivel básico, conceptos fundamentales"
	case "hard":
		return "nivel avanzado, requiere pensamiento crítico"
	default:
		return "nivel intermedio, requiere varios pasos"
	}
}

func orUnspecified(course string) string {
	if course == "" {
		return "No especificado"
	}
	return course
}

func exercisePrompt(topic, contextText, difficulty, course string) string {
	return fmt.Sprintf(`Eres un profesor de matemáticas experto. Genera UN ejercicio de matemáticas con las siguientes características:

Tema: %s
Curso: %s
Dificultad: %s

Contexto del libro de texto:
%s

Genera el ejercicio en formato JSON con esta estructura exacta:
{
    "content": "Enunciado completo del ejercicio",
    "solution": "Respuesta correcta (solo el resultado final)",
    "methodology": "Pasos detallados para resolver el ejercicio",
    "available_procedures": [
        {"id": 1, "name": "Nombre del procedimiento/técnica/propiedad", "description": "Breve explicación de qué es y cuándo se usa"},
        {"id": 2, "name": "Otro procedimiento", "description": "Breve explicación"}
    ],
    "expected_procedures": [1, 3, 5]
}

IMPORTANTE sobre los procedimientos:
- available_procedures: Lista TODAS las técnicas, propiedades, reglas o procedimientos matemáticos relacionados con el ejercicio (tanto correctos como incorrectos)
- expected_procedures: IDs de los procedimientos que son necesarios para resolver correctamente el ejercicio
- Incluye al menos 6-10 procedimientos disponibles (algunos correctos, algunos incorrectos o no aplicables)
- Los procedimientos deben ser específicos (ej: "Propiedad distributiva", "Teorema de Pitágoras", "Factorización por diferencia de cuadrados")
- IMPORTANTE: Cada procedimiento DEBE incluir una "description" breve (1-2 líneas) que explique qué es y cuándo se usa

El ejercicio debe:
- Estar basado en el contenido del libro
- Ser claro y bien formulado
- Incluir todos los datos necesarios
- Tener una solución única y verificable`, topic, orUnspecified(course), difficultyDescriptor(difficulty), contextText)
}

func evaluationPrompt(exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) string {
	return fmt.Sprintf(`Evalúa la solución de un estudiante de matemáticas.

EJERCICIO:
%s

SOLUCIÓN ESPERADA:
%s

METODOLOGÍA ESPERADA:
%s

RESPUESTA DEL ESTUDIANTE:
%s

PROCEDIMIENTO DEL ESTUDIANTE:
%s

Evalúa lo siguiente y responde en formato JSON:
{
    "is_correct_result": true/false,
    "is_correct_methodology": true/false,
    "errors_found": ["lista", "de", "errores"],
    "feedback": "Retroalimentación detallada"
}

Criterios:
- is_correct_result: ¿La respuesta final es correcta?
- is_correct_methodology: ¿El procedimiento es correcto aunque haya errores de cálculo menores?
- errors_found: Lista específica de errores conceptuales o procedimentales
- feedback: Explicación didáctica con tono motivador que identifique dónde está el error y cómo abordarlo`, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology)
}

func hintPrompt(exercise, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Genera una pista útil para ayudar a resolver este ejercicio de matemáticas:

EJERCICIO:
%s
`, exercise)
	if contextText != "" {
		fmt.Fprintf(&b, "\nCONTEXTO DEL LIBRO:\n%s\n", contextText)
	}
	b.WriteString(`
La pista debe:
- Orientar sin revelar la solución completa
- Sugerir el primer paso o concepto clave
- Ser breve (máximo 50 palabras)
- Motivar al estudiante a pensar por sí mismo`)
	return b.String()
}

func schemePrompt(exercise, contextText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Genera un esquema visual en sintaxis Mermaid que guíe la resolución de este ejercicio de matemáticas:

EJERCICIO:
%s
`, exercise)
	if contextText != "" {
		fmt.Fprintf(&b, "\nCONTEXTO DEL LIBRO:\n%s\n", contextText)
	}
	b.WriteString(`
El esquema debe:
- Usar un diagrama de flujo Mermaid (flowchart TD)
- Mostrar los pasos o decisiones principales de la resolución
- NO revelar la solución final ni resultados intermedios
- Usar etiquetas cortas en español

Responde ÚNICAMENTE con el código Mermaid, sin explicaciones adicionales.`)
	return b.String()
}

func topicsPrompt(sampleText string, meta SourceMetadata) string {
	subject := meta.Subject
	if subject == "" {
		subject = "Matemáticas"
	}
	title := meta.Title
	if title == "" {
		title = "Sin título"
	}
	return fmt.Sprintf(`Extrae los temas y subtemas de este libro de matemáticas en formato JSON.

LIBRO: %s
CURSO: %s
MATERIA: %s

TEXTO:
%s

Formato de respuesta esperado:
{
    "topics": [
        {"name": "Nombre del tema", "description": "Breve descripción"}
    ]
}

Busca especialmente en el índice o tabla de contenidos si está presente.`, title, orUnspecified(meta.Course), subject, sampleText)
}

func summaryPrompt(topic, contextText, course string) string {
	return fmt.Sprintf(`Eres un profesor de matemáticas experto. Genera un resumen de estudio completo y didáctico sobre el siguiente tema:

TEMA: %s
CURSO: %s

CONTENIDO DEL LIBRO DE TEXTO:
%s

Genera un resumen bien estructurado que incluya:

1. **Conceptos Clave**: Lista los conceptos fundamentales del tema
2. **Definiciones Importantes**: Define los términos técnicos relevantes
3. **Fórmulas y Propiedades**: Enumera las fórmulas principales y propiedades matemáticas
4. **Procedimientos**: Explica paso a paso los procedimientos comunes
5. **Ejemplos Resueltos**: Incluye 1-2 ejemplos completamente resueltos
6. **Consejos y Trucos**: Añade tips útiles para recordar conceptos o evitar errores comunes
7. **Relación con Otros Temas**: Menciona cómo se relaciona con otros conceptos matemáticos

El resumen debe:
- Ser claro y didáctico
- Usar formato Markdown para una mejor presentación
- Ser comprensible para estudiantes del nivel especificado
- Tener una longitud apropiada (800-1200 palabras)
- Estar basado en el contenido del libro proporcionado`, topic, orUnspecified(course), contextText)
}
