package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ai-tutor-platform/internal/crawler"
	"ai-tutor-platform/models"
)

type fakePDFExtractor struct {
	pages []PageText
	err   error
}

func (f *fakePDFExtractor) ExtractPages(path string) ([]PageText, error) {
	return f.pages, f.err
}

type fakeWebFetcher struct {
	result *crawler.Result
	err    error
}

func (f *fakeWebFetcher) Fetch(url string, crawl bool) (*crawler.Result, error) {
	return f.result, f.err
}

func ingestionFixture(pdf pdfExtractor, web webFetcher) *SourceService {
	return &SourceService{
		chunker: NewChunker(500, 50),
		pdf:     pdf,
		web:     web,
	}
}

func TestBuildChunks_PDFKeepsPageLocators(t *testing.T) {
	pdf := &fakePDFExtractor{pages: []PageText{
		{Text: "La derivada mide la tasa de cambio.", Page: 1},
		{Text: "La integral acumula area bajo la curva.", Page: 4},
	}}
	svc := ingestionFixture(pdf, nil)

	chunks, err := svc.buildChunks(context.Background(), &models.Source{Kind: models.SourceKindPDF, FilePath: "/tmp/libro.pdf"})
	if err != nil {
		t.Fatalf("buildChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Page != 1 || chunks[1].Page != 4 {
		t.Errorf("page locators lost: %d, %d", chunks[0].Page, chunks[1].Page)
	}
	if chunks[0].Index != 0 || chunks[1].Index != 1 {
		t.Errorf("indexes should run across the source: %d, %d", chunks[0].Index, chunks[1].Index)
	}
}

func TestBuildChunks_PDFExtractionError(t *testing.T) {
	pdf := &fakePDFExtractor{err: errors.New("broken xref table")}
	svc := ingestionFixture(pdf, nil)

	_, err := svc.buildChunks(context.Background(), &models.Source{Kind: models.SourceKindPDF})
	if err == nil || !strings.Contains(err.Error(), "extracting pdf") {
		t.Errorf("want wrapped extraction error, got %v", err)
	}
}

func TestBuildChunks_WebSetsURLAndRenumbers(t *testing.T) {
	web := &fakeWebFetcher{result: &crawler.Result{
		Title: "Curso de calculo",
		Pages: []crawler.Page{
			{URL: "https://cursos.example.com/tema-1", Content: "Primera leccion sobre limites y continuidad de funciones."},
			{URL: "https://cursos.example.com/tema-2", Content: "Segunda leccion sobre derivadas y reglas de derivacion."},
		},
	}}
	svc := ingestionFixture(nil, web)

	source := &models.Source{Kind: models.SourceKindWeb, Title: "Apuntes", URL: "https://cursos.example.com", Crawl: true}
	chunks, err := svc.buildChunks(context.Background(), source)
	if err != nil {
		t.Fatalf("buildChunks: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].URL != "https://cursos.example.com/tema-1" {
		t.Errorf("chunk 0 URL = %q", chunks[0].URL)
	}
	if chunks[1].URL != "https://cursos.example.com/tema-2" {
		t.Errorf("chunk 1 URL = %q", chunks[1].URL)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d after renumbering", i, c.Index)
		}
	}
}

func TestBuildChunks_TranscriptCarriesTimecodes(t *testing.T) {
	svc := ingestionFixture(nil, nil)
	source := &models.Source{
		Kind: models.SourceKindTranscript,
		Captions: []models.CaptionSegment{
			{Start: 0, Text: "Hoy vamos a estudiar las derivadas."},
			{Start: 95, Text: "La regla de la cadena se aplica a composiciones."},
		},
	}

	chunks, err := svc.buildChunks(context.Background(), source)
	if err != nil {
		t.Fatalf("buildChunks: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if chunks[0].Timecode == "" {
		t.Error("transcript chunk should carry a timecode")
	}
}

func TestBuildChunks_UnknownKind(t *testing.T) {
	svc := ingestionFixture(nil, nil)
	_, err := svc.buildChunks(context.Background(), &models.Source{Kind: "carrier-pigeon"})
	if err == nil || !strings.Contains(err.Error(), "unknown source kind") {
		t.Errorf("want unknown kind error, got %v", err)
	}
}

func TestCreateWebSource_RequiresURL(t *testing.T) {
	svc := &SourceService{}
	_, err := svc.CreateWebSource(context.Background(), "Apuntes", "calculo-1", "", "  ", false)
	if err == nil || !strings.Contains(err.Error(), "url is required") {
		t.Errorf("want url validation error, got %v", err)
	}
}

func TestCreateTranscriptSource_RequiresCaptions(t *testing.T) {
	svc := &SourceService{}
	_, err := svc.CreateTranscriptSource(context.Background(), "Clase 3", "calculo-1", "", nil)
	if err == nil || !strings.Contains(err.Error(), "caption") {
		t.Errorf("want caption validation error, got %v", err)
	}
}

func TestCreatePDFSource_RequiresCourse(t *testing.T) {
	svc := &SourceService{}
	_, err := svc.CreatePDFSource(context.Background(), "Libro", "   ", "", "/tmp/libro.pdf")
	if err == nil || !strings.Contains(err.Error(), "course is required") {
		t.Errorf("want course validation error, got %v", err)
	}
}
