package services

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"ai-tutor-platform/internal/logger"
)

// PDFExtractor pulls per-page plain text out of uploaded course PDFs.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractPages returns the text of every non-empty page in order, with
// 1-based page numbers preserved so chunk metadata can point students back
// at the book. Image-only PDFs produce an error instead of a silent
// zero-chunk ingestion.
func (e *PDFExtractor) ExtractPages(path string) ([]PageText, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]PageText, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Skipping unreadable PDF page", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, PageText{Text: text, Page: i})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no extractable text in %d pages, likely a scanned pdf", total)
	}
	if ratio := replacementRuneRatio(pages); ratio > 0.2 {
		logger.Warn("PDF text looks corrupted", "replacement_ratio", fmt.Sprintf("%.2f", ratio))
	}
	return pages, nil
}

// replacementRuneRatio measures how much of the extracted text decoded to
// U+FFFD, which is what broken font encodings collapse into.
func replacementRuneRatio(pages []PageText) float64 {
	var bad, total int
	for _, p := range pages {
		for _, r := range p.Text {
			if r == '�' {
				bad++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}
