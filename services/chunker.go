package services

import (
	"fmt"
	"strings"

	"ai-tutor-platform/models"
)

// Transcript chunks run larger than page chunks: spoken text has far fewer
// sentence ends per character.
const (
	transcriptChunkSize = 3000
	transcriptOverlap   = 200
)

// Chunker splits extracted text into bounded chunks with sentence-aware
// cuts, so embeddings see whole statements instead of clipped ones.
type Chunker struct {
	maxChunkSize int
	overlap      int
}

func NewChunker(maxChunkSize, overlap int) *Chunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	// Progress per iteration must stay positive even on midpoint cuts.
	if overlap > maxChunkSize/4 {
		overlap = maxChunkSize / 4
	}
	return &Chunker{maxChunkSize: maxChunkSize, overlap: overlap}
}

// PageText is one unit of extracted input: a PDF page or a web document.
type PageText struct {
	Text string
	Page int
}

// ChunkPages splits each page into chunks of at most maxChunkSize runes,
// cutting at the last sentence end past the midpoint when one exists.
// Consecutive chunks overlap by the configured amount; indexes run across
// the whole source.
func (c *Chunker) ChunkPages(pages []PageText) []models.Chunk {
	var chunks []models.Chunk
	index := 0
	for _, page := range pages {
		text := []rune(strings.TrimSpace(page.Text))
		if len(text) == 0 {
			continue
		}

		start := 0
		for start < len(text) {
			end := start + c.maxChunkSize
			limit := end
			if limit > len(text) {
				limit = len(text)
			}
			segment := text[start:limit]

			if end < len(text) {
				if cut := lastSentenceEnd(segment); cut > c.maxChunkSize/2 {
					segment = segment[:cut+1]
					end = start + cut + 1
				}
			}

			piece := strings.TrimSpace(string(segment))
			if piece != "" {
				chunks = append(chunks, models.Chunk{
					Text:  piece,
					Index: index,
					Page:  page.Page,
				})
				index++
			}
			start = end - c.overlap
		}
	}
	return chunks
}

// ChunkText splits a single unlocated text.
func (c *Chunker) ChunkText(text string) []models.Chunk {
	return c.ChunkPages([]PageText{{Text: text}})
}

// ChunkTranscript joins caption segments into one stream and splits it into
// transcript-sized chunks. Each chunk carries an approximate timecode
// estimated from its character position against the last caption start.
func (c *Chunker) ChunkTranscript(segments []models.CaptionSegment) []models.Chunk {
	if len(segments) == 0 {
		return nil
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	text := []rune(strings.Join(parts, " "))
	if len(text) == 0 {
		return nil
	}
	lastStart := segments[len(segments)-1].Start

	var chunks []models.Chunk
	index := 0
	start := 0
	for start < len(text) {
		end := start + transcriptChunkSize
		limit := end
		if limit > len(text) {
			limit = len(text)
		}
		segment := text[start:limit]

		if end < len(text) {
			// Spoken text: only cut when a sentence end sits near the limit.
			if cut := lastSentenceEnd(segment); cut > transcriptChunkSize-transcriptOverlap {
				segment = segment[:cut+1]
				end = start + cut + 1
			}
		}

		piece := strings.TrimSpace(string(segment))
		if piece != "" {
			seconds := float64(start) / float64(len(text)) * lastStart
			chunks = append(chunks, models.Chunk{
				Text:     piece,
				Index:    index,
				Timecode: FormatTimecode(seconds),
			})
			index++
		}
		start = end - transcriptOverlap
	}
	return chunks
}

// FormatTimecode renders seconds as MM:SS, or HH:MM:SS past an hour.
func FormatTimecode(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// lastSentenceEnd returns the index of the last '.', '?' or '!' in text, or
// -1 when none exists.
func lastSentenceEnd(text []rune) int {
	for i := len(text) - 1; i >= 0; i-- {
		switch text[i] {
		case '.', '?', '!':
			return i
		}
	}
	return -1
}
