package services

import (
	"fmt"

	"simple-bot/internal/config"
	"simple-bot/internal/models"
)

// Chunker splits page text into fixed-size windows that overlap by a fixed
// number of characters. Lengths are counted in runes, not bytes.
type Chunker struct {
	maxLen  int
	overlap int
}

// NewChunker validates the window parameters before any document is processed
func NewChunker(maxLen, overlap int) (*Chunker, error) {
	if err := config.ValidateChunking(maxLen, overlap); err != nil {
		return nil, configError("new_chunker", err)
	}
	return &Chunker{maxLen: maxLen, overlap: overlap}, nil
}

// Split emits the windows of every page in order. Each window starts
// maxLen-overlap runes after the previous one; the last window of a page
// may be shorter. Chunks never span pages and are never empty.
func (c *Chunker) Split(documentID string, pages []models.PageRecord) []models.Chunk {
	step := c.maxLen - c.overlap
	chunks := make([]models.Chunk, 0, len(pages))

	for _, page := range pages {
		runes := []rune(page.Text)
		n := len(runes)

		for start := 0; start < n; start += step {
			end := start + c.maxLen
			if end > n {
				end = n
			}

			index := len(chunks)
			chunks = append(chunks, models.Chunk{
				ID:         fmt.Sprintf("%s_chunk_%d", documentID, index),
				DocumentID: documentID,
				Page:       page.Page,
				Index:      index,
				Text:       string(runes[start:end]),
				Metadata: map[string]interface{}{
					"page":        page.Page,
					"chunk_index": index,
				},
			})

			if end == n {
				break
			}
		}
	}

	return chunks
}
