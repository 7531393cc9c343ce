package models

import "strings"

// PageRecord is the extracted text of a single PDF page
type PageRecord struct {
	Page int    `json:"page"` // 1-based page number in the source PDF
	Text string `json:"text"`
}

// IsBlank reports whether the page has no extractable text
func (p PageRecord) IsBlank() bool {
	return strings.TrimSpace(p.Text) == ""
}

// DocumentDTO - API view of the document bound to a session
type DocumentDTO struct {
	ID         string   `json:"document_id"`
	Filename   string   `json:"filename"`
	Collection string   `json:"collection"`
	PageCount  int      `json:"page_count"`
	ChunkCount int      `json:"chunk_count"`
	Keywords   []string `json:"keywords,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

// ValidationError represents a validation failure on a request or model field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
