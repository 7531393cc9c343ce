package models

// Chunk is a bounded window of page text used as the unit of embedding and retrieval
type Chunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Page       int                    `json:"page"`
	Index      int                    `json:"chunk_index"` // position within the document
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks if the chunk is valid
func (c *Chunk) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "chunk ID is required"}
	}
	if c.DocumentID == "" {
		return &ValidationError{Field: "document_id", Message: "document ID is required"}
	}
	if c.Text == "" {
		return &ValidationError{Field: "text", Message: "text is required"}
	}
	if c.Index < 0 {
		return &ValidationError{Field: "chunk_index", Message: "chunk index cannot be negative"}
	}
	if c.Page < 1 {
		return &ValidationError{Field: "page", Message: "page must be 1 or greater"}
	}
	return nil
}

// RetrievedChunk is a chunk returned by similarity search, in store order
type RetrievedChunk struct {
	ChunkID    string                 `json:"chunk_id"`
	DocumentID string                 `json:"document_id"`
	Text       string                 `json:"text"`
	Score      float32                `json:"score"` // Similarity score (higher is better)
	Page       int                    `json:"page,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
