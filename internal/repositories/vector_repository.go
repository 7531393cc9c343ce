package repositories

import (
	"context"
	"errors"

	"simple-bot/internal/models"
)

// VectorRepository stores chunk embeddings in named collections and answers
// nearest-neighbour queries. Each ingested document gets its own collection.
type VectorRepository interface {
	// Collection Management
	CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error
	DeleteCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)

	// StoreChunks writes one record per chunk; embeddings[i] belongs to chunks[i]
	StoreChunks(ctx context.Context, collectionName string, chunks []models.Chunk, embeddings [][]float32) error
	// SearchChunks returns at most topK chunks ordered by decreasing score
	SearchChunks(ctx context.Context, collectionName string, queryEmbedding []float32, topK int) ([]models.RetrievedChunk, error)
	CountChunks(ctx context.Context, collectionName string) (int, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}

// Sentinel errors matched with errors.Is through VectorRepositoryError
var (
	ErrCollectionNotFound      = errors.New("collection not found")
	ErrCollectionAlreadyExists = errors.New("collection already exists")
	ErrEmbeddingMismatch       = errors.New("chunk and embedding counts differ")
)

// VectorRepositoryError represents errors from the vector repository
type VectorRepositoryError struct {
	Operation string
	Err       error
	Message   string
}

func (e *VectorRepositoryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Operation + ": " + e.Err.Error()
	}
	return e.Operation + ": unknown error"
}

func (e *VectorRepositoryError) Unwrap() error {
	return e.Err
}

// NewVectorRepositoryError creates a new vector repository error
func NewVectorRepositoryError(operation string, err error, message string) *VectorRepositoryError {
	return &VectorRepositoryError{
		Operation: operation,
		Err:       err,
		Message:   message,
	}
}

// Common error constructors
func CollectionNotFoundError(name string) error {
	return NewVectorRepositoryError("get_collection", ErrCollectionNotFound, "collection not found: "+name)
}

func CollectionAlreadyExistsError(name string) error {
	return NewVectorRepositoryError("create_collection", ErrCollectionAlreadyExists, "collection already exists: "+name)
}

// chunkMetadata flattens a chunk into the scalar-only metadata a vector store accepts
func chunkMetadata(c models.Chunk) map[string]interface{} {
	metadata := make(map[string]interface{}, len(c.Metadata)+3)
	for k, v := range c.Metadata {
		metadata[k] = v
	}
	metadata["document_id"] = c.DocumentID
	metadata["page"] = c.Page
	metadata["chunk_index"] = c.Index
	return metadata
}

func validateStore(op string, chunks []models.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return NewVectorRepositoryError(op, ErrEmbeddingMismatch, "")
	}
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return NewVectorRepositoryError(op, err, "")
		}
	}
	return nil
}
