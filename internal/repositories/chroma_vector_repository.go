package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"simple-bot/internal/db"
	"simple-bot/internal/models"
)

// ChromaVectorRepository implements VectorRepository using ChromaDB
type ChromaVectorRepository struct {
	client *db.ChromaDBClient
}

// NewChromaVectorRepository creates a new ChromaDB-backed vector repository
func NewChromaVectorRepository(client *db.ChromaDBClient) *ChromaVectorRepository {
	return &ChromaVectorRepository{
		client: client,
	}
}

// CreateCollection creates a new cosine-space collection
func (r *ChromaVectorRepository) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	exists, err := r.CollectionExists(ctx, name)
	if err != nil {
		return NewVectorRepositoryError("create_collection", err, "")
	}
	if exists {
		return CollectionAlreadyExistsError(name)
	}

	if _, err := r.client.CreateCollection(ctx, name, metadata); err != nil {
		return NewVectorRepositoryError("create_collection", err, "failed to create collection: "+name)
	}
	return nil
}

// DeleteCollection deletes a collection
func (r *ChromaVectorRepository) DeleteCollection(ctx context.Context, name string) error {
	if err := r.client.DeleteCollection(ctx, name); err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return CollectionNotFoundError(name)
		}
		return NewVectorRepositoryError("delete_collection", err, "failed to delete collection: "+name)
	}
	return nil
}

// CollectionExists checks if a collection exists
func (r *ChromaVectorRepository) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := r.client.GetCollection(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, db.ErrCollectionNotFound) {
		return false, nil
	}
	return false, NewVectorRepositoryError("collection_exists", err, "")
}

// StoreChunks stores chunks and their embeddings in a collection
func (r *ChromaVectorRepository) StoreChunks(ctx context.Context, collectionName string, chunks []models.Chunk, embeddings [][]float32) error {
	if err := validateStore("store_chunks", chunks, embeddings); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	metadatas := make([]map[string]interface{}, len(chunks))

	for i, chunk := range chunks {
		ids[i] = chunk.ID
		documents[i] = chunk.Text

		metadata := chunkMetadata(chunk)
		// Chroma only accepts scalar metadata; lists and maps travel as JSON strings.
		for k, v := range metadata {
			switch val := v.(type) {
			case []string, []interface{}, map[string]interface{}:
				if jsonBytes, err := json.Marshal(val); err == nil {
					metadata[k] = string(jsonBytes)
				} else {
					delete(metadata, k)
				}
			}
		}
		metadatas[i] = metadata
	}

	if err := r.client.AddDocuments(ctx, collectionName, ids, documents, embeddings, metadatas); err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return CollectionNotFoundError(collectionName)
		}
		return NewVectorRepositoryError("store_chunks", err, fmt.Sprintf("failed to store %d chunks: %v", len(chunks), err))
	}
	return nil
}

// SearchChunks returns the topK nearest chunks in the order Chroma ranks them
func (r *ChromaVectorRepository) SearchChunks(ctx context.Context, collectionName string, queryEmbedding []float32, topK int) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		return []models.RetrievedChunk{}, nil
	}

	results, err := r.client.Query(ctx, collectionName, [][]float32{queryEmbedding}, topK)
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return nil, CollectionNotFoundError(collectionName)
		}
		return nil, NewVectorRepositoryError("search_chunks", err, "")
	}

	searchResults := make([]models.RetrievedChunk, 0, topK)
	if len(results.IDs) == 0 {
		return searchResults, nil
	}

	for i, id := range results.IDs[0] {
		metadata := map[string]interface{}{}
		if len(results.Metadatas) > 0 && len(results.Metadatas[0]) > i && results.Metadatas[0][i] != nil {
			metadata = results.Metadatas[0][i]
		}

		var text string
		if len(results.Documents) > 0 && len(results.Documents[0]) > i {
			text = results.Documents[0][i]
		}

		var distance float32
		if len(results.Distances) > 0 && len(results.Distances[0]) > i {
			distance = results.Distances[0][i]
		}

		documentID, _ := metadata["document_id"].(string)
		page := 0
		if p, ok := metadata["page"].(float64); ok {
			page = int(p)
		}

		searchResults = append(searchResults, models.RetrievedChunk{
			ChunkID:    id,
			DocumentID: documentID,
			Text:       text,
			Score:      1 - distance,
			Page:       page,
			Metadata:   metadata,
		})
	}

	return searchResults, nil
}

// CountChunks returns the number of records in a collection
func (r *ChromaVectorRepository) CountChunks(ctx context.Context, collectionName string) (int, error) {
	count, err := r.client.CountCollection(ctx, collectionName)
	if err != nil {
		if errors.Is(err, db.ErrCollectionNotFound) {
			return 0, CollectionNotFoundError(collectionName)
		}
		return 0, NewVectorRepositoryError("count_chunks", err, "")
	}
	return count, nil
}

// Ping checks ChromaDB connectivity
func (r *ChromaVectorRepository) Ping(ctx context.Context) error {
	if err := r.client.Heartbeat(ctx); err != nil {
		return NewVectorRepositoryError("ping", err, "")
	}
	return nil
}

// Close closes the underlying client
func (r *ChromaVectorRepository) Close() error {
	r.client.Close()
	return nil
}
