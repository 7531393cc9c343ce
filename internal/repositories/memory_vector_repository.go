package repositories

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"simple-bot/internal/models"
)

type memoryRecord struct {
	chunk  models.Chunk
	vector []float32
	norm   float64
}

// MemoryVectorRepository keeps collections in process memory and ranks by
// cosine similarity. Nothing survives a restart.
type MemoryVectorRepository struct {
	mu          sync.RWMutex
	collections map[string][]memoryRecord
}

// NewMemoryVectorRepository creates an empty in-memory vector repository
func NewMemoryVectorRepository() *MemoryVectorRepository {
	return &MemoryVectorRepository{
		collections: make(map[string][]memoryRecord),
	}
}

func (r *MemoryVectorRepository) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[name]; ok {
		return CollectionAlreadyExistsError(name)
	}
	r.collections[name] = []memoryRecord{}
	return nil
}

func (r *MemoryVectorRepository) DeleteCollection(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[name]; !ok {
		return CollectionNotFoundError(name)
	}
	delete(r.collections, name)
	return nil
}

func (r *MemoryVectorRepository) CollectionExists(ctx context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.collections[name]
	return ok, nil
}

func (r *MemoryVectorRepository) StoreChunks(ctx context.Context, collectionName string, chunks []models.Chunk, embeddings [][]float32) error {
	if err := validateStore("store_chunks", chunks, embeddings); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, ok := r.collections[collectionName]
	if !ok {
		return CollectionNotFoundError(collectionName)
	}

	for i, chunk := range chunks {
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		if len(records) > 0 && len(records[0].vector) != len(vec) {
			return NewVectorRepositoryError("store_chunks", nil,
				fmt.Sprintf("dimension mismatch: collection has %d, chunk %s has %d", len(records[0].vector), chunk.ID, len(vec)))
		}
		chunk.Metadata = chunkMetadata(chunk)
		records = append(records, memoryRecord{chunk: chunk, vector: vec, norm: norm(vec)})
	}
	r.collections[collectionName] = records
	return nil
}

// SearchChunks ranks by cosine similarity; ties keep insertion order
func (r *MemoryVectorRepository) SearchChunks(ctx context.Context, collectionName string, queryEmbedding []float32, topK int) ([]models.RetrievedChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, ok := r.collections[collectionName]
	if !ok {
		return nil, CollectionNotFoundError(collectionName)
	}
	if topK <= 0 || len(records) == 0 {
		return []models.RetrievedChunk{}, nil
	}

	qNorm := norm(queryEmbedding)
	results := make([]models.RetrievedChunk, 0, len(records))
	for _, rec := range records {
		if len(rec.vector) != len(queryEmbedding) {
			return nil, NewVectorRepositoryError("search_chunks", nil,
				fmt.Sprintf("query dimension %d does not match collection dimension %d", len(queryEmbedding), len(rec.vector)))
		}
		results = append(results, models.RetrievedChunk{
			ChunkID:    rec.chunk.ID,
			DocumentID: rec.chunk.DocumentID,
			Text:       rec.chunk.Text,
			Score:      cosine(queryEmbedding, rec.vector, qNorm, rec.norm),
			Page:       rec.chunk.Page,
			Metadata:   rec.chunk.Metadata,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *MemoryVectorRepository) CountChunks(ctx context.Context, collectionName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records, ok := r.collections[collectionName]
	if !ok {
		return 0, CollectionNotFoundError(collectionName)
	}
	return len(records), nil
}

func (r *MemoryVectorRepository) Ping(ctx context.Context) error { return nil }

func (r *MemoryVectorRepository) Close() error { return nil }

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, normA, normB float64) float32 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (normA * normB))
}
