package services

import (
	"context"

	"simple-bot/internal/config"
	"simple-bot/internal/models"
	"simple-bot/internal/repositories"
)

// ChunkRetriever returns the chunks most relevant to a question
type ChunkRetriever interface {
	Retrieve(ctx context.Context, question string) ([]models.RetrievedChunk, error)
}

// Retriever embeds the question and asks one collection for its top-k
// nearest chunks. Results are returned in store order without filtering.
type Retriever struct {
	embedder   Embedder
	store      repositories.VectorRepository
	collection string
	topK       int
}

// NewRetriever binds a retriever to a collection; topK <= 0 selects the default of 3
func NewRetriever(embedder Embedder, store repositories.VectorRepository, collection string, topK int) *Retriever {
	if topK <= 0 {
		topK = config.DefaultTopK
	}
	return &Retriever{
		embedder:   embedder,
		store:      store,
		collection: collection,
		topK:       topK,
	}
}

// TopK returns the number of chunks requested per question
func (r *Retriever) TopK() int { return r.topK }

// Collection returns the collection this retriever queries
func (r *Retriever) Collection() string { return r.collection }

func (r *Retriever) Retrieve(ctx context.Context, question string) ([]models.RetrievedChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, withKind(ErrEmbeddingUnavailable, "retrieve", err)
	}

	chunks, err := r.store.SearchChunks(ctx, r.collection, vector, r.topK)
	if err != nil {
		return nil, vectorStoreError("retrieve", err)
	}
	return chunks, nil
}
