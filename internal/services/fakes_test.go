package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"simple-bot/internal/config"
	"simple-bot/internal/logger"
	"simple-bot/internal/models"
	"simple-bot/internal/repositories"

	"github.com/stretchr/testify/mock"
)

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// letterEmbedder maps text to a 26-dim letter histogram; similar words land close together
type letterEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *letterEmbedder) vector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	v[0] += 0.01 // never a zero vector
	return v
}

func (e *letterEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *letterEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

// echoGenerator returns the prompt it was given, so tests can inspect the context
type echoGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (g *echoGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return "ANSWER:" + prompt, nil
}

// textLoader treats the upload as plain text, one page per form feed
type textLoader struct{}

func (textLoader) Load(ctx context.Context, data []byte) ([]models.PageRecord, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, loadError("load_text", fmt.Errorf("empty document"))
	}
	var pages []models.PageRecord
	for i, text := range strings.Split(string(data), "\f") {
		pages = append(pages, models.PageRecord{Page: i + 1, Text: text})
	}
	return pages, nil
}

// failingStore wraps a vector repository, records created collections and fails StoreChunks on demand
type failingStore struct {
	*repositories.MemoryVectorRepository
	failStore bool
	created   []string
}

func (f *failingStore) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) error {
	f.created = append(f.created, name)
	return f.MemoryVectorRepository.CreateCollection(ctx, name, metadata)
}

func (f *failingStore) exists(name string) bool {
	ok, _ := f.CollectionExists(context.Background(), name)
	return ok
}

func (f *failingStore) StoreChunks(ctx context.Context, collection string, chunks []models.Chunk, embeddings [][]float32) error {
	if f.failStore {
		return repositories.NewVectorRepositoryError("store_chunks", fmt.Errorf("disk full"), "")
	}
	return f.MemoryVectorRepository.StoreChunks(ctx, collection, chunks, embeddings)
}

type testEnv struct {
	store     *failingStore
	embedder  *letterEmbedder
	generator *echoGenerator
	ingestor  *Ingestor
	repo      *repositories.MemorySessionRepository
}

func newTestEnv(t interface{ Fatalf(string, ...interface{}) }, chunkSize, overlap int) *testEnv {
	chunker, err := NewChunker(chunkSize, overlap)
	if err != nil {
		t.Fatalf("chunker: %v", err)
	}
	template, err := NewPromptTemplate("C:{context}|Q:{question}")
	if err != nil {
		t.Fatalf("template: %v", err)
	}

	env := &testEnv{
		store:     &failingStore{MemoryVectorRepository: repositories.NewMemoryVectorRepository()},
		embedder:  &letterEmbedder{},
		generator: &echoGenerator{},
		repo:      repositories.NewMemorySessionRepository(0),
	}
	env.ingestor, err = NewIngestor(IngestorOptions{
		Loader:           textLoader{},
		Chunker:          chunker,
		Embedder:         env.embedder,
		Store:            env.store,
		Generator:        env.generator,
		Template:         template,
		TopK:             config.DefaultTopK,
		CollectionPrefix: "test",
		Logger:           logger.Nop(),
	})
	if err != nil {
		t.Fatalf("ingestor: %v", err)
	}
	return env
}

func (e *testEnv) manager(dropOnClose bool) *SessionManager {
	return NewSessionManager(e.ingestor, e.repo, dropOnClose, logger.Nop())
}
