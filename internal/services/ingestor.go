package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"simple-bot/internal/models"
	"simple-bot/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PipelineHandle is everything needed to answer questions about one
// processed document. A new upload replaces the handle wholesale.
type PipelineHandle struct {
	DocumentID string
	Filename   string
	Collection string
	PageCount  int
	ChunkCount int
	Keywords   []string
	CreatedAt  time.Time
	Pipeline   *AnswerPipeline
}

// DTO converts the handle into its API and persistence view
func (h *PipelineHandle) DTO() *models.DocumentDTO {
	if h == nil {
		return nil
	}
	return &models.DocumentDTO{
		ID:         h.DocumentID,
		Filename:   h.Filename,
		Collection: h.Collection,
		PageCount:  h.PageCount,
		ChunkCount: h.ChunkCount,
		Keywords:   h.Keywords,
		CreatedAt:  h.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DocumentIngestor builds, re-binds and discards pipeline handles
type DocumentIngestor interface {
	Ingest(ctx context.Context, sessionID, filename string, data []byte) (*PipelineHandle, error)
	Restore(ctx context.Context, doc *models.DocumentDTO) (*PipelineHandle, error)
	Discard(ctx context.Context, collection string) error
}

// IngestorOptions configures an Ingestor. Keywords may be nil to skip enrichment.
type IngestorOptions struct {
	Loader           PageLoader
	Chunker          *Chunker
	Keywords         *KeywordExtractor
	NumKeywords      int
	DocumentKeywords int
	Embedder         Embedder
	Store            repositories.VectorRepository
	Generator        Generator
	Template         *PromptTemplate
	TopK             int
	CollectionPrefix string
	Logger           *zap.SugaredLogger
}

// Ingestor runs load -> split -> embed -> store for one uploaded document
// and wires the resulting collection into a fresh AnswerPipeline.
type Ingestor struct {
	opts IngestorOptions
}

// NewIngestor creates an ingestor; every collaborator except Keywords is required
func NewIngestor(opts IngestorOptions) (*Ingestor, error) {
	if opts.Loader == nil || opts.Chunker == nil || opts.Embedder == nil || opts.Store == nil || opts.Generator == nil || opts.Template == nil {
		return nil, configError("new_ingestor", fmt.Errorf("loader, chunker, embedder, store, generator and template are required"))
	}
	if opts.CollectionPrefix == "" {
		opts.CollectionPrefix = "simplebot"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Ingestor{opts: opts}, nil
}

// Ingest processes data into a new collection. On any failure the partially
// written collection is removed and no handle is returned.
func (i *Ingestor) Ingest(ctx context.Context, sessionID, filename string, data []byte) (*PipelineHandle, error) {
	start := time.Now()
	log := i.opts.Logger
	documentID := uuid.New().String()

	pages, err := i.opts.Loader.Load(ctx, data)
	if err != nil {
		return nil, withKind(ErrLoad, "ingest", err)
	}

	chunks := i.opts.Chunker.Split(documentID, pages)
	if len(chunks) == 0 {
		return nil, loadError("ingest", fmt.Errorf("document produced no chunks"))
	}
	for idx := range chunks {
		chunks[idx].Metadata["filename"] = filename
	}
	var keywords []string
	if i.opts.Keywords != nil {
		keywords = i.opts.Keywords.Enrich(chunks, i.opts.NumKeywords, i.opts.DocumentKeywords, log)
	}

	texts := make([]string, len(chunks))
	for idx, c := range chunks {
		texts[idx] = c.Text
	}
	vectors, err := i.opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, withKind(ErrEmbeddingUnavailable, "ingest", err)
	}

	collection := CollectionName(i.opts.CollectionPrefix, sessionID, documentID)
	metadata := map[string]interface{}{
		"document_id": documentID,
		"filename":    filename,
	}
	if len(keywords) > 0 {
		metadata["keywords"] = strings.Join(keywords, ",")
	}
	if err := i.opts.Store.CreateCollection(ctx, collection, metadata); err != nil {
		return nil, vectorStoreError("ingest", err)
	}

	if err := i.opts.Store.StoreChunks(ctx, collection, chunks, vectors); err != nil {
		if dErr := i.Discard(context.WithoutCancel(ctx), collection); dErr != nil {
			log.Warnf("Failed to remove partial collection %s: %v", collection, dErr)
		}
		return nil, vectorStoreError("ingest", err)
	}

	handle := &PipelineHandle{
		DocumentID: documentID,
		Filename:   filename,
		Collection: collection,
		PageCount:  len(pages),
		ChunkCount: len(chunks),
		Keywords:   keywords,
		CreatedAt:  time.Now().UTC(),
		Pipeline:   i.pipelineFor(collection),
	}

	log.Infof("Ingested %s: %d pages, %d chunks into %s in %v",
		filename, handle.PageCount, handle.ChunkCount, collection, time.Since(start))
	return handle, nil
}

// Restore re-binds a previously ingested collection without re-processing the document
func (i *Ingestor) Restore(ctx context.Context, doc *models.DocumentDTO) (*PipelineHandle, error) {
	if doc == nil || doc.Collection == "" {
		return nil, nil
	}

	exists, err := i.opts.Store.CollectionExists(ctx, doc.Collection)
	if err != nil {
		return nil, vectorStoreError("restore", err)
	}
	if !exists {
		return nil, vectorStoreError("restore", repositories.CollectionNotFoundError(doc.Collection))
	}

	createdAt, _ := time.Parse(time.RFC3339, doc.CreatedAt)
	return &PipelineHandle{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Collection: doc.Collection,
		PageCount:  doc.PageCount,
		ChunkCount: doc.ChunkCount,
		Keywords:   doc.Keywords,
		CreatedAt:  createdAt,
		Pipeline:   i.pipelineFor(doc.Collection),
	}, nil
}

// Discard deletes a collection; a collection that is already gone is not an error
func (i *Ingestor) Discard(ctx context.Context, collection string) error {
	if err := i.opts.Store.DeleteCollection(ctx, collection); err != nil && !isNotFound(err) {
		return vectorStoreError("discard", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrCollectionNotFound)
}

func (i *Ingestor) pipelineFor(collection string) *AnswerPipeline {
	retriever := NewRetriever(i.opts.Embedder, i.opts.Store, collection, i.opts.TopK)
	return NewAnswerPipeline(retriever, i.opts.Template, i.opts.Generator, i.opts.Logger)
}

// CollectionName builds "<prefix>_<session>_<document>" from the first 12
// alphanumerics of each ID, which keeps names inside Chroma's 63-char limit.
func CollectionName(prefix, sessionID, documentID string) string {
	return fmt.Sprintf("%s_%s_%s", prefix, shortID(sessionID), shortID(documentID))
}

func shortID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			if b.Len() == 12 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}
