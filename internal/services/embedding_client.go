package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"simple-bot/internal/config"

	"go.uber.org/zap"
)

// Embedder maps text to fixed-dimension vectors
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// hfFeatureRequest is the body of a Hugging Face feature-extraction call
type hfFeatureRequest struct {
	Inputs  []string         `json:"inputs"`
	Options hfRequestOptions `json:"options"`
}

type hfRequestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// HFEmbedder calls the Hugging Face Inference feature-extraction pipeline
// for a sentence-transformers model. Every failure is ErrEmbeddingUnavailable.
type HFEmbedder struct {
	client    *providerClient
	url       string
	model     string
	batchSize int
	logger    *zap.SugaredLogger
}

// NewHFEmbedder creates an embedder; a missing token is a configuration error
func NewHFEmbedder(cfg config.EmbedderConfig, token string, logger *zap.SugaredLogger) (*HFEmbedder, error) {
	if token == "" {
		return nil, configError("new_embedder", fmt.Errorf("HF_TOKEN is not set"))
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, configError("new_embedder", fmt.Errorf("embedder base_url and model are required"))
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	return &HFEmbedder{
		client:    newProviderClient(token, time.Duration(cfg.TimeoutSecs)*time.Second, cfg.RequestsPerSecond),
		url:       strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Model,
		model:     cfg.Model,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// EmbedDocuments embeds texts in batches and returns one vector per text, in order
func (e *HFEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	dim := 0

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}

		for _, v := range batch {
			if dim == 0 {
				dim = len(v)
			}
			if len(v) == 0 || len(v) != dim {
				return nil, embeddingError("embed_documents", fmt.Errorf("inconsistent embedding dimension: got %d, want %d", len(v), dim))
			}
		}
		vectors = append(vectors, batch...)
	}

	e.logger.Debugf("Embedded %d texts with %s (dim=%d)", len(texts), e.model, dim)
	return vectors, nil
}

// EmbedQuery embeds a single question
func (e *HFEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors[0]) == 0 {
		return nil, embeddingError("embed_query", fmt.Errorf("empty embedding"))
	}
	return vectors[0], nil
}

func (e *HFEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := hfFeatureRequest{
		Inputs:  texts,
		Options: hfRequestOptions{WaitForModel: true},
	}

	resp, err := e.client.makeRequest(ctx, http.MethodPost, e.url, req)
	if err != nil {
		return nil, embeddingError("embed", err)
	}

	var vectors [][]float32
	if err := parseResponse(resp, &vectors); err != nil {
		return nil, embeddingError("embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, embeddingError("embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}

	return vectors, nil
}
