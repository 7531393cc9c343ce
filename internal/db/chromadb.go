package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrCollectionNotFound is returned when Chroma answers 404 for a collection
var ErrCollectionNotFound = errors.New("collection not found")

// ChromaDBClient wraps HTTP calls to the ChromaDB v2 API.
// Collection IDs are cached by name; the cache entry is dropped on delete.
type ChromaDBClient struct {
	hostURL    string
	baseURL    string
	httpClient *http.Client
	tenant     string
	database   string

	mu  sync.RWMutex
	ids map[string]string
}

// ChromaDBConfig holds configuration for ChromaDB connection
type ChromaDBConfig struct {
	Host     string
	Port     int
	Tenant   string // default: "default_tenant"
	Database string // default: "default_database"
	Timeout  time.Duration
}

// Collection represents a ChromaDB collection
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QueryResponse represents the response from a query.
// The outer slice has one entry per query embedding.
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// NewChromaDBClient creates a new ChromaDB client with v2 API support
func NewChromaDBClient(config ChromaDBConfig) *ChromaDBClient {
	if config.Tenant == "" {
		config.Tenant = "default_tenant"
	}
	if config.Database == "" {
		config.Database = "default_database"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	hostURL := fmt.Sprintf("http://%s:%d", config.Host, config.Port)
	return newChromaDBClient(hostURL, config)
}

func newChromaDBClient(hostURL string, config ChromaDBConfig) *ChromaDBClient {
	// ChromaDB v2 API uses tenant and database in the path
	baseURL := fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s",
		hostURL, url.PathEscape(config.Tenant), url.PathEscape(config.Database))

	return &ChromaDBClient{
		hostURL: hostURL,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tenant:   config.Tenant,
		database: config.Database,
		ids:      make(map[string]string),
	}
}

// do sends payload as JSON and decodes the response into out when out is non-nil.
// Any status outside okStatuses is an error; 404 wraps ErrCollectionNotFound.
func (c *ChromaDBClient) do(ctx context.Context, method, endpoint string, payload, out interface{}, okStatuses ...int) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if !statusIn(resp.StatusCode, okStatuses) {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrCollectionNotFound, string(respBody))
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusIn(code int, ok []int) bool {
	if len(ok) == 0 {
		return code == http.StatusOK
	}
	for _, s := range ok {
		if code == s {
			return true
		}
	}
	return false
}

// Heartbeat checks if ChromaDB is alive
func (c *ChromaDBClient) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, c.hostURL+"/api/v2/heartbeat", nil, nil); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	return nil
}

// ListCollections returns all collections of the configured tenant and database
func (c *ChromaDBClient) ListCollections(ctx context.Context) ([]Collection, error) {
	var collections []Collection
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/collections", nil, &collections); err != nil {
		return nil, fmt.Errorf("list collections failed: %w", err)
	}
	return collections, nil
}

// CreateCollection creates a new collection; nil metadata selects cosine space
func (c *ChromaDBClient) CreateCollection(ctx context.Context, name string, metadata map[string]interface{}) (*Collection, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	if _, ok := metadata["hnsw:space"]; !ok {
		metadata["hnsw:space"] = "cosine"
	}

	payload := map[string]interface{}{
		"name":     name,
		"metadata": metadata,
	}

	var collection Collection
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/collections", payload, &collection, http.StatusOK, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("create collection %s failed: %w", name, err)
	}

	c.remember(name, collection.ID)
	return &collection, nil
}

// GetCollection retrieves a collection by name
func (c *ChromaDBClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var collection Collection
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/collections/"+url.PathEscape(name), nil, &collection); err != nil {
		return nil, fmt.Errorf("get collection %s failed: %w", name, err)
	}

	c.remember(name, collection.ID)
	return &collection, nil
}

// DeleteCollection deletes a collection by name
func (c *ChromaDBClient) DeleteCollection(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, c.baseURL+"/collections/"+url.PathEscape(name), nil, nil, http.StatusOK, http.StatusNoContent)

	c.mu.Lock()
	delete(c.ids, name)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("delete collection %s failed: %w", name, err)
	}
	return nil
}

// CountCollection returns the number of records in a collection
func (c *ChromaDBClient) CountCollection(ctx context.Context, name string) (int, error) {
	id, err := c.collectionID(ctx, name)
	if err != nil {
		return 0, err
	}

	var count int
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s/count", c.baseURL, id), nil, &count); err != nil {
		return 0, fmt.Errorf("count collection %s failed: %w", name, err)
	}
	return count, nil
}

// AddDocuments adds records to a collection. All slices must have the same length.
func (c *ChromaDBClient) AddDocuments(ctx context.Context, collectionName string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	if len(ids) != len(documents) || len(ids) != len(embeddings) || (metadatas != nil && len(ids) != len(metadatas)) {
		return fmt.Errorf("add documents: mismatched lengths ids=%d documents=%d embeddings=%d metadatas=%d",
			len(ids), len(documents), len(embeddings), len(metadatas))
	}

	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
	}
	if metadatas != nil {
		payload["metadatas"] = metadatas
	}

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/add", c.baseURL, id), payload, nil, http.StatusOK, http.StatusCreated); err != nil {
		return fmt.Errorf("add documents to %s failed: %w", collectionName, err)
	}
	return nil
}

// Query returns the nResults nearest records for each query embedding
func (c *ChromaDBClient) Query(ctx context.Context, collectionName string, queryEmbeddings [][]float32, nResults int) (*QueryResponse, error) {
	id, err := c.collectionID(ctx, collectionName)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"query_embeddings": queryEmbeddings,
		"n_results":        nResults,
		"include":          []string{"documents", "metadatas", "distances"},
	}

	var queryResp QueryResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/query", c.baseURL, id), payload, &queryResp); err != nil {
		return nil, fmt.Errorf("query %s failed: %w", collectionName, err)
	}
	return &queryResp, nil
}

// Close closes the HTTP client connections
func (c *ChromaDBClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *ChromaDBClient) remember(name, id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.ids[name] = id
	c.mu.Unlock()
}

func (c *ChromaDBClient) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	id, ok := c.ids[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	collection, err := c.GetCollection(ctx, name)
	if err != nil {
		return "", err
	}
	return collection.ID, nil
}
