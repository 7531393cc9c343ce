package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"simple-bot/internal/logger"
	"simple-bot/internal/models"
	"simple-bot/internal/repositories"
	"simple-bot/internal/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainLoader reads uploads as a single page of text
type plainLoader struct{}

func (plainLoader) Load(ctx context.Context, data []byte) ([]models.PageRecord, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, services.NewPipelineError(services.ErrLoad, "load", errors.New("empty"), "")
	}
	return []models.PageRecord{{Page: 1, Text: string(data)}}, nil
}

type constEmbedder struct{ err error }

func (e *constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0}, nil
}

type prefixGenerator struct{ err error }

func (g *prefixGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "answer based on " + prompt, nil
}

type handlerEnv struct {
	router    *mux.Router
	embedder  *constEmbedder
	generator *prefixGenerator
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	return newHandlerEnvWithLimit(t, 1<<20)
}

func newHandlerEnvWithLimit(t *testing.T, maxUploadBytes int64) *handlerEnv {
	t.Helper()

	chunker, err := services.NewChunker(100, 10)
	require.NoError(t, err)
	template, err := services.NewPromptTemplate("{context}|{question}")
	require.NoError(t, err)

	env := &handlerEnv{embedder: &constEmbedder{}, generator: &prefixGenerator{}}
	ingestor, err := services.NewIngestor(services.IngestorOptions{
		Loader:           plainLoader{},
		Chunker:          chunker,
		Keywords:         services.NewKeywordExtractor(),
		NumKeywords:      3,
		DocumentKeywords: 5,
		Embedder:         env.embedder,
		Store:            repositories.NewMemoryVectorRepository(),
		Generator:        env.generator,
		Template:         template,
		TopK:             3,
		Logger:           logger.Nop(),
	})
	require.NoError(t, err)

	manager := services.NewSessionManager(ingestor, repositories.NewMemorySessionRepository(time.Hour), true, logger.Nop())
	h := NewSessionHandler(manager, maxUploadBytes, logger.Nop())

	env.router = mux.NewRouter()
	api := env.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/documents", h.UploadDocument).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", h.PostMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", h.ListMessages).Methods(http.MethodGet)
	return env
}

func (e *handlerEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *handlerEnv) createSession(t *testing.T) string {
	t.Helper()
	rec := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp CreateSessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func uploadRequest(t *testing.T, sessionID, filename, content string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/documents", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func messageRequest(sessionID, message string) *http.Request {
	body := fmt.Sprintf(`{"message": %q}`, message)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+sessionID+"/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestSessionHandler_ChatFlow(t *testing.T) {
	env := newHandlerEnv(t)
	id := env.createSession(t)

	rec := env.do(t, uploadRequest(t, id, "manual.pdf", "the pump must be primed before use"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var doc models.DocumentDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	assert.Equal(t, "manual.pdf", doc.Filename)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Contains(t, doc.Keywords, "pump")

	rec = env.do(t, messageRequest(id, "what must be done first?"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var chat models.ChatResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&chat))
	assert.Equal(t, "success", chat.Status)
	assert.Equal(t, "answer based on the pump must be primed before use|what must be done first?", chat.Message)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var transcript models.TranscriptResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&transcript))
	require.Len(t, transcript.Turns, 2)
	assert.Equal(t, models.RoleUser, transcript.Turns[0].Role)
	assert.Equal(t, models.RoleAssistant, transcript.Turns[1].Role)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, id, info.SessionID)
	assert.Equal(t, 2, info.TurnCount)
	require.NotNil(t, info.Document)
	assert.Equal(t, doc.Collection, info.Document.Collection)
	assert.Equal(t, doc.Keywords, info.Document.Keywords)

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_EmptyTranscriptIsAList(t *testing.T) {
	env := newHandlerEnv(t)
	id := env.createSession(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id+"/messages", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"turns":[]`)
}

func TestSessionHandler_ErrorStatuses(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		env := newHandlerEnv(t)
		rec := env.do(t, messageRequest("nope", "hello"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "session_not_found", decodeError(t, rec).Kind)
	})

	t.Run("question before upload", func(t *testing.T) {
		env := newHandlerEnv(t)
		id := env.createSession(t)
		rec := env.do(t, messageRequest(id, "hello"))
		assert.Equal(t, http.StatusConflict, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, "no_active_pipeline", resp.Kind)
		assert.Equal(t, "Please upload a document first.", resp.Message)
	})

	t.Run("empty question", func(t *testing.T) {
		env := newHandlerEnv(t)
		id := env.createSession(t)
		rec := env.do(t, messageRequest(id, " "))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", decodeError(t, rec).Kind)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newHandlerEnv(t)
		id := env.createSession(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/messages", strings.NewReader("{"))
		rec := env.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unreadable document", func(t *testing.T) {
		env := newHandlerEnv(t)
		id := env.createSession(t)
		rec := env.do(t, uploadRequest(t, id, "blank.pdf", "   "))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "load_error", decodeError(t, rec).Kind)
	})

	t.Run("missing file field", func(t *testing.T) {
		env := newHandlerEnv(t)
		id := env.createSession(t)
		body := &bytes.Buffer{}
		w := multipart.NewWriter(body)
		require.NoError(t, w.WriteField("other", "value"))
		require.NoError(t, w.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/documents", body)
		req.Header.Set("Content-Type", w.FormDataContentType())

		rec := env.do(t, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("embedding provider down", func(t *testing.T) {
		env := newHandlerEnv(t)
		id := env.createSession(t)
		env.embedder.err = errors.New("503")
		rec := env.do(t, uploadRequest(t, id, "doc.pdf", "text"))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "embedding_unavailable", decodeError(t, rec).Kind)
	})

	t.Run("generation failure", func(t *testing.T) {
		env := newHandlerEnv(t)
		id := env.createSession(t)
		require.Equal(t, http.StatusOK, env.do(t, uploadRequest(t, id, "doc.pdf", "text")).Code)
		env.generator.err = errors.New("timeout")
		rec := env.do(t, messageRequest(id, "q"))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "generation_failure", decodeError(t, rec).Kind)
	})
}

func TestSessionHandler_UploadTooLarge(t *testing.T) {
	env := newHandlerEnvWithLimit(t, 1024)
	id := env.createSession(t)

	rec := env.do(t, uploadRequest(t, id, "big.pdf", strings.Repeat("x", 4096)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "File exceeds the upload limit of 1024 bytes", resp.Message)

	rec = env.do(t, uploadRequest(t, id, "small.pdf", "a small manual"))
	assert.Equal(t, http.StatusOK, rec.Code, "uploads under the limit still succeed")

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	require.NotNil(t, info.Document)
	assert.Equal(t, "small.pdf", info.Document.Filename)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &models.ValidationError{Field: "message", Message: "required"}, http.StatusBadRequest},
		{"load", services.NewPipelineError(services.ErrLoad, "op", nil, ""), http.StatusUnprocessableEntity},
		{"no pipeline", services.NoActivePipelineError(), http.StatusConflict},
		{"embedding", services.NewPipelineError(services.ErrEmbeddingUnavailable, "op", nil, ""), http.StatusBadGateway},
		{"vector store", services.NewPipelineError(services.ErrVectorStoreUnavailable, "op", nil, ""), http.StatusBadGateway},
		{"generation", services.NewPipelineError(services.ErrGenerationFailure, "op", nil, ""), http.StatusBadGateway},
		{"session", services.SessionNotFoundError("x"), http.StatusNotFound},
		{"config", services.NewPipelineError(services.ErrConfig, "op", nil, ""), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}
