package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"simple-bot/internal/models"
	"simple-bot/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SessionHandler handles HTTP requests for chat sessions
type SessionHandler struct {
	sessions       *services.SessionManager
	maxUploadBytes int64
	logger         *zap.SugaredLogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionManager, maxUploadBytes int64, logger *zap.SugaredLogger) *SessionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &SessionHandler{
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// CreateSessionResponse is returned when a session is opened
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSession opens a new chat session
// @Summary Create a session
// @Description Open a new chat session with no document bound to it
// @Tags sessions
// @Produce json
// @Success 201 {object} CreateSessionResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		h.sendPipelineError(w, err)
		return
	}
	h.sendJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: s.ID()})
}

// GetSession describes a session
// @Summary Get a session
// @Description Get the active document and turn count of a session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	info, err := s.Info(r.Context())
	if err != nil {
		h.sendPipelineError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, info)
}

// DeleteSession closes a session and destroys its transcript
// @Summary Delete a session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.sessions.Close(r.Context(), id); err != nil {
		h.sendPipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadDocument processes a PDF and binds it to the session
// @Summary Upload a document
// @Description Upload a PDF; it replaces any document previously bound to the session
// @Tags sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "PDF file"
// @Success 200 {object} models.DocumentDTO
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/sessions/{id}/documents [post]
func (h *SessionHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.sendError(w, http.StatusRequestEntityTooLarge, "", fmt.Sprintf("File exceeds the upload limit of %d bytes", tooLarge.Limit))
			return
		}
		h.logger.Warnf("Failed to parse form: %v", err)
		h.sendError(w, http.StatusBadRequest, "", "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "", "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "", "Failed to read uploaded file")
		return
	}

	handle, err := s.OnUpload(r.Context(), header.Filename, data)
	if err != nil {
		h.sendPipelineError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, handle.DTO())
}

// PostMessage asks a question about the session's document
// @Summary Ask a question
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body models.ChatRequest true "Question"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/sessions/{id}/messages [post]
func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "", "Invalid request body")
		return
	}

	answer, err := s.OnQuestion(r.Context(), req.Message)
	if err != nil {
		h.sendPipelineError(w, err)
		return
	}
	h.sendJSON(w, http.StatusOK, models.ChatResponse{Message: answer, Status: "success"})
}

// ListMessages returns the session transcript
// @Summary Get the transcript
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.TranscriptResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/sessions/{id}/messages [get]
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	turns, err := s.Transcript(r.Context())
	if err != nil {
		h.sendPipelineError(w, err)
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}
	h.sendJSON(w, http.StatusOK, models.TranscriptResponse{SessionID: s.ID(), Turns: turns})
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*services.SessionController, bool) {
	s, err := h.sessions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendPipelineError(w, err)
		return nil, false
	}
	return s, true
}

// StatusForError maps an error kind to the HTTP status reported to clients
func StatusForError(err error) int {
	var vErr *models.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrLoad):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNoActivePipeline):
		return http.StatusConflict
	case errors.Is(err, services.ErrEmbeddingUnavailable),
		errors.Is(err, services.ErrVectorStoreUnavailable),
		errors.Is(err, services.ErrGenerationFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *SessionHandler) sendPipelineError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("Request failed: %v", err)
	} else {
		h.logger.Infof("Request rejected: %v", err)
	}

	kind := services.ErrorKind(err)
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		kind = "validation_error"
	}
	h.sendError(w, status, kind, err.Error())
}

func (h *SessionHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data, h.logger)
}

func (h *SessionHandler) sendError(w http.ResponseWriter, status int, kind, message string) {
	h.sendJSON(w, status, models.ErrorResponse{
		Error:   http.StatusText(status),
		Kind:    kind,
		Message: message,
	})
}
