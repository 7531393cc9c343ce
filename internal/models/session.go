package models

// BasicResponse is the generic status payload used by simple endpoints
type BasicResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// SessionResponse describes a chat session and the document bound to it
type SessionResponse struct {
	SessionID string       `json:"session_id"`
	Document  *DocumentDTO `json:"document,omitempty"`
	TurnCount int          `json:"turn_count"`
	CreatedAt string       `json:"created_at"`
}

// ErrorResponse represents a user-visible error
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}
