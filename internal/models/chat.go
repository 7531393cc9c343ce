package models

import "time"

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is one of the transcript roles
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single entry of the append-only session transcript
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRequest represents an incoming question for a session
type ChatRequest struct {
	Message string `json:"message"` // The current user message
}

// ChatResponse represents the response sent back to the client
type ChatResponse struct {
	Message string `json:"message"` // The assistant's response or a user-visible error
	Status  string `json:"status"`  // always "success"; failures use ErrorResponse
}

// TranscriptResponse lists every turn recorded for a session
type TranscriptResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}
