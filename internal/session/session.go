// Package session provides conversation history persistence with PostgreSQL.
//
// A session represents a conversation context containing ordered messages
// exchanged between user and assistant. The [Store] handles persistence;
// the chat service handles conversation logic.
//
// # Transaction Safety
//
// [Store.AddMessages] uses SELECT ... FOR UPDATE to lock the session row,
// preventing race conditions on sequence numbers during concurrent writes.
// If any step fails, the entire transaction rolls back.
//
// # Concurrency
//
// Store is safe for concurrent use. All state lives in PostgreSQL;
// no shared Go-side state exists.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidRole indicates a message carries a role outside user/assistant.
var ErrInvalidRole = errors.New("invalid message role")

// Message roles. The messages table enforces the same set with a CHECK
// constraint.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultHistoryLimit is the default number of messages returned by
// Store.Messages when the caller passes no limit.
const DefaultHistoryLimit int32 = 100

// TitleMaxLength is the maximum rune length of a session title. Callers
// deriving titles from user input truncate against it.
const TitleMaxLength = 50

// Session represents a conversation session.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	ModelName    string    `json:"modelName"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Message is a single conversation turn half. Content is plain text;
// rendering to model message types happens in the chat layer.
type Message struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"sessionId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	SequenceNumber int64     `json:"sequenceNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

// validRole reports whether role is one of the accepted message roles.
func validRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}
