package types

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is the validated unit that is persisted and broadcast.
type ChatMessage struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// InboundPayload is what a client sends. Username is client-claimed and
// never used.
type InboundPayload struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}
