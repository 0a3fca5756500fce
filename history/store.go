//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mock_store.go -package=history

// Package history persists accepted chat messages and serves the window
// replayed to newly connected clients.
package history

import (
	"context"
	"errors"

	"chathub/types"
)

// ErrStorage wraps every backend failure.
var ErrStorage = errors.New("history storage error")

// Store is append-only from the chat core's point of view.
type Store interface {
	Save(ctx context.Context, msg types.ChatMessage) error
	// Recent returns at most limit messages, oldest first.
	Recent(ctx context.Context, limit int) ([]types.ChatMessage, error)
	Close() error
}
