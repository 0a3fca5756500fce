package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxMessageSize caps the JSON encoding of a ChatMessage.
const MaxMessageSize = 1 * 1024

var (
	ErrEmptyBody       = errors.New("empty message body")
	ErrMessageTooLarge = errors.New("message too large")
)

// ParseInbound decodes a raw client frame. Anything that is not a JSON
// object carrying a non-blank string "content" is reported as ErrEmptyBody.
func ParseInbound(raw string) (InboundPayload, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return InboundPayload{}, ErrEmptyBody
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		return InboundPayload{}, ErrEmptyBody
	}

	var payload InboundPayload
	if v, ok := fields["content"]; !ok || json.Unmarshal(v, &payload.Content) != nil {
		return InboundPayload{}, ErrEmptyBody
	}
	if strings.TrimSpace(payload.Content) == "" {
		return InboundPayload{}, ErrEmptyBody
	}
	// the claimed name is decoded only so it can be logged; a wrong type is fine
	if v, ok := fields["username"]; ok {
		_ = json.Unmarshal(v, &payload.Username)
	}

	return payload, nil
}

// NewChatMessage assigns an id and timestamp and then enforces
// MaxMessageSize on the encoded form.
func NewChatMessage(username, body string, now time.Time) (ChatMessage, error) {
	msg := ChatMessage{
		ID:       uuid.New(),
		Username: username,
		Body:     body,
		SentAt:   now.UTC(),
	}

	size, err := msg.Size()
	if err != nil {
		return ChatMessage{}, fmt.Errorf("measure message: %w", err)
	}
	if size > MaxMessageSize {
		return ChatMessage{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrMessageTooLarge, size, MaxMessageSize)
	}
	return msg, nil
}

// ToChatMessage builds the message the server will broadcast for this
// payload under the server-derived username.
func (p InboundPayload) ToChatMessage(username string, now time.Time) (ChatMessage, error) {
	return NewChatMessage(username, p.Content, now)
}

// Encode writes the wire form. HTML characters are left unescaped so the
// size bound counts the body as sent.
func (m ChatMessage) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (m ChatMessage) Size() (int, error) {
	raw, err := m.Encode()
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}
