package websocket

import (
	"encoding/json"
	"fmt"

	"diffsync-server/internal/domain"
)

type MessageType string

const (
	TypeAdd    MessageType = "add"
	TypePatch  MessageType = "patch"
	TypeDetach MessageType = "detach"
	TypeError  MessageType = "error"
)

// Message is an inbound frame. Content and Edits are decoded by the handler
// once the content type of the server is known.
type Message struct {
	Type       MessageType     `json:"msgType"`
	DocumentID string          `json:"id" validate:"required"`
	ClientID   string          `json:"clientId" validate:"required"`
	Content    json.RawMessage `json:"content,omitempty"`
	Edits      json.RawMessage `json:"edits,omitempty"`
}

// PatchMessage is the outbound form of a domain.PatchMessage.
type PatchMessage[D any] struct {
	Type MessageType `json:"msgType"`
	*domain.PatchMessage[D]
}

type ErrorMessage struct {
	Type   MessageType `json:"msgType"`
	Result string      `json:"result"`
}

func NewPatchMessage[D any](msg *domain.PatchMessage[D]) *PatchMessage[D] {
	return &PatchMessage[D]{
		Type:         TypePatch,
		PatchMessage: msg,
	}
}

func NewErrorMessage(format string, args ...interface{}) *ErrorMessage {
	return &ErrorMessage{
		Type:   TypeError,
		Result: fmt.Sprintf(format, args...),
	}
}

func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
