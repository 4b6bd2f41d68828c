package realtime

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// Frame types pushed to websocket clients.
const (
	FrameMessage = "message"
	FrameError   = "error"
	FramePing    = "ping"
)

// Frame is the JSON document written to a chat socket.
type Frame struct {
	Type    string        `json:"type"`
	ChatID  string        `json:"chat_id,omitempty"`
	Message *MessageFrame `json:"message,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// MessageFrame is the wire form of a chat message.
type MessageFrame struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chat_id"`
	SenderID   string      `json:"sender_id"`
	SenderRole domain.Role `json:"sender_role"`
	Body       string      `json:"body"`
	Timestamp  time.Time   `json:"timestamp"`
	SeenBy     []string    `json:"seen_by"`
}

// NewMessageFrame wraps a stored message.
func NewMessageFrame(msg domain.Message) Frame {
	seenBy := msg.SeenBy
	if seenBy == nil {
		seenBy = []string{}
	}
	return Frame{
		Type:   FrameMessage,
		ChatID: msg.ChatID,
		Message: &MessageFrame{
			ID:         msg.ID,
			ChatID:     msg.ChatID,
			SenderID:   msg.SenderID,
			SenderRole: msg.SenderRole,
			Body:       msg.Body,
			Timestamp:  msg.Timestamp,
			SeenBy:     seenBy,
		},
	}
}

// Encode renders the frame.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
