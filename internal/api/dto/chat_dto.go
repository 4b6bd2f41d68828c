package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// OpenChatRequest payload. Clients and freelancers name the peer; the admin
// names both sides.
type OpenChatRequest struct {
	PeerID       string `json:"peer_id"`
	ClientID     string `json:"client_id"`
	FreelancerID string `json:"freelancer_id"`
}

// SendMessageRequest payload.
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// ChatSessionResponse is the public view of a chat session.
type ChatSessionResponse struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	FreelancerID string    `json:"freelancer_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdated  time.Time `json:"last_updated"`
}

// MessageResponse is the public view of a chat message.
type MessageResponse struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chat_id"`
	SenderID   string      `json:"sender_id"`
	SenderRole domain.Role `json:"sender_role"`
	Body       string      `json:"body"`
	Timestamp  time.Time   `json:"timestamp"`
	SeenBy     []string    `json:"seen_by"`
}

// NewChatSessionResponse maps a domain session.
func NewChatSessionResponse(s *domain.ChatSession) ChatSessionResponse {
	return ChatSessionResponse{
		ID:           s.ID,
		ClientID:     s.ClientID,
		FreelancerID: s.FreelancerID,
		CreatedAt:    s.CreatedAt,
		LastUpdated:  s.LastUpdated,
	}
}

// NewChatSessionList maps a slice of sessions.
func NewChatSessionList(sessions []domain.ChatSession) []ChatSessionResponse {
	items := make([]ChatSessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, NewChatSessionResponse(&sessions[i]))
	}
	return items
}

// NewMessageResponse maps a domain message.
func NewMessageResponse(m *domain.Message) MessageResponse {
	seenBy := m.SeenBy
	if seenBy == nil {
		seenBy = []string{}
	}
	return MessageResponse{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		SenderRole: m.SenderRole,
		Body:       m.Body,
		Timestamp:  m.Timestamp,
		SeenBy:     seenBy,
	}
}

// NewMessageList maps a slice of messages.
func NewMessageList(messages []domain.Message) []MessageResponse {
	items := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, NewMessageResponse(&messages[i]))
	}
	return items
}
