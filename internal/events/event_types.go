package events

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserCreated EventType = "user_created"
	EventUserUpdated EventType = "user_updated"
	EventUserBanned  EventType = "user_banned"
	EventUserDeleted EventType = "user_deleted"

	EventRequestCreated   EventType = "request_created"
	EventRequestAccepted  EventType = "request_accepted"
	EventRequestRejected  EventType = "request_rejected"
	EventRequestCancelled EventType = "request_cancelled"

	EventTicketCreated        EventType = "ticket_created"
	EventTicketUpdated        EventType = "ticket_updated"
	EventTicketStatusChanged  EventType = "ticket_status_changed"
	EventTicketAdminResponded EventType = "ticket_admin_responded"

	EventChatSessionOpened EventType = "chat_session_opened"
	EventChatMessageSent   EventType = "chat_message_sent"
)

// AllEventTypes lists every type the audit trail records.
var AllEventTypes = []EventType{
	EventUserCreated, EventUserUpdated, EventUserBanned, EventUserDeleted,
	EventRequestCreated, EventRequestAccepted, EventRequestRejected, EventRequestCancelled,
	EventTicketCreated, EventTicketUpdated, EventTicketStatusChanged, EventTicketAdminResponded,
	EventChatSessionOpened, EventChatMessageSent,
}

// Target types.
const (
	TargetUser    = "user"
	TargetRequest = "request"
	TargetTicket  = "ticket"
	TargetChat    = "chat"
)

// Actor encapsulates actor metadata for an event. System actions carry an empty UserID.
type Actor struct {
	UserID string      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// ActorOf converts an authenticated actor.
func ActorOf(a domain.Actor) Actor {
	return Actor{UserID: a.UserID, Role: a.Role}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	TargetType string      `json:"target_type"`
	TargetID   string      `json:"target_id"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// UserPayload payload.
type UserPayload struct {
	Email  string            `json:"email"`
	Role   domain.Role       `json:"role"`
	Status domain.UserStatus `json:"status"`
}

// RequestPayload payload.
type RequestPayload struct {
	ClientID     string               `json:"client_id"`
	FreelancerID string               `json:"freelancer_id"`
	OldStatus    domain.RequestStatus `json:"old_status,omitempty"`
	NewStatus    domain.RequestStatus `json:"new_status"`
}

// TicketPayload payload.
type TicketPayload struct {
	FreelancerID string                `json:"freelancer_id"`
	ClientID     string                `json:"client_id"`
	OldStatus    domain.TicketStatus   `json:"old_status,omitempty"`
	NewStatus    domain.TicketStatus   `json:"new_status"`
	Action       domain.TimelineAction `json:"action"`
	Comment      string                `json:"comment,omitempty"`
}

// ChatPayload payload.
type ChatPayload struct {
	ClientID     string `json:"client_id"`
	FreelancerID string `json:"freelancer_id"`
	MessageID    string `json:"message_id,omitempty"`
	BodyPreview  string `json:"body_preview,omitempty"`
}
