package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ClientID    string `json:"client_id" validate:"required"`
	Subject     string `json:"subject" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=5000"`
}

// UpdateTicketRequest payload. Absent fields are left unchanged.
type UpdateTicketRequest struct {
	Subject     *string `json:"subject" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

// UpdateTicketStatusRequest payload.
type UpdateTicketStatusRequest struct {
	Status domain.TicketStatus `json:"status" validate:"required,oneof=OPEN IN_PROGRESS RESOLVED CLOSED REOPENED"`
}

// AdminRespondRequest payload.
type AdminRespondRequest struct {
	Comment string `json:"comment" validate:"required,max=5000"`
}

// TicketResponse is the public view of a ticket. Timeline is omitted from
// freelancer list views.
type TicketResponse struct {
	ID           string                 `json:"id"`
	FreelancerID string                 `json:"freelancer_id"`
	ClientID     string                 `json:"client_id"`
	Subject      string                 `json:"subject"`
	Description  string                 `json:"description"`
	Status       domain.TicketStatus    `json:"status"`
	Solution     *string                `json:"solution"`
	Timeline     []domain.TimelineEntry `json:"timeline,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           ticket.ID,
		FreelancerID: ticket.FreelancerID,
		ClientID:     ticket.ClientID,
		Subject:      ticket.Subject,
		Description:  ticket.Description,
		Status:       ticket.Status,
		Solution:     ticket.Solution,
		Timeline:     ticket.Timeline,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

// NewTicketList maps a slice of tickets.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}
