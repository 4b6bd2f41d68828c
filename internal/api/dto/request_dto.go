package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	FreelancerID string `json:"freelancer_id" validate:"required"`
}

// RespondRequest payload. Accept must be present, false rejects.
type RespondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// RequestResponse is the public view of an engagement request.
type RequestResponse struct {
	ID           string               `json:"id"`
	ClientID     string               `json:"client_id"`
	FreelancerID string               `json:"freelancer_id"`
	Status       domain.RequestStatus `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewRequestResponse maps a domain request.
func NewRequestResponse(req *domain.Request) RequestResponse {
	return RequestResponse{
		ID:           req.ID,
		ClientID:     req.ClientID,
		FreelancerID: req.FreelancerID,
		Status:       req.Status,
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
	}
}

// NewRequestList maps a slice of requests.
func NewRequestList(requests []domain.Request) []RequestResponse {
	items := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		items = append(items, NewRequestResponse(&requests[i]))
	}
	return items
}
