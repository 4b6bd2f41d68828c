package domain

import "time"

// RequestStatus enumerates engagement request states.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusAccepted  RequestStatus = "ACCEPTED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusCancelled RequestStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s RequestStatus) Terminal() bool {
	return s != RequestStatusPending
}

// Request is a client's engagement request to a freelancer.
type Request struct {
	ID           string
	ClientID     string
	FreelancerID string
	Status       RequestStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
