package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusReopened   TicketStatus = "REOPENED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed, TicketStatusReopened:
		return true
	}
	return false
}

// TimelineAction names what a timeline entry records.
type TimelineAction string

const (
	TimelineCreated       TimelineAction = "CREATED"
	TimelineUpdated       TimelineAction = "UPDATED"
	TimelineStatusChanged TimelineAction = "STATUS_CHANGED"
	TimelineAdminComment  TimelineAction = "ADMIN_COMMENT"
)

// TimelineEntry is one append-only record in a ticket's timeline.
type TimelineEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    TimelineAction `json:"action"`
	UserID    string         `json:"user_id"`
	UserRole  Role           `json:"user_role"`
	Comment   *string        `json:"comment,omitempty"`
	Status    *TicketStatus  `json:"status,omitempty"`
}

// NewTimelineEntry is the single constructor for timeline entries.
// Empty comment and status are omitted.
func NewTimelineEntry(action TimelineAction, actor Actor, comment string, status TicketStatus) TimelineEntry {
	entry := TimelineEntry{
		Timestamp: time.Now().UTC(),
		Action:    action,
		UserID:    actor.UserID,
		UserRole:  actor.Role,
	}
	if comment != "" {
		entry.Comment = &comment
	}
	if status != "" {
		entry.Status = &status
	}
	return entry
}

// Ticket is a freelancer support case resolved by the super-admin.
type Ticket struct {
	ID           string
	FreelancerID string
	ClientID     string
	Subject      string
	Description  string
	Status       TicketStatus
	Solution     *string
	Timeline     []TimelineEntry
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
