package domain

import "time"

// AuditRecord is an immutable who-did-what-when entry.
type AuditRecord struct {
	ID         string
	EventType  string
	ActorID    string
	ActorRole  Role
	TargetType string
	TargetID   string
	Payload    map[string]any
	RecordedAt time.Time
}
