package domain

import "time"

// ChatSession is the single conversation between an engaged client and freelancer.
type ChatSession struct {
	ID           string
	ClientID     string
	FreelancerID string
	CreatedAt    time.Time
	LastUpdated  time.Time
}

// HasParticipant reports whether userID belongs to the session.
func (s ChatSession) HasParticipant(userID string) bool {
	return userID != "" && (s.ClientID == userID || s.FreelancerID == userID)
}

// Peer returns the other participant.
func (s ChatSession) Peer(userID string) string {
	if s.ClientID == userID {
		return s.FreelancerID
	}
	return s.ClientID
}

// Message is a persisted chat message. SeenBy only grows.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	SenderRole Role
	Body       string
	Timestamp  time.Time
	SeenBy     []string
}

// SeenByUser reports whether userID has read the message.
func (m Message) SeenByUser(userID string) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}
