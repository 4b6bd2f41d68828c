// Package realtime tracks live chat connections and pushes new messages to them.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

const defaultSendBuffer = 256

// DropRecorder is notified whenever a push is dropped on a full queue.
type DropRecorder interface {
	RecordDroppedMessage()
}

// Client is one live connection. Frames queued on Send are written by the
// connection's writer goroutine; Send is closed when the client goes away.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte

	mu     sync.Mutex
	closed bool

	// chats is guarded by the registry lock.
	chats map[string]struct{}
}

// Queue offers payload without blocking. It reports false when the queue is
// full or the client is gone.
func (c *Client) Queue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Registry maps user_id to its active connection and chat_id to the
// connections subscribed to it. Subscriptions belong to a connection, so
// closing a socket never leaves its chats routed to a newer one.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	chats   map[string]map[*Client]struct{}

	bufferSize int
	drops      DropRecorder
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(bufferSize int, drops DropRecorder, logger *zap.Logger) *Registry {
	if bufferSize <= 0 {
		bufferSize = defaultSendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		clients:    make(map[string]*Client),
		chats:      make(map[string]map[*Client]struct{}),
		bufferSize: bufferSize,
		drops:      drops,
		logger:     logger,
	}
}

// Connect registers a connection for userID. A previous connection of the
// same user is unsubscribed, closed and replaced.
func (r *Registry) Connect(userID string) *Client {
	client := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Send:   make(chan []byte, r.bufferSize),
		chats:  make(map[string]struct{}),
	}

	r.mu.Lock()
	previous := r.clients[userID]
	r.clients[userID] = client
	if previous != nil {
		r.unsubscribeLocked(previous)
	}
	r.mu.Unlock()

	if previous != nil {
		previous.close()
	}
	r.logger.Debug("chat client connected", zap.String("user_id", userID), zap.String("client_id", client.ID))
	return client
}

// Subscribe adds client to the chat's audience. It reports false for a
// client that was already replaced or disconnected.
func (r *Registry) Subscribe(client *Client, chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[client.UserID] != client {
		return false
	}
	members, ok := r.chats[chatID]
	if !ok {
		members = make(map[*Client]struct{})
		r.chats[chatID] = members
	}
	members[client] = struct{}{}
	client.chats[chatID] = struct{}{}
	return true
}

// Disconnect removes the client from every chat it subscribed to, and from
// the user index while it is still the user's current connection. It is safe
// to call more than once and from any exit path.
func (r *Registry) Disconnect(client *Client) {
	if client == nil {
		return
	}
	r.mu.Lock()
	r.unsubscribeLocked(client)
	if current, ok := r.clients[client.UserID]; ok && current == client {
		delete(r.clients, client.UserID)
	}
	r.mu.Unlock()

	client.close()
	r.logger.Debug("chat client disconnected", zap.String("user_id", client.UserID), zap.String("client_id", client.ID))
}

func (r *Registry) unsubscribeLocked(client *Client) {
	for chatID := range client.chats {
		if members, ok := r.chats[chatID]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(r.chats, chatID)
			}
		}
		delete(client.chats, chatID)
	}
}

// Deliver queues payload for every connection subscribed to chatID and
// returns how many were reached. Full queues drop the payload.
func (r *Registry) Deliver(chatID string, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for client := range r.chats[chatID] {
		if client.Queue(payload) {
			delivered++
			continue
		}
		if r.drops != nil {
			r.drops.RecordDroppedMessage()
		}
		r.logger.Warn("chat push dropped",
			zap.String("chat_id", chatID),
			zap.String("user_id", client.UserID))
	}
	return delivered
}

// Broadcast pushes msg to the local subscribers of its chat.
func (r *Registry) Broadcast(_ context.Context, msg domain.Message) error {
	payload, err := NewMessageFrame(msg).Encode()
	if err != nil {
		return err
	}
	r.Deliver(msg.ChatID, payload)
	return nil
}

// Online reports whether userID holds a connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// Subscribers returns the users subscribed to chatID.
func (r *Registry) Subscribers(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.chats[chatID]))
	for client := range r.chats[chatID] {
		result = append(result, client.UserID)
	}
	return result
}
