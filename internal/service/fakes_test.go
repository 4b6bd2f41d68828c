package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/repository"
)

type memUserRepo struct {
	mu        sync.Mutex
	users     map[string]domain.User
	createErr error
	updateErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]domain.User{}}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) UpdateProfile(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	current, ok := r.users[user.ID]
	if !ok || current.Status == domain.UserStatusDeleted {
		return repository.ErrNotFound
	}
	r.users[user.ID] = *user
	return nil
}

func (r *memUserRepo) TransitionStatus(_ context.Context, id string, from []domain.UserStatus, to domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrStaleState
	}
	for _, status := range from {
		if user.Status == status {
			user.Status = to
			r.users[id] = user
			return nil
		}
	}
	return repository.ErrStaleState
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *memUserRepo) GetByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ExternalID == externalID })
}

func (r *memUserRepo) FindRoot(_ context.Context, email string) (*domain.User, error) {
	if user, err := r.find(func(u domain.User) bool { return u.Role == domain.RoleSuperAdmin }); err == nil {
		return user, nil
	}
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *memUserRepo) ListByRole(_ context.Context, role domain.Role, limit, offset int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.User{}
	for _, u := range r.users {
		if u.Role == role && u.Status == domain.UserStatusActive {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	if offset >= len(result) {
		return []domain.User{}, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r *memUserRepo) find(match func(domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			user := u
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) add(role domain.Role, email string) domain.User {
	user := domain.User{
		ID:         uuid.NewString(),
		ExternalID: uuid.NewString(),
		Role:       role,
		Status:     domain.UserStatusActive,
		Name:       "Test User",
		Email:      email,
	}
	r.mu.Lock()
	r.users[user.ID] = user
	r.mu.Unlock()
	return user
}

func (r *memUserRepo) countRole(role domain.Role) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.users {
		if u.Role == role {
			n++
		}
	}
	return n
}

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]domain.Request
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{requests: map[string]domain.Request{}}
}

func (r *memRequestRepo) Create(_ context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// mirrors requests_pending_pair_key
	for _, existing := range r.requests {
		if existing.ClientID == req.ClientID && existing.FreelancerID == req.FreelancerID &&
			existing.Status == domain.RequestStatusPending && req.Status == domain.RequestStatusPending {
			return repository.ErrDuplicate
		}
	}
	req.ID = uuid.NewString()
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	r.requests[req.ID] = *req
	return nil
}

func (r *memRequestRepo) GetByID(_ context.Context, id string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r *memRequestRepo) TransitionStatus(_ context.Context, id string, from, to domain.RequestStatus) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != from {
		return nil, repository.ErrStaleState
	}
	req.Status = to
	req.UpdatedAt = time.Now().UTC()
	r.requests[id] = req
	return &req, nil
}

func (r *memRequestRepo) ListByClient(_ context.Context, clientID string) ([]domain.Request, error) {
	return r.list(func(req domain.Request) bool { return req.ClientID == clientID }), nil
}

func (r *memRequestRepo) ListByFreelancer(_ context.Context, freelancerID string) ([]domain.Request, error) {
	return r.list(func(req domain.Request) bool { return req.FreelancerID == freelancerID }), nil
}

func (r *memRequestRepo) HasAccepted(_ context.Context, clientID, freelancerID string) (bool, error) {
	found := r.list(func(req domain.Request) bool {
		return req.ClientID == clientID && req.FreelancerID == freelancerID && req.Status == domain.RequestStatusAccepted
	})
	return len(found) > 0, nil
}

func (r *memRequestRepo) list(match func(domain.Request) bool) []domain.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.Request{}
	for _, req := range r.requests {
		if match(req) {
			result = append(result, req)
		}
	}
	return result
}

type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: map[string]domain.Ticket{}}
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now().UTC()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	ticket = cloneTicket(ticket)
	return &ticket, nil
}

func (r *memTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.Ticket{}
	for _, ticket := range r.tickets {
		if filter.FreelancerID != nil && ticket.FreelancerID != *filter.FreelancerID {
			continue
		}
		ticket = cloneTicket(ticket)
		if !filter.IncludeTimeline {
			ticket.Timeline = nil
		}
		result = append(result, ticket)
	}
	return result, nil
}

func (r *memTicketRepo) ApplyChange(_ context.Context, change repository.TicketChange) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[change.TicketID]
	switch {
	case !ok:
		return nil, repository.ErrStaleState
	case change.OwnerID != nil && ticket.FreelancerID != *change.OwnerID:
		return nil, repository.ErrStaleState
	case change.ExpectStatus != nil && ticket.Status != *change.ExpectStatus:
		return nil, repository.ErrStaleState
	case change.RejectStatus != nil && ticket.Status == *change.RejectStatus:
		return nil, repository.ErrStaleState
	}
	ticket = cloneTicket(ticket)
	if change.Subject != nil {
		ticket.Subject = *change.Subject
	}
	if change.Description != nil {
		ticket.Description = *change.Description
	}
	if change.Status != nil {
		ticket.Status = *change.Status
	}
	if change.Solution != nil {
		solution := *change.Solution
		ticket.Solution = &solution
	}
	ticket.Timeline = append(ticket.Timeline, change.Entry)
	ticket.UpdatedAt = time.Now().UTC()
	r.tickets[ticket.ID] = ticket
	out := cloneTicket(ticket)
	return &out, nil
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.Timeline = append([]domain.TimelineEntry(nil), t.Timeline...)
	return t
}

type memChatRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.ChatSession
	messages []domain.Message
	creates  int
}

func newMemChatRepo() *memChatRepo {
	return &memChatRepo{sessions: map[string]domain.ChatSession{}}
}

func (r *memChatRepo) CreateSession(_ context.Context, session *domain.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ClientID == session.ClientID && s.FreelancerID == session.FreelancerID {
			return repository.ErrDuplicate
		}
	}
	r.creates++
	session.ID = uuid.NewString()
	session.CreatedAt = time.Now().UTC()
	session.LastUpdated = session.CreatedAt
	r.sessions[session.ID] = *session
	return nil
}

func (r *memChatRepo) GetSession(_ context.Context, id string) (*domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *memChatRepo) GetSessionByPair(_ context.Context, clientID, freelancerID string) (*domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ClientID == clientID && s.FreelancerID == freelancerID {
			session := s
			return &session, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memChatRepo) ListSessions(_ context.Context, userID string) ([]domain.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.ChatSession{}
	for _, s := range r.sessions {
		if s.HasParticipant(userID) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastUpdated.After(result[j].LastUpdated) })
	return result, nil
}

func (r *memChatRepo) AppendMessage(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[msg.ChatID]
	if !ok {
		return repository.ErrNotFound
	}
	msg.ID = uuid.NewString()
	session.LastUpdated = msg.Timestamp
	r.sessions[session.ID] = session
	stored := *msg
	stored.SeenBy = append([]string(nil), msg.SeenBy...)
	r.messages = append(r.messages, stored)
	return nil
}

func (r *memChatRepo) ListMessages(_ context.Context, chatID string, skip, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.Message{}
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].ChatID == chatID {
			result = append(result, r.messages[i])
		}
	}
	if skip >= len(result) {
		return []domain.Message{}, nil
	}
	result = result[skip:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r *memChatRepo) MarkAllSeen(_ context.Context, chatID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.messages {
		if r.messages[i].ChatID == chatID && !r.messages[i].SeenByUser(userID) {
			r.messages[i].SeenBy = append(r.messages[i].SeenBy, userID)
			n++
		}
	}
	return n, nil
}

func (r *memChatRepo) CountUnread(_ context.Context, chatID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ChatID == chatID && !m.SeenByUser(userID) {
			n++
		}
	}
	return n, nil
}

func (r *memChatRepo) seenBy(chatID string) [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := [][]string{}
	for _, m := range r.messages {
		if m.ChatID == chatID {
			result = append(result, append([]string(nil), m.SeenBy...))
		}
	}
	return result
}

type memAuditRepo struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	err     error
}

func (r *memAuditRepo) Create(_ context.Context, record *domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	record.ID = uuid.NewString()
	r.records = append(r.records, *record)
	return nil
}

func (r *memAuditRepo) ListRecent(_ context.Context, limit int) ([]domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.AuditRecord{}
	for i := len(r.records) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.records[i])
	}
	return result, nil
}

// recordingDispatcher keeps every published event.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		result = append(result, e.Type)
	}
	return result
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) VerifyToken(ctx context.Context, token string) (domain.VerifiedIdentity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.VerifiedIdentity), args.Error(1)
}

func (m *mockGateway) Authenticate(ctx context.Context, username, password string) (domain.Tokens, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(domain.Tokens), args.Error(1)
}

func (m *mockGateway) Refresh(ctx context.Context, refreshToken string) (domain.Tokens, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(domain.Tokens), args.Error(1)
}

func (m *mockGateway) CreateIdentity(ctx context.Context, profile domain.IdentityProfile) (string, error) {
	args := m.Called(ctx, profile)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) UpdateIdentity(ctx context.Context, externalID string, profile domain.IdentityProfile) error {
	args := m.Called(ctx, externalID, profile)
	return args.Error(0)
}

func (m *mockGateway) DeleteIdentity(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

func actorOf(u domain.User) domain.Actor {
	return domain.Actor{UserID: u.ID, Role: u.Role, Status: u.Status}
}
