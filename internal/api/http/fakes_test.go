package http

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/repository"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func (r *memUsers) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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

func (r *memUsers) UpdateProfile(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = *user
	return nil
}

func (r *memUsers) TransitionStatus(_ context.Context, id string, from []domain.UserStatus, to domain.UserStatus) error {
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

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ID == id })
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *memUsers) GetByExternalID(_ context.Context, externalID string) (*domain.User, error) {
	return r.find(func(u domain.User) bool { return u.ExternalID == externalID })
}

func (r *memUsers) FindRoot(_ context.Context, email string) (*domain.User, error) {
	if user, err := r.find(func(u domain.User) bool { return u.Role == domain.RoleSuperAdmin }); err == nil {
		return user, nil
	}
	return r.find(func(u domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *memUsers) ListByRole(_ context.Context, role domain.Role, _, _ int) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []domain.User{}
	for _, u := range r.users {
		if u.Role == role && u.Status == domain.UserStatusActive {
			result = append(result, u)
		}
	}
	return result, nil
}

func (r *memUsers) find(match func(domain.User) bool) (*domain.User, error) {
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

type memRequests struct {
	mu       sync.Mutex
	requests map[string]domain.Request
}

func (r *memRequests) Create(_ context.Context, req *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.ClientID == req.ClientID && existing.FreelancerID == req.FreelancerID &&
			existing.Status == domain.RequestStatusPending {
			return repository.ErrDuplicate
		}
	}
	req.ID = uuid.NewString()
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	r.requests[req.ID] = *req
	return nil
}

func (r *memRequests) GetByID(_ context.Context, id string) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r *memRequests) TransitionStatus(_ context.Context, id string, from, to domain.RequestStatus) (*domain.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.Status != from {
		return nil, repository.ErrStaleState
	}
	req.Status = to
	r.requests[id] = req
	return &req, nil
}

func (r *memRequests) ListByClient(_ context.Context, clientID string) ([]domain.Request, error) {
	return r.list(func(req domain.Request) bool { return req.ClientID == clientID }), nil
}

func (r *memRequests) ListByFreelancer(_ context.Context, freelancerID string) ([]domain.Request, error) {
	return r.list(func(req domain.Request) bool { return req.FreelancerID == freelancerID }), nil
}

func (r *memRequests) HasAccepted(_ context.Context, clientID, freelancerID string) (bool, error) {
	return len(r.list(func(req domain.Request) bool {
		return req.ClientID == clientID && req.FreelancerID == freelancerID && req.Status == domain.RequestStatusAccepted
	})) > 0, nil
}

func (r *memRequests) list(match func(domain.Request) bool) []domain.Request {
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
