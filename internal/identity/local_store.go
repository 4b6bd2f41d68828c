package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// LocalIdentity is one credential held by the local provider.
type LocalIdentity struct {
	ID           string
	Email        string
	PasswordHash string
	Role         domain.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LocalStore keeps local identities. Implementations report
// ErrIdentityNotFound for unknown ids or emails and ErrIdentityExists when
// an email is already taken.
type LocalStore interface {
	Create(ctx context.Context, ident *LocalIdentity) error
	GetByID(ctx context.Context, id string) (*LocalIdentity, error)
	GetByEmail(ctx context.Context, email string) (*LocalIdentity, error)
	Update(ctx context.Context, ident *LocalIdentity) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is a LocalStore that forgets everything on restart. Tests use it.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]LocalIdentity
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]LocalIdentity),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, ident *LocalIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(ident.Email)
	if _, exists := s.byEmail[email]; exists {
		return ErrIdentityExists
	}
	now := time.Now().UTC()
	ident.CreatedAt, ident.UpdatedAt = now, now
	s.byID[ident.ID] = *ident
	s.byEmail[email] = ident.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*LocalIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.byID[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return &ident, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*LocalIdentity, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *MemoryStore) Update(_ context.Context, ident *LocalIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[ident.ID]
	if !ok {
		return ErrIdentityNotFound
	}
	email := strings.ToLower(ident.Email)
	if owner, taken := s.byEmail[email]; taken && owner != ident.ID {
		return ErrIdentityExists
	}
	delete(s.byEmail, strings.ToLower(current.Email))
	ident.CreatedAt = current.CreatedAt
	ident.UpdatedAt = time.Now().UTC()
	s.byID[ident.ID] = *ident
	s.byEmail[email] = ident.ID
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ident, ok := s.byID[id]; ok {
		delete(s.byEmail, strings.ToLower(ident.Email))
		delete(s.byID, id)
	}
	return nil
}
