package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/marketplace-service/internal/auth"
	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/domain"
)

// LocalGateway is an in-process identity provider. Credentials are bcrypt
// hashes kept in a LocalStore; tokens are HS256 signed by the auth TokenManager.
type LocalGateway struct {
	tokens     *auth.TokenManager
	bcryptCost int
	store      LocalStore
}

// NewLocalGateway builds the gateway. A nil store keeps identities in memory.
func NewLocalGateway(cfg config.AuthConfig, store LocalStore) *LocalGateway {
	if store == nil {
		store = NewMemoryStore()
	}
	return &LocalGateway{
		tokens:     auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes, cfg.RefreshTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		store:      store,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (g *LocalGateway) CreateIdentity(ctx context.Context, profile domain.IdentityProfile) (string, error) {
	hash, err := auth.HashPassword(profile.Password, g.bcryptCost)
	if err != nil {
		return "", err
	}
	ident := &LocalIdentity{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(profile.Email),
		PasswordHash: hash,
		Role:         profile.Role,
	}
	if err := g.store.Create(ctx, ident); err != nil {
		return "", err
	}
	return ident.ID, nil
}

func (g *LocalGateway) UpdateIdentity(ctx context.Context, externalID string, profile domain.IdentityProfile) error {
	ident, err := g.store.GetByID(ctx, externalID)
	if err != nil {
		return err
	}
	if email := normalizeEmail(profile.Email); email != "" {
		ident.Email = email
	}
	if profile.Password != "" {
		hash, err := auth.HashPassword(profile.Password, g.bcryptCost)
		if err != nil {
			return err
		}
		ident.PasswordHash = hash
	}
	return g.store.Update(ctx, ident)
}

func (g *LocalGateway) DeleteIdentity(ctx context.Context, externalID string) error {
	return g.store.Delete(ctx, externalID)
}

func (g *LocalGateway) Authenticate(ctx context.Context, username, password string) (domain.Tokens, error) {
	ident, err := g.store.GetByEmail(ctx, normalizeEmail(username))
	if errors.Is(err, ErrIdentityNotFound) {
		return domain.Tokens{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Tokens{}, err
	}
	if auth.ComparePassword(ident.PasswordHash, password) != nil {
		return domain.Tokens{}, ErrInvalidCredentials
	}
	return g.issue(ident.ID, uuid.NewString())
}

func (g *LocalGateway) Refresh(ctx context.Context, refreshToken string) (domain.Tokens, error) {
	claims, err := g.tokens.ParseToken(refreshToken, auth.TokenUseRefresh)
	if err != nil {
		return domain.Tokens{}, ErrInvalidCredentials
	}
	if _, err := g.store.GetByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return domain.Tokens{}, ErrInvalidCredentials
		}
		return domain.Tokens{}, err
	}
	return g.issue(claims.Subject, claims.SessionID)
}

func (g *LocalGateway) VerifyToken(ctx context.Context, token string) (domain.VerifiedIdentity, error) {
	claims, err := g.tokens.ParseToken(token, auth.TokenUseAccess)
	if err != nil {
		return domain.VerifiedIdentity{}, ErrInvalidToken
	}
	ident, err := g.store.GetByID(ctx, claims.Subject)
	if errors.Is(err, ErrIdentityNotFound) {
		return domain.VerifiedIdentity{}, ErrInvalidToken
	}
	if err != nil {
		return domain.VerifiedIdentity{}, err
	}
	return domain.VerifiedIdentity{ExternalID: ident.ID, SessionID: claims.SessionID, Email: ident.Email}, nil
}

func (g *LocalGateway) issue(subject, session string) (domain.Tokens, error) {
	access, accessExp, err := g.tokens.GenerateToken(subject, session, auth.TokenUseAccess)
	if err != nil {
		return domain.Tokens{}, err
	}
	refresh, refreshExp, err := g.tokens.GenerateToken(subject, session, auth.TokenUseRefresh)
	if err != nil {
		return domain.Tokens{}, err
	}
	return domain.Tokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}
