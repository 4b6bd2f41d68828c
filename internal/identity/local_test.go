package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/domain"
)

func newLocal() *LocalGateway {
	return NewLocalGateway(config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, RefreshTokenTTLMinutes: 10, BcryptCost: 4}, nil)
}

func TestLocalGatewayLifecycle(t *testing.T) {
	ctx := context.Background()
	g := newLocal()

	id, err := g.CreateIdentity(ctx, domain.IdentityProfile{Email: "Ana@Example.com", Password: "pw", Role: domain.RoleClient})
	require.NoError(t, err)

	_, err = g.CreateIdentity(ctx, domain.IdentityProfile{Email: "ana@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrIdentityExists)

	_, err = g.Authenticate(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tokens, err := g.Authenticate(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)

	verified, err := g.VerifyToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, verified.ExternalID)
	assert.NotEmpty(t, verified.SessionID)

	_, err = g.VerifyToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	refreshed, err := g.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	again, err := g.VerifyToken(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, verified.SessionID, again.SessionID)

	require.NoError(t, g.DeleteIdentity(ctx, id))
	require.NoError(t, g.DeleteIdentity(ctx, id))
	_, err = g.VerifyToken(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = g.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLocalGatewayRejectsGarbageToken(t *testing.T) {
	_, err := newLocal().VerifyToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalGatewayUpdateIdentityRekeysEmail(t *testing.T) {
	ctx := context.Background()
	g := newLocal()
	id, err := g.CreateIdentity(ctx, domain.IdentityProfile{Email: "old@example.com", Password: "pw"})
	require.NoError(t, err)
	_, err = g.CreateIdentity(ctx, domain.IdentityProfile{Email: "taken@example.com", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, g.UpdateIdentity(ctx, id, domain.IdentityProfile{Email: "New@Example.com"}))

	_, err = g.Authenticate(ctx, "old@example.com", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	tokens, err := g.Authenticate(ctx, "new@example.com", "pw")
	require.NoError(t, err)
	verified, err := g.VerifyToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", verified.Email)

	assert.ErrorIs(t, g.UpdateIdentity(ctx, id, domain.IdentityProfile{Email: "taken@example.com"}), ErrIdentityExists)
	assert.ErrorIs(t, g.UpdateIdentity(ctx, "missing", domain.IdentityProfile{Email: "x@example.com"}), ErrIdentityNotFound)

	require.NoError(t, g.UpdateIdentity(ctx, id, domain.IdentityProfile{Password: "pw2"}))
	_, err = g.Authenticate(ctx, "new@example.com", "pw2")
	assert.NoError(t, err)
}

func TestLocalGatewaySurvivesRestartWithSharedStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cfg := config.AuthConfig{JWTSecret: "test", AccessTokenTTLMinutes: 5, RefreshTokenTTLMinutes: 10, BcryptCost: 4}

	first := NewLocalGateway(cfg, store)
	id, err := first.CreateIdentity(ctx, domain.IdentityProfile{Email: "root@example.com", Password: "pw"})
	require.NoError(t, err)
	tokens, err := first.Authenticate(ctx, "root@example.com", "pw")
	require.NoError(t, err)

	second := NewLocalGateway(cfg, store)
	_, err = second.Authenticate(ctx, "root@example.com", "pw")
	require.NoError(t, err)
	verified, err := second.VerifyToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, id, verified.ExternalID)
}
