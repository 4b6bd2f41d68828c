package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/identity"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

func TestAuthServiceLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := newMemUserRepo()
	gateway := newLocalGateway()
	users := newUserService(t, repo, gateway, nil)
	auth := NewAuthService(AuthDependencies{UserRepo: repo, Gateway: gateway})

	user, err := users.Create(ctx, CreateUserInput{Name: "Ana", Email: "ana@example.com", Password: "pw", Role: domain.RoleFreelancer})
	require.NoError(t, err)

	_, err = auth.Login(ctx, "ana@example.com", "wrong")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))

	_, err = auth.Login(ctx, "nobody@example.com", "pw")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))

	tokens, err := auth.Login(ctx, "ANA@example.com", "pw")
	require.NoError(t, err)

	actor, err := auth.Authenticate(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.UserID)
	assert.Equal(t, domain.RoleFreelancer, actor.Role)
	assert.NotEmpty(t, actor.SessionID)

	refreshed, err := auth.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = auth.Authenticate(ctx, "garbage")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}

func TestAuthServiceRejectsBannedAndDeleted(t *testing.T) {
	ctx := context.Background()
	repo := newMemUserRepo()
	banned := repo.add(domain.RoleClient, "b@example.com")
	deleted := repo.add(domain.RoleClient, "d@example.com")
	require.NoError(t, repo.TransitionStatus(ctx, banned.ID, []domain.UserStatus{domain.UserStatusActive}, domain.UserStatusBanned))
	require.NoError(t, repo.TransitionStatus(ctx, deleted.ID, []domain.UserStatus{domain.UserStatusActive}, domain.UserStatusDeleted))

	gateway := new(mockGateway)
	gateway.On("VerifyToken", mock.Anything, "banned-token").
		Return(domain.VerifiedIdentity{ExternalID: banned.ExternalID}, nil)
	gateway.On("VerifyToken", mock.Anything, "deleted-token").
		Return(domain.VerifiedIdentity{ExternalID: deleted.ExternalID}, nil)

	auth := NewAuthService(AuthDependencies{UserRepo: repo, Gateway: gateway})

	_, err := auth.Authenticate(ctx, "banned-token")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	_, err = auth.Authenticate(ctx, "deleted-token")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))

	_, err = auth.Login(ctx, "b@example.com", "pw")
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
	gateway.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthServiceGatewayOutage(t *testing.T) {
	gateway := new(mockGateway)
	gateway.On("Refresh", mock.Anything, "rt").Return(domain.Tokens{}, errors.New("dial tcp: refused"))
	gateway.On("VerifyToken", mock.Anything, "expired").Return(domain.VerifiedIdentity{}, identity.ErrInvalidToken)

	auth := NewAuthService(AuthDependencies{UserRepo: newMemUserRepo(), Gateway: gateway})

	_, err := auth.Refresh(context.Background(), "rt")
	assert.True(t, apperrors.IsCode(err, "UPSTREAM_UNAVAILABLE"))
	envelope := apperrors.Failure(err)
	assert.Empty(t, envelope.Error.Details)
	assert.NotContains(t, envelope.Message, "refused")

	_, err = auth.Authenticate(context.Background(), "expired")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}
