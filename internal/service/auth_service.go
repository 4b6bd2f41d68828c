package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/identity"
	"github.com/spec-kit/marketplace-service/internal/repository"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// AuthService turns credentials into tokens and tokens into actors.
type AuthService struct {
	users   repository.UserRepository
	gateway identity.Gateway
	logger  *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Gateway  identity.Gateway
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{users: deps.UserRepo, gateway: deps.Gateway, logger: logger}
}

// Login exchanges username and password for provider tokens. Banned and
// deleted users are refused even if the provider still knows them.
func (s *AuthService) Login(ctx context.Context, username, password string) (domain.Tokens, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.Tokens{}, apperrors.NewValidationError("username and password are required", nil)
	}

	user, err := s.users.GetByEmail(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Tokens{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return domain.Tokens{}, err
	}
	if err := checkStatus(user); err != nil {
		return domain.Tokens{}, err
	}

	tokens, err := s.gateway.Authenticate(ctx, username, password)
	if err != nil {
		return domain.Tokens{}, gatewayError(err)
	}
	s.logger.Info("login succeeded", zap.String("user_id", user.ID))
	return tokens, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.Tokens, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return domain.Tokens{}, apperrors.NewValidationError("refresh_token is required", nil)
	}
	tokens, err := s.gateway.Refresh(ctx, refreshToken)
	if err != nil {
		return domain.Tokens{}, gatewayError(err)
	}
	return tokens, nil
}

// Authenticate verifies an access token and resolves the actor from the
// directory, which is authoritative for role and status.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Actor, error) {
	if token == "" {
		return domain.Actor{}, apperrors.NewUnauthorized("missing token")
	}
	verified, err := s.gateway.VerifyToken(ctx, token)
	if err != nil {
		return domain.Actor{}, gatewayError(err)
	}

	user, err := s.users.GetByExternalID(ctx, verified.ExternalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Actor{}, apperrors.NewUnauthorized("unknown user")
		}
		return domain.Actor{}, err
	}
	if err := checkStatus(user); err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{
		UserID:    user.ID,
		Role:      user.Role,
		Status:    user.Status,
		SessionID: verified.SessionID,
	}, nil
}

func checkStatus(user *domain.User) error {
	switch user.Status {
	case domain.UserStatusActive:
		return nil
	case domain.UserStatusBanned:
		return apperrors.NewForbidden("user is banned")
	default:
		return apperrors.NewUnauthorized("unknown user")
	}
}
