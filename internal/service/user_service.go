package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/identity"
	"github.com/spec-kit/marketplace-service/internal/policy"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/pkg/validator"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

const compensationTimeout = 10 * time.Second

// UserService is the user directory: the source of truth for role and status.
type UserService struct {
	publisher
	users   repository.UserRepository
	gateway identity.Gateway
	policy  *policy.Policy
	root    config.BootstrapConfig
	logger  *zap.Logger
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	Gateway    identity.Gateway
	Policy     *policy.Policy
	Dispatcher events.Dispatcher
	Root       config.BootstrapConfig
	Logger     *zap.Logger
}

// CreateUserInput describes a signup.
type CreateUserInput struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	Role        domain.Role
	PhotoID     *string
}

// ProfilePatch lists self-editable fields. Nil fields are left unchanged.
type ProfilePatch struct {
	Name        *string
	Email       *string
	PhoneNumber *string
	PhotoID     *string
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		publisher: publisher{dispatcher: deps.Dispatcher},
		users:     deps.UserRepo,
		gateway:   deps.Gateway,
		policy:    deps.Policy,
		root:      deps.Root,
		logger:    logger,
	}
}

// Create registers a client or freelancer. The super-admin role can only be
// created by BootstrapRootUser.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	switch input.Role {
	case domain.RoleClient, domain.RoleFreelancer:
	case domain.RoleSuperAdmin:
		return nil, apperrors.NewForbidden("cannot register a super admin")
	default:
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": input.Role})
	}
	return s.create(ctx, input, domain.RegistrationSelf)
}

// create provisions the external identity, then the directory entry. If the
// directory write fails the external identity is deleted once; a failed
// rollback is logged and the original error returned.
func (s *UserService) create(ctx context.Context, input CreateUserInput, registration domain.RegistrationType) (*domain.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if err := validateSignup(input); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.NewConflict("Email already in use", map[string]any{"email": input.Email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	first, last := splitName(input.Name)
	externalID, err := s.gateway.CreateIdentity(ctx, domain.IdentityProfile{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: first,
		LastName:  last,
		Role:      input.Role,
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	user := &domain.User{
		ExternalID:       externalID,
		Role:             input.Role,
		Status:           domain.UserStatusActive,
		Name:             input.Name,
		Email:            input.Email,
		PhoneNumber:      strings.TrimSpace(input.PhoneNumber),
		PhotoID:          input.PhotoID,
		RegistrationType: registration,
	}
	if err := s.users.Create(ctx, user); err != nil {
		s.compensateIdentity(ctx, externalID, err)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("Email already in use", map[string]any{"email": input.Email})
		}
		return nil, err
	}

	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("registration", string(registration)))
	s.publishEvent(ctx, events.Event{
		Type:       events.EventUserCreated,
		TargetType: events.TargetUser,
		TargetID:   user.ID,
		Actor:      events.Actor{UserID: user.ID, Role: user.Role},
		Payload:    events.UserPayload{Email: user.Email, Role: user.Role, Status: user.Status},
	})
	return user, nil
}

func (s *UserService) compensateIdentity(ctx context.Context, externalID string, cause error) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.gateway.DeleteIdentity(rollbackCtx, externalID); err != nil {
		s.logger.Error("identity rollback failed",
			zap.String("external_id", externalID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.logger.Warn("identity rolled back after directory failure",
		zap.String("external_id", externalID),
		zap.Error(cause))
}

func (s *UserService) restoreIdentity(ctx context.Context, previous *domain.User, cause error) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.gateway.UpdateIdentity(rollbackCtx, previous.ExternalID, identityProfile(previous)); err != nil {
		s.logger.Error("identity restore failed",
			zap.String("external_id", previous.ExternalID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.logger.Warn("identity restored after directory failure",
		zap.String("external_id", previous.ExternalID),
		zap.Error(cause))
}

func identityProfile(user *domain.User) domain.IdentityProfile {
	first, last := splitName(user.Name)
	return domain.IdentityProfile{Email: user.Email, FirstName: first, LastName: last, Role: user.Role}
}

// BootstrapRootUser returns the existing super-admin, or the user holding the
// configured root email, and creates the super-admin only when neither exists.
func (s *UserService) BootstrapRootUser(ctx context.Context) (*domain.User, error) {
	existing, err := s.users.FindRoot(ctx, s.root.Email)
	if err == nil {
		s.logger.Info("root user present", zap.String("user_id", existing.ID))
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user, err := s.create(ctx, CreateUserInput{
		Name:        s.root.Name,
		Email:       s.root.Email,
		Password:    s.root.Password,
		PhoneNumber: s.root.Phone,
		Role:        domain.RoleSuperAdmin,
	}, domain.RegistrationAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("root user created", zap.String("user_id", user.ID))
	return user, nil
}

// Me returns the caller's own record.
func (s *UserService) Me(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	if err := s.policy.Require(policy.UserMe, actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user", actor.UserID)
	}
	return user, nil
}

// Get returns any user's profile.
func (s *UserService) Get(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error) {
	if err := s.policy.Require(policy.UserGetProfile, actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user", userID)
	}
	return user, nil
}

// ListFreelancers returns active freelancers.
func (s *UserService) ListFreelancers(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.User, error) {
	if err := s.policy.Require(policy.UserListFreelancers, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.users.ListByRole(ctx, domain.RoleFreelancer, limit, offset)
}

// UpdateProfile edits the caller's own profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, actor domain.Actor, patch ProfilePatch) (*domain.User, error) {
	if err := s.policy.Require(policy.UserUpdateSelf, actor); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user", actor.UserID)
	}

	previous := *user
	changed := false
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name cannot be empty", nil)
		}
		changed = changed || name != user.Name
		user.Name = name
	}
	if patch.PhoneNumber != nil {
		phone := strings.TrimSpace(*patch.PhoneNumber)
		changed = changed || phone != user.PhoneNumber
		user.PhoneNumber = phone
	}
	if patch.PhotoID != nil {
		changed = true
		user.PhotoID = patch.PhotoID
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		if !validator.Email(email) {
			return nil, apperrors.NewValidationError("invalid email", map[string]any{"email": *patch.Email})
		}
		if email != user.Email {
			if other, err := s.users.GetByEmail(ctx, email); err == nil && other.ID != user.ID {
				return nil, apperrors.NewConflict("Email already in use", map[string]any{"email": email})
			} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			changed = true
			user.Email = email
		}
	}
	if !changed {
		return nil, apperrors.NewValidationError("No data to update", nil)
	}

	// The provider's username is the email, so it changes first; a failed
	// directory write puts the old identity back once.
	syncIdentity := user.Email != previous.Email || user.Name != previous.Name
	if syncIdentity {
		if err := s.gateway.UpdateIdentity(ctx, user.ExternalID, identityProfile(user)); err != nil {
			return nil, gatewayError(err)
		}
	}
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		if syncIdentity {
			s.restoreIdentity(ctx, &previous, err)
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("Email already in use", map[string]any{"email": user.Email})
		}
		return nil, notFoundOr(err, "user", user.ID)
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventUserUpdated,
		TargetType: events.TargetUser,
		TargetID:   user.ID,
		Actor:      events.ActorOf(actor),
		Payload:    events.UserPayload{Email: user.Email, Role: user.Role, Status: user.Status},
	})
	return user, nil
}

// Ban flips an active user to BANNED.
func (s *UserService) Ban(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error) {
	if err := s.policy.Require(policy.UserBan, actor); err != nil {
		return nil, err
	}
	user, err := s.visibleUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == domain.RoleSuperAdmin {
		return nil, apperrors.NewForbidden("super admin cannot be banned")
	}
	if user.Status == domain.UserStatusBanned {
		return nil, apperrors.NewConflict("User already banned", map[string]any{"id": userID})
	}

	if err := s.users.TransitionStatus(ctx, userID, []domain.UserStatus{domain.UserStatusActive}, domain.UserStatusBanned); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, apperrors.NewConflict("User already banned", map[string]any{"id": userID})
		}
		return nil, err
	}
	user.Status = domain.UserStatusBanned
	s.logger.Info("user banned", zap.String("user_id", userID), zap.String("by", actor.UserID))
	s.publishEvent(ctx, events.Event{
		Type:       events.EventUserBanned,
		TargetType: events.TargetUser,
		TargetID:   userID,
		Actor:      events.ActorOf(actor),
		Payload:    events.UserPayload{Email: user.Email, Role: user.Role, Status: user.Status},
	})
	return user, nil
}

// Delete soft-deletes a user. DELETED is terminal.
func (s *UserService) Delete(ctx context.Context, actor domain.Actor, userID string) error {
	if err := s.policy.Require(policy.UserDelete, actor); err != nil {
		return err
	}
	user, err := s.visibleUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role == domain.RoleSuperAdmin {
		return apperrors.NewForbidden("super admin cannot be deleted")
	}

	err = s.users.TransitionStatus(ctx, userID,
		[]domain.UserStatus{domain.UserStatusActive, domain.UserStatusBanned}, domain.UserStatusDeleted)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return err
	}
	s.logger.Info("user deleted", zap.String("user_id", userID), zap.String("by", actor.UserID))
	s.publishEvent(ctx, events.Event{
		Type:       events.EventUserDeleted,
		TargetType: events.TargetUser,
		TargetID:   userID,
		Actor:      events.ActorOf(actor),
		Payload:    events.UserPayload{Email: user.Email, Role: user.Role, Status: domain.UserStatusDeleted},
	})
	return nil
}

// visibleUser treats soft-deleted users as absent.
func (s *UserService) visibleUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user", userID)
	}
	if user.Status == domain.UserStatusDeleted {
		return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
	}
	return user, nil
}

func validateSignup(input CreateUserInput) error {
	details := map[string]any{}
	if input.Name == "" {
		details["name"] = "required"
	}
	if input.Email == "" {
		details["email"] = "required"
	} else if !validator.Email(input.Email) {
		details["email"] = "invalid"
	}
	if input.Password == "" {
		details["password"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid user", details)
	}
	return nil
}

func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}
