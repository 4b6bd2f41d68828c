package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/policy"
	"github.com/spec-kit/marketplace-service/internal/repository"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

// RequestService runs the engagement request state machine:
// PENDING -> ACCEPTED | REJECTED (freelancer), PENDING -> CANCELLED (client).
type RequestService struct {
	publisher
	requests repository.RequestRepository
	users    repository.UserRepository
	policy   *policy.Policy
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo repository.RequestRepository
	UserRepo    repository.UserRepository
	Policy      *policy.Policy
	Dispatcher  events.Dispatcher
}

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	return &RequestService{
		publisher: publisher{dispatcher: deps.Dispatcher},
		requests:  deps.RequestRepo,
		users:     deps.UserRepo,
		policy:    deps.Policy,
	}
}

// Create sends a request from the calling client to a freelancer.
func (s *RequestService) Create(ctx context.Context, actor domain.Actor, freelancerID string) (*domain.Request, error) {
	if err := s.policy.Require(policy.RequestCreate, actor); err != nil {
		return nil, err
	}
	freelancerID = strings.TrimSpace(freelancerID)
	if freelancerID == "" {
		return nil, apperrors.NewValidationError("freelancer_id is required", nil)
	}
	if freelancerID == actor.UserID {
		return nil, apperrors.NewValidationError("Client and freelancer cannot be the same", nil)
	}
	if err := requireUserWithRole(ctx, s.users, actor.UserID, domain.RoleClient, "Invalid client ID"); err != nil {
		return nil, err
	}
	if err := requireUserWithRole(ctx, s.users, freelancerID, domain.RoleFreelancer, "Invalid freelancer ID"); err != nil {
		return nil, err
	}

	req := &domain.Request{
		ClientID:     actor.UserID,
		FreelancerID: freelancerID,
		Status:       domain.RequestStatusPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("A pending request already exists for this freelancer",
				map[string]any{"freelancer_id": freelancerID})
		}
		return nil, err
	}
	s.publishTransition(ctx, actor, events.EventRequestCreated, req, "")
	return req, nil
}

// Respond lets the named freelancer accept or reject a pending request.
func (s *RequestService) Respond(ctx context.Context, actor domain.Actor, requestID string, accept bool) (*domain.Request, error) {
	if err := s.policy.Require(policy.RequestRespond, actor); err != nil {
		return nil, err
	}
	to, eventType := domain.RequestStatusRejected, events.EventRequestRejected
	if accept {
		to, eventType = domain.RequestStatusAccepted, events.EventRequestAccepted
	}
	return s.transition(ctx, actor, requestID, func(req *domain.Request) bool { return actor.Is(req.FreelancerID) },
		"Not allowed to respond to this request", "Only pending requests can be accepted/rejected", to, eventType)
}

// Cancel lets the named client withdraw a pending request.
func (s *RequestService) Cancel(ctx context.Context, actor domain.Actor, requestID string) (*domain.Request, error) {
	if err := s.policy.Require(policy.RequestCancel, actor); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, requestID, func(req *domain.Request) bool { return actor.Is(req.ClientID) },
		"Not allowed to cancel this request", "Only pending requests can be cancelled",
		domain.RequestStatusCancelled, events.EventRequestCancelled)
}

// transition checks existence, then ownership, then state, and applies the
// change as a compare-and-set from PENDING. Losing a race reports the same
// error as finding the request already decided.
func (s *RequestService) transition(
	ctx context.Context,
	actor domain.Actor,
	requestID string,
	owns func(*domain.Request) bool,
	forbidden, notPending string,
	to domain.RequestStatus,
	eventType events.EventType,
) (*domain.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, notFoundOr(err, "request", requestID)
	}
	if !owns(req) {
		return nil, apperrors.NewForbidden(forbidden)
	}
	if req.Status != domain.RequestStatusPending {
		return nil, apperrors.NewValidationError(notPending, map[string]any{"status": req.Status})
	}

	updated, err := s.requests.TransitionStatus(ctx, requestID, domain.RequestStatusPending, to)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, apperrors.NewValidationError(notPending, nil)
		}
		return nil, err
	}
	s.publishTransition(ctx, actor, eventType, updated, domain.RequestStatusPending)
	return updated, nil
}

// ListSent returns requests the calling client sent.
func (s *RequestService) ListSent(ctx context.Context, actor domain.Actor) ([]domain.Request, error) {
	if err := s.policy.Require(policy.RequestListSent, actor); err != nil {
		return nil, err
	}
	return s.requests.ListByClient(ctx, actor.UserID)
}

// ListReceived returns requests addressed to the calling freelancer.
func (s *RequestService) ListReceived(ctx context.Context, actor domain.Actor) ([]domain.Request, error) {
	if err := s.policy.Require(policy.RequestListReceived, actor); err != nil {
		return nil, err
	}
	return s.requests.ListByFreelancer(ctx, actor.UserID)
}

// HasAcceptedEngagement reports whether the actor may talk to the pair: the
// super-admin always may, a participant only after an ACCEPTED request.
func (s *RequestService) HasAcceptedEngagement(ctx context.Context, clientID, freelancerID string, actor domain.Actor) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	if !actor.Is(clientID) && !actor.Is(freelancerID) {
		return false, nil
	}
	return s.requests.HasAccepted(ctx, clientID, freelancerID)
}

func (s *RequestService) publishTransition(ctx context.Context, actor domain.Actor, eventType events.EventType, req *domain.Request, from domain.RequestStatus) {
	s.publishEvent(ctx, events.Event{
		Type:       eventType,
		TargetType: events.TargetRequest,
		TargetID:   req.ID,
		Actor:      events.ActorOf(actor),
		Payload: events.RequestPayload{
			ClientID:     req.ClientID,
			FreelancerID: req.FreelancerID,
			OldStatus:    from,
			NewStatus:    req.Status,
		},
	})
}

// requireUserWithRole returns NotFound when the user is absent or deleted and
// a validation error when the user is banned or holds another role.
func requireUserWithRole(ctx context.Context, users repository.UserRepository, userID string, role domain.Role, invalid string) error {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return notFoundOr(err, "user", userID)
	}
	if user.Status == domain.UserStatusDeleted {
		return apperrors.NewNotFound("user", map[string]any{"id": userID})
	}
	if user.Role != role || user.Status == domain.UserStatusBanned {
		return apperrors.NewValidationError(invalid, map[string]any{"id": userID})
	}
	return nil
}
