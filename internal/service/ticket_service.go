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

// TicketService coordinates freelancer support tickets.
type TicketService struct {
	publisher
	tickets repository.TicketRepository
	users   repository.UserRepository
	policy  *policy.Policy
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Policy     *policy.Policy
	Dispatcher events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	ClientID    string
	Subject     string
	Description string
}

// TicketPatch lists the fields the owning freelancer may edit.
type TicketPatch struct {
	Subject     *string
	Description *string
}

// Freelancers drive a single transition; the admin may set any of
// adminTargets from whatever state the ticket is in.
var freelancerTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusClosed: {domain.TicketStatusReopened},
}

var adminTargets = map[domain.TicketStatus]bool{
	domain.TicketStatusInProgress: true,
	domain.TicketStatusResolved:   true,
	domain.TicketStatusClosed:     true,
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		publisher: publisher{dispatcher: deps.Dispatcher},
		tickets:   deps.TicketRepo,
		users:     deps.UserRepo,
		policy:    deps.Policy,
	}
}

// Create opens a ticket owned by the calling freelancer.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	if err := s.policy.Require(policy.TicketCreate, actor); err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	clientID := strings.TrimSpace(input.ClientID)
	details := map[string]any{}
	if subject == "" {
		details["subject"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}
	if clientID == "" {
		details["client_id"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}
	if err := requireUserWithRole(ctx, s.users, clientID, domain.RoleClient, "Invalid client ID"); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		FreelancerID: actor.UserID,
		ClientID:     clientID,
		Subject:      subject,
		Description:  description,
		Status:       domain.TicketStatusOpen,
		Timeline: []domain.TimelineEntry{
			domain.NewTimelineEntry(domain.TimelineCreated, actor, "", domain.TicketStatusOpen),
		},
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishTicket(ctx, actor, events.EventTicketCreated, ticket, "", domain.TimelineCreated, "")
	return ticket, nil
}

// Update edits subject or description of a ticket that is not closed.
func (s *TicketService) Update(ctx context.Context, actor domain.Actor, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	if err := s.policy.Require(policy.TicketUpdate, actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}
	if !actor.Is(ticket.FreelancerID) {
		return nil, apperrors.NewForbidden("Not allowed to update this ticket")
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewValidationError("Cannot update a closed ticket", nil)
	}

	change := repository.TicketChange{
		TicketID:     ticketID,
		OwnerID:      &actor.UserID,
		RejectStatus: statusPtr(domain.TicketStatusClosed),
		Entry:        domain.NewTimelineEntry(domain.TimelineUpdated, actor, "", ""),
	}
	if value, ok := changedText(patch.Subject, ticket.Subject); ok {
		change.Subject = &value
	}
	if value, ok := changedText(patch.Description, ticket.Description); ok {
		change.Description = &value
	}
	if change.Subject == nil && change.Description == nil {
		return nil, apperrors.NewValidationError("No data to update", nil)
	}

	updated, err := s.tickets.ApplyChange(ctx, change)
	if err != nil {
		return nil, staleTicket(err)
	}
	s.publishTicket(ctx, actor, events.EventTicketUpdated, updated, ticket.Status, domain.TimelineUpdated, "")
	return updated, nil
}

// UpdateStatus applies a status change under the role's transition grant.
func (s *TicketService) UpdateStatus(ctx context.Context, actor domain.Actor, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if err := s.policy.Require(policy.TicketUpdateStatus, actor); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}

	change := repository.TicketChange{
		TicketID:     ticketID,
		ExpectStatus: statusPtr(ticket.Status),
		Status:       &status,
		Entry:        domain.NewTimelineEntry(domain.TimelineStatusChanged, actor, "", status),
	}
	switch actor.Role {
	case domain.RoleFreelancer:
		if !actor.Is(ticket.FreelancerID) {
			return nil, apperrors.NewForbidden("Not allowed to update this ticket")
		}
		if status != domain.TicketStatusReopened {
			return nil, apperrors.NewValidationError("Freelancers can only reopen tickets", nil)
		}
		if ticket.Status == status {
			return nil, sameStatus(status)
		}
		if !isValidTransition(freelancerTransitions, ticket.Status, status) {
			return nil, apperrors.NewValidationError("Can only reopen a closed ticket",
				map[string]any{"status": ticket.Status})
		}
		change.OwnerID = &actor.UserID
	case domain.RoleSuperAdmin:
		if !adminTargets[status] {
			return nil, apperrors.NewValidationError("Invalid status for admin", map[string]any{"status": status})
		}
		if ticket.Status == status {
			return nil, sameStatus(status)
		}
	default:
		return nil, apperrors.NewForbidden("Not allowed to change ticket status")
	}

	updated, err := s.tickets.ApplyChange(ctx, change)
	if err != nil {
		return nil, staleTicket(err)
	}
	s.publishTicket(ctx, actor, events.EventTicketStatusChanged, updated, ticket.Status, domain.TimelineStatusChanged, "")
	return updated, nil
}

// AdminRespond records the admin's solution and closes the ticket whatever
// its prior status.
func (s *TicketService) AdminRespond(ctx context.Context, actor domain.Actor, ticketID, comment string) (*domain.Ticket, error) {
	if err := s.policy.Require(policy.TicketAdminRespond, actor); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperrors.NewValidationError("comment is required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}

	closed := domain.TicketStatusClosed
	updated, err := s.tickets.ApplyChange(ctx, repository.TicketChange{
		TicketID: ticketID,
		Status:   &closed,
		Solution: &comment,
		Entry:    domain.NewTimelineEntry(domain.TimelineAdminComment, actor, comment, closed),
	})
	if err != nil {
		return nil, staleTicket(err)
	}
	s.publishTicket(ctx, actor, events.EventTicketAdminResponded, updated, ticket.Status, domain.TimelineAdminComment, comment)
	return updated, nil
}

// Get returns a ticket to its owning freelancer or the admin.
func (s *TicketService) Get(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := s.policy.Require(policy.TicketGet, actor); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket", ticketID)
	}
	if !actor.IsAdmin() && !actor.Is(ticket.FreelancerID) {
		return nil, apperrors.NewForbidden("Not allowed to view this ticket")
	}
	return ticket, nil
}

// List returns every ticket for the admin and the caller's own tickets,
// without timelines, for a freelancer.
func (s *TicketService) List(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Ticket, error) {
	if err := s.policy.Require(policy.TicketList, actor); err != nil {
		return nil, err
	}
	filter := repository.TicketFilter{IncludeTimeline: true, Limit: limit, Offset: offset}
	if !actor.IsAdmin() {
		filter.FreelancerID = &actor.UserID
		filter.IncludeTimeline = false
	}
	return s.tickets.List(ctx, filter)
}

func (s *TicketService) publishTicket(ctx context.Context, actor domain.Actor, eventType events.EventType, ticket *domain.Ticket, from domain.TicketStatus, action domain.TimelineAction, comment string) {
	s.publishEvent(ctx, events.Event{
		Type:       eventType,
		TargetType: events.TargetTicket,
		TargetID:   ticket.ID,
		Actor:      events.ActorOf(actor),
		Payload: events.TicketPayload{
			FreelancerID: ticket.FreelancerID,
			ClientID:     ticket.ClientID,
			OldStatus:    from,
			NewStatus:    ticket.Status,
			Action:       action,
			Comment:      comment,
		},
	})
}

func isValidTransition(table map[domain.TicketStatus][]domain.TicketStatus, current, next domain.TicketStatus) bool {
	for _, candidate := range table[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// changedText returns the trimmed patch value when it is non-empty and
// differs from current.
func changedText(patch *string, current string) (string, bool) {
	if patch == nil {
		return "", false
	}
	value := strings.TrimSpace(*patch)
	if value == "" || value == current {
		return "", false
	}
	return value, true
}

func sameStatus(status domain.TicketStatus) error {
	return apperrors.NewConflict("Ticket already in this status", map[string]any{"status": status})
}

func staleTicket(err error) error {
	if errors.Is(err, repository.ErrStaleState) {
		return apperrors.NewConflict("Ticket was modified concurrently, retry", nil)
	}
	return err
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus {
	return &s
}
