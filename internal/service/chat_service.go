package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/policy"
	"github.com/spec-kit/marketplace-service/internal/repository"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

const (
	defaultPageLen = 50
	maxPageLen     = 200
	previewLen     = 80
)

// Broadcaster pushes a stored message to the peers subscribed to its chat.
// Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg domain.Message) error
}

// ChatService owns chat sessions between engaged pairs and their messages.
type ChatService struct {
	publisher
	chats       repository.ChatRepository
	users       repository.UserRepository
	engagements *RequestService
	broadcaster Broadcaster
	policy      *policy.Policy
	logger      *zap.Logger
	pageLen     int
	maxPageLen  int
}

// ChatDependencies bundles collaborators for the chat service.
type ChatDependencies struct {
	ChatRepo    repository.ChatRepository
	UserRepo    repository.UserRepository
	Requests    *RequestService
	Broadcaster Broadcaster
	Policy      *policy.Policy
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	PageLen     int
	MaxPageLen  int
}

// NewChatService constructs the service.
func NewChatService(deps ChatDependencies) *ChatService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ChatService{
		publisher:   publisher{dispatcher: deps.Dispatcher},
		chats:       deps.ChatRepo,
		users:       deps.UserRepo,
		engagements: deps.Requests,
		broadcaster: deps.Broadcaster,
		policy:      deps.Policy,
		logger:      logger,
		pageLen:     deps.PageLen,
		maxPageLen:  deps.MaxPageLen,
	}
	if svc.maxPageLen <= 0 {
		svc.maxPageLen = maxPageLen
	}
	if svc.pageLen <= 0 || svc.pageLen > svc.maxPageLen {
		svc.pageLen = min(defaultPageLen, svc.maxPageLen)
	}
	return svc
}

// GetOrCreateSession returns the pair's session, creating it on first use.
// The pair must share an accepted request unless the actor is the admin.
func (s *ChatService) GetOrCreateSession(ctx context.Context, actor domain.Actor, clientID, freelancerID string) (*domain.ChatSession, error) {
	if err := s.policy.Require(policy.ChatOpen, actor); err != nil {
		return nil, err
	}
	if clientID == "" || freelancerID == "" {
		return nil, apperrors.NewValidationError("client_id and freelancer_id are required", nil)
	}
	if clientID == freelancerID {
		return nil, apperrors.NewValidationError("Client and freelancer cannot be the same", nil)
	}
	if err := requireUserWithRole(ctx, s.users, clientID, domain.RoleClient, "Invalid client ID"); err != nil {
		return nil, err
	}
	if err := requireUserWithRole(ctx, s.users, freelancerID, domain.RoleFreelancer, "Invalid freelancer ID"); err != nil {
		return nil, err
	}
	engaged, err := s.engagements.HasAcceptedEngagement(ctx, clientID, freelancerID, actor)
	if err != nil {
		return nil, err
	}
	if !engaged {
		return nil, apperrors.NewForbidden("Chat requires an accepted request")
	}

	session, err := s.chats.GetSessionByPair(ctx, clientID, freelancerID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	session = &domain.ChatSession{ClientID: clientID, FreelancerID: freelancerID}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost the insert race; the winner's session is the pair's session.
			return s.chats.GetSessionByPair(ctx, clientID, freelancerID)
		}
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventChatSessionOpened,
		TargetType: events.TargetChat,
		TargetID:   session.ID,
		Actor:      events.ActorOf(actor),
		Payload:    events.ChatPayload{ClientID: clientID, FreelancerID: freelancerID},
	})
	return session, nil
}

// OpenSessionWith resolves the pair from the caller's role.
func (s *ChatService) OpenSessionWith(ctx context.Context, actor domain.Actor, peerID string) (*domain.ChatSession, error) {
	switch actor.Role {
	case domain.RoleClient:
		return s.GetOrCreateSession(ctx, actor, actor.UserID, peerID)
	case domain.RoleFreelancer:
		return s.GetOrCreateSession(ctx, actor, peerID, actor.UserID)
	default:
		return nil, apperrors.NewValidationError("client_id and freelancer_id are required", nil)
	}
}

// ListSessions returns the caller's sessions, most recently active first.
func (s *ChatService) ListSessions(ctx context.Context, actor domain.Actor) ([]domain.ChatSession, error) {
	if err := s.policy.Require(policy.ChatList, actor); err != nil {
		return nil, err
	}
	return s.chats.ListSessions(ctx, actor.UserID)
}

// Session returns the chat if the caller may use it.
func (s *ChatService) Session(ctx context.Context, actor domain.Actor, chatID string) (*domain.ChatSession, error) {
	session, err := s.chats.GetSession(ctx, chatID)
	if err != nil {
		return nil, notFoundOr(err, "chat", chatID)
	}
	if !actor.IsAdmin() && !session.HasParticipant(actor.UserID) {
		return nil, apperrors.NewForbidden("Not a participant of this chat")
	}
	return session, nil
}

// SendMessage stores the message and pushes it to subscribed peers.
func (s *ChatService) SendMessage(ctx context.Context, actor domain.Actor, chatID, body string) (*domain.Message, error) {
	if err := s.policy.Require(policy.ChatSend, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("Message body cannot be empty", nil)
	}
	session, err := s.Session(ctx, actor, chatID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ChatID:     chatID,
		SenderID:   actor.UserID,
		SenderRole: actor.Role,
		Body:       body,
		Timestamp:  time.Now().UTC(),
		SeenBy:     []string{actor.UserID},
	}
	if err := s.chats.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventChatMessageSent,
		TargetType: events.TargetChat,
		TargetID:   chatID,
		Actor:      events.ActorOf(actor),
		Payload: events.ChatPayload{
			ClientID:     session.ClientID,
			FreelancerID: session.FreelancerID,
			MessageID:    msg.ID,
			BodyPreview:  stringPreview(body, previewLen),
		},
	})
	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ctx, *msg); err != nil {
			s.logger.Warn("chat broadcast failed",
				zap.String("chat_id", chatID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
	return msg, nil
}

// MarkAllSeen adds the caller to seen_by of every message in the chat.
// It returns the number of messages that changed.
func (s *ChatService) MarkAllSeen(ctx context.Context, actor domain.Actor, chatID string) (int64, error) {
	if err := s.policy.Require(policy.ChatMarkSeen, actor); err != nil {
		return 0, err
	}
	if _, err := s.Session(ctx, actor, chatID); err != nil {
		return 0, err
	}
	return s.chats.MarkAllSeen(ctx, chatID, actor.UserID)
}

// GetMessages pages through history newest first. Reading does not mark
// messages seen.
func (s *ChatService) GetMessages(ctx context.Context, actor domain.Actor, chatID string, skip, limit int) ([]domain.Message, error) {
	if err := s.policy.Require(policy.ChatRead, actor); err != nil {
		return nil, err
	}
	if _, err := s.Session(ctx, actor, chatID); err != nil {
		return nil, err
	}
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = s.pageLen
	}
	if limit > s.maxPageLen {
		limit = s.maxPageLen
	}
	return s.chats.ListMessages(ctx, chatID, skip, limit)
}

// CountUnread counts messages the caller has not seen.
func (s *ChatService) CountUnread(ctx context.Context, actor domain.Actor, chatID string) (int, error) {
	if err := s.policy.Require(policy.ChatRead, actor); err != nil {
		return 0, err
	}
	if _, err := s.Session(ctx, actor, chatID); err != nil {
		return 0, err
	}
	return s.chats.CountUnread(ctx, chatID, actor.UserID)
}
