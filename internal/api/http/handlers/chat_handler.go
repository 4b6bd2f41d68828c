package handlers

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/api/dto"
	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/realtime"
	"github.com/spec-kit/marketplace-service/internal/service"
	apperrors "github.com/spec-kit/marketplace-service/pkg/util/errorutil"
)

const (
	wsActorKey  = "ws_actor"
	wsChatKey   = "ws_chat_id"
	writeWait   = 10 * time.Second
	defaultPing = 30 * time.Second
)

// inboundFrame is what a chat socket client may send.
type inboundFrame struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

// ChatHandler serves chat sessions over REST and websocket.
type ChatHandler struct {
	service      *service.ChatService
	registry     *realtime.Registry
	logger       *zap.Logger
	pingInterval time.Duration
}

// NewChatHandler constructs handler.
func NewChatHandler(chatService *service.ChatService, registry *realtime.Registry, logger *zap.Logger, pingInterval time.Duration) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pingInterval <= 0 {
		pingInterval = defaultPing
	}
	return &ChatHandler{service: chatService, registry: registry, logger: logger, pingInterval: pingInterval}
}

// Open POST /chats.
func (h *ChatHandler) Open(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.OpenChatRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	var session *domain.ChatSession
	if req.PeerID != "" && !actor.IsAdmin() {
		session, err = h.service.OpenSessionWith(c.UserContext(), actor, req.PeerID)
	} else {
		session, err = h.service.GetOrCreateSession(c.UserContext(), actor, req.ClientID, req.FreelancerID)
	}
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chat session ready", dto.NewChatSessionResponse(session))
}

// List GET /chats.
func (h *ChatHandler) List(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	sessions, err := h.service.ListSessions(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Chat sessions fetched", dto.NewChatSessionList(sessions))
}

// Messages GET /chats/:id/messages.
func (h *ChatHandler) Messages(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	messages, err := h.service.GetMessages(c.UserContext(), actor, c.Params("id"),
		parseInt(c.Query("skip"), 0), parseInt(c.Query("limit"), 0))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Messages fetched", dto.NewMessageList(messages))
}

// Send POST /chats/:id/messages.
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.SendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	msg, err := h.service.SendMessage(c.UserContext(), actor, c.Params("id"), req.Body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "Message sent", dto.NewMessageResponse(msg))
}

// MarkSeen POST /chats/:id/seen.
func (h *ChatHandler) MarkSeen(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	updated, err := h.service.MarkAllSeen(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Messages marked as seen", fiber.Map{"updated": updated})
}

// Unread GET /chats/:id/unread.
func (h *ChatHandler) Unread(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	count, err := h.service.CountUnread(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Unread count fetched", fiber.Map{"unread": count})
}

// Upgrade checks access before handing GET /chats/:id/ws to the websocket
// handler, so refusals still get the JSON error envelope.
func (h *ChatHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	session, err := h.service.Session(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	c.Locals(wsActorKey, actor)
	c.Locals(wsChatKey, session.ID)
	return c.Next()
}

// Stream is the websocket loop. The connection is registered for the chat,
// pushes are written by one writer goroutine, and the registry entry is
// removed on every exit path.
func (h *ChatHandler) Stream(conn *websocket.Conn) {
	actor, _ := conn.Locals(wsActorKey).(domain.Actor)
	chatID, _ := conn.Locals(wsChatKey).(string)
	logger := h.logger.With(zap.String("chat_id", chatID), zap.String("user_id", actor.UserID))

	client := h.registry.Connect(actor.UserID)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("chat socket panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
		h.registry.Disconnect(client)
		_ = conn.Close()
		logger.Info("chat socket closed")
	}()
	if !h.registry.Subscribe(client, chatID) {
		return
	}
	logger.Info("chat socket opened")

	go h.writeLoop(conn, client, logger)

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			logger.Debug("chat socket read ended", zap.Error(err))
			return
		}
		h.handleFrame(actor, chatID, client, frame)
	}
}

func (h *ChatHandler) handleFrame(actor domain.Actor, chatID string, client *realtime.Client, frame inboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	var err error
	switch strings.ToLower(frame.Type) {
	case "", realtime.FrameMessage:
		// The stored message reaches this client through the broadcast.
		_, err = h.service.SendMessage(ctx, actor, chatID, frame.Body)
	case "seen":
		_, err = h.service.MarkAllSeen(ctx, actor, chatID)
	case "pong":
	default:
		err = apperrors.NewValidationError("unknown frame type", map[string]any{"type": frame.Type})
	}
	if err != nil {
		payload, encodeErr := realtime.Frame{
			Type:   realtime.FrameError,
			ChatID: chatID,
			Error:  apperrors.Failure(err).Message,
		}.Encode()
		if encodeErr == nil {
			client.Queue(payload)
		}
	}
}

// writeLoop is the only writer of conn. It ends when the client's queue is
// closed, closing the socket so the read loop ends too.
func (h *ChatHandler) writeLoop(conn *websocket.Conn, client *realtime.Client, logger *zap.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.Send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("chat socket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
