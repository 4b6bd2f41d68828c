package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// ChatRepository persists chat sessions and their messages.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	GetSessionByPair(ctx context.Context, clientID, freelancerID string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]domain.ChatSession, error)
	AppendMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, chatID string, skip, limit int) ([]domain.Message, error)
	MarkAllSeen(ctx context.Context, chatID, userID string) (int64, error)
	CountUnread(ctx context.Context, chatID, userID string) (int, error)
}

type chatRepository struct {
	db *DB
}

// NewChatRepository builds repository.
func NewChatRepository(db *DB) ChatRepository {
	return &chatRepository{db: db}
}

const sessionColumns = `id::text, client_id::text, freelancer_id::text, created_at, last_updated`

func (r *chatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO chat_sessions (client_id, freelancer_id)
        VALUES ($1, $2)
        RETURNING id::text, created_at, last_updated`
	err := r.db.pool.QueryRow(ctx, query, session.ClientID, session.FreelancerID).
		Scan(&session.ID, &session.CreatedAt, &session.LastUpdated)
	return r.db.fail("chat.create_session", err)
}

func (r *chatRepository) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	return r.fetchSession(ctx, "chat.get_session", `SELECT `+sessionColumns+` FROM chat_sessions WHERE id=$1`, id)
}

func (r *chatRepository) GetSessionByPair(ctx context.Context, clientID, freelancerID string) (*domain.ChatSession, error) {
	return r.fetchSession(ctx, "chat.get_session_by_pair",
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE client_id=$1 AND freelancer_id=$2`, clientID, freelancerID)
}

func (r *chatRepository) ListSessions(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE client_id=$1 OR freelancer_id=$1 ORDER BY last_updated DESC`, userID)
	if err != nil {
		return nil, r.db.fail("chat.list_sessions", err)
	}
	defer rows.Close()

	result := []domain.ChatSession{}
	for rows.Next() {
		var s domain.ChatSession
		if err := rows.Scan(&s.ID, &s.ClientID, &s.FreelancerID, &s.CreatedAt, &s.LastUpdated); err != nil {
			return nil, r.db.fail("chat.list_sessions", err)
		}
		result = append(result, s)
	}
	return result, r.db.fail("chat.list_sessions", rows.Err())
}

// AppendMessage inserts the message and refreshes the session's last_updated
// in the same transaction.
func (r *chatRepository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := pgx.BeginFunc(ctx, r.db.pool, func(tx pgx.Tx) error {
		const insert = `
            INSERT INTO chat_messages (chat_id, sender_id, sender_role, body, seen_by)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id::text, sent_at`
		if err := tx.QueryRow(ctx, insert,
			msg.ChatID,
			msg.SenderID,
			string(msg.SenderRole),
			msg.Body,
			msg.SeenBy,
		).Scan(&msg.ID, &msg.Timestamp); err != nil {
			return err
		}

		cmd, err := tx.Exec(ctx, `UPDATE chat_sessions SET last_updated=$2 WHERE id=$1`, msg.ChatID, msg.Timestamp)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	return r.db.fail("chat.append_message", err)
}

func (r *chatRepository) ListMessages(ctx context.Context, chatID string, skip, limit int) ([]domain.Message, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT id::text, chat_id::text, sender_id::text, sender_role, body, sent_at, seen_by
        FROM chat_messages WHERE chat_id=$1
        ORDER BY sent_at DESC, id DESC
        OFFSET $2 LIMIT $3`
	rows, err := r.db.pool.Query(ctx, query, chatID, skip, limit)
	if err != nil {
		return nil, r.db.fail("chat.list_messages", err)
	}
	defer rows.Close()

	result := []domain.Message{}
	for rows.Next() {
		var (
			m    domain.Message
			role string
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &role, &m.Body, &m.Timestamp, &m.SeenBy); err != nil {
			return nil, r.db.fail("chat.list_messages", err)
		}
		m.SenderRole = domain.Role(role)
		result = append(result, m)
	}
	return result, r.db.fail("chat.list_messages", rows.Err())
}

// MarkAllSeen adds userID to seen_by where missing and reports how many
// messages changed.
func (r *chatRepository) MarkAllSeen(ctx context.Context, chatID, userID string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.pool.Exec(ctx,
		`UPDATE chat_messages SET seen_by = array_append(seen_by, $2::text)
         WHERE chat_id=$1 AND NOT ($2::text = ANY(seen_by))`, chatID, userID)
	if err != nil {
		return 0, r.db.fail("chat.mark_all_seen", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *chatRepository) CountUnread(ctx context.Context, chatID, userID string) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var count int
	err := r.db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE chat_id=$1 AND NOT ($2::text = ANY(seen_by))`, chatID, userID).Scan(&count)
	if err != nil {
		return 0, r.db.fail("chat.count_unread", err)
	}
	return count, nil
}

func (r *chatRepository) fetchSession(ctx context.Context, op, query string, args ...any) (*domain.ChatSession, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s domain.ChatSession
	if err := r.db.pool.QueryRow(ctx, query, args...).Scan(&s.ID, &s.ClientID, &s.FreelancerID, &s.CreatedAt, &s.LastUpdated); err != nil {
		return nil, r.db.fail(op, err)
	}
	return &s, nil
}
