package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// TicketFilter scopes ticket listings.
type TicketFilter struct {
	FreelancerID    *string
	IncludeTimeline bool
	Limit           int
	Offset          int
}

// TicketChange is one atomic mutation: field updates plus exactly one
// timeline entry, guarded by the expected current state.
type TicketChange struct {
	TicketID     string
	OwnerID      *string
	ExpectStatus *domain.TicketStatus
	RejectStatus *domain.TicketStatus

	Subject     *string
	Description *string
	Status      *domain.TicketStatus
	Solution    *string
	Entry       domain.TimelineEntry
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ApplyChange(ctx context.Context, change TicketChange) (*domain.Ticket, error)
}

type ticketRepository struct {
	db *DB
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db *DB) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id::text, freelancer_id::text, client_id::text, subject, description, status, solution, timeline, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	timeline, err := json.Marshal(ticket.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO tickets (freelancer_id, client_id, subject, description, status, timeline)
        VALUES ($1, $2, $3, $4, $5, $6::jsonb)
        RETURNING id::text, created_at, updated_at`
	err = r.db.pool.QueryRow(ctx, query,
		ticket.FreelancerID,
		ticket.ClientID,
		ticket.Subject,
		ticket.Description,
		string(ticket.Status),
		string(timeline),
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	return r.db.fail("tickets.create", err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ticket, err := scanTicket(r.db.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id))
	if err != nil {
		return nil, r.db.fail("tickets.get_by_id", err)
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	columns := ticketColumns
	if !filter.IncludeTimeline {
		columns = `id::text, freelancer_id::text, client_id::text, subject, description, status, solution, NULL::jsonb, created_at, updated_at`
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + columns + ` FROM tickets WHERE ($1::uuid IS NULL OR freelancer_id = $1::uuid)
        ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.pool.Query(ctx, query, filter.FreelancerID, limit, offset)
	if err != nil {
		return nil, r.db.fail("tickets.list", err)
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, r.db.fail("tickets.list", err)
		}
		result = append(result, *ticket)
	}
	return result, r.db.fail("tickets.list", rows.Err())
}

// ApplyChange updates fields and appends the timeline entry in one statement.
// ErrStaleState means the guard no longer held.
func (r *ticketRepository) ApplyChange(ctx context.Context, change TicketChange) (*domain.Ticket, error) {
	entry, err := json.Marshal(change.Entry)
	if err != nil {
		return nil, fmt.Errorf("encode timeline entry: %w", err)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE tickets SET
            subject = COALESCE($2, subject),
            description = COALESCE($3, description),
            status = COALESCE($4, status),
            solution = COALESCE($5, solution),
            timeline = timeline || jsonb_build_array($6::jsonb),
            updated_at = NOW()
        WHERE id = $1
          AND ($7::uuid IS NULL OR freelancer_id = $7::uuid)
          AND ($8::text IS NULL OR status = $8::text)
          AND ($9::text IS NULL OR status <> $9::text)
        RETURNING ` + ticketColumns

	ticket, err := scanTicket(r.db.pool.QueryRow(ctx, query,
		change.TicketID,
		change.Subject,
		change.Description,
		statusArg(change.Status),
		change.Solution,
		string(entry),
		change.OwnerID,
		statusArg(change.ExpectStatus),
		statusArg(change.RejectStatus),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, r.db.fail("tickets.apply_change", err)
	}
	return ticket, nil
}

func statusArg(s *domain.TicketStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		status   string
		timeline []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.FreelancerID,
		&ticket.ClientID,
		&ticket.Subject,
		&ticket.Description,
		&status,
		&ticket.Solution,
		&timeline,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &ticket.Timeline); err != nil {
			return nil, fmt.Errorf("decode timeline: %w", err)
		}
	}
	return &ticket, nil
}
