package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// RequestRepository persists engagement requests.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (*domain.Request, error)
	ListByClient(ctx context.Context, clientID string) ([]domain.Request, error)
	ListByFreelancer(ctx context.Context, freelancerID string) ([]domain.Request, error)
	HasAccepted(ctx context.Context, clientID, freelancerID string) (bool, error)
}

type requestRepository struct {
	db *DB
}

// NewRequestRepository builds repository.
func NewRequestRepository(db *DB) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `id::text, client_id::text, freelancer_id::text, status, created_at, updated_at`

// Create inserts a PENDING request. A second PENDING request for the same
// pair is rejected by requests_pending_pair_key and reported as ErrDuplicate.
func (r *requestRepository) Create(ctx context.Context, req *domain.Request) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO requests (client_id, freelancer_id, status)
        VALUES ($1, $2, $3)
        RETURNING id::text, created_at, updated_at`
	err := r.db.pool.QueryRow(ctx, query, req.ClientID, req.FreelancerID, string(req.Status)).
		Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	return r.db.fail("requests.create", err)
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	req, err := scanRequest(r.db.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=$1`, id))
	if err != nil {
		return nil, r.db.fail("requests.get_by_id", err)
	}
	return req, nil
}

// TransitionStatus moves the request from one status to another only if it
// still holds the expected status.
func (r *requestRepository) TransitionStatus(ctx context.Context, id string, from, to domain.RequestStatus) (*domain.Request, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE requests SET status=$3, updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING ` + requestColumns
	req, err := scanRequest(r.db.pool.QueryRow(ctx, query, id, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, r.db.fail("requests.transition_status", err)
	}
	return req, nil
}

func (r *requestRepository) ListByClient(ctx context.Context, clientID string) ([]domain.Request, error) {
	return r.list(ctx, "requests.list_by_client", `SELECT `+requestColumns+` FROM requests WHERE client_id=$1 ORDER BY created_at DESC`, clientID)
}

func (r *requestRepository) ListByFreelancer(ctx context.Context, freelancerID string) ([]domain.Request, error) {
	return r.list(ctx, "requests.list_by_freelancer", `SELECT `+requestColumns+` FROM requests WHERE freelancer_id=$1 ORDER BY created_at DESC`, freelancerID)
}

func (r *requestRepository) HasAccepted(ctx context.Context, clientID, freelancerID string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM requests WHERE client_id=$1 AND freelancer_id=$2 AND status='ACCEPTED')`,
		clientID, freelancerID).Scan(&exists)
	if err := r.db.fail("requests.has_accepted", err); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func (r *requestRepository) list(ctx context.Context, op, query string, arg any) ([]domain.Request, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, r.db.fail(op, err)
	}
	defer rows.Close()

	result := []domain.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, r.db.fail(op, err)
		}
		result = append(result, *req)
	}
	return result, r.db.fail(op, rows.Err())
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var (
		req    domain.Request
		status string
	)
	if err := row.Scan(&req.ID, &req.ClientID, &req.FreelancerID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	return &req, nil
}
