package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// UserRepository defines persistence access for directory users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	UpdateProfile(ctx context.Context, user *domain.User) error
	TransitionStatus(ctx context.Context, id string, from []domain.UserStatus, to domain.UserStatus) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	FindRoot(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.User, error)
}

type userRepository struct {
	db *DB
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(db *DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id::text, external_id, role, status, name, email, phone_number, photo_id, registration_type, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO users (external_id, role, status, name, email, phone_number, photo_id, registration_type)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id::text, created_at, updated_at`

	err := r.db.pool.QueryRow(ctx, query,
		user.ExternalID,
		string(user.Role),
		string(user.Status),
		user.Name,
		user.Email,
		user.PhoneNumber,
		user.PhotoID,
		string(user.RegistrationType),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return r.db.fail("users.create", err)
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE users SET name=$1, email=$2, phone_number=$3, photo_id=$4, updated_at=NOW()
        WHERE id=$5 AND status <> 'DELETED'
        RETURNING updated_at`

	err := r.db.pool.QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PhoneNumber,
		user.PhotoID,
		user.ID,
	).Scan(&user.UpdatedAt)
	return r.db.fail("users.update_profile", err)
}

func (r *userRepository) TransitionStatus(ctx context.Context, id string, from []domain.UserStatus, to domain.UserStatus) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	cmd, err := r.db.pool.Exec(ctx,
		`UPDATE users SET status=$2, updated_at=NOW() WHERE id=$1 AND status = ANY($3)`,
		id, string(to), allowed)
	if err != nil {
		return r.db.fail("users.transition_status", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchOne(ctx, "users.get_by_id", `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchOne(ctx, "users.get_by_email", `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
}

func (r *userRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.fetchOne(ctx, "users.get_by_external_id", `SELECT `+userColumns+` FROM users WHERE external_id=$1`, externalID)
}

// FindRoot returns the super-admin, or the user holding the root email.
func (r *userRepository) FindRoot(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users
        WHERE LOWER(email)=LOWER($1) OR role='SUPER_ADMIN'
        ORDER BY (role='SUPER_ADMIN') DESC, created_at ASC
        LIMIT 1`
	return r.fetchOne(ctx, "users.find_root", query, email)
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.Role, limit, offset int) ([]domain.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `SELECT ` + userColumns + ` FROM users
        WHERE role=$1 AND status='ACTIVE'
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.pool.Query(ctx, query, string(role), limit, offset)
	if err != nil {
		return nil, r.db.fail("users.list_by_role", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, r.db.fail("users.list_by_role", err)
		}
		users = append(users, *user)
	}
	return users, r.db.fail("users.list_by_role", rows.Err())
}

func (r *userRepository) fetchOne(ctx context.Context, op, query string, arg any) (*domain.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	user, err := scanUser(r.db.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, r.db.fail(op, err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user             domain.User
		role, status, rt string
	)
	if err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&role,
		&status,
		&user.Name,
		&user.Email,
		&user.PhoneNumber,
		&user.PhotoID,
		&rt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.Role = domain.Role(role)
	user.Status = domain.UserStatus(status)
	user.RegistrationType = domain.RegistrationType(rt)
	return &user, nil
}
