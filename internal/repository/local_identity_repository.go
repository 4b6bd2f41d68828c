package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/identity"
)

type localIdentityRepository struct {
	db *DB
}

// NewLocalIdentityRepository persists the local provider's credentials so
// logins survive restarts.
func NewLocalIdentityRepository(db *DB) identity.LocalStore {
	return &localIdentityRepository{db: db}
}

const localIdentityColumns = `id::text, email, password_hash, role, created_at, updated_at`

// identityErr maps repository sentinels onto the identity package's.
func identityErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return identity.ErrIdentityNotFound
	case errors.Is(err, ErrDuplicate):
		return identity.ErrIdentityExists
	}
	return err
}

func (r *localIdentityRepository) Create(ctx context.Context, ident *identity.LocalIdentity) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO local_identities (id, email, password_hash, role)
        VALUES ($1, LOWER($2), $3, $4)
        RETURNING created_at, updated_at`
	err := r.db.pool.QueryRow(ctx, query, ident.ID, ident.Email, ident.PasswordHash, string(ident.Role)).
		Scan(&ident.CreatedAt, &ident.UpdatedAt)
	return identityErr(r.db.fail("local_identity.create", err))
}

func (r *localIdentityRepository) GetByID(ctx context.Context, id string) (*identity.LocalIdentity, error) {
	return r.getOne(ctx, "local_identity.get_by_id", `SELECT `+localIdentityColumns+` FROM local_identities WHERE id = $1`, id)
}

func (r *localIdentityRepository) GetByEmail(ctx context.Context, email string) (*identity.LocalIdentity, error) {
	return r.getOne(ctx, "local_identity.get_by_email", `SELECT `+localIdentityColumns+` FROM local_identities WHERE email = LOWER($1)`, email)
}

func (r *localIdentityRepository) getOne(ctx context.Context, op, query string, arg string) (*identity.LocalIdentity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		ident identity.LocalIdentity
		role  string
	)
	err := r.db.pool.QueryRow(ctx, query, arg).Scan(
		&ident.ID,
		&ident.Email,
		&ident.PasswordHash,
		&role,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if err != nil {
		return nil, identityErr(r.db.fail(op, err))
	}
	ident.Role = domain.Role(role)
	return &ident, nil
}

func (r *localIdentityRepository) Update(ctx context.Context, ident *identity.LocalIdentity) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE local_identities
        SET email = LOWER($2), password_hash = $3, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at`
	err := r.db.pool.QueryRow(ctx, query, ident.ID, ident.Email, ident.PasswordHash).Scan(&ident.UpdatedAt)
	return identityErr(r.db.fail("local_identity.update", err))
}

func (r *localIdentityRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.pool.Exec(ctx, `DELETE FROM local_identities WHERE id = $1`, id)
	return identityErr(r.db.fail("local_identity.delete", err))
}
