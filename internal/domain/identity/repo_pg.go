package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/db"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// -- UserRepository --

const userColumns = `id, email, password_hash, full_name, cpf_encrypted, cpf_hash,
	verified, mfa_enabled, created_at, updated_at`

func (r *RepoPG) Create(ctx context.Context, u *User) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (email, password_hash, full_name, cpf_encrypted, cpf_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		u.Email, u.PasswordHash, u.FullName, u.CPFEncrypted, u.CPFHash)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return apperr.Storage("user: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "user: get")
}

func (r *RepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, "user: get by email")
}

func (r *RepoPG) GetByCPFHash(ctx context.Context, cpfHash string) (*User, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE cpf_hash = $1`, cpfHash)
	return scanUser(row, "user: get by cpf")
}

func (r *RepoPG) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return r.updateFlag(ctx, id, "verified", verified)
}

func (r *RepoPG) SetMFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return r.updateFlag(ctx, id, "mfa_enabled", enabled)
}

func (r *RepoPG) updateFlag(ctx context.Context, id uuid.UUID, column string, value bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET `+column+` = $2, updated_at = NOW() WHERE id = $1`, id, value)
	if err != nil {
		return apperr.Storage("user: update "+column, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

func (r *RepoPG) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return apperr.Storage("user: update password", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account not found")
	}
	return nil
}

func scanUser(row pgx.Row, op string) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.CPFEncrypted,
		&u.CPFHash, &u.Verified, &u.MFAEnabled, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &u, nil
}

// -- RefreshTokenRepository --

type RefreshTokenRepoPG struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepoPG(pool *pgxpool.Pool) *RefreshTokenRepoPG {
	return &RefreshTokenRepoPG{pool: pool}
}

func (r *RefreshTokenRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *RefreshTokenRepoPG) Create(ctx context.Context, t *RefreshToken) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		t.UserID, t.TokenHash, t.ExpiresAt)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return apperr.Storage("refresh token: insert", err)
	}
	return nil
}

func (r *RefreshTokenRepoPG) GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash)

	var t RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("refresh token: get", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepoPG) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return apperr.Storage("refresh token: revoke", err)
	}
	return nil
}

func (r *RefreshTokenRepoPG) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL`, userID, at)
	if err != nil {
		return apperr.Storage("refresh token: revoke all", err)
	}
	return nil
}

// -- MFACodeRepository --

type MFACodeRepoPG struct {
	pool *pgxpool.Pool
}

func NewMFACodeRepoPG(pool *pgxpool.Pool) *MFACodeRepoPG {
	return &MFACodeRepoPG{pool: pool}
}

func (r *MFACodeRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *MFACodeRepoPG) Create(ctx context.Context, c *MFACode) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO mfa_codes (user_id, code_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		c.UserID, c.CodeHash, c.ExpiresAt)
	if err := row.Scan(&c.ID, &c.CreatedAt); err != nil {
		return apperr.Storage("mfa code: insert", err)
	}
	return nil
}

// Consume marks the newest live code used, but only when the hash matches.
// The conditional UPDATE keeps a code single-use under concurrent attempts.
func (r *MFACodeRepoPG) Consume(ctx context.Context, userID uuid.UUID, codeHash string, now time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE mfa_codes SET used_at = $3
		WHERE id = (
			SELECT id FROM mfa_codes
			WHERE user_id = $1 AND used_at IS NULL AND expires_at > $3
			ORDER BY created_at DESC
			LIMIT 1
		) AND code_hash = $2`,
		userID, codeHash, now)
	if err != nil {
		return false, apperr.Storage("mfa code: consume", err)
	}
	return tag.RowsAffected() == 1, nil
}
