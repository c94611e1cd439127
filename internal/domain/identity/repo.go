package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists platform accounts. Lookups that miss return
// (nil, nil).
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByCPFHash(ctx context.Context, cpfHash string) (*User, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	SetMFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// RefreshTokenRepository stores refresh token digests.
type RefreshTokenRepository interface {
	Create(ctx context.Context, t *RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// MFACodeRepository stores login challenges.
type MFACodeRepository interface {
	Create(ctx context.Context, c *MFACode) error
	// Consume atomically marks the newest unused, unexpired code for the
	// user as used and reports whether codeHash matched it.
	Consume(ctx context.Context, userID uuid.UUID, codeHash string, now time.Time) (bool, error)
}
