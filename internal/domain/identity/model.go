package identity

import (
	"time"

	"github.com/google/uuid"
)

// User is a platform account. A user belongs to organizations through
// memberships; the account itself is tenant-free.
//
// CPF is stored encrypted. CPFHash is a deterministic digest of the
// normalized digits so lookups work without decrypting the column.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	CPFEncrypted string    `db:"cpf_encrypted" json:"-"`
	CPFHash      string    `db:"cpf_hash" json:"-"`
	Verified     bool      `db:"verified" json:"verified"`
	MFAEnabled   bool      `db:"mfa_enabled" json:"mfa_enabled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RefreshToken is a long-lived credential exchanged for fresh access tokens.
// Only its SHA-256 digest is stored.
type RefreshToken struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	TokenHash string     `db:"token_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// MFACode is a short-lived numeric challenge issued at login when the
// account has MFA enabled.
type MFACode struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	CodeHash  string     `db:"code_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
