package organization

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/authz"
)

// Organization is the tenant boundary: every clinical document and
// membership belongs to exactly one.
type Organization struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CNPJ      *string   `db:"cnpj" json:"cnpj,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Membership grants a user a role within one organization. At most one
// membership exists per (user, organization) pair; an inactive membership
// grants no access.
type Membership struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	Role           authz.Role `db:"role" json:"role"`
	Active         bool       `db:"is_active" json:"is_active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
