package doctor

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is a licensed practitioner within one organization. The CRM pair
// (number, state) is the Brazilian medical license stamped into document
// signatures.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	FullName       string    `db:"full_name" json:"full_name"`
	CRMNumber      string    `db:"crm_number" json:"crm_number"`
	CRMState       string    `db:"crm_state" json:"crm_state"`
	Specialty      string    `db:"specialty" json:"specialty"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
