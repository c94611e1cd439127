package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the billing lifecycle state of an organization's plan.
type Status string

const (
	StatusTrial    Status = "TRIAL"
	StatusActive   Status = "ACTIVE"
	StatusPastDue  Status = "PAST_DUE"
	StatusCanceled Status = "CANCELED"
)

// CanceledGracePeriod is how long after cancellation an organization keeps
// read-only access to its data.
const CanceledGracePeriod = 30 * 24 * time.Hour

// Subscription ties an organization to a billing state. The most recent row
// per organization is the authoritative one.
type Subscription struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	Plan           string     `db:"plan" json:"plan"`
	Status         Status     `db:"status" json:"status"`
	TrialEndsAt    *time.Time `db:"trial_ends_at" json:"trial_ends_at,omitempty"`
	CanceledAt     *time.Time `db:"canceled_at" json:"canceled_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
