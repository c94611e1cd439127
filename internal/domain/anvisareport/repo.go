package anvisareport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/signing"
)

// Repository persists reports, scoped by organization. Status moves are
// conditional on the expected predecessor so concurrent transitions pick one
// winner.
type Repository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Report, error)
	ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Report, int, error)
	UpdateContent(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error)
	// SetSigned also stamps the expiry derived from the signing time.
	SetSigned(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, sig signing.Signature, expiresAt time.Time) (bool, error)
	// SetStatus records note beside the new status: the protocol number on
	// SUBMITTED, the agency response on APPROVED and REJECTED.
	SetStatus(ctx context.Context, organizationID, id uuid.UUID, from, to string, at time.Time, note *string) (bool, error)
}
