package medicalrecord

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/signing"
)

// Repository persists medical records, scoped by organization. The two
// mutating calls are conditional on the current status so concurrent writers
// cannot both win.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Record, error)
	ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)
	// UpdateContent replaces content for a record still in fromStatus;
	// reports whether a row changed.
	UpdateContent(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error)
	// SetSigned moves DRAFT to SIGNED and stores the signature; reports
	// whether this call won the transition.
	SetSigned(ctx context.Context, organizationID, id uuid.UUID, sig signing.Signature) (bool, error)
}
