package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/signing"
)

// Repository persists prescriptions, scoped by organization. Mutations are
// conditional on the current status.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	UpdateContent(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error)
	SetSigned(ctx context.Context, organizationID, id uuid.UUID, sig signing.Signature) (bool, error)
	// SetRevoked moves fromStatus to REVOKED; reports whether a row moved.
	SetRevoked(ctx context.Context, organizationID, id uuid.UUID, fromStatus, reason string, at time.Time) (bool, error)
}
