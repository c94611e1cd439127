package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists consultations, scoped by organization.
type Repository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Consultation, error)
	List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
	ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error)
	ListByDoctorBetween(ctx context.Context, organizationID, doctorID uuid.UUID, from, to time.Time) ([]*Consultation, error)
	// UpdateStatus only touches rows still in the expected status; it
	// reports whether a row moved.
	UpdateStatus(ctx context.Context, organizationID, id uuid.UUID, from, to string) (bool, error)
}
