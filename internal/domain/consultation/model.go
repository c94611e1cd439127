package consultation

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/signing"
)

const (
	StatusScheduled  = "SCHEDULED"
	StatusConfirmed  = "CONFIRMED"
	StatusWaiting    = "WAITING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCanceled   = "CANCELED"
	StatusNoShow     = "NO_SHOW"
)

// statusMachine is the appointment flow. Cancellation and no-show are
// reachable from every non-terminal status.
var statusMachine = signing.NewMachine("consultation", map[string][]string{
	StatusScheduled:  {StatusConfirmed, StatusCanceled, StatusNoShow},
	StatusConfirmed:  {StatusWaiting, StatusCanceled, StatusNoShow},
	StatusWaiting:    {StatusInProgress, StatusCanceled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCanceled, StatusNoShow},
	StatusCompleted:  {},
	StatusCanceled:   {},
	StatusNoShow:     {},
})

// Consultation is a scheduled appointment between a patient and a doctor.
type Consultation struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Status         string    `db:"status" json:"status"`
	ScheduledAt    time.Time `db:"scheduled_at" json:"scheduled_at"`
	Notes          string    `db:"notes" json:"notes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
