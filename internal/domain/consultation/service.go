package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
)

// PatientDirectory confirms the patient belongs to the organization.
type PatientDirectory interface {
	Exists(ctx context.Context, organizationID, patientID uuid.UUID) (bool, error)
}

// DoctorDirectory confirms the doctor belongs to the organization.
type DoctorDirectory interface {
	Exists(ctx context.Context, organizationID, doctorID uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	doctors  DoctorDirectory
}

func NewService(repo Repository, patients PatientDirectory, doctors DoctorDirectory) *Service {
	return &Service{repo: repo, patients: patients, doctors: doctors}
}

// Schedule books a consultation. Both parties must exist in the caller's
// organization.
func (s *Service) Schedule(ctx context.Context, c *Consultation) error {
	if c.ScheduledAt.IsZero() {
		return apperr.BadRequest("scheduled_at is required")
	}

	if ok, err := s.patients.Exists(ctx, c.OrganizationID, c.PatientID); err != nil {
		return err
	} else if !ok {
		return apperr.NotFound("patient not found")
	}
	if ok, err := s.doctors.Exists(ctx, c.OrganizationID, c.DoctorID); err != nil {
		return err
	} else if !ok {
		return apperr.NotFound("doctor not found")
	}

	c.Status = StatusScheduled
	return s.repo.Create(ctx, c)
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFound("consultation not found")
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.List(ctx, organizationID, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return s.repo.ListByPatient(ctx, organizationID, patientID, limit, offset)
}

// Agenda lists a doctor's consultations inside a time window.
func (s *Service) Agenda(ctx context.Context, organizationID, doctorID uuid.UUID, from, to time.Time) ([]*Consultation, error) {
	if !to.After(from) {
		return nil, apperr.BadRequest("agenda window must end after it starts")
	}
	return s.repo.ListByDoctorBetween(ctx, organizationID, doctorID, from, to)
}

// Transition moves the consultation to a new status. The adjacency table
// rejects illegal moves; the conditional update loses gracefully when a
// concurrent request moved the row first.
func (s *Service) Transition(ctx context.Context, organizationID, id uuid.UUID, to string) (*Consultation, error) {
	c, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if err := statusMachine.Validate(c.Status, to); err != nil {
		return nil, err
	}

	moved, err := s.repo.UpdateStatus(ctx, organizationID, id, c.Status, to)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperr.Conflict("consultation was updated concurrently")
	}
	c.Status = to
	return c, nil
}
