package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/audit"
	"github.com/clinika/clinika/internal/platform/db"
	"github.com/clinika/clinika/internal/platform/signing"
)

// Encounter is the consultation slice the prescription pipeline needs.
type Encounter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

type EncounterDirectory interface {
	Encounter(ctx context.Context, organizationID, consultationID uuid.UUID) (*Encounter, error)
}

type LicenseDirectory interface {
	License(ctx context.Context, organizationID, doctorID uuid.UUID) (signing.License, error)
}

type Service struct {
	repo       Repository
	encounters EncounterDirectory
	licenses   LicenseDirectory
	signer     *signing.Signer
	tx         db.TxRunner
	clock      func() time.Time
}

func NewService(repo Repository, encounters EncounterDirectory, licenses LicenseDirectory, signer *signing.Signer, tx db.TxRunner) *Service {
	return &Service{repo: repo, encounters: encounters, licenses: licenses, signer: signer, tx: tx, clock: time.Now}
}

// WithClock overrides the revocation clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Create opens a draft prescription on the doctor's own consultation. The
// medication lines must not be empty.
func (s *Service) Create(ctx context.Context, organizationID, consultationID, actingDoctorID uuid.UUID, content map[string]any) (*Prescription, error) {
	if len(content) == 0 {
		return nil, apperr.BadRequest("prescription content is required")
	}
	enc, err := s.encounters.Encounter(ctx, organizationID, consultationID)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, apperr.NotFound("consultation not found")
	}
	if enc.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the consultation's doctor may prescribe")
	}

	p := &Prescription{
		OrganizationID: organizationID,
		ConsultationID: consultationID,
		PatientID:      enc.PatientID,
		DoctorID:       enc.DoctorID,
		Status:         StatusDraft,
		Content:        content,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("prescription not found")
	}
	return p, nil
}

func (s *Service) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.repo.ListByPatient(ctx, organizationID, patientID, limit, offset)
}

// UpdateContent shallow-merges patch into the draft.
func (s *Service) UpdateContent(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID, patch map[string]any) (*Prescription, error) {
	p, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if p.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the owning doctor may edit this prescription")
	}
	if p.Status != StatusDraft {
		return nil, apperr.Newf(apperr.KindBadRequest,
			"%s: cannot edit content in status %s", EntityType, p.Status)
	}

	merged := signing.MergeContent(p.Content, patch)
	changed, err := s.repo.UpdateContent(ctx, organizationID, id, StatusDraft, merged)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.Conflict("prescription was updated concurrently")
	}
	p.Content = merged
	return p, nil
}

// Sign seals the prescription; the status flip and the audit entry share a
// transaction.
func (s *Service) Sign(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID, callerIP string) (*Prescription, error) {
	p, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if p.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the owning doctor may sign this prescription")
	}
	if err := statusMachine.Validate(p.Status, StatusSigned); err != nil {
		return nil, err
	}

	license, err := s.licenses.License(ctx, organizationID, p.DoctorID)
	if err != nil {
		return nil, err
	}

	sig, err := s.signer.Seal(signing.Payload{
		EntityType: EntityType,
		EntityID:   p.ID,
		PatientID:  p.PatientID,
		DoctorID:   p.DoctorID,
		License:    license,
		Content:    p.Content,
	}, callerIP)
	if err != nil {
		return nil, err
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		won, err := s.repo.SetSigned(ctx, organizationID, id, sig)
		if err != nil {
			return err
		}
		if !won {
			return apperr.Newf(apperr.KindBadRequest,
				"%s: cannot sign in status %s", EntityType, StatusSigned)
		}
		return s.signer.Audit(ctx, actingDoctorID, audit.ActionSign, EntityType, p.ID, callerIP, nil)
	})
	if err != nil {
		return nil, err
	}

	s.signer.MarkSigned(EntityType)

	p.Status = StatusSigned
	p.SignatureHash = &sig.Hash
	p.SignedAt = &sig.SignedAt
	p.SignedByIP = &sig.SignedIP
	p.SignedLicenseNumber = &sig.License.Number
	p.SignedLicenseState = &sig.License.State
	return p, nil
}

// Revoke cancels the prescription from DRAFT or SIGNED. The audit entry
// shares the transaction with the status flip.
func (s *Service) Revoke(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID, reason, callerIP string) (*Prescription, error) {
	if reason == "" {
		return nil, apperr.BadRequest("a revocation reason is required")
	}
	p, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if p.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the owning doctor may revoke this prescription")
	}
	if err := statusMachine.Validate(p.Status, StatusRevoked); err != nil {
		return nil, err
	}

	at := s.clock().UTC()
	err = s.tx(ctx, func(ctx context.Context) error {
		won, err := s.repo.SetRevoked(ctx, organizationID, id, p.Status, reason, at)
		if err != nil {
			return err
		}
		if !won {
			return apperr.Newf(apperr.KindBadRequest,
				"%s: cannot revoke in status %s", EntityType, StatusRevoked)
		}
		return s.signer.Audit(ctx, actingDoctorID, audit.ActionRevoke, EntityType, p.ID, callerIP,
			map[string]any{"reason": reason})
	})
	if err != nil {
		return nil, err
	}

	p.Status = StatusRevoked
	p.RevokedAt = &at
	p.RevokeReason = &reason
	return p, nil
}

// VerifySignature reconstructs the payload from stored fields and checks the
// hash. The license comes from the snapshot taken at signing time, never
// from the live doctor profile.
func (s *Service) VerifySignature(ctx context.Context, organizationID, id uuid.UUID) (bool, error) {
	p, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return false, err
	}
	if p.SignatureHash == nil || p.SignedAt == nil ||
		p.SignedLicenseNumber == nil || p.SignedLicenseState == nil {
		return false, apperr.BadRequest("prescription is not signed")
	}

	return s.signer.Verify(signing.Payload{
		EntityType: EntityType,
		EntityID:   p.ID,
		PatientID:  p.PatientID,
		DoctorID:   p.DoctorID,
		License:    signing.License{Number: *p.SignedLicenseNumber, State: *p.SignedLicenseState},
		Content:    p.Content,
	}, signing.Signature{Hash: *p.SignatureHash, SignedAt: *p.SignedAt})
}
