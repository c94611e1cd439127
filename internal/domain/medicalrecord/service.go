package medicalrecord

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/audit"
	"github.com/clinika/clinika/internal/platform/db"
	"github.com/clinika/clinika/internal/platform/signing"
)

// Encounter is the slice of a consultation the record pipeline needs: who
// owns it and who it is about.
type Encounter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

// EncounterDirectory resolves a consultation within the organization.
type EncounterDirectory interface {
	Encounter(ctx context.Context, organizationID, consultationID uuid.UUID) (*Encounter, error)
}

// LicenseDirectory resolves the signing doctor's professional license.
type LicenseDirectory interface {
	License(ctx context.Context, organizationID, doctorID uuid.UUID) (signing.License, error)
}

type Service struct {
	repo       Repository
	encounters EncounterDirectory
	licenses   LicenseDirectory
	signer     *signing.Signer
	tx         db.TxRunner
}

func NewService(repo Repository, encounters EncounterDirectory, licenses LicenseDirectory, signer *signing.Signer, tx db.TxRunner) *Service {
	return &Service{repo: repo, encounters: encounters, licenses: licenses, signer: signer, tx: tx}
}

// Create opens a draft record for a consultation. Only the doctor who owns
// the consultation may create its record.
func (s *Service) Create(ctx context.Context, organizationID, consultationID, actingDoctorID uuid.UUID, content map[string]any) (*Record, error) {
	enc, err := s.encounters.Encounter(ctx, organizationID, consultationID)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, apperr.NotFound("consultation not found")
	}
	if enc.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the consultation's doctor may create its record")
	}

	if content == nil {
		content = map[string]any{}
	}
	r := &Record{
		OrganizationID: organizationID,
		ConsultationID: consultationID,
		PatientID:      enc.PatientID,
		DoctorID:       enc.DoctorID,
		Status:         StatusDraft,
		Content:        content,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*Record, error) {
	r, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("medical record not found")
	}
	return r, nil
}

func (s *Service) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByPatient(ctx, organizationID, patientID, limit, offset)
}

// UpdateContent shallow-merges patch into the draft's content. New keys
// overwrite, absent keys survive, so partial saves do not lose sections.
func (s *Service) UpdateContent(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID, patch map[string]any) (*Record, error) {
	r, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if r.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the owning doctor may edit this record")
	}
	if err := statusMachine.Validate(r.Status, StatusSigned); err != nil {
		// Not in DRAFT: report it as an edit against a frozen document.
		return nil, apperr.Newf(apperr.KindBadRequest,
			"%s: cannot edit content in status %s", EntityType, r.Status)
	}

	merged := signing.MergeContent(r.Content, patch)
	changed, err := s.repo.UpdateContent(ctx, organizationID, id, StatusDraft, merged)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.Conflict("record was signed concurrently")
	}
	r.Content = merged
	return r, nil
}

// Sign freezes the record: the content as stored becomes the signature
// payload, the conditional status flip picks exactly one winner, and the
// audit entry commits in the same transaction.
func (s *Service) Sign(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID, callerIP string) (*Record, error) {
	r, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if r.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the owning doctor may sign this record")
	}
	if err := statusMachine.Validate(r.Status, StatusSigned); err != nil {
		return nil, err
	}

	license, err := s.licenses.License(ctx, organizationID, r.DoctorID)
	if err != nil {
		return nil, err
	}

	sig, err := s.signer.Seal(signing.Payload{
		EntityType: EntityType,
		EntityID:   r.ID,
		PatientID:  r.PatientID,
		DoctorID:   r.DoctorID,
		License:    license,
		Content:    r.Content,
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
			// A concurrent signer got there first.
			return apperr.Newf(apperr.KindBadRequest,
				"%s: cannot sign in status %s", EntityType, StatusSigned)
		}
		return s.signer.Audit(ctx, actingDoctorID, audit.ActionSign, EntityType, r.ID, callerIP, nil)
	})
	if err != nil {
		return nil, err
	}

	s.signer.MarkSigned(EntityType)

	r.Status = StatusSigned
	r.SignatureHash = &sig.Hash
	r.SignedAt = &sig.SignedAt
	r.SignedByIP = &sig.SignedIP
	r.SignedLicenseNumber = &sig.License.Number
	r.SignedLicenseState = &sig.License.State
	return r, nil
}

// VerifySignature reconstructs the payload from stored fields and checks the
// hash. The license comes from the snapshot taken at signing time, never
// from the live doctor profile.
func (s *Service) VerifySignature(ctx context.Context, organizationID, id uuid.UUID) (bool, error) {
	r, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return false, err
	}
	if r.Status != StatusSigned || r.SignatureHash == nil || r.SignedAt == nil ||
		r.SignedLicenseNumber == nil || r.SignedLicenseState == nil {
		return false, apperr.BadRequest("record is not signed")
	}

	return s.signer.Verify(signing.Payload{
		EntityType: EntityType,
		EntityID:   r.ID,
		PatientID:  r.PatientID,
		DoctorID:   r.DoctorID,
		License:    signing.License{Number: *r.SignedLicenseNumber, State: *r.SignedLicenseState},
		Content:    r.Content,
	}, signing.Signature{Hash: *r.SignatureHash, SignedAt: *r.SignedAt})
}
