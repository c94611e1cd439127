package anvisareport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/audit"
	"github.com/clinika/clinika/internal/platform/db"
	"github.com/clinika/clinika/internal/platform/signing"
)

// ReportValidity is how long a signed report authorizes treatment.
const ReportValidity = 365 * 24 * time.Hour

// PatientPipeline is the collaborator notified when the agency approves a
// report; approval moves the patient forward in the clinic's flow.
type PatientPipeline interface {
	AdvanceStage(ctx context.Context, organizationID, patientID uuid.UUID) error
}

// PatientDirectory confirms the patient belongs to the organization.
type PatientDirectory interface {
	Exists(ctx context.Context, organizationID, patientID uuid.UUID) (bool, error)
}

type LicenseDirectory interface {
	License(ctx context.Context, organizationID, doctorID uuid.UUID) (signing.License, error)
}

type Service struct {
	repo     Repository
	patients PatientDirectory
	pipeline PatientPipeline
	licenses LicenseDirectory
	signer   *signing.Signer
	tx       db.TxRunner
	clock    func() time.Time
}

func NewService(repo Repository, patients PatientDirectory, pipeline PatientPipeline, licenses LicenseDirectory, signer *signing.Signer, tx db.TxRunner) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		pipeline: pipeline,
		licenses: licenses,
		signer:   signer,
		tx:       tx,
		clock:    time.Now,
	}
}

// WithClock overrides the transition clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Create opens a draft report for one of the doctor's patients.
func (s *Service) Create(ctx context.Context, organizationID, patientID, actingDoctorID uuid.UUID, content map[string]any) (*Report, error) {
	if ok, err := s.patients.Exists(ctx, organizationID, patientID); err != nil {
		return nil, err
	} else if !ok {
		return nil, apperr.NotFound("patient not found")
	}

	if content == nil {
		content = map[string]any{}
	}
	r := &Report{
		OrganizationID: organizationID,
		PatientID:      patientID,
		DoctorID:       actingDoctorID,
		Status:         StatusDraft,
		Content:        content,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*Report, error) {
	r, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("report not found")
	}
	return r, nil
}

func (s *Service) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	return s.repo.ListByPatient(ctx, organizationID, patientID, limit, offset)
}

// UpdateContent shallow-merges patch into the report while it is still
// editable (draft or awaiting signature).
func (s *Service) UpdateContent(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID, patch map[string]any) (*Report, error) {
	r, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if r.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the owning doctor may edit this report")
	}
	if r.Status != StatusDraft && r.Status != StatusPendingSignature {
		return nil, apperr.Newf(apperr.KindBadRequest,
			"%s: cannot edit content in status %s", EntityType, r.Status)
	}

	merged := signing.MergeContent(r.Content, patch)
	changed, err := s.repo.UpdateContent(ctx, organizationID, id, r.Status, merged)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, apperr.Conflict("report was updated concurrently")
	}
	r.Content = merged
	return r, nil
}

// MarkReady moves the draft into the pending-signature queue.
func (s *Service) MarkReady(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID) (*Report, error) {
	return s.transition(ctx, organizationID, id, &actingDoctorID, StatusPendingSignature, "", "", nil)
}

// Sign seals the report. The patient's explicit consent must be declared in
// the content, and the signature carries a one-year validity.
func (s *Service) Sign(ctx context.Context, organizationID, id, actingDoctorID uuid.UUID, callerIP string) (*Report, error) {
	r, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if r.DoctorID != actingDoctorID {
		return nil, apperr.Forbidden("only the owning doctor may sign this report")
	}
	if err := statusMachine.Validate(r.Status, StatusSigned); err != nil {
		return nil, err
	}
	if consent, _ := r.Content[consentField].(bool); !consent {
		return nil, apperr.BadRequest("patient consent must be declared before signing")
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
	expiresAt := sig.SignedAt.Add(ReportValidity)

	err = s.tx(ctx, func(ctx context.Context) error {
		won, err := s.repo.SetSigned(ctx, organizationID, id, r.Status, sig, expiresAt)
		if err != nil {
			return err
		}
		if !won {
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
	r.ExpiresAt = &expiresAt
	return r, nil
}

// Submit files the signed report with the agency under its protocol number.
func (s *Service) Submit(ctx context.Context, organizationID, id, actorID uuid.UUID, protocolNumber, callerIP string) (*Report, error) {
	if protocolNumber == "" {
		return nil, apperr.BadRequest("a submission protocol number is required")
	}
	return s.transition(ctx, organizationID, id, nil, StatusSubmitted, audit.ActionSubmit, callerIP, &protocolNumber, actorID)
}

// Approve records the agency's approval and advances the patient's stage.
// The response text is optional.
func (s *Service) Approve(ctx context.Context, organizationID, id, actorID uuid.UUID, response, callerIP string) (*Report, error) {
	var note *string
	if response != "" {
		note = &response
	}
	r, err := s.transition(ctx, organizationID, id, nil, StatusApproved, audit.ActionApprove, callerIP, note, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.pipeline.AdvanceStage(ctx, organizationID, r.PatientID); err != nil {
		return nil, err
	}
	return r, nil
}

// Reject records the agency's rejection together with its stated response.
func (s *Service) Reject(ctx context.Context, organizationID, id, actorID uuid.UUID, response, callerIP string) (*Report, error) {
	if response == "" {
		return nil, apperr.BadRequest("the agency response is required to reject a report")
	}
	return s.transition(ctx, organizationID, id, nil, StatusRejected, audit.ActionReject, callerIP, &response, actorID)
}

// VerifySignature reconstructs the payload from stored fields and checks the
// hash. The license comes from the snapshot taken at signing time, never
// from the live doctor profile.
func (s *Service) VerifySignature(ctx context.Context, organizationID, id uuid.UUID) (bool, error) {
	r, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return false, err
	}
	if r.SignatureHash == nil || r.SignedAt == nil ||
		r.SignedLicenseNumber == nil || r.SignedLicenseState == nil {
		return false, apperr.BadRequest("report is not signed")
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

func (s *Service) transition(ctx context.Context, organizationID, id uuid.UUID, requireDoctor *uuid.UUID, to, auditAction, callerIP string, note *string, actorID ...uuid.UUID) (*Report, error) {
	r, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if requireDoctor != nil && r.DoctorID != *requireDoctor {
		return nil, apperr.Forbidden("only the owning doctor may move this report")
	}
	if err := statusMachine.Validate(r.Status, to); err != nil {
		return nil, err
	}

	at := s.clock().UTC()
	err = s.tx(ctx, func(ctx context.Context) error {
		won, err := s.repo.SetStatus(ctx, organizationID, id, r.Status, to, at, note)
		if err != nil {
			return err
		}
		if !won {
			// A concurrent request already moved the report.
			return apperr.Newf(apperr.KindBadRequest,
				"%s: cannot move to %s, status changed concurrently", EntityType, to)
		}
		if auditAction != "" {
			var meta map[string]any
			if note != nil {
				switch to {
				case StatusSubmitted:
					meta = map[string]any{"protocol_number": *note}
				case StatusApproved, StatusRejected:
					meta = map[string]any{"agency_response": *note}
				}
			}
			return s.signer.Audit(ctx, actorID[0], auditAction, EntityType, r.ID, callerIP, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Status = to
	switch to {
	case StatusSubmitted:
		r.SubmittedAt = &at
		r.ProtocolNumber = note
	case StatusApproved, StatusRejected:
		r.DecidedAt = &at
		r.AgencyResponse = note
	}
	return r, nil
}
