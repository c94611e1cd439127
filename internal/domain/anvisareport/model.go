package anvisareport

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/signing"
)

const EntityType = "anvisa_report"

const (
	StatusDraft            = "DRAFT"
	StatusPendingSignature = "PENDING_SIGNATURE"
	StatusSigned           = "SIGNED"
	StatusSubmitted        = "SUBMITTED"
	StatusApproved         = "APPROVED"
	StatusRejected         = "REJECTED"
)

// consentField must be true in the content before the report may be signed.
const consentField = "patient_consent"

// statusMachine: the regulatory flow. A report may be marked ready for
// signature or signed straight from draft; after submission only the agency
// outcome moves it.
var statusMachine = signing.NewMachine(EntityType, map[string][]string{
	StatusDraft:            {StatusPendingSignature, StatusSigned},
	StatusPendingSignature: {StatusSigned},
	StatusSigned:           {StatusSubmitted},
	StatusSubmitted:        {StatusApproved, StatusRejected},
	StatusApproved:         {},
	StatusRejected:         {},
})

// Report is the regulatory authorization request filed with ANVISA for a
// patient's treatment. A signed report is valid for one year.
type Report struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	OrganizationID uuid.UUID      `db:"organization_id" json:"organization_id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	Status         string         `db:"status" json:"status"`
	Content        map[string]any `db:"content" json:"content"`
	SignatureHash  *string        `db:"signature_hash" json:"signature_hash,omitempty"`
	SignedAt       *time.Time     `db:"signed_at" json:"signed_at,omitempty"`
	SignedByIP     *string        `db:"signed_by_ip" json:"signed_by_ip,omitempty"`
	// License snapshot at signing time; verification reads it from here so a
	// later CRM correction cannot invalidate an untampered signature.
	SignedLicenseNumber *string    `db:"signed_license_number" json:"signed_license_number,omitempty"`
	SignedLicenseState  *string    `db:"signed_license_state" json:"signed_license_state,omitempty"`
	ExpiresAt           *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	// ProtocolNumber is the agency's filing reference recorded on submission;
	// AgencyResponse is its stated outcome recorded on approval or rejection.
	// Both live beside the status and are never part of the signed payload.
	ProtocolNumber *string    `db:"protocol_number" json:"protocol_number,omitempty"`
	AgencyResponse *string    `db:"agency_response" json:"agency_response,omitempty"`
	SubmittedAt    *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	DecidedAt      *time.Time `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
