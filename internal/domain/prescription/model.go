package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/signing"
)

const EntityType = "prescription"

const (
	StatusDraft   = "DRAFT"
	StatusSigned  = "SIGNED"
	StatusRevoked = "REVOKED"
)

// statusMachine: a prescription is drafted, signed, and may be revoked both
// before and after signing.
var statusMachine = signing.NewMachine(EntityType, map[string][]string{
	StatusDraft:   {StatusSigned, StatusRevoked},
	StatusSigned:  {StatusRevoked},
	StatusRevoked: {},
})

// Prescription is a dispensation order tied to a consultation. Content holds
// the medication lines; once signed the content is frozen under the
// signature hash.
type Prescription struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	OrganizationID uuid.UUID      `db:"organization_id" json:"organization_id"`
	ConsultationID uuid.UUID      `db:"consultation_id" json:"consultation_id"`
	PatientID      uuid.UUID      `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	Status         string         `db:"status" json:"status"`
	Content        map[string]any `db:"content" json:"content"`
	SignatureHash  *string        `db:"signature_hash" json:"signature_hash,omitempty"`
	SignedAt       *time.Time     `db:"signed_at" json:"signed_at,omitempty"`
	SignedByIP     *string        `db:"signed_by_ip" json:"signed_by_ip,omitempty"`
	// The license is snapshotted at signing time; verification reads it from
	// here, so a later CRM correction on the doctor profile cannot invalidate
	// an untampered signature.
	SignedLicenseNumber *string    `db:"signed_license_number" json:"signed_license_number,omitempty"`
	SignedLicenseState  *string    `db:"signed_license_state" json:"signed_license_state,omitempty"`
	RevokedAt           *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokeReason        *string    `db:"revoke_reason" json:"revoke_reason,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}
