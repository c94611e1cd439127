package medicalrecord

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/signing"
)

// EntityType tags signature payloads and audit entries for this document.
const EntityType = "medical_record"

const (
	StatusDraft  = "DRAFT"
	StatusSigned = "SIGNED"
)

// statusMachine: a record is written during the encounter and sealed once.
var statusMachine = signing.NewMachine(EntityType, map[string][]string{
	StatusDraft:  {StatusSigned},
	StatusSigned: {},
})

// Record is the clinical note of one consultation. Content is free-form
// structured data owned by the doctor; once signed it is frozen and covered
// by the signature hash.
type Record struct {
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
	// License snapshot at signing time; verification reads it from here so a
	// later CRM correction cannot invalidate an untampered signature.
	SignedLicenseNumber *string   `db:"signed_license_number" json:"signed_license_number,omitempty"`
	SignedLicenseState  *string   `db:"signed_license_state" json:"signed_license_state,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}
