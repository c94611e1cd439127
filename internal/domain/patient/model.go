package patient

import (
	"time"

	"github.com/google/uuid"
)

// Stage tracks how far a patient has moved through the clinic's intake and
// treatment flow. Stages only move forward.
type Stage string

const (
	StageRegistration   Stage = "REGISTRATION"
	StageConsultation   Stage = "CONSULTATION"
	StageAnvisaApproval Stage = "ANVISA_APPROVAL"
	StageTreatment      Stage = "TREATMENT"
)

// stageOrder defines the forward progression.
var stageOrder = []Stage{StageRegistration, StageConsultation, StageAnvisaApproval, StageTreatment}

// Next returns the stage after s, or s itself at the end of the flow.
func (s Stage) Next() Stage {
	for i, st := range stageOrder {
		if st == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return s
}

// Patient is a clinic patient. The CPF is stored encrypted; CPFHash is the
// deterministic digest used for duplicate checks and lookups.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	FullName       string     `db:"full_name" json:"full_name"`
	CPFEncrypted   string     `db:"cpf_encrypted" json:"-"`
	CPFHash        string     `db:"cpf_hash" json:"-"`
	BirthDate      *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone          string     `db:"phone" json:"phone"`
	Email          string     `db:"email" json:"email"`
	Stage          Stage      `db:"stage" json:"stage"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
