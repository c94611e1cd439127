package doctor

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/signing"
)

// Brazilian federative units; a CRM is issued per state.
var validUFs = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true,
	"DF": true, "ES": true, "GO": true, "MA": true, "MT": true, "MS": true,
	"MG": true, "PA": true, "PB": true, "PR": true, "PE": true, "PI": true,
	"RJ": true, "RN": true, "RS": true, "RO": true, "RR": true, "SC": true,
	"SP": true, "SE": true, "TO": true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, d *Doctor) error {
	if d.FullName == "" {
		return apperr.BadRequest("full_name is required")
	}
	if err := validateCRM(d.CRMNumber, d.CRMState); err != nil {
		return err
	}
	d.CRMState = strings.ToUpper(d.CRMState)

	if existing, err := s.repo.GetByUser(ctx, d.OrganizationID, d.UserID); err != nil {
		return err
	} else if existing != nil {
		return apperr.Conflict("user already has a doctor profile in this organization")
	}
	d.Active = true
	return s.repo.Create(ctx, d)
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

// ForUser resolves the caller's doctor profile in the organization, or
// NotFound when the user is not a practitioner there.
func (s *Service) ForUser(ctx context.Context, organizationID, userID uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetByUser(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("no doctor profile for this user")
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.List(ctx, organizationID, limit, offset)
}

func (s *Service) Update(ctx context.Context, d *Doctor) error {
	if err := validateCRM(d.CRMNumber, d.CRMState); err != nil {
		return err
	}
	d.CRMState = strings.ToUpper(d.CRMState)
	return s.repo.Update(ctx, d)
}

func (s *Service) SetActive(ctx context.Context, organizationID, id uuid.UUID, active bool) error {
	return s.repo.SetActive(ctx, organizationID, id, active)
}

// License returns the signing license of an active doctor. Inactive doctors
// cannot sign documents.
func (s *Service) License(ctx context.Context, organizationID, id uuid.UUID) (signing.License, error) {
	d, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return signing.License{}, err
	}
	if !d.Active {
		return signing.License{}, apperr.Forbidden("doctor profile is inactive")
	}
	return signing.License{Number: d.CRMNumber, State: d.CRMState}, nil
}

func validateCRM(number, state string) error {
	if number == "" {
		return apperr.BadRequest("crm_number is required")
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return apperr.BadRequest("crm_number must contain only digits")
		}
	}
	if !validUFs[strings.ToUpper(state)] {
		return apperr.BadRequest("crm_state must be a valid federative unit")
	}
	return nil
}
