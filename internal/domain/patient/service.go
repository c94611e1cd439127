package patient

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/crypto"
)

type Service struct {
	repo   Repository
	engine *crypto.Engine
}

func NewService(repo Repository, engine *crypto.Engine) *Service {
	return &Service{repo: repo, engine: engine}
}

// Create registers a patient, encrypting the CPF and refusing duplicates
// within the organization.
func (s *Service) Create(ctx context.Context, p *Patient, cpf string) error {
	if p.FullName == "" {
		return apperr.BadRequest("full_name is required")
	}
	if cpf == "" {
		return apperr.BadRequest("cpf is required")
	}

	cpfHash := crypto.HashForLookup(cpf)
	if existing, err := s.repo.GetByCPFHash(ctx, p.OrganizationID, cpfHash); err != nil {
		return err
	} else if existing != nil {
		return apperr.Conflict("a patient with this cpf already exists")
	}

	encrypted, err := s.engine.Encrypt(cpf)
	if err != nil {
		return err
	}
	p.CPFEncrypted = encrypted
	p.CPFHash = cpfHash
	p.Stage = StageRegistration
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

// FindByCPF locates a patient by document number without decrypting any
// stored rows.
func (s *Service) FindByCPF(ctx context.Context, organizationID uuid.UUID, cpf string) (*Patient, error) {
	p, err := s.repo.GetByCPFHash(ctx, organizationID, crypto.HashForLookup(cpf))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

// CPF decrypts the patient's document number.
func (s *Service) CPF(ctx context.Context, organizationID, id uuid.UUID) (string, error) {
	p, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return "", err
	}
	return s.engine.Decrypt(p.CPFEncrypted)
}

func (s *Service) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, organizationID, limit, offset)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.FullName == "" {
		return apperr.BadRequest("full_name is required")
	}
	return s.repo.Update(ctx, p)
}

// AdvanceStage moves the patient one step forward in the treatment flow.
// Already at the final stage is a no-op, not an error; regulatory approval
// may arrive more than once.
func (s *Service) AdvanceStage(ctx context.Context, organizationID, id uuid.UUID) error {
	p, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return err
	}
	next := p.Stage.Next()
	if next == p.Stage {
		return nil
	}
	return s.repo.SetStage(ctx, organizationID, id, next)
}
