package organization

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/authz"
	"github.com/clinika/clinika/internal/platform/db"
)

// Service manages organizations and memberships, and doubles as the
// authorization pipeline's directory.
type Service struct {
	orgs    OrganizationRepository
	members MembershipRepository
	tx      db.TxRunner
}

func NewService(orgs OrganizationRepository, members MembershipRepository, tx db.TxRunner) *Service {
	return &Service{orgs: orgs, members: members, tx: tx}
}

// Create provisions an organization and its OWNER membership atomically.
func (s *Service) Create(ctx context.Context, name string, cnpj *string, ownerUserID uuid.UUID) (*Organization, error) {
	if name == "" {
		return nil, apperr.BadRequest("organization name is required")
	}

	org := &Organization{Name: name, CNPJ: cnpj}
	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.orgs.Create(ctx, org); err != nil {
			return err
		}
		return s.members.Create(ctx, &Membership{
			UserID:         ownerUserID,
			OrganizationID: org.ID,
			Role:           authz.RoleOwner,
			Active:         true,
		})
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	org, err := s.orgs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, apperr.NotFound("organization not found")
	}
	return org, nil
}

// AddMember creates a membership. A user/organization pair that already has
// one is rejected even when inactive; reactivation goes through SetMemberActive.
func (s *Service) AddMember(ctx context.Context, organizationID, userID uuid.UUID, role authz.Role) (*Membership, error) {
	if !role.Valid() || role == authz.RoleSuperAdmin {
		return nil, apperr.Newf(apperr.KindBadRequest, "invalid membership role %q", role)
	}

	existing, err := s.members.Get(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("user already has a membership in this organization")
	}

	m := &Membership{
		UserID:         userID,
		OrganizationID: organizationID,
		Role:           role,
		Active:         true,
	}
	if err := s.members.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMemberActive toggles a membership without deleting its history.
func (s *Service) SetMemberActive(ctx context.Context, organizationID, userID uuid.UUID, active bool) error {
	m, err := s.members.Get(ctx, userID, organizationID)
	if err != nil {
		return err
	}
	if m == nil {
		return apperr.NotFound("membership not found")
	}
	return s.members.SetActive(ctx, m.ID, active)
}

func (s *Service) ListMembers(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Membership, int, error) {
	return s.members.ListByOrganization(ctx, organizationID, limit, offset)
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	return s.members.ListByUser(ctx, userID)
}

// -- authz.Directory --

func (s *Service) ActiveMembership(ctx context.Context, userID, organizationID uuid.UUID) (*authz.Membership, error) {
	m, err := s.members.Get(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Active {
		return nil, nil
	}
	return toAuthz(m), nil
}

func (s *Service) Organization(ctx context.Context, organizationID uuid.UUID) (*authz.Organization, error) {
	org, err := s.orgs.GetByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, apperr.NotFound("organization not found")
	}
	return &authz.Organization{ID: org.ID, Name: org.Name}, nil
}

func (s *Service) SuperAdminMembership(ctx context.Context, userID uuid.UUID) (*authz.Membership, error) {
	m, err := s.members.GetSuperAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	return toAuthz(m), nil
}

func toAuthz(m *Membership) *authz.Membership {
	return &authz.Membership{
		ID:             m.ID,
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		Role:           m.Role,
		Active:         m.Active,
	}
}
