package organization

import (
	"context"

	"github.com/google/uuid"
)

type OrganizationRepository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)
}

type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	// Get returns the membership for (userID, organizationID) regardless of
	// active flag, or nil.
	Get(ctx context.Context, userID, organizationID uuid.UUID) (*Membership, error)
	// GetSuperAdmin returns the user's SUPER_ADMIN membership row, or nil.
	GetSuperAdmin(ctx context.Context, userID uuid.UUID) (*Membership, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Membership, int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error)
}
