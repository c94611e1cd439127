package doctor

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists doctors. Every read is scoped to an organization; a
// doctor from another tenant is indistinguishable from one that does not
// exist.
type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Doctor, error)
	GetByUser(ctx context.Context, organizationID, userID uuid.UUID) (*Doctor, error)
	List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Doctor, int, error)
	Update(ctx context.Context, d *Doctor) error
	SetActive(ctx context.Context, organizationID, id uuid.UUID, active bool) error
}
