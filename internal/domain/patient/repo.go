package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients. All reads filter by organization so one
// tenant's patients are invisible to another.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Patient, error)
	GetByCPFHash(ctx context.Context, organizationID uuid.UUID, cpfHash string) (*Patient, error)
	List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	Update(ctx context.Context, p *Patient) error
	SetStage(ctx context.Context, organizationID, id uuid.UUID, stage Stage) error
}
