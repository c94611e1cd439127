package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists subscriptions.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// LatestByOrganization returns the most recent subscription for the
	// organization, or nil when it has none.
	LatestByOrganization(ctx context.Context, organizationID uuid.UUID) (*Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, canceledAt *time.Time) error
	// ExpireTrial flips a TRIAL subscription to PAST_DUE. It reports whether
	// this call performed the flip; false means another request already did.
	ExpireTrial(ctx context.Context, id uuid.UUID) (bool, error)
}
