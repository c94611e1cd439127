package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/db"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *RepoPG) Create(ctx context.Context, sub *Subscription) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO subscriptions (organization_id, plan, status, trial_ends_at, canceled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		sub.OrganizationID, sub.Plan, sub.Status, sub.TrialEndsAt, sub.CanceledAt)
	if err := row.Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return apperr.Storage("subscription: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, organization_id, plan, status, trial_ends_at, canceled_at, created_at, updated_at
		FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row, "subscription: get")
}

func (r *RepoPG) LatestByOrganization(ctx context.Context, organizationID uuid.UUID) (*Subscription, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, organization_id, plan, status, trial_ends_at, canceled_at, created_at, updated_at
		FROM subscriptions
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, organizationID)
	return scanSubscription(row, "subscription: latest")
}

func (r *RepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, canceledAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, canceled_at = $3, updated_at = NOW()
		WHERE id = $1`,
		id, status, canceledAt)
	if err != nil {
		return apperr.Storage("subscription: update status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("subscription not found")
	}
	return nil
}

// ExpireTrial is a compare-and-swap on the status column. Concurrent callers
// race to flip the row; only one sees RowsAffected() == 1.
func (r *RepoPG) ExpireTrial(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, StatusPastDue, StatusTrial)
	if err != nil {
		return false, apperr.Storage("subscription: expire trial", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanSubscription(row pgx.Row, op string) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.OrganizationID, &sub.Plan, &sub.Status,
		&sub.TrialEndsAt, &sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &sub, nil
}
