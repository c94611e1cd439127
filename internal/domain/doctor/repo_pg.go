package doctor

import (
	"context"
	"errors"

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

const doctorColumns = `id, organization_id, user_id, full_name, crm_number, crm_state,
	specialty, active, created_at, updated_at`

func (r *RepoPG) Create(ctx context.Context, d *Doctor) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (organization_id, user_id, full_name, crm_number, crm_state, specialty, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		d.OrganizationID, d.UserID, d.FullName, d.CRMNumber, d.CRMState, d.Specialty, d.Active)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return apperr.Storage("doctor: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Doctor, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorColumns+` FROM doctors WHERE organization_id = $1 AND id = $2`,
		organizationID, id)
	return scanDoctor(row, "doctor: get")
}

func (r *RepoPG) GetByUser(ctx context.Context, organizationID, userID uuid.UUID) (*Doctor, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorColumns+` FROM doctors WHERE organization_id = $1 AND user_id = $2`,
		organizationID, userID)
	return scanDoctor(row, "doctor: get by user")
}

func (r *RepoPG) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctors WHERE organization_id = $1`, organizationID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("doctor: count", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+doctorColumns+` FROM doctors
		WHERE organization_id = $1
		ORDER BY full_name
		LIMIT $2 OFFSET $3`,
		organizationID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("doctor: list", err)
	}
	defer rows.Close()

	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows, "doctor: list")
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("doctor: list", err)
	}
	return out, total, nil
}

func (r *RepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctors
		SET full_name = $3, crm_number = $4, crm_state = $5, specialty = $6, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`,
		d.OrganizationID, d.ID, d.FullName, d.CRMNumber, d.CRMState, d.Specialty)
	if err != nil {
		return apperr.Storage("doctor: update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func (r *RepoPG) SetActive(ctx context.Context, organizationID, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE doctors SET active = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		organizationID, id, active)
	if err != nil {
		return apperr.Storage("doctor: set active", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor not found")
	}
	return nil
}

func scanDoctor(row pgx.Row, op string) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.OrganizationID, &d.UserID, &d.FullName, &d.CRMNumber,
		&d.CRMState, &d.Specialty, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &d, nil
}
