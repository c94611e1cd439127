package consultation

import (
	"context"
	"errors"
	"strconv"
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

const consultationColumns = `id, organization_id, patient_id, doctor_id, status,
	scheduled_at, notes, created_at, updated_at`

func (r *RepoPG) Create(ctx context.Context, c *Consultation) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultations (organization_id, patient_id, doctor_id, status, scheduled_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		c.OrganizationID, c.PatientID, c.DoctorID, c.Status, c.ScheduledAt, c.Notes)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return apperr.Storage("consultation: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Consultation, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+consultationColumns+` FROM consultations WHERE organization_id = $1 AND id = $2`,
		organizationID, id)
	return scanConsultation(row, "consultation: get")
}

func (r *RepoPG) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return r.list(ctx, `organization_id = $1`, []any{organizationID}, limit, offset)
}

func (r *RepoPG) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	return r.list(ctx, `organization_id = $1 AND patient_id = $2`, []any{organizationID, patientID}, limit, offset)
}

func (r *RepoPG) list(ctx context.Context, where string, args []any, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultations WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("consultation: count", err)
	}

	n := len(args)
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE ` + where +
		` ORDER BY scheduled_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.Storage("consultation: list", err)
	}
	defer rows.Close()

	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *RepoPG) ListByDoctorBetween(ctx context.Context, organizationID, doctorID uuid.UUID, from, to time.Time) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+consultationColumns+` FROM consultations
		WHERE organization_id = $1 AND doctor_id = $2
		  AND scheduled_at >= $3 AND scheduled_at < $4
		ORDER BY scheduled_at`,
		organizationID, doctorID, from, to)
	if err != nil {
		return nil, apperr.Storage("consultation: agenda", err)
	}
	defer rows.Close()
	return collect(rows)
}

func (r *RepoPG) UpdateStatus(ctx context.Context, organizationID, id uuid.UUID, from, to string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET status = $4, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $3`,
		organizationID, id, from, to)
	if err != nil {
		return false, apperr.Storage("consultation: update status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func collect(rows pgx.Rows) ([]*Consultation, error) {
	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows, "consultation: scan")
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("consultation: rows", err)
	}
	return out, nil
}

func scanConsultation(row pgx.Row, op string) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.OrganizationID, &c.PatientID, &c.DoctorID, &c.Status,
		&c.ScheduledAt, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &c, nil
}
