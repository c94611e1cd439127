package patient

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

const patientColumns = `id, organization_id, full_name, cpf_encrypted, cpf_hash,
	birth_date, phone, email, stage, created_at, updated_at`

func (r *RepoPG) Create(ctx context.Context, p *Patient) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (organization_id, full_name, cpf_encrypted, cpf_hash, birth_date, phone, email, stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		p.OrganizationID, p.FullName, p.CPFEncrypted, p.CPFHash, p.BirthDate, p.Phone, p.Email, p.Stage)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return apperr.Storage("patient: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE organization_id = $1 AND id = $2`,
		organizationID, id)
	return scanPatient(row, "patient: get")
}

func (r *RepoPG) GetByCPFHash(ctx context.Context, organizationID uuid.UUID, cpfHash string) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE organization_id = $1 AND cpf_hash = $2`,
		organizationID, cpfHash)
	return scanPatient(row, "patient: get by cpf")
}

func (r *RepoPG) List(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patients WHERE organization_id = $1`, organizationID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("patient: count", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientColumns+` FROM patients
		WHERE organization_id = $1
		ORDER BY full_name
		LIMIT $2 OFFSET $3`,
		organizationID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("patient: list", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows, "patient: list")
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("patient: list", err)
	}
	return out, total, nil
}

func (r *RepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients
		SET full_name = $3, birth_date = $4, phone = $5, email = $6, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2`,
		p.OrganizationID, p.ID, p.FullName, p.BirthDate, p.Phone, p.Email)
	if err != nil {
		return apperr.Storage("patient: update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func (r *RepoPG) SetStage(ctx context.Context, organizationID, id uuid.UUID, stage Stage) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patients SET stage = $3, updated_at = NOW() WHERE organization_id = $1 AND id = $2`,
		organizationID, id, stage)
	if err != nil {
		return apperr.Storage("patient: set stage", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient not found")
	}
	return nil
}

func scanPatient(row pgx.Row, op string) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OrganizationID, &p.FullName, &p.CPFEncrypted, &p.CPFHash,
		&p.BirthDate, &p.Phone, &p.Email, &p.Stage, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &p, nil
}
