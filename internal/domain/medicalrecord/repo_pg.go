package medicalrecord

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/db"
	"github.com/clinika/clinika/internal/platform/signing"
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

const recordColumns = `id, organization_id, consultation_id, patient_id, doctor_id,
	status, content, signature_hash, signed_at, signed_by_ip,
	signed_license_number, signed_license_state, created_at, updated_at`

func (r *RepoPG) Create(ctx context.Context, rec *Record) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_records (organization_id, consultation_id, patient_id, doctor_id, status, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		rec.OrganizationID, rec.ConsultationID, rec.PatientID, rec.DoctorID, rec.Status, rec.Content)
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return apperr.Storage("medical record: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Record, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM medical_records WHERE organization_id = $1 AND id = $2`,
		organizationID, id)
	return scanRecord(row, "medical record: get")
}

func (r *RepoPG) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_records WHERE organization_id = $1 AND patient_id = $2`,
		organizationID, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("medical record: count", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordColumns+` FROM medical_records
		WHERE organization_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		organizationID, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("medical record: list", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows, "medical record: list")
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("medical record: list", err)
	}
	return out, total, nil
}

func (r *RepoPG) UpdateContent(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_records SET content = $4, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $3`,
		organizationID, id, fromStatus, content)
	if err != nil {
		return false, apperr.Storage("medical record: update content", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) SetSigned(ctx context.Context, organizationID, id uuid.UUID, sig signing.Signature) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_records
		SET status = $3, signature_hash = $4, signed_at = $5, signed_by_ip = $6,
			signed_license_number = $7, signed_license_state = $8, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $9`,
		organizationID, id, StatusSigned, sig.Hash, sig.SignedAt, sig.SignedIP,
		sig.License.Number, sig.License.State, StatusDraft)
	if err != nil {
		return false, apperr.Storage("medical record: sign", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanRecord(row pgx.Row, op string) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.OrganizationID, &rec.ConsultationID, &rec.PatientID,
		&rec.DoctorID, &rec.Status, &rec.Content, &rec.SignatureHash, &rec.SignedAt,
		&rec.SignedByIP, &rec.SignedLicenseNumber, &rec.SignedLicenseState,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &rec, nil
}
