package prescription

import (
	"context"
	"errors"
	"time"

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

const prescriptionColumns = `id, organization_id, consultation_id, patient_id, doctor_id,
	status, content, signature_hash, signed_at, signed_by_ip,
	signed_license_number, signed_license_state, revoked_at, revoke_reason,
	created_at, updated_at`

func (r *RepoPG) Create(ctx context.Context, p *Prescription) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO prescriptions (organization_id, consultation_id, patient_id, doctor_id, status, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		p.OrganizationID, p.ConsultationID, p.PatientID, p.DoctorID, p.Status, p.Content)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return apperr.Storage("prescription: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Prescription, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE organization_id = $1 AND id = $2`,
		organizationID, id)
	return scanPrescription(row, "prescription: get")
}

func (r *RepoPG) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE organization_id = $1 AND patient_id = $2`,
		organizationID, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("prescription: count", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions
		WHERE organization_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		organizationID, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("prescription: list", err)
	}
	defer rows.Close()

	var out []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows, "prescription: list")
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("prescription: list", err)
	}
	return out, total, nil
}

func (r *RepoPG) UpdateContent(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET content = $4, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $3`,
		organizationID, id, fromStatus, content)
	if err != nil {
		return false, apperr.Storage("prescription: update content", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) SetSigned(ctx context.Context, organizationID, id uuid.UUID, sig signing.Signature) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions
		SET status = $3, signature_hash = $4, signed_at = $5, signed_by_ip = $6,
			signed_license_number = $7, signed_license_state = $8, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $9`,
		organizationID, id, StatusSigned, sig.Hash, sig.SignedAt, sig.SignedIP,
		sig.License.Number, sig.License.State, StatusDraft)
	if err != nil {
		return false, apperr.Storage("prescription: sign", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) SetRevoked(ctx context.Context, organizationID, id uuid.UUID, fromStatus, reason string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions
		SET status = $3, revoked_at = $4, revoke_reason = $5, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $6`,
		organizationID, id, StatusRevoked, at, reason, fromStatus)
	if err != nil {
		return false, apperr.Storage("prescription: revoke", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanPrescription(row pgx.Row, op string) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.OrganizationID, &p.ConsultationID, &p.PatientID, &p.DoctorID,
		&p.Status, &p.Content, &p.SignatureHash, &p.SignedAt, &p.SignedByIP,
		&p.SignedLicenseNumber, &p.SignedLicenseState,
		&p.RevokedAt, &p.RevokeReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &p, nil
}
