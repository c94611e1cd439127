package anvisareport

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

const reportColumns = `id, organization_id, patient_id, doctor_id, status, content,
	signature_hash, signed_at, signed_by_ip, signed_license_number, signed_license_state,
	expires_at, protocol_number, agency_response, submitted_at, decided_at,
	created_at, updated_at`

func (r *RepoPG) Create(ctx context.Context, rep *Report) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO anvisa_reports (organization_id, patient_id, doctor_id, status, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		rep.OrganizationID, rep.PatientID, rep.DoctorID, rep.Status, rep.Content)
	if err := row.Scan(&rep.ID, &rep.CreatedAt, &rep.UpdatedAt); err != nil {
		return apperr.Storage("anvisa report: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Report, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+reportColumns+` FROM anvisa_reports WHERE organization_id = $1 AND id = $2`,
		organizationID, id)
	return scanReport(row, "anvisa report: get")
}

func (r *RepoPG) ListByPatient(ctx context.Context, organizationID, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM anvisa_reports WHERE organization_id = $1 AND patient_id = $2`,
		organizationID, patientID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("anvisa report: count", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reportColumns+` FROM anvisa_reports
		WHERE organization_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		organizationID, patientID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("anvisa report: list", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		rep, err := scanReport(rows, "anvisa report: list")
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("anvisa report: list", err)
	}
	return out, total, nil
}

func (r *RepoPG) UpdateContent(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, content map[string]any) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE anvisa_reports SET content = $4, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $3`,
		organizationID, id, fromStatus, content)
	if err != nil {
		return false, apperr.Storage("anvisa report: update content", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) SetSigned(ctx context.Context, organizationID, id uuid.UUID, fromStatus string, sig signing.Signature, expiresAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE anvisa_reports
		SET status = $3, signature_hash = $4, signed_at = $5, signed_by_ip = $6,
			signed_license_number = $7, signed_license_state = $8, expires_at = $9, updated_at = NOW()
		WHERE organization_id = $1 AND id = $2 AND status = $10`,
		organizationID, id, StatusSigned, sig.Hash, sig.SignedAt, sig.SignedIP,
		sig.License.Number, sig.License.State, expiresAt, fromStatus)
	if err != nil {
		return false, apperr.Storage("anvisa report: sign", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoPG) SetStatus(ctx context.Context, organizationID, id uuid.UUID, from, to string, at time.Time, note *string) (bool, error) {
	var query string
	args := []any{organizationID, id, from, to, at}
	switch to {
	case StatusSubmitted:
		query = `UPDATE anvisa_reports SET status = $4, submitted_at = $5, protocol_number = $6, updated_at = NOW()
			WHERE organization_id = $1 AND id = $2 AND status = $3`
		args = append(args, note)
	case StatusApproved, StatusRejected:
		query = `UPDATE anvisa_reports SET status = $4, decided_at = $5, agency_response = $6, updated_at = NOW()
			WHERE organization_id = $1 AND id = $2 AND status = $3`
		args = append(args, note)
	default:
		query = `UPDATE anvisa_reports SET status = $4, updated_at = $5
			WHERE organization_id = $1 AND id = $2 AND status = $3`
	}
	tag, err := r.conn(ctx).Exec(ctx, query, args...)
	if err != nil {
		return false, apperr.Storage("anvisa report: set status", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanReport(row pgx.Row, op string) (*Report, error) {
	var rep Report
	err := row.Scan(&rep.ID, &rep.OrganizationID, &rep.PatientID, &rep.DoctorID, &rep.Status,
		&rep.Content, &rep.SignatureHash, &rep.SignedAt, &rep.SignedByIP,
		&rep.SignedLicenseNumber, &rep.SignedLicenseState, &rep.ExpiresAt,
		&rep.ProtocolNumber, &rep.AgencyResponse,
		&rep.SubmittedAt, &rep.DecidedAt, &rep.CreatedAt, &rep.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return &rep, nil
}
