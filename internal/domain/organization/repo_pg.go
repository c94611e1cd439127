package organization

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/authz"
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

// -- OrganizationRepository --

func (r *RepoPG) Create(ctx context.Context, org *Organization) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO organizations (name, cnpj)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`,
		org.Name, org.CNPJ)
	if err := row.Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return apperr.Storage("organization: insert", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, cnpj, created_at, updated_at
		FROM organizations WHERE id = $1`, id)

	var org Organization
	err := row.Scan(&org.ID, &org.Name, &org.CNPJ, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("organization: get", err)
	}
	return &org, nil
}

func (r *RepoPG) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("organization: count", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, cnpj, created_at, updated_at
		FROM organizations ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("organization: list", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CNPJ, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, 0, apperr.Storage("organization: scan", err)
		}
		orgs = append(orgs, &org)
	}
	return orgs, total, rows.Err()
}

// -- MembershipRepository --

type MembershipRepoPG struct {
	pool *pgxpool.Pool
}

func NewMembershipRepoPG(pool *pgxpool.Pool) *MembershipRepoPG {
	return &MembershipRepoPG{pool: pool}
}

func (r *MembershipRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const membershipCols = `id, user_id, organization_id, role, is_active, created_at, updated_at`

func scanMembership(row pgx.Row) (*Membership, error) {
	var m Membership
	var role string
	err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &role, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return nil, err
	}
	m.Role = parsed
	return &m, nil
}

func (r *MembershipRepoPG) Create(ctx context.Context, m *Membership) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO memberships (user_id, organization_id, role, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		m.UserID, m.OrganizationID, string(m.Role), m.Active)
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return apperr.Storage("membership: insert", err)
	}
	return nil
}

func (r *MembershipRepoPG) Get(ctx context.Context, userID, organizationID uuid.UUID) (*Membership, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+membershipCols+` FROM memberships
		WHERE user_id = $1 AND organization_id = $2`, userID, organizationID)

	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("membership: get", err)
	}
	return m, nil
}

func (r *MembershipRepoPG) GetSuperAdmin(ctx context.Context, userID uuid.UUID) (*Membership, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+membershipCols+` FROM memberships
		WHERE user_id = $1 AND role = 'SUPER_ADMIN'`, userID)

	m, err := scanMembership(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("membership: get super admin", err)
	}
	return m, nil
}

func (r *MembershipRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE memberships SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return apperr.Storage("membership: set active", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("membership not found")
	}
	return nil
}

func (r *MembershipRepoPG) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*Membership, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM memberships WHERE organization_id = $1`, organizationID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("membership: count", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+membershipCols+` FROM memberships
		WHERE organization_id = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		organizationID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("membership: list", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, 0, apperr.Storage("membership: scan", err)
		}
		members = append(members, m)
	}
	return members, total, rows.Err()
}

func (r *MembershipRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Membership, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+membershipCols+` FROM memberships
		WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, apperr.Storage("membership: list by user", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, apperr.Storage("membership: scan", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
