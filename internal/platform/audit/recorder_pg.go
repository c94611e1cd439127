package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/db"
)

// RecorderPG persists audit entries to the audit_log table. Writes join the
// ambient transaction from context when one is open.
type RecorderPG struct {
	pool *pgxpool.Pool
}

func NewRecorderPG(pool *pgxpool.Pool) *RecorderPG {
	return &RecorderPG{pool: pool}
}

func (r *RecorderPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const auditCols = `id, actor_user_id, action, entity_type, entity_id, metadata, ip_address, recorded_at`

func (r *RecorderPG) Record(ctx context.Context, entry *Entry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "audit: encode metadata", err)
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_log (actor_user_id, action, entity_type, entity_id, metadata, ip_address, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.ActorUserID, entry.Action, entry.EntityType, entry.EntityID, meta, entry.IPAddress, entry.RecordedAt,
	)
	if err := row.Scan(&entry.ID); err != nil {
		return apperr.Storage("audit: insert entry", err)
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var meta []byte
	if err := row.Scan(&e.ID, &e.ActorUserID, &e.Action, &e.EntityType, &e.EntityID, &meta, &e.IPAddress, &e.RecordedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// list runs a filtered listing. The where clause uses $1..$n for args; limit
// and offset are appended as the next two placeholders.
func (r *RecorderPG) list(ctx context.Context, where string, args []any, limit, offset int) ([]*Entry, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("audit: count entries", err)
	}

	query := fmt.Sprintf(`SELECT `+auditCols+` FROM audit_log WHERE `+where+
		` ORDER BY recorded_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.Storage("audit: list entries", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, apperr.Storage("audit: scan entry", err)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *RecorderPG) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return r.list(ctx, `entity_type = $1 AND entity_id = $2`, []any{entityType, entityID}, limit, offset)
}

func (r *RecorderPG) ListByActor(ctx context.Context, actorUserID uuid.UUID, limit, offset int) ([]*Entry, int, error) {
	return r.list(ctx, `actor_user_id = $1`, []any{actorUserID}, limit, offset)
}
