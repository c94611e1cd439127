// Package audit appends immutable entries for privileged actions: signing,
// revocation, destructive updates. Entries are created and never modified.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the document pipeline.
const (
	ActionSign    = "SIGN"
	ActionRevoke  = "REVOKE"
	ActionSubmit  = "SUBMIT"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionUpdate  = "UPDATE"
	ActionDelete  = "DELETE"
)

// Entry is one immutable record of who did what to which entity, from where.
type Entry struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	ActorUserID uuid.UUID      `db:"actor_user_id" json:"actor_user_id"`
	Action      string         `db:"action" json:"action"`
	EntityType  string         `db:"entity_type" json:"entity_type"`
	EntityID    uuid.UUID      `db:"entity_id" json:"entity_id"`
	Metadata    map[string]any `db:"metadata" json:"metadata,omitempty"`
	IPAddress   string         `db:"ip_address" json:"ip_address"`
	RecordedAt  time.Time      `db:"recorded_at" json:"recorded_at"`
}

// Recorder appends audit entries. Record must not fail silently: the caller
// decides whether a failure is fatal for the surrounding operation. For
// signing, the write joins the signature's transaction so both succeed or
// neither does.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]*Entry, int, error)
	ListByActor(ctx context.Context, actorUserID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
