package authz

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Principal is an authenticated identity, resolved once per request and
// immutable afterwards.
type Principal struct {
	UserID     uuid.UUID
	Email      string
	Verified   bool
	MFAEnabled bool
	// Temporary marks a mid-MFA credential. It is only accepted by the
	// MFA-completion route.
	Temporary bool
}

// Membership is the authorization view of a tenant membership row.
type Membership struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           Role
	Active         bool
}

// Organization is the authorization view of a tenant.
type Organization struct {
	ID   uuid.UUID
	Name string
}

// RequestContext threads the pipeline's findings through downstream
// handlers. It is request-scoped and never persisted.
type RequestContext struct {
	Principal      Principal
	OrganizationID uuid.UUID
	Organization   *Organization
	Membership     *Membership
	Role           Role
	// ReadOnly is set when a degraded subscription state permits only
	// safe operations.
	ReadOnly bool
}

type ctxKey string

const requestContextKey ctxKey = "authz_request_context"

// WithRequestContext returns ctx carrying rc.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// FromContext returns the request context placed by the pipeline, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// TokenVerifier resolves a bearer credential to a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Directory looks up memberships and organizations. Implemented by the
// organization service.
type Directory interface {
	ActiveMembership(ctx context.Context, userID, organizationID uuid.UUID) (*Membership, error)
	Organization(ctx context.Context, organizationID uuid.UUID) (*Organization, error)
	SuperAdminMembership(ctx context.Context, userID uuid.UUID) (*Membership, error)
}

// Access is the subscription gate's verdict for an allowed request.
type Access struct {
	ReadOnly bool
}

// SubscriptionGate translates billing state into access restrictions.
// Implemented by the subscription service.
type SubscriptionGate interface {
	Evaluate(ctx context.Context, organizationID uuid.UUID, readOnly bool, now time.Time) (Access, error)
}
