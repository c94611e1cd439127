package authz

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/metrics"
)

// RouteMeta is the per-operation metadata the pipeline reads. An operation
// with no declared roles is open to any authenticated tenant member.
type RouteMeta struct {
	// Public skips every check.
	Public bool
	// Roles lists the acceptable roles; the caller passes with a level at
	// or above the least privileged of them.
	Roles []Role
	// MFACompletion marks the one operation a temporary mid-MFA credential
	// may reach.
	MFACompletion bool
	// Tenantless skips tenant resolution and the subscription gate for
	// authenticated routes that are not organization-scoped (e.g. listing
	// one's own memberships).
	Tenantless bool
	// Billing exempts the route from the subscription gate so a lapsed
	// organization can still view and fix its billing state. Tenant and
	// role checks still apply.
	Billing bool
}

// Request is the transport-independent shape of an inbound request.
type Request struct {
	Method      string
	BearerToken string
	// OrganizationID as supplied via the tenant header, with the legacy
	// body field as fallback. Empty means absent.
	OrganizationID string
	ClientIP       string
	Meta           RouteMeta
}

// errPublicBypass short-circuits the pipeline with success.
var errPublicBypass = errors.New("public route bypass")

// state is the mutable working set threaded between checks in order.
type state struct {
	req Request
	rc  RequestContext
	now time.Time
}

// Check is one step of the pipeline. Checks run strictly in order; a later
// check may rely on context populated by an earlier one.
type Check struct {
	Name string
	Run  func(ctx context.Context, st *state) error
}

// Pipeline is the ordered, short-circuiting chain of authorization checks
// every request passes before reaching a business operation.
type Pipeline struct {
	verifier TokenVerifier
	dir      Directory
	gate     SubscriptionGate
	metrics  *metrics.Metrics
	clock    func() time.Time
	checks   []Check
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithMetrics enables per-check decision counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline builds the standard tenant pipeline: public bypass, identity,
// tenant, subscription gate, role check. The order is load-bearing.
func NewPipeline(verifier TokenVerifier, dir Directory, gate SubscriptionGate, opts ...Option) *Pipeline {
	p := &Pipeline{
		verifier: verifier,
		dir:      dir,
		gate:     gate,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.checks = []Check{
		{Name: "public", Run: p.checkPublic},
		{Name: "identity", Run: p.checkIdentity},
		{Name: "tenant", Run: p.checkTenant},
		{Name: "subscription", Run: p.checkSubscription},
		{Name: "role", Run: p.checkRole},
	}
	return p
}

// Run executes the checks in order, stopping at the first failure and
// returning that check's error untouched. On success it returns the
// enriched request context.
func (p *Pipeline) Run(ctx context.Context, req Request) (*RequestContext, error) {
	st := &state{req: req, now: p.clock()}
	for _, check := range p.checks {
		err := check.Run(ctx, st)
		if errors.Is(err, errPublicBypass) {
			p.count(check.Name, "bypass")
			return &st.rc, nil
		}
		if err != nil {
			p.count(check.Name, "deny")
			return nil, err
		}
		p.count(check.Name, "allow")
	}
	return &st.rc, nil
}

func (p *Pipeline) count(check, outcome string) {
	if p.metrics != nil {
		p.metrics.AuthzDecisions.WithLabelValues(check, outcome).Inc()
	}
}

func (p *Pipeline) checkPublic(_ context.Context, st *state) error {
	if st.req.Meta.Public {
		return errPublicBypass
	}
	return nil
}

func (p *Pipeline) checkIdentity(ctx context.Context, st *state) error {
	if st.req.BearerToken == "" {
		return apperr.Unauthenticated("missing bearer token")
	}
	principal, err := p.verifier.Verify(ctx, st.req.BearerToken)
	if err != nil {
		return err
	}
	if principal.Temporary && !st.req.Meta.MFACompletion {
		return apperr.Unauthenticated("temporary credential is only valid for multi-factor completion")
	}
	st.rc.Principal = *principal
	return nil
}

func (p *Pipeline) checkTenant(ctx context.Context, st *state) error {
	if st.req.Meta.Tenantless {
		return nil
	}
	if st.req.OrganizationID == "" {
		return apperr.Unauthenticated("missing organization identifier")
	}
	orgID, err := uuid.Parse(st.req.OrganizationID)
	if err != nil {
		return apperr.Unauthenticated("malformed organization identifier")
	}

	membership, err := p.dir.ActiveMembership(ctx, st.rc.Principal.UserID, orgID)
	if err != nil {
		return err
	}
	if membership == nil || !membership.Active {
		return apperr.Forbidden("no active membership in this organization")
	}

	org, err := p.dir.Organization(ctx, orgID)
	if err != nil {
		return err
	}

	st.rc.OrganizationID = orgID
	st.rc.Organization = org
	st.rc.Membership = membership
	st.rc.Role = membership.Role
	return nil
}

func (p *Pipeline) checkSubscription(ctx context.Context, st *state) error {
	// Ordering dependency: without a resolved tenant there is nothing to
	// gate.
	if st.rc.OrganizationID == uuid.Nil {
		return nil
	}
	if st.req.Meta.Billing {
		return nil
	}
	access, err := p.gate.Evaluate(ctx, st.rc.OrganizationID, isReadOnlyMethod(st.req.Method), st.now)
	if err != nil {
		return err
	}
	st.rc.ReadOnly = access.ReadOnly
	return nil
}

func (p *Pipeline) checkRole(_ context.Context, st *state) error {
	required := st.req.Meta.Roles
	if len(required) == 0 {
		return nil
	}
	min := minRequired(required)
	if min == "" {
		return apperr.Forbidden("operation declares no satisfiable roles")
	}
	if !st.rc.Role.AtLeast(min) {
		return apperr.Newf(apperr.KindForbidden, "requires one of roles: %s", roleNames(required))
	}
	return nil
}

// isReadOnlyMethod reports whether the HTTP verb is safe in the RFC 7231
// sense; degraded subscriptions may still serve these.
func isReadOnlyMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// SuperAdminPipeline is the platform-operator variant: identity plus a
// SUPER_ADMIN membership. It is independent of tenant and subscription
// because operator routes are not tenant-scoped.
type SuperAdminPipeline struct {
	verifier TokenVerifier
	dir      Directory
	metrics  *metrics.Metrics
}

func NewSuperAdminPipeline(verifier TokenVerifier, dir Directory, m *metrics.Metrics) *SuperAdminPipeline {
	return &SuperAdminPipeline{verifier: verifier, dir: dir, metrics: m}
}

func (p *SuperAdminPipeline) Run(ctx context.Context, req Request) (*RequestContext, error) {
	if req.BearerToken == "" {
		return nil, apperr.Unauthenticated("missing bearer token")
	}
	principal, err := p.verifier.Verify(ctx, req.BearerToken)
	if err != nil {
		return nil, err
	}
	if principal.Temporary {
		return nil, apperr.Unauthenticated("temporary credential is only valid for multi-factor completion")
	}

	membership, err := p.dir.SuperAdminMembership(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if membership == nil || !membership.Active || membership.Role != RoleSuperAdmin {
		if p.metrics != nil {
			p.metrics.AuthzDecisions.WithLabelValues("super_admin", "deny").Inc()
		}
		return nil, apperr.Forbidden("requires platform operator access")
	}
	if p.metrics != nil {
		p.metrics.AuthzDecisions.WithLabelValues("super_admin", "allow").Inc()
	}

	return &RequestContext{Principal: *principal, Membership: membership, Role: RoleSuperAdmin}, nil
}
