package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinika/clinika/internal/platform/apperr"
	"github.com/clinika/clinika/internal/platform/authz"
)

// DefaultTrialPeriod applies when a trial is started without an explicit end.
const DefaultTrialPeriod = 14 * 24 * time.Hour

// Service owns the billing lifecycle and gates tenant requests on it.
// It implements authz.SubscriptionGate.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// StartTrial opens a trial subscription for a fresh organization.
func (s *Service) StartTrial(ctx context.Context, organizationID uuid.UUID, plan string, now time.Time) (*Subscription, error) {
	trialEnd := now.Add(DefaultTrialPeriod)
	sub := &Subscription{
		OrganizationID: organizationID,
		Plan:           plan,
		Status:         StatusTrial,
		TrialEndsAt:    &trialEnd,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Activate marks the organization's subscription paid and current.
func (s *Service) Activate(ctx context.Context, organizationID uuid.UUID) (*Subscription, error) {
	return s.transition(ctx, organizationID, StatusActive, nil)
}

// MarkPastDue records a missed payment. Reads stay open; writes are refused
// until payment clears.
func (s *Service) MarkPastDue(ctx context.Context, organizationID uuid.UUID) (*Subscription, error) {
	return s.transition(ctx, organizationID, StatusPastDue, nil)
}

// Cancel ends the subscription. The organization keeps read-only access for
// CanceledGracePeriod so it can export its records.
func (s *Service) Cancel(ctx context.Context, organizationID uuid.UUID, now time.Time) (*Subscription, error) {
	return s.transition(ctx, organizationID, StatusCanceled, &now)
}

// Current returns the organization's authoritative subscription, or nil.
func (s *Service) Current(ctx context.Context, organizationID uuid.UUID) (*Subscription, error) {
	return s.repo.LatestByOrganization(ctx, organizationID)
}

func (s *Service) transition(ctx context.Context, organizationID uuid.UUID, status Status, canceledAt *time.Time) (*Subscription, error) {
	sub, err := s.repo.LatestByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperr.NotFound("organization has no subscription")
	}
	if err := s.repo.UpdateStatus(ctx, sub.ID, status, canceledAt); err != nil {
		return nil, err
	}
	sub.Status = status
	sub.CanceledAt = canceledAt
	return sub, nil
}

// Evaluate decides whether a tenant request may proceed given the
// organization's billing state.
func (s *Service) Evaluate(ctx context.Context, organizationID uuid.UUID, readOnly bool, now time.Time) (authz.Access, error) {
	sub, err := s.repo.LatestByOrganization(ctx, organizationID)
	if err != nil {
		return authz.Access{}, err
	}
	if sub == nil {
		return authz.Access{}, apperr.Forbidden("organization has no active subscription")
	}

	status := sub.Status
	if status == StatusTrial && sub.TrialEndsAt != nil && now.After(*sub.TrialEndsAt) {
		// Lazy expiry. Losing the CAS race just means another request
		// already flipped the row; either way the trial is over.
		if _, err := s.repo.ExpireTrial(ctx, sub.ID); err != nil {
			return authz.Access{}, err
		}
		status = StatusPastDue
	}

	switch status {
	case StatusTrial, StatusActive:
		return authz.Access{}, nil
	case StatusPastDue:
		if readOnly {
			return authz.Access{ReadOnly: true}, nil
		}
		return authz.Access{}, apperr.Forbidden("payment overdue: account is read-only until payment is resolved")
	case StatusCanceled:
		if readOnly && sub.CanceledAt != nil && now.Sub(*sub.CanceledAt) <= CanceledGracePeriod {
			return authz.Access{ReadOnly: true}, nil
		}
		return authz.Access{}, apperr.Forbidden("subscription canceled")
	default:
		return authz.Access{}, apperr.Forbidden("subscription state does not permit access")
	}
}
