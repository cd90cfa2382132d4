package ledger

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the lifecycle state of a subscription.
// Transitions between statuses are owned by the lifecycle state machine;
// nothing else should assign these values.
type SubscriptionStatus string

const (
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionPaused     SubscriptionStatus = "paused"
	SubscriptionCancelled  SubscriptionStatus = "cancelled"
)

// Subscription ties a tenant to a plan for a rolling billing period.
type Subscription struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	PlanID        uuid.UUID
	Status        SubscriptionStatus
	ProviderSubID string // provider-side subscription reference (e.g. sub_...)

	// Billing period window. CurrentPeriodEnd only ever moves forward, and
	// only via the event processor on period-rollover events.
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time

	TrialStart *time.Time
	TrialEnd   *time.Time

	CancelAtPeriodEnd bool
	CancelledAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsActive reports whether the subscription is in paid good standing.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// IsCancelled reports whether the subscription reached its terminal state.
func (s *Subscription) IsCancelled() bool {
	return s.Status == SubscriptionCancelled
}

// InTrial reports whether t falls inside the configured trial window.
func (s *Subscription) InTrial(t time.Time) bool {
	if s.TrialStart == nil || s.TrialEnd == nil {
		return false
	}
	return !t.Before(*s.TrialStart) && t.Before(*s.TrialEnd)
}

// AdvancePeriod moves the billing window forward to the next period.
// Refuses to move backwards; CurrentPeriodEnd is monotonic.
func (s *Subscription) AdvancePeriod(nextEnd time.Time) bool {
	if !nextEnd.After(s.CurrentPeriodEnd) {
		return false
	}
	s.CurrentPeriodStart = s.CurrentPeriodEnd
	s.CurrentPeriodEnd = nextEnd
	return true
}
