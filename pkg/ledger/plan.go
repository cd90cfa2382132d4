package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/money"
)

// BillingPeriod is the recurrence interval of a plan.
type BillingPeriod string

const (
	PeriodMonthly   BillingPeriod = "monthly"
	PeriodQuarterly BillingPeriod = "quarterly"
	PeriodYearly    BillingPeriod = "yearly"
)

// Months returns the period length in calendar months.
func (p BillingPeriod) Months() int {
	switch p {
	case PeriodQuarterly:
		return 3
	case PeriodYearly:
		return 12
	default:
		return 1
	}
}

// Plan is a priced subscription offering. Plan rows are effectively
// immutable price history: existing subscriptions keep referencing the row
// after the catalog changes, so edits create new rows and the old one is
// tombstoned instead of rewritten.
type Plan struct {
	ID            uuid.UUID
	Code          string // stable catalog identifier, e.g. "pro-monthly"
	Name          string
	Price         money.Amount
	Currency      string
	BillingPeriod BillingPeriod
	TrialDays     int
	Features      json.RawMessage // opaque to the engine
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// HasTrial reports whether subscriptions to this plan start with a trial window.
func (p *Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// NextPeriodEnd advances a period boundary by one billing period.
func (p *Plan) NextPeriodEnd(from time.Time) time.Time {
	return from.AddDate(0, p.BillingPeriod.Months(), 0)
}
