package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/money"
)

// Aggregator batches usage records into invoice line items.
type Aggregator struct {
	dueAfter time.Duration
	logger   *slog.Logger
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithDueAfter sets how long after period end a usage invoice is due.
func WithDueAfter(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.dueAfter = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an aggregator. Usage invoices default to a 14 day due window.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		dueAfter: 14 * 24 * time.Hour,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LineItems groups records by metric name and sums them into one line item
// per metric. Records priced per unit multiply quantity by unit price,
// rounded once per line item; unpriced metrics carry quantity only. Output
// is ordered by metric name for stable invoices.
func (a *Aggregator) LineItems(records []ledger.UsageRecord, periodStart, periodEnd time.Time) []ledger.LineItem {
	type group struct {
		quantity int64
		price    *money.Price
	}
	groups := make(map[string]*group)
	for _, rec := range records {
		g, ok := groups[rec.MetricName]
		if !ok {
			g = &group{}
			groups[rec.MetricName] = g
		}
		g.quantity += rec.Quantity
		if g.price == nil && rec.UnitPrice != nil {
			g.price = rec.UnitPrice
		}
	}

	metrics := make([]string, 0, len(groups))
	for name := range groups {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	items := make([]ledger.LineItem, 0, len(groups))
	for _, name := range metrics {
		g := groups[name]
		item := ledger.LineItem{
			Description: fmt.Sprintf("%s usage %s to %s", name,
				periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02")),
			MetricName:  name,
			Quantity:    g.quantity,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
		}
		if g.price != nil {
			item.UnitPrice = *g.price
			item.Amount = g.price.MulQuantity(g.quantity)
		}
		items = append(items, item)
	}
	return items
}

// BillPeriod aggregates a subscription's usage for the billing window
// [periodStart, periodEnd) into a new open invoice and saves it inside the
// caller's unit of work. The plan contributes the recurring base charge as
// the first line item. Fails with ErrPeriodAlreadyInvoiced when the window
// is already covered; usage records are never touched, so a rejected or
// repeated run has no effect on them.
func (a *Aggregator) BillPeriod(ctx context.Context, tx ledger.Tx, sub *ledger.Subscription, plan *ledger.Plan, periodStart, periodEnd time.Time) (*ledger.Invoice, error) {
	if !periodEnd.After(periodStart) {
		return nil, ErrInvalidPeriod
	}

	covered, err := tx.HasInvoiceForPeriod(ctx, sub.ID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if covered {
		return nil, ErrPeriodAlreadyInvoiced
	}

	records, err := tx.UsageInPeriod(ctx, sub.ID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	var items []ledger.LineItem
	total := money.Zero()

	if plan != nil && !plan.Price.IsZero() {
		items = append(items, ledger.LineItem{
			Description: fmt.Sprintf("%s (%s)", plan.Name, plan.BillingPeriod),
			Quantity:    1,
			Amount:      plan.Price,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
		})
		total = total.Add(plan.Price)
	}

	for _, item := range a.LineItems(records, periodStart, periodEnd) {
		items = append(items, item)
		total = total.Add(item.Amount)
	}

	currency := ""
	if plan != nil {
		currency = plan.Currency
	}

	dueDate := periodEnd.Add(a.dueAfter)
	inv := &ledger.Invoice{
		ID:              uuid.New(),
		TenantID:        sub.TenantID,
		SubscriptionID:  &sub.ID,
		Status:          ledger.InvoiceOpen,
		AmountDue:       total,
		Currency:        currency,
		LineItems:       items,
		PeriodStart:     &periodStart,
		PeriodEnd:       &periodEnd,
		DueDate:         &dueDate,
		AmountRemaining: total,
	}
	if err := tx.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "billing period invoiced",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("invoice_id", inv.ID.String()),
		slog.String("amount_due", inv.AmountDue.String()),
		slog.Int("line_items", len(items)))
	return inv, nil
}
