package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/pg"
)

// PostgresStore implements Store on a pgx connection pool.
//
// WithinTenant opens a transaction and takes a transaction-scoped advisory
// lock on the tenant ID, which serializes concurrent units of work for the
// same tenant across every node sharing the database. Different tenants hash
// to different lock keys and proceed in parallel.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("ledger: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

// WithinTenant implements Store.
func (s *PostgresStore) WithinTenant(ctx context.Context, tenantID uuid.UUID, fn TxFunc) error {
	dbTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// hashtext folds the UUID into the advisory lock keyspace. Released
	// automatically at transaction end.
	if _, err := dbTx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID.String()); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	var exists bool
	err = dbTx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1 AND deleted_at IS NULL)`,
		tenantID,
	).Scan(&exists)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if !exists {
		return ErrTenantNotFound
	}

	tx := &pgTx{db: dbTx, tenantID: tenantID}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

type pgTx struct {
	db       pgx.Tx
	tenantID uuid.UUID
}

func (tx *pgTx) Tenant(ctx context.Context) (*Tenant, error) {
	row := tx.db.QueryRow(ctx, `
		SELECT id, name, billing_email, external_customer_id, status, created_at, updated_at, deleted_at
		FROM tenants WHERE id = $1 AND deleted_at IS NULL`, tx.tenantID)

	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.BillingEmail, &t.ExternalCustomerID, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &t, nil
}

const planQuery = `
	SELECT id, code, name, price::text, currency, billing_period, trial_days, features, active, created_at, updated_at, deleted_at
	FROM subscription_plans`

func (tx *pgTx) scanPlan(row pgx.Row) (*Plan, error) {
	var (
		p        Plan
		price    string
		features []byte
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &price, &p.Currency, &p.BillingPeriod, &p.TrialDays, &features, &p.Active, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if p.Price, err = money.Parse(price); err != nil {
		return nil, fmt.Errorf("plan %s: %w", p.ID, err)
	}
	p.Features = json.RawMessage(features)
	return &p, nil
}

func (tx *pgTx) Plan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return tx.scanPlan(tx.db.QueryRow(ctx, planQuery+` WHERE id = $1`, id))
}

func (tx *pgTx) PlanByCode(ctx context.Context, code string) (*Plan, error) {
	return tx.scanPlan(tx.db.QueryRow(ctx, planQuery+` WHERE code = $1 AND deleted_at IS NULL`, code))
}

const subscriptionColumns = `
	id, tenant_id, plan_id, status, provider_subscription_id,
	current_period_start, current_period_end, trial_start, trial_end,
	cancel_at_period_end, cancelled_at, created_at, updated_at, deleted_at`

func (tx *pgTx) scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &sub.Status, &sub.ProviderSubID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialStart, &sub.TrialEnd,
		&sub.CancelAtPeriodEnd, &sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt, &sub.DeletedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &sub, nil
}

func (tx *pgTx) Subscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return tx.scanSubscription(tx.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tx.tenantID))
}

func (tx *pgTx) SubscriptionByProviderID(ctx context.Context, providerSubID string) (*Subscription, error) {
	return tx.scanSubscription(tx.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE provider_subscription_id = $1 AND tenant_id = $2 AND deleted_at IS NULL`,
		providerSubID, tx.tenantID))
}

func (tx *pgTx) SaveSubscription(ctx context.Context, sub *Subscription) error {
	if sub.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	_, err := tx.db.Exec(ctx, `
		INSERT INTO subscriptions (
			id, tenant_id, plan_id, status, provider_subscription_id,
			current_period_start, current_period_end, trial_start, trial_end,
			cancel_at_period_end, cancelled_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			cancelled_at = EXCLUDED.cancelled_at,
			updated_at = now()`,
		sub.ID, sub.TenantID, sub.PlanID, sub.Status, sub.ProviderSubID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialStart, sub.TrialEnd,
		sub.CancelAtPeriodEnd, sub.CancelledAt,
	)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

const paymentColumns = `
	id, tenant_id, subscription_id, invoice_id, provider_payment_id,
	amount::text, refunded_amount::text, currency, status, failure_reason,
	created_at, updated_at`

func (tx *pgTx) scanPayment(row pgx.Row) (*Payment, error) {
	var (
		payment          Payment
		amount, refunded string
	)
	err := row.Scan(
		&payment.ID, &payment.TenantID, &payment.SubscriptionID, &payment.InvoiceID, &payment.ProviderPaymentID,
		&amount, &refunded, &payment.Currency, &payment.Status, &payment.FailureReason,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if payment.Amount, err = money.Parse(amount); err != nil {
		return nil, err
	}
	if payment.RefundedAmount, err = money.Parse(refunded); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (tx *pgTx) Payment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return tx.scanPayment(tx.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND tenant_id = $2`, id, tx.tenantID))
}

func (tx *pgTx) PaymentByProviderID(ctx context.Context, providerPaymentID string) (*Payment, error) {
	return tx.scanPayment(tx.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE provider_payment_id = $1 AND tenant_id = $2`, providerPaymentID, tx.tenantID))
}

func (tx *pgTx) SavePayment(ctx context.Context, p *Payment) error {
	if p.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := tx.db.Exec(ctx, `
		INSERT INTO payments (
			id, tenant_id, subscription_id, invoice_id, provider_payment_id,
			amount, refunded_amount, currency, status, failure_reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8,$9,$10,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			invoice_id = EXCLUDED.invoice_id,
			refunded_amount = EXCLUDED.refunded_amount,
			status = EXCLUDED.status,
			failure_reason = EXCLUDED.failure_reason,
			updated_at = now()`,
		p.ID, p.TenantID, p.SubscriptionID, p.InvoiceID, p.ProviderPaymentID,
		p.Amount.String(), p.RefundedAmount.String(), p.Currency, p.Status, p.FailureReason,
	)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

const invoiceColumns = `
	id, tenant_id, subscription_id, provider_invoice_id, status,
	amount_due::text, amount_paid::text, amount_remaining::text, currency,
	line_items, period_start, period_end, due_date, paid_at, voided_at,
	created_at, updated_at`

func (tx *pgTx) scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv                  Invoice
		due, paid, remaining string
		lineItems            []byte
	)
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.SubscriptionID, &inv.ProviderInvoiceID, &inv.Status,
		&due, &paid, &remaining, &inv.Currency,
		&lineItems, &inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate, &inv.PaidAt, &inv.VoidedAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if inv.AmountDue, err = money.Parse(due); err != nil {
		return nil, err
	}
	if inv.AmountPaid, err = money.Parse(paid); err != nil {
		return nil, err
	}
	if inv.AmountRemaining, err = money.Parse(remaining); err != nil {
		return nil, err
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &inv.LineItems); err != nil {
			return nil, fmt.Errorf("invoice %s line items: %w", inv.ID, err)
		}
	}
	return &inv, nil
}

func (tx *pgTx) Invoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return tx.scanInvoice(tx.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND tenant_id = $2`, id, tx.tenantID))
}

func (tx *pgTx) InvoiceByProviderID(ctx context.Context, providerInvoiceID string) (*Invoice, error) {
	return tx.scanInvoice(tx.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE provider_invoice_id = $1 AND tenant_id = $2`, providerInvoiceID, tx.tenantID))
}

func (tx *pgTx) OpenInvoice(ctx context.Context, subscriptionID uuid.UUID) (*Invoice, error) {
	return tx.scanInvoice(tx.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE tenant_id = $1 AND subscription_id = $2
		   AND status NOT IN ('paid', 'void', 'uncollectible')
		 ORDER BY created_at ASC
		 LIMIT 1`, tx.tenantID, subscriptionID))
}

func (tx *pgTx) HasInvoiceForPeriod(ctx context.Context, subscriptionID uuid.UUID, periodStart, periodEnd time.Time) (bool, error) {
	var exists bool
	err := tx.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invoices
			WHERE tenant_id = $1 AND subscription_id = $2
			  AND period_start = $3 AND period_end = $4
			  AND status <> 'void'
		)`, tx.tenantID, subscriptionID, periodStart, periodEnd).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return exists, nil
}

func (tx *pgTx) SaveInvoice(ctx context.Context, inv *Invoice) error {
	if inv.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	lineItems, err := json.Marshal(inv.LineItems)
	if err != nil {
		return fmt.Errorf("invoice %s line items: %w", inv.ID, err)
	}
	_, err = tx.db.Exec(ctx, `
		INSERT INTO invoices (
			id, tenant_id, subscription_id, provider_invoice_id, status,
			amount_due, amount_paid, amount_remaining, currency,
			line_items, period_start, period_end, due_date, paid_at, voided_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9,$10,$11,$12,$13,$14,$15,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			amount_due = EXCLUDED.amount_due,
			amount_paid = EXCLUDED.amount_paid,
			amount_remaining = EXCLUDED.amount_remaining,
			line_items = EXCLUDED.line_items,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			due_date = EXCLUDED.due_date,
			paid_at = EXCLUDED.paid_at,
			voided_at = EXCLUDED.voided_at,
			updated_at = now()`,
		inv.ID, inv.TenantID, inv.SubscriptionID, inv.ProviderInvoiceID, inv.Status,
		inv.AmountDue.String(), inv.AmountPaid.String(), inv.AmountRemaining.String(), inv.Currency,
		lineItems, inv.PeriodStart, inv.PeriodEnd, inv.DueDate, inv.PaidAt, inv.VoidedAt,
	)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (tx *pgTx) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	if rec.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	var unitPrice *string
	if rec.UnitPrice != nil {
		s := rec.UnitPrice.String()
		unitPrice = &s
	}
	// Plain INSERT, no upsert: usage records are append-only.
	_, err := tx.db.Exec(ctx, `
		INSERT INTO usage_records (
			id, tenant_id, subscription_id, metric_name, quantity, unit_price, recorded_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,now())`,
		rec.ID, rec.TenantID, rec.SubscriptionID, rec.MetricName, rec.Quantity, unitPrice, rec.RecordedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrImmutableRecord
	}
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (tx *pgTx) UsageInPeriod(ctx context.Context, subscriptionID uuid.UUID, from, to time.Time) ([]UsageRecord, error) {
	rows, err := tx.db.Query(ctx, `
		SELECT id, tenant_id, subscription_id, metric_name, quantity, unit_price::text, recorded_at, created_at
		FROM usage_records
		WHERE tenant_id = $1 AND subscription_id = $2
		  AND recorded_at >= $3 AND recorded_at < $4
		ORDER BY recorded_at ASC`, tx.tenantID, subscriptionID, from, to)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []UsageRecord
	for rows.Next() {
		var (
			rec       UsageRecord
			unitPrice *string
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.SubscriptionID, &rec.MetricName, &rec.Quantity, &unitPrice, &rec.RecordedAt, &rec.CreatedAt); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		if unitPrice != nil {
			d, err := decimal.NewFromString(*unitPrice)
			if err != nil {
				return nil, fmt.Errorf("usage record %s unit price: %w", rec.ID, err)
			}
			p := money.PriceFromDecimal(d)
			rec.UnitPrice = &p
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}

func (tx *pgTx) EventApplied(ctx context.Context, provider, providerEventID string) (bool, error) {
	var exists bool
	err := tx.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM applied_events
			WHERE provider = $1 AND provider_event_id = $2
		)`, provider, providerEventID).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return exists, nil
}

func (tx *pgTx) MarkEventApplied(ctx context.Context, provider, providerEventID string) error {
	// Commits with the surrounding transaction; the advisory tenant lock
	// already serializes writers for this event's tenant.
	_, err := tx.db.Exec(ctx, `
		INSERT INTO applied_events (provider, provider_event_id, tenant_id, applied_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		provider, providerEventID, tx.tenantID,
	)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// DueRollovers implements Scanner.
func (s *PostgresStore) DueRollovers(ctx context.Context, asOf time.Time, limit int) ([]DueSubscription, error) {
	return s.scanDue(ctx, `
		SELECT tenant_id, id, provider_subscription_id, current_period_end
		FROM subscriptions
		WHERE status IN ('active', 'past_due', 'trialing')
		  AND current_period_end <= $1
		  AND deleted_at IS NULL
		ORDER BY current_period_end ASC
		LIMIT $2`, asOf, limit)
}

// DueTrials implements Scanner.
func (s *PostgresStore) DueTrials(ctx context.Context, asOf time.Time, limit int) ([]DueSubscription, error) {
	return s.scanDue(ctx, `
		SELECT tenant_id, id, provider_subscription_id, trial_end
		FROM subscriptions
		WHERE status = 'trialing'
		  AND trial_end IS NOT NULL AND trial_end <= $1
		  AND deleted_at IS NULL
		ORDER BY trial_end ASC
		LIMIT $2`, asOf, limit)
}

// DueDunning implements Scanner.
func (s *PostgresStore) DueDunning(ctx context.Context, asOf time.Time, grace time.Duration, limit int) ([]DueSubscription, error) {
	return s.scanDue(ctx, `
		SELECT s.tenant_id, s.id, s.provider_subscription_id, i.due_date
		FROM subscriptions s
		JOIN LATERAL (
			SELECT due_date FROM invoices
			WHERE subscription_id = s.id AND status = 'open'
			  AND due_date IS NOT NULL AND due_date <= $1
			ORDER BY due_date ASC
			LIMIT 1
		) i ON true
		WHERE s.status = 'past_due' AND s.deleted_at IS NULL
		ORDER BY i.due_date ASC
		LIMIT $2`, asOf.Add(-grace), limit)
}

func (s *PostgresStore) scanDue(ctx context.Context, query string, cutoff time.Time, limit int) ([]DueSubscription, error) {
	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []DueSubscription
	for rows.Next() {
		var due DueSubscription
		if err := rows.Scan(&due.TenantID, &due.SubscriptionID, &due.ProviderSubID, &due.DueAt); err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
		out = append(out, due)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return out, nil
}

var _ Store = (*PostgresStore)(nil)
var _ Scanner = (*PostgresStore)(nil)
var _ Tx = (*pgTx)(nil)
