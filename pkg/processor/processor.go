package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/docstore"
	"github.com/dmitrymomot/billingkit/pkg/eventstore"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/lifecycle"
	"github.com/dmitrymomot/billingkit/pkg/lock"
	"github.com/dmitrymomot/billingkit/pkg/notifier"
	"github.com/dmitrymomot/billingkit/pkg/provider"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/usage"
)

// Status is the ingestion outcome reported to the inbound surface.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusMalformed Status = "malformed"
)

// Processor consumes provider events and applies them to the ledger.
type Processor struct {
	events    eventstore.Store
	ledger    ledger.Store
	providers map[string]provider.Provider

	lifecycle  *lifecycle.Machine
	reconciler *reconcile.Engine
	aggregator *usage.Aggregator
	notify     notifier.Gateway
	locker     lock.TenantLocker
	docs       docstore.Store

	logger     *slog.Logger
	now        func() time.Time
	maxRetries int

	pollInterval time.Duration
	batchSize    int
	workers      int
}

// Option configures the processor.
type Option func(*Processor)

// WithProviders registers provider adapters by name.
func WithProviders(provs ...provider.Provider) Option {
	return func(p *Processor) {
		for _, prov := range provs {
			p.providers[prov.Name()] = prov
		}
	}
}

// WithLifecycle replaces the default subscription state machine.
func WithLifecycle(m *lifecycle.Machine) Option {
	return func(p *Processor) {
		if m != nil {
			p.lifecycle = m
		}
	}
}

// WithReconciler replaces the default invoice reconciliation engine.
func WithReconciler(e *reconcile.Engine) Option {
	return func(p *Processor) {
		if e != nil {
			p.reconciler = e
		}
	}
}

// WithAggregator replaces the default usage aggregator.
func WithAggregator(a *usage.Aggregator) Option {
	return func(p *Processor) {
		if a != nil {
			p.aggregator = a
		}
	}
}

// WithNotifier sets the gateway for reconciliation-outcome notifications.
// Defaults to a no-op.
func WithNotifier(gw notifier.Gateway) Option {
	return func(p *Processor) {
		if gw != nil {
			p.notify = gw
		}
	}
}

// WithDocStore archives invoices that reach open or paid status as
// rendered documents. Archiving is fire-and-forget like notifications.
func WithDocStore(s docstore.Store) Option {
	return func(p *Processor) { p.docs = s }
}

// WithTenantLock adds cross-process per-tenant mutual exclusion. Without it
// tenant serialization relies on the ledger store alone, which is correct
// for a single shared store but lets separate stores race.
func WithTenantLock(l lock.TenantLocker) Option {
	return func(p *Processor) { p.locker = l }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMaxRetries bounds transient-failure retries before quarantine.
func WithMaxRetries(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithPollInterval sets the run-loop sweep interval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithBatchSize bounds how many events one sweep picks up.
func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithWorkers sets sweep concurrency. Events for different tenants process
// in parallel; same-tenant events serialize on the tenant unit of work.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a processor. Both stores are required.
func New(events eventstore.Store, ledgerStore ledger.Store, opts ...Option) *Processor {
	if events == nil {
		panic("processor: event store is required")
	}
	if ledgerStore == nil {
		panic("processor: ledger store is required")
	}
	p := &Processor{
		events:       events,
		ledger:       ledgerStore,
		providers:    make(map[string]provider.Provider),
		lifecycle:    lifecycle.New(),
		reconciler:   reconcile.New(),
		aggregator:   usage.New(),
		notify:       notifier.NoOp(),
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		maxRetries:   5,
		pollInterval: 15 * time.Second,
		batchSize:    100,
		workers:      8,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest accepts one provider event payload: verifies the signature, stores
// the event, and applies it. Verification happens unconditionally — an
// absent signature reaches the adapter as an empty string, and adapters for
// signed providers reject it; only adapters for sources that genuinely do
// not sign may accept it. A redelivered event is reported as a duplicate
// without touching the ledger. A payload that fails parsing is stored and
// quarantined when its identifier is recoverable, so the failure leaves an
// auditable trace either way.
//
// Accepted means durably stored: a processing failure after the append does
// not fail ingestion, the retry sweep owns the event from there.
func (p *Processor) Ingest(ctx context.Context, providerName string, payload []byte, signature string) (Status, error) {
	prov, ok := p.providers[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	if err := prov.VerifySignature(ctx, payload, signature); err != nil {
		return "", err
	}

	ev, err := prov.ParseEvent(ctx, payload)
	if err != nil {
		p.storeMalformed(ctx, prov.Name(), payload, err)
		return StatusMalformed, err
	}

	rec := &eventstore.Event{
		Provider:        ev.Provider,
		ProviderEventID: ev.ProviderEventID,
		EventType:       ev.ProviderType,
		Payload:         payload,
	}
	switch err := p.events.Append(ctx, rec); {
	case errors.Is(err, eventstore.ErrDuplicateEvent):
		p.logger.InfoContext(ctx, "duplicate event suppressed",
			slog.String("provider", ev.Provider),
			slog.String("provider_event_id", ev.ProviderEventID))
		return StatusDuplicate, nil
	case err != nil:
		return "", err
	}

	if err := p.process(ctx, rec, ev); err != nil {
		p.logger.ErrorContext(ctx, "event processing failed, kept for retry sweep",
			slog.String("event_id", rec.ID.String()),
			slog.String("error", err.Error()))
	}
	return StatusAccepted, nil
}

// storeMalformed keeps an unparseable payload for manual review when its
// event identifier is recoverable from the raw envelope.
func (p *Processor) storeMalformed(ctx context.Context, providerName string, payload []byte, cause error) {
	var probe struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
	}
	if json.Unmarshal(payload, &probe) != nil || probe.EventID == "" {
		p.logger.WarnContext(ctx, "malformed event without recoverable identifier dropped",
			slog.String("provider", providerName),
			slog.String("error", cause.Error()))
		return
	}

	rec := &eventstore.Event{
		Provider:        providerName,
		ProviderEventID: probe.EventID,
		EventType:       probe.EventType,
		Payload:         payload,
	}
	if err := p.events.Append(ctx, rec); err != nil {
		if !errors.Is(err, eventstore.ErrDuplicateEvent) {
			p.logger.ErrorContext(ctx, "storing malformed event failed", slog.String("error", err.Error()))
		}
		return
	}
	if err := p.events.Quarantine(ctx, rec.ID, "malformed: "+cause.Error()); err != nil {
		p.logger.ErrorContext(ctx, "quarantining malformed event failed", slog.String("error", err.Error()))
	}
}

// process classifies the outcome of applying one stored event.
func (p *Processor) process(ctx context.Context, rec *eventstore.Event, ev *provider.Event) error {
	if ev.Action == provider.ActionUnknown {
		// Forward compatibility: unknown event types are recorded and
		// acknowledged without ledger effect.
		return p.events.MarkProcessed(ctx, rec.ID, "ignored: unrecognized event type "+ev.ProviderType)
	}

	note, err := p.apply(ctx, ev)
	switch {
	case err == nil:
		if merr := p.events.MarkProcessed(ctx, rec.ID, ""); merr != nil {
			return merr
		}
		p.sendNotification(ctx, note)
		return nil

	case isTransient(err):
		if rec.RetryCount+1 >= p.maxRetries {
			p.logger.ErrorContext(ctx, "retry budget exhausted, quarantining event",
				slog.String("event_id", rec.ID.String()),
				slog.Int("retries", rec.RetryCount),
				slog.String("error", err.Error()))
			if qerr := p.events.Quarantine(ctx, rec.ID, "retries exhausted: "+err.Error()); qerr != nil {
				return errors.Join(err, qerr)
			}
			return err
		}
		if merr := p.events.MarkFailed(ctx, rec.ID, err.Error()); merr != nil {
			return errors.Join(err, merr)
		}
		return err

	default:
		// Business-rule violation: recorded on the event, never retried.
		p.logger.WarnContext(ctx, "permanent apply error",
			slog.String("event_id", rec.ID.String()),
			slog.String("event_type", rec.EventType),
			slog.String("error", err.Error()))
		return p.events.MarkProcessed(ctx, rec.ID, err.Error())
	}
}

func (p *Processor) sendNotification(ctx context.Context, note *notifier.Notification) {
	if note == nil {
		return
	}
	// Fire and forget: delivery failures are logged, never propagated.
	if err := p.notify.Notify(ctx, *note); err != nil {
		p.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("tenant_id", note.TenantID.String()),
			slog.String("subject", note.Subject),
			slog.String("error", err.Error()))
	}
}

// isTransient reports whether the error warrants a retry sweep.
func isTransient(err error) bool {
	return errors.Is(err, ledger.ErrStoreUnavailable) ||
		errors.Is(err, eventstore.ErrStoreUnavailable) ||
		errors.Is(err, lock.ErrNotAcquired)
}

// apply dispatches the event inside a tenant-scoped unit of work and returns
// the notification to emit on success.
func (p *Processor) apply(ctx context.Context, ev *provider.Event) (*notifier.Notification, error) {
	if ev.TenantID == uuid.Nil {
		return nil, ErrNoTenantReference
	}

	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, ev.TenantID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if rerr := release(); rerr != nil {
				p.logger.WarnContext(ctx, "tenant lock release failed",
					slog.String("tenant_id", ev.TenantID.String()),
					slog.String("error", rerr.Error()))
			}
		}()
	}

	var note *notifier.Notification
	var archive []*ledger.Invoice
	err := p.ledger.WithinTenant(ctx, ev.TenantID, func(ctx context.Context, rawTx ledger.Tx) error {
		// The apply marker commits atomically with the ledger writes below.
		// A crash after commit but before the event store's processed flag
		// lands here on replay: the marker is visible, nothing re-applies.
		applied, err := rawTx.EventApplied(ctx, ev.Provider, ev.ProviderEventID)
		if err != nil {
			return err
		}
		if applied {
			p.logger.InfoContext(ctx, "event already applied, skipping replay",
				slog.String("provider", ev.Provider),
				slog.String("provider_event_id", ev.ProviderEventID))
			return nil
		}

		atx := &archivingTx{Tx: rawTx}
		var tx ledger.Tx = rawTx
		if p.docs != nil {
			tx = atx
		}
		switch ev.Action {
		case provider.ActionPaymentSucceeded:
			note, err = p.applyPaymentSucceeded(ctx, tx, ev)
		case provider.ActionPaymentFailed:
			note, err = p.applyPaymentFailed(ctx, tx, ev)
		case provider.ActionRefundIssued:
			note, err = p.applyRefund(ctx, tx, ev)
		case provider.ActionSubscriptionCreated:
			note, err = p.applySubscriptionCreated(ctx, tx, ev)
		case provider.ActionSubscriptionUpdated:
			note, err = p.applySubscriptionUpdated(ctx, tx, ev)
		case provider.ActionSubscriptionCancelled:
			note, err = p.applySubscriptionCancelled(ctx, tx, ev)
		case provider.ActionSubscriptionPaused:
			note, err = p.applyLifecycleTrigger(ctx, tx, ev, lifecycle.TriggerPause, "Subscription paused")
		case provider.ActionSubscriptionResumed:
			note, err = p.applyLifecycleTrigger(ctx, tx, ev, lifecycle.TriggerResume, "Subscription resumed")
		case provider.ActionInvoiceFinalized:
			note, err = p.applyInvoiceFinalized(ctx, tx, ev)
		case provider.ActionPeriodRollover:
			note, err = p.applyPeriodRollover(ctx, tx, ev)
		case provider.ActionTrialElapsed:
			note, err = p.applyTrialElapsed(ctx, tx, ev)
		case provider.ActionDunningExhausted:
			note, err = p.applyDunningExhausted(ctx, tx, ev)
		case provider.ActionUsageRecorded:
			note, err = p.applyUsageRecorded(ctx, tx, ev)
		default:
			err = fmt.Errorf("unhandled action %q", ev.Action)
		}
		if err != nil {
			return err
		}
		if err := rawTx.MarkEventApplied(ctx, ev.Provider, ev.ProviderEventID); err != nil {
			return err
		}
		archive = atx.archived
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.archiveInvoices(ctx, archive)
	return note, nil
}

// archivingTx records invoice saves so the processor can archive rendered
// documents after the unit of work commits.
type archivingTx struct {
	ledger.Tx
	archived []*ledger.Invoice
}

func (a *archivingTx) SaveInvoice(ctx context.Context, inv *ledger.Invoice) error {
	if err := a.Tx.SaveInvoice(ctx, inv); err != nil {
		return err
	}
	if inv.Status == ledger.InvoiceOpen || inv.Status == ledger.InvoicePaid {
		cp := *inv
		a.archived = append(a.archived, &cp)
	}
	return nil
}

// archiveInvoices stores rendered invoice documents. Failures are logged,
// never propagated: the ledger is committed and the next save of the same
// invoice overwrites the document anyway.
func (p *Processor) archiveInvoices(ctx context.Context, invoices []*ledger.Invoice) {
	if p.docs == nil || len(invoices) == 0 {
		return
	}
	// Keep the last save per invoice; earlier saves in the same unit of
	// work are stale.
	latest := make(map[uuid.UUID]*ledger.Invoice, len(invoices))
	order := make([]uuid.UUID, 0, len(invoices))
	for _, inv := range invoices {
		if _, seen := latest[inv.ID]; !seen {
			order = append(order, inv.ID)
		}
		latest[inv.ID] = inv
	}
	for _, id := range order {
		inv := latest[id]
		doc, err := docstore.Render(inv)
		if err != nil {
			p.logger.WarnContext(ctx, "invoice document render failed",
				slog.String("invoice_id", inv.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if _, err := p.docs.Put(ctx, doc); err != nil {
			p.logger.WarnContext(ctx, "invoice document archive failed",
				slog.String("invoice_id", inv.ID.String()),
				slog.String("error", err.Error()))
		}
	}
}
