package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/eventstore"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/provider"
)

// Scheduler turns elapsed deadlines into events. Payment providers report
// what happened to money; nobody reports that time passed. The scheduler
// scans the ledger for subscriptions whose billing period, trial, or
// collection grace ran out and appends the matching internal event, which
// the processor sweep then applies like any other.
//
// Emission is idempotent: event identifiers derive from the subscription
// and the elapsed deadline, so a rescan of the same state deduplicates at
// the event store. Multiple scheduler instances can run against the same
// database.
type Scheduler struct {
	events eventstore.Store
	scan   ledger.Scanner

	logger       *slog.Logger
	now          func() time.Time
	interval     time.Duration
	batchSize    int
	dunningGrace time.Duration
}

// SchedulerOption configures the scheduler.
type SchedulerOption func(*Scheduler)

// WithScanInterval sets how often the ledger is scanned for elapsed
// deadlines.
func WithScanInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithScanBatchSize bounds how many due subscriptions one scan picks up per
// deadline kind.
func WithScanBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithDunningGrace sets how long an open invoice may sit past its due date
// on a past-due subscription before collection is declared exhausted.
func WithDunningGrace(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.dunningGrace = d
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchedulerClock overrides the timestamp source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler. Both stores are required.
func NewScheduler(events eventstore.Store, scan ledger.Scanner, opts ...SchedulerOption) *Scheduler {
	if events == nil {
		panic("processor: event store is required")
	}
	if scan == nil {
		panic("processor: ledger scanner is required")
	}
	s := &Scheduler{
		events:       events,
		scan:         scan,
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		interval:     time.Minute,
		batchSize:    100,
		dunningGrace: 14 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans on an interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Duration("scan_interval", s.interval),
		slog.Duration("dunning_grace", s.dunningGrace))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Emit(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "deadline scan failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Emit runs one scan pass: every elapsed deadline becomes one appended
// event. Already-emitted deadlines deduplicate silently.
func (s *Scheduler) Emit(ctx context.Context) error {
	now := s.now()

	rollovers, err := s.scan.DueRollovers(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	s.emitAll(ctx, "period.rollover", rollovers, provider.RolloverEvent)

	trials, err := s.scan.DueTrials(ctx, now, s.batchSize)
	if err != nil {
		return err
	}
	s.emitAll(ctx, "trial.elapsed", trials, provider.TrialElapsedEvent)

	exhausted, err := s.scan.DueDunning(ctx, now, s.dunningGrace, s.batchSize)
	if err != nil {
		return err
	}
	s.emitAll(ctx, "dunning.exhausted", exhausted, provider.DunningExhaustedEvent)

	return nil
}

func (s *Scheduler) emitAll(
	ctx context.Context,
	eventType string,
	due []ledger.DueSubscription,
	build func(tenantID uuid.UUID, providerSubID string, at time.Time) (string, []byte, error),
) {
	for _, d := range due {
		id, payload, err := build(d.TenantID, d.ProviderSubID, d.DueAt)
		if err != nil {
			s.logger.ErrorContext(ctx, "building scheduled event failed",
				slog.String("event_type", eventType),
				slog.String("subscription_id", d.SubscriptionID.String()),
				slog.String("error", err.Error()))
			continue
		}
		rec := &eventstore.Event{
			Provider:        "internal",
			ProviderEventID: id,
			EventType:       eventType,
			Payload:         payload,
		}
		switch err := s.events.Append(ctx, rec); {
		case errors.Is(err, eventstore.ErrDuplicateEvent):
			// Already emitted by an earlier scan or another instance.
		case err != nil:
			s.logger.ErrorContext(ctx, "appending scheduled event failed",
				slog.String("event_type", eventType),
				slog.String("provider_event_id", id),
				slog.String("error", err.Error()))
		default:
			s.logger.InfoContext(ctx, "deadline event emitted",
				slog.String("event_type", eventType),
				slog.String("provider_event_id", id),
				slog.String("tenant_id", d.TenantID.String()))
		}
	}
}
