package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingkit/pkg/eventstore"
)

// Run sweeps unprocessed events until the context is cancelled. Sweeps are
// the retry mechanism: an event that failed transiently stays unprocessed
// and is attempted again on the next pass, up to the retry budget. On
// cancellation the current sweep drains its in-flight events before Run
// returns, so nothing is half-applied; anything not yet picked up simply
// stays in the store for the next start.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "processor run loop started",
		slog.Duration("poll_interval", p.pollInterval),
		slog.Int("workers", p.workers))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "processor run loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep picks up one batch of unprocessed events and applies them with
// bounded concurrency. Per-event failures are recorded on the event record,
// not returned: only a failure to list the batch fails the sweep.
func (p *Processor) Sweep(ctx context.Context) error {
	events, err := p.events.ListUnprocessed(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, rec := range events {
		g.Go(func() error {
			p.processStored(ctx, &rec)
			return nil
		})
	}
	return g.Wait()
}

// processStored re-parses a stored event and applies it. Used by retry
// sweeps, where the original parse result is gone.
func (p *Processor) processStored(ctx context.Context, rec *eventstore.Event) {
	prov, ok := p.providers[rec.Provider]
	if !ok {
		p.logger.ErrorContext(ctx, "no adapter registered for stored event",
			slog.String("event_id", rec.ID.String()),
			slog.String("provider", rec.Provider))
		if err := p.events.Quarantine(ctx, rec.ID, "no provider registered: "+rec.Provider); err != nil {
			p.logger.ErrorContext(ctx, "quarantine failed", slog.String("error", err.Error()))
		}
		return
	}

	ev, err := prov.ParseEvent(ctx, rec.Payload)
	if err != nil {
		if qerr := p.events.Quarantine(ctx, rec.ID, "malformed: "+err.Error()); qerr != nil {
			p.logger.ErrorContext(ctx, "quarantine failed", slog.String("error", qerr.Error()))
		}
		return
	}

	if err := p.process(ctx, rec, ev); err != nil {
		p.logger.WarnContext(ctx, "stored event processing failed",
			slog.String("event_id", rec.ID.String()),
			slog.Int("retry_count", rec.RetryCount),
			slog.String("error", err.Error()))
	}
}
