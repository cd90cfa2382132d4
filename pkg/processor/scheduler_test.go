package processor_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/eventstore"
	"github.com/dmitrymomot/billingkit/pkg/ledger"
	"github.com/dmitrymomot/billingkit/pkg/money"
	"github.com/dmitrymomot/billingkit/pkg/processor"
	"github.com/dmitrymomot/billingkit/pkg/provider"
)

type schedulerFixture struct {
	events *eventstore.MemoryStore
	store  *ledger.MemoryStore
	sched  *processor.Scheduler

	tenantID uuid.UUID
	rollID   uuid.UUID // active, period ended
	trialID  uuid.UUID // trialing, trial ended
	dunID    uuid.UUID // past due, invoice overdue beyond grace
	dunInvID uuid.UUID

	asOf time.Time
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	f := &schedulerFixture{
		events:   eventstore.NewMemoryStore(),
		store:    ledger.NewMemoryStore(),
		tenantID: uuid.New(),
		rollID:   uuid.New(),
		trialID:  uuid.New(),
		dunID:    uuid.New(),
		dunInvID: uuid.New(),
		asOf:     time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC),
	}

	planID := uuid.New()
	f.store.SeedTenant(&ledger.Tenant{
		ID:           f.tenantID,
		Name:         "acme",
		BillingEmail: "billing@acme.test",
		Status:       ledger.TenantActive,
	})
	f.store.SeedPlan(&ledger.Plan{
		ID:            planID,
		Code:          "pro-monthly",
		Name:          "Pro",
		Price:         money.MustParse("99.99"),
		Currency:      "USD",
		BillingPeriod: ledger.PeriodMonthly,
		Active:        true,
	})

	f.store.SeedSubscription(&ledger.Subscription{
		ID:                 f.rollID,
		TenantID:           f.tenantID,
		PlanID:             planID,
		Status:             ledger.SubscriptionActive,
		ProviderSubID:      "sub_roll",
		CurrentPeriodStart: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	})

	trialEnd := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	f.store.SeedSubscription(&ledger.Subscription{
		ID:                 f.trialID,
		TenantID:           f.tenantID,
		PlanID:             planID,
		Status:             ledger.SubscriptionTrialing,
		ProviderSubID:      "sub_trial",
		TrialEnd:           &trialEnd,
		CurrentPeriodStart: time.Date(2026, 6, 17, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2026, 7, 17, 0, 0, 0, 0, time.UTC),
	})

	f.store.SeedSubscription(&ledger.Subscription{
		ID:                 f.dunID,
		TenantID:           f.tenantID,
		PlanID:             planID,
		Status:             ledger.SubscriptionPastDue,
		ProviderSubID:      "sub_dun",
		CurrentPeriodStart: time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC),
		CurrentPeriodEnd:   time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC),
	})
	overdue := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	due := money.MustParse("49.99")
	f.store.SeedInvoice(&ledger.Invoice{
		ID:              f.dunInvID,
		TenantID:        f.tenantID,
		SubscriptionID:  &f.dunID,
		Status:          ledger.InvoiceOpen,
		AmountDue:       due,
		AmountRemaining: due,
		Currency:        "USD",
		DueDate:         &overdue,
	})

	f.sched = processor.NewScheduler(f.events, f.store,
		processor.WithSchedulerClock(func() time.Time { return f.asOf }),
		processor.WithDunningGrace(14*24*time.Hour))
	return f
}

func TestScheduler_EmitsElapsedDeadlines(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Emit(ctx))

	pending, err := f.events.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	types := make(map[string]int)
	for _, ev := range pending {
		assert.Equal(t, "internal", ev.Provider)
		types[ev.EventType]++
	}
	assert.Equal(t, map[string]int{
		"period.rollover":   1,
		"trial.elapsed":     1,
		"dunning.exhausted": 1,
	}, types)
}

func TestScheduler_RescanDoesNotDuplicate(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.sched.Emit(ctx))
	require.NoError(t, f.sched.Emit(ctx))
	require.NoError(t, f.sched.Emit(ctx))

	// Deterministic identifiers: the same elapsed deadline always produces
	// the same event, deduplicated at the append.
	pending, err := f.events.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestScheduler_EmittedEventsApply(t *testing.T) {
	t.Parallel()

	f := newSchedulerFixture(t)
	ctx := context.Background()

	internal, err := provider.NewInternal(provider.InternalConfig{SigningSecret: "hush"})
	require.NoError(t, err)
	proc := processor.New(f.events, f.store, processor.WithProviders(internal))

	require.NoError(t, f.sched.Emit(ctx))
	require.NoError(t, proc.Sweep(ctx))

	// Rollover: window invoiced, period advanced.
	sub, _ := f.store.GetSubscription(f.rollID)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodStart)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
	invoices := f.store.GetInvoicesForSubscription(f.rollID)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].AmountDue.Equal(money.MustParse("99.99")))

	// Trial ended without a confirmed payment method.
	sub, _ = f.store.GetSubscription(f.trialID)
	assert.Equal(t, ledger.SubscriptionIncomplete, sub.Status)

	// Collection exhausted: the overdue invoice is written off.
	inv, _ := f.store.GetInvoice(f.dunInvID)
	assert.Equal(t, ledger.InvoiceUncollectible, inv.Status)

	pending, err := f.events.ListUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
