package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
// Per-tenant serialization uses a keyed mutex; writes are staged inside the
// unit of work and only merged into the base maps on success, mirroring the
// commit/rollback behavior of the Postgres store.
type MemoryStore struct {
	mu sync.RWMutex

	tenants       map[uuid.UUID]*Tenant
	plans         map[uuid.UUID]*Plan
	subscriptions map[uuid.UUID]*Subscription
	payments      map[uuid.UUID]*Payment
	invoices      map[uuid.UUID]*Invoice
	usage         map[uuid.UUID]*UsageRecord
	applied       map[string]struct{}

	tenantLocks sync.Map // uuid.UUID -> *sync.Mutex

	// now is swappable in tests for deterministic timestamps.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[uuid.UUID]*Tenant),
		plans:         make(map[uuid.UUID]*Plan),
		subscriptions: make(map[uuid.UUID]*Subscription),
		payments:      make(map[uuid.UUID]*Payment),
		invoices:      make(map[uuid.UUID]*Invoice),
		usage:         make(map[uuid.UUID]*UsageRecord),
		applied:       make(map[string]struct{}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// Seed helpers insert records directly, bypassing the unit of work.
// Intended for test fixtures and local bootstrap.

func (s *MemoryStore) SeedTenant(t *Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.stampTenant(&cp)
	s.tenants[cp.ID] = &cp
}

func (s *MemoryStore) SeedPlan(p *Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = s.now()
	s.plans[cp.ID] = &cp
}

func (s *MemoryStore) SeedSubscription(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = s.now()
	s.subscriptions[cp.ID] = &cp
}

func (s *MemoryStore) SeedInvoice(inv *Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *inv
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = s.now()
	s.invoices[cp.ID] = &cp
}

func (s *MemoryStore) SeedPayment(p *Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = s.now()
	s.payments[cp.ID] = &cp
}

func (s *MemoryStore) SeedUsage(rec *UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.usage[cp.ID] = &cp
}

func (s *MemoryStore) stampTenant(t *Tenant) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = s.now()
}

// GetInvoice reads an invoice outside a unit of work. Test helper.
func (s *MemoryStore) GetInvoice(id uuid.UUID) (*Invoice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, false
	}
	cp := *inv
	return &cp, true
}

// GetSubscription reads a subscription outside a unit of work. Test helper.
func (s *MemoryStore) GetSubscription(id uuid.UUID) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, false
	}
	cp := *sub
	return &cp, true
}

// GetInvoicesForSubscription reads a subscription's invoices outside a unit
// of work, ordered by creation time ascending. Test helper.
func (s *MemoryStore) GetInvoicesForSubscription(subID uuid.UUID) []Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Invoice
	for _, inv := range s.invoices {
		if inv.SubscriptionID != nil && *inv.SubscriptionID == subID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// GetPayment reads a payment outside a unit of work. Test helper.
func (s *MemoryStore) GetPayment(id uuid.UUID) (*Payment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// DueRollovers implements Scanner.
func (s *MemoryStore) DueRollovers(ctx context.Context, asOf time.Time, limit int) ([]DueSubscription, error) {
	return s.scanDue(limit, func(sub *Subscription) (time.Time, bool) {
		switch sub.Status {
		case SubscriptionActive, SubscriptionPastDue, SubscriptionTrialing:
			return sub.CurrentPeriodEnd, !sub.CurrentPeriodEnd.After(asOf)
		}
		return time.Time{}, false
	})
}

// DueTrials implements Scanner.
func (s *MemoryStore) DueTrials(ctx context.Context, asOf time.Time, limit int) ([]DueSubscription, error) {
	return s.scanDue(limit, func(sub *Subscription) (time.Time, bool) {
		if sub.Status != SubscriptionTrialing || sub.TrialEnd == nil {
			return time.Time{}, false
		}
		return *sub.TrialEnd, !sub.TrialEnd.After(asOf)
	})
}

// DueDunning implements Scanner.
func (s *MemoryStore) DueDunning(ctx context.Context, asOf time.Time, grace time.Duration, limit int) ([]DueSubscription, error) {
	cutoff := asOf.Add(-grace)
	return s.scanDue(limit, func(sub *Subscription) (time.Time, bool) {
		if sub.Status != SubscriptionPastDue {
			return time.Time{}, false
		}
		for _, inv := range s.invoices {
			if inv.SubscriptionID != nil && *inv.SubscriptionID == sub.ID &&
				inv.Status == InvoiceOpen && inv.DueDate != nil && !inv.DueDate.After(cutoff) {
				return *inv.DueDate, true
			}
		}
		return time.Time{}, false
	})
}

func (s *MemoryStore) scanDue(limit int, match func(*Subscription) (time.Time, bool)) ([]DueSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DueSubscription
	for _, sub := range s.subscriptions {
		if sub.DeletedAt != nil {
			continue
		}
		dueAt, ok := match(sub)
		if !ok {
			continue
		}
		out = append(out, DueSubscription{
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			ProviderSubID:  sub.ProviderSubID,
			DueAt:          dueAt,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].DueAt.Before(out[b].DueAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) tenantLock(tenantID uuid.UUID) *sync.Mutex {
	lock, _ := s.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// WithinTenant implements Store.
func (s *MemoryStore) WithinTenant(ctx context.Context, tenantID uuid.UUID, fn TxFunc) error {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	_, exists := s.tenants[tenantID]
	s.mu.RUnlock()
	if !exists {
		return ErrTenantNotFound
	}

	tx := &memTx{
		store:         s,
		tenantID:      tenantID,
		subscriptions: make(map[uuid.UUID]*Subscription),
		payments:      make(map[uuid.UUID]*Payment),
		invoices:      make(map[uuid.UUID]*Invoice),
		usage:         make(map[uuid.UUID]*UsageRecord),
		applied:       make(map[string]struct{}),
	}

	if err := fn(ctx, tx); err != nil {
		return err // staged writes are discarded
	}

	tx.commit()
	return nil
}

// memTx stages writes until commit. Reads prefer staged copies so a unit of
// work observes its own writes.
type memTx struct {
	store    *MemoryStore
	tenantID uuid.UUID

	subscriptions map[uuid.UUID]*Subscription
	payments      map[uuid.UUID]*Payment
	invoices      map[uuid.UUID]*Invoice
	usage         map[uuid.UUID]*UsageRecord
	applied       map[string]struct{}
}

func (tx *memTx) commit() {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for id, sub := range tx.subscriptions {
		tx.store.subscriptions[id] = sub
	}
	for id, p := range tx.payments {
		tx.store.payments[id] = p
	}
	for id, inv := range tx.invoices {
		tx.store.invoices[id] = inv
	}
	for id, rec := range tx.usage {
		tx.store.usage[id] = rec
	}
	for key := range tx.applied {
		tx.store.applied[key] = struct{}{}
	}
}

func appliedKey(provider, providerEventID string) string {
	return provider + "\x00" + providerEventID
}

func (tx *memTx) Tenant(ctx context.Context) (*Tenant, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	t, ok := tx.store.tenants[tx.tenantID]
	if !ok || t.IsDeleted() {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (tx *memTx) Plan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	p, ok := tx.store.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (tx *memTx) PlanByCode(ctx context.Context, code string) (*Plan, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, p := range tx.store.plans {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (tx *memTx) Subscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	if sub, ok := tx.subscriptions[id]; ok {
		cp := *sub
		return &cp, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	sub, ok := tx.store.subscriptions[id]
	if !ok || sub.TenantID != tx.tenantID || sub.DeletedAt != nil {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (tx *memTx) SubscriptionByProviderID(ctx context.Context, providerSubID string) (*Subscription, error) {
	for _, sub := range tx.subscriptions {
		if sub.ProviderSubID == providerSubID {
			cp := *sub
			return &cp, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, sub := range tx.store.subscriptions {
		if sub.TenantID == tx.tenantID && sub.ProviderSubID == providerSubID && sub.DeletedAt == nil {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (tx *memTx) SaveSubscription(ctx context.Context, sub *Subscription) error {
	if sub.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	cp := *sub
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = tx.store.now()
	}
	cp.UpdatedAt = tx.store.now()
	tx.subscriptions[cp.ID] = &cp
	return nil
}

func (tx *memTx) Payment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	if p, ok := tx.payments[id]; ok {
		cp := *p
		return &cp, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	p, ok := tx.store.payments[id]
	if !ok || p.TenantID != tx.tenantID {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (tx *memTx) PaymentByProviderID(ctx context.Context, providerPaymentID string) (*Payment, error) {
	for _, p := range tx.payments {
		if p.ProviderPaymentID == providerPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, p := range tx.store.payments {
		if p.TenantID == tx.tenantID && p.ProviderPaymentID == providerPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (tx *memTx) SavePayment(ctx context.Context, p *Payment) error {
	if p.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	if err := p.Validate(); err != nil {
		return err
	}
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = tx.store.now()
	}
	cp.UpdatedAt = tx.store.now()
	tx.payments[cp.ID] = &cp
	return nil
}

func (tx *memTx) Invoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	if inv, ok := tx.invoices[id]; ok {
		cp := *inv
		return &cp, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	inv, ok := tx.store.invoices[id]
	if !ok || inv.TenantID != tx.tenantID {
		return nil, ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (tx *memTx) InvoiceByProviderID(ctx context.Context, providerInvoiceID string) (*Invoice, error) {
	for _, inv := range tx.invoices {
		if inv.ProviderInvoiceID == providerInvoiceID {
			cp := *inv
			return &cp, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for _, inv := range tx.store.invoices {
		if inv.TenantID == tx.tenantID && inv.ProviderInvoiceID == providerInvoiceID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (tx *memTx) OpenInvoice(ctx context.Context, subscriptionID uuid.UUID) (*Invoice, error) {
	var candidates []*Invoice
	seen := make(map[uuid.UUID]struct{})

	for _, inv := range tx.invoices {
		seen[inv.ID] = struct{}{}
		if tx.openInvoiceMatch(inv, subscriptionID) {
			candidates = append(candidates, inv)
		}
	}
	tx.store.mu.RLock()
	for id, inv := range tx.store.invoices {
		if _, staged := seen[id]; staged {
			continue
		}
		if tx.openInvoiceMatch(inv, subscriptionID) {
			candidates = append(candidates, inv)
		}
	}
	tx.store.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrInvoiceNotFound
	}
	sort.Slice(candidates, func(a, b int) bool {
		return candidates[a].CreatedAt.Before(candidates[b].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (tx *memTx) openInvoiceMatch(inv *Invoice, subscriptionID uuid.UUID) bool {
	return inv.TenantID == tx.tenantID &&
		inv.SubscriptionID != nil && *inv.SubscriptionID == subscriptionID &&
		!inv.IsSettled()
}

func (tx *memTx) HasInvoiceForPeriod(ctx context.Context, subscriptionID uuid.UUID, periodStart, periodEnd time.Time) (bool, error) {
	match := func(inv *Invoice) bool {
		return inv.TenantID == tx.tenantID &&
			inv.SubscriptionID != nil && *inv.SubscriptionID == subscriptionID &&
			inv.Status != InvoiceVoid &&
			inv.CoversPeriod(periodStart, periodEnd)
	}
	for _, inv := range tx.invoices {
		if match(inv) {
			return true, nil
		}
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	for id, inv := range tx.store.invoices {
		if _, staged := tx.invoices[id]; staged {
			continue
		}
		if match(inv) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) SaveInvoice(ctx context.Context, inv *Invoice) error {
	if inv.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	cp := *inv
	cp.LineItems = append([]LineItem(nil), inv.LineItems...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = tx.store.now()
	}
	cp.UpdatedAt = tx.store.now()
	tx.invoices[cp.ID] = &cp
	return nil
}

func (tx *memTx) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	if rec.TenantID != tx.tenantID {
		return ErrTenantMismatch
	}
	if _, staged := tx.usage[rec.ID]; staged {
		return ErrImmutableRecord
	}
	tx.store.mu.RLock()
	_, exists := tx.store.usage[rec.ID]
	tx.store.mu.RUnlock()
	if exists {
		return ErrImmutableRecord
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = tx.store.now()
	}
	tx.usage[cp.ID] = &cp
	return nil
}

func (tx *memTx) UsageInPeriod(ctx context.Context, subscriptionID uuid.UUID, from, to time.Time) ([]UsageRecord, error) {
	var out []UsageRecord
	collect := func(rec *UsageRecord) {
		if rec.TenantID != tx.tenantID {
			return
		}
		if rec.SubscriptionID == nil || *rec.SubscriptionID != subscriptionID {
			return
		}
		if rec.RecordedAt.Before(from) || !rec.RecordedAt.Before(to) {
			return
		}
		out = append(out, *rec)
	}

	seen := make(map[uuid.UUID]struct{})
	for id, rec := range tx.usage {
		seen[id] = struct{}{}
		collect(rec)
	}
	tx.store.mu.RLock()
	for id, rec := range tx.store.usage {
		if _, staged := seen[id]; staged {
			continue
		}
		collect(rec)
	}
	tx.store.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		return out[a].RecordedAt.Before(out[b].RecordedAt)
	})
	return out, nil
}

func (tx *memTx) EventApplied(ctx context.Context, provider, providerEventID string) (bool, error) {
	key := appliedKey(provider, providerEventID)
	if _, staged := tx.applied[key]; staged {
		return true, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	_, ok := tx.store.applied[key]
	return ok, nil
}

func (tx *memTx) MarkEventApplied(ctx context.Context, provider, providerEventID string) error {
	tx.applied[appliedKey(provider, providerEventID)] = struct{}{}
	return nil
}

var _ Store = (*MemoryStore)(nil)
var _ Scanner = (*MemoryStore)(nil)
var _ Tx = (*memTx)(nil)
