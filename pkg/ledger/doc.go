// Package ledger holds the durable billing records: tenants, plans,
// subscriptions, payments, invoices, and metered usage.
//
// All mutations go through a per-tenant unit of work so concurrent events for
// the same tenant never interleave partial updates:
//
//	err := store.WithinTenant(ctx, tenantID, func(ctx context.Context, tx ledger.Tx) error {
//		inv, err := tx.InvoiceByProviderID(ctx, "in_123")
//		if err != nil {
//			return err
//		}
//		// mutate and save; everything commits together or not at all
//		return tx.SaveInvoice(ctx, inv)
//	})
//
// Two implementations are provided: MemoryStore for tests and local
// development, and PostgresStore on pgx for production. The write path stamps
// UpdatedAt on every mutation and asserts the invoice balance invariant
// (amount_remaining = amount_due - amount_paid, never negative) so a broken
// balance can never reach storage.
//
// Payments, invoices, usage records, and webhook events are financial audit
// records: they are never deleted. Tenants, plans, and subscriptions are
// soft-deleted via a tombstone timestamp.
package ledger
