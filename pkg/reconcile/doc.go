// Package reconcile keeps invoice balances consistent with the payments and
// refunds applied against them.
//
// The engine is pure logic over ledger entities: it mutates the invoice and
// payment passed in and leaves persistence to the caller's unit of work.
// After every operation amount_remaining = amount_due - amount_paid holds and
// is never negative; the ledger write path double-checks the same invariant.
package reconcile
