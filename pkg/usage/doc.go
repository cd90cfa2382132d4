// Package usage turns immutable metered-usage records into invoice line
// items at billing period boundaries.
//
// Aggregation is read-only over usage records and idempotent over periods:
// each generated invoice records the window its line items cover, and
// BillPeriod refuses to bill a window that any existing invoice already
// covers with ErrPeriodAlreadyInvoiced. Re-running aggregation therefore
// never double-counts.
package usage
