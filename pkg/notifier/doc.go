// Package notifier delivers reconciliation-outcome notifications to tenants.
//
// The engine treats delivery as fire-and-forget: it hands a notification to a
// Gateway and moves on without waiting for confirmation. Deliverers are
// expected to tolerate duplicates, since the processor notifies at-least-once.
//
// Shipped gateways: a no-op for tests, a slog-backed one for development, a
// Postmark email deliverer, an outbound webhook deliverer with retries and a
// circuit breaker, and a Multi router that fans out by channel.
package notifier
