// Package logger builds the slog loggers used across the engine.
//
// New assembles a *slog.Logger from functional options: output format
// (json/text), level, static attributes, and context extractors that attach
// request-scoped values (request id, tenant id) on every log call. Attr
// helpers keep billing attribute keys consistent — logger.TenantID,
// logger.InvoiceID, logger.Provider and friends — so log queries do not
// chase key spelling variants.
//
//	log := logger.New(
//	    logger.WithProduction("billingkit"),
//	    logger.WithContextValue("request_id", ctxKeyRequestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "invoice reconciled",
//	    logger.TenantID(tenantID),
//	    logger.InvoiceID(invoiceID),
//	)
package logger
