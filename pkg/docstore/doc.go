// Package docstore persists finalized invoice documents.
//
// The engine is not in the document-rendering business: it hands over the
// invoice data it reconciled and an external consumer turns that into a PDF
// or whatever the tenant downloads. This package covers the handoff: a
// Store interface, an S3 implementation for production, and an in-memory
// one for tests.
package docstore
