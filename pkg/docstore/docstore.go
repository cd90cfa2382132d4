package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/ledger"
)

// Document is one finalized invoice artifact ready for storage.
type Document struct {
	TenantID    uuid.UUID
	InvoiceID   uuid.UUID
	ContentType string
	Body        []byte
}

// Key returns the storage key the document lives under. Tenant-prefixed so
// per-tenant listing and retention policies stay cheap.
func (d Document) Key() string {
	return fmt.Sprintf("invoices/%s/%s.json", d.TenantID, d.InvoiceID)
}

// Store persists finalized invoice documents. Put is idempotent: storing
// the same invoice again overwrites the previous document.
type Store interface {
	// Put stores the document and returns its public URL, or an empty
	// string when the backend exposes none.
	Put(ctx context.Context, doc Document) (string, error)

	// Get returns a stored document's body, or ErrDocumentNotFound.
	Get(ctx context.Context, tenantID, invoiceID uuid.UUID) ([]byte, error)
}

// invoiceDocument is the JSON shape handed to external document rendering.
type invoiceDocument struct {
	InvoiceID   uuid.UUID         `json:"invoice_id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	Status      string            `json:"status"`
	Currency    string            `json:"currency"`
	AmountDue   string            `json:"amount_due"`
	AmountPaid  string            `json:"amount_paid"`
	LineItems   []ledger.LineItem `json:"line_items"`
	PeriodStart *time.Time        `json:"period_start,omitempty"`
	PeriodEnd   *time.Time        `json:"period_end,omitempty"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	IssuedAt    time.Time         `json:"issued_at"`
}

// Render serializes a finalized invoice into a storable document.
func Render(inv *ledger.Invoice) (Document, error) {
	body, err := json.MarshalIndent(invoiceDocument{
		InvoiceID:   inv.ID,
		TenantID:    inv.TenantID,
		Status:      string(inv.Status),
		Currency:    inv.Currency,
		AmountDue:   inv.AmountDue.String(),
		AmountPaid:  inv.AmountPaid.String(),
		LineItems:   inv.LineItems,
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		DueDate:     inv.DueDate,
		IssuedAt:    inv.CreatedAt,
	}, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("rendering invoice %s: %w", inv.ID, err)
	}
	return Document{
		TenantID:    inv.TenantID,
		InvoiceID:   inv.ID,
		ContentType: "application/json",
		Body:        body,
	}, nil
}
