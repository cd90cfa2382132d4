package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/money"
)

// UsageRecord is a single immutable metered-usage fact. Records are appended
// and read, never updated or deleted; aggregation derives invoice line items
// from them without touching the source rows.
type UsageRecord struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	SubscriptionID *uuid.UUID
	MetricName     string
	Quantity       int64
	UnitPrice      *money.Price // nil for metrics priced at the plan level
	RecordedAt     time.Time    // when the usage happened, UTC
	CreatedAt      time.Time    // when the record was ingested
}
