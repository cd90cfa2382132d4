package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus represents the standing of a tenant account.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant is a billed customer account. All other records belong to exactly
// one tenant; deleting a tenant tombstones it, never removes rows.
type Tenant struct {
	ID                 uuid.UUID
	Name               string
	BillingEmail       string
	ExternalCustomerID string // provider-side customer reference (e.g. ctm_...)
	Status             TenantStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// IsDeleted reports whether the tenant has been tombstoned.
func (t *Tenant) IsDeleted() bool {
	return t.DeletedAt != nil
}
