package model

import (
	"time"

	"gorm.io/datatypes"
)

// Vendor risk levels
const (
	RiskLevelLow      = "LOW"
	RiskLevelMedium   = "MEDIUM"
	RiskLevelHigh     = "HIGH"
	RiskLevelCritical = "CRITICAL"
)

// Vendor statuses
const (
	VendorStatusDraft      = "DRAFT"
	VendorStatusSubmitted  = "SUBMITTED"
	VendorStatusInReview   = "IN_REVIEW"
	VendorStatusApproved   = "APPROVED"
	VendorStatusRejected   = "REJECTED"
	VendorStatusSuspended  = "SUSPENDED"
	VendorStatusTerminated = "TERMINATED"
)

// Vendor represents a third-party vendor within a tenant. VendorCode is the
// natural key, minted VEN-YYYY-MM-NNNN and unique per tenant.
type Vendor struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	TenantID       uint           `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_tenant_vendor_code"`
	VendorCode     string         `json:"vendor_code" gorm:"type:varchar(50);not null;uniqueIndex:idx_tenant_vendor_code"`
	CompanyName    string         `json:"company_name" gorm:"type:varchar(255);index;not null"`
	RiskLevel      string         `json:"risk_level" gorm:"type:varchar(20);default:'MEDIUM'"`
	Status         string         `json:"status" gorm:"type:varchar(20);default:'DRAFT'"`
	Capabilities   datatypes.JSON `json:"capabilities" gorm:"type:jsonb"`
	Certifications datatypes.JSON `json:"certifications" gorm:"type:jsonb"`
	Website        string         `json:"website" gorm:"type:varchar(255)"`
	TaxID          string         `json:"tax_id" gorm:"type:varchar(50)"`
	CreatedBy      uint           `json:"created_by" gorm:"index"`
	UpdatedBy      uint           `json:"updated_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// VendorContact belongs to a Vendor. At most one primary-active contact per
// (vendor, contact_type); the service enforces it by demoting the previous
// primary inside the same transaction.
type VendorContact struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TenantID    uint      `json:"tenant_id" gorm:"index;not null"`
	VendorID    uint      `json:"vendor_id" gorm:"index;not null"`
	ContactType string    `json:"contact_type" gorm:"type:varchar(50);not null"`
	Name        string    `json:"name" gorm:"type:varchar(150);not null"`
	Email       string    `json:"email" gorm:"type:varchar(255)"`
	Phone       string    `json:"phone" gorm:"type:varchar(30)"`
	IsPrimary   bool      `json:"is_primary" gorm:"default:false"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
