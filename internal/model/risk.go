package model

import (
	"time"

	"gorm.io/datatypes"
)

// Risk priorities
const (
	RiskPriorityLow      = "Low"
	RiskPriorityMedium   = "Medium"
	RiskPriorityHigh     = "High"
	RiskPriorityCritical = "Critical"
)

// Risk entity kinds the analyzer writes rows for
const (
	RiskEntityContract = "contract_module"
	RiskEntityRFP      = "rfp_module"
)

// Risk is one finding produced by the external risk analyzer for a contract
// or an RFP. The (Entity, EntityRowID) pair scopes the idempotency check of
// the trigger endpoint.
type Risk struct {
	ID                   uint           `json:"id" gorm:"primaryKey"`
	TenantID             uint           `json:"tenant_id" gorm:"index;not null"`
	Entity               string         `json:"entity" gorm:"type:varchar(30);index:idx_entity_row;not null"`
	EntityRowID          uint           `json:"entity_row_id" gorm:"index:idx_entity_row;not null"`
	Title                string         `json:"title" gorm:"type:varchar(255)"`
	Description          string         `json:"description" gorm:"type:text"`
	Likelihood           int            `json:"likelihood"`
	Impact               int            `json:"impact"`
	ExposureRating       float64        `json:"exposure_rating"`
	Score                float64        `json:"score"`
	Priority             string         `json:"priority" gorm:"type:varchar(10);index"`
	Status               string         `json:"status" gorm:"type:varchar(30);default:'OPEN'"`
	AIExplanation        string         `json:"ai_explanation" gorm:"type:text"`
	SuggestedMitigations datatypes.JSON `json:"suggested_mitigations" gorm:"type:jsonb"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}
