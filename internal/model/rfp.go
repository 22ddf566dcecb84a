package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RFP statuses
const (
	RFPStatusDraft          = "DRAFT"
	RFPStatusInReview       = "IN_REVIEW"
	RFPStatusApproved       = "APPROVED"
	RFPStatusPublished      = "PUBLISHED"
	RFPStatusSubmissionOpen = "SUBMISSION_OPEN"
	RFPStatusEvaluation     = "EVALUATION"
	RFPStatusAwarded        = "AWARDED"
	RFPStatusCancelled      = "CANCELLED"
	RFPStatusArchived       = "ARCHIVED"
)

// Evaluation methods
const (
	EvaluationMethodLowestPrice     = "lowest_price"
	EvaluationMethodBestValue       = "best_value"
	EvaluationMethodWeightedScoring = "weighted_scoring"
)

// RFP is a request for proposal. RFPNumber is minted RFP-YYYY-MM-NNNN and
// unique per tenant.
type RFP struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	TenantID    uint   `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_tenant_rfp_number"`
	RFPNumber   string `json:"rfp_number" gorm:"type:varchar(50);not null;uniqueIndex:idx_tenant_rfp_number"`
	Title       string `json:"title" gorm:"type:varchar(255)"`
	Description string `json:"description" gorm:"type:text"`
	RFPType     string `json:"rfp_type" gorm:"type:varchar(50)"`
	Status      string `json:"status" gorm:"type:varchar(30);default:'DRAFT';index"`

	VersionNumber int `json:"version_number" gorm:"default:1"`

	ComplianceRequirements datatypes.JSON `json:"compliance_requirements" gorm:"type:jsonb"`
	CustomFields           datatypes.JSON `json:"custom_fields" gorm:"type:jsonb"`
	DataInventory          datatypes.JSON `json:"data_inventory" gorm:"type:jsonb"`

	AutoApprove          bool   `json:"auto_approve" gorm:"default:false"`
	AllowLateSubmissions bool   `json:"allow_late_submissions" gorm:"default:false"`
	EvaluationMethod     string `json:"evaluation_method" gorm:"type:varchar(30);default:'weighted_scoring'"`
	CriticalityLevel     string `json:"criticality_level" gorm:"type:varchar(20)"`

	PrimaryReviewerID   *uint `json:"primary_reviewer_id,omitempty"`
	ExecutiveReviewerID *uint `json:"executive_reviewer_id,omitempty"`
	ApprovalWorkflowID  *uint `json:"approval_workflow_id,omitempty"`

	IssueDate           *time.Time `json:"issue_date,omitempty"`
	SubmissionDeadline  *time.Time `json:"submission_deadline,omitempty"`
	EvaluationPeriodEnd *time.Time `json:"evaluation_period_end,omitempty"`
	AwardDate           *time.Time `json:"award_date,omitempty"`

	EstimatedValue decimal.Decimal `json:"estimated_value" gorm:"type:decimal(20,2)"`
	BudgetRangeMin decimal.Decimal `json:"budget_range_min" gorm:"type:decimal(20,2)"`
	BudgetRangeMax decimal.Decimal `json:"budget_range_max" gorm:"type:decimal(20,2)"`
	Currency       string          `json:"currency" gorm:"type:varchar(10);default:'USD'"`

	// Ordered list of blob IDs in the storage gateway.
	Documents datatypes.JSON `json:"documents" gorm:"type:jsonb"`

	ApprovedBy         *uint      `json:"approved_by,omitempty"`
	AwardDecisionDate  *time.Time `json:"award_decision_date,omitempty"`
	AwardJustification string     `json:"award_justification" gorm:"type:text"`

	CreatedBy uint      `json:"created_by" gorm:"index"`
	UpdatedBy uint      `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Evaluation criterion types
const (
	CriterionTypeScoring   = "scoring"
	CriterionTypeBinary    = "binary"
	CriterionTypeNarrative = "narrative"
)

// RFPEvaluationCriteria is owned by an RFP. Weights across an RFP's criteria
// must sum to 100 when the RFP is submitted for review.
type RFPEvaluationCriteria struct {
	ID               uint    `json:"id" gorm:"primaryKey"`
	TenantID         uint    `json:"tenant_id" gorm:"index;not null"`
	RFPID            uint    `json:"rfp_id" gorm:"index;not null"`
	CriteriaName     string  `json:"criteria_name" gorm:"type:varchar(255);not null"`
	Description      string  `json:"description" gorm:"type:text"`
	WeightPercentage float64 `json:"weight_percentage"`
	EvaluationType   string  `json:"evaluation_type" gorm:"type:varchar(20);default:'scoring'"`
	MinScore         float64 `json:"min_score" gorm:"default:0"`
	MaxScore         float64 `json:"max_score" gorm:"default:10"`

	IsMandatory           bool    `json:"is_mandatory" gorm:"default:false"`
	VetoEnabled           bool    `json:"veto_enabled" gorm:"default:false"`
	VetoThreshold         float64 `json:"veto_threshold"`
	MinWordCount          int     `json:"min_word_count"`
	ExpectedBooleanAnswer string  `json:"expected_boolean_answer" gorm:"type:varchar(10)"`

	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
