package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Contract kinds
const (
	ContractKindMain        = "MAIN"
	ContractKindAmendment   = "AMENDMENT"
	ContractKindSubcontract = "SUBCONTRACT"
)

// Contract statuses
const (
	ContractStatusDraft             = "DRAFT"
	ContractStatusUnderReview       = "UNDER_REVIEW"
	ContractStatusPendingApproval   = "PENDING_APPROVAL"
	ContractStatusPendingAssignment = "PENDING_ASSIGNMENT"
	ContractStatusApproved          = "APPROVED"
	ContractStatusRejected          = "REJECTED"
	ContractStatusActive            = "ACTIVE"
	ContractStatusExpired           = "EXPIRED"
)

// Workflow stages mirror contract statuses for the UI
var ContractWorkflowStages = map[string]string{
	ContractStatusDraft:             "draft",
	ContractStatusUnderReview:       "under_review",
	ContractStatusPendingApproval:   "pending_approval",
	ContractStatusPendingAssignment: "pending_assignment",
	ContractStatusApproved:          "approved",
	ContractStatusRejected:          "rejected",
	ContractStatusActive:            "active",
	ContractStatusExpired:           "expired",
}

// Archive reasons
const (
	ArchiveReasonOther            = "OTHER"
	ArchiveReasonEarlyTermination = "EARLY_TERMINATION"
	ArchiveReasonExpired          = "EXPIRED"
	ArchiveReasonSuperseded       = "SUPERSEDED"
)

// VendorContract is a node in the contract lineage tree. MainContractID is
// the transitive root of the lineage; ParentContractID the direct parent;
// PreviousVersionID the node this version supersedes. All three are nil for
// a MAIN contract at version 1.0.
type VendorContract struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	TenantID       uint   `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_tenant_contract_number"`
	ContractNumber string `json:"contract_number" gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_contract_number"`
	ContractTitle  string `json:"contract_title" gorm:"type:varchar(255);not null"`
	ContractKind   string `json:"contract_kind" gorm:"type:varchar(20);default:'MAIN'"`
	ContractType   string `json:"contract_type" gorm:"type:varchar(50)"`
	Status         string `json:"status" gorm:"type:varchar(30);default:'UNDER_REVIEW'"`
	WorkflowStage  string `json:"workflow_stage" gorm:"type:varchar(30);default:'under_review'"`

	VersionNumber     decimal.Decimal `json:"version_number" gorm:"type:decimal(10,1);default:1.0"`
	ParentContractID  *uint           `json:"parent_contract_id,omitempty" gorm:"index"`
	MainContractID    *uint           `json:"main_contract_id,omitempty" gorm:"index"`
	PreviousVersionID *uint           `json:"previous_version_id,omitempty" gorm:"index"`

	VendorID uint `json:"vendor_id" gorm:"index;not null"`

	ContractValue decimal.Decimal `json:"contract_value" gorm:"type:decimal(20,2)"`
	Currency      string          `json:"currency" gorm:"type:varchar(10);default:'USD'"`
	LiabilityCap  decimal.Decimal `json:"liability_cap" gorm:"type:decimal(20,2)"`
	StartDate     *time.Time      `json:"start_date,omitempty"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	AutoRenewal   bool            `json:"auto_renewal" gorm:"default:false"`

	Priority                string `json:"priority" gorm:"type:varchar(20)"`
	Category                string `json:"category" gorm:"type:varchar(50)"`
	NoticePeriodDays        int    `json:"notice_period_days"`
	DisputeResolutionMethod string `json:"dispute_resolution_method" gorm:"type:varchar(50)"`
	GoverningLaw            string `json:"governing_law" gorm:"type:varchar(100)"`
	RiskScore               int    `json:"risk_score"`
	ComplianceFramework     string `json:"compliance_framework" gorm:"type:varchar(100)"`

	InsuranceRequirements datatypes.JSON `json:"insurance_requirements" gorm:"type:jsonb"`
	DataProtectionClauses datatypes.JSON `json:"data_protection_clauses" gorm:"type:jsonb"`
	CustomFields          datatypes.JSON `json:"custom_fields" gorm:"type:jsonb"`

	IsArchived      bool       `json:"is_archived" gorm:"default:false;index"`
	ArchivedDate    *time.Time `json:"archived_date,omitempty"`
	ArchivedBy      string     `json:"archived_by,omitempty" gorm:"type:varchar(50)"`
	ArchiveReason   string     `json:"archive_reason,omitempty" gorm:"type:varchar(50)"`
	ArchiveComments string     `json:"archive_comments,omitempty" gorm:"type:text"`
	CanBeRestored   bool       `json:"can_be_restored" gorm:"default:true"`

	// When false, vendor users see only the redacted projection of this row.
	PermissionRequired bool `json:"permission_required" gorm:"default:true"`

	FilePath string `json:"file_path,omitempty" gorm:"type:varchar(512)"`

	CreatedBy uint      `json:"created_by" gorm:"index"`
	UpdatedBy uint      `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContractTerm is owned by a VendorContract. TermID is the human-readable
// identifier, unique per tenant; VersionNumber is stamped from the owning
// contract at copy time.
type ContractTerm struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	TenantID         uint      `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_tenant_term_id"`
	TermID           string    `json:"term_id" gorm:"type:varchar(150);not null;uniqueIndex:idx_tenant_term_id"`
	ContractID       uint      `json:"contract_id" gorm:"index;not null"`
	TermTitle        string    `json:"term_title" gorm:"type:varchar(255);not null"`
	TermCategory     string    `json:"term_category" gorm:"type:varchar(50);index"`
	TermText         string    `json:"term_text" gorm:"type:text"`
	RiskLevel        string    `json:"risk_level" gorm:"type:varchar(20)"`
	ComplianceStatus string    `json:"compliance_status" gorm:"type:varchar(30)"`
	IsStandard       bool      `json:"is_standard" gorm:"default:false"`
	VersionNumber    string    `json:"version_number" gorm:"type:varchar(20)"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ContractClause is owned by a VendorContract.
type ContractClause struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	TenantID      uint      `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_tenant_clause_id"`
	ClauseID      string    `json:"clause_id" gorm:"type:varchar(150);not null;uniqueIndex:idx_tenant_clause_id"`
	ContractID    uint      `json:"contract_id" gorm:"index;not null"`
	ClauseName    string    `json:"clause_name" gorm:"type:varchar(255);not null"`
	ClauseType    string    `json:"clause_type" gorm:"type:varchar(50);index"`
	ClauseText    string    `json:"clause_text" gorm:"type:text"`
	RiskLevel     string    `json:"risk_level" gorm:"type:varchar(20)"`
	IsStandard    bool      `json:"is_standard" gorm:"default:false"`
	VersionNumber string    `json:"version_number" gorm:"type:varchar(20)"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TermQuestionnaire is the per-term static questionnaire row.
type TermQuestionnaire struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	TenantID        uint           `json:"tenant_id" gorm:"index;not null"`
	TermID          string         `json:"term_id" gorm:"type:varchar(150);index;not null"`
	QuestionText    string         `json:"question_text" gorm:"type:text;not null"`
	QuestionType    string         `json:"question_type" gorm:"type:varchar(30);default:'text'"`
	IsRequired      bool           `json:"is_required" gorm:"default:false"`
	Weighting       float64        `json:"weighting"`
	DocumentUpload  bool           `json:"document_upload" gorm:"default:false"`
	MultipleChoice  datatypes.JSON `json:"multiple_choice" gorm:"type:jsonb"`
	DisplayOrder    int            `json:"display_order"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// QuestionnaireTemplate is the tenant-scoped template registry, keyed by term
// category. Supplying an explicit template ID on write replaces the whole
// question list.
type QuestionnaireTemplate struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TenantID     uint           `json:"tenant_id" gorm:"index;not null;uniqueIndex:idx_tenant_term_cat"`
	TermCategory string         `json:"term_category" gorm:"type:varchar(50);not null;uniqueIndex:idx_tenant_term_cat"`
	TemplateName string         `json:"template_name" gorm:"type:varchar(150)"`
	Questions    datatypes.JSON `json:"questions" gorm:"type:jsonb"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Amendment workflow statuses
const (
	AmendmentWorkflowPending  = "pending"
	AmendmentWorkflowApproved = "approved"
	AmendmentWorkflowRejected = "rejected"
)

// ContractAmendment is the typed companion record for an amendment contract.
// It is the source of truth for amendment metadata; custom_fields carries at
// most a read-side mirror for legacy consumers.
type ContractAmendment struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	TenantID        uint            `json:"tenant_id" gorm:"index;not null"`
	ContractID      uint            `json:"contract_id" gorm:"index;not null"`
	AmendmentNumber string          `json:"amendment_number" gorm:"type:varchar(100)"`
	Reason          string          `json:"reason" gorm:"type:text"`
	FinancialImpact decimal.Decimal `json:"financial_impact" gorm:"type:decimal(20,2)"`
	EffectiveDate   *time.Time      `json:"effective_date,omitempty"`
	WorkflowStatus  string          `json:"workflow_status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Approval statuses
const (
	ApprovalStatusAssigned   = "ASSIGNED"
	ApprovalStatusInProgress = "IN_PROGRESS"
	ApprovalStatusApproved   = "APPROVED"
	ApprovalStatusRejected   = "REJECTED"
)

// ContractApproval links a contract to an assigner/assignee pair. Exactly one
// non-terminal approval exists per contract at any time.
type ContractApproval struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	TenantID     uint       `json:"tenant_id" gorm:"index;not null"`
	ContractID   uint       `json:"contract_id" gorm:"index;not null"`
	AssignedBy   uint       `json:"assigned_by"`
	AssignedTo   string     `json:"assigned_to" gorm:"type:varchar(50)"` // legal_reviewer or contract_owner
	Status       string     `json:"status" gorm:"type:varchar(20);default:'ASSIGNED'"`
	AssignedDate time.Time  `json:"assigned_date"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ApprovedDate *time.Time `json:"approved_date,omitempty"`
	CommentText  string     `json:"comment_text" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
