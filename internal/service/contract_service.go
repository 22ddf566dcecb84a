package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/model"
)

// maxLineageDepth bounds ancestor walks when validating lineage links.
const maxLineageDepth = 100

// ContractService owns the contract lineage store: main contracts,
// amendments, subcontracts, archive state and child entities (terms, clauses,
// questionnaires). All mutations run inside a single transaction.
type ContractService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewContractService(db *gorm.DB, log *zap.Logger) *ContractService {
	return &ContractService{db: db, log: log, now: time.Now}
}

// QuestionInput is one questionnaire question attached to a term.
type QuestionInput struct {
	QuestionText   string          `json:"question_text"`
	QuestionType   string          `json:"question_type"`
	IsRequired     bool            `json:"is_required"`
	Weighting      float64         `json:"weighting"`
	DocumentUpload bool            `json:"document_upload"`
	MultipleChoice json.RawMessage `json:"multiple_choice"`
	DisplayOrder   int             `json:"display_order"`
}

// TermInput is a term supplied on contract create or amendment. Questionnaire
// rows are stored per term and mirrored into the tenant template registry for
// the term's category. TemplateID, when set, replaces that template's whole
// question list.
type TermInput struct {
	TermTitle        string          `json:"term_title"`
	TermCategory     string          `json:"term_category"`
	TermText         string          `json:"term_text"`
	RiskLevel        string          `json:"risk_level"`
	ComplianceStatus string          `json:"compliance_status"`
	IsStandard       bool            `json:"is_standard"`
	Questionnaires   []QuestionInput `json:"questionnaires"`
	TemplateID       *uint           `json:"template_id"`
}

// ClauseInput is a clause supplied on contract create or amendment.
type ClauseInput struct {
	ClauseName string `json:"clause_name"`
	ClauseType string `json:"clause_type"`
	ClauseText string `json:"clause_text"`
	RiskLevel  string `json:"risk_level"`
	IsStandard bool   `json:"is_standard"`
}

// CreateContractInput creates a MAIN contract.
type CreateContractInput struct {
	VendorID       uint   `json:"vendor_id"`
	ContractNumber string `json:"contract_number"`
	ContractTitle  string `json:"contract_title"`
	ContractType   string `json:"contract_type"`
	Status         string `json:"status"`

	ContractValue decimal.Decimal `json:"contract_value"`
	Currency      string          `json:"currency"`
	LiabilityCap  decimal.Decimal `json:"liability_cap"`
	StartDate     *time.Time      `json:"start_date"`
	EndDate       *time.Time      `json:"end_date"`
	AutoRenewal   interface{}     `json:"auto_renewal"`

	Priority                string `json:"priority"`
	Category                string `json:"category"`
	NoticePeriodDays        int    `json:"notice_period_days"`
	DisputeResolutionMethod string `json:"dispute_resolution_method"`
	GoverningLaw            string `json:"governing_law"`
	RiskScore               int    `json:"risk_score"`
	ComplianceFramework     string `json:"compliance_framework"`

	InsuranceRequirements json.RawMessage `json:"insurance_requirements"`
	DataProtectionClauses json.RawMessage `json:"data_protection_clauses"`
	CustomFields          json.RawMessage `json:"custom_fields"`

	PermissionRequired *bool  `json:"permission_required"`
	FilePath           string `json:"file_path"`
	AssignedTo         string `json:"assigned_to"` // legal_reviewer or contract_owner

	Terms   []TermInput   `json:"terms"`
	Clauses []ClauseInput `json:"clauses"`
}

// ContractOverrides are caller-supplied field replacements applied on top of
// the denormalized copy taken from the parent during amendment or subcontract
// creation. Nil pointers mean "keep the parent's value".
type ContractOverrides struct {
	ContractTitle           *string          `json:"contract_title"`
	ContractType            *string          `json:"contract_type"`
	ContractValue           *decimal.Decimal `json:"contract_value"`
	Currency                *string          `json:"currency"`
	LiabilityCap            *decimal.Decimal `json:"liability_cap"`
	StartDate               *time.Time       `json:"start_date"`
	EndDate                 *time.Time       `json:"end_date"`
	AutoRenewal             *bool            `json:"auto_renewal"`
	Priority                *string          `json:"priority"`
	Category                *string          `json:"category"`
	NoticePeriodDays        *int             `json:"notice_period_days"`
	DisputeResolutionMethod *string          `json:"dispute_resolution_method"`
	GoverningLaw            *string          `json:"governing_law"`
	RiskScore               *int             `json:"risk_score"`
	ComplianceFramework     *string          `json:"compliance_framework"`
	InsuranceRequirements   json.RawMessage  `json:"insurance_requirements"`
	DataProtectionClauses   json.RawMessage  `json:"data_protection_clauses"`
	CustomFields            json.RawMessage  `json:"custom_fields"`
	FilePath                *string          `json:"file_path"`
}

// AmendmentInput creates an AMENDMENT version of an existing contract.
type AmendmentInput struct {
	VersionType string            `json:"version_type"` // major or minor, default minor
	Overrides   ContractOverrides `json:"overrides"`

	AmendmentNumber string          `json:"amendment_number"`
	Reason          string          `json:"reason"`
	FinancialImpact decimal.Decimal `json:"financial_impact"`
	EffectiveDate   *time.Time      `json:"effective_date"`

	Terms   []TermInput   `json:"terms"`
	Clauses []ClauseInput `json:"clauses"`
}

// SubcontractInput creates a SUBCONTRACT under a freshly versioned parent.
type SubcontractInput struct {
	VersionType    string            `json:"version_type"` // bump applied to the parent
	ContractNumber string            `json:"contract_number"`
	ContractTitle  string            `json:"contract_title"`
	VendorID       uint              `json:"vendor_id"`
	Overrides      ContractOverrides `json:"overrides"`

	PermissionRequired *bool `json:"permission_required"`

	Terms   []TermInput   `json:"terms"`
	Clauses []ClauseInput `json:"clauses"`
}

// ArchiveInput archives a contract.
type ArchiveInput struct {
	ArchiveReason   string      `json:"archive_reason"`
	ArchiveComments string      `json:"archive_comments"`
	ArchivedBy      string      `json:"archived_by"`
	CanBeRestored   interface{} `json:"can_be_restored"`
}

// ListContractsInput filters contract listings.
type ListContractsInput struct {
	Status          string
	ContractKind    string
	VendorID        *uint
	Search          string
	IncludeArchived bool
	Page            PageRequest
}

// RedactedContract is what a vendor user sees for contracts whose
// permission_required flag is off. Existence is disclosed, content is not.
type RedactedContract struct {
	ID               uint   `json:"id"`
	ContractNumber   string `json:"contract_number"`
	ContractTitle    string `json:"contract_title"`
	Status           string `json:"status"`
	PermissionDenied bool   `json:"permission_denied"`
}

// ContractDetail is the full read projection.
type ContractDetail struct {
	Contract *model.VendorContract  `json:"contract"`
	Terms    []model.ContractTerm   `json:"terms"`
	Clauses  []model.ContractClause `json:"clauses"`
}

var validArchiveReasons = map[string]bool{
	model.ArchiveReasonOther:            true,
	model.ArchiveReasonEarlyTermination: true,
	model.ArchiveReasonExpired:          true,
	model.ArchiveReasonSuperseded:       true,
}

// CreateMain validates input, persists a MAIN contract and, when the contract
// lands in UNDER_REVIEW, opens a ContractApproval assignment with a 7-day due
// date. The contract and its terms, clauses and questionnaires commit
// atomically.
func (s *ContractService) CreateMain(ctx context.Context, scope Scope, actorID uint, in CreateContractInput) (*model.VendorContract, error) {
	if err := rejectSQLTokens(map[string]string{
		"contract_number": in.ContractNumber,
		"contract_title":  in.ContractTitle,
		"contract_type":   in.ContractType,
		"category":        in.Category,
		"governing_law":   in.GoverningLaw,
	}); err != nil {
		return nil, err
	}
	if in.ContractNumber == "" || in.ContractTitle == "" {
		return nil, &ValidationError{
			Message: "contract_number and contract_title are required",
			Fields:  map[string]string{"contract_number": "required", "contract_title": "required"},
		}
	}
	if in.VendorID == 0 {
		return nil, NewValidationError("vendor_id is required")
	}

	insurance, err := normalizeJSONBag(in.InsuranceRequirements, "requirements")
	if err != nil {
		return nil, err
	}
	protection, err := normalizeJSONBag(in.DataProtectionClauses, "clauses")
	if err != nil {
		return nil, err
	}
	custom, err := normalizeJSONBag(in.CustomFields, "notes")
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = model.ContractStatusUnderReview
	}
	stage, ok := model.ContractWorkflowStages[status]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("unknown contract status %q", in.Status))
	}

	contract := &model.VendorContract{
		TenantID:                scope.TenantID,
		ContractNumber:          in.ContractNumber,
		ContractTitle:           in.ContractTitle,
		ContractKind:            model.ContractKindMain,
		ContractType:            in.ContractType,
		Status:                  status,
		WorkflowStage:           stage,
		VersionNumber:           decimal.NewFromInt(1),
		VendorID:                in.VendorID,
		ContractValue:           in.ContractValue,
		Currency:                defaultString(in.Currency, "USD"),
		LiabilityCap:            in.LiabilityCap,
		StartDate:               in.StartDate,
		EndDate:                 in.EndDate,
		AutoRenewal:             normalizeBool(in.AutoRenewal),
		Priority:                in.Priority,
		Category:                in.Category,
		NoticePeriodDays:        in.NoticePeriodDays,
		DisputeResolutionMethod: in.DisputeResolutionMethod,
		GoverningLaw:            in.GoverningLaw,
		RiskScore:               in.RiskScore,
		ComplianceFramework:     in.ComplianceFramework,
		InsuranceRequirements:   insurance,
		DataProtectionClauses:   protection,
		CustomFields:            custom,
		PermissionRequired:      in.PermissionRequired == nil || *in.PermissionRequired,
		FilePath:                in.FilePath,
		CreatedBy:               actorID,
		UpdatedBy:               actorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(contract).Error; err != nil {
			if IsUniqueViolation(err) {
				return fmt.Errorf("contract number %s already exists: %w", in.ContractNumber, ErrConflict)
			}
			return err
		}

		if status == model.ContractStatusUnderReview {
			due := s.now().AddDate(0, 0, 7)
			approval := &model.ContractApproval{
				TenantID:     scope.TenantID,
				ContractID:   contract.ID,
				AssignedBy:   actorID,
				AssignedTo:   normalizeAssignee(in.AssignedTo),
				Status:       model.ApprovalStatusAssigned,
				AssignedDate: s.now(),
				DueDate:      &due,
			}
			if err := tx.Create(approval).Error; err != nil {
				return err
			}
		}

		if _, err := s.insertTerms(tx, scope, contract, in.Terms); err != nil {
			return err
		}
		if _, err := s.insertClauses(tx, scope, contract, in.Clauses); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract created",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("contract_id", contract.ID),
		zap.String("contract_number", contract.ContractNumber))
	return contract, nil
}

// CreateAmendment creates a new versioned AMENDMENT of parent. The parent row
// is locked for the duration of the transaction so two concurrent amendments
// cannot mint the same version; the version is always derived from the parent
// row, with unique-violation retries stepping it further.
func (s *ContractService) CreateAmendment(ctx context.Context, scope Scope, actorID uint, parentID uint, in AmendmentInput) (*model.VendorContract, error) {
	if err := rejectSQLTokens(map[string]string{
		"reason":           in.Reason,
		"amendment_number": in.AmendmentNumber,
	}); err != nil {
		return nil, err
	}
	versionType := defaultString(in.VersionType, identifier.VersionTypeMinor)
	if versionType != identifier.VersionTypeMajor && versionType != identifier.VersionTypeMinor {
		return nil, NewValidationError(fmt.Sprintf("version_type must be major or minor, got %q", in.VersionType))
	}

	var amendment *model.VendorContract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := s.loadForMutation(tx, scope, parentID)
		if err != nil {
			return err
		}
		if parent.IsArchived {
			return NewValidationError("archived contracts cannot be amended")
		}
		if err := s.checkLineageAcyclic(tx, scope, parent); err != nil {
			return err
		}

		mainID := parent.ID
		if parent.MainContractID != nil {
			mainID = *parent.MainContractID
		}

		amendment = s.copyForVersion(parent, actorID)
		amendment.ContractKind = model.ContractKindAmendment
		amendment.ParentContractID = &parent.ID
		amendment.MainContractID = &mainID
		amendment.PreviousVersionID = &parent.ID
		if err := applyOverrides(amendment, in.Overrides); err != nil {
			return err
		}

		version, err := s.insertVersioned(tx, amendment, parent.ContractNumber, parent.VersionNumber, versionType)
		if err != nil {
			return err
		}

		companion := &model.ContractAmendment{
			TenantID:        scope.TenantID,
			ContractID:      amendment.ID,
			AmendmentNumber: defaultString(in.AmendmentNumber, amendment.ContractNumber),
			Reason:          in.Reason,
			FinancialImpact: in.FinancialImpact,
			EffectiveDate:   in.EffectiveDate,
			WorkflowStatus:  model.AmendmentWorkflowPending,
		}
		if err := tx.Create(companion).Error; err != nil {
			return err
		}

		// Terms and clauses come only from the request; an empty list means
		// the amendment carries none. No inheritance from the parent.
		amendment.VersionNumber = version
		if _, err := s.insertTerms(tx, scope, amendment, in.Terms); err != nil {
			return err
		}
		if _, err := s.insertClauses(tx, scope, amendment, in.Clauses); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("amendment created",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("parent_contract_id", parentID),
		zap.Uint("contract_id", amendment.ID),
		zap.String("contract_number", amendment.ContractNumber))
	return amendment, nil
}

// CreateSubcontract atomically versions the parent and attaches a new
// SUBCONTRACT to the fresh parent version. The new parent version inherits
// the original parent's terms and clauses; the subcontract's own terms and
// clauses come from the request.
func (s *ContractService) CreateSubcontract(ctx context.Context, scope Scope, actorID uint, parentID uint, in SubcontractInput) (*model.VendorContract, *model.VendorContract, error) {
	if err := rejectSQLTokens(map[string]string{
		"contract_number": in.ContractNumber,
		"contract_title":  in.ContractTitle,
	}); err != nil {
		return nil, nil, err
	}
	if in.ContractTitle == "" {
		return nil, nil, NewValidationError("contract_title is required")
	}
	versionType := defaultString(in.VersionType, identifier.VersionTypeMajor)
	if versionType != identifier.VersionTypeMajor && versionType != identifier.VersionTypeMinor {
		return nil, nil, NewValidationError(fmt.Sprintf("version_type must be major or minor, got %q", in.VersionType))
	}

	var newParent, subcontract *model.VendorContract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := s.loadForMutation(tx, scope, parentID)
		if err != nil {
			return err
		}
		if parent.IsArchived {
			return NewValidationError("archived contracts cannot be versioned")
		}
		if err := s.checkLineageAcyclic(tx, scope, parent); err != nil {
			return err
		}

		mainID := parent.ID
		if parent.MainContractID != nil {
			mainID = *parent.MainContractID
		}

		// New parent version keeps the parent's kind; only the lineage links
		// and version change. No amendment companion record here.
		newParent = s.copyForVersion(parent, actorID)
		newParent.ContractKind = parent.ContractKind
		newParent.ParentContractID = parent.ParentContractID
		newParent.MainContractID = parent.MainContractID
		if parent.ContractKind != model.ContractKindMain {
			newParent.MainContractID = &mainID
		}
		newParent.PreviousVersionID = &parent.ID

		parentVersion, err := s.insertVersioned(tx, newParent, parent.ContractNumber, parent.VersionNumber, versionType)
		if err != nil {
			return err
		}
		newParent.VersionNumber = parentVersion

		parentTerms, parentClauses, err := s.loadChildren(tx, scope, parent.ID)
		if err != nil {
			return err
		}
		if _, err := s.insertTerms(tx, scope, newParent, termsToInputs(parentTerms)); err != nil {
			return err
		}
		if _, err := s.insertClauses(tx, scope, newParent, clausesToInputs(parentClauses)); err != nil {
			return err
		}

		subcontract = &model.VendorContract{
			TenantID:           scope.TenantID,
			ContractTitle:      in.ContractTitle,
			ContractKind:       model.ContractKindSubcontract,
			ContractType:       newParent.ContractType,
			Status:             model.ContractStatusUnderReview,
			WorkflowStage:      model.ContractWorkflowStages[model.ContractStatusUnderReview],
			VersionNumber:      decimal.NewFromInt(1),
			ParentContractID:   &newParent.ID,
			MainContractID:     &mainID,
			VendorID:           newParent.VendorID,
			Currency:           newParent.Currency,
			PermissionRequired: in.PermissionRequired == nil || *in.PermissionRequired,
			CreatedBy:          actorID,
			UpdatedBy:          actorID,
		}
		if in.VendorID != 0 {
			subcontract.VendorID = in.VendorID
		}
		if err := applyOverrides(subcontract, in.Overrides); err != nil {
			return err
		}
		if err := s.insertSubcontractRow(tx, subcontract, in.ContractNumber, newParent.ContractNumber); err != nil {
			return err
		}

		if _, err := s.insertTerms(tx, scope, subcontract, in.Terms); err != nil {
			return err
		}
		if _, err := s.insertClauses(tx, scope, subcontract, in.Clauses); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("subcontract created",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("parent_contract_id", parentID),
		zap.Uint("new_parent_id", newParent.ID),
		zap.Uint("subcontract_id", subcontract.ID))
	return subcontract, newParent, nil
}

// Archive flags a contract archived. Archived contracts drop out of default
// reads and refuse further lineage mutations until restored.
func (s *ContractService) Archive(ctx context.Context, scope Scope, actorID uint, contractID uint, in ArchiveInput) (*model.VendorContract, error) {
	if in.ArchiveReason == "" || !validArchiveReasons[in.ArchiveReason] {
		return nil, &ValidationError{
			Message: "archive_reason is required",
			Fields:  map[string]string{"archive_reason": "must be one of OTHER, EARLY_TERMINATION, EXPIRED, SUPERSEDED"},
		}
	}

	var contract *model.VendorContract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		contract, err = s.loadForMutation(tx, scope, contractID)
		if err != nil {
			return err
		}
		if contract.IsArchived {
			return fmt.Errorf("contract already archived: %w", ErrConflict)
		}

		now := s.now()
		contract.IsArchived = true
		contract.ArchivedDate = &now
		contract.ArchivedBy = normalizeAssignee(in.ArchivedBy)
		contract.ArchiveReason = in.ArchiveReason
		contract.ArchiveComments = in.ArchiveComments
		contract.CanBeRestored = in.CanBeRestored == nil || normalizeBool(in.CanBeRestored)
		contract.UpdatedBy = actorID
		return tx.Save(contract).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract archived",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("contract_id", contractID),
		zap.String("archive_reason", in.ArchiveReason))
	return contract, nil
}

// Restore clears a contract's archive state.
func (s *ContractService) Restore(ctx context.Context, scope Scope, actorID uint, contractID uint) (*model.VendorContract, error) {
	var contract *model.VendorContract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		contract, err = s.loadForMutation(tx, scope, contractID)
		if err != nil {
			return err
		}
		if !contract.IsArchived {
			return NewValidationError("contract is not archived")
		}
		if !contract.CanBeRestored {
			return NewValidationError("contract cannot be restored")
		}

		contract.IsArchived = false
		contract.ArchivedDate = nil
		contract.ArchivedBy = ""
		contract.ArchiveReason = ""
		contract.ArchiveComments = ""
		contract.CanBeRestored = true
		contract.UpdatedBy = actorID
		return tx.Save(contract).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract restored",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("contract_id", contractID))
	return contract, nil
}

// Update patches a contract in place. Nil override fields keep the current
// value. Archived contracts cannot be edited; lineage links, the contract
// number and the version number never change through this path.
func (s *ContractService) Update(ctx context.Context, scope Scope, actorID uint, contractID uint, overrides ContractOverrides) (*model.VendorContract, error) {
	var contract *model.VendorContract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		contract, err = s.loadForMutation(tx, scope, contractID)
		if err != nil {
			return err
		}
		if contract.IsArchived {
			return fmt.Errorf("archived contract cannot be edited: %w", ErrConflict)
		}
		if err := applyOverrides(contract, overrides); err != nil {
			return err
		}
		contract.UpdatedBy = actorID
		return tx.Save(contract).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract updated",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("contract_id", contractID))
	return contract, nil
}

// AttachDocument records the storage key of an uploaded contract document.
func (s *ContractService) AttachDocument(ctx context.Context, scope Scope, actorID uint, contractID uint, s3Key string) (*model.VendorContract, error) {
	if s3Key == "" {
		return nil, NewValidationError("s3_key is required")
	}

	var contract *model.VendorContract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		contract, err = s.loadForMutation(tx, scope, contractID)
		if err != nil {
			return err
		}
		if contract.IsArchived {
			return fmt.Errorf("archived contract cannot be edited: %w", ErrConflict)
		}
		contract.FilePath = s3Key
		contract.UpdatedBy = actorID
		return tx.Save(contract).Error
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// Get returns one contract for the caller's scope. Vendor users outside the
// contract's vendor see nothing; vendor users inside it see either the full
// detail or the redacted projection depending on permission_required.
func (s *ContractService) Get(ctx context.Context, scope Scope, contractID uint, includeArchived bool) (interface{}, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, contractID)
	if scope.VendorID != nil {
		q = q.Where("vendor_id = ?", *scope.VendorID)
	}
	if !includeArchived {
		q = q.Where("is_archived = ?", false)
	}

	var contract model.VendorContract
	if err := q.First(&contract).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if redacted := redactForScope(scope, &contract); redacted != nil {
		return redacted, nil
	}

	terms, clauses, err := s.loadChildren(s.db.WithContext(ctx), scope, contract.ID)
	if err != nil {
		return nil, err
	}
	return &ContractDetail{Contract: &contract, Terms: terms, Clauses: clauses}, nil
}

// List returns a page of contracts. Each row is either a *model.VendorContract
// or a *RedactedContract depending on the caller's vendor scope.
func (s *ContractService) List(ctx context.Context, scope Scope, in ListContractsInput) ([]interface{}, *Pagination, error) {
	in.Page.Normalize()

	q := s.db.WithContext(ctx).Model(&model.VendorContract{}).
		Where("tenant_id = ?", scope.TenantID)
	if scope.VendorID != nil {
		q = q.Where("vendor_id = ?", *scope.VendorID)
	}
	if !in.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if in.Status != "" {
		q = q.Where("status = ?", in.Status)
	}
	if in.ContractKind != "" {
		q = q.Where("contract_kind = ?", in.ContractKind)
	}
	if in.VendorID != nil && scope.VendorID == nil {
		q = q.Where("vendor_id = ?", *in.VendorID)
	}
	if in.Search != "" {
		like := "%" + in.Search + "%"
		q = q.Where("contract_number LIKE ? OR contract_title LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	allowed := map[string]bool{
		"created_at": true, "contract_number": true, "contract_title": true,
		"status": true, "contract_value": true, "end_date": true,
	}
	q = applyOrdering(q, in.Page.Ordering, allowed, "created_at DESC")

	var rows []model.VendorContract
	if err := q.Offset(in.Page.Offset()).Limit(in.Page.PageSize).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	out := make([]interface{}, 0, len(rows))
	for i := range rows {
		if redacted := redactForScope(scope, &rows[i]); redacted != nil {
			out = append(out, redacted)
		} else {
			out = append(out, &rows[i])
		}
	}
	return out, NewPagination(in.Page, total), nil
}

// ListVersions returns every node of a lineage, oldest first.
func (s *ContractService) ListVersions(ctx context.Context, scope Scope, contractID uint) ([]model.VendorContract, error) {
	var contract model.VendorContract
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, contractID).
		First(&contract).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	mainID := contract.ID
	if contract.MainContractID != nil {
		mainID = *contract.MainContractID
	}

	var versions []model.VendorContract
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND (id = ? OR main_contract_id = ?)", scope.TenantID, mainID, mainID).
		Order("version_number ASC, id ASC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// loadForMutation fetches a contract row under a row lock where the dialect
// supports one. Cross-tenant and vendor-scope misses collapse to ErrNotFound.
func (s *ContractService) loadForMutation(tx *gorm.DB, scope Scope, contractID uint) (*model.VendorContract, error) {
	q := lockForUpdate(tx).Where("tenant_id = ? AND id = ?", scope.TenantID, contractID)
	if scope.VendorID != nil {
		q = q.Where("vendor_id = ?", *scope.VendorID)
	}
	var contract model.VendorContract
	if err := q.First(&contract).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &contract, nil
}

// checkLineageAcyclic walks the parent chain and fails if it revisits a node
// or exceeds the depth bound.
func (s *ContractService) checkLineageAcyclic(tx *gorm.DB, scope Scope, contract *model.VendorContract) error {
	seen := map[uint]bool{contract.ID: true}
	current := contract.ParentContractID
	for depth := 0; current != nil; depth++ {
		if depth >= maxLineageDepth {
			return fmt.Errorf("contract lineage exceeds depth %d: %w", maxLineageDepth, ErrConflict)
		}
		if seen[*current] {
			return fmt.Errorf("contract lineage contains a cycle at id %d: %w", *current, ErrConflict)
		}
		seen[*current] = true

		var node model.VendorContract
		err := tx.Select("id", "parent_contract_id").
			Where("tenant_id = ? AND id = ?", scope.TenantID, *current).
			First(&node).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("contract lineage references missing id %d: %w", *current, ErrConflict)
			}
			return err
		}
		current = node.ParentContractID
	}
	return nil
}

// copyForVersion takes the denormalized field set from parent into a fresh
// row. Lineage links, kind and version are set by the caller.
func (s *ContractService) copyForVersion(parent *model.VendorContract, actorID uint) *model.VendorContract {
	return &model.VendorContract{
		TenantID:                parent.TenantID,
		ContractTitle:           parent.ContractTitle,
		ContractType:            parent.ContractType,
		Status:                  model.ContractStatusUnderReview,
		WorkflowStage:           model.ContractWorkflowStages[model.ContractStatusUnderReview],
		VendorID:                parent.VendorID,
		ContractValue:           parent.ContractValue,
		Currency:                parent.Currency,
		LiabilityCap:            parent.LiabilityCap,
		StartDate:               parent.StartDate,
		EndDate:                 parent.EndDate,
		AutoRenewal:             parent.AutoRenewal,
		Priority:                parent.Priority,
		Category:                parent.Category,
		NoticePeriodDays:        parent.NoticePeriodDays,
		DisputeResolutionMethod: parent.DisputeResolutionMethod,
		GoverningLaw:            parent.GoverningLaw,
		RiskScore:               parent.RiskScore,
		ComplianceFramework:     parent.ComplianceFramework,
		InsuranceRequirements:   parent.InsuranceRequirements,
		DataProtectionClauses:   parent.DataProtectionClauses,
		CustomFields:            parent.CustomFields,
		PermissionRequired:      parent.PermissionRequired,
		FilePath:                parent.FilePath,
		CreatedBy:               actorID,
		UpdatedBy:               actorID,
	}
}

// insertVersioned computes the successor version from the parent's version,
// mints the versioned contract number and inserts the row. A unique violation
// steps the version once more and retries, up to MaxMintAttempts.
func (s *ContractService) insertVersioned(tx *gorm.DB, contract *model.VendorContract, parentNumber string, parentVersion decimal.Decimal, versionType string) (decimal.Decimal, error) {
	candidate := parentVersion
	for attempt := 0; attempt < identifier.MaxMintAttempts; attempt++ {
		next, err := identifier.NextVersion(candidate, versionType)
		if err != nil {
			return decimal.Zero, err
		}
		candidate = next

		contract.ID = 0
		contract.VersionNumber = candidate
		contract.ContractNumber = identifier.VersionedContractNumber(parentNumber, candidate)

		insertErr := tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(contract).Error
		})
		if insertErr == nil {
			return candidate, nil
		}
		if !IsUniqueViolation(insertErr) {
			return decimal.Zero, insertErr
		}
	}
	return decimal.Zero, fmt.Errorf("versioned contract number for %s: %w", parentNumber, ErrIdMintingExhausted)
}

// insertSubcontractRow inserts a subcontract, minting a number from the
// parent's base when the caller did not supply one.
func (s *ContractService) insertSubcontractRow(tx *gorm.DB, subcontract *model.VendorContract, requested, parentNumber string) error {
	base := identifier.StripVersionSuffix(parentNumber)
	for attempt := 0; attempt < identifier.MaxMintAttempts; attempt++ {
		if requested != "" {
			subcontract.ContractNumber = requested
		} else {
			subcontract.ContractNumber = fmt.Sprintf("%s-SUB-%d", base, attempt+1)
		}

		subcontract.ID = 0
		insertErr := tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(subcontract).Error
		})
		if insertErr == nil {
			return nil
		}
		if !IsUniqueViolation(insertErr) {
			return insertErr
		}
		if requested != "" {
			return fmt.Errorf("contract number %s already exists: %w", requested, ErrConflict)
		}
	}
	return fmt.Errorf("subcontract number for %s: %w", parentNumber, ErrIdMintingExhausted)
}

// insertTerms persists term rows for a contract, minting per-tenant term IDs
// with collision retries, and mirrors each term's questionnaire into the
// per-term table and the tenant template registry.
func (s *ContractService) insertTerms(tx *gorm.DB, scope Scope, contract *model.VendorContract, terms []TermInput) ([]model.ContractTerm, error) {
	version := identifier.FormatVersion(contract.VersionNumber)
	out := make([]model.ContractTerm, 0, len(terms))
	for _, in := range terms {
		if in.TermTitle == "" {
			return nil, NewValidationError("term_title is required for every term")
		}
		if err := rejectSQLTokens(map[string]string{"term_title": in.TermTitle, "term_text": in.TermText}); err != nil {
			return nil, err
		}

		row := model.ContractTerm{
			TenantID:         scope.TenantID,
			ContractID:       contract.ID,
			TermTitle:        in.TermTitle,
			TermCategory:     in.TermCategory,
			TermText:         in.TermText,
			RiskLevel:        in.RiskLevel,
			ComplianceStatus: in.ComplianceStatus,
			IsStandard:       in.IsStandard,
			VersionNumber:    version,
		}
		if err := s.insertWithMintedID(tx, &row, func(attempt int) (string, error) {
			id, err := identifier.MintTermID(contract.ID, attempt)
			if err == nil {
				row.TermID = id
			}
			return id, err
		}); err != nil {
			return nil, err
		}

		if len(in.Questionnaires) > 0 {
			if err := s.storeQuestionnaires(tx, scope, row.TermID, in); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// insertClauses persists clause rows analogous to insertTerms.
func (s *ContractService) insertClauses(tx *gorm.DB, scope Scope, contract *model.VendorContract, clauses []ClauseInput) ([]model.ContractClause, error) {
	version := identifier.FormatVersion(contract.VersionNumber)
	out := make([]model.ContractClause, 0, len(clauses))
	for _, in := range clauses {
		if in.ClauseName == "" {
			return nil, NewValidationError("clause_name is required for every clause")
		}
		if err := rejectSQLTokens(map[string]string{"clause_name": in.ClauseName, "clause_text": in.ClauseText}); err != nil {
			return nil, err
		}

		row := model.ContractClause{
			TenantID:      scope.TenantID,
			ContractID:    contract.ID,
			ClauseName:    in.ClauseName,
			ClauseType:    in.ClauseType,
			ClauseText:    in.ClauseText,
			RiskLevel:     in.RiskLevel,
			IsStandard:    in.IsStandard,
			VersionNumber: version,
		}
		if err := s.insertWithMintedID(tx, &row, func(attempt int) (string, error) {
			id, err := identifier.MintClauseID(contract.ID, attempt)
			if err == nil {
				row.ClauseID = id
			}
			return id, err
		}); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// insertWithMintedID runs mint-then-insert with unique-violation retries.
// Each attempt is wrapped in a nested transaction so a failed insert does not
// abort the outer postgres transaction.
func (s *ContractService) insertWithMintedID(tx *gorm.DB, row interface{}, mint func(attempt int) (string, error)) error {
	for attempt := 0; attempt < identifier.MaxMintAttempts; attempt++ {
		if _, err := mint(attempt); err != nil {
			return err
		}
		insertErr := tx.Transaction(func(inner *gorm.DB) error {
			return inner.Create(row).Error
		})
		if insertErr == nil {
			return nil
		}
		if !IsUniqueViolation(insertErr) {
			return insertErr
		}
	}
	return ErrIdMintingExhausted
}

// storeQuestionnaires writes a term's questions to the per-term table and
// mirrors them into the tenant template registry. An explicit TemplateID
// replaces that template's question list wholesale; otherwise the category
// template is upserted.
func (s *ContractService) storeQuestionnaires(tx *gorm.DB, scope Scope, termID string, in TermInput) error {
	for i, q := range in.Questionnaires {
		choices, err := normalizeJSONBag(q.MultipleChoice, "options")
		if err != nil {
			return err
		}
		row := model.TermQuestionnaire{
			TenantID:       scope.TenantID,
			TermID:         termID,
			QuestionText:   q.QuestionText,
			QuestionType:   defaultString(q.QuestionType, "text"),
			IsRequired:     q.IsRequired,
			Weighting:      q.Weighting,
			DocumentUpload: q.DocumentUpload,
			MultipleChoice: choices,
			DisplayOrder:   defaultInt(q.DisplayOrder, i+1),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}

	questions, err := json.Marshal(in.Questionnaires)
	if err != nil {
		return fmt.Errorf("failed to encode template questions: %w", err)
	}

	if in.TemplateID != nil {
		var tmpl model.QuestionnaireTemplate
		err := tx.Where("tenant_id = ? AND id = ?", scope.TenantID, *in.TemplateID).First(&tmpl).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return NewValidationError(fmt.Sprintf("questionnaire template %d not found", *in.TemplateID))
			}
			return err
		}
		tmpl.Questions = questions
		return tx.Save(&tmpl).Error
	}

	category := defaultString(in.TermCategory, "general")
	var tmpl model.QuestionnaireTemplate
	err = tx.Where("tenant_id = ? AND term_category = ?", scope.TenantID, category).First(&tmpl).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		tmpl = model.QuestionnaireTemplate{
			TenantID:     scope.TenantID,
			TermCategory: category,
			TemplateName: category + " questionnaire",
			Questions:    questions,
		}
		return tx.Create(&tmpl).Error
	case err != nil:
		return err
	default:
		tmpl.Questions = questions
		return tx.Save(&tmpl).Error
	}
}

func (s *ContractService) loadChildren(tx *gorm.DB, scope Scope, contractID uint) ([]model.ContractTerm, []model.ContractClause, error) {
	var terms []model.ContractTerm
	err := tx.Where("tenant_id = ? AND contract_id = ?", scope.TenantID, contractID).
		Order("id ASC").Find(&terms).Error
	if err != nil {
		return nil, nil, err
	}
	var clauses []model.ContractClause
	err = tx.Where("tenant_id = ? AND contract_id = ?", scope.TenantID, contractID).
		Order("id ASC").Find(&clauses).Error
	if err != nil {
		return nil, nil, err
	}
	return terms, clauses, nil
}

// redactForScope returns the redacted projection for vendor users looking at
// contracts that do not require their engagement, nil otherwise.
func redactForScope(scope Scope, c *model.VendorContract) *RedactedContract {
	if scope.VendorID == nil || c.PermissionRequired {
		return nil
	}
	return &RedactedContract{
		ID:               c.ID,
		ContractNumber:   c.ContractNumber,
		ContractTitle:    c.ContractTitle,
		Status:           c.Status,
		PermissionDenied: true,
	}
}

func applyOverrides(c *model.VendorContract, o ContractOverrides) error {
	if o.ContractTitle != nil {
		if err := rejectSQLTokens(map[string]string{"contract_title": *o.ContractTitle}); err != nil {
			return err
		}
		c.ContractTitle = *o.ContractTitle
	}
	if o.ContractType != nil {
		c.ContractType = *o.ContractType
	}
	if o.ContractValue != nil {
		c.ContractValue = *o.ContractValue
	}
	if o.Currency != nil {
		c.Currency = *o.Currency
	}
	if o.LiabilityCap != nil {
		c.LiabilityCap = *o.LiabilityCap
	}
	if o.StartDate != nil {
		c.StartDate = o.StartDate
	}
	if o.EndDate != nil {
		c.EndDate = o.EndDate
	}
	if o.AutoRenewal != nil {
		c.AutoRenewal = *o.AutoRenewal
	}
	if o.Priority != nil {
		c.Priority = *o.Priority
	}
	if o.Category != nil {
		c.Category = *o.Category
	}
	if o.NoticePeriodDays != nil {
		c.NoticePeriodDays = *o.NoticePeriodDays
	}
	if o.DisputeResolutionMethod != nil {
		c.DisputeResolutionMethod = *o.DisputeResolutionMethod
	}
	if o.GoverningLaw != nil {
		c.GoverningLaw = *o.GoverningLaw
	}
	if o.RiskScore != nil {
		c.RiskScore = *o.RiskScore
	}
	if o.ComplianceFramework != nil {
		c.ComplianceFramework = *o.ComplianceFramework
	}
	if o.FilePath != nil {
		c.FilePath = *o.FilePath
	}
	if len(o.InsuranceRequirements) > 0 {
		bag, err := normalizeJSONBag(o.InsuranceRequirements, "requirements")
		if err != nil {
			return err
		}
		c.InsuranceRequirements = bag
	}
	if len(o.DataProtectionClauses) > 0 {
		bag, err := normalizeJSONBag(o.DataProtectionClauses, "clauses")
		if err != nil {
			return err
		}
		c.DataProtectionClauses = bag
	}
	if len(o.CustomFields) > 0 {
		bag, err := normalizeJSONBag(o.CustomFields, "notes")
		if err != nil {
			return err
		}
		c.CustomFields = bag
	}
	return nil
}

func termsToInputs(terms []model.ContractTerm) []TermInput {
	out := make([]TermInput, 0, len(terms))
	for _, t := range terms {
		out = append(out, TermInput{
			TermTitle:        t.TermTitle,
			TermCategory:     t.TermCategory,
			TermText:         t.TermText,
			RiskLevel:        t.RiskLevel,
			ComplianceStatus: t.ComplianceStatus,
			IsStandard:       t.IsStandard,
		})
	}
	return out
}

func clausesToInputs(clauses []model.ContractClause) []ClauseInput {
	out := make([]ClauseInput, 0, len(clauses))
	for _, c := range clauses {
		out = append(out, ClauseInput{
			ClauseName: c.ClauseName,
			ClauseType: c.ClauseType,
			ClauseText: c.ClauseText,
			RiskLevel:  c.RiskLevel,
			IsStandard: c.IsStandard,
		})
	}
	return out
}

// normalizeAssignee coerces the loose reviewer labels seen in older clients
// onto the two supported values.
func normalizeAssignee(v string) string {
	switch v {
	case "legal_reviewer", "legal reviewer", "legal":
		return "legal_reviewer"
	case "contract_owner", "contract owner", "owner", "":
		return "contract_owner"
	default:
		return "contract_owner"
	}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
