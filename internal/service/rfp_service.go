package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/model"
)

// weightTolerance is the allowed deviation of the criteria weight sum from
// 100 at submit-for-review time.
const weightTolerance = 0.01

// RFPService owns the RFP lifecycle: creation, criteria, and the status state
// machine from DRAFT through AWARDED or CANCELLED to ARCHIVED.
type RFPService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewRFPService(db *gorm.DB, log *zap.Logger) *RFPService {
	return &RFPService{db: db, log: log, now: time.Now}
}

// CriterionInput is one evaluation criterion supplied on RFP create or
// update.
type CriterionInput struct {
	CriteriaName     string  `json:"criteria_name"`
	Description      string  `json:"description"`
	WeightPercentage float64 `json:"weight_percentage"`
	EvaluationType   string  `json:"evaluation_type"`
	MinScore         float64 `json:"min_score"`
	MaxScore         float64 `json:"max_score"`

	IsMandatory           bool    `json:"is_mandatory"`
	VetoEnabled           bool    `json:"veto_enabled"`
	VetoThreshold         float64 `json:"veto_threshold"`
	MinWordCount          int     `json:"min_word_count"`
	ExpectedBooleanAnswer string  `json:"expected_boolean_answer"`

	DisplayOrder int `json:"display_order"`
}

// CreateRFPInput creates a DRAFT RFP. The RFP number is minted server-side.
type CreateRFPInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	RFPType     string `json:"rfp_type"`

	ComplianceRequirements json.RawMessage `json:"compliance_requirements"`
	CustomFields           json.RawMessage `json:"custom_fields"`
	DataInventory          json.RawMessage `json:"data_inventory"`

	AutoApprove          bool   `json:"auto_approve"`
	AllowLateSubmissions bool   `json:"allow_late_submissions"`
	EvaluationMethod     string `json:"evaluation_method"`
	CriticalityLevel     string `json:"criticality_level"`

	PrimaryReviewerID   *uint `json:"primary_reviewer_id"`
	ExecutiveReviewerID *uint `json:"executive_reviewer_id"`

	IssueDate           *time.Time `json:"issue_date"`
	SubmissionDeadline  *time.Time `json:"submission_deadline"`
	EvaluationPeriodEnd *time.Time `json:"evaluation_period_end"`

	EstimatedValue decimal.Decimal `json:"estimated_value"`
	BudgetRangeMin decimal.Decimal `json:"budget_range_min"`
	BudgetRangeMax decimal.Decimal `json:"budget_range_max"`
	Currency       string          `json:"currency"`

	Documents json.RawMessage `json:"documents"`

	Criteria []CriterionInput `json:"criteria"`
}

// UpdateRFPInput patches a DRAFT or IN_REVIEW RFP. Nil pointers leave the
// field unchanged; a non-nil Criteria slice replaces the whole criteria set.
type UpdateRFPInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	RFPType     *string `json:"rfp_type"`

	AutoApprove          *bool   `json:"auto_approve"`
	AllowLateSubmissions *bool   `json:"allow_late_submissions"`
	EvaluationMethod     *string `json:"evaluation_method"`
	CriticalityLevel     *string `json:"criticality_level"`

	PrimaryReviewerID   *uint `json:"primary_reviewer_id"`
	ExecutiveReviewerID *uint `json:"executive_reviewer_id"`

	SubmissionDeadline  *time.Time `json:"submission_deadline"`
	EvaluationPeriodEnd *time.Time `json:"evaluation_period_end"`

	EstimatedValue *decimal.Decimal `json:"estimated_value"`
	BudgetRangeMin *decimal.Decimal `json:"budget_range_min"`
	BudgetRangeMax *decimal.Decimal `json:"budget_range_max"`

	ComplianceRequirements json.RawMessage `json:"compliance_requirements"`
	CustomFields           json.RawMessage `json:"custom_fields"`
	DataInventory          json.RawMessage `json:"data_inventory"`
	Documents              json.RawMessage `json:"documents"`

	Criteria *[]CriterionInput `json:"criteria"`
}

// ListRFPsInput filters RFP listings.
type ListRFPsInput struct {
	Status string
	Search string
	Page   PageRequest
}

// RFPDetail bundles an RFP with its criteria.
type RFPDetail struct {
	RFP      *model.RFP                    `json:"rfp"`
	Criteria []model.RFPEvaluationCriteria `json:"criteria"`
}

// Create persists a DRAFT RFP, minting its number with collision retries.
func (s *RFPService) Create(ctx context.Context, scope Scope, actorID uint, in CreateRFPInput) (*model.RFP, error) {
	if err := rejectSQLTokens(map[string]string{
		"title":       in.Title,
		"description": in.Description,
		"rfp_type":    in.RFPType,
	}); err != nil {
		return nil, err
	}
	if in.Title == "" {
		return nil, NewValidationError("title is required")
	}

	compliance, err := normalizeJSONBag(in.ComplianceRequirements, "requirements")
	if err != nil {
		return nil, err
	}
	custom, err := normalizeJSONBag(in.CustomFields, "notes")
	if err != nil {
		return nil, err
	}
	inventory, err := normalizeJSONBag(in.DataInventory, "items")
	if err != nil {
		return nil, err
	}
	documents, err := normalizeJSONBag(in.Documents, "documents")
	if err != nil {
		return nil, err
	}

	rfp := &model.RFP{
		TenantID:               scope.TenantID,
		Title:                  in.Title,
		Description:            in.Description,
		RFPType:                in.RFPType,
		Status:                 model.RFPStatusDraft,
		VersionNumber:          1,
		ComplianceRequirements: compliance,
		CustomFields:           custom,
		DataInventory:          inventory,
		AutoApprove:            in.AutoApprove,
		AllowLateSubmissions:   in.AllowLateSubmissions,
		EvaluationMethod:       defaultString(in.EvaluationMethod, model.EvaluationMethodWeightedScoring),
		CriticalityLevel:       in.CriticalityLevel,
		PrimaryReviewerID:      in.PrimaryReviewerID,
		ExecutiveReviewerID:    in.ExecutiveReviewerID,
		IssueDate:              in.IssueDate,
		SubmissionDeadline:     in.SubmissionDeadline,
		EvaluationPeriodEnd:    in.EvaluationPeriodEnd,
		EstimatedValue:         in.EstimatedValue,
		BudgetRangeMin:         in.BudgetRangeMin,
		BudgetRangeMax:         in.BudgetRangeMax,
		Currency:               defaultString(in.Currency, "USD"),
		Documents:              documents,
		CreatedBy:              actorID,
		UpdatedBy:              actorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for attempt := 0; attempt < identifier.MaxMintAttempts; attempt++ {
			number, err := identifier.MintRFPNumber(tx, scope.TenantID, s.now())
			if err != nil {
				return err
			}
			rfp.ID = 0
			rfp.RFPNumber = number

			insertErr := tx.Transaction(func(inner *gorm.DB) error {
				return inner.Create(rfp).Error
			})
			if insertErr == nil {
				return s.replaceCriteria(tx, scope, rfp.ID, in.Criteria)
			}
			if !IsUniqueViolation(insertErr) {
				return insertErr
			}
		}
		return fmt.Errorf("rfp number for tenant %d: %w", scope.TenantID, ErrIdMintingExhausted)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rfp created",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("rfp_id", rfp.ID),
		zap.String("rfp_number", rfp.RFPNumber))
	return rfp, nil
}

// Update patches a DRAFT or IN_REVIEW RFP.
func (s *RFPService) Update(ctx context.Context, scope Scope, actorID uint, rfpID uint, in UpdateRFPInput) (*model.RFP, error) {
	var rfp *model.RFP
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rfp, err = s.loadForMutation(tx, scope, rfpID)
		if err != nil {
			return err
		}
		if rfp.Status != model.RFPStatusDraft && rfp.Status != model.RFPStatusInReview {
			return NewValidationError(fmt.Sprintf("rfp in status %s cannot be edited", rfp.Status))
		}

		if in.Title != nil {
			if err := rejectSQLTokens(map[string]string{"title": *in.Title}); err != nil {
				return err
			}
			rfp.Title = *in.Title
		}
		if in.Description != nil {
			rfp.Description = *in.Description
		}
		if in.RFPType != nil {
			rfp.RFPType = *in.RFPType
		}
		if in.AutoApprove != nil {
			rfp.AutoApprove = *in.AutoApprove
		}
		if in.AllowLateSubmissions != nil {
			rfp.AllowLateSubmissions = *in.AllowLateSubmissions
		}
		if in.EvaluationMethod != nil {
			rfp.EvaluationMethod = *in.EvaluationMethod
		}
		if in.CriticalityLevel != nil {
			rfp.CriticalityLevel = *in.CriticalityLevel
		}
		if in.PrimaryReviewerID != nil {
			rfp.PrimaryReviewerID = in.PrimaryReviewerID
		}
		if in.ExecutiveReviewerID != nil {
			rfp.ExecutiveReviewerID = in.ExecutiveReviewerID
		}
		if in.SubmissionDeadline != nil {
			rfp.SubmissionDeadline = in.SubmissionDeadline
		}
		if in.EvaluationPeriodEnd != nil {
			rfp.EvaluationPeriodEnd = in.EvaluationPeriodEnd
		}
		if in.EstimatedValue != nil {
			rfp.EstimatedValue = *in.EstimatedValue
		}
		if in.BudgetRangeMin != nil {
			rfp.BudgetRangeMin = *in.BudgetRangeMin
		}
		if in.BudgetRangeMax != nil {
			rfp.BudgetRangeMax = *in.BudgetRangeMax
		}
		for _, bag := range []struct {
			raw json.RawMessage
			key string
			dst *datatypes.JSON
		}{
			{in.ComplianceRequirements, "requirements", &rfp.ComplianceRequirements},
			{in.CustomFields, "notes", &rfp.CustomFields},
			{in.DataInventory, "items", &rfp.DataInventory},
			{in.Documents, "documents", &rfp.Documents},
		} {
			if len(bag.raw) == 0 {
				continue
			}
			normalized, err := normalizeJSONBag(bag.raw, bag.key)
			if err != nil {
				return err
			}
			*bag.dst = normalized
		}
		rfp.UpdatedBy = actorID

		if err := tx.Save(rfp).Error; err != nil {
			return err
		}
		if in.Criteria != nil {
			return s.replaceCriteria(tx, scope, rfp.ID, *in.Criteria)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rfp, nil
}

// Get returns an RFP with its criteria.
func (s *RFPService) Get(ctx context.Context, scope Scope, rfpID uint) (*RFPDetail, error) {
	var rfp model.RFP
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, rfpID).
		First(&rfp).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	criteria, err := s.loadCriteria(s.db.WithContext(ctx), scope, rfpID)
	if err != nil {
		return nil, err
	}
	return &RFPDetail{RFP: &rfp, Criteria: criteria}, nil
}

// List returns a page of RFPs.
func (s *RFPService) List(ctx context.Context, scope Scope, in ListRFPsInput) ([]model.RFP, *Pagination, error) {
	in.Page.Normalize()

	q := s.db.WithContext(ctx).Model(&model.RFP{}).
		Where("tenant_id = ?", scope.TenantID)
	if in.Status != "" {
		q = q.Where("status = ?", in.Status)
	}
	if in.Search != "" {
		like := "%" + in.Search + "%"
		q = q.Where("rfp_number LIKE ? OR title LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	allowed := map[string]bool{
		"created_at": true, "rfp_number": true, "title": true,
		"status": true, "submission_deadline": true,
	}
	q = applyOrdering(q, in.Page.Ordering, allowed, "created_at DESC")

	var rows []model.RFP
	if err := q.Offset(in.Page.Offset()).Limit(in.Page.PageSize).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	return rows, NewPagination(in.Page, total), nil
}

// SubmitForReview gates DRAFT to IN_REVIEW. Preconditions: title, description
// and type set; at least one criterion; weights summing to 100 within the
// tolerance; both reviewers assigned.
func (s *RFPService) SubmitForReview(ctx context.Context, scope Scope, actorID uint, rfpID uint) (*model.RFP, error) {
	var rfp *model.RFP
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rfp, err = s.loadForMutation(tx, scope, rfpID)
		if err != nil {
			return err
		}
		if rfp.Status != model.RFPStatusDraft {
			return NewValidationError(fmt.Sprintf("only DRAFT rfps can be submitted for review, current status is %s", rfp.Status))
		}
		if rfp.Title == "" || rfp.Description == "" || rfp.RFPType == "" {
			return NewValidationError("title, description and rfp_type are required before review")
		}
		if rfp.PrimaryReviewerID == nil || rfp.ExecutiveReviewerID == nil {
			return NewValidationError("both primary and executive reviewers must be assigned")
		}

		criteria, err := s.loadCriteria(tx, scope, rfpID)
		if err != nil {
			return err
		}
		if len(criteria) == 0 {
			return NewValidationError("at least one evaluation criterion is required")
		}
		sum := 0.0
		for _, c := range criteria {
			sum += c.WeightPercentage
		}
		if math.Abs(sum-100.0) > weightTolerance {
			return NewValidationError(fmt.Sprintf("Total weight percentage must equal 100%% (current: %s%%)", trimFloat(sum)))
		}

		rfp.Status = model.RFPStatusInReview
		rfp.UpdatedBy = actorID
		return tx.Save(rfp).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("rfp submitted for review",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("rfp_id", rfpID))
	return rfp, nil
}

// Approve moves IN_REVIEW to APPROVED, or any non-terminal status directly to
// APPROVED when the RFP is flagged auto_approve.
func (s *RFPService) Approve(ctx context.Context, scope Scope, actorID uint, rfpID uint) (*model.RFP, error) {
	return s.transition(ctx, scope, actorID, rfpID, func(rfp *model.RFP) error {
		if rfp.AutoApprove {
			if rfp.Status == model.RFPStatusCancelled || rfp.Status == model.RFPStatusArchived || rfp.Status == model.RFPStatusAwarded {
				return NewValidationError(fmt.Sprintf("rfp in status %s cannot be approved", rfp.Status))
			}
		} else if rfp.Status != model.RFPStatusInReview {
			return NewValidationError(fmt.Sprintf("only IN_REVIEW rfps can be approved, current status is %s", rfp.Status))
		}
		rfp.Status = model.RFPStatusApproved
		rfp.ApprovedBy = &actorID
		return nil
	})
}

// Reject returns an IN_REVIEW RFP to DRAFT and appends the reason to
// custom_fields.rejection_history.
func (s *RFPService) Reject(ctx context.Context, scope Scope, actorID uint, rfpID uint, reason string) (*model.RFP, error) {
	if reason == "" {
		return nil, NewValidationError("rejection reason is required")
	}
	return s.transition(ctx, scope, actorID, rfpID, func(rfp *model.RFP) error {
		if rfp.Status != model.RFPStatusInReview {
			return NewValidationError(fmt.Sprintf("only IN_REVIEW rfps can be rejected, current status is %s", rfp.Status))
		}
		updated, err := appendRejection(rfp.CustomFields, reason, actorID, s.now())
		if err != nil {
			return err
		}
		rfp.CustomFields = updated
		rfp.Status = model.RFPStatusDraft
		return nil
	})
}

// Publish moves APPROVED to PUBLISHED and stamps the issue date.
func (s *RFPService) Publish(ctx context.Context, scope Scope, actorID uint, rfpID uint) (*model.RFP, error) {
	return s.transition(ctx, scope, actorID, rfpID, func(rfp *model.RFP) error {
		if rfp.Status != model.RFPStatusApproved {
			return NewValidationError(fmt.Sprintf("only APPROVED rfps can be published, current status is %s", rfp.Status))
		}
		now := s.now()
		rfp.Status = model.RFPStatusPublished
		if rfp.IssueDate == nil {
			rfp.IssueDate = &now
		}
		return nil
	})
}

// OpenSubmissions moves PUBLISHED to SUBMISSION_OPEN.
func (s *RFPService) OpenSubmissions(ctx context.Context, scope Scope, actorID uint, rfpID uint) (*model.RFP, error) {
	return s.transition(ctx, scope, actorID, rfpID, func(rfp *model.RFP) error {
		if rfp.Status != model.RFPStatusPublished {
			return NewValidationError(fmt.Sprintf("only PUBLISHED rfps can open submissions, current status is %s", rfp.Status))
		}
		rfp.Status = model.RFPStatusSubmissionOpen
		return nil
	})
}

// StartEvaluation moves SUBMISSION_OPEN to EVALUATION.
func (s *RFPService) StartEvaluation(ctx context.Context, scope Scope, actorID uint, rfpID uint) (*model.RFP, error) {
	return s.transition(ctx, scope, actorID, rfpID, func(rfp *model.RFP) error {
		if rfp.Status != model.RFPStatusSubmissionOpen {
			return NewValidationError(fmt.Sprintf("only SUBMISSION_OPEN rfps can start evaluation, current status is %s", rfp.Status))
		}
		rfp.Status = model.RFPStatusEvaluation
		return nil
	})
}

// Cancel moves any non-terminal RFP to CANCELLED.
func (s *RFPService) Cancel(ctx context.Context, scope Scope, actorID uint, rfpID uint, reason string) (*model.RFP, error) {
	return s.transition(ctx, scope, actorID, rfpID, func(rfp *model.RFP) error {
		if rfp.Status == model.RFPStatusCancelled || rfp.Status == model.RFPStatusArchived {
			return NewValidationError(fmt.Sprintf("rfp in status %s cannot be cancelled", rfp.Status))
		}
		if reason != "" {
			updated, err := appendRejection(rfp.CustomFields, "cancelled: "+reason, actorID, s.now())
			if err != nil {
				return err
			}
			rfp.CustomFields = updated
		}
		rfp.Status = model.RFPStatusCancelled
		return nil
	})
}

// Archive moves AWARDED or CANCELLED to ARCHIVED.
func (s *RFPService) Archive(ctx context.Context, scope Scope, actorID uint, rfpID uint) (*model.RFP, error) {
	return s.transition(ctx, scope, actorID, rfpID, func(rfp *model.RFP) error {
		if rfp.Status != model.RFPStatusAwarded && rfp.Status != model.RFPStatusCancelled {
			return NewValidationError(fmt.Sprintf("only AWARDED or CANCELLED rfps can be archived, current status is %s", rfp.Status))
		}
		rfp.Status = model.RFPStatusArchived
		return nil
	})
}

func (s *RFPService) transition(ctx context.Context, scope Scope, actorID uint, rfpID uint, mutate func(*model.RFP) error) (*model.RFP, error) {
	var rfp *model.RFP
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rfp, err = s.loadForMutation(tx, scope, rfpID)
		if err != nil {
			return err
		}
		from := rfp.Status
		if err := mutate(rfp); err != nil {
			return err
		}
		rfp.UpdatedBy = actorID
		if err := tx.Save(rfp).Error; err != nil {
			return err
		}
		s.log.Info("rfp status transition",
			zap.Uint("tenant_id", scope.TenantID),
			zap.Uint("rfp_id", rfpID),
			zap.String("from", from),
			zap.String("to", rfp.Status))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rfp, nil
}

func (s *RFPService) loadForMutation(tx *gorm.DB, scope Scope, rfpID uint) (*model.RFP, error) {
	var rfp model.RFP
	err := lockForUpdate(tx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, rfpID).
		First(&rfp).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rfp, nil
}

func (s *RFPService) loadCriteria(tx *gorm.DB, scope Scope, rfpID uint) ([]model.RFPEvaluationCriteria, error) {
	var criteria []model.RFPEvaluationCriteria
	err := tx.Where("tenant_id = ? AND rfp_id = ?", scope.TenantID, rfpID).
		Order("display_order ASC, id ASC").
		Find(&criteria).Error
	if err != nil {
		return nil, err
	}
	return criteria, nil
}

// replaceCriteria swaps the RFP's whole criteria set for the incoming list.
func (s *RFPService) replaceCriteria(tx *gorm.DB, scope Scope, rfpID uint, criteria []CriterionInput) error {
	err := tx.Where("tenant_id = ? AND rfp_id = ?", scope.TenantID, rfpID).
		Delete(&model.RFPEvaluationCriteria{}).Error
	if err != nil {
		return err
	}
	for i, in := range criteria {
		if in.CriteriaName == "" {
			return NewValidationError("criteria_name is required for every criterion")
		}
		if in.WeightPercentage < 0 || in.WeightPercentage > 100 {
			return NewValidationError("weight_percentage must be between 0 and 100")
		}
		evalType := defaultString(in.EvaluationType, model.CriterionTypeScoring)
		switch evalType {
		case model.CriterionTypeScoring, model.CriterionTypeBinary, model.CriterionTypeNarrative:
		default:
			return NewValidationError(fmt.Sprintf("unknown evaluation_type %q", in.EvaluationType))
		}

		maxScore := in.MaxScore
		if maxScore == 0 {
			maxScore = 10
		}
		row := model.RFPEvaluationCriteria{
			TenantID:              scope.TenantID,
			RFPID:                 rfpID,
			CriteriaName:          in.CriteriaName,
			Description:           in.Description,
			WeightPercentage:      in.WeightPercentage,
			EvaluationType:        evalType,
			MinScore:              in.MinScore,
			MaxScore:              maxScore,
			IsMandatory:           in.IsMandatory,
			VetoEnabled:           in.VetoEnabled,
			VetoThreshold:         in.VetoThreshold,
			MinWordCount:          in.MinWordCount,
			ExpectedBooleanAnswer: in.ExpectedBooleanAnswer,
			DisplayOrder:          defaultInt(in.DisplayOrder, i+1),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

// appendRejection adds an entry to custom_fields.rejection_history.
func appendRejection(bag datatypes.JSON, reason string, actorID uint, at time.Time) (datatypes.JSON, error) {
	fields := map[string]interface{}{}
	if len(bag) > 0 {
		if err := json.Unmarshal(bag, &fields); err != nil {
			fields = map[string]interface{}{}
		}
	}

	history, _ := fields["rejection_history"].([]interface{})
	history = append(history, map[string]interface{}{
		"reason":      reason,
		"rejected_by": actorID,
		"rejected_at": at.UTC().Format(time.RFC3339),
	})
	fields["rejection_history"] = history

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

// trimFloat renders a weight sum without trailing zeros, so 99.0 prints as
// "99" and 99.5 as "99.5".
func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%g", v)
}
