package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tprm-service/internal/model"
)

// ApprovalService drives the contract review workflow. A contract has at most
// one outstanding (non-terminal) approval row; approving or rejecting it
// updates the approval row and the contract's status and workflow_stage in
// one transaction.
type ApprovalService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewApprovalService(db *gorm.DB, log *zap.Logger) *ApprovalService {
	return &ApprovalService{db: db, log: log, now: time.Now}
}

// AssignInput opens a review assignment for a contract.
type AssignInput struct {
	AssignedTo string     `json:"assigned_to"`
	DueDate    *time.Time `json:"due_date"`
}

// DecisionInput carries the approve or reject comment.
type DecisionInput struct {
	CommentText string `json:"comment_text"`
}

// Assign creates a new approval row for a contract in UNDER_REVIEW or DRAFT
// and moves the contract to PENDING_APPROVAL. Fails with a conflict when a
// non-terminal approval already exists.
func (s *ApprovalService) Assign(ctx context.Context, scope Scope, actorID uint, contractID uint, in AssignInput) (*model.ContractApproval, error) {
	var approval *model.ContractApproval
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contract, err := s.loadContract(tx, scope, contractID)
		if err != nil {
			return err
		}
		if contract.IsArchived {
			return NewValidationError("archived contracts cannot be assigned for approval")
		}

		var open int64
		err = tx.Model(&model.ContractApproval{}).
			Where("tenant_id = ? AND contract_id = ? AND status IN ?",
				scope.TenantID, contractID,
				[]string{model.ApprovalStatusAssigned, model.ApprovalStatusInProgress}).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return fmt.Errorf("contract already has an open approval: %w", ErrConflict)
		}

		due := in.DueDate
		if due == nil {
			d := s.now().AddDate(0, 0, 7)
			due = &d
		}
		approval = &model.ContractApproval{
			TenantID:     scope.TenantID,
			ContractID:   contractID,
			AssignedBy:   actorID,
			AssignedTo:   normalizeAssignee(in.AssignedTo),
			Status:       model.ApprovalStatusAssigned,
			AssignedDate: s.now(),
			DueDate:      due,
		}
		if err := tx.Create(approval).Error; err != nil {
			return err
		}

		contract.Status = model.ContractStatusPendingApproval
		contract.WorkflowStage = model.ContractWorkflowStages[model.ContractStatusPendingApproval]
		contract.UpdatedBy = actorID
		return tx.Save(contract).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("approval assigned",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("contract_id", contractID),
		zap.String("assigned_to", approval.AssignedTo))
	return approval, nil
}

// Start marks the approval in progress. Idempotent when already in progress.
func (s *ApprovalService) Start(ctx context.Context, scope Scope, approvalID uint) (*model.ContractApproval, error) {
	var approval *model.ContractApproval
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		approval, err = s.loadApproval(tx, scope, approvalID)
		if err != nil {
			return err
		}
		switch approval.Status {
		case model.ApprovalStatusInProgress:
			return nil
		case model.ApprovalStatusAssigned:
			approval.Status = model.ApprovalStatusInProgress
			return tx.Save(approval).Error
		default:
			return fmt.Errorf("approval is already %s: %w", approval.Status, ErrConflict)
		}
	})
	if err != nil {
		return nil, err
	}
	return approval, nil
}

// Approve finalizes the review: the approval row is closed APPROVED with
// approved_date stamped, and the contract moves to APPROVED.
func (s *ApprovalService) Approve(ctx context.Context, scope Scope, actorID uint, approvalID uint, in DecisionInput) (*model.ContractApproval, error) {
	return s.decide(ctx, scope, actorID, approvalID, in, true)
}

// Reject returns the contract to UNDER_REVIEW. The rejection reason is kept
// on the approval row's comment_text.
func (s *ApprovalService) Reject(ctx context.Context, scope Scope, actorID uint, approvalID uint, in DecisionInput) (*model.ContractApproval, error) {
	if in.CommentText == "" {
		return nil, NewValidationError("comment_text is required when rejecting")
	}
	return s.decide(ctx, scope, actorID, approvalID, in, false)
}

func (s *ApprovalService) decide(ctx context.Context, scope Scope, actorID uint, approvalID uint, in DecisionInput, approve bool) (*model.ContractApproval, error) {
	var approval *model.ContractApproval
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		approval, err = s.loadApproval(tx, scope, approvalID)
		if err != nil {
			return err
		}
		if approval.Status == model.ApprovalStatusApproved || approval.Status == model.ApprovalStatusRejected {
			return fmt.Errorf("approval already decided as %s: %w", approval.Status, ErrConflict)
		}

		contract, err := s.loadContract(tx, scope, approval.ContractID)
		if err != nil {
			return err
		}

		now := s.now()
		if approve {
			approval.Status = model.ApprovalStatusApproved
			approval.ApprovedDate = &now
			contract.Status = model.ContractStatusApproved
		} else {
			approval.Status = model.ApprovalStatusRejected
			contract.Status = model.ContractStatusUnderReview
		}
		approval.CommentText = in.CommentText
		contract.WorkflowStage = model.ContractWorkflowStages[contract.Status]
		contract.UpdatedBy = actorID

		if err := tx.Save(approval).Error; err != nil {
			return err
		}
		return tx.Save(contract).Error
	})
	if err != nil {
		return nil, err
	}

	outcome := "approved"
	if !approve {
		outcome = "rejected"
	}
	s.log.Info("approval decided",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("approval_id", approvalID),
		zap.Uint("contract_id", approval.ContractID),
		zap.String("outcome", outcome))
	return approval, nil
}

// ListForContract returns all approvals for a contract, newest first.
func (s *ApprovalService) ListForContract(ctx context.Context, scope Scope, contractID uint) ([]model.ContractApproval, error) {
	if _, err := s.loadContract(s.db.WithContext(ctx), scope, contractID); err != nil {
		return nil, err
	}
	var approvals []model.ContractApproval
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND contract_id = ?", scope.TenantID, contractID).
		Order("assigned_date DESC").
		Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

func (s *ApprovalService) loadContract(tx *gorm.DB, scope Scope, contractID uint) (*model.VendorContract, error) {
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

func (s *ApprovalService) loadApproval(tx *gorm.DB, scope Scope, approvalID uint) (*model.ContractApproval, error) {
	var approval model.ContractApproval
	err := lockForUpdate(tx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, approvalID).
		First(&approval).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &approval, nil
}
