package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tprm-service/internal/model"
)

// Trigger outcomes
const (
	RiskTriggerAlreadyCompleted  = "already_completed"
	RiskTriggerStartedBackground = "started_in_background"
)

// RiskFinding is one analyzer result before persistence.
type RiskFinding struct {
	Title                string
	Description          string
	Likelihood           int
	Impact               int
	ExposureRating       float64
	Score                float64
	Priority             string
	AIExplanation        string
	SuggestedMitigations []string
}

// RiskAnalyzer produces findings for an entity. The production implementation
// calls the external AI workers; tests substitute a deterministic one.
type RiskAnalyzer interface {
	Analyze(ctx context.Context, entity string, entityRowID uint) ([]RiskFinding, error)
}

// RiskService triggers and reads risk analysis. Triggers are idempotent per
// (entity, row): a second trigger while the first is in flight or after it
// completed never produces duplicate rows.
type RiskService struct {
	db       *gorm.DB
	log      *zap.Logger
	analyzer RiskAnalyzer

	// wg lets tests wait for background workers to drain.
	wg sync.WaitGroup
}

func NewRiskService(db *gorm.DB, log *zap.Logger, analyzer RiskAnalyzer) *RiskService {
	if analyzer == nil {
		analyzer = heuristicAnalyzer{}
	}
	return &RiskService{db: db, log: log, analyzer: analyzer}
}

// TriggerResult reports whether analysis ran or was already done.
type TriggerResult struct {
	Status        string `json:"status"`
	ExistingRisks int64  `json:"existing_risks"`
}

// TriggerContractAnalysis starts background analysis for a contract unless
// risk rows already exist for it.
func (s *RiskService) TriggerContractAnalysis(ctx context.Context, scope Scope, contractID uint) (*TriggerResult, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", scope.TenantID, contractID)
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
	return s.trigger(ctx, scope, model.RiskEntityContract, contractID)
}

// TriggerRFPAnalysis starts background analysis for an RFP.
func (s *RiskService) TriggerRFPAnalysis(ctx context.Context, scope Scope, rfpID uint) (*TriggerResult, error) {
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
	return s.trigger(ctx, scope, model.RiskEntityRFP, rfpID)
}

func (s *RiskService) trigger(ctx context.Context, scope Scope, entity string, rowID uint) (*TriggerResult, error) {
	var existing int64
	err := s.db.WithContext(ctx).Model(&model.Risk{}).
		Where("tenant_id = ? AND entity = ? AND entity_row_id = ?", scope.TenantID, entity, rowID).
		Count(&existing).Error
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return &TriggerResult{Status: RiskTriggerAlreadyCompleted, ExistingRisks: existing}, nil
	}

	s.wg.Add(1)
	go s.runAnalysis(scope, entity, rowID)

	return &TriggerResult{Status: RiskTriggerStartedBackground}, nil
}

// runAnalysis is the background worker. It re-checks for existing rows inside
// the write transaction so a concurrent duplicate trigger aborts before
// writing anything.
func (s *RiskService) runAnalysis(scope Scope, entity string, rowID uint) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	findings, err := s.analyzer.Analyze(ctx, entity, rowID)
	if err != nil {
		s.log.Error("risk analysis failed",
			zap.Uint("tenant_id", scope.TenantID),
			zap.String("entity", entity),
			zap.Uint("entity_row_id", rowID),
			zap.Error(err))
		return
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&model.Risk{}).
			Where("tenant_id = ? AND entity = ? AND entity_row_id = ?", scope.TenantID, entity, rowID).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		for _, f := range findings {
			mitigations, err := json.Marshal(f.SuggestedMitigations)
			if err != nil {
				return fmt.Errorf("failed to encode mitigations: %w", err)
			}
			row := model.Risk{
				TenantID:             scope.TenantID,
				Entity:               entity,
				EntityRowID:          rowID,
				Title:                f.Title,
				Description:          f.Description,
				Likelihood:           f.Likelihood,
				Impact:               f.Impact,
				ExposureRating:       f.ExposureRating,
				Score:                f.Score,
				Priority:             f.Priority,
				Status:               "OPEN",
				AIExplanation:        f.AIExplanation,
				SuggestedMitigations: mitigations,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("risk persistence failed",
			zap.Uint("tenant_id", scope.TenantID),
			zap.String("entity", entity),
			zap.Uint("entity_row_id", rowID),
			zap.Error(err))
		return
	}

	s.log.Info("risk analysis completed",
		zap.Uint("tenant_id", scope.TenantID),
		zap.String("entity", entity),
		zap.Uint("entity_row_id", rowID),
		zap.Int("findings", len(findings)))
}

// Wait blocks until all background analyses launched so far have finished.
func (s *RiskService) Wait() {
	s.wg.Wait()
}

// ListForEntity returns the risk rows for one entity row.
func (s *RiskService) ListForEntity(ctx context.Context, scope Scope, entity string, rowID uint) ([]model.Risk, error) {
	var risks []model.Risk
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity = ? AND entity_row_id = ?", scope.TenantID, entity, rowID).
		Order("score DESC, id ASC").
		Find(&risks).Error
	if err != nil {
		return nil, err
	}
	return risks, nil
}

// RiskSummary buckets each contract once, by the highest priority present
// among its risk rows.
type RiskSummary struct {
	Critical int64 `json:"critical"`
	High     int64 `json:"high"`
	Medium   int64 `json:"medium"`
	Low      int64 `json:"low"`
	None     int64 `json:"none"`
	Total    int64 `json:"total_contracts"`
}

var priorityWeight = map[string]int{
	model.RiskPriorityLow:      1,
	model.RiskPriorityMedium:   2,
	model.RiskPriorityHigh:     3,
	model.RiskPriorityCritical: 4,
}

// ContractRiskSummary computes the tenant's contract risk distribution with a
// JOIN on the tenant's contracts rather than passing contract ID lists, so
// isolation holds for any tenant size.
func (s *RiskService) ContractRiskSummary(ctx context.Context, scope Scope) (*RiskSummary, error) {
	contractQ := s.db.WithContext(ctx).Model(&model.VendorContract{}).
		Where("tenant_id = ? AND is_archived = ?", scope.TenantID, false)
	if scope.VendorID != nil {
		contractQ = contractQ.Where("vendor_id = ?", *scope.VendorID)
	}

	var total int64
	if err := contractQ.Count(&total).Error; err != nil {
		return nil, err
	}

	type pair struct {
		EntityRowID uint
		Priority    string
	}
	var rows []pair
	q := s.db.WithContext(ctx).Model(&model.Risk{}).
		Select("risks.entity_row_id, risks.priority").
		Joins("JOIN vendor_contracts ON vendor_contracts.id = risks.entity_row_id AND vendor_contracts.tenant_id = risks.tenant_id").
		Where("risks.tenant_id = ? AND risks.entity = ? AND vendor_contracts.is_archived = ?",
			scope.TenantID, model.RiskEntityContract, false)
	if scope.VendorID != nil {
		q = q.Where("vendor_contracts.vendor_id = ?", *scope.VendorID)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	highest := map[uint]string{}
	for _, r := range rows {
		prio := normalizePriority(r.Priority)
		if priorityWeight[prio] > priorityWeight[highest[r.EntityRowID]] {
			highest[r.EntityRowID] = prio
		}
	}

	summary := &RiskSummary{Total: total}
	for _, prio := range highest {
		switch prio {
		case model.RiskPriorityCritical:
			summary.Critical++
		case model.RiskPriorityHigh:
			summary.High++
		case model.RiskPriorityMedium:
			summary.Medium++
		case model.RiskPriorityLow:
			summary.Low++
		}
	}
	summary.None = total - int64(len(highest))
	if summary.None < 0 {
		summary.None = 0
	}
	return summary, nil
}

func normalizePriority(p string) string {
	switch strings.ToLower(p) {
	case "critical":
		return model.RiskPriorityCritical
	case "high":
		return model.RiskPriorityHigh
	case "medium":
		return model.RiskPriorityMedium
	case "low":
		return model.RiskPriorityLow
	default:
		return model.RiskPriorityLow
	}
}

// heuristicAnalyzer is the default analyzer used when no external worker is
// wired. It emits a single finding so the trigger flow stays exercisable in
// environments without the AI workers.
type heuristicAnalyzer struct{}

func (heuristicAnalyzer) Analyze(ctx context.Context, entity string, entityRowID uint) ([]RiskFinding, error) {
	return []RiskFinding{{
		Title:          "Baseline review required",
		Description:    "Automated baseline finding pending full analysis.",
		Likelihood:     2,
		Impact:         2,
		ExposureRating: 4,
		Score:          4,
		Priority:       model.RiskPriorityMedium,
		AIExplanation:  "No external analyzer configured; baseline heuristic applied.",
		SuggestedMitigations: []string{
			"Schedule a manual risk review",
		},
	}}, nil
}
