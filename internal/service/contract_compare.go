package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/model"
)

// FieldChange is one changed scalar field between two contracts.
type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

// TermChange describes one term added to or modified in the second contract.
type TermChange struct {
	TermTitle    string            `json:"term_title"`
	TermCategory string            `json:"term_category"`
	Changes      map[string][2]string `json:"changes,omitempty"`
}

// ClauseChange describes one clause added to or modified in the second
// contract.
type ClauseChange struct {
	ClauseName string               `json:"clause_name"`
	ClauseType string               `json:"clause_type"`
	Changes    map[string][2]string `json:"changes,omitempty"`
}

// TermsDiff groups term-level differences.
type TermsDiff struct {
	Added    []TermChange `json:"added"`
	Modified []TermChange `json:"modified"`
	Removed  []TermChange `json:"removed"`
}

// ClausesDiff groups clause-level differences.
type ClausesDiff struct {
	Added    []ClauseChange `json:"added"`
	Modified []ClauseChange `json:"modified"`
	Removed  []ClauseChange `json:"removed"`
}

// ComparisonSummary counts the differences per section.
type ComparisonSummary struct {
	FieldChanges    int `json:"field_changes"`
	TermsAdded      int `json:"terms_added"`
	TermsModified   int `json:"terms_modified"`
	TermsRemoved    int `json:"terms_removed"`
	ClausesAdded    int `json:"clauses_added"`
	ClausesModified int `json:"clauses_modified"`
	ClausesRemoved  int `json:"clauses_removed"`
}

// ContractComparison is the full structural diff of two contracts.
type ContractComparison struct {
	BaseContractID   uint              `json:"base_contract_id"`
	TargetContractID uint              `json:"target_contract_id"`
	ContractChanges  []FieldChange     `json:"contract_changes"`
	TermsChanges     TermsDiff         `json:"terms_changes"`
	ClausesChanges   ClausesDiff       `json:"clauses_changes"`
	Summary          ComparisonSummary `json:"summary"`
}

// Compare diffs two tenant-scoped contracts over the fixed scalar field list,
// matches terms on (term_title, term_category) and clauses on (clause_name,
// clause_type), and reports added, modified, and removed child entities from
// the perspective of the target contract.
func (s *ContractService) Compare(ctx context.Context, scope Scope, baseID, targetID uint) (*ContractComparison, error) {
	base, err := s.loadComparable(ctx, scope, baseID)
	if err != nil {
		return nil, err
	}
	target, err := s.loadComparable(ctx, scope, targetID)
	if err != nil {
		return nil, err
	}

	cmp := &ContractComparison{
		BaseContractID:   baseID,
		TargetContractID: targetID,
		ContractChanges:  diffContractFields(base, target),
		TermsChanges:     TermsDiff{Added: []TermChange{}, Modified: []TermChange{}, Removed: []TermChange{}},
		ClausesChanges:   ClausesDiff{Added: []ClauseChange{}, Modified: []ClauseChange{}, Removed: []ClauseChange{}},
	}

	baseTerms, baseClauses, err := s.loadChildren(s.db.WithContext(ctx), scope, baseID)
	if err != nil {
		return nil, err
	}
	targetTerms, targetClauses, err := s.loadChildren(s.db.WithContext(ctx), scope, targetID)
	if err != nil {
		return nil, err
	}

	diffTerms(cmp, baseTerms, targetTerms)
	diffClauses(cmp, baseClauses, targetClauses)

	cmp.Summary = ComparisonSummary{
		FieldChanges:    len(cmp.ContractChanges),
		TermsAdded:      len(cmp.TermsChanges.Added),
		TermsModified:   len(cmp.TermsChanges.Modified),
		TermsRemoved:    len(cmp.TermsChanges.Removed),
		ClausesAdded:    len(cmp.ClausesChanges.Added),
		ClausesModified: len(cmp.ClausesChanges.Modified),
		ClausesRemoved:  len(cmp.ClausesChanges.Removed),
	}
	return cmp, nil
}

func (s *ContractService) loadComparable(ctx context.Context, scope Scope, id uint) (*model.VendorContract, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", scope.TenantID, id)
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

func diffContractFields(base, target *model.VendorContract) []FieldChange {
	changes := []FieldChange{}
	add := func(field string, oldV, newV interface{}) {
		if fmt.Sprintf("%v", oldV) != fmt.Sprintf("%v", newV) {
			changes = append(changes, FieldChange{Field: field, OldValue: oldV, NewValue: newV})
		}
	}

	add("contract_title", base.ContractTitle, target.ContractTitle)
	add("contract_number", base.ContractNumber, target.ContractNumber)
	add("contract_type", base.ContractType, target.ContractType)
	add("contract_value", base.ContractValue.String(), target.ContractValue.String())
	add("currency", base.Currency, target.Currency)
	add("start_date", formatDate(base.StartDate), formatDate(target.StartDate))
	add("end_date", formatDate(base.EndDate), formatDate(target.EndDate))
	add("priority", base.Priority, target.Priority)
	add("status", base.Status, target.Status)
	add("category", base.Category, target.Category)
	add("notice_period_days", base.NoticePeriodDays, target.NoticePeriodDays)
	add("auto_renewal", base.AutoRenewal, target.AutoRenewal)
	add("dispute_resolution_method", base.DisputeResolutionMethod, target.DisputeResolutionMethod)
	add("governing_law", base.GoverningLaw, target.GoverningLaw)
	add("risk_score", base.RiskScore, target.RiskScore)
	add("compliance_framework", base.ComplianceFramework, target.ComplianceFramework)
	add("version_number", identifier.FormatVersion(base.VersionNumber), identifier.FormatVersion(target.VersionNumber))
	return changes
}

func diffTerms(cmp *ContractComparison, base, target []model.ContractTerm) {
	type key struct{ title, category string }
	baseByKey := map[key]model.ContractTerm{}
	for _, t := range base {
		baseByKey[key{t.TermTitle, t.TermCategory}] = t
	}
	seen := map[key]bool{}

	for _, t := range target {
		k := key{t.TermTitle, t.TermCategory}
		seen[k] = true
		old, ok := baseByKey[k]
		if !ok {
			cmp.TermsChanges.Added = append(cmp.TermsChanges.Added, TermChange{
				TermTitle: t.TermTitle, TermCategory: t.TermCategory,
			})
			continue
		}
		changes := map[string][2]string{}
		if old.TermText != t.TermText {
			changes["term_text"] = [2]string{old.TermText, t.TermText}
		}
		if old.RiskLevel != t.RiskLevel {
			changes["risk_level"] = [2]string{old.RiskLevel, t.RiskLevel}
		}
		if old.ComplianceStatus != t.ComplianceStatus {
			changes["compliance_status"] = [2]string{old.ComplianceStatus, t.ComplianceStatus}
		}
		if len(changes) > 0 {
			cmp.TermsChanges.Modified = append(cmp.TermsChanges.Modified, TermChange{
				TermTitle: t.TermTitle, TermCategory: t.TermCategory, Changes: changes,
			})
		}
	}

	for _, t := range base {
		k := key{t.TermTitle, t.TermCategory}
		if !seen[k] {
			cmp.TermsChanges.Removed = append(cmp.TermsChanges.Removed, TermChange{
				TermTitle: t.TermTitle, TermCategory: t.TermCategory,
			})
		}
	}
}

func diffClauses(cmp *ContractComparison, base, target []model.ContractClause) {
	type key struct{ name, kind string }
	baseByKey := map[key]model.ContractClause{}
	for _, c := range base {
		baseByKey[key{c.ClauseName, c.ClauseType}] = c
	}
	seen := map[key]bool{}

	for _, c := range target {
		k := key{c.ClauseName, c.ClauseType}
		seen[k] = true
		old, ok := baseByKey[k]
		if !ok {
			cmp.ClausesChanges.Added = append(cmp.ClausesChanges.Added, ClauseChange{
				ClauseName: c.ClauseName, ClauseType: c.ClauseType,
			})
			continue
		}
		changes := map[string][2]string{}
		if old.ClauseText != c.ClauseText {
			changes["clause_text"] = [2]string{old.ClauseText, c.ClauseText}
		}
		if old.RiskLevel != c.RiskLevel {
			changes["risk_level"] = [2]string{old.RiskLevel, c.RiskLevel}
		}
		if len(changes) > 0 {
			cmp.ClausesChanges.Modified = append(cmp.ClausesChanges.Modified, ClauseChange{
				ClauseName: c.ClauseName, ClauseType: c.ClauseType, Changes: changes,
			})
		}
	}

	for _, c := range base {
		k := key{c.ClauseName, c.ClauseType}
		if !seen[k] {
			cmp.ClausesChanges.Removed = append(cmp.ClausesChanges.Removed, ClauseChange{
				ClauseName: c.ClauseName, ClauseType: c.ClauseType,
			})
		}
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
