package service

import (
	"context"
	"errors"
	"testing"

	"tprm-service/internal/identifier"
	"tprm-service/internal/model"
)

func newContractService(t *testing.T) (*ContractService, Scope) {
	t.Helper()
	s := NewContractService(setupTestDB(t), testLogger())
	s.now = fixedNow
	return s, Scope{TenantID: 1}
}

func mustCreateMain(t *testing.T, s *ContractService, scope Scope, in CreateContractInput) *model.VendorContract {
	t.Helper()
	if in.VendorID == 0 {
		in.VendorID = 7
	}
	contract, err := s.CreateMain(context.Background(), scope, 1, in)
	if err != nil {
		t.Fatalf("create main: %v", err)
	}
	return contract
}

func TestCreateMainOpensApprovalAssignment(t *testing.T) {
	s, scope := newContractService(t)

	contract := mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-100",
		ContractTitle:  "Master Services Agreement",
		AssignedTo:     "legal",
	})

	if contract.Status != model.ContractStatusUnderReview {
		t.Fatalf("expected UNDER_REVIEW, got %s", contract.Status)
	}
	if contract.WorkflowStage != "under_review" {
		t.Fatalf("expected under_review stage, got %s", contract.WorkflowStage)
	}

	var approval model.ContractApproval
	if err := s.db.Where("tenant_id = ? AND contract_id = ?", scope.TenantID, contract.ID).First(&approval).Error; err != nil {
		t.Fatalf("load approval: %v", err)
	}
	if approval.AssignedTo != "legal_reviewer" {
		t.Fatalf("expected legal_reviewer, got %s", approval.AssignedTo)
	}
	if approval.DueDate == nil || !approval.DueDate.Equal(fixedTime.AddDate(0, 0, 7)) {
		t.Fatalf("expected due date 7 days out, got %v", approval.DueDate)
	}
}

func TestCreateMainRejectsSQLTokens(t *testing.T) {
	s, scope := newContractService(t)

	_, err := s.CreateMain(context.Background(), scope, 1, CreateContractInput{
		VendorID:       7,
		ContractNumber: "CN-101",
		ContractTitle:  "evil'; DROP TABLE contracts",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["contract_title"]; !ok {
		t.Fatalf("expected contract_title in fields, got %v", verr.Fields)
	}
}

func TestCreateMainWrapsPlainTextBags(t *testing.T) {
	s, scope := newContractService(t)

	contract := mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-102",
		ContractTitle:  "Agreement",
		CustomFields:   []byte(`"free-form note"`),
	})

	got := string(contract.CustomFields)
	if got != `{"notes":"free-form note","type":"text"}` {
		t.Fatalf("unexpected custom_fields: %s", got)
	}
}

func TestCreateMainDuplicateNumberConflicts(t *testing.T) {
	s, scope := newContractService(t)

	mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-103", ContractTitle: "A"})
	_, err := s.CreateMain(context.Background(), scope, 1, CreateContractInput{
		VendorID: 7, ContractNumber: "CN-103", ContractTitle: "B",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateAmendmentMinorVersioning(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-1", ContractTitle: "Base"})

	amendment, err := s.CreateAmendment(context.Background(), scope, 2, main.ID, AmendmentInput{
		Reason: "pricing update",
		Terms:  []TermInput{{TermTitle: "Payment", TermCategory: "financial", TermText: "Net 30"}},
	})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}

	if amendment.ContractNumber != "CN-1-v1.1" {
		t.Fatalf("expected CN-1-v1.1, got %s", amendment.ContractNumber)
	}
	if identifier.FormatVersion(amendment.VersionNumber) != "1.1" {
		t.Fatalf("expected version 1.1, got %s", identifier.FormatVersion(amendment.VersionNumber))
	}
	if amendment.ContractKind != model.ContractKindAmendment {
		t.Fatalf("expected AMENDMENT, got %s", amendment.ContractKind)
	}
	if amendment.ParentContractID == nil || *amendment.ParentContractID != main.ID {
		t.Fatalf("parent link wrong: %v", amendment.ParentContractID)
	}
	if amendment.MainContractID == nil || *amendment.MainContractID != main.ID {
		t.Fatalf("main link wrong: %v", amendment.MainContractID)
	}
	if amendment.PreviousVersionID == nil || *amendment.PreviousVersionID != main.ID {
		t.Fatalf("previous version link wrong: %v", amendment.PreviousVersionID)
	}

	var terms []model.ContractTerm
	if err := s.db.Where("tenant_id = ? AND contract_id = ?", scope.TenantID, amendment.ID).Find(&terms).Error; err != nil {
		t.Fatalf("load terms: %v", err)
	}
	if len(terms) != 1 || terms[0].TermTitle != "Payment" {
		t.Fatalf("expected the requested term only, got %v", terms)
	}
	if terms[0].TermID == "" {
		t.Fatal("expected a minted term id")
	}

	var companion model.ContractAmendment
	if err := s.db.Where("tenant_id = ? AND contract_id = ?", scope.TenantID, amendment.ID).First(&companion).Error; err != nil {
		t.Fatalf("load companion: %v", err)
	}
	if companion.Reason != "pricing update" || companion.WorkflowStatus != model.AmendmentWorkflowPending {
		t.Fatalf("unexpected companion: %+v", companion)
	}
}

func TestCreateAmendmentEmptyTermsCarriesNone(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-2",
		ContractTitle:  "Base",
		Terms:          []TermInput{{TermTitle: "Original term"}},
	})

	amendment, err := s.CreateAmendment(context.Background(), scope, 1, main.ID, AmendmentInput{Reason: "drop terms"})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}

	var count int64
	s.db.Model(&model.ContractTerm{}).Where("contract_id = ?", amendment.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no inherited terms, got %d", count)
	}
}

func TestCreateAmendmentOfArchivedFails(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-3", ContractTitle: "Base"})
	if _, err := s.Archive(context.Background(), scope, 1, main.ID, ArchiveInput{ArchiveReason: model.ArchiveReasonOther}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err := s.CreateAmendment(context.Background(), scope, 1, main.ID, AmendmentInput{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateAmendmentVersionCollisionSteps(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-4", ContractTitle: "Base"})

	// Occupy the number the first attempt would mint.
	blocker := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-4-v1.1", ContractTitle: "Blocker"})
	_ = blocker

	amendment, err := s.CreateAmendment(context.Background(), scope, 1, main.ID, AmendmentInput{})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if amendment.ContractNumber != "CN-4-v1.2" {
		t.Fatalf("expected collision to step to CN-4-v1.2, got %s", amendment.ContractNumber)
	}
}

func TestCreateSubcontractVersionsParent(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-5",
		ContractTitle:  "Base",
		Terms:          []TermInput{{TermTitle: "Carryover", TermCategory: "general"}},
	})

	sub, newParent, err := s.CreateSubcontract(context.Background(), scope, 1, main.ID, SubcontractInput{
		ContractTitle: "Security subcontract",
		VendorID:      9,
	})
	if err != nil {
		t.Fatalf("subcontract: %v", err)
	}

	if newParent.ContractNumber != "CN-5-v2.0" {
		t.Fatalf("expected CN-5-v2.0 parent version, got %s", newParent.ContractNumber)
	}
	if newParent.ContractKind != model.ContractKindMain {
		t.Fatalf("new parent version must keep the original kind, got %s", newParent.ContractKind)
	}
	if sub.ContractKind != model.ContractKindSubcontract {
		t.Fatalf("expected SUBCONTRACT, got %s", sub.ContractKind)
	}
	if sub.ParentContractID == nil || *sub.ParentContractID != newParent.ID {
		t.Fatalf("subcontract must hang off the new parent version, got %v", sub.ParentContractID)
	}
	if sub.MainContractID == nil || *sub.MainContractID != main.ID {
		t.Fatalf("main link wrong: %v", sub.MainContractID)
	}
	if sub.VendorID != 9 {
		t.Fatalf("expected vendor 9, got %d", sub.VendorID)
	}
	if sub.ContractNumber != "CN-5-SUB-1" {
		t.Fatalf("expected minted CN-5-SUB-1, got %s", sub.ContractNumber)
	}

	// The new parent version inherits the original parent's terms.
	var inherited []model.ContractTerm
	s.db.Where("contract_id = ?", newParent.ID).Find(&inherited)
	if len(inherited) != 1 || inherited[0].TermTitle != "Carryover" {
		t.Fatalf("expected inherited term on new parent, got %v", inherited)
	}
}

func TestArchiveThenRestore(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-6", ContractTitle: "Base"})

	archived, err := s.Archive(context.Background(), scope, 1, main.ID, ArchiveInput{
		ArchiveReason: model.ArchiveReasonSuperseded,
		ArchivedBy:    "legal",
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.IsArchived || archived.ArchivedDate == nil {
		t.Fatal("expected archive state to be stamped")
	}

	if _, err := s.Archive(context.Background(), scope, 1, main.ID, ArchiveInput{ArchiveReason: model.ArchiveReasonOther}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on double archive, got %v", err)
	}

	// Archived rows drop out of default reads.
	if _, err := s.Get(context.Background(), scope, main.ID, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found without include_archived, got %v", err)
	}
	if _, err := s.Get(context.Background(), scope, main.ID, true); err != nil {
		t.Fatalf("expected archived row with include_archived: %v", err)
	}

	restored, err := s.Restore(context.Background(), scope, 1, main.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.IsArchived || restored.ArchiveReason != "" {
		t.Fatalf("expected archive state cleared, got %+v", restored)
	}
}

func TestRestoreBlockedWhenNotRestorable(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-7", ContractTitle: "Base"})

	if _, err := s.Archive(context.Background(), scope, 1, main.ID, ArchiveInput{
		ArchiveReason: model.ArchiveReasonExpired,
		CanBeRestored: "false",
	}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	_, err := s.Restore(context.Background(), scope, 1, main.ID)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArchiveRejectsUnknownReason(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-8", ContractTitle: "Base"})

	_, err := s.Archive(context.Background(), scope, 1, main.ID, ArchiveInput{ArchiveReason: "BECAUSE"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdatePatchesOnlyProvidedFields(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-9",
		ContractTitle:  "Base",
		Currency:       "EUR",
	})

	updated, err := s.Update(context.Background(), scope, 2, main.ID, ContractOverrides{
		ContractTitle: strPtr("Base, renegotiated"),
		GoverningLaw:  strPtr("Netherlands"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ContractTitle != "Base, renegotiated" || updated.GoverningLaw != "Netherlands" {
		t.Fatalf("expected overrides applied, got %+v", updated)
	}
	if updated.Currency != "EUR" {
		t.Fatalf("expected untouched fields preserved, got currency %s", updated.Currency)
	}
	if updated.ContractNumber != main.ContractNumber || !updated.VersionNumber.Equal(main.VersionNumber) {
		t.Fatal("expected identity fields unchanged by update")
	}
	if updated.UpdatedBy != 2 {
		t.Fatalf("expected updated_by 2, got %d", updated.UpdatedBy)
	}

	if _, err := s.Update(context.Background(), Scope{TenantID: 99}, 2, main.ID, ContractOverrides{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign tenant, got %v", err)
	}
}

func TestUpdateRejectsArchivedContract(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-10", ContractTitle: "Base"})

	if _, err := s.Archive(context.Background(), scope, 1, main.ID, ArchiveInput{ArchiveReason: model.ArchiveReasonOther}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if _, err := s.Update(context.Background(), scope, 1, main.ID, ContractOverrides{ContractTitle: strPtr("Nope")}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict editing archived contract, got %v", err)
	}
	if _, err := s.AttachDocument(context.Background(), scope, 1, main.ID, "contracts/1/final.pdf"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict attaching to archived contract, got %v", err)
	}
}

func TestAttachDocumentRecordsStorageKey(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-11", ContractTitle: "Base"})

	contract, err := s.AttachDocument(context.Background(), scope, 3, main.ID, "contracts/11/v1/agreement.pdf")
	if err != nil {
		t.Fatalf("attach document: %v", err)
	}
	if contract.FilePath != "contracts/11/v1/agreement.pdf" {
		t.Fatalf("expected file path recorded, got %s", contract.FilePath)
	}
	if contract.UpdatedBy != 3 {
		t.Fatalf("expected updated_by 3, got %d", contract.UpdatedBy)
	}

	_, err = s.AttachDocument(context.Background(), scope, 3, main.ID, "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty key, got %v", err)
	}
}

func TestListRedactsForVendorScope(t *testing.T) {
	s, scope := newContractService(t)

	visible := mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-9", ContractTitle: "Engaged", VendorID: 7,
	})
	mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-10", ContractTitle: "Other vendor", VendorID: 8,
	})
	hidden := mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-11", ContractTitle: "Background", VendorID: 7,
		PermissionRequired: func() *bool { b := false; return &b }(),
	})

	vendorScope := Scope{TenantID: 1, VendorID: uintPtr(7)}
	rows, _, err := s.List(context.Background(), vendorScope, ListContractsInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for vendor 7, got %d", len(rows))
	}

	var fullIDs, redactedIDs []uint
	for _, row := range rows {
		switch v := row.(type) {
		case *model.VendorContract:
			fullIDs = append(fullIDs, v.ID)
		case *RedactedContract:
			if !v.PermissionDenied {
				t.Fatal("redacted rows must carry permission_denied")
			}
			redactedIDs = append(redactedIDs, v.ID)
		default:
			t.Fatalf("unexpected row type %T", row)
		}
	}
	if len(fullIDs) != 1 || fullIDs[0] != visible.ID {
		t.Fatalf("expected full row for %d, got %v", visible.ID, fullIDs)
	}
	if len(redactedIDs) != 1 || redactedIDs[0] != hidden.ID {
		t.Fatalf("expected redacted row for %d, got %v", hidden.ID, redactedIDs)
	}
}

func TestGetCrossTenantIsNotFound(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-12", ContractTitle: "Base"})

	_, err := s.Get(context.Background(), Scope{TenantID: 2}, main.ID, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}
}

func TestListVersionsReturnsLineage(t *testing.T) {
	s, scope := newContractService(t)
	main := mustCreateMain(t, s, scope, CreateContractInput{ContractNumber: "CN-13", ContractTitle: "Base"})

	first, err := s.CreateAmendment(context.Background(), scope, 1, main.ID, AmendmentInput{})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if _, err := s.CreateAmendment(context.Background(), scope, 1, first.ID, AmendmentInput{VersionType: identifier.VersionTypeMajor}); err != nil {
		t.Fatalf("amend again: %v", err)
	}

	versions, err := s.ListVersions(context.Background(), scope, first.ID)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 lineage nodes, got %d", len(versions))
	}
	if versions[0].ID != main.ID {
		t.Fatalf("expected the main contract first, got %d", versions[0].ID)
	}
}

func TestQuestionnaireTemplateUpsertByCategory(t *testing.T) {
	s, scope := newContractService(t)

	mustCreateMain(t, s, scope, CreateContractInput{
		ContractNumber: "CN-14",
		ContractTitle:  "Base",
		Terms: []TermInput{{
			TermTitle:    "Security",
			TermCategory: "security",
			Questionnaires: []QuestionInput{
				{QuestionText: "Do you hold ISO 27001?", QuestionType: "boolean"},
			},
		}},
	})

	var tmpl model.QuestionnaireTemplate
	if err := s.db.Where("tenant_id = ? AND term_category = ?", scope.TenantID, "security").First(&tmpl).Error; err != nil {
		t.Fatalf("load template: %v", err)
	}

	var questions int64
	s.db.Model(&model.TermQuestionnaire{}).Where("tenant_id = ?", scope.TenantID).Count(&questions)
	if questions != 1 {
		t.Fatalf("expected 1 questionnaire row, got %d", questions)
	}
}
