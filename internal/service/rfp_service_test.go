package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"tprm-service/internal/model"
)

func newRFPService(t *testing.T) (*RFPService, Scope) {
	t.Helper()
	s := NewRFPService(setupTestDB(t), testLogger())
	s.now = fixedNow
	return s, Scope{TenantID: 1}
}

func reviewableRFPInput(criteria ...CriterionInput) CreateRFPInput {
	return CreateRFPInput{
		Title:               "Managed SOC services",
		Description:         "24/7 monitoring",
		RFPType:             "services",
		PrimaryReviewerID:   uintPtr(10),
		ExecutiveReviewerID: uintPtr(11),
		Criteria:            criteria,
	}
}

func mustCreateRFP(t *testing.T, s *RFPService, scope Scope, in CreateRFPInput) *model.RFP {
	t.Helper()
	rfp, err := s.Create(context.Background(), scope, 1, in)
	if err != nil {
		t.Fatalf("create rfp: %v", err)
	}
	return rfp
}

// advance walks an RFP to the requested status through the normal transitions.
func advanceRFP(t *testing.T, s *RFPService, scope Scope, rfpID uint, target string) *model.RFP {
	t.Helper()
	steps := []struct {
		status string
		fn     func() (*model.RFP, error)
	}{
		{model.RFPStatusInReview, func() (*model.RFP, error) { return s.SubmitForReview(context.Background(), scope, 1, rfpID) }},
		{model.RFPStatusApproved, func() (*model.RFP, error) { return s.Approve(context.Background(), scope, 1, rfpID) }},
		{model.RFPStatusPublished, func() (*model.RFP, error) { return s.Publish(context.Background(), scope, 1, rfpID) }},
		{model.RFPStatusSubmissionOpen, func() (*model.RFP, error) { return s.OpenSubmissions(context.Background(), scope, 1, rfpID) }},
		{model.RFPStatusEvaluation, func() (*model.RFP, error) { return s.StartEvaluation(context.Background(), scope, 1, rfpID) }},
	}
	var rfp *model.RFP
	var err error
	for _, step := range steps {
		rfp, err = step.fn()
		if err != nil {
			t.Fatalf("transition to %s: %v", step.status, err)
		}
		if rfp.Status == target {
			return rfp
		}
	}
	t.Fatalf("never reached %s", target)
	return nil
}

func TestCreateRFPMintsSequencedNumber(t *testing.T) {
	s, scope := newRFPService(t)

	first := mustCreateRFP(t, s, scope, reviewableRFPInput())
	if first.RFPNumber != "RFP-2026-06-0001" {
		t.Fatalf("expected RFP-2026-06-0001, got %s", first.RFPNumber)
	}
	if first.Status != model.RFPStatusDraft {
		t.Fatalf("expected DRAFT, got %s", first.Status)
	}

	second := mustCreateRFP(t, s, scope, reviewableRFPInput())
	if second.RFPNumber != "RFP-2026-06-0002" {
		t.Fatalf("expected RFP-2026-06-0002, got %s", second.RFPNumber)
	}
}

func TestSubmitForReviewWeightGate(t *testing.T) {
	s, scope := newRFPService(t)

	rfp := mustCreateRFP(t, s, scope, reviewableRFPInput(
		CriterionInput{CriteriaName: "Price", WeightPercentage: 49},
		CriterionInput{CriteriaName: "Quality", WeightPercentage: 50},
	))

	_, err := s.SubmitForReview(context.Background(), scope, 1, rfp.ID)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Message != "Total weight percentage must equal 100% (current: 99%)" {
		t.Fatalf("unexpected message: %q", verr.Message)
	}
}

func TestSubmitForReviewAcceptsWeightWithinTolerance(t *testing.T) {
	s, scope := newRFPService(t)

	rfp := mustCreateRFP(t, s, scope, reviewableRFPInput(
		CriterionInput{CriteriaName: "Price", WeightPercentage: 33.33},
		CriterionInput{CriteriaName: "Quality", WeightPercentage: 33.33},
		CriterionInput{CriteriaName: "Delivery", WeightPercentage: 33.34},
	))

	got, err := s.SubmitForReview(context.Background(), scope, 1, rfp.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != model.RFPStatusInReview {
		t.Fatalf("expected IN_REVIEW, got %s", got.Status)
	}
}

func TestSubmitForReviewRequiresReviewersAndCriteria(t *testing.T) {
	s, scope := newRFPService(t)

	noCriteria := mustCreateRFP(t, s, scope, reviewableRFPInput())
	if _, err := s.SubmitForReview(context.Background(), scope, 1, noCriteria.ID); err == nil {
		t.Fatal("expected error without criteria")
	}

	in := reviewableRFPInput(CriterionInput{CriteriaName: "Price", WeightPercentage: 100})
	in.ExecutiveReviewerID = nil
	noReviewer := mustCreateRFP(t, s, scope, in)
	if _, err := s.SubmitForReview(context.Background(), scope, 1, noReviewer.ID); err == nil {
		t.Fatal("expected error without executive reviewer")
	}
}

func TestLifecycleThroughEvaluation(t *testing.T) {
	s, scope := newRFPService(t)
	rfp := mustCreateRFP(t, s, scope, reviewableRFPInput(
		CriterionInput{CriteriaName: "Price", WeightPercentage: 100},
	))

	got := advanceRFP(t, s, scope, rfp.ID, model.RFPStatusEvaluation)
	if got.Status != model.RFPStatusEvaluation {
		t.Fatalf("expected EVALUATION, got %s", got.Status)
	}
	if got.ApprovedBy == nil || *got.ApprovedBy != 1 {
		t.Fatalf("expected approved_by stamped, got %v", got.ApprovedBy)
	}
	if got.IssueDate == nil || !got.IssueDate.Equal(fixedTime) {
		t.Fatalf("expected issue date stamped on publish, got %v", got.IssueDate)
	}

	// Out-of-order transitions fail.
	if _, err := s.Publish(context.Background(), scope, 1, rfp.ID); err == nil {
		t.Fatal("expected error publishing an EVALUATION rfp")
	}
}

func TestRejectReturnsToDraftAndRecordsHistory(t *testing.T) {
	s, scope := newRFPService(t)
	rfp := mustCreateRFP(t, s, scope, reviewableRFPInput(
		CriterionInput{CriteriaName: "Price", WeightPercentage: 100},
	))
	if _, err := s.SubmitForReview(context.Background(), scope, 1, rfp.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, err := s.Reject(context.Background(), scope, 4, rfp.ID, "scope too broad")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != model.RFPStatusDraft {
		t.Fatalf("expected DRAFT, got %s", got.Status)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(got.CustomFields, &fields); err != nil {
		t.Fatalf("decode custom_fields: %v", err)
	}
	history, _ := fields["rejection_history"].([]interface{})
	if len(history) != 1 {
		t.Fatalf("expected 1 rejection entry, got %v", history)
	}
	entry := history[0].(map[string]interface{})
	if entry["reason"] != "scope too broad" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["rejected_at"] != "2026-06-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp: %v", entry["rejected_at"])
	}

	// Rejecting without a reason is refused.
	if _, err := s.Reject(context.Background(), scope, 4, rfp.ID, ""); err == nil {
		t.Fatal("expected error without reason")
	}
}

func TestAutoApproveSkipsReview(t *testing.T) {
	s, scope := newRFPService(t)
	in := reviewableRFPInput(CriterionInput{CriteriaName: "Price", WeightPercentage: 100})
	in.AutoApprove = true
	rfp := mustCreateRFP(t, s, scope, in)

	got, err := s.Approve(context.Background(), scope, 1, rfp.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != model.RFPStatusApproved {
		t.Fatalf("expected APPROVED straight from DRAFT, got %s", got.Status)
	}
}

func TestUpdateReplacesCriteriaAndLocksAfterApproval(t *testing.T) {
	s, scope := newRFPService(t)
	rfp := mustCreateRFP(t, s, scope, reviewableRFPInput(
		CriterionInput{CriteriaName: "Price", WeightPercentage: 60},
		CriterionInput{CriteriaName: "Quality", WeightPercentage: 40},
	))

	replacement := []CriterionInput{{CriteriaName: "Total cost", WeightPercentage: 100}}
	_, err := s.Update(context.Background(), scope, 1, rfp.ID, UpdateRFPInput{
		Title:    strPtr("Managed SOC services v2"),
		Criteria: &replacement,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	detail, err := s.Get(context.Background(), scope, rfp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.RFP.Title != "Managed SOC services v2" {
		t.Fatalf("title not patched: %s", detail.RFP.Title)
	}
	if len(detail.Criteria) != 1 || detail.Criteria[0].CriteriaName != "Total cost" {
		t.Fatalf("criteria not replaced: %v", detail.Criteria)
	}
	if detail.Criteria[0].MaxScore != 10 {
		t.Fatalf("expected default max score 10, got %v", detail.Criteria[0].MaxScore)
	}

	advanceRFP(t, s, scope, rfp.ID, model.RFPStatusApproved)
	if _, err := s.Update(context.Background(), scope, 1, rfp.ID, UpdateRFPInput{Title: strPtr("too late")}); err == nil {
		t.Fatal("expected edit refusal after approval")
	}
}

func TestCancelAndArchive(t *testing.T) {
	s, scope := newRFPService(t)
	rfp := mustCreateRFP(t, s, scope, reviewableRFPInput(
		CriterionInput{CriteriaName: "Price", WeightPercentage: 100},
	))

	// DRAFT can be archived only after a terminal status.
	if _, err := s.Archive(context.Background(), scope, 1, rfp.ID); err == nil {
		t.Fatal("expected archive refusal for DRAFT")
	}

	if _, err := s.Cancel(context.Background(), scope, 1, rfp.ID, "budget cut"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := s.Archive(context.Background(), scope, 1, rfp.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if got.Status != model.RFPStatusArchived {
		t.Fatalf("expected ARCHIVED, got %s", got.Status)
	}

	// Terminal states refuse further cancellation.
	if _, err := s.Cancel(context.Background(), scope, 1, rfp.ID, ""); err == nil {
		t.Fatal("expected cancel refusal for ARCHIVED")
	}
}
