package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"tprm-service/internal/model"
)

func newEvaluationService(t *testing.T) (*EvaluationService, *gorm.DB, Scope) {
	t.Helper()
	db := setupTestDB(t)
	s := NewEvaluationService(db, testLogger())
	s.now = fixedNow
	return s, db, Scope{TenantID: 1}
}

func seedEvalRFP(t *testing.T, db *gorm.DB, status string) *model.RFP {
	t.Helper()
	rfp := &model.RFP{
		TenantID:  1,
		RFPNumber: "RFP-2026-06-0001",
		Title:     "Managed SOC services",
		Status:    status,
		CreatedBy: 1,
	}
	if err := db.Create(rfp).Error; err != nil {
		t.Fatalf("seed rfp: %v", err)
	}
	return rfp
}

func seedProposal(t *testing.T, db *gorm.DB, rfpID uint, vendorName string) *model.RFPResponse {
	t.Helper()
	resp := &model.RFPResponse{
		TenantID:         1,
		RFPID:            rfpID,
		VendorName:       vendorName,
		SubmissionStatus: "SUBMITTED",
		EvaluationStatus: model.EvaluationStatusSubmitted,
	}
	if err := db.Create(resp).Error; err != nil {
		t.Fatalf("seed response: %v", err)
	}
	return resp
}

func seedCriterion(t *testing.T, db *gorm.DB, c model.RFPEvaluationCriteria) *model.RFPEvaluationCriteria {
	t.Helper()
	c.TenantID = 1
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("seed criterion: %v", err)
	}
	return &c
}

func TestBulkAssignCartesianAndSkip(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	p1 := seedProposal(t, db, rfp.ID, "Acme Security")
	p2 := seedProposal(t, db, rfp.ID, "Borealis Networks")

	in := BulkAssignInput{
		ProposalIDs:  []uint{p1.ID, p2.ID},
		EvaluatorIDs: []uint{10, 11},
	}
	result, err := s.BulkAssign(context.Background(), scope, in)
	if err != nil {
		t.Fatalf("BulkAssign: %v", err)
	}
	if result.Created != 4 || result.Skipped != 0 {
		t.Fatalf("first pass created=%d skipped=%d, want 4/0", result.Created, result.Skipped)
	}

	// Second pass hits the unique index on every pair.
	result, err = s.BulkAssign(context.Background(), scope, in)
	if err != nil {
		t.Fatalf("BulkAssign again: %v", err)
	}
	if result.Created != 0 || result.Skipped != 4 {
		t.Fatalf("second pass created=%d skipped=%d, want 0/4", result.Created, result.Skipped)
	}

	var rows []model.RFPEvaluatorAssignment
	if err := db.Find(&rows).Error; err != nil {
		t.Fatalf("load assignments: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d assignment rows, want 4", len(rows))
	}
	for _, row := range rows {
		if row.AssignmentType != "technical" {
			t.Fatalf("assignment type = %q, want default technical", row.AssignmentType)
		}
		if row.Status != model.AssignmentStatusAssigned {
			t.Fatalf("assignment status = %q, want ASSIGNED", row.Status)
		}
	}
}

func TestBulkAssignUnknownProposal(t *testing.T) {
	s, _, scope := newEvaluationService(t)

	_, err := s.BulkAssign(context.Background(), scope, BulkAssignInput{
		ProposalIDs:  []uint{999},
		EvaluatorIDs: []uint{10},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	var verr *ValidationError
	_, err = s.BulkAssign(context.Background(), scope, BulkAssignInput{EvaluatorIDs: []uint{10}})
	if !errors.As(err, &verr) {
		t.Fatalf("empty proposal list: got %v, want validation error", err)
	}
}

func TestUpdateAssignmentStatusStampsDatesOnce(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	current := fixedTime
	s.now = func() time.Time { return current }

	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	p := seedProposal(t, db, rfp.ID, "Acme Security")
	result, err := s.BulkAssign(context.Background(), scope, BulkAssignInput{
		ProposalIDs:  []uint{p.ID},
		EvaluatorIDs: []uint{10},
	})
	if err != nil || result.Created != 1 {
		t.Fatalf("seed assignment: %v (created %d)", err, result.Created)
	}
	var seeded model.RFPEvaluatorAssignment
	if err := db.First(&seeded).Error; err != nil {
		t.Fatalf("load assignment: %v", err)
	}

	a, err := s.UpdateAssignmentStatus(context.Background(), scope, seeded.ID, model.AssignmentStatusInProgress)
	if err != nil {
		t.Fatalf("to IN_PROGRESS: %v", err)
	}
	if a.StartedDate == nil || !a.StartedDate.Equal(fixedTime) {
		t.Fatalf("StartedDate = %v, want %v", a.StartedDate, fixedTime)
	}
	if a.CompletedDate != nil {
		t.Fatalf("CompletedDate set prematurely: %v", a.CompletedDate)
	}

	current = fixedTime.Add(2 * time.Hour)
	a, err = s.UpdateAssignmentStatus(context.Background(), scope, seeded.ID, model.AssignmentStatusCompleted)
	if err != nil {
		t.Fatalf("to COMPLETED: %v", err)
	}
	if a.CompletedDate == nil || !a.CompletedDate.Equal(current) {
		t.Fatalf("CompletedDate = %v, want %v", a.CompletedDate, current)
	}

	// Going back and forth must not overwrite either stamp.
	current = fixedTime.Add(5 * time.Hour)
	if _, err := s.UpdateAssignmentStatus(context.Background(), scope, seeded.ID, model.AssignmentStatusInProgress); err != nil {
		t.Fatalf("back to IN_PROGRESS: %v", err)
	}
	a, err = s.UpdateAssignmentStatus(context.Background(), scope, seeded.ID, model.AssignmentStatusCompleted)
	if err != nil {
		t.Fatalf("to COMPLETED again: %v", err)
	}
	if !a.StartedDate.Equal(fixedTime) {
		t.Fatalf("StartedDate overwritten to %v", a.StartedDate)
	}
	if !a.CompletedDate.Equal(fixedTime.Add(2 * time.Hour)) {
		t.Fatalf("CompletedDate overwritten to %v", a.CompletedDate)
	}

	var verr *ValidationError
	if _, err := s.UpdateAssignmentStatus(context.Background(), scope, seeded.ID, "PAUSED"); !errors.As(err, &verr) {
		t.Fatalf("unknown status: got %v, want validation error", err)
	}
}

func TestSaveScoresValidatesPerCriterionType(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	resp := seedProposal(t, db, rfp.ID, "Acme Security")

	scoring := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "Technical fit",
		EvaluationType: model.CriterionTypeScoring,
		MinScore:       1, MaxScore: 10, WeightPercentage: 50,
	})
	narrative := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "Implementation plan",
		EvaluationType: model.CriterionTypeNarrative,
		MinWordCount:   5, WeightPercentage: 30,
	})
	binary := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "ISO 27001 certified",
		EvaluationType:        model.CriterionTypeBinary,
		ExpectedBooleanAnswer: "yes", WeightPercentage: 20,
	})

	var verr *ValidationError

	_, err := s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: scoring.ID, ScoreValue: 11},
	})
	if !errors.As(err, &verr) || !strings.Contains(verr.Error(), "between 1 and 10") {
		t.Fatalf("out-of-range score: got %v", err)
	}

	_, err = s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: narrative.ID, RawResponse: "too short"},
	})
	if !errors.As(err, &verr) || !strings.Contains(verr.Error(), "at least 5 words") {
		t.Fatalf("short narrative: got %v", err)
	}

	_, err = s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: binary.ID, RawResponse: "no"},
	})
	if !errors.As(err, &verr) || !strings.Contains(verr.Error(), `must be "yes"`) {
		t.Fatalf("wrong binary answer: got %v", err)
	}

	_, err = s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: 12345, ScoreValue: 5},
	})
	if !errors.As(err, &verr) {
		t.Fatalf("foreign criterion: got %v", err)
	}
}

func TestSaveScoresComputesWeightedAggregate(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	resp := seedProposal(t, db, rfp.ID, "Acme Security")

	technical := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "Technical fit",
		EvaluationType: model.CriterionTypeScoring,
		MaxScore:       10, WeightPercentage: 60,
	})
	commercial := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "Commercial terms",
		EvaluationType: model.CriterionTypeScoring,
		MaxScore:       10, WeightPercentage: 40,
	})

	got, err := s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: technical.ID, ScoreValue: 8},
		{CriteriaID: commercial.ID, ScoreValue: 5},
	})
	if err != nil {
		t.Fatalf("SaveScores: %v", err)
	}
	if got.WeightedFinalScore != 6.8 {
		t.Fatalf("single evaluator aggregate = %v, want 6.8", got.WeightedFinalScore)
	}
	if got.EvaluationStatus != model.EvaluationStatusUnderEvaluation {
		t.Fatalf("evaluation status = %q, want UNDER_EVALUATION", got.EvaluationStatus)
	}

	// A second evaluator pulls the average: (6.8 + 5.6) / 2.
	got, err = s.SaveScores(context.Background(), scope, 11, resp.ID, []ScoreInput{
		{CriteriaID: technical.ID, ScoreValue: 6},
		{CriteriaID: commercial.ID, ScoreValue: 5},
	})
	if err != nil {
		t.Fatalf("second evaluator: %v", err)
	}
	if got.WeightedFinalScore != 6.2 {
		t.Fatalf("two-evaluator aggregate = %v, want 6.2", got.WeightedFinalScore)
	}

	// Re-scoring upserts rather than duplicating.
	got, err = s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: technical.ID, ScoreValue: 10},
	})
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	var count int64
	db.Model(&model.RFPEvaluationScore{}).Count(&count)
	if count != 4 {
		t.Fatalf("got %d score rows after rescore, want 4", count)
	}
	// Evaluator 10 now at 10*0.6 + 5*0.4 = 8, evaluator 11 still 5.6.
	if got.WeightedFinalScore != 6.8 {
		t.Fatalf("aggregate after rescore = %v, want 6.8", got.WeightedFinalScore)
	}
}

func TestSaveScoresVetoAutoRejects(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	resp := seedProposal(t, db, rfp.ID, "Acme Security")

	gate := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "Data residency compliance",
		EvaluationType: model.CriterionTypeScoring,
		MaxScore:       10, WeightPercentage: 100,
		IsMandatory: true, VetoEnabled: true, VetoThreshold: 5,
	})

	got, err := s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: gate.ID, ScoreValue: 3},
	})
	if err != nil {
		t.Fatalf("SaveScores: %v", err)
	}
	if !got.AutoRejected {
		t.Fatal("response not auto-rejected")
	}
	if got.EvaluationStatus != model.EvaluationStatusRejected {
		t.Fatalf("evaluation status = %q, want REJECTED", got.EvaluationStatus)
	}
	if !strings.Contains(got.RejectionReason, "Data residency compliance") {
		t.Fatalf("rejection reason %q does not name the criterion", got.RejectionReason)
	}
}

func TestSetCommitteeChairMustBeMember(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)

	var verr *ValidationError
	_, err := s.SetCommittee(context.Background(), scope, rfp.ID, []uint{10, 11}, uintPtr(99))
	if !errors.As(err, &verr) {
		t.Fatalf("outside chair: got %v, want validation error", err)
	}

	members, err := s.SetCommittee(context.Background(), scope, rfp.ID, []uint{10, 11, 12}, uintPtr(11))
	if err != nil {
		t.Fatalf("SetCommittee: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("got %d members, want 3", len(members))
	}
	for _, m := range members {
		if m.IsChair != (m.UserID == 11) {
			t.Fatalf("member %d IsChair = %v", m.UserID, m.IsChair)
		}
	}

	// Replacing the committee demotes the old chair and drops absent members.
	members, err = s.SetCommittee(context.Background(), scope, rfp.ID, []uint{11, 12}, uintPtr(12))
	if err != nil {
		t.Fatalf("replace committee: %v", err)
	}
	var rows []model.RFPCommitteeMember
	if err := db.Where("rfp_id = ?", rfp.ID).Find(&rows).Error; err != nil {
		t.Fatalf("load committee: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d committee rows, want 2", len(rows))
	}
	for _, m := range rows {
		if m.IsChair != (m.UserID == 12) {
			t.Fatalf("after replace, member %d IsChair = %v", m.UserID, m.IsChair)
		}
	}
}

func TestSubmitFinalEvaluationRequiresMembership(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	resp := seedProposal(t, db, rfp.ID, "Acme Security")
	if _, err := s.SetCommittee(context.Background(), scope, rfp.ID, []uint{10, 11}, nil); err != nil {
		t.Fatalf("SetCommittee: %v", err)
	}

	rankings := []FinalRankingInput{{ResponseID: resp.ID, RankingScore: 90, RankingPosition: 1}}

	var verr *ValidationError
	if err := s.SubmitFinalEvaluation(context.Background(), scope, rfp.ID, 99, rankings); !errors.As(err, &verr) {
		t.Fatalf("non-member: got %v, want validation error", err)
	}

	if err := s.SubmitFinalEvaluation(context.Background(), scope, rfp.ID, 10, rankings); err != nil {
		t.Fatalf("member submit: %v", err)
	}

	// Resubmission updates in place.
	rankings[0].RankingScore = 70
	rankings[0].RankingPosition = 2
	if err := s.SubmitFinalEvaluation(context.Background(), scope, rfp.ID, 10, rankings); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	var rows []model.RFPFinalEvaluation
	if err := db.Where("rfp_id = ?", rfp.ID).Find(&rows).Error; err != nil {
		t.Fatalf("load rankings: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d ranking rows, want 1", len(rows))
	}
	if rows[0].RankingScore != 70 || rows[0].RankingPosition != 2 {
		t.Fatalf("resubmit did not update: score=%v position=%d", rows[0].RankingScore, rows[0].RankingPosition)
	}
}

func TestConsensusRankingOrdersByAverageScore(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	resp1 := seedProposal(t, db, rfp.ID, "Acme Security")
	resp2 := seedProposal(t, db, rfp.ID, "Borealis Networks")
	if _, err := s.SetCommittee(context.Background(), scope, rfp.ID, []uint{10, 11, 12}, uintPtr(10)); err != nil {
		t.Fatalf("SetCommittee: %v", err)
	}

	submit := func(evaluatorID uint, s1, s2 float64, p1, p2 int) {
		t.Helper()
		err := s.SubmitFinalEvaluation(context.Background(), scope, rfp.ID, evaluatorID, []FinalRankingInput{
			{ResponseID: resp1.ID, RankingScore: s1, RankingPosition: p1},
			{ResponseID: resp2.ID, RankingScore: s2, RankingPosition: p2},
		})
		if err != nil {
			t.Fatalf("evaluator %d submit: %v", evaluatorID, err)
		}
	}
	submit(10, 90, 80, 1, 2)
	submit(11, 70, 95, 2, 1)
	submit(12, 85, 85, 2, 1)

	entries, err := s.ConsensusRanking(context.Background(), scope, rfp.ID)
	if err != nil {
		t.Fatalf("ConsensusRanking: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	first, second := entries[0], entries[1]
	if first.ResponseID != resp2.ID || first.ConsensusRank != 1 {
		t.Fatalf("first entry = response %d rank %d, want response %d rank 1",
			first.ResponseID, first.ConsensusRank, resp2.ID)
	}
	if first.AverageScore != 86.67 {
		t.Fatalf("winner average score = %v, want 86.67", first.AverageScore)
	}
	if first.VendorName != "Borealis Networks" {
		t.Fatalf("winner vendor name = %q", first.VendorName)
	}
	if second.ResponseID != resp1.ID || second.ConsensusRank != 2 {
		t.Fatalf("second entry = response %d rank %d", second.ResponseID, second.ConsensusRank)
	}
	if second.AverageScore != 81.67 {
		t.Fatalf("runner-up average score = %v, want 81.67", second.AverageScore)
	}
}

func TestConsensusRankingEmptyWithoutEvaluations(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)

	entries, err := s.ConsensusRanking(context.Background(), scope, rfp.ID)
	if err != nil {
		t.Fatalf("ConsensusRanking: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want none", len(entries))
	}
}

func TestDeclareAwardClosesRFP(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	winner := seedProposal(t, db, rfp.ID, "Borealis Networks")

	notification, err := s.DeclareAward(context.Background(), scope, 1, rfp.ID, AwardInput{
		ResponseID:    winner.ID,
		Justification: "Highest consensus score",
		AwardMessage:  "Congratulations",
		NextSteps:     "Credential provisioning follows acceptance",
	})
	if err != nil {
		t.Fatalf("DeclareAward: %v", err)
	}
	if notification.NotificationType != model.NotificationTypeWinner {
		t.Fatalf("notification type = %q", notification.NotificationType)
	}
	if notification.NotificationStatus != model.NotificationStatusPending {
		t.Fatalf("notification status = %q", notification.NotificationStatus)
	}
	if notification.AcceptRejectToken == "" {
		t.Fatal("no accept/reject token minted")
	}

	var reloaded model.RFP
	if err := db.First(&reloaded, rfp.ID).Error; err != nil {
		t.Fatalf("reload rfp: %v", err)
	}
	if reloaded.Status != model.RFPStatusAwarded {
		t.Fatalf("rfp status = %q, want AWARDED", reloaded.Status)
	}
	if reloaded.AwardDecisionDate == nil || !reloaded.AwardDecisionDate.Equal(fixedTime) {
		t.Fatalf("award decision date = %v, want %v", reloaded.AwardDecisionDate, fixedTime)
	}
	if reloaded.AwardJustification != "Highest consensus score" {
		t.Fatalf("justification = %q", reloaded.AwardJustification)
	}

	var winnerRow model.RFPResponse
	if err := db.First(&winnerRow, winner.ID).Error; err != nil {
		t.Fatalf("reload response: %v", err)
	}
	if winnerRow.EvaluationStatus != model.EvaluationStatusAwarded {
		t.Fatalf("winner evaluation status = %q, want AWARDED", winnerRow.EvaluationStatus)
	}

	// A second award attempt fails because the RFP already left EVALUATION.
	var verr *ValidationError
	_, err = s.DeclareAward(context.Background(), scope, 1, rfp.ID, AwardInput{ResponseID: winner.ID})
	if !errors.As(err, &verr) {
		t.Fatalf("re-award: got %v, want validation error", err)
	}
}

func TestDeclareAwardRequiresEvaluationStatus(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusDraft)
	resp := seedProposal(t, db, rfp.ID, "Acme Security")

	var verr *ValidationError
	_, err := s.DeclareAward(context.Background(), scope, 1, rfp.ID, AwardInput{ResponseID: resp.ID})
	if !errors.As(err, &verr) {
		t.Fatalf("award from DRAFT: got %v, want validation error", err)
	}

	_, err = s.DeclareAward(context.Background(), Scope{TenantID: 2}, 1, rfp.ID, AwardInput{ResponseID: resp.ID})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant award: got %v, want ErrNotFound", err)
	}
}

func TestResponseAggregateReportsPerEvaluatorSums(t *testing.T) {
	s, db, scope := newEvaluationService(t)
	rfp := seedEvalRFP(t, db, model.RFPStatusEvaluation)
	resp := seedProposal(t, db, rfp.ID, "Acme Security")

	technical := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "Technical fit",
		EvaluationType: model.CriterionTypeScoring,
		MaxScore:       10, WeightPercentage: 60,
	})
	commercial := seedCriterion(t, db, model.RFPEvaluationCriteria{
		RFPID: rfp.ID, CriteriaName: "Commercial terms",
		EvaluationType: model.CriterionTypeScoring,
		MaxScore:       10, WeightPercentage: 40,
	})

	if _, err := s.SaveScores(context.Background(), scope, 10, resp.ID, []ScoreInput{
		{CriteriaID: technical.ID, ScoreValue: 8},
		{CriteriaID: commercial.ID, ScoreValue: 5},
	}); err != nil {
		t.Fatalf("scores for evaluator 10: %v", err)
	}
	if _, err := s.SaveScores(context.Background(), scope, 11, resp.ID, []ScoreInput{
		{CriteriaID: technical.ID, ScoreValue: 6},
		{CriteriaID: commercial.ID, ScoreValue: 5},
	}); err != nil {
		t.Fatalf("scores for evaluator 11: %v", err)
	}

	view, err := s.ResponseAggregate(context.Background(), scope, resp.ID)
	if err != nil {
		t.Fatalf("ResponseAggregate: %v", err)
	}
	if len(view.Scores) != 4 {
		t.Fatalf("score rows = %d, want 4", len(view.Scores))
	}
	if len(view.PerEvaluator) != 2 {
		t.Fatalf("per-evaluator entries = %d, want 2", len(view.PerEvaluator))
	}
	first, second := view.PerEvaluator[0], view.PerEvaluator[1]
	if first.EvaluatorID != 10 || first.WeightedScore != 6.8 || first.ScoreCount != 2 {
		t.Fatalf("evaluator 10 aggregate = %+v", first)
	}
	if second.EvaluatorID != 11 || second.WeightedScore != 5.6 || second.ScoreCount != 2 {
		t.Fatalf("evaluator 11 aggregate = %+v", second)
	}
	if view.Response.WeightedFinalScore != 6.2 {
		t.Fatalf("stored final score = %g, want 6.2", view.Response.WeightedFinalScore)
	}

	if _, err := s.ResponseAggregate(context.Background(), Scope{TenantID: 99}, resp.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant aggregate: got %v, want ErrNotFound", err)
	}
	vendorScope := Scope{TenantID: 1, VendorID: uintPtr(7)}
	if _, err := s.ResponseAggregate(context.Background(), vendorScope, resp.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign vendor aggregate: got %v, want ErrNotFound", err)
	}
}
