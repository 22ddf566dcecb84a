package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tprm-service/internal/identifier"
	"tprm-service/internal/model"
)

// EvaluationService owns evaluator assignments, per-criterion scoring,
// weighted aggregation, committee consensus and award declaration.
type EvaluationService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewEvaluationService(db *gorm.DB, log *zap.Logger) *EvaluationService {
	return &EvaluationService{db: db, log: log, now: time.Now}
}

// BulkAssignInput assigns every evaluator to every proposal.
type BulkAssignInput struct {
	ProposalIDs    []uint `json:"proposal_ids"`
	EvaluatorIDs   []uint `json:"evaluator_ids"`
	AssignmentType string `json:"assignment_type"`
}

// BulkAssignResult reports how many assignments were created versus skipped
// because they already existed.
type BulkAssignResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// BulkAssign creates the Cartesian product of proposal and evaluator
// assignments, skipping pairs that already exist for the assignment type.
func (s *EvaluationService) BulkAssign(ctx context.Context, scope Scope, in BulkAssignInput) (*BulkAssignResult, error) {
	if len(in.ProposalIDs) == 0 || len(in.EvaluatorIDs) == 0 {
		return nil, NewValidationError("proposal_ids and evaluator_ids are required")
	}
	assignmentType := defaultString(in.AssignmentType, "technical")

	result := &BulkAssignResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, proposalID := range in.ProposalIDs {
			var response model.RFPResponse
			err := tx.Where("tenant_id = ? AND id = ?", scope.TenantID, proposalID).
				First(&response).Error
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return fmt.Errorf("proposal %d: %w", proposalID, ErrNotFound)
				}
				return err
			}

			for _, evaluatorID := range in.EvaluatorIDs {
				row := model.RFPEvaluatorAssignment{
					TenantID:       scope.TenantID,
					ProposalID:     proposalID,
					EvaluatorID:    evaluatorID,
					AssignmentType: assignmentType,
					Status:         model.AssignmentStatusAssigned,
				}
				insertErr := tx.Transaction(func(inner *gorm.DB) error {
					return inner.Create(&row).Error
				})
				switch {
				case insertErr == nil:
					result.Created++
				case IsUniqueViolation(insertErr):
					result.Skipped++
				default:
					return insertErr
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("evaluators assigned",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// UpdateAssignmentStatus transitions an assignment. StartedDate and
// CompletedDate are stamped on the first transition into IN_PROGRESS and
// COMPLETED and never overwritten.
func (s *EvaluationService) UpdateAssignmentStatus(ctx context.Context, scope Scope, assignmentID uint, status string) (*model.RFPEvaluatorAssignment, error) {
	switch status {
	case model.AssignmentStatusAssigned, model.AssignmentStatusInProgress,
		model.AssignmentStatusCompleted, model.AssignmentStatusCancelled:
	default:
		return nil, NewValidationError(fmt.Sprintf("unknown assignment status %q", status))
	}

	var assignment model.RFPEvaluatorAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := lockForUpdate(tx).
			Where("tenant_id = ? AND id = ?", scope.TenantID, assignmentID).
			First(&assignment).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}

		now := s.now()
		assignment.Status = status
		if status == model.AssignmentStatusInProgress && assignment.StartedDate == nil {
			assignment.StartedDate = &now
		}
		if status == model.AssignmentStatusCompleted && assignment.CompletedDate == nil {
			assignment.CompletedDate = &now
		}
		return tx.Save(&assignment).Error
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ScoreInput is one evaluator's score for one criterion of one response.
type ScoreInput struct {
	CriteriaID  uint    `json:"criteria_id"`
	ScoreValue  float64 `json:"score_value"`
	RawResponse string  `json:"raw_response"`
	Comments    string  `json:"comments"`
}

// SaveScores validates and upserts an evaluator's scores for a response, then
// recomputes the response's weighted aggregate. Validation is per criterion
// type: numeric range for scoring, word count for narrative, expected answer
// for binary.
func (s *EvaluationService) SaveScores(ctx context.Context, scope Scope, evaluatorID, responseID uint, scores []ScoreInput) (*model.RFPResponse, error) {
	if len(scores) == 0 {
		return nil, NewValidationError("at least one score is required")
	}

	var response *model.RFPResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		response = &model.RFPResponse{}
		err := lockForUpdate(tx).
			Where("tenant_id = ? AND id = ?", scope.TenantID, responseID).
			First(response).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}

		criteria, err := s.criteriaByID(tx, scope, response.RFPID)
		if err != nil {
			return err
		}

		for _, in := range scores {
			criterion, ok := criteria[in.CriteriaID]
			if !ok {
				return NewValidationError(fmt.Sprintf("criterion %d does not belong to this rfp", in.CriteriaID))
			}
			if err := validateScore(criterion, in); err != nil {
				return err
			}

			row := model.RFPEvaluationScore{
				TenantID:    scope.TenantID,
				ResponseID:  responseID,
				CriteriaID:  in.CriteriaID,
				EvaluatorID: evaluatorID,
				ScoreValue:  in.ScoreValue,
				RawResponse: in.RawResponse,
				Comments:    in.Comments,
			}
			insertErr := tx.Transaction(func(inner *gorm.DB) error {
				return inner.Create(&row).Error
			})
			if insertErr != nil {
				if !IsUniqueViolation(insertErr) {
					return insertErr
				}
				err = tx.Model(&model.RFPEvaluationScore{}).
					Where("tenant_id = ? AND response_id = ? AND criteria_id = ? AND evaluator_id = ?",
						scope.TenantID, responseID, in.CriteriaID, evaluatorID).
					Updates(map[string]interface{}{
						"score_value":  in.ScoreValue,
						"raw_response": in.RawResponse,
						"comments":     in.Comments,
					}).Error
				if err != nil {
					return err
				}
			}
		}

		return s.recomputeAggregate(tx, scope, response, criteria)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("scores saved",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("response_id", responseID),
		zap.Uint("evaluator_id", evaluatorID),
		zap.Float64("weighted_final_score", response.WeightedFinalScore))
	return response, nil
}

func validateScore(criterion model.RFPEvaluationCriteria, in ScoreInput) error {
	switch criterion.EvaluationType {
	case model.CriterionTypeScoring:
		if in.ScoreValue < criterion.MinScore || in.ScoreValue > criterion.MaxScore {
			return NewValidationError(fmt.Sprintf(
				"score for %q must be between %g and %g",
				criterion.CriteriaName, criterion.MinScore, criterion.MaxScore))
		}
	case model.CriterionTypeNarrative:
		words := len(strings.Fields(in.RawResponse))
		if in.RawResponse == "" || words < criterion.MinWordCount {
			return NewValidationError(fmt.Sprintf(
				"narrative answer for %q requires at least %d words",
				criterion.CriteriaName, criterion.MinWordCount))
		}
	case model.CriterionTypeBinary:
		if criterion.ExpectedBooleanAnswer != "" &&
			!strings.EqualFold(strings.TrimSpace(in.RawResponse), criterion.ExpectedBooleanAnswer) &&
			!criterion.VetoEnabled {
			return NewValidationError(fmt.Sprintf(
				"answer for %q must be %q", criterion.CriteriaName, criterion.ExpectedBooleanAnswer))
		}
	}
	return nil
}

// recomputeAggregate recalculates the response's weighted final score as the
// per-evaluator weighted sums averaged across evaluators, and applies veto:
// any mandatory veto-enabled criterion scored below its threshold (or with a
// wrong binary answer) auto-rejects the response regardless of aggregate.
func (s *EvaluationService) recomputeAggregate(tx *gorm.DB, scope Scope, response *model.RFPResponse, criteria map[uint]model.RFPEvaluationCriteria) error {
	var rows []model.RFPEvaluationScore
	err := tx.Where("tenant_id = ? AND response_id = ?", scope.TenantID, response.ID).
		Find(&rows).Error
	if err != nil {
		return err
	}

	perEvaluator := map[uint]float64{}
	vetoed := false
	vetoReason := ""
	for _, row := range rows {
		criterion, ok := criteria[row.CriteriaID]
		if !ok {
			continue
		}
		perEvaluator[row.EvaluatorID] += row.ScoreValue * criterion.WeightPercentage / 100.0

		if criterion.IsMandatory && criterion.VetoEnabled {
			failedScore := row.ScoreValue < criterion.VetoThreshold
			failedAnswer := criterion.EvaluationType == model.CriterionTypeBinary &&
				criterion.ExpectedBooleanAnswer != "" &&
				!strings.EqualFold(strings.TrimSpace(row.RawResponse), criterion.ExpectedBooleanAnswer)
			if failedScore || failedAnswer {
				vetoed = true
				vetoReason = fmt.Sprintf("veto on mandatory criterion %q", criterion.CriteriaName)
			}
		}
	}

	if len(perEvaluator) > 0 {
		sum := 0.0
		for _, v := range perEvaluator {
			sum += v
		}
		response.WeightedFinalScore = round2(sum / float64(len(perEvaluator)))
		response.OverallScore = response.WeightedFinalScore
	}

	if vetoed {
		response.AutoRejected = true
		response.RejectionReason = vetoReason
		response.EvaluationStatus = model.EvaluationStatusRejected
	} else if response.EvaluationStatus == model.EvaluationStatusSubmitted {
		response.EvaluationStatus = model.EvaluationStatusUnderEvaluation
	}
	return tx.Save(response).Error
}

func (s *EvaluationService) criteriaByID(tx *gorm.DB, scope Scope, rfpID uint) (map[uint]model.RFPEvaluationCriteria, error) {
	var criteria []model.RFPEvaluationCriteria
	err := tx.Where("tenant_id = ? AND rfp_id = ?", scope.TenantID, rfpID).
		Find(&criteria).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.RFPEvaluationCriteria, len(criteria))
	for _, c := range criteria {
		byID[c.ID] = c
	}
	return byID, nil
}

// EvaluatorAggregate is one evaluator's weighted sum over a response.
type EvaluatorAggregate struct {
	EvaluatorID   uint    `json:"evaluator_id"`
	WeightedScore float64 `json:"weighted_score"`
	ScoreCount    int     `json:"score_count"`
}

// ResponseAggregateView bundles a response with its score rows and the
// per-evaluator weighted sums behind the stored final score.
type ResponseAggregateView struct {
	Response     *model.RFPResponse         `json:"response"`
	Scores       []model.RFPEvaluationScore `json:"scores"`
	PerEvaluator []EvaluatorAggregate       `json:"per_evaluator"`
}

// ResponseAggregate returns the evaluation detail for one response. Vendor
// callers only see their own response.
func (s *EvaluationService) ResponseAggregate(ctx context.Context, scope Scope, responseID uint) (*ResponseAggregateView, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", scope.TenantID, responseID)
	if scope.VendorID != nil {
		q = q.Where("vendor_id = ?", *scope.VendorID)
	}
	var response model.RFPResponse
	if err := q.First(&response).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	criteria, err := s.criteriaByID(s.db.WithContext(ctx), scope, response.RFPID)
	if err != nil {
		return nil, err
	}

	var rows []model.RFPEvaluationScore
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND response_id = ?", scope.TenantID, responseID).
		Order("evaluator_id ASC, criteria_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sums := map[uint]*EvaluatorAggregate{}
	order := []uint{}
	for _, row := range rows {
		criterion, ok := criteria[row.CriteriaID]
		if !ok {
			continue
		}
		agg, ok := sums[row.EvaluatorID]
		if !ok {
			agg = &EvaluatorAggregate{EvaluatorID: row.EvaluatorID}
			sums[row.EvaluatorID] = agg
			order = append(order, row.EvaluatorID)
		}
		agg.WeightedScore += row.ScoreValue * criterion.WeightPercentage / 100.0
		agg.ScoreCount++
	}

	perEvaluator := make([]EvaluatorAggregate, 0, len(order))
	for _, id := range order {
		agg := sums[id]
		agg.WeightedScore = round2(agg.WeightedScore)
		perEvaluator = append(perEvaluator, *agg)
	}

	return &ResponseAggregateView{
		Response:     &response,
		Scores:       rows,
		PerEvaluator: perEvaluator,
	}, nil
}

// SetCommittee replaces the RFP's committee membership. At most one chair; a
// new chair demotes the previous one.
func (s *EvaluationService) SetCommittee(ctx context.Context, scope Scope, rfpID uint, memberIDs []uint, chairID *uint) ([]model.RFPCommitteeMember, error) {
	if len(memberIDs) == 0 {
		return nil, NewValidationError("at least one committee member is required")
	}
	if chairID != nil {
		found := false
		for _, id := range memberIDs {
			if id == *chairID {
				found = true
				break
			}
		}
		if !found {
			return nil, NewValidationError("chair must be one of the committee members")
		}
	}

	var members []model.RFPCommitteeMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rfp model.RFP
		err := tx.Where("tenant_id = ? AND id = ?", scope.TenantID, rfpID).First(&rfp).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}

		err = tx.Where("tenant_id = ? AND rfp_id = ?", scope.TenantID, rfpID).
			Delete(&model.RFPCommitteeMember{}).Error
		if err != nil {
			return err
		}

		for _, userID := range memberIDs {
			row := model.RFPCommitteeMember{
				TenantID: scope.TenantID,
				RFPID:    rfpID,
				UserID:   userID,
				IsChair:  chairID != nil && *chairID == userID,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			members = append(members, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// FinalRankingInput is one committee member's ranking of one response.
type FinalRankingInput struct {
	ResponseID      uint    `json:"response_id"`
	RankingScore    float64 `json:"ranking_score"`
	RankingPosition int     `json:"ranking_position"`
	Comments        string  `json:"comments"`
}

// SubmitFinalEvaluation upserts a committee member's rankings for an RFP.
// Only committee members may submit.
func (s *EvaluationService) SubmitFinalEvaluation(ctx context.Context, scope Scope, rfpID, evaluatorID uint, rankings []FinalRankingInput) error {
	if len(rankings) == 0 {
		return NewValidationError("at least one ranking is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var membership int64
		err := tx.Model(&model.RFPCommitteeMember{}).
			Where("tenant_id = ? AND rfp_id = ? AND user_id = ?", scope.TenantID, rfpID, evaluatorID).
			Count(&membership).Error
		if err != nil {
			return err
		}
		if membership == 0 {
			return NewValidationError("evaluator is not a committee member for this rfp")
		}

		for _, in := range rankings {
			var response model.RFPResponse
			err := tx.Where("tenant_id = ? AND id = ? AND rfp_id = ?", scope.TenantID, in.ResponseID, rfpID).
				First(&response).Error
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return fmt.Errorf("response %d: %w", in.ResponseID, ErrNotFound)
				}
				return err
			}

			row := model.RFPFinalEvaluation{
				TenantID:        scope.TenantID,
				RFPID:           rfpID,
				ResponseID:      in.ResponseID,
				EvaluatorID:     evaluatorID,
				RankingScore:    in.RankingScore,
				RankingPosition: in.RankingPosition,
				Comments:        in.Comments,
			}
			insertErr := tx.Transaction(func(inner *gorm.DB) error {
				return inner.Create(&row).Error
			})
			if insertErr != nil {
				if !IsUniqueViolation(insertErr) {
					return insertErr
				}
				err = tx.Model(&model.RFPFinalEvaluation{}).
					Where("tenant_id = ? AND rfp_id = ? AND response_id = ? AND evaluator_id = ?",
						scope.TenantID, rfpID, in.ResponseID, evaluatorID).
					Updates(map[string]interface{}{
						"ranking_score":    in.RankingScore,
						"ranking_position": in.RankingPosition,
						"comments":         in.Comments,
					}).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ConsensusEntry is one response's position in the committee consensus.
type ConsensusEntry struct {
	ResponseID      uint    `json:"response_id"`
	VendorName      string  `json:"vendor_name"`
	AverageScore    float64 `json:"average_score"`
	AveragePosition float64 `json:"average_position"`
	ConsensusRank   int     `json:"consensus_rank"`
}

// ConsensusRanking averages each response's ranking_score across committee
// members and orders descending, breaking ties by lower average
// ranking_position. Ranks start at 1.
func (s *EvaluationService) ConsensusRanking(ctx context.Context, scope Scope, rfpID uint) ([]ConsensusEntry, error) {
	var rows []model.RFPFinalEvaluation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND rfp_id = ?", scope.TenantID, rfpID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []ConsensusEntry{}, nil
	}

	type acc struct {
		scoreSum float64
		posSum   float64
		count    int
	}
	byResponse := map[uint]*acc{}
	for _, row := range rows {
		a := byResponse[row.ResponseID]
		if a == nil {
			a = &acc{}
			byResponse[row.ResponseID] = a
		}
		a.scoreSum += row.RankingScore
		a.posSum += float64(row.RankingPosition)
		a.count++
	}

	entries := make([]ConsensusEntry, 0, len(byResponse))
	for responseID, a := range byResponse {
		entries = append(entries, ConsensusEntry{
			ResponseID:      responseID,
			AverageScore:    round2(a.scoreSum / float64(a.count)),
			AveragePosition: round2(a.posSum / float64(a.count)),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AverageScore != entries[j].AverageScore {
			return entries[i].AverageScore > entries[j].AverageScore
		}
		return entries[i].AveragePosition < entries[j].AveragePosition
	})
	for i := range entries {
		entries[i].ConsensusRank = i + 1
	}

	for i := range entries {
		var response model.RFPResponse
		err := s.db.WithContext(ctx).
			Select("vendor_name").
			Where("tenant_id = ? AND id = ?", scope.TenantID, entries[i].ResponseID).
			First(&response).Error
		if err == nil {
			entries[i].VendorName = response.VendorName
		}
	}
	return entries, nil
}

// AwardInput declares the winner of an RFP.
type AwardInput struct {
	ResponseID    uint   `json:"response_id"`
	Justification string `json:"justification"`
	AwardMessage  string `json:"award_message"`
	NextSteps     string `json:"next_steps"`
}

// DeclareAward atomically closes the RFP as AWARDED, marks the winning
// response, and creates the winner notification carrying a fresh accept or
// reject token.
func (s *EvaluationService) DeclareAward(ctx context.Context, scope Scope, actorID uint, rfpID uint, in AwardInput) (*model.RFPAwardNotification, error) {
	if in.ResponseID == 0 {
		return nil, NewValidationError("response_id is required")
	}

	var notification *model.RFPAwardNotification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rfp model.RFP
		err := lockForUpdate(tx).
			Where("tenant_id = ? AND id = ?", scope.TenantID, rfpID).
			First(&rfp).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}
		if rfp.Status != model.RFPStatusEvaluation && rfp.Status != model.RFPStatusSubmissionOpen {
			return NewValidationError(fmt.Sprintf(
				"rfp must be in EVALUATION or SUBMISSION_OPEN to declare an award, current status is %s", rfp.Status))
		}

		var response model.RFPResponse
		err = tx.Where("tenant_id = ? AND id = ? AND rfp_id = ?", scope.TenantID, in.ResponseID, rfpID).
			First(&response).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("response %d: %w", in.ResponseID, ErrNotFound)
			}
			return err
		}

		now := s.now()
		rfp.Status = model.RFPStatusAwarded
		rfp.AwardDecisionDate = &now
		rfp.AwardDate = &now
		rfp.AwardJustification = in.Justification
		rfp.UpdatedBy = actorID
		if err := tx.Save(&rfp).Error; err != nil {
			return err
		}

		response.EvaluationStatus = model.EvaluationStatusAwarded
		if err := tx.Save(&response).Error; err != nil {
			return err
		}

		token, err := identifier.NewToken()
		if err != nil {
			return err
		}
		notification = &model.RFPAwardNotification{
			TenantID:           scope.TenantID,
			ResponseID:         response.ID,
			NotificationType:   model.NotificationTypeWinner,
			NotificationStatus: model.NotificationStatusPending,
			AcceptRejectToken:  token,
			AwardMessage:       in.AwardMessage,
			NextSteps:          in.NextSteps,
		}
		return tx.Create(notification).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("award declared",
		zap.Uint("tenant_id", scope.TenantID),
		zap.Uint("rfp_id", rfpID),
		zap.Uint("response_id", in.ResponseID))
	return notification, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
