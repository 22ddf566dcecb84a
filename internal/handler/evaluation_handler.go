package handler

import (
	"github.com/labstack/echo/v4"

	"tprm-service/internal/middleware"
	"tprm-service/internal/service"
	"tprm-service/prometheus"
)

// EvaluationHandler exposes evaluator assignment, scoring, committee
// consensus and award declaration.
type EvaluationHandler struct {
	evaluations *service.EvaluationService
	credentials *service.CredentialService
	rfps        *service.RFPService
}

func NewEvaluationHandler(evaluations *service.EvaluationService, credentials *service.CredentialService, rfps *service.RFPService) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations, credentials: credentials, rfps: rfps}
}

// BulkAssign handles POST /rfp/evaluators/assign.
func (h *EvaluationHandler) BulkAssign(c echo.Context) error {
	var in service.BulkAssignInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.evaluations.BulkAssign(c.Request().Context(), callerScope(c), in)
	if err != nil {
		return fail(c, err)
	}
	return created(c, result)
}

type assignmentStatusRequest struct {
	Status string `json:"status"`
}

// UpdateAssignmentStatus handles PUT /rfp/assignments/:id/status.
func (h *EvaluationHandler) UpdateAssignmentStatus(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid assignment id")
	}
	var req assignmentStatusRequest
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return badRequest(c, "status is required")
	}

	assignment, err := h.evaluations.UpdateAssignmentStatus(c.Request().Context(), callerScope(c), id, req.Status)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, assignment)
}

type saveScoresRequest struct {
	Scores []service.ScoreInput `json:"scores"`
}

// SaveScores handles POST /rfp/responses/:id/scores.
func (h *EvaluationHandler) SaveScores(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid response id")
	}
	var req saveScoresRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	response, err := h.evaluations.SaveScores(c.Request().Context(), callerScope(c), middleware.UserID(c), id, req.Scores)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordRFPOperation("score")
	return ok(c, response)
}

// ResponseAggregate handles GET /rfp/responses/:id/aggregate.
func (h *EvaluationHandler) ResponseAggregate(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid response id")
	}

	view, err := h.evaluations.ResponseAggregate(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, view)
}

type committeeRequest struct {
	MemberIDs []uint `json:"member_ids"`
	ChairID   *uint  `json:"chair_id"`
}

// SetCommittee handles PUT /rfp/:id/committee.
func (h *EvaluationHandler) SetCommittee(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}
	var req committeeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	members, err := h.evaluations.SetCommittee(c.Request().Context(), callerScope(c), id, req.MemberIDs, req.ChairID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, members)
}

type finalEvaluationRequest struct {
	Rankings []service.FinalRankingInput `json:"rankings"`
}

// SubmitFinalEvaluation handles POST /rfp/:id/final-evaluation.
func (h *EvaluationHandler) SubmitFinalEvaluation(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}
	var req finalEvaluationRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	err := h.evaluations.SubmitFinalEvaluation(c.Request().Context(), callerScope(c), id, middleware.UserID(c), req.Rankings)
	if err != nil {
		return fail(c, err)
	}
	return okMessage(c, nil, "final evaluation recorded")
}

// ConsensusRanking handles GET /rfp/:id/consensus-ranking.
func (h *EvaluationHandler) ConsensusRanking(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}

	entries, err := h.evaluations.ConsensusRanking(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, entries)
}

// DeclareAward handles POST /rfp/:id/award.
func (h *EvaluationHandler) DeclareAward(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}
	var in service.AwardInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	notification, err := h.evaluations.DeclareAward(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordRFPOperation("award")

	// Winner notification email is a side channel; log-only on failure.
	detail, detailErr := h.rfps.Get(c.Request().Context(), callerScope(c), id)
	if detailErr == nil {
		_ = h.credentials.NotifyWinner(c.Request().Context(), callerScope(c), notification.ID, detail.RFP.Title)
	}
	return created(c, notification)
}
