package handler

import (
	"github.com/labstack/echo/v4"

	"tprm-service/internal/middleware"
	"tprm-service/internal/model"
	"tprm-service/internal/service"
	"tprm-service/prometheus"
)

// RFPHandler exposes the RFP lifecycle, invitations and risk triggers.
type RFPHandler struct {
	rfps        *service.RFPService
	invitations *service.InvitationService
	risks       *service.RiskService
}

func NewRFPHandler(rfps *service.RFPService, invitations *service.InvitationService, risks *service.RiskService) *RFPHandler {
	return &RFPHandler{rfps: rfps, invitations: invitations, risks: risks}
}

// Create handles POST /rfp.
func (h *RFPHandler) Create(c echo.Context) error {
	var in service.CreateRFPInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	rfp, err := h.rfps.Create(c.Request().Context(), callerScope(c), middleware.UserID(c), in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordRFPOperation("create")
	return created(c, rfp)
}

// Update handles PUT /rfp/:id.
func (h *RFPHandler) Update(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}
	var in service.UpdateRFPInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	rfp, err := h.rfps.Update(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, rfp)
}

// Get handles GET /rfp/:id.
func (h *RFPHandler) Get(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}

	detail, err := h.rfps.Get(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, detail)
}

// List handles GET /rfp.
func (h *RFPHandler) List(c echo.Context) error {
	rows, pagination, err := h.rfps.List(c.Request().Context(), callerScope(c), service.ListRFPsInput{
		Status: c.QueryParam("status"),
		Search: c.QueryParam("search"),
		Page:   pageRequest(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return paged(c, rows, pagination)
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

// SubmitForReview handles POST /rfp/:id/submit-for-review.
func (h *RFPHandler) SubmitForReview(c echo.Context) error {
	return h.transition(c, "submit_for_review", func(scope service.Scope, actorID, id uint, _ string) (*model.RFP, error) {
		return h.rfps.SubmitForReview(c.Request().Context(), scope, actorID, id)
	})
}

// Approve handles POST /rfp/:id/approve.
func (h *RFPHandler) Approve(c echo.Context) error {
	return h.transition(c, "approve", func(scope service.Scope, actorID, id uint, _ string) (*model.RFP, error) {
		return h.rfps.Approve(c.Request().Context(), scope, actorID, id)
	})
}

// Reject handles POST /rfp/:id/reject.
func (h *RFPHandler) Reject(c echo.Context) error {
	return h.transition(c, "reject", func(scope service.Scope, actorID, id uint, reason string) (*model.RFP, error) {
		return h.rfps.Reject(c.Request().Context(), scope, actorID, id, reason)
	})
}

// Publish handles POST /rfp/:id/publish.
func (h *RFPHandler) Publish(c echo.Context) error {
	return h.transition(c, "publish", func(scope service.Scope, actorID, id uint, _ string) (*model.RFP, error) {
		return h.rfps.Publish(c.Request().Context(), scope, actorID, id)
	})
}

// OpenSubmissions handles POST /rfp/:id/open-submissions.
func (h *RFPHandler) OpenSubmissions(c echo.Context) error {
	return h.transition(c, "open_submissions", func(scope service.Scope, actorID, id uint, _ string) (*model.RFP, error) {
		return h.rfps.OpenSubmissions(c.Request().Context(), scope, actorID, id)
	})
}

// StartEvaluation handles POST /rfp/:id/start-evaluation.
func (h *RFPHandler) StartEvaluation(c echo.Context) error {
	return h.transition(c, "start_evaluation", func(scope service.Scope, actorID, id uint, _ string) (*model.RFP, error) {
		return h.rfps.StartEvaluation(c.Request().Context(), scope, actorID, id)
	})
}

// Cancel handles POST /rfp/:id/cancel.
func (h *RFPHandler) Cancel(c echo.Context) error {
	return h.transition(c, "cancel", func(scope service.Scope, actorID, id uint, reason string) (*model.RFP, error) {
		return h.rfps.Cancel(c.Request().Context(), scope, actorID, id, reason)
	})
}

// Archive handles POST /rfp/:id/archive.
func (h *RFPHandler) Archive(c echo.Context) error {
	return h.transition(c, "archive", func(scope service.Scope, actorID, id uint, _ string) (*model.RFP, error) {
		return h.rfps.Archive(c.Request().Context(), scope, actorID, id)
	})
}

func (h *RFPHandler) transition(c echo.Context, op string, fn func(scope service.Scope, actorID, id uint, reason string) (*model.RFP, error)) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}
	var req transitionRequest
	_ = c.Bind(&req)

	rfp, err := fn(callerScope(c), middleware.UserID(c), id, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordRFPOperation(op)
	return ok(c, rfp)
}

// Invite handles POST /rfp/:id/invitations.
func (h *RFPHandler) Invite(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}
	var in service.InviteInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	views, err := h.invitations.Invite(c.Request().Context(), callerScope(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordRFPOperation("invite")
	return created(c, views)
}

// ListResponses handles GET /rfp/:id/responses.
func (h *RFPHandler) ListResponses(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}

	responses, err := h.invitations.ListResponses(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, responses)
}

type matchVendorRequest struct {
	VendorID uint `json:"vendor_id"`
}

// MatchVendor handles POST /rfp/unmatched-vendors/:id/match.
func (h *RFPHandler) MatchVendor(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid unmatched vendor id")
	}
	var req matchVendorRequest
	if err := c.Bind(&req); err != nil || req.VendorID == 0 {
		return badRequest(c, "vendor_id is required")
	}

	capture, err := h.invitations.MatchVendor(c.Request().Context(), callerScope(c), id, req.VendorID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, capture)
}

// TriggerRiskAnalysis handles POST /rfp/:id/analyze-risk.
func (h *RFPHandler) TriggerRiskAnalysis(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}

	result, err := h.risks.TriggerRFPAnalysis(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RiskTriggersCounter.WithLabelValues(result.Status).Inc()
	return okMessage(c, result, result.Status)
}

// ListRisks handles GET /rfp/:id/risks.
func (h *RFPHandler) ListRisks(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid rfp id")
	}

	if _, err := h.rfps.Get(c.Request().Context(), callerScope(c), id); err != nil {
		return fail(c, err)
	}
	risks, err := h.risks.ListForEntity(c.Request().Context(), callerScope(c), model.RiskEntityRFP, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, risks)
}
