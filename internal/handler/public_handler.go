package handler

import (
	"github.com/labstack/echo/v4"

	"tprm-service/internal/service"
	"tprm-service/prometheus"
)

// PublicHandler serves the unauthenticated vendor endpoints. The opaque token
// in the URL is the sole capability; there is no tenant or user context.
type PublicHandler struct {
	invitations *service.InvitationService
	credentials *service.CredentialService
}

func NewPublicHandler(invitations *service.InvitationService, credentials *service.CredentialService) *PublicHandler {
	return &PublicHandler{invitations: invitations, credentials: credentials}
}

// OpenInvitation handles GET /public/invitations/:token.
func (h *PublicHandler) OpenInvitation(c echo.Context) error {
	view, err := h.invitations.Open(c.Request().Context(), c.Param("token"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, view)
}

// AcknowledgeInvitation handles POST /public/invitations/:token/acknowledge.
func (h *PublicHandler) AcknowledgeInvitation(c echo.Context) error {
	invitation, err := h.invitations.Acknowledge(c.Request().Context(), c.Param("token"))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, invitation)
}

type declineRequest struct {
	Reason string `json:"reason"`
}

// DeclineInvitation handles POST /public/invitations/:token/decline.
func (h *PublicHandler) DeclineInvitation(c echo.Context) error {
	var req declineRequest
	_ = c.Bind(&req)

	invitation, err := h.invitations.Decline(c.Request().Context(), c.Param("token"), req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, invitation)
}

// SaveDraft handles PUT /public/invitations/:token/draft.
func (h *PublicHandler) SaveDraft(c echo.Context) error {
	var in service.DraftInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	response, err := h.invitations.SaveDraft(c.Request().Context(), c.Param("token"), in)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, response)
}

// SubmitResponse handles POST /public/invitations/:token/submit.
func (h *PublicHandler) SubmitResponse(c echo.Context) error {
	var in service.SubmitInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}
	in.IP = c.RealIP()
	in.UserAgent = c.Request().UserAgent()

	response, err := h.invitations.Submit(c.Request().Context(), c.Param("token"), in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordRFPOperation("public_submit")
	return created(c, response)
}

// AwardResponse handles POST /public/award-response/:token.
func (h *PublicHandler) AwardResponse(c echo.Context) error {
	var in service.AwardResponseInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := h.credentials.Respond(c.Request().Context(), c.Param("token"), in)
	if err != nil {
		return fail(c, err)
	}
	if in.Action == service.AwardActionAccept && !result.AlreadyResponded {
		prometheus.AwardAcceptsCounter.Inc()
	}
	return ok(c, result)
}
