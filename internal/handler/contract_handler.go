package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"tprm-service/internal/middleware"
	"tprm-service/internal/model"
	"tprm-service/internal/service"
	"tprm-service/prometheus"
)

// ContractHandler exposes the contract lineage store, approvals and risk
// triggers.
type ContractHandler struct {
	contracts *service.ContractService
	approvals *service.ApprovalService
	risks     *service.RiskService
}

func NewContractHandler(contracts *service.ContractService, approvals *service.ApprovalService, risks *service.RiskService) *ContractHandler {
	return &ContractHandler{contracts: contracts, approvals: approvals, risks: risks}
}

func callerScope(c echo.Context) service.Scope {
	return service.Scope{
		TenantID: middleware.TenantID(c),
		VendorID: middleware.VendorID(c),
	}
}

func paramID(c echo.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func pageRequest(c echo.Context) service.PageRequest {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	return service.PageRequest{
		Page:     page,
		PageSize: size,
		Ordering: c.QueryParam("ordering"),
	}
}

// Create handles POST /contracts.
func (h *ContractHandler) Create(c echo.Context) error {
	var in service.CreateContractInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	contract, err := h.contracts.CreateMain(c.Request().Context(), callerScope(c), middleware.UserID(c), in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("create_main")
	return created(c, contract)
}

// Get handles GET /contracts/:id.
func (h *ContractHandler) Get(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}

	includeArchived := c.QueryParam("include_archived") == "true"
	detail, err := h.contracts.Get(c.Request().Context(), callerScope(c), id, includeArchived)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, detail)
}

// List handles GET /contracts.
func (h *ContractHandler) List(c echo.Context) error {
	var vendorID *uint
	if raw := c.QueryParam("vendor_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			v := uint(id)
			vendorID = &v
		}
	}

	rows, pagination, err := h.contracts.List(c.Request().Context(), callerScope(c), service.ListContractsInput{
		Status:          c.QueryParam("status"),
		ContractKind:    c.QueryParam("contract_kind"),
		VendorID:        vendorID,
		Search:          c.QueryParam("search"),
		IncludeArchived: c.QueryParam("include_archived") == "true",
		Page:            pageRequest(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return paged(c, rows, pagination)
}

// CreateAmendment handles POST /contracts/:id/amendments.
func (h *ContractHandler) CreateAmendment(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}
	var in service.AmendmentInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	amendment, err := h.contracts.CreateAmendment(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("create_amendment")
	return created(c, amendment)
}

// CreateSubcontract handles POST /contracts/:id/subcontracts.
func (h *ContractHandler) CreateSubcontract(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}
	var in service.SubcontractInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	subcontract, newParent, err := h.contracts.CreateSubcontract(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("create_subcontract")
	return created(c, echo.Map{"subcontract": subcontract, "new_parent_version": newParent})
}

// Archive handles POST /contracts/:id/archive.
func (h *ContractHandler) Archive(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}
	var in service.ArchiveInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	contract, err := h.contracts.Archive(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("archive")
	return ok(c, contract)
}

// Restore handles POST /contracts/:id/restore.
func (h *ContractHandler) Restore(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}

	contract, err := h.contracts.Restore(c.Request().Context(), callerScope(c), middleware.UserID(c), id)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("restore")
	return ok(c, contract)
}

// Update handles PUT /contracts/:id.
func (h *ContractHandler) Update(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}
	var in service.ContractOverrides
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	contract, err := h.contracts.Update(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("update")
	return ok(c, contract)
}

// AttachDocument handles POST /contracts/:id/document.
func (h *ContractHandler) AttachDocument(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}
	var in struct {
		S3Key string `json:"s3_key"`
	}
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	contract, err := h.contracts.AttachDocument(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in.S3Key)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, contract)
}

// Versions handles GET /contracts/:id/versions.
func (h *ContractHandler) Versions(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}

	versions, err := h.contracts.ListVersions(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, versions)
}

// Compare handles GET /contracts/:id/compare/:other.
func (h *ContractHandler) Compare(c echo.Context) error {
	baseID, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}
	targetID, valid := paramID(c, "other")
	if !valid {
		return badRequest(c, "invalid comparison target id")
	}

	comparison, err := h.contracts.Compare(c.Request().Context(), callerScope(c), baseID, targetID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, comparison)
}

// AssignApproval handles POST /contracts/:id/approvals.
func (h *ContractHandler) AssignApproval(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}
	var in service.AssignInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	approval, err := h.approvals.Assign(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	return created(c, approval)
}

// ListApprovals handles GET /contracts/:id/approvals.
func (h *ContractHandler) ListApprovals(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}

	approvals, err := h.approvals.ListForContract(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, approvals)
}

// StartApproval handles POST /approvals/:id/start.
func (h *ContractHandler) StartApproval(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid approval id")
	}

	approval, err := h.approvals.Start(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, approval)
}

// Approve handles POST /approvals/:id/approve.
func (h *ContractHandler) Approve(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid approval id")
	}
	var in service.DecisionInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	approval, err := h.approvals.Approve(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("approve")
	return ok(c, approval)
}

// RejectApproval handles POST /approvals/:id/reject.
func (h *ContractHandler) RejectApproval(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid approval id")
	}
	var in service.DecisionInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	approval, err := h.approvals.Reject(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RecordContractOperation("reject")
	return ok(c, approval)
}

// TriggerRiskAnalysis handles POST /contracts/:id/analyze-risk.
func (h *ContractHandler) TriggerRiskAnalysis(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}

	result, err := h.risks.TriggerContractAnalysis(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	prometheus.RiskTriggersCounter.WithLabelValues(result.Status).Inc()
	return okMessage(c, result, result.Status)
}

// ListRisks handles GET /contracts/:id/risks.
func (h *ContractHandler) ListRisks(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid contract id")
	}

	// The contract itself must be visible to the caller first.
	if _, err := h.contracts.Get(c.Request().Context(), callerScope(c), id, true); err != nil {
		return fail(c, err)
	}
	risks, err := h.risks.ListForEntity(c.Request().Context(), callerScope(c), model.RiskEntityContract, id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, risks)
}

// RiskSummary handles GET /contracts/risk-summary.
func (h *ContractHandler) RiskSummary(c echo.Context) error {
	summary, err := h.risks.ContractRiskSummary(c.Request().Context(), callerScope(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, summary)
}
