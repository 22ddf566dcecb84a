package handler

import (
	"github.com/labstack/echo/v4"

	"tprm-service/internal/middleware"
	"tprm-service/internal/service"
)

// VendorHandler exposes the vendor registry.
type VendorHandler struct {
	vendors *service.VendorService
}

func NewVendorHandler(vendors *service.VendorService) *VendorHandler {
	return &VendorHandler{vendors: vendors}
}

// Create handles POST /vendors.
func (h *VendorHandler) Create(c echo.Context) error {
	var in service.CreateVendorInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	vendor, err := h.vendors.Create(c.Request().Context(), callerScope(c), middleware.UserID(c), in)
	if err != nil {
		return fail(c, err)
	}
	return created(c, vendor)
}

// Update handles PUT /vendors/:id.
func (h *VendorHandler) Update(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid vendor id")
	}
	var in service.UpdateVendorInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	vendor, err := h.vendors.Update(c.Request().Context(), callerScope(c), middleware.UserID(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, vendor)
}

type vendorStatusRequest struct {
	Status     string `json:"status"`
	AdminReset bool   `json:"admin_reset"`
}

// TransitionStatus handles PUT /vendors/:id/status.
func (h *VendorHandler) TransitionStatus(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid vendor id")
	}
	var req vendorStatusRequest
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return badRequest(c, "status is required")
	}

	vendor, err := h.vendors.TransitionStatus(c.Request().Context(), callerScope(c), middleware.UserID(c), id, req.Status, req.AdminReset)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, vendor)
}

// Get handles GET /vendors/:id.
func (h *VendorHandler) Get(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid vendor id")
	}

	vendor, contacts, err := h.vendors.Get(c.Request().Context(), callerScope(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, echo.Map{"vendor": vendor, "contacts": contacts})
}

// List handles GET /vendors.
func (h *VendorHandler) List(c echo.Context) error {
	rows, pagination, err := h.vendors.List(c.Request().Context(), callerScope(c), service.ListVendorsInput{
		Status:    c.QueryParam("status"),
		RiskLevel: c.QueryParam("risk_level"),
		Search:    c.QueryParam("search"),
		Page:      pageRequest(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return paged(c, rows, pagination)
}

// AddContact handles POST /vendors/:id/contacts.
func (h *VendorHandler) AddContact(c echo.Context) error {
	id, valid := paramID(c, "id")
	if !valid {
		return badRequest(c, "invalid vendor id")
	}
	var in service.ContactInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	contact, err := h.vendors.AddContact(c.Request().Context(), callerScope(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	return created(c, contact)
}
