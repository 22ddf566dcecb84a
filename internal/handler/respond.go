// Package handler wires the HTTP surface. Every response uses the common
// envelope {success, data, error, message, pagination}; service errors map
// onto the status taxonomy here and nowhere else.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tprm-service/internal/service"
	"tprm-service/pkg/logger"
)

// Envelope is the uniform response shape.
type Envelope struct {
	Success    bool                `json:"success"`
	Data       interface{}         `json:"data,omitempty"`
	Error      string              `json:"error,omitempty"`
	Message    string              `json:"message,omitempty"`
	Pagination *service.Pagination `json:"pagination,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

func okMessage(c echo.Context, data interface{}, message string) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

func created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

func paged(c echo.Context, data interface{}, pagination *service.Pagination) error {
	return c.JSON(http.StatusOK, Envelope{Success: true, Data: data, Pagination: pagination})
}

// fail converts a service error into the envelope with the right status.
// Unknown errors become 500 with a generic message; the detail stays in the
// logs only.
func fail(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		body := Envelope{Success: false, Error: ve.Message}
		if len(ve.Fields) > 0 {
			body.Data = map[string]interface{}{"fields": ve.Fields}
		}
		return c.JSON(http.StatusBadRequest, body)
	}

	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, Envelope{Success: false, Error: "not found"})
	case errors.Is(err, service.ErrConflict):
		return c.JSON(http.StatusConflict, Envelope{Success: false, Error: err.Error()})
	case errors.Is(err, service.ErrIdMintingExhausted):
		return c.JSON(http.StatusConflict, Envelope{Success: false, Error: "identifier minting exhausted, retry the request"})
	case errors.Is(err, service.ErrInsufficientInputs):
		return c.JSON(http.StatusBadRequest, Envelope{Success: false, Error: "at least 2 inputs must convert successfully"})
	case errors.Is(err, service.ErrUpstream):
		return c.JSON(http.StatusBadGateway, Envelope{Success: false, Error: "upstream service unavailable"})
	default:
		logger.FromContext(c).Error("request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, Envelope{Success: false, Error: "internal server error"})
	}
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, Envelope{Success: false, Error: message})
}
