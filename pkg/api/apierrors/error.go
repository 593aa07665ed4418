// Package apierrors renders domain errors as HTTP responses.
package apierrors

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tencentblueking/bkpaas-core/pkg/domain"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// From maps an error from the operation surface to an HTTP error.
// Unrecognized errors become 500 with the code INTERNAL.
func From(err error) *echo.HTTPError {
	e, ok := domain.AsError(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{
			Code: "INTERNAL", Message: err.Error(),
		})
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindPrecondition:
		status = http.StatusConflict
	case domain.KindTimeout:
		status = http.StatusGatewayTimeout
	case domain.KindExternal:
		status = http.StatusBadGateway
	}
	return echo.NewHTTPError(status, ErrorResponse{
		Code: string(e.Code), Message: e.Message, Field: e.Field,
	}).SetInternal(err)
}

func BadRequest(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, ErrorResponse{
		Code: "BAD_REQUEST", Message: message,
	})
}

func Unauthorized(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusUnauthorized, ErrorResponse{
		Code: "UNAUTHORIZED", Message: message,
	})
}
