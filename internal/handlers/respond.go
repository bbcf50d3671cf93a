package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	TraceID string         `json:"traceId"`
	Details map[string]any `json:"details,omitempty"`
}

func errorJSON(c echo.Context, status int, code, message string, details map[string]any) error {
	return c.JSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		TraceID: traceID(c),
		Details: details,
	})
}

func traceID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func badRequest(c echo.Context, message string) error {
	return errorJSON(c, http.StatusBadRequest, ErrCodeBadRequest, message, nil)
}

func unauthorized(c echo.Context) error {
	return errorJSON(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials", nil)
}

func forbidden(c echo.Context) error {
	return errorJSON(c, http.StatusForbidden, ErrCodeForbidden, "access denied", nil)
}

func notFound(c echo.Context, message string, details map[string]any) error {
	return errorJSON(c, http.StatusNotFound, ErrCodeNotFound, message, details)
}

func conflict(c echo.Context, message string, details map[string]any) error {
	return errorJSON(c, http.StatusConflict, ErrCodeConflict, message, details)
}

func serverError(c echo.Context) error {
	return errorJSON(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", nil)
}
