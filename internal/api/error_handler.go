package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/api/handler"
	"github.com/medora/clinic-core/internal/core/domain"
	"github.com/medora/clinic-core/pkg/logger"
)

// Stable error codes returned in the "code" field.
const (
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountLocked       = "ACCOUNT_LOCKED"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_ERROR"
	CodeConflict            = "CONFLICT"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL"
)

// errorMapping binds a sentinel to its response. Order matters:
// ErrRefreshTokenExpired also matches ErrInvalidRefreshToken.
var errorMapping = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"},
	{domain.ErrAccountLocked, http.StatusUnauthorized, CodeAccountLocked, "account temporarily locked"},
	{domain.ErrTokenExpired, http.StatusUnauthorized, CodeTokenExpired, "access token expired"},
	{domain.ErrTokenInvalid, http.StatusUnauthorized, CodeTokenInvalid, "invalid access token"},
	{domain.ErrRefreshTokenExpired, http.StatusUnauthorized, CodeTokenExpired, "refresh token expired"},
	{domain.ErrInvalidRefreshToken, http.StatusUnauthorized, CodeInvalidRefreshToken, "invalid refresh token"},
	{domain.ErrEmailNotVerified, http.StatusForbidden, CodeEmailNotVerified, "email not verified"},
	{domain.ErrForbidden, http.StatusForbidden, CodeForbidden, "access forbidden"},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound, "resource not found"},
	{domain.ErrConflict, http.StatusConflict, CodeConflict, "resource already exists"},
	{domain.ErrInvalidOneTimeToken, http.StatusBadRequest, CodeInvalidToken, "invalid or expired token"},
	{domain.ErrInvalidRole, http.StatusBadRequest, CodeValidation, "invalid role"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status and stable code.
//   - Logs unexpected errors internally without leaking details to the client,
//     unless exposeDetail is set (development only).
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<CODE>"}.
func NewHTTPErrorHandler(log zerolog.Logger, exposeDetail bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err, log, c, exposeDetail)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context, exposeDetail bool) (int, handler.ErrorResponse) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, handler.ErrorResponse{Error: ve.Msg, Code: CodeValidation}
	}

	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, handler.ErrorResponse{Error: m.msg, Code: m.code}
		}
	}

	// Echo's own errors (router 404/405, body limit, rate limiter).
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		return he.Code, handler.ErrorResponse{Error: fmt.Sprintf("%v", he.Message), Code: codeForStatus(he.Code)}
	}

	// Unexpected error: log the real cause, return a generic message.
	reqLog := logger.FromContext(c.Request().Context(), log)
	reqLog.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	body := handler.ErrorResponse{Error: "internal server error", Code: CodeInternal}
	if exposeDetail {
		body.Detail = err.Error()
	}
	return http.StatusInternalServerError, body
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeTokenInvalid
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
