package api

import (
	"errors"
	"net/http"

	"github.com/aether-labs/aether/internal/core"
)

// httpStatusFor maps an error to a status code and a machine-readable code.
func httpStatusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, core.CodeDocumentTooLarge
	case core.IsSessionNotFound(err):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case core.IsUnsupportedInput(err):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_INPUT"
	}

	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return http.StatusInternalServerError, ""
	}

	switch domErr.Code {
	case core.CodeDocumentTooLarge:
		return http.StatusRequestEntityTooLarge, domErr.Code
	case core.CodeDuplicateSession:
		return http.StatusConflict, domErr.Code
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusBadRequest, domErr.Code
	case core.ErrCatNotFound:
		return http.StatusNotFound, domErr.Code
	case core.ErrCatState:
		return http.StatusConflict, domErr.Code
	case core.ErrCatAuth:
		return http.StatusUnauthorized, domErr.Code
	case core.ErrCatRateLimit:
		return http.StatusTooManyRequests, domErr.Code
	case core.ErrCatTimeout:
		return http.StatusGatewayTimeout, domErr.Code
	case core.ErrCatUnsupported:
		return http.StatusUnsupportedMediaType, domErr.Code
	default:
		return http.StatusInternalServerError, domErr.Code
	}
}

// respondErr writes err with its mapped status. Internal errors are logged
// and replaced by a generic message.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status, code := httpStatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
		msg = "internal server error"
	}
	s.respondError(w, status, code, msg)
}
