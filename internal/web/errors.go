package web

// errors.go provides unified error response handling for the API.
//
// Every failed request is logged with its technical error and request id,
// and answered with the user message from core.MapError. The HTTP status
// comes from the error's identity, not its text.

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/catalog-importer/internal/core"
	"github.com/JonMunkholm/catalog-importer/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code,omitempty"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	writeJSONStatus(w, status, ErrorResponse{
		Error:   technicalSummary(err, status),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		unsupported *core.UnsupportedFormatError
		parseErr    *core.ParseError
		connErr     *core.ConnectorError
	)

	switch {
	case errors.Is(err, core.ErrCatalogNotFound),
		errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrSupplierNotFound):
		return http.StatusNotFound

	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, core.ErrCatalogNotPending),
		errors.Is(err, core.ErrJobFinished),
		errors.Is(err, core.ErrSchemaPending):
		return http.StatusConflict

	case errors.Is(err, core.ErrNoFile),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, core.ErrNoFieldMappings),
		errors.Is(err, core.ErrInvalidMapping),
		errors.Is(err, core.ErrInvalidSupplier),
		errors.Is(err, core.ErrSupplierInactive),
		errors.As(err, &parseErr):
		return http.StatusBadRequest

	case errors.Is(err, core.ErrBusy):
		return http.StatusServiceUnavailable

	case errors.As(err, &connErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// technicalSummary exposes the error text for client errors only; server
// errors can carry connection strings or SQL.
func technicalSummary(err error, status int) string {
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		return http.StatusText(status)
	}
	return err.Error()
}
