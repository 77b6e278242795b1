package web

// errors.go provides unified error response handling for the web layer.
//
// Every failure leaving a handler goes through respondError, which:
//   - Logs the technical error with request and session ids
//   - Maps it to a user message and support code via core.MapError
//   - Picks the HTTP status from the error kind
//   - Renders JSON for API clients or an HTML fragment for HTMX requests

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
	"github.com/JonMunkholm/InvoiceDesk/internal/logging"
	"github.com/JonMunkholm/InvoiceDesk/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code, Kind) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Kind    string `json:"kind,omitempty"`
}

// respondError writes err with the status derived from its kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus logs the technical error server-side and returns a
// user-friendly response in the format the client asked for.
func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)
	kind := core.KindOf(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"kind", kind,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	switch {
	case isHTMX(r):
		renderErrorPartial(w, r, userMsg, statusCode)
	case wantsJSON(r):
		respondErrorJSON(w, userMsg, kind, statusCode)
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", statusCode)
	}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	code := core.MapError(err).Code
	switch {
	case errors.Is(err, core.ErrTooManyLoads):
		return http.StatusServiceUnavailable
	case code == "FILE001":
		return http.StatusRequestEntityTooLarge
	case code == "RATE001":
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrValidation):
		if code == "VAL001" || code == "VAL005" {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case errors.Is(err, core.ErrSession):
		if code == "SES002" {
			return http.StatusConflict
		}
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrEmptyHistory):
		return http.StatusConflict
	case errors.Is(err, core.ErrStorage):
		return http.StatusServiceUnavailable
	case code == "REQ001" || code == "REQ002":
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, kind string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Kind:    kind,
	})
}

// renderErrorPartial renders an HTMX-compatible error fragment.
func renderErrorPartial(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = templates.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
