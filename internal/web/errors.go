package web

// errors.go maps errors to JSON responses.
//
// The technical error is logged with the request ID; the client gets the
// user-facing message and support code from core.MapError.

import (
	"net/http"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/trigger"
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, r, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// triggerStatus is the HTTP status for a report. Every non-fatal outcome,
// including a no-op, is a 200 so storage notifiers do not redeliver.
func triggerStatus(report trigger.Report) int {
	switch {
	case report.Busy():
		return http.StatusServiceUnavailable
	case report.Status == core.StatusFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
