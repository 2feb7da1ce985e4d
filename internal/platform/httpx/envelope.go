// Package httpx writes the {success, message, ...} JSON envelope returned by every endpoint.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/loomhouse/api/internal/platform/requestctx"
)

// ActionHeader echoes the dispatched action so middleware can label requests whose action
// arrived in a POST body.
const ActionHeader = "X-Action"

// Error is a failed response: a stable machine-readable code plus a human message.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

// NewError builds an Error; a zero status means 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithDetails attaches extra payload keys to the error envelope.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// WriteError writes {success:false, message, error, requestId?, traceId?}.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	payload := make(map[string]any, len(err.Details)+5)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["success"] = false
	payload["message"] = err.Message
	payload["error"] = err.Code
	if id := sanitize(middleware.GetReqID(ctx), 80); id != "" {
		payload["requestId"] = id
	}
	if id := sanitize(requestctx.TraceID(ctx), 64); id != "" {
		payload["traceId"] = id
	}
	writeJSON(w, status, payload)
}

// WriteSuccess writes {success:true, message?, ...payload}.
func WriteSuccess(w http.ResponseWriter, status int, message string, payload map[string]any) {
	if status == 0 {
		status = http.StatusOK
	}
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true
	if message != "" {
		body["message"] = message
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sanitize(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
