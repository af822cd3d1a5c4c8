package web

// errors.go provides unified error response handling for the API surface.
// The full technical error is logged server-side with the request ID for
// correlation; the client receives a sanitized JSON body.

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse is the JSON structure of API error responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// respondError logs err with request context and writes a sanitized JSON
// error body. The message is what the client sees; err never leaves the
// server.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, message string, statusCode int) {
	s.log.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err,
		"request_id", chimw.GetReqID(r.Context()),
	)

	s.writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	})
}

// writeJSON encodes v as JSON. Encoding errors are logged; headers are
// already sent at that point.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}
