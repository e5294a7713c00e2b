// Package httpjson writes JSON responses, including the error envelope every
// failure path of the server answers with.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the payload under "error". Stack is only set in development.
type ErrorBody struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ErrorEnvelope is {"error": {...}}.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// Write sends v as the response body with the given status.
func Write(w http.ResponseWriter, status int, v any) error {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Error sends {"error":{"message":msg}}.
func Error(w http.ResponseWriter, status int, msg string) error {
	return Write(w, status, ErrorEnvelope{Error: ErrorBody{Message: msg}})
}
