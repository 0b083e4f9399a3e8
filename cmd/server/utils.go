package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/caretta-labs/trackserver"
)

// APIResponse is the envelope every endpoint responds with (§6: "4xx on
// parse/validation failures with {message}; 5xx on storage failures with the
// same envelope").
type APIResponse struct {
	Message string `json:"message,omitempty"`
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to the status code its TrackerError.Kind implies (§7)
// and writes the error envelope. Errors that aren't a *TrackerError are
// treated as unexpected failures and surfaced as 500 with a sanitised
// message, never the raw error text.
func writeError(w http.ResponseWriter, err error) {
	var te *trackserver.TrackerError
	if errors.As(err, &te) {
		writeJSON(w, statusCodeForKind(te.Kind), APIResponse{Message: te.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIResponse{Message: "internal server error"})
}

func statusCodeForKind(kind trackserver.ErrorKind) int {
	switch kind {
	case trackserver.ErrInvalidParameter:
		return http.StatusBadRequest
	case trackserver.ErrNotFound:
		return http.StatusNotFound
	case trackserver.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// readJSONBody decodes the request body into v, rejecting unknown fields so
// that a malformed request is caught at the boundary rather than silently
// dropping data.
func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
