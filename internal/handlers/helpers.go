package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/interfaces"
)

const maxJSONBody = 1 << 20

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the {status:"error", message} envelope.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status":  "error",
		"message": message,
	})
}

// WriteStarted writes the response for a run that continues in the background.
func WriteStarted(w http.ResponseWriter, runID string) error {
	return WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"run_id": runID,
	})
}

// statusFor maps sentinel errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInvalidInput), errors.Is(err, interfaces.ErrAnalysis):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", interfaces.ErrInvalidInput, err)
	}
	return nil
}
