package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sain-invites/sibc-dashboard/internal/logger"
	"github.com/sain-invites/sibc-dashboard/internal/validation"
)

// Error labels written in the "error" field.
const (
	errInvalidParameter = "Invalid parameter"
	errInternal         = "Internal server error"
)

type fieldErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type internalErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondInvalidParam writes the 400 for a rejected parameter. Errors that
// are not field errors are reported against no particular field.
func respondInvalidParam(w http.ResponseWriter, err error) {
	resp := fieldErrorResponse{Error: errInvalidParameter, Message: err.Error()}
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		resp.Message = fe.Message
		resp.Field = fe.Field
	}
	respondJSON(w, http.StatusBadRequest, resp)
}

// respondInternal writes a 500. The cause is only exposed in development.
func respondInternal(w http.ResponseWriter, err error, development bool) {
	resp := internalErrorResponse{Error: errInternal}
	if development && err != nil {
		resp.Message = err.Error()
	}
	respondJSON(w, http.StatusInternalServerError, resp)
}
