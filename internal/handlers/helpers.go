package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/interfaces"
	"github.com/ternarybob/dashnote/internal/models"
)

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

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps a service error to a status code. Only input
// errors reach the client verbatim.
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, err error) {
	if ie, ok := models.AsInputError(err); ok {
		WriteError(w, http.StatusBadRequest, ie.Reason)
		return
	}
	if errors.Is(err, interfaces.ErrSessionNotFound) {
		WriteError(w, http.StatusNotFound, "Session not found")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, http.StatusGatewayTimeout, "The analysis took too long. Please try again.")
		return
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug().Err(err).Msg("Request cancelled")
		return
	}

	logger.Error().Err(err).Msg("Request failed")
	WriteError(w, http.StatusInternalServerError, "Something went wrong while processing the request.")
}
