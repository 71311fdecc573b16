package llm

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/ternarybob/dashnote/internal/models"
)

// statusCode extracts the HTTP status from the SDK error types
func statusCode(err error) int {
	var claudeErr *anthropic.Error
	if errors.As(err, &claudeErr) {
		return claudeErr.StatusCode
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var geminiErr genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}
	return 0
}

// IsPayloadTooLarge detects a 413 or a "request too large" rejection
func IsPayloadTooLarge(err error) bool {
	if err == nil {
		return false
	}
	if statusCode(err) == http.StatusRequestEntityTooLarge {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "413") ||
		strings.Contains(errStr, "request too large") ||
		strings.Contains(errStr, "request_too_large") ||
		strings.Contains(errStr, "payload too large")
}

// Classify wraps a provider failure as a CollaboratorError for the named
// collaborator. Errors that already are CollaboratorErrors keep their kind.
func Classify(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := models.AsCollaboratorError(err); ok {
		if ce.Collaborator == "" {
			ce.Collaborator = collaborator
		}
		return ce
	}

	kind := models.CollaboratorService
	switch {
	case IsPayloadTooLarge(err):
		kind = models.CollaboratorPayloadTooLarge
	case errors.Is(err, ErrNoUserMessage):
		kind = models.CollaboratorEncoding
	}
	return &models.CollaboratorError{Collaborator: collaborator, Kind: kind, Err: err}
}
