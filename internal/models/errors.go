package models

import (
	"errors"
	"fmt"
)

// ErrNoNumericData is returned when a table has no usable numeric column
var ErrNoNumericData = errors.New("no numeric data")

// InputErrorKind classifies rejected uploads and tables
type InputErrorKind string

const (
	InputUnsupported    InputErrorKind = "unsupported"
	InputUnreadable     InputErrorKind = "unreadable"
	InputEmpty          InputErrorKind = "empty"
	InputColumnCount    InputErrorKind = "column_count"
	InputAmbiguousRoles InputErrorKind = "ambiguous_roles"
	InputTooLarge       InputErrorKind = "too_large"
	InputNoNumeric      InputErrorKind = "no_numeric"
)

// InputError is reported to the user as-is and stops the pipeline before
// analysis begins.
type InputError struct {
	Kind   InputErrorKind
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	return e.Reason
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// NewInputError creates an InputError with a formatted reason
func NewInputError(kind InputErrorKind, format string, args ...interface{}) *InputError {
	return &InputError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// AsInputError unwraps err to an InputError when it is one
func AsInputError(err error) (*InputError, bool) {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// CollaboratorErrorKind classifies failures of external analysis services
type CollaboratorErrorKind string

const (
	CollaboratorEncoding        CollaboratorErrorKind = "encoding"
	CollaboratorPayloadTooLarge CollaboratorErrorKind = "payload_too_large"
	CollaboratorService         CollaboratorErrorKind = "service"
	CollaboratorParse           CollaboratorErrorKind = "parse"
)

// CollaboratorError wraps a failed call to a vision or text service.
// It is downgraded to a FeatureSet error marker and never reaches the user
// as a raw message.
type CollaboratorError struct {
	Collaborator string
	Kind         CollaboratorErrorKind
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Collaborator, e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// UserMessage returns the short sentence shown in place of the raw error
func (e *CollaboratorError) UserMessage() string {
	switch e.Kind {
	case CollaboratorEncoding:
		return "The uploaded file could not be read."
	case CollaboratorPayloadTooLarge:
		return "The data or image is too large to analyze. Please reduce the file size."
	case CollaboratorParse:
		return "The analysis service returned an unreadable result."
	default:
		return "The analysis service is currently unavailable."
	}
}

// AsCollaboratorError unwraps err to a CollaboratorError when it is one
func AsCollaboratorError(err error) (*CollaboratorError, bool) {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsPayloadTooLarge reports whether err is a payload-too-large collaborator failure
func IsPayloadTooLarge(err error) bool {
	ce, ok := AsCollaboratorError(err)
	return ok && ce.Kind == CollaboratorPayloadTooLarge
}
