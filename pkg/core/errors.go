package core

import (
	"errors"
	"fmt"
)

// Error is the engine's typed error value.
type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Param     string    `json:"param,omitempty"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest      ErrorType = "invalid_request_error"
	ErrBaselineMissing     ErrorType = "baseline_missing_error"
	ErrInsufficientData    ErrorType = "insufficient_data_error"
	ErrSessionNotFound     ErrorType = "session_not_found_error"
	ErrParticipantNotFound ErrorType = "participant_not_found_error"
	ErrConsentRequired     ErrorType = "consent_required_error"
	ErrAuthentication      ErrorType = "authentication_error"
	ErrStorage             ErrorType = "storage_error"
	ErrCollaborator        ErrorType = "collaborator_error"
	ErrAPI                 ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error naming the
// offending parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewBaselineMissingError creates an error for scoring attempted before
// calibration. Recoverable by re-running calibration for the subject.
func NewBaselineMissingError(subject string) *Error {
	return &Error{
		Type:    ErrBaselineMissing,
		Message: fmt.Sprintf("no baseline established for subject %q", subject),
		Param:   "subject_id",
	}
}

// NewInsufficientDataError creates an error for calibration with no usable
// samples at all.
func NewInsufficientDataError(message string) *Error {
	return &Error{Type: ErrInsufficientData, Message: message}
}

// NewSessionNotFoundError creates a bad-session-reference error.
func NewSessionNotFoundError(sessionID string) *Error {
	return &Error{
		Type:    ErrSessionNotFound,
		Message: fmt.Sprintf("session %q not found", sessionID),
		Param:   "session_id",
	}
}

// NewParticipantNotFoundError creates an error for a participant the identity
// collaborator cannot resolve.
func NewParticipantNotFoundError(username string) *Error {
	return &Error{
		Type:    ErrParticipantNotFound,
		Message: fmt.Sprintf("participant %q not found", username),
		Param:   "participant",
	}
}

// NewConsentRequiredError creates a consent policy violation error. It is
// surfaced to the caller and never silently bypassed.
func NewConsentRequiredError(sessionID string) *Error {
	return &Error{
		Type:    ErrConsentRequired,
		Message: fmt.Sprintf("session %q requires consent from both parties", sessionID),
	}
}

// NewAuthenticationError creates a credential failure error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewStorageError wraps a record-store failure.
func NewStorageError(op string, underlying error) *Error {
	return &Error{
		Type:    ErrStorage,
		Message: fmt.Sprintf("%s: %v", op, underlying),
	}
}

// NewCollaboratorError wraps a failure from an external collaborator.
func NewCollaboratorError(collaborator string, underlying error) *Error {
	return &Error{
		Type:    ErrCollaborator,
		Message: fmt.Sprintf("%s: %v", collaborator, underlying),
	}
}

// NewAPIError creates a generic internal error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// IsKind reports whether err is (or wraps) a *Error of the given type.
func IsKind(err error, kind ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == kind
	}
	return false
}

// IsBaselineMissing reports whether err is a baseline-missing error.
func IsBaselineMissing(err error) bool { return IsKind(err, ErrBaselineMissing) }

// IsInsufficientData reports whether err is an insufficient-data error.
func IsInsufficientData(err error) bool { return IsKind(err, ErrInsufficientData) }

// IsSessionNotFound reports whether err is a session-not-found error.
func IsSessionNotFound(err error) bool { return IsKind(err, ErrSessionNotFound) }

// IsParticipantNotFound reports whether err is a participant-not-found error.
func IsParticipantNotFound(err error) bool { return IsKind(err, ErrParticipantNotFound) }

// IsConsentRequired reports whether err is a consent-required error.
func IsConsentRequired(err error) bool { return IsKind(err, ErrConsentRequired) }
