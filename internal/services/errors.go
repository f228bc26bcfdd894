package services

import (
	"errors"
	"fmt"

	apperrors "github.com/aetuition/testing-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrConflict         = errors.New("resource conflict")

	// Test / assignment errors
	ErrTestNotFound           = errors.New("test not found")
	ErrTestNotPublished       = errors.New("test is not published")
	ErrAssignmentNotFound     = errors.New("test assignment not found")
	ErrAssignmentCancelled    = errors.New("test assignment has been cancelled")
	ErrOutsideAdmissionWindow = errors.New("outside the admission window for this test")

	// Attempt errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAccessDenied     = errors.New("access denied to attempt")
	ErrAttemptAlreadyCompleted = errors.New("attempt already completed")
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptStartRace        = errors.New("attempt is already being started")
	ErrQuestionNotInTest       = errors.New("question does not belong to this test")

	// Result errors
	ErrResultNotFound = errors.New("result not found")
	ErrResultExists   = errors.New("result already compiled for this attempt")

	// Monitoring errors
	ErrSessionNotFound     = errors.New("live session not found")
	ErrSessionClosed       = errors.New("live session already closed")
	ErrInvalidActivityType = errors.New("unrecognized activity type")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type BusinessRuleError struct {
	Rule    string                 `json:"rule"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (bre *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule violation (%s): %s", bre.Rule, bre.Message)
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewBusinessRuleError(rule, message string, context map[string]interface{}) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrAssignmentNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrResultNotFound) ||
		errors.Is(err, ErrSessionNotFound)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInvalidActivityType) ||
		errors.Is(err, ErrQuestionNotInTest) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsBusinessRule checks if error represents a business rule violation
func IsBusinessRule(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAttemptAlreadyCompleted) ||
		errors.Is(err, ErrAttemptStartRace) ||
		errors.Is(err, ErrResultExists) ||
		errors.Is(err, ErrSessionClosed)
}

// IsForbidden checks if error represents a denied admission or access
func IsForbidden(err error) bool {
	return errors.Is(err, ErrAttemptAccessDenied) ||
		errors.Is(err, ErrOutsideAdmissionWindow) ||
		errors.Is(err, ErrAssignmentCancelled)
}

// IsInvalidState checks if error represents a resource in the wrong
// lifecycle state for the operation
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrTestNotPublished) ||
		errors.Is(err, ErrAttemptNotActive)
}
