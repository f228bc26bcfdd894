package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("activity_type", "must be a recognized proctoring activity type", "telepathy")

	if err.Field != "activity_type" {
		t.Errorf("Expected field to be 'activity_type', got '%s'", err.Field)
	}
	if err.Value != "telepathy" {
		t.Errorf("Expected value to be 'telepathy', got '%v'", err.Value)
	}

	expected := "validation error on field 'activity_type': must be a recognized proctoring activity type"
	if err.Error() != expected {
		t.Errorf("Expected error message to be '%s', got '%s'", expected, err.Error())
	}
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	if errs.Error() != "validation failed" {
		t.Errorf("Expected 'validation failed' for empty errors, got '%s'", errs.Error())
	}

	errs = append(errs, *NewValidationError("test_id", "is required", nil))
	expected := "validation failed: test_id is required"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for single error, got '%s'", expected, errs.Error())
	}

	errs = append(errs, *NewValidationError("progress_percentage", "must be at most 100", 140))
	expected = "validation failed: 2 field errors"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for multiple errors, got '%s'", expected, errs.Error())
	}
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("question_id", "is required", "required", nil)

	if err.Rule != "required" {
		t.Errorf("Expected rule to be 'required', got '%s'", err.Rule)
	}
	if err.Field != "question_id" {
		t.Errorf("Expected field to be 'question_id', got '%s'", err.Field)
	}
}

func TestToValidationErrors(t *testing.T) {
	type heartbeat struct {
		CurrentQuestion    int `validate:"min=0"`
		ProgressPercentage int `validate:"min=0,max=100"`
	}

	err := validator.New().Struct(heartbeat{CurrentQuestion: -1, ProgressPercentage: 140})
	if err == nil {
		t.Fatal("Expected validation to fail")
	}

	converted := ToValidationErrors(err)
	if len(converted) != 2 {
		t.Fatalf("Expected 2 converted errors, got %d", len(converted))
	}

	if converted[0].Rule != "min" {
		t.Errorf("Expected first rule to be 'min', got '%s'", converted[0].Rule)
	}
	if !strings.Contains(converted[0].Message, "at least 0") {
		t.Errorf("Expected min message, got '%s'", converted[0].Message)
	}
	if converted[1].Rule != "max" {
		t.Errorf("Expected second rule to be 'max', got '%s'", converted[1].Rule)
	}
}

func TestToValidationErrors_NonValidatorError(t *testing.T) {
	converted := ToValidationErrors(errors.New("connection refused"))
	if converted != nil {
		t.Errorf("Expected nil for non-validator error, got %v", converted)
	}
}
