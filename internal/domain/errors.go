package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidID               = errors.New("invalid id")
	ErrInvalidTitle            = errors.New("invalid title")
	ErrInvalidTaskStatus       = errors.New("invalid task status")
	ErrInvalidSiteStatus       = errors.New("invalid site status")
	ErrInvalidProductivity     = errors.New("invalid task productivity")
	ErrInvalidSiteClosedReason = errors.New("invalid site closed reason")
	ErrInvalidDelayReason      = errors.New("invalid delay reason")
	ErrUnknownTask             = errors.New("unknown task")
	ErrSurveyIncomplete        = errors.New("survey incomplete")
	ErrSessionFinished         = errors.New("survey session finished")
	ErrInvalidStep             = errors.New("invalid survey step")
)

// FieldError names one field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError groups field failures under a sentinel cause.
type ValidationError struct {
	Cause  error
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Fields) == 0 {
		return e.Cause.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", e.Cause, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
