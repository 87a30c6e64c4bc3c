package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrAlreadySubmittedToday = errors.New("survey already submitted today")
	ErrSurveyNotReady        = errors.New("survey not ready to submit")
	ErrPredictorUnavailable  = errors.New("delay predictor unavailable")
)
