// Package apperr defines the failure taxonomy shared by the pipeline stages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindSourceUnavailable   Kind = "SOURCE_UNAVAILABLE"
	KindNoData              Kind = "NO_DATA"
	KindInsufficientHistory Kind = "INSUFFICIENT_HISTORY"
	KindCorruptCache        Kind = "CORRUPT_CACHE"
	KindModelNotFound       Kind = "MODEL_NOT_FOUND"
	KindInferenceError      Kind = "INFERENCE_ERROR"
	KindInvalidInput        Kind = "INVALID_INPUT"
)

// Sentinels for errors.Is. Any *AppError with the same Kind matches.
var (
	ErrSourceUnavailable   = &AppError{Kind: KindSourceUnavailable}
	ErrNoData              = &AppError{Kind: KindNoData}
	ErrInsufficientHistory = &AppError{Kind: KindInsufficientHistory}
	ErrCorruptCache        = &AppError{Kind: KindCorruptCache}
	ErrModelNotFound       = &AppError{Kind: KindModelNotFound}
	ErrInferenceError      = &AppError{Kind: KindInferenceError}
	ErrInvalidInput        = &AppError{Kind: KindInvalidInput}
)

// AppError is a typed pipeline failure.
type AppError struct {
	Kind    Kind
	Op      string
	Ticker  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Ticker != "" {
		msg += " " + e.Ticker
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *AppError of the same Kind.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an AppError.
func New(kind Kind, op, ticker, message string, cause error) *AppError {
	return &AppError{Kind: kind, Op: op, Ticker: ticker, Message: message, Cause: cause}
}

// SourceUnavailable wraps a data-source failure.
func SourceUnavailable(op, ticker string, cause error) *AppError {
	return New(KindSourceUnavailable, op, ticker, "data source unavailable", cause)
}

// NoData reports that no usable rows exist.
func NoData(op, ticker, message string) *AppError {
	return New(KindNoData, op, ticker, message, nil)
}

// InsufficientHistory reports a series shorter than the model window.
func InsufficientHistory(op, ticker string, have, need int) *AppError {
	return New(KindInsufficientHistory, op, ticker, fmt.Sprintf("have %d rows, need %d", have, need), nil)
}

// CorruptCache reports an unreadable cache file.
func CorruptCache(op, path string, cause error) *AppError {
	return New(KindCorruptCache, op, "", path, cause)
}

// ModelNotFound reports a missing model artifact.
func ModelNotFound(op, ticker, where string) *AppError {
	return New(KindModelNotFound, op, ticker, where, nil)
}

// InferenceError wraps a failed model call.
func InferenceError(op, ticker string, step int, cause error) *AppError {
	return New(KindInferenceError, op, ticker, fmt.Sprintf("step %d", step), cause)
}

// ModelUnusable reports a model artifact that exists but cannot serve
// predictions: unreadable, malformed, or shaped for a different window.
func ModelUnusable(op, ticker string, cause error) *AppError {
	return New(KindInferenceError, op, ticker, "model unusable", cause)
}

// InvalidInput reports a malformed request parameter.
func InvalidInput(op, message string) *AppError {
	return New(KindInvalidInput, op, "", message, nil)
}

// KindOf returns the Kind of the first AppError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
