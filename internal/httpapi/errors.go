package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"StockPulse/internal/apperr"
)

// APIError is the JSON error body.
type APIError struct {
	StatusCode int    `json:"-"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
}

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// statusClientClosed is the de facto status for a request abandoned by the client.
const statusClientClosed = 499

var statusByKind = map[apperr.Kind]int{
	apperr.KindInvalidInput:        http.StatusBadRequest,
	apperr.KindNoData:              http.StatusNotFound,
	apperr.KindModelNotFound:       http.StatusNotFound,
	apperr.KindInsufficientHistory: http.StatusUnprocessableEntity,
	apperr.KindSourceUnavailable:   http.StatusBadGateway,
	apperr.KindInferenceError:      http.StatusBadGateway,
	apperr.KindCorruptCache:        http.StatusInternalServerError,
}

// errorFor maps a pipeline error onto an HTTP error body.
func errorFor(err error) *APIError {
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		if errors.Is(err, context.Canceled) {
			return &APIError{StatusCode: statusClientClosed, ErrorCode: "CANCELLED", Message: err.Error()}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &APIError{StatusCode: http.StatusGatewayTimeout, ErrorCode: "TIMEOUT", Message: err.Error()}
		}
		return &APIError{StatusCode: http.StatusInternalServerError, ErrorCode: "INTERNAL", Message: err.Error()}
	}
	return &APIError{StatusCode: status, ErrorCode: string(kind), Message: err.Error()}
}

func badRequest(msg string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, ErrorCode: string(apperr.KindInvalidInput), Message: msg}
}
