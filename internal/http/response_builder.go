// Package http exposes the ledger as a JSON API.
//
// This file implements a small fluent builder for JSON responses and the
// mapping from domain error kinds to HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"crowdfund/internal/core"
	"crowdfund/internal/log"
)

// Kinds produced by the HTTP layer itself.
const (
	KindBadRequest      = "BAD_REQUEST"
	KindMissingIdentity = "MISSING_IDENTITY"
	KindRateLimited     = "RATE_LIMITED"
	KindNotReady        = "NOT_READY"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// JSONResponseBuilder collects status, headers and a payload and writes
// them in one go.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a builder with a default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode response","kind":"UNKNOWN"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// ErrorResponse builds an error response with an explicit status and kind.
func ErrorResponse(statusCode int, kind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: message, Kind: kind})
}

// DomainError maps err to a status code through its error kind. Unknown
// errors are reported without their message.
func DomainError(err error) *JSONResponseBuilder {
	kind := core.ErrorKind(err)
	status := StatusForKind(kind)
	msg := err.Error()
	if kind == core.KindUnknown {
		msg = "internal error"
	}
	return ErrorResponse(status, kind, msg)
}

// StatusForKind returns the HTTP status for a domain error kind.
func StatusForKind(kind string) int {
	switch kind {
	case core.KindProjectNotFound:
		return http.StatusNotFound
	case core.KindDeadlinePassed, core.KindDeadlineNotPassed,
		core.KindGoalReached, core.KindGoalNotReached,
		core.KindNothingToWithdraw, core.KindProjectSettled:
		return http.StatusConflict
	case core.KindNotOwner:
		return http.StatusForbidden
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindInsufficientBalance, core.KindInsufficientAllowance:
		return http.StatusPaymentRequired
	case core.KindTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		ErrorResponse(reqErr.status, reqErr.kind, reqErr.msg).Write(w)
		return
	}
	b := DomainError(err)
	if b.statusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err.Error(),
			log.FieldErrorKind, core.ErrorKind(err),
			log.FieldPath, r.URL.Path)
	}
	b.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}
