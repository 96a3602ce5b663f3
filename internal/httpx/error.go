// Package httpx implements the HTTP request/response envelope used across
// the credit pipeline's external interfaces, modeled on the teacher's
// libs/handlers.AppHandler / AppError pattern: handlers return a typed error
// instead of writing the response directly, and a single ServeHTTP renders
// the {error:{code,message}} envelope and reports 5xx causes to Sentry.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sentry "github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Code is one of the error codes enumerated in spec.md §6.
type Code string

const (
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodePaymentRequired     Code = "PAYMENT_REQUIRED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeGone                Code = "GONE"
	CodeUnprocessable       Code = "UNPROCESSABLE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInternalError       Code = "INTERNAL_ERROR"
	CodeBadGateway          Code = "BAD_GATEWAY"
	CodeServiceUnavailable  Code = "SERVICE_UNAVAILABLE"
)

var statusByCode = map[Code]int{
	CodeBadRequest:         http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodePaymentRequired:    http.StatusPaymentRequired,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeGone:               http.StatusGone,
	CodeUnprocessable:      http.StatusUnprocessableEntity,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeInternalError:      http.StatusInternalServerError,
	CodeBadGateway:         http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

// AppError is the error type every handler in this repository returns.
// Cause is logged but never serialized to the client (spec §7).
type AppError struct {
	Cause   error       `json:"-"`
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *AppError) Error() string {
	msg := "httpx: " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *AppError) status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (e *AppError) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(e.status())
	_ = json.NewEncoder(w).Encode(struct {
		Error *AppError `json:"error"`
	}{e})
}

// NewError builds an AppError with no underlying cause.
func NewError(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap builds an AppError around an existing error, preserving an inner
// AppError's code/data if err already is one.
func Wrap(err error, code Code, message string) *AppError {
	var inner *AppError
	if errors.As(err, &inner) {
		if message != "" {
			message = fmt.Sprintf("%s: %s", message, inner.Message)
		} else {
			message = inner.Message
		}
		return &AppError{Cause: inner.Cause, Code: code, Message: message, Data: inner.Data}
	}
	return &AppError{Cause: err, Code: code, Message: message}
}

// ValidationError builds a BAD_REQUEST AppError carrying field-level detail.
func ValidationError(message string, fields map[string]interface{}) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Data:    map[string]interface{}{"validationErrors": fields},
	}
}

// AppHandler is an http.Handler that may short-circuit with a typed AppError.
type AppHandler func(w http.ResponseWriter, r *http.Request) *AppError

func (fn AppHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if accept == "" || strings.Contains(accept, "application/json") || strings.Contains(accept, "*/*") {
		w.Header().Set("content-type", "application/json")
	}

	e := fn(w, r)
	if e == nil {
		return
	}

	if e.status() >= 500 {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("path", r.URL.Path)
			sentry.CaptureException(e)
		})
	}

	if l := zerolog.Ctx(r.Context()); l != nil {
		l.Error().Err(e).Str("code", string(e.Code)).Msg("request failed")
	}

	e.ServeHTTP(w, r)
}

// RenderJSON writes v as a status-coded JSON response body.
func RenderJSON(w http.ResponseWriter, status int, v interface{}) *AppError {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return NewError(CodeInternalError, "failed to encode response")
	}
	return nil
}
