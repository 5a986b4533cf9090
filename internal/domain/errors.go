// Package domain provides the canonical types and errors shared by the relay.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a relay error.
type ErrorType string

const (
	// ErrorTypeValidation indicates malformed or contradictory client input.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeMissingCredential indicates no usable upstream token was found.
	ErrorTypeMissingCredential ErrorType = "missing_credential"

	// ErrorTypeUpstreamTransport indicates a network or timeout failure talking to an upstream.
	ErrorTypeUpstreamTransport ErrorType = "upstream_transport"

	// ErrorTypeUpstreamProtocol indicates a non-2xx status or an unparsable upstream body.
	ErrorTypeUpstreamProtocol ErrorType = "upstream_protocol"

	// ErrorTypeMissingReasoning indicates the reasoning upstream produced no reasoning.
	ErrorTypeMissingReasoning ErrorType = "missing_reasoning_content"

	// ErrorTypeInternal indicates a local construction failure.
	ErrorTypeInternal ErrorType = "internal"
)

// Upstream identifies which upstream an error came from.
type Upstream string

const (
	UpstreamReasoning Upstream = "deepseek"
	UpstreamSynthesis Upstream = "anthropic"
)

// APIError is the canonical error surfaced to clients, either as an HTTP
// error body or as an error frame inside a stream.
type APIError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional upstream-specific error code
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Param is the request field that caused the error (if applicable)
	Param string `json:"param,omitempty"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`

	// Upstream is set when the error originated from an upstream call
	Upstream Upstream `json:"-"`

	// RawBody carries the upstream body that could not be interpreted
	RawBody string `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	prefix := string(e.Type)
	if e.Upstream != "" {
		prefix = fmt.Sprintf("%s[%s]", e.Type, e.Upstream)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", prefix, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeMissingCredential:
		return http.StatusUnauthorized
	case ErrorTypeUpstreamTransport, ErrorTypeUpstreamProtocol, ErrorTypeMissingReasoning:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *APIError) WithParam(param string) *APIError {
	e.Param = param
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// WithUpstream records which upstream produced the error.
func (e *APIError) WithUpstream(u Upstream) *APIError {
	e.Upstream = u
	return e
}

// WithRawBody attaches the offending upstream body for diagnosis.
func (e *APIError) WithRawBody(body []byte) *APIError {
	e.RawBody = string(body)
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *APIError {
	return NewAPIError(ErrorTypeValidation, message)
}

// ErrMissingCredential creates a missing credential error.
func ErrMissingCredential(message string) *APIError {
	return NewAPIError(ErrorTypeMissingCredential, message)
}

// ErrUpstreamTransport creates a transport error for the given upstream.
func ErrUpstreamTransport(u Upstream, err error) *APIError {
	return NewAPIError(ErrorTypeUpstreamTransport, fmt.Sprintf("request to %s failed: %v", u, err)).
		WithUpstream(u)
}

// ErrUpstreamProtocol creates a protocol error for the given upstream.
func ErrUpstreamProtocol(u Upstream, message string) *APIError {
	return NewAPIError(ErrorTypeUpstreamProtocol, message).WithUpstream(u)
}

// ErrMissingReasoning creates the error returned when no reasoning was produced.
func ErrMissingReasoning() *APIError {
	return NewAPIError(ErrorTypeMissingReasoning, "reasoning upstream returned no reasoning content").
		WithUpstream(UpstreamReasoning)
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *APIError {
	return NewAPIError(ErrorTypeInternal, message)
}

// AsAPIError converts any error to an *APIError. Errors that are not
// already canonical become internal errors.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal(err.Error())
}
