// Package codec renders relay results and errors in the OpenAI chat
// completions wire format.
package codec

import (
	"encoding/json"
	"net/http"

	"github.com/tjfontaine/reasoning-relay/internal/domain"
)

// ErrorObject is the OpenAI error payload.
type ErrorObject struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// ErrorBody is the top-level OpenAI error response.
type ErrorBody struct {
	Error ErrorObject `json:"error"`
}

// ErrorResponse is a formatted error ready to write.
type ErrorResponse struct {
	StatusCode int
	Body       []byte
}

// ToCanonicalError converts any error to a domain.APIError.
func ToCanonicalError(err error) *domain.APIError {
	return domain.AsAPIError(err)
}

func openAIErrorType(t domain.ErrorType) string {
	switch t {
	case domain.ErrorTypeValidation:
		return "invalid_request_error"
	case domain.ErrorTypeMissingCredential:
		return "authentication_error"
	case domain.ErrorTypeUpstreamTransport, domain.ErrorTypeUpstreamProtocol, domain.ErrorTypeMissingReasoning:
		return "upstream_error"
	default:
		return "server_error"
	}
}

// NewErrorObject builds the OpenAI error payload for err. The code is the
// upstream's own error code when known, otherwise the canonical error type.
func NewErrorObject(err error) ErrorObject {
	apiErr := ToCanonicalError(err)

	code := apiErr.Code
	if code == "" {
		code = string(apiErr.Type)
	}
	obj := ErrorObject{
		Message: apiErr.Message,
		Type:    openAIErrorType(apiErr.Type),
		Code:    &code,
	}
	if apiErr.Param != "" {
		param := apiErr.Param
		obj.Param = &param
	}
	return obj
}

// FormatError formats err as an OpenAI API error response.
func FormatError(err error) *ErrorResponse {
	apiErr := ToCanonicalError(err)
	body, _ := json.Marshal(ErrorBody{Error: NewErrorObject(apiErr)})
	return &ErrorResponse{
		StatusCode: apiErr.HTTPStatusCode(),
		Body:       body,
	}
}

// WriteError writes err as an OpenAI API error response.
func WriteError(w http.ResponseWriter, err error) {
	resp := FormatError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
