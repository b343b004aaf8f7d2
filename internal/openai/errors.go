package openai

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types used in the error envelope.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeAuthentication = "authentication_error"
	TypeServer         = "server_error"
)

// Error codes used in the error envelope.
const (
	CodeInvalidRequest       = "invalid_request"
	CodeMissingAuthorization = "missing_authorization"
	CodeInvalidAPIKey        = "invalid_api_key"
	CodeModelNotFound        = "model_not_found"
	CodeBackendError         = "backend_error"
	CodeInternalError        = "internal_error"
)

const backendFailureMessage = "The agent backend failed to complete the request"

// APIError is an error that knows how to render itself as an OpenAI error
// response. Err holds the underlying cause and is never sent to clients.
type APIError struct {
	Status  int
	Message string
	Type    string
	Param   string
	Code    string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Body returns the wire envelope.
func (e *APIError) Body() ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Message: e.Message,
		Type:    e.Type,
		Param:   optional(e.Param),
		Code:    optional(e.Code),
	}}
}

// ErrorDetail is the inner error object. Param and Code are null when unset.
type ErrorDetail struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// ErrorResponse is the {"error": {...}} envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// InvalidRequest reports a malformed request; param names the offending field.
func InvalidRequest(param, format string, args ...any) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf(format, args...),
		Type:    TypeInvalidRequest,
		Param:   param,
		Code:    CodeInvalidRequest,
	}
}

// Unauthorized reports a missing or rejected credential.
func Unauthorized(code, message string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: message,
		Type:    TypeAuthentication,
		Code:    code,
	}
}

// ModelNotFound reports an unknown model id.
func ModelNotFound(id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("The model '%s' does not exist", id),
		Type:    TypeInvalidRequest,
		Param:   "model",
		Code:    CodeModelNotFound,
	}
}

// BackendFailure wraps an agent backend error behind a generic message.
func BackendFailure(err error) *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Message: backendFailureMessage,
		Type:    TypeServer,
		Code:    CodeBackendError,
		Err:     err,
	}
}

// RequestError reports a transport-level problem (unknown route, wrong
// method, unsupported media type) with the given status.
func RequestError(status int, format string, args ...any) *APIError {
	return &APIError{
		Status:  status,
		Message: fmt.Sprintf(format, args...),
		Type:    TypeInvalidRequest,
	}
}

// AsAPIError returns err as an *APIError, treating anything else as an
// internal failure.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
		Type:    TypeServer,
		Code:    CodeInternalError,
		Err:     err,
	}
}

// StreamErrorDetail is the payload of the error chunk sent when the backend
// fails after a stream has started.
func StreamErrorDetail(err error) *ErrorDetail {
	msg := backendFailureMessage
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &ErrorDetail{
		Message: msg,
		Type:    TypeServer,
		Code:    optional(CodeBackendError),
	}
}
