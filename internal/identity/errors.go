package identity

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ProviderError is returned when an IAM endpoint answers with a non-2xx status.
type ProviderError struct {
	StatusCode int
	// Code is the provider error code (e.g. BXNIM0415E or invalid_grant), if any.
	Code string
	// Detail is the provider supplied message, if any.
	Detail string
}

func (e *ProviderError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("endpoint returned HTTP %d", e.StatusCode)
	}
	if e.Code == "" {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// TransportError wraps network level failures talking to an IAM endpoint.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// errorBody covers both the IAM error shape and the RFC 6749 one.
type errorBody struct {
	ErrorCode        string `json:"errorCode"`
	ErrorMessage     string `json:"errorMessage"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// newProviderError maps a failed response body to a ProviderError.
// Unparseable bodies produce the generic status message.
func newProviderError(status int, body []byte) *ProviderError {
	pe := &ProviderError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return pe
	}

	switch {
	case eb.ErrorMessage != "":
		pe.Code, pe.Detail = eb.ErrorCode, eb.ErrorMessage
	case eb.ErrorDescription != "":
		pe.Code, pe.Detail = eb.Error, eb.ErrorDescription
	case eb.Error != "":
		pe.Detail = eb.Error
	}
	return pe
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
