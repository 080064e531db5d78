package llm

import (
	"fmt"
	"net/http"
)

// Error kinds reported in LLMError.Type.
const (
	ErrorTypeNetwork    = "network"
	ErrorTypeAPI        = "api"
	ErrorTypeRateLimit  = "rate_limit"
	ErrorTypeValidation = "validation"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeParse      = "parse"
)

// LLMError is a failed model call. Code carries the provider's HTTP status
// when there was one.
type LLMError struct {
	Type    string
	Message string
	Code    int
	Err     error
}

func (e *LLMError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("model %s error (status %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("model %s error: %s", e.Type, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt with a corrected prompt can help.
// Only replies the model got wrong qualify; transport and provider failures
// are returned to the caller as they are.
func (e *LLMError) Retryable() bool {
	return e.Type == ErrorTypeParse || e.Type == ErrorTypeValidation
}

func NewNetworkError(err error) *LLMError {
	return &LLMError{
		Type:    ErrorTypeNetwork,
		Message: "could not reach the model provider",
		Err:     err,
	}
}

// NewAPIError builds the error for a non-200 provider reply. A 429 is
// reported as ErrorTypeRateLimit.
func NewAPIError(code int, message string) *LLMError {
	typ := ErrorTypeAPI
	if code == http.StatusTooManyRequests {
		typ = ErrorTypeRateLimit
	}
	return &LLMError{Type: typ, Code: code, Message: message}
}

func NewValidationError(message string, err error) *LLMError {
	return &LLMError{
		Type:    ErrorTypeValidation,
		Message: "reply rejected: " + message,
		Err:     err,
	}
}

func NewTimeoutError() *LLMError {
	return &LLMError{
		Type:    ErrorTypeTimeout,
		Message: "request timed out",
	}
}

// NewParseError keeps at most 200 bytes of the unparseable reply.
func NewParseError(content string, err error) *LLMError {
	if len(content) > 200 {
		content = content[:200] + "..."
	}
	return &LLMError{
		Type:    ErrorTypeParse,
		Message: fmt.Sprintf("reply is not valid JSON: %q", content),
		Err:     err,
	}
}
