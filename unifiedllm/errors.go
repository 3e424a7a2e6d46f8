package unifiedllm

import (
	"context"
	"errors"
	"fmt"
)

// SDKError is the base of every error this package returns.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *SDKError) Unwrap() error { return e.Cause }

// ProviderError is a failure reported by the provider's API.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64 // seconds, from the provider when it sends one
	Raw        map[string]interface{}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Temporary reports whether the request may succeed if sent again.
func (e *ProviderError) Temporary() bool { return e.Retryable }

// Provider failures by class. The request itself is at fault for the
// permanent ones; resending it unchanged cannot help.
type (
	AuthenticationError struct{ ProviderError }
	AccessDeniedError   struct{ ProviderError }
	NotFoundError       struct{ ProviderError }
	InvalidRequestError struct{ ProviderError }
	ContentFilterError  struct{ ProviderError }
	ContextLengthError  struct{ ProviderError }
	QuotaExceededError  struct{ ProviderError }
	RateLimitError      struct{ ProviderError }
	ServerError         struct{ ProviderError }
)

func (*AuthenticationError) Temporary() bool { return false }
func (*AccessDeniedError) Temporary() bool   { return false }
func (*NotFoundError) Temporary() bool       { return false }
func (*InvalidRequestError) Temporary() bool { return false }
func (*ContentFilterError) Temporary() bool  { return false }
func (*ContextLengthError) Temporary() bool  { return false }
func (*QuotaExceededError) Temporary() bool  { return false }
func (*RateLimitError) Temporary() bool      { return true }
func (*ServerError) Temporary() bool         { return true }

// Failures that happen on this side of the wire.
type (
	RequestTimeoutError struct{ SDKError }
	AbortError          struct{ SDKError }
	NetworkError        struct{ SDKError }
	StreamErrorType     struct{ SDKError }
	ConfigurationError  struct{ SDKError }
)

func (*RequestTimeoutError) Temporary() bool { return true }
func (*NetworkError) Temporary() bool        { return true }
func (*StreamErrorType) Temporary() bool     { return true }
func (*AbortError) Temporary() bool          { return false }
func (*ConfigurationError) Temporary() bool  { return false }

var statusClasses = map[int]func(ProviderError) error{
	400: func(pe ProviderError) error { return &InvalidRequestError{pe} },
	401: func(pe ProviderError) error { return &AuthenticationError{pe} },
	402: func(pe ProviderError) error { return &QuotaExceededError{pe} },
	403: func(pe ProviderError) error { return &AccessDeniedError{pe} },
	404: func(pe ProviderError) error { return &NotFoundError{pe} },
	413: func(pe ProviderError) error { return &ContextLengthError{pe} },
	422: func(pe ProviderError) error { return &InvalidRequestError{pe} },
	429: func(pe ProviderError) error { return &RateLimitError{pe} },
	500: func(pe ProviderError) error { return &ServerError{pe} },
	502: func(pe ProviderError) error { return &ServerError{pe} },
	503: func(pe ProviderError) error { return &ServerError{pe} },
	504: func(pe ProviderError) error { return &ServerError{pe} },
}

// ErrorFromStatusCode classifies an HTTP failure from a provider. Statuses
// without a class come back as a plain retryable *ProviderError.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, raw map[string]interface{}, retryAfter *float64) error {
	if statusCode == 408 {
		return &RequestTimeoutError{SDKError{Message: message}}
	}
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Raw:        raw,
		RetryAfter: retryAfter,
	}
	class, ok := statusClasses[statusCode]
	if !ok {
		pe.Retryable = true
		return &pe
	}
	err := class(pe)
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		setRetryable(err, t.Temporary())
	}
	return err
}

// setRetryable copies the class's verdict into the embedded field so it
// shows up in Error().
func setRetryable(err error, v bool) {
	var pe interface{ provider() *ProviderError }
	if errors.As(err, &pe) {
		pe.provider().Retryable = v
	}
}

func (e *ProviderError) provider() *ProviderError { return e }

// withCause records the transport error behind a classified error.
func withCause(classified, cause error) error {
	var pe interface{ provider() *ProviderError }
	if errors.As(classified, &pe) {
		pe.provider().Cause = cause
		return classified
	}
	var rt *RequestTimeoutError
	if errors.As(classified, &rt) {
		rt.Message, rt.Cause = "provider request timed out", cause
	}
	return classified
}

// IsRetryable reports whether err is worth another attempt. Cancellation is
// final. Errors this package does not recognize are assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}
