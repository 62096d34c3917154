package providers

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeAuthFailed     = "AUTH_FAILED"
	CodeTransferFailed = "TRANSFER_FAILED"
	CodeQRCodeFailed   = "QRCODE_FAILED"
	CodeGetFailed      = "GET_FAILED"
	CodeParseError     = "PARSE_ERROR"
	CodeNotSupported   = "NOT_SUPPORTED"
	CodeUnavailable    = "UNAVAILABLE"
	CodeHealthFailed   = "HEALTH_CHECK_FAILED"
)

type ProviderError struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	// Uncertain is set when the request reached the bank and its outcome is unknown
	Uncertain bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (http %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewProviderError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

// Wrap labels err with an operation code, keeping status and retry hints of a wrapped ProviderError
func Wrap(code, message string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := &ProviderError{Code: code, Message: fmt.Sprintf("%s: %v", message, err)}
	var inner *ProviderError
	if errors.As(err, &inner) {
		wrapped.StatusCode = inner.StatusCode
		wrapped.Retryable = inner.Retryable
		wrapped.Uncertain = inner.Uncertain
		wrapped.Message = fmt.Sprintf("%s: %s", message, inner.Message)
	}
	return wrapped
}

// statusError classifies an HTTP failure: throttling and server errors may succeed elsewhere or later.
// Only 429 and 503 tell that the bank refused the request before processing it.
func statusError(status int, body string) *ProviderError {
	if len(body) > 256 {
		body = body[:256]
	}
	return &ProviderError{
		Code:       fmt.Sprintf("HTTP_%d", status),
		Message:    body,
		StatusCode: status,
		Retryable:  status == http.StatusTooManyRequests || status >= 500,
		Uncertain:  status >= 500 && status != http.StatusServiceUnavailable,
	}
}

func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsUncertain reports a failure after which the bank may still have executed the request
func IsUncertain(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Uncertain
}

func IsUnauthorized(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.StatusCode == http.StatusUnauthorized
}

func IsNotSupported(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeNotSupported
}
