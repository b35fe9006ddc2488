package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/smithy-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned when a provider needs a key and none is configured.
var ErrMissingAPIKey = errors.New("providers: API key is required")

// ErrorReason categorizes why a provider request failed.
type ErrorReason string

const (
	ReasonBilling          ErrorReason = "billing"
	ReasonRateLimit        ErrorReason = "rate_limit"
	ReasonAuth             ErrorReason = "auth"
	ReasonTimeout          ErrorReason = "timeout"
	ReasonServerError      ErrorReason = "server_error"
	ReasonInvalidRequest   ErrorReason = "invalid_request"
	ReasonModelUnavailable ErrorReason = "model_unavailable"
	ReasonContentFilter    ErrorReason = "content_filter"
	ReasonUnknown          ErrorReason = "unknown"
)

// IsRetryable returns true if retrying the same request may succeed.
func (r ErrorReason) IsRetryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a classified failure from a model API.
type ProviderError struct {
	Reason   ErrorReason
	Provider string
	Model    string
	Status   int
	Code     string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError classifies cause using the SDK error types it may wrap,
// falling back to message inspection.
func NewProviderError(provider, model string, cause error) *ProviderError {
	e := &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: ReasonUnknown}
	if cause == nil {
		return e
	}

	var anthropicErr *anthropic.Error
	var openaiAPIErr *openai.APIError
	var openaiReqErr *openai.RequestError
	var smithyErr smithy.APIError
	switch {
	case errors.As(cause, &anthropicErr):
		e.Status = anthropicErr.StatusCode
	case errors.As(cause, &openaiAPIErr):
		e.Status = openaiAPIErr.HTTPStatusCode
		if code, ok := openaiAPIErr.Code.(string); ok {
			e.Code = code
		}
	case errors.As(cause, &openaiReqErr):
		e.Status = openaiReqErr.HTTPStatusCode
	case errors.As(cause, &smithyErr):
		e.Code = smithyErr.ErrorCode()
	}

	if e.Status != 0 {
		e.Reason = classifyStatusCode(e.Status)
	}
	if e.Reason == ReasonUnknown && e.Code != "" {
		e.Reason = classifyErrorCode(e.Code)
	}
	if e.Reason == ReasonUnknown {
		e.Reason = ClassifyError(cause)
	}
	return e
}

// ClassifyError inspects an error message and returns the matching reason.
func ClassifyError(err error) ErrorReason {
	if err == nil {
		return ReasonUnknown
	}
	msg := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("timeout", "deadline exceeded", "etimedout"):
		return ReasonTimeout
	case has("rate limit", "rate_limit", "too many requests", "throttl", "429"):
		return ReasonRateLimit
	case has("unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"):
		return ReasonAuth
	case has("billing", "payment", "quota", "insufficient", "402"):
		return ReasonBilling
	case has("content_filter", "content policy", "safety", "blocked"):
		return ReasonContentFilter
	case has("model not found", "model_not_found", "does not exist", "unavailable"):
		return ReasonModelUnavailable
	case has("internal server", "server error", "500", "502", "503", "504"):
		return ReasonServerError
	}
	return ReasonUnknown
}

func classifyStatusCode(status int) ErrorReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusPaymentRequired:
		return ReasonBilling
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusBadRequest:
		return ReasonInvalidRequest
	case status == http.StatusNotFound:
		return ReasonModelUnavailable
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyErrorCode(code string) ErrorReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded", "throttlingexception":
		return ReasonRateLimit
	case "authentication_error", "invalid_api_key", "accessdeniedexception", "unrecognizedclientexception":
		return ReasonAuth
	case "billing_error", "insufficient_quota":
		return ReasonBilling
	case "model_not_found", "model_not_available", "resourcenotfoundexception", "modelnotreadyexception":
		return ReasonModelUnavailable
	case "content_policy_violation", "content_filter":
		return ReasonContentFilter
	case "server_error", "internal_error", "internalserverexception", "serviceunavailableexception":
		return ReasonServerError
	case "invalid_request_error", "validationexception":
		return ReasonInvalidRequest
	case "modeltimeoutexception":
		return ReasonTimeout
	default:
		return ReasonUnknown
	}
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
