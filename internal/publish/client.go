package publish

import (
	"context"
	"errors"
	"net/http"

	"github.com/NickKasten/posture/internal/domain"
)

// Publish error codes surfaced to callers, keyed off the provider HTTP
// status. 429 and 5xx are the only retryable classes.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeForbidden    = "FORBIDDEN"
	CodeBadRequest   = "BAD_REQUEST"
	CodeRateLimited  = "RATE_LIMIT_EXCEEDED"
	CodeServerError  = "SERVER_ERROR"
	CodeNetworkError = "NETWORK_ERROR"
	CodeUnknown      = "UNKNOWN_ERROR"
)

// Client publishes one user's content to one platform.
type Client interface {
	PublishPost(ctx context.Context, content string) (*domain.PublishResult, error)
}

// apiError carries a provider HTTP failure through the retry loop.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return e.Message
}

// Retryable reports whether the failure class is transient.
func (e *apiError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func newAPIError(status int, message string) *apiError {
	return &apiError{Status: status, Code: codeForStatus(status), Message: message}
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return CodeTokenExpired
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusBadRequest:
		return CodeBadRequest
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeServerError
	default:
		return CodeUnknown
	}
}

// failureFromErr converts a terminal publish error into a result, keeping
// the ids of any segments that made it out before the failure.
func failureFromErr(err error, postIDs []string) *domain.PublishResult {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return failure(apiErr.Code, apiErr.Status, apiErr.Message, postIDs)
	}
	return failure(CodeNetworkError, http.StatusBadGateway, err.Error(), postIDs)
}

func failure(code string, status int, message string, postIDs []string) *domain.PublishResult {
	return &domain.PublishResult{
		Success: false,
		PostIDs: postIDs,
		Error: &domain.PublishError{
			Code:    code,
			Status:  status,
			Message: message,
		},
	}
}
