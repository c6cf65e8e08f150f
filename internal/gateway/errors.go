package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v62/github"
)

// APIError is a generic GitHub API failure, surfaced after retries are
// exhausted.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("GitHub API error (%d): %s", e.StatusCode, e.Message)
}

// NotFoundError reports an unknown owner, repository or resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found or not accessible", e.Resource)
}

// RateLimitError reports primary rate limit exhaustion. It is never
// retried automatically; the reset time, when known, is carried so it can
// be surfaced verbatim.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	msg := "GitHub API rate limit exceeded"
	if !e.ResetAt.IsZero() {
		msg += fmt.Sprintf(". Rate limit resets at %s", e.ResetAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	return msg
}

// classify converts go-github errors into the gateway's error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &RateLimitError{ResetAt: rateErr.Rate.Reset.Time}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		rle := &RateLimitError{}
		if abuseErr.RetryAfter != nil {
			rle.ResetAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		return rle
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		status := respErr.Response.StatusCode
		if status == 404 {
			return &NotFoundError{Resource: respErr.Response.Request.URL.Path}
		}
		return &APIError{StatusCode: status, Message: respErr.Message}
	}

	return err
}

// permanent reports whether retrying the request cannot help.
func permanent(err error) bool {
	var rateErr *RateLimitError
	var notFound *NotFoundError
	if errors.As(err, &rateErr) || errors.As(err, &notFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
