package llm

import (
	"errors"
	"net/http"

	genai "google.golang.org/genai"
)

var (
	// ErrExhausted reports that every retry on every available model
	// failed on quota errors. The last underlying error is wrapped.
	ErrExhausted = errors.New("llm: retries exhausted on all models")

	// ErrEmptyResponse reports a call that technically succeeded but
	// produced no usable content.
	ErrEmptyResponse = errors.New("llm: empty response from model")
)

// QuotaError marks a transient rate-limit rejection. Only this class is
// retried; everything else aborts immediately.
type QuotaError struct {
	Err error
}

func (e *QuotaError) Error() string { return e.Err.Error() }
func (e *QuotaError) Unwrap() error { return e.Err }

// IsQuotaExceeded reports whether err is (or wraps) a quota rejection.
func IsQuotaExceeded(err error) bool {
	var qErr *QuotaError
	return errors.As(err, &qErr)
}

// classifyErr tags 429 responses from the service as QuotaError so the
// retry engine can distinguish them from permanent failures.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return &QuotaError{Err: err}
	}
	return err
}
