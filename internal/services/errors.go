package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"google.golang.org/api/googleapi"
)

// Severity decides what the host's queue infrastructure does with a failed
// invocation. It is carried explicitly on ProcessingError so the
// orchestrator's dispatch is an exhaustive switch, not an ordered catch
// chain.
type Severity int

const (
	// SeverityTransient marks failures that may succeed on redelivery
	// (timeouts, 5xx, rate limiting). The message is re-signalled.
	SeverityTransient Severity = iota
	// SeverityPermanent marks failures that will never succeed on retry
	// (bad or unsafe input). The message is dropped after one outcome.
	SeverityPermanent
	// SeverityCritical marks missing or invalid configuration. Operator
	// action is required; the error is always propagated.
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityTransient:
		return "transient"
	case SeverityPermanent:
		return "permanent"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ProcessingError is the typed failure flowing out of pipeline components.
type ProcessingError struct {
	Severity Severity
	Message  string
	Err      error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Transient wraps err as a redeliverable failure.
func Transient(message string, err error) *ProcessingError {
	return &ProcessingError{Severity: SeverityTransient, Message: message, Err: err}
}

// Permanent wraps err as a failure that must not be retried.
func Permanent(message string, err error) *ProcessingError {
	return &ProcessingError{Severity: SeverityPermanent, Message: message, Err: err}
}

// Critical wraps err as an operator-actionable configuration failure.
func Critical(message string, err error) *ProcessingError {
	return &ProcessingError{Severity: SeverityCritical, Message: message, Err: err}
}

// ValidationError reports malformed or unsafe input. The validator fails
// loudly with this type; the orchestrator maps it to a Permanent failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// ExtractionError reports a model response the boundary extractor could not
// accept. Raw holds a truncated copy of the response for diagnostics; it is
// logged, never published.
type ExtractionError struct {
	Reason string
	Raw    string
	// Retryable distinguishes plausibly-transient malformed output from
	// abusive responses (e.g. descriptor count over the ceiling).
	Retryable bool
}

func (e *ExtractionError) Error() string { return e.Reason }

// Classify assigns a severity to any error leaving a pipeline step.
// Typed errors carry their own verdict; Google API errors are judged by
// HTTP status; everything else is treated as transient so the host's
// default retry and poison-queue handling applies.
func Classify(err error) Severity {
	var procErr *ProcessingError
	if errors.As(err, &procErr) {
		return procErr.Severity
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return SeverityPermanent
	}
	var extErr *ExtractionError
	if errors.As(err, &extErr) {
		if extErr.Retryable {
			return SeverityTransient
		}
		return SeverityPermanent
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || gerr.Code >= 500 {
			return SeverityTransient
		}
		return SeverityPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SeverityTransient
	}
	return SeverityTransient
}

var (
	apiKeyPattern    = regexp.MustCompile(`(?i)api[_-]?key["\s:=]+[A-Za-z0-9\-_]+`)
	signaturePattern = regexp.MustCompile(`(?i)signature=[^&\s]+`)
	tokenPattern     = regexp.MustCompile(`\b[A-Za-z0-9]{40,}\b`)
)

// SanitizeErrorMessage strips credential-shaped substrings (API keys,
// signed-URL signatures, long opaque tokens) before a message is logged or
// published in an outcome.
func SanitizeErrorMessage(message string) string {
	sanitized := apiKeyPattern.ReplaceAllString(message, "api_key=***REDACTED***")
	sanitized = signaturePattern.ReplaceAllString(sanitized, "signature=***REDACTED***")
	sanitized = tokenPattern.ReplaceAllString(sanitized, "***REDACTED***")
	return sanitized
}

// SanitizeURLForLogging drops the query string so signed-URL tokens never
// reach the logs.
func SanitizeURLForLogging(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		if len(rawURL) > 100 {
			return rawURL[:100] + "..."
		}
		return rawURL
	}
	return fmt.Sprintf("%s://%s%s", parsed.Scheme, parsed.Host, parsed.Path)
}
