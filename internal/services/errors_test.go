package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Severity
	}{
		{"transient processing error", Transient("timeout", nil), SeverityTransient},
		{"permanent processing error", Permanent("bad input", nil), SeverityPermanent},
		{"critical processing error", Critical("missing config", nil), SeverityCritical},
		{"wrapped processing error", fmt.Errorf("step failed: %w", Permanent("bad input", nil)), SeverityPermanent},
		{"validation error", &ValidationError{Reason: "bad key"}, SeverityPermanent},
		{"retryable extraction error", &ExtractionError{Reason: "bad json", Retryable: true}, SeverityTransient},
		{"non-retryable extraction error", &ExtractionError{Reason: "too many documents"}, SeverityPermanent},
		{"googleapi 429", &googleapi.Error{Code: 429}, SeverityTransient},
		{"googleapi 503", &googleapi.Error{Code: 503}, SeverityTransient},
		{"googleapi 403", &googleapi.Error{Code: 403}, SeverityPermanent},
		{"deadline exceeded", context.DeadlineExceeded, SeverityTransient},
		{"wrapped cancellation", fmt.Errorf("download: %w", context.Canceled), SeverityTransient},
		{"unknown error", errors.New("something odd"), SeverityTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestProcessingErrorUnwrap(t *testing.T) {
	cause := errors.New("socket closed")
	err := Transient("upload failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "upload failed: socket closed", err.Error())
	assert.Equal(t, "missing config", Critical("missing config", nil).Error())
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "transient", SeverityTransient.String())
	assert.Equal(t, "permanent", SeverityPermanent.String())
	assert.Equal(t, "critical", SeverityCritical.String())
}

func TestSanitizeErrorMessage(t *testing.T) {
	t.Run("redacts api keys", func(t *testing.T) {
		got := SanitizeErrorMessage("auth failed: api_key=abc123SECRET")
		assert.NotContains(t, got, "abc123SECRET")
		assert.Contains(t, got, "***REDACTED***")
	})

	t.Run("redacts signatures", func(t *testing.T) {
		got := SanitizeErrorMessage("fetch https://x?Signature=deadbeefcafe&e=1 failed")
		assert.NotContains(t, got, "deadbeefcafe")
	})

	t.Run("redacts long opaque tokens", func(t *testing.T) {
		token := "A1b2C3d4E5f6A1b2C3d4E5f6A1b2C3d4E5f6A1b2C3d4"
		got := SanitizeErrorMessage("bad token " + token + " rejected")
		assert.NotContains(t, got, token)
	})

	t.Run("leaves ordinary messages alone", func(t *testing.T) {
		msg := "PDF has too many pages: 600 (max: 500)"
		assert.Equal(t, msg, SanitizeErrorMessage(msg))
	})
}

func TestSanitizeURLForLogging(t *testing.T) {
	assert.Equal(t,
		"https://storage.googleapis.com/bucket/scan.pdf",
		SanitizeURLForLogging("https://storage.googleapis.com/bucket/scan.pdf?X-Goog-Signature=secret"),
	)
	assert.Equal(t,
		"https://storage.googleapis.com/bucket/scan.pdf",
		SanitizeURLForLogging("https://storage.googleapis.com/bucket/scan.pdf"),
	)
}
