package services

import (
	"encoding/json"
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/freightflow/docsplitter/internal/gcp"
	"github.com/freightflow/docsplitter/internal/models"
)

const maxSourceURLLength = 2048

var correlationKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ParseWorkItem parses and fully validates a raw task-queue message into an
// immutable WorkItem. Every rejection is a *ValidationError: the message
// can never succeed on redelivery.
func ParseWorkItem(body []byte, allowedBuckets []string) (models.WorkItem, error) {
	if !utf8.Valid(body) {
		return models.WorkItem{}, validationErrorf("invalid UTF-8 encoding in message")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.WorkItem{}, validationErrorf("invalid JSON in message: %v", err)
	}

	correlationKey, err := stringField(raw, "correlationKey", "correlation_key")
	if err != nil {
		return models.WorkItem{}, err
	}
	sourceURL, err := stringField(raw, "pdfBlobUrl", "pdf_blob_url")
	if err != nil {
		return models.WorkItem{}, err
	}

	key, err := ValidateCorrelationKey(correlationKey)
	if err != nil {
		return models.WorkItem{}, err
	}
	bucket, object, err := ValidateSourceURL(sourceURL, allowedBuckets)
	if err != nil {
		return models.WorkItem{}, err
	}

	return models.WorkItem{
		CorrelationKey: key,
		SourceRef:      sourceURL,
		SourceBucket:   bucket,
		SourceObject:   object,
	}, nil
}

func stringField(raw map[string]json.RawMessage, name, alias string) (string, error) {
	val, ok := raw[name]
	if !ok {
		val, ok = raw[alias]
	}
	if !ok {
		return "", validationErrorf("missing required field: %s", name)
	}
	var s string
	if err := json.Unmarshal(val, &s); err != nil {
		return "", validationErrorf("%s must be a string", name)
	}
	if s == "" {
		return "", validationErrorf("missing required field: %s", name)
	}
	return s, nil
}

// ValidateCorrelationKey enforces the strict whitelist on caller-supplied
// correlation keys. The key is later used to build storage paths, so
// anything that would not survive as a single path segment is rejected.
func ValidateCorrelationKey(key string) (string, error) {
	if key == "" {
		return "", validationErrorf("correlation key is required")
	}
	if !correlationKeyPattern.MatchString(key) {
		return "", validationErrorf(
			"invalid correlation key format: must be 1-128 alphanumeric characters, hyphens, or underscores, got: %s",
			truncate(key, 50),
		)
	}
	if cleaned := path.Clean(key); cleaned != key || strings.ContainsAny(key, `/\`) {
		return "", validationErrorf("correlation key must not contain path separators: %s", truncate(key, 50))
	}
	return key, nil
}

// ValidateSourceURL enforces the SSRF guard on the source document URL: the
// worker may only ever fetch HTTPS objects under the storage service domain
// from an allow-listed bucket. Returns the parsed bucket and object so the
// download goes through the storage client, never a raw HTTP fetch.
func ValidateSourceURL(rawURL string, allowedBuckets []string) (bucket, object string, err error) {
	if rawURL == "" {
		return "", "", validationErrorf("source URL is required")
	}
	if len(rawURL) > maxSourceURLLength {
		return "", "", validationErrorf("source URL too long: %d characters (max: %d)", len(rawURL), maxSourceURLLength)
	}

	parsed, parseErr := url.Parse(rawURL)
	if parseErr != nil {
		return "", "", validationErrorf("invalid URL format: %v", parseErr)
	}
	if parsed.Scheme != "https" {
		return "", "", validationErrorf("source URL must use HTTPS, got: %s", parsed.Scheme)
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return "", "", validationErrorf("source URL missing hostname")
	}
	if hostname != gcp.StorageDomain && !strings.HasSuffix(hostname, "."+gcp.StorageDomain) {
		return "", "", validationErrorf("source URL must point at %s, got: %s", gcp.StorageDomain, hostname)
	}

	parts := strings.SplitN(strings.Trim(parsed.EscapedPath(), "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", validationErrorf("invalid source URL path format: %s", parsed.Path)
	}
	bucket = parts[0]
	object, unescapeErr := url.PathUnescape(parts[1])
	if unescapeErr != nil {
		return "", "", validationErrorf("invalid source URL path encoding: %v", unescapeErr)
	}

	for _, allowed := range allowedBuckets {
		if bucket == allowed {
			return bucket, object, nil
		}
	}
	return "", "", validationErrorf("unauthorized bucket: %s", bucket)
}

// ValidatePDF runs the resource-exhaustion guards on a downloaded file
// before any model call: non-empty, under the size ceiling, parseable, and
// under the page ceiling. Returns the page count for later splitting.
func ValidatePDF(pdfPath string, maxBytes int64, maxPages int) (int, error) {
	info, err := os.Stat(pdfPath)
	if err != nil {
		return 0, validationErrorf("PDF file not found: %s", pdfPath)
	}
	if info.Size() == 0 {
		return 0, validationErrorf("PDF file is empty")
	}
	if info.Size() > maxBytes {
		return 0, validationErrorf(
			"PDF file too large: %.1f MB (max: %.1f MB)",
			float64(info.Size())/(1024*1024), float64(maxBytes)/(1024*1024),
		)
	}

	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, validationErrorf("invalid PDF file or corrupted: %v", err)
	}
	if pageCount == 0 {
		return 0, validationErrorf("PDF has no pages")
	}
	if pageCount > maxPages {
		return 0, validationErrorf("PDF has too many pages: %d (max: %d)", pageCount, maxPages)
	}
	return pageCount, nil
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
