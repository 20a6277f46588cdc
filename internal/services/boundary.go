package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/freightflow/docsplitter/internal/gcp"
	"github.com/freightflow/docsplitter/internal/models"
)

// Raw responses attached to extraction errors are capped so diagnostics
// stay loggable.
const maxRawResponseDiag = 2000

// Common descriptor keys per the prompt contract; everything else in a
// returned object is a type-specific field.
const (
	keyDocType    = "DOC_TYPE"
	keyConfidence = "DOC_TYPE_CONFIDENCE"
	keyTotalPages = "TOTAL_PAGES"
	keyStartPage  = "START_PAGE_NO"
	keyEndPage    = "END_PAGE_NO"
)

// BoundaryExtractor detects sub-document boundaries and extracts their
// structured fields with a single model call over the whole PDF.
type BoundaryExtractor struct {
	model        *genai.GenerativeModel
	maxDocuments int
}

// NewBoundaryExtractor wires the pre-configured boundary model.
// maxDocuments is the cardinality ceiling on the model's response.
func NewBoundaryExtractor(model *genai.GenerativeModel, maxDocuments int) *BoundaryExtractor {
	return &BoundaryExtractor{model: model, maxDocuments: maxDocuments}
}

// Extract sends the full PDF plus the boundary prompt contract to the model
// and returns one descriptor per detected sub-document, in model output
// order. Retry policy is the orchestrator's concern; this method never
// retries internally.
func (e *BoundaryExtractor) Extract(ctx context.Context, pdfBytes []byte) ([]models.DocumentDescriptor, error) {
	resp, err := e.model.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: pdfBytes},
		genai.Text(gcp.BoundaryUserPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate boundaries from model: %w", err)
	}
	return e.parseResponse(responseText(resp))
}

// parseResponse turns the raw response text into normalized descriptors,
// enforcing the cardinality ceiling.
func (e *BoundaryExtractor) parseResponse(text string) ([]models.DocumentDescriptor, error) {
	if text == "" {
		return nil, &ExtractionError{
			Reason:    "model returned an empty boundary response",
			Retryable: true,
		}
	}

	raw, err := decodeDescriptorList(text)
	if err != nil {
		return nil, &ExtractionError{
			Reason:    fmt.Sprintf("invalid JSON in boundary response: %v", err),
			Raw:       truncate(text, maxRawResponseDiag),
			Retryable: true,
		}
	}

	if len(raw) > e.maxDocuments {
		// A response this large is malformed or abusive; partial
		// processing would hide the problem.
		return nil, &ExtractionError{
			Reason: fmt.Sprintf("too many documents returned by model: %d (max: %d)", len(raw), e.maxDocuments),
		}
	}

	descriptors := make([]models.DocumentDescriptor, 0, len(raw))
	for _, doc := range raw {
		descriptors = append(descriptors, normalizeDescriptor(doc))
	}
	return descriptors, nil
}

// decodeDescriptorList parses the normalized response text. A bare JSON
// object is accepted and wrapped into a one-element list.
func decodeDescriptorList(text string) ([]map[string]any, error) {
	cleaned := StripCodeFence(text)

	var list []map[string]any
	if err := json.Unmarshal([]byte(cleaned), &list); err == nil {
		return list, nil
	}

	var single map[string]any
	if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
		return nil, err
	}
	return []map[string]any{single}, nil
}

// normalizeDescriptor lifts the contract's common fields out of a raw
// response object; whatever remains is the type-specific field bag. Page
// defaults follow the extraction contract: a missing start falls back to
// page 1, a missing end to the start page.
func normalizeDescriptor(doc map[string]any) models.DocumentDescriptor {
	docType := models.NormalizeDocType(stringValue(doc[keyDocType]))
	confidence := floatValue(doc[keyConfidence])
	startPage := intValue(doc[keyStartPage], 1)
	endPage := intValue(doc[keyEndPage], startPage)
	totalPages := intValue(doc[keyTotalPages], endPage-startPage+1)

	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case keyDocType, keyConfidence, keyTotalPages, keyStartPage, keyEndPage:
		default:
			fields[k] = v
		}
	}

	return models.DocumentDescriptor{
		DocType:    docType,
		Confidence: confidence,
		StartPage:  startPage,
		EndPage:    endPage,
		TotalPages: totalPages,
		Fields:     fields,
	}
}

// StripCodeFence removes a single leading and/or trailing fenced-code-block
// marker (three backticks, optionally followed by a language tag at the
// head). Head and tail are handled independently; unfenced input passes
// through unchanged, so the operation is idempotent.
func StripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		rest := s[3:]
		if idx := strings.IndexByte(rest, '\n'); idx >= 0 && isFenceLanguageTag(rest[:idx]) {
			rest = rest[idx+1:]
		}
		s = rest
	}
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

func isFenceLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// responseText concatenates the text parts of a model response.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	var textParts int
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
			textParts++
		}
	}
	if textParts > 1 {
		slog.Warn("Model response contained multiple text parts; they have been concatenated.", "textParts", textParts)
	}
	return strings.TrimSpace(b.String())
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) float64 {
	f, _ := v.(float64)
	return f
}

func intValue(v any, fallback int) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return fallback
}
