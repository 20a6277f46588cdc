package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cloud.google.com/go/vertexai/genai"

	"github.com/freightflow/docsplitter/internal/gcp"
	"github.com/freightflow/docsplitter/internal/models"
)

// RotationEstimator obtains a per-page orientation correction for the
// source PDF. Rotation is cosmetic, not structural: callers use
// EstimateSafe, which converts every failure into "no rotation data".
type RotationEstimator struct {
	model *genai.GenerativeModel
}

func NewRotationEstimator(model *genai.GenerativeModel) *RotationEstimator {
	return &RotationEstimator{model: model}
}

// Estimate asks the rotation model for one entry per source page. Values
// outside {0, 90, 180, 270} are coerced to 0 and logged rather than
// failing the whole estimate.
func (e *RotationEstimator) Estimate(ctx context.Context, pdfBytes []byte) ([]models.PageRotation, error) {
	resp, err := e.model.GenerateContent(ctx,
		genai.Blob{MIMEType: "application/pdf", Data: pdfBytes},
		genai.Text(gcp.RotationUserPrompt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate rotation info from model: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("model returned an empty rotation response")
	}

	cleaned := StripCodeFence(text)
	var rotations []models.PageRotation
	if err := json.Unmarshal([]byte(cleaned), &rotations); err != nil {
		var single models.PageRotation
		if err2 := json.Unmarshal([]byte(cleaned), &single); err2 != nil {
			return nil, fmt.Errorf("invalid JSON in rotation response: %w", err)
		}
		rotations = []models.PageRotation{single}
	}

	for i, r := range rotations {
		if !validRotation(r.RotationDegrees) {
			slog.Warn("Invalid rotation value from model, defaulting to 0.",
				"pageNo", r.PageNo, "rotationDegrees", r.RotationDegrees)
			rotations[i].RotationDegrees = 0
		}
	}
	return rotations, nil
}

// EstimateSafe absorbs any estimation failure into an empty result.
func (e *RotationEstimator) EstimateSafe(ctx context.Context, pdfBytes []byte) []models.PageRotation {
	rotations, err := e.Estimate(ctx, pdfBytes)
	if err != nil {
		slog.Warn("Rotation estimation failed; defaulting all pages to 0 degrees.", "error", err)
		return nil
	}
	slog.Info("Rotation info extracted.", "pages", len(rotations))
	return rotations
}

func validRotation(deg int) bool {
	return deg == 0 || deg == 90 || deg == 180 || deg == 270
}

// MergeRotations copies each descriptor and extends it with one
// PageRotation per page in its range, defaulting to 0 for pages the
// estimator said nothing about. The input descriptors are not mutated.
func MergeRotations(descriptors []models.DocumentDescriptor, rotations []models.PageRotation) []models.DocumentDescriptor {
	lookup := make(map[int]int, len(rotations))
	for _, r := range rotations {
		lookup[r.PageNo] = r.RotationDegrees
	}

	merged := make([]models.DocumentDescriptor, len(descriptors))
	for i, desc := range descriptors {
		enriched := desc
		enriched.PagesInfo = pagesInfoForRange(desc.StartPage, desc.EndPage, lookup)
		merged[i] = enriched
	}
	return merged
}

func pagesInfoForRange(startPage, endPage int, lookup map[int]int) []models.PageRotation {
	if endPage < startPage {
		return nil
	}
	info := make([]models.PageRotation, 0, endPage-startPage+1)
	for pageNo := startPage; pageNo <= endPage; pageNo++ {
		info = append(info, models.PageRotation{
			PageNo:          pageNo,
			RotationDegrees: lookup[pageNo],
		})
	}
	return info
}
