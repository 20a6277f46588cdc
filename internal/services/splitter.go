package services

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/freightflow/docsplitter/internal/models"
)

// emptyPDF is a minimal zero-page document, used when a descriptor's page
// range falls entirely outside the source file. Accepting the bad range and
// emitting an empty artifact keeps one broken descriptor from failing the
// whole work item.
const emptyPDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n" +
	"xref\n0 3\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n110\n%%EOF\n"

// PageSplitter materializes standalone sub-documents from page ranges of
// the source PDF.
type PageSplitter struct{}

func NewPageSplitter() *PageSplitter { return &PageSplitter{} }

// Split builds a new document containing the source pages in
// [startPage, endPage] (1-indexed, inclusive), in order. Page indices
// outside [1, sourcePageCount] are silently skipped; an empty effective
// range yields a valid zero-page document. When rotations carries a
// non-zero correction for an included source page, the page is rotated in
// the output; rotation failures degrade to the unrotated bytes.
func (s *PageSplitter) Split(sourcePath string, startPage, endPage, sourcePageCount int, rotations map[int]int) ([]byte, error) {
	included := includedPages(startPage, endPage, sourcePageCount)
	if len(included) == 0 {
		return []byte(emptyPDF), nil
	}

	source, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("could not open source PDF %s: %w", sourcePath, err)
	}
	defer source.Close()

	selection := make([]string, len(included))
	for i, pageNo := range included {
		selection[i] = strconv.Itoa(pageNo)
	}

	var out bytes.Buffer
	if err := api.Trim(source, &out, selection, relaxedConfig()); err != nil {
		return nil, fmt.Errorf("failed to extract pages %d-%d: %w", startPage, endPage, err)
	}

	return s.applyRotations(out.Bytes(), included, rotations), nil
}

// applyRotations physically normalizes page orientation in the split
// output. Pages are addressed by their position in the new document, so
// source page numbers are mapped through the included-page list. Grouping
// by rotation value keeps it to at most three passes.
func (s *PageSplitter) applyRotations(pdfBytes []byte, included []int, rotations map[int]int) []byte {
	byRotation := make(map[int][]string)
	for localIdx, sourcePage := range included {
		if deg := rotations[sourcePage]; deg != 0 {
			byRotation[deg] = append(byRotation[deg], strconv.Itoa(localIdx+1))
		}
	}
	if len(byRotation) == 0 {
		return pdfBytes
	}

	current := pdfBytes
	for deg, selection := range byRotation {
		var out bytes.Buffer
		if err := api.Rotate(bytes.NewReader(current), &out, deg, selection, relaxedConfig()); err != nil {
			// Orientation is cosmetic; keep the readable artifact.
			slog.Warn("Failed to apply rotation correction; keeping unrotated pages.",
				"rotationDegrees", deg, "pages", selection, "error", err)
			continue
		}
		current = out.Bytes()
	}
	return current
}

func includedPages(startPage, endPage, sourcePageCount int) []int {
	var pages []int
	for pageNo := startPage; pageNo <= endPage; pageNo++ {
		if pageNo >= 1 && pageNo <= sourcePageCount {
			pages = append(pages, pageNo)
		}
	}
	return pages
}

// ArtifactFileName is the deterministic output name for one split
// sub-document. ordinal is the 1-based position of the descriptor in the
// boundary extractor's output list; stability follows model output order.
func ArtifactFileName(baseName string, docType models.DocType, ordinal, startPage, endPage int) string {
	return fmt.Sprintf("%s_%s_%d_pages_%d-%d.pdf", baseName, docType, ordinal, startPage, endPage)
}
