package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightflow/docsplitter/internal/models"
)

func TestStripCodeFence(t *testing.T) {
	const payload = `[{"DOC_TYPE": "INVOICE"}]`

	t.Run("strips fences with and without language tag", func(t *testing.T) {
		cases := []string{
			"```json\n" + payload + "\n```",
			"```\n" + payload + "\n```",
			"```JSON\n" + payload + "\n```",
			"  ```json\n" + payload + "\n```  ",
		}
		for _, in := range cases {
			assert.Equal(t, payload, StripCodeFence(in), "input %q", in)
		}
	})

	t.Run("unfenced input passes through unchanged", func(t *testing.T) {
		assert.Equal(t, payload, StripCodeFence(payload))
		assert.Equal(t, payload, StripCodeFence("  "+payload+"\n"))
	})

	t.Run("handles asymmetric fences", func(t *testing.T) {
		assert.Equal(t, payload, StripCodeFence("```json\n"+payload))
		assert.Equal(t, payload, StripCodeFence(payload+"\n```"))
	})

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{
			"```json\n" + payload + "\n```",
			payload,
			"```\n{}\n```",
			"",
		}
		for _, in := range inputs {
			once := StripCodeFence(in)
			assert.Equal(t, once, StripCodeFence(once), "input %q", in)
		}
	})

	t.Run("does not eat fence-like content inside the payload", func(t *testing.T) {
		in := "{\"note\": \"use ``` sparingly\"}"
		assert.Equal(t, in, StripCodeFence(in))
	})
}

func TestDecodeDescriptorList(t *testing.T) {
	t.Run("parses a fenced array", func(t *testing.T) {
		raw, err := decodeDescriptorList("```json\n[{\"DOC_TYPE\": \"OBL\"}]\n```")
		require.NoError(t, err)
		require.Len(t, raw, 1)
		assert.Equal(t, "OBL", raw[0]["DOC_TYPE"])
	})

	t.Run("wraps a bare object into a one-element list", func(t *testing.T) {
		raw, err := decodeDescriptorList(`{"DOC_TYPE": "HAWB"}`)
		require.NoError(t, err)
		require.Len(t, raw, 1)
		assert.Equal(t, "HAWB", raw[0]["DOC_TYPE"])
	})

	t.Run("rejects non-JSON text", func(t *testing.T) {
		_, err := decodeDescriptorList("I could not find any documents.")
		assert.Error(t, err)
	})
}

func TestNormalizeDescriptor(t *testing.T) {
	t.Run("lifts common fields and keeps the rest", func(t *testing.T) {
		desc := normalizeDescriptor(map[string]any{
			"DOC_TYPE":            "INVOICE",
			"DOC_TYPE_CONFIDENCE": 0.95,
			"START_PAGE_NO":       float64(3),
			"END_PAGE_NO":         float64(5),
			"TOTAL_PAGES":         float64(3),
			"INVOICE_NO":          "0004833/E",
			"CURRENCY_ID":         "EUR",
		})
		assert.Equal(t, models.DocTypeInvoice, desc.DocType)
		assert.InDelta(t, 0.95, desc.Confidence, 1e-9)
		assert.Equal(t, 3, desc.StartPage)
		assert.Equal(t, 5, desc.EndPage)
		assert.Equal(t, 3, desc.TotalPages)
		assert.Equal(t, "0004833/E", desc.Fields["INVOICE_NO"])
		assert.Equal(t, "EUR", desc.Fields["CURRENCY_ID"])
		assert.NotContains(t, desc.Fields, "DOC_TYPE")
	})

	t.Run("defaults missing page numbers", func(t *testing.T) {
		desc := normalizeDescriptor(map[string]any{"DOC_TYPE": "OBL"})
		assert.Equal(t, 1, desc.StartPage)
		assert.Equal(t, 1, desc.EndPage)
		assert.Equal(t, 1, desc.TotalPages)
	})

	t.Run("coerces unknown doc types", func(t *testing.T) {
		desc := normalizeDescriptor(map[string]any{"DOC_TYPE": "RECEIPT"})
		assert.Equal(t, models.DocTypeUnknown, desc.DocType)
	})
}

func TestParseBoundaryResponse(t *testing.T) {
	buildList := func(n int) string {
		entries := make([]string, n)
		for i := range entries {
			entries[i] = fmt.Sprintf(`{"DOC_TYPE":"INVOICE","START_PAGE_NO":%d,"END_PAGE_NO":%d}`, i+1, i+1)
		}
		return "[" + strings.Join(entries, ",") + "]"
	}
	extractor := &BoundaryExtractor{maxDocuments: 100}

	t.Run("exactly at the ceiling succeeds", func(t *testing.T) {
		descriptors, err := extractor.parseResponse(buildList(100))
		require.NoError(t, err)
		assert.Len(t, descriptors, 100)
	})

	t.Run("over the ceiling is a permanent extraction error", func(t *testing.T) {
		_, err := extractor.parseResponse(buildList(101))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many documents")
		assert.Equal(t, SeverityPermanent, Classify(err))
	})

	t.Run("empty response is a transient extraction error", func(t *testing.T) {
		_, err := extractor.parseResponse("")
		require.Error(t, err)
		assert.Equal(t, SeverityTransient, Classify(err))
	})

	t.Run("non-JSON keeps a raw diagnostic and is transient", func(t *testing.T) {
		_, err := extractor.parseResponse("I could not find any documents.")
		require.Error(t, err)
		assert.Equal(t, SeverityTransient, Classify(err))

		var extErr *ExtractionError
		require.ErrorAs(t, err, &extErr)
		assert.Equal(t, "I could not find any documents.", extErr.Raw)
	})

	t.Run("fenced array parses through the same path", func(t *testing.T) {
		descriptors, err := extractor.parseResponse("```json\n" + buildList(2) + "\n```")
		require.NoError(t, err)
		assert.Len(t, descriptors, 2)
	})
}
