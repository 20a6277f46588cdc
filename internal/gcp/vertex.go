package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// --- Boundary extraction prompt ---
const BoundarySystemPrompt = "You are an AI assistant specialized in analyzing unclassified PDF documents. Your task is to identify distinct documents within the file, classify them, and extract structured data. You must output your response as a valid JSON array."
const BoundaryUserPrompt = `The input PDF may contain a single document or multiple documents of different types merged together. You must detect the boundaries of each document.

Supported Document Types:
1. Invoice
2. OBL (Ocean Bill of Lading)
3. HAWB (House Air Waybill)
4. Packing List

For each detected document, extract the data according to the specific schema below and return a JSON ARRAY of objects.

--- SCHEMAS & EXTRACTION RULES ---

COMMON FIELDS (Required for ALL types):
- DOC_TYPE: One of ["INVOICE", "OBL", "HAWB", "PACKING_LIST"]
- DOC_TYPE_CONFIDENCE: Float between 0 and 1 indicating confidence in the document type classification (e.g., 0.95 for high confidence, 0.6 for uncertain)
- TOTAL_PAGES: Integer (count of pages for this specific document)
- START_PAGE_NO: Integer (1-based page number where this document starts in the PDF)
- END_PAGE_NO: Integer (1-based page number where this document ends in the PDF)

TYPE 1: INVOICE
- INVOICE_NO: Extract as-is, preserving all characters (e.g., "0004833/E")
- INVOICE_DATE: Format as YYYYMMDDHHMMSSSS (16 digits). Example: "30.07.2025" -> "2025073000000000"
- CURRENCY_ID: 3-letter currency code (e.g., "EUR")
- INCOTERMS: Code only, uppercase (e.g., "FCA"). No location text.
- INVOICE_AMOUNT: Number (float/int), no symbols.
- CUSTOMER_ID: Extract as-is.

TYPE 2: OBL
- CUSTOMER_NAME: String
- WEIGHT: Number
- VOLUME: Number
- INCOTERMS: Code only, uppercase.

TYPE 3: HAWB
- CUSTOMER_NAME: String
- CURRENCY: String
- CARRIER: String
- HAWB_NUMBER: String
- PIECES: Integer
- WEIGHT: Number

TYPE 4: PACKING LIST
- CUSTOMER_NAME: String
- PIECES: Integer
- WEIGHT: Number

--- CRITICAL RULES ---
1. Return ONLY a valid JSON list.
2. If a field is not found, omit it.
3. Ensure START_PAGE_NO and END_PAGE_NO reflect the specific location of the document.
4. Date format must be exactly 16 digits: YYYYMMDD00000000.
5. INCOTERMS must be ONLY the code (3 letters usually), no location or extra text.`

// --- Rotation estimation prompt ---
const RotationSystemPrompt = "You are a document orientation analyzer. You must output your response as a valid JSON array and nothing else."
const RotationUserPrompt = `Analyze page orientation and return JSON only.

For each page, determine the clockwise rotation needed to make text upright.

OUTPUT FORMAT - Return ONLY this JSON array, no explanations:
[{"pageNo": 1, "rotationDegrees": 0}, {"pageNo": 2, "rotationDegrees": 90}]

ROTATION VALUES (clockwise degrees to fix orientation):
- 0: Already upright
- 90: Text reads bottom-to-top, rotate 90 degrees clockwise
- 180: Upside down, rotate 180 degrees
- 270: Text reads top-to-bottom, rotate 270 degrees clockwise

RULES:
1. Output ONLY the JSON array - no text before or after
2. One entry per page of the input document
3. rotationDegrees must be exactly: 0, 90, 180, or 270`

// VertexClient holds the pre-configured generative models for the pipeline.
type VertexClient struct {
	BoundaryModel *genai.GenerativeModel
	RotationModel *genai.GenerativeModel
	baseClient    *genai.Client
}

// NewVertexClient creates a client holding both pipeline models. The
// boundary and rotation models may name different Gemini variants.
func NewVertexClient(ctx context.Context, projectID, region, boundaryModel, rotationModel string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	boundary := baseClient.GenerativeModel(boundaryModel)
	boundary.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(BoundarySystemPrompt)},
	}
	boundary.GenerationConfig = genai.GenerationConfig{
		// Force JSON output. Low temp for deterministic, structured output.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	boundary.SafetySettings = permissiveSafetySettings()

	rotation := baseClient.GenerativeModel(rotationModel)
	rotation.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(RotationSystemPrompt)},
	}
	rotation.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	rotation.SafetySettings = permissiveSafetySettings()

	return &VertexClient{
		BoundaryModel: boundary,
		RotationModel: rotation,
		baseClient:    baseClient,
	}, nil
}

// Freight documents trip the default safety filters often enough (customs
// descriptions, chemical cargo) that blocking is disabled for all categories.
func permissiveSafetySettings() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
