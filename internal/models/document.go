package models

// DocType classifies a detected sub-document.
type DocType string

const (
	DocTypeInvoice     DocType = "INVOICE"
	DocTypeOBL         DocType = "OBL"
	DocTypeHAWB        DocType = "HAWB"
	DocTypePackingList DocType = "PACKING_LIST"
	DocTypeUnknown     DocType = "UNKNOWN"
)

// NormalizeDocType maps a model-reported document type onto the supported
// set. Anything unrecognized becomes DocTypeUnknown.
func NormalizeDocType(s string) DocType {
	switch DocType(s) {
	case DocTypeInvoice, DocTypeOBL, DocTypeHAWB, DocTypePackingList:
		return DocType(s)
	default:
		return DocTypeUnknown
	}
}

// PageRotation is the clockwise correction needed to make one source page
// upright. Zero means the page is already upright or no data was available.
type PageRotation struct {
	PageNo          int `json:"pageNo"`
	RotationDegrees int `json:"rotationDegrees"`
}

// DocumentDescriptor describes one sub-document detected inside the source
// PDF. StartPage and EndPage are 1-based, inclusive positions in the source
// file. Fields carries the type-specific extraction payload as an open map;
// field-level business schemas are enforced downstream, not here.
//
// PagesInfo is populated by the rotation merge step; descriptors coming
// straight out of boundary extraction have it nil.
type DocumentDescriptor struct {
	DocType    DocType        `json:"docType"`
	Confidence float64        `json:"confidence"`
	StartPage  int            `json:"startPage"`
	EndPage    int            `json:"endPage"`
	TotalPages int            `json:"totalPages"`
	FileName   string         `json:"fileName,omitempty"`
	Fields     map[string]any `json:"fields"`
	PagesInfo  []PageRotation `json:"pagesInfo,omitempty"`
}

// PageCount returns the number of pages the descriptor claims to span.
func (d DocumentDescriptor) PageCount() int {
	if d.EndPage < d.StartPage {
		return 0
	}
	return d.EndPage - d.StartPage + 1
}

// SplitArtifact is one materialized sub-document ready for packaging.
type SplitArtifact struct {
	Descriptor DocumentDescriptor
	FileName   string
	Bytes      []byte
}

// PipelineResult is the manifest written into the results archive and
// summarized in the outcome message. An empty Documents list is a valid
// result, not an error.
type PipelineResult struct {
	SourceRef      string               `json:"sourceRef"`
	TotalDocuments int                  `json:"totalDocuments"`
	Documents      []DocumentDescriptor `json:"documents"`
}
