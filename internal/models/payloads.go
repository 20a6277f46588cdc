package models

// These structs define the JSON payloads flowing through the task and
// results queues.

// WorkItem is one validated unit of inbound work. Immutable once built by
// the request validator.
type WorkItem struct {
	CorrelationKey string
	SourceRef      string

	// Parsed from SourceRef during validation so downloads go through the
	// storage client rather than raw HTTP.
	SourceBucket string
	SourceObject string
}

// TaskMessage is the raw inbound queue payload. Both camelCase and
// snake_case key spellings are accepted from producers.
type TaskMessage struct {
	CorrelationKey string `json:"correlationKey"`
	PDFBlobURL     string `json:"pdfBlobUrl"`
}

// Outcome statuses. Exactly one outcome is published per work item.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Outcome is the terminal message published to the results queue.
type Outcome struct {
	CorrelationKey string `json:"correlationKey"`
	Status         string `json:"status"`
	ResultsBlobURL string `json:"resultsBlobUrl,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
}

// PubSubMessage is the payload of a Pub/Sub CloudEvent as delivered to the
// function. Data is base64 in the wire form; encoding/json decodes it.
type PubSubMessage struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
}
