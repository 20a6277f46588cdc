package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
)

// JobLog records pipeline state transitions in Firestore, one document per
// correlation key. Writes are advisory: a failed write logs a warning and
// never affects the pipeline outcome.
type JobLog struct {
	client     *firestore.Client
	collection string
}

// jobRecord is the audit document for one work item. Overwriting on
// redelivery is intentional: the queue contract is at-least-once.
type jobRecord struct {
	CorrelationKey string    `firestore:"correlationKey"`
	State          string    `firestore:"state"`
	Detail         string    `firestore:"detail,omitempty"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// NewJobLog creates a Firestore client bound to the audit collection.
func NewJobLog(ctx context.Context, projectID, collection string) (*JobLog, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &JobLog{client: client, collection: collection}, nil
}

// RecordState upserts the audit document for the given correlation key.
func (l *JobLog) RecordState(ctx context.Context, correlationKey, state, detail string) {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := l.client.Collection(l.collection).Doc(correlationKey).Set(writeCtx, jobRecord{
		CorrelationKey: correlationKey,
		State:          state,
		Detail:         detail,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		slog.Warn("Failed to record job state.", "correlationKey", correlationKey, "state", state, "error", err)
	}
}

func (l *JobLog) Close() error {
	return l.client.Close()
}
