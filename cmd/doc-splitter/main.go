package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/freightflow/docsplitter/internal/models"
	"github.com/freightflow/docsplitter/internal/services"
)

var (
	processorInstance *services.Processor
	once              sync.Once
	initErr           error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Register the CloudEvent function. The framework handles routing the
	// Pub/Sub push event here.
	functions.CloudEvent("SplitDocument", splitDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// splitDocument is the Cloud Function entry point for the task queue
// subscription.
func splitDocument(ctx context.Context, e cloudevents.Event) error {
	// One-time initialization of all GCP clients.
	once.Do(func() {
		processorInstance, initErr = services.NewProcessor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	logCtx := slog.With("invocationId", uuid.NewString(), "eventId", e.ID())

	// Unwrap the Pub/Sub envelope; Data arrives base64-encoded and is
	// decoded by encoding/json into raw bytes.
	var envelope models.PubSubMessage
	if err := json.Unmarshal(e.Data(), &envelope); err != nil {
		logCtx.Error("Failed to unmarshal Pub/Sub envelope", "error", err)
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Process publishes the outcome itself; the returned error only
	// controls whether the message is redelivered.
	return processorInstance.Process(ctx, logCtx, envelope.Message.Data)
}
