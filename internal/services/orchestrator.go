package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/freightflow/docsplitter/internal/gcp"
	"github.com/freightflow/docsplitter/internal/models"
)

// Pipeline states, recorded to the job audit trail as the invocation
// advances. Any state may transition to StateFailed instead.
const (
	StateReceived   = "RECEIVED"
	StateValidated  = "VALIDATED"
	StateDownloaded = "DOWNLOADED"
	StateExtracted  = "EXTRACTED"
	StateSplit      = "SPLIT"
	StatePackaged   = "PACKAGED"
	StateUploaded   = "UPLOADED"
	StateNotified   = "NOTIFIED"
	StateFailed     = "FAILED"
)

// unknownKey labels outcomes for messages that failed before their
// correlation key could be validated.
const unknownKey = "UNKNOWN"

// Seams for the orchestrator's collaborators. Production wiring uses the
// GCP-backed implementations; tests substitute fakes.
type boundaryExtractor interface {
	Extract(ctx context.Context, pdfBytes []byte) ([]models.DocumentDescriptor, error)
}

type rotationEstimator interface {
	EstimateSafe(ctx context.Context, pdfBytes []byte) []models.PageRotation
}

type objectStore interface {
	Download(ctx context.Context, bucket, object, destPath string) error
	Upload(ctx context.Context, bucket, object, localPath string) error
}

type outcomePublisher interface {
	Publish(ctx context.Context, data []byte) error
}

type jobRecorder interface {
	RecordState(ctx context.Context, correlationKey, state, detail string)
}

// Processor holds the dependencies for one worker deployment. Many
// invocations may run Process concurrently; all fields are effectively
// immutable after construction.
type Processor struct {
	config    *Config
	store     objectStore
	publisher outcomePublisher
	jobs      jobRecorder
	boundary  boundaryExtractor
	rotation  rotationEstimator
	splitter  *PageSplitter
	packager  *ResultPackager

	vertexClient *gcp.VertexClient
}

// NewProcessor constructs the processor and all client handles. Called
// exactly once per process, from the entry point's sync.Once.
func NewProcessor(ctx context.Context) (*Processor, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, Critical("failed to create storage client", err)
	}
	jobLog, err := gcp.NewJobLog(ctx, config.ProjectID, config.JobsCollection)
	if err != nil {
		return nil, Critical("failed to create firestore job log", err)
	}
	vertexClient, err := gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion, config.BoundaryModel, config.RotationModel)
	if err != nil {
		return nil, Critical("failed to create vertex client", err)
	}
	publisher, err := gcp.NewResultPublisher(ctx, config.ProjectID, config.ResultsTopic)
	if err != nil {
		return nil, Critical("failed to create result publisher", err)
	}

	slog.Info("Document splitter initialized.",
		"boundaryModel", config.BoundaryModel,
		"rotationModel", config.RotationModel,
		"resultsBucket", config.ResultsBucket,
		"resultsTopic", config.ResultsTopic,
	)

	return &Processor{
		config:       config,
		store:        &gcsObjectStore{client: storageClient, attemptTimeout: config.UploadTimeout},
		publisher:    publisher,
		jobs:         jobLog,
		boundary:     NewBoundaryExtractor(vertexClient.BoundaryModel, config.MaxDocuments),
		rotation:     NewRotationEstimator(vertexClient.RotationModel),
		splitter:     NewPageSplitter(),
		packager:     NewResultPackager(),
		vertexClient: vertexClient,
	}, nil
}

// Process runs the full pipeline for one queue message and publishes
// exactly one outcome. The returned error controls redelivery: non-nil
// marks the invocation failed so the host re-signals the message
// (Transient and Critical failures); nil acknowledges it (success and
// Permanent failures).
func (p *Processor) Process(ctx context.Context, logCtx *slog.Logger, msgBody []byte) error {
	correlationKey, resultsURL, runErr := p.run(ctx, logCtx, msgBody)

	if runErr == nil {
		outcome := models.Outcome{
			CorrelationKey: correlationKey,
			Status:         models.StatusSuccess,
			ResultsBlobURL: resultsURL,
		}
		if err := p.publishOutcome(ctx, outcome); err != nil {
			// The success outcome was not delivered; fail the invocation
			// so the host redelivers. No second outcome is published.
			logCtx.Error("Failed to publish success outcome", "correlationKey", correlationKey, "error", err)
			return Transient("failed to publish success outcome", err)
		}
		p.jobs.RecordState(ctx, correlationKey, StateNotified, "")
		logCtx.Info("Work item processed successfully.", "correlationKey", correlationKey, "resultsUrl", SanitizeURLForLogging(resultsURL))
		return nil
	}

	severity := Classify(runErr)
	message := SanitizeErrorMessage(runErr.Error())
	var extErr *ExtractionError
	if errors.As(runErr, &extErr) && extErr.Raw != "" {
		// The raw response stays in the logs only, never in the outcome.
		logCtx.Warn("Rejected model response retained for diagnostics.",
			"correlationKey", correlationKey, "rawResponse", SanitizeErrorMessage(extErr.Raw))
	}
	outcome := models.Outcome{
		CorrelationKey: correlationKey,
		Status:         models.StatusFailure,
		ErrorMessage:   message,
	}
	if err := p.publishOutcome(ctx, outcome); err != nil {
		logCtx.Error("Failed to publish failure outcome", "correlationKey", correlationKey, "error", err)
	}
	if correlationKey != unknownKey {
		p.jobs.RecordState(ctx, correlationKey, StateFailed, message)
	}

	switch severity {
	case SeverityPermanent:
		logCtx.Error("Permanent failure; message will not be redelivered.", "correlationKey", correlationKey, "error", message)
		return nil
	case SeverityCritical:
		logCtx.Error("Critical failure; operator action required.", "correlationKey", correlationKey, "error", message)
		return runErr
	default:
		logCtx.Warn("Transient failure; message will be redelivered.", "correlationKey", correlationKey, "error", message)
		return runErr
	}
}

// run executes the happy path Received through Uploaded and returns the
// correlation key (unknownKey until validated) and results URL. The
// per-invocation temp directory is removed on every exit path.
func (p *Processor) run(ctx context.Context, logCtx *slog.Logger, msgBody []byte) (string, string, error) {
	item, err := ParseWorkItem(msgBody, p.config.AllowedSourceBuckets)
	if err != nil {
		return unknownKey, "", err
	}
	logCtx = logCtx.With("correlationKey", item.CorrelationKey)
	logCtx.Info("Work item validated.", "sourceUrl", SanitizeURLForLogging(item.SourceRef))
	p.jobs.RecordState(ctx, item.CorrelationKey, StateReceived, "")
	p.jobs.RecordState(ctx, item.CorrelationKey, StateValidated, "")

	tempDir, err := os.MkdirTemp("", "docsplit-*")
	if err != nil {
		return item.CorrelationKey, "", Transient("failed to create temp dir", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, sourceFileName(item.SourceObject))
	if err := p.download(ctx, item, sourcePath); err != nil {
		return item.CorrelationKey, "", err
	}

	pageCount, err := ValidatePDF(sourcePath, p.config.MaxPDFBytes, p.config.MaxPages)
	if err != nil {
		return item.CorrelationKey, "", err
	}
	logCtx.Info("Source PDF downloaded.", "pageCount", pageCount)
	p.jobs.RecordState(ctx, item.CorrelationKey, StateDownloaded, "")

	pdfBytes, err := os.ReadFile(sourcePath)
	if err != nil {
		return item.CorrelationKey, "", Transient("failed to read downloaded PDF", err)
	}

	descriptors, rotations, err := p.extract(ctx, pdfBytes)
	if err != nil {
		return item.CorrelationKey, "", err
	}
	logCtx.Info("Boundary extraction complete.", "documents", len(descriptors), "rotatedPages", len(rotations))
	p.jobs.RecordState(ctx, item.CorrelationKey, StateExtracted, "")

	documents := MergeRotations(descriptors, rotations)
	artifacts, documents, err := p.splitAll(logCtx, sourcePath, pageCount, documents, rotations)
	if err != nil {
		return item.CorrelationKey, "", err
	}
	p.jobs.RecordState(ctx, item.CorrelationKey, StateSplit, "")

	manifest := models.PipelineResult{
		SourceRef:      item.SourceRef,
		TotalDocuments: len(documents),
		Documents:      documents,
	}
	archive, err := p.packager.Package(artifacts, manifest, sourcePath)
	if err != nil {
		return item.CorrelationKey, "", Transient("failed to create results archive", err)
	}
	p.jobs.RecordState(ctx, item.CorrelationKey, StatePackaged, "")

	resultsURL, err := p.upload(ctx, tempDir, item.CorrelationKey, archive)
	if err != nil {
		return item.CorrelationKey, "", err
	}
	logCtx.Info("Results archive uploaded.", "resultsUrl", SanitizeURLForLogging(resultsURL))
	p.jobs.RecordState(ctx, item.CorrelationKey, StateUploaded, "")

	return item.CorrelationKey, resultsURL, nil
}

func (p *Processor) download(ctx context.Context, item models.WorkItem, destPath string) error {
	dctx, cancel := context.WithTimeout(ctx, p.config.DownloadTimeout)
	defer cancel()
	if err := p.store.Download(dctx, item.SourceBucket, item.SourceObject, destPath); err != nil {
		return Transient("failed to download source PDF", err)
	}
	return nil
}

// extract runs boundary extraction and rotation estimation concurrently.
// Their relative order does not matter: rotation failures are absorbed
// into an empty result, and only the boundary call can fail the group.
func (p *Processor) extract(ctx context.Context, pdfBytes []byte) ([]models.DocumentDescriptor, []models.PageRotation, error) {
	var descriptors []models.DocumentDescriptor
	var rotations []models.PageRotation

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		mctx, cancel := context.WithTimeout(gctx, p.config.ModelTimeout)
		defer cancel()
		var err error
		descriptors, err = p.boundary.Extract(mctx, pdfBytes)
		return err
	})
	eg.Go(func() error {
		mctx, cancel := context.WithTimeout(gctx, p.config.ModelTimeout)
		defer cancel()
		rotations = p.rotation.EstimateSafe(mctx, pdfBytes)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return descriptors, rotations, nil
}

// splitAll materializes one artifact per descriptor and stamps the
// deterministic file name back onto the manifest entry.
func (p *Processor) splitAll(logCtx *slog.Logger, sourcePath string, pageCount int, documents []models.DocumentDescriptor, rotations []models.PageRotation) ([]models.SplitArtifact, []models.DocumentDescriptor, error) {
	rotationLookup := make(map[int]int, len(rotations))
	for _, r := range rotations {
		rotationLookup[r.PageNo] = r.RotationDegrees
	}

	// sourceFileName guarantees a .pdf suffix in some letter case; drop it
	// without disturbing the case of the rest of the name.
	name := sourceFileName(sourcePath)
	baseName := name[:len(name)-len(".pdf")]
	artifacts := make([]models.SplitArtifact, 0, len(documents))
	for i, doc := range documents {
		fileName := ArtifactFileName(baseName, doc.DocType, i+1, doc.StartPage, doc.EndPage)
		docBytes, err := p.splitter.Split(sourcePath, doc.StartPage, doc.EndPage, pageCount, rotationLookup)
		if err != nil {
			return nil, nil, Transient(fmt.Sprintf("failed to split document %d (pages %d-%d)", i+1, doc.StartPage, doc.EndPage), err)
		}
		documents[i].FileName = fileName
		artifacts = append(artifacts, models.SplitArtifact{
			Descriptor: documents[i],
			FileName:   fileName,
			Bytes:      docBytes,
		})
		logCtx.Info("Document split.", "docType", doc.DocType, "startPage", doc.StartPage, "endPage", doc.EndPage, "fileName", fileName)
	}
	return artifacts, documents, nil
}

func (p *Processor) upload(ctx context.Context, tempDir, correlationKey string, archive []byte) (string, error) {
	zipName := correlationKey + "_results.zip"
	zipPath := filepath.Join(tempDir, zipName)
	if err := os.WriteFile(zipPath, archive, 0o600); err != nil {
		return "", Transient("failed to write results archive", err)
	}

	// Deterministic destination: redelivery of the same work item
	// overwrites the same object.
	destObject := correlationKey + "/" + zipName
	uctx, cancel := context.WithTimeout(ctx, p.config.UploadTimeout)
	defer cancel()
	if err := p.store.Upload(uctx, p.config.ResultsBucket, destObject, zipPath); err != nil {
		return "", Transient("failed to upload results archive", err)
	}
	return gcp.ObjectURL(p.config.ResultsBucket, destObject), nil
}

func (p *Processor) publishOutcome(ctx context.Context, outcome models.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()
	return p.publisher.Publish(pctx, payload)
}

// Close releases the model client. Storage and queue clients are owned by
// the process and reclaimed at exit.
func (p *Processor) Close() error {
	if p.vertexClient != nil {
		return p.vertexClient.Close()
	}
	return nil
}

// sourceFileName derives a safe local file name from the source object
// path, falling back when the base segment is unusable.
func sourceFileName(objectPath string) string {
	base := filepath.Base(objectPath)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "source.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(base), ".pdf") {
		base += ".pdf"
	}
	return base
}
