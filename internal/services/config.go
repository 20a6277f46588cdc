package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/freightflow/docsplitter/internal/gcp"
)

// Config holds all settings for the document processing pipeline.
type Config struct {
	ProjectID      string
	VertexAIRegion string
	BoundaryModel  string
	RotationModel  string

	AllowedSourceBuckets []string
	ResultsBucket        string
	ResultsTopic         string
	JobsCollection       string

	MaxPDFBytes  int64
	MaxPages     int
	MaxDocuments int

	ModelTimeout    time.Duration
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
	PublishTimeout  time.Duration
}

// LoadConfig reads and validates all environment configuration. A missing
// required value is a Critical error: no amount of redelivery fixes it.
func LoadConfig() (*Config, error) {
	// Best-effort for local runs; deployed functions get real env vars.
	_ = godotenv.Load()

	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, Critical("PROJECT_ID environment variable must be set", nil)
	}
	resultsBucket := gcp.GetEnv("RESULTS_BUCKET", "")
	if resultsBucket == "" {
		return nil, Critical("RESULTS_BUCKET environment variable must be set", nil)
	}
	resultsTopic := gcp.GetEnv("RESULTS_TOPIC", "")
	if resultsTopic == "" {
		return nil, Critical("RESULTS_TOPIC environment variable must be set", nil)
	}
	allowedBuckets := splitCSV(gcp.GetEnv("ALLOWED_SOURCE_BUCKETS", ""))
	if len(allowedBuckets) == 0 {
		return nil, Critical("ALLOWED_SOURCE_BUCKETS environment variable must be set", nil)
	}

	return &Config{
		ProjectID:            projectID,
		VertexAIRegion:       gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		BoundaryModel:        gcp.GetEnv("BOUNDARY_MODEL", "gemini-2.5-flash"),
		RotationModel:        gcp.GetEnv("ROTATION_MODEL", "gemini-2.0-flash"),
		AllowedSourceBuckets: allowedBuckets,
		ResultsBucket:        resultsBucket,
		ResultsTopic:         resultsTopic,
		JobsCollection:       gcp.GetEnv("JOBS_COLLECTION", "jobs"),
		MaxPDFBytes:          int64(envInt("MAX_PDF_MEGABYTES", 1024)) * 1024 * 1024,
		MaxPages:             envInt("MAX_PAGES", 500),
		MaxDocuments:         envInt("MAX_DOCUMENTS", 100),
		ModelTimeout:         envSeconds("MODEL_TIMEOUT_SECONDS", 300),
		DownloadTimeout:      envSeconds("DOWNLOAD_TIMEOUT_SECONDS", 120),
		UploadTimeout:        envSeconds("UPLOAD_TIMEOUT_SECONDS", 120),
		PublishTimeout:       envSeconds("PUBLISH_TIMEOUT_SECONDS", 30),
	}, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Second
}
