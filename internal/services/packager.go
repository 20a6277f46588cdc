package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/freightflow/docsplitter/internal/models"
)

// ManifestName is the fixed name of the manifest entry inside the results
// archive.
const ManifestName = "manifest.json"

// ResultPackager assembles split artifacts plus the manifest into a single
// downloadable ZIP.
type ResultPackager struct{}

func NewResultPackager() *ResultPackager { return &ResultPackager{} }

// Package writes one archive entry per artifact plus the manifest. The
// manifest is always present, even for a zero-document result. If
// sourcePath names a file still resident on disk, the original source is
// included under its base name; an unreadable source is skipped, not
// fatal.
func (p *ResultPackager) Package(artifacts []models.SplitArtifact, manifest models.PipelineResult, sourcePath string) ([]byte, error) {
	manifestBytes, err := MarshalManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entry, err := zw.Create(ManifestName)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest entry: %w", err)
	}
	if _, err := entry.Write(manifestBytes); err != nil {
		return nil, fmt.Errorf("failed to write manifest entry: %w", err)
	}

	for _, artifact := range artifacts {
		entry, err := zw.Create(artifact.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry %s: %w", artifact.FileName, err)
		}
		if _, err := entry.Write(artifact.Bytes); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", artifact.FileName, err)
		}
	}

	if sourcePath != "" {
		if sourceBytes, err := os.ReadFile(sourcePath); err == nil {
			entry, err := zw.Create(filepath.Base(sourcePath))
			if err != nil {
				return nil, fmt.Errorf("failed to create source entry: %w", err)
			}
			if _, err := entry.Write(sourceBytes); err != nil {
				return nil, fmt.Errorf("failed to write source entry: %w", err)
			}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalManifest serializes the manifest pretty-printed with stable field
// ordering, so re-running the pipeline on identical inputs produces
// byte-identical output.
func MarshalManifest(manifest models.PipelineResult) ([]byte, error) {
	return json.MarshalIndent(manifest, "", "  ")
}
