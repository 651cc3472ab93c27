package interfaces

import (
	"context"
	"errors"

	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/models"
)

var (
	// ErrAnalysis is returned when a workflow cannot be analyzed (malformed input)
	ErrAnalysis = errors.New("workflow analysis failed")
	// ErrNotFound is returned when a requested artifact or record does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for missing or invalid paths and payloads
	ErrInvalidInput = errors.New("invalid input")
)

// ProgressFunc receives (current, total) from long-running collaborator calls.
// It may be called zero or more times.
type ProgressFunc func(current, total int)

// ModelAnalyzer extracts missing model references from a workflow and writes the intermediate table
type ModelAnalyzer interface {
	// FindMissingModels returns the references of the workflow at path that are missing on disk.
	// Malformed workflows fail with an error wrapping ErrAnalysis.
	FindMissingModels(ctx context.Context, path string) ([]models.ModelReference, error)

	// EmitIntermediateArtifact writes refs to a tabular file named after baseName.
	// An empty path means nothing was written.
	EmitIntermediateArtifact(ctx context.Context, refs []models.ModelReference, baseName string) (string, error)
}

// LinkSearcher discovers download links for the models listed in an intermediate artifact
// and renders the report
type LinkSearcher interface {
	SearchLinks(ctx context.Context, artifactPath string, progress ProgressFunc) (models.StageResult, error)
}

// BatchProcessor analyzes every workflow under a directory matching pattern and writes one aggregate
type BatchProcessor interface {
	BatchProcess(ctx context.Context, dir, pattern string, progress ProgressFunc) (models.StageResult, error)
}

// Opener opens a file or folder with the platform's default handler
type Opener interface {
	Open(target string) error
}
