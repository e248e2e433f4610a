package engine

import (
	"context"

	"github.com/stemsplit/api/internal/model"
)

// Separator is the stem separation engine. Implementations are
// stateful and expensive to construct (model weights are loaded at
// construction), so instances are reused across jobs via Cache.
type Separator interface {
	// Run separates inputPath into stems under outputDir and returns
	// the produced file names relative to outputDir.
	Run(ctx context.Context, inputPath, outputDir string) ([]string, error)

	// Close releases the instance's buffers and model weights.
	Close() error
}

// Factory constructs a Separator for a profile.
type Factory func(profile model.StemProfile) (Separator, error)
