package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stemsplit/api/internal/model"
)

// processSeparator runs the separation model as a child process. The
// model weights for a profile are pulled on first use and cached by
// the tool itself, which is why constructing a new profile is slow and
// why instances are reused across jobs.
type processSeparator struct {
	binary  string
	profile model.StemProfile
}

// NewProcessFactory returns a Factory backed by an external separation
// binary (spleeter-compatible CLI).
func NewProcessFactory(binary string) Factory {
	return func(profile model.StemProfile) (Separator, error) {
		if binary == "" {
			return nil, errors.New("no separation binary configured")
		}
		if _, err := exec.LookPath(binary); err != nil {
			return nil, fmt.Errorf("separation binary unavailable: %w", err)
		}
		return &processSeparator{binary: binary, profile: profile}, nil
	}
}

func (p *processSeparator) Run(ctx context.Context, inputPath, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.binary, "separate",
		"-p", "spleeter:"+string(p.profile),
		"-o", outputDir,
		inputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("separation process failed: %v: %s", err, tail(out, 512))
	}

	outputs, err := collectOutputs(outputDir)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.New("separation produced no output files")
	}
	return outputs, nil
}

func (p *processSeparator) Close() error {
	// Nothing held between runs; the heavy state lives in the child
	// process which exits after each invocation.
	return nil
}

// collectOutputs walks outputDir and returns audio file paths relative
// to it. The tool nests stems under a directory named after the track.
func collectOutputs(outputDir string) ([]string, error) {
	var outputs []string
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".wav", ".mp3", ".flac", ".ogg", ".m4a":
		default:
			return nil
		}
		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		outputs = append(outputs, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect outputs: %w", err)
	}
	sort.Strings(outputs)
	return outputs, nil
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}
