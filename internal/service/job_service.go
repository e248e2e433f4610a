package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stemsplit/api/internal/analysis"
	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/store"
	"github.com/stemsplit/api/internal/worker"
)

// DurationExceededError rejects a submission whose audio is longer
// than the configured ceiling.
type DurationExceededError struct {
	Duration float64
	Limit    float64
}

func (e *DurationExceededError) Error() string {
	return fmt.Sprintf("audio duration %.1fs exceeds the %.0fs limit", e.Duration, e.Limit)
}

// JobService admits separation requests into the queue and projects
// job state for polling clients.
type JobService struct {
	store    *store.JobStore
	worker   *worker.Worker
	analyzer *analysis.Client
	cfg      *config.Config
}

func NewJobService(jobStore *store.JobStore, w *worker.Worker, analyzer *analysis.Client, cfg *config.Config) *JobService {
	return &JobService{
		store:    jobStore,
		worker:   w,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

// Submit validates and enqueues a separation request. It persists the
// upload, creates a queued job, and kicks the worker. Returns without
// waiting for execution.
func (s *JobService) Submit(ctx context.Context, filename string, src io.Reader, requestedStems string) (*model.SubmitResponse, error) {
	if requestedStems == "" {
		requestedStems = s.cfg.Engine.DefaultStems
	}
	profile := model.NormalizeProfile(requestedStems, s.cfg.Engine.MaxStems)
	if string(profile) != requestedStems {
		log.Printf("Normalized requested profile %q to %s", requestedStems, profile)
	}

	jobID := uuid.New().String()
	jobDir := filepath.Join(s.cfg.Storage.Root, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}

	inputPath := filepath.Join(jobDir, "input"+inputExt(filename))
	if err := saveUpload(inputPath, src); err != nil {
		os.RemoveAll(jobDir)
		return nil, fmt.Errorf("persist upload: %w", err)
	}

	if err := s.checkDuration(ctx, inputPath); err != nil {
		os.RemoveAll(jobDir)
		return nil, err
	}

	job := &model.Job{
		ID:        jobID,
		Profile:   profile,
		Progress:  0,
		CreatedAt: time.Now(),
		Dir:       jobDir,
		InputPath: inputPath,
		OutputDir: filepath.Join(jobDir, "stems"),
	}
	s.store.Insert(job)
	s.worker.EnsureRunning()

	return &model.SubmitResponse{
		JobID:         job.ID,
		Status:        job.Status,
		QueuePosition: job.QueuePosition,
		Profile:       job.Profile,
		Message:       queuedMessage(job.QueuePosition),
	}, nil
}

// checkDuration enforces the admission ceiling. Best-effort: when no
// extractor is configured and the header probe cannot read the file,
// the submission is admitted rather than blocked.
func (s *JobService) checkDuration(ctx context.Context, inputPath string) error {
	limit := s.cfg.Limits.MaxDurationSeconds
	if limit <= 0 {
		return nil
	}

	duration, ok := s.measureDuration(ctx, inputPath)
	if !ok {
		return nil
	}
	if duration > limit {
		return &DurationExceededError{Duration: duration, Limit: limit}
	}
	return nil
}

func (s *JobService) measureDuration(ctx context.Context, inputPath string) (float64, bool) {
	if s.analyzer != nil {
		f, err := os.Open(inputPath)
		if err == nil {
			defer f.Close()
			result, err := s.analyzer.Analyze(ctx, filepath.Base(inputPath), f)
			if err == nil && result.Duration > 0 {
				return result.Duration, true
			}
			if err != nil {
				log.Printf("Duration check via analysis service failed: %v", err)
			}
		}
	}
	return analysis.ProbeDuration(inputPath)
}

// Status projects one job into its client-facing view.
func (s *JobService) Status(id string) (*model.JobStatusResponse, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Profile:     job.Profile,
		Progress:    job.Progress,
		Outputs:     job.Outputs,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if resp.Outputs == nil {
		resp.Outputs = []string{}
	}

	switch job.Status {
	case model.JobStatusQueued:
		pos := job.QueuePosition
		resp.QueuePosition = &pos
		resp.Message = queuedMessage(pos)
	case model.JobStatusRunning:
		resp.Message = "Separating stems, this can take a few minutes"
	case model.JobStatusFailed:
		resp.Message = "Separation failed"
	}
	return resp, nil
}

// QueueStats aggregates per-state counts.
func (s *JobService) QueueStats() *model.QueueStatsResponse {
	counts := s.store.CountByState()
	return &model.QueueStatsResponse{
		PendingCount:  counts[model.JobStatusQueued],
		RunningCount:  counts[model.JobStatusRunning],
		CompleteCount: counts[model.JobStatusSucceeded],
		FailedCount:   counts[model.JobStatusFailed],
	}
}

// OutputPath resolves a named output artifact to its on-disk path. The
// name must match one of the job's recorded outputs, which keeps path
// traversal out of the download handler.
func (s *JobService) OutputPath(id, name string) (string, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	for _, out := range job.Outputs {
		if out == name {
			return filepath.Join(job.OutputDir, filepath.FromSlash(out)), nil
		}
	}
	return "", store.ErrNotFound
}

func queuedMessage(position int) string {
	if position == 0 {
		return "Queued, next in line"
	}
	return fmt.Sprintf("Queued, %d job(s) ahead of you", position)
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func inputExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".wav", ".mp3", ".flac", ".ogg", ".m4a", ".aac":
		return ext
	default:
		return ".mp3"
	}
}
