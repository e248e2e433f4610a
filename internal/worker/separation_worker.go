package worker

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/engine"
	"github.com/stemsplit/api/internal/model"
	"github.com/stemsplit/api/internal/store"
	"github.com/stemsplit/api/internal/websocket"
)

// Worker runs separation jobs one at a time. The engine is too heavy
// to run twice concurrently, so a single loop goroutine owns the
// engine cache and executes the queue in FIFO order. The loop starts
// lazily on the first submission and exits once the queue drains.
type Worker struct {
	store     *store.JobStore
	engines   *engine.Cache
	hub       *websocket.Hub
	retention config.RetentionConfig

	mu     sync.Mutex
	active bool
}

func New(jobStore *store.JobStore, engines *engine.Cache, hub *websocket.Hub, retention config.RetentionConfig) *Worker {
	return &Worker{
		store:     jobStore,
		engines:   engines,
		hub:       hub,
		retention: retention,
	}
}

// EnsureRunning starts the loop goroutine unless one is already
// active. Safe to call from any number of concurrent submissions; at
// most one loop exists process-wide.
func (w *Worker) EnsureRunning() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active {
		return
	}
	w.active = true
	go w.run()
}

func (w *Worker) run() {
	for {
		job, ok := w.store.ClaimOldestPending()
		if !ok {
			// Re-check under the EnsureRunning lock so a submission
			// that raced the drain either sees active=true or finds
			// active=false and starts a fresh loop.
			w.mu.Lock()
			if !w.store.HasPending() {
				w.active = false
				w.mu.Unlock()
				return
			}
			w.mu.Unlock()
			continue
		}

		log.Printf("Starting separation job %s (%s)", job.ID, job.Profile)
		w.hub.BroadcastProgress(job.ID, job.Progress, model.JobStatusRunning, "Preparing separation engine...")

		w.process(job)

		w.sweep()
	}
}

func (w *Worker) process(job model.Job) {
	sep, err := w.engines.Acquire(job.Profile)
	if err != nil {
		w.fail(job, "Separation engine unavailable: "+err.Error())
		return
	}

	w.checkpoint(job.ID, 25, "Separating stems...")

	outputs, err := sep.Run(context.Background(), job.InputPath, job.OutputDir)
	if err != nil {
		w.fail(job, "Separation failed: "+err.Error())
		return
	}

	w.complete(job, outputs)
}

func (w *Worker) checkpoint(jobID string, progress int, step string) {
	err := w.store.Update(jobID, func(j *model.Job) {
		if progress > j.Progress {
			j.Progress = progress
		}
	})
	if err != nil {
		log.Printf("Failed to update progress for job %s: %v", jobID, err)
		return
	}
	w.hub.BroadcastProgress(jobID, progress, model.JobStatusRunning, step)
}

func (w *Worker) complete(job model.Job, outputs []string) {
	err := w.store.Update(job.ID, func(j *model.Job) {
		now := time.Now()
		j.Status = model.JobStatusSucceeded
		j.Progress = 100
		j.Outputs = outputs
		j.CompletedAt = &now
		j.InputPath = ""
	})
	if err != nil {
		log.Printf("Failed to complete job %s: %v", job.ID, err)
		return
	}

	w.removeInput(job)
	w.hub.BroadcastProgress(job.ID, 100, model.JobStatusSucceeded, "Done")
	w.hub.BroadcastComplete(job.ID, outputs)
	log.Printf("Separation job %s completed with %d stems", job.ID, len(outputs))
}

func (w *Worker) fail(job model.Job, detail string) {
	err := w.store.Update(job.ID, func(j *model.Job) {
		now := time.Now()
		j.Status = model.JobStatusFailed
		j.Error = &detail
		j.CompletedAt = &now
		j.InputPath = ""
	})
	if err != nil {
		log.Printf("Failed to mark job %s as failed: %v", job.ID, err)
		return
	}

	w.removeInput(job)
	w.hub.BroadcastError(job.ID, "SEPARATION_FAILED", detail)
	log.Printf("Separation job %s failed: %s", job.ID, detail)
}

// removeInput reclaims the uploaded audio once the job is terminal.
// Deletion failures are logged, never fatal.
func (w *Worker) removeInput(job model.Job) {
	if job.InputPath == "" {
		return
	}
	if err := os.Remove(job.InputPath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove input for job %s: %v", job.ID, err)
	}
}

// sweep bounds store growth by evicting the oldest terminal jobs and
// deleting their directories once capacity is exceeded.
func (w *Worker) sweep() {
	evicted := w.store.EvictTerminal(w.retention.Capacity, w.retention.Floor)
	for _, job := range evicted {
		if job.Dir == "" {
			continue
		}
		if err := os.RemoveAll(job.Dir); err != nil {
			log.Printf("Failed to remove artifacts for evicted job %s: %v", job.ID, err)
		}
	}
	if len(evicted) > 0 {
		log.Printf("Evicted %d terminal jobs from store", len(evicted))
	}
}
