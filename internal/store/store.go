package store

import (
	"errors"
	"sync"
	"time"

	"github.com/stemsplit/api/internal/model"
)

var (
	// ErrNotFound is returned when a job id is unknown or already evicted
	ErrNotFound = errors.New("job not found")

	// ErrTerminal is returned when an update targets a job that already
	// reached a terminal status
	ErrTerminal = errors.New("job already terminal")
)

// JobStore is the single source of truth for job state. It is an
// in-memory map plus an insertion-order slice; insertion order doubles
// as FIFO order because jobs are only ever created by submissions.
// Every operation takes the store lock, and mutators recompute queue
// positions under that same lock so a poller never observes a
// half-updated pending set.
type JobStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	order []string
}

func New() *JobStore {
	return &JobStore{
		jobs: make(map[string]*model.Job),
	}
}

// Insert adds a queued job. The job's queue position is set to the
// number of non-terminal jobs already in the store.
func (s *JobStore) Insert(job *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ahead := 0
	for _, id := range s.order {
		if !s.jobs[id].Status.Terminal() {
			ahead++
		}
	}

	cp := *job
	cp.Status = model.JobStatusQueued
	cp.QueuePosition = ahead
	s.jobs[cp.ID] = &cp
	s.order = append(s.order, cp.ID)
	job.Status = cp.Status
	job.QueuePosition = cp.QueuePosition
}

// Get returns a copy of the job record.
func (s *JobStore) Get(id string) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

// Update applies mutate to one record as an atomic read-modify-write.
// Jobs that already reached a terminal status are immutable.
func (s *JobStore) Update(id string, mutate func(*model.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrTerminal
	}
	mutate(job)
	if job.Status.Terminal() {
		s.recomputePositionsLocked()
	}
	return nil
}

// ClaimOldestPending picks the oldest queued job, transitions it to
// running with a seeded progress value and position 0, and recomputes
// the positions of the jobs left behind, all under one lock hold, so
// the transition and the position shuffle are a single atomic step.
func (s *JobStore) ClaimOldestPending() (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status != model.JobStatusQueued {
			continue
		}
		now := time.Now()
		job.Status = model.JobStatusRunning
		job.Progress = 5
		job.QueuePosition = 0
		job.StartedAt = &now
		s.recomputePositionsLocked()
		return cloneJob(job), true
	}
	return model.Job{}, false
}

// HasPending reports whether any queued job remains.
func (s *JobStore) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		if s.jobs[id].Status == model.JobStatusQueued {
			return true
		}
	}
	return false
}

// CountByState returns the number of jobs in each status.
func (s *JobStore) CountByState() map[model.JobStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[model.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// Len returns the total number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// EvictTerminal bounds store growth. When more than capacity jobs are
// stored, the oldest terminal jobs are removed until floor jobs remain
// (or no terminal job is left). Queued and running jobs are never
// touched. Evicted records are returned oldest-first so the caller can
// reclaim their on-disk artifacts.
func (s *JobStore) EvictTerminal(capacity, floor int) []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) <= capacity {
		return nil
	}

	var evicted []model.Job
	kept := s.order[:0]
	for _, id := range s.order {
		job := s.jobs[id]
		if len(s.order)-len(evicted) > floor && job.Status.Terminal() {
			evicted = append(evicted, cloneJob(job))
			delete(s.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return evicted
}

// recomputePositionsLocked reassigns dense zero-based positions to all
// queued jobs in FIFO order. Caller must hold s.mu.
func (s *JobStore) recomputePositionsLocked() {
	pos := 0
	for _, id := range s.order {
		job := s.jobs[id]
		if job.Status == model.JobStatusQueued {
			job.QueuePosition = pos
			pos++
		}
	}
}

func cloneJob(job *model.Job) model.Job {
	cp := *job
	if job.Outputs != nil {
		cp.Outputs = append([]string(nil), job.Outputs...)
	}
	if job.Error != nil {
		e := *job.Error
		cp.Error = &e
	}
	return cp
}
