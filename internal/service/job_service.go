package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/logger"
	"github.com/makeasinger/controlpanel/internal/model"
	"github.com/makeasinger/controlpanel/internal/store"
	"github.com/makeasinger/controlpanel/pkg/protocol"
)

// Publisher broadcasts a server-initiated event to every session and
// returns the id it was sent under.
type Publisher interface {
	Publish(p protocol.Payload) (int64, error)
}

// JobRunner starts the progress driver of a created job somewhere: on a
// local goroutine or through a task queue.
type JobRunner interface {
	Launch(ctx context.Context, jobID int64) error
}

// JobConfig sets the pace of simulated job progress.
type JobConfig struct {
	Step      int
	Interval  time.Duration
	Threshold int
}

var ErrNoRunner = errors.New("no job runner configured")

// JobService allocates job ids and drives each job from Starting... to
// Complete, publishing jobProgress after every step and one jobComplete.
type JobService struct {
	store  store.JobStore
	events Publisher
	runner JobRunner
	cfg    JobConfig

	active atomic.Int64
}

func NewJobService(jobStore store.JobStore, events Publisher, cfg JobConfig) *JobService {
	if cfg.Step <= 0 {
		cfg.Step = 10
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 100 {
		cfg.Threshold = 100
	}
	return &JobService{
		store:  jobStore,
		events: events,
		cfg:    cfg,
	}
}

// SetRunner chooses where drivers run. It must be called before the first Launch.
func (s *JobService) SetRunner(r JobRunner) {
	s.runner = r
}

// Create allocates a job id from the store and records the job as
// Starting.... Ids are never reused while the store's data survives.
func (s *JobService) Create(ctx context.Context, kind, target string) (*model.Job, error) {
	id, err := s.store.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate job id: %w", err)
	}
	job := &model.Job{
		ID:        id,
		Kind:      kind,
		Target:    target,
		Status:    model.JobStatusStarting,
		Progress:  0,
		CreatedAt: time.Now(),
	}
	s.save(ctx, job)
	logger.Info("Job created", zap.Int64("jobId", job.ID), zap.String("kind", kind))
	return job, nil
}

// Launch hands a created job to the runner.
func (s *JobService) Launch(ctx context.Context, jobID int64) error {
	if s.runner == nil {
		return ErrNoRunner
	}
	if err := s.runner.Launch(ctx, jobID); err != nil {
		return fmt.Errorf("failed to launch job %d: %w", jobID, err)
	}
	return nil
}

// Get returns the latest record of a job.
func (s *JobService) Get(ctx context.Context, jobID int64) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

// InFlight returns the number of drivers currently running in this process.
func (s *JobService) InFlight() int64 {
	return s.active.Load()
}

// Drive advances the job one step per interval until it reaches the
// threshold. Cancelling ctx abandons the job: its record is marked
// Abandoned and no jobComplete is published.
func (s *JobService) Drive(ctx context.Context, jobID int64) error {
	s.active.Add(1)
	defer s.active.Add(-1)

	job := s.load(ctx, jobID)
	if job.Terminal() {
		return nil
	}
	started := time.Now()
	job.StartedAt = &started

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			job.Status = model.JobStatusAbandoned
			s.save(context.WithoutCancel(ctx), job)
			logger.Warn("Job abandoned", zap.Int64("jobId", jobID), zap.Int("progress", job.Progress))
			return ctx.Err()
		case <-ticker.C:
		}

		job.Progress = min(job.Progress+s.cfg.Step, s.cfg.Threshold)
		job.Status = model.JobStatusRunning
		s.save(ctx, job)
		s.publish(protocol.JobProgress{JobID: jobID, Status: string(job.Status), Progress: job.Progress})

		if job.Progress >= s.cfg.Threshold {
			break
		}
	}

	completed := time.Now()
	job.Status = model.JobStatusComplete
	job.CompletedAt = &completed
	s.save(ctx, job)
	s.publish(protocol.JobComplete{JobID: jobID, Status: string(job.Status), Progress: job.Progress})
	logger.Info("Job complete", zap.Int64("jobId", jobID), zap.Duration("took", completed.Sub(started)))
	return nil
}

// load returns the stored record, or a fresh one when the store has lost it.
func (s *JobService) load(ctx context.Context, jobID int64) *model.Job {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, store.ErrJobNotFound) {
			logger.Warn("Failed to load job", zap.Int64("jobId", jobID), zap.Error(err))
		}
		return &model.Job{ID: jobID, Status: model.JobStatusStarting, CreatedAt: time.Now()}
	}
	return job
}

// Store failures never stop a driver; events are the source of truth for clients.
func (s *JobService) save(ctx context.Context, job *model.Job) {
	if err := s.store.Save(ctx, job); err != nil {
		logger.Warn("Failed to save job", zap.Int64("jobId", job.ID), zap.Error(err))
	}
}

func (s *JobService) publish(p protocol.Payload) {
	if _, err := s.events.Publish(p); err != nil {
		logger.Debug("Job event not published", zap.String("type", p.MessageType()), zap.Error(err))
	}
}
