package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/controlpanel/internal/logger"
	"github.com/makeasinger/controlpanel/internal/model"
)

const (
	TaskTypeJobDrive = "job:drive"
	QueueJobs        = "jobs"
)

// NewJobTask builds the task that drives one job.
func NewJobTask(jobID int64) (*asynq.Task, error) {
	data, err := sonic.Marshal(model.JobTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeJobDrive, data), nil
}

// Enqueuer is the part of *asynq.Client a QueueRunner needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueRunner hands job drivers to asynq so any worker process attached to
// the same redis can run them.
type QueueRunner struct {
	client  Enqueuer
	timeout time.Duration
}

// NewQueueRunner creates a runner. timeout bounds one driver's run and
// should exceed the time a job needs to reach its threshold.
func NewQueueRunner(client Enqueuer, timeout time.Duration) *QueueRunner {
	return &QueueRunner{client: client, timeout: timeout}
}

func (r *QueueRunner) Launch(ctx context.Context, jobID int64) error {
	task, err := NewJobTask(jobID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueJobs),
		asynq.TaskID("job-" + strconv.FormatInt(jobID, 10)),
		// a re-run would publish a second progress stream for the same job
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if r.timeout > 0 {
		opts = append(opts, asynq.Timeout(r.timeout))
	}

	info, err := r.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	logger.Debug("Job enqueued", zap.Int64("jobId", jobID), zap.String("task", info.ID))
	return nil
}

// ProgressWorker processes job:drive tasks.
type ProgressWorker struct {
	driver Driver
}

func NewProgressWorker(driver Driver) *ProgressWorker {
	return &ProgressWorker{driver: driver}
}

// ProcessTask handles job:drive task processing
func (w *ProgressWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.JobTaskPayload
	if err := sonic.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.JobID <= 0 {
		return fmt.Errorf("invalid job id %d: %w", payload.JobID, asynq.SkipRetry)
	}

	logger.Info("Starting job driver", zap.Int64("jobId", payload.JobID))
	return w.driver.Drive(ctx, payload.JobID)
}

// Register adds the worker's handlers to mux.
func (w *ProgressWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeJobDrive, w.ProcessTask)
}

// NewServer creates the asynq server that runs queued drivers. Drivers
// still running when it shuts down get their context cancelled and are
// abandoned.
func NewServer(redisClient redis.UniversalClient, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServerFromRedisClient(redisClient, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueJobs: 1,
		},
		Logger:          logger.L().Sugar(),
		ShutdownTimeout: 3 * time.Second,
	})
}
