// Package river runs deferred tasks as River jobs whose parameters and
// results live in a result store.
//
// The enqueuing side stores the task parameters with PrepareParameters and
// puts the returned id into the job args. The worker reads them back, runs
// the task body and writes the return value under the job's result key.
// It handles:
//   - Mapping River job IDs to lock holders
//   - Serializable writes when the store has a lock manager
//   - Error classification for River's retry logic
package river

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"resultdock/pkg/results"
	"resultdock/pkg/storage"
)

// TaskArgs is the interface River job args must implement to be run by a
// TaskWorker.
type TaskArgs interface {
	river.JobArgs

	// ParametersID locates the parameters written by PrepareParameters.
	ParametersID() uuid.UUID

	// ResultKey is the storage key of the task's result. Empty mints one.
	ResultKey() string
}

// TaskFunc is a task body.
type TaskFunc func(ctx context.Context, params map[string]any) (any, error)

// TaskWorker is a River worker that runs a task against a result store.
// It implements river.Worker for a specific TaskArgs type.
type TaskWorker[Args TaskArgs] struct {
	river.WorkerDefaults[Args]

	// Store holds parameters and results. Nil builds one on the task
	// scheduling default storage.
	Store *results.ResultStore

	// Defaults resolves the scheduling storage when Store is nil.
	Defaults *results.Defaults

	// Task is the task body
	Task TaskFunc

	// SkipExisting returns without running the task when a result is
	// already stored under the job's result key.
	SkipExisting bool

	// LockTimeout bounds how long a job waits for the result lock before
	// snoozing. Only used when the store has a lock manager.
	LockTimeout time.Duration

	// SnoozeFor is how long a job whose result is locked is snoozed.
	SnoozeFor time.Duration

	Logger *slog.Logger
}

// NewTaskWorker creates a TaskWorker with the given configuration.
func NewTaskWorker[Args TaskArgs](store *results.ResultStore, task TaskFunc) *TaskWorker[Args] {
	return &TaskWorker[Args]{
		Store:       store,
		Task:        task,
		LockTimeout: 5 * time.Second,
		SnoozeFor:   30 * time.Second,
	}
}

// HolderForJob is the lock holder a job writes its result as.
func HolderForJob(id int64) string {
	return fmt.Sprintf("river-job-%d", id)
}

// PrepareParameters stores params for a task run and returns the id to put
// into the job args.
func PrepareParameters(ctx context.Context, store *results.ResultStore, params map[string]any) (uuid.UUID, error) {
	id := uuid.New()
	if err := store.StoreParameters(ctx, id, params); err != nil {
		return uuid.Nil, fmt.Errorf("failed to store task parameters: %w", err)
	}
	return id, nil
}

// Work runs the task for the given job.
// The River job ID determines the lock holder for traceability.
func (w *TaskWorker[Args]) Work(ctx context.Context, job *river.Job[Args]) error {
	store, err := w.store(ctx)
	if err != nil {
		return w.classifyError(err)
	}
	ctx = results.WithRunContext(ctx, &results.RunContext{Store: store})

	holder := HolderForJob(job.ID)
	key := job.Args.ResultKey()
	logger := w.logger().With(
		slog.Int64("job_id", job.ID),
		slog.String("kind", job.Args.Kind()),
		slog.String("result_key", key),
	)

	serializable, err := store.SupportsIsolationLevel(results.Serializable)
	if err != nil {
		return w.classifyError(err)
	}
	if serializable && key != "" {
		acquired, err := store.AcquireLock(ctx, key, holder, w.LockTimeout)
		if err != nil {
			return w.classifyError(err)
		}
		if !acquired {
			logger.Info("result locked by another job, snoozing")
			return river.JobSnooze(w.SnoozeFor)
		}
		defer func() {
			if err := store.ReleaseLock(context.WithoutCancel(ctx), key, holder); err != nil {
				logger.Warn("failed to release result lock", slog.String("error", err.Error()))
			}
		}()
	}

	if w.SkipExisting && key != "" && store.Exists(ctx, key) {
		logger.Debug("result already stored, skipping task")
		return nil
	}

	params, err := store.ReadParameters(ctx, job.Args.ParametersID())
	if err != nil {
		return w.classifyError(err)
	}

	value, err := w.Task(ctx, params)
	if err != nil {
		return w.classifyError(err)
	}

	if err := store.Write(ctx, key, value, nil, holder); err != nil {
		return w.classifyError(err)
	}
	logger.Debug("task result written")
	return nil
}

func (w *TaskWorker[Args]) store(ctx context.Context) (*results.ResultStore, error) {
	if w.Store != nil {
		return w.Store, nil
	}
	defaults := w.Defaults
	if defaults == nil {
		defaults = results.EnvironmentDefaults()
	}
	st, err := defaults.TaskSchedulingStorage(ctx)
	if err != nil {
		return nil, err
	}
	return results.NewResultStore(
		results.WithResultStorage(st),
		results.WithDefaults(defaults),
		results.WithPersistResult(true),
	), nil
}

func (w *TaskWorker[Args]) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default().With("component", "river_task_worker")
}

// classifyError converts store and task errors to River-appropriate errors.
// This helps River decide whether to retry, snooze or discard the job.
func (w *TaskWorker[Args]) classifyError(err error) error {
	// Misconfiguration and bad inputs won't fix themselves on retry
	var cfgErr *results.ConfigurationError
	var argErr *results.ArgumentError
	var serErr *results.SerializationError
	if errors.As(err, &cfgErr) || errors.As(err, &argErr) || errors.As(err, &serErr) {
		return river.JobCancel(err)
	}

	// Parameters that were never stored won't appear later
	if errors.Is(err, storage.ErrNotFound) {
		return river.JobCancel(err)
	}

	// Another holder is writing the result
	if errors.Is(err, results.ErrRecordLocked) {
		return river.JobSnooze(w.SnoozeFor)
	}

	// Context cancellation - don't retry, job was cancelled
	if errors.Is(err, context.Canceled) {
		return river.JobCancel(err)
	}

	// Default: return error as-is, let River retry
	return err
}
