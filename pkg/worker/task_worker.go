package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

// Executor runs one task payload. The returned value is stored as the task
// result.
type Executor interface {
	Execute(ctx context.Context, task queue.Task) (any, error)
}

type ExecutorFunc func(ctx context.Context, task queue.Task) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, task queue.Task) (any, error) {
	return f(ctx, task)
}

type StatusSaver interface {
	SaveStatus(ctx context.Context, status *queue.TaskStatus) error
}

// TaskWorker consumes executed task files.
type TaskWorker struct {
	BaseWorker
	store StatusSaver
	exec  Executor
}

func NewTaskWorker(cfg *Config, store StatusSaver, exec Executor, log logger.Logger) *TaskWorker {
	if log == nil {
		log = logger.NewNop()
	}
	if exec == nil {
		exec = SummaryExecutor(log)
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = queue.QueueWeights()
	}
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &TaskWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		store: store,
		exec:  exec,
	}
	w.mux.HandleFunc(queue.TaskTypeExecute, w.HandleTask)
	return w
}

// HandleTask executes one queued task file and records its status.
func (w *TaskWorker) HandleTask(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		// Retrying a payload that does not decode cannot succeed.
		return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
	}
	if task.ID == "" || task.Name == "" {
		return fmt.Errorf("invalid task data: missing id or name: %w", asynq.SkipRetry)
	}

	log := w.logger.With(logger.String("taskId", task.ID), logger.String("task", task.Name))
	log.Info("Executing task")

	status := &queue.TaskStatus{
		TaskID:    task.ID,
		Name:      task.Name,
		Status:    queue.StatusRunning,
		StartedAt: time.Now(),
	}
	w.save(ctx, status)

	result, err := w.exec.Execute(ctx, task)
	status.FinishedAt = time.Now()
	if err != nil {
		status.Status = queue.StatusFailed
		status.Error = err.Error()
		w.save(ctx, status)
		w.writeResult(t, status)
		log.Error("Task failed", logger.Error(err))
		return err
	}

	status.Status = queue.StatusCompleted
	status.Progress = 1.0
	status.Result = result
	w.save(ctx, status)
	w.writeResult(t, status)
	log.Info("Task completed", logger.Duration("elapsed", status.FinishedAt.Sub(status.StartedAt)))
	return nil
}

func (w *TaskWorker) save(ctx context.Context, status *queue.TaskStatus) {
	if w.store == nil {
		return
	}
	if err := w.store.SaveStatus(ctx, status); err != nil {
		w.logger.Error("Failed to save task status",
			logger.String("taskId", status.TaskID),
			logger.Error(err),
		)
	}
}

func (w *TaskWorker) writeResult(t *asynq.Task, status *queue.TaskStatus) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if _, err := rw.Write(data); err != nil {
		w.logger.Error("Failed to write task result", logger.Error(err))
	}
}

// Summary describes a task payload.
type Summary struct {
	Kind  string   `json:"kind"`
	Keys  []string `json:"keys,omitempty"`
	Items int      `json:"items,omitempty"`
}

// SummaryExecutor logs each payload and returns its Summary.
func SummaryExecutor(log logger.Logger) Executor {
	return ExecutorFunc(func(ctx context.Context, task queue.Task) (any, error) {
		s := Summarize(task.Payload)
		log.Info("Task payload received",
			logger.String("task", task.Name),
			logger.String("kind", s.Kind),
			logger.Strings("keys", s.Keys),
			logger.Int("items", s.Items),
		)
		return s, nil
	})
}

func Summarize(payload any) Summary {
	switch v := payload.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Summary{Kind: "object", Keys: keys, Items: len(v)}
	case []any:
		return Summary{Kind: "list", Items: len(v)}
	case nil:
		return Summary{Kind: "empty"}
	default:
		return Summary{Kind: fmt.Sprintf("%T", v)}
	}
}
