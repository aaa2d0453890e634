// pkg/queue/queue.go
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TaskTypeExecute is the asynq type of an executed task file.
const TaskTypeExecute = "ingest:task:execute"

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	statusTTL = 24 * time.Hour
)

var ErrStatusNotFound = errors.New("task status not found")

// Queue accepts parsed task files for background execution.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

// Task is one task-file execution request.
type Task struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Payload   any       `json:"payload"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Name       string    `json:"name,omitempty"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Error      string    `json:"error,omitempty"`
	Result     any       `json:"result,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr      string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
}

func (c QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, DB: c.RedisDB}
}

// StatusStore keeps task statuses in Redis under task_status:<id>.
type StatusStore struct {
	redis *redis.Client
}

func NewStatusStore(client *redis.Client) *StatusStore {
	return &StatusStore{redis: client}
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

// SaveStatus stores status with a 24 hour expiry.
func (s *StatusStore) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := s.redis.Set(ctx, statusKey(status.TaskID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// GetStatus returns the stored status or ErrStatusNotFound.
func (s *StatusStore) GetStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := s.redis.Get(ctx, statusKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrStatusNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	var status TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

// AsynqQueue enqueues tasks with asynq and tracks them in Redis.
type AsynqQueue struct {
	*StatusStore
	client    *asynq.Client
	inspector *asynq.Inspector
	config    QueueConfig
}

func NewAsynqQueue(cfg QueueConfig) (*AsynqQueue, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ProcessTimeout == 0 {
		cfg.ProcessTimeout = 10 * time.Minute
	}
	opt := cfg.RedisOpt()
	return &AsynqQueue{
		StatusStore: NewStatusStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})),
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		config:      cfg,
	}, nil
}

// Enqueue submits task and records it as pending.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	if task.Type == "" {
		task.Type = TaskTypeExecute
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.config.MaxRetries),
		asynq.Timeout(q.config.ProcessTimeout),
		asynq.Queue(queueFor(task.Priority)),
	}
	if task.ID != "" {
		opts = append(opts, asynq.TaskID(task.ID))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	return q.SaveStatus(ctx, &TaskStatus{
		TaskID:    task.ID,
		Name:      task.Name,
		Status:    StatusPending,
		StartedAt: task.CreatedAt,
	})
}

// GetTaskStatus prefers the stored status and falls back to asynq's view.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	status, err := q.GetStatus(ctx, taskID)
	if err == nil || !errors.Is(err, ErrStatusNotFound) {
		return status, err
	}

	var lastErr error
	for _, name := range Queues() {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrStatusNotFound, lastErr)
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

// Queues returns the queue names in priority order.
func Queues() []string {
	return []string{"critical", "default", "low"}
}

// QueueWeights is the asynq priority map used by the worker.
func QueueWeights() map[string]int {
	return map[string]int{"critical": 6, "default": 3, "low": 1}
}

func queueFor(priority int) string {
	switch priority {
	case 1:
		return "critical"
	case 2:
		return "default"
	default:
		return "low"
	}
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}
	switch info.State {
	case asynq.TaskStateActive:
		status.Status = StatusRunning
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
	default:
		status.Status = StatusPending
	}
	return status
}
