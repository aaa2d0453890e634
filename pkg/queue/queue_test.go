package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func newStore(t *testing.T) (*StatusStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStatusStore(client), mr
}

func TestStatusStoreRoundTrip(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()

	err := store.SaveStatus(ctx, &TaskStatus{
		TaskID: "t-1",
		Name:   "deploy",
		Status: StatusCompleted,
		Result: map[string]any{"steps": 2},
	})
	if err != nil {
		t.Fatalf("SaveStatus: %v", err)
	}

	got, err := store.GetStatus(ctx, "t-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if got.Name != "deploy" || got.Status != StatusCompleted {
		t.Errorf("status = %+v", got)
	}
	if ttl := mr.TTL("task_status:t-1"); ttl != 24*time.Hour {
		t.Errorf("ttl = %s", ttl)
	}
}

func TestStatusStoreMissing(t *testing.T) {
	store, _ := newStore(t)
	if _, err := store.GetStatus(context.Background(), "nope"); !errors.Is(err, ErrStatusNotFound) {
		t.Errorf("expected ErrStatusNotFound, got %v", err)
	}
}

func TestStatusExpires(t *testing.T) {
	store, mr := newStore(t)
	ctx := context.Background()
	if err := store.SaveStatus(ctx, &TaskStatus{TaskID: "t-2", Status: StatusPending}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(25 * time.Hour)
	if _, err := store.GetStatus(ctx, "t-2"); !errors.Is(err, ErrStatusNotFound) {
		t.Errorf("status should have expired, got %v", err)
	}
}

func TestConvertAsynqStatus(t *testing.T) {
	tests := []struct {
		state asynq.TaskState
		want  string
	}{
		{asynq.TaskStatePending, StatusPending},
		{asynq.TaskStateActive, StatusRunning},
		{asynq.TaskStateCompleted, StatusCompleted},
		{asynq.TaskStateRetry, StatusFailed},
	}
	for _, tt := range tests {
		if got := convertAsynqStatus(&asynq.TaskInfo{ID: "x", State: tt.state}); got.Status != tt.want {
			t.Errorf("state %v: got %q, want %q", tt.state, got.Status, tt.want)
		}
	}
}

func TestQueueFor(t *testing.T) {
	if queueFor(1) != "critical" || queueFor(2) != "default" || queueFor(0) != "low" {
		t.Error("unexpected priority mapping")
	}
}

func TestNewAsynqQueueRequiresAddr(t *testing.T) {
	if _, err := NewAsynqQueue(QueueConfig{}); err == nil {
		t.Error("expected error without redis address")
	}
}
