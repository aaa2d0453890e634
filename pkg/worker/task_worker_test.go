package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-ingest/pkg/queue"
)

func newWorker(t *testing.T, exec Executor) (*TaskWorker, *queue.StatusStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := queue.NewStatusStore(client)
	return NewTaskWorker(&Config{RedisAddr: mr.Addr(), Concurrency: 1}, store, exec, nil), store
}

func taskPayload(t *testing.T, task queue.Task) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(task)
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(queue.TaskTypeExecute, data)
}

func TestHandleTaskRecordsCompletion(t *testing.T) {
	w, store := newWorker(t, nil)
	task := queue.Task{ID: "t-1", Name: "deploy", Payload: map[string]any{"steps": []any{"build", "ship"}, "env": "prod"}}

	if err := w.HandleTask(context.Background(), taskPayload(t, task)); err != nil {
		t.Fatalf("HandleTask: %v", err)
	}

	status, err := store.GetStatus(context.Background(), "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != queue.StatusCompleted || status.Progress != 1.0 {
		t.Errorf("status = %+v", status)
	}
	result, ok := status.Result.(map[string]any)
	if !ok || result["kind"] != "object" {
		t.Errorf("result = %#v", status.Result)
	}
}

func TestHandleTaskRecordsFailure(t *testing.T) {
	boom := errors.New("step 2 failed")
	w, store := newWorker(t, ExecutorFunc(func(context.Context, queue.Task) (any, error) { return nil, boom }))

	err := w.HandleTask(context.Background(), taskPayload(t, queue.Task{ID: "t-2", Name: "deploy"}))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	status, err := store.GetStatus(context.Background(), "t-2")
	if err != nil {
		t.Fatal(err)
	}
	if status.Status != queue.StatusFailed || status.Error != "step 2 failed" {
		t.Errorf("status = %+v", status)
	}
}

func TestHandleTaskSkipsRetryOnBadPayload(t *testing.T) {
	w, _ := newWorker(t, nil)
	err := w.HandleTask(context.Background(), asynq.NewTask(queue.TaskTypeExecute, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    Summary
	}{
		{"object", map[string]any{"b": 1, "a": 2}, Summary{Kind: "object", Keys: []string{"a", "b"}, Items: 2}},
		{"list", []any{1, 2, 3}, Summary{Kind: "list", Items: 3}},
		{"nil", nil, Summary{Kind: "empty"}},
		{"scalar", "x", Summary{Kind: "string"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.payload)
			if got.Kind != tt.want.Kind || got.Items != tt.want.Items || len(got.Keys) != len(tt.want.Keys) {
				t.Errorf("Summarize = %+v, want %+v", got, tt.want)
			}
			for i := range got.Keys {
				if got.Keys[i] != tt.want.Keys[i] {
					t.Errorf("keys = %v", got.Keys)
				}
			}
		})
	}
}
