package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

func TestRegistryDispatchesByType(t *testing.T) {
	registry := NewHandlersRegistry()

	var got string
	registry.RegisterFunc(TypePresenceRecord, func(_ context.Context, task *asynq.Task) error {
		got = string(task.Payload())
		return nil
	})

	task := asynq.NewTask(TypePresenceRecord, []byte(`{"workspace_id":"w1"}`))
	if err := registry.Mux().ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask() error = %v", err)
	}
	if got != `{"workspace_id":"w1"}` {
		t.Errorf("handler payload = %s, want workspace record", got)
	}
}

func TestRegistryPropagatesHandlerError(t *testing.T) {
	registry := NewHandlersRegistry()

	wantErr := errors.New("row gone")
	registry.RegisterFunc(TypeAPIKeyTouch, func(context.Context, *asynq.Task) error {
		return wantErr
	})

	task := asynq.NewTask(TypeAPIKeyTouch, nil)
	if err := registry.Mux().ProcessTask(context.Background(), task); !errors.Is(err, wantErr) {
		t.Errorf("ProcessTask() error = %v, want %v", err, wantErr)
	}
}
