package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// HandlersRegistry binds task types to their handlers and wraps every
// task with outcome logging. The tasks here are best-effort presence
// and key-touch writes with a single retry, so a failed run surfaces
// only as a warn line.
type HandlersRegistry struct {
	mux *asynq.ServeMux
}

func NewHandlersRegistry() *HandlersRegistry {
	mux := asynq.NewServeMux()
	mux.Use(logTask)
	return &HandlersRegistry{mux: mux}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
	slog.Info("task handler registered", "type", taskType)
}

func (r *HandlersRegistry) RegisterFunc(taskType string, fn func(context.Context, *asynq.Task) error) {
	r.Register(taskType, asynq.HandlerFunc(fn))
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		if err != nil {
			slog.Warn("task failed", "type", t.Type(),
				"duration_ms", time.Since(start).Milliseconds(), "error", err)
			return err
		}
		slog.Debug("task done", "type", t.Type(),
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	})
}
