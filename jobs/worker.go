package jobs

import (
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Worker runs the asynq server plus the cron scheduler that feeds it.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

// NewWorker wires the handler's tasks into a server and registers the cron
// schedule.
func NewWorker(redisAddr string, h *Handler) (*Worker, error) {
	opt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"default": 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskLowStockScan, h.HandleLowStockScan)
	mux.HandleFunc(TaskStockReconcile, h.HandleStockReconcile)
	mux.HandleFunc(TaskIdempotencyCleanup, h.HandleIdempotencyCleanup)

	scheduler := asynq.NewScheduler(opt, nil)
	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{"@every 15m", asynq.NewTask(TaskLowStockScan, nil)},
		{"30 2 * * *", asynq.NewTask(TaskStockReconcile, nil)},
		{"0 3 * * *", asynq.NewTask(TaskIdempotencyCleanup, nil)},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, e.task); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.task.Type(), err)
		}
	}

	return &Worker{server: server, scheduler: scheduler, mux: mux}, nil
}

// Run blocks serving tasks until Shutdown.
func (w *Worker) Run() error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	slog.Info("worker started")
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("run worker: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler and drains in-flight tasks.
func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}
