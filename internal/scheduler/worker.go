package scheduler

import (
	"context"
	"fmt"

	"crm_bridge_backend/internal/audit"
	"crm_bridge_backend/platform/config"
	"crm_bridge_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	audit  *audit.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, auditSvc *audit.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		audit:  auditSvc,
		log:    log,
	}

	mux.HandleFunc(TaskAuditRetentionSweep, w.handleAuditRetentionSweep)

	return w, nil
}

func (w *Worker) handleAuditRetentionSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAuditRetentionSweepPayload(task)
	if err != nil {
		return err
	}

	deleted, err := w.audit.CleanOldLogs(ctx, payload.DaysToKeep)
	if err != nil {
		return err
	}

	if deleted > 0 {
		w.log.Info("audit retention sweep deleted old entries", "deleted", deleted, "daysToKeep", payload.DaysToKeep)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
