package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

const staleJobThreshold = 10 * time.Minute

// Worker polls the notification queue, renders templates, and sends
// through the configured Sender.
type Worker struct {
	jobs      *JobsService
	sender    Sender
	templates *Templates
	log       *slog.Logger

	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewWorker creates a notification worker.
func NewWorker(jobs *JobsService, sender Sender, templates *Templates, cfg *config.Config, log *slog.Logger) *Worker {
	return &Worker{
		jobs:      jobs,
		sender:    sender,
		templates: templates,
		log:       log.With(logger.Scope("notifications.worker")),
		interval:  time.Duration(cfg.Email.WorkerIntervalMs) * time.Millisecond,
		batchSize: cfg.Email.WorkerBatchSize,
		done:      make(chan struct{}),
	}
}

// Start begins polling in the background.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	w.log.Info("notification worker started",
		slog.Duration("interval", w.interval),
		slog.Int("batch_size", w.batchSize),
	)
}

// Stop cancels the poll loop and waits for the in-flight batch.
func (w *Worker) Stop() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		<-w.done
		w.log.Info("notification worker stopped")
	})
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	if n, err := w.jobs.RecoverStale(ctx, staleJobThreshold); err != nil {
		w.log.Error("failed to recover stale jobs", logger.Error(err))
	} else if n > 0 {
		w.log.Warn("recovered stale notification jobs", slog.Int64("count", n))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processBatch(ctx)
			w.reportDepth(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	batch, err := w.jobs.Dequeue(ctx, w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("failed to dequeue notification jobs", logger.Error(err))
		}
		return
	}

	for i := range batch {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, &batch[i])
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	rendered, err := w.templates.Render(job.TemplateName, job.TemplateData)
	if err != nil {
		// Rendering never recovers on retry, fail the job outright.
		job.Attempts = job.MaxAttempts
		w.fail(ctx, job, "render: "+err.Error())
		return
	}

	toName := ""
	if job.ToName != nil {
		toName = *job.ToName
	}

	result, err := w.sender.Send(ctx, SendOptions{
		To:      job.ToEmail,
		ToName:  toName,
		Subject: job.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
	})
	if err != nil {
		w.fail(ctx, job, err.Error())
		return
	}

	if err := w.jobs.MarkCompleted(ctx, job.ID); err != nil {
		w.log.Error("failed to mark job completed",
			slog.String("job_id", job.ID),
			logger.Error(err),
		)
		return
	}
	sentTotal.WithLabelValues(job.TemplateName).Inc()
	w.log.Info("notification sent",
		slog.String("job_id", job.ID),
		slog.String("template", job.TemplateName),
		slog.String("message_id", result.MessageID),
	)
}

func (w *Worker) fail(ctx context.Context, job *Job, sendErr string) {
	failedTotal.WithLabelValues(job.TemplateName).Inc()
	w.log.Warn("notification send failed",
		slog.String("job_id", job.ID),
		slog.String("template", job.TemplateName),
		slog.Int("attempts", job.Attempts),
		slog.String("error", sendErr),
	)
	if err := w.jobs.MarkFailed(ctx, job, sendErr); err != nil {
		w.log.Error("failed to record job failure",
			slog.String("job_id", job.ID),
			logger.Error(err),
		)
	}
}

func (w *Worker) reportDepth(ctx context.Context) {
	depth, err := w.jobs.QueueDepth(ctx)
	if err != nil {
		return
	}
	for _, status := range []string{JobStatusPending, JobStatusProcessing, JobStatusFailed} {
		queueDepth.WithLabelValues(status).Set(float64(depth[status]))
	}
}
