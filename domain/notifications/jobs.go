package notifications

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/uptrace/bun"

	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// JobsService manages the notification job queue.
type JobsService struct {
	db  bun.IDB
	log *slog.Logger
	cfg *config.EmailConfig
}

// NewJobsService creates a new notification jobs service.
func NewJobsService(db bun.IDB, log *slog.Logger, cfg *config.Config) *JobsService {
	return &JobsService{
		db:  db,
		log: log.With(logger.Scope("notifications.jobs")),
		cfg: &cfg.Email,
	}
}

// EnqueueOptions contains options for enqueuing a notification.
type EnqueueOptions struct {
	TemplateName string
	ToEmail      string
	ToName       *string
	Subject      string
	TemplateData map[string]any
}

// Enqueue creates a job ready for immediate processing. Uses the
// database clock for next_retry_at so dequeue comparisons stay
// consistent.
func (s *JobsService) Enqueue(ctx context.Context, opts EnqueueOptions) (*Job, error) {
	data := opts.TemplateData
	if data == nil {
		data = map[string]any{}
	}

	job := &Job{
		TemplateName: opts.TemplateName,
		ToEmail:      opts.ToEmail,
		ToName:       opts.ToName,
		Subject:      opts.Subject,
		TemplateData: data,
		Status:       JobStatusPending,
		MaxAttempts:  s.cfg.MaxRetries,
	}
	_, err := s.db.NewInsert().
		Model(job).
		Value("next_retry_at", "now()").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Dequeue claims up to limit due jobs for processing. FOR UPDATE SKIP
// LOCKED keeps concurrent workers from double-claiming.
func (s *JobsService) Dequeue(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	err := s.db.NewRaw(`
		UPDATE core.notification_jobs
		SET status = 'processing', started_at = now(), attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM core.notification_jobs
			WHERE status = 'pending' AND next_retry_at <= now()
			ORDER BY next_retry_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, limit).Scan(ctx, &jobs)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkCompleted flags a job as delivered.
func (s *JobsService) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", JobStatusCompleted).
		Set("completed_at = now()").
		Where("id = ?", jobID).
		Exec(ctx)
	return err
}

// MarkFailed records a delivery failure, scheduling a retry with
// exponential backoff until attempts run out.
func (s *JobsService) MarkFailed(ctx context.Context, job *Job, sendErr string) error {
	if job.Attempts >= job.MaxAttempts {
		_, err := s.db.NewUpdate().
			Model((*Job)(nil)).
			Set("status = ?", JobStatusFailed).
			Set("last_error = ?", sendErr).
			Where("id = ?", job.ID).
			Exec(ctx)
		return err
	}

	delay := time.Duration(float64(s.cfg.RetryDelaySec)*math.Pow(2, float64(job.Attempts-1))) * time.Second
	_, err := s.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", JobStatusPending).
		Set("last_error = ?", sendErr).
		Set("next_retry_at = now() + ?::interval", delay.String()).
		Where("id = ?", job.ID).
		Exec(ctx)
	return err
}

// RecoverStale returns processing jobs older than the threshold to the
// pending state. Run once at worker startup.
func (s *JobsService) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.NewRaw(`
		UPDATE core.notification_jobs
		SET status = 'pending', next_retry_at = now()
		WHERE status = 'processing' AND started_at < now() - ?::interval
	`, olderThan.String()).Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// QueueDepth returns the number of jobs per status, for metrics.
func (s *JobsService) QueueDepth(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int64  `bun:"count"`
	}
	err := s.db.NewRaw(`
		SELECT status, COUNT(*) AS count
		FROM core.notification_jobs
		GROUP BY status
	`).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	depth := make(map[string]int64, len(rows))
	for _, r := range rows {
		depth[r.Status] = r.Count
	}
	return depth, nil
}
