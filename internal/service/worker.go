package service

import (
	"context"
	"fmt"

	appErrors "stockpulse-backend/pkg/errors"

	"stockpulse-backend/internal/observability"
	"stockpulse-backend/internal/repository"

	"go.uber.org/zap"
)

// Article is one piece of content to score for a subject.
type Article struct {
	Title string
	Body  string
}

// ArticleSource fetches the articles for a subject over a date range.
type ArticleSource interface {
	Fetch(ctx context.Context, subject, startDate, endDate string) ([]Article, error)
}

// BatchWorker runs batch analysis jobs. Submission and processing are
// separate steps so a stateless frontend can accept a job and a worker
// invocation can pick it up later.
type BatchWorker struct {
	jobs     *repository.JobRepository
	analysis *AnalysisService
	source   ArticleSource
	logger   *zap.Logger
	metrics  *observability.Collector
}

// NewBatchWorker creates a worker. The metrics collector may be nil.
func NewBatchWorker(jobs *repository.JobRepository, analysis *AnalysisService, source ArticleSource, logger *zap.Logger, metrics *observability.Collector) *BatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWorker{
		jobs:     jobs,
		analysis: analysis,
		source:   source,
		logger:   logger.Named("batch_worker"),
		metrics:  metrics,
	}
}

// Submit registers a pending job for the subject and date range and returns
// its deterministic ID. Resubmitting the same parameters is a no-op.
func (w *BatchWorker) Submit(ctx context.Context, subject, startDate, endDate string) (string, error) {
	if subject == "" {
		return "", appErrors.NewValidation("subject is required")
	}
	jobID := repository.JobID(subject, startDate, endDate)
	err := w.jobs.Create(ctx, repository.Job{
		ID:        jobID,
		Subject:   subject,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    repository.JobPending,
	})
	if err != nil {
		return "", err
	}
	return jobID, nil
}

// Status returns the tracked job, or a not-found error if it never existed
// or its record has expired.
func (w *BatchWorker) Status(ctx context.Context, jobID string) (*repository.Job, error) {
	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, appErrors.NewNotFound(fmt.Sprintf("job %s not found", jobID))
	}
	return job, nil
}

// Process runs one submitted job to a terminal state. Articles that yield no
// sentiment signal still count as processed; only fetch and store failures
// fail the job.
func (w *BatchWorker) Process(ctx context.Context, jobID string) error {
	job, err := w.Status(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		w.logger.Info("job already finished, skipping",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)))
		return nil
	}

	if err := w.jobs.MarkStarted(ctx, jobID); err != nil {
		return err
	}

	articles, err := w.source.Fetch(ctx, job.Subject, job.StartDate, job.EndDate)
	if err != nil {
		return w.fail(ctx, jobID, fmt.Sprintf("fetching articles: %v", err))
	}

	texts := make([]string, 0, len(articles))
	for _, article := range articles {
		texts = append(texts, articleText(article))
	}

	if _, err := w.analysis.AnalyzeBatch(ctx, job.Subject, texts); err != nil {
		return w.fail(ctx, jobID, fmt.Sprintf("analyzing articles: %v", err))
	}

	if err := w.jobs.MarkCompleted(ctx, jobID, len(articles)); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.JobsCompleted.Inc()
	}
	w.logger.Info("job completed",
		zap.String("job_id", jobID),
		zap.String("subject", job.Subject),
		zap.Int("items_processed", len(articles)))
	return nil
}

func (w *BatchWorker) fail(ctx context.Context, jobID, message string) error {
	if w.metrics != nil {
		w.metrics.JobsFailed.Inc()
	}
	w.logger.Error("job failed", zap.String("job_id", jobID), zap.String("error", message))
	if err := w.jobs.MarkFailed(ctx, jobID, message); err != nil {
		return err
	}
	return appErrors.NewInternal(message, nil)
}

func articleText(article Article) string {
	if article.Body == "" {
		return article.Title
	}
	return article.Title + "\n" + article.Body
}
