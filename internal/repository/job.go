package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"stockpulse-backend/internal/store"
	appErrors "stockpulse-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const jobSortKey = "META"

func jobPK(jobID string) string {
	return fmt.Sprintf("JOB#%s", jobID)
}

// JobStatus is the lifecycle state of an asynchronous analysis job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transition may leave this status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobID derives the deterministic identifier for a batch analysis request, so
// identical requests collide on the same job.
func JobID(subject, startDate, endDate string) string {
	sum := sha256.Sum256([]byte(subject + "|" + startDate + "|" + endDate))
	return hex.EncodeToString(sum[:])[:16]
}

// Job is the bookkeeping record for one batch analysis request. Records are
// diagnostic, not an audit log: they expire via TTL shortly after creation
// regardless of terminal state.
type Job struct {
	ID        string
	Subject   string
	StartDate string
	EndDate   string
	Status    JobStatus
	// timestamps are epoch milliseconds; 0 means unset
	CreatedAt      int64
	StartedAt      int64
	CompletedAt    int64
	ItemsProcessed int
	Error          string
	// ExpiresAt is the TTL attribute, in epoch seconds
	ExpiresAt int64
}

type jobItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	JobID          string `dynamodbav:"JobID"`
	Subject        string `dynamodbav:"Subject"`
	StartDate      string `dynamodbav:"StartDate"`
	EndDate        string `dynamodbav:"EndDate"`
	Status         string `dynamodbav:"Status"`
	CreatedAt      int64  `dynamodbav:"CreatedAt"`
	StartedAt      int64  `dynamodbav:"StartedAt,omitempty"`
	CompletedAt    int64  `dynamodbav:"CompletedAt,omitempty"`
	ItemsProcessed int    `dynamodbav:"ItemsProcessed,omitempty"`
	Error          string `dynamodbav:"Error,omitempty"`
	TTL            int64  `dynamodbav:"TTL"`
}

// JobUpdate carries the optional fields of a partial status update. Nil
// fields are omitted from the write.
type JobUpdate struct {
	StartedAt      *int64
	CompletedAt    *int64
	ItemsProcessed *int
	Error          *string
}

// JobRepository tracks batch analysis jobs in the shared table.
type JobRepository struct {
	store   store.Store
	ttlDays int
	logger  *zap.Logger
	now     func() time.Time
}

// NewJobRepository creates a job repository with the given retention window
// in whole days.
func NewJobRepository(st store.Store, ttlDays int, logger *zap.Logger) *JobRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRepository{
		store:   st,
		ttlDays: ttlDays,
		logger:  logger.Named("job_repository"),
		now:     time.Now,
	}
}

// Get returns the job, or nil if absent.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*Job, error) {
	item, err := r.store.Get(ctx, store.Key{PK: jobPK(jobID), SK: jobSortKey})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to read job")
	}
	if item == nil {
		return nil, nil
	}

	var stored jobItem
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal job")
	}

	return &Job{
		ID:             stored.JobID,
		Subject:        stored.Subject,
		StartDate:      stored.StartDate,
		EndDate:        stored.EndDate,
		Status:         JobStatus(stored.Status),
		CreatedAt:      stored.CreatedAt,
		StartedAt:      stored.StartedAt,
		CompletedAt:    stored.CompletedAt,
		ItemsProcessed: stored.ItemsProcessed,
		Error:          stored.Error,
		ExpiresAt:      stored.TTL,
	}, nil
}

// Create writes the job in PENDING state. Creation is idempotent: a job that
// already exists, in any state, is left untouched and the call succeeds. A
// duplicate create against a COMPLETED job is the expected replay of a
// finished request, not an error.
func (r *JobRepository) Create(ctx context.Context, job Job) error {
	existing, err := r.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Status == JobCompleted {
			r.logger.Info("job already completed, treating create as success",
				zap.String("job_id", job.ID))
		} else {
			r.logger.Info("job already exists, not overwriting",
				zap.String("job_id", job.ID),
				zap.String("status", string(existing.Status)))
		}
		return nil
	}

	now := r.now()
	item, err := attributevalue.MarshalMap(jobItem{
		PK:        jobPK(job.ID),
		SK:        jobSortKey,
		JobID:     job.ID,
		Subject:   job.Subject,
		StartDate: job.StartDate,
		EndDate:   job.EndDate,
		Status:    string(JobPending),
		CreatedAt: now.UnixMilli(),
		TTL:       now.Add(time.Duration(r.ttlDays) * 24 * time.Hour).Unix(),
	})
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal job")
	}

	applied, err := r.store.PutConditional(ctx, store.Item(item))
	if err != nil {
		return appErrors.Wrap(err, "failed to create job")
	}
	if !applied {
		// lost a concurrent create, the winner's record stands
		r.logger.Info("concurrent job creation detected", zap.String("job_id", job.ID))
	}
	return nil
}

// UpdateStatus applies an atomic partial update. The status parameter always
// wins: whatever else the update carries, the stored status matches it.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, status JobStatus, update JobUpdate) error {
	fields := map[string]types.AttributeValue{
		"Status": &types.AttributeValueMemberS{Value: string(status)},
	}
	if update.StartedAt != nil {
		fields["StartedAt"] = numberAttr(*update.StartedAt)
	}
	if update.CompletedAt != nil {
		fields["CompletedAt"] = numberAttr(*update.CompletedAt)
	}
	if update.ItemsProcessed != nil {
		fields["ItemsProcessed"] = numberAttr(int64(*update.ItemsProcessed))
	}
	if update.Error != nil {
		fields["Error"] = &types.AttributeValueMemberS{Value: *update.Error}
	}

	if err := r.store.UpdateFields(ctx, store.Key{PK: jobPK(jobID), SK: jobSortKey}, fields); err != nil {
		return appErrors.Wrap(err, "failed to update job status")
	}

	r.logger.Info("job status updated",
		zap.String("job_id", jobID),
		zap.String("status", string(status)))
	return nil
}

// MarkStarted transitions the job to IN_PROGRESS with a start timestamp.
func (r *JobRepository) MarkStarted(ctx context.Context, jobID string) error {
	startedAt := r.now().UnixMilli()
	return r.UpdateStatus(ctx, jobID, JobInProgress, JobUpdate{StartedAt: &startedAt})
}

// MarkCompleted transitions the job to COMPLETED with the processed count.
func (r *JobRepository) MarkCompleted(ctx context.Context, jobID string, itemsProcessed int) error {
	completedAt := r.now().UnixMilli()
	return r.UpdateStatus(ctx, jobID, JobCompleted, JobUpdate{
		CompletedAt:    &completedAt,
		ItemsProcessed: &itemsProcessed,
	})
}

// MarkFailed transitions the job to FAILED with the error description.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	completedAt := r.now().UnixMilli()
	return r.UpdateStatus(ctx, jobID, JobFailed, JobUpdate{
		CompletedAt: &completedAt,
		Error:       &errorMessage,
	})
}

func numberAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", v)}
}
