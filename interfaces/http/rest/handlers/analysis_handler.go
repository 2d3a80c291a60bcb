// Package handlers contains the HTTP request handlers for the REST API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"stockpulse-backend/internal/repository"
	"stockpulse-backend/internal/service"
	appErrors "stockpulse-backend/pkg/errors"
	"stockpulse-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AnalysisHandler handles sentiment and batch-job HTTP requests
type AnalysisHandler struct {
	analysis *service.AnalysisService
	worker   *service.BatchWorker
	runner   *service.TaskRunner
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analysis *service.AnalysisService, worker *service.BatchWorker, runner *service.TaskRunner, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		worker:   worker,
		runner:   runner,
		logger:   logger,
	}
}

// AnalyzeRequest represents the request body for scoring a single text
type AnalyzeRequest struct {
	Subject string `json:"subject" validate:"required,min=1,max=20"`
	Text    string `json:"text" validate:"required"`
}

// AnalyzeResponse represents a sentiment score, or the absence of one
type AnalyzeResponse struct {
	Subject     string   `json:"subject"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Label       string   `json:"label,omitempty"`
	AnalyzedAt  int64    `json:"analyzedAt,omitempty"`
	Signal      bool     `json:"signal"`
}

// CreateJobRequest represents the request body for submitting a batch job
type CreateJobRequest struct {
	Subject   string `json:"subject" validate:"required,min=1,max=20"`
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

// CreateJobResponse represents the response for submitting a batch job
type CreateJobResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// JobResponse represents a tracked batch job
type JobResponse struct {
	JobID          string `json:"jobId"`
	Subject        string `json:"subject"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	Status         string `json:"status"`
	CreatedAt      int64  `json:"createdAt"`
	StartedAt      int64  `json:"startedAt,omitempty"`
	CompletedAt    int64  `json:"completedAt,omitempty"`
	ItemsProcessed int    `json:"itemsProcessed,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Analyze handles POST /sentiment
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	entry, err := h.analysis.Analyze(r.Context(), req.Subject, req.Text)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	if entry == nil {
		// no signal available right now; not an error
		h.respondJSON(w, http.StatusOK, AnalyzeResponse{Subject: req.Subject, Signal: false})
		return
	}
	h.respondJSON(w, http.StatusOK, entryResponse(entry))
}

// History handles GET /sentiment/{subject}
func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	if subject == "" {
		h.respondError(w, http.StatusBadRequest, "Subject is required")
		return
	}

	entries, err := h.analysis.History(r.Context(), subject)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	responses := make([]AnalyzeResponse, 0, len(entries))
	for i := range entries {
		responses = append(responses, entryResponse(&entries[i]))
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"subject": subject,
		"entries": responses,
		"count":   len(responses),
	})
}

// CreateJob handles POST /analysis/jobs
func (h *AnalysisHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	jobID, err := h.worker.Submit(r.Context(), req.Subject, req.StartDate, req.EndDate)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	// processing runs detached so the response returns immediately
	started := h.runner.Go("process_job_"+jobID, func(ctx context.Context) {
		if err := h.worker.Process(ctx, jobID); err != nil {
			h.logger.Error("detached job processing failed",
				zap.String("jobId", jobID),
				zap.Error(err))
		}
	})
	if !started {
		h.respondJSON(w, http.StatusAccepted, CreateJobResponse{
			JobID:   jobID,
			Status:  string(repository.JobPending),
			Message: "Job queued; processing deferred until capacity frees up",
		})
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateJobResponse{
		JobID:   jobID,
		Status:  string(repository.JobPending),
		Message: "Job accepted",
	})
}

// GetJob handles GET /analysis/jobs/{jobID}
func (h *AnalysisHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.worker.Status(r.Context(), jobID)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, JobResponse{
		JobID:          job.ID,
		Subject:        job.Subject,
		StartDate:      job.StartDate,
		EndDate:        job.EndDate,
		Status:         string(job.Status),
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		ItemsProcessed: job.ItemsProcessed,
		Error:          job.Error,
	})
}

func entryResponse(entry *repository.CacheEntry) AnalyzeResponse {
	score := entry.Score
	confidence := entry.Confidence
	return AnalyzeResponse{
		Subject:     entry.Subject,
		Fingerprint: entry.Fingerprint,
		Score:       &score,
		Confidence:  &confidence,
		Label:       entry.Label,
		AnalyzedAt:  entry.AnalyzedAt,
		Signal:      true,
	}
}

func (h *AnalysisHandler) respondAppError(w http.ResponseWriter, err error) {
	switch {
	case appErrors.IsValidation(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case appErrors.IsNotFound(err):
		h.respondError(w, http.StatusNotFound, err.Error())
	case appErrors.IsUnavailable(err):
		h.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("unhandled error in request", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *AnalysisHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *AnalysisHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    status,
	})
}
