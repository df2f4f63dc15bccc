// Package service provides business logic for TellMeNow operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

const (
	minQueryLength      = 3
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// JobService submits jobs and serves their state to observers.
type JobService struct {
	store    store.Store
	coord    *Coordinator
	pipeline *Pipeline
	now      func() time.Time
}

// NewJobService creates a job service.
func NewJobService(s store.Store, coord *Coordinator, p *Pipeline) *JobService {
	return &JobService{store: s, coord: coord, pipeline: p, now: time.Now}
}

// Submit validates a query and creates a queued job. The job is processed by
// whichever observer claims it first.
func (s *JobService) Submit(ctx context.Context, query, skillID string, userID *string) (string, error) {
	if utf8.RuneCountInString(query) < minQueryLength {
		return "", validationError("Query must be at least %d characters", minQueryLength)
	}
	if strings.TrimSpace(skillID) == "" {
		return "", validationError("skill_id is required")
	}

	job := &models.Job{
		ID:        models.ShortID(12),
		Query:     query,
		SkillID:   skillID,
		Status:    models.JobQueued,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertJob(ctx, job); err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}

	slog.Info("job submitted", "job_id", job.ID, "skill_id", skillID)
	return job.ID, nil
}

// Get returns a job row.
func (s *JobService) Get(ctx context.Context, id string) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Progress is the polling view of a job's current step.
type Progress struct {
	Step     models.JobStatus `json:"step"`
	Message  string           `json:"message"`
	Progress float64          `json:"progress"`
}

// JobSnapshot is the polling response for a job. Result is set only once the
// job has completed.
type JobSnapshot struct {
	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	Progress Progress         `json:"progress"`
	Result   *ResultData      `json:"result"`
	Error    *string          `json:"error"`
	Query    string           `json:"query"`
	SkillID  string           `json:"skill_id"`
}

// Snapshot returns the polling view of a job.
func (s *JobService) Snapshot(ctx context.Context, id string) (*JobSnapshot, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewJobSnapshot(job), nil
}

// NewJobSnapshot builds the polling view of job.
func NewJobSnapshot(job *models.Job) *JobSnapshot {
	snap := &JobSnapshot{
		JobID:  job.ID,
		Status: job.Status,
		Progress: Progress{
			Step:     job.Status,
			Message:  job.Status.Message(),
			Progress: job.Status.Progress(),
		},
		Error:   job.Error,
		Query:   job.Query,
		SkillID: job.SkillID,
	}
	if job.Status == models.JobCompleted {
		snap.Result = &ResultData{
			HTMLReport:  job.HTMLReport,
			ReportTitle: job.ReportTitle,
			Reasoning:   job.Reasoning,
		}
	}
	return snap
}

// Observe streams a job's progress to emit until the job is terminal, the
// watcher times out, or ctx is cancelled. If the job is queued, this call may
// become its owner and run the pipeline. It returns store.ErrNotFound before
// emitting anything when the job does not exist.
func (s *JobService) Observe(ctx context.Context, id string, emit Emit) error {
	return observe(ctx, s.coord, subject[models.Job, models.JobStatus]{
		kind:      "job",
		id:        id,
		initial:   models.JobQueued,
		owned:     models.JobReasoning,
		fetch:     func(ctx context.Context) (*models.Job, error) { return s.store.GetJob(ctx, id) },
		status:    func(j *models.Job) models.JobStatus { return j.Status },
		terminal:  models.JobStatus.Terminal,
		transient: models.JobStatus.Transient,
		claim: func(ctx context.Context, expected, next models.JobStatus) (bool, error) {
			return s.store.ClaimJob(ctx, id, expected, next)
		},
		snapshot: emitJobSnapshot,
		run:      s.pipeline.Run,
		since:    func(j *models.Job) time.Time { return j.CreatedAt },
		ack:      func(emit Emit) { emit(statusEvent(models.JobQueued)) },
	}, emit)
}

// History returns a user's jobs, newest first. limit is clamped to
// [1, 200] with a default of 50; negative offsets are treated as zero.
func (s *JobService) History(ctx context.Context, userID string, limit, offset int) ([]models.Job, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	offset = max(offset, 0)

	jobs, err := s.store.ListJobsByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Publish freezes a job's report into a shareable page.
func (s *JobService) Publish(ctx context.Context, jobID string, userID *string) (*models.PublishedPage, error) {
	if jobID == "" {
		return nil, validationError("job_id is required")
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.HTMLReport == nil || *job.HTMLReport == "" {
		return nil, validationError("Job has no HTML report to publish")
	}

	title := models.Truncate(job.Query, 80)
	if job.ReportTitle != nil && *job.ReportTitle != "" {
		title = *job.ReportTitle
	}

	page := &models.PublishedPage{
		ID:        models.ShortID(10),
		JobID:     job.ID,
		UserID:    userID,
		Title:     title,
		HTML:      *job.HTMLReport,
		SkillID:   job.SkillID,
		Query:     job.Query,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertPublishedPage(ctx, page); err != nil {
		return nil, fmt.Errorf("insert published page: %w", err)
	}

	slog.Info("report published", "job_id", job.ID, "page_id", page.ID)
	return page, nil
}

// Page returns a published page.
func (s *JobService) Page(ctx context.Context, id string) (*models.PublishedPage, error) {
	return s.store.GetPublishedPage(ctx, id)
}
