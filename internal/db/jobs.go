package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

type jobRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	Query       string                 `json:"query"`
	SkillID     string                 `json:"skill_id"`
	Status      string                 `json:"status"`
	Reasoning   *string                `json:"reasoning,omitempty"`
	HTMLReport  *string                `json:"html_report,omitempty"`
	ReportTitle *string                `json:"report_title,omitempty"`
	Error       *string                `json:"error,omitempty"`
	UserID      *string                `json:"user_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (r jobRow) toJob() (models.Job, error) {
	id, err := recordKey(r.ID)
	if err != nil {
		return models.Job{}, err
	}
	status := models.JobStatus(r.Status)
	if !status.Valid() {
		return models.Job{}, fmt.Errorf("job %s: unknown status %q", id, r.Status)
	}
	return models.Job{
		ID:          id,
		Query:       r.Query,
		SkillID:     r.SkillID,
		Status:      status,
		Reasoning:   r.Reasoning,
		HTMLReport:  r.HTMLReport,
		ReportTitle: r.ReportTitle,
		Error:       r.Error,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// InsertJob creates a job record keyed by job.ID.
func (c *Client) InsertJob(ctx context.Context, job *models.Job) error {
	content := map[string]any{
		"query":      job.Query,
		"skill_id":   job.SkillID,
		"status":     string(job.Status),
		"created_at": job.CreatedAt,
	}
	if job.UserID != nil {
		content["user_id"] = *job.UserID
	}

	_, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		CREATE type::record("job", $id) CONTENT $content
	`, map[string]any{"id": job.ID, "content": content})
	if err != nil {
		return fmt.Errorf("insert job: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM type::record("job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get job %s: %w", id, store.ErrNotFound)
	}
	job, err := (*results)[0].Result[0].toJob()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// UpdateJob sets the non-nil fields of update.
func (c *Client) UpdateJob(ctx context.Context, id string, update models.JobUpdate) error {
	if update.Empty() {
		return nil
	}

	var sets []string
	vars := map[string]any{"id": id}
	set := func(field string, value any) {
		sets = append(sets, field+" = $"+field)
		vars[field] = value
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.Reasoning != nil {
		set("reasoning", *update.Reasoning)
	}
	if update.HTMLReport != nil {
		set("html_report", *update.HTMLReport)
	}
	if update.ReportTitle != nil {
		set("report_title", *update.ReportTitle)
	}
	if update.Error != nil {
		set("error", *update.Error)
	}

	sql := fmt.Sprintf(`UPDATE type::record("job", $id) SET %s RETURN AFTER`, strings.Join(sets, ", "))
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, sql, vars)
	if err != nil {
		return fmt.Errorf("update job: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("update job %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ClaimJob moves the job from expected to next in one conditional UPDATE.
// Exactly one of any number of concurrent callers gets a row back.
func (c *Client) ClaimJob(ctx context.Context, id string, expected, next models.JobStatus) (bool, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		UPDATE type::record("job", $id) SET status = $next
		WHERE status = $expected
		RETURN AFTER
	`, map[string]any{"id": id, "expected": string(expected), "next": string(next)})
	if err != nil {
		return claimResult(fmt.Errorf("claim job: %w", wrapQueryError(err)))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) == 1, nil
}

// ListJobsByUser returns the user's jobs, newest first.
func (c *Client) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Job, error) {
	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM job WHERE user_id = $user
		ORDER BY created_at DESC
		LIMIT $limit START $offset
	`, map[string]any{"user": userID, "limit": limit, "offset": offset})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := []models.Job{}
	if results == nil || len(*results) == 0 {
		return jobs, nil
	}
	for _, row := range (*results)[0].Result {
		job, err := row.toJob()
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
