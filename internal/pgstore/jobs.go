package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

const jobColumns = `id, query, skill_id, status, reasoning, html_report, report_title, error, user_id, created_at`

func scanJob(row pgx.Row) (models.Job, error) {
	var j models.Job
	var status string
	err := row.Scan(&j.ID, &j.Query, &j.SkillID, &status, &j.Reasoning, &j.HTMLReport,
		&j.ReportTitle, &j.Error, &j.UserID, &j.CreatedAt)
	if err != nil {
		return j, err
	}
	j.Status = models.JobStatus(status)
	if !j.Status.Valid() {
		return j, fmt.Errorf("job %s: unknown status %q", j.ID, status)
	}
	return j, nil
}

// InsertJob inserts a new job row.
func (s *Store) InsertJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, query, skill_id, status, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, job.ID, job.Query, job.SkillID, string(job.Status), job.UserID, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", wrapError(err))
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, wrapError(err))
	}
	return &job, nil
}

// UpdateJob sets the non-nil fields of update.
func (s *Store) UpdateJob(ctx context.Context, id string, update models.JobUpdate) error {
	if update.Empty() {
		return nil
	}

	args := []any{id}
	var sets []string
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
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

	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", wrapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ClaimJob moves the job from expected to next with a conditional UPDATE.
func (s *Store) ClaimJob(ctx context.Context, id string, expected, next models.JobStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $3 WHERE id = $1 AND status = $2
	`, id, string(expected), string(next))
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListJobsByUser returns the user's jobs, newest first.
func (s *Store) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
