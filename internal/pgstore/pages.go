package pgstore

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/tellmenow/internal/models"
)

// InsertPublishedPage inserts a published page row.
func (s *Store) InsertPublishedPage(ctx context.Context, p *models.PublishedPage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO published_pages (id, job_id, user_id, title, html, skill_id, query, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.JobID, p.UserID, p.Title, p.HTML, p.SkillID, p.Query, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert page: %w", wrapError(err))
	}
	return nil
}

// GetPublishedPage retrieves a published page by ID.
func (s *Store) GetPublishedPage(ctx context.Context, id string) (*models.PublishedPage, error) {
	var p models.PublishedPage
	err := s.pool.QueryRow(ctx, `
		SELECT id, job_id, user_id, title, html, skill_id, query, created_at
		FROM published_pages WHERE id = $1
	`, id).Scan(&p.ID, &p.JobID, &p.UserID, &p.Title, &p.HTML, &p.SkillID, &p.Query, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, wrapError(err))
	}
	return &p, nil
}
