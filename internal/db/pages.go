package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

type pageRow struct {
	ID        surrealmodels.RecordID `json:"id"`
	JobID     string                 `json:"job_id"`
	UserID    *string                `json:"user_id,omitempty"`
	Title     string                 `json:"title"`
	HTML      string                 `json:"html"`
	SkillID   string                 `json:"skill_id"`
	Query     string                 `json:"query"`
	CreatedAt time.Time              `json:"created_at"`
}

// InsertPublishedPage stores a frozen copy of a report.
func (c *Client) InsertPublishedPage(ctx context.Context, p *models.PublishedPage) error {
	content := map[string]any{
		"job_id":     p.JobID,
		"title":      p.Title,
		"html":       p.HTML,
		"skill_id":   p.SkillID,
		"query":      p.Query,
		"created_at": p.CreatedAt,
	}
	if p.UserID != nil {
		content["user_id"] = *p.UserID
	}

	_, err := surrealdb.Query[[]pageRow](ctx, c.db, `
		CREATE type::record("published_page", $id) CONTENT $content
	`, map[string]any{"id": p.ID, "content": content})
	if err != nil {
		return fmt.Errorf("insert page: %w", wrapQueryError(err))
	}
	return nil
}

// GetPublishedPage retrieves a published page by ID.
func (c *Client) GetPublishedPage(ctx context.Context, id string) (*models.PublishedPage, error) {
	results, err := surrealdb.Query[[]pageRow](ctx, c.db, `
		SELECT * FROM type::record("published_page", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get page %s: %w", id, store.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	key, err := recordKey(row.ID)
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return &models.PublishedPage{
		ID:        key,
		JobID:     row.JobID,
		UserID:    row.UserID,
		Title:     row.Title,
		HTML:      row.HTML,
		SkillID:   row.SkillID,
		Query:     row.Query,
		CreatedAt: row.CreatedAt,
	}, nil
}
