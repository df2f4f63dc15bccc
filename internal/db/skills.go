package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

type skillRow struct {
	ID          surrealmodels.RecordID `json:"id"`
	UserID      string                 `json:"user_id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSpec   string                 `json:"input_spec"`
	OutputSpec  string                 `json:"output_spec"`
	ChatContext *string                `json:"chat_context,omitempty"`
	Status      string                 `json:"status"`
	Content     *string                `json:"content,omitempty"`
	Refs        map[string]string      `json:"refs,omitempty"`
	Error       *string                `json:"error,omitempty"`
	ShareStatus *string                `json:"share_status,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func (r skillRow) toSkill() (models.GeneratedSkill, error) {
	id, err := recordKey(r.ID)
	if err != nil {
		return models.GeneratedSkill{}, err
	}
	s := models.GeneratedSkill{
		ID:          id,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		InputSpec:   r.InputSpec,
		OutputSpec:  r.OutputSpec,
		ChatContext: r.ChatContext,
		Status:      models.SkillStatus(r.Status),
		Content:     r.Content,
		Refs:        r.Refs,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ShareStatus != nil {
		s.ShareStatus = models.ShareStatus(*r.ShareStatus)
	}
	return s, nil
}

// InsertGeneratedSkill creates a generated_skill record keyed by skill.ID.
func (c *Client) InsertGeneratedSkill(ctx context.Context, skill *models.GeneratedSkill) error {
	content := map[string]any{
		"user_id":     skill.UserID,
		"name":        skill.Name,
		"description": skill.Description,
		"input_spec":  skill.InputSpec,
		"output_spec": skill.OutputSpec,
		"status":      string(skill.Status),
		"created_at":  skill.CreatedAt,
		"updated_at":  skill.UpdatedAt,
	}
	if skill.ChatContext != nil {
		content["chat_context"] = *skill.ChatContext
	}
	if skill.ShareStatus != models.ShareNone {
		content["share_status"] = string(skill.ShareStatus)
	}

	_, err := surrealdb.Query[[]skillRow](ctx, c.db, `
		CREATE type::record("generated_skill", $id) CONTENT $content
	`, map[string]any{"id": skill.ID, "content": content})
	if err != nil {
		return fmt.Errorf("insert skill: %w", wrapQueryError(err))
	}
	return nil
}

// GetGeneratedSkill retrieves a generated skill by ID.
func (c *Client) GetGeneratedSkill(ctx context.Context, id string) (*models.GeneratedSkill, error) {
	results, err := surrealdb.Query[[]skillRow](ctx, c.db, `
		SELECT * FROM type::record("generated_skill", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("get skill %s: %w", id, store.ErrNotFound)
	}
	s, err := (*results)[0].Result[0].toSkill()
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return &s, nil
}

// UpdateGeneratedSkill sets the non-nil fields of update and refreshes updated_at.
func (c *Client) UpdateGeneratedSkill(ctx context.Context, id string, update models.SkillUpdate) error {
	sets := []string{"updated_at = time::now()"}
	vars := map[string]any{"id": id}
	set := func(field string, value any) {
		sets = append(sets, field+" = $"+field)
		vars[field] = value
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.Content != nil {
		set("content", *update.Content)
	}
	if update.Refs != nil {
		set("refs", update.Refs)
	}
	if update.Error != nil {
		set("error", *update.Error)
	}
	if update.ShareStatus != nil {
		set("share_status", string(*update.ShareStatus))
	}

	sql := fmt.Sprintf(`UPDATE type::record("generated_skill", $id) SET %s RETURN AFTER`, strings.Join(sets, ", "))
	results, err := surrealdb.Query[[]skillRow](ctx, c.db, sql, vars)
	if err != nil {
		return fmt.Errorf("update skill: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("update skill %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ClaimGeneratedSkill moves the skill from expected to next in one conditional UPDATE.
func (c *Client) ClaimGeneratedSkill(ctx context.Context, id string, expected, next models.SkillStatus) (bool, error) {
	results, err := surrealdb.Query[[]skillRow](ctx, c.db, `
		UPDATE type::record("generated_skill", $id)
		SET status = $next, updated_at = time::now()
		WHERE status = $expected
		RETURN AFTER
	`, map[string]any{"id": id, "expected": string(expected), "next": string(next)})
	if err != nil {
		return claimResult(fmt.Errorf("claim skill: %w", wrapQueryError(err)))
	}
	return results != nil && len(*results) > 0 && len((*results)[0].Result) == 1, nil
}

// ListVisibleSkills returns the user's own skills plus approved shared skills.
func (c *Client) ListVisibleSkills(ctx context.Context, userID string) ([]models.GeneratedSkill, error) {
	results, err := surrealdb.Query[[]skillRow](ctx, c.db, `
		SELECT * FROM generated_skill
		WHERE user_id = $user OR share_status = "approved"
		ORDER BY created_at DESC
	`, map[string]any{"user": userID})
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	skills := []models.GeneratedSkill{}
	if results == nil || len(*results) == 0 {
		return skills, nil
	}
	for _, row := range (*results)[0].Result {
		s, err := row.toSkill()
		if err != nil {
			return nil, fmt.Errorf("list skills: %w", err)
		}
		skills = append(skills, s)
	}
	return skills, nil
}

// claimResult maps a transaction conflict to a lost claim.
func claimResult(err error) (bool, error) {
	if errors.Is(err, ErrTransactionConflict) {
		return false, nil
	}
	return false, err
}
