package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

const skillColumns = `id, user_id, name, description, input_spec, output_spec, chat_context,
	status, content, refs, error, share_status, created_at, updated_at`

func scanSkill(row pgx.Row) (models.GeneratedSkill, error) {
	var sk models.GeneratedSkill
	var status, share string
	err := row.Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Description, &sk.InputSpec, &sk.OutputSpec,
		&sk.ChatContext, &status, &sk.Content, &sk.Refs, &sk.Error, &share, &sk.CreatedAt, &sk.UpdatedAt)
	sk.Status = models.SkillStatus(status)
	sk.ShareStatus = models.ShareStatus(share)
	return sk, err
}

// InsertGeneratedSkill inserts a new generated skill row.
func (s *Store) InsertGeneratedSkill(ctx context.Context, sk *models.GeneratedSkill) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generated_skills
			(id, user_id, name, description, input_spec, output_spec, chat_context, status, share_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sk.ID, sk.UserID, sk.Name, sk.Description, sk.InputSpec, sk.OutputSpec, sk.ChatContext,
		string(sk.Status), string(sk.ShareStatus), sk.CreatedAt, sk.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert skill: %w", wrapError(err))
	}
	return nil
}

// GetGeneratedSkill retrieves a generated skill by ID.
func (s *Store) GetGeneratedSkill(ctx context.Context, id string) (*models.GeneratedSkill, error) {
	sk, err := scanSkill(s.pool.QueryRow(ctx, `SELECT `+skillColumns+` FROM generated_skills WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get skill %s: %w", id, wrapError(err))
	}
	return &sk, nil
}

// UpdateGeneratedSkill sets the non-nil fields of update and refreshes updated_at.
func (s *Store) UpdateGeneratedSkill(ctx context.Context, id string, update models.SkillUpdate) error {
	args := []any{id}
	sets := []string{"updated_at = now()"}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
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

	tag, err := s.pool.Exec(ctx, `UPDATE generated_skills SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update skill: %w", wrapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update skill %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ClaimGeneratedSkill moves the skill from expected to next with a conditional UPDATE.
func (s *Store) ClaimGeneratedSkill(ctx context.Context, id string, expected, next models.SkillStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE generated_skills SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(expected), string(next))
	if err != nil {
		return false, fmt.Errorf("claim skill: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListVisibleSkills returns own skills plus approved shared ones, newest first.
func (s *Store) ListVisibleSkills(ctx context.Context, userID string) ([]models.GeneratedSkill, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+skillColumns+` FROM generated_skills
		WHERE user_id = $1 OR share_status = 'approved'
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	skills := []models.GeneratedSkill{}
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		skills = append(skills, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	return skills, nil
}
