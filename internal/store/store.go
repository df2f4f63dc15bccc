// Package store defines the row-oriented persistence contract used by the
// coordinator, and an in-memory implementation of it.
//
// Claim methods are the only synchronization primitive in the system: they
// move a row from an expected status to a new one in a single atomic step and
// report whether this caller made the change.
package store

import (
	"context"
	"errors"

	"github.com/raphaelgruber/tellmenow/internal/models"
)

// Sentinel errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an insert collided with an existing id.
	ErrAlreadyExists = errors.New("already exists")
)

// JobStore persists query jobs.
type JobStore interface {
	InsertJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	UpdateJob(ctx context.Context, id string, update models.JobUpdate) error
	// ClaimJob sets status to next only if it currently equals expected.
	ClaimJob(ctx context.Context, id string, expected, next models.JobStatus) (bool, error)
	ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Job, error)
}

// SkillStore persists user-requested generated skills.
type SkillStore interface {
	InsertGeneratedSkill(ctx context.Context, skill *models.GeneratedSkill) error
	GetGeneratedSkill(ctx context.Context, id string) (*models.GeneratedSkill, error)
	UpdateGeneratedSkill(ctx context.Context, id string, update models.SkillUpdate) error
	// ClaimGeneratedSkill sets status to next only if it currently equals expected.
	ClaimGeneratedSkill(ctx context.Context, id string, expected, next models.SkillStatus) (bool, error)
	// ListVisibleSkills returns the user's own skills plus other users'
	// approved shared skills, newest first.
	ListVisibleSkills(ctx context.Context, userID string) ([]models.GeneratedSkill, error)
}

// PageStore persists published report pages.
type PageStore interface {
	InsertPublishedPage(ctx context.Context, page *models.PublishedPage) error
	GetPublishedPage(ctx context.Context, id string) (*models.PublishedPage, error)
}

// Store is the full persistence surface of the server.
type Store interface {
	JobStore
	SkillStore
	PageStore
	Close(ctx context.Context) error
}
