package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/tellmenow/internal/models"
)

func newJob(id string) *models.Job {
	return &models.Job{
		ID:        id,
		Query:     "what is up",
		SkillID:   "site-overviewer",
		Status:    models.JobQueued,
		CreatedAt: time.Now(),
	}
}

func TestMemoryJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.InsertJob(ctx, newJob("j1")))
	assert.ErrorIs(t, m.InsertJob(ctx, newJob("j1")), ErrAlreadyExists)

	status := models.JobCompleted
	require.NoError(t, m.UpdateJob(ctx, "j1", models.JobUpdate{
		Status:     &status,
		HTMLReport: models.Ptr("<h1>x</h1>"),
	}))

	got, err := m.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	require.NotNil(t, got.HTMLReport)
	assert.Equal(t, "<h1>x</h1>", *got.HTMLReport)

	// Returned rows are copies.
	*got.HTMLReport = "mutated"
	again, err := m.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "<h1>x</h1>", *again.HTMLReport)

	_, err = m.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.UpdateJob(ctx, "missing", models.JobUpdate{}), ErrNotFound)
}

func TestMemoryClaimJob(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertJob(ctx, newJob("j1")))

	ok, err := m.ClaimJob(ctx, "j1", models.JobQueued, models.JobReasoning)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ClaimJob(ctx, "j1", models.JobQueued, models.JobReasoning)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	ok, err = m.ClaimJob(ctx, "missing", models.JobQueued, models.JobReasoning)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryClaimJobConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.InsertJob(ctx, newJob("j1")))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ClaimJob(ctx, "j1", models.JobQueued, models.JobReasoning)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryListJobsByUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		j := newJob(id)
		j.UserID = models.Ptr("u1")
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, m.InsertJob(ctx, j))
	}
	other := newJob("z")
	other.UserID = models.Ptr("u2")
	require.NoError(t, m.InsertJob(ctx, other))
	require.NoError(t, m.InsertJob(ctx, newJob("anon")))

	jobs, err := m.ListJobsByUser(ctx, "u1", 2, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)

	jobs, err = m.ListJobsByUser(ctx, "u1", 2, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].ID)

	jobs, err = m.ListJobsByUser(ctx, "u1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestMemoryGeneratedSkills(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	mine := &models.GeneratedSkill{ID: "s1", UserID: "u1", Name: "Mine", Status: models.SkillPending, CreatedAt: now}
	shared := &models.GeneratedSkill{ID: "s2", UserID: "u2", Name: "Shared", Status: models.SkillReady, ShareStatus: models.ShareApproved, CreatedAt: now.Add(time.Second)}
	private := &models.GeneratedSkill{ID: "s3", UserID: "u2", Name: "Private", Status: models.SkillReady, CreatedAt: now}
	for _, s := range []*models.GeneratedSkill{mine, shared, private} {
		require.NoError(t, m.InsertGeneratedSkill(ctx, s))
	}
	assert.ErrorIs(t, m.InsertGeneratedSkill(ctx, mine), ErrAlreadyExists)

	now = now.Add(time.Hour)
	ok, err := m.ClaimGeneratedSkill(ctx, "s1", models.SkillPending, models.SkillGenerating)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.ClaimGeneratedSkill(ctx, "s1", models.SkillPending, models.SkillGenerating)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.GetGeneratedSkill(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SkillGenerating, got.Status)
	assert.Equal(t, now, got.UpdatedAt)

	ready := models.SkillReady
	require.NoError(t, m.UpdateGeneratedSkill(ctx, "s1", models.SkillUpdate{
		Status:  &ready,
		Content: models.Ptr("body"),
		Refs:    map[string]string{"output-format.md": "fmt"},
	}))
	got, err = m.GetGeneratedSkill(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "body", *got.Content)
	assert.Equal(t, map[string]string{"output-format.md": "fmt"}, got.Refs)

	visible, err := m.ListVisibleSkills(ctx, "u1")
	require.NoError(t, err)
	ids := make([]string, 0, len(visible))
	for _, s := range visible {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"s2", "s1"}, ids)

	_, err = m.GetGeneratedSkill(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPublishedPages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := &models.PublishedPage{ID: "p1", JobID: "j1", Title: "T", HTML: "<p/>"}
	require.NoError(t, m.InsertPublishedPage(ctx, p))
	assert.ErrorIs(t, m.InsertPublishedPage(ctx, p), ErrAlreadyExists)

	got, err := m.GetPublishedPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)

	_, err = m.GetPublishedPage(ctx, "p2")
	assert.ErrorIs(t, err, ErrNotFound)
}
