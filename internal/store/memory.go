package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/tellmenow/internal/models"
)

// Memory is an in-process Store. Its claims are atomic within one process
// only, so it suits tests and single-instance development servers.
type Memory struct {
	mu     sync.Mutex
	jobs   map[string]models.Job
	skills map[string]models.GeneratedSkill
	pages  map[string]models.PublishedPage
	now    func() time.Time
}

// Compile-time check that Memory implements Store.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]models.Job),
		skills: make(map[string]models.GeneratedSkill),
		pages:  make(map[string]models.PublishedPage),
		now:    time.Now,
	}
}

// SetClock replaces the clock used to stamp UpdatedAt (for tests).
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// InsertJob stores a new job.
func (m *Memory) InsertJob(_ context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("insert job %s: %w", job.ID, ErrAlreadyExists)
	}
	m.jobs[job.ID] = cloneJob(*job)
	return nil
}

// GetJob returns a copy of the job row.
func (m *Memory) GetJob(_ context.Context, id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get job %s: %w", id, ErrNotFound)
	}
	out := cloneJob(job)
	return &out, nil
}

// UpdateJob applies a partial update.
func (m *Memory) UpdateJob(_ context.Context, id string, update models.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("update job %s: %w", id, ErrNotFound)
	}
	update.Apply(&job)
	m.jobs[id] = job
	return nil
}

// ClaimJob performs the compare-and-set status transition.
func (m *Memory) ClaimJob(_ context.Context, id string, expected, next models.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != expected {
		return false, nil
	}
	job.Status = next
	m.jobs[id] = job
	return true, nil
}

// ListJobsByUser returns the user's jobs, newest first.
func (m *Memory) ListJobsByUser(_ context.Context, userID string, limit, offset int) ([]models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var jobs []models.Job
	for _, job := range m.jobs {
		if job.UserID != nil && *job.UserID == userID {
			jobs = append(jobs, cloneJob(job))
		}
	}
	slices.SortFunc(jobs, func(a, b models.Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return page(jobs, limit, offset), nil
}

// InsertGeneratedSkill stores a new generated skill.
func (m *Memory) InsertGeneratedSkill(_ context.Context, skill *models.GeneratedSkill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.skills[skill.ID]; ok {
		return fmt.Errorf("insert skill %s: %w", skill.ID, ErrAlreadyExists)
	}
	m.skills[skill.ID] = cloneSkill(*skill)
	return nil
}

// GetGeneratedSkill returns a copy of the skill row.
func (m *Memory) GetGeneratedSkill(_ context.Context, id string) (*models.GeneratedSkill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skill, ok := m.skills[id]
	if !ok {
		return nil, fmt.Errorf("get skill %s: %w", id, ErrNotFound)
	}
	out := cloneSkill(skill)
	return &out, nil
}

// UpdateGeneratedSkill applies a partial update and stamps UpdatedAt.
func (m *Memory) UpdateGeneratedSkill(_ context.Context, id string, update models.SkillUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	skill, ok := m.skills[id]
	if !ok {
		return fmt.Errorf("update skill %s: %w", id, ErrNotFound)
	}
	update.Apply(&skill, m.now())
	m.skills[id] = skill
	return nil
}

// ClaimGeneratedSkill performs the compare-and-set status transition.
func (m *Memory) ClaimGeneratedSkill(_ context.Context, id string, expected, next models.SkillStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skill, ok := m.skills[id]
	if !ok || skill.Status != expected {
		return false, nil
	}
	skill.Status = next
	skill.UpdatedAt = m.now()
	m.skills[id] = skill
	return true, nil
}

// ListVisibleSkills returns own skills plus approved shared ones.
func (m *Memory) ListVisibleSkills(_ context.Context, userID string) ([]models.GeneratedSkill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skills []models.GeneratedSkill
	for _, s := range m.skills {
		if s.UserID == userID || s.ShareStatus == models.ShareApproved {
			skills = append(skills, cloneSkill(s))
		}
	}
	slices.SortFunc(skills, func(a, b models.GeneratedSkill) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return skills, nil
}

// InsertPublishedPage stores a published page.
func (m *Memory) InsertPublishedPage(_ context.Context, p *models.PublishedPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[p.ID]; ok {
		return fmt.Errorf("insert page %s: %w", p.ID, ErrAlreadyExists)
	}
	m.pages[p.ID] = *p
	return nil
}

// GetPublishedPage returns a published page.
func (m *Memory) GetPublishedPage(_ context.Context, id string) (*models.PublishedPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pages[id]
	if !ok {
		return nil, fmt.Errorf("get page %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

// Close is a no-op.
func (m *Memory) Close(context.Context) error {
	return nil
}

func cloneJob(j models.Job) models.Job {
	j.Reasoning = cloneString(j.Reasoning)
	j.HTMLReport = cloneString(j.HTMLReport)
	j.ReportTitle = cloneString(j.ReportTitle)
	j.Error = cloneString(j.Error)
	j.UserID = cloneString(j.UserID)
	return j
}

func cloneSkill(s models.GeneratedSkill) models.GeneratedSkill {
	s.ChatContext = cloneString(s.ChatContext)
	s.Content = cloneString(s.Content)
	s.Error = cloneString(s.Error)
	if s.Refs != nil {
		refs := make(map[string]string, len(s.Refs))
		for k, v := range s.Refs {
			refs[k] = v
		}
		s.Refs = refs
	}
	return s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// page applies limit/offset to an already sorted slice.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
