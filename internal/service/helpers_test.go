package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/tellmenow/internal/llm"
	"github.com/raphaelgruber/tellmenow/internal/metrics"
	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/report"
	"github.com/raphaelgruber/tellmenow/internal/skillgen"
	"github.com/raphaelgruber/tellmenow/internal/skills"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

// fakeLLM answers reasoning and report prompts with canned text.
// When gate is set, every call blocks until it is closed.
type fakeLLM struct {
	mu        sync.Mutex
	calls     int
	toolCalls int
	reasoning string
	report    string
	skill     string
	err       error
	gate      chan struct{}
	progress  []string
	lastTools []llm.Tool
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{
		reasoning: "Step 1: think. Step 2: conclude.",
		report:    "```html\n<h1>Go Report</h1><p>All good.</p>\n```",
		skill:     "<skill-content>generated body</skill-content>",
	}
}

func (f *fakeLLM) Chat(ctx context.Context, system, user string, _ llm.ChatOptions) (string, error) {
	f.mu.Lock()
	f.calls++
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	switch {
	case system == report.SystemPrompt:
		return f.report, nil
	case strings.HasPrefix(user, "# Skill to Generate"):
		return f.skill, nil
	}
	return f.reasoning, nil
}

func (f *fakeLLM) ChatWithTools(ctx context.Context, system, user string, opts llm.ChatOptions, tools []llm.Tool, _ int, progress func(string)) (string, error) {
	f.mu.Lock()
	f.toolCalls++
	f.lastTools = tools
	f.mu.Unlock()
	for _, msg := range f.progress {
		progress(msg)
	}
	return f.Chat(ctx, system, user, opts)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder collects events emitted to one observer.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) names() []string {
	var names []string
	for _, e := range r.all() {
		names = append(names, e.Name)
	}
	return names
}

// jobStatuses returns the status of every job status event, in order.
func (r *recorder) jobStatuses() []models.JobStatus {
	var out []models.JobStatus
	for _, e := range r.all() {
		if d, ok := e.Data.(StatusData); ok {
			out = append(out, d.Status)
		}
	}
	return out
}

func (r *recorder) skillStatuses() []models.SkillStatus {
	var out []models.SkillStatus
	for _, e := range r.all() {
		if d, ok := e.Data.(SkillStatusData); ok {
			out = append(out, d.Status)
		}
	}
	return out
}

type staticSkills map[string]models.Skill

func (s staticSkills) Resolve(_ context.Context, id string, _ *string) (models.Skill, error) {
	if sk, ok := s[id]; ok {
		return sk, nil
	}
	return models.Skill{}, skills.ErrSkillNotFound
}

type staticTools []llm.Tool

func (s staticTools) Resolve([]string) []llm.Tool { return s }

type testEnv struct {
	store   *store.Memory
	llm     *fakeLLM
	coord   *Coordinator
	metrics *metrics.Collector
	jobs    *JobService
	skills  *SkillService
}

type envOption func(*envConfig)

type envConfig struct {
	coord    CoordinatorConfig
	resolver SkillResolver
	tools    ToolResolver
	store    store.Store
}

func withMaxPolls(n int) envOption {
	return func(c *envConfig) { c.coord.MaxPolls = n }
}

func withResolver(r SkillResolver) envOption {
	return func(c *envConfig) { c.resolver = r }
}

func withTools(t ToolResolver) envOption {
	return func(c *envConfig) { c.tools = t }
}

func withStore(s store.Store) envOption {
	return func(c *envConfig) { c.store = s }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	cfg := envConfig{
		coord: CoordinatorConfig{PollInterval: 5 * time.Millisecond, MaxPolls: 400, StaleAfter: 5 * time.Minute},
		store: mem,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.resolver == nil {
		reg, err := skills.NewRegistry(mem)
		require.NoError(t, err)
		cfg.resolver = reg
	}

	mc := metrics.NewCollector()
	fake := newFakeLLM()
	coord := NewCoordinator(cfg.coord, mc)
	pipeline := NewPipeline(cfg.store, cfg.resolver, cfg.tools, fake, 25, mc)

	env := &testEnv{
		store:   mem,
		llm:     fake,
		coord:   coord,
		metrics: mc,
		jobs:    NewJobService(cfg.store, coord, pipeline),
		skills:  NewSkillService(cfg.store, coord, skillgen.New(fake), mc),
	}
	t.Cleanup(coord.Wait)
	return env
}

func (e *testEnv) insertJob(t *testing.T, job models.Job) {
	t.Helper()
	if job.ID == "" {
		job.ID = models.ShortID(12)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	require.NoError(t, e.store.InsertJob(context.Background(), &job))
}

func (e *testEnv) job(t *testing.T, id string) *models.Job {
	t.Helper()
	j, err := e.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return j
}
