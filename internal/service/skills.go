package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/tellmenow/internal/metrics"
	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/skillgen"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

// SkillService creates generated skills and coordinates their one-time synthesis.
type SkillService struct {
	store   store.SkillStore
	coord   *Coordinator
	gen     *skillgen.Generator
	metrics *metrics.Collector
	now     func() time.Time
}

// NewSkillService creates a skill service.
func NewSkillService(s store.SkillStore, coord *Coordinator, gen *skillgen.Generator, mc *metrics.Collector) *SkillService {
	return &SkillService{store: s, coord: coord, gen: gen, metrics: mc, now: time.Now}
}

// CreateSkillInput is a user's request for a new skill.
type CreateSkillInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	InputSpec   string  `json:"input_spec"`
	OutputSpec  string  `json:"output_spec"`
	ChatContext *string `json:"chat_context,omitempty"`
}

// Create stores a pending skill for userID. Generation starts when the skill
// is first observed.
func (s *SkillService) Create(ctx context.Context, userID string, in CreateSkillInput) (string, error) {
	for field, v := range map[string]string{
		"name":        in.Name,
		"description": in.Description,
		"input_spec":  in.InputSpec,
		"output_spec": in.OutputSpec,
	} {
		if strings.TrimSpace(v) == "" {
			return "", validationError("%s is required", field)
		}
	}

	now := s.now().UTC()
	skill := &models.GeneratedSkill{
		ID:          models.Slugify(in.Name) + "-" + models.ShortID(6),
		UserID:      userID,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		InputSpec:   strings.TrimSpace(in.InputSpec),
		OutputSpec:  strings.TrimSpace(in.OutputSpec),
		ChatContext: in.ChatContext,
		Status:      models.SkillPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertGeneratedSkill(ctx, skill); err != nil {
		return "", fmt.Errorf("insert generated skill: %w", err)
	}

	slog.Info("skill requested", "skill_id", skill.ID, "user_id", userID)
	return skill.ID, nil
}

// Status returns a generated skill row.
func (s *SkillService) Status(ctx context.Context, id string) (*models.GeneratedSkill, error) {
	return s.store.GetGeneratedSkill(ctx, id)
}

// Observe streams a skill's generation status, claiming and generating it
// when it is still pending. It returns store.ErrNotFound before emitting
// anything when the skill does not exist.
func (s *SkillService) Observe(ctx context.Context, id string, emit Emit) error {
	return observe(ctx, s.coord, subject[models.GeneratedSkill, models.SkillStatus]{
		kind:      "skill",
		id:        id,
		initial:   models.SkillPending,
		owned:     models.SkillGenerating,
		fetch:     func(ctx context.Context) (*models.GeneratedSkill, error) { return s.store.GetGeneratedSkill(ctx, id) },
		status:    func(g *models.GeneratedSkill) models.SkillStatus { return g.Status },
		terminal:  models.SkillStatus.Terminal,
		transient: models.SkillStatus.Transient,
		claim: func(ctx context.Context, expected, next models.SkillStatus) (bool, error) {
			return s.store.ClaimGeneratedSkill(ctx, id, expected, next)
		},
		snapshot: emitSkillSnapshot,
		run:      s.generate,
		since:    func(g *models.GeneratedSkill) time.Time { return g.UpdatedAt },
		ack: func(emit Emit) {
			emit(Event{Name: EventStatus, Data: SkillStatusData{Status: models.SkillGenerating}})
		},
	}, emit)
}

// generate runs the single-phase skill synthesis and emits the final status.
func (s *SkillService) generate(ctx context.Context, skill *models.GeneratedSkill, emit Emit) {
	start := time.Now()
	res, err := s.gen.Generate(ctx, skill)
	s.metrics.RecordTiming(metrics.OpSkillPipeline, time.Since(start))

	var update models.SkillUpdate
	if err != nil {
		s.metrics.Inc(metrics.CounterPipelineFailure)
		slog.Warn("skill generation failed", "skill_id", skill.ID, "error", err)
		failed, msg := models.SkillFailed, err.Error()
		update = models.SkillUpdate{Status: &failed, Error: &msg}
	} else {
		s.metrics.Inc(metrics.CounterPipelineSuccess)
		slog.Info("skill generated", "skill_id", skill.ID, "refs", len(res.Refs))
		ready := models.SkillReady
		update = models.SkillUpdate{Status: &ready, Content: &res.Content, Refs: res.Refs}
	}

	if err := s.store.UpdateGeneratedSkill(ctx, skill.ID, update); err != nil {
		slog.Error("failed to persist skill generation", "skill_id", skill.ID, "error", err)
	}

	final, err := s.store.GetGeneratedSkill(ctx, skill.ID)
	if err != nil {
		emit(Event{Name: EventStatus, Data: SkillStatusData{Status: models.SkillFailed}})
		return
	}
	emitSkillSnapshot(final, emit)
}
