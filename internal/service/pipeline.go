package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/tellmenow/internal/llm"
	"github.com/raphaelgruber/tellmenow/internal/metrics"
	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/report"
	"github.com/raphaelgruber/tellmenow/internal/skills"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

// LLM is the model surface the pipelines need.
type LLM interface {
	Chat(ctx context.Context, system, user string, opts llm.ChatOptions) (string, error)
	ChatWithTools(ctx context.Context, system, user string, opts llm.ChatOptions, tools []llm.Tool, maxTurns int, progress func(string)) (string, error)
}

// SkillResolver looks up a skill as seen by a user.
type SkillResolver interface {
	Resolve(ctx context.Context, id string, userID *string) (models.Skill, error)
}

// ToolResolver maps the tool names a skill declares to runnable tools.
type ToolResolver interface {
	Resolve(names []string) []llm.Tool
}

var (
	reasoningOptions = llm.ChatOptions{MaxTokens: 8192, Temperature: 0.5}
	reportOptions    = llm.ChatOptions{MaxTokens: 16384, Temperature: 0.3}
)

// Pipeline runs the two-phase generation for a claimed job: reasoning, then
// the HTML report. Every phase is persisted before its event is emitted.
type Pipeline struct {
	store        store.JobStore
	skills       SkillResolver
	tools        ToolResolver
	llm          LLM
	maxToolTurns int
	metrics      *metrics.Collector
}

// NewPipeline creates a job pipeline. tools may be nil when no skill uses tools.
func NewPipeline(s store.JobStore, sk SkillResolver, tools ToolResolver, model LLM, maxToolTurns int, mc *metrics.Collector) *Pipeline {
	if maxToolTurns <= 0 {
		maxToolTurns = 25
	}
	return &Pipeline{
		store:        s,
		skills:       sk,
		tools:        tools,
		llm:          model,
		maxToolTurns: maxToolTurns,
		metrics:      mc,
	}
}

// Run drives job to a terminal status. Failures are persisted on the row and
// reported as a failed status event; nothing is returned to the caller.
func (p *Pipeline) Run(ctx context.Context, job *models.Job, emit Emit) {
	start := time.Now()
	err := p.run(ctx, job, emit)
	p.metrics.RecordTiming(metrics.OpJobPipeline, time.Since(start))

	if err == nil {
		p.metrics.Inc(metrics.CounterPipelineSuccess)
		slog.Info("job completed", "job_id", job.ID, "skill_id", job.SkillID, "duration", time.Since(start).Round(time.Millisecond))
		return
	}
	p.metrics.Inc(metrics.CounterPipelineFailure)

	msg, event := err.Error(), failedEvent(models.JobFailed.Message())
	if errors.Is(err, skills.ErrSkillNotFound) {
		msg, event = "Skill not found: "+job.SkillID, failedEvent("Skill not found")
	}
	slog.Warn("job failed", "job_id", job.ID, "skill_id", job.SkillID, "error", err)

	failed := models.JobFailed
	if uerr := p.store.UpdateJob(ctx, job.ID, models.JobUpdate{Status: &failed, Error: &msg}); uerr != nil {
		slog.Error("failed to persist job failure", "job_id", job.ID, "error", uerr)
	}
	emit(event)
}

func (p *Pipeline) run(ctx context.Context, job *models.Job, emit Emit) error {
	skill, err := p.skills.Resolve(ctx, job.SkillID, job.UserID)
	if err != nil {
		return err
	}

	// Phase 1: reasoning
	if err := p.setStatus(ctx, job.ID, models.JobReasoning); err != nil {
		return err
	}
	emit(statusEvent(models.JobReasoning))

	reasoning, err := p.reason(ctx, skill, job.Query, emit)
	if err != nil {
		return err
	}
	if err := p.store.UpdateJob(ctx, job.ID, models.JobUpdate{Reasoning: &reasoning}); err != nil {
		return fmt.Errorf("persist reasoning: %w", err)
	}
	emit(reasoningEvent(reasoning))

	// Phase 2: report
	if err := p.setStatus(ctx, job.ID, models.JobGenerating); err != nil {
		return err
	}
	emit(statusEvent(models.JobGenerating))

	raw, err := p.llm.Chat(ctx, report.SystemPrompt, reportPrompt(job.Query, reasoning), reportOptions)
	if err != nil {
		return err
	}
	content := report.Clean(raw)
	title := report.ExtractTitle(content, job.Query)
	html, err := report.Build(content, title)
	if err != nil {
		return err
	}

	completed := models.JobCompleted
	if err := p.store.UpdateJob(ctx, job.ID, models.JobUpdate{
		Status:      &completed,
		HTMLReport:  &html,
		ReportTitle: &title,
	}); err != nil {
		return fmt.Errorf("persist report: %w", err)
	}

	emit(reportEvent(html, &title))
	emit(statusEvent(models.JobCompleted))
	emit(resultEvent(&models.Job{HTMLReport: &html, ReportTitle: &title, Reasoning: &reasoning}))
	return nil
}

func (p *Pipeline) reason(ctx context.Context, skill models.Skill, query string, emit Emit) (string, error) {
	system, user := skillSystemPrompt(skill), reasoningPrompt(query)

	var tools []llm.Tool
	if p.tools != nil && len(skill.Tools) > 0 {
		tools = p.tools.Resolve(skill.Tools)
	}
	if len(tools) == 0 {
		return p.llm.Chat(ctx, system, user, reasoningOptions)
	}

	progress := func(msg string) {
		emit(statusEventWithMessage(models.JobReasoning, msg))
	}
	return p.llm.ChatWithTools(ctx, system, user, reasoningOptions, tools, p.maxToolTurns, progress)
}

func (p *Pipeline) setStatus(ctx context.Context, id string, status models.JobStatus) error {
	if err := p.store.UpdateJob(ctx, id, models.JobUpdate{Status: &status}); err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	return nil
}

func skillSystemPrompt(skill models.Skill) string {
	parts := []string{
		"You are an expert analyst. You have been given a specific skill with instructions on how to answer queries.",
		"Follow the skill instructions carefully and provide thorough, well-structured analysis.",
		"",
		"# Skill Instructions",
		skill.Content,
	}
	for _, name := range skills.ReferenceNames(skill) {
		parts = append(parts, "\n# Reference: "+name+"\n", skill.References[name])
	}
	return strings.Join(parts, "\n")
}

func reasoningPrompt(query string) string {
	return "User query: " + query + "\n\n" +
		"Please analyze this query following the skill instructions above. " +
		"Provide your detailed reasoning and analysis in markdown format. " +
		"Think step by step through each phase of the workflow. " +
		"Be thorough but concise."
}

func reportPrompt(query, reasoning string) string {
	return "Generate the body content for a professional HTML report.\n\n" +
		"# Query\n" + query + "\n\n" +
		"# Analysis\n" + reasoning + "\n\n" +
		"Generate the report body content now following the documented CSS classes. " +
		"Output only the HTML body content, no full-page wrapper."
}
