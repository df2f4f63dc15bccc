// Package skillgen synthesizes skill definitions from a user's description.
package skillgen

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/raphaelgruber/tellmenow/internal/llm"
	"github.com/raphaelgruber/tellmenow/internal/models"
)

// ErrParse indicates the model response did not contain a skill definition.
var ErrParse = errors.New("LLM response missing <skill-content> block")

// OutputFormatRef is the reference document name the output format is stored under.
const OutputFormatRef = "output-format.md"

var (
	contentBlock = regexp.MustCompile(`<skill-content>\s*([\s\S]*?)\s*</skill-content>`)
	formatBlock  = regexp.MustCompile(`<output-format>\s*([\s\S]*?)\s*</output-format>`)
)

var chatOptions = llm.ChatOptions{MaxTokens: 8192, Temperature: 0.5}

// Chatter is the single-call model surface the generator needs.
type Chatter interface {
	Chat(ctx context.Context, system, user string, opts llm.ChatOptions) (string, error)
}

// Generator turns a generated skill request into skill instructions.
type Generator struct {
	llm Chatter
}

// New creates a generator.
func New(c Chatter) *Generator {
	return &Generator{llm: c}
}

// Result is a parsed skill definition.
type Result struct {
	Content string
	Refs    map[string]string
}

// Generate asks the model for a skill definition and parses it.
// A response without a <skill-content> block fails with ErrParse.
func (g *Generator) Generate(ctx context.Context, skill *models.GeneratedSkill) (Result, error) {
	resp, err := g.llm.Chat(ctx, systemPrompt, UserPrompt(skill), chatOptions)
	if err != nil {
		return Result{}, err
	}
	return Parse(resp)
}

// Parse extracts the skill content and optional output format from a response.
func Parse(resp string) (Result, error) {
	m := contentBlock.FindStringSubmatch(resp)
	if m == nil {
		return Result{}, ErrParse
	}

	res := Result{Content: strings.TrimSpace(m[1]), Refs: map[string]string{}}
	if f := formatBlock.FindStringSubmatch(resp); f != nil {
		res.Refs[OutputFormatRef] = strings.TrimSpace(f[1])
	}
	return res, nil
}

// UserPrompt renders the skill request for the model.
func UserPrompt(skill *models.GeneratedSkill) string {
	lines := []string{
		"# Skill to Generate",
		"",
		"**Name**: " + skill.Name,
		"**Description**: " + skill.Description,
		"**Input**: " + skill.InputSpec,
		"**Output**: " + skill.OutputSpec,
	}
	if skill.ChatContext != nil && *skill.ChatContext != "" {
		lines = append(lines, "", "## Conversation Context", "", *skill.ChatContext)
	}
	return strings.Join(lines, "\n")
}
