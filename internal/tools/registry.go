// Package tools implements the functions skills can allow the model to call.
package tools

import (
	"log/slog"
	"sort"

	"github.com/raphaelgruber/tellmenow/internal/config"
	"github.com/raphaelgruber/tellmenow/internal/llm"
)

// Registry holds the tools available to skills, keyed by name.
// It is built once at startup and never mutated afterwards.
type Registry struct {
	tools map[string]llm.Tool
}

// NewRegistry creates a registry of the given tools.
func NewRegistry(tools ...llm.Tool) *Registry {
	r := &Registry{tools: make(map[string]llm.Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Default returns the registry with all built-in tools configured from cfg.
func Default(cfg config.Config) *Registry {
	return NewRegistry(NewFetchURL(cfg.FetchTimeout, cfg.FetchMaxBytes))
}

// Resolve returns the tools named by a skill. Unknown names are logged and skipped.
func (r *Registry) Resolve(names []string) []llm.Tool {
	var out []llm.Tool
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			slog.Warn("skill declares unknown tool", "tool", name)
			continue
		}
		out = append(out, t)
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
