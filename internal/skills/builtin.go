package skills

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/tellmenow/internal/models"
)

//go:embed builtin
var builtinFS embed.FS

// frontmatter is the YAML header of a SKILL.md file.
type frontmatter struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tools       []string `yaml:"tools"`
}

// loadBuiltins reads every <dir>/SKILL.md under root, plus the markdown files
// in its references/ directory.
func loadBuiltins(fsys fs.FS, root string) (map[string]models.Skill, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	out := make(map[string]models.Skill, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := path.Join(root, entry.Name())
		raw, err := fs.ReadFile(fsys, path.Join(dir, "SKILL.md"))
		if err != nil {
			continue
		}

		meta, body, err := parseFrontmatter(string(raw))
		if err != nil {
			return nil, fmt.Errorf("skill %s: %w", entry.Name(), err)
		}
		if meta.ID == "" {
			meta.ID = entry.Name()
		}
		if meta.Name == "" {
			meta.Name = titleCase(meta.ID)
		}

		refs, err := loadReferences(fsys, path.Join(dir, "references"))
		if err != nil {
			return nil, fmt.Errorf("skill %s: %w", meta.ID, err)
		}

		out[meta.ID] = models.Skill{
			ID:          meta.ID,
			Name:        meta.Name,
			Description: strings.TrimSpace(meta.Description),
			Content:     body,
			References:  refs,
			Tools:       meta.Tools,
		}
	}
	return out, nil
}

func loadReferences(fsys fs.FS, dir string) (map[string]string, error) {
	refs := map[string]string{}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return refs, nil
		}
		return nil, fmt.Errorf("read references: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".md" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read reference %s: %w", entry.Name(), err)
		}
		refs[entry.Name()] = string(data)
	}
	return refs, nil
}

// parseFrontmatter splits a "---" delimited YAML header from the markdown body.
// Documents without a header are returned unchanged with empty metadata.
func parseFrontmatter(content string) (frontmatter, string, error) {
	var meta frontmatter
	if !strings.HasPrefix(content, "---\n") {
		return meta, strings.TrimSpace(content), nil
	}
	end := strings.Index(content[4:], "\n---")
	if end < 0 {
		return meta, strings.TrimSpace(content), nil
	}
	if err := yaml.Unmarshal([]byte(content[4:4+end]), &meta); err != nil {
		return meta, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return meta, strings.TrimSpace(content[4+end+4:]), nil
}

func titleCase(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ReferenceNames returns the reference document names of s in a stable order.
func ReferenceNames(s models.Skill) []string {
	names := make([]string, 0, len(s.References))
	for name := range s.References {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
