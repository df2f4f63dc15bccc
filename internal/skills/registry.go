// Package skills resolves skill ids to instruction bundles.
//
// Two sources share one namespace: the built-in skills embedded in the
// binary, and generated skills stored per user once they are ready.
package skills

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

// ErrSkillNotFound indicates no built-in or visible generated skill has the id.
var ErrSkillNotFound = errors.New("skill not found")

// Registry resolves skills. The built-in table is immutable after construction;
// generated skills are read from the store on every call.
type Registry struct {
	builtins map[string]models.Skill
	store    store.SkillStore
}

// NewRegistry loads the embedded built-in skills. store may be nil, in which
// case only built-ins resolve.
func NewRegistry(s store.SkillStore) (*Registry, error) {
	builtins, err := loadBuiltins(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	return &Registry{builtins: builtins, store: s}, nil
}

// NewRegistryFromFS builds a registry from skill directories under root in fsys.
func NewRegistryFromFS(fsys fs.FS, root string, s store.SkillStore) (*Registry, error) {
	builtins, err := loadBuiltins(fsys, root)
	if err != nil {
		return nil, err
	}
	return &Registry{builtins: builtins, store: s}, nil
}

// Resolve returns the skill with the given id as seen by userID (nil for
// anonymous callers). Generated skills resolve only when ready and either
// owned by the user or approved for sharing.
func (r *Registry) Resolve(ctx context.Context, id string, userID *string) (models.Skill, error) {
	if s, ok := r.builtins[id]; ok {
		return s, nil
	}
	if r.store == nil {
		return models.Skill{}, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}

	gs, err := r.store.GetGeneratedSkill(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Skill{}, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
		}
		return models.Skill{}, fmt.Errorf("resolve skill %s: %w", id, err)
	}
	if gs.Status != models.SkillReady || gs.Content == nil || !visibleTo(gs, userID) {
		return models.Skill{}, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	return fromGenerated(gs), nil
}

// List returns the built-in skills followed by the generated skills visible
// to userID. Other users' skills are listed only when ready.
func (r *Registry) List(ctx context.Context, userID *string) ([]models.Skill, error) {
	out := make([]models.Skill, 0, len(r.builtins))
	for _, s := range r.builtins {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if r.store == nil || userID == nil {
		return out, nil
	}

	generated, err := r.store.ListVisibleSkills(ctx, *userID)
	if err != nil {
		return nil, fmt.Errorf("list generated skills: %w", err)
	}
	for i := range generated {
		gs := &generated[i]
		if gs.UserID != *userID && gs.Status != models.SkillReady {
			continue
		}
		s := fromGenerated(gs)
		s.Status = gs.Status
		out = append(out, s)
	}
	return out, nil
}

func visibleTo(gs *models.GeneratedSkill, userID *string) bool {
	if gs.ShareStatus == models.ShareApproved {
		return true
	}
	return userID != nil && *userID == gs.UserID
}

func fromGenerated(gs *models.GeneratedSkill) models.Skill {
	s := models.Skill{
		ID:          gs.ID,
		Name:        gs.Name,
		Description: gs.Description,
		References:  map[string]string{},
	}
	if gs.Content != nil {
		s.Content = *gs.Content
	}
	for k, v := range gs.Refs {
		s.References[k] = v
	}
	return s
}
