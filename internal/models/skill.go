package models

// Skill is a resolved bundle of LLM instructions and reference documents.
// Skills are read-only once resolved.
type Skill struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Content     string            `json:"-"`
	References  map[string]string `json:"-"`
	Tools       []string          `json:"-"`

	// Status is set only for generated skills.
	Status SkillStatus `json:"status,omitempty"`
}
