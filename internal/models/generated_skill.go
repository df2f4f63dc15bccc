package models

import "time"

// SkillStatus is the generation state of a user-requested skill.
type SkillStatus string

const (
	SkillPending    SkillStatus = "pending"
	SkillGenerating SkillStatus = "generating"
	SkillReady      SkillStatus = "ready"
	SkillFailed     SkillStatus = "failed"
)

// Terminal reports whether generation has finished one way or the other.
func (s SkillStatus) Terminal() bool {
	return s == SkillReady || s == SkillFailed
}

// Transient reports whether a generator currently owns the skill.
func (s SkillStatus) Transient() bool {
	return s == SkillGenerating
}

// ShareStatus governs visibility of a generated skill to other users.
// The zero value means the skill was never nominated.
type ShareStatus string

const (
	ShareNone          ShareStatus = ""
	SharePendingReview ShareStatus = "pending_review"
	ShareApproved      ShareStatus = "approved"
	ShareRejected      ShareStatus = "rejected"
)

// GeneratedSkill is a skill synthesized once by an LLM from a user's request.
// Content and Refs are populated only when Status is SkillReady.
type GeneratedSkill struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	InputSpec   string            `json:"input_spec"`
	OutputSpec  string            `json:"output_spec"`
	ChatContext *string           `json:"chat_context,omitempty"`
	Status      SkillStatus       `json:"status"`
	Content     *string           `json:"content,omitempty"`
	Refs        map[string]string `json:"refs,omitempty"`
	Error       *string           `json:"error,omitempty"`
	ShareStatus ShareStatus       `json:"share_status,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SkillUpdate is a partial update of a generated skill row.
// UpdatedAt is always refreshed by the store.
type SkillUpdate struct {
	Status      *SkillStatus
	Content     *string
	Refs        map[string]string
	Error       *string
	ShareStatus *ShareStatus
}

// Apply copies the set fields of u onto s and stamps UpdatedAt.
func (u SkillUpdate) Apply(s *GeneratedSkill, now time.Time) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.Content != nil {
		s.Content = Ptr(*u.Content)
	}
	if u.Refs != nil {
		refs := make(map[string]string, len(u.Refs))
		for k, v := range u.Refs {
			refs[k] = v
		}
		s.Refs = refs
	}
	if u.Error != nil {
		s.Error = Ptr(*u.Error)
	}
	if u.ShareStatus != nil {
		s.ShareStatus = *u.ShareStatus
	}
	s.UpdatedAt = now
}
