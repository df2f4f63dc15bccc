// Package models defines the data structures shared across TellMeNow.
package models

import "time"

// JobStatus is the lifecycle state of a query job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobReasoning  JobStatus = "reasoning"
	JobGenerating JobStatus = "generating"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Transient reports whether some process currently owns the job.
func (s JobStatus) Transient() bool {
	return s == JobReasoning || s == JobGenerating
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobReasoning, JobGenerating, JobCompleted, JobFailed:
		return true
	}
	return false
}

var jobProgress = map[JobStatus]float64{
	JobQueued:     0.0,
	JobReasoning:  0.15,
	JobGenerating: 0.6,
	JobCompleted:  1.0,
	JobFailed:     0.0,
}

var jobMessages = map[JobStatus]string{
	JobQueued:     "Waiting in queue...",
	JobReasoning:  "Analyzing your query...",
	JobGenerating: "Generating report...",
	JobCompleted:  "Your report is ready!",
	JobFailed:     "Generation failed",
}

// Progress returns the fixed progress fraction shown for a status.
func (s JobStatus) Progress() float64 {
	return jobProgress[s]
}

// Message returns the human-readable message shown for a status.
func (s JobStatus) Message() string {
	return jobMessages[s]
}

// Job is one query-against-skill processing request and its accumulated state.
type Job struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	SkillID     string    `json:"skill_id"`
	Status      JobStatus `json:"status"`
	Reasoning   *string   `json:"reasoning,omitempty"`
	HTMLReport  *string   `json:"html_report,omitempty"`
	ReportTitle *string   `json:"report_title,omitempty"`
	Error       *string   `json:"error,omitempty"`
	UserID      *string   `json:"user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobUpdate is a partial update of a job row. Nil fields are left untouched.
type JobUpdate struct {
	Status      *JobStatus
	Reasoning   *string
	HTMLReport  *string
	ReportTitle *string
	Error       *string
}

// Empty reports whether the update sets no fields.
func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.Reasoning == nil && u.HTMLReport == nil &&
		u.ReportTitle == nil && u.Error == nil
}

// Apply copies the set fields of u onto j.
func (u JobUpdate) Apply(j *Job) {
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Reasoning != nil {
		j.Reasoning = Ptr(*u.Reasoning)
	}
	if u.HTMLReport != nil {
		j.HTMLReport = Ptr(*u.HTMLReport)
	}
	if u.ReportTitle != nil {
		j.ReportTitle = Ptr(*u.ReportTitle)
	}
	if u.Error != nil {
		j.Error = Ptr(*u.Error)
	}
}

// PublishedPage is a frozen, shareable copy of a completed job's report.
type PublishedPage struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	UserID    *string   `json:"user_id,omitempty"`
	Title     string    `json:"title"`
	HTML      string    `json:"html"`
	SkillID   string    `json:"skill_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}
