package service

import "github.com/raphaelgruber/tellmenow/internal/models"

// Event names on the observe stream.
const (
	EventStatus   = "status"
	EventStepData = "step_data"
	EventResult   = "result"
	EventTimeout  = "timeout"
)

// Pipeline steps carried by step_data events.
const (
	StepReasoning  = "reasoning"
	StepHTMLReport = "html_report"
)

// Event is one typed message pushed to an observer.
type Event struct {
	Name string
	Data any
}

// Emit delivers an event to one observer. Delivery is best-effort: an
// implementation drops the event when its transport fails.
type Emit func(Event)

// StatusData is the payload of a job status event.
type StatusData struct {
	Type     string           `json:"type"`
	Status   models.JobStatus `json:"status"`
	Progress float64          `json:"progress"`
	Message  string           `json:"message"`
}

// StepData is the payload of a step_data event.
type StepData struct {
	Type string `json:"type"`
	Step string `json:"step"`
	Data any    `json:"data"`
}

// ReasoningPreview is the step_data body for the reasoning step.
type ReasoningPreview struct {
	Preview string `json:"preview"`
}

// ReportData is the step_data body for the html_report step.
type ReportData struct {
	HTML  string  `json:"html"`
	Title *string `json:"title"`
}

// ResultData is the payload of the final result event.
type ResultData struct {
	HTMLReport  *string `json:"html_report"`
	ReportTitle *string `json:"report_title"`
	Reasoning   *string `json:"reasoning"`
}

// SkillStatusData is the payload of a skill generation status event.
type SkillStatusData struct {
	Status models.SkillStatus `json:"status"`
	Error  *string            `json:"error"`
}

func statusEvent(status models.JobStatus) Event {
	return statusEventWithMessage(status, status.Message())
}

func statusEventWithMessage(status models.JobStatus, message string) Event {
	return Event{Name: EventStatus, Data: StatusData{
		Type:     EventStatus,
		Status:   status,
		Progress: status.Progress(),
		Message:  message,
	}}
}

func failedEvent(message string) Event {
	return Event{Name: EventStatus, Data: StatusData{
		Type:    EventStatus,
		Status:  models.JobFailed,
		Message: message,
	}}
}

func reasoningEvent(reasoning string) Event {
	return Event{Name: EventStepData, Data: StepData{
		Type: EventStepData,
		Step: StepReasoning,
		Data: ReasoningPreview{Preview: reasoning},
	}}
}

func reportEvent(html string, title *string) Event {
	return Event{Name: EventStepData, Data: StepData{
		Type: EventStepData,
		Step: StepHTMLReport,
		Data: ReportData{HTML: html, Title: title},
	}}
}

func resultEvent(job *models.Job) Event {
	return Event{Name: EventResult, Data: ResultData{
		HTMLReport:  job.HTMLReport,
		ReportTitle: job.ReportTitle,
		Reasoning:   job.Reasoning,
	}}
}

func timeoutEvent() Event {
	return Event{Name: EventTimeout, Data: struct{}{}}
}

// emitJobSnapshot sends the current persisted state of a job: its status,
// any step output already stored, and the result once completed.
func emitJobSnapshot(job *models.Job, emit Emit) {
	emit(statusEvent(job.Status))
	if job.Reasoning != nil && *job.Reasoning != "" {
		emit(reasoningEvent(*job.Reasoning))
	}
	if job.HTMLReport != nil && *job.HTMLReport != "" {
		emit(reportEvent(*job.HTMLReport, job.ReportTitle))
	}
	if job.Status == models.JobCompleted {
		emit(resultEvent(job))
	}
}

func emitSkillSnapshot(skill *models.GeneratedSkill, emit Emit) {
	emit(Event{Name: EventStatus, Data: SkillStatusData{Status: skill.Status, Error: skill.Error}})
}
