package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/service"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

const maxBodyBytes = 1 << 20

func userID(r *http.Request) *string {
	if id := strings.TrimSpace(r.Header.Get(userHeader)); id != "" {
		return &id
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps service and store errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeDetail(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": "))
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, notFound)
	default:
		slog.Error("request error", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

type submitRequest struct {
	Query   string `json:"query"`
	SkillID string `json:"skill_id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := s.deps.Jobs.Submit(r.Context(), req.Query, req.SkillID, userID(r))
	if err != nil {
		writeError(w, err, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Jobs.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, "Job not found", s.deps.Jobs.Observe)
}

func (s *Server) handleSkillGenerate(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, "Skill not found", s.deps.Skills.Observe)
}

type observeFunc func(ctx context.Context, id string, emit service.Emit) error

func (s *Server) stream(w http.ResponseWriter, r *http.Request, notFound string, observe observeFunc) {
	sse := newSSEWriter(w)
	err := observe(r.Context(), r.PathValue("id"), sse.Send)
	if err != nil && !sse.Started() {
		writeError(w, err, notFound)
		return
	}
	sse.Start()
}

func (s *Server) handleJobWebsocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.deps.Jobs.Get(r.Context(), id); err != nil {
		writeError(w, err, "Job not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Debug("websocket upgrade failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reading detects the peer going away; inbound messages are ignored.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	ws := &wsWriter{conn: conn}
	if err := s.deps.Jobs.Observe(ctx, id, ws.Send); err != nil {
		s.logger.Debug("websocket observe ended", "job_id", id, "error", err)
	}
	ws.Close()
}

type historyItem struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	SkillID     string           `json:"skill_id"`
	Status      models.JobStatus `json:"status"`
	ReportTitle *string          `json:"report_title"`
	Error       *string          `json:"error"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	jobs, err := s.deps.Jobs.History(r.Context(), *user, limit, offset)
	if err != nil {
		writeError(w, err, "")
		return
	}

	items := make([]historyItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, historyItem{
			ID:          j.ID,
			Query:       j.Query,
			SkillID:     j.SkillID,
			Status:      j.Status,
			ReportTitle: j.ReportTitle,
			Error:       j.Error,
			CreatedAt:   j.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": items})
}

type publishRequest struct {
	JobID string `json:"job_id"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	page, err := s.deps.Jobs.Publish(r.Context(), req.JobID, userID(r))
	if err != nil {
		writeError(w, err, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"published_id": page.ID,
		"url":          "/p/" + page.ID,
	})
}

type pageResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	HTML      string    `json:"html"`
	SkillID   string    `json:"skill_id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Jobs.Page(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Page not found")
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		ID:        page.ID,
		Title:     page.Title,
		HTML:      page.HTML,
		SkillID:   page.SkillID,
		Query:     page.Query,
		CreatedAt: page.CreatedAt,
	})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Catalog.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var in service.CreateSkillInput
	if !decodeJSON(w, r, &in) {
		return
	}
	id, err := s.deps.Skills.Create(r.Context(), *user, in)
	if err != nil {
		writeError(w, err, "Skill not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

type skillStatusResponse struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Status models.SkillStatus `json:"status"`
	Error  *string            `json:"error"`
}

func (s *Server) handleSkillStatus(w http.ResponseWriter, r *http.Request) {
	skill, err := s.deps.Skills.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err, "Skill not found")
		return
	}
	writeJSON(w, http.StatusOK, skillStatusResponse{
		ID:     skill.ID,
		Name:   skill.Name,
		Status: skill.Status,
		Error:  skill.Error,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Metrics.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}
