// Package client provides an HTTP client for the TellMeNow server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/tellmenow/internal/metrics"
	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/service"
)

const (
	userHeader      = "X-User-ID"
	requestIDHeader = "X-Request-ID"
)

// Client talks to the TellMeNow HTTP API.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	// streamClient has no overall timeout; streams end with the job.
	streamClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses TELLMENOW_SERVER_URL or defaults to localhost:8787.
// The caller identity comes from TELLMENOW_USER_ID when set.
// Request timeout can be configured via TELLMENOW_CLIENT_TIMEOUT (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("TELLMENOW_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8787"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("TELLMENOW_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		userID:       os.Getenv("TELLMENOW_USER_ID"),
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

// WithUser returns a copy of the client that identifies as userID.
func (c *Client) WithUser(userID string) *Client {
	cp := *c
	cp.userID = userID
	return &cp
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Detail)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set(userHeader, c.userID)
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	return req, nil
}

// do sends a JSON request and decodes the JSON answer into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, data)
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func apiError(status int, body []byte) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Detail == "" {
		payload.Detail = strings.TrimSpace(string(body))
	}
	return &APIError{StatusCode: status, Detail: payload.Detail}
}

// =============================================================================
// JOBS
// =============================================================================

// Submit creates a job and returns its id.
func (c *Client) Submit(ctx context.Context, query, skillID string) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/query", map[string]string{
		"query":    query,
		"skill_id": skillID,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.JobID, nil
}

// GetJob returns the polling view of a job.
func (c *Client) GetJob(ctx context.Context, id string) (*service.JobSnapshot, error) {
	var snap service.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// HistoryItem is one entry of a user's job history.
type HistoryItem struct {
	ID          string           `json:"id"`
	Query       string           `json:"query"`
	SkillID     string           `json:"skill_id"`
	Status      models.JobStatus `json:"status"`
	ReportTitle *string          `json:"report_title"`
	Error       *string          `json:"error"`
	CreatedAt   time.Time        `json:"created_at"`
}

// History lists the caller's jobs, newest first. Zero limit uses the server default.
func (c *Client) History(ctx context.Context, limit, offset int) ([]HistoryItem, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Jobs []HistoryItem `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Published is the answer to a publish request.
type Published struct {
	ID  string `json:"published_id"`
	URL string `json:"url"`
}

// Publish freezes a completed job's report into a shareable page.
func (c *Client) Publish(ctx context.Context, jobID string) (*Published, error) {
	var out Published
	if err := c.do(ctx, http.MethodPost, "/api/publish", map[string]string{"job_id": jobID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// =============================================================================
// SKILLS
// =============================================================================

// ListSkills returns the skills visible to the caller.
func (c *Client) ListSkills(ctx context.Context) ([]models.Skill, error) {
	var out []models.Skill
	if err := c.do(ctx, http.MethodGet, "/api/skills", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSkill registers a skill to be generated and returns its id.
func (c *Client) CreateSkill(ctx context.Context, in service.CreateSkillInput) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/skills", in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// SkillStatus is the polling view of a generated skill.
type SkillStatus struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Status models.SkillStatus `json:"status"`
	Error  *string            `json:"error"`
}

// GetSkillStatus returns the generation status of a skill.
func (c *Client) GetSkillStatus(ctx context.Context, id string) (*SkillStatus, error) {
	var out SkillStatus
	if err := c.do(ctx, http.MethodGet, "/api/skills/"+url.PathEscape(id)+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks the server and returns its version.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// GetStats returns the server's runtime statistics.
func (c *Client) GetStats(ctx context.Context) (*metrics.Snapshot, error) {
	var out metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
