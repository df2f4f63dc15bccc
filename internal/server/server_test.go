package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/tellmenow/internal/llm"
	"github.com/raphaelgruber/tellmenow/internal/metrics"
	"github.com/raphaelgruber/tellmenow/internal/report"
	"github.com/raphaelgruber/tellmenow/internal/service"
	"github.com/raphaelgruber/tellmenow/internal/skillgen"
	"github.com/raphaelgruber/tellmenow/internal/skills"
	"github.com/raphaelgruber/tellmenow/internal/store"
)

type cannedLLM struct{}

func (cannedLLM) Chat(_ context.Context, system, user string, _ llm.ChatOptions) (string, error) {
	switch {
	case system == report.SystemPrompt:
		return "<h1>Example Report</h1><p>body</p>", nil
	case strings.HasPrefix(user, "# Skill to Generate"):
		return "<skill-content>generated</skill-content><output-format>fmt</output-format>", nil
	}
	return "reasoning text", nil
}

func (c cannedLLM) ChatWithTools(ctx context.Context, system, user string, opts llm.ChatOptions, _ []llm.Tool, _ int, _ func(string)) (string, error) {
	return c.Chat(ctx, system, user, opts)
}

// verboseLLM answers reasoning prompts with a fixed, usually large, text.
type verboseLLM struct {
	cannedLLM
	reasoning string
}

func (v verboseLLM) Chat(ctx context.Context, system, user string, opts llm.ChatOptions) (string, error) {
	if system == report.SystemPrompt || strings.HasPrefix(user, "# Skill to Generate") {
		return v.cannedLLM.Chat(ctx, system, user, opts)
	}
	return v.reasoning, nil
}

func (v verboseLLM) ChatWithTools(ctx context.Context, system, user string, opts llm.ChatOptions, _ []llm.Tool, _ int, _ func(string)) (string, error) {
	return v.Chat(ctx, system, user, opts)
}

// testLogger discards output so test runs stay quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWithLLM(t, cannedLLM{})
}

func newTestServerWithLLM(t *testing.T, model service.LLM) *httptest.Server {
	t.Helper()
	mem := store.NewMemory()
	mc := metrics.NewCollector()
	registry, err := skills.NewRegistry(mem)
	require.NoError(t, err)

	coord := service.NewCoordinator(service.CoordinatorConfig{PollInterval: 5 * time.Millisecond, MaxPolls: 100}, mc)
	pipeline := service.NewPipeline(mem, registry, nil, model, 25, mc)

	srv := New(Deps{
		Jobs:    service.NewJobService(mem, coord, pipeline),
		Skills:  service.NewSkillService(mem, coord, skillgen.New(model), mc),
		Catalog: registry,
		Metrics: mc,
	}, "http://localhost:3000", testLogger())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		coord.Wait()
	})
	return ts
}

func do(t *testing.T, method, url, user, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func detail(t *testing.T, body []byte) string {
	t.Helper()
	var out struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Detail
}

type frame struct {
	name string
	data string
}

func readSSE(t *testing.T, r io.Reader) []frame {
	t.Helper()
	var frames []frame
	var cur frame
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			frames = append(frames, cur)
			cur = frame{}
		}
	}
	require.NoError(t, scanner.Err())
	return frames
}

func submit(t *testing.T, ts *httptest.Server, user string) string {
	t.Helper()
	resp, body := do(t, http.MethodPost, ts.URL+"/api/query", user,
		`{"query":"Estimate pages for example.com","skill_id":"site-overviewer"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.JobID, 12)
	return out.JobID
}

func TestSubmitValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"short query", `{"query":"ab","skill_id":"x"}`, "Query must be at least 3 characters"},
		{"missing skill", `{"query":"long enough"}`, "skill_id is required"},
		{"bad json", `{`, "Invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, ts.URL+"/api/query", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.detail, detail(t, body))
		})
	}
}

func TestJobStreamAndSnapshot(t *testing.T) {
	ts := newTestServer(t)
	id := submit(t, ts, "")

	resp, body := do(t, http.MethodGet, ts.URL+"/api/jobs/"+id, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var queued service.JobSnapshot
	require.NoError(t, json.Unmarshal(body, &queued))
	assert.Equal(t, "queued", string(queued.Status))
	assert.Nil(t, queued.Result)

	streamResp, err := http.Get(ts.URL + "/api/jobs/" + id + "/stream")
	require.NoError(t, err)
	defer streamResp.Body.Close()
	assert.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	frames := readSSE(t, streamResp.Body)
	var names []string
	for _, f := range frames {
		names = append(names, f.name)
	}
	assert.Equal(t, []string{"status", "status", "step_data", "status", "step_data", "status", "result"}, names)
	assert.JSONEq(t, `{"type":"status","status":"queued","progress":0,"message":"Waiting in queue..."}`, frames[0].data)

	var result service.ResultData
	require.NoError(t, json.Unmarshal([]byte(frames[len(frames)-1].data), &result))
	assert.Equal(t, "Example Report", *result.ReportTitle)
	assert.Equal(t, "reasoning text", *result.Reasoning)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/jobs/"+id, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var done service.JobSnapshot
	require.NoError(t, json.Unmarshal(body, &done))
	assert.Equal(t, "completed", string(done.Status))
	assert.Equal(t, 1.0, done.Progress.Progress)
	assert.Equal(t, "Your report is ready!", done.Progress.Message)
	require.NotNil(t, done.Result)
	assert.Contains(t, *done.Result.HTMLReport, "<h1>Example Report</h1>")
}

func TestJobNotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/stream", "/api/jobs/nope/ws"} {
		resp, body := do(t, http.MethodGet, ts.URL+path, "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "Job not found", detail(t, body), path)
	}
}

func TestJobWebsocket(t *testing.T) {
	ts := newTestServer(t)
	id := submit(t, ts, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []string
	for {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		events = append(events, msg.Event)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, "status", events[0])
	assert.Equal(t, "result", events[len(events)-1])
}

func TestStalledStreamClientDoesNotBlockPipeline(t *testing.T) {
	ts := newTestServerWithLLM(t, verboseLLM{reasoning: strings.Repeat("x", 16<<20)})
	id := submit(t, ts, "")

	// A connected client that never reads lets the socket buffers fill up.
	conn, err := net.Dial("tcp", ts.Listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = fmt.Fprintf(conn, "GET /api/jobs/%s/stream HTTP/1.1\r\nHost: localhost\r\n\r\n", id)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/jobs/" + id)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var snap struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return false
		}
		return snap.Status == "completed"
	}, 5*time.Second, 50*time.Millisecond, "pipeline must finish while its owner stalls")
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)
	id := submit(t, ts, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/jobs/" + id + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHistoryAndPublish(t *testing.T) {
	ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/api/history", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Authentication required", detail(t, body))

	id := submit(t, ts, "alice")

	resp, body = do(t, http.MethodPost, ts.URL+"/api/publish", "alice", `{"job_id":"`+id+`"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Job has no HTML report to publish", detail(t, body))

	streamResp, err := http.Get(ts.URL + "/api/jobs/" + id + "/stream")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, streamResp.Body)
	streamResp.Body.Close()

	resp, body = do(t, http.MethodGet, ts.URL+"/api/history?limit=500", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history struct {
		Jobs []historyItem `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history.Jobs, 1)
	assert.Equal(t, id, history.Jobs[0].ID)
	assert.Equal(t, "Example Report", *history.Jobs[0].ReportTitle)

	resp, body = do(t, http.MethodPost, ts.URL+"/api/publish", "alice", `{"job_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var published struct {
		PublishedID string `json:"published_id"`
		URL         string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(body, &published))
	assert.Equal(t, "/p/"+published.PublishedID, published.URL)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/p/"+published.PublishedID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page pageResponse
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, "Example Report", page.Title)
	assert.Equal(t, "site-overviewer", page.SkillID)

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/p/missing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSkillEndpoints(t *testing.T) {
	ts := newTestServer(t)
	create := `{"name":"Recipe Finder","description":"finds recipes","input_spec":"ingredients","output_spec":"recipes"}`

	resp, _ := do(t, http.MethodPost, ts.URL+"/api/skills", "", create)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := do(t, http.MethodPost, ts.URL+"/api/skills", "alice", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, detail(t, body), "is required")

	resp, body = do(t, http.MethodPost, ts.URL+"/api/skills", "alice", create)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body = do(t, http.MethodGet, ts.URL+"/api/skills/"+created.ID+"/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"`+created.ID+`","name":"Recipe Finder","status":"pending","error":null}`, string(body))

	streamResp, err := http.Get(ts.URL + "/api/skills/" + created.ID + "/generate")
	require.NoError(t, err)
	frames := readSSE(t, streamResp.Body)
	streamResp.Body.Close()
	require.Len(t, frames, 2)
	assert.JSONEq(t, `{"status":"generating","error":null}`, frames[0].data)
	assert.JSONEq(t, `{"status":"ready","error":null}`, frames[1].data)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/skills", "alice", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "site-overviewer", list[0]["id"])
	assert.NotContains(t, list[0], "status")
	assert.Equal(t, "ready", list[1]["status"])

	resp, body = do(t, http.MethodGet, ts.URL+"/api/skills", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 1, "anonymous callers only see built-ins")

	resp, _ = do(t, http.MethodGet, ts.URL+"/api/skills/missing/generate", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	ts := newTestServer(t)
	id := submit(t, ts, "")
	streamResp, err := http.Get(ts.URL + "/api/jobs/" + id + "/stream")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, streamResp.Body)
	streamResp.Body.Close()

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","version":"`+Version+`"}`, string(body))

	resp, body = do(t, http.MethodGet, ts.URL+"/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `tellmenow_coordinator_events_total{event="claim_won"} 1`)

	resp, body = do(t, http.MethodGet, ts.URL+"/api/stats", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats metrics.Snapshot
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(1), stats.Counters[metrics.CounterPipelineSuccess])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := do(t, http.MethodOptions, ts.URL+"/api/query", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), userHeader)
}
