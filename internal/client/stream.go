package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/service"
)

// Event is one message received from a job or skill stream.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s event: %w", e.Name, err)
	}
	return nil
}

// Final reports whether no further events follow e on a job stream.
// A completed status is still followed by its result.
func (e Event) Final() bool {
	switch e.Name {
	case service.EventResult, service.EventTimeout:
		return true
	case service.EventStatus:
		var s service.StatusData
		return json.Unmarshal(e.Data, &s) == nil && s.Status == models.JobFailed
	}
	return false
}

// StreamJob follows a job over server-sent events, calling onEvent for each
// event until the server closes the stream, onEvent returns an error, or ctx
// is cancelled. Opening the stream of a queued job starts it.
func (c *Client) StreamJob(ctx context.Context, id string, onEvent func(Event) error) error {
	return c.stream(ctx, "/api/jobs/"+url.PathEscape(id)+"/stream", onEvent)
}

// GenerateSkill starts or follows generation of a skill over server-sent events.
func (c *Client) GenerateSkill(ctx context.Context, id string, onEvent func(Event) error) error {
	return c.stream(ctx, "/api/skills/"+url.PathEscape(id)+"/generate", onEvent)
}

func (c *Client) stream(ctx context.Context, path string, onEvent func(Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return apiError(resp.StatusCode, body)
	}

	scanner := newSSEScanner(resp.Body)
	for scanner.Next() {
		ev := scanner.Event()
		if err := onEvent(Event{Name: ev.Type, Data: json.RawMessage(ev.Data)}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// wsFrame mirrors the server's websocket message envelope.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WatchJob follows a job over a websocket. It behaves like StreamJob.
func (c *Client) WatchJob(ctx context.Context, id string, onEvent func(Event) error) error {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/api/jobs/" + url.PathEscape(id) + "/ws")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	header := http.Header{}
	if c.userID != "" {
		header.Set(userHeader, c.userID)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			resp.Body.Close()
			return apiError(resp.StatusCode, body)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onEvent(Event{Name: frame.Event, Data: frame.Data}); err != nil {
			return err
		}
	}
}
