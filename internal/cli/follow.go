package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/raphaelgruber/tellmenow/internal/client"
	"github.com/raphaelgruber/tellmenow/internal/models"
	"github.com/raphaelgruber/tellmenow/internal/service"
)

var (
	errJobFailed    = errors.New("job failed")
	errWatchTimeout = errors.New("timed out waiting for the job; it may still be running")
	errStreamEnded  = errors.New("stream ended before the job finished")
)

// jobState accumulates what a job stream has reported so far.
type jobState struct {
	status    service.StatusData
	reasoning string
	result    *service.ResultData
	timedOut  bool
}

func (s *jobState) apply(e client.Event) error {
	switch e.Name {
	case service.EventStatus:
		return e.Decode(&s.status)
	case service.EventStepData:
		var step struct {
			Step string          `json:"step"`
			Data json.RawMessage `json:"data"`
		}
		if err := e.Decode(&step); err != nil {
			return err
		}
		if step.Step == service.StepReasoning {
			var preview service.ReasoningPreview
			if err := json.Unmarshal(step.Data, &preview); err != nil {
				return fmt.Errorf("decode reasoning: %w", err)
			}
			s.reasoning = preview.Preview
		}
	case service.EventResult:
		var result service.ResultData
		if err := e.Decode(&result); err != nil {
			return err
		}
		s.result = &result
	case service.EventTimeout:
		s.timedOut = true
	}
	return nil
}

func (s *jobState) finished() bool {
	return s.result != nil || s.timedOut || s.status.Status == models.JobFailed
}

// outcome reports how the stream ended once no more events arrive.
func (s *jobState) outcome() error {
	switch {
	case s.status.Status == models.JobFailed:
		return fmt.Errorf("%w: %s", errJobFailed, s.status.Message)
	case s.result != nil:
		return nil
	case s.timedOut:
		return errWatchTimeout
	default:
		return errStreamEnded
	}
}

// followFunc is StreamJob or WatchJob.
type followFunc func(ctx context.Context, id string, onEvent func(client.Event) error) error

func follower(c *client.Client, useWS bool) followFunc {
	if useWS {
		return c.WatchJob
	}
	return c.StreamJob
}

// followPlain prints one line per status change, for non-interactive output.
func followPlain(ctx context.Context, w io.Writer, follow followFunc, id string) (*jobState, error) {
	state := &jobState{}
	err := follow(ctx, id, func(e client.Event) error {
		prev := state.status
		if err := state.apply(e); err != nil {
			return err
		}
		if e.Name == service.EventStatus && state.status != prev {
			fmt.Fprintf(w, "[%s] %3.0f%% %s\n", state.status.Status, state.status.Progress*100, state.status.Message)
		}
		return nil
	})
	if err != nil {
		return state, err
	}
	return state, state.outcome()
}
