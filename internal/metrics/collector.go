// Package metrics provides in-memory runtime statistics collection, mirrored
// into a Prometheus registry for scraping.
package metrics

import (
	"maps"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64 `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64 `json:"total_output_tokens,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	LLMChat       *OperationSnapshot `json:"llm_chat,omitempty"`
	ToolCall      *OperationSnapshot `json:"tool_call,omitempty"`
	JobPipeline   *OperationSnapshot `json:"job_pipeline,omitempty"`
	SkillPipeline *OperationSnapshot `json:"skill_pipeline,omitempty"`
	Counters      map[string]int64   `json:"counters"`
}

// Operation names for the collector.
const (
	OpLLMChat       = "llm_chat"
	OpToolCall      = "tool_call"
	OpJobPipeline   = "job_pipeline"
	OpSkillPipeline = "skill_pipeline"
)

// Counter names for coordinator events.
const (
	CounterClaimWon        = "claim_won"
	CounterClaimLost       = "claim_lost"
	CounterStaleReset      = "stale_reset"
	CounterWatchTimeout    = "watch_timeout"
	CounterPipelineSuccess = "pipeline_success"
	CounterPipelineFailure = "pipeline_failure"
	CounterLLMRetry        = "llm_retry"
	CounterEventDropped    = "event_dropped"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe to call on a nil *Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	counters  map[string]int64

	registry   *prometheus.Registry
	opDuration *prometheus.HistogramVec
	events     *prometheus.CounterVec
	tokens     *prometheus.CounterVec
}

// NewCollector creates a new metrics collector with its own Prometheus registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	opDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tellmenow",
		Name:      "operation_duration_seconds",
		Help:      "Duration of LLM calls, tool calls and pipeline runs.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"op"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tellmenow",
		Name:      "coordinator_events_total",
		Help:      "Claim, recovery and pipeline outcome events.",
	}, []string{"event"})
	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tellmenow",
		Name:      "llm_tokens_total",
		Help:      "Tokens reported by the LLM provider.",
	}, []string{"direction"})

	reg.MustRegister(opDuration, events, tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		startTime:  time.Now(),
		ops:        make(map[string]*OperationMetrics),
		counters:   make(map[string]int64),
		registry:   reg,
		opDuration: opDuration,
		events:     events,
		tokens:     tokens,
	}
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(duration time.Duration) {
	m.Count++
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.getOrCreate(op).observe(duration)
	c.mu.Unlock()

	c.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	m := c.getOrCreate(op)
	m.observe(duration)
	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
	c.mu.Unlock()

	c.opDuration.WithLabelValues(op).Observe(duration.Seconds())
	c.tokens.WithLabelValues("input").Add(float64(inputTokens))
	c.tokens.WithLabelValues("output").Add(float64(outputTokens))
}

// Inc increments a named event counter.
func (c *Collector) Inc(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[name]++
	c.mu.Unlock()

	c.events.WithLabelValues(name).Inc()
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		LLMChat:       snapshotOp(c.ops[OpLLMChat], true),
		ToolCall:      snapshotOp(c.ops[OpToolCall], false),
		JobPipeline:   snapshotOp(c.ops[OpJobPipeline], false),
		SkillPipeline: snapshotOp(c.ops[OpSkillPipeline], false),
		Counters:      maps.Clone(c.counters),
	}
}
