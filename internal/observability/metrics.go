package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting runtime metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Event store commit latency and optimistic-concurrency conflicts
//   - Listener poll lag and wake-channel drops
//   - LLM request performance, retries, and token usage
//   - Tool execution patterns and latencies
//   - Error rates categorized by type and component
//   - Active aggregate counts for capacity planning
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.CommitDuration.WithLabelValues("agent").Observe(time.Since(start).Seconds())
type Metrics struct {
	// CommitCounter counts event store commits by aggregate type and status.
	// Labels: aggregate_type, status (success|conflict|error)
	CommitCounter *prometheus.CounterVec

	// CommitDuration measures event store commit latency in seconds.
	// Labels: aggregate_type
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	CommitDuration *prometheus.HistogramVec

	// ListenerLag measures the gap between an aggregate's current sequence
	// and the listener's last-processed offset, in event count.
	// Labels: aggregate_type
	ListenerLag *prometheus.GaugeVec

	// WakeDropped counts wake notifications dropped because a subscriber's
	// buffered channel was full.
	// Labels: aggregate_type
	WakeDropped *prometheus.CounterVec

	// ListenerCallbackDuration measures callback fan-out latency per
	// envelope processed by the listener.
	// Labels: aggregate_type
	ListenerCallbackDuration *prometheus.HistogramVec

	// LLMRequestDuration measures LLM API call latency in seconds.
	// Labels: provider (anthropic|openai|bedrock), model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM requests by provider and model.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRetryAttempts counts retry attempts made by the LLM handler's
	// backoff policy.
	// Labels: provider, outcome (success|exhausted)
	LLMRetryAttempts *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// LLMCostUSD tracks estimated cost in USD.
	// Labels: provider, model
	LLMCostUSD *prometheus.CounterVec

	// ContextWindowUsed tracks context window utilization.
	// Labels: provider, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000
	ContextWindowUsed *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// SandboxActive is a gauge tracking currently checked-out sandboxes.
	// Labels: template
	SandboxActive *prometheus.GaugeVec

	// ErrorCounter tracks errors by type and component.
	// Labels: component (aggregate|listener|llm|tool|sandbox|finish), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveAggregates is a gauge tracking currently loaded/running
	// aggregates.
	// Labels: aggregate_type
	ActiveAggregates *prometheus.GaugeVec

	// RunDuration measures an agent run's lifetime, from first command to
	// terminal event, in seconds.
	// Labels: aggregate_type
	// Buckets: 1, 5, 15, 30, 60, 180, 600, 1800
	RunDuration *prometheus.HistogramVec

	// RunAttempts counts run completions by terminal outcome.
	// Labels: aggregate_type, status (finished|shutdown|error)
	RunAttempts *prometheus.CounterVec

	// HTTPRequestDuration measures the control API's request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts control API requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		CommitCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_commits_total",
				Help: "Total number of event store commits by aggregate type and status",
			},
			[]string{"aggregate_type", "status"},
		),

		CommitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_commit_duration_seconds",
				Help:    "Duration of event store commits in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"aggregate_type"},
		),

		ListenerLag: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentrt_listener_lag_events",
				Help: "Gap between an aggregate's current sequence and the listener's processed offset",
			},
			[]string{"aggregate_type"},
		),

		WakeDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_wake_dropped_total",
				Help: "Total number of wake notifications dropped due to a full subscriber channel",
			},
			[]string{"aggregate_type"},
		),

		ListenerCallbackDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_listener_callback_duration_seconds",
				Help:    "Duration of listener callback fan-out per envelope",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"aggregate_type"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMRetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_llm_retry_attempts_total",
				Help: "Total number of LLM handler retry attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		LLMCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_llm_cost_usd_total",
				Help: "Estimated LLM API cost in USD",
			},
			[]string{"provider", "model"},
		),

		ContextWindowUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_context_window_tokens",
				Help:    "Context window tokens used",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000},
			},
			[]string{"provider", "model"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		SandboxActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentrt_sandbox_active",
				Help: "Current number of checked-out sandboxes by template",
			},
			[]string{"template"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveAggregates: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentrt_active_aggregates",
				Help: "Current number of actively-running aggregates by type",
			},
			[]string{"aggregate_type"},
		),

		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_run_duration_seconds",
				Help:    "Duration of an agent run from first command to terminal event",
				Buckets: []float64{1, 5, 15, 30, 60, 180, 600, 1800},
			},
			[]string{"aggregate_type"},
		),

		RunAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_run_completions_total",
				Help: "Total number of run completions by aggregate type and terminal status",
			},
			[]string{"aggregate_type", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrt_http_request_duration_seconds",
				Help:    "Duration of control API requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrt_http_requests_total",
				Help: "Total number of control API requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RecordCommit records metrics for an event store commit.
//
// Example:
//
//	start := time.Now()
//	// ... commit events ...
//	metrics.RecordCommit("agent", "success", time.Since(start).Seconds())
func (m *Metrics) RecordCommit(aggregateType, status string, durationSeconds float64) {
	m.CommitCounter.WithLabelValues(aggregateType, status).Inc()
	m.CommitDuration.WithLabelValues(aggregateType).Observe(durationSeconds)
}

// SetListenerLag records the current poll lag for an aggregate type.
func (m *Metrics) SetListenerLag(aggregateType string, lag int64) {
	m.ListenerLag.WithLabelValues(aggregateType).Set(float64(lag))
}

// RecordWakeDropped records a wake notification dropped by a full
// subscriber channel.
func (m *Metrics) RecordWakeDropped(aggregateType string) {
	m.WakeDropped.WithLabelValues(aggregateType).Inc()
}

// RecordListenerCallback records the duration of a listener's callback
// fan-out for one envelope.
func (m *Metrics) RecordListenerCallback(aggregateType string, durationSeconds float64) {
	m.ListenerCallbackDuration.WithLabelValues(aggregateType).Observe(durationSeconds)
}

// RecordLLMRequest records metrics for an LLM API request.
//
// Example:
//
//	start := time.Now()
//	// ... make LLM request ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordLLMRetry records a retry attempt made by the LLM handler's backoff
// policy, with outcome "success" or "exhausted".
func (m *Metrics) RecordLLMRetry(provider, outcome string) {
	m.LLMRetryAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordLLMCost records estimated API cost.
func (m *Metrics) RecordLLMCost(provider, model string, costUSD float64) {
	m.LLMCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// RecordContextWindow records context window utilization.
func (m *Metrics) RecordContextWindow(provider, model string, tokensUsed int) {
	m.ContextWindowUsed.WithLabelValues(provider, model).Observe(float64(tokensUsed))
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("write_file", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// SandboxCheckedOut increments the active sandbox gauge for a template.
func (m *Metrics) SandboxCheckedOut(template string) {
	m.SandboxActive.WithLabelValues(template).Inc()
}

// SandboxReleased decrements the active sandbox gauge for a template.
func (m *Metrics) SandboxReleased(template string) {
	m.SandboxActive.WithLabelValues(template).Dec()
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("llm", "retry_exhausted")
//	metrics.RecordError("sandbox", "checkout_timeout")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// AggregateLoaded increments the active aggregates gauge.
func (m *Metrics) AggregateLoaded(aggregateType string) {
	m.ActiveAggregates.WithLabelValues(aggregateType).Inc()
}

// AggregateFinished decrements the active aggregates gauge and records the
// run's terminal outcome and duration.
func (m *Metrics) AggregateFinished(aggregateType, status string, durationSeconds float64) {
	m.ActiveAggregates.WithLabelValues(aggregateType).Dec()
	m.RunDuration.WithLabelValues(aggregateType).Observe(durationSeconds)
	m.RunAttempts.WithLabelValues(aggregateType, status).Inc()
}

// RecordHTTPRequest records metrics for a control API request.
//
// Example:
//
//	start := time.Now()
//	// ... handle HTTP request ...
//	metrics.RecordHTTPRequest("GET", "/v1/agents", "200", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
