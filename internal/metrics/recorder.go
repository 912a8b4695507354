package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnknown = "unknown_tool"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Recorder holds the orchestration collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	turns         *prometheus.CounterVec
	toolExecs     *prometheus.CounterVec
	toolRounds    prometheus.Histogram
	endpointCalls *prometheus.CounterVec
	latency       prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolchat_turns_total",
			Help: "Total number of Respond calls by outcome",
		}, []string{"outcome"}),
		toolExecs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolchat_tool_executions_total",
			Help: "Total number of tool calls answered",
		}, []string{"tool", "outcome"}),
		toolRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolchat_tool_rounds",
			Help:    "Tool rounds executed per turn",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		}),
		endpointCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolchat_endpoint_requests_total",
			Help: "Total number of model endpoint requests",
		}, []string{"status"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toolchat_endpoint_latency_seconds",
			Help:    "Model endpoint latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}),
	}
	if reg != nil {
		reg.MustRegister(r.turns, r.toolExecs, r.toolRounds, r.endpointCalls, r.latency)
	}
	return r
}

// RecordTurn records a finished Respond call.
func (r *Recorder) RecordTurn(success bool, rounds int) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	r.turns.WithLabelValues(outcome).Inc()
	r.toolRounds.Observe(float64(rounds))
}

// RecordTool records one answered tool call.
func (r *Recorder) RecordTool(tool, outcome string) {
	if r == nil {
		return
	}
	r.toolExecs.WithLabelValues(tool, outcome).Inc()
}

// RecordEndpoint records one endpoint request and its latency.
func (r *Recorder) RecordEndpoint(err error, d time.Duration) {
	if r == nil {
		return
	}
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeError
	}
	r.endpointCalls.WithLabelValues(status).Inc()
	r.latency.Observe(d.Seconds())
}
