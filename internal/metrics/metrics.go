package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command metrics
var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clautify_commands_total",
			Help: "Total number of executed commands",
		},
		[]string{"command", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clautify_command_duration_seconds",
			Help:    "Command execution duration in seconds, including resolution and retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"command"},
	)
)

// Playback channel metrics
var (
	ChannelBuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clautify_channel_builds_total",
			Help: "Total number of playback channels constructed",
		},
	)

	ChannelRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clautify_channel_retries_total",
			Help: "Total number of commands retried after a lost playback channel",
		},
	)
)

// Endpoint metrics
var (
	EndpointRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clautify_endpoint_requests_total",
			Help: "Total number of remote command requests by reply code",
		},
		[]string{"code"},
	)

	SessionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clautify_sessions_open",
			Help: "Number of open command sessions",
		},
	)
)

// Recorder feeds executor telemetry into the package metrics.
type Recorder struct{}

// CommandDone records one finished command.
func (Recorder) CommandDone(name, outcome string, elapsed time.Duration) {
	CommandsTotal.WithLabelValues(name, outcome).Inc()
	CommandDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// ChannelBuilt records a playback channel construction.
func (Recorder) ChannelBuilt() {
	ChannelBuildsTotal.Inc()
}

// ChannelRetried records a retry after a lost channel.
func (Recorder) ChannelRetried() {
	ChannelRetriesTotal.Inc()
}
