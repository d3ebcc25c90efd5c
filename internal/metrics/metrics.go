// File: internal/metrics/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package metrics defines the prometheus collectors of the archive on
// a private registry, so embedding processes keep their own metric
// namespace clean.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors bundles every archive metric.
type Collectors struct {
	registry *prometheus.Registry

	RecordingsStarted prometheus.Counter
	RecordingsStopped prometheus.Counter
	ReplaysStarted    prometheus.Counter
	ReplaysStopped    prometheus.Counter
	BytesRecorded     prometheus.Counter
	BytesReplayed     prometheus.Counter
	ControlRequests   prometheus.Counter
	ResponsesDropped  prometheus.Counter
	SessionErrors     prometheus.Counter
	ActiveRecordings  prometheus.Gauge
	ActiveReplays     prometheus.Gauge
}

// New creates and registers the archive collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		RecordingsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_recordings_started_total",
			Help: "Recording sessions started.",
		}),
		RecordingsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_recordings_stopped_total",
			Help: "Recording sessions stopped.",
		}),
		ReplaysStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_replays_started_total",
			Help: "Replay sessions started.",
		}),
		ReplaysStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_replays_stopped_total",
			Help: "Replay sessions finished.",
		}),
		BytesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_bytes_recorded_total",
			Help: "Bytes appended to segment files, padding included.",
		}),
		BytesReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_bytes_replayed_total",
			Help: "Bytes republished by replay sessions.",
		}),
		ControlRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_control_requests_total",
			Help: "Control requests dispatched by the conductor.",
		}),
		ResponsesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_control_responses_dropped_total",
			Help: "Control responses dropped on full client rings.",
		}),
		SessionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_session_errors_total",
			Help: "Errors routed to the archive error handler.",
		}),
		ActiveRecordings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archive_active_recordings",
			Help: "Recording sessions currently live.",
		}),
		ActiveReplays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archive_active_replays",
			Help: "Replay sessions currently live.",
		}),
	}
	c.registry.MustRegister(
		c.RecordingsStarted, c.RecordingsStopped,
		c.ReplaysStarted, c.ReplaysStopped,
		c.BytesRecorded, c.BytesReplayed,
		c.ControlRequests, c.ResponsesDropped, c.SessionErrors,
		c.ActiveRecordings, c.ActiveReplays,
	)
	return c
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
