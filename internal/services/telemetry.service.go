package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh cycle outcomes, used as the "outcome" label
const (
	OutcomeLoaded    = "loaded"
	OutcomeAppended  = "appended"
	OutcomeDuplicate = "duplicate"
	OutcomeStale     = "stale"
	OutcomeFailed    = "failed"
)

// Telemetry exports refresh pipeline metrics. A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	cycles        *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	busy          prometheus.Gauge
	bufferLen     prometheus.Gauge
	lastSuccess   prometheus.Gauge
	subscribers   prometheus.Gauge
}

// NewTelemetry creates the collectors and registers them with reg
func NewTelemetry(reg prometheus.Registerer) *Telemetry {
	t := &Telemetry{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseboard",
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by outcome.",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pulseboard",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of metrics endpoint round trips.",
			Buckets:   prometheus.DefBuckets,
		}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulseboard",
			Name:      "refresh_in_flight",
			Help:      "Refresh cycles currently waiting on the endpoint.",
		}),
		bufferLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulseboard",
			Name:      "series_buffer_length",
			Help:      "Samples currently held in the chart window.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulseboard",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulseboard",
			Name:      "websocket_subscribers",
			Help:      "Connected chart subscribers.",
		}),
	}
	reg.MustRegister(t.cycles, t.fetchDuration, t.busy, t.bufferLen, t.lastSuccess, t.subscribers)
	return t
}

// ObserveCycle counts a finished cycle
func (t *Telemetry) ObserveCycle(outcome string) {
	if t == nil {
		return
	}
	t.cycles.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one endpoint round trip
func (t *Telemetry) ObserveFetch(d time.Duration) {
	if t == nil {
		return
	}
	t.fetchDuration.Observe(d.Seconds())
}

// SetInFlight records the number of outstanding cycles
func (t *Telemetry) SetInFlight(n int) {
	if t == nil {
		return
	}
	t.busy.Set(float64(n))
}

// SetBufferLen records the chart window size
func (t *Telemetry) SetBufferLen(n int) {
	if t == nil {
		return
	}
	t.bufferLen.Set(float64(n))
}

// MarkSuccess stamps the last successful refresh
func (t *Telemetry) MarkSuccess(at time.Time) {
	if t == nil {
		return
	}
	t.lastSuccess.Set(float64(at.Unix()))
}

// SetSubscribers records the number of connected websocket clients
func (t *Telemetry) SetSubscribers(n int) {
	if t == nil {
		return
	}
	t.subscribers.Set(float64(n))
}
