// Package prometheus instruments conversation trees with a prometheus
// registry and serves the standard /metrics endpoint.
package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/posixpascal/knusperity/core/actor"
	"github.com/posixpascal/knusperity/core/metrics"
)

// TreeMetrics implements actor.TreeMetrics on prometheus collectors.
type TreeMetrics struct {
	registry *prom.Registry

	messageDuration  *prom.HistogramVec
	messageProcessed *prom.CounterVec
	messagePanics    *prom.CounterVec
	mailboxDepth     *prom.GaugeVec
	effectInflight   *prom.GaugeVec
	effectDuration   prom.Histogram
	effectCompleted  *prom.CounterVec
}

// New builds the collectors and registers them on a fresh registry.
func New() *TreeMetrics {
	m := &TreeMetrics{
		registry: prom.NewRegistry(),
		messageDuration: prom.NewHistogramVec(
			prom.HistogramOpts{
				Name:    "knusperity_message_duration_seconds",
				Help:    "Time spent handling one actor message",
				Buckets: prom.DefBuckets,
			},
			[]string{"event"},
		),
		messageProcessed: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "knusperity_messages_processed_total",
				Help: "Messages handled, by event type and outcome",
			},
			[]string{"event", "outcome"},
		),
		messagePanics: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "knusperity_message_panics_total",
				Help: "Panics recovered while handling a message",
			},
			[]string{"event"},
		),
		mailboxDepth: prom.NewGaugeVec(
			prom.GaugeOpts{
				Name: "knusperity_mailbox_depth",
				Help: "Queued messages per conversation tree",
			},
			[]string{"tree"},
		),
		effectInflight: prom.NewGaugeVec(
			prom.GaugeOpts{
				Name: "knusperity_effects_inflight",
				Help: "Running invoked effects per conversation tree",
			},
			[]string{"tree"},
		),
		effectDuration: prom.NewHistogram(
			prom.HistogramOpts{
				Name:    "knusperity_effect_duration_seconds",
				Help:    "Time spent in one invoked effect",
				Buckets: prom.DefBuckets,
			},
		),
		effectCompleted: prom.NewCounterVec(
			prom.CounterOpts{
				Name: "knusperity_effects_completed_total",
				Help: "Invoked effects settled, by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.messageDuration,
		m.messageProcessed,
		m.messagePanics,
		m.mailboxDepth,
		m.effectInflight,
		m.effectDuration,
		m.effectCompleted,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *TreeMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra collectors.
func (m *TreeMetrics) Registry() *prom.Registry { return m.registry }

func (m *TreeMetrics) MessageDuration(eventType string) metrics.Timer {
	return timer{prom.NewTimer(m.messageDuration.WithLabelValues(eventType))}
}

func (m *TreeMetrics) MessageProcessed(eventType string, success bool) {
	m.messageProcessed.WithLabelValues(eventType, outcome(success)).Inc()
}

func (m *TreeMetrics) MessagePanic(eventType string) {
	m.messagePanics.WithLabelValues(eventType).Inc()
}

func (m *TreeMetrics) MailboxDepth(tree string, depth int) {
	m.mailboxDepth.WithLabelValues(tree).Set(float64(depth))
}

func (m *TreeMetrics) EffectInflight(tree string, count int) {
	m.effectInflight.WithLabelValues(tree).Set(float64(count))
}

func (m *TreeMetrics) EffectDuration() metrics.Timer {
	return timer{prom.NewTimer(m.effectDuration)}
}

// prom.Timer's ObserveDuration returns the elapsed duration, which keeps it
// from satisfying metrics.Timer directly.
type timer struct{ t *prom.Timer }

func (t timer) ObserveDuration() { t.t.ObserveDuration() }

func (m *TreeMetrics) EffectCompleted(success bool) {
	m.effectCompleted.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

var _ actor.TreeMetrics = (*TreeMetrics)(nil)
