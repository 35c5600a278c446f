package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register. Helpers
// no-op until registration succeeds.
var (
	regOK atomic.Bool

	runsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runwatch",
			Subsystem: "run",
			Name:      "started_total",
			Help:      "Number of detected subject process starts.",
		}, []string{"engine"},
	)
	runsTerminal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "runwatch",
			Subsystem: "run",
			Name:      "terminal_total",
			Help:      "Number of terminal run events by outcome.",
		}, []string{"engine", "status"},
	)
	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "runwatch",
			Subsystem: "run",
			Name:      "active",
			Help:      "Currently tracked, non-terminal runs.",
		},
	)
	eventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runwatch",
			Subsystem: "eventlog",
			Name:      "dropped_total",
			Help:      "Records dropped after exhausting the write retry budget.",
		},
	)
	transitionsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runwatch",
			Subsystem: "monitor",
			Name:      "transitions_dropped_total",
			Help:      "Process transitions dropped because the hand-off queue was full.",
		},
	)
	artifactUnavailable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runwatch",
			Subsystem: "artifact",
			Name:      "unavailable_total",
			Help:      "Terminal events emitted without a parsable artifact file.",
		},
	)
	descriptorUnavailable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "runwatch",
			Subsystem: "endpoint",
			Name:      "unavailable_total",
			Help:      "Started events emitted without a readable endpoint descriptor.",
		},
	)
)

// Register registers all collectors with the provided registerer. Safe to
// call multiple times; calls after a success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		runsStarted, runsTerminal, activeRuns,
		eventsDropped, transitionsDropped,
		artifactUnavailable, descriptorUnavailable,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncStarted(engine string) {
	if regOK.Load() {
		runsStarted.WithLabelValues(engine).Inc()
	}
}

func IncTerminal(engine, status string) {
	if regOK.Load() {
		runsTerminal.WithLabelValues(engine, status).Inc()
	}
}

func SetActiveRuns(n int) {
	if regOK.Load() {
		activeRuns.Set(float64(n))
	}
}

func IncEventDropped() {
	if regOK.Load() {
		eventsDropped.Inc()
	}
}

func IncTransitionDropped() {
	if regOK.Load() {
		transitionsDropped.Inc()
	}
}

func IncArtifactUnavailable() {
	if regOK.Load() {
		artifactUnavailable.Inc()
	}
}

func IncDescriptorUnavailable() {
	if regOK.Load() {
		descriptorUnavailable.Inc()
	}
}
