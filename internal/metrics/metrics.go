// Package metrics exposes Prometheus instruments for the learning engine.
//
// Each Metrics value owns a private registry; nothing is registered on the
// global default registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "flowlearn"

// Metrics holds the engine instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// ExecutionsTracked counts tracked executions.
	// Labels: scenario (flow, basic, none), result (success, failure)
	ExecutionsTracked *prometheus.CounterVec

	// PatternAttributions counts executions attributed to patterns.
	// Labels: outcome (created, matched)
	PatternAttributions *prometheus.CounterVec

	// Suggestions counts suggestion requests.
	// Labels: outcome (made, none)
	Suggestions *prometheus.CounterVec

	// Feedback counts applied pattern feedback.
	// Labels: sentiment (positive, negative)
	Feedback *prometheus.CounterVec

	// PhaseTransitions counts verification phase changes.
	// Labels: to (learning, validation)
	PhaseTransitions *prometheus.CounterVec

	// CriteriaMet is the number of success criteria met by the last
	// report generated for a user.
	CriteriaMet *prometheus.GaugeVec

	// TrackDuration observes TrackExecution latency.
	TrackDuration prometheus.Histogram
}

// New creates the instruments on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ExecutionsTracked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_tracked_total",
			Help:      "Total number of tracked executions",
		}, []string{"scenario", "result"}),
		PatternAttributions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patterns",
			Name:      "attributions_total",
			Help:      "Executions attributed to a new or an existing pattern",
		}, []string{"outcome"}),
		Suggestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patterns",
			Name:      "suggestions_total",
			Help:      "Pattern suggestion requests by outcome",
		}, []string{"outcome"}),
		Feedback: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patterns",
			Name:      "feedback_total",
			Help:      "Applied pattern feedback by sentiment",
		}, []string{"sentiment"}),
		PhaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "phase_transitions_total",
			Help:      "Verification phase transitions by target phase",
		}, []string{"to"}),
		CriteriaMet: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "criteria_met",
			Help:      "Success criteria met in the last generated report",
		}, []string{"user_id"}),
		TrackDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "track_duration_seconds",
			Help:      "Duration of execution tracking in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordExecution counts a tracked execution.
func (m *Metrics) RecordExecution(scenario string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	if scenario == "" {
		scenario = "none"
	}
	m.ExecutionsTracked.WithLabelValues(scenario, result(success)).Inc()
	m.TrackDuration.Observe(elapsed.Seconds())
}

// RecordAttribution counts a pattern creation or match.
func (m *Metrics) RecordAttribution(created bool) {
	if m == nil {
		return
	}
	if created {
		m.PatternAttributions.WithLabelValues("created").Inc()
	} else {
		m.PatternAttributions.WithLabelValues("matched").Inc()
	}
}

// RecordSuggestion counts a suggestion request.
func (m *Metrics) RecordSuggestion(made bool) {
	if m == nil {
		return
	}
	if made {
		m.Suggestions.WithLabelValues("made").Inc()
	} else {
		m.Suggestions.WithLabelValues("none").Inc()
	}
}

// RecordFeedback counts applied feedback.
func (m *Metrics) RecordFeedback(positive bool) {
	if m == nil {
		return
	}
	if positive {
		m.Feedback.WithLabelValues("positive").Inc()
	} else {
		m.Feedback.WithLabelValues("negative").Inc()
	}
}

// RecordTransition counts a phase transition.
func (m *Metrics) RecordTransition(to string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(to).Inc()
}

// SetCriteriaMet records the criteria met by userID's latest report.
func (m *Metrics) SetCriteriaMet(userID string, met int) {
	if m == nil {
		return
	}
	m.CriteriaMet.WithLabelValues(userID).Set(float64(met))
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
