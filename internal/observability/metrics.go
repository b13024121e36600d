package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the engine's collectors on a private registry so that tests
// can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	Cycles          prometheus.Counter
	CycleErrors     prometheus.Counter
	GoalsCreated    *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	StepsExecuted   *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	PolicyDenials   prometheus.Counter
	ScanFindings    *prometheus.CounterVec
	ActiveGoalGauge prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autogoal",
			Subsystem: "coordinator",
			Name:      "cycles_total",
			Help:      "Total coordinator cycles run.",
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autogoal",
			Subsystem: "coordinator",
			Name:      "cycle_errors_total",
			Help:      "Cycles that ended in a recovered error or panic.",
		}),
		GoalsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autogoal",
			Subsystem: "goals",
			Name:      "created_total",
			Help:      "Goals created, labelled by type.",
		}, []string{"type"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autogoal",
			Subsystem: "goals",
			Name:      "transitions_total",
			Help:      "Goal status transitions, labelled by target status.",
		}, []string{"to"}),
		StepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autogoal",
			Subsystem: "executor",
			Name:      "steps_total",
			Help:      "Plan steps executed, labelled by action and outcome.",
		}, []string{"action", "outcome"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autogoal",
			Subsystem: "executor",
			Name:      "step_duration_seconds",
			Help:      "Plan step execution time in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 120},
		}, []string{"action"}),
		PolicyDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autogoal",
			Subsystem: "policy",
			Name:      "denials_total",
			Help:      "Goals blocked by the policy gate.",
		}),
		ScanFindings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autogoal",
			Subsystem: "scanner",
			Name:      "findings_total",
			Help:      "Scan findings, labelled by source.",
		}, []string{"source"}),
		ActiveGoalGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autogoal",
			Subsystem: "coordinator",
			Name:      "active_goal_id",
			Help:      "ID of the goal currently in progress, 0 when idle.",
		}),
	}
	m.Registry.MustRegister(
		m.Cycles, m.CycleErrors, m.GoalsCreated, m.Transitions,
		m.StepsExecuted, m.StepDuration, m.PolicyDenials, m.ScanFindings,
		m.ActiveGoalGauge,
	)
	return m
}

// ObserveStep records one executed step.
func (m *Metrics) ObserveStep(action string, success bool, d time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.StepsExecuted.WithLabelValues(action, outcome).Inc()
	m.StepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// Handler serves /metrics, /healthz and /status.
func (m *Metrics) Handler(status *SystemStatus) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status.Snapshot())
	})
	return mux
}

// StartServer serves Handler on addr until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, addr string, status *SystemStatus, logger *Logger) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      m.Handler(status),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
}
