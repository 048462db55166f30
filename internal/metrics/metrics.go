package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"CoinOracle/internal/model"
)

// Metrics holds the Prometheus collectors of the prediction pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PredictionsCreated *prometheus.CounterVec // labels: symbol, timeframe, decision
	Evaluations        *prometheus.CounterVec // labels: symbol, timeframe, outcome
	EvaluationErrors   *prometheus.CounterVec // labels: stage
	SweepDuration      prometheus.Histogram
	SweepsSkipped      prometheus.Counter
	AverageAccuracy    *prometheus.GaugeVec // labels: symbol, timeframe
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PredictionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_predictions_created_total",
			Help: "Predictions created",
		}, []string{"symbol", "timeframe", "decision"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_evaluations_total",
			Help: "Predictions evaluated, by outcome",
		}, []string{"symbol", "timeframe", "outcome"}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oracle_evaluation_errors_total",
			Help: "Pipeline failures by stage (collect, price, store, aggregate)",
		}, []string{"stage"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "oracle_sweep_duration_seconds",
			Help:    "Evaluation sweep latency",
			Buckets: prometheus.DefBuckets,
		}),
		SweepsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oracle_sweeps_joined_total",
			Help: "Sweep requests that joined an in-flight sweep",
		}),
		AverageAccuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oracle_average_accuracy",
			Help: "Running average accuracy per symbol and timeframe",
		}, []string{"symbol", "timeframe"}),
	}
	reg.MustRegister(m.PredictionsCreated, m.Evaluations, m.EvaluationErrors,
		m.SweepDuration, m.SweepsSkipped, m.AverageAccuracy)
	return m
}

func (m *Metrics) PredictionCreated(p *model.Prediction) {
	if m == nil {
		return
	}
	m.PredictionsCreated.WithLabelValues(p.Symbol, string(p.Timeframe), string(p.Decision)).Inc()
}

func (m *Metrics) Evaluated(r *model.PredictionResult) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(r.Symbol, string(r.Timeframe), string(r.Outcome)).Inc()
}

func (m *Metrics) Error(stage string) {
	if m == nil {
		return
	}
	m.EvaluationErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Sweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) SweepJoined() {
	if m == nil {
		return
	}
	m.SweepsSkipped.Inc()
}

func (m *Metrics) Accuracy(pm *model.PredictionMetrics) {
	if m == nil {
		return
	}
	m.AverageAccuracy.WithLabelValues(pm.Symbol, string(pm.Timeframe)).Set(pm.AverageAccuracy)
}

// Serve exposes g on addr under /metrics in the background.
func Serve(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	return srv
}
