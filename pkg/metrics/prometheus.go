package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	orders        *prometheus.CounterVec
	equity        prometheus.Gauge
	memoryEntries prometheus.Gauge
	refits        *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
}

// New registers the desk collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		stageRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_stage_runs_total",
				Help: "Stage executions by terminal status",
			},
			[]string{"stage", "status"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradedesk_stage_duration_seconds",
				Help:    "Duration of stage executions in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_orders_total",
				Help: "Paper orders by side and status",
			},
			[]string{"side", "status"},
		),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_equity_value",
			Help: "Total paper account value",
		}),
		memoryEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_memory_entries",
			Help: "Entries held by the memory store",
		}),
		refits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_calibration_refits_total",
				Help: "Calibration refits by mode",
			},
			[]string{"mode"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"component", "type"},
		),
		apiLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradedesk_api_duration_seconds",
				Help:    "Latency of control surface endpoints",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		),
	}
}

func (r *Recorder) RecordStageRun(stage, status string, seconds float64) {
	r.stageRuns.WithLabelValues(stage, status).Inc()
	if seconds > 0 {
		r.stageDuration.WithLabelValues(stage).Observe(seconds)
	}
}

func (r *Recorder) RecordOrder(side, status string) {
	if side == "" {
		side = "none"
	}
	r.orders.WithLabelValues(side, status).Inc()
}

func (r *Recorder) SetEquity(value float64) { r.equity.Set(value) }

func (r *Recorder) SetMemoryEntries(n int) { r.memoryEntries.Set(float64(n)) }

func (r *Recorder) RecordRefit(mode string) { r.refits.WithLabelValues(mode).Inc() }

// RecordError records an error occurrence.
func (r *Recorder) RecordError(component, kind string) {
	r.errorsTotal.WithLabelValues(component, kind).Inc()
}

// ObserveRequest records one control surface request.
func (r *Recorder) ObserveRequest(route, code string, seconds float64) {
	r.apiLatency.WithLabelValues(route, code).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordStageRun(string, string, float64) {}
func (Nop) RecordOrder(string, string) {}
func (Nop) SetEquity(float64) {}
func (Nop) SetMemoryEntries(int) {}
func (Nop) RecordRefit(string) {}
func (Nop) RecordError(string, string) {}
func (Nop) ObserveRequest(string, string, float64) {}
