package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRecorder exports cycle timing on its own registry so that several
// controllers in one process never share collectors.
type PromRecorder struct {
	registry    *prometheus.Registry
	preparation prometheus.Histogram
	feedback    prometheus.Histogram
	kkt         prometheus.Gauge
	iterations  prometheus.Counter
	status      *prometheus.CounterVec
	degraded    prometheus.Counter
}

func NewPromRecorder(controller string) *PromRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"controller": controller}

	return &PromRecorder{
		registry: reg,
		preparation: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "rtimpc",
			Name:        "preparation_duration_seconds",
			Help:        "Duration of the measurement-independent preparation phase",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		feedback: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "rtimpc",
			Name:        "feedback_duration_seconds",
			Help:        "Duration of the feedback phase from measurement to control",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-7, 4, 10),
		}),
		kkt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rtimpc",
			Name:        "kkt_tolerance",
			Help:        "KKT tolerance of the last iteration",
			ConstLabels: labels,
		}),
		iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "rtimpc",
			Name:        "iterations_total",
			Help:        "Completed real-time iterations",
			ConstLabels: labels,
		}),
		status: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "rtimpc",
			Name:        "qp_status_total",
			Help:        "QP outcomes by status",
			ConstLabels: labels,
		}, []string{"status"}),
		degraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "rtimpc",
			Name:        "degraded_preparations_total",
			Help:        "Preparations that needed Hessian regularisation or failed",
			ConstLabels: labels,
		}),
	}
}

func (p *PromRecorder) Record(c Cycle) {
	p.preparation.Observe(c.Preparation.Seconds())
	p.feedback.Observe(c.Feedback.Seconds())
	p.kkt.Set(c.KKT)
	p.iterations.Inc()
	p.status.WithLabelValues(c.Status.String()).Inc()
	if c.Degraded {
		p.degraded.Inc()
	}
}

func (p *PromRecorder) Registry() *prometheus.Registry { return p.registry }

// Handler serves the recorder's registry in the exposition format.
func (p *PromRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
