package metrics

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
)

// #region metrics
// Metrics exports classifier events as Prometheus collectors on a private registry.
// It implements gmm.Observer.
type Metrics struct {
	registry *prometheus.Registry

	TrainTotal     prometheus.Counter
	TrainDuration  prometheus.Histogram
	TrainSamples   prometheus.Gauge
	Classes        prometheus.Gauge
	GridScore      *prometheus.GaugeVec
	SelectedTau    prometheus.Gauge
	PredictedTotal *prometheus.CounterVec
}

var _ gmm.Observer = (*Metrics)(nil)

// New creates the collectors under namespace. Go runtime and process collectors
// are registered when withRuntime is set.
func New(namespace string, withRuntime bool) *Metrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m := &Metrics{registry: reg}
	m.TrainTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "train_total",
		Help:      "Number of completed training runs.",
	})
	m.TrainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "train_duration_seconds",
		Help:      "Training wall time in seconds.",
		Buckets:   prometheus.DefBuckets,
	})
	m.TrainSamples = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "train_samples",
		Help:      "Samples used by the last training run.",
	})
	m.Classes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "classes",
		Help:      "Classes in the last trained model.",
	})
	m.GridScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "grid_score",
		Help:      "Cross-validated score per tau candidate.",
	}, []string{"tau"})
	m.SelectedTau = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "selected_tau",
		Help:      "Tau chosen by the last grid search.",
	})
	m.PredictedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "predictions_total",
		Help:      "Predictions by output label.",
	}, []string{"label"})

	reg.MustRegister(m.TrainTotal, m.TrainDuration, m.TrainSamples, m.Classes,
		m.GridScore, m.SelectedTau, m.PredictedTotal)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
// #endregion metrics

// #region observer
func (m *Metrics) ObserveTrain(classes, samples int, elapsed time.Duration) {
	m.TrainTotal.Inc()
	m.TrainDuration.Observe(elapsed.Seconds())
	m.TrainSamples.Set(float64(samples))
	m.Classes.Set(float64(classes))
}

func (m *Metrics) ObserveGridPoint(tau, rate float64) {
	m.GridScore.WithLabelValues(strconv.FormatFloat(tau, 'g', -1, 64)).Set(rate)
}

func (m *Metrics) ObserveTauSelected(tau float64) {
	m.SelectedTau.Set(tau)
}

func (m *Metrics) ObservePrediction(label int) {
	m.PredictedTotal.WithLabelValues(strconv.Itoa(label)).Inc()
}
// #endregion observer

// #region dump
// WriteText writes the registry in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
// #endregion dump
