package metrics

import (
	"github.com/lukjok/ampdedup/models"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ampdedup"

// Metrics holds the counters of one tool invocation on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	Replays      *prometheus.CounterVec
	Candidates   prometheus.Counter
	Fingerprints prometheus.Gauge
	Runs         *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Replays: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Replayed inputs by outcome.",
		}, []string{"result"}),
		Candidates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Inputs selected for replay.",
		}),
		Fingerprints: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fingerprints",
			Help:      "Unique response paths of the last analyzed run.",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analyzed campaign runs by outcome.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveReplay(kind models.AmpFuzzError) {
	m.Replays.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) ObserveRun(kind models.AmpFuzzError) {
	m.Runs.WithLabelValues(kind.String()).Inc()
}

// WriteTextfile dumps the registry in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Errorf("Failed to write metrics to %s: %s", path, err)
	}
	return nil
}
