package selector

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the prometheus metrics for model selection. A nil
// *Metrics in Config disables them.
type Metrics struct {
	// Fit attempts by outcome: ok, failed (expected numerical failure)
	// or error (anything else)
	Fits *prometheus.CounterVec

	// Fallbacks to the constant model by reason
	Fallbacks *prometheus.CounterVec

	SearchDuration *prometheus.HistogramVec
	SelectedStates *prometheus.HistogramVec
}

// NewMetrics creates and registers the selection metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hmmselect_fits_total",
				Help: "Total number of HMM fits attempted",
			},
			[]string{"strategy", "result"},
		),

		Fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hmmselect_fallbacks_total",
				Help: "Total number of selections that fell back to the constant model",
			},
			[]string{"strategy", "reason"},
		),

		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hmmselect_select_duration_seconds",
				Help:    "Time spent selecting a model for one category",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"strategy"},
		),

		SelectedStates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hmmselect_selected_states",
				Help:    "Number of hidden states of the selected models",
				Buckets: prometheus.LinearBuckets(1, 1, 15),
			},
			[]string{"strategy"},
		),
	}

	reg.MustRegister(
		m.Fits,
		m.Fallbacks,
		m.SearchDuration,
		m.SelectedStates,
	)

	return m
}
