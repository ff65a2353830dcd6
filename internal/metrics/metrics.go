// Package metrics exposes resolution counters in Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wanip"

type Metrics struct {
	Cycles          *prometheus.CounterVec
	ServiceFailures *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	LastChange      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_cycles_total",
			Help:      "Resolution cycles by configured source and outcome.",
		}, []string{"source", "outcome"}),
		ServiceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "public_service_failures_total",
			Help:      "Failures recorded against public lookup services.",
		}, []string{"service"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_requests_total",
			Help:      "Manual public IP refresh requests by result.",
		}, []string{"result"}),
		LastChange: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_change_timestamp_seconds",
			Help:      "Unix time of the last stored address change.",
		}),
	}
}

// Nop returns metrics registered nowhere.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
