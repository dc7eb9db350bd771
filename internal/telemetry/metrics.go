// Package telemetry wires Prometheus metrics and an OpenTelemetry tracer
// the same way the teacher's internal/telemetry package does: package-level
// CounterVecs, idempotent registration via sync.Once, and a stdouttrace
// exporter for local runs.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PacketsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kismetd",
			Name:      "packets_captured_total",
			Help:      "Total number of frames read from the capture source",
		},
		[]string{"interface"},
	)

	PacketsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kismetd",
			Name:      "packets_dropped_total",
			Help:      "Total number of frames dropped by the MAC filter",
		},
		[]string{"interface"},
	)

	NetworksTracked = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kismetd",
			Name:      "networks_tracked",
			Help:      "Current number of networks held by the tracker",
		},
		[]string{"interface"},
	)

	DumpRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kismetd",
			Name:      "dump_rotations_total",
			Help:      "Total number of binary dump log rotations",
		},
		[]string{"log_type"},
	)

	PushClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kismetd",
			Name:      "push_clients",
			Help:      "Current number of connected push-protocol clients",
		},
		[]string{},
	)

	once sync.Once
)

// InitMetrics registers every CounterVec/GaugeVec with the default
// Prometheus registry. Safe to call more than once.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(
			PacketsCaptured,
			PacketsDropped,
			NetworksTracked,
			DumpRotations,
			PushClients,
		)
	})
}
