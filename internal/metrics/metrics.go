// Package metrics exposes engine telemetry as Prometheus collectors.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "walletd"

// Collector implements the observer hooks of the ledger, kyc guard and engine.
type Collector struct {
	submitted        *prometheus.CounterVec
	finalized        *prometheus.CounterVec
	confirmLatency   *prometheus.HistogramVec
	reservations     prometheus.Gauge
	monitors         prometheus.Gauge
	kycRejections    *prometheus.CounterVec
	notifyFailures   prometheus.Counter
	recoveredPending prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "submitted_total",
			Help:      "Transactions accepted by the chain gateway.",
		}, []string{"type"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "finalized_total",
			Help:      "Transactions that reached a terminal status.",
		}, []string{"type", "status"}),
		confirmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "finalize_seconds",
			Help:      "Time from creation to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"type"}),
		reservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "open_reservations",
			Help:      "Balance reservations held by in-flight transactions.",
		}),
		monitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "active_monitors",
			Help:      "Confirmation monitors currently running.",
		}),
		kycRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kyc",
			Name:      "rejections_total",
			Help:      "Requests rejected by the KYC limit guard.",
		}, []string{"reason"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "failures_total",
			Help:      "Notification deliveries that returned an error.",
		}),
		recoveredPending: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "recovered_total",
			Help:      "Pending transactions resumed at startup.",
		}),
	}
	for _, col := range []prometheus.Collector{
		c.submitted, c.finalized, c.confirmLatency, c.reservations,
		c.monitors, c.kycRejections, c.notifyFailures, c.recoveredPending,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) TransactionSubmitted(txType string) {
	c.submitted.WithLabelValues(txType).Inc()
}

func (c *Collector) TransactionFinalized(txType, status string, elapsed time.Duration) {
	c.finalized.WithLabelValues(txType, status).Inc()
	c.confirmLatency.WithLabelValues(txType).Observe(elapsed.Seconds())
}

func (c *Collector) MonitorStarted() { c.monitors.Inc() }
func (c *Collector) MonitorStopped() { c.monitors.Dec() }

func (c *Collector) TransactionRecovered() { c.recoveredPending.Inc() }

func (c *Collector) NotificationFailed() { c.notifyFailures.Inc() }

func (c *Collector) ReservationOpened() { c.reservations.Inc() }
func (c *Collector) ReservationClosed() { c.reservations.Dec() }

func (c *Collector) KYCRejected(reason string) {
	c.kycRejections.WithLabelValues(reason).Inc()
}
