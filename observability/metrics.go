package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EconomyMetrics records business activity across the economy engines.
type EconomyMetrics struct {
	Sales       *prometheus.CounterVec
	Upgrades    *prometheus.CounterVec
	Redemptions prometheus.Counter
	Payouts     *prometheus.CounterVec
}

// GatewayMetrics records HTTP activity on the read gateway.
type GatewayMetrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

var (
	economyOnce sync.Once
	economyReg  *EconomyMetrics

	gatewayOnce sync.Once
	gatewayReg  *GatewayMetrics
)

// Economy returns the lazily-initialised economy metrics registry.
func Economy() *EconomyMetrics {
	economyOnce.Do(func() {
		economyReg = &EconomyMetrics{
			Sales: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "forge",
				Subsystem: "store",
				Name:      "sales_total",
				Help:      "Completed lootbox sales segmented by payment asset.",
			}, []string{"asset"}),
			Upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "forge",
				Subsystem: "forge",
				Name:      "upgrades_total",
				Help:      "Key upgrade attempts segmented by result.",
			}, []string{"result"}),
			Redemptions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "forge",
				Subsystem: "vault",
				Name:      "redemptions_total",
				Help:      "Completed vault redemptions.",
			}),
			Payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "forge",
				Subsystem: "revenue",
				Name:      "payout_legs_total",
				Help:      "Executed revenue distribution legs segmented by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			economyReg.Sales,
			economyReg.Upgrades,
			economyReg.Redemptions,
			economyReg.Payouts,
		)
	})
	return economyReg
}

// Gateway returns the lazily-initialised gateway metrics registry.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayReg = &GatewayMetrics{
			Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "forge",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Gateway requests segmented by route and status.",
			}, []string{"route", "status"}),
			Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "forge",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(gatewayReg.Requests, gatewayReg.Latency)
	})
	return gatewayReg
}

// EventCounter adapts the economy metrics into an events.Emitter-friendly
// hook: engines stay metric-free and the daemon bumps counters from emitted
// events.
type EventCounter struct {
	metrics *EconomyMetrics
}

// NewEventCounter builds a counter hook over the shared registry.
func NewEventCounter() *EventCounter {
	return &EventCounter{metrics: Economy()}
}

// Observe bumps the counter matching the event type, ignoring unknown
// types.
func (c *EventCounter) Observe(eventType string, attributes map[string]string) {
	if c == nil || c.metrics == nil {
		return
	}
	switch eventType {
	case "store.sale.completed":
		c.metrics.Sales.WithLabelValues(attributes["asset"]).Inc()
	case "forge.upgraded":
		c.metrics.Upgrades.WithLabelValues("upgraded").Inc()
	case "forge.burned":
		c.metrics.Upgrades.WithLabelValues("burned").Inc()
	case "vault.redeemed":
		c.metrics.Redemptions.Inc()
	case "revenue.referral.reward":
		c.metrics.Payouts.WithLabelValues("referral").Inc()
	case "revenue.team.reward":
		c.metrics.Payouts.WithLabelValues("team").Inc()
	case "revenue.sink.funded":
		c.metrics.Payouts.WithLabelValues("sink").Inc()
	}
}
