// Package metrics collects Prometheus metrics for purchases and authentication.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Purchase outcomes used as label values.
const (
	OutcomeGranted      = "granted"
	OutcomeReplayed     = "replayed"
	OutcomeInsufficient = "insufficient_coins"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// Collector records service metrics into a Prometheus registry.
type Collector struct {
	purchases        *prometheus.CounterVec
	rollbackFailures prometheus.Counter
	authFailures     *prometheus.CounterVec
	purchaseLatency  prometheus.Histogram
	coinsSpent       prometheus.Counter
	coinsToppedUp    prometheus.Counter
}

// NewCollector registers the service metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "menumarket_purchases_total",
			Help: "Purchase attempts by outcome",
		}, []string{"outcome"}),
		rollbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "menumarket_rollback_failures_total",
			Help: "Debits that could not be credited back after a failed grant",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "menumarket_auth_failures_total",
			Help: "Rejected logins and tokens by reason",
		}, []string{"reason"}),
		purchaseLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "menumarket_purchase_latency_seconds",
			Help:    "Purchase coordinator latency",
			Buckets: prometheus.DefBuckets,
		}),
		coinsSpent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "menumarket_coins_spent_total",
			Help: "Coins debited by granted purchases",
		}),
		coinsToppedUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "menumarket_coins_topped_up_total",
			Help: "Coins credited by top-ups",
		}),
	}

	reg.MustRegister(
		c.purchases,
		c.rollbackFailures,
		c.authFailures,
		c.purchaseLatency,
		c.coinsSpent,
		c.coinsToppedUp,
	)
	return c
}

// Purchase records the outcome and latency of one purchase attempt.
func (c *Collector) Purchase(outcome string, amount int64, took time.Duration) {
	c.purchases.WithLabelValues(outcome).Inc()
	c.purchaseLatency.Observe(took.Seconds())
	if outcome == OutcomeGranted && amount > 0 {
		c.coinsSpent.Add(float64(amount))
	}
}

// RollbackFailure counts a debit that was left applied without its grant.
func (c *Collector) RollbackFailure() {
	c.rollbackFailures.Inc()
}

// AuthFailure counts a rejected credential or token.
func (c *Collector) AuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// TopUp counts credited coins.
func (c *Collector) TopUp(amount int64) {
	c.coinsToppedUp.Add(float64(amount))
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
