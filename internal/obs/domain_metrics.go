package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SettlementsTotal counts settlement attempts by kind and result.
	SettlementsTotal *prometheus.CounterVec
	// SettlementRetries counts serialization-conflict retries.
	SettlementRetries prometheus.Counter
	// OversellRejections counts sales rejected for insufficient stock.
	OversellRejections prometheus.Counter
	// RedemptionsTotal counts loyalty point redemption outcomes.
	RedemptionsTotal *prometheus.CounterVec
	// TierChangesTotal counts tier reconciliations that changed a tier.
	TierChangesTotal *prometheus.CounterVec
	// SettlementDuration records settlement latency in milliseconds.
	SettlementDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SettlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Count of settlement outcomes by kind and result.",
		}, []string{"kind", "result"})
		SettlementRetries = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_retries_total",
			Help:      "Number of settlement attempts retried after a serialization conflict.",
		})
		OversellRejections = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oversell_rejections_total",
			Help:      "Number of sales rejected because stock was insufficient.",
		})
		RedemptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "point_redemptions_total",
			Help:      "Count of loyalty point redemption outcomes.",
		}, []string{"result"})
		TierChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_changes_total",
			Help:      "Count of customer tier changes by destination tier.",
		}, []string{"tier"})
		SettlementDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_duration_ms",
			Help:      "Settlement latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"kind"})

		mustRegisterCollector(reg, SettlementsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SettlementsTotal = v
			}
		})
		mustRegisterCollector(reg, SettlementRetries, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SettlementRetries = v
			}
		})
		mustRegisterCollector(reg, OversellRejections, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				OversellRejections = v
			}
		})
		mustRegisterCollector(reg, RedemptionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RedemptionsTotal = v
			}
		})
		mustRegisterCollector(reg, TierChangesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TierChangesTotal = v
			}
		})
		mustRegisterCollector(reg, SettlementDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				SettlementDuration = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
