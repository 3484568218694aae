package metrics

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
)

const namespace = "dataset_registry"

// Registry exports registry outcomes as Prometheus counters. Volumes are in
// whole tokens as float64, so very large values lose precision.
type Registry struct {
	gatherer prometheus.Gatherer

	datasetsRegistered *prometheus.CounterVec
	purchases          *prometheus.CounterVec
	purchaseVolume     *prometheus.CounterVec
	purchaseRejections *prometheus.CounterVec
	withdrawals        prometheus.Counter
	withdrawnVolume    prometheus.Counter
	settlementFailures prometheus.Counter
}

// New registers the registry collectors on a fresh Prometheus registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		gatherer: reg,
		datasetsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_registered_total",
			Help:      "Datasets registered, by access tier.",
		}, []string{"tier"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Completed access purchases, by access tier.",
		}, []string{"tier"}),
		purchaseVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_volume_tokens_total",
			Help:      "Tokens paid into escrow, by access tier.",
		}, []string{"tier"}),
		purchaseRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_rejections_total",
			Help:      "Rejected purchases, by reason.",
		}, []string{"reason"}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_total",
			Help:      "Escrow balances zeroed for settlement.",
		}),
		withdrawnVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawn_volume_tokens_total",
			Help:      "Tokens released from escrow.",
		}),
		settlementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_failures_total",
			Help:      "Settlement transfers that failed after the balance was zeroed.",
		}),
	}
	reg.MustRegister(
		m.datasetsRegistered,
		m.purchases,
		m.purchaseVolume,
		m.purchaseRejections,
		m.withdrawals,
		m.withdrawnVolume,
		m.settlementFailures,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

func (m *Registry) DatasetRegistered(tier entities.AccessTier) {
	m.datasetsRegistered.WithLabelValues(string(tier)).Inc()
}

func (m *Registry) PurchaseCompleted(tier entities.AccessTier, amount entities.Amount) {
	m.purchases.WithLabelValues(string(tier)).Inc()
	m.purchaseVolume.WithLabelValues(string(tier)).Add(tokens(amount))
}

func (m *Registry) PurchaseRejected(reason string) {
	m.purchaseRejections.WithLabelValues(reason).Inc()
}

func (m *Registry) EscrowWithdrawn(amount entities.Amount) {
	m.withdrawals.Inc()
	m.withdrawnVolume.Add(tokens(amount))
}

func (m *Registry) SettlementFailed() {
	m.settlementFailures.Inc()
}

var unitsPerToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(entities.TokenDecimals), nil))

func tokens(amount entities.Amount) float64 {
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(amount.BigInt()), unitsPerToken).Float64()
	return value
}
