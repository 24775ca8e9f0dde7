package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the market core.
type Metrics struct {
	// --- Trading ---
	OrdersMatched     *prometheus.CounterVec
	MatchesRejected   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Deposits          *prometheus.CounterVec
	Withdrawals       *prometheus.CounterVec

	// --- Funding ---
	FundingEntriesAppended *prometheus.CounterVec
	FundingSettlements     *prometheus.CounterVec

	// --- Liquidation ---
	LiquidationsTriggered *prometheus.CounterVec
	ReceiptsClaimed       *prometheus.CounterVec
	EscrowsReleased       *prometheus.CounterVec
	DeleveragingEvents    *prometheus.CounterVec

	// --- Insurance pool ---
	PoolHoldings    *prometheus.GaugeVec
	PoolTarget      *prometheus.GaugeVec
	PoolDrains      *prometheus.CounterVec
	PoolDeposits    *prometheus.CounterVec
	PoolWithdrawals *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OrdersMatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_market_orders_matched_total",
			Help: "Order pairs matched and settled",
		}, []string{"market"}),

		MatchesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_market_matches_rejected_total",
			Help: "Order pairs rejected by the matching validator",
		}, []string{"market", "reason"}),

		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_market_operation_duration_seconds",
			Help:    "Time to execute a single market operation",
			Buckets: opBuckets,
		}, []string{"operation"}),

		Deposits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_market_deposits_total",
			Help: "Collateral deposits into the market",
		}, []string{"market"}),

		Withdrawals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_market_withdrawals_total",
			Help: "Collateral withdrawals from the market",
		}, []string{"market"}),

		FundingEntriesAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_funding_entries_appended_total",
			Help: "Hourly funding-rate entries appended",
		}, []string{"market", "index"}),

		FundingSettlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_funding_settlements_total",
			Help: "Accounts caught up against the funding indices",
		}, []string{"market"}),

		LiquidationsTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidations_triggered_total",
			Help: "Liquidation receipts created",
		}, []string{"market"}),

		ReceiptsClaimed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidation_receipts_claimed_total",
			Help: "Liquidation receipts settled by the liquidator",
		}, []string{"market"}),

		EscrowsReleased: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidation_escrows_released_total",
			Help: "Escrows released back to liquidatees",
		}, []string{"market"}),

		DeleveragingEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_deleveraging_events_total",
			Help: "Socialized shortfalls applied to counterparty positions",
		}, []string{"market"}),

		PoolHoldings: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_insurance_pool_holdings_wad",
			Help: "Insurance pool holdings (buffer + public), WAD",
		}, []string{"market"}),

		PoolTarget: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_insurance_pool_target_wad",
			Help: "Insurance pool target size, WAD",
		}, []string{"market"}),

		PoolDrains: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_insurance_pool_drains_total",
			Help: "Insurance pool draws for liquidation shortfalls",
		}, []string{"market"}),

		PoolDeposits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_insurance_pool_deposits_total",
			Help: "Public stakes into the insurance pool",
		}, []string{"market"}),

		PoolWithdrawals: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_insurance_pool_withdrawals_total",
			Help: "Public stakes withdrawn from the insurance pool",
		}, []string{"market"}),
	}
}
