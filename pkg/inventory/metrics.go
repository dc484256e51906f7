package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheusメトリクス
var (
	// movementsTotal 移動タイプ別の処理件数
	movementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makiba_stock_movements_total",
			Help: "Total number of stock movements applied, by movement type.",
		},
		[]string{"type"},
	)

	// movementConflicts 楽観的ロック競合によるリトライ件数
	movementConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "makiba_stock_movement_conflicts_total",
			Help: "Total number of optimistic lock conflicts retried during movements.",
		},
	)

	// alertsRaised タイプ・優先度別のアラート発火件数
	alertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makiba_stock_alerts_raised_total",
			Help: "Total number of inventory alerts raised, by type and priority.",
		},
		[]string{"type", "priority"},
	)

	// alertsResolved 自動解決されたアラート件数
	alertsResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "makiba_stock_alerts_resolved_total",
			Help: "Total number of inventory alerts auto-resolved.",
		},
	)

	// reordersTriggered 自動発注の作成件数
	reordersTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "makiba_stock_reorders_triggered_total",
			Help: "Total number of automatic purchase orders created.",
		},
	)

	// sweepDuration アラートスイープの所要時間
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "makiba_stock_alert_sweep_duration_seconds",
			Help:    "Duration of full alert sweeps in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		movementsTotal,
		movementConflicts,
		alertsRaised,
		alertsResolved,
		reordersTriggered,
		sweepDuration,
	)
}
