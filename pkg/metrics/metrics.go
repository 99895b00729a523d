package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersProcessed counts total executed orders by side (buy/sell)
var OrdersProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "commodity_exchange_orders_processed_total",
		Help: "Total number of orders executed by the engine",
	},
	[]string{"side"},
)

// OrdersRejected counts rejected order placements by error kind
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "commodity_exchange_orders_rejected_total",
		Help: "Total number of order placements rejected by the engine",
	},
	[]string{"reason"},
)

// OrderLatency records latency distribution for order execution
var OrderLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "commodity_exchange_order_execution_latency_seconds",
		Help:    "Latency in seconds to execute individual orders",
		Buckets: prometheus.DefBuckets,
	},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "commodity_exchange_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "commodity_exchange_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(OrdersProcessed, OrdersRejected, OrderLatency)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
}
