package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Price = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_kusd_price",
		Help: "Observed KUSD price in collateral units",
	})

	DeviationPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_peg_deviation_pct",
		Help: "Absolute deviation from the 1.0 peg, percent",
	})

	ChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeper_checks_total",
		Help: "Number of check invocations",
	})

	ExecutionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeper_executions_total",
		Help: "Number of fully completed trade sequences",
	})

	FailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_failures_total",
		Help: "Failures by stage (oracle, simulation, execution)",
	}, []string{"stage"})

	LastProfit = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_last_profit_gem",
		Help: "Realized profit of the last execution in collateral base units",
	})

	CheckDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "keeper_check_duration_seconds",
		Help:    "Time spent in a single check cycle",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		Price,
		DeviationPct,
		ChecksTotal,
		ExecutionsTotal,
		FailuresTotal,
		LastProfit,
		CheckDuration,
	)
}
