package pool

import "github.com/prometheus/client_golang/prometheus"

var (
	poolInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "depot_pool_in_flight",
			Help: "Workers currently executing per backend pool.",
		},
		[]string{"backend"},
	)

	poolQueued = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "depot_pool_queued",
			Help: "Units of work awaiting admission per backend pool.",
		},
		[]string{"backend"},
	)

	poolTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depot_pool_tasks_total",
			Help: "Total units of work admitted per backend pool.",
		},
		[]string{"backend"},
	)

	poolPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depot_pool_worker_panics_total",
			Help: "Worker panics recovered per backend pool.",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(poolInFlight)
	prometheus.MustRegister(poolQueued)
	prometheus.MustRegister(poolTasks)
	prometheus.MustRegister(poolPanics)
}
