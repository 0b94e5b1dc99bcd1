package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	taskScheduler = "task_scheduler"

	// Coordinator metrics
	jobsLeasedTotal   = "jobs_leased_total"
	assignFailedTotal = "assign_failed_total"

	// Worker metrics
	taskExecutionsTotal = "task_executions_total"
	PoolQueueDepth      = "worker_pool_queue_depth"

	// Reaper metrics
	leasesReapedTotal = "leases_reaped_total"

	// Labels
	executionResultLabel = "result"
)

// Execution result label values.
const (
	ResultCompleted      = "completed"
	ResultAdvanced       = "advanced"
	ResultRetryScheduled = "retry_scheduled"
	ResultReleased       = "released"
	ResultFailed         = "failed"
)

var taskExecutionLabels = []string{
	executionResultLabel,
}

/**
* Metrics definition
**/
var jobsLeasedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: taskScheduler,
		Name:      jobsLeasedTotal,
		Help:      "number of jobs leased to workers",
	},
)

var assignFailedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: taskScheduler,
		Name:      assignFailedTotal,
		Help:      "number of lease assignments that failed and were compensated",
	},
)

var taskExecutionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: taskScheduler,
		Name:      taskExecutionsTotal,
		Help:      "number of task executions partitioned by outcome",
	},
	taskExecutionLabels,
)

var poolQueueDepthMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: taskScheduler,
		Name:      PoolQueueDepth,
		Help:      "number of job executions waiting in the worker pool queue",
	},
)

var leasesReapedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: taskScheduler,
		Name:      leasesReapedTotal,
		Help:      "number of expired leases released by the reaper",
	},
)

func IncreaseJobsLeasedTotalMetric() {
	jobsLeasedTotalMetric.Inc()
}

func IncreaseAssignFailedTotalMetric() {
	assignFailedTotalMetric.Inc()
}

func IncreaseTaskExecutionsTotalMetric(result string) {
	labels := prometheus.Labels{
		executionResultLabel: result,
	}
	taskExecutionsTotalMetric.With(labels).Inc()
}

func UpdatePoolQueueDepthMetric(depth int) {
	poolQueueDepthMetric.Set(float64(depth))
}

func AddLeasesReapedTotalMetric(count int64) {
	leasesReapedTotalMetric.Add(float64(count))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsLeasedTotalMetric)
	prometheus.MustRegister(assignFailedTotalMetric)
	prometheus.MustRegister(taskExecutionsTotalMetric)
	prometheus.MustRegister(poolQueueDepthMetric)
	prometheus.MustRegister(leasesReapedTotalMetric)
}
