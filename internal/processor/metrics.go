package processor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelPriority  = "priority"
	labelAction    = "action"
	labelRationale = "rationale"
)

var (
	metricQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Current number of queued tasks by priority class, sampled on each pop",
		},
		[]string{labelPriority},
	)

	metricTaskOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_task_outcomes_total",
			Help: "Count of finalized tasks by action and outcome rationale",
		},
		[]string{labelAction, labelRationale},
	)
)
