package taskqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "market_watcher_taskqueue_"

type Metrics struct {
	tasksSucceeded   *prometheus.CounterVec
	tasksFailed      *prometheus.CounterVec
	tasksDeadLetters prometheus.Counter
}

var m = &Metrics{
	tasksSucceeded: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "tasks_succeeded",
		Help: "Number of tasks executed successfully, grouped by queue",
	}, []string{"queue"}),
	tasksFailed: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "tasks_failed",
		Help: "Number of failed task executions, grouped by queue",
	}, []string{"queue"}),
	tasksDeadLetters: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "tasks_dead_lettered",
		Help: "Number of tasks that exhausted their retry budget",
	}),
}

func GetMetrics() *Metrics {
	return m
}

func (m *Metrics) RecordTaskSucceeded(queue string) {
	m.tasksSucceeded.WithLabelValues(queue).Inc()
}

func (m *Metrics) RecordTaskFailed(queue string) {
	m.tasksFailed.WithLabelValues(queue).Inc()
}

func (m *Metrics) RecordTaskDeadLettered() {
	m.tasksDeadLetters.Inc()
}
