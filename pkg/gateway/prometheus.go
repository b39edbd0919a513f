package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	promNamespace = "mq_gateway"

	operationLabel = "operation"
	successLabel   = "success"
)

var (
	operationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "operations_total",
		Help:      "Queue operations performed by the gateway, by operation and outcome",
	}, []string{operationLabel, successLabel})

	reconnectCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "reconnect_attempts_total",
		Help:      "The number of reconnection attempts made by the gateway",
	})
)

func observeOperation(operation string, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	operationCounter.WithLabelValues(operation, success).Inc()
}
