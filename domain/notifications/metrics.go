package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotwise",
		Subsystem: "notifications",
		Name:      "enqueued_total",
		Help:      "Notification jobs enqueued, by template.",
	}, []string{"template"})

	sentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotwise",
		Subsystem: "notifications",
		Name:      "sent_total",
		Help:      "Notification jobs delivered successfully, by template.",
	}, []string{"template"})

	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slotwise",
		Subsystem: "notifications",
		Name:      "failed_total",
		Help:      "Notification send attempts that failed, by template.",
	}, []string{"template"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "slotwise",
		Subsystem: "notifications",
		Name:      "queue_depth",
		Help:      "Notification jobs currently in the queue, by status.",
	}, []string{"status"})
)
