package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// MetricsHandler serves queue metrics as JSON. The Prometheus
// exposition lives at /metrics; this endpoint feeds the admin UI.
type MetricsHandler struct {
	db *bun.DB
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(db *bun.DB) *MetricsHandler {
	return &MetricsHandler{db: db}
}

// NotificationQueueMetrics summarizes the notification job queue.
type NotificationQueueMetrics struct {
	Pending     int64  `json:"pending"`
	Processing  int64  `json:"processing"`
	Completed   int64  `json:"completed"`
	Failed      int64  `json:"failed"`
	Total       int64  `json:"total"`
	LastHour    int64  `json:"last_hour"`
	Last24Hours int64  `json:"last_24_hours"`
	Timestamp   string `json:"timestamp"`
}

// NotificationMetrics handles GET /api/metrics/notifications
func (h *MetricsHandler) NotificationMetrics(c echo.Context) error {
	var m NotificationQueueMetrics
	err := h.db.NewRaw(`
		SELECT
			count(*) FILTER (WHERE status = 'pending')    AS pending,
			count(*) FILTER (WHERE status = 'processing') AS processing,
			count(*) FILTER (WHERE status = 'completed')  AS completed,
			count(*) FILTER (WHERE status = 'failed')     AS failed,
			count(*)                                      AS total,
			count(*) FILTER (WHERE created_at > now() - interval '1 hour')  AS last_hour,
			count(*) FILTER (WHERE created_at > now() - interval '24 hours') AS last_24_hours
		FROM core.notification_jobs
	`).Scan(c.Request().Context(), &m)
	if err != nil {
		return err
	}
	m.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return c.JSON(http.StatusOK, m)
}
