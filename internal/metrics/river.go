package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Queued registration notifications, labelled by notification kind
// ("confirmation", "cancellation").
var (
	NotificationsQueued = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_queued_total",
			Help:      "Registration notifications handed to the job queue",
		},
		[]string{"notification"},
	)

	NotificationsInFlight = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_jobs_in_flight",
			Help:      "Registration notifications currently being delivered",
		},
		[]string{"notification"},
	)

	NotificationDeliveryDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_delivery_duration_seconds",
			Help:      "Time spent on one delivery attempt",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"notification"},
	)

	// NotificationAttempts result is "delivered" or "failed".
	NotificationAttempts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_delivery_attempts_total",
			Help:      "Delivery attempts by outcome",
		},
		[]string{"notification", "result"},
	)
)

// RiverMetricsHook records notification job metrics from River's insert and
// work hooks.
type RiverMetricsHook struct {
	river.HookDefaults

	mu      sync.Mutex
	started map[int64]time.Time
}

func NewRiverMetricsHook() *RiverMetricsHook {
	return &RiverMetricsHook{started: make(map[int64]time.Time)}
}

func (h *RiverMetricsHook) InsertBegin(_ context.Context, params *rivertype.JobInsertParams) error {
	NotificationsQueued.WithLabelValues(notificationLabel(params.Kind)).Inc()
	return nil
}

func (h *RiverMetricsHook) WorkBegin(_ context.Context, job *rivertype.JobRow) error {
	NotificationsInFlight.WithLabelValues(notificationLabel(job.Kind)).Inc()
	h.mu.Lock()
	h.started[job.ID] = time.Now()
	h.mu.Unlock()
	return nil
}

func (h *RiverMetricsHook) WorkEnd(_ context.Context, job *rivertype.JobRow, err error) error {
	label := notificationLabel(job.Kind)
	NotificationsInFlight.WithLabelValues(label).Dec()

	h.mu.Lock()
	start, ok := h.started[job.ID]
	delete(h.started, job.ID)
	h.mu.Unlock()
	if ok {
		NotificationDeliveryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}

	result := "delivered"
	if err != nil {
		result = "failed"
	}
	NotificationAttempts.WithLabelValues(label, result).Inc()
	return nil
}

func notificationLabel(kind string) string {
	return strings.TrimPrefix(kind, "registration_")
}
