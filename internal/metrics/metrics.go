// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Booking outcomes recorded by the reservation coordinator.
const (
	OutcomeCreated        = "created"
	OutcomeNoMatchingSlot = "no_matching_slot"
	OutcomeAlreadyBooked  = "already_booked"
	OutcomeInvalid        = "invalid_request"
	OutcomeError          = "error"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtbook_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtbook_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	BookingAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtbook_booking_attempts_total",
			Help: "Booking creation attempts by claim mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtbook_booking_transitions_total",
			Help: "Applied booking status transitions.",
		},
		[]string{"from", "to"},
	)

	SlotLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courtbook_slot_lock_wait_seconds",
			Help:    "Time spent waiting for a per-slot lock in locked claim mode.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtbook_scheduler_job_runs_total",
			Help: "Scheduled job executions by job name and result.",
		},
		[]string{"job", "result"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtbook_notifications_sent_total",
			Help: "Notification emails by kind and result.",
		},
		[]string{"kind", "status"},
	)

	LoginThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtbook_login_throttled_total",
			Help: "Login attempts rejected by the rate limiter.",
		},
	)
)

func RecordHTTPRequest(method, route, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func RecordBookingAttempt(mode, outcome string) {
	BookingAttempts.WithLabelValues(mode, outcome).Inc()
}

func RecordTransition(from, to string) {
	BookingTransitions.WithLabelValues(from, to).Inc()
}

func RecordJobRun(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SchedulerJobRuns.WithLabelValues(job, result).Inc()
}

func RecordNotification(kind string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	NotificationsSent.WithLabelValues(kind, status).Inc()
}
