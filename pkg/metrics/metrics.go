package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking metrics
	BookingsCreated         prometheus.Counter
	BookingConflicts        *prometheus.CounterVec
	BookingsCancelled       prometheus.Counter
	ReminderEnqueueFailures prometheus.Counter

	// Lock metrics
	LockAcquireLatency prometheus.Histogram
	LockUnavailable    prometheus.Counter

	// Notification job metrics
	JobsProcessed    *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	QueueDepth       *prometheus.GaugeVec
	JobsEnqueued     *prometheus.CounterVec
	JobsRemoved      *prometheus.CounterVec
	MalformedPayload *prometheus.CounterVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them with reg.
// A nil registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BookingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_created_total",
			Help:      "Total number of appointments successfully booked",
		}),
		BookingConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "booking_conflicts_total",
			Help:      "Total number of bookings rejected because of an overlapping appointment",
		}, []string{"dimension"}),
		BookingsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_cancelled_total",
			Help:      "Total number of cancelled appointments",
		}),
		ReminderEnqueueFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reminder_enqueue_failures_total",
			Help:      "Total number of booked appointments whose reminder could not be enqueued",
		}),

		LockAcquireLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lock_acquire_duration_seconds",
			Help:      "Time spent waiting for a booking lock",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		LockUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lock_unavailable_total",
			Help:      "Total number of lock acquisitions that timed out",
		}),

		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_processed_total",
			Help:      "Total number of notification jobs handled, by outcome",
		}, []string{"job_type", "outcome"}),
		DeliveryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering a notification",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"job_type"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Current number of jobs waiting in a queue",
		}, []string{"queue"}),
		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_enqueued_total",
			Help:      "Total number of jobs pushed to a queue",
		}, []string{"queue", "job_type"}),
		JobsRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jobs_removed_total",
			Help:      "Total number of jobs removed from a queue before delivery",
		}, []string{"queue"}),
		MalformedPayload: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "malformed_payloads_total",
			Help:      "Total number of undecodable queue payloads that were dropped",
		}, []string{"queue"}),

		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),
	}
}

// New returns unregistered metrics, useful for tests and short lived tools.
func New(namespace string) *Metrics {
	return NewMetrics(nil, namespace, "")
}
