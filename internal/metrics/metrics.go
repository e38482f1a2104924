package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisly",
			Name:      "appointment_created_total",
			Help:      "Count of appointments created by source.",
		},
		[]string{"source"},
	)

	appointmentCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisly",
			Name:      "appointment_cancelled_total",
			Help:      "Count of appointments cancelled.",
		},
	)

	appointmentRescheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisly",
			Name:      "appointment_rescheduled_total",
			Help:      "Count of appointments moved to a new slot.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisly",
			Name:      "booking_conflicts_total",
			Help:      "Count of booking attempts rejected because the slot was taken.",
		},
	)

	quotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisly",
			Name:      "quota_rejections_total",
			Help:      "Count of bookings rejected by the free-tier quota.",
		},
	)

	remindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisly",
			Name:      "reminders_sent_total",
			Help:      "Count of reminders sent by outcome.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisly",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	slotsComputed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "zapisly",
			Name:      "slots_per_day",
			Help:      "Distribution of slot counts per computed day.",
			Buckets:   []float64{0, 2, 5, 10, 15, 20, 30},
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentCreated, appointmentCancelled, appointmentRescheduled,
			bookingConflicts, quotaRejections, remindersSent, httpRequests, slotsComputed,
		)
	})
}

func IncAppointmentCreated(source string) {
	appointmentCreated.WithLabelValues(source).Inc()
}

func IncAppointmentCancelled() {
	appointmentCancelled.Inc()
}

func IncAppointmentRescheduled() {
	appointmentRescheduled.Inc()
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func IncQuotaRejection() {
	quotaRejections.Inc()
}

func IncReminderSent(status string) {
	remindersSent.WithLabelValues(status).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func ObserveSlotsComputed(n int) {
	slotsComputed.Observe(float64(n))
}
