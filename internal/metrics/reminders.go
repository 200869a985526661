package metrics

import (
	"time"

	"github.com/kmilewski/zlot/internal/domain"
	"github.com/kmilewski/zlot/internal/smtp"
)

// ReminderSent records a successful reminder delivery.
func ReminderSent(kind domain.ReminderKind) {
	RemindersSentTotal.WithLabelValues(kind.String()).Inc()
}

// ReminderFailed records a failed send attempt.
func ReminderFailed(kind domain.ReminderKind, errKind smtp.ErrorKind) {
	ReminderSendFailuresTotal.WithLabelValues(kind.String(), string(errKind)).Inc()
}

// SMTPSendObserved records the duration of one full SMTP exchange.
func SMTPSendObserved(d time.Duration) {
	SMTPSendDuration.Observe(d.Seconds())
}

// SchedulerRun records one completed reminder pass.
func SchedulerRun(clean bool) {
	status := "ok"
	if !clean {
		status = "with_errors"
	}
	SchedulerRunsTotal.WithLabelValues(status).Inc()
}
