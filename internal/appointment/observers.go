package appointment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// AuditObserver appends every dispatched event to the event_logs table.
// It runs after the booking transaction commits, so an audit failure is
// reported by the dispatcher but never rolls back the booking.
type AuditObserver struct {
	repo Repository
}

func NewAuditObserver(repo Repository) *AuditObserver {
	return &AuditObserver{repo: repo}
}

func (o *AuditObserver) Handle(ctx context.Context, ev DomainEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	subject := ev.Subject()
	return o.repo.InsertEvent(ctx, EventLog{
		EventType:     ev.Name(),
		AppointmentID: &subject,
		Payload:       payload,
		CreatedAt:     ev.OccurredOn(),
	})
}

// NotificationObserver emits a structured notification record per event.
// Concrete delivery channels (email, SMS) hang off this log downstream.
type NotificationObserver struct {
	log *logrus.Logger
}

func NewNotificationObserver(log *logrus.Logger) *NotificationObserver {
	return &NotificationObserver{log: log}
}

func (o *NotificationObserver) Handle(ctx context.Context, ev DomainEvent) error {
	entry := o.log.WithFields(logrus.Fields{
		"event":          ev.Name(),
		"event_id":       ev.ID(),
		"appointment_id": ev.Subject(),
	})

	switch e := ev.(type) {
	case *AppointmentCreated:
		entry.WithField("scheduled_for", e.ScheduledFor).Info("notify: appointment booked")
	case *AppointmentConfirmed:
		entry.Info("notify: appointment confirmed")
	case *AppointmentCancelled:
		entry.WithField("reason", e.Reason).Info("notify: appointment cancelled")
	case *AppointmentCompleted:
		entry.Info("notify: appointment completed")
	case *AppointmentNoShow:
		entry.Info("notify: patient did not attend")
	case *AppointmentReminderDue:
		entry.WithField("scheduled_for", e.ScheduledFor).Info("notify: appointment reminder")
	default:
		entry.Info("notify: appointment update")
	}

	return nil
}

// RegisterDefaultObservers wires the standard observer set for every
// lifecycle event. Called once at process start, before any dispatch.
func RegisterDefaultObservers(d *Dispatcher, repo Repository, log *logrus.Logger) {
	audit := NewAuditObserver(repo)
	notify := NewNotificationObserver(log)

	for _, name := range []string{
		EventAppointmentCreated,
		EventAppointmentConfirmed,
		EventAppointmentCancelled,
		EventAppointmentCompleted,
		EventAppointmentNoShow,
		EventAppointmentReminderDue,
	} {
		d.Register(name, audit)
		d.Register(name, notify)
	}
}
