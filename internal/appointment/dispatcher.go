package appointment

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Handler reacts to a single dispatched domain event.
type Handler interface {
	Handle(ctx context.Context, ev DomainEvent) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev DomainEvent) error

func (f HandlerFunc) Handle(ctx context.Context, ev DomainEvent) error {
	return f(ctx, ev)
}

// Dispatcher routes domain events to handlers registered per event name.
// Registration happens once at process start; dispatch may then be called
// from any goroutine. Handlers run in registration order and a failing
// handler is logged and skipped, never escalated to the caller.
type Dispatcher struct {
	log      *logrus.Logger
	handlers map[string][]Handler
}

func NewDispatcher(log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

func (d *Dispatcher) Register(eventName string, h Handler) {
	d.handlers[eventName] = append(d.handlers[eventName], h)
}

// Dispatch delivers one event to every handler registered for its name.
// Delivery is best effort: each handler gets its attempt regardless of
// earlier failures.
func (d *Dispatcher) Dispatch(ctx context.Context, ev DomainEvent) {
	for _, h := range d.handlers[ev.Name()] {
		if err := h.Handle(ctx, ev); err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"event":    ev.Name(),
				"event_id": ev.ID(),
				"subject":  ev.Subject(),
			}).Warn("event handler failed")
		}
	}
}

// DispatchAll processes the events in emission order.
func (d *Dispatcher) DispatchAll(ctx context.Context, events []DomainEvent) {
	for _, ev := range events {
		d.Dispatch(ctx, ev)
	}
}
