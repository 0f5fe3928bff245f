package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opdesk/clinic-queue/internal/notify"
)

// OutboxDispatcher stores notifications instead of sending them inline; the
// Deliverer picks them up. It satisfies the booking service's Dispatcher.
type OutboxDispatcher struct {
	store *OutboxStore
}

// NewOutboxDispatcher wraps an outbox store as a notification dispatcher.
func NewOutboxDispatcher(store *OutboxStore) *OutboxDispatcher {
	if store == nil {
		panic("events: outbox store required")
	}
	return &OutboxDispatcher{store: store}
}

// Dispatch appends the notification to the outbox.
func (d *OutboxDispatcher) Dispatch(ctx context.Context, n notify.Notification) error {
	_, err := d.store.Insert(ctx, n.Fields["doctor"], eventTypeFor(n.TemplateKey), n)
	return err
}

func eventTypeFor(templateKey string) string {
	switch templateKey {
	case notify.TemplateBookingConfirmed:
		return TypeAppointmentBooked
	case notify.TemplateStatusChanged:
		return TypeStatusChanged
	case notify.TemplateBreakDeclared:
		return TypeBreakDeclared
	}
	return templateKey
}

// NotificationRelay is the delivery side: it turns outbox entries back into
// notifications and hands them to the real sender.
type NotificationRelay struct {
	sender interface {
		Dispatch(ctx context.Context, n notify.Notification) error
	}
}

// NewNotificationRelay wraps the synchronous notify service as an outbox
// delivery handler.
func NewNotificationRelay(sender *notify.Service) *NotificationRelay {
	if sender == nil {
		panic("events: notify service required")
	}
	return &NotificationRelay{sender: sender}
}

// Handle delivers one entry.
func (r *NotificationRelay) Handle(ctx context.Context, entry OutboxEntry) error {
	var n notify.Notification
	if err := json.Unmarshal(entry.Payload, &n); err != nil {
		return fmt.Errorf("events: unmarshal notification %s: %w", entry.ID, err)
	}
	return r.sender.Dispatch(ctx, n)
}
