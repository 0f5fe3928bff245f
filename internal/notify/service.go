// Package notify dispatches patient-facing notifications after scheduling
// state changes. Dispatch is fire-and-forget from the scheduler's point of
// view: a failed notification is logged and counted, never rolled back into
// the already-committed booking.
package notify

import (
	"context"
	"fmt"

	"github.com/opdesk/clinic-queue/pkg/logging"
)

// Template keys understood by the dispatcher. Callers pass a key rather than
// message text so channels can localize and format independently.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateStatusChanged    = "status_changed"
	TemplateBreakDeclared    = "break_declared"
)

// Notification identifies one message to one recipient about one appointment.
type Notification struct {
	AppointmentID  string
	RecipientEmail string
	RecipientName  string
	TemplateKey    string
	// Fields fills template placeholders: token, time label, doctor name,
	// new status, and so on.
	Fields map[string]string
}

// Service renders templates and hands messages to the configured sender.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification dispatcher. A nil email sender disables
// delivery; Dispatch then only logs.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, logger: logger}
}

// Dispatch sends one notification. Errors are returned for observability but
// callers on the booking path must treat them as advisory.
func (s *Service) Dispatch(ctx context.Context, n Notification) error {
	subject, body, err := render(n)
	if err != nil {
		s.logger.Error("notify: render failed", "template", n.TemplateKey, "appointment_id", n.AppointmentID, "error", err)
		return err
	}

	if s.email == nil || n.RecipientEmail == "" {
		s.logger.Debug("notify: delivery skipped", "template", n.TemplateKey, "appointment_id", n.AppointmentID)
		return nil
	}

	err = s.email.Send(ctx, EmailMessage{
		To:      n.RecipientEmail,
		ToName:  n.RecipientName,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		s.logger.Error("notify: send failed", "template", n.TemplateKey, "appointment_id", n.AppointmentID, "error", err)
		return err
	}
	return nil
}

func render(n Notification) (subject, body string, err error) {
	f := n.Fields
	if f == nil {
		f = map[string]string{}
	}
	switch n.TemplateKey {
	case TemplateBookingConfirmed:
		subject = fmt.Sprintf("Appointment confirmed: token %s", f["token"])
		body = fmt.Sprintf("Your appointment with %s is confirmed for %s at %s. Your queue token is %s.",
			f["doctor"], f["date"], f["time"], f["token"])
	case TemplateStatusChanged:
		subject = fmt.Sprintf("Appointment update: token %s", f["token"])
		body = fmt.Sprintf("Your appointment (token %s) on %s is now %s.",
			f["token"], f["date"], f["status"])
	case TemplateBreakDeclared:
		subject = "Your appointment time has shifted"
		body = fmt.Sprintf("The doctor has a break on %s; your appointment (token %s) may run about %s minutes later.",
			f["date"], f["token"], f["shift_minutes"])
	default:
		return "", "", fmt.Errorf("notify: unknown template %q", n.TemplateKey)
	}
	return subject, body, nil
}
