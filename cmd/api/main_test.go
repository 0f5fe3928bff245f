package main

import (
	"context"
	"testing"

	appconfig "github.com/opdesk/clinic-queue/internal/config"
	"github.com/opdesk/clinic-queue/internal/notify"
	"github.com/opdesk/clinic-queue/pkg/logging"
)

func TestNewEmailSenderDefaultsToStub(t *testing.T) {
	logger := logging.New("error")

	sender := newEmailSender(context.Background(), &appconfig.Config{}, logger)
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender when no provider is configured, got %T", sender)
	}
}

func TestNewEmailSenderSendGridWithoutKeyFallsBack(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{EmailProvider: "sendgrid"}

	sender := newEmailSender(context.Background(), cfg, logger)
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected fallback to stub when sendgrid has no API key, got %T", sender)
	}
}

func TestNewEmailSenderSendGrid(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{
		EmailProvider:     "sendgrid",
		SendGridAPIKey:    "SG.test",
		SendGridFromEmail: "clinic@example.com",
	}

	sender := newEmailSender(context.Background(), cfg, logger)
	if _, ok := sender.(*notify.SendGridSender); !ok {
		t.Fatalf("expected sendgrid sender, got %T", sender)
	}
}

func TestSplitOrigins(t *testing.T) {
	if got := splitOrigins(""); got != nil {
		t.Fatalf("expected nil for empty origins, got %v", got)
	}
	got := splitOrigins("https://a.example,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" {
		t.Fatalf("unexpected origins: %v", got)
	}
}
