package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crm_bridge_backend/internal/events"
	"crm_bridge_backend/platform/logger"
)

type fakeMailer struct {
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeMailer) Send(ctx context.Context, subject, htmlBody string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, htmlBody)
	return nil
}

func newTestNotifier(mailer *fakeMailer) (*Notifier, events.Bus) {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	n := NewNotifier(mailer, log)
	n.Subscribe(bus)
	return n, bus
}

func TestAuthFailureTriggersAlert(t *testing.T) {
	mailer := &fakeMailer{}
	_, bus := newTestNotifier(mailer)

	err := bus.PublishSync(context.Background(), events.WebhookAuthFailed{
		BaseEvent: events.NewBaseEvent(),
		Source:    "hotmart",
		SourceIP:  "203.0.113.9",
		Path:      "/api/v1/hotmart/webhook",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mailer.subjects) != 1 {
		t.Fatalf("expected one alert, got %d", len(mailer.subjects))
	}
	if !strings.Contains(mailer.subjects[0], "hotmart") {
		t.Fatalf("subject must name the source, got %q", mailer.subjects[0])
	}
	if !strings.Contains(mailer.bodies[0], "203.0.113.9") {
		t.Fatalf("body must include the source ip, got %q", mailer.bodies[0])
	}
}

func TestProcessingFailureTriggersAlert(t *testing.T) {
	mailer := &fakeMailer{}
	_, bus := newTestNotifier(mailer)

	err := bus.PublishSync(context.Background(), events.WebhookProcessingFailed{
		BaseEvent: events.NewBaseEvent(),
		Source:    "hotmart",
		EventType: "PURCHASE_APPROVED",
		WebhookID: "wh-9",
		Reason:    "bitrix unavailable",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mailer.subjects) != 1 || !strings.Contains(mailer.subjects[0], "PURCHASE_APPROVED") {
		t.Fatalf("unexpected subjects %v", mailer.subjects)
	}
	if !strings.Contains(mailer.bodies[0], "bitrix unavailable") {
		t.Fatalf("body must include the failure reason, got %q", mailer.bodies[0])
	}
}

func TestMailerFailureIsSwallowed(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	_, bus := newTestNotifier(mailer)

	err := bus.PublishSync(context.Background(), events.WebhookAuthFailed{
		BaseEvent: events.NewBaseEvent(),
		Source:    "hotmart",
	})
	if err != nil {
		t.Fatalf("mailer failure must not propagate: %v", err)
	}
}
