package alerts

import (
	"context"
	"fmt"

	"crm_bridge_backend/internal/events"
	"crm_bridge_backend/platform/logger"
)

// Notifier turns webhook failure events into alert emails. Send failures
// are logged, never propagated: alerting must not destabilize the flow it
// watches.
type Notifier struct {
	mailer Mailer
	log    *logger.Logger
}

func NewNotifier(mailer Mailer, log *logger.Logger) *Notifier {
	return &Notifier{mailer: mailer, log: log}
}

// Subscribe registers the notifier on the event bus.
func (n *Notifier) Subscribe(bus events.Bus) {
	bus.Subscribe(events.WebhookAuthFailed{}.EventName(), events.HandlerFunc(n.onAuthFailed))
	bus.Subscribe(events.WebhookProcessingFailed{}.EventName(), events.HandlerFunc(n.onProcessingFailed))
}

func (n *Notifier) onAuthFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.WebhookAuthFailed)
	if !ok {
		return nil
	}

	subject := fmt.Sprintf("[%s webhook] token inválido o ausente", e.Source)
	body := fmt.Sprintf("<h2>Webhook rechazado</h2><p>Origen: %s</p><p>IP: %s</p><p>Ruta: %s</p><p>Fecha: %s</p>",
		e.Source, e.SourceIP, e.Path, e.OccurredAt().UTC().Format("2006-01-02 15:04:05"))

	n.deliver(ctx, subject, body)
	return nil
}

func (n *Notifier) onProcessingFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.WebhookProcessingFailed)
	if !ok {
		return nil
	}

	subject := fmt.Sprintf("[%s webhook] error al procesar %s", e.Source, e.EventType)
	body := fmt.Sprintf("<h2>Error de procesamiento</h2><p>Evento: %s</p><p>Webhook: %s</p><p>Motivo: %s</p><p>Fecha: %s</p>",
		e.EventType, e.WebhookID, e.Reason, e.OccurredAt().UTC().Format("2006-01-02 15:04:05"))

	n.deliver(ctx, subject, body)
	return nil
}

func (n *Notifier) deliver(ctx context.Context, subject, body string) {
	if err := n.mailer.Send(ctx, subject, body); err != nil {
		n.log.Error("alert email delivery failed", "subject", subject, "error", err)
	}
}
