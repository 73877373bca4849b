package hotmart

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"crm_bridge_backend/internal/audit"
	"crm_bridge_backend/internal/bitrix"
	"crm_bridge_backend/internal/pipeline"
	"crm_bridge_backend/platform/logger"
)

// Spanish statuses returned to the webhook caller. Hotmart's retry logic
// only looks at the HTTP code, the statuses exist for operators reading
// the response and the audit trail.
const (
	StatusProcessed        = "compra procesada"
	StatusIncomplete       = "datos incompletos"
	StatusCancellation     = "cancelación registrada"
	StatusDelayed          = "pago atrasado registrado"
	StatusBillet           = "boleto registrado"
	StatusSubCancellation  = "cancelación de suscripción registrada"
	StatusSubReactivation  = "reactivación de suscripción registrada"
	StatusPlanSwitch       = "cambio de plan registrado"
	StatusUnhandled        = "evento no procesado"
)

// Activity subjects and prefixes per event family.
const (
	subjectPurchase     = "Compra Hotmart"
	subjectCancellation = "Cancelación Hotmart"
	subjectAlert        = "Alerta de pago Hotmart"
	subjectInfo         = "Información de pago Hotmart"
	subjectSubscription = "Suscripción Hotmart"

	prefixPurchase     = "Hotmart: "
	prefixCancellation = "Hotmart Cancelación: "
	prefixAlert        = "Hotmart Alerta: "
	prefixInfo         = "Hotmart Info: "
	prefixSubscription = "Hotmart Suscripción: "
	prefixClub         = "Hotmart Club: "
)

const followUpDays = 3

// CRMGateway is the slice of the Bitrix gateway the sales processor needs.
type CRMGateway interface {
	FindContactByPhoneOrEmail(ctx context.Context, phoneNumber, email string) (*bitrix.Contact, error)
	CreateContact(ctx context.Context, name, phoneNumber string) (string, error)
	FindNegotiation(ctx context.Context, contactID string, category int) (*bitrix.Deal, error)
	CreateNegotiation(ctx context.Context, params bitrix.CreateNegotiationParams) (string, error)
	UpdateNegotiationStage(ctx context.Context, dealID, stageID string, purchase bitrix.PurchaseFields) error
	LogActivity(ctx context.Context, dealID string, note bitrix.ActivityNote) error
	CreateFollowUpTask(ctx context.Context, dealID, title, description, deadline string) (int64, error)
}

// AuditRecorder persists one audit entry per processed event.
type AuditRecorder interface {
	Record(ctx context.Context, rec audit.Record) (*audit.Entry, error)
}

// Result is the processing outcome reported back to the webhook caller.
// TaskID is never omitted: an explicit null tells the caller task creation
// did not produce an identifier.
type Result struct {
	Status    string `json:"status"`
	ContactID string `json:"contactId,omitempty"`
	DealID    string `json:"dealId,omitempty"`
	TaskID    *int64 `json:"taskId"`
	Product   string `json:"producto,omitempty"`
	Event     string `json:"evento,omitempty"`
	Detail    string `json:"detalle,omitempty"`
}

// Meta carries request-scoped context for the audit trail.
type Meta struct {
	SourceIP string
}

// Service turns Hotmart sales events into Bitrix contact, deal, activity
// and task mutations. Each call is independent; idempotency comes from the
// gateway's search-before-create, not from shared state.
type Service struct {
	crm       CRMGateway
	pipelines *pipeline.Resolver
	auditor   AuditRecorder
	log       *logger.Logger
	now       func() time.Time
}

func NewService(crm CRMGateway, pipelines *pipeline.Resolver, auditor AuditRecorder, log *logger.Logger) *Service {
	return &Service{crm: crm, pipelines: pipelines, auditor: auditor, log: log, now: time.Now}
}

// Process dispatches an event to its handler. Unknown event types are not
// errors, Hotmart adds types over time and unhandled ones must not trigger
// retries.
func (s *Service) Process(ctx context.Context, evt *Event, meta Meta) (*Result, error) {
	started := s.now()

	switch evt.Event {
	case "PURCHASE_COMPLETE", "PURCHASE_APPROVED":
		return s.handlePurchase(ctx, evt, meta, started)
	case "PURCHASE_CANCELED", "PURCHASE_REFUNDED", "PURCHASE_CHARGEBACK":
		return s.handlePurchaseRejected(ctx, evt, meta, started)
	case "PURCHASE_DELAYED", "PURCHASE_PROTEST":
		return s.handleActivityOnly(ctx, evt, subjectAlert, prefixAlert, s.delayedMessage(evt), StatusDelayed)
	case "PURCHASE_BILLET_PRINTED":
		message := fmt.Sprintf("Boleto impreso para %s. Transacción: %s.",
			evt.Data.ProductName(), evt.Data.Purchase.TransactionID())
		return s.handleActivityOnly(ctx, evt, subjectInfo, prefixInfo, message, StatusBillet)
	case "SUBSCRIPTION_CANCELLATION":
		return s.handleSubscriptionCancellation(ctx, evt, meta, started)
	case "SUBSCRIPTION_REACTIVATION":
		message := fmt.Sprintf("Suscripción reactivada. Plan: %s.", evt.Data.PlanName())
		return s.handleActivityOnly(ctx, evt, subjectSubscription, prefixSubscription, message, StatusSubReactivation)
	case "SWITCH_PLAN":
		message := fmt.Sprintf("Cambio de plan. Nuevo plan: %s.", evt.Data.PlanName())
		return s.handleActivityOnly(ctx, evt, subjectSubscription, prefixClub, message, StatusPlanSwitch)
	default:
		s.log.Warn("unhandled hotmart event", "event", evt.Event)
		return &Result{Status: StatusUnhandled, Event: evt.Event}, nil
	}
}

// pipelineFor maps the product to its pipeline, falling back to the default
// pipeline when the product id is unmapped.
func (s *Service) pipelineFor(product *Product) pipeline.Pipeline {
	if product != nil {
		if p, ok := s.pipelines.ForProduct(strconv.FormatInt(product.ID, 10)); ok {
			return p
		}
		s.log.Warn("product without pipeline binding, using fallback", "productId", product.ID)
	}
	p, _ := s.pipelines.RejectedFallback()
	return p
}

func (s *Service) handlePurchase(ctx context.Context, evt *Event, meta Meta, started time.Time) (*Result, error) {
	buyer, product := evt.Data.Buyer, evt.Data.Product
	if buyer == nil || product == nil {
		s.log.Warn("purchase event with incomplete payload", "event", evt.Event, "webhookId", evt.ID)
		return &Result{Status: StatusIncomplete}, nil
	}

	// Pipeline first: the deal search must be scoped to this product's
	// category, a contact active in several funnels would otherwise match
	// an unrelated negotiation.
	pl := s.pipelineFor(product)
	category, _ := s.pipelines.Category(pl)
	stage, _ := s.pipelines.StageForApproved(pl)

	contactID, dealID, created, err := s.resolveContactAndDeal(ctx, buyer, evt, category, stage, bitrix.OutcomeApproved)
	if err != nil {
		return nil, err
	}

	amount, currency := evt.Data.Purchase.Amount()
	transaction := evt.Data.Purchase.TransactionID()

	if !created {
		if err := s.crm.UpdateNegotiationStage(ctx, dealID, stage, s.purchaseFields(evt, bitrix.OutcomeApproved)); err != nil {
			return nil, err
		}
	}

	message := fmt.Sprintf("Compra aprobada. Producto: %s. Transacción: %s. Monto: %.2f %s. Método de pago: %s.",
		product.Name, transaction, amount, currency, paymentMethod(evt.Data.Purchase))
	if err := s.crm.LogActivity(ctx, dealID, bitrix.ActivityNote{
		Subject: subjectPurchase,
		Prefix:  prefixPurchase,
		Message: message,
	}); err != nil {
		return nil, err
	}

	taskID := s.createFollowUpTask(ctx, dealID,
		"Seguimiento post-compra: "+buyer.Name,
		fmt.Sprintf("Contactar a %s (%s) por la compra de %s. Transacción: %s.",
			buyer.Name, buyer.Email, product.Name, transaction))

	if err := s.recordPurchaseAudit(ctx, evt, meta, started, "compra_procesada", contactID, dealID, taskID); err != nil {
		return nil, err
	}

	return &Result{
		Status:    StatusProcessed,
		ContactID: contactID,
		DealID:    dealID,
		TaskID:    taskID,
		Product:   product.Name,
	}, nil
}

func (s *Service) handlePurchaseRejected(ctx context.Context, evt *Event, meta Meta, started time.Time) (*Result, error) {
	buyer, product := evt.Data.Buyer, evt.Data.Product
	if buyer == nil || product == nil {
		s.log.Warn("rejection event with incomplete payload", "event", evt.Event, "webhookId", evt.ID)
		return &Result{Status: StatusIncomplete}, nil
	}

	pl := s.pipelineFor(product)
	category, _ := s.pipelines.Category(pl)
	stage, _ := s.pipelines.StageForRejected(pl)

	contactID, dealID, created, err := s.resolveContactAndDeal(ctx, buyer, evt, category, stage, bitrix.OutcomeRejected)
	if err != nil {
		return nil, err
	}

	if !created {
		if err := s.crm.UpdateNegotiationStage(ctx, dealID, stage, s.purchaseFields(evt, bitrix.OutcomeRejected)); err != nil {
			return nil, err
		}
	}

	message := fmt.Sprintf("Compra %s. Producto: %s. Transacción: %s.",
		rejectionLabel(evt.Event), product.Name, evt.Data.Purchase.TransactionID())
	if err := s.crm.LogActivity(ctx, dealID, bitrix.ActivityNote{
		Subject: subjectCancellation,
		Prefix:  prefixCancellation,
		Message: message,
	}); err != nil {
		return nil, err
	}

	taskID := s.createFollowUpTask(ctx, dealID,
		"Contactar por cancelación: "+buyer.Name,
		fmt.Sprintf("La compra de %s fue %s. Contactar a %s (%s) para entender el motivo y ofrecer alternativas.",
			product.Name, rejectionLabel(evt.Event), buyer.Name, buyer.Email))

	if err := s.recordPurchaseAudit(ctx, evt, meta, started, "compra_cancelada", contactID, dealID, taskID); err != nil {
		return nil, err
	}

	return &Result{
		Status:    StatusCancellation,
		ContactID: contactID,
		DealID:    dealID,
		TaskID:    taskID,
		Product:   product.Name,
	}, nil
}

// handleActivityOnly covers the event types that only annotate an existing
// negotiation. Nothing is created and nothing moves stage; a missing contact
// or deal is a data gap, not an error.
func (s *Service) handleActivityOnly(ctx context.Context, evt *Event, subject, prefix, message, status string) (*Result, error) {
	identityName, identityEmail, identityPhone := eventIdentity(evt)
	if identityEmail == "" && identityPhone == "" {
		s.log.Warn("activity event without identity", "event", evt.Event, "webhookId", evt.ID)
		return &Result{Status: StatusIncomplete}, nil
	}

	contact, err := s.crm.FindContactByPhoneOrEmail(ctx, identityPhone, identityEmail)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		s.log.Info("activity event for unknown contact", "event", evt.Event, "email", identityEmail)
		return &Result{Status: status, Detail: "contacto no encontrado"}, nil
	}

	pl := s.pipelineFor(evt.Data.Product)
	category, _ := s.pipelines.Category(pl)

	deal, err := s.crm.FindNegotiation(ctx, contact.ID, category)
	if err != nil {
		return nil, err
	}
	if deal == nil {
		s.log.Info("activity event without open negotiation", "event", evt.Event, "contactId", contact.ID)
		return &Result{Status: status, ContactID: contact.ID, Detail: "negociación no encontrada"}, nil
	}

	if err := s.crm.LogActivity(ctx, deal.ID, bitrix.ActivityNote{
		Subject: subject,
		Prefix:  prefix,
		Message: message,
	}); err != nil {
		return nil, err
	}

	s.log.Info("activity logged", "event", evt.Event, "dealId", deal.ID, "contact", identityName)
	return &Result{Status: status, ContactID: contact.ID, DealID: deal.ID}, nil
}

func (s *Service) handleSubscriptionCancellation(ctx context.Context, evt *Event, meta Meta, started time.Time) (*Result, error) {
	name, email, phone := subscriberIdentity(&evt.Data)
	if email == "" {
		s.log.Warn("subscription cancellation without subscriber email", "webhookId", evt.ID)
		return &Result{Status: StatusIncomplete}, nil
	}

	// Cancellations match strictly by email. Phone matching is too loose
	// here: closing the wrong person's subscription record is worse than
	// creating an unlinked deal.
	contact, err := s.crm.FindContactByPhoneOrEmail(ctx, "", email)
	if err != nil {
		return nil, err
	}

	contactID := ""
	if contact != nil {
		contactID = contact.ID
	}

	category, stage := s.pipelines.Cancellation()
	plan := evt.Data.PlanName()

	dealID, err := s.crm.CreateNegotiation(ctx, bitrix.CreateNegotiationParams{
		Title:     fmt.Sprintf("Cancelación suscripción: %s - %s", plan, name),
		ContactID: contactID,
		Category:  category,
		StageID:   stage,
		Amount:    evt.Data.ActualRecurrenceValue,
		Currency:  "USD",
		Phone:     phone,
		Email:     email,
	})
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Suscripción cancelada. Plan: %s. Valor de recurrencia: %.2f.", plan, evt.Data.ActualRecurrenceValue)
	if evt.Data.CancellationDate > 0 {
		message += " Fecha: " + time.UnixMilli(evt.Data.CancellationDate).UTC().Format("2006-01-02") + "."
	}
	if err := s.crm.LogActivity(ctx, dealID, bitrix.ActivityNote{
		Subject: subjectSubscription,
		Prefix:  prefixSubscription,
		Message: message,
	}); err != nil {
		return nil, err
	}

	if _, err := s.auditor.Record(ctx, audit.Record{
		Action:           "cancelacion_suscripcion",
		Module:           "hotmart",
		EventType:        evt.Event,
		ContactID:        contactID,
		DealID:           dealID,
		UserName:         name,
		UserEmail:        email,
		UserPhone:        phone,
		ProductName:      plan,
		Amount:           evt.Data.ActualRecurrenceValue,
		Currency:         "USD",
		SourceIP:         meta.SourceIP,
		WebhookID:        evt.ID,
		ProcessingTimeMs: s.now().Sub(started).Milliseconds(),
	}); err != nil {
		return nil, err
	}

	return &Result{Status: StatusSubCancellation, ContactID: contactID, DealID: dealID}, nil
}

// resolveContactAndDeal finds or creates the contact and the negotiation
// scoped to the given category. It reports whether the negotiation was
// created, in which case it already carries stage and purchase fields.
func (s *Service) resolveContactAndDeal(ctx context.Context, buyer *Buyer, evt *Event, category int, stage, outcome string) (contactID, dealID string, created bool, err error) {
	phone := buyer.ContactPhone()

	contact, err := s.crm.FindContactByPhoneOrEmail(ctx, phone, buyer.Email)
	if err != nil {
		return "", "", false, err
	}
	if contact != nil {
		contactID = contact.ID
	} else {
		contactID, err = s.crm.CreateContact(ctx, buyer.Name, phone)
		if err != nil {
			return "", "", false, err
		}
		s.log.Info("contact created", "contactId", contactID, "name", buyer.Name)
	}

	deal, err := s.crm.FindNegotiation(ctx, contactID, category)
	if err != nil {
		return "", "", false, err
	}
	if deal != nil {
		return contactID, deal.ID, false, nil
	}

	amount, currency := evt.Data.Purchase.Amount()
	dealID, err = s.crm.CreateNegotiation(ctx, bitrix.CreateNegotiationParams{
		Title:     fmt.Sprintf("Compra Hotmart: %s - %s", evt.Data.ProductName(), buyer.Name),
		ContactID: contactID,
		Category:  category,
		StageID:   stage,
		Amount:    amount,
		Currency:  currency,
		Phone:     phone,
		Email:     buyer.Email,
	})
	if err != nil {
		return "", "", false, err
	}

	// A freshly created deal still needs the purchase fields stamped, the
	// add call only sets title, stage and amount.
	if err := s.crm.UpdateNegotiationStage(ctx, dealID, stage, s.purchaseFields(evt, outcome)); err != nil {
		return "", "", false, err
	}

	s.log.Info("negotiation created", "dealId", dealID, "category", category, "stage", stage)
	return contactID, dealID, true, nil
}

func (s *Service) purchaseFields(evt *Event, outcome string) bitrix.PurchaseFields {
	fields := bitrix.PurchaseFields{
		Outcome:       outcome,
		ProductName:   evt.Data.ProductName(),
		TransactionID: evt.Data.Purchase.TransactionID(),
		PlanName:      evt.Data.PlanName(),
	}
	if fields.PlanName == "N/A" {
		fields.PlanName = ""
	}

	amount, currency := evt.Data.Purchase.Amount()
	fields.Amount = &amount
	fields.Currency = currency

	purchase := evt.Data.Purchase
	if purchase != nil {
		if purchase.Payment != nil {
			fields.PaymentType = purchase.Payment.Type
			if purchase.Payment.InstallmentsNumber > 0 {
				installments := purchase.Payment.InstallmentsNumber
				fields.Installments = &installments
			}
		}
		if purchase.OriginalOfferPrice != nil {
			original := purchase.OriginalOfferPrice.Value
			fields.OriginalPrice = &original
		}
		if purchase.Offer != nil {
			fields.CouponCode = purchase.Offer.CouponCode
		}
	}
	return fields
}

// createFollowUpTask creates the follow-up task due in three days. Task
// creation is a secondary effect: any failure is logged and converted to a
// nil id, the purchase flow must complete regardless.
func (s *Service) createFollowUpTask(ctx context.Context, dealID, title, description string) *int64 {
	deadline := s.now().AddDate(0, 0, followUpDays).Format("2006-01-02") + " 18:00:00"
	taskID, err := s.crm.CreateFollowUpTask(ctx, dealID, title, description, deadline)
	if err != nil {
		s.log.Error("follow-up task creation failed", "dealId", dealID, "error", err)
		return nil
	}
	return &taskID
}

func (s *Service) recordPurchaseAudit(ctx context.Context, evt *Event, meta Meta, started time.Time, action, contactID, dealID string, taskID *int64) error {
	amount, currency := evt.Data.Purchase.Amount()

	metadata := map[string]any{
		"transaction": evt.Data.Purchase.TransactionID(),
	}
	if p := evt.Data.Purchase; p != nil && p.Payment != nil {
		metadata["payment_method"] = p.Payment.Method
		metadata["payment_type"] = p.Payment.Type
	}
	if taskID != nil {
		metadata["task_id"] = *taskID
	}

	buyer := evt.Data.Buyer
	_, err := s.auditor.Record(ctx, audit.Record{
		Action:           action,
		Module:           "hotmart",
		EventType:        evt.Event,
		ContactID:        contactID,
		DealID:           dealID,
		UserName:         buyer.Name,
		UserEmail:        buyer.Email,
		UserPhone:        buyer.ContactPhone(),
		ProductName:      evt.Data.ProductName(),
		Amount:           amount,
		Currency:         currency,
		Metadata:         metadata,
		SourceIP:         meta.SourceIP,
		WebhookID:        evt.ID,
		ProcessingTimeMs: s.now().Sub(started).Milliseconds(),
	})
	return err
}

func (s *Service) delayedMessage(evt *Event) string {
	label := "Pago atrasado"
	if evt.Event == "PURCHASE_PROTEST" {
		label = "Pago en protesto"
	}
	return fmt.Sprintf("%s. Producto: %s. Transacción: %s.",
		label, evt.Data.ProductName(), evt.Data.Purchase.TransactionID())
}

func rejectionLabel(eventType string) string {
	switch eventType {
	case "PURCHASE_REFUNDED":
		return "reembolsada"
	case "PURCHASE_CHARGEBACK":
		return "contracargada"
	default:
		return "cancelada"
	}
}

func paymentMethod(p *Purchase) string {
	if p == nil || p.Payment == nil || p.Payment.Method == "" {
		return "N/A"
	}
	return p.Payment.Method
}

// eventIdentity extracts whoever the event is about, buyer first, then the
// cancellation-style subscriber, then the subscriber nested in the
// subscription block.
func eventIdentity(evt *Event) (name, email, phone string) {
	if b := evt.Data.Buyer; b != nil {
		return b.Name, b.Email, b.ContactPhone()
	}
	return subscriberIdentity(&evt.Data)
}

func subscriberIdentity(data *EventData) (name, email, phone string) {
	if s := data.Subscriber; s != nil {
		return s.Name, s.Email, s.Phone.Number()
	}
	if data.Subscription != nil && data.Subscription.Subscriber != nil {
		s := data.Subscription.Subscriber
		return s.Name, s.Email, s.Phone
	}
	if b := data.Buyer; b != nil {
		return b.Name, b.Email, b.ContactPhone()
	}
	return "", "", ""
}
