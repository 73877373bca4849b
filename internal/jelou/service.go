package jelou

import (
	"context"
	"fmt"
	"strings"

	"crm_bridge_backend/internal/bitrix"
	"crm_bridge_backend/internal/pipeline"
	"crm_bridge_backend/platform/logger"
	"crm_bridge_backend/platform/phone"
)

const (
	subjectInbound = "Mensaje desde WhatsApp (Jelou)"
	subjectReply   = "Mensaje desde Bitrix"
)

// CRMGateway is the narrow CRM surface the chat processor depends on.
type CRMGateway interface {
	FindContactByPhoneOrEmail(ctx context.Context, phoneNumber, email string) (*bitrix.Contact, error)
	CreateContact(ctx context.Context, name, phoneNumber string) (string, error)
	FindNegotiation(ctx context.Context, contactID string, category int) (*bitrix.Deal, error)
	FindNegotiationByID(ctx context.Context, dealID string) (*bitrix.Deal, error)
	CreateNegotiation(ctx context.Context, params bitrix.CreateNegotiationParams) (string, error)
	MoveNegotiationToStage(ctx context.Context, dealID string, category int, stageID string) error
	LogActivity(ctx context.Context, dealID string, note bitrix.ActivityNote) error
	ContactPhone(ctx context.Context, contactID string) (string, error)
}

// ChatSender is the outbound chat surface.
type ChatSender interface {
	SendText(ctx context.Context, userID, text string) error
	CloseConversation(ctx context.Context, digitsPhone string) error
}

// Service is the chat event processor. It turns inbound messages into CRM
// activity and relays advisor replies back to the chat platform.
type Service struct {
	crm       CRMGateway
	chat      ChatSender
	pipelines *pipeline.Resolver
	log       *logger.Logger
}

// NewService creates the chat event processor.
func NewService(crm CRMGateway, chat ChatSender, pipelines *pipeline.Resolver, log *logger.Logger) *Service {
	return &Service{crm: crm, chat: chat, pipelines: pipelines, log: log}
}

// InboundMessage records an incoming chat message as deal activity, creating
// the contact and negotiation when they do not exist yet. Repeated messages
// from the same phone accumulate on the same open negotiation.
func (s *Service) InboundMessage(ctx context.Context, name, phoneNumber, message string) (string, error) {
	phoneNumber = phone.NormalizeE164(phoneNumber)

	contact, err := s.crm.FindContactByPhoneOrEmail(ctx, phoneNumber, "")
	if err != nil {
		return "", fmt.Errorf("resolve chat contact: %w", err)
	}

	var contactID string
	if contact != nil {
		contactID = contact.ID
	} else {
		contactID, err = s.crm.CreateContact(ctx, name, phoneNumber)
		if err != nil {
			return "", fmt.Errorf("create chat contact: %w", err)
		}
		s.log.Info("chat contact created", "contact_id", contactID)
	}

	category, stage := s.pipelines.Chat()

	existing, err := s.crm.FindNegotiation(ctx, contactID, category)
	if err != nil {
		return "", fmt.Errorf("resolve chat negotiation: %w", err)
	}

	var dealID string
	if existing != nil {
		dealID = existing.ID
		if err := s.crm.MoveNegotiationToStage(ctx, dealID, category, stage); err != nil {
			return "", fmt.Errorf("reopen chat negotiation: %w", err)
		}
	} else {
		dealID, err = s.crm.CreateNegotiation(ctx, bitrix.CreateNegotiationParams{
			Title:     "Contacto desde Jelou " + name,
			ContactID: contactID,
			Category:  category,
			StageID:   stage,
		})
		if err != nil {
			return "", fmt.Errorf("create chat negotiation: %w", err)
		}
	}

	err = s.crm.LogActivity(ctx, dealID, bitrix.ActivityNote{
		Subject: subjectInbound,
		Message: message,
		Prefix:  "cliente: ",
	})
	if err != nil {
		return "", fmt.Errorf("log chat activity: %w", err)
	}

	return dealID, nil
}

// Reply sends the deal's stored pending-reply message to the contact's phone
// and logs the send. Missing message or phone is a data-quality gap, not an
// error: the operation logs and returns without sending.
func (s *Service) Reply(ctx context.Context, dealID string) error {
	deal, err := s.crm.FindNegotiationByID(ctx, dealID)
	if err != nil {
		return fmt.Errorf("load negotiation %s: %w", dealID, err)
	}
	if deal == nil {
		s.log.Warn("advisor reply skipped, negotiation not found", "deal_id", dealID)
		return nil
	}

	message := deal.PendingReplyText()
	if message == "" || deal.ContactID == "" {
		s.log.Warn("advisor reply skipped, missing message or contact", "deal_id", dealID)
		return nil
	}

	phoneNumber, err := s.crm.ContactPhone(ctx, deal.ContactID)
	if err != nil {
		return fmt.Errorf("resolve contact phone: %w", err)
	}
	if phoneNumber == "" {
		s.log.Warn("advisor reply skipped, contact has no phone", "deal_id", dealID)
		return nil
	}

	userID := strings.TrimPrefix(phoneNumber, "+")
	if err := s.chat.SendText(ctx, userID, message); err != nil {
		return fmt.Errorf("send advisor reply: %w", err)
	}

	err = s.crm.LogActivity(ctx, dealID, bitrix.ActivityNote{
		Subject: subjectReply,
		Message: message,
		Prefix:  "Asesor respondió: ",
	})
	if err != nil {
		return fmt.Errorf("log advisor reply: %w", err)
	}

	return nil
}

// CloseChat closes the chat conversation for the contact linked to a
// negotiation. The parameter is a negotiation id even though the chat
// platform keys conversations by user: the deal-id-keyed lookup is the
// established integration contract. Unresolvable linkage is logged and
// ignored.
func (s *Service) CloseChat(ctx context.Context, dealID string) error {
	deal, err := s.crm.FindNegotiationByID(ctx, dealID)
	if err != nil {
		return fmt.Errorf("load negotiation %s: %w", dealID, err)
	}
	if deal == nil || deal.ContactID == "" {
		s.log.Warn("chat close skipped, no contact linked", "deal_id", dealID)
		return nil
	}

	phoneNumber, err := s.crm.ContactPhone(ctx, deal.ContactID)
	if err != nil {
		return fmt.Errorf("resolve contact phone: %w", err)
	}

	digits := phone.Digits(phoneNumber)
	if digits == "" {
		s.log.Warn("chat close skipped, no usable phone", "deal_id", dealID, "contact_id", deal.ContactID)
		return nil
	}

	if err := s.chat.CloseConversation(ctx, digits); err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}

	return nil
}
