package jelou

import (
	"context"
	"errors"
	"testing"

	"crm_bridge_backend/internal/bitrix"
	"crm_bridge_backend/internal/pipeline"
	"crm_bridge_backend/platform/logger"
)

type fakeCRM struct {
	contact        *bitrix.Contact
	createdContact string
	negotiation    *bitrix.Deal
	dealByID       *bitrix.Deal
	contactPhone   string
	createdDealID  string

	createContactCalls int
	createDealParams   *bitrix.CreateNegotiationParams
	movedStage         string
	activities         []bitrix.ActivityNote
	searchedPhone      string
	createdPhone       string
	findErr            error
}

func (f *fakeCRM) FindContactByPhoneOrEmail(ctx context.Context, phoneNumber, email string) (*bitrix.Contact, error) {
	f.searchedPhone = phoneNumber
	return f.contact, f.findErr
}

func (f *fakeCRM) CreateContact(ctx context.Context, name, phoneNumber string) (string, error) {
	f.createContactCalls++
	f.createdPhone = phoneNumber
	return f.createdContact, nil
}

func (f *fakeCRM) FindNegotiation(ctx context.Context, contactID string, category int) (*bitrix.Deal, error) {
	return f.negotiation, nil
}

func (f *fakeCRM) FindNegotiationByID(ctx context.Context, dealID string) (*bitrix.Deal, error) {
	return f.dealByID, nil
}

func (f *fakeCRM) CreateNegotiation(ctx context.Context, params bitrix.CreateNegotiationParams) (string, error) {
	f.createDealParams = &params
	return f.createdDealID, nil
}

func (f *fakeCRM) MoveNegotiationToStage(ctx context.Context, dealID string, category int, stageID string) error {
	f.movedStage = stageID
	return nil
}

func (f *fakeCRM) LogActivity(ctx context.Context, dealID string, note bitrix.ActivityNote) error {
	f.activities = append(f.activities, note)
	return nil
}

func (f *fakeCRM) ContactPhone(ctx context.Context, contactID string) (string, error) {
	return f.contactPhone, nil
}

type fakeChat struct {
	sentTo   string
	sentText string
	closed   string
	sendErr  error
}

func (f *fakeChat) SendText(ctx context.Context, userID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = userID
	f.sentText = text
	return nil
}

func (f *fakeChat) CloseConversation(ctx context.Context, digitsPhone string) error {
	f.closed = digitsPhone
	return nil
}

func newTestService(crm *fakeCRM, chat *fakeChat) *Service {
	return NewService(crm, chat, pipeline.Default(), logger.New("development"))
}

func TestInboundMessageCreatesContactAndDeal(t *testing.T) {
	crm := &fakeCRM{createdContact: "11", createdDealID: "55"}
	svc := newTestService(crm, &fakeChat{})

	dealID, err := svc.InboundMessage(context.Background(), "Juan Perez", "+593991234567", "Hola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dealID != "55" {
		t.Fatalf("expected deal 55, got %q", dealID)
	}
	if crm.createContactCalls != 1 {
		t.Fatal("unknown phone must create a contact")
	}
	if crm.createDealParams == nil || crm.createDealParams.StageID != "C6:NEW" {
		t.Fatalf("deal must open in the chat stage, got %+v", crm.createDealParams)
	}
	if len(crm.activities) != 1 || crm.activities[0].Prefix != "cliente: " {
		t.Fatalf("inbound message must be logged with client prefix, got %+v", crm.activities)
	}
}

func TestInboundMessageNormalizesNationalPhone(t *testing.T) {
	crm := &fakeCRM{createdContact: "11", createdDealID: "55"}
	svc := newTestService(crm, &fakeChat{})

	if _, err := svc.InboundMessage(context.Background(), "Juan", "0991234567", "Hola"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crm.searchedPhone != "+593991234567" {
		t.Fatalf("contact lookup must use the E.164 phone, got %q", crm.searchedPhone)
	}
	if crm.createdPhone != "+593991234567" {
		t.Fatalf("contact creation must use the E.164 phone, got %q", crm.createdPhone)
	}
}

func TestInboundMessageReusesExistingNegotiation(t *testing.T) {
	crm := &fakeCRM{
		contact:     &bitrix.Contact{ID: "11"},
		negotiation: &bitrix.Deal{ID: "55", StageID: "C6:WON"},
	}
	svc := newTestService(crm, &fakeChat{})

	dealID, err := svc.InboundMessage(context.Background(), "Juan", "+593991234567", "Sigo interesado")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dealID != "55" {
		t.Fatalf("expected existing deal 55, got %q", dealID)
	}
	if crm.createDealParams != nil {
		t.Fatal("existing negotiation must not be duplicated")
	}
	if crm.movedStage != "C6:NEW" {
		t.Fatalf("existing negotiation must be reopened in the chat stage, got %q", crm.movedStage)
	}
}

func TestReplySendsStoredMessageWithoutPlus(t *testing.T) {
	crm := &fakeCRM{
		dealByID: &bitrix.Deal{
			ID:           "55",
			ContactID:    "11",
			PendingReply: []byte(`["Su caso fue aprobado"]`),
		},
		contactPhone: "+593991234567",
	}
	chat := &fakeChat{}
	svc := newTestService(crm, chat)

	if err := svc.Reply(context.Background(), "55"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chat.sentTo != "593991234567" {
		t.Fatalf("leading plus must be stripped, got %q", chat.sentTo)
	}
	if chat.sentText != "Su caso fue aprobado" {
		t.Fatalf("stored reply not sent: %q", chat.sentText)
	}
	if len(crm.activities) != 1 || crm.activities[0].Prefix != "Asesor respondió: " {
		t.Fatalf("reply must be logged as advisor activity, got %+v", crm.activities)
	}
}

func TestReplyNoOpsOnMissingMessage(t *testing.T) {
	crm := &fakeCRM{
		dealByID:     &bitrix.Deal{ID: "55", ContactID: "11"},
		contactPhone: "+593991234567",
	}
	chat := &fakeChat{sendErr: errors.New("should not be called")}
	svc := newTestService(crm, chat)

	if err := svc.Reply(context.Background(), "55"); err != nil {
		t.Fatalf("missing pending reply must be a no-op, got %v", err)
	}
}

func TestCloseChatResolvesPhoneFromDeal(t *testing.T) {
	crm := &fakeCRM{
		dealByID:     &bitrix.Deal{ID: "55", ContactID: "11"},
		contactPhone: "+593 99 123 4567",
	}
	chat := &fakeChat{}
	svc := newTestService(crm, chat)

	if err := svc.CloseChat(context.Background(), "55"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chat.closed != "593991234567" {
		t.Fatalf("conversation must close with digits-only phone, got %q", chat.closed)
	}
}

func TestCloseChatNoOpsOnMissingLinkage(t *testing.T) {
	crm := &fakeCRM{dealByID: &bitrix.Deal{ID: "55"}}
	chat := &fakeChat{}
	svc := newTestService(crm, chat)

	if err := svc.CloseChat(context.Background(), "55"); err != nil {
		t.Fatalf("missing contact linkage must be a no-op, got %v", err)
	}
	if chat.closed != "" {
		t.Fatal("close must not be called without a resolvable phone")
	}
}
