package hotmart

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"crm_bridge_backend/internal/audit"
	"crm_bridge_backend/internal/bitrix"
	"crm_bridge_backend/internal/pipeline"
	"crm_bridge_backend/platform/logger"
)

type stageUpdate struct {
	dealID string
	stage  string
	fields bitrix.PurchaseFields
}

type taskCall struct {
	dealID   string
	title    string
	deadline string
}

type fakeCRM struct {
	contact     *bitrix.Contact
	negotiation *bitrix.Deal

	createdContactID string
	createdDealID    string
	taskID           int64
	taskErr          error

	createContactCalls int
	searchedCategory   int
	createDealParams   *bitrix.CreateNegotiationParams
	stageUpdates       []stageUpdate
	activities         []bitrix.ActivityNote
	tasks              []taskCall
}

func (f *fakeCRM) FindContactByPhoneOrEmail(ctx context.Context, phoneNumber, email string) (*bitrix.Contact, error) {
	return f.contact, nil
}

func (f *fakeCRM) CreateContact(ctx context.Context, name, phoneNumber string) (string, error) {
	f.createContactCalls++
	return f.createdContactID, nil
}

func (f *fakeCRM) FindNegotiation(ctx context.Context, contactID string, category int) (*bitrix.Deal, error) {
	f.searchedCategory = category
	return f.negotiation, nil
}

func (f *fakeCRM) CreateNegotiation(ctx context.Context, params bitrix.CreateNegotiationParams) (string, error) {
	f.createDealParams = &params
	return f.createdDealID, nil
}

func (f *fakeCRM) UpdateNegotiationStage(ctx context.Context, dealID, stageID string, purchase bitrix.PurchaseFields) error {
	f.stageUpdates = append(f.stageUpdates, stageUpdate{dealID: dealID, stage: stageID, fields: purchase})
	return nil
}

func (f *fakeCRM) LogActivity(ctx context.Context, dealID string, note bitrix.ActivityNote) error {
	f.activities = append(f.activities, note)
	return nil
}

func (f *fakeCRM) CreateFollowUpTask(ctx context.Context, dealID, title, description, deadline string) (int64, error) {
	if f.taskErr != nil {
		return 0, f.taskErr
	}
	f.tasks = append(f.tasks, taskCall{dealID: dealID, title: title, deadline: deadline})
	return f.taskID, nil
}

type fakeAuditor struct {
	records []audit.Record
	err     error
}

func (f *fakeAuditor) Record(ctx context.Context, rec audit.Record) (*audit.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.records = append(f.records, rec)
	return &audit.Entry{ID: int64(len(f.records))}, nil
}

func newTestService(crm *fakeCRM, auditor *fakeAuditor) *Service {
	svc := NewService(crm, pipeline.Default(), auditor, logger.New("development"))
	svc.now = func() time.Time {
		return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	}
	return svc
}

func approvedEvent() *Event {
	return &Event{
		ID:    "wh-1",
		Event: "PURCHASE_APPROVED",
		Data: EventData{
			Product: &Product{ID: 123456, Name: "Asesoría Legal"},
			Buyer:   &Buyer{Name: "Ana", Email: "ana@x.com", CheckoutPhone: "+593999999999"},
			Purchase: &Purchase{
				Price:       &Price{Value: 50, CurrencyCode: "USD"},
				Payment:     &Payment{Method: "credit_card", Type: "visa", InstallmentsNumber: 3},
				Transaction: "TX1",
			},
		},
	}
}

func TestApprovedPurchaseCreatesEverything(t *testing.T) {
	crm := &fakeCRM{createdContactID: "501", createdDealID: "900", taskID: 77}
	auditor := &fakeAuditor{}
	svc := newTestService(crm, auditor)

	res, err := svc.Process(context.Background(), approvedEvent(), Meta{SourceIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusProcessed {
		t.Fatalf("expected %q, got %q", StatusProcessed, res.Status)
	}
	if res.ContactID != "501" || res.DealID != "900" {
		t.Fatalf("unexpected ids: %+v", res)
	}
	if crm.createContactCalls != 1 {
		t.Fatal("unknown buyer must create a contact")
	}
	if crm.searchedCategory != 12 {
		t.Fatalf("deal search must be scoped to the legal category, got %d", crm.searchedCategory)
	}
	if crm.createDealParams == nil || crm.createDealParams.StageID != "C12:NEW" || crm.createDealParams.Category != 12 {
		t.Fatalf("deal must open in the approved legal stage, got %+v", crm.createDealParams)
	}
	if len(crm.stageUpdates) != 1 {
		t.Fatalf("expected one stage update, got %d", len(crm.stageUpdates))
	}
	update := crm.stageUpdates[0]
	if update.fields.Outcome != bitrix.OutcomeApproved || update.fields.TransactionID != "TX1" {
		t.Fatalf("purchase fields not stamped: %+v", update.fields)
	}
	if update.fields.Installments == nil || *update.fields.Installments != 3 {
		t.Fatalf("installments not stamped: %+v", update.fields)
	}
	if len(crm.activities) != 1 || crm.activities[0].Prefix != "Hotmart: " {
		t.Fatalf("purchase activity missing, got %+v", crm.activities)
	}
	if !strings.Contains(crm.activities[0].Message, "TX1") {
		t.Fatalf("activity must name the transaction, got %q", crm.activities[0].Message)
	}
	if len(crm.tasks) != 1 {
		t.Fatalf("expected one follow-up task, got %d", len(crm.tasks))
	}
	if crm.tasks[0].title != "Seguimiento post-compra: Ana" {
		t.Fatalf("unexpected task title %q", crm.tasks[0].title)
	}
	if crm.tasks[0].deadline != "2026-03-13 18:00:00" {
		t.Fatalf("task must be due three days later at 18:00, got %q", crm.tasks[0].deadline)
	}
	if res.TaskID == nil || *res.TaskID != 77 {
		t.Fatalf("expected task id 77, got %v", res.TaskID)
	}
	if len(auditor.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(auditor.records))
	}
	rec := auditor.records[0]
	if rec.Action != "compra_procesada" || rec.Module != "hotmart" {
		t.Fatalf("unexpected audit record %+v", rec)
	}
	if rec.Metadata["transaction"] != "TX1" || rec.Metadata["task_id"] != int64(77) {
		t.Fatalf("unexpected audit metadata %+v", rec.Metadata)
	}
	if rec.SourceIP != "10.0.0.1" || rec.WebhookID != "wh-1" {
		t.Fatalf("request context not recorded: %+v", rec)
	}
}

func TestApprovedPurchaseReusesExistingNegotiation(t *testing.T) {
	crm := &fakeCRM{
		contact:     &bitrix.Contact{ID: "501"},
		negotiation: &bitrix.Deal{ID: "900", StageID: "C12:PREPARATION"},
		taskID:      5,
	}
	svc := newTestService(crm, &fakeAuditor{})

	res, err := svc.Process(context.Background(), approvedEvent(), Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if crm.createContactCalls != 0 || crm.createDealParams != nil {
		t.Fatal("existing contact and deal must be reused, not recreated")
	}
	if len(crm.stageUpdates) != 1 || crm.stageUpdates[0].dealID != "900" || crm.stageUpdates[0].stage != "C12:NEW" {
		t.Fatalf("existing deal must move to the approved stage, got %+v", crm.stageUpdates)
	}
	if res.DealID != "900" {
		t.Fatalf("expected deal 900, got %q", res.DealID)
	}
}

func TestApprovedPurchaseIncompletePayload(t *testing.T) {
	crm := &fakeCRM{}
	auditor := &fakeAuditor{}
	svc := newTestService(crm, auditor)

	evt := approvedEvent()
	evt.Data.Buyer = nil

	res, err := svc.Process(context.Background(), evt, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusIncomplete {
		t.Fatalf("expected %q, got %q", StatusIncomplete, res.Status)
	}
	if crm.createContactCalls != 0 || crm.createDealParams != nil || len(crm.stageUpdates) != 0 || len(crm.activities) != 0 {
		t.Fatal("incomplete payload must perform zero writes")
	}
	if len(auditor.records) != 0 {
		t.Fatal("incomplete payload must not be audited as processed")
	}
}

func TestTaskFailureDoesNotAbortPurchase(t *testing.T) {
	crm := &fakeCRM{
		createdContactID: "501",
		createdDealID:    "900",
		taskErr:          errors.New("task endpoint down"),
	}
	auditor := &fakeAuditor{}
	svc := newTestService(crm, auditor)

	res, err := svc.Process(context.Background(), approvedEvent(), Meta{})
	if err != nil {
		t.Fatalf("task failure must not propagate: %v", err)
	}
	if res.Status != StatusProcessed {
		t.Fatalf("expected %q, got %q", StatusProcessed, res.Status)
	}
	if res.TaskID != nil {
		t.Fatalf("expected nil task id, got %v", res.TaskID)
	}
	if len(auditor.records) != 1 {
		t.Fatal("purchase must still be audited")
	}
	if _, ok := auditor.records[0].Metadata["task_id"]; ok {
		t.Fatal("failed task must not appear in audit metadata")
	}

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if !strings.Contains(string(raw), `"taskId":null`) {
		t.Fatalf("result must carry an explicit null taskId, got %s", raw)
	}
}

func TestRejectedPurchaseFallsBackForUnmappedProduct(t *testing.T) {
	crm := &fakeCRM{createdContactID: "501", createdDealID: "901", taskID: 9}
	svc := newTestService(crm, &fakeAuditor{})

	evt := approvedEvent()
	evt.Event = "PURCHASE_REFUNDED"
	evt.Data.Product = &Product{ID: 999999, Name: "Producto Nuevo"}

	res, err := svc.Process(context.Background(), evt, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusCancellation {
		t.Fatalf("expected %q, got %q", StatusCancellation, res.Status)
	}
	if crm.createDealParams == nil || crm.createDealParams.StageID != "C12:LOSE" {
		t.Fatalf("unmapped product must land in the fallback rejected stage, got %+v", crm.createDealParams)
	}
	if crm.stageUpdates[0].fields.Outcome != bitrix.OutcomeRejected {
		t.Fatalf("rejection must stamp REJECTED, got %+v", crm.stageUpdates[0].fields)
	}
	if len(crm.activities) != 1 || crm.activities[0].Prefix != "Hotmart Cancelación: " {
		t.Fatalf("rejection activity missing, got %+v", crm.activities)
	}
	if !strings.Contains(crm.tasks[0].title, "cancelación") {
		t.Fatalf("rejection task must use rejection wording, got %q", crm.tasks[0].title)
	}
}

func TestSubscriptionCancellationAlwaysCreatesDeal(t *testing.T) {
	crm := &fakeCRM{createdDealID: "950"}
	auditor := &fakeAuditor{}
	svc := newTestService(crm, auditor)

	evt := &Event{
		ID:    "wh-2",
		Event: "SUBSCRIPTION_CANCELLATION",
		Data: EventData{
			Subscriber: &Subscriber{
				Name:  "María García",
				Email: "maria@ejemplo.com",
				Phone: &SubscriberPhone{DDDCell: "099", Cell: "8888888"},
			},
			Subscription:          &Subscription{Plan: &Plan{Name: "Plan Premium"}},
			ActualRecurrenceValue: 29.90,
		},
	}

	res, err := svc.Process(context.Background(), evt, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSubCancellation {
		t.Fatalf("expected %q, got %q", StatusSubCancellation, res.Status)
	}
	params := crm.createDealParams
	if params == nil {
		t.Fatal("cancellation must always create a deal")
	}
	if params.Category != 44 || params.StageID != "C44:UC_Z9UPZW" {
		t.Fatalf("deal must open in the cancellation stage, got %+v", params)
	}
	if params.ContactID != "" {
		t.Fatalf("unknown subscriber must create an unlinked deal, got contact %q", params.ContactID)
	}
	if params.Email != "maria@ejemplo.com" || params.Phone != "0998888888" {
		t.Fatalf("identity must travel with the unlinked deal, got %+v", params)
	}
	if len(auditor.records) != 1 || auditor.records[0].Action != "cancelacion_suscripcion" {
		t.Fatalf("expected cancellation audit record, got %+v", auditor.records)
	}
}

func TestSubscriptionCancellationRequiresEmail(t *testing.T) {
	crm := &fakeCRM{}
	auditor := &fakeAuditor{}
	svc := newTestService(crm, auditor)

	evt := &Event{
		Event: "SUBSCRIPTION_CANCELLATION",
		Data:  EventData{Subscriber: &Subscriber{Name: "María"}},
	}

	res, err := svc.Process(context.Background(), evt, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusIncomplete {
		t.Fatalf("expected %q, got %q", StatusIncomplete, res.Status)
	}
	if crm.createDealParams != nil || len(auditor.records) != 0 {
		t.Fatal("cancellation without email must not touch the CRM or the trail")
	}
}

func TestDelayedPaymentOnlyLogsActivity(t *testing.T) {
	crm := &fakeCRM{
		contact:     &bitrix.Contact{ID: "501"},
		negotiation: &bitrix.Deal{ID: "900", StageID: "C12:NEW"},
	}
	svc := newTestService(crm, &fakeAuditor{})

	evt := approvedEvent()
	evt.Event = "PURCHASE_DELAYED"

	res, err := svc.Process(context.Background(), evt, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusDelayed {
		t.Fatalf("expected %q, got %q", StatusDelayed, res.Status)
	}
	if crm.createDealParams != nil || len(crm.stageUpdates) != 0 {
		t.Fatal("delayed payment must not create or move deals")
	}
	if len(crm.activities) != 1 || crm.activities[0].Prefix != "Hotmart Alerta: " {
		t.Fatalf("alert activity missing, got %+v", crm.activities)
	}
}

func TestDelayedPaymentUnknownContactIsNoop(t *testing.T) {
	crm := &fakeCRM{}
	svc := newTestService(crm, &fakeAuditor{})

	evt := approvedEvent()
	evt.Event = "PURCHASE_PROTEST"

	res, err := svc.Process(context.Background(), evt, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Detail != "contacto no encontrado" {
		t.Fatalf("expected contact-not-found detail, got %+v", res)
	}
	if len(crm.activities) != 0 {
		t.Fatal("no contact means no activity")
	}
}

func TestUnhandledEventType(t *testing.T) {
	crm := &fakeCRM{}
	svc := newTestService(crm, &fakeAuditor{})

	res, err := svc.Process(context.Background(), &Event{Event: "CLUB_FIRST_ACCESS"}, Meta{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusUnhandled || res.Event != "CLUB_FIRST_ACCESS" {
		t.Fatalf("unexpected result %+v", res)
	}
}
