package bitrix

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"crm_bridge_backend/platform/config"
	"crm_bridge_backend/platform/logger"
	"crm_bridge_backend/platform/phone"
)

// Custom deal fields stamped on purchase events.
const (
	ufPendingReply    = "UF_CRM_1753983007521"
	ufPurchaseOutcome = "UF_CRM_1753983100110"
	ufProductName     = "UF_CRM_1753983100111"
	ufTransactionID   = "UF_CRM_1753983100112"
	ufPaymentType     = "UF_CRM_1753983100113"
	ufInstallments    = "UF_CRM_1753983100114"
	ufOriginalPrice   = "UF_CRM_1753983100115"
	ufCouponCode      = "UF_CRM_1753983100116"
	ufPlanName        = "UF_CRM_1753983100117"
)

// OutcomeApproved is the default purchase outcome stamped on stage updates.
const OutcomeApproved = "APPROVED"

// OutcomeRejected marks refunds, chargebacks, and cancellations.
const OutcomeRejected = "REJECTED"

const defaultResponsibleID int64 = 138

// Gateway is the single point of contact-and-deal resolution logic.
type Gateway struct {
	client        *Client
	responsibleID int64
	log           *logger.Logger
}

// NewGateway builds the gateway on top of a REST client.
func NewGateway(client *Client, cfg config.BitrixConfig, log *logger.Logger) *Gateway {
	responsibleID := cfg.GetBitrixDefaultResponsibleID()
	if responsibleID == 0 {
		responsibleID = defaultResponsibleID
	}
	return &Gateway{
		client:        client,
		responsibleID: responsibleID,
		log:           log,
	}
}

// NormalizeEmail lowercases and trims an email for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// =============================================================================
// Contacts
// =============================================================================

// FindContactByPhoneOrEmail resolves a contact by email first, then phone.
// Email is the more reliable identity field, so it wins when both are given.
// Among candidates an exact normalized match is preferred; otherwise the
// first result is accepted. Returns nil when neither search finds anyone.
func (g *Gateway) FindContactByPhoneOrEmail(ctx context.Context, phoneNumber, email string) (*Contact, error) {
	if email = NormalizeEmail(email); email != "" {
		contact, err := g.searchContacts(ctx, map[string]any{"EMAIL": email}, func(c Contact) bool {
			for _, entry := range c.Email {
				if NormalizeEmail(entry.Value) == email {
					return true
				}
			}
			return false
		})
		if err != nil {
			return nil, err
		}
		if contact != nil {
			return contact, nil
		}
	}

	if digits := phone.Digits(phoneNumber); digits != "" {
		contact, err := g.searchContacts(ctx, map[string]any{"PHONE": digits}, func(c Contact) bool {
			for _, entry := range c.Phone {
				if phone.Digits(entry.Value) == digits {
					return true
				}
			}
			return false
		})
		if err != nil {
			return nil, err
		}
		if contact != nil {
			return contact, nil
		}
	}

	return nil, nil
}

// FindContactByNameAndEmail requires both fields to match. The CRM's list
// filter matches loosely, so the result is verified exactly (case-insensitive,
// trimmed) before it is trusted.
func (g *Gateway) FindContactByNameAndEmail(ctx context.Context, name, email string) (*Contact, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return nil, nil
	}

	var results []Contact
	err := g.client.Call(ctx, "crm.contact.list", map[string]any{
		"filter": map[string]any{"NAME": name, "EMAIL": email},
		"select": []string{"ID", "NAME", "EMAIL", "PHONE"},
	}, &results)
	if err != nil {
		return nil, err
	}

	wantName := strings.ToLower(strings.TrimSpace(name))
	wantEmail := NormalizeEmail(email)
	for _, c := range results {
		if strings.ToLower(strings.TrimSpace(c.Name)) != wantName {
			continue
		}
		for _, entry := range c.Email {
			if NormalizeEmail(entry.Value) == wantEmail {
				matched := c
				return &matched, nil
			}
		}
	}

	return nil, nil
}

// CreateContact registers a new contact. The phone is stored in E.164 so
// later lookups match regardless of how the source platform formatted it.
// Callers must search first; this never deduplicates.
func (g *Gateway) CreateContact(ctx context.Context, name, phoneNumber string) (string, error) {
	fields := map[string]any{"NAME": name}
	if phoneNumber != "" {
		fields["PHONE"] = []Multifield{{Value: phone.NormalizeE164(phoneNumber), ValueType: "WORK"}}
	}

	var contactID int64
	err := g.client.Call(ctx, "crm.contact.add", map[string]any{"fields": fields}, &contactID)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(contactID, 10), nil
}

// ContactPhone returns the contact's first phone number, or empty when the
// contact has none.
func (g *Gateway) ContactPhone(ctx context.Context, contactID string) (string, error) {
	var results []Contact
	err := g.client.Call(ctx, "crm.contact.list", map[string]any{
		"filter": map[string]any{"ID": contactID},
		"select": []string{"PHONE"},
	}, &results)
	if err != nil {
		return "", err
	}

	if len(results) == 0 || len(results[0].Phone) == 0 {
		return "", nil
	}

	return results[0].Phone[0].Value, nil
}

func (g *Gateway) searchContacts(ctx context.Context, filter map[string]any, exact func(Contact) bool) (*Contact, error) {
	var results []Contact
	err := g.client.Call(ctx, "crm.contact.list", map[string]any{
		"filter": filter,
		"select": []string{"ID", "NAME", "EMAIL", "PHONE"},
	}, &results)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	for _, c := range results {
		if exact(c) {
			matched := c
			return &matched, nil
		}
	}

	first := results[0]
	return &first, nil
}

// =============================================================================
// Negotiations (Deals)
// =============================================================================

// FindNegotiation returns the contact's most recent negotiation whose stage
// belongs to the given pipeline category, or nil. The category filter runs
// client-side on the stage prefix because the CRM cannot filter deals by the
// category embedded in a stage identifier.
func (g *Gateway) FindNegotiation(ctx context.Context, contactID string, category int) (*Deal, error) {
	var results []Deal
	err := g.client.Call(ctx, "crm.deal.list", map[string]any{
		"filter": map[string]any{"CONTACT_ID": contactID},
		"select": []string{"ID", "TITLE", "STAGE_ID", "CATEGORY_ID", "CONTACT_ID", ufPendingReply},
		"order":  map[string]string{"ID": "DESC"},
	}, &results)
	if err != nil {
		return nil, err
	}

	prefix := fmt.Sprintf("C%d:", category)
	var newest *Deal
	var newestID int64
	for i := range results {
		if !strings.HasPrefix(results[i].StageID, prefix) {
			continue
		}
		id, err := strconv.ParseInt(results[i].ID, 10, 64)
		if err != nil {
			continue
		}
		if newest == nil || id > newestID {
			newest = &results[i]
			newestID = id
		}
	}

	return newest, nil
}

// FindNegotiationByID fetches a single deal, including the pending-reply
// custom field and the linked contact.
func (g *Gateway) FindNegotiationByID(ctx context.Context, dealID string) (*Deal, error) {
	var results []Deal
	err := g.client.Call(ctx, "crm.deal.list", map[string]any{
		"filter": map[string]any{"ID": dealID},
		"select": []string{"ID", "TITLE", "STAGE_ID", "CONTACT_ID", ufPendingReply},
	}, &results)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	deal := results[0]
	return &deal, nil
}

// CreateNegotiationParams describes a new deal. ContactID may be empty when
// identity resolution failed; in that case the phone and email are appended
// to the title so the opportunity keeps its context.
type CreateNegotiationParams struct {
	Title     string
	ContactID string
	Category  int
	StageID   string
	Amount    float64
	Currency  string
	Phone     string
	Email     string
}

// CreateNegotiation creates a deal and returns its identifier.
func (g *Gateway) CreateNegotiation(ctx context.Context, params CreateNegotiationParams) (string, error) {
	title := params.Title
	if params.ContactID == "" && (params.Phone != "" || params.Email != "") {
		title = fmt.Sprintf("%s | Tel: %s | Email: %s", title, params.Phone, params.Email)
	}

	fields := map[string]any{
		"TITLE":       title,
		"CATEGORY_ID": strconv.Itoa(params.Category),
		"STAGE_ID":    params.StageID,
	}
	if params.ContactID != "" {
		fields["CONTACT_ID"] = params.ContactID
	}
	if params.Amount != 0 {
		fields["OPPORTUNITY"] = params.Amount
	}
	if params.Currency != "" {
		fields["CURRENCY_ID"] = params.Currency
	}

	var dealID int64
	err := g.client.Call(ctx, "crm.deal.add", map[string]any{"fields": fields}, &dealID)
	if err != nil {
		return "", err
	}

	return strconv.FormatInt(dealID, 10), nil
}

// PurchaseFields carries the optional purchase metadata stamped onto a deal
// during a stage transition. Nil pointers and empty strings are omitted from
// the update.
type PurchaseFields struct {
	Outcome       string
	ProductName   string
	TransactionID string
	PaymentType   string
	Installments  *int
	OriginalPrice *float64
	CouponCode    string
	PlanName      string
	Amount        *float64
	Currency      string
}

// UpdateNegotiationStage moves a deal to the given stage and stamps purchase
// fields. Only explicitly provided fields are sent; the outcome defaults to
// APPROVED. Backend errors propagate, a stage transition must not silently
// no-op.
func (g *Gateway) UpdateNegotiationStage(ctx context.Context, dealID, stageID string, purchase PurchaseFields) error {
	fields := map[string]any{"STAGE_ID": stageID}

	outcome := purchase.Outcome
	if outcome == "" {
		outcome = OutcomeApproved
	}
	fields[ufPurchaseOutcome] = outcome

	if purchase.ProductName != "" {
		fields[ufProductName] = purchase.ProductName
	}
	if purchase.TransactionID != "" {
		fields[ufTransactionID] = purchase.TransactionID
	}
	if purchase.PaymentType != "" {
		fields[ufPaymentType] = purchase.PaymentType
	}
	if purchase.Installments != nil {
		fields[ufInstallments] = *purchase.Installments
	}
	if purchase.OriginalPrice != nil {
		fields[ufOriginalPrice] = *purchase.OriginalPrice
	}
	if purchase.CouponCode != "" {
		fields[ufCouponCode] = purchase.CouponCode
	}
	if purchase.PlanName != "" {
		fields[ufPlanName] = purchase.PlanName
	}
	if purchase.Amount != nil {
		fields["OPPORTUNITY"] = *purchase.Amount
	}
	if purchase.Currency != "" {
		fields["CURRENCY_ID"] = purchase.Currency
	}

	return g.client.Call(ctx, "crm.deal.update", map[string]any{
		"id":     dealID,
		"fields": fields,
	}, nil)
}

// MoveNegotiationToStage re-stages a deal without stamping purchase fields.
// Used by the chat flow to reopen an existing negotiation.
func (g *Gateway) MoveNegotiationToStage(ctx context.Context, dealID string, category int, stageID string) error {
	return g.client.Call(ctx, "crm.deal.update", map[string]any{
		"id": dealID,
		"fields": map[string]any{
			"CATEGORY_ID": category,
			"STAGE_ID":    stageID,
		},
	}, nil)
}

// =============================================================================
// Activities
// =============================================================================

// ActivityNote is one timeline entry appended to a negotiation.
type ActivityNote struct {
	Subject string
	Message string
	Prefix  string
}

// LogActivity appends a note to the deal's activity timeline. The call
// completes before the caller's operation is considered done.
func (g *Gateway) LogActivity(ctx context.Context, dealID string, note ActivityNote) error {
	return g.client.Call(ctx, "crm.activity.add", map[string]any{
		"fields": map[string]any{
			"TYPE_ID":          4,
			"COMMUNICATIONS":   []map[string]any{{"VALUE": dealID, "ENTITY_TYPE": "DEAL"}},
			"SUBJECT":          note.Subject,
			"DESCRIPTION":      note.Prefix + note.Message,
			"DESCRIPTION_TYPE": 1,
			"OWNER_ID":         dealID,
			"OWNER_TYPE_ID":    2,
		},
	}, nil)
}

// =============================================================================
// Tasks
// =============================================================================

// TaskParams describes a follow-up task. Deal and contact links use the CRM's
// tag-based reference scheme (D_<dealId>, C_<contactId>).
type TaskParams struct {
	Title         string
	Description   string
	ResponsibleID int64
	Deadline      string
	Priority      int
	DealID        string
	ContactID     string
}

type taskAddResult struct {
	Task struct {
		ID int64 `json:"id"`
	} `json:"task"`
}

// CreateTask creates a CRM task and returns its identifier. Task failures are
// the caller's to neutralize; the gateway reports them faithfully.
func (g *Gateway) CreateTask(ctx context.Context, params TaskParams) (int64, error) {
	responsibleID := params.ResponsibleID
	if responsibleID == 0 {
		responsibleID = g.responsibleID
	}

	fields := map[string]any{
		"TITLE":          params.Title,
		"RESPONSIBLE_ID": responsibleID,
	}
	if params.Description != "" {
		fields["DESCRIPTION"] = params.Description
	}
	if params.Deadline != "" {
		fields["DEADLINE"] = params.Deadline
	}
	if params.Priority != 0 {
		fields["PRIORITY"] = params.Priority
	}

	var links []string
	if params.DealID != "" {
		links = append(links, "D_"+params.DealID)
	}
	if params.ContactID != "" {
		links = append(links, "C_"+params.ContactID)
	}
	if len(links) > 0 {
		fields["UF_CRM_TASK"] = links
	}

	var result taskAddResult
	err := g.client.Call(ctx, "tasks.task.add", map[string]any{"fields": fields}, &result)
	if err != nil {
		return 0, err
	}

	return result.Task.ID, nil
}

// CreateFollowUpTask creates a normal-priority task linked to a negotiation.
func (g *Gateway) CreateFollowUpTask(ctx context.Context, dealID, title, description, deadline string) (int64, error) {
	return g.CreateTask(ctx, TaskParams{
		Title:       title,
		Description: description,
		Deadline:    deadline,
		Priority:    2,
		DealID:      dealID,
	})
}

type taskGetResult struct {
	Task Task `json:"task"`
}

// GetTask fetches one task including custom fields.
func (g *Gateway) GetTask(ctx context.Context, taskID int64) (*Task, error) {
	var result taskGetResult
	err := g.client.Call(ctx, "tasks.task.get", map[string]any{
		"taskId": taskID,
		"select": []string{"*", "UF_*"},
	}, &result)
	if err != nil {
		return nil, err
	}

	return &result.Task, nil
}

// TaskFilter narrows a task listing. Zero values are skipped.
type TaskFilter struct {
	ResponsibleID int64
	DealID        string
	Status        int
}

type taskListResult struct {
	Tasks []Task `json:"tasks"`
}

// ListTasks returns tasks matching the filter, newest first.
func (g *Gateway) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	conditions := map[string]any{}
	if filter.ResponsibleID != 0 {
		conditions["RESPONSIBLE_ID"] = filter.ResponsibleID
	}
	if filter.DealID != "" {
		conditions["UF_CRM_TASK"] = "D_" + filter.DealID
	}
	if filter.Status != 0 {
		conditions["STATUS"] = filter.Status
	}

	var result taskListResult
	err := g.client.Call(ctx, "tasks.task.list", map[string]any{
		"filter": conditions,
		"select": []string{"*", "UF_*"},
		"order":  map[string]string{"ID": "DESC"},
	}, &result)
	if err != nil {
		return nil, err
	}

	return result.Tasks, nil
}
