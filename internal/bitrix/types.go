package bitrix

import "encoding/json"

// Multifield is the Bitrix representation of repeated contact fields
// (phone numbers, email addresses).
type Multifield struct {
	Value     string `json:"VALUE"`
	ValueType string `json:"VALUE_TYPE,omitempty"`
}

// Contact is a CRM person record. IDs are opaque strings assigned by the CRM.
type Contact struct {
	ID    string       `json:"ID"`
	Name  string       `json:"NAME"`
	Email []Multifield `json:"EMAIL"`
	Phone []Multifield `json:"PHONE"`
}

// Deal is a CRM negotiation. Stage identifiers are composite values of the
// form C<category>:<step>.
type Deal struct {
	ID           string          `json:"ID"`
	Title        string          `json:"TITLE"`
	StageID      string          `json:"STAGE_ID"`
	CategoryID   string          `json:"CATEGORY_ID"`
	ContactID    string          `json:"CONTACT_ID"`
	Opportunity  string          `json:"OPPORTUNITY"`
	CurrencyID   string          `json:"CURRENCY_ID"`
	PendingReply json.RawMessage `json:"UF_CRM_1753983007521"`
}

// PendingReplyText extracts the advisor's stored reply. The CRM returns the
// multi-line custom field either as a plain string or as a string array.
func (d Deal) PendingReplyText() string {
	if len(d.PendingReply) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(d.PendingReply, &single); err == nil {
		return single
	}

	var many []string
	if err := json.Unmarshal(d.PendingReply, &many); err == nil && len(many) > 0 {
		return many[0]
	}

	return ""
}

// Task is a CRM follow-up task. The tasks API uses camelCase keys, unlike
// the CRM entity APIs.
type Task struct {
	ID            json.Number `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	ResponsibleID json.Number `json:"responsibleId"`
	Deadline      string      `json:"deadline"`
	Status        json.Number `json:"status"`
}
