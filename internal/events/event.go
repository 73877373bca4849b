// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"crm_bridge_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Webhook Domain Events
// =============================================================================

// WebhookAuthFailed is published when an inbound webhook presents a missing
// or invalid authentication token.
type WebhookAuthFailed struct {
	BaseEvent
	Source   string `json:"source"`
	SourceIP string `json:"sourceIp"`
	Path     string `json:"path"`
}

func (e WebhookAuthFailed) EventName() string { return "webhook.auth_failed" }

// WebhookProcessingFailed is published when a webhook was authenticated but
// its processing pipeline returned an error.
type WebhookProcessingFailed struct {
	BaseEvent
	Source    string `json:"source"`
	EventType string `json:"eventType"`
	WebhookID string `json:"webhookId"`
	Reason    string `json:"reason"`
}

func (e WebhookProcessingFailed) EventName() string { return "webhook.processing_failed" }

// PurchaseProcessed is published after a sale event has been fully reflected
// in the CRM.
type PurchaseProcessed struct {
	BaseEvent
	EventType   string `json:"eventType"`
	ContactID   string `json:"contactId"`
	DealID      string `json:"dealId"`
	ProductName string `json:"productName"`
	BuyerEmail  string `json:"buyerEmail"`
}

func (e PurchaseProcessed) EventName() string { return "purchase.processed" }
