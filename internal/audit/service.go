// Package audit records one immutable entry per processed integration action
// and answers read-only queries over the trail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crm_bridge_backend/platform/logger"
)

// Entry is one immutable audit record.
type Entry struct {
	ID               int64     `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Action           string    `json:"action"`
	Module           string    `json:"module"`
	EventType        string    `json:"eventType,omitempty"`
	ContactID        string    `json:"bitrixContactId,omitempty"`
	DealID           string    `json:"bitrixDealId,omitempty"`
	ActivityID       string    `json:"bitrixActivityId,omitempty"`
	UserName         string    `json:"userName,omitempty"`
	UserEmail        string    `json:"userEmail,omitempty"`
	UserPhone        string    `json:"userPhone,omitempty"`
	ProductName      string    `json:"productName,omitempty"`
	Amount           float64   `json:"amount,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	Metadata         string    `json:"metadata,omitempty"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	SourceIP         string    `json:"sourceIp,omitempty"`
	WebhookID        string    `json:"webhookId,omitempty"`
	ProcessingTimeMs int64     `json:"processingTimeMs,omitempty"`
}

// Record describes a new audit entry. Metadata is serialized to a text blob
// at write time.
type Record struct {
	Action           string
	Module           string
	EventType        string
	ContactID        string
	DealID           string
	ActivityID       string
	UserName         string
	UserEmail        string
	UserPhone        string
	ProductName      string
	Amount           float64
	Currency         string
	Metadata         map[string]any
	Status           string
	ErrorMessage     string
	SourceIP         string
	WebhookID        string
	ProcessingTimeMs int64
}

// Store is the persistence surface the service depends on.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter ListFilter) ([]Entry, int64, error)
	ByDealID(ctx context.Context, dealID string) ([]Entry, error)
	ByContactID(ctx context.Context, contactID string) ([]Entry, error)
	ByPhone(ctx context.Context, phone string) ([]Entry, error)
	Stats(ctx context.Context, start, end *time.Time) (*RawStats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service implements the audit recorder and its query surface.
type Service struct {
	store Store
	log   *logger.Logger
}

// NewService creates the audit service.
func NewService(store Store, log *logger.Logger) *Service {
	return &Service{store: store, log: log}
}

// Record persists one entry. Status defaults to success. Failures propagate:
// losing audit data silently is worse than failing the audit call visibly.
func (s *Service) Record(ctx context.Context, rec Record) (*Entry, error) {
	metadata := ""
	if rec.Metadata != nil {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("serialize audit metadata: %w", err)
		}
		metadata = string(raw)
	}

	status := rec.Status
	if status == "" {
		status = "success"
	}

	entry := &Entry{
		Action:           rec.Action,
		Module:           rec.Module,
		EventType:        rec.EventType,
		ContactID:        rec.ContactID,
		DealID:           rec.DealID,
		ActivityID:       rec.ActivityID,
		UserName:         rec.UserName,
		UserEmail:        rec.UserEmail,
		UserPhone:        rec.UserPhone,
		ProductName:      rec.ProductName,
		Amount:           rec.Amount,
		Currency:         rec.Currency,
		Metadata:         metadata,
		Status:           status,
		ErrorMessage:     rec.ErrorMessage,
		SourceIP:         rec.SourceIP,
		WebhookID:        rec.WebhookID,
		ProcessingTimeMs: rec.ProcessingTimeMs,
	}

	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info("audit entry recorded", "module", entry.Module, "action", entry.Action, "id", entry.ID)
	return entry, nil
}

// RecordError persists an error entry for a failed action.
func (s *Service) RecordError(ctx context.Context, rec Record, cause error) (*Entry, error) {
	rec.Status = "error"
	if cause != nil {
		rec.ErrorMessage = cause.Error()
	}
	return s.Record(ctx, rec)
}

// ListResult is a page of audit entries plus the unpaginated total.
type ListResult struct {
	Logs  []Entry `json:"logs"`
	Total int64   `json:"total"`
}

// List returns a filtered, paginated view of the trail.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	entries, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ListResult{Logs: entries, Total: total}, nil
}

// ByDealID returns the trail for one CRM deal.
func (s *Service) ByDealID(ctx context.Context, dealID string) ([]Entry, error) {
	return s.store.ByDealID(ctx, dealID)
}

// ByContactID returns the trail for one CRM contact.
func (s *Service) ByContactID(ctx context.Context, contactID string) ([]Entry, error) {
	return s.store.ByContactID(ctx, contactID)
}

// ByPhone returns the trail for one user phone.
func (s *Service) ByPhone(ctx context.Context, phone string) ([]Entry, error) {
	return s.store.ByPhone(ctx, phone)
}

// Stats is the aggregate view exposed on the query surface.
type Stats struct {
	TotalActions int64        `json:"totalActions"`
	SuccessCount int64        `json:"successCount"`
	ErrorCount   int64        `json:"errorCount"`
	SuccessRate  string       `json:"successRate"`
	ByModule     []GroupCount `json:"byModule"`
	ByAction     []GroupCount `json:"byAction"`
}

// Stats aggregates the trail for an optional date window.
func (s *Service) Stats(ctx context.Context, start, end *time.Time) (*Stats, error) {
	raw, err := s.store.Stats(ctx, start, end)
	if err != nil {
		return nil, err
	}

	rate := "0%"
	if raw.Total > 0 {
		rate = fmt.Sprintf("%.2f%%", float64(raw.Success)/float64(raw.Total)*100)
	}

	return &Stats{
		TotalActions: raw.Total,
		SuccessCount: raw.Success,
		ErrorCount:   raw.Errors,
		SuccessRate:  rate,
		ByModule:     raw.ByModule,
		ByAction:     raw.ByAction,
	}, nil
}

// CleanOldLogs deletes entries older than daysToKeep days and reports how
// many were removed. A non-positive daysToKeep falls back to 90.
func (s *Service) CleanOldLogs(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = 90
	}
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.log.Info("audit retention sweep complete", "deleted", deleted, "days_kept", daysToKeep)
	return deleted, nil
}
