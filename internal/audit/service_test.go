package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crm_bridge_backend/platform/logger"
)

type fakeStore struct {
	inserted  []Entry
	insertErr error
	stats     RawStats
	deleted   int64
	cutoff    time.Time
}

func (f *fakeStore) Insert(ctx context.Context, e *Entry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	e.ID = int64(len(f.inserted) + 1)
	e.Timestamp = time.Now()
	f.inserted = append(f.inserted, *e)
	return nil
}

func (f *fakeStore) List(ctx context.Context, filter ListFilter) ([]Entry, int64, error) {
	return f.inserted, int64(len(f.inserted)), nil
}

func (f *fakeStore) ByDealID(ctx context.Context, dealID string) ([]Entry, error)       { return nil, nil }
func (f *fakeStore) ByContactID(ctx context.Context, contactID string) ([]Entry, error) { return nil, nil }
func (f *fakeStore) ByPhone(ctx context.Context, phone string) ([]Entry, error)         { return nil, nil }

func (f *fakeStore) Stats(ctx context.Context, start, end *time.Time) (*RawStats, error) {
	return &f.stats, nil
}

func (f *fakeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, nil
}

func newTestService(store *fakeStore) *Service {
	return NewService(store, logger.New("development"))
}

func TestRecordDefaultsStatusAndSerializesMetadata(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	entry, err := svc.Record(context.Background(), Record{
		Action: "compra_procesada",
		Module: "hotmart",
		Metadata: map[string]any{
			"transaction": "TX1",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != "success" {
		t.Fatalf("status should default to success, got %q", entry.Status)
	}
	if !strings.Contains(entry.Metadata, `"transaction":"TX1"`) {
		t.Fatalf("metadata not serialized: %q", entry.Metadata)
	}
}

func TestRecordPropagatesStoreFailure(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("connection refused")}
	svc := newTestService(store)

	_, err := svc.Record(context.Background(), Record{Action: "a", Module: "m"})
	if err == nil {
		t.Fatal("audit write failures must propagate")
	}
}

func TestRecordErrorSetsStatusAndMessage(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	entry, err := svc.RecordError(context.Background(), Record{
		Action: "compra_procesada",
		Module: "hotmart",
	}, errors.New("deal update failed"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != "error" || entry.ErrorMessage != "deal update failed" {
		t.Fatalf("error entry not populated: %+v", entry)
	}
}

func TestStatsComputesSuccessRate(t *testing.T) {
	store := &fakeStore{stats: RawStats{Total: 4, Success: 3, Errors: 1}}
	svc := newTestService(store)

	stats, err := svc.Stats(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.SuccessRate != "75.00%" {
		t.Fatalf("expected 75.00%% success rate, got %q", stats.SuccessRate)
	}
}

func TestStatsEmptyTrail(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store)

	stats, err := svc.Stats(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.SuccessRate != "0%" {
		t.Fatalf("expected 0%% for empty trail, got %q", stats.SuccessRate)
	}
}

func TestCleanOldLogsDefaultsRetention(t *testing.T) {
	store := &fakeStore{deleted: 12}
	svc := newTestService(store)

	deleted, err := svc.CleanOldLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 12 {
		t.Fatalf("expected 12 deleted, got %d", deleted)
	}

	expected := time.Now().AddDate(0, 0, -90)
	if diff := expected.Sub(store.cutoff); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("cutoff should be ~90 days back, got %v", store.cutoff)
	}
}
