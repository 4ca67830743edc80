package chain

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("unexpected migrate error: %s", err)
	}
	return store, mock
}

func TestSQLStore_Persist(t *testing.T) {
	store, mock := newMockStore(t)

	ev := Event{
		ID:           "ev-1",
		TenantID:     "tenant-a",
		SessionID:    "session-1",
		Sequence:     1,
		Type:         EventRecordCreated,
		Actor:        "clinician",
		Timestamp:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Payload:      json.RawMessage(`{"record":"r1"}`),
		PayloadHash:  "sha256:aaaa",
		PreviousHash: Genesis,
		DecisionID:   "d1",
	}

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(ev.ID, ev.TenantID, ev.SessionID, ev.Sequence, ev.Type, ev.Actor,
			"2026-03-14T09:30:00Z", `{"record":"r1"}`, ev.PayloadHash, ev.PreviousHash,
			ev.DecisionID, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Persist(context.Background(), ev); err != nil {
		t.Errorf("error was not expected while persisting event: %s", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %s", err)
	}
}

func TestSQLStore_LoadSession(t *testing.T) {
	store, mock := newMockStore(t)

	columns := []string{
		"id", "tenant_id", "session_id", "sequence", "event_type", "actor",
		"timestamp", "payload", "payload_hash", "previous_hash", "decision_id", "evaluation_id",
	}
	rows := sqlmock.NewRows(columns).
		AddRow("ev-1", "tenant-a", "session-1", 1, EventRecordCreated, "clinician",
			"2026-03-14T09:30:00Z", `{"record":"r1"}`, "sha256:aaaa", Genesis, "d1", "").
		AddRow("ev-2", "tenant-a", "session-1", 2, EventEvaluationCompleted, "engine",
			"2026-03-14T09:30:01Z", `{"score":73}`, "sha256:bbbb", "sha256:aaaa", "", "e1")

	mock.ExpectQuery("SELECT (.+) FROM audit_events").
		WithArgs("tenant-a", "session-1").
		WillReturnRows(rows)

	events, err := store.LoadSession(context.Background(), "tenant-a", "session-1")
	if err != nil {
		t.Fatalf("error was not expected while loading session: %s", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].DecisionID != "d1" || events[1].EvaluationID != "e1" {
		t.Errorf("reference ids not restored: %+v", events)
	}
	if events[1].PreviousHash != events[0].PayloadHash {
		t.Errorf("link not preserved across replay")
	}
}

func TestSQLStore_LoadSessionEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM audit_events").
		WithArgs("tenant-a", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.LoadSession(context.Background(), "tenant-a", "missing")
	if err != ErrSessionNotFound {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
