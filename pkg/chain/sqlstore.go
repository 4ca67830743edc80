package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrSessionNotFound = errors.New("chain: session not found")

// SQLStore persists chain events to a SQL database. The store is a sink
// and a replay source: the in-memory Chain stays the single writer and
// the sole owner of the append cursor.
type SQLStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and runs migrations.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chain: open database: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an existing database handle and runs migrations.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS audit_events (
        id TEXT PRIMARY KEY,
        tenant_id TEXT NOT NULL,
        session_id TEXT NOT NULL,
        sequence INTEGER NOT NULL,
        event_type TEXT NOT NULL,
        actor TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        payload JSON NOT NULL,
        payload_hash TEXT NOT NULL,
        previous_hash TEXT NOT NULL,
        decision_id TEXT,
        evaluation_id TEXT,
        UNIQUE (tenant_id, session_id, sequence)
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("chain: migrate: %w", err)
	}
	return nil
}

// Persist writes one event. The unique (tenant, session, sequence)
// constraint rejects forks at the storage layer as well.
func (s *SQLStore) Persist(ctx context.Context, ev Event) error {
	query := `INSERT INTO audit_events (
        id, tenant_id, session_id, sequence, event_type, actor, timestamp,
        payload, payload_hash, previous_hash, decision_id, evaluation_id
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.TenantID, ev.SessionID, ev.Sequence, ev.Type, ev.Actor,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		string(ev.Payload), ev.PayloadHash, ev.PreviousHash,
		ev.DecisionID, ev.EvaluationID,
	)
	if err != nil {
		return fmt.Errorf("chain: persist event %d: %w", ev.Sequence, err)
	}
	return nil
}

// LoadSession replays a session's events in sequence order.
func (s *SQLStore) LoadSession(ctx context.Context, tenantID, sessionID string) ([]Event, error) {
	query := `
        SELECT id, tenant_id, session_id, sequence, event_type, actor, timestamp,
               payload, payload_hash, previous_hash, decision_id, evaluation_id
        FROM audit_events
        WHERE tenant_id = ? AND session_id = ?
        ORDER BY sequence ASC`

	rows, err := s.db.QueryContext(ctx, query, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chain: load session: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		var ts, payload string
		var decisionID, evaluationID sql.NullString
		if err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.SessionID, &ev.Sequence, &ev.Type, &ev.Actor,
			&ts, &payload, &ev.PayloadHash, &ev.PreviousHash, &decisionID, &evaluationID,
		); err != nil {
			return nil, fmt.Errorf("chain: scan event: %w", err)
		}
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("chain: parse timestamp of event %d: %w", ev.Sequence, err)
		}
		ev.Payload = []byte(payload)
		ev.DecisionID = decisionID.String
		ev.EvaluationID = evaluationID.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chain: load session: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrSessionNotFound
	}
	return events, nil
}

// VerifySession replays a persisted session through the integrity walk.
func (s *SQLStore) VerifySession(ctx context.Context, tenantID, sessionID string) (VerificationResult, error) {
	events, err := s.LoadSession(ctx, tenantID, sessionID)
	if err != nil {
		return VerificationResult{}, err
	}
	ptrs := make([]*Event, len(events))
	for i := range events {
		ptrs[i] = &events[i]
	}
	return verify(ptrs), nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
