// Package chain implements the append-only, hash-linked audit chain. Each
// event links to the payload hash of its predecessor, making retroactive
// edits detectable. Tamper-evident, not tamper-proof: an attacker who
// controls storage can rewrite the whole chain.
package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forge-health-ai/lumen-sdk/pkg/canonical"
)

// Genesis is the previous-hash value of the first event in a chain.
const Genesis = "GENESIS"

var (
	ErrNilPayload = errors.New("chain: nil payload")
)

// Event types appended by the engine.
const (
	EventRecordCreated       = "RECORD_CREATED"
	EventEvaluationCompleted = "EVALUATION_COMPLETED"
	EventIntegrityChecked    = "INTEGRITY_CHECKED"
	EventExportGenerated     = "EXPORT_GENERATED"
)

// Event is one immutable link in the chain. The externally verifiable
// contract is the (Sequence, PayloadHash, PreviousHash) triple.
type Event struct {
	ID           string          `json:"id"`
	Sequence     uint64          `json:"sequence"`
	Type         string          `json:"type"`
	Actor        string          `json:"actor"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
	PayloadHash  string          `json:"payload_hash"`
	PreviousHash string          `json:"previous_hash"`
	TenantID     string          `json:"tenant_id"`
	SessionID    string          `json:"session_id"`
	DecisionID   string          `json:"decision_id,omitempty"`
	EvaluationID string          `json:"evaluation_id,omitempty"`
}

// AppendOption attaches optional references to an appended event.
type AppendOption func(*Event)

// WithDecision links the event to a decision record id.
func WithDecision(id string) AppendOption {
	return func(e *Event) { e.DecisionID = id }
}

// WithEvaluation links the event to an evaluation id.
func WithEvaluation(id string) AppendOption {
	return func(e *Event) { e.EvaluationID = id }
}

// Chain owns its event list exclusively. Appends are serialized by the
// mutex; chains for different sessions are independent.
type Chain struct {
	mu        sync.RWMutex
	tenantID  string
	sessionID string
	events    []*Event
	sequence  uint64
	head      string
}

// New creates an empty chain for one tenant/session pair.
func New(tenantID, sessionID string) *Chain {
	return &Chain{
		tenantID:  tenantID,
		sessionID: sessionID,
		head:      Genesis,
	}
}

// Append serializes the payload, hashes it together with the event's
// timestamp and sequence, links it to the current head and stores it.
func (c *Chain) Append(eventType, actor string, payload any, opts ...AppendOption) (*Event, error) {
	if payload == nil {
		return nil, ErrNilPayload
	}
	payloadBytes, err := canonical.JCS(payload)
	if err != nil {
		return nil, fmt.Errorf("chain: serialize payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ev := &Event{
		ID:           uuid.NewString(),
		Sequence:     c.sequence + 1,
		Type:         eventType,
		Actor:        actor,
		Timestamp:    time.Now().UTC(),
		Payload:      payloadBytes,
		PreviousHash: c.head,
		TenantID:     c.tenantID,
		SessionID:    c.sessionID,
	}
	for _, opt := range opts {
		opt(ev)
	}

	hash, err := payloadHash(ev)
	if err != nil {
		return nil, err
	}
	ev.PayloadHash = hash

	c.sequence++
	c.head = ev.PayloadHash
	c.events = append(c.events, ev)

	out := *ev
	return &out, nil
}

// payloadHash covers payload, timestamp and sequence, so moving or
// reordering an event invalidates it as surely as editing its payload.
func payloadHash(ev *Event) (string, error) {
	h, err := canonical.Hash(struct {
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
		Sequence  uint64          `json:"sequence"`
	}{ev.Payload, ev.Timestamp, ev.Sequence})
	if err != nil {
		return "", fmt.Errorf("chain: hash payload: %w", err)
	}
	return h, nil
}

// VerificationResult reports the outcome of an integrity walk. BrokenAt
// is the sequence number of the first event whose hash or link fails.
type VerificationResult struct {
	Valid         bool   `json:"valid"`
	BrokenAt      uint64 `json:"broken_at,omitempty"`
	EventsChecked int    `json:"events_checked"`
	Detail        string `json:"detail,omitempty"`
}

// VerifyIntegrity walks the chain, recomputing each event's payload hash
// and checking each link to its predecessor. Detection only: a broken
// chain is reported, never repaired.
func (c *Chain) VerifyIntegrity() VerificationResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return verify(c.events)
}

func verify(events []*Event) VerificationResult {
	expectedPrev := Genesis
	for i, ev := range events {
		if ev.PreviousHash != expectedPrev {
			return VerificationResult{
				BrokenAt:      ev.Sequence,
				EventsChecked: i + 1,
				Detail:        fmt.Sprintf("event %d previous_hash %s does not match prior payload_hash %s", ev.Sequence, ev.PreviousHash, expectedPrev),
			}
		}
		computed, err := payloadHash(ev)
		if err != nil {
			return VerificationResult{
				BrokenAt:      ev.Sequence,
				EventsChecked: i + 1,
				Detail:        fmt.Sprintf("event %d unhashable: %v", ev.Sequence, err),
			}
		}
		if computed != ev.PayloadHash {
			return VerificationResult{
				BrokenAt:      ev.Sequence,
				EventsChecked: i + 1,
				Detail:        fmt.Sprintf("event %d payload_hash mismatch", ev.Sequence),
			}
		}
		expectedPrev = ev.PayloadHash
	}
	return VerificationResult{Valid: true, EventsChecked: len(events)}
}

// Events returns a copy of the event list in append order.
func (c *Chain) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Event, len(c.events))
	for i, ev := range c.events {
		out[i] = *ev
	}
	return out
}

// Head returns the current chain head hash.
func (c *Chain) Head() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// Len returns the number of events appended so far.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Export is a read-only serialized snapshot of a full chain.
type Export struct {
	TenantID   string    `json:"tenant_id"`
	SessionID  string    `json:"session_id"`
	ExportedAt time.Time `json:"exported_at"`
	EventCount int       `json:"event_count"`
	Events     []Event   `json:"events"`
}

// Export snapshots the chain without advancing the sequence.
func (c *Chain) Export() *Export {
	events := c.Events()
	return &Export{
		TenantID:   c.tenantID,
		SessionID:  c.sessionID,
		ExportedAt: time.Now().UTC(),
		EventCount: len(events),
		Events:     events,
	}
}

// VerifyExport replays the integrity walk over an exported snapshot, so
// a receiver can check tamper-evidence without the originating chain.
func VerifyExport(ex *Export) VerificationResult {
	if ex == nil {
		return VerificationResult{Detail: "nil export"}
	}
	events := make([]*Event, len(ex.Events))
	for i := range ex.Events {
		events[i] = &ex.Events[i]
	}
	return verify(events)
}
