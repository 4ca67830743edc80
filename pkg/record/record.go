// Package record builds immutable, hash-referenced snapshots of one
// human+AI decision moment. A DecisionRecord carries canonical hashes and
// categorical metadata only: raw clinical payloads never enter a record.
package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forge-health-ai/lumen-sdk/pkg/canonical"
	"github.com/forge-health-ai/lumen-sdk/pkg/policy"
)

var (
	ErrNilParams = errors.New("record: nil params")
)

// ValidationError reports a rejected record construction. Nothing partial
// is created when construction fails.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record: invalid %s: %s", e.Field, e.Reason)
}

// HumanAction is the action the human took on the AI output.
type HumanAction string

const (
	ActionAccepted HumanAction = "accepted"
	ActionModified HumanAction = "modified"
	ActionRejected HumanAction = "rejected"
)

func (a HumanAction) valid() bool {
	switch a {
	case ActionAccepted, ActionModified, ActionRejected:
		return true
	}
	return false
}

// SourcePointer references retrieved content by system, id and content
// hash. The pointer fields never hold content.
type SourcePointer struct {
	SystemID    string `json:"system_id"`
	ReferenceID string `json:"reference_id"`
	ContentHash string `json:"content_hash"`
}

// AIOutput is the metadata of the model output under decision: model id,
// a hash of the output text, and pointers to the retrieved sources.
type AIOutput struct {
	ModelID    string          `json:"model_id"`
	OutputHash string          `json:"output_hash"`
	Sources    []SourcePointer `json:"sources,omitempty"`
}

// identifiableDataKey marks an inputs snapshot as carrying identifiable
// subject data. Its presence with a true value rejects the record.
const identifiableDataKey = "contains_identifiable_data"

// Params are the inputs to record construction.
type Params struct {
	TenantID   string
	SubjectRef string // pseudonymous reference, never a direct identifier
	WorkflowID string

	// RequestContext holds categorical request metadata (care setting,
	// decision type). It is stored verbatim, so it must not carry payloads.
	RequestContext map[string]string

	// Inputs is the full inputs snapshot. It is hashed and discarded,
	// never stored on the record.
	Inputs map[string]any

	Output        AIOutput
	Action        HumanAction
	PolicyContext policy.Context
}

// DecisionRecord is the immutable snapshot. Created once, never updated.
type DecisionRecord struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	TenantID   string    `json:"tenant_id"`
	SubjectRef string    `json:"subject_ref"`
	WorkflowID string    `json:"workflow_id"`

	RequestContext map[string]string `json:"request_context,omitempty"`
	Output         AIOutput          `json:"output"`
	Action         HumanAction       `json:"action"`
	PolicyContext  policy.Context    `json:"policy_context,omitempty"`

	InputsHash  string `json:"inputs_hash"`
	OutputsHash string `json:"outputs_hash"`
	RecordHash  string `json:"record_hash"`
}

// New validates params, hashes the inputs snapshot and the output
// metadata, and seals the record with a whole-record hash.
func New(p *Params) (*DecisionRecord, error) {
	if p == nil {
		return nil, ErrNilParams
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	inputsHash, err := canonical.Hash(p.Inputs)
	if err != nil {
		return nil, fmt.Errorf("record: hash inputs: %w", err)
	}
	outputsHash, err := canonical.Hash(p.Output)
	if err != nil {
		return nil, fmt.Errorf("record: hash outputs: %w", err)
	}

	rec := &DecisionRecord{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		TenantID:       p.TenantID,
		SubjectRef:     p.SubjectRef,
		WorkflowID:     p.WorkflowID,
		RequestContext: p.RequestContext,
		Output:         p.Output,
		Action:         p.Action,
		PolicyContext:  p.PolicyContext,
		InputsHash:     inputsHash,
		OutputsHash:    outputsHash,
	}

	// The record hash covers every field except itself.
	sealed := *rec
	sealed.RecordHash = ""
	recordHash, err := canonical.Hash(sealed)
	if err != nil {
		return nil, fmt.Errorf("record: hash record: %w", err)
	}
	rec.RecordHash = recordHash
	return rec, nil
}

func validate(p *Params) error {
	switch {
	case p.TenantID == "":
		return &ValidationError{Field: "tenant_id", Reason: "required"}
	case p.SubjectRef == "":
		return &ValidationError{Field: "subject_ref", Reason: "required"}
	case p.WorkflowID == "":
		return &ValidationError{Field: "workflow_id", Reason: "required"}
	case p.Output.ModelID == "":
		return &ValidationError{Field: "output.model_id", Reason: "required"}
	}

	if !p.Action.valid() {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown human action %q", p.Action)}
	}

	if !canonical.IsHashRef(p.Output.OutputHash) {
		return &ValidationError{Field: "output.output_hash", Reason: "must be a content hash, not raw output"}
	}
	for i, s := range p.Output.Sources {
		if !canonical.IsHashRef(s.ContentHash) {
			return &ValidationError{
				Field:  fmt.Sprintf("output.sources[%d].content_hash", i),
				Reason: "must be a content hash, not raw content",
			}
		}
	}

	// Fail fast when the caller flags identifiable subject data: such a
	// snapshot must be de-identified upstream before it may be hashed.
	if flagged, ok := p.Inputs[identifiableDataKey].(bool); ok && flagged {
		return &ValidationError{Field: "inputs", Reason: "snapshot flagged as containing identifiable subject data"}
	}
	for k, v := range p.RequestContext {
		if strings.EqualFold(k, identifiableDataKey) && strings.EqualFold(v, "true") {
			return &ValidationError{Field: "request_context", Reason: "flagged as containing identifiable subject data"}
		}
	}
	return nil
}

// Verify recomputes the whole-record hash and reports whether the record
// still matches its seal.
func (r *DecisionRecord) Verify() (bool, error) {
	sealed := *r
	sealed.RecordHash = ""
	h, err := canonical.Hash(sealed)
	if err != nil {
		return false, fmt.Errorf("record: verify: %w", err)
	}
	return h == r.RecordHash, nil
}
