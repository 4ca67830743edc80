package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health-ai/lumen-sdk/pkg/canonical"
	"github.com/forge-health-ai/lumen-sdk/pkg/policy"
)

func validParams() *Params {
	return &Params{
		TenantID:   "tenant-a",
		SubjectRef: "subj-7f3a",
		WorkflowID: "discharge-summary",
		RequestContext: map[string]string{
			"care_setting":  "outpatient",
			"decision_type": "documentation",
		},
		Inputs: map[string]any{
			"prompt_tokens": 812,
			"model_family":  "generalist",
		},
		Output: AIOutput{
			ModelID:    "vendor/model-4",
			OutputHash: canonical.HashBytes([]byte("draft summary text")),
			Sources: []SourcePointer{
				{SystemID: "ehr", ReferenceID: "note-991", ContentHash: canonical.HashBytes([]byte("note body"))},
			},
		},
		Action: ActionModified,
		PolicyContext: policy.Context{
			"consent_obtained": true,
			"phi_present":      true,
		},
	}
}

func TestNewRecordComputesHashes(t *testing.T) {
	rec, err := New(validParams())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.True(t, canonical.IsHashRef(rec.InputsHash))
	assert.True(t, canonical.IsHashRef(rec.OutputsHash))
	assert.True(t, canonical.IsHashRef(rec.RecordHash))

	ok, err := rec.Verify()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRecordDoesNotStoreRawInputs(t *testing.T) {
	p := validParams()
	rec, err := New(p)
	require.NoError(t, err)

	// Same snapshot hashes identically; the snapshot itself is absent.
	want, err := canonical.Hash(p.Inputs)
	require.NoError(t, err)
	assert.Equal(t, want, rec.InputsHash)
}

func TestNewRecordValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"missing tenant", func(p *Params) { p.TenantID = "" }, "tenant_id"},
		{"missing subject", func(p *Params) { p.SubjectRef = "" }, "subject_ref"},
		{"missing workflow", func(p *Params) { p.WorkflowID = "" }, "workflow_id"},
		{"missing model", func(p *Params) { p.Output.ModelID = "" }, "output.model_id"},
		{"unknown action", func(p *Params) { p.Action = "approved" }, "action"},
		{"raw output in hash field", func(p *Params) { p.Output.OutputHash = "the full draft text" }, "output.output_hash"},
		{"raw content in source pointer", func(p *Params) { p.Output.Sources[0].ContentHash = "patient note body" }, "output.sources[0].content_hash"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(p)

			_, err := New(p)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestNewRecordRejectsIdentifiableData(t *testing.T) {
	p := validParams()
	p.Inputs["contains_identifiable_data"] = true

	_, err := New(p)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "inputs", verr.Field)

	p = validParams()
	p.RequestContext["Contains_Identifiable_Data"] = "TRUE"
	_, err = New(p)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "request_context", verr.Field)
}

func TestNilParams(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, ErrNilParams))
}

func TestVerifyDetectsMutation(t *testing.T) {
	rec, err := New(validParams())
	require.NoError(t, err)

	rec.Action = ActionAccepted
	ok, err := rec.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}
