package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBundleJSON = `{
  "id": "test-pack",
  "name": "Test Pack",
  "jurisdiction": "test",
  "version": "1.0.0",
  "release": "r1",
  "tier": "free",
  "engine": ">=1.0.0 <2.0.0",
  "frameworks": ["Internal"],
  "checks": [
    {
      "id": "t-001",
      "name": "Consent",
      "section": "s.1",
      "severity": "critical",
      "expression": "'consent_obtained' in ctx && ctx.consent_obtained == true",
      "fail_reason": "consent not obtained"
    }
  ]
}`

func TestParseBundleAndBuild(t *testing.T) {
	bundle, err := ParseBundle([]byte(validBundleJSON))
	require.NoError(t, err)
	assert.Equal(t, "test-pack", bundle.ID)
	require.Len(t, bundle.Checks, 1)

	pack, err := bundle.Build()
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", pack.Version)
	assert.Equal(t, "r1", pack.Release)
	require.Len(t, pack.Rules, 1)
	assert.Equal(t, SeverityCritical, pack.Rules[0].Severity())
	assert.NotEmpty(t, pack.ContentHash)
}

func TestParseBundleSchemaRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not json", `{"id":`},
		{"missing id", `{"name":"x","jurisdiction":"t","version":"1.0.0","checks":[{"id":"a","name":"a","section":"s","severity":"low","expression":"true","fail_reason":"f"}]}`},
		{"bad id shape", `{"id":"Test Pack!","name":"x","jurisdiction":"t","version":"1.0.0","checks":[{"id":"a","name":"a","section":"s","severity":"low","expression":"true","fail_reason":"f"}]}`},
		{"bad severity", `{"id":"p","name":"x","jurisdiction":"t","version":"1.0.0","checks":[{"id":"a","name":"a","section":"s","severity":"fatal","expression":"true","fail_reason":"f"}]}`},
		{"empty checks", `{"id":"p","name":"x","jurisdiction":"t","version":"1.0.0","checks":[]}`},
		{"bad tier", `{"id":"p","name":"x","jurisdiction":"t","version":"1.0.0","tier":"gold","checks":[{"id":"a","name":"a","section":"s","severity":"low","expression":"true","fail_reason":"f"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBundle([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestBuildRejectsBrokenExpression(t *testing.T) {
	bundle, err := ParseBundle([]byte(validBundleJSON))
	require.NoError(t, err)
	bundle.Checks[0].Expression = "ctx.consent =="

	_, err = bundle.Build()
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "test-pack", cerr.PackID)
}

func TestLoadFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test-pack.json")
	require.NoError(t, os.WriteFile(path, []byte(validBundleJSON), 0o600))

	r := newRegistry(t)
	require.NoError(t, r.LoadFile(path))

	pack, err := r.Get("test-pack")
	require.NoError(t, err)
	assert.Equal(t, "Test Pack", pack.Name)
}

func TestLoadFileYAML(t *testing.T) {
	const doc = `
id: yaml-pack
name: YAML Pack
jurisdiction: test
version: 1.0.0
checks:
  - id: y-001
    name: Consent
    section: s.1
    severity: high
    expression: "'consent_obtained' in ctx && ctx.consent_obtained == true"
    fail_reason: consent not obtained
`
	dir := t.TempDir()
	path := filepath.Join(dir, "yaml-pack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	r := newRegistry(t)
	require.NoError(t, r.LoadFile(path))

	pack, err := r.Get("yaml-pack")
	require.NoError(t, err)
	require.Len(t, pack.Rules, 1)
	assert.Equal(t, SeverityHigh, pack.Rules[0].Severity())
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.toml")
	require.NoError(t, os.WriteFile(path, []byte("id = 'x'"), 0o600))

	r := newRegistry(t)
	assert.ErrorContains(t, r.LoadFile(path), "unsupported extension")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(validBundleJSON), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	r := newRegistry(t)
	require.NoError(t, r.LoadDir(dir))

	_, err := r.Get("test-pack")
	assert.NoError(t, err)
}
