package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/forge-health-ai/lumen-sdk/pkg/canonical"
)

// Bundle is the serialized form of a policy pack: a JSON (or YAML)
// document carrying pack metadata and CEL-backed checks.
type Bundle struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Jurisdiction string        `json:"jurisdiction" yaml:"jurisdiction"`
	Version      string        `json:"version" yaml:"version"`
	Release      string        `json:"release,omitempty" yaml:"release,omitempty"`
	Tier         string        `json:"tier,omitempty" yaml:"tier,omitempty"`
	Engine       string        `json:"engine,omitempty" yaml:"engine,omitempty"`
	Frameworks   []string      `json:"frameworks,omitempty" yaml:"frameworks,omitempty"`
	Checks       []BundleCheck `json:"checks" yaml:"checks"`
}

// BundleCheck is one serialized regulatory check.
type BundleCheck struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Section    string `json:"section" yaml:"section"`
	Severity   string `json:"severity" yaml:"severity"`
	Citation   string `json:"citation,omitempty" yaml:"citation,omitempty"`
	Expression string `json:"expression" yaml:"expression"`
	FailReason string `json:"fail_reason" yaml:"fail_reason"`
}

// bundleSchema validates bundle documents before any rule is compiled,
// so a typo'd severity or missing expression is rejected up front.
const bundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "name", "jurisdiction", "version", "checks"],
  "properties": {
    "id": {"type": "string", "pattern": "^[a-z][a-z0-9-]*$"},
    "name": {"type": "string", "minLength": 1},
    "jurisdiction": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "release": {"type": "string"},
    "tier": {"enum": ["free", "pro", "enterprise"]},
    "engine": {"type": "string"},
    "frameworks": {"type": "array", "items": {"type": "string"}},
    "checks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name", "section", "severity", "expression", "fail_reason"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "section": {"type": "string", "minLength": 1},
          "severity": {"enum": ["low", "medium", "high", "critical", "LOW", "MEDIUM", "HIGH", "CRITICAL"]},
          "citation": {"type": "string"},
          "expression": {"type": "string", "minLength": 1},
          "fail_reason": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var compiledBundleSchema = jsonschema.MustCompileString("bundle.schema.json", bundleSchema)

// ParseBundle validates and decodes a JSON bundle document.
func ParseBundle(data []byte) (*Bundle, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("policy: bundle parse: %w", err)
	}
	if err := compiledBundleSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("policy: bundle schema: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("policy: bundle decode: %w", err)
	}
	return &b, nil
}

// Build compiles the bundle into an immutable Pack. Every check's CEL
// expression is compiled here; a broken expression fails the whole bundle.
func (b *Bundle) Build() (*Pack, error) {
	var constraint *semver.Constraints
	if b.Engine != "" {
		c, err := semver.NewConstraint(b.Engine)
		if err != nil {
			return nil, &ConfigurationError{PackID: b.ID, Reason: fmt.Sprintf("invalid engine constraint %q: %v", b.Engine, err)}
		}
		constraint = c
	}

	rules := make([]Rule, 0, len(b.Checks))
	for _, c := range b.Checks {
		sev, err := ParseSeverity(c.Severity)
		if err != nil {
			return nil, &ConfigurationError{PackID: b.ID, Reason: err.Error()}
		}
		rule, err := NewCELRule(c.ID, c.Name, c.Section, sev, c.Expression, c.FailReason)
		if err != nil {
			return nil, &ConfigurationError{PackID: b.ID, Reason: err.Error()}
		}
		rules = append(rules, rule)
	}

	contentHash, err := canonical.Hash(b)
	if err != nil {
		return nil, fmt.Errorf("policy: bundle %s content hash: %w", b.ID, err)
	}

	return &Pack{
		ID:               b.ID,
		Name:             b.Name,
		Jurisdiction:     b.Jurisdiction,
		Version:          b.Version,
		Release:          b.Release,
		Tier:             b.Tier,
		Frameworks:       b.Frameworks,
		Rules:            rules,
		ContentHash:      contentHash,
		engineConstraint: constraint,
	}, nil
}

// LoadFile loads a single bundle from a .json or .yaml/.yml file and
// registers the resulting pack.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("policy: read bundle %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return fmt.Errorf("policy: bundle %s: %w", path, err)
		}
	case ".json":
	default:
		return fmt.Errorf("policy: bundle %s: unsupported extension", path)
	}

	bundle, err := ParseBundle(data)
	if err != nil {
		return err
	}
	pack, err := bundle.Build()
	if err != nil {
		return err
	}
	return r.Register(pack)
}

// LoadDir loads every bundle file in dir. Files are visited in sorted
// order so repeated loads register packs deterministically.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("policy: read bundle dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".yml":
			if err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// yamlToJSON re-encodes a YAML document as JSON so both formats share the
// same schema validation and decoding path.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml parse: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("yaml re-encode: %w", err)
	}
	return out, nil
}
