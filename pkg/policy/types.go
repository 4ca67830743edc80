// Package policy implements the rule evaluation engine: versioned,
// jurisdiction-specific policy packs whose rules are evaluated against a
// caller-supplied context map.
package policy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Context is an open map of named observations about a decision
// (e.g. "phi_present", "consent_obtained"). Supplied once per evaluation
// and treated as read-only by the engine.
type Context map[string]any

// Severity ranks the regulatory weight of a rule.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// rank orders severities for deterministic sorting (CRITICAL first).
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// ParseSeverity normalizes a severity string (bundles use lowercase).
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "low", "LOW":
		return SeverityLow, nil
	case "medium", "MEDIUM":
		return SeverityMedium, nil
	case "high", "HIGH":
		return SeverityHigh, nil
	case "critical", "CRITICAL":
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("policy: unknown severity %q", s)
}

// Status is the evaluation status of a single rule.
// A rule whose evaluator fails is ERROR, never silently PASSED or FAILED.
type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
	StatusError  Status = "ERROR"
)

// Rule is a single regulatory check. Evaluate must be a pure function of
// the context: side-effect free, and tolerant of missing fields (absence
// is a valid input, typically answered conservatively).
type Rule interface {
	ID() string
	Name() string
	// Section is the regulatory section or category the rule enforces
	// (e.g. "PHIPA s.18", "45 CFR 164.508").
	Section() string
	Severity() Severity
	// Evaluate returns (passed, reason). A returned error marks the
	// outcome as Status ERROR without aborting sibling rules.
	Evaluate(ctx Context) (bool, string, error)
}

// Outcome is the result of evaluating one rule.
type Outcome struct {
	RuleID   string   `json:"rule_id"`
	Name     string   `json:"name"`
	Section  string   `json:"section"`
	Severity Severity `json:"severity"`
	Status   Status   `json:"status"`
	Reason   string   `json:"reason"`
}

// Passed reports whether the rule passed.
func (o Outcome) Passed() bool { return o.Status == StatusPassed }

// Pack is a named, versioned collection of rules for a jurisdiction.
// Loaded once and immutable for the duration of an evaluation; a newer
// pack version never mutates an already-created evaluation.
type Pack struct {
	ID           string
	Name         string
	Jurisdiction string
	// Version is the pack's semantic version ("2026.1.3"); Release is the
	// human-facing release label ("v2026-Q1-r3").
	Version     string
	Release     string
	Tier        string
	Frameworks  []string
	Rules       []Rule
	ContentHash string

	// engineConstraint is the semver range of engine versions the pack
	// is compatible with.
	engineConstraint *semver.Constraints
}

// SemVer parses the pack version.
func (p *Pack) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return nil, fmt.Errorf("policy: pack %s has invalid version %q: %w", p.ID, p.Version, err)
	}
	return v, nil
}

// CompatibleWith reports whether the pack supports the given engine version.
// Packs without an explicit constraint are compatible with any engine.
func (p *Pack) CompatibleWith(engineVersion *semver.Version) bool {
	if p.engineConstraint == nil {
		return true
	}
	return p.engineConstraint.Check(engineVersion)
}

// FuncRule is a closure-backed rule, used by callers composing custom packs
// and by tests.
type FuncRule struct {
	RuleID      string
	RuleName    string
	RuleSection string
	RuleSev     Severity
	Fn          func(ctx Context) (bool, string, error)
}

func (r *FuncRule) ID() string         { return r.RuleID }
func (r *FuncRule) Name() string       { return r.RuleName }
func (r *FuncRule) Section() string    { return r.RuleSection }
func (r *FuncRule) Severity() Severity { return r.RuleSev }

func (r *FuncRule) Evaluate(ctx Context) (bool, string, error) {
	if r.Fn == nil {
		return false, "", fmt.Errorf("policy: rule %s has no evaluator", r.RuleID)
	}
	return r.Fn(ctx)
}
