package policy

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNilPack is returned when evaluation is attempted without a pack.
	ErrNilPack = errors.New("policy: pack must not be nil")
)

// Engine evaluates packs against decision contexts. Evaluation is a pure
// computation; a single Engine is safe for concurrent use.
type Engine struct{}

// NewEngine creates a rule evaluation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs every rule in the pack's fixed order against ctx and
// returns one outcome per rule. There is no early exit: a failing CRITICAL
// rule does not suppress evaluation of subsequent rules. A rule whose
// evaluator errors or panics is recorded as Status ERROR and does not
// abort its siblings.
func (e *Engine) Evaluate(pack *Pack, ctx Context) ([]Outcome, error) {
	if pack == nil {
		return nil, ErrNilPack
	}

	outcomes := make([]Outcome, 0, len(pack.Rules))
	for _, rule := range pack.Rules {
		outcomes = append(outcomes, evaluateRule(rule, ctx))
	}
	return outcomes, nil
}

// evaluateRule runs one rule with panic containment.
func evaluateRule(rule Rule, ctx Context) (out Outcome) {
	out = Outcome{
		RuleID:   rule.ID(),
		Name:     rule.Name(),
		Section:  rule.Section(),
		Severity: rule.Severity(),
	}

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusError
			out.Reason = fmt.Sprintf("rule evaluator panicked: %v", r)
		}
	}()

	passed, reason, err := rule.Evaluate(ctx)
	if err != nil {
		out.Status = StatusError
		out.Reason = err.Error()
		return out
	}

	out.Reason = reason
	if passed {
		out.Status = StatusPassed
	} else {
		out.Status = StatusFailed
	}
	return out
}

// SortOutcomesForHashing returns a copy of outcomes ordered by
// (severity desc, rule id). Provenance hashes use this ordering so the
// inputs hash does not depend on pack rule order, which is not
// semantically meaningful.
func SortOutcomesForHashing(outcomes []Outcome) []Outcome {
	sorted := make([]Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity.rank() != sorted[j].Severity.rank() {
			return sorted[i].Severity.rank() < sorted[j].Severity.rank()
		}
		return sorted[i].RuleID < sorted[j].RuleID
	})
	return sorted
}

// FailedOutcomes filters outcomes with Status FAILED.
func FailedOutcomes(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// HasCriticalFailure reports whether any CRITICAL rule failed.
func HasCriticalFailure(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status == StatusFailed && o.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
