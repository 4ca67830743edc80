package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celEnv is the shared CEL environment for all rules. Expressions see a
// single variable `ctx`, the decision context map.
var (
	celEnvOnce sync.Once
	celEnvInst *cel.Env
	celEnvErr  error
)

func celEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnvInst, celEnvErr = cel.NewEnv(
			cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnvInst, celEnvErr
}

// CELRule evaluates a CEL expression against the decision context.
// The expression must yield a bool and must guard against absent keys
// itself (e.g. `'consent_obtained' in ctx && ...`) so that a missing field
// is a conservative answer, never a crash.
type CELRule struct {
	id       string
	name     string
	section  string
	severity Severity

	// FailReason is reported when the expression yields false.
	failReason string
	expr       string
	prg        cel.Program
}

// NewCELRule compiles expr once, with interrupt checks and a hard cost
// limit so a pathological expression cannot stall evaluation.
func NewCELRule(id, name, section string, severity Severity, expr, failReason string) (*CELRule, error) {
	env, err := celEnv()
	if err != nil {
		return nil, fmt.Errorf("policy: cel environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("policy: rule %s compile: %w", id, issues.Err())
	}

	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: rule %s program: %w", id, err)
	}

	return &CELRule{
		id:         id,
		name:       name,
		section:    section,
		severity:   severity,
		failReason: failReason,
		expr:       expr,
		prg:        prg,
	}, nil
}

func (r *CELRule) ID() string         { return r.id }
func (r *CELRule) Name() string       { return r.name }
func (r *CELRule) Section() string    { return r.section }
func (r *CELRule) Severity() Severity { return r.severity }

// Expression returns the source CEL expression (used for pack hashing).
func (r *CELRule) Expression() string { return r.expr }

// Evaluate implements Rule.
func (r *CELRule) Evaluate(ctx Context) (bool, string, error) {
	input := map[string]any{"ctx": map[string]any(ctx)}
	if ctx == nil {
		input["ctx"] = map[string]any{}
	}

	out, _, err := r.prg.Eval(input)
	if err != nil {
		return false, "", fmt.Errorf("policy: rule %s eval: %w", r.id, err)
	}
	passed, ok := out.Value().(bool)
	if !ok {
		return false, "", fmt.Errorf("policy: rule %s expression yielded %T, want bool", r.id, out.Value())
	}
	if passed {
		return true, fmt.Sprintf("%s satisfied", r.name), nil
	}
	return false, r.failReason, nil
}
