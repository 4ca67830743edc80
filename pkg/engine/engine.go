// Package engine orchestrates one evaluation end to end: validate the
// request, seal a decision record, evaluate the applicable policy packs,
// score the outcomes, and append the linked audit events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/forge-health-ai/lumen-sdk/pkg/chain"
	"github.com/forge-health-ai/lumen-sdk/pkg/observability"
	"github.com/forge-health-ai/lumen-sdk/pkg/policy"
	"github.com/forge-health-ai/lumen-sdk/pkg/record"
	"github.com/forge-health-ai/lumen-sdk/pkg/scoring"
)

// Mode is the enforcement posture applied after scoring. Evaluation and
// recording are identical across modes; only the returned error differs.
type Mode string

const (
	// ModeAdvisory always returns the evaluation without error.
	ModeAdvisory Mode = "ADVISORY"
	// ModeGuarded returns ErrDecisionBlocked on a BLOCK verdict.
	ModeGuarded Mode = "GUARDED"
	// ModeStrict returns ErrDecisionBlocked on anything but ALLOW.
	ModeStrict Mode = "STRICT"
)

// ParseMode maps a raw mode string onto the enum.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeAdvisory, ModeGuarded, ModeStrict:
		return Mode(raw), nil
	case "":
		return ModeAdvisory, nil
	}
	return "", fmt.Errorf("engine: unknown enforcement mode %q", raw)
}

var (
	ErrNilRequest = errors.New("engine: nil request")
	ErrNoChain    = errors.New("engine: audit chain is required")
	ErrNoRegistry = errors.New("engine: pack registry is required")

	// ErrDecisionBlocked is returned alongside the evaluation when the
	// enforcement mode refuses the verdict.
	ErrDecisionBlocked = errors.New("engine: decision blocked by enforcement mode")
)

// Options configure an Engine.
type Options struct {
	Registry *policy.Registry
	Chain    *chain.Chain

	// Store, when set, receives every appended event for persistence.
	Store *chain.SQLStore

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Mode    Mode
}

// Engine is the evaluation orchestrator. Safe for concurrent use; the
// audit chain serializes its own appends.
type Engine struct {
	registry *policy.Registry
	rules    *policy.Engine
	chain    *chain.Chain
	store    *chain.SQLStore
	logger   *slog.Logger
	metrics  *observability.Metrics
	mode     Mode
}

// New creates an Engine from options.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, ErrNoRegistry
	}
	if opts.Chain == nil {
		return nil, ErrNoChain
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeAdvisory
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: opts.Registry,
		rules:    policy.NewEngine(),
		chain:    opts.Chain,
		store:    opts.Store,
		logger:   logger.With("component", "engine"),
		metrics:  opts.Metrics,
		mode:     mode,
	}, nil
}

// Request is one evaluation request. PackIDs drive the rule-aggregation
// strategy; with no packs the qualitative MCDA strategy applies.
type Request struct {
	Actor  string
	Record *record.Params

	PackIDs []string

	Factors   []scoring.EvidenceFactor
	Radar     scoring.RiskRadar
	Signal    scoring.MonteCarloSignal
	Citations scoring.CitationSet

	FatalFlaw          bool
	PHIPresent         bool
	OversightConfirmed bool
}

// PackRef pins the exact pack version an evaluation used.
type PackRef struct {
	ID          string `json:"id"`
	Version     string `json:"version"`
	Release     string `json:"release"`
	ContentHash string `json:"content_hash"`
}

// EvalMetrics summarizes check volume and latency for one evaluation.
type EvalMetrics struct {
	ChecksTotal   int     `json:"checks_total"`
	ChecksPassed  int     `json:"checks_passed"`
	ChecksFailed  int     `json:"checks_failed"`
	ChecksErrored int     `json:"checks_errored"`
	DurationMS    float64 `json:"duration_ms"`
}

// Evaluation ties a decision record hash to the pack versions evaluated
// and the resulting score breakdown. A newer pack version never mutates
// an already-created Evaluation.
type Evaluation struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	RecordID   string    `json:"record_id"`
	RecordHash string    `json:"record_hash"`

	Packs     []PackRef          `json:"packs,omitempty"`
	Checks    []policy.Outcome   `json:"checks,omitempty"`
	Breakdown *scoring.Breakdown `json:"breakdown"`

	Signal   scoring.Verdict      `json:"signal"`
	Tier     int                  `json:"tier"`
	Maturity scoring.MaturityTier `json:"maturity"`
	Reasons  []string             `json:"reasons"`
	Metrics  EvalMetrics          `json:"metrics"`
	Mode     Mode                 `json:"mode"`
}

// Evaluate runs the full pipeline. The evaluation is returned even when
// the enforcement mode refuses it; callers can always audit what was
// refused.
func (e *Engine) Evaluate(ctx context.Context, req *Request) (*Evaluation, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	start := time.Now()

	// Resolve packs before anything is recorded: an unknown pack id is a
	// validation failure and must leave no partial state behind.
	packs := make([]*policy.Pack, 0, len(req.PackIDs))
	for _, id := range req.PackIDs {
		pack, err := e.registry.Get(id)
		if err != nil {
			e.metrics.RecordFailure(ctx, "unknown_pack")
			return nil, err
		}
		packs = append(packs, pack)
	}

	rec, err := record.New(req.Record)
	if err != nil {
		e.metrics.RecordFailure(ctx, "invalid_record")
		return nil, err
	}

	if err := e.append(ctx, chain.EventRecordCreated, req.Actor, map[string]any{
		"record_id":    rec.ID,
		"record_hash":  rec.RecordHash,
		"inputs_hash":  rec.InputsHash,
		"outputs_hash": rec.OutputsHash,
		"workflow_id":  rec.WorkflowID,
	}, chain.WithDecision(rec.ID)); err != nil {
		return nil, err
	}

	outcomes, err := e.evaluatePacks(ctx, packs, req.Record.PolicyContext)
	if err != nil {
		return nil, err
	}

	breakdown, err := e.score(req, rec, outcomes)
	if err != nil {
		return nil, fmt.Errorf("engine: score: %w", err)
	}

	verdict, tier := scoring.VerdictFor(breakdown.FinalScore)
	rs := reasons(outcomes, breakdown)

	// Strict posture: a failed CRITICAL check forces BLOCK regardless of
	// the numeric score.
	if e.mode == ModeStrict && verdict != scoring.VerdictBlock && policy.HasCriticalFailure(outcomes) {
		verdict, tier = scoring.VerdictBlock, 3
		rs = append(rs, "critical check failure forces BLOCK under strict enforcement")
	}

	eval := &Evaluation{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		RecordID:   rec.ID,
		RecordHash: rec.RecordHash,
		Packs:      packRefs(packs),
		Checks:     outcomes,
		Breakdown:  breakdown,
		Signal:     verdict,
		Tier:       tier,
		Maturity:   scoring.MaturityFor(breakdown.FinalScore),
		Reasons:    rs,
		Metrics:    evalMetrics(outcomes, time.Since(start)),
		Mode:       e.mode,
	}

	if err := e.append(ctx, chain.EventEvaluationCompleted, req.Actor, map[string]any{
		"evaluation_id": eval.ID,
		"record_hash":   eval.RecordHash,
		"score":         breakdown.FinalScore,
		"signal":        string(verdict),
		"tier":          tier,
		"inputs_hash":   breakdown.Provenance.InputsHash,
	}, chain.WithDecision(rec.ID), chain.WithEvaluation(eval.ID)); err != nil {
		return nil, err
	}

	e.metrics.RecordEvaluation(ctx, string(verdict), breakdown.FinalScore, time.Since(start))
	e.logger.InfoContext(ctx, "evaluation completed",
		"evaluation_id", eval.ID,
		"record_id", rec.ID,
		"score", breakdown.FinalScore,
		"signal", verdict,
		"tier", tier,
		"mode", e.mode,
	)

	return eval, e.enforce(eval)
}

// evaluatePacks fans pack evaluation out across goroutines. Rule
// evaluation is pure, so packs are independent; results keep the request
// pack order.
func (e *Engine) evaluatePacks(ctx context.Context, packs []*policy.Pack, pctx policy.Context) ([]policy.Outcome, error) {
	if len(packs) == 0 {
		return nil, nil
	}

	results := make([][]policy.Outcome, len(packs))
	g, _ := errgroup.WithContext(ctx)
	for i, pack := range packs {
		g.Go(func() error {
			out, err := e.rules.Evaluate(pack, pctx)
			if err != nil {
				return fmt.Errorf("engine: evaluate pack %s: %w", pack.ID, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []policy.Outcome
	for _, out := range results {
		all = append(all, out...)
	}
	return all, nil
}

func (e *Engine) score(req *Request, rec *record.DecisionRecord, outcomes []policy.Outcome) (*scoring.Breakdown, error) {
	if len(req.PackIDs) > 0 {
		return scoring.ScoreAggregate(scoring.AggregateInput{
			Outcomes:           outcomes,
			Citations:          req.Citations,
			Factors:            req.Factors,
			HumanAction:        string(rec.Action),
			OversightConfirmed: req.OversightConfirmed,
			Signal:             req.Signal,
		})
	}
	return scoring.ScoreMCDA(scoring.MCDAInput{
		Factors:    req.Factors,
		Radar:      req.Radar,
		Signal:     req.Signal,
		FatalFlaw:  req.FatalFlaw,
		PHIPresent: req.PHIPresent,
	})
}

// append writes one chain event and mirrors it to the persistent store.
func (e *Engine) append(ctx context.Context, eventType, actor string, payload any, opts ...chain.AppendOption) (err error) {
	ev, err := e.chain.Append(eventType, actor, payload, opts...)
	if err != nil {
		return fmt.Errorf("engine: append %s: %w", eventType, err)
	}
	e.metrics.RecordChainAppend(ctx, eventType)

	if e.store != nil {
		if err := e.store.Persist(ctx, *ev); err != nil {
			// The in-memory chain already holds the event; losing the
			// mirror is reported, not rolled back.
			return fmt.Errorf("engine: persist %s: %w", eventType, err)
		}
	}
	return nil
}

func (e *Engine) enforce(eval *Evaluation) error {
	switch e.mode {
	case ModeGuarded:
		if eval.Signal == scoring.VerdictBlock {
			return fmt.Errorf("%w: score %d (%s)", ErrDecisionBlocked, eval.Breakdown.FinalScore, eval.Signal)
		}
	case ModeStrict:
		if eval.Signal != scoring.VerdictAllow {
			return fmt.Errorf("%w: score %d (%s)", ErrDecisionBlocked, eval.Breakdown.FinalScore, eval.Signal)
		}
	}
	return nil
}

// reasons lists every failed or errored check plus every non-neutral
// modifier, so the verdict is explainable from the evaluation alone.
func reasons(outcomes []policy.Outcome, bd *scoring.Breakdown) []string {
	var rs []string
	for _, o := range policy.SortOutcomesForHashing(outcomes) {
		switch o.Status {
		case policy.StatusFailed:
			rs = append(rs, fmt.Sprintf("[%s/%s] %s", o.Severity, o.RuleID, o.Reason))
		case policy.StatusError:
			rs = append(rs, fmt.Sprintf("[%s/%s] check errored: %s", o.Severity, o.RuleID, o.Reason))
		}
	}
	rs = append(rs, bd.Provenance.AuditNotes...)
	return rs
}

func evalMetrics(outcomes []policy.Outcome, elapsed time.Duration) EvalMetrics {
	m := EvalMetrics{
		ChecksTotal: len(outcomes),
		DurationMS:  float64(elapsed.Microseconds()) / 1000.0,
	}
	for _, o := range outcomes {
		switch o.Status {
		case policy.StatusPassed:
			m.ChecksPassed++
		case policy.StatusFailed:
			m.ChecksFailed++
		case policy.StatusError:
			m.ChecksErrored++
		}
	}
	return m
}

func packRefs(packs []*policy.Pack) []PackRef {
	if len(packs) == 0 {
		return nil
	}
	refs := make([]PackRef, 0, len(packs))
	for _, p := range packs {
		refs = append(refs, PackRef{ID: p.ID, Version: p.Version, Release: p.Release, ContentHash: p.ContentHash})
	}
	return refs
}
