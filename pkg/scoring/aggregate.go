package scoring

import (
	"fmt"
	"math"

	"github.com/forge-health-ai/lumen-sdk/pkg/canonical"
	"github.com/forge-health-ai/lumen-sdk/pkg/policy"
	"github.com/forge-health-ai/lumen-sdk/pkg/versioning"
)

// Fixed weights for the rule-aggregation strategy. Weights sum to 1.
const (
	weightCitationIntegrity  = 0.25
	weightControlAlignment   = 0.35
	weightEvidenceQuality    = 0.25
	weightExecutionReadiness = 0.15

	// criticalControlCap caps the control-alignment raw score when any
	// CRITICAL control failed, before weighting.
	criticalControlCap = 40.0
)

// severityWeights weight pass/fail contributions inside the
// control-alignment raw score.
var severityWeights = map[policy.Severity]float64{
	policy.SeverityCritical: 4,
	policy.SeverityHigh:     3,
	policy.SeverityMedium:   2,
	policy.SeverityLow:      1,
}

// CitationSet summarizes citation verification for the decision's AI
// output: how many retrieved sources were cited and how many verified.
type CitationSet struct {
	Total    int `json:"total"`
	Verified int `json:"verified"`
}

// AggregateInput drives the rule-aggregation strategy.
type AggregateInput struct {
	Outcomes  []policy.Outcome `json:"outcomes"`
	Citations CitationSet      `json:"citations"`
	Factors   []EvidenceFactor `json:"factors"`

	// HumanAction is the action taken on the AI output:
	// "accepted", "modified" or "rejected".
	HumanAction string `json:"human_action"`

	// OversightConfirmed indicates a qualified human reviewed the output
	// before the action was taken.
	OversightConfirmed bool `json:"oversight_confirmed"`

	Signal MonteCarloSignal `json:"signal"`
}

// ScoreAggregate combines four independently clamped raw scores via the
// fixed weight table, applies the shared variance-degradation modifier,
// and clamps the result to [0,100].
func ScoreAggregate(in AggregateInput) (*Breakdown, error) {
	var notes []string

	citation := clamp(citationIntegrityRaw(in.Citations), 0, 100)
	control := clamp(controlAlignmentRaw(in.Outcomes, &notes), 0, 100)
	evidence := clamp(evidenceQualityRaw(in.Factors), 0, 100)
	execution := clamp(executionReadinessRaw(in.HumanAction, in.OversightConfirmed), 0, 100)

	base := citation*weightCitationIntegrity +
		control*weightControlAlignment +
		evidence*weightEvidenceQuality +
		execution*weightExecutionReadiness

	bd := &Breakdown{BaseScore: base}

	variance, note := varianceModifier(in.Signal)
	bd.Modifiers = append(bd.Modifiers, Modifier{Name: "variance_degradation", Value: variance, Note: note})
	if note != "" {
		notes = append(notes, note)
	}

	bd.FinalScore = int(math.Round(clamp(base*variance, 0, 100)))

	inputsHash, err := aggregateInputsHash(in)
	if err != nil {
		return nil, err
	}
	bd.Provenance = Provenance{
		Algorithm:    versioning.AlgorithmAggregate,
		InputsHash:   inputsHash,
		Reproducible: true,
		AuditNotes:   notes,
	}
	return bd, nil
}

// citationIntegrityRaw scores how much of the AI output's sourcing
// verified. No citations at all is neutral, not perfect.
func citationIntegrityRaw(c CitationSet) float64 {
	if c.Total <= 0 {
		return 50
	}
	verified := c.Verified
	if verified > c.Total {
		verified = c.Total
	}
	return 100 * float64(verified) / float64(c.Total)
}

// controlAlignmentRaw is the severity-weighted pass fraction of the rule
// outcomes. ERROR outcomes count as failures: an unevaluable control is
// never credited. A CRITICAL failure caps the raw score.
func controlAlignmentRaw(outcomes []policy.Outcome, notes *[]string) float64 {
	if len(outcomes) == 0 {
		return 50
	}

	var passed, total float64
	criticalFailed := false
	for _, o := range outcomes {
		w := severityWeights[o.Severity]
		if w == 0 {
			w = 1
		}
		total += w
		switch o.Status {
		case policy.StatusPassed:
			passed += w
		case policy.StatusFailed:
			if o.Severity == policy.SeverityCritical {
				criticalFailed = true
			}
		case policy.StatusError:
			// treated as failed
		}
	}

	raw := 100 * passed / total
	if criticalFailed && raw > criticalControlCap {
		*notes = append(*notes, fmt.Sprintf("critical control failure: control alignment capped at %.0f", criticalControlCap))
		raw = criticalControlCap
	}
	return raw
}

// evidenceQualityRaw is the mean confidence score of the supplied factors.
func evidenceQualityRaw(factors []EvidenceFactor) float64 {
	if len(factors) == 0 {
		return 50
	}

	var sum float64
	for _, f := range factors {
		score, err := f.Confidence.Score()
		if err != nil {
			// Unknown confidence reads as Unverifiable.
			score = confidenceScores[ConfidenceUnverifiable]
		}
		sum += score
	}
	return sum / float64(len(factors))
}

// executionReadinessRaw scores the human side of the decision moment.
func executionReadinessRaw(humanAction string, oversight bool) float64 {
	var raw float64
	switch humanAction {
	case "accepted":
		raw = 85
	case "modified":
		raw = 70
	case "rejected":
		raw = 30
	default:
		raw = 50
	}
	if oversight {
		raw += 10
	}
	return raw
}

// aggregateInputsHash canonicalizes the strategy inputs. The outcome list
// is copied and sorted by (severity desc, rule id) before hashing: pack
// rule order is fixed for evaluation but not semantically meaningful, so
// it must not influence the hash.
func aggregateInputsHash(in AggregateInput) (string, error) {
	hash, err := canonical.Hash(map[string]any{
		"algorithm":           versioning.AlgorithmAggregate,
		"outcomes":            policy.SortOutcomesForHashing(in.Outcomes),
		"citations":           in.Citations,
		"factors":             in.Factors,
		"human_action":        in.HumanAction,
		"oversight_confirmed": in.OversightConfirmed,
		"signal":              in.Signal,
	})
	if err != nil {
		return "", fmt.Errorf("scoring: aggregate inputs hash: %w", err)
	}
	return hash, nil
}
