package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/forge-health-ai/lumen-sdk/pkg/canonical"
	"github.com/forge-health-ai/lumen-sdk/pkg/versioning"
)

// Fixed modifier constants for the MCDA strategy.
const (
	// fatalFlawModifier pins the risk modifier when a fatal flaw is
	// asserted, regardless of the radar contents.
	fatalFlawModifier = 0.42

	// neutralBaseScore is the defined base for an empty factor list.
	neutralBaseScore = 50.0

	// unknownVarianceModifier is the fixed penalty for an unknown
	// Monte Carlo signal.
	unknownVarianceModifier = 0.75

	// varianceFloorModifier bounds how far variance degradation can cut
	// the score.
	varianceFloorModifier = 0.25
)

// MCDAInput is the full input to the MCDA strategy. All fields are value
// types; scoring never mutates caller state.
type MCDAInput struct {
	Factors []EvidenceFactor `json:"factors"`
	Radar   RiskRadar        `json:"radar"`
	Signal  MonteCarloSignal `json:"signal"`

	// FatalFlaw short-circuits the risk modifier to its hard value.
	FatalFlaw bool `json:"fatal_flaw"`

	// PHIPresent arms the domain hard gate: PHI handling demands a
	// credible RegulatoryAlignment factor.
	PHIPresent bool `json:"phi_present"`
}

// ScoreMCDA runs the multi-criteria strategy: weighted factor aggregation,
// then the risk-radar modifier, the PHI hard gate, and the
// variance-degradation modifier, composed multiplicatively and clamped to
// [1,100]. The result carries a Provenance sufficient to explain every
// adjustment without re-running the computation.
func ScoreMCDA(in MCDAInput) (*Breakdown, error) {
	var notes []string

	base, err := mcdaBase(in.Factors, &notes)
	if err != nil {
		return nil, err
	}

	bd := &Breakdown{BaseScore: base}

	// 1. Risk-radar modifier.
	risk, note := riskModifier(in.Radar, in.FatalFlaw)
	bd.Modifiers = append(bd.Modifiers, Modifier{Name: "risk_radar", Value: risk, Note: note})
	if note != "" {
		notes = append(notes, note)
	}

	// 2. Domain hard gate.
	gate, note := phiHardGate(in.PHIPresent, in.Factors)
	bd.Modifiers = append(bd.Modifiers, Modifier{Name: "phi_hard_gate", Value: gate, Note: note})
	if note != "" {
		bd.HardGateTriggered = true
		notes = append(notes, note)
	}

	// 3. Variance degradation.
	variance, note := varianceModifier(in.Signal)
	bd.Modifiers = append(bd.Modifiers, Modifier{Name: "variance_degradation", Value: variance, Note: note})
	if note != "" {
		notes = append(notes, note)
	}

	product := 1.0
	for _, m := range bd.Modifiers {
		product *= m.Value
	}
	bd.FinalScore = int(math.Round(clamp(base*product, 1, 100)))

	inputsHash, err := mcdaInputsHash(in)
	if err != nil {
		return nil, err
	}
	bd.Provenance = Provenance{
		Algorithm:    versioning.AlgorithmMCDA,
		InputsHash:   inputsHash,
		Reproducible: true,
		AuditNotes:   notes,
	}
	return bd, nil
}

// mcdaBase computes the weighted factor sum. The sum is intentionally not
// normalized by the total weight: omitting factors lowers the achievable
// base score, a deliberate pessimism bias.
func mcdaBase(factors []EvidenceFactor, notes *[]string) (float64, error) {
	if len(factors) == 0 {
		*notes = append(*notes, fmt.Sprintf("no evidence factors supplied: neutral base score %.0f applied", neutralBaseScore))
		return neutralBaseScore, nil
	}

	var base float64
	for _, f := range factors {
		score, err := f.Confidence.Score()
		if err != nil {
			return 0, err
		}
		base += score * f.Name.Weight()
	}
	return base, nil
}

// riskModifier maps the radar's Red/Amber counts onto a fixed threshold
// table. A fatal flaw overrides the table entirely.
func riskModifier(radar RiskRadar, fatalFlaw bool) (float64, string) {
	if fatalFlaw {
		return fatalFlawModifier, fmt.Sprintf("fatal flaw detected: risk modifier pinned at %.2f", fatalFlawModifier)
	}

	red, amber := radar.Counts()
	switch {
	case red >= 3:
		return 0.50, fmt.Sprintf("%d red risk axes: modifier 0.50", red)
	case red == 2:
		return 0.60, "2 red risk axes: modifier 0.60"
	case red == 1:
		return 0.75, "1 red risk axis: modifier 0.75"
	case amber >= 4:
		return 0.80, fmt.Sprintf("%d amber risk axes: modifier 0.80", amber)
	case amber >= 2:
		return 0.90, fmt.Sprintf("%d amber risk axes: modifier 0.90", amber)
	case amber == 1:
		return 0.95, "1 amber risk axis: modifier 0.95"
	default:
		return 1.0, ""
	}
}

// phiGateModifiers is the hard-gate severity ladder, non-increasing in
// confidence order Strong > Moderate > Limited > Unverifiable.
var phiGateModifiers = map[ConfidenceLevel]float64{
	ConfidenceStrong:       1.00,
	ConfidenceModerate:     0.95,
	ConfidenceLimited:      0.80,
	ConfidenceUnverifiable: 0.55,
}

// phiGateAbsent applies when PHI is present but no RegulatoryAlignment
// factor was supplied at all.
const phiGateAbsent = 0.55

// phiHardGate penalizes PHI handling that lacks credible regulatory
// alignment evidence. Independent of the risk radar by design.
func phiHardGate(phiPresent bool, factors []EvidenceFactor) (float64, string) {
	if !phiPresent {
		return 1.0, ""
	}

	for _, f := range factors {
		if f.Name == FactorRegulatoryAlignment {
			m := phiGateModifiers[f.Confidence]
			if m == 0 {
				m = phiGateAbsent
			}
			if m == 1.0 {
				return 1.0, ""
			}
			return m, fmt.Sprintf("PHI present with %s regulatory alignment: hard gate modifier %.2f", f.Confidence, m)
		}
	}
	return phiGateAbsent, fmt.Sprintf("PHI present without a regulatory alignment factor: hard gate modifier %.2f", phiGateAbsent)
}

// varianceModifier degrades the score when the Monte Carlo signal shows
// instability. An unknown signal is penalized, never rewarded.
func varianceModifier(sig MonteCarloSignal) (float64, string) {
	if sig.Unknown() {
		return unknownVarianceModifier, fmt.Sprintf("monte carlo signal unknown: fixed modifier %.2f", unknownVarianceModifier)
	}
	if sig.IsStable {
		return 1.0, ""
	}

	v := math.Min(1, math.Max(0, sig.Variance))
	m := math.Max(varianceFloorModifier, 1.0-0.75*v)
	return m, fmt.Sprintf("unstable monte carlo signal (variance %.3f over %d runs): modifier %.2f", sig.Variance, sig.Runs, m)
}

// mcdaInputsHash canonicalizes the strategy inputs with factors sorted by
// (name, confidence): factor order is not semantically meaningful and must
// not influence the hash.
func mcdaInputsHash(in MCDAInput) (string, error) {
	factors := make([]EvidenceFactor, len(in.Factors))
	copy(factors, in.Factors)
	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Name != factors[j].Name {
			return factors[i].Name < factors[j].Name
		}
		return factors[i].Confidence < factors[j].Confidence
	})

	hash, err := canonical.Hash(map[string]any{
		"algorithm":   versioning.AlgorithmMCDA,
		"factors":     factors,
		"radar":       in.Radar,
		"signal":      in.Signal,
		"fatal_flaw":  in.FatalFlaw,
		"phi_present": in.PHIPresent,
	})
	if err != nil {
		return "", fmt.Errorf("scoring: mcda inputs hash: %w", err)
	}
	return hash, nil
}
