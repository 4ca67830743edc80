// Package scoring implements the LUMEN scoring kernel: reproducible pure
// functions that combine rule outcomes and qualitative risk signals into a
// single bounded score with full provenance.
package scoring

import "fmt"

// ConfidenceLevel grades the strength of evidence behind a factor.
type ConfidenceLevel string

const (
	ConfidenceStrong       ConfidenceLevel = "Strong"
	ConfidenceModerate     ConfidenceLevel = "Moderate"
	ConfidenceLimited      ConfidenceLevel = "Limited"
	ConfidenceUnverifiable ConfidenceLevel = "Unverifiable"
)

// confidenceScores maps each confidence level to its fixed numeric score.
var confidenceScores = map[ConfidenceLevel]float64{
	ConfidenceStrong:       85,
	ConfidenceModerate:     60,
	ConfidenceLimited:      35,
	ConfidenceUnverifiable: 15,
}

// Score returns the numeric score for the confidence level.
func (c ConfidenceLevel) Score() (float64, error) {
	s, ok := confidenceScores[c]
	if !ok {
		return 0, fmt.Errorf("scoring: unknown confidence level %q", c)
	}
	return s, nil
}

// FactorName is an enum-keyed factor identifier. Free-text names collapse
// to FactorUnknown and take the default weight, so a typo never silently
// reuses another factor's weight.
type FactorName string

const (
	FactorTechnicalMaturity    FactorName = "TechnicalMaturity"
	FactorRegulatoryAlignment  FactorName = "RegulatoryAlignment"
	FactorDataProtection       FactorName = "DataProtection"
	FactorClinicalGovernance   FactorName = "ClinicalGovernance"
	FactorOperationalReadiness FactorName = "OperationalReadiness"
	FactorVendorAssurance      FactorName = "VendorAssurance"
	FactorUnknown              FactorName = "Unknown"
)

// defaultFactorWeight applies to factors outside the fixed table.
const defaultFactorWeight = 0.20

// factorWeights is the fixed per-name weight table.
var factorWeights = map[FactorName]float64{
	FactorTechnicalMaturity:    0.20,
	FactorRegulatoryAlignment:  0.25,
	FactorDataProtection:       0.20,
	FactorClinicalGovernance:   0.15,
	FactorOperationalReadiness: 0.15,
	FactorVendorAssurance:      0.10,
}

// Weight returns the fixed weight for the factor name, or the default for
// unknown names.
func (n FactorName) Weight() float64 {
	if w, ok := factorWeights[n]; ok {
		return w
	}
	return defaultFactorWeight
}

// ParseFactorName maps a raw name onto the enum, collapsing unrecognized
// names to FactorUnknown.
func ParseFactorName(raw string) FactorName {
	switch FactorName(raw) {
	case FactorTechnicalMaturity, FactorRegulatoryAlignment, FactorDataProtection,
		FactorClinicalGovernance, FactorOperationalReadiness, FactorVendorAssurance:
		return FactorName(raw)
	default:
		return FactorUnknown
	}
}

// EvidenceFactor is one qualitative MCDA input.
type EvidenceFactor struct {
	Name       FactorName      `json:"name"`
	Confidence ConfidenceLevel `json:"confidence"`
}

// RiskRating is one axis reading on the risk radar.
type RiskRating string

const (
	RiskGreen RiskRating = "Green"
	RiskAmber RiskRating = "Amber"
	RiskRed   RiskRating = "Red"
)

// RiskRadar is a qualitative snapshot across up to seven risk axes.
// An empty axis means "not assessed" and contributes nothing. The radar is
// a pure input signal: it is never derived from rule outcomes here.
type RiskRadar struct {
	Legal      RiskRating `json:"legal,omitempty"`
	Labour     RiskRating `json:"labour,omitempty"`
	Safety     RiskRating `json:"safety,omitempty"`
	Ethics     RiskRating `json:"ethics,omitempty"`
	Cyber      RiskRating `json:"cyber,omitempty"`
	Finance    RiskRating `json:"finance,omitempty"`
	Reputation RiskRating `json:"reputation,omitempty"`
}

// axes returns the populated axis readings.
func (r RiskRadar) axes() []RiskRating {
	all := []RiskRating{r.Legal, r.Labour, r.Safety, r.Ethics, r.Cyber, r.Finance, r.Reputation}
	var set []RiskRating
	for _, a := range all {
		if a != "" {
			set = append(set, a)
		}
	}
	return set
}

// Counts returns the number of Red and Amber axes.
func (r RiskRadar) Counts() (red, amber int) {
	for _, a := range r.axes() {
		switch a {
		case RiskRed:
			red++
		case RiskAmber:
			amber++
		}
	}
	return red, amber
}

// MonteCarloSignal summarizes a stochastic robustness analysis performed
// upstream. Runs == 0 or an unresolved method means the signal is unknown
// and is treated pessimistically, never optimistically.
type MonteCarloSignal struct {
	Variance float64 `json:"variance"`
	Runs     int     `json:"runs"`
	Method   string  `json:"method"`
	IsStable bool    `json:"is_stable"`
}

// Unknown reports whether the signal carries no usable information.
func (s MonteCarloSignal) Unknown() bool {
	return s.Runs <= 0 || s.Method == ""
}

// Modifier is one multiplicative adjustment applied to the base score.
type Modifier struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Note  string  `json:"note,omitempty"`
}

// Provenance proves how a score was derived: the algorithm revision, a
// content-addressed hash of the canonicalized inputs, and the ordered
// audit notes for every non-neutral adjustment.
type Provenance struct {
	Algorithm    string   `json:"algorithm"`
	InputsHash   string   `json:"inputs_hash"`
	Reproducible bool     `json:"reproducible"`
	AuditNotes   []string `json:"audit_notes"`
}

// Breakdown is the full decomposition of one score.
type Breakdown struct {
	BaseScore         float64    `json:"base_score"`
	Modifiers         []Modifier `json:"modifiers"`
	HardGateTriggered bool       `json:"hard_gate_triggered"`
	FinalScore        int        `json:"final_score"`
	Provenance        Provenance `json:"provenance"`
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
