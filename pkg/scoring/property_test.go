//go:build property
// +build property

// Package scoring_test contains property-based tests for the scoring kernel.
package scoring_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/forge-health-ai/lumen-sdk/pkg/scoring"
)

var genConfidence = gen.OneConstOf(
	scoring.ConfidenceStrong,
	scoring.ConfidenceModerate,
	scoring.ConfidenceLimited,
	scoring.ConfidenceUnverifiable,
)

var genFactorName = gen.OneConstOf(
	scoring.FactorTechnicalMaturity,
	scoring.FactorRegulatoryAlignment,
	scoring.FactorDataProtection,
	scoring.FactorClinicalGovernance,
	scoring.FactorOperationalReadiness,
	scoring.FactorVendorAssurance,
)

var genRating = gen.OneConstOf(scoring.RiskRating(""), scoring.RiskGreen, scoring.RiskAmber, scoring.RiskRed)

func genFactors() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(genFactorName, genConfidence).Map(
		func(vs []interface{}) scoring.EvidenceFactor {
			return scoring.EvidenceFactor{
				Name:       vs[0].(scoring.FactorName),
				Confidence: vs[1].(scoring.ConfidenceLevel),
			}
		}))
}

func genRadar() gopter.Gen {
	return gopter.CombineGens(genRating, genRating, genRating, genRating, genRating, genRating, genRating).Map(
		func(vs []interface{}) scoring.RiskRadar {
			return scoring.RiskRadar{
				Legal:      vs[0].(scoring.RiskRating),
				Labour:     vs[1].(scoring.RiskRating),
				Safety:     vs[2].(scoring.RiskRating),
				Ethics:     vs[3].(scoring.RiskRating),
				Cyber:      vs[4].(scoring.RiskRating),
				Finance:    vs[5].(scoring.RiskRating),
				Reputation: vs[6].(scoring.RiskRating),
			}
		})
}

func genSignal() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(0, 2),
		gen.IntRange(0, 5000),
		gen.OneConstOf("", "bootstrap", "latin-hypercube"),
		gen.Bool(),
	).Map(func(vs []interface{}) scoring.MonteCarloSignal {
		return scoring.MonteCarloSignal{
			Variance: vs[0].(float64),
			Runs:     vs[1].(int),
			Method:   vs[2].(string),
			IsStable: vs[3].(bool),
		}
	})
}

// TestMCDAScoreBounds verifies the final score always lands in [1,100].
func TestMCDAScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("MCDA final score stays within [1,100]", prop.ForAll(
		func(factors []scoring.EvidenceFactor, radar scoring.RiskRadar, sig scoring.MonteCarloSignal, fatal, phi bool) bool {
			bd, err := scoring.ScoreMCDA(scoring.MCDAInput{
				Factors:    factors,
				Radar:      radar,
				Signal:     sig,
				FatalFlaw:  fatal,
				PHIPresent: phi,
			})
			if err != nil {
				return false
			}
			return bd.FinalScore >= 1 && bd.FinalScore <= 100
		},
		genFactors(), genRadar(), genSignal(), gen.Bool(), gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestMCDADeterminism verifies identical inputs yield identical breakdowns.
func TestMCDADeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("MCDA scoring is deterministic", prop.ForAll(
		func(factors []scoring.EvidenceFactor, radar scoring.RiskRadar, sig scoring.MonteCarloSignal) bool {
			in := scoring.MCDAInput{Factors: factors, Radar: radar, Signal: sig}
			a, errA := scoring.ScoreMCDA(in)
			b, errB := scoring.ScoreMCDA(in)
			if errA != nil || errB != nil {
				return errA != nil && errB != nil
			}
			return a.FinalScore == b.FinalScore && a.Provenance.InputsHash == b.Provenance.InputsHash
		},
		genFactors(), genRadar(), genSignal(),
	))

	properties.TestingRun(t)
}

// TestFatalFlawNeverImproves verifies asserting a fatal flaw can only
// lower the score.
func TestFatalFlawNeverImproves(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("fatal flaw never raises the score", prop.ForAll(
		func(factors []scoring.EvidenceFactor, radar scoring.RiskRadar, sig scoring.MonteCarloSignal) bool {
			clean, err1 := scoring.ScoreMCDA(scoring.MCDAInput{Factors: factors, Radar: radar, Signal: sig})
			flawed, err2 := scoring.ScoreMCDA(scoring.MCDAInput{Factors: factors, Radar: radar, Signal: sig, FatalFlaw: true})
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return flawed.FinalScore <= clean.FinalScore
		},
		genFactors(), genRadar(), genSignal(),
	))

	properties.TestingRun(t)
}
