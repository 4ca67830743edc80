// Package versioning pins the engine and scoring-algorithm versions.
// Algorithm identifiers are recorded in every Provenance so a score can be
// traced to the exact kernel revision that produced it.
package versioning

import "github.com/Masterminds/semver/v3"

const (
	// EngineVersion is the SemVer version of the evaluation engine.
	// Policy packs declare a compatible engine range against this value.
	EngineVersion = "1.2.0"

	// AlgorithmMCDA identifies the MCDA scoring strategy revision.
	AlgorithmMCDA = "lumen-mcda/1.2.0"

	// AlgorithmAggregate identifies the rule-aggregation strategy revision.
	AlgorithmAggregate = "lumen-aggregate/1.2.0"
)

// Engine returns the parsed engine version.
func Engine() *semver.Version {
	return semver.MustParse(EngineVersion)
}
