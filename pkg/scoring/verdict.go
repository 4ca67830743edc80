package scoring

// Verdict is the enforcement signal derived from a final score.
type Verdict string

const (
	VerdictAllow Verdict = "ALLOW"
	VerdictWarn  Verdict = "WARN"
	VerdictBlock Verdict = "BLOCK"
)

// MaturityTier is the qualitative band for a final score, used in
// reports and summaries rather than enforcement.
type MaturityTier string

const (
	TierExcellent MaturityTier = "EXCELLENT"
	TierGood      MaturityTier = "GOOD"
	TierAdequate  MaturityTier = "ADEQUATE"
	TierMarginal  MaturityTier = "MARGINAL"
	TierPoor      MaturityTier = "POOR"
)

// VerdictFor maps a final score onto the enforcement signal and its
// numeric tier: ALLOW is tier 1, WARN tier 2, BLOCK tier 3.
func VerdictFor(score int) (Verdict, int) {
	switch {
	case score >= 80:
		return VerdictAllow, 1
	case score >= 50:
		return VerdictWarn, 2
	default:
		return VerdictBlock, 3
	}
}

// MaturityFor maps a final score onto its qualitative band.
func MaturityFor(score int) MaturityTier {
	switch {
	case score >= 90:
		return TierExcellent
	case score >= 75:
		return TierGood
	case score >= 60:
		return TierAdequate
	case score >= 40:
		return TierMarginal
	default:
		return TierPoor
	}
}
