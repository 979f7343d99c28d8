// Package risk scores processing activities deterministically. The same
// scorer backs pre-creation checks and the periodic recomputation that
// repairs stored risk levels, so it must stay pure: no store access, no
// clock, no randomness.
package risk

import "concordia/internal/records/models"

// Score weights and thresholds.
const (
	weightBiometric     = 3
	weightHealth        = 3
	weightTransfers     = 2
	weightMassiveVolume = 2

	thresholdHigh   = 5
	thresholdMedium = 3
)

// Score computes the numeric risk score for an activity, persisted or not.
func Score(a *models.ProcessingActivity) int {
	if a == nil {
		return 0
	}
	score := 0
	if a.HasCategory(models.CategoryBiometric) {
		score += weightBiometric
	}
	if a.HasCategory(models.CategoryHealth) {
		score += weightHealth
	}
	if a.InternationalTransfers {
		score += weightTransfers
	}
	if a.DataVolume == models.VolumeMassive {
		score += weightMassiveVolume
	}
	return score
}

// Level maps a score to a risk level.
func Level(score int) models.RiskLevel {
	switch {
	case score >= thresholdHigh:
		return models.RiskHigh
	case score >= thresholdMedium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Evaluate scores the activity and returns the resulting level.
func Evaluate(a *models.ProcessingActivity) models.RiskLevel {
	return Level(Score(a))
}

// Consistent reports whether the stored level agrees with the recomputed one.
// CRITICAL is a manual escalation above HIGH and is never downgraded by the
// engine, so it is consistent with any recomputed level.
func Consistent(a *models.ProcessingActivity) bool {
	if a.RiskLevel == models.RiskCritical {
		return true
	}
	return a.RiskLevel == Evaluate(a)
}
