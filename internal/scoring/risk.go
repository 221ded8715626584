package scoring

import (
	"fmt"

	"github.com/aiact/compliance/internal/models"
)

// Risk scoring policy. The thresholds are fixed: LOW covers scores up to 6,
// MEDIUM up to 15 and HIGH everything above. They are not configurable.
const (
	MinRating = 1
	MaxRating = 5

	LowRiskMaxScore    = 6
	MediumRiskMaxScore = 15
)

// RiskScore is a likelihood x impact product and its level.
type RiskScore struct {
	Score int              `json:"score"`
	Level models.RiskLevel `json:"level"`
}

// ScoreRisk multiplies likelihood by impact and maps the product to a level.
// Both ratings must lie in [MinRating, MaxRating].
func ScoreRisk(likelihood, impact int) (RiskScore, error) {
	verr := &ValidationError{}
	checkRating(verr, "likelihood", likelihood)
	checkRating(verr, "impact", impact)
	if err := verr.ErrOrNil(); err != nil {
		return RiskScore{}, err
	}

	score := likelihood * impact
	return RiskScore{Score: score, Level: LevelForScore(score)}, nil
}

// LevelForScore maps a product in [1,25] to its risk level.
func LevelForScore(score int) models.RiskLevel {
	switch {
	case score <= LowRiskMaxScore:
		return models.RiskLevelLow
	case score <= MediumRiskMaxScore:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelHigh
	}
}

// ScoreResidual scores the post-treatment ratings. The result is nil when
// either rating is absent; ratings that are present are still range checked.
func ScoreResidual(likelihood, impact *int) (*RiskScore, error) {
	verr := &ValidationError{}
	if likelihood != nil {
		checkRating(verr, "residual_likelihood", *likelihood)
	}
	if impact != nil {
		checkRating(verr, "residual_impact", *impact)
	}
	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}

	if likelihood == nil || impact == nil {
		return nil, nil
	}
	score := *likelihood * *impact
	return &RiskScore{Score: score, Level: LevelForScore(score)}, nil
}

// ApplyRiskScores recomputes every derived field of r from its ratings.
// Residual fields are cleared when the residual pair is incomplete.
func ApplyRiskScores(r *models.Risk) error {
	verr := &ValidationError{}

	inherent, err := ScoreRisk(r.Likelihood, r.Impact)
	if err != nil {
		verr.Merge(asValidation(err))
	}
	residual, err := ScoreResidual(r.ResidualLikelihood, r.ResidualImpact)
	if err != nil {
		verr.Merge(asValidation(err))
	}
	if err := verr.ErrOrNil(); err != nil {
		return err
	}

	r.InherentRiskScore = inherent.Score
	r.RiskLevel = inherent.Level
	if residual == nil {
		r.ResidualRiskScore = nil
		r.ResidualRiskLevel = nil
		return nil
	}
	score, level := residual.Score, residual.Level
	r.ResidualRiskScore = &score
	r.ResidualRiskLevel = &level
	return nil
}

func checkRating(verr *ValidationError, field string, v int) {
	if v < MinRating || v > MaxRating {
		verr.Add(field, fmt.Sprintf("must be an integer between %d and %d", MinRating, MaxRating))
	}
}

func asValidation(err error) *ValidationError {
	if v, ok := err.(*ValidationError); ok {
		return v
	}
	return NewValidationError("risk", err.Error())
}
