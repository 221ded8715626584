package scoring

import (
	"errors"
	"testing"

	"github.com/aiact/compliance/internal/models"
)

func intPtr(v int) *int { return &v }

func TestScoreRisk_Boundaries(t *testing.T) {
	tests := []struct {
		likelihood int
		impact     int
		wantScore  int
		wantLevel  models.RiskLevel
	}{
		{1, 1, 1, models.RiskLevelLow},
		{2, 3, 6, models.RiskLevelLow},
		{3, 3, 9, models.RiskLevelMedium},
		{3, 5, 15, models.RiskLevelMedium},
		{4, 4, 16, models.RiskLevelHigh},
		{5, 5, 25, models.RiskLevelHigh},
		{1, 5, 5, models.RiskLevelLow},
		{2, 4, 8, models.RiskLevelMedium},
	}

	for _, tt := range tests {
		got, err := ScoreRisk(tt.likelihood, tt.impact)
		if err != nil {
			t.Fatalf("ScoreRisk(%d, %d) error: %v", tt.likelihood, tt.impact, err)
		}
		if got.Score != tt.wantScore || got.Level != tt.wantLevel {
			t.Errorf("ScoreRisk(%d, %d) = %+v, want {%d %s}",
				tt.likelihood, tt.impact, got, tt.wantScore, tt.wantLevel)
		}
	}
}

func TestScoreRisk_FullGrid(t *testing.T) {
	for l := MinRating; l <= MaxRating; l++ {
		for i := MinRating; i <= MaxRating; i++ {
			got, err := ScoreRisk(l, i)
			if err != nil {
				t.Fatalf("ScoreRisk(%d, %d) error: %v", l, i, err)
			}
			score := l * i
			if got.Score != score {
				t.Errorf("ScoreRisk(%d, %d).Score = %d, want %d", l, i, got.Score, score)
			}

			var want models.RiskLevel
			switch {
			case score <= 6:
				want = models.RiskLevelLow
			case score >= 7 && score <= 15:
				want = models.RiskLevelMedium
			case score >= 16:
				want = models.RiskLevelHigh
			}
			if got.Level != want {
				t.Errorf("ScoreRisk(%d, %d).Level = %s, want %s", l, i, got.Level, want)
			}
		}
	}
}

func TestScoreRisk_OutOfRange(t *testing.T) {
	tests := []struct {
		name       string
		likelihood int
		impact     int
		fields     []string
	}{
		{"zero likelihood", 0, 3, []string{"likelihood"}},
		{"impact too high", 3, 6, []string{"impact"}},
		{"both invalid", -1, 9, []string{"likelihood", "impact"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ScoreRisk(tt.likelihood, tt.impact)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(verr.Fields) != len(tt.fields) {
				t.Errorf("fields = %v, want %v", verr.Fields, tt.fields)
			}
			for _, f := range tt.fields {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("missing field %q in %v", f, verr.Fields)
				}
			}
		})
	}
}

func TestScoreResidual(t *testing.T) {
	got, err := ScoreResidual(nil, intPtr(3))
	if err != nil || got != nil {
		t.Errorf("ScoreResidual(nil, 3) = %v, %v; want nil, nil", got, err)
	}

	got, err = ScoreResidual(intPtr(2), nil)
	if err != nil || got != nil {
		t.Errorf("ScoreResidual(2, nil) = %v, %v; want nil, nil", got, err)
	}

	got, err = ScoreResidual(intPtr(2), intPtr(4))
	if err != nil {
		t.Fatalf("ScoreResidual(2, 4) error: %v", err)
	}
	if got.Score != 8 || got.Level != models.RiskLevelMedium {
		t.Errorf("ScoreResidual(2, 4) = %+v", got)
	}

	_, err = ScoreResidual(intPtr(6), nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for residual_likelihood=6, got %v", err)
	}
	if _, ok := verr.Fields["residual_likelihood"]; !ok {
		t.Errorf("expected residual_likelihood field, got %v", verr.Fields)
	}
}

func TestApplyRiskScores(t *testing.T) {
	risk := &models.Risk{
		Title:              "Biased screening",
		Likelihood:         4,
		Impact:             5,
		ResidualLikelihood: intPtr(2),
		ResidualImpact:     intPtr(2),
	}
	if err := ApplyRiskScores(risk); err != nil {
		t.Fatalf("ApplyRiskScores() error: %v", err)
	}
	if risk.InherentRiskScore != 20 || risk.RiskLevel != models.RiskLevelHigh {
		t.Errorf("inherent = %d %s, want 20 HIGH", risk.InherentRiskScore, risk.RiskLevel)
	}
	if risk.ResidualRiskScore == nil || *risk.ResidualRiskScore != 4 {
		t.Errorf("residual score = %v, want 4", risk.ResidualRiskScore)
	}
	if risk.ResidualRiskLevel == nil || *risk.ResidualRiskLevel != models.RiskLevelLow {
		t.Errorf("residual level = %v, want LOW", risk.ResidualRiskLevel)
	}

	// Dropping one residual rating clears the derived residual fields.
	risk.ResidualImpact = nil
	if err := ApplyRiskScores(risk); err != nil {
		t.Fatalf("ApplyRiskScores() error: %v", err)
	}
	if risk.ResidualRiskScore != nil || risk.ResidualRiskLevel != nil {
		t.Errorf("residual fields not cleared: %v %v", risk.ResidualRiskScore, risk.ResidualRiskLevel)
	}
}

func TestApplyRiskScores_CollectsAllFields(t *testing.T) {
	risk := &models.Risk{Likelihood: 0, Impact: 3, ResidualLikelihood: intPtr(9), ResidualImpact: intPtr(1)}
	err := ApplyRiskScores(risk)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	for _, f := range []string{"likelihood", "residual_likelihood"} {
		if _, ok := verr.Fields[f]; !ok {
			t.Errorf("missing field %q in %v", f, verr.Fields)
		}
	}
	if risk.InherentRiskScore != 0 {
		t.Error("derived fields written despite validation failure")
	}
}
