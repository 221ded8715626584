package scoring

import (
	"reflect"
	"testing"

	"github.com/aiact/compliance/internal/models"
)

func req(c models.RequirementCategory, s models.RequirementStatus) RequirementStatus {
	return RequirementStatus{Category: c, Status: s}
}

func TestAggregateCompliance_HalfImplemented(t *testing.T) {
	var reqs []RequirementStatus
	for i, c := range models.RequirementCategories() {
		status := models.StatusNotStarted
		if i%2 == 0 {
			status = models.StatusImplemented
		}
		reqs = append(reqs, req(c, status))
	}

	got := AggregateCompliance(reqs)
	if got.OverallScore != 50 {
		t.Errorf("OverallScore = %v, want 50", got.OverallScore)
	}
	if got.Implemented != 4 || got.Applicable != 8 {
		t.Errorf("counts = %d/%d, want 4/8", got.Implemented, got.Applicable)
	}
	if len(got.Categories) != 8 {
		t.Errorf("expected 8 categories, got %d", len(got.Categories))
	}
}

func TestAggregateCompliance_AllNotApplicable(t *testing.T) {
	reqs := []RequirementStatus{
		req(models.RequirementRiskManagement, models.StatusNotApplicable),
		req(models.RequirementTransparency, models.StatusNotApplicable),
		req(models.RequirementCybersecurity, models.StatusNotApplicable),
	}

	got := AggregateCompliance(reqs)
	if got.OverallScore != EmptyAssessmentScore {
		t.Errorf("OverallScore = %v, want %v", got.OverallScore, EmptyAssessmentScore)
	}
	if len(got.Categories) != 0 {
		t.Errorf("expected no categories, got %+v", got.Categories)
	}
	if got.Categories == nil {
		t.Error("Categories should be an empty slice so it serializes as []")
	}
}

func TestAggregateCompliance_Empty(t *testing.T) {
	got := AggregateCompliance(nil)
	if got.OverallScore != 0 || got.Applicable != 0 || len(got.Categories) != 0 {
		t.Errorf("unexpected summary for empty input: %+v", got)
	}
}

func TestAggregateCompliance_CategoryOrderAndExclusion(t *testing.T) {
	// Input order deliberately reversed relative to the enum order.
	reqs := []RequirementStatus{
		req(models.RequirementCybersecurity, models.StatusImplemented),
		req(models.RequirementHumanOversight, models.StatusInProgress),
		req(models.RequirementHumanOversight, models.StatusImplemented),
		req(models.RequirementDataGovernance, models.StatusNotApplicable),
		req(models.RequirementRiskManagement, models.StatusNotStarted),
	}

	got := AggregateCompliance(reqs)

	want := []CategoryScore{
		{Category: models.RequirementRiskManagement, Implemented: 0, Total: 1, Percentage: 0},
		{Category: models.RequirementHumanOversight, Implemented: 1, Total: 2, Percentage: 50},
		{Category: models.RequirementCybersecurity, Implemented: 1, Total: 1, Percentage: 100},
	}
	if !reflect.DeepEqual(got.Categories, want) {
		t.Errorf("Categories = %+v, want %+v", got.Categories, want)
	}
	if got.OverallScore != 50 {
		t.Errorf("OverallScore = %v, want 50", got.OverallScore)
	}
}

func TestAggregateCompliance_Idempotent(t *testing.T) {
	reqs := []RequirementStatus{
		req(models.RequirementRecordKeeping, models.StatusImplemented),
		req(models.RequirementRecordKeeping, models.StatusNotStarted),
		req(models.RequirementTransparency, models.StatusImplemented),
	}

	first := AggregateCompliance(reqs)
	second := AggregateCompliance(reqs)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("recompute changed result: %+v vs %+v", first, second)
	}
}

func TestComplianceSummary_CategoriesBelow(t *testing.T) {
	s := ComplianceSummary{Categories: []CategoryScore{
		{Category: models.RequirementRiskManagement, Percentage: 100},
		{Category: models.RequirementDataGovernance, Percentage: 79.9},
		{Category: models.RequirementTransparency, Percentage: 80},
	}}

	low := s.CategoriesBelow(CategoryAttentionThreshold)
	if len(low) != 1 || low[0].Category != models.RequirementDataGovernance {
		t.Errorf("CategoriesBelow(80) = %+v", low)
	}
}

func TestStatusesOf(t *testing.T) {
	reqs := []models.RequirementAssessment{
		{Category: models.RequirementRiskManagement, Status: models.StatusImplemented, Title: "A"},
		{Category: models.RequirementCybersecurity, Status: models.StatusInProgress, Title: "B"},
	}
	got := StatusesOf(reqs)
	want := []RequirementStatus{
		{models.RequirementRiskManagement, models.StatusImplemented},
		{models.RequirementCybersecurity, models.StatusInProgress},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("StatusesOf() = %+v, want %+v", got, want)
	}
}
