package scoring

import (
	"github.com/aiact/compliance/internal/models"
)

// EmptyAssessmentScore is reported when no requirement is applicable. An
// assessment with nothing to implement is shown as 0% rather than 100% so
// it never reads as fully compliant.
const EmptyAssessmentScore = 0.0

// RequirementStatus is the slice of a requirement the aggregator needs.
type RequirementStatus struct {
	Category models.RequirementCategory `json:"category"`
	Status   models.RequirementStatus   `json:"status"`
}

// CategoryScore is the per-category breakdown consumed by report templates.
type CategoryScore struct {
	Category    models.RequirementCategory `json:"category"`
	Implemented int                        `json:"implemented"`
	Total       int                        `json:"total"`
	Percentage  float64                    `json:"percentage"`
}

// ComplianceSummary is the aggregate of a gap assessment.
type ComplianceSummary struct {
	OverallScore float64         `json:"overall_score"`
	Implemented  int             `json:"implemented"`
	Applicable   int             `json:"applicable"`
	Categories   []CategoryScore `json:"categories"`
}

// StatusesOf projects requirement records onto the aggregator input.
func StatusesOf(reqs []models.RequirementAssessment) []RequirementStatus {
	out := make([]RequirementStatus, len(reqs))
	for i, r := range reqs {
		out[i] = RequirementStatus{Category: r.Category, Status: r.Status}
	}
	return out
}

// AggregateCompliance computes the overall and per-category implementation
// percentages. NOT_APPLICABLE requirements are left out of every count,
// categories without applicable requirements are omitted, and the breakdown
// follows models.RequirementCategories order. Requirements in an unknown
// category count toward the overall score only.
func AggregateCompliance(reqs []RequirementStatus) ComplianceSummary {
	type tally struct{ implemented, total int }
	byCategory := make(map[models.RequirementCategory]*tally)

	summary := ComplianceSummary{Categories: []CategoryScore{}}
	for _, r := range reqs {
		if r.Status == models.StatusNotApplicable {
			continue
		}
		summary.Applicable++

		t, ok := byCategory[r.Category]
		if !ok {
			t = &tally{}
			byCategory[r.Category] = t
		}
		t.total++

		if r.Status == models.StatusImplemented {
			summary.Implemented++
			t.implemented++
		}
	}

	summary.OverallScore = percentage(summary.Implemented, summary.Applicable)

	for _, c := range models.RequirementCategories() {
		t, ok := byCategory[c]
		if !ok || t.total == 0 {
			continue
		}
		summary.Categories = append(summary.Categories, CategoryScore{
			Category:    c,
			Implemented: t.implemented,
			Total:       t.total,
			Percentage:  percentage(t.implemented, t.total),
		})
	}

	return summary
}

// CategoriesBelow returns the categories whose percentage is under threshold,
// in breakdown order.
func (s ComplianceSummary) CategoriesBelow(threshold float64) []CategoryScore {
	var out []CategoryScore
	for _, c := range s.Categories {
		if c.Percentage < threshold {
			out = append(out, c)
		}
	}
	return out
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return EmptyAssessmentScore
	}
	return 100 * float64(part) / float64(whole)
}
