package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/models"
)

// Certification policy.
const (
	// CertificationThreshold is the gap-assessment score a high-risk system
	// needs before a certificate can be issued: every applicable
	// requirement implemented.
	CertificationThreshold = 100.0

	// CategoryAttentionThreshold flags categories in the warnings list.
	CategoryAttentionThreshold = 80.0

	scoreTolerance = 0.01
)

// RequiredGovernanceRoles must each be held by an active person for a
// high-risk system to be certified.
var RequiredGovernanceRoles = []models.RoleType{
	models.RoleSystemOwner,
	models.RoleHumanOversight,
}

// RecommendedGovernanceRoles produce a warning when unassigned.
var RecommendedGovernanceRoles = []models.RoleType{
	models.RoleRiskOwner,
	models.RoleComplianceOfficer,
}

const (
	MsgClassificationMissing = "Risk classification not completed."
	MsgProhibited            = "System uses a prohibited AI practice and cannot be certified."
	MsgGapAssessmentMissing  = "Gap assessment not completed."
	MsgGovernanceMissing     = "AI governance structure not defined."
	MsgRiskRegisterMissing   = "Risk register not created."
	MsgRiskRegisterEmpty     = "Risk register contains no risks."
	MsgTransparencyReminder  = "Limited-risk systems must meet the transparency obligations of Article 50."
	MsgDocumentationMissing  = "Technical documentation (Annex IV) has not been started."
)

// ReadinessInput is a read-only snapshot of everything known about a system.
// Relations that have not been configured are nil.
type ReadinessInput struct {
	System         *models.AISystem
	Classification *models.RiskClassification
	GapAssessment  *models.GapAssessment
	Governance     *models.Governance
	RiskRegister   *models.RiskRegister
	Documentation  *models.TechnicalDocumentation
	Incidents      []models.Incident
}

// ReadinessResult is the verdict returned to callers. A result with
// Ready=false is a normal outcome, not an error.
type ReadinessResult struct {
	SystemID   uuid.UUID            `json:"system_id"`
	SystemName string               `json:"system_name"`
	Category   *models.RiskCategory `json:"category,omitempty"`
	Ready      bool                 `json:"ready"`
	// Score is the gap score recomputed from the requirement statuses, not
	// the value stored on the assessment.
	Score        float64            `json:"score"`
	Summary      string             `json:"summary"`
	MissingItems []string           `json:"missing_items"`
	Warnings     []string           `json:"warnings"`
	Compliance   *ComplianceSummary `json:"compliance,omitempty"`
}

// ValidateReadiness runs the certification checklist over a snapshot.
//
// Order of checks: classification, gap assessment, governance, risk
// register. A PROHIBITED classification stops evaluation with a single
// missing item. Only HIGH_RISK systems run the gap, governance and risk
// checks. The error return is reserved for ErrMalformedSnapshot.
func ValidateReadiness(in ReadinessInput) (*ReadinessResult, error) {
	if err := checkSnapshot(in); err != nil {
		return nil, err
	}

	result := &ReadinessResult{
		SystemID:     in.System.ID,
		SystemName:   in.System.Name,
		MissingItems: []string{},
		Warnings:     []string{},
	}

	var compliance *ComplianceSummary
	if in.GapAssessment != nil {
		s := AggregateCompliance(StatusesOf(in.GapAssessment.Requirements))
		compliance = &s
		result.Compliance = compliance
		result.Score = s.OverallScore
	}

	if in.Classification == nil {
		result.MissingItems = append(result.MissingItems, MsgClassificationMissing)
		result.Summary = ReadinessSummary(result)
		return result, nil
	}

	category := in.Classification.Category
	result.Category = &category

	if category == models.RiskCategoryProhibited {
		result.MissingItems = []string{MsgProhibited}
		result.Summary = ReadinessSummary(result)
		return result, nil
	}

	if category == models.RiskCategoryHigh {
		checkGapAssessment(in.GapAssessment, compliance, result)
		checkGovernance(in.Governance, result)
		checkRiskRegister(in.RiskRegister, result)
		checkDocumentation(in.Documentation, result)
	}

	if category == models.RiskCategoryLimited {
		result.Warnings = append(result.Warnings, MsgTransparencyReminder)
	}
	if n := openCriticalIncidents(in.Incidents); n > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d open critical incident(s) recorded for this system.", n))
	}

	result.Ready = len(result.MissingItems) == 0
	result.Summary = ReadinessSummary(result)
	return result, nil
}

func checkGapAssessment(gap *models.GapAssessment, s *ComplianceSummary, result *ReadinessResult) {
	if gap == nil {
		result.MissingItems = append(result.MissingItems, MsgGapAssessmentMissing)
		return
	}

	if s.OverallScore < CertificationThreshold {
		result.MissingItems = append(result.MissingItems, fmt.Sprintf(
			"Gap assessment score is %s, below the required %s.",
			formatPercent(s.OverallScore), formatPercent(CertificationThreshold)))
		for _, r := range gap.Requirements {
			if r.Status == models.StatusImplemented || r.Status == models.StatusNotApplicable {
				continue
			}
			result.MissingItems = append(result.MissingItems, fmt.Sprintf(
				"Requirement '%s' (%s) is not implemented.", r.Title, r.Category.Title()))
		}
	}

	if low := s.CategoriesBelow(CategoryAttentionThreshold); len(low) > 0 {
		names := make([]string, len(low))
		for i, c := range low {
			names[i] = fmt.Sprintf("%s (%s)", c.Category.Title(), formatPercent(c.Percentage))
		}
		result.Warnings = append(result.Warnings,
			"Categories needing attention: "+strings.Join(names, ", "))
	}

	if math.Abs(gap.OverallScore-s.OverallScore) > scoreTolerance {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Stored gap assessment score (%s) differs from the recomputed score (%s).",
			formatPercent(gap.OverallScore), formatPercent(s.OverallScore)))
	}
}

func checkGovernance(gov *models.Governance, result *ReadinessResult) {
	if gov == nil {
		result.MissingItems = append(result.MissingItems, MsgGovernanceMissing)
		return
	}
	for _, role := range RequiredGovernanceRoles {
		if !gov.HasActiveRole(role) {
			result.MissingItems = append(result.MissingItems,
				fmt.Sprintf("Required governance role not assigned: %s.", role.Title()))
		}
	}
	for _, role := range RecommendedGovernanceRoles {
		if !gov.HasActiveRole(role) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Recommended governance role not assigned: %s.", role.Title()))
		}
	}
}

func checkRiskRegister(reg *models.RiskRegister, result *ReadinessResult) {
	if reg == nil {
		result.MissingItems = append(result.MissingItems, MsgRiskRegisterMissing)
		return
	}
	if len(reg.Risks) == 0 {
		result.MissingItems = append(result.MissingItems, MsgRiskRegisterEmpty)
		return
	}
	for _, risk := range reg.Risks {
		if LevelForScore(risk.Likelihood*risk.Impact) == models.RiskLevelHigh && !risk.HasActiveMitigation() {
			result.MissingItems = append(result.MissingItems,
				fmt.Sprintf("Risk '%s' has no active mitigation.", risk.Title))
		}
	}
	for _, risk := range reg.Risks {
		if risk.ResidualLikelihood == nil || risk.ResidualImpact == nil {
			continue
		}
		if LevelForScore(*risk.ResidualLikelihood**risk.ResidualImpact) == models.RiskLevelHigh {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Risk '%s' remains HIGH after treatment.", risk.Title))
		}
	}
}

// checkDocumentation only warns: technical documentation is not part of the
// certification checklist.
func checkDocumentation(doc *models.TechnicalDocumentation, result *ReadinessResult) {
	if doc == nil {
		result.Warnings = append(result.Warnings, MsgDocumentationMissing)
		return
	}
	missing := doc.MissingSections()
	if len(missing) == 0 {
		return
	}
	names := make([]string, len(missing))
	for i, s := range missing {
		names[i] = s.Title()
	}
	result.Warnings = append(result.Warnings, fmt.Sprintf(
		"Technical documentation is %s complete. Missing sections: %s.",
		formatPercent(doc.Completeness()), strings.Join(names, ", ")))
}

func openCriticalIncidents(incidents []models.Incident) int {
	n := 0
	for _, inc := range incidents {
		if inc.Severity == models.SeverityCritical && inc.Status.IsOpen() {
			n++
		}
	}
	return n
}

// checkSnapshot rejects inputs that cannot come from a consistent database.
func checkSnapshot(in ReadinessInput) error {
	if in.System == nil {
		return fmt.Errorf("%w: system is missing", ErrMalformedSnapshot)
	}
	id := in.System.ID

	if c := in.Classification; c != nil {
		if c.AISystemID != id {
			return fmt.Errorf("%w: classification %s belongs to system %s", ErrMalformedSnapshot, c.ID, c.AISystemID)
		}
		if !c.Category.Valid() {
			return fmt.Errorf("%w: unknown classification category %q", ErrMalformedSnapshot, c.Category)
		}
	}

	if g := in.GapAssessment; g != nil {
		if g.AISystemID != id {
			return fmt.Errorf("%w: gap assessment %s belongs to system %s", ErrMalformedSnapshot, g.ID, g.AISystemID)
		}
		for _, r := range g.Requirements {
			if !r.Category.Valid() || !r.Status.Valid() {
				return fmt.Errorf("%w: requirement %s has category %q status %q",
					ErrMalformedSnapshot, r.ID, r.Category, r.Status)
			}
		}
	}

	if g := in.Governance; g != nil && g.AISystemID != id {
		return fmt.Errorf("%w: governance %s belongs to system %s", ErrMalformedSnapshot, g.ID, g.AISystemID)
	}

	if reg := in.RiskRegister; reg != nil {
		if reg.AISystemID != id {
			return fmt.Errorf("%w: risk register %s belongs to system %s", ErrMalformedSnapshot, reg.ID, reg.AISystemID)
		}
		for _, r := range reg.Risks {
			if _, err := ScoreRisk(r.Likelihood, r.Impact); err != nil {
				return fmt.Errorf("%w: risk %s: %v", ErrMalformedSnapshot, r.ID, err)
			}
			if _, err := ScoreResidual(r.ResidualLikelihood, r.ResidualImpact); err != nil {
				return fmt.Errorf("%w: risk %s: %v", ErrMalformedSnapshot, r.ID, err)
			}
		}
	}

	if d := in.Documentation; d != nil && d.AISystemID != id {
		return fmt.Errorf("%w: technical documentation %s belongs to system %s", ErrMalformedSnapshot, d.ID, d.AISystemID)
	}

	for _, inc := range in.Incidents {
		if inc.AISystemID != id {
			return fmt.Errorf("%w: incident %s belongs to system %s", ErrMalformedSnapshot, inc.ID, inc.AISystemID)
		}
	}
	return nil
}

// ReadinessSummary renders a one-line status label for documents and digests.
func ReadinessSummary(r *ReadinessResult) string {
	if r.Ready {
		return "Ready for certification. All requirements met."
	}

	var status string
	switch {
	case r.Score >= 95:
		status = "Almost Ready"
	case r.Score >= 80:
		status = "In Progress"
	case r.Score >= 50:
		status = "Partially Complete"
	default:
		status = "Getting Started"
	}
	return fmt.Sprintf("%s (%s complete)", status, formatPercent(r.Score))
}

func formatPercent(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f%%", v)
	}
	return fmt.Sprintf("%.1f%%", v)
}
