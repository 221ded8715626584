package reports

import (
	"fmt"
	"strings"
	"time"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
)

const dateLayout = "January 2, 2006"

// CertificateData is the input of the compliance certificate. A result
// that is not ready produces a draft assessment instead.
type CertificateData struct {
	OrganizationName    string
	IssuerName          string
	System              *models.AISystem
	Readiness           *scoring.ReadinessResult
	HarmonizedStandards []string
	IssuedAt            time.Time
}

// CertificateKind is "Certificate" for ready systems and "Assessment"
// for draft exports.
func CertificateKind(r *scoring.ReadinessResult) string {
	if r.Ready {
		return "Certificate"
	}
	return "Assessment"
}

func BuildCertificate(data CertificateData) *Document {
	r := data.Readiness
	title := "EU AI Act Compliance Certificate"
	if !r.Ready {
		title = "EU AI Act Compliance Assessment"
	}

	doc := NewDocument(title)
	doc.GeneratedAt = data.IssuedAt
	if r.Ready {
		doc.Subtitle = "CERTIFIED COMPLIANT"
	} else {
		doc.Subtitle = "COMPLIANCE IN PROGRESS (DRAFT)"
	}

	category := "Not classified"
	if r.Category != nil {
		category = r.Category.Title()
	}

	doc.AddSection("AI System Identification")
	doc.AddSummaryTable(
		KeyValue{"System Name", data.System.Name},
		KeyValue{"Business Purpose", data.System.BusinessPurpose},
		KeyValue{"Risk Category", category},
		KeyValue{"Deployment Status", data.System.DeploymentStatus.Label()},
		KeyValue{"Provider", data.OrganizationName},
	)

	docID := fmt.Sprintf("AIACT-%s-%s", strings.ToUpper(data.System.ID.String()[:8]), data.IssuedAt.Format("20060102"))
	doc.AddSection("Document Control")
	doc.AddSummaryTable(
		KeyValue{"Document ID", docID},
		KeyValue{"Version", "1.0"},
		KeyValue{"Issue Date", data.IssuedAt.Format(dateLayout)},
		KeyValue{"Valid Until", data.IssuedAt.AddDate(1, 0, 0).Format(dateLayout)},
		KeyValue{"Status", scoring.ReadinessSummary(r)},
	)

	doc.AddSection("Compliance Assessment Summary")
	doc.AddParagraph(fmt.Sprintf("Overall compliance score: %s", percent(r.Score)))
	if r.Compliance != nil && len(r.Compliance.Categories) > 0 {
		rows := make([][]string, 0, len(r.Compliance.Categories))
		for _, c := range r.Compliance.Categories {
			status := "Needs Work"
			if c.Percentage >= scoring.CertificationThreshold {
				status = "Compliant"
			}
			rows = append(rows, []string{
				fmt.Sprintf("%s (%s)", c.Category.Title(), c.Category.Article()),
				status,
				fmt.Sprintf("%d/%d (%s)", c.Implemented, c.Total, percent(c.Percentage)),
			})
		}
		doc.AddTable([]string{"Compliance Area", "Status", "Score"}, rows)
	}

	if r.Ready {
		doc.AddSection("Declaration of Conformity")
		doc.AddParagraph(fmt.Sprintf(
			"%s declares that the AI system %q has been assessed against the requirements of Regulation (EU) 2024/1689 "+
				"(the EU AI Act) applicable to its risk category, and that all applicable requirements are implemented.",
			data.OrganizationName, data.System.Name,
		))
	}

	if len(data.HarmonizedStandards) > 0 {
		doc.AddSection("Harmonized Standards Applied")
		doc.AddBullets(data.HarmonizedStandards...)
	}

	if len(r.MissingItems) > 0 {
		doc.AddSection("Outstanding Compliance Items")
		doc.AddParagraph("The following items must be completed before a certificate can be issued:")
		for i, item := range r.MissingItems {
			doc.AddIndented(fmt.Sprintf("%d. %s", i+1, item), 1)
		}
	}

	if len(r.Warnings) > 0 {
		doc.AddSection("Advisory Notices")
		doc.AddBullets(r.Warnings...)
	}

	doc.AddSection("Certification Statement")
	if r.Ready {
		doc.AddParagraph("This certificate confirms that the AI system met every certification check at the time of issue. " +
			"It must be reviewed when the system, its intended purpose or its risk profile changes.")
	} else {
		doc.AddBoldParagraph("DRAFT: this document is not a certificate of compliance.")
		doc.AddParagraph("It records the current compliance state so that outstanding items can be tracked.")
	}

	doc.Footer = []string{
		fmt.Sprintf("Issued by %s on %s.", data.IssuerName, data.IssuedAt.Format(dateLayout)),
		"For audit and compliance purposes only.",
	}
	return doc
}

// BuildGapAssessmentReport lays out one gap assessment. summary is the
// recomputed aggregate of gap.Requirements.
func BuildGapAssessmentReport(issuer string, sys *models.AISystem, gap *models.GapAssessment, summary scoring.ComplianceSummary) *Document {
	doc := NewDocument("EU AI Act Gap Assessment Report")

	assessed := gap.UpdatedAt
	if gap.LastAssessedDate != nil {
		assessed = *gap.LastAssessedDate
	}
	doc.AddSummaryTable(
		KeyValue{"AI System", sys.Name},
		KeyValue{"Assessment Date", assessed.Format(dateLayout)},
		KeyValue{"Overall Compliance Score", percent(summary.OverallScore)},
		KeyValue{"Requirements Implemented", fmt.Sprintf("%d of %d applicable", summary.Implemented, summary.Applicable)},
	)

	doc.AddSection("AI System Information")
	doc.AddBullets(
		"Name: "+sys.Name,
		"Business Purpose: "+sys.BusinessPurpose,
		"Deployment Status: "+sys.DeploymentStatus.Label(),
	)

	doc.AddSection("Compliance Overview")
	for _, c := range summary.Categories {
		doc.AddBullets(fmt.Sprintf("%s: %d/%d (%s)", c.Category.Title(), c.Implemented, c.Total, percent(c.Percentage)))
	}
	if below := summary.CategoriesBelow(scoring.CategoryAttentionThreshold); len(below) > 0 {
		names := make([]string, len(below))
		for i, c := range below {
			names[i] = c.Category.Title()
		}
		doc.AddBoldParagraph("Categories needing attention: " + strings.Join(names, ", "))
	}

	byCategory := map[models.RequirementCategory][]models.RequirementAssessment{}
	for _, req := range gap.Requirements {
		byCategory[req.Category] = append(byCategory[req.Category], req)
	}

	doc.AddSection("Detailed Gap Assessment")
	for _, cat := range models.RequirementCategories() {
		reqs := byCategory[cat]
		if len(reqs) == 0 {
			continue
		}
		doc.AddSubsection(fmt.Sprintf("%s (%s)", cat.Title(), cat.Article()))
		for _, req := range reqs {
			doc.AddBoldParagraph(fmt.Sprintf("[%s] %s", req.Status.Label(), req.Title))
			if req.Description != "" {
				doc.AddIndented(req.Description, 1)
			}
			doc.AddIndented("Regulatory Reference: "+req.RegulatoryReference, 1)
			doc.AddIndented("Priority: "+string(req.Priority), 1)
			if req.Notes != "" {
				doc.AddIndented("Notes: "+req.Notes, 1)
			}
			if len(req.Evidence) > 0 {
				doc.AddIndented(fmt.Sprintf("Evidence (%d):", len(req.Evidence)), 1)
				for _, ev := range req.Evidence {
					doc.AddIndented("- "+ev.Title, 2)
				}
			}
		}
	}

	doc.Footer = reportFooter(issuer)
	return doc
}

// BuildRiskRegisterReport lays out a risk register with its treatments
// and mitigation actions.
func BuildRiskRegisterReport(issuer string, sys *models.AISystem, reg *models.RiskRegister, now time.Time) *Document {
	doc := NewDocument("AI Risk Register Report")

	counts := map[models.RiskLevel]int{}
	unmitigated := 0
	for _, r := range reg.Risks {
		counts[r.RiskLevel]++
		if r.RiskLevel == models.RiskLevelHigh && !r.HasActiveMitigation() {
			unmitigated++
		}
	}

	doc.AddSummaryTable(
		KeyValue{"AI System", sys.Name},
		KeyValue{"Total Risks", fmt.Sprint(len(reg.Risks))},
		KeyValue{"High", fmt.Sprint(counts[models.RiskLevelHigh])},
		KeyValue{"Medium", fmt.Sprint(counts[models.RiskLevelMedium])},
		KeyValue{"Low", fmt.Sprint(counts[models.RiskLevelLow])},
		KeyValue{"High Risks Without Mitigation", fmt.Sprint(unmitigated)},
	)

	doc.AddSection("Risk Overview")
	rows := make([][]string, 0, len(reg.Risks))
	for _, r := range reg.Risks {
		residual := "-"
		if r.ResidualRiskScore != nil && r.ResidualRiskLevel != nil {
			residual = fmt.Sprintf("%d (%s)", *r.ResidualRiskScore, r.ResidualRiskLevel.Label())
		}
		rows = append(rows, []string{
			r.Title,
			r.Type.Title(),
			fmt.Sprintf("%dx%d=%d", r.Likelihood, r.Impact, r.InherentRiskScore),
			r.RiskLevel.Label(),
			residual,
		})
	}
	doc.AddTable([]string{"Risk", "Type", "Score", "Level", "Residual"}, rows)

	doc.AddSection("Risk Details")
	for _, r := range reg.Risks {
		doc.AddSubsection(fmt.Sprintf("%s (%s)", r.Title, r.RiskLevel.Label()))
		if r.Description != "" {
			doc.AddParagraph(r.Description)
		}
		if len(r.AffectedStakeholders) > 0 {
			doc.AddIndented("Affected stakeholders: "+strings.Join(r.AffectedStakeholders, ", "), 1)
		}
		if r.PotentialImpact != "" {
			doc.AddIndented("Potential impact: "+r.PotentialImpact, 1)
		}
		if r.TreatmentDecision != nil {
			line := "Treatment: " + string(*r.TreatmentDecision)
			if r.TreatmentJustification != "" {
				line += ". " + r.TreatmentJustification
			}
			doc.AddIndented(line, 1)
		}
		if len(r.MitigationActions) == 0 {
			if r.RiskLevel == models.RiskLevelHigh {
				doc.AddBoldParagraph("No mitigation actions recorded for this HIGH risk.")
			}
			continue
		}
		actions := make([][]string, 0, len(r.MitigationActions))
		for _, a := range r.MitigationActions {
			due := "-"
			if a.DueDate != nil {
				due = a.DueDate.Format("2006-01-02")
				if a.Overdue(now) {
					due += " (overdue)"
				}
			}
			actions = append(actions, []string{a.Description, a.ResponsibleParty, string(a.Status), due})
		}
		doc.AddTable([]string{"Action", "Responsible", "Status", "Due"}, actions)
	}

	doc.Footer = reportFooter(issuer)
	return doc
}

// BuildTechnicalDocumentationReport renders the Annex IV documentation with
// its document control table. Blank sections are listed as outstanding.
func BuildTechnicalDocumentationReport(issuer string, sys *models.AISystem, td *models.TechnicalDocumentation) *Document {
	doc := NewDocument("Technical Documentation")
	doc.Subtitle = "EU AI Act Article 11 and Annex IV"

	orPending := func(v string) string {
		if v == "" {
			return "Pending"
		}
		return v
	}

	doc.AddSection("Document Control")
	doc.AddSummaryTable(
		KeyValue{"AI System", sys.Name},
		KeyValue{"Version", td.Version},
		KeyValue{"Effective Date", td.VersionDate.Format(dateLayout)},
		KeyValue{"Completeness", percent(td.CompletenessPercentage)},
		KeyValue{"Prepared By", td.PreparedBy},
		KeyValue{"Reviewed By", orPending(td.ReviewedBy)},
		KeyValue{"Approved By", orPending(td.ApprovedBy)},
	)

	doc.AddSection("Introduction")
	doc.AddParagraph(fmt.Sprintf(
		"This document provides the technical documentation of the %s AI system in accordance with Article 11 of the EU AI Act. "+
			"It describes the intended purpose of the system, its design and the measures taken to meet the requirements for high-risk AI systems.",
		sys.Name))
	info := []KeyValue{{"Business Purpose", sys.BusinessPurpose}, {"Deployment Status", sys.DeploymentStatus.Label()}}
	if len(sys.DataCategories) > 0 {
		info = append(info, KeyValue{"Data Categories", strings.Join(sys.DataCategories, ", ")})
	}
	if len(sys.PrimaryUsers) > 0 {
		info = append(info, KeyValue{"Primary Users", strings.Join(sys.PrimaryUsers, ", ")})
	}
	doc.AddSummaryTable(info...)

	for i, section := range models.DocumentationSections() {
		text := strings.TrimSpace(td.Section(section))
		if text == "" {
			continue
		}
		doc.AddSection(fmt.Sprintf("%d. %s", i+1, section.Title()))
		doc.AddIndented("Regulatory reference: EU AI Act "+section.Reference(), 1)
		for _, para := range strings.Split(text, "\n\n") {
			if para = strings.TrimSpace(para); para != "" {
				doc.AddParagraph(para)
			}
		}
	}

	if missing := td.MissingSections(); len(missing) > 0 {
		doc.AddSection("Outstanding Sections")
		items := make([]string, len(missing))
		for i, section := range missing {
			items[i] = section.Title()
		}
		doc.AddBullets(items...)
	}

	if len(td.Versions) > 0 {
		doc.AddSection("Version History")
		rows := make([][]string, 0, len(td.Versions))
		for _, v := range td.Versions {
			rows = append(rows, []string{v.Version, v.VersionDate.Format("2006-01-02"), v.VersionNotes})
		}
		doc.AddTable([]string{"Version", "Date", "Notes"}, rows)
	}

	doc.AddSection("Conclusion")
	doc.AddParagraph("This documentation is reviewed and updated whenever the system changes, to keep it in line with the EU AI Act.")

	doc.Footer = reportFooter(issuer)
	return doc
}

// SystemOverview pairs a snapshot with its readiness verdict for the
// executive summary.
type SystemOverview struct {
	Input  scoring.ReadinessInput
	Result *scoring.ReadinessResult
}

func BuildExecutiveSummary(issuer, orgName string, systems []SystemOverview, now time.Time) *Document {
	doc := NewDocument("EU AI Act Executive Summary")
	doc.Subtitle = orgName

	ready, highRisk, openIncidents := 0, 0, 0
	var scoreSum float64
	scored := 0
	for _, s := range systems {
		if s.Result.Ready {
			ready++
		}
		if s.Result.Category != nil && *s.Result.Category == models.RiskCategoryHigh {
			highRisk++
		}
		if s.Input.GapAssessment != nil {
			scoreSum += s.Result.Score
			scored++
		}
		for _, inc := range s.Input.Incidents {
			if inc.Status.IsOpen() {
				openIncidents++
			}
		}
	}
	average := 0.0
	if scored > 0 {
		average = scoreSum / float64(scored)
	}

	doc.AddSection("Portfolio Overview")
	doc.AddSummaryTable(
		KeyValue{"AI Systems", fmt.Sprint(len(systems))},
		KeyValue{"High-Risk Systems", fmt.Sprint(highRisk)},
		KeyValue{"Ready for Certification", fmt.Sprint(ready)},
		KeyValue{"Average Gap Score", percent(average)},
		KeyValue{"Open Incidents", fmt.Sprint(openIncidents)},
	)

	doc.AddSection("AI Systems")
	rows := make([][]string, 0, len(systems))
	for _, s := range systems {
		category := "Unclassified"
		if s.Result.Category != nil {
			category = s.Result.Category.Title()
		}
		rows = append(rows, []string{
			s.Result.SystemName,
			category,
			s.Input.System.DeploymentStatus.Label(),
			percent(s.Result.Score),
			scoring.ReadinessSummary(s.Result),
		})
	}
	doc.AddTable([]string{"System", "Risk Category", "Status", "Gap Score", "Readiness"}, rows)

	var all []scoring.RequirementStatus
	for _, s := range systems {
		if s.Input.GapAssessment != nil {
			all = append(all, scoring.StatusesOf(s.Input.GapAssessment.Requirements)...)
		}
	}
	if len(all) > 0 {
		combined := scoring.AggregateCompliance(all)
		doc.AddSection("Compliance by Requirement Area")
		catRows := make([][]string, 0, len(combined.Categories))
		for _, c := range combined.Categories {
			catRows = append(catRows, []string{c.Category.Title(), fmt.Sprintf("%d/%d", c.Implemented, c.Total), percent(c.Percentage)})
		}
		doc.AddTable([]string{"Area", "Implemented", "Score"}, catRows)
	}

	var highRisks []string
	for _, s := range systems {
		if s.Input.RiskRegister == nil {
			continue
		}
		for _, r := range s.Input.RiskRegister.Risks {
			if r.RiskLevel != models.RiskLevelHigh {
				continue
			}
			line := fmt.Sprintf("%s: %s (score %d)", s.Result.SystemName, r.Title, r.InherentRiskScore)
			if !r.HasActiveMitigation() {
				line += ", no active mitigation"
			}
			highRisks = append(highRisks, line)
		}
	}
	if len(highRisks) > 0 {
		doc.AddSection("High Risks")
		doc.AddBullets(highRisks...)
	}

	var incidents [][]string
	for _, s := range systems {
		for _, inc := range s.Input.Incidents {
			if !inc.Status.IsOpen() {
				continue
			}
			incidents = append(incidents, []string{inc.IncidentNumber, s.Result.SystemName, inc.Title, string(inc.Severity), string(inc.Status)})
		}
	}
	if len(incidents) > 0 {
		doc.AddSection("Open Incidents")
		doc.AddTable([]string{"Number", "System", "Title", "Severity", "Status"}, incidents)
	}

	doc.Footer = reportFooter(issuer)
	doc.GeneratedAt = now
	return doc
}

func reportFooter(issuer string) []string {
	return []string{
		fmt.Sprintf("This report was generated by %s on %s.", issuer, time.Now().Format(dateLayout)),
		"For audit and compliance purposes only.",
	}
}

func percent(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%.0f%%", v)
	}
	return fmt.Sprintf("%.1f%%", v)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	if length <= 3 {
		return string(r[:length])
	}
	return string(r[:length-3]) + "..."
}
