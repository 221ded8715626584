package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/metrics"
	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
)

type ReportType string

const (
	ReportTypeCertificate      ReportType = "certificate"
	ReportTypeGapAssessment    ReportType = "gap_assessment"
	ReportTypeRiskRegister     ReportType = "risk_register"
	ReportTypeExecutiveSummary ReportType = "executive_summary"

	ReportTypeTechnicalDocumentation ReportType = "technical_documentation"
)

func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeCertificate, ReportTypeGapAssessment, ReportTypeRiskRegister, ReportTypeExecutiveSummary,
		ReportTypeTechnicalDocumentation:
		return true
	}
	return false
}

var ErrUnsupportedFormat = errors.New("unsupported format for report type")

// NotReadyError blocks a certificate export for a system that is not
// ready unless a draft was explicitly requested.
type NotReadyError struct {
	Result *scoring.ReadinessResult
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("AI system is not ready for certification: %d missing item(s)", len(e.Result.MissingItems))
}

// ReportRequest identifies what to export. TargetID is the system ID for
// certificates and technical documentation, the gap assessment or risk register ID for those reports,
// and unused for the executive summary.
type ReportRequest struct {
	Type           ReportType   `json:"type"`
	Format         ReportFormat `json:"format"`
	OrganizationID uuid.UUID    `json:"organization_id"`
	TargetID       uuid.UUID    `json:"target_id,omitempty"`
	AllowDraft     bool         `json:"allow_draft,omitempty"`
}

type Report struct {
	Type        ReportType
	Format      ReportFormat
	Title       string
	GeneratedAt time.Time
	Data        []byte
	Filename    string
	MimeType    string
	Draft       bool
}

// DataSource is the read side the generator needs. *store.Store satisfies it.
type DataSource interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetSystem(ctx context.Context, orgID, id uuid.UUID) (*models.AISystem, error)
	GetGapAssessment(ctx context.Context, orgID, id uuid.UUID) (*models.GapAssessment, error)
	GetRiskRegister(ctx context.Context, orgID, id uuid.UUID) (*models.RiskRegister, error)
	GetTechnicalDocumentationBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.TechnicalDocumentation, error)
	LoadReadinessSnapshot(ctx context.Context, orgID, systemID uuid.UUID) (*scoring.ReadinessInput, error)
	LoadOrganizationSnapshots(ctx context.Context, orgID uuid.UUID) ([]scoring.ReadinessInput, error)
}

type Generator struct {
	source   DataSource
	exporter *Exporter
	issuer   string
	now      func() time.Time
}

func NewGenerator(source DataSource, exporter *Exporter, issuer string) *Generator {
	if issuer == "" {
		issuer = "AI Act Compliance Platform"
	}
	return &Generator{source: source, exporter: exporter, issuer: issuer, now: time.Now}
}

func (g *Generator) Generate(ctx context.Context, req *ReportRequest) (*Report, error) {
	if !req.Format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	switch req.Type {
	case ReportTypeCertificate:
		return g.generateCertificate(ctx, req)
	case ReportTypeGapAssessment:
		return g.generateGapReport(ctx, req)
	case ReportTypeRiskRegister:
		return g.generateRiskRegisterReport(ctx, req)
	case ReportTypeExecutiveSummary:
		return g.generateExecutiveSummary(ctx, req)
	case ReportTypeTechnicalDocumentation:
		return g.generateTechnicalDocumentation(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported report type: %s", req.Type)
	}
}

func (g *Generator) generateCertificate(ctx context.Context, req *ReportRequest) (*Report, error) {
	if req.Format == FormatCSV {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	in, err := g.source.LoadReadinessSnapshot(ctx, req.OrganizationID, req.TargetID)
	if err != nil {
		return nil, err
	}
	result, err := scoring.ValidateReadiness(*in)
	metrics.ObserveReadiness(result, err)
	if err != nil {
		return nil, err
	}
	if !result.Ready && !req.AllowDraft {
		return nil, &NotReadyError{Result: result}
	}

	org, err := g.source.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	doc := BuildCertificate(CertificateData{
		OrganizationName:    org.Name,
		IssuerName:          g.issuer,
		System:              in.System,
		Readiness:           result,
		HarmonizedStandards: models.HarmonizedStandards(),
		IssuedAt:            now,
	})

	file, err := g.exporter.Export(ctx, doc, FileBaseName(CertificateKind(result), in.System.Name, now), req.Format)
	if err != nil {
		return nil, err
	}
	return g.report(req, doc, file, now, !result.Ready), nil
}

func (g *Generator) generateGapReport(ctx context.Context, req *ReportRequest) (*Report, error) {
	gap, err := g.source.GetGapAssessment(ctx, req.OrganizationID, req.TargetID)
	if err != nil {
		return nil, err
	}
	sys, err := g.source.GetSystem(ctx, req.OrganizationID, gap.AISystemID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	base := FileBaseName("Gap_Assessment", sys.Name, now)
	if req.Format == FormatCSV {
		var buf bytes.Buffer
		if err := WriteGapAssessmentCSV(&buf, gap); err != nil {
			return nil, err
		}
		return g.csvReport(req, "Gap Assessment", base, buf.Bytes(), now), nil
	}

	summary := scoring.AggregateCompliance(scoring.StatusesOf(gap.Requirements))
	doc := BuildGapAssessmentReport(g.issuer, sys, gap, summary)
	file, err := g.exporter.Export(ctx, doc, base, req.Format)
	if err != nil {
		return nil, err
	}
	return g.report(req, doc, file, now, false), nil
}

func (g *Generator) generateRiskRegisterReport(ctx context.Context, req *ReportRequest) (*Report, error) {
	reg, err := g.source.GetRiskRegister(ctx, req.OrganizationID, req.TargetID)
	if err != nil {
		return nil, err
	}
	sys, err := g.source.GetSystem(ctx, req.OrganizationID, reg.AISystemID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	base := FileBaseName("Risk_Register", sys.Name, now)
	if req.Format == FormatCSV {
		var buf bytes.Buffer
		if err := WriteRiskRegisterCSV(&buf, reg); err != nil {
			return nil, err
		}
		return g.csvReport(req, "Risk Register", base, buf.Bytes(), now), nil
	}

	doc := BuildRiskRegisterReport(g.issuer, sys, reg, now)
	file, err := g.exporter.Export(ctx, doc, base, req.Format)
	if err != nil {
		return nil, err
	}
	return g.report(req, doc, file, now, false), nil
}

func (g *Generator) generateExecutiveSummary(ctx context.Context, req *ReportRequest) (*Report, error) {
	if req.Format == FormatCSV {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	org, err := g.source.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	snapshots, err := g.source.LoadOrganizationSnapshots(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	overviews := make([]SystemOverview, 0, len(snapshots))
	for _, in := range snapshots {
		result, err := scoring.ValidateReadiness(in)
		metrics.ObserveReadiness(result, err)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, SystemOverview{Input: in, Result: result})
	}

	now := g.now()
	doc := BuildExecutiveSummary(g.issuer, org.Name, overviews, now)
	file, err := g.exporter.Export(ctx, doc, FileBaseName("Executive_Summary", org.Name, now), req.Format)
	if err != nil {
		return nil, err
	}
	return g.report(req, doc, file, now, false), nil
}

func (g *Generator) generateTechnicalDocumentation(ctx context.Context, req *ReportRequest) (*Report, error) {
	if req.Format == FormatCSV {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	sys, err := g.source.GetSystem(ctx, req.OrganizationID, req.TargetID)
	if err != nil {
		return nil, err
	}
	doc, err := g.source.GetTechnicalDocumentationBySystem(ctx, req.OrganizationID, req.TargetID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	out := BuildTechnicalDocumentationReport(g.issuer, sys, doc)
	file, err := g.exporter.Export(ctx, out, FileBaseName("Technical_Documentation", sys.Name, now), req.Format)
	if err != nil {
		return nil, err
	}
	return g.report(req, out, file, now, false), nil
}

func (g *Generator) report(req *ReportRequest, doc *Document, file *File, now time.Time, draft bool) *Report {
	return &Report{
		Type:        req.Type,
		Format:      ReportFormat(file.Extension),
		Title:       doc.Title,
		GeneratedAt: now,
		Data:        file.Data,
		Filename:    file.Filename,
		MimeType:    file.MimeType,
		Draft:       draft,
	}
}

func (g *Generator) csvReport(req *ReportRequest, title, base string, data []byte, now time.Time) *Report {
	return &Report{
		Type:        req.Type,
		Format:      FormatCSV,
		Title:       title,
		GeneratedAt: now,
		Data:        data,
		Filename:    base + ".csv",
		MimeType:    MimeCSV,
	}
}

// WriteGapAssessmentCSV streams one row per requirement.
func WriteGapAssessmentCSV(w io.Writer, gap *models.GapAssessment) error {
	cw := csv.NewWriter(w)

	header := []string{
		"Category", "Article", "Requirement", "Regulatory Reference", "Status",
		"Priority", "Assigned To", "Due Date", "Evidence", "Notes",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range gap.Requirements {
		row := []string{
			r.Category.Title(),
			r.Category.Article(),
			r.Title,
			r.RegulatoryReference,
			r.Status.Label(),
			string(r.Priority),
			r.AssignedTo,
			formatDate(r.DueDate),
			strconv.Itoa(len(r.Evidence)),
			r.Notes,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRiskRegisterCSV streams one row per risk.
func WriteRiskRegisterCSV(w io.Writer, reg *models.RiskRegister) error {
	cw := csv.NewWriter(w)

	header := []string{
		"Risk", "Type", "Likelihood", "Impact", "Inherent Score", "Risk Level",
		"Treatment", "Residual Score", "Residual Level", "Mitigation Actions", "Open Actions",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range reg.Risks {
		treatment, residualScore, residualLevel := "", "", ""
		if r.TreatmentDecision != nil {
			treatment = string(*r.TreatmentDecision)
		}
		if r.ResidualRiskScore != nil {
			residualScore = strconv.Itoa(*r.ResidualRiskScore)
		}
		if r.ResidualRiskLevel != nil {
			residualLevel = string(*r.ResidualRiskLevel)
		}
		open := 0
		for _, a := range r.MitigationActions {
			if a.Status == models.ActionPlanned || a.Status == models.ActionInProgress {
				open++
			}
		}

		row := []string{
			r.Title,
			r.Type.Title(),
			strconv.Itoa(r.Likelihood),
			strconv.Itoa(r.Impact),
			strconv.Itoa(r.InherentRiskScore),
			string(r.RiskLevel),
			treatment,
			residualScore,
			residualLevel,
			strconv.Itoa(len(r.MitigationActions)),
			strconv.Itoa(open),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
