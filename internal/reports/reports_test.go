package reports

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
)

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readySnapshot() scoring.ReadinessInput {
	sysID := uuid.New()
	high := models.RiskCategoryHigh

	var reqs []models.RequirementAssessment
	for _, tmpl := range models.DefaultRequirements() {
		reqs = append(reqs, models.RequirementAssessment{
			ID:                  uuid.New(),
			Category:            tmpl.Category,
			Title:               tmpl.Title,
			RegulatoryReference: tmpl.RegulatoryReference,
			Priority:            tmpl.Priority,
			Status:              models.StatusImplemented,
		})
	}

	return scoring.ReadinessInput{
		System: &models.AISystem{
			ID:               sysID,
			Name:             "Credit Scoring",
			BusinessPurpose:  "Assess loan applications",
			DeploymentStatus: models.DeploymentProduction,
			RiskCategory:     &high,
		},
		Classification: &models.RiskClassification{AISystemID: sysID, Category: high, Reasoning: "Annex III"},
		GapAssessment:  &models.GapAssessment{AISystemID: sysID, OverallScore: 100, Requirements: reqs},
		Governance: &models.Governance{AISystemID: sysID, Roles: []models.GovernanceRole{
			{RoleType: models.RoleSystemOwner, PersonName: "A", Email: "a@example.com", IsActive: true},
			{RoleType: models.RoleHumanOversight, PersonName: "B", Email: "b@example.com", IsActive: true},
			{RoleType: models.RoleRiskOwner, PersonName: "C", Email: "c@example.com", IsActive: true},
			{RoleType: models.RoleComplianceOfficer, PersonName: "D", Email: "d@example.com", IsActive: true},
		}},
		RiskRegister: &models.RiskRegister{AISystemID: sysID, Risks: []models.Risk{
			{Title: "Data drift", Type: models.RiskTypeOther, Likelihood: 2, Impact: 2, InherentRiskScore: 4, RiskLevel: models.RiskLevelLow},
		}},
	}
}

type fakeSource struct {
	org       *models.Organization
	snapshots map[uuid.UUID]*scoring.ReadinessInput
}

func newFakeSource(snaps ...scoring.ReadinessInput) *fakeSource {
	f := &fakeSource{
		org:       &models.Organization{ID: uuid.New(), Name: "Acme Bank"},
		snapshots: map[uuid.UUID]*scoring.ReadinessInput{},
	}
	for i := range snaps {
		f.snapshots[snaps[i].System.ID] = &snaps[i]
	}
	return f
}

func (f *fakeSource) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return f.org, nil
}

func (f *fakeSource) GetSystem(ctx context.Context, orgID, id uuid.UUID) (*models.AISystem, error) {
	if in, ok := f.snapshots[id]; ok {
		return in.System, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeSource) GetGapAssessment(ctx context.Context, orgID, id uuid.UUID) (*models.GapAssessment, error) {
	for _, in := range f.snapshots {
		if in.GapAssessment != nil && in.GapAssessment.ID == id {
			return in.GapAssessment, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeSource) GetRiskRegister(ctx context.Context, orgID, id uuid.UUID) (*models.RiskRegister, error) {
	for _, in := range f.snapshots {
		if in.RiskRegister != nil && in.RiskRegister.ID == id {
			return in.RiskRegister, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeSource) GetTechnicalDocumentationBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.TechnicalDocumentation, error) {
	if in, ok := f.snapshots[systemID]; ok && in.Documentation != nil {
		return in.Documentation, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeSource) LoadReadinessSnapshot(ctx context.Context, orgID, systemID uuid.UUID) (*scoring.ReadinessInput, error) {
	if in, ok := f.snapshots[systemID]; ok {
		return in, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeSource) LoadOrganizationSnapshots(ctx context.Context, orgID uuid.UUID) ([]scoring.ReadinessInput, error) {
	var out []scoring.ReadinessInput
	for _, in := range f.snapshots {
		out = append(out, *in)
	}
	return out, nil
}

type failingConverter struct{ err error }

func (failingConverter) Name() string { return "failing" }

func (c failingConverter) ToPDF(ctx context.Context, doc *Document, docx []byte) ([]byte, error) {
	return nil, c.err
}

func newTestGenerator(src DataSource, conv Converter) *Generator {
	g := NewGenerator(src, NewExporter(conv, discardLogger()), "Test Issuer")
	g.now = func() time.Time { return testNow }
	return g
}

func docxText(t *testing.T, data []byte) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("not a zip archive: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening document.xml: %v", err)
		}
		defer rc.Close()
		body, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("reading document.xml: %v", err)
		}
		return string(body)
	}
	t.Fatal("word/document.xml missing from docx")
	return ""
}

func TestRenderDOCX_EscapesText(t *testing.T) {
	doc := NewDocument("Report <Draft>")
	doc.AddSection("Risks & Controls")
	doc.AddTable([]string{"A", "B"}, [][]string{{"1", "x < y"}})

	data, err := RenderDOCX(doc)
	if err != nil {
		t.Fatalf("RenderDOCX failed: %v", err)
	}
	body := docxText(t, data)

	for _, want := range []string{"Report &lt;Draft&gt;", "Risks &amp; Controls", "x &lt; y", `w:val="Heading1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
}

func TestRenderPDF(t *testing.T) {
	doc := NewDocument("Gap Report")
	doc.AddSection("Overview").AddParagraph("Café déjà vu").AddBullets("one", "two")
	doc.AddSummaryTable(KeyValue{"Score", "50%"})

	data, err := RenderPDF(doc)
	if err != nil {
		t.Fatalf("RenderPDF failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output does not look like a PDF: %q", data[:8])
	}
}

func TestExporter_FallsBackToDOCX(t *testing.T) {
	doc := NewDocument("Certificate")

	tests := []struct {
		name      string
		converter Converter
		format    ReportFormat
		wantExt   string
		wantMime  string
	}{
		{"native pdf", NativeConverter{}, FormatPDF, "pdf", MimePDF},
		{"conversion error", failingConverter{err: errors.New("boom")}, FormatPDF, "docx", MimeDOCX},
		{"missing binary", NewSofficeConverter("definitely-not-installed-soffice", time.Second), FormatPDF, "docx", MimeDOCX},
		{"docx requested", failingConverter{err: errors.New("unused")}, FormatDOCX, "docx", MimeDOCX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExporter(tt.converter, discardLogger())
			file, err := e.Export(context.Background(), doc, "EU_AI_Act_Test", tt.format)
			if err != nil {
				t.Fatalf("Export returned error: %v", err)
			}
			if file.Extension != tt.wantExt || file.MimeType != tt.wantMime {
				t.Errorf("got %s/%s, want %s/%s", file.Extension, file.MimeType, tt.wantExt, tt.wantMime)
			}
			if file.Filename != "EU_AI_Act_Test."+tt.wantExt {
				t.Errorf("Filename = %q", file.Filename)
			}
			if len(file.Data) == 0 {
				t.Error("empty file data")
			}
		})
	}
}

func TestSofficeConverter_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script converter requires a POSIX shell")
	}

	script := filepath.Join(t.TempDir(), "slow-soffice")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}

	c := NewSofficeConverter(script, 100*time.Millisecond)
	start := time.Now()
	_, err := c.ToPDF(context.Background(), NewDocument("x"), []byte("docx"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("conversion was not cut off by the timeout: %s", time.Since(start))
	}
}

func TestNewConverter(t *testing.T) {
	if c, err := NewConverter("native", "", 0); err != nil || c.Name() != "native" {
		t.Errorf("native: got %v, %v", c, err)
	}
	if c, err := NewConverter("soffice", "", 0); err != nil || c.Name() != "soffice" {
		t.Errorf("soffice: got %v, %v", c, err)
	}
	if _, err := NewConverter("pandoc", "", 0); err == nil {
		t.Error("expected error for unknown converter")
	}
}

func TestFileBaseName(t *testing.T) {
	got := FileBaseName("Certificate", "Credit Scoring v2.0", testNow)
	want := "EU_AI_Act_Certificate_Credit_Scoring_v2_0_2025-03-14"
	if got != want {
		t.Errorf("FileBaseName = %q, want %q", got, want)
	}
}

func TestGenerate_Certificate(t *testing.T) {
	ready := readySnapshot()
	notReady := readySnapshot()
	notReady.Governance = nil

	src := newFakeSource(ready, notReady)
	g := newTestGenerator(src, NativeConverter{})
	ctx := context.Background()

	report, err := g.Generate(ctx, &ReportRequest{Type: ReportTypeCertificate, Format: FormatPDF, TargetID: ready.System.ID})
	if err != nil {
		t.Fatalf("Generate ready certificate failed: %v", err)
	}
	if report.Draft || !strings.HasPrefix(report.Filename, "EU_AI_Act_Certificate_Credit_Scoring_") || report.MimeType != MimePDF {
		t.Errorf("unexpected certificate report: draft=%v name=%s mime=%s", report.Draft, report.Filename, report.MimeType)
	}

	_, err = g.Generate(ctx, &ReportRequest{Type: ReportTypeCertificate, Format: FormatPDF, TargetID: notReady.System.ID})
	var nre *NotReadyError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
	if len(nre.Result.MissingItems) != 1 || nre.Result.MissingItems[0] != scoring.MsgGovernanceMissing {
		t.Errorf("missing items = %v", nre.Result.MissingItems)
	}

	draft, err := g.Generate(ctx, &ReportRequest{Type: ReportTypeCertificate, Format: FormatDOCX, TargetID: notReady.System.ID, AllowDraft: true})
	if err != nil {
		t.Fatalf("Generate draft failed: %v", err)
	}
	if !draft.Draft || !strings.HasPrefix(draft.Filename, "EU_AI_Act_Assessment_") {
		t.Errorf("unexpected draft report: draft=%v name=%s", draft.Draft, draft.Filename)
	}
	body := docxText(t, draft.Data)
	if !strings.Contains(body, "Outstanding Compliance Items") || !strings.Contains(body, scoring.MsgGovernanceMissing) {
		t.Error("draft document does not list outstanding items")
	}
}

func TestGenerate_CertificateRejectsCSV(t *testing.T) {
	in := readySnapshot()
	g := newTestGenerator(newFakeSource(in), NativeConverter{})
	_, err := g.Generate(context.Background(), &ReportRequest{Type: ReportTypeCertificate, Format: FormatCSV, TargetID: in.System.ID})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestGenerate_GapAssessmentCSV(t *testing.T) {
	in := readySnapshot()
	in.GapAssessment.ID = uuid.New()
	in.GapAssessment.Requirements[0].Status = models.StatusNotApplicable

	g := newTestGenerator(newFakeSource(in), NativeConverter{})
	report, err := g.Generate(context.Background(), &ReportRequest{Type: ReportTypeGapAssessment, Format: FormatCSV, TargetID: in.GapAssessment.ID})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(report.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parsing csv: %v", err)
	}
	if len(records) != 1+len(in.GapAssessment.Requirements) {
		t.Fatalf("got %d rows, want %d", len(records), 1+len(in.GapAssessment.Requirements))
	}
	if records[1][4] != models.StatusNotApplicable.Label() {
		t.Errorf("status column = %q", records[1][4])
	}
	if !strings.HasSuffix(report.Filename, ".csv") {
		t.Errorf("Filename = %q", report.Filename)
	}
}

func TestGenerate_RiskRegisterFallsBackToDOCX(t *testing.T) {
	in := readySnapshot()
	in.RiskRegister.ID = uuid.New()

	g := newTestGenerator(newFakeSource(in), failingConverter{err: errors.New("soffice crashed")})
	report, err := g.Generate(context.Background(), &ReportRequest{Type: ReportTypeRiskRegister, Format: FormatPDF, TargetID: in.RiskRegister.ID})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if report.Format != FormatDOCX || report.MimeType != MimeDOCX {
		t.Errorf("got %s/%s, want docx fallback", report.Format, report.MimeType)
	}
	if !strings.Contains(docxText(t, report.Data), "Data drift") {
		t.Error("risk register document does not list the risk")
	}
}

func partialDocumentation(systemID uuid.UUID) *models.TechnicalDocumentation {
	td := &models.TechnicalDocumentation{
		ID:          uuid.New(),
		AISystemID:  systemID,
		PreparedBy:  "Jane Doe",
		Version:     "1.1",
		VersionDate: testNow,
	}
	for _, section := range models.DocumentationSections() {
		td.SetSection(section, section.Title()+" details.\n\nSecond paragraph.")
	}
	td.SetSection(models.SectionCybersecurity, "  ")
	td.CompletenessPercentage = td.Completeness()
	td.Versions = []models.DocumentVersion{
		{Version: "1.1", VersionNotes: "Added model metrics", VersionDate: testNow},
		{Version: "1.0", VersionNotes: "Initial version", VersionDate: testNow.AddDate(0, -1, 0)},
	}
	return td
}

func TestBuildTechnicalDocumentationReport(t *testing.T) {
	in := readySnapshot()
	td := partialDocumentation(in.System.ID)

	doc := BuildTechnicalDocumentationReport("Test Issuer", in.System, td)
	text := strings.Join(doc.Text(), "\n")

	for _, want := range []string{
		"Technical Documentation",
		"Completeness: 87.5%",
		"Reviewed By: Pending",
		"Approved By: Pending",
		"1. " + models.SectionIntendedUse.Title(),
		"Second paragraph.",
		"Outstanding Sections",
		"- " + models.SectionCybersecurity.Title(),
		"1.0 | 2025-02-14 | Initial version",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if strings.Contains(text, "8. "+models.SectionCybersecurity.Title()) {
		t.Error("blank section rendered as a numbered section")
	}
}

func TestGenerate_TechnicalDocumentation(t *testing.T) {
	in := readySnapshot()
	in.Documentation = partialDocumentation(in.System.ID)
	g := newTestGenerator(newFakeSource(in), NativeConverter{})
	ctx := context.Background()

	report, err := g.Generate(ctx, &ReportRequest{Type: ReportTypeTechnicalDocumentation, Format: FormatDOCX, TargetID: in.System.ID})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(report.Filename, "EU_AI_Act_Technical_Documentation_Credit_Scoring_") || report.MimeType != MimeDOCX {
		t.Errorf("unexpected report: name=%s mime=%s", report.Filename, report.MimeType)
	}
	if !strings.Contains(docxText(t, report.Data), "Outstanding Sections") {
		t.Error("docx does not list outstanding sections")
	}

	_, err = g.Generate(ctx, &ReportRequest{Type: ReportTypeTechnicalDocumentation, Format: FormatCSV, TargetID: in.System.ID})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestBuildExecutiveSummary(t *testing.T) {
	a := readySnapshot()
	b := readySnapshot()
	b.System.Name = "Chatbot"
	b.RiskRegister.Risks = append(b.RiskRegister.Risks, models.Risk{
		Title: "Harmful advice", Likelihood: 4, Impact: 5, InherentRiskScore: 20, RiskLevel: models.RiskLevelHigh,
	})
	b.Incidents = []models.Incident{{AISystemID: b.System.ID, IncidentNumber: "INC-20250314-001", Title: "Outage", Severity: models.SeverityCritical, Status: models.IncidentOpen}}

	var overviews []SystemOverview
	for _, in := range []scoring.ReadinessInput{a, b} {
		result, err := scoring.ValidateReadiness(in)
		if err != nil {
			t.Fatalf("ValidateReadiness failed: %v", err)
		}
		overviews = append(overviews, SystemOverview{Input: in, Result: result})
	}

	doc := BuildExecutiveSummary("Test Issuer", "Acme Bank", overviews, testNow)
	text := strings.Join(doc.Text(), "\n")

	for _, want := range []string{"AI Systems: 2", "Ready for Certification: 1", "Open Incidents: 1", "Chatbot: Harmful advice (score 20), no active mitigation", "INC-20250314-001"} {
		if !strings.Contains(text, want) {
			t.Errorf("executive summary missing %q", want)
		}
	}
}
