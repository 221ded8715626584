package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

type slackRecorder struct {
	mu       sync.Mutex
	messages []SlackMessage
	status   int
}

func (r *slackRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var msg SlackMessage
	_ = json.NewDecoder(req.Body).Decode(&msg)
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	if r.status != 0 {
		w.WriteHeader(r.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func newTestService(t *testing.T, cfg Config) (*Service, *slackRecorder) {
	t.Helper()
	rec := &slackRecorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = srv.URL + "/hooks/T000/B000/secret"
	return NewService(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))), rec
}

func testIncident(sev models.Severity) *models.Incident {
	return &models.Incident{
		ID:             uuid.New(),
		IncidentNumber: "INC-20250131-001",
		Title:          "Model produced discriminatory outputs",
		Category:       "bias",
		Severity:       sev,
		Status:         models.IncidentOpen,
		OccurredAt:     time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC),
	}
}

func TestNotifyIncidentSeverityFilter(t *testing.T) {
	tests := []struct {
		name     string
		min      models.Severity
		severity models.Severity
		wantSent bool
	}{
		{"critical over high", models.SeverityHigh, models.SeverityCritical, true},
		{"high equals high", models.SeverityHigh, models.SeverityHigh, true},
		{"medium under high", models.SeverityHigh, models.SeverityMedium, false},
		{"low over low", models.SeverityLow, models.SeverityLow, true},
		{"low under critical", models.SeverityCritical, models.SeverityLow, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, rec := newTestService(t, Config{MinSeverity: tt.min})

			sent, err := svc.NotifyIncident(context.Background(), testIncident(tt.severity), "Credit Scoring")
			if err != nil {
				t.Fatalf("NotifyIncident() error = %v", err)
			}
			if sent != tt.wantSent {
				t.Errorf("sent = %v, want %v", sent, tt.wantSent)
			}
			if got := len(rec.messages); (got == 1) != tt.wantSent {
				t.Errorf("slack received %d message(s), wantSent %v", got, tt.wantSent)
			}
		})
	}
}

func TestNotifyIncidentSlackPayload(t *testing.T) {
	svc, rec := newTestService(t, Config{MinSeverity: models.SeverityHigh})

	if _, err := svc.NotifyIncident(context.Background(), testIncident(models.SeverityCritical), "Credit Scoring"); err != nil {
		t.Fatalf("NotifyIncident() error = %v", err)
	}

	if len(rec.messages) != 1 || len(rec.messages[0].Attachments) != 1 {
		t.Fatalf("unexpected slack messages: %+v", rec.messages)
	}
	att := rec.messages[0].Attachments[0]
	if !strings.Contains(att.Title, "INC-20250131-001") {
		t.Errorf("Title = %q, want incident number", att.Title)
	}
	if att.Color != severityColor(models.SeverityCritical) {
		t.Errorf("Color = %q", att.Color)
	}

	found := false
	for _, f := range att.Fields {
		if f.Title == "AI System" && f.Value == "Credit Scoring" {
			found = true
		}
	}
	if !found {
		t.Errorf("Fields = %+v, want AI System field", att.Fields)
	}
}

func TestSlackErrorStatus(t *testing.T) {
	svc, rec := newTestService(t, Config{MinSeverity: models.SeverityLow})
	rec.status = http.StatusInternalServerError

	_, err := svc.NotifyIncident(context.Background(), testIncident(models.SeverityHigh), "Credit Scoring")
	if err == nil || !strings.Contains(err.Error(), "slack returned status 500") {
		t.Errorf("NotifyIncident() error = %v, want slack status error", err)
	}
}

func TestEmailDelivery(t *testing.T) {
	svc := NewService(Config{
		MinSeverity: models.SeverityLow,
		Email: EmailConfig{
			Enabled:  true,
			SMTPHost: "smtp.example.com",
			SMTPPort: 587,
			From:     "compliance@example.com",
			To:       []string{"dpo@example.com", "cto@example.com"},
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	results := []*scoring.ReadinessResult{
		{SystemName: "Credit Scoring", Ready: true, Score: 100},
		{SystemName: "CV Screening", Score: 62.4, MissingItems: []string{"a", "b"}},
	}
	if err := svc.NotifyReadinessDigest(context.Background(), "Acme", results); err != nil {
		t.Fatalf("NotifyReadinessDigest() error = %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 2 {
		t.Errorf("to = %v", gotTo)
	}
	for _, want := range []string{
		"Subject: [EU AI Act] Certification readiness digest: Acme",
		"1 of 2 AI system(s) ready for certification.",
		"CV Screening: 62% compliant, 2 missing item(s)",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("email missing %q", want)
		}
	}
}

func TestSendJoinsChannelErrors(t *testing.T) {
	svc, rec := newTestService(t, Config{
		Email: EmailConfig{Enabled: true, SMTPHost: "smtp.example.com", SMTPPort: 25, From: "a@example.com", To: []string{"b@example.com"}},
	})
	rec.status = http.StatusBadGateway
	svc.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := svc.Send(context.Background(), &Notification{Title: "x", Timestamp: time.Now()})
	if err == nil {
		t.Fatal("Send() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "slack:") || !strings.Contains(err.Error(), "email:") {
		t.Errorf("Send() error = %v, want both channels", err)
	}
}

func TestNotifyOverdueMitigations(t *testing.T) {
	svc, rec := newTestService(t, Config{MinSeverity: models.SeverityCritical})
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	items := []store.OverdueMitigation{{
		MitigationAction: models.MitigationAction{
			Description: "Retrain on balanced data",
			DueDate:     &due,
			Status:      models.ActionInProgress,
		},
		RiskTitle:  "Bias against protected groups",
		SystemName: "CV Screening",
	}}

	if err := svc.NotifyOverdueMitigations(context.Background(), "Acme", items, now); err != nil {
		t.Fatalf("NotifyOverdueMitigations() error = %v", err)
	}
	if len(rec.messages) != 1 {
		t.Fatalf("slack received %d message(s), want 1 (digests ignore min severity)", len(rec.messages))
	}
	text := rec.messages[0].Attachments[0].Text
	want := "CV Screening / Bias against protected groups: Retrain on balanced data [unassigned], due 2025-03-01 (9 day(s) overdue)"
	if !strings.Contains(text, want) {
		t.Errorf("Text = %q, want line %q", text, want)
	}
}

func TestSettingsRedaction(t *testing.T) {
	svc := NewService(Config{
		Slack: SlackConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/T0/B0/abcdef"},
		Email: EmailConfig{Password: "hunter2"},
	}, nil)

	red := svc.Settings().Redacted()
	if red.Email.Password != "********" {
		t.Errorf("Password = %q", red.Email.Password)
	}
	if red.Slack.WebhookURL != "https://hooks.slack.com/services/T0/B0/********" {
		t.Errorf("WebhookURL = %q", red.Slack.WebhookURL)
	}

	red.MinSeverity = models.SeverityCritical
	svc.UpdateSettings(red)

	got := svc.Settings()
	if got.Email.Password != "hunter2" || got.Slack.WebhookURL != "https://hooks.slack.com/services/T0/B0/abcdef" {
		t.Errorf("secrets not preserved: %+v", got)
	}
	if got.MinSeverity != models.SeverityCritical {
		t.Errorf("MinSeverity = %s", got.MinSeverity)
	}
}

func TestFieldTitle(t *testing.T) {
	tests := map[string]string{
		"incident_number": "Incident Number",
		"ai_system":       "AI System",
		"ready":           "Ready",
	}
	for in, want := range tests {
		if got := fieldTitle(in); got != want {
			t.Errorf("fieldTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
