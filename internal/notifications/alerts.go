package notifications

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

// NotifyIncident alerts about a newly reported incident when its severity
// reaches the configured minimum. It reports whether anything was sent.
func (s *Service) NotifyIncident(ctx context.Context, inc *models.Incident, systemName string) (bool, error) {
	if !s.shouldNotify(inc.Severity) {
		return false, nil
	}

	notif := &Notification{
		Type:     NotifyIncidentReported,
		Title:    fmt.Sprintf("%s incident reported: %s", inc.Severity, inc.IncidentNumber),
		Message:  inc.Title,
		Severity: inc.Severity,
		Data: map[string]interface{}{
			"incident_number": inc.IncidentNumber,
			"ai_system":       systemName,
			"category":        inc.Category,
			"severity":        string(inc.Severity),
			"occurred_at":     inc.OccurredAt.UTC().Format(time.RFC3339),
		},
		Timestamp: time.Now(),
	}
	if inc.BusinessImpact != "" {
		notif.Data["business_impact"] = inc.BusinessImpact
	}

	return true, s.Send(ctx, notif)
}

// NotifyReadinessDigest summarizes certification readiness for every
// system of an organization.
func (s *Service) NotifyReadinessDigest(ctx context.Context, orgName string, results []*scoring.ReadinessResult) error {
	ready := 0
	lines := make([]string, 0, len(results))
	for _, r := range results {
		if r.Ready {
			ready++
			lines = append(lines, fmt.Sprintf("%s: ready for certification", r.SystemName))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %.0f%% compliant, %d missing item(s)",
			r.SystemName, r.Score, len(r.MissingItems)))
	}

	severity := models.SeverityLow
	if ready < len(results) {
		severity = models.SeverityMedium
	}

	return s.Send(ctx, &Notification{
		Type:     NotifyReadinessDigest,
		Title:    fmt.Sprintf("Certification readiness digest: %s", orgName),
		Message:  fmt.Sprintf("%d of %d AI system(s) ready for certification.", ready, len(results)),
		Severity: severity,
		Data: map[string]interface{}{
			"organization": orgName,
			"systems":      len(results),
			"ready":        ready,
		},
		Lines:     lines,
		Timestamp: time.Now(),
	})
}

// NotifyOverdueMitigations lists mitigation actions past their due date.
func (s *Service) NotifyOverdueMitigations(ctx context.Context, orgName string, items []store.OverdueMitigation, now time.Time) error {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		due := ""
		if it.DueDate != nil {
			days := int(now.Sub(*it.DueDate).Hours() / 24)
			due = fmt.Sprintf(", due %s (%d day(s) overdue)", it.DueDate.Format("2006-01-02"), days)
		}
		owner := it.ResponsibleParty
		if owner == "" {
			owner = "unassigned"
		}
		lines = append(lines, fmt.Sprintf("%s / %s: %s [%s]%s",
			it.SystemName, it.RiskTitle, it.Description, owner, due))
	}

	return s.Send(ctx, &Notification{
		Type:     NotifyOverdueMitigations,
		Title:    fmt.Sprintf("Overdue mitigation actions: %s", orgName),
		Message:  fmt.Sprintf("%d mitigation action(s) are past their due date.", len(items)),
		Severity: models.SeverityHigh,
		Data: map[string]interface{}{
			"organization": orgName,
			"overdue":      len(items),
		},
		Lines:     lines,
		Timestamp: now,
	})
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fieldTitle turns "incident_number" into "Incident Number".
func fieldTitle(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p == "ai" {
			parts[i] = "AI"
			continue
		}
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
