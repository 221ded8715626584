package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/metrics"
	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

// Source is the read side the built-in jobs need. *store.Store satisfies it.
type Source interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	LoadOrganizationSnapshots(ctx context.Context, orgID uuid.UUID) ([]scoring.ReadinessInput, error)
	ListOverdueMitigations(ctx context.Context, orgID uuid.UUID, now time.Time) ([]store.OverdueMitigation, error)
}

type Notifier interface {
	NotifyReadinessDigest(ctx context.Context, orgName string, results []*scoring.ReadinessResult) error
	NotifyOverdueMitigations(ctx context.Context, orgName string, items []store.OverdueMitigation, now time.Time) error
}

type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// Handlers implements the built-in job types.
type Handlers struct {
	Source   Source
	Notifier Notifier
	Tokens   TokenCleaner
	Logger   *slog.Logger

	now func() time.Time
}

func (h *Handlers) Register(s *Scheduler) {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.Source != nil && h.Notifier != nil {
		s.RegisterHandler(JobTypeReadinessDigest, h.readinessDigest)
		s.RegisterHandler(JobTypeOverdueMitigations, h.overdueMitigations)
	}
	if h.Tokens != nil {
		s.RegisterHandler(JobTypeCleanupTokens, h.cleanupTokens)
	}
}

func (h *Handlers) readinessDigest(ctx context.Context, job *Job) (string, error) {
	org, err := h.organization(ctx, job)
	if err != nil {
		return "", err
	}

	snapshots, err := h.Source.LoadOrganizationSnapshots(ctx, org.ID)
	if err != nil {
		return "", fmt.Errorf("loading snapshots: %w", err)
	}

	results := make([]*scoring.ReadinessResult, 0, len(snapshots))
	skipped := 0
	ready := 0
	for _, in := range snapshots {
		result, err := scoring.ValidateReadiness(in)
		metrics.ObserveReadiness(result, err)
		if err != nil {
			skipped++
			h.Logger.Warn("skipping system in readiness digest", "organization_id", org.ID, "error", err)
			continue
		}
		if result.Ready {
			ready++
		}
		results = append(results, result)
	}

	if len(results) == 0 {
		return "no AI systems to report", nil
	}
	if err := h.Notifier.NotifyReadinessDigest(ctx, org.Name, results); err != nil {
		return "", fmt.Errorf("sending digest: %w", err)
	}

	out := fmt.Sprintf("%d of %d system(s) ready", ready, len(results))
	if skipped > 0 {
		out += fmt.Sprintf(", %d skipped", skipped)
	}
	return out, nil
}

func (h *Handlers) overdueMitigations(ctx context.Context, job *Job) (string, error) {
	org, err := h.organization(ctx, job)
	if err != nil {
		return "", err
	}

	now := h.now()
	items, err := h.Source.ListOverdueMitigations(ctx, org.ID, now)
	if err != nil {
		return "", fmt.Errorf("listing overdue mitigations: %w", err)
	}
	if len(items) == 0 {
		return "no overdue mitigation actions", nil
	}

	if err := h.Notifier.NotifyOverdueMitigations(ctx, org.Name, items, now); err != nil {
		return "", fmt.Errorf("sending overdue notice: %w", err)
	}
	return fmt.Sprintf("%d overdue mitigation action(s) reported", len(items)), nil
}

func (h *Handlers) cleanupTokens(ctx context.Context, _ *Job) (string, error) {
	n, err := h.Tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d refresh token(s) removed", n), nil
}

func (h *Handlers) organization(ctx context.Context, job *Job) (*models.Organization, error) {
	if job.OrganizationID == nil {
		return nil, fmt.Errorf("job %s has no organization", job.ID)
	}
	org, err := h.Source.GetOrganization(ctx, *job.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	return org, nil
}

// EnsureCleanupJob creates the installation-wide token cleanup job when
// none exists yet.
func (s *Scheduler) EnsureCleanupJob(ctx context.Context, schedule string) error {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.JobType == JobTypeCleanupTokens {
			return nil
		}
	}

	return s.AddJob(ctx, &Job{
		Name:        "Refresh token cleanup",
		Description: "Removes expired and revoked refresh tokens",
		Schedule:    schedule,
		JobType:     JobTypeCleanupTokens,
		Enabled:     true,
	})
}
