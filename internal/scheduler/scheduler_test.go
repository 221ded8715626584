package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

type memStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*Job
	execs map[uuid.UUID]*JobExecution
}

func newMemStore() *memStore {
	return &memStore{jobs: map[uuid.UUID]*Job{}, execs: map[uuid.UUID]*JobExecution{}}
}

func (m *memStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		cp := *j
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) ListOrganizationJobs(ctx context.Context, orgID uuid.UUID) ([]*Job, error) {
	all, _ := m.ListJobs(ctx)
	var out []*Job
	for _, j := range all {
		if j.OrganizationID == nil || *j.OrganizationID == orgID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) UpdateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) DeleteJob(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *memStore) UpdateLastRun(_ context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.LastRun = &lastRun
		j.NextRun = nextRun
	}
	return nil
}

func (m *memStore) CreateExecution(_ context.Context, exec *JobExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.execs[exec.ID] = &cp
	return nil
}

func (m *memStore) UpdateExecution(_ context.Context, exec *JobExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *exec
	m.execs[exec.ID] = &cp
	return nil
}

func (m *memStore) GetJobExecutions(_ context.Context, jobID uuid.UUID, limit int) ([]*JobExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*JobExecution
	for _, e := range m.execs {
		if e.JobID == jobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForExecution(t *testing.T, st *memStore, id uuid.UUID) *JobExecution {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st.mu.Lock()
		e := st.execs[id]
		st.mu.Unlock()
		if e != nil && e.Status != StatusRunning {
			return e
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s did not finish", id)
	return nil
}

func TestAddJobValidation(t *testing.T) {
	orgID := uuid.New()

	tests := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{
			name:    "unknown type",
			job:     Job{Name: "x", Schedule: "@daily", JobType: "scan_account"},
			wantErr: "unknown job type",
		},
		{
			name:    "digest without organization",
			job:     Job{Name: "x", Schedule: "@daily", JobType: JobTypeReadinessDigest},
			wantErr: "requires an organization",
		},
		{
			name:    "bad cron",
			job:     Job{Name: "x", Schedule: "every day", JobType: JobTypeOverdueMitigations, OrganizationID: &orgID},
			wantErr: "invalid cron expression",
		},
		{
			name: "seconds field accepted",
			job:  Job{Name: "x", Schedule: "30 0 8 * * MON", JobType: JobTypeReadinessDigest, OrganizationID: &orgID},
		},
		{
			name: "cleanup is installation wide",
			job:  Job{Name: "x", Schedule: "0 3 * * *", JobType: JobTypeCleanupTokens},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(newMemStore(), testLogger())
			job := tt.job
			err := s.AddJob(context.Background(), &job)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("AddJob() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("AddJob() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestScheduleAndUnschedule(t *testing.T) {
	st := newMemStore()
	s := NewScheduler(st, testLogger())
	ctx := context.Background()

	job := &Job{Name: "cleanup", Schedule: "0 3 * * *", JobType: JobTypeCleanupTokens, Enabled: true}
	if err := s.AddJob(ctx, job); err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if job.NextRun == nil {
		t.Fatal("NextRun not set")
	}

	runs := s.GetNextRuns(job.ID, 3)
	if len(runs) != 3 {
		t.Fatalf("GetNextRuns() returned %d runs, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if got := runs[i].Sub(runs[i-1]); got != 24*time.Hour {
			t.Errorf("run gap %d = %v, want 24h", i, got)
		}
	}

	job.Enabled = false
	if err := s.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if runs := s.GetNextRuns(job.ID, 1); runs != nil {
		t.Errorf("GetNextRuns() after disable = %v, want nil", runs)
	}
	stored, _ := st.GetJob(ctx, job.ID)
	if stored.NextRun != nil {
		t.Errorf("stored NextRun = %v, want nil", stored.NextRun)
	}
}

func TestRunJobNow(t *testing.T) {
	tests := []struct {
		name       string
		handler    JobHandler
		wantStatus ExecutionStatus
		wantOutput string
		wantError  string
	}{
		{
			name: "completed",
			handler: func(ctx context.Context, job *Job) (string, error) {
				return "3 refresh token(s) removed", nil
			},
			wantStatus: StatusCompleted,
			wantOutput: "3 refresh token(s) removed",
		},
		{
			name: "failed",
			handler: func(ctx context.Context, job *Job) (string, error) {
				return "", errors.New("database unavailable")
			},
			wantStatus: StatusFailed,
			wantError:  "database unavailable",
		},
		{
			name:       "no handler",
			wantStatus: StatusFailed,
			wantError:  "no handler registered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemStore()
			s := NewScheduler(st, testLogger())
			if tt.handler != nil {
				s.RegisterHandler(JobTypeCleanupTokens, tt.handler)
			}

			job := &Job{Name: "cleanup", Schedule: "@daily", JobType: JobTypeCleanupTokens}
			if err := s.AddJob(context.Background(), job); err != nil {
				t.Fatalf("AddJob() error = %v", err)
			}

			exec, err := s.RunJobNow(context.Background(), job.ID)
			if err != nil {
				t.Fatalf("RunJobNow() error = %v", err)
			}

			got := waitForExecution(t, st, exec.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", got.Status, tt.wantStatus)
			}
			if got.Output != tt.wantOutput {
				t.Errorf("Output = %q, want %q", got.Output, tt.wantOutput)
			}
			if !strings.Contains(got.Error, tt.wantError) {
				t.Errorf("Error = %q, want %q", got.Error, tt.wantError)
			}
			if got.EndedAt == nil {
				t.Error("EndedAt not set")
			}
		})
	}
}

func TestRunJobNowUnknown(t *testing.T) {
	s := NewScheduler(newMemStore(), testLogger())
	if _, err := s.RunJobNow(context.Background(), uuid.New()); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("RunJobNow() error = %v, want ErrJobNotFound", err)
	}
}

type fakeSource struct {
	org       *models.Organization
	snapshots []scoring.ReadinessInput
	overdue   []store.OverdueMitigation
}

func (f *fakeSource) GetOrganization(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	if f.org == nil || f.org.ID != id {
		return nil, store.ErrNotFound
	}
	return f.org, nil
}

func (f *fakeSource) LoadOrganizationSnapshots(context.Context, uuid.UUID) ([]scoring.ReadinessInput, error) {
	return f.snapshots, nil
}

func (f *fakeSource) ListOverdueMitigations(context.Context, uuid.UUID, time.Time) ([]store.OverdueMitigation, error) {
	return f.overdue, nil
}

type fakeNotifier struct {
	digests  [][]*scoring.ReadinessResult
	overdues [][]store.OverdueMitigation
}

func (n *fakeNotifier) NotifyReadinessDigest(_ context.Context, _ string, results []*scoring.ReadinessResult) error {
	n.digests = append(n.digests, results)
	return nil
}

func (n *fakeNotifier) NotifyOverdueMitigations(_ context.Context, _ string, items []store.OverdueMitigation, _ time.Time) error {
	n.overdues = append(n.overdues, items)
	return nil
}

type fakeTokens struct{ removed int64 }

func (f fakeTokens) CleanupExpiredTokens(context.Context) (int64, error) { return f.removed, nil }

func TestBuiltInHandlers(t *testing.T) {
	org := &models.Organization{ID: uuid.New(), Name: "Acme"}
	sys := &models.AISystem{ID: uuid.New(), OrganizationID: org.ID, Name: "CV Screening"}

	src := &fakeSource{
		org:       org,
		snapshots: []scoring.ReadinessInput{{System: sys}},
	}
	notifier := &fakeNotifier{}
	h := &Handlers{Source: src, Notifier: notifier, Tokens: fakeTokens{removed: 4}, Logger: testLogger()}
	s := NewScheduler(newMemStore(), testLogger())
	h.Register(s)
	h.now = func() time.Time { return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	job := &Job{ID: uuid.New(), OrganizationID: &org.ID}

	out, err := h.readinessDigest(ctx, job)
	if err != nil {
		t.Fatalf("readinessDigest() error = %v", err)
	}
	if out != "0 of 1 system(s) ready" {
		t.Errorf("output = %q", out)
	}
	if len(notifier.digests) != 1 || notifier.digests[0][0].Ready {
		t.Errorf("digests = %+v, want one not-ready result", notifier.digests)
	}

	out, err = h.overdueMitigations(ctx, job)
	if err != nil {
		t.Fatalf("overdueMitigations() error = %v", err)
	}
	if out != "no overdue mitigation actions" || len(notifier.overdues) != 0 {
		t.Errorf("output = %q, overdues = %d; want no notice", out, len(notifier.overdues))
	}

	src.overdue = []store.OverdueMitigation{{RiskTitle: "Bias", SystemName: sys.Name}}
	out, err = h.overdueMitigations(ctx, job)
	if err != nil {
		t.Fatalf("overdueMitigations() error = %v", err)
	}
	if out != "1 overdue mitigation action(s) reported" || len(notifier.overdues) != 1 {
		t.Errorf("output = %q, overdues = %d", out, len(notifier.overdues))
	}

	out, err = h.cleanupTokens(ctx, job)
	if err != nil || out != "4 refresh token(s) removed" {
		t.Errorf("cleanupTokens() = %q, %v", out, err)
	}

	if _, err := h.readinessDigest(ctx, &Job{ID: uuid.New()}); err == nil {
		t.Error("readinessDigest() without organization succeeded")
	}
}

func TestEnsureCleanupJob(t *testing.T) {
	st := newMemStore()
	s := NewScheduler(st, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.EnsureCleanupJob(ctx, "0 3 * * *"); err != nil {
			t.Fatalf("EnsureCleanupJob() error = %v", err)
		}
	}

	jobs, _ := st.ListJobs(ctx)
	if len(jobs) != 1 || jobs[0].JobType != JobTypeCleanupTokens {
		t.Errorf("jobs = %+v, want a single cleanup job", jobs)
	}
}
