package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var ErrJobNotFound = errors.New("scheduled job not found")

// Job is a persisted cron job. OrganizationID is nil for jobs that act on
// the whole installation, like token cleanup.
type Job struct {
	ID             uuid.UUID         `json:"id" db:"id"`
	OrganizationID *uuid.UUID        `json:"organization_id,omitempty" db:"organization_id"`
	Name           string            `json:"name" db:"name"`
	Description    string            `json:"description" db:"description"`
	Schedule       string            `json:"schedule" db:"schedule"`
	JobType        JobType           `json:"job_type" db:"job_type"`
	Config         map[string]string `json:"config,omitempty" db:"config"`
	Enabled        bool              `json:"enabled" db:"enabled"`
	LastRun        *time.Time        `json:"last_run,omitempty" db:"last_run"`
	NextRun        *time.Time        `json:"next_run,omitempty" db:"next_run"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

type JobType string

const (
	JobTypeReadinessDigest    JobType = "readiness_digest"
	JobTypeOverdueMitigations JobType = "overdue_mitigations"
	JobTypeCleanupTokens      JobType = "cleanup_tokens"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTypeReadinessDigest, JobTypeOverdueMitigations, JobTypeCleanupTokens:
		return true
	}
	return false
}

// OrganizationScoped reports whether jobs of this type run for one
// organization.
func (t JobType) OrganizationScoped() bool {
	return t != JobTypeCleanupTokens
}

type JobExecution struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	JobID     uuid.UUID       `json:"job_id" db:"job_id"`
	Status    ExecutionStatus `json:"status" db:"status"`
	StartedAt time.Time       `json:"started_at" db:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
	Error     string          `json:"error,omitempty" db:"error"`
	Output    string          `json:"output,omitempty" db:"output"`
}

type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// JobHandler executes a job and returns a short summary for the execution
// record.
type JobHandler func(ctx context.Context, job *Job) (string, error)

// Store persists jobs and their execution history.
type Store interface {
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]*Job, error)
	ListOrganizationJobs(ctx context.Context, orgID uuid.UUID) ([]*Job, error)
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, id uuid.UUID) error
	UpdateLastRun(ctx context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error
	CreateExecution(ctx context.Context, exec *JobExecution) error
	UpdateExecution(ctx context.Context, exec *JobExecution) error
	GetJobExecutions(ctx context.Context, jobID uuid.UUID, limit int) ([]*JobExecution, error)
}

type Scheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	store    Store
	handlers map[JobType]JobHandler
	entries  map[uuid.UUID]cron.EntryID
	mu       sync.RWMutex
	logger   *slog.Logger
	timeout  time.Duration
}

func NewScheduler(store Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		parser:   parser,
		store:    store,
		handlers: make(map[JobType]JobHandler),
		entries:  make(map[uuid.UUID]cron.EntryID),
		logger:   logger,
		timeout:  10 * time.Minute,
	}
}

func (s *Scheduler) RegisterHandler(jobType JobType, handler JobHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

// ValidateSchedule parses a cron expression with the scheduler's parser.
func (s *Scheduler) ValidateSchedule(expr string) error {
	if _, err := s.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("loading jobs: %w", err)
	}

	scheduled := 0
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		if err := s.scheduleJob(job); err != nil {
			s.logger.Error("failed to schedule job",
				"job_id", job.ID,
				"job_name", job.Name,
				"error", err)
			continue
		}
		scheduled++
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(jobs), "scheduled", scheduled)

	return nil
}

// Stop stops the cron loop. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) AddJob(ctx context.Context, job *Job) error {
	if err := s.validateJob(job); err != nil {
		return err
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return err
	}

	if job.Enabled {
		return s.scheduleJob(job)
	}
	return nil
}

func (s *Scheduler) UpdateJob(ctx context.Context, job *Job) error {
	if err := s.validateJob(job); err != nil {
		return err
	}
	s.unscheduleJob(job.ID)

	if job.Enabled {
		if err := s.scheduleJob(job); err != nil {
			return err
		}
	} else {
		job.NextRun = nil
	}

	return s.store.UpdateJob(ctx, job)
}

func (s *Scheduler) DeleteJob(ctx context.Context, id uuid.UUID) error {
	s.unscheduleJob(id)
	return s.store.DeleteJob(ctx, id)
}

// RunJobNow executes a job in the background and returns its execution
// record, which is updated when the job finishes.
func (s *Scheduler) RunJobNow(ctx context.Context, id uuid.UUID) (*JobExecution, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	exec, err := s.startExecution(ctx, job)
	if err != nil {
		return nil, err
	}
	go s.finishExecution(job, exec)
	return exec, nil
}

func (s *Scheduler) Executions(ctx context.Context, id uuid.UUID, limit int) ([]*JobExecution, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.GetJobExecutions(ctx, id, limit)
}

// GetNextRuns returns the next count run times of a scheduled job.
func (s *Scheduler) GetNextRuns(id uuid.UUID, count int) []time.Time {
	s.mu.RLock()
	entryID, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	entry := s.cron.Entry(entryID)
	if entry.ID == 0 {
		return nil
	}

	runs := make([]time.Time, 0, count)
	next := entry.Next
	if next.IsZero() {
		next = entry.Schedule.Next(time.Now())
	}
	for i := 0; i < count; i++ {
		runs = append(runs, next)
		next = entry.Schedule.Next(next)
	}

	return runs
}

func (s *Scheduler) validateJob(job *Job) error {
	if !job.JobType.Valid() {
		return fmt.Errorf("unknown job type %q", job.JobType)
	}
	if job.JobType.OrganizationScoped() && job.OrganizationID == nil {
		return fmt.Errorf("job type %s requires an organization", job.JobType)
	}
	return s.ValidateSchedule(job.Schedule)
}

func (s *Scheduler) scheduleJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[job.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, job.ID)
	}

	schedule, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	jobID := job.ID
	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.runScheduled(jobID)
	}))
	s.entries[job.ID] = entryID

	nextRun := schedule.Next(time.Now())
	job.NextRun = &nextRun

	s.logger.Info("scheduled job",
		"job_id", job.ID,
		"job_name", job.Name,
		"schedule", job.Schedule,
		"next_run", nextRun)

	return nil
}

func (s *Scheduler) unscheduleJob(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// runScheduled reloads the job so edits made since scheduling are honored.
func (s *Scheduler) runScheduled(id uuid.UUID) {
	ctx := context.Background()
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		s.logger.Error("loading scheduled job", "job_id", id, "error", err)
		return
	}
	if !job.Enabled {
		return
	}

	exec, err := s.startExecution(ctx, job)
	if err != nil {
		s.logger.Error("failed to create execution record", "job_id", id, "error", err)
		return
	}
	s.finishExecution(job, exec)
}

func (s *Scheduler) startExecution(ctx context.Context, job *Job) (*JobExecution, error) {
	exec := &JobExecution{
		ID:        uuid.New(),
		JobID:     job.ID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	if err := s.store.CreateExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("creating execution record: %w", err)
	}
	return exec, nil
}

func (s *Scheduler) finishExecution(job *Job, exec *JobExecution) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	logger := s.logger.With("job_id", job.ID, "job_name", job.Name, "execution_id", exec.ID)
	logger.Info("executing job")

	s.mu.RLock()
	handler, ok := s.handlers[job.JobType]
	s.mu.RUnlock()

	var output string
	var err error
	if ok {
		output, err = handler(ctx, job)
	} else {
		err = fmt.Errorf("no handler registered for job type: %s", job.JobType)
	}

	endTime := time.Now()
	exec.EndedAt = &endTime
	exec.Output = output

	if err != nil {
		exec.Status = StatusFailed
		exec.Error = err.Error()
		logger.Error("job execution failed", "error", err, "duration", endTime.Sub(exec.StartedAt))
	} else {
		exec.Status = StatusCompleted
		logger.Info("job execution completed", "output", output, "duration", endTime.Sub(exec.StartedAt))
	}

	// Persisting the outcome must not depend on the handler's deadline.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.UpdateExecution(persistCtx, exec); err != nil {
		logger.Error("updating execution record", "error", err)
	}

	var nextRun *time.Time
	if runs := s.GetNextRuns(job.ID, 1); len(runs) == 1 {
		nextRun = &runs[0]
	}
	if err := s.store.UpdateLastRun(persistCtx, job.ID, exec.StartedAt, nextRun); err != nil {
		logger.Error("updating last run", "error", err)
	}
}
