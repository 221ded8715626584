package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aiact/compliance/internal/metrics"
	"github.com/aiact/compliance/internal/reports"
)

const (
	ExportJobsQueue      = "aiact:exports:queue"
	ExportJobsProcessing = "aiact:exports:processing"
	ExportJobsCompleted  = "aiact:exports:completed"
	ExportJobsFailed     = "aiact:exports:failed"
	WorkerHeartbeatKey   = "aiact:exports:workers"
	JobProgressPrefix    = "aiact:exports:progress:"
	JobResultPrefix      = "aiact:exports:result:"

	MaxAttempts = 3
)

var ErrResultNotFound = errors.New("export result not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

type Queue struct {
	client    *redis.Client
	resultTTL time.Duration
}

func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Queue{client: client, resultTTL: ttl}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

type Job struct {
	ID          uuid.UUID             `json:"id"`
	Request     reports.ReportRequest `json:"request"`
	RequestedBy uuid.UUID             `json:"requested_by"`
	Priority    int                   `json:"priority"`
	CreatedAt   time.Time             `json:"created_at"`
	Attempts    int                   `json:"attempts"`
}

// JobProgress is what clients poll. OrganizationID lets the API hide jobs
// of other organizations.
type JobProgress struct {
	JobID          uuid.UUID          `json:"job_id"`
	OrganizationID uuid.UUID          `json:"organization_id"`
	ReportType     reports.ReportType `json:"report_type"`
	Status         Status             `json:"status"`
	Filename       string             `json:"filename,omitempty"`
	MimeType       string             `json:"mime_type,omitempty"`
	Draft          bool               `json:"draft,omitempty"`
	Errors         []string           `json:"errors,omitempty"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	UpdatedAt      time.Time          `json:"updated_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	WorkerID       string             `json:"worker_id,omitempty"`
}

func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	score := float64(time.Now().Unix()) - float64(job.Priority*1000)

	if err := q.client.ZAdd(ctx, ExportJobsQueue, redis.Z{
		Score:  score,
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("enqueueing job: %w", err)
	}

	progress := &JobProgress{
		JobID:          job.ID,
		OrganizationID: job.Request.OrganizationID,
		ReportType:     job.Request.Type,
		Status:         StatusPending,
	}
	if err := q.UpdateProgress(ctx, progress); err != nil {
		return fmt.Errorf("initializing progress: %w", err)
	}

	metrics.ObserveExportJob(string(StatusPending))
	return nil
}

// Dequeue pops the lowest scored job whose score is due. It returns nil, nil
// when nothing is ready.
func (q *Queue) Dequeue(ctx context.Context, workerID string) (*Job, error) {
	due := fmt.Sprintf("%d", time.Now().Unix())
	ready, err := q.client.ZRangeByScore(ctx, ExportJobsQueue, &redis.ZRangeBy{
		Min: "-inf", Max: due, Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("peeking queue: %w", err)
	}
	if len(ready) == 0 {
		return nil, nil
	}

	// Another worker may have taken it in the meantime.
	removed, err := q.client.ZRem(ctx, ExportJobsQueue, ready[0]).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeuing job: %w", err)
	}
	if removed == 0 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(ready[0]), &job); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}

	if err := q.client.SAdd(ctx, ExportJobsProcessing, ready[0]).Err(); err != nil {
		q.client.ZAdd(ctx, ExportJobsQueue, redis.Z{
			Score:  float64(time.Now().Unix()),
			Member: ready[0],
		})
		return nil, fmt.Errorf("marking job as processing: %w", err)
	}

	now := time.Now()
	progress := q.progressOrNew(ctx, &job)
	progress.Status = StatusRunning
	progress.StartedAt = &now
	progress.WorkerID = workerID
	_ = q.UpdateProgress(ctx, progress)

	metrics.ObserveExportJob(string(StatusRunning))
	return &job, nil
}

// Complete stores the rendered file and marks the job completed. The result
// and its progress record expire after the configured TTL.
func (q *Queue) Complete(ctx context.Context, job *Job, report *reports.Report) error {
	data, _ := json.Marshal(job)

	if err := q.client.Set(ctx, JobResultPrefix+job.ID.String(), report.Data, q.resultTTL).Err(); err != nil {
		return fmt.Errorf("storing result: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.SRem(ctx, ExportJobsProcessing, string(data))
	pipe.SAdd(ctx, ExportJobsCompleted, job.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking job complete: %w", err)
	}

	now := time.Now()
	progress := q.progressOrNew(ctx, job)
	progress.Status = StatusCompleted
	progress.Filename = report.Filename
	progress.MimeType = report.MimeType
	progress.Draft = report.Draft
	progress.CompletedAt = &now
	if err := q.UpdateProgress(ctx, progress); err != nil {
		return err
	}

	metrics.ObserveExportJob(string(StatusCompleted))
	return nil
}

// Fail marks the job failed without another attempt.
func (q *Queue) Fail(ctx context.Context, job *Job, errorMsg string) error {
	data, _ := json.Marshal(job)

	pipe := q.client.TxPipeline()
	pipe.SRem(ctx, ExportJobsProcessing, string(data))
	pipe.SAdd(ctx, ExportJobsFailed, job.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("marking job failed: %w", err)
	}

	now := time.Now()
	progress := q.progressOrNew(ctx, job)
	progress.Status = StatusFailed
	progress.Errors = append(progress.Errors, errorMsg)
	progress.CompletedAt = &now
	if err := q.UpdateProgress(ctx, progress); err != nil {
		return err
	}

	metrics.ObserveExportJob(string(StatusFailed))
	return nil
}

// Requeue schedules another attempt with a linear backoff, or fails the job
// once MaxAttempts is reached.
func (q *Queue) Requeue(ctx context.Context, job *Job, errorMsg string) error {
	data, _ := json.Marshal(job)
	q.client.SRem(ctx, ExportJobsProcessing, string(data))

	job.Attempts++
	if job.Attempts >= MaxAttempts {
		return q.Fail(ctx, job, errorMsg)
	}

	newData, _ := json.Marshal(job)
	backoff := time.Duration(job.Attempts*30) * time.Second
	score := float64(time.Now().Add(backoff).Unix())

	if err := q.client.ZAdd(ctx, ExportJobsQueue, redis.Z{
		Score:  score,
		Member: string(newData),
	}).Err(); err != nil {
		return fmt.Errorf("requeuing job: %w", err)
	}

	progress := q.progressOrNew(ctx, job)
	progress.Status = StatusPending
	progress.Errors = append(progress.Errors, errorMsg)
	return q.UpdateProgress(ctx, progress)
}

func (q *Queue) UpdateProgress(ctx context.Context, progress *JobProgress) error {
	progress.UpdatedAt = time.Now()
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}

	key := JobProgressPrefix + progress.JobID.String()
	if err := q.client.Set(ctx, key, string(data), q.resultTTL).Err(); err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}

	return nil
}

// GetProgress returns nil, nil for an unknown or expired job.
func (q *Queue) GetProgress(ctx context.Context, jobID uuid.UUID) (*JobProgress, error) {
	key := JobProgressPrefix + jobID.String()
	data, err := q.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting progress: %w", err)
	}

	var progress JobProgress
	if err := json.Unmarshal([]byte(data), &progress); err != nil {
		return nil, fmt.Errorf("unmarshaling progress: %w", err)
	}

	return &progress, nil
}

func (q *Queue) GetResult(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	data, err := q.client.Get(ctx, JobResultPrefix+jobID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting result: %w", err)
	}
	return data, nil
}

func (q *Queue) progressOrNew(ctx context.Context, job *Job) *JobProgress {
	progress, _ := q.GetProgress(ctx, job.ID)
	if progress == nil {
		progress = &JobProgress{
			JobID:          job.ID,
			OrganizationID: job.Request.OrganizationID,
			ReportType:     job.Request.Type,
		}
	}
	return progress
}

func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	pending := pipe.ZCard(ctx, ExportJobsQueue)
	processing := pipe.SCard(ctx, ExportJobsProcessing)
	completed := pipe.SCard(ctx, ExportJobsCompleted)
	failed := pipe.SCard(ctx, ExportJobsFailed)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reading queue stats: %w", err)
	}

	return map[string]int64{
		"pending":    pending.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

func (q *Queue) WorkerHeartbeat(ctx context.Context, workerID string) error {
	return q.client.HSet(ctx, WorkerHeartbeatKey, workerID, time.Now().Unix()).Err()
}

func (q *Queue) ActiveWorkers(ctx context.Context, timeout time.Duration) ([]string, error) {
	workers, err := q.client.HGetAll(ctx, WorkerHeartbeatKey).Result()
	if err != nil {
		return nil, fmt.Errorf("getting workers: %w", err)
	}

	var active []string
	cutoff := time.Now().Add(-timeout).Unix()

	for workerID, lastSeen := range workers {
		var ts int64
		_, _ = fmt.Sscanf(lastSeen, "%d", &ts)
		if ts > cutoff {
			active = append(active, workerID)
		}
	}

	return active, nil
}

// CleanupStaleJobs puts back jobs whose worker stopped updating them.
func (q *Queue) CleanupStaleJobs(ctx context.Context, timeout time.Duration) (int, error) {
	jobs, err := q.client.SMembers(ctx, ExportJobsProcessing).Result()
	if err != nil {
		return 0, fmt.Errorf("getting processing jobs: %w", err)
	}

	cleaned := 0
	for _, jobData := range jobs {
		var job Job
		if err := json.Unmarshal([]byte(jobData), &job); err != nil {
			continue
		}

		progress, err := q.GetProgress(ctx, job.ID)
		if err != nil || progress == nil {
			continue
		}
		if time.Since(progress.UpdatedAt) <= timeout {
			continue
		}

		if err := q.Requeue(ctx, &job, "worker stopped responding"); err != nil {
			return cleaned, err
		}
		cleaned++
	}

	return cleaned, nil
}
