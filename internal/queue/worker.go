package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/reports"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

// Generator renders one report. *reports.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req *reports.ReportRequest) (*reports.Report, error)
}

type Worker struct {
	id          string
	queue       *Queue
	generator   Generator
	concurrency int
	logger      *slog.Logger

	pollInterval  time.Duration
	staleTimeout  time.Duration
	cleanupPeriod time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running bool
	mu      sync.Mutex
}

type WorkerConfig struct {
	Queue       *Queue
	Generator   Generator
	Concurrency int
	Logger      *slog.Logger
}

func NewWorker(cfg WorkerConfig) *Worker {
	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		id:            workerID,
		queue:         cfg.Queue,
		generator:     cfg.Generator,
		concurrency:   concurrency,
		logger:        logger.With("worker", workerID),
		pollInterval:  time.Second,
		staleTimeout:  10 * time.Minute,
		cleanupPeriod: 5 * time.Minute,
	}
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.logger.Info("export worker starting", "concurrency", w.concurrency)

	w.wg.Add(1)
	go w.heartbeatLoop()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processLoop()
	}

	w.wg.Add(1)
	go w.staleJobCleaner()

	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.logger.Info("export worker stopping")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("export worker stopped")
}

func (w *Worker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.WorkerHeartbeat(w.ctx, w.id); err != nil {
				w.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

func (w *Worker) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(w.ctx, w.id)
		if err != nil {
			w.logger.Error("dequeuing export job", "error", err)
			w.sleep(5 * time.Second)
			continue
		}
		if job == nil {
			w.sleep(w.pollInterval)
			continue
		}

		w.process(job)
	}
}

// process runs one job to completion, failure or requeue. Jobs that can
// never succeed, like a certificate for a system that is not ready, fail
// without another attempt.
func (w *Worker) process(job *Job) {
	logger := w.logger.With(
		"job_id", job.ID,
		"report_type", job.Request.Type,
		"organization_id", job.Request.OrganizationID,
	)
	logger.Info("processing export job", "attempt", job.Attempts+1)

	report, err := w.generator.Generate(w.ctx, &job.Request)
	switch {
	case err == nil:
		if err := w.queue.Complete(w.ctx, job, report); err != nil {
			logger.Error("storing export result", "error", err)
			return
		}
		logger.Info("export job completed", "filename", report.Filename, "draft", report.Draft)
	case isPermanent(err):
		logger.Warn("export job failed", "error", err)
		if err := w.queue.Fail(w.ctx, job, err.Error()); err != nil {
			logger.Error("marking export job failed", "error", err)
		}
	default:
		logger.Warn("export job failed, requeueing", "error", err)
		if err := w.queue.Requeue(w.ctx, job, err.Error()); err != nil {
			logger.Error("requeueing export job", "error", err)
		}
	}
}

func isPermanent(err error) bool {
	var notReady *reports.NotReadyError
	var invalid *scoring.ValidationError
	return errors.As(err, &notReady) ||
		errors.As(err, &invalid) ||
		errors.Is(err, reports.ErrUnsupportedFormat) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, scoring.ErrMalformedSnapshot)
}

func (w *Worker) staleJobCleaner() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			cleaned, err := w.queue.CleanupStaleJobs(w.ctx, w.staleTimeout)
			if err != nil {
				w.logger.Error("cleaning stale export jobs", "error", err)
			} else if cleaned > 0 {
				w.logger.Info("requeued stale export jobs", "count", cleaned)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ctx.Done():
	case <-t.C:
	}
}
