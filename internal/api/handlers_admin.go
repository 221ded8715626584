package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/notifications"
	"github.com/aiact/compliance/internal/scheduler"
	"github.com/aiact/compliance/internal/scoring"
)

type scheduledJobRequest struct {
	Name        string            `json:"name" validate:"required,min=3"`
	Description string            `json:"description"`
	Schedule    string            `json:"schedule" validate:"required"`
	JobType     scheduler.JobType `json:"job_type" validate:"required,enum"`
	Config      map[string]string `json:"config"`
	Enabled     *bool             `json:"enabled"`
}

// check validates what the tags cannot: the cron expression and that only
// organization jobs are managed through the API.
func (req scheduledJobRequest) check(sched *scheduler.Scheduler) error {
	verr := &scoring.ValidationError{}
	if err := sched.ValidateSchedule(req.Schedule); err != nil {
		verr.Add("schedule", err.Error())
	}
	if !req.JobType.OrganizationScoped() {
		verr.Add("job_type", "installation-wide jobs cannot be managed through the API")
	}
	return verr.ErrOrNil()
}

type scheduledJobResponse struct {
	*scheduler.Job
	NextRuns []time.Time `json:"next_runs,omitempty"`
}

func (s *Server) listScheduledJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.schedulerStore.ListOrganizationJobs(r.Context(), caller(r).OrganizationID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, jobs, &apiMeta{Total: len(jobs)})
}

// visibleJob loads a job the caller may see: their organization's jobs and
// the installation-wide ones.
func (s *Server) visibleJob(r *http.Request) (*scheduler.Job, error) {
	id, err := pathID(r, "jobID")
	if err != nil {
		return nil, err
	}
	job, err := s.schedulerStore.GetJob(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if job.OrganizationID != nil && *job.OrganizationID != caller(r).OrganizationID {
		return nil, scheduler.ErrJobNotFound
	}
	return job, nil
}

// ownedJob loads a job the caller may change. Installation-wide jobs are
// read only.
func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request) (*scheduler.Job, bool) {
	job, err := s.visibleJob(r)
	if err != nil {
		s.respondErr(w, r, err)
		return nil, false
	}
	if job.OrganizationID == nil {
		respondError(w, http.StatusForbidden, "forbidden", "Installation-wide jobs are managed by the operator")
		return nil, false
	}
	return job, true
}

func (s *Server) createScheduledJob(w http.ResponseWriter, r *http.Request) {
	var req scheduledJobRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := req.check(s.scheduler); err != nil {
		s.respondErr(w, r, err)
		return
	}

	orgID := caller(r).OrganizationID
	job := &scheduler.Job{
		ID:             uuid.New(),
		OrganizationID: &orgID,
		Name:           req.Name,
		Description:    req.Description,
		Schedule:       req.Schedule,
		JobType:        req.JobType,
		Config:         req.Config,
		Enabled:        req.Enabled == nil || *req.Enabled,
	}

	if err := s.scheduler.AddJob(r.Context(), job); err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.logger.Info("scheduled job created", "job_id", job.ID, "job_type", job.JobType, "organization_id", orgID)
	respondJSON(w, http.StatusCreated, scheduledJobResponse{Job: job, NextRuns: s.scheduler.GetNextRuns(job.ID, 5)})
}

func (s *Server) getScheduledJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.visibleJob(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, scheduledJobResponse{Job: job, NextRuns: s.scheduler.GetNextRuns(job.ID, 5)})
}

func (s *Server) updateScheduledJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	var req scheduledJobRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := req.check(s.scheduler); err != nil {
		s.respondErr(w, r, err)
		return
	}

	job.Name = req.Name
	job.Description = req.Description
	job.Schedule = req.Schedule
	job.JobType = req.JobType
	job.Config = req.Config
	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}

	if err := s.scheduler.UpdateJob(r.Context(), job); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, scheduledJobResponse{Job: job, NextRuns: s.scheduler.GetNextRuns(job.ID, 5)})
}

func (s *Server) deleteScheduledJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	if err := s.scheduler.DeleteJob(r.Context(), job.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) runScheduledJobNow(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}

	exec, err := s.scheduler.RunJobNow(r.Context(), job.ID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, exec)
}

func (s *Server) getJobExecutions(w http.ResponseWriter, r *http.Request) {
	job, err := s.visibleJob(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	execs, err := s.scheduler.Executions(r.Context(), job.ID, limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, execs, &apiMeta{Total: len(execs)})
}

func (s *Server) getNotificationSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.notifier.Settings().Redacted())
}

// updateNotificationSettings replaces the runtime notification settings.
// Redacted secrets sent back unchanged keep their current values.
func (s *Server) updateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var cfg notifications.Config
	if err := decodeRequest(r, &cfg); err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.notifier.UpdateSettings(cfg)
	s.logger.Info("notification settings updated",
		"slack", cfg.Slack.Enabled,
		"email", cfg.Email.Enabled,
		"min_severity", cfg.MinSeverity,
	)

	respondJSON(w, http.StatusOK, s.notifier.Settings().Redacted())
}

func (s *Server) testNotification(w http.ResponseWriter, r *http.Request) {
	cfg := s.notifier.Settings()
	if !cfg.Slack.Enabled && !cfg.Email.Enabled {
		respondError(w, http.StatusBadRequest, "validation_error", "No notification channel is enabled")
		return
	}

	err := s.notifier.Send(r.Context(), &notifications.Notification{
		Type:      notifications.NotifyIncidentReported,
		Title:     "Test notification",
		Message:   "Notification delivery is configured correctly.",
		Severity:  models.SeverityLow,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.logger.Warn("test notification failed", "error", err)
		respondError(w, http.StatusBadGateway, "delivery_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
