package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/metrics"
	"github.com/aiact/compliance/internal/queue"
	"github.com/aiact/compliance/internal/reports"
	"github.com/aiact/compliance/internal/scoring"
)

// getReadiness evaluates certification readiness of a system. A system that
// is not ready is still a successful evaluation.
func (s *Server) getReadiness(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	in, err := s.store.LoadReadinessSnapshot(r.Context(), caller(r).OrganizationID, systemID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	result, err := scoring.ValidateReadiness(*in)
	metrics.ObserveReadiness(result, err)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// exportQuery reads the format and allow_draft query parameters.
func exportQuery(r *http.Request, fallback reports.ReportFormat) (reports.ReportFormat, bool, error) {
	q := r.URL.Query()
	verr := &scoring.ValidationError{}

	format := fallback
	if v := q.Get("format"); v != "" {
		format = reports.ReportFormat(strings.ToLower(v))
		if !format.Valid() {
			verr.Add("format", "must be one of: pdf docx csv")
		}
	}

	var allowDraft bool
	if v := q.Get("allow_draft"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			verr.Add("allow_draft", "must be a boolean")
		}
		allowDraft = b
	}

	return format, allowDraft, verr.ErrOrNil()
}

func (s *Server) exportReport(w http.ResponseWriter, r *http.Request, reportType reports.ReportType, targetParam string) {
	var targetID uuid.UUID
	if targetParam != "" {
		id, err := pathID(r, targetParam)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		targetID = id
	}

	format, allowDraft, err := exportQuery(r, reports.FormatPDF)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	report, err := s.reportGenerator.Generate(r.Context(), &reports.ReportRequest{
		Type:           reportType,
		Format:         format,
		OrganizationID: caller(r).OrganizationID,
		TargetID:       targetID,
		AllowDraft:     allowDraft,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	writeFile(w, report.Filename, report.MimeType, report.Data)
}

func writeFile(w http.ResponseWriter, filename, mimeType string, data []byte) {
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// exportCertificate issues the conformity certificate, or a draft when
// allow_draft is set and the system is not ready.
func (s *Server) exportCertificate(w http.ResponseWriter, r *http.Request) {
	s.exportReport(w, r, reports.ReportTypeCertificate, "systemID")
}

func (s *Server) exportGapAssessment(w http.ResponseWriter, r *http.Request) {
	s.exportReport(w, r, reports.ReportTypeGapAssessment, "gapID")
}

func (s *Server) exportRiskRegister(w http.ResponseWriter, r *http.Request) {
	s.exportReport(w, r, reports.ReportTypeRiskRegister, "registerID")
}

func (s *Server) exportExecutiveSummary(w http.ResponseWriter, r *http.Request) {
	s.exportReport(w, r, reports.ReportTypeExecutiveSummary, "")
}

type exportJobRequest struct {
	Type       reports.ReportType   `json:"type" validate:"required,enum"`
	Format     reports.ReportFormat `json:"format" validate:"omitempty,enum"`
	TargetID   *uuid.UUID           `json:"target_id" validate:"required_unless=Type executive_summary"`
	AllowDraft bool                 `json:"allow_draft"`
	Priority   int                  `json:"priority" validate:"min=0,max=10"`
}

// createExportJob queues a report for background generation.
func (s *Server) createExportJob(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		respondError(w, http.StatusServiceUnavailable, "exports_unavailable", "Background exports are not configured")
		return
	}

	var req exportJobRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if req.Format == "" {
		req.Format = reports.FormatPDF
	}

	claims := caller(r)
	job := &queue.Job{
		Request: reports.ReportRequest{
			Type:           req.Type,
			Format:         req.Format,
			OrganizationID: claims.OrganizationID,
			AllowDraft:     req.AllowDraft,
		},
		RequestedBy: claims.UserID,
		Priority:    req.Priority,
	}
	if req.TargetID != nil {
		job.Request.TargetID = *req.TargetID
	}

	if err := s.exports.Enqueue(r.Context(), job); err != nil {
		s.respondErr(w, r, err)
		return
	}

	progress, err := s.exports.GetProgress(r.Context(), job.ID)
	if err != nil || progress == nil {
		progress = &queue.JobProgress{
			JobID:          job.ID,
			OrganizationID: claims.OrganizationID,
			ReportType:     req.Type,
			Status:         queue.StatusPending,
		}
	}

	respondJSON(w, http.StatusAccepted, progress)
}

// getExportJob reports the progress of an export. Once it has completed,
// ?download=true or a non JSON Accept header returns the file itself.
func (s *Server) getExportJob(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		respondError(w, http.StatusServiceUnavailable, "exports_unavailable", "Background exports are not configured")
		return
	}

	id, err := pathID(r, "jobID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	progress, err := s.exports.GetProgress(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if progress == nil || progress.OrganizationID != caller(r).OrganizationID {
		respondError(w, http.StatusNotFound, "not_found", "Export job not found")
		return
	}

	if progress.Status == queue.StatusCompleted && wantsDownload(r) {
		data, err := s.exports.GetResult(r.Context(), id)
		if err != nil {
			respondError(w, http.StatusGone, "result_expired", "Export result is no longer available")
			return
		}
		writeFile(w, progress.Filename, progress.MimeType, data)
		return
	}

	respondJSON(w, http.StatusOK, progress)
}

func wantsDownload(r *http.Request) bool {
	if v := r.URL.Query().Get("download"); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	accept := r.Header.Get("Accept")
	return accept != "" && !strings.Contains(accept, "application/json") && !strings.Contains(accept, "*/*")
}
