package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

// The number and lifecycle timestamps are assigned by the server.
var incidentDerivedFields = []string{"incident_number", "resolved_at", "closed_at"}

type incidentRequest struct {
	AISystemID       uuid.UUID       `json:"ai_system_id" validate:"required"`
	Title            string          `json:"title" validate:"required,min=3"`
	Description      string          `json:"description" validate:"required,min=10"`
	Category         string          `json:"category" validate:"required"`
	Severity         models.Severity `json:"severity" validate:"required,enum"`
	OccurredAt       *time.Time      `json:"occurred_at"`
	BusinessImpact   string          `json:"business_impact"`
	ImmediateActions string          `json:"immediate_actions"`
}

// createIncident records an incident and alerts the configured channels.
// A failed alert is logged and does not fail the request.
func (s *Server) createIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := decodeRequest(r, &req, incidentDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	inc := &models.Incident{
		AISystemID:       req.AISystemID,
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		Severity:         req.Severity,
		Status:           models.IncidentOpen,
		BusinessImpact:   req.BusinessImpact,
		ImmediateActions: req.ImmediateActions,
		ReportedBy:       callerID(r),
	}
	if req.OccurredAt != nil {
		inc.OccurredAt = *req.OccurredAt
	}

	orgID := caller(r).OrganizationID
	if err := s.store.CreateIncident(r.Context(), orgID, inc); err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.logger.Info("incident reported",
		"incident_number", inc.IncidentNumber,
		"severity", inc.Severity,
		"system_id", inc.AISystemID,
	)

	if s.notifier != nil {
		systemName := inc.AISystemID.String()
		if sys, err := s.store.GetSystem(r.Context(), orgID, inc.AISystemID); err == nil {
			systemName = sys.Name
		}
		if _, err := s.notifier.NotifyIncident(r.Context(), inc, systemName); err != nil {
			s.logger.Error("incident notification failed", "incident_number", inc.IncidentNumber, "error", err)
		}
	}

	respondJSON(w, http.StatusCreated, inc)
}

func (s *Server) listIncidents(w http.ResponseWriter, r *http.Request) {
	filter, err := incidentFilterFromQuery(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	incidents, err := s.store.ListIncidents(r.Context(), caller(r).OrganizationID, filter)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, incidents, &apiMeta{
		Total:  len(incidents),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func incidentFilterFromQuery(r *http.Request) (store.IncidentFilter, error) {
	filter := store.IncidentFilter{Limit: 50}
	q := r.URL.Query()
	verr := &scoring.ValidationError{}

	if v := q.Get("system_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			verr.Add("system_id", "must be a UUID")
		} else {
			filter.SystemID = &id
		}
	}
	if v := q.Get("status"); v != "" {
		status := models.IncidentStatus(v)
		if !status.Valid() {
			verr.Add("status", "unknown value "+strconv.Quote(v))
		} else {
			filter.Status = &status
		}
	}
	if v := q.Get("severity"); v != "" {
		severity := models.Severity(v)
		if !severity.Valid() {
			verr.Add("severity", "unknown value "+strconv.Quote(v))
		} else {
			filter.Severity = &severity
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			verr.Add("limit", "must be between 1 and 500")
		} else {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			verr.Add("offset", "must be a non-negative whole number")
		} else {
			filter.Offset = n
		}
	}

	return filter, verr.ErrOrNil()
}

func (s *Server) getIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "incidentID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	inc, err := s.store.GetIncident(r.Context(), caller(r).OrganizationID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, inc)
}

type updateIncidentRequest struct {
	Title             *string                `json:"title" validate:"omitempty,min=3"`
	Description       *string                `json:"description" validate:"omitempty,min=10"`
	Category          *string                `json:"category" validate:"omitempty,min=1"`
	Severity          *models.Severity       `json:"severity" validate:"omitempty,enum"`
	Status            *models.IncidentStatus `json:"status" validate:"omitempty,enum"`
	BusinessImpact    *string                `json:"business_impact"`
	ImmediateActions  *string                `json:"immediate_actions"`
	RootCause         *string                `json:"root_cause"`
	ResolutionSummary *string                `json:"resolution_summary"`
}

func (s *Server) updateIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "incidentID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req updateIncidentRequest
	if err := decodeRequest(r, &req, incidentDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	inc, err := s.store.UpdateIncident(r.Context(), caller(r).OrganizationID, id, store.IncidentUpdate{
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Severity:          req.Severity,
		Status:            req.Status,
		BusinessImpact:    req.BusinessImpact,
		ImmediateActions:  req.ImmediateActions,
		RootCause:         req.RootCause,
		ResolutionSummary: req.ResolutionSummary,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, inc)
}
