package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

// Derived aggregate fields a client may never send.
var (
	gapDerivedFields         = []string{"overall_score", "last_assessed_date"}
	requirementDerivedFields = []string{"overall_score", "last_assessed_date", "updated_by"}
)

type requirementRequest struct {
	Category            models.RequirementCategory `json:"category" validate:"required,enum"`
	Title               string                     `json:"title" validate:"required,min=3"`
	Description         string                     `json:"description" validate:"required,min=10"`
	RegulatoryReference string                     `json:"regulatory_reference" validate:"required,min=3"`
	Status              models.RequirementStatus   `json:"status" validate:"omitempty,enum"`
	Priority            models.Priority            `json:"priority" validate:"omitempty,enum"`
	Notes               string                     `json:"notes"`
	AssignedTo          string                     `json:"assigned_to"`
	DueDate             *time.Time                 `json:"due_date"`
}

type gapAssessmentRequest struct {
	// Requirements defaults to the high-risk requirement catalog when empty.
	Requirements []requirementRequest `json:"requirements" validate:"dive"`
}

// gapAssessmentResponse adds the category breakdown to the stored record.
type gapAssessmentResponse struct {
	*models.GapAssessment
	Categories []scoring.CategoryScore `json:"categories"`
}

func newGapAssessmentResponse(gap *models.GapAssessment) gapAssessmentResponse {
	summary := scoring.AggregateCompliance(scoring.StatusesOf(gap.Requirements))
	return gapAssessmentResponse{GapAssessment: gap, Categories: summary.Categories}
}

func requirementsFromCatalog() []models.RequirementAssessment {
	catalog := models.DefaultRequirements()
	reqs := make([]models.RequirementAssessment, len(catalog))
	for i, t := range catalog {
		reqs[i] = models.RequirementAssessment{
			Category:            t.Category,
			Title:               t.Title,
			Description:         t.Description,
			RegulatoryReference: t.RegulatoryReference,
			Status:              models.StatusNotStarted,
			Priority:            t.Priority,
		}
	}
	return reqs
}

// createGapAssessment starts the gap assessment of a high-risk system.
func (s *Server) createGapAssessment(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req gapAssessmentRequest
	if err := decodeRequest(r, &req, gapDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	orgID := caller(r).OrganizationID
	classification, err := s.store.GetClassification(r.Context(), orgID, systemID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.respondErr(w, r, err)
		return
	}
	if classification == nil || classification.Category != models.RiskCategoryHigh {
		// Distinguish a missing system from a missing or non high-risk classification.
		if _, err := s.store.GetSystem(r.Context(), orgID, systemID); err != nil {
			s.respondErr(w, r, err)
			return
		}
		s.respondErr(w, r, scoring.NewValidationError("classification",
			"gap assessment is only available for high-risk AI systems"))
		return
	}

	reqs := requirementsFromCatalog()
	if len(req.Requirements) > 0 {
		reqs = make([]models.RequirementAssessment, len(req.Requirements))
		for i, rr := range req.Requirements {
			status := rr.Status
			if status == "" {
				status = models.StatusNotStarted
			}
			priority := rr.Priority
			if priority == "" {
				priority = models.PriorityMedium
			}
			reqs[i] = models.RequirementAssessment{
				Category:            rr.Category,
				Title:               rr.Title,
				Description:         rr.Description,
				RegulatoryReference: rr.RegulatoryReference,
				Status:              status,
				Priority:            priority,
				Notes:               rr.Notes,
				AssignedTo:          rr.AssignedTo,
				DueDate:             rr.DueDate,
			}
		}
	}

	gap, err := s.store.CreateGapAssessment(r.Context(), orgID, systemID, reqs, callerID(r))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, newGapAssessmentResponse(gap))
}

func (s *Server) getSystemGapAssessment(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	gap, err := s.store.GetGapAssessmentBySystem(r.Context(), caller(r).OrganizationID, systemID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newGapAssessmentResponse(gap))
}

func (s *Server) getGapAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "gapID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	gap, err := s.store.GetGapAssessment(r.Context(), caller(r).OrganizationID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, newGapAssessmentResponse(gap))
}

func (s *Server) listGapAssessments(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListGapAssessments(r.Context(), caller(r).OrganizationID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, items, &apiMeta{Total: len(items)})
}

// recomputeGapAssessment re-derives a stored score from its requirements.
func (s *Server) recomputeGapAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "gapID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	summary, err := s.store.RecomputeGapScore(r.Context(), caller(r).OrganizationID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) deleteGapAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "gapID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteGapAssessment(r.Context(), caller(r).OrganizationID, id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type updateRequirementRequest struct {
	Status     *models.RequirementStatus `json:"status" validate:"omitempty,enum"`
	Priority   *models.Priority          `json:"priority" validate:"omitempty,enum"`
	Notes      *string                   `json:"notes"`
	AssignedTo *string                   `json:"assigned_to"`
	DueDate    *time.Time                `json:"due_date"`
}

// updateRequirement changes a requirement and returns the recomputed
// assessment score, written in the same transaction.
func (s *Server) updateRequirement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requirementID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req updateRequirementRequest
	if err := decodeRequest(r, &req, requirementDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	requirement, summary, err := s.store.UpdateRequirement(r.Context(), caller(r).OrganizationID, id, store.RequirementUpdate{
		Status:     req.Status,
		Priority:   req.Priority,
		Notes:      req.Notes,
		AssignedTo: req.AssignedTo,
		DueDate:    req.DueDate,
	}, callerID(r))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requirement": requirement,
		"score":       summary,
	})
}

type evidenceRequest struct {
	Type        models.EvidenceType `json:"type" validate:"required,enum"`
	Title       string              `json:"title" validate:"required,min=3"`
	Description string              `json:"description"`
	TextContent *string             `json:"text_content"`
	FileURL     *string             `json:"file_url" validate:"omitempty,url"`
	LinkURL     *string             `json:"link_url" validate:"omitempty,url"`
}

func (s *Server) createEvidence(w http.ResponseWriter, r *http.Request) {
	reqID, err := pathID(r, "requirementID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req evidenceRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	e := &models.Evidence{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		TextContent: req.TextContent,
		FileURL:     req.FileURL,
		LinkURL:     req.LinkURL,
		UploadedBy:  callerID(r),
	}
	if err := s.store.CreateEvidence(r.Context(), caller(r).OrganizationID, reqID, e); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, e)
}

func (s *Server) listEvidence(w http.ResponseWriter, r *http.Request) {
	reqID, err := pathID(r, "requirementID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	evidence, err := s.store.ListEvidence(r.Context(), caller(r).OrganizationID, reqID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, evidence, &apiMeta{Total: len(evidence)})
}

func (s *Server) deleteEvidence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "evidenceID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteEvidence(r.Context(), caller(r).OrganizationID, id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
