package api

import (
	"net/http"
	"time"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/store"
)

type systemRequest struct {
	Name                string                  `json:"name" validate:"required,min=2,max=200"`
	BusinessPurpose     string                  `json:"business_purpose" validate:"required,min=10"`
	Description         string                  `json:"description"`
	TechnicalApproach   string                  `json:"technical_approach"`
	PrimaryUsers        []string                `json:"primary_users"`
	DeploymentStatus    models.DeploymentStatus `json:"deployment_status" validate:"required,enum"`
	DeploymentDate      *time.Time              `json:"deployment_date"`
	DataCategories      []string                `json:"data_categories"`
	ThirdPartyProviders []string                `json:"third_party_providers"`
}

// systemDerivedFields come from joins and cannot be written through the
// system endpoints.
var systemDerivedFields = []string{"risk_category", "gap_score"}

func (req systemRequest) apply(sys *models.AISystem) {
	sys.Name = req.Name
	sys.BusinessPurpose = req.BusinessPurpose
	sys.Description = req.Description
	sys.TechnicalApproach = req.TechnicalApproach
	sys.PrimaryUsers = req.PrimaryUsers
	sys.DeploymentStatus = req.DeploymentStatus
	sys.DeploymentDate = req.DeploymentDate
	sys.DataCategories = req.DataCategories
	sys.ThirdPartyProviders = req.ThirdPartyProviders
}

func (s *Server) listSystems(w http.ResponseWriter, r *http.Request) {
	var filter store.SystemFilter
	q := r.URL.Query()

	if v := q.Get("deployment_status"); v != "" {
		status := models.DeploymentStatus(v)
		if !status.Valid() {
			respondErrorDetails(w, http.StatusBadRequest, "validation_error", "Validation failed",
				map[string]string{"deployment_status": "unknown value " + v}, nil)
			return
		}
		filter.DeploymentStatus = &status
	}
	if v := q.Get("risk_category"); v != "" {
		category := models.RiskCategory(v)
		if !category.Valid() {
			respondErrorDetails(w, http.StatusBadRequest, "validation_error", "Validation failed",
				map[string]string{"risk_category": "unknown value " + v}, nil)
			return
		}
		filter.RiskCategory = &category
	}

	systems, err := s.store.ListSystems(r.Context(), caller(r).OrganizationID, filter)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, systems, &apiMeta{Total: len(systems)})
}

func (s *Server) createSystem(w http.ResponseWriter, r *http.Request) {
	var req systemRequest
	if err := decodeRequest(r, &req, systemDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	sys := &models.AISystem{CreatedBy: callerID(r)}
	req.apply(sys)

	if err := s.store.CreateSystem(r.Context(), caller(r).OrganizationID, sys); err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.logger.Info("ai system registered", "system_id", sys.ID, "organization_id", sys.OrganizationID)
	respondJSON(w, http.StatusCreated, sys)
}

func (s *Server) getSystem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	sys, err := s.store.GetSystem(r.Context(), caller(r).OrganizationID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sys)
}

func (s *Server) updateSystem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req systemRequest
	if err := decodeRequest(r, &req, systemDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	orgID := caller(r).OrganizationID
	sys, err := s.store.GetSystem(r.Context(), orgID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	req.apply(sys)

	if err := s.store.UpdateSystem(r.Context(), orgID, sys); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sys)
}

func (s *Server) deleteSystem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteSystem(r.Context(), caller(r).OrganizationID, id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type classificationRequest struct {
	Category               models.RiskCategory `json:"category" validate:"required,enum"`
	ProhibitedPractices    []string            `json:"prohibited_practices"`
	HighRiskCategories     []string            `json:"high_risk_categories"`
	InteractsWithPersons   bool                `json:"interacts_with_persons"`
	Reasoning              string              `json:"reasoning" validate:"required,min=50"`
	ApplicableRequirements []string            `json:"applicable_requirements"`
}

// createClassification records the risk tier of a system. A system is
// classified once; a second attempt is a conflict.
func (s *Server) createClassification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req classificationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	c := &models.RiskClassification{
		AISystemID:             id,
		Category:               req.Category,
		ProhibitedPractices:    req.ProhibitedPractices,
		HighRiskCategories:     req.HighRiskCategories,
		InteractsWithPersons:   req.InteractsWithPersons,
		Reasoning:              req.Reasoning,
		ApplicableRequirements: req.ApplicableRequirements,
		ClassifiedBy:           callerID(r),
	}

	if err := s.store.CreateClassification(r.Context(), caller(r).OrganizationID, c); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) getClassification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	c, err := s.store.GetClassification(r.Context(), caller(r).OrganizationID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, c)
}

func (s *Server) deleteClassification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteClassification(r.Context(), caller(r).OrganizationID, id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
