package api

import (
	"net/http"
	"time"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

var (
	riskDerivedFields       = []string{"inherent_risk_score", "risk_level", "residual_risk_score", "residual_risk_level"}
	mitigationDerivedFields = []string{"completion_date"}
)

// registerDerivedFields applies the risk rules to every risk of a new
// register as well as to the register's own timestamp.
var registerDerivedFields = func() []string {
	fields := []string{"last_assessed_date"}
	for _, f := range riskDerivedFields {
		fields = append(fields, "risks[]."+f)
	}
	return fields
}()

// Likelihood and impact ranges are checked by the risk scorer so that the
// messages match the scoring policy.
type riskRequest struct {
	Title                  string                    `json:"title" validate:"required,min=3"`
	Type                   models.RiskType           `json:"type" validate:"required,enum"`
	Description            string                    `json:"description" validate:"required,min=10"`
	AffectedStakeholders   []string                  `json:"affected_stakeholders"`
	PotentialImpact        string                    `json:"potential_impact" validate:"required,min=10"`
	Likelihood             int                       `json:"likelihood"`
	Impact                 int                       `json:"impact"`
	TreatmentDecision      *models.TreatmentDecision `json:"treatment_decision" validate:"omitempty,enum"`
	TreatmentJustification string                    `json:"treatment_justification"`
	ResidualLikelihood     *int                      `json:"residual_likelihood"`
	ResidualImpact         *int                      `json:"residual_impact"`
}

func (req riskRequest) toRisk() models.Risk {
	return models.Risk{
		Title:                  req.Title,
		Type:                   req.Type,
		Description:            req.Description,
		AffectedStakeholders:   req.AffectedStakeholders,
		PotentialImpact:        req.PotentialImpact,
		Likelihood:             req.Likelihood,
		Impact:                 req.Impact,
		TreatmentDecision:      req.TreatmentDecision,
		TreatmentJustification: req.TreatmentJustification,
		ResidualLikelihood:     req.ResidualLikelihood,
		ResidualImpact:         req.ResidualImpact,
	}
}

type riskRegisterRequest struct {
	Risks []riskRequest `json:"risks" validate:"dive"`
}

func (s *Server) createRiskRegister(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req riskRegisterRequest
	if err := decodeRequest(r, &req, registerDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	risks := make([]models.Risk, len(req.Risks))
	for i, rr := range req.Risks {
		risks[i] = rr.toRisk()
	}

	reg, err := s.store.CreateRiskRegister(r.Context(), caller(r).OrganizationID, systemID, risks, callerID(r))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, reg)
}

func (s *Server) getSystemRiskRegister(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	reg, err := s.store.GetRiskRegisterBySystem(r.Context(), caller(r).OrganizationID, systemID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, reg)
}

func (s *Server) getRiskRegister(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "registerID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	reg, err := s.store.GetRiskRegister(r.Context(), caller(r).OrganizationID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, reg)
}

func (s *Server) createRisk(w http.ResponseWriter, r *http.Request) {
	registerID, err := pathID(r, "registerID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req riskRequest
	if err := decodeRequest(r, &req, riskDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	risk := req.toRisk()
	if err := s.store.CreateRisk(r.Context(), caller(r).OrganizationID, registerID, &risk, callerID(r)); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, risk)
}

func (s *Server) getRisk(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "riskID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	risk, err := s.store.GetRisk(r.Context(), caller(r).OrganizationID, id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, risk)
}

type updateRiskRequest struct {
	Title                  *string                   `json:"title" validate:"omitempty,min=3"`
	Type                   *models.RiskType          `json:"type" validate:"omitempty,enum"`
	Description            *string                   `json:"description" validate:"omitempty,min=10"`
	AffectedStakeholders   *[]string                 `json:"affected_stakeholders"`
	PotentialImpact        *string                   `json:"potential_impact" validate:"omitempty,min=10"`
	Likelihood             *int                      `json:"likelihood"`
	Impact                 *int                      `json:"impact"`
	TreatmentDecision      *models.TreatmentDecision `json:"treatment_decision" validate:"omitempty,enum"`
	TreatmentJustification *string                   `json:"treatment_justification"`
	ResidualLikelihood     *int                      `json:"residual_likelihood"`
	ResidualImpact         *int                      `json:"residual_impact"`
	ClearResidual          bool                      `json:"clear_residual"`
}

func (req updateRiskRequest) check() error {
	if req.ClearResidual && (req.ResidualLikelihood != nil || req.ResidualImpact != nil) {
		return scoring.NewValidationError("clear_residual", "cannot be combined with residual_likelihood or residual_impact")
	}
	return nil
}

// updateRisk applies a partial update; the store recomputes both scores in
// the same transaction.
func (s *Server) updateRisk(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "riskID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req updateRiskRequest
	if err := decodeRequest(r, &req, riskDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := req.check(); err != nil {
		s.respondErr(w, r, err)
		return
	}

	risk, err := s.store.UpdateRisk(r.Context(), caller(r).OrganizationID, id, store.RiskUpdate{
		Title:                  req.Title,
		Type:                   req.Type,
		Description:            req.Description,
		AffectedStakeholders:   req.AffectedStakeholders,
		PotentialImpact:        req.PotentialImpact,
		Likelihood:             req.Likelihood,
		Impact:                 req.Impact,
		TreatmentDecision:      req.TreatmentDecision,
		TreatmentJustification: req.TreatmentJustification,
		ResidualLikelihood:     req.ResidualLikelihood,
		ResidualImpact:         req.ResidualImpact,
		ClearResidual:          req.ClearResidual,
	}, callerID(r))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, risk)
}

func (s *Server) deleteRisk(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "riskID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteRisk(r.Context(), caller(r).OrganizationID, id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type mitigationRequest struct {
	Description      string              `json:"description" validate:"required,min=10"`
	ResponsibleParty string              `json:"responsible_party" validate:"required,min=2"`
	DueDate          *time.Time          `json:"due_date"`
	Status           models.ActionStatus `json:"status" validate:"omitempty,enum"`
	Notes            string              `json:"notes"`
}

func (s *Server) createMitigationAction(w http.ResponseWriter, r *http.Request) {
	riskID, err := pathID(r, "riskID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req mitigationRequest
	if err := decodeRequest(r, &req, mitigationDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	action := &models.MitigationAction{
		Description:      req.Description,
		ResponsibleParty: req.ResponsibleParty,
		DueDate:          req.DueDate,
		Status:           req.Status,
		Notes:            req.Notes,
	}
	if err := s.store.CreateMitigationAction(r.Context(), caller(r).OrganizationID, riskID, action); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, action)
}

type updateMitigationRequest struct {
	Description         *string              `json:"description" validate:"omitempty,min=10"`
	ResponsibleParty    *string              `json:"responsible_party" validate:"omitempty,min=2"`
	DueDate             *time.Time           `json:"due_date"`
	Status              *models.ActionStatus `json:"status" validate:"omitempty,enum"`
	EffectivenessRating *int                 `json:"effectiveness_rating" validate:"omitempty,min=1,max=5"`
	Notes               *string              `json:"notes"`
}

// updateMitigationAction stamps the completion date the first time the
// action becomes COMPLETED; clients cannot set it.
func (s *Server) updateMitigationAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "actionID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req updateMitigationRequest
	if err := decodeRequest(r, &req, mitigationDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	action, err := s.store.UpdateMitigationAction(r.Context(), caller(r).OrganizationID, id, store.MitigationUpdate{
		Description:         req.Description,
		ResponsibleParty:    req.ResponsibleParty,
		DueDate:             req.DueDate,
		Status:              req.Status,
		EffectivenessRating: req.EffectivenessRating,
		Notes:               req.Notes,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, action)
}

func (s *Server) deleteMitigationAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "actionID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteMitigationAction(r.Context(), caller(r).OrganizationID, id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) listOverdueMitigations(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListOverdueMitigations(r.Context(), caller(r).OrganizationID, time.Now())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSONWithMeta(w, http.StatusOK, items, &apiMeta{Total: len(items)})
}
