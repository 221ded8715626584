package api

import (
	"net/http"
	"time"

	"github.com/aiact/compliance/internal/models"
)

type governanceRoleRequest struct {
	RoleType         models.RoleType `json:"role_type" validate:"required,enum"`
	PersonName       string          `json:"person_name" validate:"required,min=2"`
	Email            string          `json:"email" validate:"required,email"`
	Responsibilities string          `json:"responsibilities"`
	AppointedDate    *time.Time      `json:"appointed_date"`
	IsActive         *bool           `json:"is_active"`
}

type governanceRequest struct {
	Roles []governanceRoleRequest `json:"roles" validate:"required,min=1,dive"`
}

// roles converts the request; a role is active unless stated otherwise.
func (req governanceRequest) roles() []models.GovernanceRole {
	roles := make([]models.GovernanceRole, len(req.Roles))
	for i, rr := range req.Roles {
		active := true
		if rr.IsActive != nil {
			active = *rr.IsActive
		}
		roles[i] = models.GovernanceRole{
			RoleType:         rr.RoleType,
			PersonName:       rr.PersonName,
			Email:            rr.Email,
			Responsibilities: rr.Responsibilities,
			AppointedDate:    rr.AppointedDate,
			IsActive:         active,
		}
	}
	return roles
}

func (s *Server) createGovernance(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req governanceRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	gov, err := s.store.CreateGovernance(r.Context(), caller(r).OrganizationID, systemID, req.roles())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, gov)
}

// replaceGovernance swaps the whole role list of an existing structure.
func (s *Server) replaceGovernance(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req governanceRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}

	gov, err := s.store.ReplaceGovernanceRoles(r.Context(), caller(r).OrganizationID, systemID, req.roles())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, gov)
}

func (s *Server) getGovernance(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	gov, err := s.store.GetGovernanceBySystem(r.Context(), caller(r).OrganizationID, systemID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, gov)
}

func (s *Server) deleteGovernance(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteGovernance(r.Context(), caller(r).OrganizationID, systemID); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
