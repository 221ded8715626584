package api

import (
	"net/http"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/reports"
	"github.com/aiact/compliance/internal/store"
)

// Completeness, approval date and versioning are maintained by the server.
var documentationDerivedFields = []string{"completeness_percentage", "approval_date", "version", "version_date"}

type documentationSections struct {
	IntendedUse        *string `json:"intended_use"`
	ForeseeableMisuse  *string `json:"foreseeable_misuse"`
	SystemArchitecture *string `json:"system_architecture"`
	TrainingData       *string `json:"training_data"`
	ModelPerformance   *string `json:"model_performance"`
	ValidationTesting  *string `json:"validation_testing"`
	HumanOversight     *string `json:"human_oversight"`
	Cybersecurity      *string `json:"cybersecurity"`
}

// sections returns the sections present in the payload.
func (d documentationSections) sections() map[models.DocumentationSection]string {
	out := map[models.DocumentationSection]string{}
	for section, text := range map[models.DocumentationSection]*string{
		models.SectionIntendedUse:        d.IntendedUse,
		models.SectionForeseeableMisuse:  d.ForeseeableMisuse,
		models.SectionSystemArchitecture: d.SystemArchitecture,
		models.SectionTrainingData:       d.TrainingData,
		models.SectionModelPerformance:   d.ModelPerformance,
		models.SectionValidationTesting:  d.ValidationTesting,
		models.SectionHumanOversight:     d.HumanOversight,
		models.SectionCybersecurity:      d.Cybersecurity,
	} {
		if text != nil {
			out[section] = *text
		}
	}
	return out
}

type documentationRequest struct {
	documentationSections
	PreparedBy string `json:"prepared_by" validate:"required"`
	ReviewedBy string `json:"reviewed_by"`
	ApprovedBy string `json:"approved_by"`
}

type updateDocumentationRequest struct {
	documentationSections
	PreparedBy   *string `json:"prepared_by" validate:"omitempty,min=1"`
	ReviewedBy   *string `json:"reviewed_by"`
	ApprovedBy   *string `json:"approved_by"`
	NewVersion   bool    `json:"new_version"`
	VersionNotes *string `json:"version_notes"`
}

func (s *Server) createTechnicalDocumentation(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req documentationRequest
	if err := decodeRequest(r, &req, documentationDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	doc := &models.TechnicalDocumentation{
		PreparedBy: req.PreparedBy,
		ReviewedBy: req.ReviewedBy,
		ApprovedBy: req.ApprovedBy,
	}
	for section, text := range req.sections() {
		doc.SetSection(section, text)
	}

	if err := s.store.CreateTechnicalDocumentation(r.Context(), caller(r).OrganizationID, systemID, doc, callerID(r)); err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.logger.Info("technical documentation created", "system_id", systemID, "completeness", doc.CompletenessPercentage)
	respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) getTechnicalDocumentation(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	doc, err := s.store.GetTechnicalDocumentationBySystem(r.Context(), caller(r).OrganizationID, systemID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

// updateTechnicalDocumentation applies a partial update. With new_version
// set, the result is saved as the next minor version.
func (s *Server) updateTechnicalDocumentation(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req updateDocumentationRequest
	if err := decodeRequest(r, &req, documentationDerivedFields...); err != nil {
		s.respondErr(w, r, err)
		return
	}

	doc, err := s.store.UpdateTechnicalDocumentation(r.Context(), caller(r).OrganizationID, systemID, store.DocumentationUpdate{
		Sections:     req.sections(),
		PreparedBy:   req.PreparedBy,
		ReviewedBy:   req.ReviewedBy,
		ApprovedBy:   req.ApprovedBy,
		NewVersion:   req.NewVersion,
		VersionNotes: req.VersionNotes,
	}, callerID(r))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) deleteTechnicalDocumentation(w http.ResponseWriter, r *http.Request) {
	systemID, err := pathID(r, "systemID")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteTechnicalDocumentation(r.Context(), caller(r).OrganizationID, systemID); err != nil {
		s.respondErr(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) exportTechnicalDocumentation(w http.ResponseWriter, r *http.Request) {
	s.exportReport(w, r, reports.ReportTypeTechnicalDocumentation, "systemID")
}
