package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aiact/compliance/internal/models"
)

// documentVersionHistory caps the versions returned with the documentation.
const documentVersionHistory = 10

// DocumentationUpdate changes the sections present in Sections and the
// sign-off fields that are non-nil. NewVersion records a snapshot under the
// next minor version.
type DocumentationUpdate struct {
	Sections     map[models.DocumentationSection]string
	PreparedBy   *string
	ReviewedBy   *string
	ApprovedBy   *string
	NewVersion   bool
	VersionNotes *string
}

// CreateTechnicalDocumentation stores the first version of a system's
// technical documentation. A second create for the same system returns
// ErrConflict.
func (s *Store) CreateTechnicalDocumentation(ctx context.Context, orgID, systemID uuid.UUID, doc *models.TechnicalDocumentation, userID *uuid.UUID) error {
	now := time.Now()
	doc.ID = uuid.New()
	doc.AISystemID = systemID
	doc.CompletenessPercentage = doc.Completeness()
	doc.Version = models.InitialDocumentVersion
	doc.VersionDate = now
	doc.VersionNotes = "Initial version"
	doc.UpdatedBy = userID
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.ApprovedBy != "" {
		doc.ApprovalDate = &now
	}

	version := models.DocumentVersion{
		ID:                       uuid.New(),
		TechnicalDocumentationID: doc.ID,
		Version:                  doc.Version,
		VersionNotes:             doc.VersionNotes,
		Sections:                 doc.Snapshot(),
		SavedBy:                  userID,
		VersionDate:              now,
	}

	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := getSystem(ctx, tx, orgID, systemID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO technical_documentation (
				id, ai_system_id, intended_use, foreseeable_misuse, system_architecture, training_data,
				model_performance, validation_testing, human_oversight, cybersecurity,
				completeness_percentage, prepared_by, reviewed_by, approved_by, approval_date,
				version, version_date, version_notes, updated_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		`, doc.ID, doc.AISystemID, doc.IntendedUse, doc.ForeseeableMisuse, doc.SystemArchitecture, doc.TrainingData,
			doc.ModelPerformance, doc.ValidationTesting, doc.HumanOversight, doc.Cybersecurity,
			doc.CompletenessPercentage, doc.PreparedBy, doc.ReviewedBy, doc.ApprovedBy, doc.ApprovalDate,
			doc.Version, doc.VersionDate, doc.VersionNotes, doc.UpdatedBy, doc.CreatedAt, doc.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		if err := insertDocumentVersion(ctx, tx, &version); err != nil {
			return err
		}
		doc.Versions = []models.DocumentVersion{version}
		return nil
	})
}

func insertDocumentVersion(ctx context.Context, tx *sqlx.Tx, v *models.DocumentVersion) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO document_versions (id, technical_documentation_id, version, version_notes, sections, saved_by, version_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.TechnicalDocumentationID, v.Version, v.VersionNotes, v.Sections, v.SavedBy, v.VersionDate)
	return err
}

func (s *Store) GetTechnicalDocumentationBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.TechnicalDocumentation, error) {
	return loadTechnicalDocumentation(ctx, s.db, orgID, systemID)
}

func loadTechnicalDocumentation(ctx context.Context, q sqlx.QueryerContext, orgID, systemID uuid.UUID) (*models.TechnicalDocumentation, error) {
	var doc models.TechnicalDocumentation
	err := sqlx.GetContext(ctx, q, &doc, `
		SELECT d.* FROM technical_documentation d
		JOIN ai_systems s ON s.id = d.ai_system_id
		WHERE d.ai_system_id = $1 AND s.organization_id = $2
	`, systemID, orgID)
	if err != nil {
		return nil, notFound(err)
	}

	versions := []models.DocumentVersion{}
	if err := sqlx.SelectContext(ctx, q, &versions, `
		SELECT * FROM document_versions WHERE technical_documentation_id = $1
		ORDER BY version_date DESC LIMIT $2
	`, doc.ID, documentVersionHistory); err != nil {
		return nil, err
	}
	doc.Versions = versions
	return &doc, nil
}

// UpdateTechnicalDocumentation applies upd under a row lock and recomputes
// completeness. When a new version is requested the snapshot is written in
// the same transaction.
func (s *Store) UpdateTechnicalDocumentation(ctx context.Context, orgID, systemID uuid.UUID, upd DocumentationUpdate, userID *uuid.UUID) (*models.TechnicalDocumentation, error) {
	var doc models.TechnicalDocumentation
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &doc, `
			SELECT d.* FROM technical_documentation d
			JOIN ai_systems s ON s.id = d.ai_system_id
			WHERE d.ai_system_id = $1 AND s.organization_id = $2
			FOR UPDATE OF d
		`, systemID, orgID)
		if err != nil {
			return notFound(err)
		}

		version := applyDocumentationUpdate(&doc, upd, userID, time.Now())

		if _, err := tx.ExecContext(ctx, `
			UPDATE technical_documentation SET
				intended_use = $2, foreseeable_misuse = $3, system_architecture = $4, training_data = $5,
				model_performance = $6, validation_testing = $7, human_oversight = $8, cybersecurity = $9,
				completeness_percentage = $10, prepared_by = $11, reviewed_by = $12, approved_by = $13,
				approval_date = $14, version = $15, version_date = $16, version_notes = $17,
				updated_by = $18, updated_at = $19
			WHERE id = $1
		`, doc.ID, doc.IntendedUse, doc.ForeseeableMisuse, doc.SystemArchitecture, doc.TrainingData,
			doc.ModelPerformance, doc.ValidationTesting, doc.HumanOversight, doc.Cybersecurity,
			doc.CompletenessPercentage, doc.PreparedBy, doc.ReviewedBy, doc.ApprovedBy,
			doc.ApprovalDate, doc.Version, doc.VersionDate, doc.VersionNotes,
			doc.UpdatedBy, doc.UpdatedAt); err != nil {
			return err
		}
		if version != nil {
			return insertDocumentVersion(ctx, tx, version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return loadTechnicalDocumentation(ctx, s.db, orgID, systemID)
}

// applyDocumentationUpdate mutates doc and returns the version snapshot to
// record, if any. Approval is stamped whenever the approver changes.
func applyDocumentationUpdate(doc *models.TechnicalDocumentation, upd DocumentationUpdate, userID *uuid.UUID, now time.Time) *models.DocumentVersion {
	for section, text := range upd.Sections {
		doc.SetSection(section, text)
	}
	if upd.PreparedBy != nil {
		doc.PreparedBy = *upd.PreparedBy
	}
	if upd.ReviewedBy != nil {
		doc.ReviewedBy = *upd.ReviewedBy
	}
	if upd.ApprovedBy != nil && *upd.ApprovedBy != doc.ApprovedBy {
		doc.ApprovedBy = *upd.ApprovedBy
		doc.ApprovalDate = nil
		if doc.ApprovedBy != "" {
			t := now
			doc.ApprovalDate = &t
		}
	}

	doc.CompletenessPercentage = doc.Completeness()
	doc.UpdatedBy = userID
	doc.UpdatedAt = now

	if !upd.NewVersion {
		return nil
	}

	notes := "Updated documentation"
	if upd.VersionNotes != nil && *upd.VersionNotes != "" {
		notes = *upd.VersionNotes
	}
	doc.Version = models.NextDocumentVersion(doc.Version)
	doc.VersionDate = now
	doc.VersionNotes = notes

	return &models.DocumentVersion{
		ID:                       uuid.New(),
		TechnicalDocumentationID: doc.ID,
		Version:                  doc.Version,
		VersionNotes:             notes,
		Sections:                 doc.Snapshot(),
		SavedBy:                  userID,
		VersionDate:              now,
	}
}

func (s *Store) DeleteTechnicalDocumentation(ctx context.Context, orgID, systemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM technical_documentation d
		USING ai_systems s
		WHERE d.ai_system_id = s.id AND d.ai_system_id = $1 AND s.organization_id = $2
	`, systemID, orgID)
	return expectRow(res, err)
}
