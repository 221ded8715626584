package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
)

// GapAssessmentListItem is a gap assessment row with its system's name.
type GapAssessmentListItem struct {
	models.GapAssessment
	SystemName string `json:"system_name" db:"system_name"`
}

// RequirementUpdate holds the user-editable fields of a requirement. Nil
// fields are left unchanged.
type RequirementUpdate struct {
	Status     *models.RequirementStatus
	Priority   *models.Priority
	Notes      *string
	AssignedTo *string
	DueDate    *time.Time
}

// CreateGapAssessment stores a gap assessment and its requirements in one
// transaction. The overall score is computed from the initial statuses.
func (s *Store) CreateGapAssessment(ctx context.Context, orgID, systemID uuid.UUID, reqs []models.RequirementAssessment, userID *uuid.UUID) (*models.GapAssessment, error) {
	now := time.Now()
	summary := scoring.AggregateCompliance(scoring.StatusesOf(reqs))

	gap := &models.GapAssessment{
		ID:               uuid.New(),
		AISystemID:       systemID,
		OverallScore:     summary.OverallScore,
		LastAssessedDate: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := getSystem(ctx, tx, orgID, systemID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO gap_assessments (id, ai_system_id, overall_score, last_assessed_date, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, gap.ID, gap.AISystemID, gap.OverallScore, gap.LastAssessedDate, gap.CreatedAt, gap.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}

		for i := range reqs {
			r := &reqs[i]
			r.ID = uuid.New()
			r.GapAssessmentID = gap.ID
			r.Position = i
			r.UpdatedBy = userID
			r.CreatedAt = now
			r.UpdatedAt = now
			if r.Status == "" {
				r.Status = models.StatusNotStarted
			}
			if r.Priority == "" {
				r.Priority = models.PriorityMedium
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO requirement_assessments (
					id, gap_assessment_id, category, title, description, regulatory_reference,
					status, priority, notes, assigned_to, due_date, position, updated_by, created_at, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			`, r.ID, r.GapAssessmentID, r.Category, r.Title, r.Description, r.RegulatoryReference,
				r.Status, r.Priority, r.Notes, r.AssignedTo, r.DueDate, r.Position, r.UpdatedBy,
				r.CreatedAt, r.UpdatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	gap.Requirements = reqs
	return gap, nil
}

func (s *Store) GetGapAssessment(ctx context.Context, orgID, id uuid.UUID) (*models.GapAssessment, error) {
	return loadGapAssessment(ctx, s.db, `g.id = $1`, id, orgID)
}

func (s *Store) GetGapAssessmentBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.GapAssessment, error) {
	return loadGapAssessment(ctx, s.db, `g.ai_system_id = $1`, systemID, orgID)
}

func loadGapAssessment(ctx context.Context, q sqlx.QueryerContext, where string, key, orgID uuid.UUID) (*models.GapAssessment, error) {
	var gap models.GapAssessment
	err := sqlx.GetContext(ctx, q, &gap, `
		SELECT g.* FROM gap_assessments g
		JOIN ai_systems s ON s.id = g.ai_system_id
		WHERE `+where+` AND s.organization_id = $2
	`, key, orgID)
	if err != nil {
		return nil, notFound(err)
	}

	reqs, err := loadRequirements(ctx, q, gap.ID)
	if err != nil {
		return nil, err
	}
	gap.Requirements = reqs
	return &gap, nil
}

func loadRequirements(ctx context.Context, q sqlx.QueryerContext, gapID uuid.UUID) ([]models.RequirementAssessment, error) {
	reqs := []models.RequirementAssessment{}
	if err := sqlx.SelectContext(ctx, q, &reqs, `
		SELECT * FROM requirement_assessments WHERE gap_assessment_id = $1 ORDER BY position, created_at
	`, gapID); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return reqs, nil
	}

	var evidence []models.Evidence
	if err := sqlx.SelectContext(ctx, q, &evidence, `
		SELECT e.* FROM evidence e
		JOIN requirement_assessments r ON r.id = e.requirement_id
		WHERE r.gap_assessment_id = $1
		ORDER BY e.created_at
	`, gapID); err != nil {
		return nil, err
	}

	idx := make(map[uuid.UUID]int, len(reqs))
	for i, r := range reqs {
		idx[r.ID] = i
	}
	for _, e := range evidence {
		if i, ok := idx[e.RequirementID]; ok {
			reqs[i].Evidence = append(reqs[i].Evidence, e)
		}
	}
	return reqs, nil
}

func (s *Store) ListGapAssessments(ctx context.Context, orgID uuid.UUID) ([]GapAssessmentListItem, error) {
	items := []GapAssessmentListItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT g.*, s.name AS system_name FROM gap_assessments g
		JOIN ai_systems s ON s.id = g.ai_system_id
		WHERE s.organization_id = $1
		ORDER BY g.updated_at DESC
	`, orgID)
	return items, err
}

// UpdateRequirement writes a requirement change and recomputes the parent
// gap assessment's score in the same transaction. The parent row is locked
// first so concurrent updates to sibling requirements serialize and every
// recompute sees the full committed set of siblings.
func (s *Store) UpdateRequirement(ctx context.Context, orgID, reqID uuid.UUID, upd RequirementUpdate, userID *uuid.UUID) (*models.RequirementAssessment, *scoring.ComplianceSummary, error) {
	var (
		req     models.RequirementAssessment
		summary scoring.ComplianceSummary
	)

	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var gapID uuid.UUID
		err := tx.GetContext(ctx, &gapID, `
			SELECT g.id FROM requirement_assessments r
			JOIN gap_assessments g ON g.id = r.gap_assessment_id
			JOIN ai_systems s ON s.id = g.ai_system_id
			WHERE r.id = $1 AND s.organization_id = $2
			FOR UPDATE OF g
		`, reqID, orgID)
		if err != nil {
			return notFound(err)
		}

		if err := tx.GetContext(ctx, &req, `SELECT * FROM requirement_assessments WHERE id = $1`, reqID); err != nil {
			return notFound(err)
		}

		if upd.Status != nil {
			req.Status = *upd.Status
		}
		if upd.Priority != nil {
			req.Priority = *upd.Priority
		}
		if upd.Notes != nil {
			req.Notes = *upd.Notes
		}
		if upd.AssignedTo != nil {
			req.AssignedTo = *upd.AssignedTo
		}
		if upd.DueDate != nil {
			req.DueDate = upd.DueDate
		}
		req.UpdatedBy = userID
		req.UpdatedAt = time.Now()

		if _, err := tx.ExecContext(ctx, `
			UPDATE requirement_assessments SET
				status = $2, priority = $3, notes = $4, assigned_to = $5, due_date = $6,
				updated_by = $7, updated_at = $8
			WHERE id = $1
		`, req.ID, req.Status, req.Priority, req.Notes, req.AssignedTo, req.DueDate,
			req.UpdatedBy, req.UpdatedAt); err != nil {
			return err
		}

		summary, err = recomputeGapScore(ctx, tx, gapID, req.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &req, &summary, nil
}

// RecomputeGapScore re-derives a stored gap assessment score from its
// requirements. Used by repair tooling; normal writes recompute inline.
func (s *Store) RecomputeGapScore(ctx context.Context, orgID, gapID uuid.UUID) (*scoring.ComplianceSummary, error) {
	var summary scoring.ComplianceSummary
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		var id uuid.UUID
		err := tx.GetContext(ctx, &id, `
			SELECT g.id FROM gap_assessments g
			JOIN ai_systems s ON s.id = g.ai_system_id
			WHERE g.id = $1 AND s.organization_id = $2
			FOR UPDATE OF g
		`, gapID, orgID)
		if err != nil {
			return notFound(err)
		}
		summary, err = recomputeGapScore(ctx, tx, id, time.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// recomputeGapScore must run inside a transaction holding the gap row lock.
func recomputeGapScore(ctx context.Context, tx *sqlx.Tx, gapID uuid.UUID, now time.Time) (scoring.ComplianceSummary, error) {
	var statuses []scoring.RequirementStatus
	if err := tx.SelectContext(ctx, &statuses, `
		SELECT category, status FROM requirement_assessments WHERE gap_assessment_id = $1 ORDER BY position
	`, gapID); err != nil {
		return scoring.ComplianceSummary{}, err
	}

	summary := scoring.AggregateCompliance(statuses)

	_, err := tx.ExecContext(ctx, `
		UPDATE gap_assessments SET overall_score = $2, last_assessed_date = $3, updated_at = $3
		WHERE id = $1
	`, gapID, summary.OverallScore, now)
	return summary, err
}

func (s *Store) DeleteGapAssessment(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM gap_assessments g
		USING ai_systems s
		WHERE g.ai_system_id = s.id AND g.id = $1 AND s.organization_id = $2
	`, id, orgID)
	return expectRow(res, err)
}

// CreateEvidence attaches evidence to a requirement after validating its
// content fields.
func (s *Store) CreateEvidence(ctx context.Context, orgID, reqID uuid.UUID, e *models.Evidence) error {
	if err := e.Validate(); err != nil {
		return scoring.NewValidationError("content", err.Error())
	}

	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if err := requirementInOrg(ctx, tx, orgID, reqID); err != nil {
			return err
		}

		e.ID = uuid.New()
		e.RequirementID = reqID
		e.CreatedAt = time.Now()

		_, err := tx.ExecContext(ctx, `
			INSERT INTO evidence (id, requirement_id, type, title, description, text_content, file_url, link_url, uploaded_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, e.ID, e.RequirementID, e.Type, e.Title, e.Description, e.TextContent, e.FileURL, e.LinkURL,
			e.UploadedBy, e.CreatedAt)
		return err
	})
}

func (s *Store) ListEvidence(ctx context.Context, orgID, reqID uuid.UUID) ([]models.Evidence, error) {
	if err := requirementInOrg(ctx, s.db, orgID, reqID); err != nil {
		return nil, err
	}
	evidence := []models.Evidence{}
	err := s.db.SelectContext(ctx, &evidence, `
		SELECT * FROM evidence WHERE requirement_id = $1 ORDER BY created_at
	`, reqID)
	return evidence, err
}

func (s *Store) DeleteEvidence(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM evidence e
		USING requirement_assessments r, gap_assessments g, ai_systems s
		WHERE e.requirement_id = r.id AND r.gap_assessment_id = g.id AND g.ai_system_id = s.id
			AND e.id = $1 AND s.organization_id = $2
	`, id, orgID)
	return expectRow(res, err)
}

func requirementInOrg(ctx context.Context, q sqlx.QueryerContext, orgID, reqID uuid.UUID) error {
	var id uuid.UUID
	err := sqlx.GetContext(ctx, q, &id, `
		SELECT r.id FROM requirement_assessments r
		JOIN gap_assessments g ON g.id = r.gap_assessment_id
		JOIN ai_systems s ON s.id = g.ai_system_id
		WHERE r.id = $1 AND s.organization_id = $2
	`, reqID, orgID)
	return notFound(err)
}
