package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/scoring"
)

// RiskUpdate holds the user-editable fields of a risk. Derived scores are
// not part of it; they are recomputed from the ratings on every write.
type RiskUpdate struct {
	Title                  *string
	Type                   *models.RiskType
	Description            *string
	AffectedStakeholders   *[]string
	PotentialImpact        *string
	Likelihood             *int
	Impact                 *int
	TreatmentDecision      *models.TreatmentDecision
	TreatmentJustification *string
	ResidualLikelihood     *int
	ResidualImpact         *int
	// ClearResidual drops both residual ratings, leaving the residual
	// score undefined again. It is applied before the residual fields.
	ClearResidual bool
}

type MitigationUpdate struct {
	Description         *string
	ResponsibleParty    *string
	DueDate             *time.Time
	Status              *models.ActionStatus
	EffectivenessRating *int
	Notes               *string
}

// OverdueMitigation is a mitigation action past its due date with the
// context needed to report it.
type OverdueMitigation struct {
	models.MitigationAction
	RiskTitle  string    `json:"risk_title" db:"risk_title"`
	SystemID   uuid.UUID `json:"system_id" db:"system_id"`
	SystemName string    `json:"system_name" db:"system_name"`
}

// CreateRiskRegister creates the register of a system together with its
// initial risks, scoring each one.
func (s *Store) CreateRiskRegister(ctx context.Context, orgID, systemID uuid.UUID, risks []models.Risk, userID *uuid.UUID) (*models.RiskRegister, error) {
	now := time.Now()
	reg := &models.RiskRegister{
		ID:               uuid.New(),
		AISystemID:       systemID,
		LastAssessedDate: &now,
		AssessedBy:       userID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := getSystem(ctx, tx, orgID, systemID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO risk_registers (id, ai_system_id, last_assessed_date, assessed_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, reg.ID, reg.AISystemID, reg.LastAssessedDate, reg.AssessedBy, reg.CreatedAt, reg.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}

		for i := range risks {
			risks[i].Position = i
			if err := insertRisk(ctx, tx, reg.ID, &risks[i], userID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reg.Risks = risks
	return reg, nil
}

func (s *Store) GetRiskRegister(ctx context.Context, orgID, id uuid.UUID) (*models.RiskRegister, error) {
	return loadRiskRegister(ctx, s.db, `rr.id = $1`, id, orgID)
}

func (s *Store) GetRiskRegisterBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.RiskRegister, error) {
	return loadRiskRegister(ctx, s.db, `rr.ai_system_id = $1`, systemID, orgID)
}

func loadRiskRegister(ctx context.Context, q sqlx.QueryerContext, where string, key, orgID uuid.UUID) (*models.RiskRegister, error) {
	var reg models.RiskRegister
	err := sqlx.GetContext(ctx, q, &reg, `
		SELECT rr.* FROM risk_registers rr
		JOIN ai_systems s ON s.id = rr.ai_system_id
		WHERE `+where+` AND s.organization_id = $2
	`, key, orgID)
	if err != nil {
		return nil, notFound(err)
	}

	risks := []models.Risk{}
	if err := sqlx.SelectContext(ctx, q, &risks, `
		SELECT * FROM risks WHERE risk_register_id = $1 ORDER BY position, created_at
	`, reg.ID); err != nil {
		return nil, err
	}

	var actions []models.MitigationAction
	if err := sqlx.SelectContext(ctx, q, &actions, `
		SELECT a.* FROM mitigation_actions a
		JOIN risks r ON r.id = a.risk_id
		WHERE r.risk_register_id = $1
		ORDER BY a.created_at
	`, reg.ID); err != nil {
		return nil, err
	}

	idx := make(map[uuid.UUID]int, len(risks))
	for i, r := range risks {
		idx[r.ID] = i
	}
	for _, a := range actions {
		if i, ok := idx[a.RiskID]; ok {
			risks[i].MitigationActions = append(risks[i].MitigationActions, a)
		}
	}

	reg.Risks = risks
	return &reg, nil
}

// lockRegister takes the register row lock that serializes risk writes and
// checks organization ownership in the same statement.
func lockRegister(ctx context.Context, tx *sqlx.Tx, orgID, registerID uuid.UUID) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `
		SELECT rr.id FROM risk_registers rr
		JOIN ai_systems s ON s.id = rr.ai_system_id
		WHERE rr.id = $1 AND s.organization_id = $2
		FOR UPDATE OF rr
	`, registerID, orgID)
	return notFound(err)
}

func touchRegister(ctx context.Context, tx *sqlx.Tx, registerID uuid.UUID, userID *uuid.UUID, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE risk_registers SET last_assessed_date = $2, assessed_by = COALESCE($3, assessed_by), updated_at = $2
		WHERE id = $1
	`, registerID, now, userID)
	return err
}

func insertRisk(ctx context.Context, tx *sqlx.Tx, registerID uuid.UUID, r *models.Risk, userID *uuid.UUID, now time.Time) error {
	if err := scoring.ApplyRiskScores(r); err != nil {
		return err
	}

	r.ID = uuid.New()
	r.RiskRegisterID = registerID
	r.CreatedBy = userID
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.AffectedStakeholders == nil {
		r.AffectedStakeholders = models.StringArray{}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO risks (
			id, risk_register_id, title, type, description, affected_stakeholders, potential_impact,
			likelihood, impact, inherent_risk_score, risk_level, treatment_decision, treatment_justification,
			residual_likelihood, residual_impact, residual_risk_score, residual_risk_level,
			position, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, r.ID, r.RiskRegisterID, r.Title, r.Type, r.Description, r.AffectedStakeholders, r.PotentialImpact,
		r.Likelihood, r.Impact, r.InherentRiskScore, r.RiskLevel, r.TreatmentDecision, r.TreatmentJustification,
		r.ResidualLikelihood, r.ResidualImpact, r.ResidualRiskScore, r.ResidualRiskLevel,
		r.Position, r.CreatedBy, r.CreatedAt, r.UpdatedAt)
	return err
}

// CreateRisk appends a scored risk to a register and bumps the register's
// assessment date atomically.
func (s *Store) CreateRisk(ctx context.Context, orgID, registerID uuid.UUID, r *models.Risk, userID *uuid.UUID) error {
	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if err := lockRegister(ctx, tx, orgID, registerID); err != nil {
			return err
		}

		var next int
		if err := tx.GetContext(ctx, &next, `
			SELECT COALESCE(MAX(position) + 1, 0) FROM risks WHERE risk_register_id = $1
		`, registerID); err != nil {
			return err
		}
		r.Position = next

		now := time.Now()
		if err := insertRisk(ctx, tx, registerID, r, userID, now); err != nil {
			return err
		}
		return touchRegister(ctx, tx, registerID, userID, now)
	})
}

func (s *Store) GetRisk(ctx context.Context, orgID, id uuid.UUID) (*models.Risk, error) {
	var r models.Risk
	err := s.db.GetContext(ctx, &r, `
		SELECT r.* FROM risks r
		JOIN risk_registers rr ON rr.id = r.risk_register_id
		JOIN ai_systems s ON s.id = rr.ai_system_id
		WHERE r.id = $1 AND s.organization_id = $2
	`, id, orgID)
	if err != nil {
		return nil, notFound(err)
	}

	actions := []models.MitigationAction{}
	if err := s.db.SelectContext(ctx, &actions, `
		SELECT * FROM mitigation_actions WHERE risk_id = $1 ORDER BY created_at
	`, r.ID); err != nil {
		return nil, err
	}
	r.MitigationActions = actions
	return &r, nil
}

// UpdateRisk applies upd, recomputes inherent and residual scores and bumps
// the register's assessment date, all in one transaction.
func (s *Store) UpdateRisk(ctx context.Context, orgID, riskID uuid.UUID, upd RiskUpdate, userID *uuid.UUID) (*models.Risk, error) {
	var r models.Risk
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		registerID, err := registerOfRisk(ctx, tx, orgID, riskID)
		if err != nil {
			return err
		}
		if err := lockRegister(ctx, tx, orgID, registerID); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &r, `SELECT * FROM risks WHERE id = $1`, riskID); err != nil {
			return notFound(err)
		}

		applyRiskUpdate(&r, upd)
		if err := scoring.ApplyRiskScores(&r); err != nil {
			return err
		}

		now := time.Now()
		r.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			UPDATE risks SET
				title = $2, type = $3, description = $4, affected_stakeholders = $5, potential_impact = $6,
				likelihood = $7, impact = $8, inherent_risk_score = $9, risk_level = $10,
				treatment_decision = $11, treatment_justification = $12,
				residual_likelihood = $13, residual_impact = $14, residual_risk_score = $15, residual_risk_level = $16,
				updated_at = $17
			WHERE id = $1
		`, r.ID, r.Title, r.Type, r.Description, r.AffectedStakeholders, r.PotentialImpact,
			r.Likelihood, r.Impact, r.InherentRiskScore, r.RiskLevel,
			r.TreatmentDecision, r.TreatmentJustification,
			r.ResidualLikelihood, r.ResidualImpact, r.ResidualRiskScore, r.ResidualRiskLevel,
			r.UpdatedAt); err != nil {
			return err
		}
		return touchRegister(ctx, tx, registerID, userID, now)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func applyRiskUpdate(r *models.Risk, upd RiskUpdate) {
	if upd.Title != nil {
		r.Title = *upd.Title
	}
	if upd.Type != nil {
		r.Type = *upd.Type
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.AffectedStakeholders != nil {
		r.AffectedStakeholders = models.StringArray(*upd.AffectedStakeholders)
	}
	if upd.PotentialImpact != nil {
		r.PotentialImpact = *upd.PotentialImpact
	}
	if upd.Likelihood != nil {
		r.Likelihood = *upd.Likelihood
	}
	if upd.Impact != nil {
		r.Impact = *upd.Impact
	}
	if upd.TreatmentDecision != nil {
		r.TreatmentDecision = upd.TreatmentDecision
	}
	if upd.TreatmentJustification != nil {
		r.TreatmentJustification = *upd.TreatmentJustification
	}
	if upd.ClearResidual {
		r.ResidualLikelihood = nil
		r.ResidualImpact = nil
	}
	if upd.ResidualLikelihood != nil {
		r.ResidualLikelihood = upd.ResidualLikelihood
	}
	if upd.ResidualImpact != nil {
		r.ResidualImpact = upd.ResidualImpact
	}
}

func (s *Store) DeleteRisk(ctx context.Context, orgID, riskID uuid.UUID) error {
	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		registerID, err := registerOfRisk(ctx, tx, orgID, riskID)
		if err != nil {
			return err
		}
		if err := lockRegister(ctx, tx, orgID, registerID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM risks WHERE id = $1`, riskID); err != nil {
			return err
		}
		return touchRegister(ctx, tx, registerID, nil, time.Now())
	})
}

func registerOfRisk(ctx context.Context, q sqlx.QueryerContext, orgID, riskID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := sqlx.GetContext(ctx, q, &id, `
		SELECT rr.id FROM risks r
		JOIN risk_registers rr ON rr.id = r.risk_register_id
		JOIN ai_systems s ON s.id = rr.ai_system_id
		WHERE r.id = $1 AND s.organization_id = $2
	`, riskID, orgID)
	return id, notFound(err)
}

// CreateMitigationAction adds an action to a risk. An action created as
// COMPLETED gets its completion date immediately.
func (s *Store) CreateMitigationAction(ctx context.Context, orgID, riskID uuid.UUID, a *models.MitigationAction) error {
	if _, err := registerOfRisk(ctx, s.db, orgID, riskID); err != nil {
		return err
	}

	now := time.Now()
	status := a.Status
	if status == "" {
		status = models.ActionPlanned
	}
	a.CompletionDate = nil
	a.TransitionTo(status, now)

	a.ID = uuid.New()
	a.RiskID = riskID
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mitigation_actions (
			id, risk_id, description, responsible_party, due_date, status,
			completion_date, effectiveness_rating, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.RiskID, a.Description, a.ResponsibleParty, a.DueDate, a.Status,
		a.CompletionDate, a.EffectivenessRating, a.Notes, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateMitigationAction applies upd under a row lock so the completion
// date is stamped exactly once even with concurrent updates.
func (s *Store) UpdateMitigationAction(ctx context.Context, orgID, id uuid.UUID, upd MitigationUpdate) (*models.MitigationAction, error) {
	var a models.MitigationAction
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &a, `
			SELECT a.* FROM mitigation_actions a
			JOIN risks r ON r.id = a.risk_id
			JOIN risk_registers rr ON rr.id = r.risk_register_id
			JOIN ai_systems s ON s.id = rr.ai_system_id
			WHERE a.id = $1 AND s.organization_id = $2
			FOR UPDATE OF a
		`, id, orgID)
		if err != nil {
			return notFound(err)
		}

		now := time.Now()
		if upd.Description != nil {
			a.Description = *upd.Description
		}
		if upd.ResponsibleParty != nil {
			a.ResponsibleParty = *upd.ResponsibleParty
		}
		if upd.DueDate != nil {
			a.DueDate = upd.DueDate
		}
		if upd.EffectivenessRating != nil {
			a.EffectivenessRating = upd.EffectivenessRating
		}
		if upd.Notes != nil {
			a.Notes = *upd.Notes
		}
		if upd.Status != nil {
			a.TransitionTo(*upd.Status, now)
		}
		a.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			UPDATE mitigation_actions SET
				description = $2, responsible_party = $3, due_date = $4, status = $5,
				completion_date = $6, effectiveness_rating = $7, notes = $8, updated_at = $9
			WHERE id = $1
		`, a.ID, a.Description, a.ResponsibleParty, a.DueDate, a.Status,
			a.CompletionDate, a.EffectivenessRating, a.Notes, a.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) DeleteMitigationAction(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM mitigation_actions a
		USING risks r, risk_registers rr, ai_systems s
		WHERE a.risk_id = r.id AND r.risk_register_id = rr.id AND rr.ai_system_id = s.id
			AND a.id = $1 AND s.organization_id = $2
	`, id, orgID)
	return expectRow(res, err)
}

// ListOverdueMitigations returns open actions whose due date is before now.
func (s *Store) ListOverdueMitigations(ctx context.Context, orgID uuid.UUID, now time.Time) ([]OverdueMitigation, error) {
	items := []OverdueMitigation{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT a.*, r.title AS risk_title, s.id AS system_id, s.name AS system_name
		FROM mitigation_actions a
		JOIN risks r ON r.id = a.risk_id
		JOIN risk_registers rr ON rr.id = r.risk_register_id
		JOIN ai_systems s ON s.id = rr.ai_system_id
		WHERE s.organization_id = $1
			AND a.due_date IS NOT NULL AND a.due_date < $2
			AND a.status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY a.due_date
	`, orgID, now)
	return items, err
}
