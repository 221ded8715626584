package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aiact/compliance/internal/models"
)

// CreateGovernance creates the governance structure of a system with its
// initial roles.
func (s *Store) CreateGovernance(ctx context.Context, orgID, systemID uuid.UUID, roles []models.GovernanceRole) (*models.Governance, error) {
	now := time.Now()
	gov := &models.Governance{
		ID:         uuid.New(),
		AISystemID: systemID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := getSystem(ctx, tx, orgID, systemID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO ai_governance (id, ai_system_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
		`, gov.ID, gov.AISystemID, gov.CreatedAt, gov.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		if err != nil {
			return err
		}
		return insertRoles(ctx, tx, gov.ID, roles, now)
	})
	if err != nil {
		return nil, err
	}

	gov.Roles = roles
	return gov, nil
}

// ReplaceGovernanceRoles swaps the full role list of a system's governance
// structure in one transaction.
func (s *Store) ReplaceGovernanceRoles(ctx context.Context, orgID, systemID uuid.UUID, roles []models.GovernanceRole) (*models.Governance, error) {
	var gov models.Governance
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &gov, `
			SELECT g.* FROM ai_governance g
			JOIN ai_systems s ON s.id = g.ai_system_id
			WHERE g.ai_system_id = $1 AND s.organization_id = $2
			FOR UPDATE OF g
		`, systemID, orgID)
		if err != nil {
			return notFound(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM governance_roles WHERE governance_id = $1`, gov.ID); err != nil {
			return err
		}

		now := time.Now()
		if err := insertRoles(ctx, tx, gov.ID, roles, now); err != nil {
			return err
		}

		gov.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `UPDATE ai_governance SET updated_at = $2 WHERE id = $1`, gov.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	gov.Roles = roles
	return &gov, nil
}

func insertRoles(ctx context.Context, tx *sqlx.Tx, govID uuid.UUID, roles []models.GovernanceRole, now time.Time) error {
	for i := range roles {
		r := &roles[i]
		r.ID = uuid.New()
		r.GovernanceID = govID
		r.Position = i
		r.CreatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO governance_roles (
				id, governance_id, role_type, person_name, email, responsibilities,
				appointed_date, is_active, position, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, r.ID, r.GovernanceID, r.RoleType, r.PersonName, r.Email, r.Responsibilities,
			r.AppointedDate, r.IsActive, r.Position, r.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetGovernanceBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.Governance, error) {
	return loadGovernance(ctx, s.db, orgID, systemID)
}

func loadGovernance(ctx context.Context, q sqlx.QueryerContext, orgID, systemID uuid.UUID) (*models.Governance, error) {
	var gov models.Governance
	err := sqlx.GetContext(ctx, q, &gov, `
		SELECT g.* FROM ai_governance g
		JOIN ai_systems s ON s.id = g.ai_system_id
		WHERE g.ai_system_id = $1 AND s.organization_id = $2
	`, systemID, orgID)
	if err != nil {
		return nil, notFound(err)
	}

	roles := []models.GovernanceRole{}
	if err := sqlx.SelectContext(ctx, q, &roles, `
		SELECT * FROM governance_roles WHERE governance_id = $1 ORDER BY position, created_at
	`, gov.ID); err != nil {
		return nil, err
	}
	gov.Roles = roles
	return &gov, nil
}

func (s *Store) DeleteGovernance(ctx context.Context, orgID, systemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ai_governance g
		USING ai_systems s
		WHERE g.ai_system_id = s.id AND g.ai_system_id = $1 AND s.organization_id = $2
	`, systemID, orgID)
	return expectRow(res, err)
}
