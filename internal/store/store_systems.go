package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aiact/compliance/internal/models"
)

func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	return createOrganization(ctx, s.db, org)
}

func createOrganization(ctx context.Context, ex sqlx.ExecerContext, org *models.Organization) error {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	now := time.Now()
	org.CreatedAt = now
	org.UpdatedAt = now

	_, err := ex.ExecContext(ctx, `
		INSERT INTO organizations (id, name, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.Settings, org.CreatedAt, org.UpdatedAt)
	return err
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := s.db.GetContext(ctx, &org, `SELECT * FROM organizations WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	var orgs []models.Organization
	err := s.db.SelectContext(ctx, &orgs, `SELECT * FROM organizations ORDER BY created_at`)
	return orgs, err
}

func (s *Store) CreateSystem(ctx context.Context, orgID uuid.UUID, sys *models.AISystem) error {
	query := `
		INSERT INTO ai_systems (
			id, organization_id, name, business_purpose, description, technical_approach,
			primary_users, deployment_status, deployment_date, data_categories,
			third_party_providers, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	sys.ID = uuid.New()
	sys.OrganizationID = orgID
	sys.CreatedAt = time.Now()
	sys.UpdatedAt = sys.CreatedAt
	if sys.PrimaryUsers == nil {
		sys.PrimaryUsers = models.StringArray{}
	}
	if sys.DataCategories == nil {
		sys.DataCategories = models.StringArray{}
	}
	if sys.ThirdPartyProviders == nil {
		sys.ThirdPartyProviders = models.StringArray{}
	}

	_, err := s.db.ExecContext(ctx, query,
		sys.ID, sys.OrganizationID, sys.Name, sys.BusinessPurpose, sys.Description, sys.TechnicalApproach,
		sys.PrimaryUsers, sys.DeploymentStatus, sys.DeploymentDate, sys.DataCategories,
		sys.ThirdPartyProviders, sys.CreatedBy, sys.CreatedAt, sys.UpdatedAt,
	)
	return err
}

type SystemFilter struct {
	DeploymentStatus *models.DeploymentStatus
	RiskCategory     *models.RiskCategory
}

const systemListColumns = `
	s.*, rc.category AS risk_category, g.overall_score AS gap_score
	FROM ai_systems s
	LEFT JOIN risk_classifications rc ON rc.ai_system_id = s.id
	LEFT JOIN gap_assessments g ON g.ai_system_id = s.id
`

func (s *Store) ListSystems(ctx context.Context, orgID uuid.UUID, filter SystemFilter) ([]models.AISystem, error) {
	query := `SELECT ` + systemListColumns + ` WHERE s.organization_id = $1`
	args := []interface{}{orgID}
	argIdx := 2

	if filter.DeploymentStatus != nil {
		query += fmt.Sprintf(" AND s.deployment_status = $%d", argIdx)
		args = append(args, *filter.DeploymentStatus)
		argIdx++
	}
	if filter.RiskCategory != nil {
		query += fmt.Sprintf(" AND rc.category = $%d", argIdx)
		args = append(args, *filter.RiskCategory)
	}

	query += " ORDER BY s.created_at DESC"

	systems := []models.AISystem{}
	err := s.db.SelectContext(ctx, &systems, query, args...)
	return systems, err
}

func (s *Store) GetSystem(ctx context.Context, orgID, id uuid.UUID) (*models.AISystem, error) {
	return getSystem(ctx, s.db, orgID, id)
}

func getSystem(ctx context.Context, q sqlx.QueryerContext, orgID, id uuid.UUID) (*models.AISystem, error) {
	var sys models.AISystem
	query := `SELECT ` + systemListColumns + ` WHERE s.id = $1 AND s.organization_id = $2`
	if err := sqlx.GetContext(ctx, q, &sys, query, id, orgID); err != nil {
		return nil, notFound(err)
	}
	return &sys, nil
}

func (s *Store) UpdateSystem(ctx context.Context, orgID uuid.UUID, sys *models.AISystem) error {
	sys.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_systems SET
			name = $3, business_purpose = $4, description = $5, technical_approach = $6,
			primary_users = $7, deployment_status = $8, deployment_date = $9,
			data_categories = $10, third_party_providers = $11, updated_at = $12
		WHERE id = $1 AND organization_id = $2
	`, sys.ID, orgID, sys.Name, sys.BusinessPurpose, sys.Description, sys.TechnicalApproach,
		sys.PrimaryUsers, sys.DeploymentStatus, sys.DeploymentDate,
		sys.DataCategories, sys.ThirdPartyProviders, sys.UpdatedAt)
	return expectRow(res, err)
}

func (s *Store) DeleteSystem(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_systems WHERE id = $1 AND organization_id = $2`, id, orgID)
	return expectRow(res, err)
}

// CreateClassification records the one and only classification of a system.
// A second call for the same system returns ErrConflict.
func (s *Store) CreateClassification(ctx context.Context, orgID uuid.UUID, c *models.RiskClassification) error {
	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := getSystem(ctx, tx, orgID, c.AISystemID); err != nil {
			return err
		}

		c.ID = uuid.New()
		c.CreatedAt = time.Now()
		for _, arr := range []*models.StringArray{&c.ProhibitedPractices, &c.HighRiskCategories, &c.ApplicableRequirements} {
			if *arr == nil {
				*arr = models.StringArray{}
			}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO risk_classifications (
				id, ai_system_id, category, prohibited_practices, high_risk_categories,
				interacts_with_persons, reasoning, applicable_requirements, classified_by, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, c.ID, c.AISystemID, c.Category, c.ProhibitedPractices, c.HighRiskCategories,
			c.InteractsWithPersons, c.Reasoning, c.ApplicableRequirements, c.ClassifiedBy, c.CreatedAt)
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	})
}

func (s *Store) GetClassification(ctx context.Context, orgID, systemID uuid.UUID) (*models.RiskClassification, error) {
	return getClassification(ctx, s.db, orgID, systemID)
}

func getClassification(ctx context.Context, q sqlx.QueryerContext, orgID, systemID uuid.UUID) (*models.RiskClassification, error) {
	var c models.RiskClassification
	err := sqlx.GetContext(ctx, q, &c, `
		SELECT rc.* FROM risk_classifications rc
		JOIN ai_systems s ON s.id = rc.ai_system_id
		WHERE rc.ai_system_id = $1 AND s.organization_id = $2
	`, systemID, orgID)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// DeleteClassification removes a classification so the system can be
// classified again.
func (s *Store) DeleteClassification(ctx context.Context, orgID, systemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM risk_classifications rc
		USING ai_systems s
		WHERE rc.ai_system_id = s.id AND rc.ai_system_id = $1 AND s.organization_id = $2
	`, systemID, orgID)
	return expectRow(res, err)
}
