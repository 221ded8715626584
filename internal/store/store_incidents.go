package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aiact/compliance/internal/models"
)

// incidentNumberLock is the advisory lock key serializing incident numbering.
const incidentNumberLock = 7_204_311

type IncidentFilter struct {
	SystemID *uuid.UUID
	Status   *models.IncidentStatus
	Severity *models.Severity
	Limit    int
	Offset   int
}

type IncidentUpdate struct {
	Title             *string
	Description       *string
	Category          *string
	Severity          *models.Severity
	Status            *models.IncidentStatus
	BusinessImpact    *string
	ImmediateActions  *string
	RootCause         *string
	ResolutionSummary *string
}

// CreateIncident records an incident and assigns the next number of the
// day, INC-YYYYMMDD-NNN.
func (s *Store) CreateIncident(ctx context.Context, orgID uuid.UUID, inc *models.Incident) error {
	return s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		if _, err := getSystem(ctx, tx, orgID, inc.AISystemID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, incidentNumberLock); err != nil {
			return err
		}

		now := time.Now().UTC()
		prefix := "INC-" + now.Format("20060102") + "-"
		var count int
		if err := tx.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM incidents WHERE incident_number LIKE $1
		`, prefix+"%"); err != nil {
			return err
		}

		inc.ID = uuid.New()
		inc.OrganizationID = orgID
		inc.IncidentNumber = fmt.Sprintf("%s%03d", prefix, count+1)
		if inc.Status == "" {
			inc.Status = models.IncidentOpen
		}
		if inc.OccurredAt.IsZero() {
			inc.OccurredAt = now
		}
		inc.ResolvedAt, inc.ClosedAt = nil, nil
		inc.TransitionTo(inc.Status, now)
		inc.CreatedAt = now
		inc.UpdatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO incidents (
				id, organization_id, ai_system_id, incident_number, title, description, category,
				severity, status, occurred_at, business_impact, immediate_actions, root_cause,
				resolution_summary, resolved_at, closed_at, reported_by, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		`, inc.ID, inc.OrganizationID, inc.AISystemID, inc.IncidentNumber, inc.Title, inc.Description, inc.Category,
			inc.Severity, inc.Status, inc.OccurredAt, inc.BusinessImpact, inc.ImmediateActions, inc.RootCause,
			inc.ResolutionSummary, inc.ResolvedAt, inc.ClosedAt, inc.ReportedBy, inc.CreatedAt, inc.UpdatedAt)
		return err
	})
}

func (s *Store) ListIncidents(ctx context.Context, orgID uuid.UUID, filter IncidentFilter) ([]models.Incident, error) {
	query := `SELECT * FROM incidents WHERE organization_id = $1`
	args := []interface{}{orgID}
	argIdx := 2

	if filter.SystemID != nil {
		query += fmt.Sprintf(" AND ai_system_id = $%d", argIdx)
		args = append(args, *filter.SystemID)
		argIdx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, *filter.Severity)
		argIdx++
	}

	query += " ORDER BY occurred_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	incidents := []models.Incident{}
	err := s.db.SelectContext(ctx, &incidents, query, args...)
	return incidents, err
}

func (s *Store) GetIncident(ctx context.Context, orgID, id uuid.UUID) (*models.Incident, error) {
	var inc models.Incident
	err := s.db.GetContext(ctx, &inc, `SELECT * FROM incidents WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return nil, notFound(err)
	}
	return &inc, nil
}

// UpdateIncident applies upd under a row lock; status changes go through
// Incident.TransitionTo.
func (s *Store) UpdateIncident(ctx context.Context, orgID, id uuid.UUID, upd IncidentUpdate) (*models.Incident, error) {
	var inc models.Incident
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &inc, `
			SELECT * FROM incidents WHERE id = $1 AND organization_id = $2 FOR UPDATE
		`, id, orgID)
		if err != nil {
			return notFound(err)
		}

		now := time.Now()
		for dst, src := range map[*string]*string{
			&inc.Title:             upd.Title,
			&inc.Description:       upd.Description,
			&inc.Category:          upd.Category,
			&inc.BusinessImpact:    upd.BusinessImpact,
			&inc.ImmediateActions:  upd.ImmediateActions,
			&inc.RootCause:         upd.RootCause,
			&inc.ResolutionSummary: upd.ResolutionSummary,
		} {
			if src != nil {
				*dst = *src
			}
		}
		if upd.Severity != nil {
			inc.Severity = *upd.Severity
		}
		if upd.Status != nil {
			inc.TransitionTo(*upd.Status, now)
		}
		inc.UpdatedAt = now

		_, err = tx.ExecContext(ctx, `
			UPDATE incidents SET
				title = $2, description = $3, category = $4, severity = $5, status = $6,
				business_impact = $7, immediate_actions = $8, root_cause = $9, resolution_summary = $10,
				resolved_at = $11, closed_at = $12, updated_at = $13
			WHERE id = $1
		`, inc.ID, inc.Title, inc.Description, inc.Category, inc.Severity, inc.Status,
			inc.BusinessImpact, inc.ImmediateActions, inc.RootCause, inc.ResolutionSummary,
			inc.ResolvedAt, inc.ClosedAt, inc.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func listSystemIncidents(ctx context.Context, q sqlx.QueryerContext, orgID, systemID uuid.UUID) ([]models.Incident, error) {
	incidents := []models.Incident{}
	err := sqlx.SelectContext(ctx, q, &incidents, `
		SELECT * FROM incidents WHERE organization_id = $1 AND ai_system_id = $2 ORDER BY occurred_at DESC
	`, orgID, systemID)
	return incidents, err
}
