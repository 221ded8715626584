package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aiact/compliance/internal/scoring"
)

var snapshotTxOptions = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// LoadReadinessSnapshot reads everything the readiness validator needs for
// one system inside a single read-only transaction, so the result reflects
// one consistent point in time. Relations that do not exist yet are nil.
func (s *Store) LoadReadinessSnapshot(ctx context.Context, orgID, systemID uuid.UUID) (*scoring.ReadinessInput, error) {
	var in *scoring.ReadinessInput
	err := s.withTx(ctx, snapshotTxOptions, func(tx *sqlx.Tx) error {
		var err error
		in, err = loadSnapshot(ctx, tx, orgID, systemID)
		return err
	})
	return in, err
}

// LoadOrganizationSnapshots loads a readiness snapshot for every system of
// an organization, ordered as ListSystems orders them.
func (s *Store) LoadOrganizationSnapshots(ctx context.Context, orgID uuid.UUID) ([]scoring.ReadinessInput, error) {
	var out []scoring.ReadinessInput
	err := s.withTx(ctx, snapshotTxOptions, func(tx *sqlx.Tx) error {
		var ids []uuid.UUID
		if err := tx.SelectContext(ctx, &ids, `
			SELECT id FROM ai_systems WHERE organization_id = $1 ORDER BY created_at DESC
		`, orgID); err != nil {
			return err
		}

		out = make([]scoring.ReadinessInput, 0, len(ids))
		for _, id := range ids {
			in, err := loadSnapshot(ctx, tx, orgID, id)
			if err != nil {
				return err
			}
			out = append(out, *in)
		}
		return nil
	})
	return out, err
}

func loadSnapshot(ctx context.Context, tx *sqlx.Tx, orgID, systemID uuid.UUID) (*scoring.ReadinessInput, error) {
	sys, err := getSystem(ctx, tx, orgID, systemID)
	if err != nil {
		return nil, err
	}
	in := &scoring.ReadinessInput{System: sys}

	if in.Classification, err = getClassification(ctx, tx, orgID, systemID); optional(err) != nil {
		return nil, err
	}
	if in.GapAssessment, err = loadGapAssessment(ctx, tx, `g.ai_system_id = $1`, systemID, orgID); optional(err) != nil {
		return nil, err
	}
	if in.Governance, err = loadGovernance(ctx, tx, orgID, systemID); optional(err) != nil {
		return nil, err
	}
	if in.RiskRegister, err = loadRiskRegister(ctx, tx, `rr.ai_system_id = $1`, systemID, orgID); optional(err) != nil {
		return nil, err
	}
	if in.Documentation, err = loadTechnicalDocumentation(ctx, tx, orgID, systemID); optional(err) != nil {
		return nil, err
	}
	if in.Incidents, err = listSystemIncidents(ctx, tx, orgID, systemID); err != nil {
		return nil, err
	}
	return in, nil
}

// optional treats a missing relation as absent rather than as a failure.
func optional(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
