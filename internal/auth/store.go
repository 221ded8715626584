package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type PostgresUserStore struct {
	db *sqlx.DB
}

func NewPostgresUserStore(db *sqlx.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, organization_id, email, name, password_hash, role, created_at, updated_at`

func (s *PostgresUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresUserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresUserStore) CreateUser(ctx context.Context, user *User) error {
	return insertUser(ctx, s.db, user)
}

// CreateOrganizationWithAdmin inserts the organization and its first user
// in one transaction; user.OrganizationID is filled in.
func (s *PostgresUserStore) CreateOrganizationWithAdmin(ctx context.Context, orgName string, user *User) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	orgID := uuid.New()
	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)
	`, orgID, orgName, now); err != nil {
		return err
	}

	user.OrganizationID = orgID
	if err := insertUser(ctx, tx, user); err != nil {
		return err
	}
	return tx.Commit()
}

func insertUser(ctx context.Context, ex sqlx.ExecerContext, user *User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := ex.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, name, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.OrganizationID, user.Email, user.Name, user.Password, user.Role, user.CreatedAt, user.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (s *PostgresUserStore) UpdateUser(ctx context.Context, user *User) error {
	user.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $3, name = $4, password_hash = $5, role = $6, updated_at = $7
		WHERE id = $1 AND organization_id = $2
	`, user.ID, user.OrganizationID, user.Email, user.Name, user.Password, user.Role, user.UpdatedAt)
	return err
}

func (s *PostgresUserStore) DeleteUser(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PostgresUserStore) ListUsers(ctx context.Context, orgID uuid.UUID) ([]*User, error) {
	users := []*User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT id, organization_id, email, name, role, created_at, updated_at
		FROM users WHERE organization_id = $1 ORDER BY created_at DESC
	`, orgID)
	return users, err
}

func (s *PostgresUserStore) StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), userID, token, expiresAt, time.Now())
	return err
}

func (s *PostgresUserStore) ValidateRefreshToken(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = $1 AND token = $2 AND expires_at > NOW() AND revoked_at IS NULL
	`, userID, token)
	return count > 0, err
}

func (s *PostgresUserStore) RevokeRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW()
		WHERE user_id = $1 AND token = $2
	`, userID, token)
	return err
}

func (s *PostgresUserStore) RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL
	`, userID)
	return err
}

func (s *PostgresUserStore) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < NOW() OR revoked_at IS NOT NULL
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
