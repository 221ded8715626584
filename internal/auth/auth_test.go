package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*User
	tokens map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{users: map[uuid.UUID]*User{}, tokens: map[string]time.Time{}}
}

func (m *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memStore) CreateUser(ctx context.Context, user *User) error {
	if _, err := m.GetUserByEmail(ctx, user.Email); err == nil {
		return ErrEmailTaken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uuid.New()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) CreateOrganizationWithAdmin(ctx context.Context, orgName string, user *User) error {
	user.OrganizationID = uuid.New()
	return m.CreateUser(ctx, user)
}

func (m *memStore) UpdateUser(ctx context.Context, user *User) error { return nil }

func (m *memStore) DeleteUser(ctx context.Context, orgID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.OrganizationID != orgID {
		return ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) ListUsers(ctx context.Context, orgID uuid.UUID) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memStore) StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = expiresAt
	return nil
}

func (m *memStore) ValidateRefreshToken(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.tokens[token]
	return ok && exp.After(time.Now()), nil
}

func (m *memStore) RevokeRefreshToken(ctx context.Context, userID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *memStore) RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = map[string]time.Time{}
	return nil
}

func (m *memStore) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for tok, exp := range m.tokens {
		if exp.Before(time.Now()) {
			delete(m.tokens, tok)
			n++
		}
	}
	return n, nil
}

func newTestService() *Service {
	return NewService(Config{JWTSecret: "test-secret"}, newMemStore())
}

func TestSignup_CreatesAdminWithOrganization(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	user, tokens, err := svc.Signup(ctx, "Acme", "Alex", " Alex@Example.com ", "password123")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if user.Role != RoleAdmin {
		t.Errorf("Role = %s, want ADMIN", user.Role)
	}
	if user.Email != "alex@example.com" {
		t.Errorf("Email = %q, want normalized address", user.Email)
	}

	claims, err := svc.ValidateToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.OrganizationID != user.OrganizationID || claims.OrganizationID == uuid.Nil {
		t.Errorf("claims organization = %s, want %s", claims.OrganizationID, user.OrganizationID)
	}

	if _, _, err := svc.Signup(ctx, "Other", "Sam", "alex@example.com", "password123"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	if _, _, err := svc.Signup(ctx, "Acme", "Alex", "alex@example.com", "password123"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "alex@example.com", "password123", nil},
		{"wrong password", "alex@example.com", "nope", ErrInvalidCredentials},
		{"unknown user", "sam@example.com", "password123", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRefreshTokens_RotatesToken(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	_, tokens, err := svc.Signup(ctx, "Acme", "Alex", "alex@example.com", "password123")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if _, err := svc.RefreshTokens(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("RefreshTokens failed: %v", err)
	}
	if _, err := svc.RefreshTokens(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("reusing a refresh token: expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	svc := newTestService()
	_, tokens, err := svc.Signup(context.Background(), "Acme", "Alex", "alex@example.com", "password123")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	other := NewService(Config{JWTSecret: "another-secret"}, newMemStore())
	if _, err := other.ValidateToken(tokens.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAddUser_RejectsUnknownRole(t *testing.T) {
	svc := newTestService()
	if _, err := svc.AddUser(context.Background(), uuid.New(), "Sam", "sam@example.com", "pw", Role("OWNER")); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(WriterRoles...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		role Role
		want int
	}{
		{RoleAdmin, http.StatusNoContent},
		{RoleComplianceOfficer, http.StatusNoContent},
		{RoleSystemOwner, http.StatusNoContent},
		{RoleAuditor, http.StatusForbidden},
		{RoleViewer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req = req.WithContext(WithClaims(req.Context(), &Claims{Role: tt.role, OrganizationID: uuid.New()}))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMiddleware_RejectsMissingHeader(t *testing.T) {
	svc := newTestService()
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
