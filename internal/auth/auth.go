package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
)

type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Email          string    `json:"email" db:"email"`
	Name           string    `json:"name" db:"name"`
	Password       string    `json:"-" db:"password_hash"`
	Role           Role      `json:"role" db:"role"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RoleComplianceOfficer Role = "COMPLIANCE_OFFICER"
	RoleSystemOwner       Role = "SYSTEM_OWNER"
	RoleAuditor           Role = "AUDITOR"
	RoleViewer            Role = "VIEWER"
)

// WriterRoles may change compliance records. Every role may read.
var WriterRoles = []Role{RoleAdmin, RoleComplianceOfficer, RoleSystemOwner}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleComplianceOfficer, RoleSystemOwner, RoleAuditor, RoleViewer:
		return true
	}
	return false
}

type Claims struct {
	UserID         uuid.UUID `json:"user_id"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	OrganizationID uuid.UUID `json:"organization_id"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

type Service struct {
	config Config
	store  UserStore
}

type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	CreateOrganizationWithAdmin(ctx context.Context, orgName string, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, orgID, id uuid.UUID) error
	ListUsers(ctx context.Context, orgID uuid.UUID) ([]*User, error)
	StoreRefreshToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	ValidateRefreshToken(ctx context.Context, userID uuid.UUID, token string) (bool, error)
	RevokeRefreshToken(ctx context.Context, userID uuid.UUID, token string) error
	RevokeAllRefreshTokens(ctx context.Context, userID uuid.UUID) error
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

func NewService(config Config, store UserStore) *Service {
	if config.AccessTokenExpiry == 0 {
		config.AccessTokenExpiry = 15 * time.Minute
	}
	if config.RefreshTokenExpiry == 0 {
		config.RefreshTokenExpiry = 7 * 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "aiact"
	}

	return &Service{
		config: config,
		store:  store,
	}
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Signup creates an organization and its first user, who is always an
// ADMIN, then logs that user in.
func (s *Service) Signup(ctx context.Context, orgName, name, email, password string) (*User, *TokenPair, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	user := &User{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Name:     name,
		Password: hash,
		Role:     RoleAdmin,
	}
	if err := s.store.CreateOrganizationWithAdmin(ctx, orgName, user); err != nil {
		return nil, nil, err
	}

	tokens, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// AddUser creates a team member in the caller's organization.
func (s *Service) AddUser(ctx context.Context, orgID uuid.UUID, name, email, password string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &User{
		OrganizationID: orgID,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Name:           name,
		Password:       hash,
		Role:           role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, orgID uuid.UUID) ([]*User, error) {
	return s.store.ListUsers(ctx, orgID)
}

func (s *Service) RemoveUser(ctx context.Context, orgID, id uuid.UUID) error {
	return s.store.DeleteUser(ctx, orgID, id)
}

func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !CheckPassword(password, user.Password) {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(ctx, user)
}

func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken)
	if err != nil {
		return nil, err
	}

	valid, err := s.store.ValidateRefreshToken(ctx, claims.UserID, refreshToken)
	if err != nil || !valid {
		return nil, ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	_ = s.store.RevokeRefreshToken(ctx, claims.UserID, refreshToken)

	return s.generateTokenPair(ctx, user)
}

func (s *Service) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	return s.store.RevokeRefreshToken(ctx, userID, refreshToken)
}

func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	return s.store.RevokeAllRefreshTokens(ctx, userID)
}

// CleanupExpiredTokens purges refresh tokens that expired or were revoked.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.store.CleanupExpiredTokens(ctx)
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.OrganizationID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) signClaims(user *User, now, expiry time.Time) (string, error) {
	claims := &Claims{
		UserID:         user.ID,
		Email:          user.Email,
		Role:           user.Role,
		OrganizationID: user.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
			Subject:   user.ID.String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
}

func (s *Service) generateTokenPair(ctx context.Context, user *User) (*TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(s.config.AccessTokenExpiry)
	refreshExpiry := now.Add(s.config.RefreshTokenExpiry)

	accessTokenString, err := s.signClaims(user, now, accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshTokenString, err := s.signClaims(user, now, refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	if err := s.store.StoreRefreshToken(ctx, user.ID, refreshTokenString, refreshExpiry); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessTokenString,
		RefreshToken: refreshTokenString,
		ExpiresAt:    accessExpiry,
		TokenType:    "Bearer",
	}, nil
}

type contextKey string

const UserContextKey contextKey = "user"

func GetUserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	return claims, ok
}

// WithClaims returns a context carrying claims, as the middleware does.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				http.Error(w, "token expired", http.StatusUnauthorized)
				return
			}
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
