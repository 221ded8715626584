package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiact/compliance/internal/auth"
	"github.com/aiact/compliance/internal/config"
	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/notifications"
	"github.com/aiact/compliance/internal/scheduler"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

const testSecret = "test-secret"

// fakeStore implements the methods a test needs; calling anything else
// panics through the nil embedded interface.
type fakeStore struct {
	Store

	systems         map[uuid.UUID]*models.AISystem
	classifications map[uuid.UUID]*models.RiskClassification
	snapshot        *scoring.ReadinessInput
	incidents       []*models.Incident
	createdRisks    []*models.Risk
	riskUpdates     []store.RiskUpdate
	documentation   map[uuid.UUID]*models.TechnicalDocumentation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		systems:         map[uuid.UUID]*models.AISystem{},
		classifications: map[uuid.UUID]*models.RiskClassification{},
		documentation:   map[uuid.UUID]*models.TechnicalDocumentation{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) CreateSystem(ctx context.Context, orgID uuid.UUID, sys *models.AISystem) error {
	sys.ID = uuid.New()
	sys.OrganizationID = orgID
	f.systems[sys.ID] = sys
	return nil
}

func (f *fakeStore) GetSystem(ctx context.Context, orgID, id uuid.UUID) (*models.AISystem, error) {
	sys, ok := f.systems[id]
	if !ok || sys.OrganizationID != orgID {
		return nil, store.ErrNotFound
	}
	return sys, nil
}

func (f *fakeStore) GetClassification(ctx context.Context, orgID, systemID uuid.UUID) (*models.RiskClassification, error) {
	c, ok := f.classifications[systemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) CreateRisk(ctx context.Context, orgID, registerID uuid.UUID, r *models.Risk, userID *uuid.UUID) error {
	if err := scoring.ApplyRiskScores(r); err != nil {
		return err
	}
	r.ID = uuid.New()
	r.RiskRegisterID = registerID
	f.createdRisks = append(f.createdRisks, r)
	return nil
}

func (f *fakeStore) UpdateRisk(ctx context.Context, orgID, riskID uuid.UUID, upd store.RiskUpdate, userID *uuid.UUID) (*models.Risk, error) {
	f.riskUpdates = append(f.riskUpdates, upd)
	r := &models.Risk{ID: riskID, Title: "Drift", Likelihood: 3, Impact: 3}
	if err := scoring.ApplyRiskScores(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (f *fakeStore) CreateTechnicalDocumentation(ctx context.Context, orgID, systemID uuid.UUID, doc *models.TechnicalDocumentation, userID *uuid.UUID) error {
	if _, err := f.GetSystem(ctx, orgID, systemID); err != nil {
		return err
	}
	if _, ok := f.documentation[systemID]; ok {
		return store.ErrConflict
	}
	doc.ID = uuid.New()
	doc.AISystemID = systemID
	doc.CompletenessPercentage = doc.Completeness()
	doc.Version = models.InitialDocumentVersion
	f.documentation[systemID] = doc
	return nil
}

func (f *fakeStore) CreateIncident(ctx context.Context, orgID uuid.UUID, inc *models.Incident) error {
	if _, err := f.GetSystem(ctx, orgID, inc.AISystemID); err != nil {
		return err
	}
	inc.ID = uuid.New()
	inc.OrganizationID = orgID
	inc.IncidentNumber = "INC-20260101-001"
	f.incidents = append(f.incidents, inc)
	return nil
}

func (f *fakeStore) LoadReadinessSnapshot(ctx context.Context, orgID, systemID uuid.UUID) (*scoring.ReadinessInput, error) {
	if f.snapshot == nil {
		return nil, store.ErrNotFound
	}
	return f.snapshot, nil
}

type testCaller struct {
	orgID  uuid.UUID
	userID uuid.UUID
	role   auth.Role
}

func newTestServer(t *testing.T, st Store) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &Server{
		cfg: &config.Config{
			Server: config.ServerConfig{CORSAllowOrigin: "http://localhost:3000"},
		},
		router:      chi.NewRouter(),
		store:       st,
		logger:      logger,
		authService: auth.NewService(auth.Config{JWTSecret: testSecret}, nil),
		scheduler:   scheduler.NewScheduler(nil, logger),
		notifier:    notifications.NewService(notifications.Config{}, logger),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (c testCaller) token(t *testing.T) string {
	t.Helper()

	claims := &auth.Claims{
		UserID:         c.userID,
		Email:          "tester@example.com",
		Role:           c.role,
		OrganizationID: c.orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newCaller(role auth.Role) testCaller {
	return testCaller{orgID: uuid.New(), userID: uuid.New(), role: role}
}

func doRequest(t *testing.T, s *Server, c *testCaller, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c != nil {
		req.Header.Set("Authorization", "Bearer "+c.token(t))
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
	Meta    *apiMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), "body: %s", rec.Body.String())
	return env
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, newFakeStore())

	rec := doRequest(t, s, nil, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"status":"healthy"}`, string(env.Data))
}

func TestReadyCheckWithoutRedis(t *testing.T) {
	s := newTestServer(t, newFakeStore())

	rec := doRequest(t, s, nil, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, newFakeStore())

	rec := doRequest(t, s, nil, http.MethodGet, "/api/v1/systems", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenWithoutOrganizationRejected(t *testing.T) {
	s := newTestServer(t, newFakeStore())

	c := testCaller{userID: uuid.New(), role: auth.RoleAdmin}
	rec := doRequest(t, s, &c, http.MethodGet, "/api/v1/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentUser(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAuditor)

	rec := doRequest(t, s, &c, http.MethodGet, "/api/v1/auth/me", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var me map[string]string
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &me))
	assert.Equal(t, c.orgID.String(), me["organization_id"])
	assert.Equal(t, string(auth.RoleAuditor), me["role"])
}

func TestViewerCannotWrite(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleViewer)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/systems", `{"name":"Scorer"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminOnlyRoutes(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleComplianceOfficer)

	for _, path := range []string{"/api/v1/users", "/api/v1/jobs", "/api/v1/notifications/settings"} {
		rec := doRequest(t, s, &c, http.MethodGet, path, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestCreateSystem(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleSystemOwner)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/systems", `{
		"name": "Credit Scorer",
		"business_purpose": "Scores consumer credit applications",
		"deployment_status": "PRODUCTION",
		"primary_users": ["loan officers"]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sys models.AISystem
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &sys))
	assert.Equal(t, c.orgID, sys.OrganizationID)
	assert.Equal(t, models.DeploymentProduction, sys.DeploymentStatus)
	require.NotNil(t, sys.CreatedBy)
	assert.Equal(t, c.userID, *sys.CreatedBy)
	assert.Len(t, st.systems, 1)
}

func TestCreateSystemValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		details map[string]string
	}{
		{
			name: "missing fields",
			body: `{}`,
			details: map[string]string{
				"name":              "is required",
				"business_purpose":  "is required",
				"deployment_status": "is required",
			},
		},
		{
			name: "unknown enum value",
			body: `{"name":"Scorer","business_purpose":"Scores credit applications","deployment_status":"LIVE"}`,
			details: map[string]string{
				"deployment_status": `unknown value "LIVE"`,
			},
		},
		{
			name: "derived field",
			body: `{"name":"Scorer","business_purpose":"Scores credit applications","deployment_status":"TESTING","gap_score":100}`,
			details: map[string]string{
				"gap_score": "derived field cannot be set",
			},
		},
		{
			name: "wrong json type",
			body: `{"name":42,"business_purpose":"Scores credit applications","deployment_status":"TESTING"}`,
			details: map[string]string{
				"name": "must be a string",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, newFakeStore())
			c := newCaller(auth.RoleAdmin)

			rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/systems", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			env := decodeEnvelope(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, "validation_error", env.Error.Code)
			assert.Equal(t, tt.details, env.Error.Details)
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/systems", `{"name":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", decodeEnvelope(t, rec).Error.Code)
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleViewer)

	for _, path := range []string{
		"/api/v1/systems/" + uuid.NewString(),
		"/api/v1/systems/not-a-uuid",
	} {
		rec := doRequest(t, s, &c, http.MethodGet, path, "")
		require.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "not_found", decodeEnvelope(t, rec).Error.Code)
	}
}

func TestSystemsAreOrganizationScoped(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	owner := newCaller(auth.RoleAdmin)
	other := newCaller(auth.RoleAdmin)

	sys := &models.AISystem{Name: "Triage", DeploymentStatus: models.DeploymentTesting}
	require.NoError(t, st.CreateSystem(context.Background(), owner.orgID, sys))

	rec := doRequest(t, s, &owner, http.MethodGet, "/api/v1/systems/"+sys.ID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, &other, http.MethodGet, "/api/v1/systems/"+sys.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGapAssessmentRequiresHighRisk(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleComplianceOfficer)

	sys := &models.AISystem{Name: "Chatbot", DeploymentStatus: models.DeploymentProduction}
	require.NoError(t, st.CreateSystem(context.Background(), c.orgID, sys))
	st.classifications[sys.ID] = &models.RiskClassification{AISystemID: sys.ID, Category: models.RiskCategoryLimited}

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/systems/"+sys.ID.String()+"/gap-assessment", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Details["classification"], "high-risk")

	rec = doRequest(t, s, &c, http.MethodPost, "/api/v1/systems/"+uuid.NewString()+"/gap-assessment", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRiskComputesScores(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleComplianceOfficer)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/risk-registers/"+uuid.NewString()+"/risks", `{
		"title": "Biased approvals",
		"type": "BIAS",
		"description": "Model favours applicants from some regions",
		"potential_impact": "Unfair denial of credit to protected groups",
		"likelihood": 4,
		"impact": 4
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var risk models.Risk
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &risk))
	assert.Equal(t, 16, risk.InherentRiskScore)
	assert.Equal(t, models.RiskLevelHigh, risk.RiskLevel)
}

func TestCreateRiskRejectsDerivedFields(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleComplianceOfficer)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/risk-registers/"+uuid.NewString()+"/risks", `{
		"title": "Biased approvals",
		"type": "BIAS",
		"description": "Model favours applicants from some regions",
		"potential_impact": "Unfair denial of credit to protected groups",
		"likelihood": 2,
		"impact": 2,
		"inherent_risk_score": 1,
		"risk_level": "LOW"
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, map[string]string{
		"inherent_risk_score": "derived field cannot be set",
		"risk_level":          "derived field cannot be set",
	}, env.Error.Details)
	assert.Empty(t, st.createdRisks)
}

func TestCreateRiskRegisterRejectsNestedDerivedFields(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/systems/"+uuid.NewString()+"/risk-register", `{
		"risks": [
			{"title": "Drift", "type": "SAFETY", "description": "Accuracy drops over time",
			 "potential_impact": "Wrong triage decisions", "likelihood": 3, "impact": 3},
			{"title": "Leak", "type": "PRIVACY", "description": "Training data is memorised",
			 "potential_impact": "Exposure of patient records", "likelihood": 2, "impact": 5,
			 "residual_risk_score": 2}
		]
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]string{
		"risks[1].residual_risk_score": "derived field cannot be set",
	}, decodeEnvelope(t, rec).Error.Details)
}

func TestUpdateRiskClearResidual(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleComplianceOfficer)
	path := "/api/v1/risks/" + uuid.NewString()

	rec := doRequest(t, s, &c, http.MethodPatch, path, `{"clear_residual": true, "residual_impact": 2}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{
		"clear_residual": "cannot be combined with residual_likelihood or residual_impact",
	}, decodeEnvelope(t, rec).Error.Details)
	assert.Empty(t, st.riskUpdates)

	rec = doRequest(t, s, &c, http.MethodPatch, path, `{"clear_residual": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, st.riskUpdates, 1)
	assert.True(t, st.riskUpdates[0].ClearResidual)
	assert.Nil(t, st.riskUpdates[0].ResidualImpact)
}

func TestCreateRiskFractionalRating(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/risk-registers/"+uuid.NewString()+"/risks", `{
		"title": "Drift",
		"type": "SAFETY",
		"description": "Accuracy drops over time",
		"potential_impact": "Wrong triage decisions",
		"likelihood": 2.5,
		"impact": 3
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "must be a whole number", decodeEnvelope(t, rec).Error.Details["likelihood"])
}

func TestCreateRiskOutOfRange(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/risk-registers/"+uuid.NewString()+"/risks", `{
		"title": "Drift",
		"type": "SAFETY",
		"description": "Accuracy drops over time",
		"potential_impact": "Wrong triage decisions",
		"likelihood": 6,
		"impact": 0
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	details := decodeEnvelope(t, rec).Error.Details
	assert.Contains(t, details, "likelihood")
	assert.Contains(t, details, "impact")
}

func TestReadinessProhibited(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleViewer)

	sys := &models.AISystem{ID: uuid.New(), OrganizationID: c.orgID, Name: "Social Scorer"}
	st.snapshot = &scoring.ReadinessInput{
		System:         sys,
		Classification: &models.RiskClassification{ID: uuid.New(), AISystemID: sys.ID, Category: models.RiskCategoryProhibited},
	}

	rec := doRequest(t, s, &c, http.MethodGet, "/api/v1/certification/"+sys.ID.String()+"/readiness", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result scoring.ReadinessResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.False(t, result.Ready)
	assert.Equal(t, sys.ID, result.SystemID)
	assert.Equal(t, "Social Scorer", result.SystemName)
	assert.Len(t, result.MissingItems, 1)
}

func TestReadinessMalformedSnapshot(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleViewer)

	sys := &models.AISystem{ID: uuid.New(), Name: "Broken"}
	st.snapshot = &scoring.ReadinessInput{
		System:         sys,
		Classification: &models.RiskClassification{ID: uuid.New(), AISystemID: uuid.New(), Category: models.RiskCategoryHigh},
	}

	rec := doRequest(t, s, &c, http.MethodGet, "/api/v1/certification/"+sys.ID.String()+"/readiness", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "data_integrity", decodeEnvelope(t, rec).Error.Code)
}

func TestCreateIncident(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleSystemOwner)

	sys := &models.AISystem{Name: "Triage", DeploymentStatus: models.DeploymentProduction}
	require.NoError(t, st.CreateSystem(context.Background(), c.orgID, sys))

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/incidents", `{
		"ai_system_id": "`+sys.ID.String()+`",
		"title": "Wrong priority",
		"description": "Urgent case ranked as routine",
		"category": "accuracy",
		"severity": "HIGH"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var inc models.Incident
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &inc))
	assert.Equal(t, "INC-20260101-001", inc.IncidentNumber)
	assert.Equal(t, models.IncidentOpen, inc.Status)
	require.NotNil(t, inc.ReportedBy)
	assert.Equal(t, c.userID, *inc.ReportedBy)
}

func TestListIncidentsFilterValidation(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleViewer)

	rec := doRequest(t, s, &c, http.MethodGet, "/api/v1/incidents?severity=SEVERE&limit=0", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	details := decodeEnvelope(t, rec).Error.Details
	assert.Contains(t, details, "severity")
	assert.Contains(t, details, "limit")
}

func TestExportsUnavailableWithoutRedis(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/exports", `{"type":"executive_summary"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "exports_unavailable", decodeEnvelope(t, rec).Error.Code)

	rec = doRequest(t, s, &c, http.MethodGet, "/api/v1/exports/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNotificationSettingsRedacted(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPut, "/api/v1/notifications/settings", `{
		"min_severity": "MEDIUM",
		"slack": {"enabled": true, "webhook_url": "https://hooks.slack.com/services/T000/B000/secret"}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cfg notifications.Config
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &cfg))
	assert.Equal(t, models.SeverityMedium, cfg.MinSeverity)
	assert.Equal(t, "https://hooks.slack.com/services/T000/B000/********", cfg.Slack.WebhookURL)
	assert.Equal(t, "https://hooks.slack.com/services/T000/B000/secret", s.notifier.Settings().Slack.WebhookURL)
}

func TestNotificationSettingsValidation(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPut, "/api/v1/notifications/settings", `{
		"min_severity": "HIGH",
		"slack": {"enabled": true}
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "is required", decodeEnvelope(t, rec).Error.Details["slack.webhook_url"])
}

func TestScheduledJobValidation(t *testing.T) {
	s := newTestServer(t, newFakeStore())
	c := newCaller(auth.RoleAdmin)

	rec := doRequest(t, s, &c, http.MethodPost, "/api/v1/jobs", `{
		"name": "Token cleanup",
		"schedule": "every day",
		"job_type": "cleanup_tokens"
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	details := decodeEnvelope(t, rec).Error.Details
	assert.Contains(t, details, "schedule")
	assert.Contains(t, details, "job_type")
}

func TestCreateTechnicalDocumentation(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleComplianceOfficer)
	sys := &models.AISystem{Name: "Credit Scoring"}
	require.NoError(t, st.CreateSystem(context.Background(), c.orgID, sys))
	path := "/api/v1/systems/" + sys.ID.String() + "/technical-documentation"

	rec := doRequest(t, s, &c, http.MethodPost, path, `{
		"prepared_by": "Jane Doe",
		"intended_use": "Scores consumer loan applications",
		"human_oversight": "An analyst reviews every decline"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc models.TechnicalDocumentation
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &doc))
	assert.Equal(t, 25.0, doc.CompletenessPercentage)
	assert.Equal(t, "1.0", doc.Version)
	assert.Equal(t, "An analyst reviews every decline", doc.HumanOversight)

	rec = doRequest(t, s, &c, http.MethodPost, path, `{"prepared_by": "Jane Doe"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateTechnicalDocumentationValidation(t *testing.T) {
	st := newFakeStore()
	s := newTestServer(t, st)
	c := newCaller(auth.RoleAdmin)
	path := "/api/v1/systems/" + uuid.NewString() + "/technical-documentation"

	rec := doRequest(t, s, &c, http.MethodPost, path, `{"prepared_by": "Jane Doe", "completeness_percentage": 100}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]string{
		"completeness_percentage": "derived field cannot be set",
	}, decodeEnvelope(t, rec).Error.Details)

	rec = doRequest(t, s, &c, http.MethodPost, path, `{"intended_use": "Scores loans"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeEnvelope(t, rec).Error.Details, "prepared_by")
	assert.Empty(t, st.documentation)
}

func TestWantsDownload(t *testing.T) {
	tests := []struct {
		query  string
		accept string
		want   bool
	}{
		{"", "", false},
		{"", "application/json", false},
		{"", "*/*", false},
		{"", "application/pdf", true},
		{"?download=true", "application/json", true},
		{"?download=false", "application/pdf", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/x"+tt.query, nil)
		if tt.accept != "" {
			req.Header.Set("Accept", tt.accept)
		}
		assert.Equal(t, tt.want, wantsDownload(req), "query=%q accept=%q", tt.query, tt.accept)
	}
}
