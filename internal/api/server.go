package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/aiact/compliance/internal/auth"
	"github.com/aiact/compliance/internal/config"
	"github.com/aiact/compliance/internal/metrics"
	"github.com/aiact/compliance/internal/models"
	"github.com/aiact/compliance/internal/notifications"
	"github.com/aiact/compliance/internal/queue"
	"github.com/aiact/compliance/internal/reports"
	"github.com/aiact/compliance/internal/scheduler"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

// tokenCleanupSchedule runs the installation-wide refresh token purge.
const tokenCleanupSchedule = "0 3 * * *"

// Store is the persistence the handlers use. *store.Store implements it.
type Store interface {
	Ping(ctx context.Context) error

	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)

	CreateSystem(ctx context.Context, orgID uuid.UUID, sys *models.AISystem) error
	ListSystems(ctx context.Context, orgID uuid.UUID, filter store.SystemFilter) ([]models.AISystem, error)
	GetSystem(ctx context.Context, orgID, id uuid.UUID) (*models.AISystem, error)
	UpdateSystem(ctx context.Context, orgID uuid.UUID, sys *models.AISystem) error
	DeleteSystem(ctx context.Context, orgID, id uuid.UUID) error

	CreateClassification(ctx context.Context, orgID uuid.UUID, c *models.RiskClassification) error
	GetClassification(ctx context.Context, orgID, systemID uuid.UUID) (*models.RiskClassification, error)
	DeleteClassification(ctx context.Context, orgID, systemID uuid.UUID) error

	CreateGapAssessment(ctx context.Context, orgID, systemID uuid.UUID, reqs []models.RequirementAssessment, userID *uuid.UUID) (*models.GapAssessment, error)
	GetGapAssessment(ctx context.Context, orgID, id uuid.UUID) (*models.GapAssessment, error)
	GetGapAssessmentBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.GapAssessment, error)
	ListGapAssessments(ctx context.Context, orgID uuid.UUID) ([]store.GapAssessmentListItem, error)
	UpdateRequirement(ctx context.Context, orgID, reqID uuid.UUID, upd store.RequirementUpdate, userID *uuid.UUID) (*models.RequirementAssessment, *scoring.ComplianceSummary, error)
	RecomputeGapScore(ctx context.Context, orgID, gapID uuid.UUID) (*scoring.ComplianceSummary, error)
	DeleteGapAssessment(ctx context.Context, orgID, id uuid.UUID) error

	CreateEvidence(ctx context.Context, orgID, reqID uuid.UUID, e *models.Evidence) error
	ListEvidence(ctx context.Context, orgID, reqID uuid.UUID) ([]models.Evidence, error)
	DeleteEvidence(ctx context.Context, orgID, id uuid.UUID) error

	CreateRiskRegister(ctx context.Context, orgID, systemID uuid.UUID, risks []models.Risk, userID *uuid.UUID) (*models.RiskRegister, error)
	GetRiskRegister(ctx context.Context, orgID, id uuid.UUID) (*models.RiskRegister, error)
	GetRiskRegisterBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.RiskRegister, error)
	CreateRisk(ctx context.Context, orgID, registerID uuid.UUID, r *models.Risk, userID *uuid.UUID) error
	GetRisk(ctx context.Context, orgID, id uuid.UUID) (*models.Risk, error)
	UpdateRisk(ctx context.Context, orgID, riskID uuid.UUID, upd store.RiskUpdate, userID *uuid.UUID) (*models.Risk, error)
	DeleteRisk(ctx context.Context, orgID, riskID uuid.UUID) error
	CreateMitigationAction(ctx context.Context, orgID, riskID uuid.UUID, a *models.MitigationAction) error
	UpdateMitigationAction(ctx context.Context, orgID, id uuid.UUID, upd store.MitigationUpdate) (*models.MitigationAction, error)
	DeleteMitigationAction(ctx context.Context, orgID, id uuid.UUID) error
	ListOverdueMitigations(ctx context.Context, orgID uuid.UUID, now time.Time) ([]store.OverdueMitigation, error)

	CreateGovernance(ctx context.Context, orgID, systemID uuid.UUID, roles []models.GovernanceRole) (*models.Governance, error)
	ReplaceGovernanceRoles(ctx context.Context, orgID, systemID uuid.UUID, roles []models.GovernanceRole) (*models.Governance, error)
	GetGovernanceBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.Governance, error)
	DeleteGovernance(ctx context.Context, orgID, systemID uuid.UUID) error

	CreateTechnicalDocumentation(ctx context.Context, orgID, systemID uuid.UUID, doc *models.TechnicalDocumentation, userID *uuid.UUID) error
	GetTechnicalDocumentationBySystem(ctx context.Context, orgID, systemID uuid.UUID) (*models.TechnicalDocumentation, error)
	UpdateTechnicalDocumentation(ctx context.Context, orgID, systemID uuid.UUID, upd store.DocumentationUpdate, userID *uuid.UUID) (*models.TechnicalDocumentation, error)
	DeleteTechnicalDocumentation(ctx context.Context, orgID, systemID uuid.UUID) error

	CreateIncident(ctx context.Context, orgID uuid.UUID, inc *models.Incident) error
	ListIncidents(ctx context.Context, orgID uuid.UUID, filter store.IncidentFilter) ([]models.Incident, error)
	GetIncident(ctx context.Context, orgID, id uuid.UUID) (*models.Incident, error)
	UpdateIncident(ctx context.Context, orgID, id uuid.UUID, upd store.IncidentUpdate) (*models.Incident, error)

	LoadReadinessSnapshot(ctx context.Context, orgID, systemID uuid.UUID) (*scoring.ReadinessInput, error)
	LoadOrganizationSnapshots(ctx context.Context, orgID uuid.UUID) ([]scoring.ReadinessInput, error)
}

type Server struct {
	cfg    *config.Config
	router *chi.Mux
	store  Store
	http   *http.Server
	logger *slog.Logger

	authService *auth.Service

	scheduler      *scheduler.Scheduler
	schedulerStore scheduler.Store

	reportGenerator *reports.Generator

	// exports and exportWorker are nil when redis is not configured.
	exports      *queue.Queue
	exportWorker *queue.Worker

	notifier *notifications.Service

	closers []func() error
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(cfg *config.Config, opts ...ServerOption) (*Server, error) {
	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		store:   st,
		logger:  slog.Default(),
		closers: []func() error{st.Close},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.authService = auth.NewService(auth.Config{
		JWTSecret:          cfg.Auth.JWTSecret,
		AccessTokenExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
	}, auth.NewPostgresUserStore(st.DB()))

	s.notifier = notifications.NewService(notifications.Config{
		MinSeverity: cfg.Notifications.MinSeverity,
		Slack: notifications.SlackConfig{
			Enabled:    cfg.Notifications.Slack.Enabled,
			WebhookURL: cfg.Notifications.Slack.WebhookURL,
			Channel:    cfg.Notifications.Slack.Channel,
			IconEmoji:  ":scales:",
		},
		Email: notifications.EmailConfig{
			Enabled:  cfg.Notifications.Email.Enabled,
			SMTPHost: cfg.Notifications.Email.SMTPHost,
			SMTPPort: cfg.Notifications.Email.SMTPPort,
			Username: cfg.Notifications.Email.Username,
			Password: cfg.Notifications.Email.Password,
			From:     cfg.Notifications.Email.From,
			To:       cfg.Notifications.Email.To,
		},
	}, s.logger)

	s.schedulerStore = scheduler.NewPostgresStore(st.DB())
	s.scheduler = scheduler.NewScheduler(s.schedulerStore, s.logger)
	(&scheduler.Handlers{
		Source:   st,
		Notifier: s.notifier,
		Tokens:   s.authService,
		Logger:   s.logger,
	}).Register(s.scheduler)

	converter, err := reports.NewConverter(cfg.Documents.Converter, cfg.Documents.SofficePath, cfg.Documents.ConversionTimeout)
	if err != nil {
		return nil, fmt.Errorf("initializing document converter: %w", err)
	}
	s.reportGenerator = reports.NewGenerator(st, reports.NewExporter(converter, s.logger), cfg.Documents.IssuerName)

	if cfg.Redis.Enabled {
		q, err := queue.New(queue.Config{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			ResultTTL: cfg.Exports.ResultTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing export queue: %w", err)
		}
		s.exports = q
		s.exportWorker = queue.NewWorker(queue.WorkerConfig{
			Queue:       q,
			Generator:   s.reportGenerator,
			Concurrency: cfg.Exports.Workers,
			Logger:      s.logger,
		})
		s.closers = append(s.closers, q.Close)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(s.corsMiddleware())
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	allowOrigin := s.cfg.Server.CORSAllowOrigin
	if allowOrigin == "" {
		allowOrigin = "*"
		s.logger.Warn("CORS Allow-Origin set to '*' - configure server.cors_allow_origin in production")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	writers := auth.RequireRole(auth.WriterRoles...)
	admins := auth.RequireRole(auth.RoleAdmin)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.signup)
		r.Post("/auth/login", s.login)
		r.Post("/auth/refresh", s.refresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authService.Middleware)

			r.Post("/auth/logout", s.logout)
			r.Get("/auth/me", s.getCurrentUser)

			r.Route("/users", func(r chi.Router) {
				r.Use(admins)
				r.Get("/", s.listUsers)
				r.Post("/", s.createUser)
				r.Delete("/{userID}", s.deleteUser)
			})

			r.Route("/systems", func(r chi.Router) {
				r.Get("/", s.listSystems)
				r.With(writers).Post("/", s.createSystem)

				r.Route("/{systemID}", func(r chi.Router) {
					r.Get("/", s.getSystem)
					r.With(writers).Put("/", s.updateSystem)
					r.With(writers).Delete("/", s.deleteSystem)

					r.Get("/classification", s.getClassification)
					r.With(writers).Post("/classification", s.createClassification)
					r.With(writers).Delete("/classification", s.deleteClassification)

					r.Get("/gap-assessment", s.getSystemGapAssessment)
					r.With(writers).Post("/gap-assessment", s.createGapAssessment)

					r.Get("/risk-register", s.getSystemRiskRegister)
					r.With(writers).Post("/risk-register", s.createRiskRegister)

					r.Get("/governance", s.getGovernance)
					r.With(writers).Post("/governance", s.createGovernance)
					r.With(writers).Put("/governance", s.replaceGovernance)
					r.With(writers).Delete("/governance", s.deleteGovernance)

					r.Get("/technical-documentation", s.getTechnicalDocumentation)
					r.Get("/technical-documentation/export", s.exportTechnicalDocumentation)
					r.With(writers).Post("/technical-documentation", s.createTechnicalDocumentation)
					r.With(writers).Patch("/technical-documentation", s.updateTechnicalDocumentation)
					r.With(writers).Delete("/technical-documentation", s.deleteTechnicalDocumentation)
				})
			})

			r.Route("/gap-assessments", func(r chi.Router) {
				r.Get("/", s.listGapAssessments)
				r.Get("/{gapID}", s.getGapAssessment)
				r.Get("/{gapID}/export", s.exportGapAssessment)
				r.With(writers).Post("/{gapID}/recompute", s.recomputeGapAssessment)
				r.With(writers).Delete("/{gapID}", s.deleteGapAssessment)
			})

			r.Route("/requirements/{requirementID}", func(r chi.Router) {
				r.With(writers).Patch("/", s.updateRequirement)
				r.Get("/evidence", s.listEvidence)
				r.With(writers).Post("/evidence", s.createEvidence)
			})
			r.With(writers).Delete("/evidence/{evidenceID}", s.deleteEvidence)

			r.Route("/risk-registers/{registerID}", func(r chi.Router) {
				r.Get("/", s.getRiskRegister)
				r.Get("/export", s.exportRiskRegister)
				r.With(writers).Post("/risks", s.createRisk)
			})

			r.Route("/risks/{riskID}", func(r chi.Router) {
				r.Get("/", s.getRisk)
				r.With(writers).Patch("/", s.updateRisk)
				r.With(writers).Delete("/", s.deleteRisk)
				r.With(writers).Post("/mitigation-actions", s.createMitigationAction)
			})

			r.Route("/mitigation-actions", func(r chi.Router) {
				r.Get("/overdue", s.listOverdueMitigations)
				r.With(writers).Patch("/{actionID}", s.updateMitigationAction)
				r.With(writers).Delete("/{actionID}", s.deleteMitigationAction)
			})

			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", s.listIncidents)
				r.With(writers).Post("/", s.createIncident)
				r.Get("/{incidentID}", s.getIncident)
				r.With(writers).Patch("/{incidentID}", s.updateIncident)
			})

			r.Route("/certification/{systemID}", func(r chi.Router) {
				r.Get("/readiness", s.getReadiness)
				r.Get("/export", s.exportCertificate)
			})
			r.Get("/export/executive-summary", s.exportExecutiveSummary)

			r.Route("/exports", func(r chi.Router) {
				r.Post("/", s.createExportJob)
				r.Get("/{jobID}", s.getExportJob)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Use(admins)
				r.Get("/", s.listScheduledJobs)
				r.Post("/", s.createScheduledJob)
				r.Get("/{jobID}", s.getScheduledJob)
				r.Put("/{jobID}", s.updateScheduledJob)
				r.Delete("/{jobID}", s.deleteScheduledJob)
				r.Post("/{jobID}/run", s.runScheduledJobNow)
				r.Get("/{jobID}/executions", s.getJobExecutions)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Use(admins)
				r.Get("/settings", s.getNotificationSettings)
				r.Put("/settings", s.updateNotificationSettings)
				r.Post("/test", s.testNotification)
			})
		})
	})
}

func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Scheduler.Enabled {
		if err := s.scheduler.EnsureCleanupJob(ctx, tokenCleanupSchedule); err != nil {
			s.logger.Error("failed to create token cleanup job", "error", err)
		}
		if err := s.scheduler.Start(ctx); err != nil {
			s.logger.Error("failed to start scheduler", "error", err)
		}
	}

	if s.exportWorker != nil {
		if err := s.exportWorker.Start(ctx); err != nil {
			s.logger.Error("failed to start export worker", "error", err)
		}
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.shutdownBackground()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.http.Shutdown(shutdownCtx)
		s.shutdownBackground()
		return err
	}
}

func (s *Server) shutdownBackground() {
	if s.cfg.Scheduler.Enabled {
		<-s.scheduler.Stop().Done()
	}
	if s.exportWorker != nil {
		s.exportWorker.Stop()
	}
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("closing resource", "error", err)
		}
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "db_unavailable", "Database not available")
		return
	}
	if s.exports != nil {
		if err := s.exports.Ping(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, "redis_unavailable", "Export queue not available")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
