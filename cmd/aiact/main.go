package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aiact/compliance/internal/api"
	"github.com/aiact/compliance/internal/config"
	"github.com/aiact/compliance/internal/metrics"
	"github.com/aiact/compliance/internal/reports"
	"github.com/aiact/compliance/internal/scoring"
	"github.com/aiact/compliance/internal/store"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	orgFlag    string
	targetFlag string
	formatFlag string
	outputFlag string
	allowDraft bool
	logger     = slog.New(slog.NewJSONHandler(os.Stderr, nil))
)

var (
	rootCmd = &cobra.Command{
		Use:          "aiact",
		Short:        "EU AI Act compliance scoring and certification readiness",
		SilenceUsage: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	}
	readinessCmd = &cobra.Command{
		Use:   "readiness [org-id] [system-id]",
		Short: "Evaluate certification readiness of an AI system",
		Long:  `Loads the compliance records of one AI system and prints the readiness verdict as JSON.`,
		Args:  cobra.ExactArgs(2),
		RunE:  runReadiness,
	}
	exportCmd = &cobra.Command{
		Use:   "export [certificate|gap_assessment|risk_register|executive_summary|technical_documentation]",
		Short: "Generate a compliance document",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aiact %s (built %s)\n", version, buildTime)
		},
	}
)

func init() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to the configuration file")

	exportCmd.Flags().StringVar(&orgFlag, "org", "", "organization ID")
	exportCmd.Flags().StringVar(&targetFlag, "target", "", "system, gap assessment or risk register ID")
	exportCmd.Flags().StringVarP(&formatFlag, "format", "f", string(reports.FormatPDF), "output format: pdf, docx or csv")
	exportCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output file (defaults to the generated file name)")
	exportCmd.Flags().BoolVar(&allowDraft, "allow-draft", false, "issue a draft certificate when the system is not ready")
	_ = exportCmd.MarkFlagRequired("org")

	rootCmd.AddCommand(serveCmd, migrateCmd, readinessCmd, exportCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	server, err := api.NewServer(cfg, api.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx)
}

func openStore() (*config.Config, *store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(store.Config{
		DSN:          cfg.Database.DSN(),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, st, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	logger.Info("schema up to date")
	return nil
}

func runReadiness(cmd *cobra.Command, args []string) error {
	orgID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid organization ID: %w", err)
	}
	systemID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid system ID: %w", err)
	}

	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	in, err := st.LoadReadinessSnapshot(cmd.Context(), orgID, systemID)
	if err != nil {
		return err
	}
	result, err := scoring.ValidateReadiness(*in)
	metrics.ObserveReadiness(result, err)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runExport(cmd *cobra.Command, args []string) error {
	reportType := reports.ReportType(args[0])
	if !reportType.Valid() {
		return fmt.Errorf("unknown report type %q", args[0])
	}
	orgID, err := uuid.Parse(orgFlag)
	if err != nil {
		return fmt.Errorf("invalid organization ID: %w", err)
	}
	var targetID uuid.UUID
	if reportType != reports.ReportTypeExecutiveSummary {
		if targetID, err = uuid.Parse(targetFlag); err != nil {
			return fmt.Errorf("invalid target ID: %w", err)
		}
	}

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	converter, err := reports.NewConverter(cfg.Documents.Converter, cfg.Documents.SofficePath, cfg.Documents.ConversionTimeout)
	if err != nil {
		return err
	}
	generator := reports.NewGenerator(st, reports.NewExporter(converter, logger), cfg.Documents.IssuerName)

	report, err := generator.Generate(cmd.Context(), &reports.ReportRequest{
		Type:           reportType,
		Format:         reports.ReportFormat(formatFlag),
		OrganizationID: orgID,
		TargetID:       targetID,
		AllowDraft:     allowDraft,
	})
	if err != nil {
		return err
	}

	out := outputFlag
	if out == "" {
		out = report.Filename
	}
	if err := os.WriteFile(out, report.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	logger.Info("report written", "file", out, "type", report.Type, "draft", report.Draft, "bytes", len(report.Data))
	return nil
}
