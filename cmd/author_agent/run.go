package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/resume-author/internal/bundles"
	"github.com/jonathan/resume-author/internal/config"
	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/fetch"
	"github.com/jonathan/resume-author/internal/gates"
	"github.com/jonathan/resume-author/internal/llm"
	"github.com/jonathan/resume-author/internal/observability"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/pipeline/stages"
	"github.com/jonathan/resume-author/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the authoring pipeline headless",
	Long: `Runs the full authoring pipeline without a server: intake -> research -> gap analysis -> interview -> blueprint -> sections -> quality -> export.

Every review gate is force-advanced with a default decision, so the output is a first draft meant for later review. Configuration can be loaded from a JSON file using --config; flags override config values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath  string
	runResumePath  string
	runJobPath     string
	runJobURL      string
	runOutPath     string
	runAPIKey      string
	runDatabaseURL string
	runUseBrowser  bool
	runVerbose     bool
)

func init() {
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	runCommand.Flags().StringVarP(&runResumePath, "resume", "r", "", "Path to the current resume text file (required)")
	runCommand.Flags().StringVarP(&runJobPath, "job", "j", "", "Path to job posting text file (mutually exclusive with --job-url)")
	runCommand.Flags().StringVar(&runJobURL, "job-url", "", "URL to fetch the job posting from (mutually exclusive with --job)")
	runCommand.Flags().StringVarP(&runOutPath, "out", "o", "resume.md", "Path to write the exported resume to")
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API key (optional, defaults to GEMINI_API_KEY env var)")
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runCommand.Flags().BoolVar(&runUseBrowser, "use-browser", false, "Use headless browser for SPA postings (requires Chrome)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print stage details while the run progresses")

	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	intake, err := loadIntakeInput()
	if err != nil {
		return err
	}

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var llmClient llm.Client
	if cfg.APIKey != "" {
		llmClient, err = llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
		defer llmClient.Close() //nolint:errcheck
	}

	policy := bundles.DefaultPolicy()
	if cfg.ReviewStrategy != "" {
		policy.Strategy = bundles.Strategy(cfg.ReviewStrategy)
	}
	if cfg.AutoApproveSupporting {
		policy.AutoApprove[types.BundleSupporting] = true
	}

	bus := events.NewBus()
	ctrl := pipeline.NewController(store, bus, gates.NewManager(store, bus), stages.Registry(stages.Deps{
		LLM:                llmClient,
		Fetcher:            fetch.NewFetcher(cfg.UseBrowser),
		Policy:             policy,
		ReadinessThreshold: cfg.ReadinessThreshold,
	}))

	run, err := ctrl.CreateRun(ctx)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	if err := store.SaveArtifact(ctx, run.ID, stages.ArtifactIntake, intake); err != nil {
		return fmt.Errorf("failed to save intake input: %w", err)
	}

	printer := observability.NewPrinter(os.Stdout)
	if err := drive(ctx, ctrl, run.ID, printer); err != nil {
		return err
	}

	final, err := store.GetTextArtifact(ctx, run.ID, stages.ArtifactResumeFinal)
	if err != nil {
		return fmt.Errorf("failed to load exported resume: %w", err)
	}
	if err := os.WriteFile(runOutPath, []byte(final), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", runOutPath, err)
	}

	if runVerbose {
		if raw, err := store.GetArtifact(ctx, run.ID, stages.ArtifactQuality); err == nil {
			var report stages.QualityReport
			if json.Unmarshal(raw, &report) == nil {
				printer.PrintQualityReport(&report)
			}
		}
	}
	fmt.Printf("Resume written to %s\n", runOutPath)
	return nil
}

// drive kicks the pipeline and force-advances every gate until the run
// reaches a terminal state. Headless mode has nobody to answer gates, so
// each one takes its default decision.
func drive(ctx context.Context, ctrl *pipeline.Controller, runID uuid.UUID, printer *observability.Printer) error {
	if err := ctrl.Kick(ctx, runID); err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	for {
		snap, err := ctrl.Snapshot(ctx, runID)
		if err != nil {
			return err
		}
		if runVerbose {
			printer.PrintSnapshot(snap)
		}

		switch snap.Run.Status {
		case types.StatusComplete:
			return nil
		case types.StatusError:
			return fmt.Errorf("run failed: %s", snap.Run.ErrorMessage)
		case types.StatusBlocked:
			if err := ctrl.ForceAdvance(ctx, runID); err != nil {
				return fmt.Errorf("failed to advance past gate: %w", err)
			}
		default:
			return fmt.Errorf("run stalled in state %q", snap.Run.Status)
		}
	}
}

func loadRunConfig() (config.Config, error) {
	var cfg config.Config
	if runConfigPath != "" {
		loaded, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}
	cfg.FromEnv()
	cfg = cfg.MergeWithDefaults(config.Defaults())

	if runAPIKey != "" {
		cfg.APIKey = runAPIKey
	}
	if runDatabaseURL != "" {
		cfg.DatabaseURL = runDatabaseURL
	}
	if runUseBrowser {
		cfg.UseBrowser = true
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadIntakeInput() (stages.IntakeInput, error) {
	var intake stages.IntakeInput
	if runResumePath == "" {
		return intake, fmt.Errorf("--resume is required")
	}
	if (runJobPath == "") == (runJobURL == "") {
		return intake, fmt.Errorf("exactly one of --job or --job-url is required")
	}

	resume, err := os.ReadFile(runResumePath)
	if err != nil {
		return intake, fmt.Errorf("failed to read resume file: %w", err)
	}
	intake.ResumeText = string(resume)

	if runJobPath != "" {
		posting, err := os.ReadFile(runJobPath)
		if err != nil {
			return intake, fmt.Errorf("failed to read job posting file: %w", err)
		}
		intake.PostingText = string(posting)
	} else {
		intake.PostingURL = runJobURL
	}
	return intake, nil
}

func openStore(ctx context.Context, cfg config.Config) (db.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return db.NewMemStore(), func() {}, nil
	}
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return database, database.Close, nil
}
