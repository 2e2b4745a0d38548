package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ananthlk/Mobius-OS-sub002/internal/config"
	"github.com/ananthlk/Mobius-OS-sub002/internal/llm"
	"github.com/ananthlk/Mobius-OS-sub002/internal/logging"
	"github.com/ananthlk/Mobius-OS-sub002/internal/pipeline"
	"github.com/ananthlk/Mobius-OS-sub002/internal/propensity"
	"github.com/ananthlk/Mobius-OS-sub002/internal/scoring"
	"github.com/ananthlk/Mobius-OS-sub002/internal/server"
	"github.com/ananthlk/Mobius-OS-sub002/internal/store"
	"github.com/ananthlk/Mobius-OS-sub002/internal/tools"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "mobius",
	Short: "Mobius assesses healthcare insurance eligibility per conversation turn",
	Long: `Mobius runs the per-turn eligibility pipeline: it merges patient data and
user statements into a case, verifies coverage with the payer, scores the
four-state eligibility distribution with time-adjusted risks, and plans the
next questions to ask.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(verbose)

		var err error
		cfg, err = config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load configuration")
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Msg("Mobius starting")
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the eligibility HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
		}
		defer func() { _ = st.Close() }()

		fixtures := loadFixtures()
		source := tools.NewFixtureSource(fixtures)
		facade := tools.NewFacade(tools.Config{
			Demographics: source,
			Insurance:    source,
			Visits:       source,
			Coverage:     source,
			Timeout:      cfg.ToolTimeout,
		})

		interp, planner := buildLLM()

		pipe := pipeline.New(pipeline.Config{
			Store:       st,
			Tools:       facade,
			Interpreter: interp,
			Planner:     planner,
			Scorer:      scoring.NewScorer(propensity.NewOracle(st.DB()), st),
			Workers:     cfg.ScoringWorkers,
		})

		srv := server.New(server.Config{
			Store:       st,
			Pipeline:    pipe,
			Version:     Version,
			CORSOrigins: cfg.CORSOrigins,
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := srv.Run(ctx, cfg.Addr()); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
		log.Info().Msg("Mobius stopped")
	},
}

func loadFixtures() []tools.PatientFixture {
	if cfg.FixtureDir != "" {
		fixtures, err := tools.LoadFixtures(cfg.FixtureDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", cfg.FixtureDir).Msg("Failed to load patient fixtures")
		}
		log.Info().Int("patients", len(fixtures)).Str("dir", cfg.FixtureDir).Msg("Loaded patient fixtures")
		return fixtures
	}
	log.Info().Msg("No fixture dir configured, using the built-in demo panel")
	return tools.DefaultFixtures(time.Now().UTC())
}

func buildLLM() (llm.Interpreter, llm.Planner) {
	if cfg.LLM.Mode == "http" {
		opts := llm.Options{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		}
		log.Info().Str("base_url", cfg.LLM.BaseURL).Str("model", cfg.LLM.Model).Msg("Using HTTP LLM backend")
		return llm.NewHTTPInterpreter(opts), llm.NewHTTPPlanner(opts)
	}
	log.Info().Msg("Using deterministic mock LLM backend")
	return llm.NewMockInterpreter(), llm.NewMockPlanner()
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(serveCmd)
}
