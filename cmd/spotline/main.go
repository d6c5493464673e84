package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spotline/spotline/internal/api"
	"github.com/spotline/spotline/internal/config"
	"github.com/spotline/spotline/internal/domain/daylight"
	"github.com/spotline/spotline/internal/ingest"
	"github.com/spotline/spotline/internal/llm"
	"github.com/spotline/spotline/internal/persistence"
	"github.com/spotline/spotline/internal/persistence/postgres"
	"github.com/spotline/spotline/internal/prompt"
	"github.com/spotline/spotline/internal/queue"
	"github.com/spotline/spotline/internal/scheduler"
	"github.com/spotline/spotline/internal/scoring"
)

const (
	appName = "spotline"
	version = "v0.4.0"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Watersports forecast scoring service",
		Version: version,
		Long: `Spotline scores surf, wingfoil, and windsurfing forecasts 0-100 per
forecast slot using an LLM judge, with tide attribution, daylight
filtering, and per-user prompt personalization.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/spotline.yaml", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, scoring worker, and optional scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	scoreCmd := &cobra.Command{
		Use:   "score <spot-id>",
		Short: "Score the current forecast of one spot and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScoreOnce(cmd.Context(), configPath, args[0])
		},
	}

	rootCmd.AddCommand(serveCmd, scoreCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// buildPipeline wires the scoring stack shared by serve and score.
func buildPipeline(ctx context.Context, cfg *config.Config) (*persistence.Store, *scoring.Orchestrator, *scoring.Scorer, error) {
	db, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	store := postgres.NewStore(db)

	client := llm.NewClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		HTTPTimeout: cfg.LLM.HTTPTimeout,
	})
	builder := prompt.NewBuilder(prompt.BuiltinDefaults())
	classifier := daylight.NewClassifier(cfg.Location())

	scorer := scoring.NewScorer(store, client, builder, classifier)
	orch := scoring.NewOrchestrator(scorer, store, classifier, cfg.Scoring.Pace)
	return store, orch, scorer, nil
}

func buildQueue(cfg *config.Config) queue.Queue {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("no redis configured, using in-process scoring queue")
		return queue.NewMemory(cfg.Scoring.QueueCapacity)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis scoring queue")
	return queue.NewRedis(client)
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg)
	log.Info().Str("version", version).Msg("spotline starting")

	store, orch, scorer, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	q := buildQueue(cfg)
	ingestSvc := ingest.New(store, q, cfg.Scoring.PersonalizationDelay)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		// Fetchers are deployment-specific; collectors push through the
		// API until one is wired here.
		sched = scheduler.New(store, ingestSvc, nil, nil, cfg.Scheduler.ScrapeInterval, cfg.Scheduler.TideInterval)
		go func() {
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("scheduler exited")
			}
		}()
	}

	hub := api.NewHub()
	scorer.SetNotifier(hub)

	worker := queue.NewWorker(q, orch, store)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scoring worker exited")
		}
	}()

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(store, ingestSvc, sched, hub).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("api listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		log.Info().Msg("spotline stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runScoreOnce scores a spot's current forecast synchronously. Useful for
// backfills and prompt iteration without the full service running.
func runScoreOnce(ctx context.Context, configPath, spotID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	store, orch, _, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	slots, err := store.Slots.CurrentSlots(ctx, spotID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to load current slots: %w", err)
	}
	if len(slots) == 0 {
		return fmt.Errorf("spot %s has no current forecast", spotID)
	}

	// The current view can mix generations: the latest scrape plus
	// today's stragglers from older ones. Score each generation with its
	// own scrape timestamp so none of the ids get filtered out.
	var total scoring.Summary
	for _, gen := range slotIDsByGeneration(slots) {
		summary, err := orch.ScoreForecastSlots(ctx, spotID, gen.scrapeTS, gen.slotIDs)
		if err != nil {
			return err
		}
		total.Success += summary.Success
		total.Failure += summary.Failure
		total.Skipped += summary.Skipped
		total.Total += summary.Total
	}
	log.Info().
		Int("success", total.Success).
		Int("failure", total.Failure).
		Int("skipped", total.Skipped).
		Msg("scoring run complete")
	return nil
}

type slotGeneration struct {
	scrapeTS int64
	slotIDs  []string
}

// slotIDsByGeneration splits a mixed slot view into per-scrape id lists,
// oldest generation first.
func slotIDsByGeneration(slots []persistence.ForecastSlot) []slotGeneration {
	byGen := map[int64][]string{}
	for _, s := range slots {
		byGen[s.ScrapeTS] = append(byGen[s.ScrapeTS], s.ID)
	}

	gens := make([]slotGeneration, 0, len(byGen))
	for ts, ids := range byGen {
		gens = append(gens, slotGeneration{scrapeTS: ts, slotIDs: ids})
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].scrapeTS < gens[j].scrapeTS })
	return gens
}
