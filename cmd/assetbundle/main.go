package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxbase-eu/assetbundle/internal/api"
	"github.com/fluxbase-eu/assetbundle/internal/bundle"
	"github.com/fluxbase-eu/assetbundle/internal/cache"
	"github.com/fluxbase-eu/assetbundle/internal/config"
	"github.com/fluxbase-eu/assetbundle/internal/manifest"
	"github.com/fluxbase-eu/assetbundle/internal/observability"
	"github.com/fluxbase-eu/assetbundle/internal/scaling"
	"github.com/fluxbase-eu/assetbundle/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
	configFile  = flag.String("config", "", "Config file (default: assetbundle.yaml in ., ./config or /etc/assetbundle)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("assetbundle %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	observability.Version = Version

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting assetbundle")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := context.Background()

	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	}

	provider, err := storage.NewProvider(&cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	if err := storage.EnsureBuckets(ctx, provider, cfg.Bundle.SourceBucket, cfg.Bundle.OutputBucket); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure buckets")
	}

	store, err := cache.NewStore(ctx, &cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bundle cache")
	}
	defer store.Close()

	metrics := observability.NewMetrics()

	env, err := bundle.NewEnvironmentFromConfig(cfg, provider, store, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure bundles")
	}

	m, err := manifest.LoadIfExists(cfg.Bundle.Manifest)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load bundle manifest")
	}

	server := api.NewServer(cfg, api.Services{
		Env:      env,
		Manifest: m,
		Storage:  provider,
		Metrics:  metrics,
		Tracer:   tracer,
	})

	if _, err := server.ApplyManifest(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to build manifest bundles")
	}

	sweeper := cache.NewSweeper(store, func(ctx context.Context, entry *cache.Entry) bool {
		stale := env.Stale(ctx, entry)
		if stale {
			metrics.RecordSweep(1)
		}
		return stale
	})
	// Instances sharing a postgres cache elect one sweeper
	var elector *scaling.LeaderElector
	if pg, ok := store.(*cache.PostgresStore); ok {
		elector = scaling.NewLeaderElector(scaling.NewPostgresLocker(pg.Pool()), scaling.SweeperLockID, "bundle cache sweeper")
		elector.Start(nil, nil)
		sweeper.SetGate(elector.IsLeader)
	}
	if err := sweeper.Start(cfg.Cache.SweepSchedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule bundle cache sweep")
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting assetbundle server")
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sweeper.Stop()
	if elector != nil {
		elector.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
