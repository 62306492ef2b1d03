package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"insightlearn/internal/artifact"
	"insightlearn/internal/batch"
	"insightlearn/internal/cache"
	"insightlearn/internal/config"
	"insightlearn/internal/database"
	"insightlearn/internal/dispatch"
	"insightlearn/internal/rabbitmq"
	"insightlearn/internal/scheduler"
	"insightlearn/internal/translate"
	"insightlearn/internal/worker"
	"insightlearn/pkg/mt"
	"insightlearn/pkg/speech"
)

func main() {
	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)
	log.Info().Str("env", cfg.Env).Msg("Starting pipeline worker")

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer db.Close(context.Background())
	log.Info().Msg("MongoDB connection established")

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize redis cache connection")
	}
	defer redisCache.Close()
	log.Info().Msg("Redis connection established")

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbit.Close()
	log.Info().Msg("RabbitMQ connection established")

	store, err := artifact.NewStore(cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize artifact store")
	}
	if err := store.TestConnection(context.Background()); err != nil {
		log.Fatal().Err(err).Str("bucket", cfg.S3.Bucket).Msg("Failed to reach artifact store bucket")
	}
	log.Info().Str("bucket", cfg.S3.Bucket).Msg("Artifact store initialized")

	speechClient := speech.New(
		cfg.Speech.BaseURL,
		cfg.Speech.APIKey,
		time.Duration(cfg.Speech.TimeoutSec)*time.Second,
	)

	backends := make(map[string]translate.Backend, len(cfg.Translators))
	for _, t := range cfg.Translators {
		backends[t.Name] = mt.New(t.Name, t.BaseURL, t.APIKey, t.PricePerMillionChars, time.Duration(t.TimeoutSec)*time.Second)
		log.Info().
			Str("translator", t.Name).
			Float64("pricePerMillionChars", t.PricePerMillionChars).
			Msg("Translation backend registered")
	}

	sched := scheduler.New(db, db, rabbit, cfg.RabbitMQ.ExchangeName)

	processor := batch.NewProcessor(db, sched, batch.Options{
		GroupSize:   cfg.Pipeline.GroupSize,
		GroupPause:  cfg.Pipeline.GroupPause(),
		ReportDelay: cfg.Pipeline.ReportDelay(),
	})
	reporter := batch.NewReporter(db)

	registry := worker.NewRegistry(
		worker.NewTranscriptionWorker(speechClient, db, store, sched),
		worker.NewTranslationWorker(db, db, store, redisCache, backends, cfg.DefaultTranslator(), cfg.Pipeline.ChunkSize, cfg.Pipeline.LockTTL()),
		worker.NewSubtitleWorker(db, store),
		worker.NewTranscriptionScanWorker(processor),
		worker.NewSubtitleScanWorker(processor),
		worker.NewReportWorker(reporter),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := dispatch.New(db, rabbit, sched, registry, cfg.RabbitMQ.ExchangeName, cfg.Pipeline.CallTimeout())
	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start dispatcher")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	cancel()
	dispatcher.Stop()
	log.Info().Msg("Pipeline worker stopped")
}

func setupLogger(config config.LoggingConfig) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	switch config.Format {
	case "json":
		// JSON is the default for zerolog
	case "console", "combined":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	log.Logger = log.With().Timestamp().Logger()
}
