package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"insightlearn/internal/config"
	"insightlearn/internal/database"
	"insightlearn/internal/model"
	"insightlearn/internal/rabbitmq"
	"insightlearn/internal/scheduler"
)

// The scan daemon is deliberately thin: on each cron tick it submits
// one scan job to the durable queue and lets the worker fleet do the
// actual backlog walk, so a scan survives a daemon restart mid-run.
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
	log.Info().Str("env", cfg.Env).Msg("Starting scan scheduler")

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer db.Close(context.Background())

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbit.Close()

	sched := scheduler.New(db, db, rabbit, cfg.RabbitMQ.ExchangeName)

	c := cron.New()

	if _, err := c.AddFunc(cfg.Pipeline.ScanCron, submitScan(sched, model.KindTranscriptionScan)); err != nil {
		log.Fatal().Err(err).Str("cron", cfg.Pipeline.ScanCron).Msg("Invalid transcription scan schedule")
	}
	if _, err := c.AddFunc(cfg.Pipeline.SubtitleCron, submitScan(sched, model.KindSubtitleScan)); err != nil {
		log.Fatal().Err(err).Str("cron", cfg.Pipeline.SubtitleCron).Msg("Invalid subtitle scan schedule")
	}

	c.Start()
	log.Info().
		Str("transcriptionCron", cfg.Pipeline.ScanCron).
		Str("subtitleCron", cfg.Pipeline.SubtitleCron).
		Msg("Scan schedules registered")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	<-c.Stop().Done()
	log.Info().Msg("Scan scheduler stopped")
}

func submitScan(sched *scheduler.Scheduler, kind model.JobKind) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		jobID, err := sched.Enqueue(ctx, kind, "", model.JobParams{})
		if err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to submit scheduled scan")
			return
		}

		log.Info().
			Str("kind", string(kind)).
			Str("jobId", jobID.Hex()).
			Msg("Scheduled scan submitted")
	}
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
