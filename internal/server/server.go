// Package server exposes the pipeline's small operational HTTP API:
// health, job status lookups and manual scan/translation triggers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/cache"
	"insightlearn/internal/config"
	"insightlearn/internal/database"
	"insightlearn/internal/model"
	"insightlearn/internal/rabbitmq"
)

// Submitter is the scheduler slice the API needs.
type Submitter interface {
	Enqueue(ctx context.Context, kind model.JobKind, lessonID string, params model.JobParams) (primitive.ObjectID, error)
}

type Server struct {
	db     database.Database
	cache  cache.Cache
	queue  rabbitmq.Client
	sched  Submitter
	config config.Config
}

func New(cfg config.Config, db database.Database, cache cache.Cache, rabbit rabbitmq.Client, sched Submitter) *http.Server {
	server := Server{
		db:     db,
		cache:  cache,
		queue:  rabbit,
		sched:  sched,
		config: cfg,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%v", cfg.Port),
		Handler:      server.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
