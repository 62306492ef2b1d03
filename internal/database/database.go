package database

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"insightlearn/internal/config"
)

type Database interface {
	Health(ctx context.Context) error
	Close(ctx context.Context) error
	JobDatabase
	TranslationDatabase
	CatalogDatabase
}

type mongoDB struct {
	client *mongo.Client
	db     *mongo.Database

	jobsCol         *mongo.Collection
	translationsCol *mongo.Collection
	lessonsCol      *mongo.Collection
}

func New(cfg *config.Config) (Database, error) {
	clientOptions := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.MongoDB.Username,
			Password: cfg.MongoDB.Password,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}

	db := client.Database(cfg.MongoDB.DB)

	jobsCol := db.Collection("pipeline_jobs")
	jobIndexModels := []mongo.IndexModel{
		{
			// Index for status-based queries
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			// Index for continuation lookups
			Keys: bson.D{{Key: "parent_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}},
		},
		{
			// TTL index to auto-delete resolved jobs after six months
			Keys:    bson.D{{Key: "completed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(60 * 60 * 24 * 30 * 6),
		},
	}

	translationsCol := db.Collection("translations")
	translationIndexModels := []mongo.IndexModel{
		{
			// At most one record per (lesson, target language) pair
			Keys:    bson.D{{Key: "lesson_id", Value: 1}, {Key: "target_language", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}

	lessonsCol := db.Collection("lessons")
	lessonIndexModels := []mongo.IndexModel{
		{
			// Backlog scans serve the oldest lessons first
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "transcript_ref", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "subtitle_ref", Value: 1}},
		},
	}

	if _, err := jobsCol.Indexes().CreateMany(ctx, jobIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "pipeline_jobs").Msg("Error creating indexes")
	}
	if _, err := translationsCol.Indexes().CreateMany(ctx, translationIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "translations").Msg("Error creating indexes")
	}
	if _, err := lessonsCol.Indexes().CreateMany(ctx, lessonIndexModels); err != nil {
		log.Warn().Err(err).Str("Collection", "lessons").Msg("Error creating indexes")
	}

	return &mongoDB{
		client:          client,
		db:              db,
		jobsCol:         jobsCol,
		translationsCol: translationsCol,
		lessonsCol:      lessonsCol,
	}, nil
}

func (m *mongoDB) Health(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		log.Error().Err(err).Msg("MongoDB ping failed")
		return err
	}
	return nil
}

func (m *mongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
