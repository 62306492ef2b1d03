package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"insightlearn/internal/model"
)

// ErrLessonNotFound is returned when a lesson id does not resolve.
var ErrLessonNotFound = errors.New("lesson not found")

// CatalogDatabase is the pipeline's narrow view of the course catalog:
// backlog discovery and artifact-reference bookkeeping. Results are
// ordered oldest-created-first so long-backlogged lessons are served
// before newly published ones.
type CatalogDatabase interface {
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
	FindLessonsMissingTranscript(ctx context.Context) ([]*model.Lesson, error)
	FindLessonsMissingSubtitle(ctx context.Context) ([]*model.Lesson, error)
	SetLessonTranscript(ctx context.Context, id, artifactRef string) error
	SetLessonSubtitle(ctx context.Context, id, trackRef string) error
}

func (m *mongoDB) GetLesson(ctx context.Context, id string) (*model.Lesson, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var lesson model.Lesson
	err = m.lessonsCol.FindOne(ctx, bson.M{"_id": objectID}).Decode(&lesson)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrLessonNotFound
		}
		log.Error().Err(err).Str("lessonID", id).Msg("Failed to get lesson")
		return nil, err
	}

	return &lesson, nil
}

// FindLessonsMissingTranscript returns every lesson that has source
// media but no transcript artifact, FIFO by creation time.
func (m *mongoDB) FindLessonsMissingTranscript(ctx context.Context) ([]*model.Lesson, error) {
	return m.findBacklog(ctx, "transcript_ref")
}

// FindLessonsMissingSubtitle returns every lesson that has source
// media but no active subtitle track, FIFO by creation time.
func (m *mongoDB) FindLessonsMissingSubtitle(ctx context.Context) ([]*model.Lesson, error) {
	return m.findBacklog(ctx, "subtitle_ref")
}

func (m *mongoDB) findBacklog(ctx context.Context, artifactField string) ([]*model.Lesson, error) {
	filter := bson.M{
		"media_ref": bson.M{"$nin": bson.A{nil, ""}},
		"$or": bson.A{
			bson.M{artifactField: bson.M{"$exists": false}},
			bson.M{artifactField: ""},
		},
	}

	opts := options.Find().SetSort(bson.M{"created_at": 1})

	cursor, err := m.lessonsCol.Find(ctx, filter, opts)
	if err != nil {
		log.Error().Err(err).Str("artifact", artifactField).Msg("Failed to query lesson backlog")
		return nil, err
	}
	defer cursor.Close(ctx)

	var lessons []*model.Lesson
	if err := cursor.All(ctx, &lessons); err != nil {
		log.Error().Err(err).Msg("Failed to decode lessons")
		return nil, err
	}

	return lessons, nil
}

// SetLessonTranscript records the transcript artifact reference.
func (m *mongoDB) SetLessonTranscript(ctx context.Context, id, artifactRef string) error {
	return m.setLessonField(ctx, id, "transcript_ref", artifactRef)
}

// SetLessonSubtitle records the subtitle track reference.
func (m *mongoDB) SetLessonSubtitle(ctx context.Context, id, trackRef string) error {
	return m.setLessonField(ctx, id, "subtitle_ref", trackRef)
}

func (m *mongoDB) setLessonField(ctx context.Context, id, field, value string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	result, err := m.lessonsCol.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{field: value, "updated_at": time.Now()}})
	if err != nil {
		log.Error().Err(err).Str("lessonID", id).Str("field", field).Msg("Failed to update lesson artifact ref")
		return err
	}
	if result.MatchedCount == 0 {
		return ErrLessonNotFound
	}

	log.Debug().Str("lessonID", id).Str("field", field).Str("ref", value).Msg("Updated lesson artifact ref")
	return nil
}
