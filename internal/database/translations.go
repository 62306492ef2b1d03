package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"insightlearn/internal/model"
)

// TranslationDatabase manages the per-(lesson, target language)
// translation records. The unique index on the pair plus the guarded
// updates here are what make duplicate requests collapse into one
// record instead of racing.
type TranslationDatabase interface {
	GetTranslation(ctx context.Context, lessonID, targetLanguage string) (*model.TranslationRecord, error)
	EnsureTranslation(ctx context.Context, lessonID, targetLanguage string) (*model.TranslationRecord, error)
	MarkTranslationProcessing(ctx context.Context, lessonID, targetLanguage string) error
	CompleteTranslation(ctx context.Context, rec *model.TranslationRecord) error
	FailTranslation(ctx context.Context, lessonID, targetLanguage, errorMsg string) error
}

// ErrTranslationNotFound is returned for an unknown (lesson, language) pair.
var ErrTranslationNotFound = errors.New("translation record not found")

func (m *mongoDB) GetTranslation(ctx context.Context, lessonID, targetLanguage string) (*model.TranslationRecord, error) {
	var rec model.TranslationRecord
	err := m.translationsCol.FindOne(ctx, bson.M{
		"lesson_id":       lessonID,
		"target_language": targetLanguage,
	}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTranslationNotFound
		}
		log.Error().Err(err).Str("lessonID", lessonID).Str("lang", targetLanguage).Msg("Failed to get translation record")
		return nil, err
	}

	return &rec, nil
}

// EnsureTranslation returns the record for the pair, creating a
// pending one on first request. A record that already completed is
// returned as-is so the caller can skip re-translation.
func (m *mongoDB) EnsureTranslation(ctx context.Context, lessonID, targetLanguage string) (*model.TranslationRecord, error) {
	now := time.Now()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var rec model.TranslationRecord
	err := m.translationsCol.FindOneAndUpdate(ctx,
		bson.M{"lesson_id": lessonID, "target_language": targetLanguage},
		bson.M{
			"$setOnInsert": bson.M{
				"lesson_id":       lessonID,
				"target_language": targetLanguage,
				"status":          model.TranslationPending,
				"created_at":      now,
			},
			"$set": bson.M{"updated_at": now},
		},
		opts,
	).Decode(&rec)
	if err != nil {
		log.Error().Err(err).Str("lessonID", lessonID).Str("lang", targetLanguage).Msg("Failed to ensure translation record")
		return nil, err
	}

	return &rec, nil
}

// MarkTranslationProcessing moves a pending or previously failed
// record into processing. A completed record is never reopened.
func (m *mongoDB) MarkTranslationProcessing(ctx context.Context, lessonID, targetLanguage string) error {
	result, err := m.translationsCol.UpdateOne(ctx,
		bson.M{
			"lesson_id":       lessonID,
			"target_language": targetLanguage,
			"status":          bson.M{"$in": bson.A{model.TranslationPending, model.TranslationFailed}},
		},
		bson.M{"$set": bson.M{"status": model.TranslationProcessing, "updated_at": time.Now()}})
	if err != nil {
		log.Error().Err(err).Str("lessonID", lessonID).Str("lang", targetLanguage).Msg("Failed to mark translation processing")
		return err
	}
	if result.MatchedCount == 0 {
		return ErrTranslationNotFound
	}

	return nil
}

// CompleteTranslation finalizes a record with its output reference and
// metrics.
func (m *mongoDB) CompleteTranslation(ctx context.Context, rec *model.TranslationRecord) error {
	now := time.Now()
	_, err := m.translationsCol.UpdateOne(ctx,
		bson.M{"lesson_id": rec.LessonID, "target_language": rec.TargetLanguage},
		bson.M{"$set": bson.M{
			"status":         model.TranslationCompleted,
			"artifact_ref":   rec.ArtifactRef,
			"segment_count":  rec.SegmentCount,
			"char_count":     rec.CharCount,
			"estimated_cost": rec.EstimatedCost,
			"error":          "",
			"updated_at":     now,
			"completed_at":   now,
		}})
	if err != nil {
		log.Error().Err(err).Str("lessonID", rec.LessonID).Str("lang", rec.TargetLanguage).Msg("Failed to complete translation record")
		return err
	}

	log.Debug().
		Str("lessonID", rec.LessonID).
		Str("lang", rec.TargetLanguage).
		Int("segments", rec.SegmentCount).
		Float64("cost", rec.EstimatedCost).
		Msg("Translation record completed")
	return nil
}

// FailTranslation marks the record failed unless it already
// completed. A failed record re-enters processing on the next attempt.
func (m *mongoDB) FailTranslation(ctx context.Context, lessonID, targetLanguage, errorMsg string) error {
	_, err := m.translationsCol.UpdateOne(ctx,
		bson.M{
			"lesson_id":       lessonID,
			"target_language": targetLanguage,
			"status":          bson.M{"$ne": model.TranslationCompleted},
		},
		bson.M{"$set": bson.M{
			"status":     model.TranslationFailed,
			"error":      errorMsg,
			"updated_at": time.Now(),
		}})
	if err != nil {
		log.Error().Err(err).Str("lessonID", lessonID).Str("lang", targetLanguage).Msg("Failed to mark translation failed")
		return err
	}

	return nil
}
