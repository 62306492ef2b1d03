package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"insightlearn/internal/config"
	"insightlearn/internal/model"
)

// Store persists the pipeline's derived artifacts. References returned
// here are object keys within the configured bucket and are treated as
// opaque by everything else.
type Store interface {
	SaveTranscript(ctx context.Context, lessonID string, segments []model.Segment) (string, error)
	LoadTranscript(ctx context.Context, ref string) ([]model.Segment, error)
	SaveTranslation(ctx context.Context, lessonID, targetLanguage string, segments []model.Segment, meta TranslationMeta) (string, error)
	SaveSubtitleTrack(ctx context.Context, lessonID, language, vttContent string) (string, error)
	TestConnection(ctx context.Context) error
}

// TranslationMeta is stored alongside a translation's segments.
type TranslationMeta struct {
	Translator    string  `json:"translator"`
	SegmentCount  int     `json:"segment_count"`
	CharCount     int     `json:"char_count"`
	EstimatedCost float64 `json:"estimated_cost"`
	TranslatedAt  string  `json:"translated_at"`
}

type transcriptDocument struct {
	LessonID string          `json:"lesson_id"`
	Segments []model.Segment `json:"segments"`
}

type translationDocument struct {
	LessonID       string          `json:"lesson_id"`
	TargetLanguage string          `json:"target_language"`
	Meta           TranslationMeta `json:"meta"`
	Segments       []model.Segment `json:"segments"`
}

type s3Store struct {
	s3     *s3.Client
	bucket string
	region string
}

// NewStore creates an S3-backed artifact store.
func NewStore(cfg config.S3Config) (Store, error) {
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg)

	return &s3Store{
		s3:     client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

func transcriptKey(lessonID string) string {
	return fmt.Sprintf("lessons/%s/transcript.json", lessonID)
}

func translationKey(lessonID, lang string) string {
	return fmt.Sprintf("lessons/%s/translations/%s.json", lessonID, lang)
}

func subtitleKey(lessonID, lang string) string {
	return fmt.Sprintf("lessons/%s/subtitles/%s.vtt", lessonID, lang)
}

func (s *s3Store) SaveTranscript(ctx context.Context, lessonID string, segments []model.Segment) (string, error) {
	doc := transcriptDocument{LessonID: lessonID, Segments: segments}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}

	key := transcriptKey(lessonID)
	if err := s.upload(ctx, key, body, "application/json"); err != nil {
		return "", err
	}

	log.Info().
		Str("lessonID", lessonID).
		Str("key", key).
		Int("segments", len(segments)).
		Msg("Saved transcript artifact")
	return key, nil
}

func (s *s3Store) LoadTranscript(ctx context.Context, ref string) ([]model.Segment, error) {
	output, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		log.Error().Err(err).Str("key", ref).Msg("Failed to get transcript artifact")
		return nil, err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript body: %w", err)
	}

	var doc transcriptDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse transcript %s: %w", ref, err)
	}

	return doc.Segments, nil
}

func (s *s3Store) SaveTranslation(ctx context.Context, lessonID, targetLanguage string, segments []model.Segment, meta TranslationMeta) (string, error) {
	if meta.TranslatedAt == "" {
		meta.TranslatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	doc := translationDocument{
		LessonID:       lessonID,
		TargetLanguage: targetLanguage,
		Meta:           meta,
		Segments:       segments,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal translation: %w", err)
	}

	key := translationKey(lessonID, targetLanguage)
	if err := s.upload(ctx, key, body, "application/json"); err != nil {
		return "", err
	}

	log.Info().
		Str("lessonID", lessonID).
		Str("lang", targetLanguage).
		Str("key", key).
		Int("segments", len(segments)).
		Msg("Saved translation artifact")
	return key, nil
}

func (s *s3Store) SaveSubtitleTrack(ctx context.Context, lessonID, language, vttContent string) (string, error) {
	key := subtitleKey(lessonID, language)
	if err := s.upload(ctx, key, []byte(vttContent), "text/vtt"); err != nil {
		return "", err
	}

	log.Info().
		Str("lessonID", lessonID).
		Str("lang", language).
		Str("key", key).
		Msg("Saved subtitle track")
	return key, nil
}

func (s *s3Store) upload(ctx context.Context, key string, body []byte, contentType string) error {
	uploader := manager.NewUploader(s.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to upload artifact")
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return nil
}

func (s *s3Store) TestConnection(ctx context.Context) error {
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Msg("S3 artifact store connection test")
	return err
}
