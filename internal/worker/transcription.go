package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/model"
	"insightlearn/pkg/speech"
)

const transcriptionWorkerName = "Transcription Worker"

// SpeechBackend is the speech-to-text contract the worker consumes.
type SpeechBackend interface {
	Transcribe(ctx context.Context, mediaRef, languageHint string) (*speech.Transcript, error)
}

// TranscriptLessonStore is the catalog slice the transcription worker
// needs.
type TranscriptLessonStore interface {
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
	SetLessonTranscript(ctx context.Context, id, artifactRef string) error
}

// TranscriptSaver persists the transcript artifact.
type TranscriptSaver interface {
	SaveTranscript(ctx context.Context, lessonID string, segments []model.Segment) (string, error)
}

// Chainer registers follow-up jobs.
type Chainer interface {
	ContinueWith(ctx context.Context, parentID primitive.ObjectID, kind model.JobKind, lessonID string, params model.JobParams) (primitive.ObjectID, error)
}

// TranscriptionWorker runs one speech-to-text job for one lesson and
// chains a subtitle job behind it.
type TranscriptionWorker struct {
	speech  SpeechBackend
	catalog TranscriptLessonStore
	store   TranscriptSaver
	chain   Chainer
}

// NewTranscriptionWorker wires the transcription worker.
func NewTranscriptionWorker(backend SpeechBackend, catalog TranscriptLessonStore, store TranscriptSaver, chain Chainer) *TranscriptionWorker {
	return &TranscriptionWorker{
		speech:  backend,
		catalog: catalog,
		store:   store,
		chain:   chain,
	}
}

func (w *TranscriptionWorker) Kind() model.JobKind { return model.KindTranscription }

func (w *TranscriptionWorker) Name() string { return transcriptionWorkerName }

func (w *TranscriptionWorker) Execute(ctx context.Context, job *model.Job) error {
	lesson, err := w.catalog.GetLesson(ctx, job.LessonID)
	if err != nil {
		return fmt.Errorf("failed to load lesson %s: %w", job.LessonID, err)
	}

	if lesson.TranscriptRef != "" {
		// Raced by a manually triggered run; the artifact exists, so
		// the job's goal is met.
		log.Info().
			Str("lessonId", job.LessonID).
			Str("transcriptRef", lesson.TranscriptRef).
			Msg("Transcript already present, nothing to do")
		return nil
	}

	if !lesson.HasMedia() {
		return model.Permanent(fmt.Errorf("lesson %s has no source media", job.LessonID))
	}

	languageHint := job.Params.Language
	if languageHint == "" {
		languageHint = lesson.Language
	}

	transcript, err := w.speech.Transcribe(ctx, lesson.MediaRef, languageHint)
	if err != nil {
		var apiErr *speech.APIError
		if errors.As(err, &apiErr) && apiErr.Permanent() {
			return model.Permanent(fmt.Errorf("transcription rejected: %w", err))
		}
		return fmt.Errorf("transcription failed: %w", err)
	}

	segments := make([]model.Segment, len(transcript.Segments))
	for i, s := range transcript.Segments {
		segments[i] = model.Segment{
			Index:    i,
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Text:     s.Text,
		}
	}

	ref, err := w.store.SaveTranscript(ctx, job.LessonID, segments)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	if err := w.catalog.SetLessonTranscript(ctx, job.LessonID, ref); err != nil {
		return fmt.Errorf("failed to record transcript ref: %w", err)
	}

	// Caption composition follows once this job is finalized.
	subtitleLang := transcript.LanguageDetected
	if subtitleLang == "" {
		subtitleLang = languageHint
	}
	if _, err := w.chain.ContinueWith(ctx, job.ID, model.KindSubtitle, job.LessonID, model.JobParams{Language: subtitleLang}); err != nil {
		log.Error().
			Err(err).
			Str("lessonId", job.LessonID).
			Msg("Failed to chain subtitle job")
	}

	log.Info().
		Str("lessonId", job.LessonID).
		Str("languageDetected", transcript.LanguageDetected).
		Int("segments", len(segments)).
		Msg("Lesson transcribed")

	return nil
}
