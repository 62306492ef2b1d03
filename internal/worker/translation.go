package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"insightlearn/internal/artifact"
	"insightlearn/internal/cache"
	"insightlearn/internal/model"
	"insightlearn/internal/translate"
)

const translationWorkerName = "Translation Worker"

// ErrTranslationInFlight reports that another worker currently holds
// the (lesson, target language) pair. The job is retried later, which
// effectively queues it behind the in-flight run; if that run
// completes, the retry lands on the completed record and no-ops.
var ErrTranslationInFlight = errors.New("translation already in flight for this lesson and language")

// TranslationRecords is the translation-record slice of the job store.
type TranslationRecords interface {
	EnsureTranslation(ctx context.Context, lessonID, targetLanguage string) (*model.TranslationRecord, error)
	MarkTranslationProcessing(ctx context.Context, lessonID, targetLanguage string) error
	CompleteTranslation(ctx context.Context, rec *model.TranslationRecord) error
	FailTranslation(ctx context.Context, lessonID, targetLanguage, errorMsg string) error
}

// TranslationLessonStore is the catalog slice the translation worker
// needs.
type TranslationLessonStore interface {
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
}

// TranslationArtifacts loads source transcripts and saves translated
// output.
type TranslationArtifacts interface {
	LoadTranscript(ctx context.Context, ref string) ([]model.Segment, error)
	SaveTranslation(ctx context.Context, lessonID, targetLanguage string, segments []model.Segment, meta artifact.TranslationMeta) (string, error)
}

// Guard is the Redis surface of the worker: the lock serializing
// writers per (lesson, language) pair, plus invalidation of the
// record cached by the API layer once its status moves.
type Guard interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
}

// TranslationWorker translates one lesson's transcript into one target
// language using the chunked algorithm.
type TranslationWorker struct {
	records   TranslationRecords
	catalog   TranslationLessonStore
	artifacts TranslationArtifacts
	guard     Guard
	backends  map[string]translate.Backend
	fallback  string
	chunkSize int
	lockTTL   time.Duration
}

// NewTranslationWorker wires the translation worker. The backends map
// is keyed by translator name; defaultBackend names the one used when
// a job does not pick one.
func NewTranslationWorker(records TranslationRecords, catalog TranslationLessonStore, artifacts TranslationArtifacts, guard Guard, backends map[string]translate.Backend, defaultBackend string, chunkSize int, lockTTL time.Duration) *TranslationWorker {
	return &TranslationWorker{
		records:   records,
		catalog:   catalog,
		artifacts: artifacts,
		guard:     guard,
		backends:  backends,
		fallback:  defaultBackend,
		chunkSize: chunkSize,
		lockTTL:   lockTTL,
	}
}

func (w *TranslationWorker) Kind() model.JobKind { return model.KindTranslation }

func (w *TranslationWorker) Name() string { return translationWorkerName }

func (w *TranslationWorker) Execute(ctx context.Context, job *model.Job) error {
	targetLang := job.Params.TargetLanguage
	if targetLang == "" {
		return model.Permanent(fmt.Errorf("translation job %s has no target language", job.ID.Hex()))
	}

	lockKey := fmt.Sprintf("translate:%s:%s", job.LessonID, targetLang)
	acquired, err := w.guard.AcquireLock(ctx, lockKey, w.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire translation lock: %w", err)
	}
	if !acquired {
		return ErrTranslationInFlight
	}
	defer w.guard.ReleaseLock(ctx, lockKey)

	// Every status change below makes a cached copy of the record
	// stale, so evict it on the way out.
	defer w.guard.Delete(ctx, cache.TranslationRecordKey(job.LessonID, targetLang))

	rec, err := w.records.EnsureTranslation(ctx, job.LessonID, targetLang)
	if err != nil {
		return fmt.Errorf("failed to load translation record: %w", err)
	}

	if rec.Status == model.TranslationCompleted {
		// Idempotent skip: the pair already translated, nothing to
		// redo and no backend call to make.
		log.Info().
			Str("lessonId", job.LessonID).
			Str("lang", targetLang).
			Str("artifactRef", rec.ArtifactRef).
			Msg("Translation already completed, skipping")
		return nil
	}

	if err := w.records.MarkTranslationProcessing(ctx, job.LessonID, targetLang); err != nil {
		return fmt.Errorf("failed to mark translation processing: %w", err)
	}

	translated, stats, err := w.run(ctx, job, targetLang)
	if err != nil {
		w.records.FailTranslation(ctx, job.LessonID, targetLang, err.Error())
		return err
	}

	ref, err := w.artifacts.SaveTranslation(ctx, job.LessonID, targetLang, translated, artifact.TranslationMeta{
		Translator:    w.backendName(job),
		SegmentCount:  len(translated),
		CharCount:     stats.CharCount,
		EstimatedCost: stats.EstimatedCost,
	})
	if err != nil {
		w.records.FailTranslation(ctx, job.LessonID, targetLang, err.Error())
		return fmt.Errorf("failed to save translation: %w", err)
	}

	if err := w.records.CompleteTranslation(ctx, &model.TranslationRecord{
		LessonID:       job.LessonID,
		TargetLanguage: targetLang,
		ArtifactRef:    ref,
		SegmentCount:   len(translated),
		CharCount:      stats.CharCount,
		EstimatedCost:  stats.EstimatedCost,
	}); err != nil {
		return fmt.Errorf("failed to finalize translation record: %w", err)
	}

	log.Info().
		Str("lessonId", job.LessonID).
		Str("lang", targetLang).
		Int("segments", len(translated)).
		Float64("estimatedCost", stats.EstimatedCost).
		Msg("Lesson translated")

	return nil
}

func (w *TranslationWorker) run(ctx context.Context, job *model.Job, targetLang string) ([]model.Segment, translate.Stats, error) {
	lesson, err := w.catalog.GetLesson(ctx, job.LessonID)
	if err != nil {
		return nil, translate.Stats{}, fmt.Errorf("failed to load lesson %s: %w", job.LessonID, err)
	}

	if lesson.TranscriptRef == "" {
		return nil, translate.Stats{}, model.Permanent(fmt.Errorf("lesson %s has no transcript to translate", job.LessonID))
	}

	segments, err := w.artifacts.LoadTranscript(ctx, lesson.TranscriptRef)
	if err != nil {
		return nil, translate.Stats{}, fmt.Errorf("failed to load transcript: %w", err)
	}

	backend, ok := w.backends[w.backendName(job)]
	if !ok {
		return nil, translate.Stats{}, model.Permanent(fmt.Errorf("unknown translator %q", w.backendName(job)))
	}

	sourceLang := job.Params.Language
	if sourceLang == "" {
		sourceLang = lesson.Language
	}

	translated, stats := translate.Segments(ctx, backend, segments, sourceLang, targetLang, w.chunkSize)
	return translated, stats, nil
}

func (w *TranslationWorker) backendName(job *model.Job) string {
	if job.Params.Translator != "" {
		return job.Params.Translator
	}
	return w.fallback
}
