package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"insightlearn/internal/model"
	"insightlearn/internal/subtitle"
)

const subtitleWorkerName = "Subtitle Worker"

// SubtitleLessonStore is the catalog slice the subtitle worker needs.
type SubtitleLessonStore interface {
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
	SetLessonSubtitle(ctx context.Context, id, trackRef string) error
}

// SubtitleArtifacts loads transcripts and saves caption tracks.
type SubtitleArtifacts interface {
	LoadTranscript(ctx context.Context, ref string) ([]model.Segment, error)
	SaveSubtitleTrack(ctx context.Context, lessonID, language, vttContent string) (string, error)
}

// SubtitleWorker composes a finished transcript into a caption track.
type SubtitleWorker struct {
	catalog   SubtitleLessonStore
	artifacts SubtitleArtifacts
}

// NewSubtitleWorker wires the subtitle worker.
func NewSubtitleWorker(catalog SubtitleLessonStore, artifacts SubtitleArtifacts) *SubtitleWorker {
	return &SubtitleWorker{
		catalog:   catalog,
		artifacts: artifacts,
	}
}

func (w *SubtitleWorker) Kind() model.JobKind { return model.KindSubtitle }

func (w *SubtitleWorker) Name() string { return subtitleWorkerName }

func (w *SubtitleWorker) Execute(ctx context.Context, job *model.Job) error {
	lesson, err := w.catalog.GetLesson(ctx, job.LessonID)
	if err != nil {
		return fmt.Errorf("failed to load lesson %s: %w", job.LessonID, err)
	}

	if lesson.SubtitleRef != "" {
		log.Info().
			Str("lessonId", job.LessonID).
			Str("subtitleRef", lesson.SubtitleRef).
			Msg("Subtitle track already present, nothing to do")
		return nil
	}

	if lesson.TranscriptRef == "" {
		return model.Permanent(fmt.Errorf("lesson %s has no transcript to compose subtitles from", job.LessonID))
	}

	segments, err := w.artifacts.LoadTranscript(ctx, lesson.TranscriptRef)
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}

	language := job.Params.Language
	if language == "" {
		language = lesson.Language
	}

	vtt := subtitle.Render(segments)

	ref, err := w.artifacts.SaveSubtitleTrack(ctx, job.LessonID, language, vtt)
	if err != nil {
		return fmt.Errorf("failed to save subtitle track: %w", err)
	}

	if err := w.catalog.SetLessonSubtitle(ctx, job.LessonID, ref); err != nil {
		return fmt.Errorf("failed to record subtitle ref: %w", err)
	}

	log.Info().
		Str("lessonId", job.LessonID).
		Str("lang", language).
		Int("segments", len(segments)).
		Msg("Subtitle track composed")

	return nil
}
