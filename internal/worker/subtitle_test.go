package worker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/model"
)

func subtitleJob(lessonID, language string) *model.Job {
	return &model.Job{
		ID:       primitive.NewObjectID(),
		Kind:     model.KindSubtitle,
		LessonID: lessonID,
		Status:   model.StatusRunning,
		Params:   model.JobParams{Language: language},
	}
}

func newSubtitleFixture() (*fakeLessonStore, *fakeArtifacts, *SubtitleWorker) {
	catalog := &fakeLessonStore{
		lesson: &model.Lesson{
			ID:            primitive.NewObjectID(),
			Language:      "en",
			TranscriptRef: "lessons/x/transcript.json",
		},
	}
	artifacts := &fakeArtifacts{
		transcript: []model.Segment{
			{Index: 0, StartSec: 0, EndSec: 1.5, Text: "Hello there."},
			{Index: 1, StartSec: 1.5, EndSec: 3, Text: "Welcome back."},
		},
	}
	return catalog, artifacts, NewSubtitleWorker(catalog, artifacts)
}

func TestSubtitleWorkerHappyPath(t *testing.T) {
	catalog, artifacts, w := newSubtitleFixture()

	err := w.Execute(context.Background(), subtitleJob("lesson-1", "en"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(artifacts.savedVTT, "WEBVTT"))
	assert.Contains(t, artifacts.savedVTT, "Hello there.")
	assert.Contains(t, artifacts.savedVTT, "00:00:01.500 --> 00:00:03.000")
	assert.Equal(t, "en", artifacts.savedLanguage)
	assert.Equal(t, artifacts.subtitleRef, catalog.subtitleRef)
}

func TestSubtitleWorkerExistingTrackIsNoOp(t *testing.T) {
	catalog, artifacts, w := newSubtitleFixture()
	catalog.lesson.SubtitleRef = "lessons/x/subtitles/en.vtt"

	err := w.Execute(context.Background(), subtitleJob("lesson-1", "en"))
	require.NoError(t, err)
	assert.Empty(t, artifacts.savedVTT)
}

func TestSubtitleWorkerMissingTranscriptIsPermanent(t *testing.T) {
	catalog, _, w := newSubtitleFixture()
	catalog.lesson.TranscriptRef = ""

	err := w.Execute(context.Background(), subtitleJob("lesson-1", "en"))
	require.Error(t, err)
	assert.True(t, model.IsPermanent(err))
}

func TestSubtitleWorkerLanguageFallsBackToLesson(t *testing.T) {
	catalog, artifacts, w := newSubtitleFixture()
	catalog.lesson.Language = "fr"

	err := w.Execute(context.Background(), subtitleJob("lesson-1", ""))
	require.NoError(t, err)
	assert.Equal(t, "fr", artifacts.savedLanguage)
}

func TestRegistry(t *testing.T) {
	_, _, sub := newSubtitleFixture()
	registry := NewRegistry(sub)

	got, ok := registry.Get(model.KindSubtitle)
	require.True(t, ok)
	assert.Equal(t, sub, got)

	_, ok = registry.Get(model.KindTranslation)
	assert.False(t, ok)

	assert.Equal(t, []model.JobKind{model.KindSubtitle}, registry.Kinds())
}
