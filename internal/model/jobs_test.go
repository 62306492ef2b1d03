package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySchedule(t *testing.T) {
	media := []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}
	scans := []time.Duration{300 * time.Second, 900 * time.Second}

	assert.Equal(t, media, RetrySchedule(KindTranscription))
	assert.Equal(t, media, RetrySchedule(KindTranslation))
	assert.Equal(t, media, RetrySchedule(KindSubtitle))
	assert.Equal(t, scans, RetrySchedule(KindTranscriptionScan))
	assert.Equal(t, scans, RetrySchedule(KindSubtitleScan))
	assert.Empty(t, RetrySchedule(KindCompletionReport), "the report is informational and never retried")
}

func TestBackoff(t *testing.T) {
	d, ok := Backoff(KindTranscription, 0)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, d)

	d, ok = Backoff(KindTranscription, 2)
	require.True(t, ok)
	assert.Equal(t, 900*time.Second, d)

	_, ok = Backoff(KindTranscription, 3)
	assert.False(t, ok, "budget exhausted after the schedule is consumed")

	_, ok = Backoff(KindCompletionReport, 0)
	assert.False(t, ok)
}

func TestMaxRetries(t *testing.T) {
	assert.Equal(t, 3, MaxRetries(KindTranslation))
	assert.Equal(t, 2, MaxRetries(KindSubtitleScan))
	assert.Zero(t, MaxRetries(KindCompletionReport))
}

func TestQueueFor(t *testing.T) {
	assert.Equal(t, QueueSubtitles, QueueFor(KindSubtitle))

	for _, kind := range []JobKind{KindTranscription, KindTranslation, KindTranscriptionScan, KindSubtitleScan, KindCompletionReport} {
		assert.Equal(t, QueueJobs, QueueFor(kind))
	}
}

func TestTerminal(t *testing.T) {
	terminal := []JobStatus{StatusSucceeded, StatusFailed, StatusSkipped}
	for _, status := range terminal {
		assert.True(t, (&Job{Status: status}).Terminal())
	}

	for _, status := range []JobStatus{StatusQueued, StatusRunning} {
		assert.False(t, (&Job{Status: status}).Terminal())
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("unsupported media format")
	wrapped := Permanent(base)

	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsPermanent(base))
	assert.False(t, IsPermanent(errors.New("timeout")))

	assert.EqualError(t, wrapped, base.Error())
	assert.True(t, errors.Is(wrapped, base), "the cause stays reachable through Unwrap")

	rewrapped := fmt.Errorf("job failed: %w", wrapped)
	assert.True(t, IsPermanent(rewrapped), "the mark survives further wrapping")
}
