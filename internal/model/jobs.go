package model

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobKind identifies which worker handles a job.
type JobKind string

const (
	KindTranscription     JobKind = "transcription"
	KindTranslation       JobKind = "translation"
	KindSubtitle          JobKind = "subtitle"
	KindTranscriptionScan JobKind = "transcription_scan"
	KindSubtitleScan      JobKind = "subtitle_scan"
	KindCompletionReport  JobKind = "completion_report"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"

	// StatusSkipped is the terminal state of a continuation whose
	// parent failed. Kept distinct from StatusFailed so "never ran" is
	// observable.
	StatusSkipped JobStatus = "skipped"
)

// JobParams carries the kind-specific inputs of a job. Fields not
// relevant to a kind stay at their zero value.
type JobParams struct {
	Language       string   `bson:"language,omitempty" json:"language,omitempty"`
	TargetLanguage string   `bson:"target_language,omitempty" json:"target_language,omitempty"`
	Translator     string   `bson:"translator,omitempty" json:"translator,omitempty"`
	JobIDs         []string `bson:"job_ids,omitempty" json:"job_ids,omitempty"`
}

// Job represents one schedulable unit of work. Retries reuse the same
// record; a retry bumps RetryCount, it never allocates a new ID.
type Job struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Kind        JobKind             `bson:"kind" json:"kind"`
	LessonID    string              `bson:"lesson_id,omitempty" json:"lesson_id,omitempty"`
	Params      JobParams           `bson:"params" json:"params"`
	Status      JobStatus           `bson:"status" json:"status"`
	RetryCount  int                 `bson:"retry_count" json:"retry_count"`
	ParentID    *primitive.ObjectID `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	SubmittedAt time.Time           `bson:"submitted_at" json:"submitted_at"`
	StartedAt   *time.Time          `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time          `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	LastError   string              `bson:"last_error,omitempty" json:"last_error,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed || j.Status == StatusSkipped
}

// RetrySchedule returns the backoff delays applied between failed
// executions of a job of the given kind. The length of the schedule is
// the number of automatic retries granted after the first execution.
// Item-level media jobs get three retries with growing delays; the
// nightly scans get two longer ones, tolerant of a database that is
// briefly down at 3 AM; the completion report is informational and is
// never retried.
func RetrySchedule(kind JobKind) []time.Duration {
	switch kind {
	case KindTranscription, KindTranslation, KindSubtitle:
		return []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}
	case KindTranscriptionScan, KindSubtitleScan:
		return []time.Duration{300 * time.Second, 900 * time.Second}
	default:
		return nil
	}
}

// MaxRetries returns the retry cap for a job kind.
func MaxRetries(kind JobKind) int {
	return len(RetrySchedule(kind))
}

// Backoff returns the delay to wait before the retry following the
// given failed execution count, or false when the budget is exhausted.
func Backoff(kind JobKind, retryCount int) (time.Duration, bool) {
	schedule := RetrySchedule(kind)
	if retryCount >= len(schedule) {
		return 0, false
	}
	return schedule[retryCount], true
}

// Queue names. Subtitle composition runs on its own queue so a flood of
// caption jobs cannot starve transcription and translation throughput.
const (
	QueueJobs      = "jobs"
	QueueSubtitles = "subtitles"
)

// QueueFor returns the work queue a job kind is routed to.
func QueueFor(kind JobKind) string {
	if kind == KindSubtitle {
		return QueueSubtitles
	}
	return QueueJobs
}

// ErrArtifactExists signals that the artifact a job would produce is
// already present, usually because a manually triggered run raced the
// nightly scan. The desired end state is satisfied, so callers treat
// this as success.
var ErrArtifactExists = errors.New("artifact already exists")

// permanentError marks an error as not worth retrying (unsupported
// media format, missing prerequisite and the like).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked as non-retryable.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
