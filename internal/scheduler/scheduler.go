// Package scheduler is the single-item job scheduler: it persists a
// job record and hands the job to the durable queue for immediate,
// delayed, or continuation execution. Retry pacing rides on the same
// delay mechanism.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/database"
	"insightlearn/internal/model"
)

// Publisher is the slice of the queue client the scheduler needs.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte, headers amqp.Table) error
	PublishDelayed(workQueue string, body []byte, headers amqp.Table, delay time.Duration) error
}

// Catalog is the lesson lookup used to short-circuit item jobs whose
// output already exists.
type Catalog interface {
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
}

// Scheduler submits jobs and owns the retry/backoff policy. It is the
// failure containment point: a job that exhausts its retries ends as a
// failed record, nothing is re-raised past this boundary.
type Scheduler struct {
	db       database.JobDatabase
	catalog  Catalog
	queue    Publisher
	exchange string
}

// New creates a scheduler publishing on the given work exchange.
func New(db database.JobDatabase, catalog Catalog, queue Publisher, exchange string) *Scheduler {
	return &Scheduler{
		db:       db,
		catalog:  catalog,
		queue:    queue,
		exchange: exchange,
	}
}

// Enqueue submits a job for immediate execution and returns its id.
// Execution happens asynchronously on a worker process. A transcription
// or subtitle job whose artifact is already on record is refused with
// model.ErrArtifactExists instead of being queued.
func (s *Scheduler) Enqueue(ctx context.Context, kind model.JobKind, lessonID string, params model.JobParams) (primitive.ObjectID, error) {
	if s.artifactExists(ctx, kind, lessonID) {
		return primitive.NilObjectID, model.ErrArtifactExists
	}

	job := s.newJob(kind, lessonID, params, nil)

	if err := s.db.CreateJob(ctx, job); err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.publish(job, 0); err != nil {
		// The record exists but never reached the queue; fail it so it
		// does not linger as a phantom queued job.
		s.db.MarkJobFailed(ctx, job.ID, fmt.Sprintf("enqueue failed: %v", err))
		return job.ID, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Info().
		Str("jobId", job.ID.Hex()).
		Str("kind", string(kind)).
		Str("lessonId", lessonID).
		Msg("Job enqueued")

	return job.ID, nil
}

// Schedule submits a job for execution no earlier than delay from now.
func (s *Scheduler) Schedule(ctx context.Context, kind model.JobKind, lessonID string, params model.JobParams, delay time.Duration) (primitive.ObjectID, error) {
	if delay <= 0 {
		return s.Enqueue(ctx, kind, lessonID, params)
	}

	job := s.newJob(kind, lessonID, params, nil)

	if err := s.db.CreateJob(ctx, job); err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.publish(job, delay); err != nil {
		s.db.MarkJobFailed(ctx, job.ID, fmt.Sprintf("enqueue failed: %v", err))
		return job.ID, fmt.Errorf("failed to schedule job: %w", err)
	}

	log.Info().
		Str("jobId", job.ID.Hex()).
		Str("kind", string(kind)).
		Dur("delay", delay).
		Msg("Job scheduled")

	return job.ID, nil
}

// ContinueWith registers a job that runs only after parentID succeeds.
// If the parent fails the continuation is finalized as skipped, never
// executed. The record is created immediately; publication waits for
// the dispatcher to observe the parent's outcome.
func (s *Scheduler) ContinueWith(ctx context.Context, parentID primitive.ObjectID, kind model.JobKind, lessonID string, params model.JobParams) (primitive.ObjectID, error) {
	job := s.newJob(kind, lessonID, params, &parentID)

	if err := s.db.CreateJob(ctx, job); err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to create continuation: %w", err)
	}

	// The parent may already have resolved; re-read it after the child
	// exists so a completion racing this call cannot strand the child.
	parent, err := s.db.GetJobByID(ctx, parentID)
	if err != nil {
		return job.ID, fmt.Errorf("failed to load parent job: %w", err)
	}

	switch parent.Status {
	case model.StatusSucceeded:
		if err := s.publish(job, 0); err != nil {
			s.db.MarkJobFailed(ctx, job.ID, fmt.Sprintf("enqueue failed: %v", err))
			return job.ID, fmt.Errorf("failed to enqueue continuation: %w", err)
		}
	case model.StatusFailed, model.StatusSkipped:
		s.db.MarkJobSkipped(ctx, job.ID, fmt.Sprintf("parent job %s ended %s", parentID.Hex(), parent.Status))
	}

	log.Info().
		Str("jobId", job.ID.Hex()).
		Str("parentId", parentID.Hex()).
		Str("kind", string(kind)).
		Msg("Continuation registered")

	return job.ID, nil
}

// RequeueForRetry consumes one unit of the job's retry budget and
// parks it on the delay queue for its backoff interval. It reports
// false when the budget is exhausted and the job must be failed
// terminally instead.
func (s *Scheduler) RequeueForRetry(ctx context.Context, job *model.Job, cause error) (bool, error) {
	backoff, ok := model.Backoff(job.Kind, job.RetryCount)
	if !ok {
		return false, nil
	}

	if err := s.db.RequeueJob(ctx, job.ID, cause.Error()); err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}

	if err := s.publish(job, backoff); err != nil {
		return false, fmt.Errorf("failed to publish retry: %w", err)
	}

	log.Warn().
		Str("jobId", job.ID.Hex()).
		Str("kind", string(job.Kind)).
		Int("retry", job.RetryCount+1).
		Int("maxRetries", model.MaxRetries(job.Kind)).
		Dur("backoff", backoff).
		Err(cause).
		Msg("Job failed, retry scheduled")

	return true, nil
}

// ReleaseContinuations publishes every continuation registered under a
// parent that just succeeded.
func (s *Scheduler) ReleaseContinuations(ctx context.Context, parentID primitive.ObjectID) error {
	children, err := s.db.ListJobsByParent(ctx, parentID)
	if err != nil {
		return err
	}

	for _, child := range children {
		if child.Status != model.StatusQueued {
			continue
		}
		if err := s.publish(child, 0); err != nil {
			log.Error().
				Err(err).
				Str("jobId", child.ID.Hex()).
				Str("parentId", parentID.Hex()).
				Msg("Failed to release continuation")
			s.db.MarkJobFailed(ctx, child.ID, fmt.Sprintf("enqueue failed: %v", err))
			continue
		}
		log.Info().
			Str("jobId", child.ID.Hex()).
			Str("parentId", parentID.Hex()).
			Msg("Continuation released")
	}

	return nil
}

// SkipContinuations finalizes every continuation under a failed parent
// as skipped, cascading to their own continuations.
func (s *Scheduler) SkipContinuations(ctx context.Context, parentID primitive.ObjectID, reason string) error {
	children, err := s.db.ListJobsByParent(ctx, parentID)
	if err != nil {
		return err
	}

	for _, child := range children {
		if child.Terminal() {
			continue
		}
		if err := s.db.MarkJobSkipped(ctx, child.ID, reason); err != nil {
			log.Error().Err(err).Str("jobId", child.ID.Hex()).Msg("Failed to skip continuation")
			continue
		}
		log.Info().
			Str("jobId", child.ID.Hex()).
			Str("parentId", parentID.Hex()).
			Str("reason", reason).
			Msg("Continuation skipped")

		if err := s.SkipContinuations(ctx, child.ID, fmt.Sprintf("parent job %s skipped", child.ID.Hex())); err != nil {
			log.Error().Err(err).Str("jobId", child.ID.Hex()).Msg("Failed to cascade skip")
		}
	}

	return nil
}

// artifactExists reports whether the item job's output is already on
// record in the catalog. Lookup failures count as absent: the worker
// re-checks on execution and no-ops if the artifact appeared meanwhile.
func (s *Scheduler) artifactExists(ctx context.Context, kind model.JobKind, lessonID string) bool {
	if lessonID == "" {
		return false
	}

	switch kind {
	case model.KindTranscription, model.KindSubtitle:
	default:
		return false
	}

	lesson, err := s.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		return false
	}

	if kind == model.KindTranscription {
		return lesson.TranscriptRef != ""
	}
	return lesson.SubtitleRef != ""
}

func (s *Scheduler) newJob(kind model.JobKind, lessonID string, params model.JobParams, parentID *primitive.ObjectID) *model.Job {
	return &model.Job{
		ID:       primitive.NewObjectID(),
		Kind:     kind,
		LessonID: lessonID,
		Params:   params,
		Status:   model.StatusQueued,
		ParentID: parentID,
	}
}

// publish hands the job to its work queue, optionally via the delay
// queue. The message carries only the job id; the full record lives in
// the job store.
func (s *Scheduler) publish(job *model.Job, delay time.Duration) error {
	headers := amqp.Table{
		"job_id":   job.ID.Hex(),
		"job_kind": string(job.Kind),
	}

	body, err := json.Marshal(map[string]string{"job_id": job.ID.Hex()})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	queueName := model.QueueFor(job.Kind)
	if delay > 0 {
		return s.queue.PublishDelayed(queueName, body, headers, delay)
	}
	return s.queue.Publish(s.exchange, queueName, body, headers)
}
