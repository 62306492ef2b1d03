package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"insightlearn/internal/model"
)

// ErrJobNotFound is returned when a job id does not resolve to a record.
var ErrJobNotFound = errors.New("job not found")

// JobDatabase defines job-related database operations. State
// transitions are guarded so a record only ever moves forward:
// queued -> running -> succeeded/failed/skipped. A retry re-queues the
// same record and bumps its retry count.
type JobDatabase interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByID(ctx context.Context, id primitive.ObjectID) (*model.Job, error)
	MarkJobRunning(ctx context.Context, id primitive.ObjectID) error
	MarkJobSucceeded(ctx context.Context, id primitive.ObjectID) error
	MarkJobFailed(ctx context.Context, id primitive.ObjectID, errorMsg string) error
	MarkJobSkipped(ctx context.Context, id primitive.ObjectID, reason string) error
	RequeueJob(ctx context.Context, id primitive.ObjectID, errorMsg string) error
	ListJobsByParent(ctx context.Context, parentID primitive.ObjectID) ([]*model.Job, error)
	CountJobsByStatus(ctx context.Context, status model.JobStatus) (int64, error)
}

// CreateJob creates a new job in the database
func (m *mongoDB) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}

	job.SubmittedAt = time.Now()
	if job.Status == "" {
		job.Status = model.StatusQueued
	}

	_, err := m.jobsCol.InsertOne(ctx, job)
	if err != nil {
		log.Error().Err(err).Str("jobID", job.ID.Hex()).Msg("Failed to create job")
		return err
	}

	log.Debug().Str("jobID", job.ID.Hex()).Str("kind", string(job.Kind)).Msg("Created new job")
	return nil
}

// GetJobByID retrieves a job by its ID
func (m *mongoDB) GetJobByID(ctx context.Context, id primitive.ObjectID) (*model.Job, error) {
	var job model.Job
	err := m.jobsCol.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrJobNotFound
		}
		log.Error().Err(err).Str("jobID", id.Hex()).Msg("Failed to get job")
		return nil, err
	}

	return &job, nil
}

// MarkJobRunning moves a queued job to running and stamps started_at.
func (m *mongoDB) MarkJobRunning(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	return m.transition(ctx, id,
		bson.M{"status": bson.M{"$in": bson.A{model.StatusQueued, model.StatusRunning}}},
		bson.M{"$set": bson.M{"status": model.StatusRunning, "started_at": now}},
		model.StatusRunning)
}

// MarkJobSucceeded finalizes a job as succeeded. A job that already
// reached a terminal state is left untouched.
func (m *mongoDB) MarkJobSucceeded(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	return m.transition(ctx, id,
		bson.M{"status": bson.M{"$nin": bson.A{model.StatusSucceeded, model.StatusFailed, model.StatusSkipped}}},
		bson.M{"$set": bson.M{"status": model.StatusSucceeded, "completed_at": now}},
		model.StatusSucceeded)
}

// MarkJobFailed finalizes a job as failed with its last error message.
func (m *mongoDB) MarkJobFailed(ctx context.Context, id primitive.ObjectID, errorMsg string) error {
	now := time.Now()
	return m.transition(ctx, id,
		bson.M{"status": bson.M{"$nin": bson.A{model.StatusSucceeded, model.StatusFailed, model.StatusSkipped}}},
		bson.M{"$set": bson.M{"status": model.StatusFailed, "completed_at": now, "last_error": errorMsg}},
		model.StatusFailed)
}

// MarkJobSkipped finalizes a continuation whose parent failed.
func (m *mongoDB) MarkJobSkipped(ctx context.Context, id primitive.ObjectID, reason string) error {
	now := time.Now()
	return m.transition(ctx, id,
		bson.M{"status": bson.M{"$nin": bson.A{model.StatusSucceeded, model.StatusFailed, model.StatusSkipped}}},
		bson.M{"$set": bson.M{"status": model.StatusSkipped, "completed_at": now, "last_error": reason}},
		model.StatusSkipped)
}

// RequeueJob returns a running job to queued for a retry, recording
// the failure and incrementing the retry count.
func (m *mongoDB) RequeueJob(ctx context.Context, id primitive.ObjectID, errorMsg string) error {
	result, err := m.jobsCol.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.StatusRunning},
		bson.M{
			"$set": bson.M{"status": model.StatusQueued, "last_error": errorMsg},
			"$inc": bson.M{"retry_count": 1},
		})
	if err != nil {
		log.Error().Err(err).Str("jobID", id.Hex()).Msg("Failed to requeue job")
		return err
	}
	if result.MatchedCount == 0 {
		return ErrJobNotFound
	}

	log.Debug().Str("jobID", id.Hex()).Msg("Requeued job for retry")
	return nil
}

// ListJobsByParent returns the continuations registered under a parent.
func (m *mongoDB) ListJobsByParent(ctx context.Context, parentID primitive.ObjectID) ([]*model.Job, error) {
	cursor, err := m.jobsCol.Find(ctx, bson.M{"parent_id": parentID})
	if err != nil {
		log.Error().Err(err).Str("parentID", parentID.Hex()).Msg("Failed to list continuations")
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*model.Job
	if err := cursor.All(ctx, &jobs); err != nil {
		log.Error().Err(err).Msg("Failed to decode jobs")
		return nil, err
	}

	return jobs, nil
}

// CountJobsByStatus counts jobs with a specific status
func (m *mongoDB) CountJobsByStatus(ctx context.Context, status model.JobStatus) (int64, error) {
	count, err := m.jobsCol.CountDocuments(ctx, bson.M{"status": status})
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Failed to count jobs by status")
		return 0, err
	}

	return count, nil
}

func (m *mongoDB) transition(ctx context.Context, id primitive.ObjectID, guard bson.M, update bson.M, to model.JobStatus) error {
	filter := bson.M{"_id": id}
	for k, v := range guard {
		filter[k] = v
	}

	result, err := m.jobsCol.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("jobID", id.Hex()).Str("status", string(to)).Msg("Failed to update job status")
		return err
	}
	if result.MatchedCount == 0 {
		// Either the id is unknown or the record already moved past
		// this state; both are benign for idempotent callers.
		log.Debug().Str("jobID", id.Hex()).Str("status", string(to)).Msg("Job transition matched no record")
		return nil
	}

	log.Debug().Str("jobID", id.Hex()).Str("status", string(to)).Msg("Updated job status")
	return nil
}
