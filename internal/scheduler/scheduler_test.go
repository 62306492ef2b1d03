package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/database"
	"insightlearn/internal/model"
)

type published struct {
	exchange   string
	routingKey string
	workQueue  string
	headers    amqp.Table
	delay      time.Duration
}

type fakePublisher struct {
	immediate []published
	delayed   []published
	failNext  error
}

func (f *fakePublisher) Publish(exchange, routingKey string, body []byte, headers amqp.Table) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.immediate = append(f.immediate, published{exchange: exchange, routingKey: routingKey, headers: headers})
	return nil
}

func (f *fakePublisher) PublishDelayed(workQueue string, body []byte, headers amqp.Table, delay time.Duration) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.delayed = append(f.delayed, published{workQueue: workQueue, headers: headers, delay: delay})
	return nil
}

// fakeJobDB is an in-memory stand-in for the Mongo job store.
type fakeJobDB struct {
	mu   sync.Mutex
	jobs map[primitive.ObjectID]*model.Job
}

func newFakeJobDB() *fakeJobDB {
	return &fakeJobDB{jobs: map[primitive.ObjectID]*model.Job{}}
}

func (f *fakeJobDB) CreateJob(ctx context.Context, job *model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobDB) GetJobByID(ctx context.Context, id primitive.ObjectID) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, database.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobDB) MarkJobRunning(ctx context.Context, id primitive.ObjectID) error {
	return f.setStatus(id, model.StatusRunning, "")
}

func (f *fakeJobDB) MarkJobSucceeded(ctx context.Context, id primitive.ObjectID) error {
	return f.setStatus(id, model.StatusSucceeded, "")
}

func (f *fakeJobDB) MarkJobFailed(ctx context.Context, id primitive.ObjectID, errorMsg string) error {
	return f.setStatus(id, model.StatusFailed, errorMsg)
}

func (f *fakeJobDB) MarkJobSkipped(ctx context.Context, id primitive.ObjectID, reason string) error {
	return f.setStatus(id, model.StatusSkipped, reason)
}

func (f *fakeJobDB) RequeueJob(ctx context.Context, id primitive.ObjectID, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	job.Status = model.StatusQueued
	job.RetryCount++
	job.LastError = errorMsg
	return nil
}

func (f *fakeJobDB) ListJobsByParent(ctx context.Context, parentID primitive.ObjectID) ([]*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Job
	for _, job := range f.jobs {
		if job.ParentID != nil && *job.ParentID == parentID {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeJobDB) CountJobsByStatus(ctx context.Context, status model.JobStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, job := range f.jobs {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

// fakeCatalog resolves lessons by hex id; unknown ids error like a
// missing document would.
type fakeCatalog struct {
	lessons map[string]*model.Lesson
}

func (f *fakeCatalog) GetLesson(ctx context.Context, id string) (*model.Lesson, error) {
	if lesson, ok := f.lessons[id]; ok {
		copied := *lesson
		return &copied, nil
	}
	return nil, database.ErrLessonNotFound
}

func (f *fakeJobDB) setStatus(id primitive.ObjectID, status model.JobStatus, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return database.ErrJobNotFound
	}
	job.Status = status
	if msg != "" {
		job.LastError = msg
	}
	return nil
}

func TestEnqueuePersistsAndPublishes(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	id, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{Language: "en"})
	require.NoError(t, err)

	job, err := db.GetJobByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, job.Status)
	assert.Equal(t, "lesson-1", job.LessonID)

	require.Len(t, queue.immediate, 1)
	msg := queue.immediate[0]
	assert.Equal(t, "pipeline", msg.exchange)
	assert.Equal(t, model.QueueJobs, msg.routingKey)
	assert.Equal(t, id.Hex(), msg.headers["job_id"])
	assert.Equal(t, string(model.KindTranscription), msg.headers["job_kind"])
}

func TestEnqueueRoutesSubtitleJobsToOwnQueue(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	_, err := sched.Enqueue(context.Background(), model.KindSubtitle, "lesson-1", model.JobParams{})
	require.NoError(t, err)

	require.Len(t, queue.immediate, 1)
	assert.Equal(t, model.QueueSubtitles, queue.immediate[0].routingKey)
}

func TestEnqueueFailsRecordWhenPublishFails(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{failNext: errors.New("broker down")}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	id, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{})
	require.Error(t, err)

	job, getErr := db.GetJobByID(context.Background(), id)
	require.NoError(t, getErr)
	assert.Equal(t, model.StatusFailed, job.Status, "a record that never reached the queue must not linger as queued")
}

func TestScheduleUsesDelayQueue(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	_, err := sched.Schedule(context.Background(), model.KindCompletionReport, "", model.JobParams{JobIDs: []string{"a"}}, 6*time.Hour)
	require.NoError(t, err)

	assert.Empty(t, queue.immediate)
	require.Len(t, queue.delayed, 1)
	assert.Equal(t, model.QueueJobs, queue.delayed[0].workQueue)
	assert.Equal(t, 6*time.Hour, queue.delayed[0].delay)
}

func TestScheduleZeroDelayIsImmediate(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	_, err := sched.Schedule(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{}, 0)
	require.NoError(t, err)

	assert.Len(t, queue.immediate, 1)
	assert.Empty(t, queue.delayed)
}

func TestContinueWithHoldsChildUntilParentResolves(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	parentID, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{})
	require.NoError(t, err)
	queue.immediate = nil

	childID, err := sched.ContinueWith(context.Background(), parentID, model.KindSubtitle, "lesson-1", model.JobParams{Language: "en"})
	require.NoError(t, err)

	assert.Empty(t, queue.immediate, "a continuation is not published while its parent is unresolved")

	child, err := db.GetJobByID(context.Background(), childID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, child.Status)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parentID, *child.ParentID)
}

func TestContinueWithPublishesWhenParentAlreadySucceeded(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	parentID, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{})
	require.NoError(t, err)
	require.NoError(t, db.MarkJobSucceeded(context.Background(), parentID))
	queue.immediate = nil

	_, err = sched.ContinueWith(context.Background(), parentID, model.KindSubtitle, "lesson-1", model.JobParams{})
	require.NoError(t, err)

	assert.Len(t, queue.immediate, 1, "a parent that already succeeded releases the child immediately")
}

func TestContinueWithSkipsChildWhenParentAlreadyFailed(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	parentID, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{})
	require.NoError(t, err)
	require.NoError(t, db.MarkJobFailed(context.Background(), parentID, "boom"))
	queue.immediate = nil

	childID, err := sched.ContinueWith(context.Background(), parentID, model.KindSubtitle, "lesson-1", model.JobParams{})
	require.NoError(t, err)

	assert.Empty(t, queue.immediate)

	child, err := db.GetJobByID(context.Background(), childID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, child.Status)
}

func TestReleaseContinuationsPublishesQueuedChildren(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	parentID, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{})
	require.NoError(t, err)
	childID, err := sched.ContinueWith(context.Background(), parentID, model.KindSubtitle, "lesson-1", model.JobParams{})
	require.NoError(t, err)
	queue.immediate = nil

	require.NoError(t, db.MarkJobSucceeded(context.Background(), parentID))
	require.NoError(t, sched.ReleaseContinuations(context.Background(), parentID))

	require.Len(t, queue.immediate, 1)
	assert.Equal(t, childID.Hex(), queue.immediate[0].headers["job_id"])
}

func TestSkipContinuationsCascades(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	parentID, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{})
	require.NoError(t, err)
	childID, err := sched.ContinueWith(context.Background(), parentID, model.KindTranslation, "lesson-1", model.JobParams{TargetLanguage: "de"})
	require.NoError(t, err)
	grandchildID, err := sched.ContinueWith(context.Background(), childID, model.KindSubtitle, "lesson-1", model.JobParams{})
	require.NoError(t, err)

	require.NoError(t, sched.SkipContinuations(context.Background(), parentID, "parent failed"))

	child, err := db.GetJobByID(context.Background(), childID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, child.Status)

	grandchild, err := db.GetJobByID(context.Background(), grandchildID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, grandchild.Status, "skip reaches continuations of continuations")
}

func TestRequeueForRetryWalksBackoffSchedule(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	id, err := sched.Enqueue(context.Background(), model.KindTranslation, "lesson-1", model.JobParams{TargetLanguage: "de"})
	require.NoError(t, err)
	queue.immediate = nil

	cause := errors.New("backend timeout")
	want := []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}

	for attempt, backoff := range want {
		job, err := db.GetJobByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, attempt, job.RetryCount)

		retried, err := sched.RequeueForRetry(context.Background(), job, cause)
		require.NoError(t, err)
		require.True(t, retried)

		require.Len(t, queue.delayed, attempt+1)
		assert.Equal(t, backoff, queue.delayed[attempt].delay)
	}

	job, err := db.GetJobByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, job.RetryCount)

	retried, err := sched.RequeueForRetry(context.Background(), job, cause)
	require.NoError(t, err)
	assert.False(t, retried, "the budget is spent after the schedule is walked")
	assert.Len(t, queue.delayed, 3)
}

func TestRequeueForRetryReportWorkerNeverRetries(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	id, err := sched.Enqueue(context.Background(), model.KindCompletionReport, "", model.JobParams{})
	require.NoError(t, err)
	job, err := db.GetJobByID(context.Background(), id)
	require.NoError(t, err)

	retried, err := sched.RequeueForRetry(context.Background(), job, errors.New("boom"))
	require.NoError(t, err)
	assert.False(t, retried)
}

func TestEnqueueRefusesJobWhoseArtifactExists(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	catalog := &fakeCatalog{lessons: map[string]*model.Lesson{
		"lesson-1": {Language: "en", TranscriptRef: "lessons/lesson-1/transcript.json"},
		"lesson-2": {Language: "en", SubtitleRef: "lessons/lesson-2/subtitles/en.vtt"},
	}}
	sched := New(db, catalog, queue, "pipeline")

	_, err := sched.Enqueue(context.Background(), model.KindTranscription, "lesson-1", model.JobParams{})
	require.ErrorIs(t, err, model.ErrArtifactExists)

	_, err = sched.Enqueue(context.Background(), model.KindSubtitle, "lesson-2", model.JobParams{})
	require.ErrorIs(t, err, model.ErrArtifactExists)

	assert.Empty(t, queue.immediate, "a refused job never reaches the queue")
	assert.Empty(t, db.jobs, "a refused job leaves no record behind")
}

func TestEnqueueArtifactCheckOnlyGuardsMatchingKind(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	catalog := &fakeCatalog{lessons: map[string]*model.Lesson{
		"lesson-1": {Language: "en", TranscriptRef: "lessons/lesson-1/transcript.json"},
	}}
	sched := New(db, catalog, queue, "pipeline")

	// A transcript on record does not block the subtitle job that needs it.
	_, err := sched.Enqueue(context.Background(), model.KindSubtitle, "lesson-1", model.JobParams{})
	require.NoError(t, err)

	// Translation idempotency is owned by the translation record, not
	// the catalog.
	_, err = sched.Enqueue(context.Background(), model.KindTranslation, "lesson-1", model.JobParams{TargetLanguage: "de"})
	require.NoError(t, err)

	assert.Len(t, queue.immediate, 2)
}

func TestEnqueueProceedsWhenCatalogLookupFails(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakePublisher{}
	sched := New(db, &fakeCatalog{}, queue, "pipeline")

	_, err := sched.Enqueue(context.Background(), model.KindTranscription, "unknown", model.JobParams{})
	require.NoError(t, err, "the worker is the authority when the catalog cannot answer")
	assert.Len(t, queue.immediate, 1)
}
