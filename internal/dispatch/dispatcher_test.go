package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/model"
	"insightlearn/internal/worker"
)

type fakeJobStore struct {
	job       *model.Job
	getErr    error
	running   int
	succeeded int
	failed    int
	failedMsg string
}

func (f *fakeJobStore) GetJobByID(ctx context.Context, id primitive.ObjectID) (*model.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.job, nil
}

func (f *fakeJobStore) MarkJobRunning(ctx context.Context, id primitive.ObjectID) error {
	f.running++
	return nil
}

func (f *fakeJobStore) MarkJobSucceeded(ctx context.Context, id primitive.ObjectID) error {
	f.succeeded++
	return nil
}

func (f *fakeJobStore) MarkJobFailed(ctx context.Context, id primitive.ObjectID, errorMsg string) error {
	f.failed++
	f.failedMsg = errorMsg
	return nil
}

type fakeRetryScheduler struct {
	retryOK   bool
	retryErr  error
	requeues  int
	released  int
	skipped   int
	skipCause string
}

func (f *fakeRetryScheduler) RequeueForRetry(ctx context.Context, job *model.Job, cause error) (bool, error) {
	f.requeues++
	return f.retryOK, f.retryErr
}

func (f *fakeRetryScheduler) ReleaseContinuations(ctx context.Context, parentID primitive.ObjectID) error {
	f.released++
	return nil
}

func (f *fakeRetryScheduler) SkipContinuations(ctx context.Context, parentID primitive.ObjectID, reason string) error {
	f.skipped++
	f.skipCause = reason
	return nil
}

type scriptedWorker struct {
	kind model.JobKind
	err  error
	runs int
}

func (w *scriptedWorker) Execute(ctx context.Context, job *model.Job) error {
	w.runs++
	return w.err
}

func (w *scriptedWorker) Kind() model.JobKind { return w.kind }

func (w *scriptedWorker) Name() string { return "scripted" }

type fakeResolver struct {
	worker worker.Worker
}

func (f *fakeResolver) Get(kind model.JobKind) (worker.Worker, bool) {
	if f.worker == nil || f.worker.Kind() != kind {
		return nil, false
	}
	return f.worker, true
}

type fakeAcker struct {
	acks  int
	nacks int
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error { f.acks++; return nil }

func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error { f.nacks++; return nil }

func (f *fakeAcker) Reject(tag uint64, requeue bool) error { f.nacks++; return nil }

func deliveryFor(job *model.Job, acker *fakeAcker) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: acker,
		Headers: amqp.Table{
			"job_id":   job.ID.Hex(),
			"job_kind": string(job.Kind),
		},
	}
}

func runningJob(kind model.JobKind) *model.Job {
	return &model.Job{
		ID:     primitive.NewObjectID(),
		Kind:   kind,
		Status: model.StatusQueued,
	}
}

func newDispatcherFixture(w worker.Worker, job *model.Job) (*fakeJobStore, *fakeRetryScheduler, *Dispatcher) {
	db := &fakeJobStore{job: job}
	sched := &fakeRetryScheduler{}
	d := New(db, nil, sched, &fakeResolver{worker: w}, "pipeline", time.Minute)
	return db, sched, d
}

func TestProcessDeliverySuccess(t *testing.T) {
	job := runningJob(model.KindTranscription)
	w := &scriptedWorker{kind: model.KindTranscription}
	db, sched, d := newDispatcherFixture(w, job)

	acker := &fakeAcker{}
	d.processDelivery(context.Background(), deliveryFor(job, acker))

	assert.Equal(t, 1, w.runs)
	assert.Equal(t, 1, db.running)
	assert.Equal(t, 1, db.succeeded)
	assert.Zero(t, db.failed)
	assert.Equal(t, 1, sched.released, "a success releases its continuations")
	assert.Equal(t, 1, acker.acks)
	assert.Zero(t, acker.nacks)
}

func TestProcessDeliveryTransientFailureRetries(t *testing.T) {
	job := runningJob(model.KindTranslation)
	w := &scriptedWorker{kind: model.KindTranslation, err: errors.New("backend timeout")}
	db, sched, d := newDispatcherFixture(w, job)
	sched.retryOK = true

	acker := &fakeAcker{}
	d.processDelivery(context.Background(), deliveryFor(job, acker))

	assert.Equal(t, 1, sched.requeues)
	assert.Zero(t, db.failed, "a retried job is not failed")
	assert.Zero(t, sched.skipped)
	assert.Equal(t, 1, acker.acks, "the original delivery is acked; the retry is a new delayed message")
}

func TestProcessDeliveryExhaustedBudgetFails(t *testing.T) {
	job := runningJob(model.KindTranslation)
	job.RetryCount = 3
	w := &scriptedWorker{kind: model.KindTranslation, err: errors.New("backend timeout")}
	db, sched, d := newDispatcherFixture(w, job)
	sched.retryOK = false

	acker := &fakeAcker{}
	d.processDelivery(context.Background(), deliveryFor(job, acker))

	assert.Equal(t, 1, sched.requeues)
	assert.Equal(t, 1, db.failed)
	assert.Equal(t, "backend timeout", db.failedMsg, "the last error surfaces as the terminal record error")
	assert.Equal(t, 1, sched.skipped, "continuations of an exhausted job are skipped")
}

func TestProcessDeliveryPermanentFailureSkipsRetry(t *testing.T) {
	job := runningJob(model.KindTranscription)
	w := &scriptedWorker{
		kind: model.KindTranscription,
		err:  model.Permanent(errors.New("unsupported media format")),
	}
	db, sched, d := newDispatcherFixture(w, job)

	acker := &fakeAcker{}
	d.processDelivery(context.Background(), deliveryFor(job, acker))

	assert.Zero(t, sched.requeues, "permanent failures never consume retry budget")
	assert.Equal(t, 1, db.failed)
	assert.Equal(t, 1, sched.skipped)
}

func TestProcessDeliveryDropsResolvedDuplicates(t *testing.T) {
	job := runningJob(model.KindTranscription)
	job.Status = model.StatusSucceeded
	w := &scriptedWorker{kind: model.KindTranscription}
	db, _, d := newDispatcherFixture(w, job)

	acker := &fakeAcker{}
	d.processDelivery(context.Background(), deliveryFor(job, acker))

	assert.Zero(t, w.runs, "a terminal job is never re-executed")
	assert.Zero(t, db.running)
	assert.Equal(t, 1, acker.acks)
}

func TestProcessDeliveryUnknownKindFailsJob(t *testing.T) {
	job := runningJob(model.JobKind("mystery"))
	db, _, d := newDispatcherFixture(&scriptedWorker{kind: model.KindTranscription}, job)

	acker := &fakeAcker{}
	d.processDelivery(context.Background(), deliveryFor(job, acker))

	assert.Equal(t, 1, db.failed)
	assert.Equal(t, 1, acker.acks)
}

func TestProcessDeliveryRejectsMalformedMessages(t *testing.T) {
	job := runningJob(model.KindTranscription)
	_, _, d := newDispatcherFixture(&scriptedWorker{kind: model.KindTranscription}, job)

	missing := &fakeAcker{}
	d.processDelivery(context.Background(), amqp.Delivery{Acknowledger: missing, Headers: amqp.Table{}})
	assert.Equal(t, 1, missing.nacks)

	malformed := &fakeAcker{}
	d.processDelivery(context.Background(), amqp.Delivery{
		Acknowledger: malformed,
		Headers:      amqp.Table{"job_id": "not-hex"},
	})
	assert.Equal(t, 1, malformed.nacks)
}

func TestProcessDeliveryRetrySchedulingErrorFailsJob(t *testing.T) {
	job := runningJob(model.KindTranslation)
	w := &scriptedWorker{kind: model.KindTranslation, err: errors.New("backend timeout")}
	db, sched, d := newDispatcherFixture(w, job)
	sched.retryErr = errors.New("broker down")

	acker := &fakeAcker{}
	d.processDelivery(context.Background(), deliveryFor(job, acker))

	require.Equal(t, 1, db.failed, "if the retry cannot be parked, the job fails rather than vanishing")
	assert.Equal(t, 1, acker.acks)
}
