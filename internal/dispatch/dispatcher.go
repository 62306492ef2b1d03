// Package dispatch is the queue-consumer side of the pipeline: it
// pulls job messages off the work queues, resolves them to workers and
// applies the retry policy to their outcomes.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/model"
	"insightlearn/internal/rabbitmq"
	"insightlearn/internal/worker"
)

// JobStore is the job-store slice the dispatcher needs.
type JobStore interface {
	GetJobByID(ctx context.Context, id primitive.ObjectID) (*model.Job, error)
	MarkJobRunning(ctx context.Context, id primitive.ObjectID) error
	MarkJobSucceeded(ctx context.Context, id primitive.ObjectID) error
	MarkJobFailed(ctx context.Context, id primitive.ObjectID, errorMsg string) error
}

// RetryScheduler is the scheduler slice that owns backoff and
// continuation handling.
type RetryScheduler interface {
	RequeueForRetry(ctx context.Context, job *model.Job, cause error) (bool, error)
	ReleaseContinuations(ctx context.Context, parentID primitive.ObjectID) error
	SkipContinuations(ctx context.Context, parentID primitive.ObjectID, reason string) error
}

// WorkerResolver resolves a job kind to its worker.
type WorkerResolver interface {
	Get(kind model.JobKind) (worker.Worker, bool)
}

// Dispatcher consumes the work queues and executes jobs. Every
// boundary catches and logs; a worker error never takes the consumer
// loop down.
type Dispatcher struct {
	db          JobStore
	queue       rabbitmq.Client
	sched       RetryScheduler
	registry    WorkerResolver
	exchange    string
	queues      []string
	callTimeout time.Duration

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New creates a dispatcher for the given work queues.
func New(db JobStore, queue rabbitmq.Client, sched RetryScheduler, registry WorkerResolver, exchange string, callTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		db:          db,
		queue:       queue,
		sched:       sched,
		registry:    registry,
		exchange:    exchange,
		queues:      []string{model.QueueJobs, model.QueueSubtitles},
		callTimeout: callTimeout,
		shutdown:    make(chan struct{}),
	}
}

// Start declares the queue topology and begins consuming. It returns
// once consumers are running; Stop drains them.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.queue.DeclareExchange(d.exchange, "direct"); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, queueName := range d.queues {
		queue, err := d.queue.DeclareWorkQueue(queueName)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
		}

		if err := d.queue.BindQueue(queueName, d.exchange, queueName); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
		}

		if _, err := d.queue.DeclareDelayQueue(queueName); err != nil {
			return fmt.Errorf("failed to declare delay queue for %s: %w", queueName, err)
		}

		consumerTag := fmt.Sprintf("%s-consumer-%s", queueName, primitive.NewObjectID().Hex())
		d.startConsumer(ctx, queue.Name, consumerTag)
	}

	log.Info().Strs("queues", d.queues).Msg("Job dispatching started")
	return nil
}

// Stop shuts down all consumers and waits for in-flight jobs.
func (d *Dispatcher) Stop() {
	close(d.shutdown)
	d.wg.Wait()
	log.Info().Msg("Job dispatching stopped")
}

func (d *Dispatcher) startConsumer(ctx context.Context, queueName, consumerTag string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		log.Info().
			Str("queue", queueName).
			Str("consumerTag", consumerTag).
			Msg("Starting job consumer")

		for {
			select {
			case <-ctx.Done():
				log.Info().Str("consumerTag", consumerTag).Msg("Context cancelled, stopping consumer")
				return
			case <-d.shutdown:
				log.Info().Str("consumerTag", consumerTag).Msg("Shutdown signal received, stopping consumer")
				return
			default:
			}

			deliveries, err := d.queue.Consume(queueName, consumerTag)
			if err != nil {
				log.Error().
					Err(err).
					Str("queue", queueName).
					Msg("Failed to consume from queue")

				time.Sleep(5 * time.Second)
				continue
			}

			for delivery := range deliveries {
				d.processDelivery(ctx, delivery)
			}

			log.Warn().
				Str("queue", queueName).
				Str("consumerTag", consumerTag).
				Msg("Consumer channel closed, reconnecting...")

			time.Sleep(5 * time.Second)
		}
	}()
}

// processDelivery handles a single delivery. Retry pacing rides on the
// delay queue, so the message itself is always acked; requeue-by-nack
// would retry immediately and without bound.
func (d *Dispatcher) processDelivery(ctx context.Context, delivery amqp.Delivery) {
	jobIDStr, ok := delivery.Headers["job_id"].(string)
	if !ok {
		log.Error().Msg("Message missing job_id header, rejecting")
		delivery.Nack(false, false)
		return
	}

	jobID, err := primitive.ObjectIDFromHex(jobIDStr)
	if err != nil {
		log.Error().Str("jobId", jobIDStr).Msg("Malformed job_id header, rejecting")
		delivery.Nack(false, false)
		return
	}

	logger := log.With().Str("jobId", jobID.Hex()).Logger()

	job, err := d.db.GetJobByID(ctx, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to retrieve job from database")
		delivery.Nack(false, false)
		return
	}

	logger = log.With().
		Str("jobId", jobID.Hex()).
		Str("kind", string(job.Kind)).
		Logger()

	if job.Terminal() {
		// Duplicate delivery of an already-resolved job.
		logger.Debug().Str("status", string(job.Status)).Msg("Job already resolved, dropping delivery")
		delivery.Ack(false)
		return
	}

	w, exists := d.registry.Get(job.Kind)
	if !exists {
		logger.Error().Msg("No worker registered for job kind")
		d.db.MarkJobFailed(ctx, jobID, fmt.Sprintf("no worker registered for kind %q", job.Kind))
		delivery.Ack(false)
		return
	}

	if err := d.db.MarkJobRunning(ctx, jobID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job running")
		delivery.Nack(false, false)
		return
	}

	logger.Info().Int("retry", job.RetryCount).Msg("Executing job")

	err = d.execute(ctx, w, job)

	if err != nil {
		d.handleFailure(ctx, job, err, logger)
	} else {
		d.handleSuccess(ctx, job, logger)
	}

	delivery.Ack(false)
}

// execute runs the worker, bounding item-level jobs with the call
// timeout so a stuck external call cannot hold a worker slot forever.
// Scans pace themselves with deliberate pauses and are bounded by
// cooperative cancellation instead.
func (d *Dispatcher) execute(ctx context.Context, w worker.Worker, job *model.Job) error {
	runCtx := ctx
	switch job.Kind {
	case model.KindTranscription, model.KindTranslation, model.KindSubtitle:
		if d.callTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, d.callTimeout)
			defer cancel()
		}
	}

	return w.Execute(runCtx, job)
}

func (d *Dispatcher) handleSuccess(ctx context.Context, job *model.Job, logger zerolog.Logger) {
	if err := d.db.MarkJobSucceeded(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job succeeded")
	}

	if err := d.sched.ReleaseContinuations(ctx, job.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to release continuations")
	}

	logger.Info().Msg("Job succeeded")
}

func (d *Dispatcher) handleFailure(ctx context.Context, job *model.Job, cause error, logger zerolog.Logger) {
	if model.IsPermanent(cause) {
		logger.Error().Err(cause).Msg("Job failed permanently, not retrying")
		d.fail(ctx, job, cause, logger)
		return
	}

	retried, err := d.sched.RequeueForRetry(ctx, job, cause)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to schedule retry, failing job")
		d.fail(ctx, job, cause, logger)
		return
	}
	if !retried {
		logger.Error().
			Err(cause).
			Int("retries", job.RetryCount).
			Msg("Retry budget exhausted, failing job")
		d.fail(ctx, job, cause, logger)
	}
}

func (d *Dispatcher) fail(ctx context.Context, job *model.Job, cause error, logger zerolog.Logger) {
	if err := d.db.MarkJobFailed(ctx, job.ID, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job failed")
	}

	reason := fmt.Sprintf("parent job %s failed: %v", job.ID.Hex(), cause)
	if err := d.sched.SkipContinuations(ctx, job.ID, reason); err != nil {
		logger.Error().Err(err).Msg("Failed to skip continuations")
	}
}
