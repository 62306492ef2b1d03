// Package batch contains the recurring backlog scan and the
// completion reporter that follows it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/model"
)

// Submitter is the scheduler slice the processor needs.
type Submitter interface {
	Enqueue(ctx context.Context, kind model.JobKind, lessonID string, params model.JobParams) (primitive.ObjectID, error)
	Schedule(ctx context.Context, kind model.JobKind, lessonID string, params model.JobParams, delay time.Duration) (primitive.ObjectID, error)
}

// Backlog discovers lessons lacking a derived artifact, oldest first.
type Backlog interface {
	FindLessonsMissingTranscript(ctx context.Context) ([]*model.Lesson, error)
	FindLessonsMissingSubtitle(ctx context.Context) ([]*model.Lesson, error)
}

// Options are the pacing knobs of one scan.
type Options struct {
	// GroupSize is how many submissions go out back to back.
	GroupSize int

	// GroupPause is the deliberate wait between groups. It caps the
	// submission rate at roughly GroupSize/GroupPause regardless of
	// backlog size, so a 10,000-item backlog cannot flood the worker
	// pool or the model-serving backend in one burst.
	GroupPause time.Duration

	// ReportDelay is how long after the scan the completion report
	// runs, an empirical estimate of total processing time.
	ReportDelay time.Duration
}

// RunSummary is the in-memory outcome of one scan: the job ids it
// produced plus submission counters. It is handed to the scheduled
// completion report and then discarded.
type RunSummary struct {
	ScanKind  model.JobKind
	Total     int
	Submitted int
	Errors    int
	Cancelled bool
	StartedAt time.Time
	JobIDs    []string
}

// Processor is the recurring backlog scan: discover lessons missing an
// artifact, submit one job each through the scheduler, throttled in
// fixed-size groups.
type Processor struct {
	catalog Backlog
	sched   Submitter
	opts    Options

	// sleep is the cancellable inter-group pause, injectable so tests
	// can run with recorded, instant pauses.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a batch processor.
func NewProcessor(catalog Backlog, sched Submitter, opts Options) *Processor {
	if opts.GroupSize <= 0 {
		opts.GroupSize = 50
	}

	return &Processor{
		catalog: catalog,
		sched:   sched,
		opts:    opts,
		sleep:   sleepCtx,
	}
}

// Run executes one scan for the given scan kind. One bad item never
// aborts the scan; cancellation is observed at item and group
// boundaries and stops further submission without touching in-flight
// jobs.
func (p *Processor) Run(ctx context.Context, scanKind model.JobKind) (*RunSummary, error) {
	itemKind, err := itemKindFor(scanKind)
	if err != nil {
		return nil, err
	}

	lessons, err := p.findBacklog(ctx, scanKind)
	if err != nil {
		return nil, fmt.Errorf("backlog query failed: %w", err)
	}

	summary := &RunSummary{
		ScanKind:  scanKind,
		Total:     len(lessons),
		StartedAt: time.Now(),
	}

	if len(lessons) == 0 {
		log.Info().Str("scan", string(scanKind)).Msg("Backlog empty, nothing to do")
		return summary, nil
	}

	groups := SplitIntoGroups(lessons, p.opts.GroupSize)

	log.Info().
		Str("scan", string(scanKind)).
		Int("backlog", len(lessons)).
		Int("groups", len(groups)).
		Int("groupSize", p.opts.GroupSize).
		Dur("groupPause", p.opts.GroupPause).
		Msg("Backlog scan starting")

	for gi, group := range groups {
		for _, lesson := range group {
			if ctx.Err() != nil {
				return p.cancelled(ctx, summary)
			}
			p.submitOne(ctx, itemKind, lesson, summary)
		}

		// Deliberate backpressure between groups, skipped after the
		// last one.
		if gi < len(groups)-1 && p.opts.GroupPause > 0 {
			if err := p.sleep(ctx, p.opts.GroupPause); err != nil {
				return p.cancelled(ctx, summary)
			}
		}
	}

	log.Info().
		Str("scan", string(scanKind)).
		Int("total", summary.Total).
		Int("submitted", summary.Submitted).
		Int("errors", summary.Errors).
		Msg("Backlog scan finished submitting")

	p.scheduleReport(ctx, summary)

	return summary, nil
}

func (p *Processor) findBacklog(ctx context.Context, scanKind model.JobKind) ([]*model.Lesson, error) {
	switch scanKind {
	case model.KindTranscriptionScan:
		return p.catalog.FindLessonsMissingTranscript(ctx)
	case model.KindSubtitleScan:
		return p.catalog.FindLessonsMissingSubtitle(ctx)
	default:
		return nil, fmt.Errorf("unknown scan kind %q", scanKind)
	}
}

func (p *Processor) submitOne(ctx context.Context, itemKind model.JobKind, lesson *model.Lesson, summary *RunSummary) {
	jobID, err := p.sched.Enqueue(ctx, itemKind, lesson.ID.Hex(), model.JobParams{
		Language: lesson.Language,
	})
	if err != nil {
		if errors.Is(err, model.ErrArtifactExists) {
			// A manual run got there first; the desired end state is
			// satisfied, count it as a success.
			summary.Submitted++
			log.Info().
				Str("lessonId", lesson.ID.Hex()).
				Msg("Artifact already exists, counting as submitted")
			return
		}

		summary.Errors++
		log.Error().
			Err(err).
			Str("lessonId", lesson.ID.Hex()).
			Str("kind", string(itemKind)).
			Msg("Failed to submit backlog item, continuing")
		return
	}

	summary.Submitted++
	summary.JobIDs = append(summary.JobIDs, jobID.Hex())
}

func (p *Processor) cancelled(ctx context.Context, summary *RunSummary) (*RunSummary, error) {
	summary.Cancelled = true
	log.Warn().
		Str("scan", string(summary.ScanKind)).
		Int("processed", summary.Submitted+summary.Errors).
		Int("total", summary.Total).
		Msg("Backlog scan cancelled, stopping submission")
	return summary, ctx.Err()
}

func (p *Processor) scheduleReport(ctx context.Context, summary *RunSummary) {
	if len(summary.JobIDs) == 0 {
		return
	}

	reportID, err := p.sched.Schedule(ctx, model.KindCompletionReport, "", model.JobParams{
		JobIDs: summary.JobIDs,
	}, p.opts.ReportDelay)
	if err != nil {
		log.Error().Err(err).Str("scan", string(summary.ScanKind)).Msg("Failed to schedule completion report")
		return
	}

	log.Info().
		Str("scan", string(summary.ScanKind)).
		Str("reportJobId", reportID.Hex()).
		Dur("delay", p.opts.ReportDelay).
		Int("jobs", len(summary.JobIDs)).
		Msg("Completion report scheduled")
}

func itemKindFor(scanKind model.JobKind) (model.JobKind, error) {
	switch scanKind {
	case model.KindTranscriptionScan:
		return model.KindTranscription, nil
	case model.KindSubtitleScan:
		return model.KindSubtitle, nil
	default:
		return "", fmt.Errorf("unknown scan kind %q", scanKind)
	}
}

// sleepCtx waits d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SplitIntoGroups is a generic function that divides a slice of items
// into groups of the specified size
func SplitIntoGroups[T any](items []T, groupSize int) [][]T {
	if groupSize <= 0 {
		return nil
	}

	if len(items) == 0 {
		return [][]T{}
	}

	numGroups := (len(items) + groupSize - 1) / groupSize
	groups := make([][]T, 0, numGroups)

	for i := 0; i < len(items); i += groupSize {
		end := i + groupSize
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[i:end])
	}

	return groups
}
