package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/model"
)

// JobLookup is the job-store slice the reporter needs.
type JobLookup interface {
	GetJobByID(ctx context.Context, id primitive.ObjectID) (*model.Job, error)
}

// Report tallies the outcomes of one batch run's jobs. Jobs that
// cannot be found or looked up are counted as pending rather than
// failing the report.
type Report struct {
	Total      int
	Succeeded  int
	Failed     int
	Processing int
	Pending    int
}

// SuccessPercent is the share of succeeded jobs over the total.
func (r *Report) SuccessPercent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Succeeded) / float64(r.Total) * 100
}

// FailurePercent is the share of failed jobs over the total.
func (r *Report) FailurePercent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Failed) / float64(r.Total) * 100
}

// String renders the tallied report.
func (r *Report) String() string {
	var b strings.Builder

	b.WriteString("batch completion report\n")
	fmt.Fprintf(&b, "  total:      %d\n", r.Total)
	fmt.Fprintf(&b, "  succeeded:  %d (%.1f%%)\n", r.Succeeded, r.SuccessPercent())
	fmt.Fprintf(&b, "  failed:     %d (%.1f%%)\n", r.Failed, r.FailurePercent())
	fmt.Fprintf(&b, "  processing: %d\n", r.Processing)
	fmt.Fprintf(&b, "  pending:    %d", r.Pending)

	return b.String()
}

// Reporter produces the delayed completion report for a batch run.
// It is read-only and single-attempt: purely informational.
type Reporter struct {
	jobs JobLookup
}

// NewReporter creates a completion reporter.
func NewReporter(jobs JobLookup) *Reporter {
	return &Reporter{jobs: jobs}
}

// Run classifies every job id into succeeded, failed, processing or
// pending and logs the tallied report. Individual lookup failures are
// absorbed as pending.
func (r *Reporter) Run(ctx context.Context, jobIDs []string) *Report {
	report := &Report{Total: len(jobIDs)}

	for _, idHex := range jobIDs {
		report.classify(r.lookup(ctx, idHex))
	}

	log.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("processing", report.Processing).
		Int("pending", report.Pending).
		Str("successPercent", fmt.Sprintf("%.1f%%", report.SuccessPercent())).
		Str("failurePercent", fmt.Sprintf("%.1f%%", report.FailurePercent())).
		Msg(report.String())

	return report
}

func (r *Reporter) lookup(ctx context.Context, idHex string) *model.Job {
	id, err := primitive.ObjectIDFromHex(idHex)
	if err != nil {
		log.Warn().Str("jobId", idHex).Msg("Malformed job id in batch run, counting as pending")
		return nil
	}

	job, err := r.jobs.GetJobByID(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("jobId", idHex).Msg("Job lookup failed, counting as pending")
		return nil
	}

	return job
}

func (rep *Report) classify(job *model.Job) {
	if job == nil {
		rep.Pending++
		return
	}

	switch job.Status {
	case model.StatusSucceeded:
		rep.Succeeded++
	case model.StatusFailed, model.StatusSkipped:
		rep.Failed++
	case model.StatusQueued, model.StatusRunning:
		rep.Processing++
	default:
		rep.Pending++
	}
}
