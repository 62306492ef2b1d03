package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"insightlearn/internal/model"
)

type fakeJobLookup struct {
	jobs map[primitive.ObjectID]*model.Job
	err  error
}

func (f *fakeJobLookup) GetJobByID(ctx context.Context, id primitive.ObjectID) (*model.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func addJob(lookup *fakeJobLookup, status model.JobStatus) string {
	id := primitive.NewObjectID()
	lookup.jobs[id] = &model.Job{ID: id, Kind: model.KindTranscription, Status: status}
	return id.Hex()
}

func TestReporterClassifiesOutcomes(t *testing.T) {
	lookup := &fakeJobLookup{jobs: map[primitive.ObjectID]*model.Job{}}

	ids := []string{
		addJob(lookup, model.StatusSucceeded),
		addJob(lookup, model.StatusSucceeded),
		addJob(lookup, model.StatusSucceeded),
		addJob(lookup, model.StatusFailed),
		addJob(lookup, model.StatusSkipped),
		addJob(lookup, model.StatusRunning),
		addJob(lookup, model.StatusQueued),
	}

	report := NewReporter(lookup).Run(context.Background(), ids)

	assert.Equal(t, 7, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 2, report.Failed, "skipped continuations count as failures in the tally")
	assert.Equal(t, 2, report.Processing)
	assert.Zero(t, report.Pending)
}

func TestReporterCountsLookupFailuresAsPending(t *testing.T) {
	lookup := &fakeJobLookup{jobs: map[primitive.ObjectID]*model.Job{}}
	succeeded := addJob(lookup, model.StatusSucceeded)

	ids := []string{
		succeeded,
		"not-a-hex-id",
		primitive.NewObjectID().Hex(), // unknown id
	}

	report := NewReporter(lookup).Run(context.Background(), ids)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Pending, "bad ids and lookup misses degrade to pending, never an error")
}

func TestReportPercentages(t *testing.T) {
	report := &Report{Total: 8, Succeeded: 6, Failed: 2}

	assert.InDelta(t, 75.0, report.SuccessPercent(), 1e-9)
	assert.InDelta(t, 25.0, report.FailurePercent(), 1e-9)

	empty := &Report{}
	assert.Zero(t, empty.SuccessPercent())
	assert.Zero(t, empty.FailurePercent())
}

func TestReporterEmptyRun(t *testing.T) {
	report := NewReporter(&fakeJobLookup{jobs: map[primitive.ObjectID]*model.Job{}}).Run(context.Background(), nil)

	require.NotNil(t, report)
	assert.Zero(t, report.Total)
}
