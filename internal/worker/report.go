package worker

import (
	"context"

	"insightlearn/internal/batch"
	"insightlearn/internal/model"
)

// ReportWorker executes the delayed completion report for a batch run.
type ReportWorker struct {
	reporter *batch.Reporter
}

// NewReportWorker wires the completion report worker.
func NewReportWorker(reporter *batch.Reporter) *ReportWorker {
	return &ReportWorker{reporter: reporter}
}

func (w *ReportWorker) Kind() model.JobKind { return model.KindCompletionReport }

func (w *ReportWorker) Name() string { return "Completion Reporter" }

func (w *ReportWorker) Execute(ctx context.Context, job *model.Job) error {
	w.reporter.Run(ctx, job.Params.JobIDs)
	return nil
}
