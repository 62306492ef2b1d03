package worker

import (
	"context"

	"insightlearn/internal/batch"
	"insightlearn/internal/model"
)

// ScanWorker runs one nightly backlog scan as a job, so the scan
// itself gets the durable queue's retry treatment (a database that is
// down at 3 AM fails the attempt; the backoff retries it).
type ScanWorker struct {
	processor *batch.Processor
	kind      model.JobKind
	name      string
}

// NewTranscriptionScanWorker wraps the processor for the transcript
// backlog.
func NewTranscriptionScanWorker(processor *batch.Processor) *ScanWorker {
	return &ScanWorker{
		processor: processor,
		kind:      model.KindTranscriptionScan,
		name:      "Transcription Backlog Scan",
	}
}

// NewSubtitleScanWorker wraps the processor for the subtitle backlog.
func NewSubtitleScanWorker(processor *batch.Processor) *ScanWorker {
	return &ScanWorker{
		processor: processor,
		kind:      model.KindSubtitleScan,
		name:      "Subtitle Backlog Scan",
	}
}

func (w *ScanWorker) Kind() model.JobKind { return w.kind }

func (w *ScanWorker) Name() string { return w.name }

func (w *ScanWorker) Execute(ctx context.Context, job *model.Job) error {
	_, err := w.processor.Run(ctx, w.kind)
	return err
}
