package transcript

import (
	"context"

	"github.com/hupe1980/clinagents/core"
)

// FileName is the transcript file written into a run directory when no run
// id is given.
const FileName = "transcripts.jsonl"

// RunFileName is the transcript file of one run.
func RunFileName(runID string) string { return "transcripts-" + runID + ".jsonl" }

// Sink receives finished transcripts. Implementations must be safe for
// concurrent use; the runner appends from every worker.
type Sink interface {
	Append(ctx context.Context, tr core.Transcript) error
}

// Store is a Sink that can read transcripts back.
type Store interface {
	Sink
	Get(ctx context.Context, id string) (core.Transcript, error)
	List(ctx context.Context) ([]core.Transcript, error)
}

// MultiSink fans one transcript out to several sinks. The first error stops
// the fan-out.
type MultiSink []Sink

// Append implements Sink.
func (m MultiSink) Append(ctx context.Context, tr core.Transcript) error {
	for _, s := range m {
		if err := s.Append(ctx, tr); err != nil {
			return err
		}
	}
	return nil
}
