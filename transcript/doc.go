// Package transcript persists the terminal transcripts of case runs.
//
// A Sink receives transcripts as cases finish; a Store can also read them
// back. Two implementations are provided:
//
//   - InMemoryStore keeps encoded transcripts in process, for tests and
//     library use.
//   - FileStore appends one JSON document per line to transcripts-<run>.jsonl
//     in an experiment directory. Every line is self-contained, so a crashed
//     run leaves every finished case readable.
//
// Load and LoadDir read JSONL files back for evaluation. LoadDir keeps only
// the latest run of each case, so re-running an experiment replaces its
// earlier transcripts instead of counting them twice.
package transcript
