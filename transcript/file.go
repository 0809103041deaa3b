package transcript

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hupe1980/clinagents/core"
)

var _ Sink = (*FileStore)(nil)

// maxLine bounds one encoded transcript.
const maxLine = 16 << 20

// FileStore appends transcripts to one JSONL file in a run directory.
// Appends are serialized by a mutex and each line is written with a single
// Write call.
type FileStore struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	closed bool
}

// FileStoreOptions configure OpenFileStore.
type FileStoreOptions struct {
	// RunID selects transcripts-<run>.jsonl instead of transcripts.jsonl, so
	// repeated runs into one directory never share a file.
	RunID string
}

// OpenFileStore creates dir if needed and opens its transcript file for
// appending.
func OpenFileStore(dir string, optFns ...func(o *FileStoreOptions)) (*FileStore, error) {
	var opts FileStoreOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, core.NewSetupFault("transcript", err)
	}

	name := FileName
	if opts.RunID != "" {
		name = RunFileName(opts.RunID)
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, core.NewSetupFault("transcript", err)
	}

	return &FileStore{path: path, f: f}, nil
}

// Path returns the transcript file path.
func (s *FileStore) Path() string { return s.path }

// Append implements Sink.
func (s *FileStore) Append(_ context.Context, tr core.Transcript) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encode transcript %s: %w", tr.ID, err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("append transcript %s: %w", tr.ID, err)
	}

	return nil
}

// Close syncs and closes the file. Calling Close twice is a no-op.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}

	return s.f.Close()
}

// Read decodes one transcript per non-empty line of r.
func Read(r io.Reader) ([]core.Transcript, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		out  []core.Transcript
		line int
	)
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}

		var tr core.Transcript
		if err := json.Unmarshal(b, &tr); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tr)
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// Load reads a transcript file.
func Load(path string) ([]core.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	trs, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return trs, nil
}

// LoadDir reads every *.jsonl file directly inside dir, in file name order,
// and keeps only the latest run of each case (see Latest). A directory
// without transcripts is a SetupFault.
func LoadDir(dir string) ([]core.Transcript, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, core.NewSetupFault("transcript", err)
	}
	if len(paths) == 0 {
		return nil, &core.SetupFault{Component: "transcript", Problems: []string{fmt.Sprintf("no transcript files in %s", dir)}}
	}

	sort.Strings(paths)

	var out []core.Transcript
	for _, p := range paths {
		trs, err := Load(p)
		if err != nil {
			return nil, core.NewSetupFault("transcript", err)
		}
		out = append(out, trs...)
	}

	if len(out) == 0 {
		return nil, &core.SetupFault{Component: "transcript", Problems: []string{fmt.Sprintf("no transcripts in %s", dir)}}
	}

	return Latest(out), nil
}

// Latest drops the transcripts of superseded runs. For every case it keeps
// the transcripts of the run whose copy started last; a later position wins
// ties. Relative order of the kept transcripts is preserved.
func Latest(trs []core.Transcript) []core.Transcript {
	type pick struct {
		runID string
		index int
	}

	latest := make(map[string]pick, len(trs))
	for i, tr := range trs {
		p, ok := latest[tr.CaseID]
		if !ok || !tr.StartedAt.Before(trs[p.index].StartedAt) {
			latest[tr.CaseID] = pick{runID: tr.RunID, index: i}
		}
	}

	out := make([]core.Transcript, 0, len(trs))
	for _, tr := range trs {
		if latest[tr.CaseID].runID == tr.RunID {
			out = append(out, tr)
		}
	}

	return out
}
