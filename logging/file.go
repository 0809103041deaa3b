package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileName is the log file written into a run directory when file logging is enabled.
const FileName = "run.log"

// OpenRunLog opens (appending) dir/run.log and returns a writer that tees to
// both the file and console. Close releases the file only.
func OpenRunLog(dir string, console io.Writer) (io.Writer, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}

	if console == nil {
		return f, f, nil
	}

	return io.MultiWriter(console, f), f, nil
}
