// Package chainlog provides a file-backed append-only log abstraction with
// exactly one mutating operation, Append, per the governance spec's design
// note: "model as a file-backed log abstraction with one operation,
// append(record); forbid read-modify-write anywhere in the codebase."
// Grounded on the teacher's internal/ratchet.Chain file-locking discipline
// (withLockedFile + syscall.Flock), generalized from the teacher's
// step-keyed ratchet chain to an arbitrary ordered record log, used (via
// internal/docstore) for rulebook rows and arbitration decision records.
package chainlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Log is an append-only, flock-guarded JSONL file.
type Log struct {
	path string
}

// Open returns a Log bound to path. The file is created lazily on first
// Append; Open performs no I/O.
func Open(path string) *Log {
	return &Log{path: path}
}

// Path returns the underlying file path.
func (l *Log) Path() string { return l.path }

// Append serializes record as one JSON line and appends it under an
// exclusive lock. It never reads the file's existing content.
func (l *Log) Append(record any) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already done via lock release
	}()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck // unlock best-effort
	}()

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", l.path, err)
	}
	return nil
}

// ReadAll returns every JSONL record in the log at path, skipping blank and
// malformed lines; a missing file yields no records and no error. This is a
// read-only convenience; it never participates in a read-modify-write cycle
// because nothing ever rewrites the file.
func ReadAll[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var records []T
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec T
		if decErr := json.Unmarshal(line, &rec); decErr != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
