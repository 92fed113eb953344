// Package docstore provides typed load/save for every document kind the
// governance engine reads or writes: the YAML catalog, pack files (JSON task
// record, markdown prompt/history, JSONL rulebook, YAML meta/agent
// descriptors), and JSON report/plan artifacts. Every mapping document
// rejects non-object roots. JSON writes are pretty-printed with a trailing
// newline, UTF-8; reports use stable insertion order rather than sorted keys
// since downstream signatures hash log files, not the reports themselves.
package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/identityctl/internal/chainlog"
)

// Store provides typed document access rooted at a filesystem location.
// It holds no mutable state itself; callers pass explicit paths.
type Store struct{}

// New creates a document Store.
func New() *Store { return &Store{} }

// LoadCatalog reads and validates a catalog YAML document.
func (s *Store) LoadCatalog(path string) (*Catalog, error) {
	raw, err := decodeYAMLMapping(path)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := remarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return &cat, nil
}

// SaveCatalog writes a catalog document atomically.
func (s *Store) SaveCatalog(path string, cat *Catalog) error {
	return atomicWriteYAML(path, cat)
}

// LoadTaskRecord reads and decodes a CURRENT_TASK.json document. It also
// returns the raw top-level key set so callers can run the "required
// top-level key present" check against keys the typed struct may leave zero
// for being merely absent versus explicitly empty.
func (s *Store) LoadTaskRecord(path string) (*TaskRecord, map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read task record %s: %w", path, err)
	}

	var rawKeys map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawKeys); err != nil {
		return nil, nil, fmt.Errorf("parse task record %s: %w", path, err)
	}

	var tr TaskRecord
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, nil, fmt.Errorf("decode task record %s: %w", path, err)
	}
	return &tr, rawKeys, nil
}

// SaveTaskRecord writes a task record document atomically.
func (s *Store) SaveTaskRecord(path string, tr *TaskRecord) error {
	return atomicWriteJSON(path, tr)
}

// LoadMeta reads a pack META.yaml document.
func (s *Store) LoadMeta(path string) (*Meta, error) {
	raw, err := decodeYAMLMapping(path)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := remarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode meta %s: %w", path, err)
	}
	return &m, nil
}

// LoadAgentDescriptor reads an optional agents/identity.yaml document.
func (s *Store) LoadAgentDescriptor(path string) (*AgentDescriptor, error) {
	raw, err := decodeYAMLMapping(path)
	if err != nil {
		return nil, err
	}
	var d AgentDescriptor
	if err := remarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode agent descriptor %s: %w", path, err)
	}
	return &d, nil
}

// LoadRulebook reads every JSONL row of a rulebook file, skipping malformed
// lines the way the original Python validator does (reporting them as
// findings rather than aborting the whole read).
func (s *Store) LoadRulebook(path string) (rows []RulebookRow, malformed []int, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read rulebook %s: %w", path, err)
	}

	lineNum := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		lineNum++
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		var row RulebookRow
		if jerr := json.Unmarshal(trimmed, &row); jerr != nil {
			malformed = append(malformed, lineNum)
			continue
		}
		rows = append(rows, row)
	}
	return rows, malformed, nil
}

// AppendRulebookRow appends one record to the rulebook file. This is the
// only mutation the rulebook ever undergoes; the file is never rewritten.
func (s *Store) AppendRulebookRow(path string, row RulebookRow) error {
	if row.RuleID == "" {
		return ErrEmptyRulebookID
	}
	return chainlog.Open(path).Append(row)
}

// AppendHistoryLine appends one stamped line to the markdown history ledger.
func (s *Store) AppendHistoryLine(path, line string) error {
	return appendLockedLine(path, func() ([]byte, error) {
		return []byte(line), nil
	})
}

// AppendJSONL appends an arbitrary JSON-encodable record as one JSONL line
// to path, used by arbitration decision logs and similar append-only
// artifacts outside the rulebook/history pair.
func (s *Store) AppendJSONL(path string, v any) error {
	return chainlog.Open(path).Append(v)
}

// LoadJSON decodes an arbitrary JSON document into v.
func (s *Store) LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes an arbitrary JSON document atomically, pretty-printed with
// a trailing newline.
func (s *Store) SaveJSON(path string, v any) error {
	return atomicWriteJSON(path, v)
}

// --- internals ---

func decodeYAMLMapping(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml %s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrRootNotMapping, path)
	}
	return raw, nil
}

// remarshal round-trips a generic map into a typed struct via JSON, since
// yaml.v3 decodes into map[string]any with incompatible key types for
// json.Unmarshal's expectations; JSON is the common intermediate format
// every document in this engine ultimately shares (task records are JSON
// natively; YAML documents are re-typed through this helper).
func remarshal(raw map[string]any, dst any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func atomicWriteJSON(path string, v any) error {
	return atomicWrite(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func atomicWriteYAML(path string, v any) error {
	return atomicWrite(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		defer enc.Close() //nolint:errcheck // best-effort on write path already checked above
		return enc.Encode(v)
	})
}

// atomicWrite writes to a temp file in the same directory and renames into
// place, so a reader never observes a partially-written document.
func atomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// appendLockedLine opens path for append under an exclusive flock, appends
// one newline-terminated line produced by encode, and releases the lock.
// This is the sole mutation path for history files: it never
// reads the existing content back, so a read-modify-write race is
// structurally impossible.
func appendLockedLine(path string, encode func() ([]byte, error)) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already done via lock release
	}()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck // unlock best-effort
	}()

	line, err := encode()
	if err != nil {
		return fmt.Errorf("encode line: %w", err)
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
