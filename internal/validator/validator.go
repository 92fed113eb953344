// Package validator implements the Validator Registry & Orchestrator: a
// named, ordered table of independently invocable checks, each producing a
// Verdict, aggregated per a declared validator-set label. Generalized from
// the teacher's internal/ratchet.Gate dispatch-table shape (switch on step
// name) to a registered-function table keyed by validator name, since the
// governance engine's validator set is data-declared per identity
// (ci_enforcement_contract.required_validator_set_label) rather than fixed
// at compile time like the teacher's five ratchet steps.
package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boshu2/identityctl/internal/docstore"
)

// CheckFunc is one in-process validator. It returns ok plus human-readable
// finding strings (empty when ok); err is reserved for infrastructure
// failure (I/O, malformed input) distinct from a validation rejection.
type CheckFunc func(tr *docstore.TaskRecord, identityID string) (ok bool, findings []string, err error)

// Validator is one named, independently invocable check.
type Validator struct {
	Name string
	Run  CheckFunc
}

// Verdict is the result of running one Validator once.
type Verdict struct {
	Name       string   `json:"name"`
	OK         bool     `json:"ok"`
	Command    string   `json:"command"`
	StartedAt  string   `json:"started_at"`
	EndedAt    string   `json:"ended_at"`
	ExitCode   int      `json:"exit_code"`
	Findings   []string `json:"findings,omitempty"`
	LogPath    string   `json:"log_path"`
	LogSHA256  string   `json:"log_sha256"`
}

// Registry is an ordered, named table of Validators plus the validator-set
// labels that select subsets of it.
type Registry struct {
	order      []string
	byName     map[string]Validator
	sets       map[string][]string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Validator), sets: make(map[string][]string)}
}

// Register adds v to the registry in declared order. Re-registering a name
// replaces its function but keeps its original position.
func (reg *Registry) Register(v Validator) {
	if _, exists := reg.byName[v.Name]; !exists {
		reg.order = append(reg.order, v.Name)
	}
	reg.byName[v.Name] = v
}

// DeclareSet names a validator-set label (e.g. "v1_2_required") as an
// ordered list of validator names.
func (reg *Registry) DeclareSet(label string, names []string) {
	reg.sets[label] = append([]string(nil), names...)
}

// Names returns every declared validator name in registration order.
func (reg *Registry) Names() []string {
	return append([]string(nil), reg.order...)
}

// RunContext carries per-invocation parameters shared across RunSet calls.
type RunContext struct {
	TaskRecord *docstore.TaskRecord
	IdentityID string
	RunID      string // stamps each check's log filename so re-runs never collide or grow a prior run's log
	LogDir     string // per-identity directory check logs are written under
	Now        func() time.Time
}

func (ctx RunContext) now() time.Time {
	if ctx.Now != nil {
		return ctx.Now()
	}
	return time.Now()
}

// RunSet invokes every validator named by setLabel (plus any candidates, if
// non-nil, appended after the declared set) in declared order, writing one
// fresh <RunID>-check-NN.log file per validator under ctx.LogDir and aggregating the
// verdicts.
func (reg *Registry) RunSet(setLabel string, candidates []string, ctx RunContext) ([]Verdict, error) {
	names, known := reg.sets[setLabel]
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSet, setLabel)
	}
	names = append(append([]string(nil), names...), candidates...)

	verdicts := make([]Verdict, 0, len(names))
	for i, name := range names {
		v, ok := reg.byName[name]
		if !ok {
			return verdicts, fmt.Errorf("%w: %s", ErrUnknownValidator, name)
		}

		verdict, err := reg.runOne(v, ctx, i+1)
		if err != nil {
			return verdicts, err
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts, nil
}

func (reg *Registry) runOne(v Validator, ctx RunContext, seq int) (Verdict, error) {
	started := ctx.now()
	ok, findings, err := v.Run(ctx.TaskRecord, ctx.IdentityID)
	ended := ctx.now()

	verdict := Verdict{
		Name:      v.Name,
		OK:        ok && err == nil,
		Command:   "in-process:" + v.Name,
		StartedAt: docstore.Timestamp(started),
		EndedAt:   docstore.Timestamp(ended),
		Findings:  findings,
	}
	if err != nil {
		verdict.ExitCode = 1
		verdict.Findings = append(verdict.Findings, err.Error())
	}

	if ctx.LogDir != "" {
		logPath := filepath.Join(ctx.LogDir, fmt.Sprintf("%s-check-%02d.log", ctx.RunID, seq))
		if writeErr := writeCheckLog(logPath, verdict, err); writeErr != nil {
			return verdict, fmt.Errorf("write check log for %s: %w", v.Name, writeErr)
		}
		verdict.LogPath = logPath
		if sum, sumErr := sha256File(logPath); sumErr == nil {
			verdict.LogSHA256 = sum
		}
	}

	return verdict, nil
}

// writeCheckLog renders one check's log in the header-plus-[stdout]/[stderr]
// text format spec.md §6.4 requires and writes it once at a fresh path; a
// re-run never reopens or appends to a prior run's log, so the log's
// recorded SHA-256 stays stable for as long as the file exists.
func writeCheckLog(path string, v Verdict, runErr error) error {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\n", v.Command)
	fmt.Fprintf(&b, "exit_code: %d\n", v.ExitCode)
	fmt.Fprintf(&b, "started_at: %s\n", v.StartedAt)
	fmt.Fprintf(&b, "ended_at: %s\n", v.EndedAt)
	b.WriteString("\n[stdout]\n")
	for _, f := range v.Findings {
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("\n[stderr]\n")
	if runErr != nil {
		b.WriteString(runErr.Error())
		b.WriteString("\n")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return os.WriteFile(path, []byte(b.String()), 0600)
}

func sha256File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// AllPassed reports whether every verdict in verdicts succeeded.
func AllPassed(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if !v.OK {
			return false
		}
	}
	return true
}

// SortedNames is a small helper for deterministic self-test output ordering.
func SortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
