// Package installer implements the identity pack Installer: content
// signature computation, conflict classification, and the
// plan/dry-run/install/verify/rollback subcommand set. Grounded on the
// original identity_installer.py's signature function, conflict table, and
// subcommand set, wired to the teacher's atomic-write (internal/docstore)
// and glob-evidence-discovery (internal/locator) conventions rather than
// the python script's ad hoc file walking.
package installer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/locator"
)

// ConflictType names the installer's classification of a source/target pair.
type ConflictType string

const (
	ConflictFreshInstall      ConflictType = "fresh_install"
	ConflictSameSignature     ConflictType = "same_signature"
	ConflictDestructiveReplace ConflictType = "destructive_replace"
	ConflictCompatibleUpgrade ConflictType = "compatible_upgrade"
)

// Action names the installer's response to a classified conflict.
type Action string

const (
	ActionGuardedApply    Action = "guarded_apply"
	ActionNoOpWithReport  Action = "no_op_with_report"
	ActionAbortAndExplain Action = "abort_and_explain"
)

// Classify implements the conflict table from spec §4.7:
//
//	destination absent      -> fresh_install       -> guarded_apply
//	srcSig == dstSig         -> same_signature      -> no_op_with_report
//	destructive flag is true -> destructive_replace -> guarded_apply (w/ backup+rollback)
//	otherwise                -> compatible_upgrade  -> abort_and_explain
func Classify(srcSig, dstSig string, dstExists, destructive bool) (ConflictType, Action) {
	if !dstExists {
		return ConflictFreshInstall, ActionGuardedApply
	}
	if srcSig != "" && srcSig == dstSig {
		return ConflictSameSignature, ActionNoOpWithReport
	}
	if destructive {
		return ConflictDestructiveReplace, ActionGuardedApply
	}
	return ConflictCompatibleUpgrade, ActionAbortAndExplain
}

// Invocation records the installer tool id that Verify matches against
// ToolID.
type Invocation struct {
	Tool       string `json:"tool"`
	Entrypoint string `json:"entrypoint"`
	Command    string `json:"command"`
}

// Report is the install/verify/rollback artifact, mirroring
// identity_installer.py's _build_report shape.
type Report struct {
	ReportID              string       `json:"report_id"`
	IdentityID            string       `json:"identity_id"`
	GeneratedAt           string       `json:"generated_at"`
	Operation             string       `json:"operation"`
	ConflictType          ConflictType `json:"conflict_type"`
	Action                Action       `json:"action"`
	SourcePack            string       `json:"source_pack"`
	TargetPack            string       `json:"target_pack"`
	SourceSignature       string       `json:"source_signature"`
	TargetSignatureBefore string       `json:"target_signature_before,omitempty"`
	PreservedPaths        []string     `json:"preserved_paths,omitempty"`
	DryRun                bool         `json:"dry_run"`
	ChangedFiles          []string     `json:"changed_files,omitempty"`
	BackupRef             string       `json:"backup_ref,omitempty"`
	RollbackRef           string       `json:"rollback_ref,omitempty"`
	InstallerInvocation   Invocation   `json:"installer_invocation"`
	VerifiedReportID      string       `json:"verified_report_id,omitempty"`
}

// ToolID is the installer_invocation.tool value every report carries and
// Verify requires on the report it checks.
const ToolID = "identity-installer"

// Input carries everything one installer invocation needs.
type Input struct {
	IdentityID   string
	SourcePack   string
	TargetPack   string
	ReportDir    string
	BackupDir    string
	Destructive  bool

	CatalogPath string
	Title       string
	Description string
	Register    bool
	Activate    bool

	Now      func() time.Time
	NewRunID func() string
}

func (in Input) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in Input) runID() string {
	if in.NewRunID != nil {
		return in.NewRunID()
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// Installer runs the plan/install/verify/rollback operations against a
// document Store.
type Installer struct {
	Store *docstore.Store
}

// New creates an Installer bound to store.
func New(store *docstore.Store) *Installer {
	return &Installer{Store: store}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (i *Installer) classifyPair(in Input) (srcSig, dstSig string, conflictType ConflictType, action Action, err error) {
	srcSig, err = Signature(in.SourcePack)
	if err != nil {
		return "", "", "", "", fmt.Errorf("signature source pack %s: %w", in.SourcePack, err)
	}
	dstExists := dirExists(in.TargetPack)
	if dstExists {
		dstSig, err = Signature(in.TargetPack)
		if err != nil {
			return "", "", "", "", fmt.Errorf("signature target pack %s: %w", in.TargetPack, err)
		}
	}
	conflictType, action = Classify(srcSig, dstSig, dstExists, in.Destructive)
	return srcSig, dstSig, conflictType, action, nil
}

func (i *Installer) buildReport(in Input, operation string, conflictType ConflictType, action Action, srcSig, dstSigBefore, backupRef, rollbackRef string, dryRun bool, changed []string) (*Report, string) {
	now := in.now()
	reportID := fmt.Sprintf("identity-install-%s-%s-%d", in.IdentityID, operation, now.UnixNano())
	var preserved []string
	if dirExists(in.TargetPack) {
		preserved = []string{in.TargetPack}
	}
	report := &Report{
		ReportID:              reportID,
		IdentityID:            in.IdentityID,
		GeneratedAt:           docstore.Timestamp(now),
		Operation:             operation,
		ConflictType:          conflictType,
		Action:                action,
		SourcePack:            in.SourcePack,
		TargetPack:            in.TargetPack,
		SourceSignature:       srcSig,
		TargetSignatureBefore: dstSigBefore,
		PreservedPaths:        preserved,
		DryRun:                dryRun,
		ChangedFiles:          changed,
		BackupRef:             backupRef,
		RollbackRef:           rollbackRef,
		InstallerInvocation: Invocation{
			Tool:       ToolID,
			Entrypoint: "cmd/identity install",
			Command:    fmt.Sprintf("identity install %s --identity-id %s", operation, in.IdentityID),
		},
	}
	path := filepath.Join(in.ReportDir, reportID+".json")
	return report, path
}

// Plan classifies the source/target pair and emits a dry-run report without
// mutating anything. Used by the "plan" subcommand; "dry-run" uses DryRun.
func (i *Installer) Plan(in Input) (*Report, string, error) {
	srcSig, dstSig, conflictType, action, err := i.classifyPair(in)
	if err != nil {
		return nil, "", err
	}
	report, path := i.buildReport(in, "plan", conflictType, action, srcSig, dstSig, "", "", true, nil)
	if err := i.Store.SaveJSON(path, report); err != nil {
		return nil, "", fmt.Errorf("write plan report: %w", err)
	}
	return report, path, nil
}

// Install applies the classified action (guarded_apply copies the tree,
// backing up the target first on destructive_replace; same_signature and
// compatible_upgrade never mutate the target) and emits an install report,
// mirrored into the runtime examples directory for sample-validator
// consumption per spec §4.7.
func (i *Installer) Install(in Input) (*Report, string, error) {
	srcSig, dstSig, conflictType, action, err := i.classifyPair(in)
	if err != nil {
		return nil, "", err
	}

	var backupRef, rollbackRef string
	var changed []string

	if action == ActionGuardedApply {
		if conflictType == ConflictDestructiveReplace && dirExists(in.TargetPack) {
			if in.BackupDir == "" {
				return nil, "", ErrDestructiveReplaceRequiresBackup
			}
			backupDir := filepath.Join(in.BackupDir, fmt.Sprintf("%s-%d", in.IdentityID, in.now().UnixNano()))
			if err := copyTree(in.TargetPack, backupDir); err != nil {
				return nil, "", fmt.Errorf("backup target before replace: %w", err)
			}
			backupRef = backupDir
			rollbackRef = "restore_from:" + backupDir
		}
		changed, err = syncPack(in.SourcePack, in.TargetPack)
		if err != nil {
			return nil, "", fmt.Errorf("sync pack: %w", err)
		}
	}

	if in.Register {
		if err := i.register(in); err != nil {
			return nil, "", fmt.Errorf("register identity: %w", err)
		}
	}

	report, path := i.buildReport(in, "install", conflictType, action, srcSig, dstSig, backupRef, rollbackRef, false, changed)
	if err := i.Store.SaveJSON(path, report); err != nil {
		return nil, "", fmt.Errorf("write install report: %w", err)
	}

	mirror := filepath.Join(filepath.Dir(filepath.Dir(in.ReportDir)), "examples", "install",
		fmt.Sprintf("install-report-%s-%s.json", in.now().Format("2006-01-02"), in.IdentityID))
	if err := i.Store.SaveJSON(mirror, report); err != nil {
		return nil, "", fmt.Errorf("write install report mirror: %w", err)
	}

	return report, path, nil
}

// DryRun behaves like Install but never mutates the target tree or
// catalog, regardless of the classified action.
func (i *Installer) DryRun(in Input) (*Report, string, error) {
	srcSig, dstSig, conflictType, action, err := i.classifyPair(in)
	if err != nil {
		return nil, "", err
	}
	report, path := i.buildReport(in, "dry-run", conflictType, action, srcSig, dstSig, "", "", true, nil)
	if err := i.Store.SaveJSON(path, report); err != nil {
		return nil, "", fmt.Errorf("write dry-run report: %w", err)
	}
	return report, path, nil
}

// requiredReportFields are the fields Verify requires present on a loaded
// install report, per identity_installer.py /
// validate_identity_install_provenance.py.
var requiredReportFields = []string{
	"report_id", "identity_id", "generated_at", "operation",
	"conflict_type", "action", "installer_invocation",
}

// Verify loads the latest install report for identityID under reportDir and
// asserts it is well-formed and scoped to the right identity, then emits a
// verify report referencing it.
func (i *Installer) Verify(in Input) (*Report, string, error) {
	latest, err := latestInstallReport(in.ReportDir, in.IdentityID)
	if err != nil {
		return nil, "", err
	}

	var raw map[string]any
	if err := i.Store.LoadJSON(latest, &raw); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrNoReportFound, err)
	}
	for _, field := range requiredReportFields {
		if _, ok := raw[field]; !ok {
			return nil, "", fmt.Errorf("install report %s missing field %q", latest, field)
		}
	}
	if id, _ := raw["identity_id"].(string); id != in.IdentityID {
		return nil, "", fmt.Errorf("%w: report=%s want=%s", ErrIdentityMismatch, id, in.IdentityID)
	}
	inv, _ := raw["installer_invocation"].(map[string]any)
	if tool, _ := inv["tool"].(string); tool != ToolID {
		return nil, "", fmt.Errorf("installer_invocation.tool must be %q, got %q", ToolID, tool)
	}

	conflictType, _ := raw["conflict_type"].(string)
	reportID, _ := raw["report_id"].(string)

	report, path := i.buildReport(in, "verify", ConflictType(conflictType), "verified", "", "", "", "", false, nil)
	report.VerifiedReportID = reportID
	if err := i.Store.SaveJSON(path, report); err != nil {
		return nil, "", fmt.Errorf("write verify report: %w", err)
	}
	return report, path, nil
}

// Rollback restores the target pack from a "restore_from:<path>" backup
// reference, replacing whatever tree currently occupies the target.
func (i *Installer) Rollback(in Input, rollbackRef string) error {
	const prefix = "restore_from:"
	if !strings.HasPrefix(rollbackRef, prefix) {
		return fmt.Errorf("%w: %s", ErrInvalidRollbackRef, rollbackRef)
	}
	backup := strings.TrimPrefix(rollbackRef, prefix)
	if !dirExists(backup) {
		return fmt.Errorf("backup path not found: %s", backup)
	}
	if dirExists(in.TargetPack) {
		if err := os.RemoveAll(in.TargetPack); err != nil {
			return fmt.Errorf("remove current target: %w", err)
		}
	}
	if err := copyTree(backup, in.TargetPack); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

func (i *Installer) register(in Input) error {
	cat, err := i.Store.LoadCatalog(in.CatalogPath)
	if err != nil {
		return err
	}
	found := false
	for idx := range cat.Identities {
		if cat.Identities[idx].ID == in.IdentityID {
			cat.Identities[idx].PackPath = in.TargetPack
			if in.Title != "" {
				cat.Identities[idx].Title = in.Title
			}
			if in.Description != "" {
				cat.Identities[idx].Description = in.Description
			}
			if in.Activate {
				cat.Identities[idx].Status = "active"
			}
			found = true
			break
		}
	}
	if !found {
		status := "inactive"
		if in.Activate {
			status = "active"
		}
		title := in.Title
		if title == "" {
			title = in.IdentityID
		}
		cat.Identities = append(cat.Identities, docstore.CatalogEntry{
			ID:                  in.IdentityID,
			Title:               title,
			Description:         in.Description,
			Status:              status,
			MethodologyVersion:  "v1.2.3",
			PackPath:            in.TargetPack,
			Tags:                []string{"identity"},
		})
	}
	return i.Store.SaveCatalog(in.CatalogPath, cat)
}

func latestInstallReport(reportDir, identityID string) (string, error) {
	latest, ok := locator.Latest(reportDir, fmt.Sprintf("identity-install-%s-*.json", identityID))
	if !ok {
		return "", ErrNoReportFound
	}
	return latest, nil
}

func syncPack(src, dst string) ([]string, error) {
	var copied []string
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0700)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			return err
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		copied = append(copied, target)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copied, nil
}

func copyTree(src, dst string) error {
	_, err := syncPack(src, dst)
	return err
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}
