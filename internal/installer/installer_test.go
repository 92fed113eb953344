package installer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/identityctl/internal/docstore"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func fixedNow() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "run-" + string(rune('a'+n-1))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name        string
		srcSig      string
		dstSig      string
		dstExists   bool
		destructive bool
		wantType    ConflictType
		wantAction  Action
	}{
		{"fresh install", "abc", "", false, false, ConflictFreshInstall, ActionGuardedApply},
		{"same signature", "abc", "abc", true, false, ConflictSameSignature, ActionNoOpWithReport},
		{"destructive replace", "abc", "def", true, true, ConflictDestructiveReplace, ActionGuardedApply},
		{"compatible upgrade", "abc", "def", true, false, ConflictCompatibleUpgrade, ActionAbortAndExplain},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gotType, gotAction := Classify(c.srcSig, c.dstSig, c.dstExists, c.destructive)
			if gotType != c.wantType || gotAction != c.wantAction {
				t.Errorf("Classify() = (%s, %s), want (%s, %s)", gotType, gotAction, c.wantType, c.wantAction)
			}
		})
	}
}

func TestSignature_IdenticalTreesMatch(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()
	writeFile(t, filepath.Join(a, "CURRENT_TASK.json"), `{"x":1}`)
	writeFile(t, filepath.Join(b, "CURRENT_TASK.json"), `{"x":1}`)

	sigA, err := Signature(a)
	if err != nil {
		t.Fatal(err)
	}
	sigB, err := Signature(b)
	if err != nil {
		t.Fatal(err)
	}
	if sigA != sigB {
		t.Errorf("expected identical signatures, got %s != %s", sigA, sigB)
	}
}

func TestInstall_SameSignatureCopiesZeroBytes(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "CURRENT_TASK.json"), `{"x":1}`)
	writeFile(t, filepath.Join(dst, "CURRENT_TASK.json"), `{"x":1}`)

	inst := New(docstore.New())
	report, _, err := inst.Install(Input{
		IdentityID: "demo",
		SourcePack: src,
		TargetPack: dst,
		ReportDir:  filepath.Join(root, "reports", "install"),
		BackupDir:  filepath.Join(root, "backups"),
		Now:        fixedNow(),
		NewRunID:   sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if report.ConflictType != ConflictSameSignature {
		t.Errorf("expected same_signature, got %s", report.ConflictType)
	}
	if report.Action != ActionNoOpWithReport {
		t.Errorf("expected no_op_with_report, got %s", report.Action)
	}
	if len(report.ChangedFiles) != 0 {
		t.Errorf("expected zero changed files, got %v", report.ChangedFiles)
	}
}

func TestInstall_FreshInstallCopiesTree(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "CURRENT_TASK.json"), `{"x":1}`)
	writeFile(t, filepath.Join(src, "IDENTITY_PROMPT.md"), `hello`)

	inst := New(docstore.New())
	report, _, err := inst.Install(Input{
		IdentityID: "demo",
		SourcePack: src,
		TargetPack: dst,
		ReportDir:  filepath.Join(root, "reports", "install"),
		BackupDir:  filepath.Join(root, "backups"),
		Now:        fixedNow(),
		NewRunID:   sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if report.ConflictType != ConflictFreshInstall {
		t.Errorf("expected fresh_install, got %s", report.ConflictType)
	}
	if _, err := os.Stat(filepath.Join(dst, "CURRENT_TASK.json")); err != nil {
		t.Errorf("expected copied file, got: %v", err)
	}
}

func TestInstall_DestructiveReplaceBacksUpAndRollbackRestores(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "CURRENT_TASK.json"), `{"x":2}`)
	writeFile(t, filepath.Join(dst, "CURRENT_TASK.json"), `{"x":1}`)
	preSig, _ := Signature(dst)

	inst := New(docstore.New())
	report, _, err := inst.Install(Input{
		IdentityID:  "demo",
		SourcePack:  src,
		TargetPack:  dst,
		ReportDir:   filepath.Join(root, "reports", "install"),
		BackupDir:   filepath.Join(root, "backups"),
		Destructive: true,
		Now:         fixedNow(),
		NewRunID:    sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if report.ConflictType != ConflictDestructiveReplace {
		t.Errorf("expected destructive_replace, got %s", report.ConflictType)
	}
	if report.RollbackRef == "" {
		t.Fatal("expected rollback_ref to be set")
	}

	if err := inst.Rollback(Input{TargetPack: dst}, report.RollbackRef); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	postSig, err := Signature(dst)
	if err != nil {
		t.Fatal(err)
	}
	if postSig != preSig {
		t.Errorf("rollback signature mismatch: got %s want %s", postSig, preSig)
	}
}

func TestInstall_CompatibleUpgradeAbortsWithoutMutation(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "CURRENT_TASK.json"), `{"x":2}`)
	writeFile(t, filepath.Join(dst, "CURRENT_TASK.json"), `{"x":1}`)

	inst := New(docstore.New())
	report, _, err := inst.Install(Input{
		IdentityID: "demo",
		SourcePack: src,
		TargetPack: dst,
		ReportDir:  filepath.Join(root, "reports", "install"),
		BackupDir:  filepath.Join(root, "backups"),
		Now:        fixedNow(),
		NewRunID:   sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if report.Action != ActionAbortAndExplain {
		t.Errorf("expected abort_and_explain, got %s", report.Action)
	}
	data, err := os.ReadFile(filepath.Join(dst, "CURRENT_TASK.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"x":1}` {
		t.Errorf("target must be untouched, got %s", data)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "CURRENT_TASK.json"), `{"x":1}`)

	inst := New(docstore.New())
	in := Input{
		IdentityID: "demo",
		SourcePack: src,
		TargetPack: dst,
		ReportDir:  filepath.Join(root, "reports", "install"),
		BackupDir:  filepath.Join(root, "backups"),
		Now:        fixedNow(),
		NewRunID:   sequentialIDs(),
	}
	if _, _, err := inst.Install(in); err != nil {
		t.Fatalf("Install: %v", err)
	}
	verifyReport, _, err := inst.Verify(in)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verifyReport.VerifiedReportID == "" {
		t.Error("expected verified_report_id to be set")
	}
}

func TestVerify_IdentityMismatch(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	writeFile(t, filepath.Join(src, "CURRENT_TASK.json"), `{"x":1}`)

	inst := New(docstore.New())
	in := Input{
		IdentityID: "demo",
		SourcePack: src,
		TargetPack: dst,
		ReportDir:  filepath.Join(root, "reports", "install"),
		BackupDir:  filepath.Join(root, "backups"),
		Now:        fixedNow(),
		NewRunID:   sequentialIDs(),
	}
	_, reportPath, err := inst.Install(in)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	// Place demo's report under the other identity's report name so Verify
	// finds it and then rejects its identity_id.
	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(in.ReportDir, "identity-install-other-install-1.json"), string(data))
	in.IdentityID = "other"
	if _, _, err := inst.Verify(in); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected identity mismatch error, got %v", err)
	}
}

func TestRollback_InvalidRefRejected(t *testing.T) {
	inst := New(docstore.New())
	err := inst.Rollback(Input{TargetPack: t.TempDir()}, "not-a-ref")
	if err == nil {
		t.Fatal("expected invalid rollback ref error")
	}
}
