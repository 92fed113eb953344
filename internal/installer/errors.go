package installer

import "errors"

// ErrDestructiveReplaceRequiresBackup is returned when a destructive_replace
// conflict is about to be applied without a backup path configured.
var ErrDestructiveReplaceRequiresBackup = errors.New("installer: destructive replace requires a backup path")

// ErrCompatibleUpgradeRefused names the compatible_upgrade refusal. Install
// does not return it: a compatible_upgrade conflict is recorded in the
// report as action abort_and_explain, the target is left untouched, and the
// returned error is nil.
var ErrCompatibleUpgradeRefused = errors.New("installer: compatible_upgrade requires manual resolution")

// ErrNoReportFound is returned by Verify when no install report exists yet.
var ErrNoReportFound = errors.New("installer: no install report found")

// ErrIdentityMismatch is returned by Verify when the latest report's
// identity does not match the one being verified.
var ErrIdentityMismatch = errors.New("installer: report identity mismatch")

// ErrInvalidRollbackRef is returned when a --rollback-ref value is not of
// the form restore_from:PATH.
var ErrInvalidRollbackRef = errors.New("installer: invalid rollback ref, expected restore_from:PATH")
