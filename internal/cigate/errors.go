package cigate

import "errors"

// ErrNoChangedFiles is returned when the git diff range resolves to an
// empty change set, which the gate treats as a configuration error rather
// than a vacuous pass.
var ErrNoChangedFiles = errors.New("cigate: diff range produced no changed files")
