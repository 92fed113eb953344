package upgrade

import "errors"

// ErrPrecondition is returned for exit-code-1 failures: missing inputs,
// unresolvable paths, malformed task records.
var ErrPrecondition = errors.New("upgrade: precondition failed")

// ErrPathPolicyViolation is returned for exit-code-3 failures: a safe-auto
// patch surface path failed the allow/deny policy check.
var ErrPathPolicyViolation = errors.New("upgrade: blocked_by_safe_auto_path_policy")

// ErrValidatorQuorumFailed is returned for exit-code-2 failures: one or
// more required_checks did not pass during VALIDATE.
var ErrValidatorQuorumFailed = errors.New("upgrade: validator quorum failed")

// ErrUnknownMode is returned when Mode is neither review-required nor
// safe-auto.
var ErrUnknownMode = errors.New("upgrade: unknown mode")
