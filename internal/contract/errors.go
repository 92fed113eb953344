package contract

import "errors"

// The sentinels below name conditions that Validate and CheckEvidence
// report as Findings on the Report; neither function returns them.

// ErrContractMissing names a gate marked "required" whose paired contract
// is not present on the task record.
var ErrContractMissing = errors.New("contract: required contract missing")

// ErrUnknownGate names a gates-map entry the pairing table does not
// recognize.
var ErrUnknownGate = errors.New("contract: unknown gate name")

// ErrNoEvidenceMatch names a contract evidence pattern that matched no
// file.
var ErrNoEvidenceMatch = errors.New("contract: no evidence file matched pattern")
