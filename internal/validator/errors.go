package validator

import "errors"

// ErrUnknownValidator is wrapped with a validator name when a validator set
// or candidate list references a name the registry does not recognize.
var ErrUnknownValidator = errors.New("validator: unknown validator name")

// ErrUnknownSet is wrapped with a set label when RunSet is asked to run a
// validator-set label the registry has not declared.
var ErrUnknownSet = errors.New("validator: unknown validator set label")

// ErrSelfTestFailed is returned by SelfTest when any sample in the corpus
// was misclassified.
var ErrSelfTestFailed = errors.New("validator: self-test sample misclassified")
