package statepoint

import "errors"

// Failure taxonomy. Open/create failures and offset-width mismatches are
// fatal to the run. Unsupported shapes are the only soft case: they are
// diagnosed and skipped so the rest of the checkpoint proceeds. Collective
// deadlock (mismatched collective calls across workers) is a caller
// protocol violation and manifests as a hang, not an error value.
var (
	ErrFileNotFound        = errors.New("statepoint: file not found")
	ErrAccessDenied        = errors.New("statepoint: access denied")
	ErrUnsupportedShape    = errors.New("statepoint: shape not supported by active backend")
	ErrOffsetWidthMismatch = errors.New("statepoint: offset width mismatch across workers")
	ErrClosed              = errors.New("statepoint: file is closed")
	ErrReadOnly            = errors.New("statepoint: file opened read-only")
	ErrWriteOnly           = errors.New("statepoint: file opened for writing")
)
