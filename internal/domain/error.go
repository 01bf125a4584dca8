package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("submission not found")
	ErrAlreadyExists     = errors.New("submission already exists")
	ErrAlreadyProcessing = errors.New("submission already has an active attempt")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrEmptyAudio        = errors.New("audio payload is empty")
	ErrInvalidTransition = errors.New("status transition not allowed")
	// ErrStatusConflict is returned when a conditional status update finds the
	// record no longer in the expected state (e.g. a concurrent callback
	// already finalized it).
	ErrStatusConflict  = errors.New("submission status changed concurrently")
	ErrNoChunks        = errors.New("no chunks stored for submission")
	ErrOperationFailed = errors.New("storage operation failed")
)
