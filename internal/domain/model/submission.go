package model

import (
	"time"

	"calmwave-audio-service/internal/domain"
)

type SubmissionStatus string

const (
	StatusReceived            SubmissionStatus = "received"
	StatusConverting          SubmissionStatus = "converting"
	StatusConversionFailed    SubmissionStatus = "conversion_failed"
	StatusConverted           SubmissionStatus = "converted"
	StatusDispatching         SubmissionStatus = "dispatching"
	StatusDispatchFailed      SubmissionStatus = "dispatch_failed"
	StatusAwaitingDenoise     SubmissionStatus = "awaiting_denoise"
	StatusDenoised            SubmissionStatus = "denoised"
	StatusDenoiseFailed       SubmissionStatus = "denoise_failed"
	StatusCallbackFileMissing SubmissionStatus = "callback_file_missing"
)

// transitions encodes the only legal status moves. A retry re-enters
// dispatching from dispatch_failed against the same record; everything else
// is strictly forward.
var transitions = map[SubmissionStatus][]SubmissionStatus{
	StatusReceived:        {StatusConverting},
	StatusConverting:      {StatusConverted, StatusConversionFailed},
	StatusConverted:       {StatusDispatching},
	StatusDispatching:     {StatusAwaitingDenoise, StatusDispatchFailed},
	StatusDispatchFailed:  {StatusDispatching},
	StatusAwaitingDenoise: {StatusDenoised, StatusDenoiseFailed, StatusCallbackFileMissing},
}

// CanTransition reports whether moving a record from one status to another is
// allowed by the pipeline state machine.
func CanTransition(from, to SubmissionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status ends the current processing attempt.
// dispatch_failed is terminal for the attempt but retryable via re-dispatch.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusConversionFailed, StatusDispatchFailed, StatusDenoised,
		StatusDenoiseFailed, StatusCallbackFileMissing:
		return true
	}
	return false
}

// Submission tracks one user audio upload end to end. The durable record is
// the source of truth; the in-memory session cache only mirrors working paths
// while an attempt is in flight.
type Submission struct {
	ID               string // UUID, never changes; join key for the denoise callback
	OriginalFilename string // as declared by the client, bookkeeping only
	ContentType      string
	SourcePath       string // raw pre-conversion audio; ephemeral
	ConvertedPath    string // canonical WAV; ephemeral once denoising completes
	FinalPath        string // denoised WAV; durable, set at most once
	Status           SubmissionStatus
	Message          string // last human-readable diagnostic for Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewSubmission creates a fresh record in the received state.
func NewSubmission(id, filename, contentType string) (*Submission, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Submission{
		ID:               id,
		OriginalFilename: filename,
		ContentType:      contentType,
		Status:           StatusReceived,
		Message:          "file received, awaiting conversion",
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
