package adapter

import (
	"context"
	"strings"
)

// DispatchOutcome classifies the synchronous acknowledgement of the external
// denoise service.
type DispatchOutcome string

const (
	// DispatchAccepted means the service acknowledged receipt; the denoised
	// audio arrives later through the callback endpoint.
	DispatchAccepted DispatchOutcome = "accepted"
	// DispatchTimeout means no response within the deadline. Retryable.
	DispatchTimeout DispatchOutcome = "timeout"
	// DispatchTransportFailure covers connection refused, DNS failure and
	// non-2xx HTTP statuses. Retryable.
	DispatchTransportFailure DispatchOutcome = "transport_failure"
	// DispatchMalformedResponse means a 2xx reply whose body is not the
	// expected acknowledgement. Needs operator attention, not a blind retry.
	DispatchMalformedResponse DispatchOutcome = "malformed_response"
)

// Retryable reports whether a failed dispatch may simply be re-sent.
func (o DispatchOutcome) Retryable() bool {
	return o == DispatchTimeout || o == DispatchTransportFailure
}

// OutcomeFromMessage recovers the outcome a dispatch failure was recorded
// with: failure messages on the submission record carry the outcome as a
// "<outcome>: " prefix. ok is false for messages without a known prefix.
func OutcomeFromMessage(message string) (DispatchOutcome, bool) {
	for _, o := range []DispatchOutcome{
		DispatchTimeout, DispatchTransportFailure, DispatchMalformedResponse,
	} {
		if strings.HasPrefix(message, string(o)+":") {
			return o, true
		}
	}
	return "", false
}

// DispatchResult is the classified outcome of one dispatch attempt.
type DispatchResult struct {
	Outcome DispatchOutcome
	Message string
	// RemotePath is the informational path the service returned on success,
	// when it chose to include one.
	RemotePath string
}

// DenoiseAdapter uploads a canonical WAV to the external denoise service.
type DenoiseAdapter interface {
	Dispatch(ctx context.Context, wavPath, uploadID, filename string) DispatchResult
}
