package transcode

import "fmt"

// ConversionError reports a failed canonical-WAV conversion, carrying the
// tool's diagnostic output.
type ConversionError struct {
	Input  string
	Detail string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion of %s failed: %s", e.Input, e.Detail)
}

// ConcatenationError means both the stream-copy and the re-encode strategies
// failed (or there was nothing to concatenate).
type ConcatenationError struct {
	Detail string
}

func (e *ConcatenationError) Error() string {
	return "concatenation failed: " + e.Detail
}
