package adapter

import "context"

// Transcoder is the external-process boundary for audio transcoding. The
// production implementation shells out to ffmpeg; tests substitute a fake so
// the orchestration logic runs without the binary installed.
type Transcoder interface {
	// Convert produces the canonical WAV (mono, 16-bit PCM, fixed sample
	// rate) at outputPath, overwriting any existing file.
	Convert(ctx context.Context, inputPath, outputPath string) error

	// Concatenate merges ordered fragments into one source-format stream.
	// Implementations try a lossless stream copy first and fall back to a
	// re-encoding merge when fragment boundaries defeat it.
	Concatenate(ctx context.Context, inputPaths []string, outputPath string) error

	// Duration probes a file's playback length in seconds.
	Duration(ctx context.Context, path string) (float64, error)
}
