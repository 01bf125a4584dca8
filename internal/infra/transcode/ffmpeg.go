package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"calmwave-audio-service/internal/domain/ports/adapter"
)

var _ adapter.Transcoder = (*FFmpegTranscoder)(nil)

// FFmpegTranscoder shells out to ffmpeg for conversion and concatenation.
// Output parameters are fixed: mono, 16-bit linear PCM, one sample rate.
type FFmpegTranscoder struct {
	sampleRate int
	bitrate    string // fallback concat re-encode bitrate
	timeout    time.Duration
	log        *zerolog.Logger

	// runner executes a compiled ffmpeg command; tests swap it out to check
	// strategy ordering without the binary.
	runner func(ctx context.Context, cmd *exec.Cmd) (string, error)
}

func NewFFmpegTranscoder(sampleRate int, bitrate string, timeout time.Duration, logger *zerolog.Logger) *FFmpegTranscoder {
	t := &FFmpegTranscoder{sampleRate: sampleRate, bitrate: bitrate, timeout: timeout, log: logger}
	t.runner = t.runCmd
	return t
}

// CheckBinary verifies the ffmpeg executable is reachable. Its absence is a
// deployment problem, not a per-request one, so callers should fail startup.
func CheckBinary(bin string) error {
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found on PATH: %w", bin, err)
	}
	return nil
}

// Convert transcodes inputPath into the canonical WAV at outputPath.
func (t *FFmpegTranscoder) Convert(ctx context.Context, inputPath, outputPath string) error {
	if _, err := os.Stat(inputPath); err != nil {
		return &ConversionError{Input: inputPath, Detail: "input file missing: " + err.Error()}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return &ConversionError{Input: inputPath, Detail: "create output dir: " + err.Error()}
	}

	cmd := ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"acodec": "pcm_s16le",
			"ac":     "1",
			"ar":     strconv.Itoa(t.sampleRate),
		}).
		OverWriteOutput().
		Compile()

	stderr, err := t.runner(ctx, cmd)
	if err != nil {
		return &ConversionError{Input: inputPath, Detail: trimDiag(stderr, err)}
	}
	if err := checkOutput(outputPath); err != nil {
		return &ConversionError{Input: inputPath, Detail: err.Error()}
	}
	t.log.Debug().Str("input", inputPath).Str("output", outputPath).Msg("conversion finished")
	return nil
}

// Concatenate merges ordered fragments into outputPath. The fast path copies
// encoded data verbatim through the concat demuxer; when fragment boundaries
// defeat it (heterogeneous or lossy-client chunks), each fragment is decoded
// and re-multiplexed at a fixed bitrate instead.
func (t *FFmpegTranscoder) Concatenate(ctx context.Context, inputPaths []string, outputPath string) error {
	if len(inputPaths) == 0 {
		return &ConcatenationError{Detail: "no input fragments"}
	}
	if len(inputPaths) == 1 {
		// Single whole file: nothing to merge.
		return copyFile(inputPaths[0], outputPath)
	}

	fastErr := t.concatCopy(ctx, inputPaths, outputPath)
	if fastErr == nil {
		return nil
	}
	t.log.Warn().Err(fastErr).Int("fragments", len(inputPaths)).
		Msg("lossless concat failed, falling back to re-encode")

	if slowErr := t.concatReencode(ctx, inputPaths, outputPath); slowErr != nil {
		return &ConcatenationError{
			Detail: fmt.Sprintf("stream copy: %v; re-encode: %v", fastErr, slowErr),
		}
	}
	return nil
}

// concatCopy drives the concat demuxer over a generated list file.
func (t *FFmpegTranscoder) concatCopy(ctx context.Context, inputPaths []string, outputPath string) error {
	list, err := writeConcatList(inputPaths)
	if err != nil {
		return err
	}
	defer os.Remove(list)

	cmd := ffmpeg.Input(list, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(outputPath, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().
		Compile()

	stderr, err := t.runner(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%s", trimDiag(stderr, err))
	}
	return checkOutput(outputPath)
}

// concatReencode decodes every fragment and joins them with the concat filter.
func (t *FFmpegTranscoder) concatReencode(ctx context.Context, inputPaths []string, outputPath string) error {
	streams := make([]*ffmpeg.Stream, 0, len(inputPaths))
	for _, p := range inputPaths {
		streams = append(streams, ffmpeg.Input(p))
	}
	cmd := ffmpeg.Concat(streams, ffmpeg.KwArgs{"v": 0, "a": 1}).
		Output(outputPath, ffmpeg.KwArgs{
			"ab": t.bitrate,
			"ar": strconv.Itoa(t.sampleRate),
		}).
		OverWriteOutput().
		Compile()

	stderr, err := t.runner(ctx, cmd)
	if err != nil {
		return fmt.Errorf("%s", trimDiag(stderr, err))
	}
	return checkOutput(outputPath)
}

// Duration probes a file's playback length in seconds via ffprobe.
func (t *FFmpegTranscoder) Duration(ctx context.Context, path string) (float64, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &probe); err != nil {
		return 0, fmt.Errorf("parse probe output: %w", err)
	}
	d, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse probe duration %q: %w", probe.Format.Duration, err)
	}
	return d, nil
}

// runCmd executes a compiled ffmpeg command with stderr capture, the
// configured per-invocation timeout and context cancellation. ffmpeg writes
// diagnostics to stderr even on success.
func (t *FFmpegTranscoder) runCmd(ctx context.Context, cmd *exec.Cmd) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return buf.String(), err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return buf.String(), ctx.Err()
	case err := <-done:
		return buf.String(), err
	}
}

func writeConcatList(paths []string) (string, error) {
	f, err := os.CreateTemp("", "concat_*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	defer f.Close()
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		// Single quotes per the concat demuxer's file syntax.
		if _, err := fmt.Fprintf(f, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`)); err != nil {
			return "", err
		}
	}
	return f.Name(), nil
}

func checkOutput(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file missing: %s", path)
	}
	if st.Size() == 0 {
		return fmt.Errorf("output file empty: %s", path)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// trimDiag folds ffmpeg's stderr into a bounded error detail.
func trimDiag(stderr string, err error) string {
	s := strings.TrimSpace(stderr)
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	if s == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v: %s", err, s)
}
