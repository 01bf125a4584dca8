package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"calmwave-audio-service/internal/domain"
)

// allowed extensions for caller-suggested final filenames; anything else is
// normalized to .wav.
var finalExts = map[string]bool{".wav": true, ".mp3": true, ".m4a": true}

// ArtifactStore owns the three on-disk areas of the pipeline: raw sources
// (ephemeral, under the chunk root), intermediate canonical WAVs (ephemeral)
// and finalized denoised audio (durable).
type ArtifactStore struct {
	uploadDir    string
	wavDir       string
	processedDir string
}

func NewArtifactStore(uploadDir, wavDir, processedDir string) (*ArtifactStore, error) {
	for _, d := range []string{uploadDir, wavDir, processedDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", d, err)
		}
	}
	return &ArtifactStore{uploadDir: uploadDir, wavDir: wavDir, processedDir: processedDir}, nil
}

// SaveSource persists a whole (non-chunked) raw upload under the
// per-submission directory and returns its path.
func (s *ArtifactStore) SaveSource(id string, data []byte, ext string) (string, error) {
	if id == "" {
		return "", domain.ErrInvalidArgument
	}
	dir := filepath.Join(s.uploadDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create source dir: %w", err)
	}
	path := filepath.Join(dir, "source"+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	return path, nil
}

// SourcePath returns where a concatenated chunk set should be assembled.
func (s *ArtifactStore) SourcePath(id string, ext string) string {
	return filepath.Join(s.uploadDir, id, "source"+ext)
}

// WavPath returns the intermediate canonical WAV location for a submission.
func (s *ArtifactStore) WavPath(id string) string {
	return filepath.Join(s.wavDir, id+".wav")
}

// SaveFinal writes callback bytes to the durable processed area under a
// generated unique name. The caller-supplied filename is only consulted for a
// whitelisted extension, never used as a path component.
func (s *ArtifactStore) SaveFinal(id, suggestedName string, data []byte) (path, filename string, err error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(suggestedName)))
	if !finalExts[ext] {
		ext = ".wav"
	}
	filename = fmt.Sprintf("denoised_%s_%s%s", id, strings.ToLower(ulid.Make().String()), ext)
	path = filepath.Join(s.processedDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write final audio: %w", err)
	}
	// Verify the write landed and is non-empty before anyone trusts it.
	st, err := os.Stat(path)
	if err != nil || st.Size() == 0 {
		os.Remove(path)
		return "", "", fmt.Errorf("final audio missing or empty after save: %s", path)
	}
	return path, filename, nil
}

// FinalPath resolves a finalized filename inside the processed area,
// rejecting traversal attempts. Returns domain.ErrNotFound when absent.
func (s *ArtifactStore) FinalPath(filename string) (string, error) {
	clean := filepath.Base(filename)
	if clean != filename || clean == "." || clean == "/" {
		return "", domain.ErrInvalidArgument
	}
	path := filepath.Join(s.processedDir, clean)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return path, nil
}
