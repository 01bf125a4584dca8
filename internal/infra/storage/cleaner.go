package storage

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// CleanupOptions selects which intermediate artifacts to drop. The flags are
// independent: the raw chunk set can go right after concatenation while the
// intermediate WAV must survive until the callback lands, so a failed
// dispatch can be re-sent.
type CleanupOptions struct {
	RemoveSource          bool
	RemoveIntermediateWAV bool
}

// Cleaner removes intermediate artifacts. Cleanup is best-effort: failures
// are logged and swallowed so they can never turn a successful pipeline
// outcome into a reported failure.
type Cleaner struct {
	uploadDir string
	wavDir    string
	log       *zerolog.Logger
}

func NewCleaner(uploadDir, wavDir string, logger *zerolog.Logger) *Cleaner {
	return &Cleaner{uploadDir: uploadDir, wavDir: wavDir, log: logger}
}

func (c *Cleaner) Cleanup(id string, opts CleanupOptions) {
	if opts.RemoveSource {
		dir := filepath.Join(c.uploadDir, id)
		if err := os.RemoveAll(dir); err != nil {
			c.log.Warn().Err(err).Str("upload_id", id).Str("dir", dir).Msg("source cleanup failed")
		} else {
			c.log.Debug().Str("upload_id", id).Msg("source artifacts removed")
		}
	}
	if opts.RemoveIntermediateWAV {
		wav := filepath.Join(c.wavDir, id+".wav")
		if err := os.Remove(wav); err != nil && !os.IsNotExist(err) {
			c.log.Warn().Err(err).Str("upload_id", id).Str("path", wav).Msg("intermediate wav cleanup failed")
		} else {
			c.log.Debug().Str("upload_id", id).Msg("intermediate wav removed")
		}
	}
}
