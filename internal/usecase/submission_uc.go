package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"calmwave-audio-service/internal/audio"
	"calmwave-audio-service/internal/domain"
	"calmwave-audio-service/internal/domain/model"
	"calmwave-audio-service/internal/domain/ports/adapter"
	"calmwave-audio-service/internal/domain/ports/repository"
	"calmwave-audio-service/internal/infra/logging"
	"calmwave-audio-service/internal/infra/metrics"
	"calmwave-audio-service/internal/infra/storage"
)

// SubmissionUseCase orchestrates the pipeline: accept audio, convert it to
// the canonical WAV, dispatch it to the denoise service and finalize the
// record when the callback lands. Stage failures are recorded on the
// submission status, not returned as errors; errors are reserved for
// infrastructure problems (record store, bad input).
type SubmissionUseCase struct {
	repo      repository.SubmissionRepository
	transcode adapter.Transcoder
	denoise   adapter.DenoiseAdapter
	chunks    *storage.ChunkStore
	artifacts *storage.ArtifactStore
	cleaner   *storage.Cleaner
	sessions  *sessionCache
	log       *zerolog.Logger
}

func NewSubmissionUseCase(
	repo repository.SubmissionRepository,
	transcode adapter.Transcoder,
	denoise adapter.DenoiseAdapter,
	chunks *storage.ChunkStore,
	artifacts *storage.ArtifactStore,
	cleaner *storage.Cleaner,
	logger *zerolog.Logger,
) *SubmissionUseCase {
	return &SubmissionUseCase{
		repo:      repo,
		transcode: transcode,
		denoise:   denoise,
		chunks:    chunks,
		artifacts: artifacts,
		cleaner:   cleaner,
		sessions:  newSessionCache(),
		log:       logger,
	}
}

// Submit accepts a whole (non-chunked) upload and runs the pipeline inline.
// The returned submission reflects the outcome of this attempt; the caller
// reads Status to decide the response.
func (u *SubmissionUseCase) Submit(ctx context.Context, filename, contentType string, data []byte) (*model.Submission, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyAudio
	}

	id := uuid.NewString()
	format := audio.Detect(data, contentType, filename)

	sub, err := model.NewSubmission(id, filename, contentType)
	if err != nil {
		return nil, err
	}
	if err := u.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}

	ctx = logging.WithUploadID(ctx, id)
	logging.With(ctx, u.log).Info().Str("filename", filename).
		Str("format", string(format)).Int("bytes", len(data)).Msg("upload received")

	if err := u.repo.UpdateStatus(ctx, id, model.StatusReceived, model.StatusConverting, "converting to canonical wav"); err != nil {
		return nil, err
	}

	srcPath, err := u.artifacts.SaveSource(id, data, format.Ext())
	if err != nil {
		u.failStage(ctx, id, model.StatusConverting, model.StatusConversionFailed,
			"could not store source audio: "+clip(err.Error(), 300))
		return nil, fmt.Errorf("save source audio: %w", err)
	}
	if err := u.repo.SetSourcePath(ctx, id, srcPath); err != nil {
		u.failStage(ctx, id, model.StatusConverting, model.StatusConversionFailed, "could not record source path")
		return nil, err
	}
	u.sessions.Update(id, func(s *sessionState) {
		s.SourcePath = srcPath
		s.Format = format
	})

	return u.convertAndDispatch(ctx, id, srcPath, filename)
}

// AppendChunk stores one fragment of a chunked upload. An empty id starts a
// new session with a server-generated id, which is returned either way.
func (u *SubmissionUseCase) AppendChunk(ctx context.Context, id string, seq int, filename, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrEmptyAudio
	}

	if id == "" {
		id = uuid.NewString()
		sub, err := model.NewSubmission(id, filename, contentType)
		if err != nil {
			return "", err
		}
		if err := u.repo.Create(ctx, sub); err != nil {
			return "", fmt.Errorf("create submission: %w", err)
		}
	} else {
		sub, err := u.repo.FindByID(ctx, id)
		if err != nil {
			return "", err
		}
		if sub.Status != model.StatusReceived {
			return "", domain.ErrAlreadyProcessing
		}
	}

	if _, err := u.chunks.Append(id, seq, data); err != nil {
		return "", err
	}
	metrics.IncChunkAppend()
	u.sessions.Update(id, func(s *sessionState) {
		s.ChunkCount++
		if s.Format == "" {
			s.Format = audio.Detect(data, contentType, filename)
		}
	})

	u.log.Debug().Str("upload_id", id).Int("chunk", seq).Int("bytes", len(data)).Msg("chunk stored")
	return id, nil
}

// CompleteChunks assembles the stored fragments and runs the pipeline.
func (u *SubmissionUseCase) CompleteChunks(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusReceived {
		return nil, domain.ErrAlreadyProcessing
	}

	paths, err := u.chunks.List(id)
	if err != nil {
		return nil, err
	}

	var format audio.Format
	if sess, ok := u.sessions.Get(id); ok && sess.Format != "" {
		format = sess.Format
	} else {
		format = audio.Detect(nil, sub.ContentType, sub.OriginalFilename)
	}

	if err := u.repo.UpdateStatus(ctx, id, model.StatusReceived, model.StatusConverting, "assembling fragments"); err != nil {
		return nil, err
	}

	srcPath := u.artifacts.SourcePath(id, format.Ext())
	if err := u.transcode.Concatenate(ctx, paths, srcPath); err != nil {
		u.failStage(ctx, id, model.StatusConverting, model.StatusConversionFailed, "fragment assembly failed: "+clip(err.Error(), 300))
		metrics.IncStage("concat", "failure")
		return u.refreshed(ctx, id)
	}
	metrics.IncStage("concat", "success")
	if err := u.repo.SetSourcePath(ctx, id, srcPath); err != nil {
		u.failStage(ctx, id, model.StatusConverting, model.StatusConversionFailed, "could not record source path")
		return nil, err
	}
	u.sessions.Update(id, func(s *sessionState) { s.SourcePath = srcPath })

	return u.convertAndDispatch(ctx, id, srcPath, sub.OriginalFilename)
}

// convertAndDispatch expects the record in converting and carries it to
// awaiting_denoise, or to the matching failure status.
func (u *SubmissionUseCase) convertAndDispatch(ctx context.Context, id, srcPath, filename string) (*model.Submission, error) {
	wavPath := u.artifacts.WavPath(id)

	start := time.Now()
	err := u.transcode.Convert(ctx, srcPath, wavPath)
	metrics.ObserveConversion(time.Since(start).Seconds())
	if err != nil {
		u.failStage(ctx, id, model.StatusConverting, model.StatusConversionFailed, clip(err.Error(), 300))
		metrics.IncStage("convert", "failure")
		u.sessions.Drop(id)
		return u.refreshed(ctx, id)
	}
	metrics.IncStage("convert", "success")

	if err := u.repo.UpdateStatus(ctx, id, model.StatusConverting, model.StatusConverted, "conversion complete"); err != nil {
		return nil, err
	}
	if err := u.repo.SetConvertedPath(ctx, id, wavPath); err != nil {
		return nil, err
	}
	u.sessions.Update(id, func(s *sessionState) { s.ConvertedPath = wavPath })

	// Raw source and fragments are no longer needed; the WAV must survive
	// until the callback lands so a failed dispatch can be re-sent.
	u.cleaner.Cleanup(id, storage.CleanupOptions{RemoveSource: true})

	return u.dispatch(ctx, id, model.StatusConverted, wavPath, filename)
}

// dispatch moves from into dispatching, sends the WAV and records the
// classified outcome. from is converted on the first attempt and
// dispatch_failed on a retry.
func (u *SubmissionUseCase) dispatch(ctx context.Context, id string, from model.SubmissionStatus, wavPath, filename string) (*model.Submission, error) {
	if err := u.repo.UpdateStatus(ctx, id, from, model.StatusDispatching, "dispatching to denoise service"); err != nil {
		return nil, err
	}

	start := time.Now()
	res := u.denoise.Dispatch(ctx, wavPath, id, filename)
	metrics.ObserveDispatch(time.Since(start).Seconds())
	metrics.IncStage("dispatch", string(res.Outcome))

	if res.Outcome == adapter.DispatchAccepted {
		msg := "accepted by denoise service, awaiting callback"
		if res.RemotePath != "" {
			msg = fmt.Sprintf("%s (remote path %s)", msg, res.RemotePath)
		}
		if err := u.repo.UpdateStatus(ctx, id, model.StatusDispatching, model.StatusAwaitingDenoise, msg); err != nil {
			return nil, err
		}
		u.log.Info().Str("upload_id", id).Msg("dispatch accepted")
		return u.refreshed(ctx, id)
	}

	u.failStage(ctx, id, model.StatusDispatching, model.StatusDispatchFailed,
		fmt.Sprintf("%s: %s", res.Outcome, clip(res.Message, 300)))
	u.log.Warn().Str("upload_id", id).Str("outcome", string(res.Outcome)).
		Str("detail", res.Message).Msg("dispatch failed")
	return u.refreshed(ctx, id)
}

// Redispatch re-sends the intermediate WAV of a record stuck in
// dispatch_failed. The WAV must still exist on disk.
func (u *SubmissionUseCase) Redispatch(ctx context.Context, id string) (*model.Submission, error) {
	sub, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusDispatchFailed {
		return nil, domain.ErrInvalidTransition
	}
	if sub.ConvertedPath == "" {
		return nil, fmt.Errorf("no intermediate wav recorded for %s: %w", id, domain.ErrOperationFailed)
	}
	if _, err := os.Stat(sub.ConvertedPath); err != nil {
		return nil, fmt.Errorf("intermediate wav gone for %s: %w", id, domain.ErrOperationFailed)
	}
	return u.dispatch(ctx, id, model.StatusDispatchFailed, sub.ConvertedPath, sub.OriginalFilename)
}

// HandleCallback stores the denoised audio delivered by the external service
// and finalizes the record. An unknown id is a loud error and never creates a
// record. Returns the stored filename on success.
func (u *SubmissionUseCase) HandleCallback(ctx context.Context, id, filename string, data []byte) (*model.Submission, string, error) {
	ctx = logging.WithUploadID(ctx, id)
	log := logging.With(ctx, u.log)
	if _, err := u.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncCallback("unknown_id")
			log.Error().Msg("callback for unknown submission")
		}
		return nil, "", err
	}

	path, storedName, err := u.artifacts.SaveFinal(id, filename, data)
	if err != nil {
		metrics.IncCallback("save_failed")
		u.failStage(ctx, id, model.StatusAwaitingDenoise, model.StatusCallbackFileMissing,
			"callback payload could not be stored: "+clip(err.Error(), 300))
		u.sessions.Drop(id)
		sub, ferr := u.refreshed(ctx, id)
		return sub, "", ferr
	}

	if err := u.repo.Finalize(ctx, id, path, "denoised audio stored as "+storedName); err != nil {
		// A concurrent callback already finalized; drop the duplicate file.
		if errors.Is(err, domain.ErrStatusConflict) {
			os.Remove(path)
		}
		return nil, "", err
	}
	metrics.IncCallback("saved")

	u.cleaner.Cleanup(id, storage.CleanupOptions{RemoveIntermediateWAV: true})
	u.sessions.Drop(id)

	log.Info().Str("stored_as", storedName).Msg("submission denoised")
	sub, err := u.refreshed(ctx, id)
	return sub, storedName, err
}

// HandleCallbackFailure records a denoise failure reported by the service.
func (u *SubmissionUseCase) HandleCallbackFailure(ctx context.Context, id, message string) (*model.Submission, error) {
	if _, err := u.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncCallback("unknown_id")
		}
		return nil, err
	}
	if err := u.repo.UpdateStatus(ctx, id, model.StatusAwaitingDenoise, model.StatusDenoiseFailed,
		"denoise service reported failure: "+clip(message, 300)); err != nil {
		return nil, err
	}
	metrics.IncCallback("failed")
	u.cleaner.Cleanup(id, storage.CleanupOptions{RemoveIntermediateWAV: true})
	u.sessions.Drop(id)
	return u.refreshed(ctx, id)
}

// Get returns the current record for a status poll.
func (u *SubmissionUseCase) Get(ctx context.Context, id string) (*model.Submission, error) {
	return u.repo.FindByID(ctx, id)
}

// ListDenoised returns finished records, newest first.
func (u *SubmissionUseCase) ListDenoised(ctx context.Context, limit int) ([]*model.Submission, error) {
	return u.repo.ListByStatus(ctx, model.StatusDenoised, limit)
}

// Delete removes the record and every artifact it still owns, including the
// finalized audio. This is the only path that removes a final artifact.
func (u *SubmissionUseCase) Delete(ctx context.Context, id string) error {
	sub, err := u.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := u.repo.Delete(ctx, id); err != nil {
		return err
	}
	u.cleaner.Cleanup(id, storage.CleanupOptions{RemoveSource: true, RemoveIntermediateWAV: true})
	if sub.FinalPath != "" {
		if err := os.Remove(sub.FinalPath); err != nil && !os.IsNotExist(err) {
			u.log.Warn().Err(err).Str("upload_id", id).Msg("final artifact removal failed")
		}
	}
	u.sessions.Drop(id)
	u.log.Info().Str("upload_id", id).Msg("submission deleted")
	return nil
}

// FinalFilename is the basename clients use against the processed route.
func FinalFilename(sub *model.Submission) string {
	if sub.FinalPath == "" {
		return ""
	}
	return filepath.Base(sub.FinalPath)
}

// failStage records a stage failure, tolerating a lost race with a concurrent
// transition on the same record.
func (u *SubmissionUseCase) failStage(ctx context.Context, id string, from, to model.SubmissionStatus, message string) {
	if err := u.repo.UpdateStatus(ctx, id, from, to, message); err != nil {
		u.log.Warn().Err(err).Str("upload_id", id).Str("to", string(to)).Msg("failure status not recorded")
	}
}

func (u *SubmissionUseCase) refreshed(ctx context.Context, id string) (*model.Submission, error) {
	return u.repo.FindByID(ctx, id)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
