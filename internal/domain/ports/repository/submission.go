package repository

import (
	"context"

	"calmwave-audio-service/internal/domain/model"
)

// SubmissionRepository is the durable record store for the pipeline. The
// status-changing methods are conditional on the expected prior status so a
// slow failure write can never clobber a faster success write for the same id
// (implementations return domain.ErrStatusConflict in that case).
type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	FindByID(ctx context.Context, id string) (*model.Submission, error)

	// UpdateStatus moves id from the expected status to the next one,
	// replacing the diagnostic message and bumping updated_at.
	UpdateStatus(ctx context.Context, id string, from, to model.SubmissionStatus, message string) error

	// SetSourcePath / SetConvertedPath record artifact locations without a
	// status change.
	SetSourcePath(ctx context.Context, id, path string) error
	SetConvertedPath(ctx context.Context, id, path string) error

	// Finalize sets final_path and moves the record to denoised in one
	// conditional write from awaiting_denoise.
	Finalize(ctx context.Context, id, finalPath, message string) error

	ListByStatus(ctx context.Context, status model.SubmissionStatus, limit int) ([]*model.Submission, error)
	Delete(ctx context.Context, id string) error
}
