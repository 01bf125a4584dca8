package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"calmwave-audio-service/internal/domain"
	"calmwave-audio-service/internal/domain/model"
	"calmwave-audio-service/internal/domain/ports/repository"
)

// Ensure interface compliance:
var _ repository.SubmissionRepository = (*SubmissionRepo)(nil)

type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

const submissionColumns = `id, original_filename, content_type, source_path, converted_path, final_path, status, message, created_at, updated_at`

func (r *SubmissionRepo) Create(ctx context.Context, s *model.Submission) error {
	const sql = `
INSERT INTO submissions
  (id, original_filename, content_type, source_path, converted_path, final_path, status, message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);
`
	_, err := r.pool.Exec(ctx, sql,
		s.ID,
		s.OriginalFilename,
		s.ContentType,
		s.SourcePath,
		s.ConvertedPath,
		s.FinalPath,
		s.Status,
		s.Message,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepo) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	const sql = `SELECT ` + submissionColumns + ` FROM submissions WHERE id=$1;`
	row := r.pool.QueryRow(ctx, sql, id)
	s, err := scanSubmission(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return s, nil
}

// UpdateStatus performs the conditional transition: the row moves only if it
// still carries the expected prior status, so concurrent attempts for the
// same id serialize on the database instead of clobbering each other.
func (r *SubmissionRepo) UpdateStatus(ctx context.Context, id string, from, to model.SubmissionStatus, message string) error {
	if !model.CanTransition(from, to) {
		return domain.ErrInvalidTransition
	}
	const sql = `UPDATE submissions SET status=$3, message=$4, updated_at=now() WHERE id=$1 AND status=$2;`
	tag, err := r.pool.Exec(ctx, sql, id, from, to, message)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

func (r *SubmissionRepo) SetSourcePath(ctx context.Context, id, path string) error {
	const sql = `UPDATE submissions SET source_path=$2, updated_at=now() WHERE id=$1;`
	return r.execExpectingRow(ctx, sql, id, path)
}

func (r *SubmissionRepo) SetConvertedPath(ctx context.Context, id, path string) error {
	const sql = `UPDATE submissions SET converted_path=$2, updated_at=now() WHERE id=$1;`
	return r.execExpectingRow(ctx, sql, id, path)
}

// Finalize sets final_path and the denoised status in one conditional write.
// final_path can therefore be written at most once: the guard status is left
// behind with the same statement that records the path.
func (r *SubmissionRepo) Finalize(ctx context.Context, id, finalPath, message string) error {
	const sql = `
UPDATE submissions
   SET final_path=$2, status=$3, message=$4, updated_at=now()
 WHERE id=$1 AND status=$5;
`
	tag, err := r.pool.Exec(ctx, sql, id, finalPath, model.StatusDenoised, message, model.StatusAwaitingDenoise)
	if err != nil {
		return fmt.Errorf("finalize submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrMissing(ctx, id)
	}
	return nil
}

func (r *SubmissionRepo) ListByStatus(ctx context.Context, status model.SubmissionStatus, limit int) ([]*model.Submission, error) {
	const sql = `SELECT ` + submissionColumns + ` FROM submissions WHERE status=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := r.pool.Query(ctx, sql, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var out []*model.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SubmissionRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM submissions WHERE id=$1;`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SubmissionRepo) execExpectingRow(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// conflictOrMissing disambiguates a zero-row conditional update.
func (r *SubmissionRepo) conflictOrMissing(ctx context.Context, id string) error {
	var one int
	if err := r.pool.QueryRow(ctx, `SELECT 1 FROM submissions WHERE id=$1;`, id).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("check submission: %w", err)
	}
	return domain.ErrStatusConflict
}

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var s model.Submission
	if err := row.Scan(
		&s.ID,
		&s.OriginalFilename,
		&s.ContentType,
		&s.SourcePath,
		&s.ConvertedPath,
		&s.FinalPath,
		&s.Status,
		&s.Message,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
