package usecase

import (
	"context"
	"fmt"
	"os"
	"sync"

	"calmwave-audio-service/internal/domain"
	"calmwave-audio-service/internal/domain/model"
	"calmwave-audio-service/internal/domain/ports/adapter"
	"calmwave-audio-service/internal/domain/ports/repository"
)

// memSubmissionRepo is an in-memory SubmissionRepository with the same
// conditional-update semantics as the postgres implementation.
type memSubmissionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Submission

	// sourcePathErr makes SetSourcePath fail, simulating a record store
	// outage mid-pipeline.
	sourcePathErr error
}

var _ repository.SubmissionRepository = (*memSubmissionRepo)(nil)

func newMemSubmissionRepo() *memSubmissionRepo {
	return &memSubmissionRepo{subs: make(map[string]*model.Submission)}
}

func (r *memSubmissionRepo) Create(ctx context.Context, s *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *memSubmissionRepo) FindByID(ctx context.Context, id string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubmissionRepo) UpdateStatus(ctx context.Context, id string, from, to model.SubmissionStatus, message string) error {
	if !model.CanTransition(from, to) {
		return domain.ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Status != from {
		return domain.ErrStatusConflict
	}
	s.Status = to
	s.Message = message
	return nil
}

func (r *memSubmissionRepo) SetSourcePath(ctx context.Context, id, path string) error {
	if r.sourcePathErr != nil {
		return r.sourcePathErr
	}
	return r.setPath(id, func(s *model.Submission) { s.SourcePath = path })
}

func (r *memSubmissionRepo) SetConvertedPath(ctx context.Context, id, path string) error {
	return r.setPath(id, func(s *model.Submission) { s.ConvertedPath = path })
}

func (r *memSubmissionRepo) setPath(id string, fn func(*model.Submission)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(s)
	return nil
}

func (r *memSubmissionRepo) Finalize(ctx context.Context, id, finalPath, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if s.Status != model.StatusAwaitingDenoise {
		return domain.ErrStatusConflict
	}
	s.Status = model.StatusDenoised
	s.FinalPath = finalPath
	s.Message = message
	return nil
}

func (r *memSubmissionRepo) ListByStatus(ctx context.Context, status model.SubmissionStatus, limit int) ([]*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Submission
	for _, s := range r.subs {
		if s.Status == status {
			cp := *s
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memSubmissionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

// fakeTranscoder copies bytes around instead of shelling out to ffmpeg.
type fakeTranscoder struct {
	convertErr error
	concatErr  error
}

var _ adapter.Transcoder = (*fakeTranscoder)(nil)

func (f *fakeTranscoder) Convert(ctx context.Context, inputPath, outputPath string) error {
	if f.convertErr != nil {
		return f.convertErr
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return os.WriteFile(outputPath, append([]byte("WAV|"), data...), 0o644)
}

func (f *fakeTranscoder) Concatenate(ctx context.Context, inputPaths []string, outputPath string) error {
	if f.concatErr != nil {
		return f.concatErr
	}
	var joined []byte
	for _, p := range inputPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read fragment: %w", err)
		}
		joined = append(joined, data...)
	}
	return os.WriteFile(outputPath, joined, 0o644)
}

func (f *fakeTranscoder) Duration(ctx context.Context, path string) (float64, error) {
	return 1.5, nil
}

// fakeDenoiser returns a scripted result and remembers what it was asked to
// send.
type fakeDenoiser struct {
	mu       sync.Mutex
	result   adapter.DispatchResult
	calls    int
	lastWav  string
	lastID   string
	lastName string
}

var _ adapter.DenoiseAdapter = (*fakeDenoiser)(nil)

func (f *fakeDenoiser) Dispatch(ctx context.Context, wavPath, uploadID, filename string) adapter.DispatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastWav = wavPath
	f.lastID = uploadID
	f.lastName = filename
	return f.result
}

func (f *fakeDenoiser) set(res adapter.DispatchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = res
}

func (f *fakeDenoiser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
