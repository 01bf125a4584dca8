package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"calmwave-audio-service/internal/domain"
	"calmwave-audio-service/internal/domain/model"
)

type stubRepo struct {
	mu    sync.Mutex
	stuck []*model.Submission
	err   error
}

func (r *stubRepo) Create(context.Context, *model.Submission) error { return nil }
func (r *stubRepo) FindByID(context.Context, string) (*model.Submission, error) {
	return nil, domain.ErrNotFound
}
func (r *stubRepo) UpdateStatus(context.Context, string, model.SubmissionStatus, model.SubmissionStatus, string) error {
	return nil
}
func (r *stubRepo) SetSourcePath(context.Context, string, string) error    { return nil }
func (r *stubRepo) SetConvertedPath(context.Context, string, string) error { return nil }
func (r *stubRepo) Finalize(context.Context, string, string, string) error { return nil }
func (r *stubRepo) Delete(context.Context, string) error                   { return nil }

func (r *stubRepo) ListByStatus(_ context.Context, status model.SubmissionStatus, limit int) ([]*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if status != model.StatusDispatchFailed {
		return nil, nil
	}
	out := r.stuck
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubRedispatcher struct {
	mu    sync.Mutex
	ids   []string
	fail  map[string]error
	after func(id string)
}

func (s *stubRedispatcher) Redispatch(_ context.Context, id string) (*model.Submission, error) {
	s.mu.Lock()
	s.ids = append(s.ids, id)
	err := s.fail[id]
	s.mu.Unlock()
	if s.after != nil {
		s.after(id)
	}
	if err != nil {
		return nil, err
	}
	return &model.Submission{ID: id, Status: model.StatusAwaitingDenoise}, nil
}

func (s *stubRedispatcher) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestWorkerRetriesStuckRecords(t *testing.T) {
	repo := &stubRepo{stuck: []*model.Submission{
		{ID: "a", Status: model.StatusDispatchFailed},
		{ID: "b", Status: model.StatusDispatchFailed},
	}}
	rd := &stubRedispatcher{fail: map[string]error{"b": domain.ErrOperationFailed}}

	// The stub repo keeps reporting the records as stuck, so later ticks call
	// the hook again; close exactly once.
	done := make(chan struct{})
	var once sync.Once
	rd.after = func(id string) {
		if id == "b" {
			once.Do(func() { close(done) })
		}
	}

	logger := zerolog.Nop()
	w := NewRedispatchWorker(repo, rd, 10*time.Millisecond, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never processed the batch")
	}
	cancel()

	seen := rd.seen()
	if len(seen) < 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("retried ids = %v, want a then b", seen)
	}
}

func TestWorkerSkipsNonRetryableOutcomes(t *testing.T) {
	repo := &stubRepo{stuck: []*model.Submission{
		{ID: "bad-ack", Status: model.StatusDispatchFailed,
			Message: "malformed_response: denoise service refused the upload"},
		{ID: "slow", Status: model.StatusDispatchFailed,
			Message: "timeout: denoise service did not answer within the deadline"},
	}}
	rd := &stubRedispatcher{}

	done := make(chan struct{})
	var once sync.Once
	rd.after = func(id string) {
		if id == "slow" {
			once.Do(func() { close(done) })
		}
	}

	logger := zerolog.Nop()
	w := NewRedispatchWorker(repo, rd, 10*time.Millisecond, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never processed the batch")
	}
	cancel()

	for _, id := range rd.seen() {
		if id == "bad-ack" {
			t.Fatal("record with a malformed acknowledgement was re-sent automatically")
		}
	}
}

func TestWorkerDisabledWithZeroInterval(t *testing.T) {
	repo := &stubRepo{err: errors.New("should never be called")}
	logger := zerolog.Nop()
	w := NewRedispatchWorker(repo, &stubRedispatcher{}, 0, &logger)

	finished := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("worker with zero interval did not return")
	}
}
