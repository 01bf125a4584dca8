package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"calmwave-audio-service/internal/domain/model"
	"calmwave-audio-service/internal/domain/ports/adapter"
	"calmwave-audio-service/internal/domain/ports/repository"
)

// batchSize caps how many stuck records one tick retries.
const batchSize = 20

// Redispatcher re-sends the intermediate WAV of one dispatch_failed record.
type Redispatcher interface {
	Redispatch(ctx context.Context, id string) (*model.Submission, error)
}

// RedispatchWorker periodically retries records stuck in dispatch_failed.
// Every retry goes through the same conditional status transitions as the
// manual path, so it can never clobber a concurrent callback or operator
// action on the same record.
type RedispatchWorker struct {
	repo     repository.SubmissionRepository
	service  Redispatcher
	interval time.Duration
	log      *zerolog.Logger
}

func NewRedispatchWorker(repo repository.SubmissionRepository, service Redispatcher, interval time.Duration, logger *zerolog.Logger) *RedispatchWorker {
	return &RedispatchWorker{repo: repo, service: service, interval: interval, log: logger}
}

// Run blocks until ctx is cancelled. A zero interval disables the worker.
func (w *RedispatchWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info().Msg("re-dispatch worker disabled")
		return
	}
	w.log.Info().Dur("interval", w.interval).Msg("re-dispatch worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("re-dispatch worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RedispatchWorker) tick(ctx context.Context) {
	subs, err := w.repo.ListByStatus(ctx, model.StatusDispatchFailed, batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("re-dispatch scan failed")
		return
	}
	for _, sub := range subs {
		if ctx.Err() != nil {
			return
		}
		// A malformed acknowledgement needs operator attention, not a blind
		// re-send; only the manual redispatch endpoint may retry it.
		if outcome, ok := adapter.OutcomeFromMessage(sub.Message); ok && !outcome.Retryable() {
			w.log.Debug().Str("upload_id", sub.ID).Str("outcome", string(outcome)).
				Msg("automatic re-dispatch withheld")
			continue
		}
		res, err := w.service.Redispatch(ctx, sub.ID)
		if err != nil {
			// Lost races and missing WAVs are expected here; the next tick
			// sees whatever state the record settled in.
			w.log.Debug().Err(err).Str("upload_id", sub.ID).Msg("automatic re-dispatch skipped")
			continue
		}
		w.log.Info().Str("upload_id", sub.ID).Str("status", string(res.Status)).Msg("automatic re-dispatch attempted")
	}
}
