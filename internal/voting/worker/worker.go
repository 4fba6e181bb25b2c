// Package worker runs periodic voting housekeeping: closing sessions whose
// end time passed and deleting expired unused ballots.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agora/pkg/requestcontext"
)

// Sweeper is implemented by the voting service.
type Sweeper interface {
	CloseEndedSessions(ctx context.Context) (int, error)
	SweepExpiredBallots(ctx context.Context) (int, error)
}

type Worker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func New(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{sweeper: sweeper, interval: interval, logger: logger}
}

// RunOnce performs one sweep. Both steps run even when the first fails.
func (w *Worker) RunOnce(ctx context.Context) error {
	ctx = requestcontext.WithTime(ctx, time.Now())

	closed, closeErr := w.sweeper.CloseEndedSessions(ctx)
	if closeErr != nil {
		w.logger.ErrorContext(ctx, "failed to close ended sessions", "error", closeErr, "closed", closed)
	}
	swept, sweepErr := w.sweeper.SweepExpiredBallots(ctx)
	if sweepErr != nil {
		w.logger.ErrorContext(ctx, "failed to sweep expired ballots", "error", sweepErr)
	}
	if closed > 0 || swept > 0 {
		w.logger.InfoContext(ctx, "sweep completed", "sessions_closed", closed, "ballots_swept", swept)
	}
	return errors.Join(closeErr, sweepErr)
}

// Run sweeps every interval until ctx is cancelled. Sweep failures are
// logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = w.RunOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
