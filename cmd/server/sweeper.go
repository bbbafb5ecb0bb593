package main

import (
	"context"
	"log/slog"
	"time"

	"lenslive/internal/observability/metrics"
	"lenslive/internal/session"
)

type sweepTicker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

type tickerFactory func(time.Duration) sweepTicker

// runSessionSweeper periodically reaps registry entries whose device session
// has been idle beyond maxIdle. It backstops disconnect events that were
// never delivered. Blocks until ctx is cancelled.
func runSessionSweeper(
	ctx context.Context,
	logger *slog.Logger,
	registry *session.Registry,
	recorder *metrics.Recorder,
	maxIdle time.Duration,
	interval time.Duration,
) error {
	return runSessionSweeperWithTicker(ctx, logger, registry, recorder, maxIdle, interval, func(d time.Duration) sweepTicker {
		return timeTicker{ticker: time.NewTicker(d)}
	})
}

func runSessionSweeperWithTicker(
	ctx context.Context,
	logger *slog.Logger,
	registry *session.Registry,
	recorder *metrics.Recorder,
	maxIdle time.Duration,
	interval time.Duration,
	newTicker tickerFactory,
) error {
	if registry == nil || maxIdle <= 0 || interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := newTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			reaped := registry.PurgeStale(maxIdle)
			for range reaped {
				recorder.SessionDisconnected()
			}
			if len(reaped) > 0 && logger != nil {
				logger.Info("stale sessions reaped", "count", len(reaped), "user_ids", reaped)
			}
		}
	}
}
