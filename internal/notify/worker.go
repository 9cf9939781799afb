package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Sender delivers one intent over one channel.
type Sender interface {
	Send(ctx context.Context, in Intent) error
}

type WorkerConfig struct {
	MaxAttempts int
	// Backoff is the delay before the second attempt; it doubles on each retry.
	Backoff time.Duration
}

type Worker struct {
	q       Queue
	senders map[Channel]Sender
	cfg     WorkerConfig
	log     *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewWorker(q Queue, senders map[Channel]Sender, cfg WorkerConfig, log *slog.Logger) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{q: q, senders: senders, cfg: cfg, log: log, sleep: sleepCtx}
}

// Run consumes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		in, err := w.q.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error("notify queue pop failed", slog.Any("err", err))
			if err := w.sleep(ctx, w.cfg.Backoff); err != nil {
				return nil
			}
			continue
		}
		w.Deliver(ctx, in)
	}
}

// Deliver sends in with retries and exponential backoff. After the last
// attempt the intent is logged and dropped.
func (w *Worker) Deliver(ctx context.Context, in Intent) bool {
	sender, ok := w.senders[in.Channel]
	if !ok {
		w.log.Warn("no sender for channel", slog.String("channel", string(in.Channel)), slog.String("id", in.ID))
		return false
	}

	delay := w.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		in.Attempt = attempt
		lastErr = sender.Send(ctx, in)
		if lastErr == nil {
			return true
		}
		if errors.Is(lastErr, ErrPermanent) {
			break
		}
		w.log.Debug("notification delivery retry",
			slog.String("id", in.ID),
			slog.Int("attempt", attempt),
			slog.Any("err", lastErr),
		)
		if attempt == w.cfg.MaxAttempts {
			break
		}
		if err := w.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
		delay *= 2
	}

	w.log.Warn("notification dropped",
		slog.String("id", in.ID),
		slog.String("type", in.Type),
		slog.String("channel", string(in.Channel)),
		slog.Int("attempts", in.Attempt),
		slog.Any("err", lastErr),
	)
	return false
}

// ErrPermanent marks failures that retrying cannot fix.
var ErrPermanent = errors.New("notify: permanent failure")

func permanent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
