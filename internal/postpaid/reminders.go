package postpaid

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/functions"
)

var errNoFunctions = errors.New("functions client not configured")

// SendDueReminders asks the reminder function to email and notify every
// dropshipper with outstanding dues.
func (s *Service) SendDueReminders(ctx context.Context) (ReminderResult, error) {
	if s.fn == nil {
		return ReminderResult{}, apperr.Remote("due reminders", errNoFunctions)
	}
	var res ReminderResult
	if err := s.fn.Invoke(ctx, functions.SendPostpaidDueReminder, struct{}{}, &res); err != nil {
		return ReminderResult{}, err
	}
	return res, nil
}

// RunDueReminderJob calls SendDueReminders every interval and blocks until
// ctx is done. Ticks are skipped while nobody has outstanding dues.
func (s *Service) RunDueReminderJob(ctx context.Context, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		log.Info("due reminder job disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDueReminders(ctx, log)
		}
	}
}

func (s *Service) runDueReminders(ctx context.Context, log *slog.Logger) {
	owing, err := s.store.ListProfilesWithDues(ctx)
	if err != nil {
		log.Error("list profiles with dues failed", slog.Any("err", err))
		return
	}
	if len(owing) == 0 {
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	res, err := s.SendDueReminders(runCtx)
	if err != nil {
		log.Error("due reminders failed", slog.Any("err", err))
		return
	}
	log.Info("due reminders sent",
		slog.Int("users_with_dues", len(owing)),
		slog.Int("emails_sent", res.EmailsSent),
		slog.Int("notifications_sent", res.NotificationsSent),
		slog.Any("errors", res.Errors),
	)
}
