package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"telegram-tutor-bot/internal/session"
)

// Start registers the reminder sweep and the session janitor and starts the
// scheduler. The caller owns Shutdown.
func Start(ctx context.Context, r *Reminder, sessions *session.Store, interval time.Duration) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithClock(r.Clock), gocron.WithLocation(r.Location))
	if err != nil {
		return nil, err
	}

	// Sweeps never overlap: a slow pass makes the next one wait.
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error().Err(err).Msg("reminder sweep failed")
			}
		}),
		gocron.WithName("reminder-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	if sessions != nil {
		_, err = s.NewJob(
			gocron.DurationJob(10*time.Minute),
			gocron.NewTask(func() {
				if n := sessions.Sweep(); n > 0 {
					r.log.Debug().Int("expired", n).Msg("dropped idle sessions")
				}
			}),
			gocron.WithName("session-janitor"),
		)
		if err != nil {
			_ = s.Shutdown()
			return nil, err
		}
	}

	// Запускаем планировщик
	s.Start()
	return s, nil
}
