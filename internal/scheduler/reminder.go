package scheduler

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"telegram-tutor-bot/internal/logger"
	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
	"telegram-tutor-bot/internal/storage"
	"telegram-tutor-bot/internal/utils"
)

// Lesson windows relative to the scheduled time T.
const (
	preLessonFrom  = -2 * time.Hour                // T-2h
	preLessonUntil = -(time.Hour + 55*time.Minute) // T-1h55m
	paymentFrom    = 5 * time.Minute               // T+5m
	paymentUntil   = 10 * time.Minute              // T+10m
	clearAfter     = 15 * time.Minute              // T+15m
)

// Action is what the sweep does for one record.
type Action int

const (
	ActionNone Action = iota
	ActionPreLesson
	ActionPayment
	ActionClear
)

func (a Action) String() string {
	switch a {
	case ActionPreLesson:
		return "pre_lesson"
	case ActionPayment:
		return "payment"
	case ActionClear:
		return "clear"
	default:
		return "none"
	}
}

// Decide picks at most one action for a lesson at t seen at now, given the
// last notice already delivered for it. Windows are half-open.
func Decide(now, t time.Time, sent models.NotifyStage) Action {
	switch {
	case !now.Before(t.Add(clearAfter)):
		return ActionClear
	case within(now, t.Add(paymentFrom), t.Add(paymentUntil)):
		if sent < models.NotifyPostLesson {
			return ActionPayment
		}
	case within(now, t.Add(preLessonFrom), t.Add(preLessonUntil)):
		if sent < models.NotifyPreLesson {
			return ActionPreLesson
		}
	}
	return ActionNone
}

func within(now, from, until time.Time) bool {
	return !now.Before(from) && now.Before(until)
}

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Reminder struct {
	DB       *storage.DB
	Bot      Sender
	Clock    clockwork.Clock
	Location *time.Location

	log zerolog.Logger
}

func NewReminder(db *storage.DB, bot Sender, clock clockwork.Clock, loc *time.Location) *Reminder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Reminder{
		DB:       db,
		Bot:      bot,
		Clock:    clock,
		Location: loc,
		log:      logger.For("reminder"),
	}
}

// SweepStats counts what one sweep did.
type SweepStats struct {
	Scanned   int
	Skipped   int
	PreLesson int
	Payment   int
	Cleared   int
	Failed    int
}

// Sweep runs one pass over every scheduled student. A bad row or a failed
// delivery is logged and the pass goes on; only a failure to list rows is
// returned.
func (r *Reminder) Sweep(ctx context.Context) (SweepStats, error) {
	var st SweepStats

	list, err := r.DB.ListScheduled(ctx)
	if err != nil {
		return st, fmt.Errorf("list scheduled: %w", err)
	}
	now := r.Clock.Now().In(r.Location)

	for i := range list {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		st.Scanned++
		r.process(ctx, now, &list[i], &st)
	}

	if st.PreLesson+st.Payment+st.Cleared+st.Failed > 0 {
		r.log.Info().
			Int("scanned", st.Scanned).
			Int("pre_lesson", st.PreLesson).
			Int("payment", st.Payment).
			Int("cleared", st.Cleared).
			Int("failed", st.Failed).
			Msg("sweep done")
	}
	return st, nil
}

func (r *Reminder) process(ctx context.Context, now time.Time, s *models.Student, st *SweepStats) {
	log := r.log.With().Str("login", s.Login).Str("schedule", s.Schedule).Logger()

	t, err := utils.ParseSchedule(s.Schedule, r.Location)
	if err != nil {
		log.Debug().Msg("unparsable schedule, skipped")
		st.Skipped++
		return
	}

	action := Decide(now, t, s.NotifiedStage)
	switch action {
	case ActionNone:
		return

	case ActionClear:
		ok, err := r.DB.ClearSchedule(ctx, s.Login, s.Schedule)
		if err != nil {
			log.Error().Err(err).Msg("clear schedule")
			st.Failed++
			return
		}
		if !ok {
			// schedule changed under us, next sweep will look at the new value
			return
		}
		st.Cleared++
		if s.ChatID != 0 {
			if err := r.deliver(s.ChatID, fmt.Sprintf(messages.LessonCleared, s.Schedule)); err != nil {
				log.Warn().Err(err).Msg("deliver clear notice")
			}
		}

	case ActionPreLesson, ActionPayment:
		if s.ChatID == 0 {
			st.Skipped++
			return
		}
		text, stage := messages.PaymentReminder, models.NotifyPostLesson
		if action == ActionPreLesson {
			text, stage = fmt.Sprintf(messages.PreLessonReminder, s.Schedule), models.NotifyPreLesson
		}
		if err := r.deliver(s.ChatID, text); err != nil {
			log.Warn().Err(err).Str("action", action.String()).Msg("deliver reminder")
			st.Failed++
			return
		}
		if _, err := r.DB.AdvanceStage(ctx, s.Login, s.Schedule, stage); err != nil {
			log.Error().Err(err).Msg("store notified stage")
		}
		if action == ActionPreLesson {
			st.PreLesson++
		} else {
			st.Payment++
		}
	}
}

func (r *Reminder) deliver(chatID int64, text string) error {
	_, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
