package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"telegram-tutor-bot/internal/config"
	"telegram-tutor-bot/internal/handlers"
	"telegram-tutor-bot/internal/logger"
	"telegram-tutor-bot/internal/scheduler"
	"telegram-tutor-bot/internal/session"
	"telegram-tutor-bot/internal/storage"
	"telegram-tutor-bot/internal/utils"
)

func main() {
	cfg, err := config.Load()
	utils.Must(err)

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.For("main")

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	utils.Must(err)
	log.Info().Str("bot", bot.Self.UserName).Msg("authorized")

	db, err := storage.New(cfg.DBName)
	utils.Must(err)
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	sessions := session.NewStore(cfg.SessionTTL, clock)

	h := handlers.New(bot, db, sessions, handlers.Options{
		AdminID:          cfg.AdminID,
		Location:         cfg.Location(),
		ValidateSchedule: cfg.ValidateSchedule,
		TutorInfo:        cfg.TutorInfo,
	})

	reminder := scheduler.NewReminder(db, bot, clock, cfg.Location())
	s, err := scheduler.Start(ctx, reminder, sessions, cfg.ReminderInterval)
	utils.Must(err)
	defer func() {
		if err := s.Shutdown(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown")
		}
	}()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := bot.GetUpdatesChan(updateConfig)
	log.Info().Int64("admin_id", cfg.AdminID).Dur("reminder_interval", cfg.ReminderInterval).Msg("bot started")

	h.Run(ctx, updates)

	bot.StopReceivingUpdates()
	log.Info().Msg("bot stopped")
}
