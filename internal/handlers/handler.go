package handlers

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"telegram-tutor-bot/internal/auth"
	"telegram-tutor-bot/internal/logger"
	"telegram-tutor-bot/internal/models"
	"telegram-tutor-bot/internal/session"
	"telegram-tutor-bot/internal/storage"
)

// Sender is the subset of *tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Options struct {
	AdminID          int64
	Location         *time.Location
	ValidateSchedule bool
	TutorInfo        string
}

type Handler struct {
	Bot      Sender
	DB       *storage.DB
	Auth     *auth.Resolver
	Sessions *session.Store

	opts Options
	log  zerolog.Logger
}

func New(bot Sender, db *storage.DB, sessions *session.Store, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Handler{
		Bot:      bot,
		DB:       db,
		Auth:     auth.NewResolver(db, opts.AdminID),
		Sessions: sessions,
		opts:     opts,
		log:      logger.For("handlers"),
	}
}

// Run consumes updates one by one until ctx is done or the channel closes.
func (h *Handler) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			h.HandleUpdate(ctx, upd)
		}
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Int("update_id", upd.UpdateID).Msg("handler panicked")
		}
	}()

	switch {
	case upd.Message != nil:
		h.HandleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		h.HandleCallback(ctx, upd.CallbackQuery)
	}
}

// actor is the resolved sender of one message.
type actor struct {
	chatID  int64
	userID  int64
	role    models.Role
	student *models.Student
}

func (h *Handler) resolve(ctx context.Context, msg *tgbotapi.Message) (actor, error) {
	a := actor{chatID: msg.Chat.ID, userID: msg.From.ID}
	res, err := h.Auth.Resolve(ctx, auth.Identity{UserID: msg.From.ID, ChatID: msg.Chat.ID})
	if err != nil {
		return a, err
	}
	a.role = res.Role
	a.student = res.Student
	return a, nil
}
