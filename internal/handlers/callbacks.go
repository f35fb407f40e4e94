package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
	apperrors "telegram-tutor-bot/pkg/errors"
)

// HandleCallback serves the inline "answer" button under forwarded
// questions and homework. Only the admin can press it.
func (h *Handler) HandleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq == nil || cq.From == nil {
		return
	}
	chatID := cq.From.ID
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
	}

	if !h.Auth.IsAdmin(cq.From.ID) {
		_, _ = h.Bot.Request(tgbotapi.NewCallback(cq.ID, messages.AccessDenied))
		return
	}

	// always answer callback
	_, _ = h.Bot.Request(tgbotapi.NewCallback(cq.ID, ""))

	id, ok := messages.ParseAnswerCallback(cq.Data)
	if !ok {
		return
	}
	sub, err := h.DB.GetSubmission(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		h.send(chatID, messages.MissingMessage)
		return
	}
	if err != nil {
		h.internalError(chatID, err, "load submission")
		return
	}
	if sub.Answered {
		h.send(chatID, messages.AlreadyAnswered)
		return
	}

	h.Sessions.Begin(chatID, models.StepAnswerText)
	h.Sessions.Advance(chatID, models.StepAnswerText, "submission", sub.ID)
	h.reply(chatID, messages.AskAnswer, messages.CancelMenu())
}
