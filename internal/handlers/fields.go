package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-tutor-bot/internal/messages"
	"telegram-tutor-bot/internal/models"
	"telegram-tutor-bot/internal/session"
	"telegram-tutor-bot/internal/utils"
	apperrors "telegram-tutor-bot/pkg/errors"
)

// beginUpdate opens the admin flow: login of the student, then the new value.
// Callers have already checked the role.
func (h *Handler) beginUpdate(a actor, field models.Field) {
	h.Sessions.Begin(a.chatID, models.StepUpdateLogin)
	h.Sessions.Advance(a.chatID, models.StepUpdateLogin, "field", string(field))
	h.reply(a.chatID, messages.AskStudentLogin, messages.CancelMenu())
}

func (h *Handler) updateLogin(ctx context.Context, a actor, st session.Session, login string) {
	if login == "" {
		h.send(a.chatID, messages.AskStudentLogin)
		return
	}
	_, err := h.DB.GetStudent(ctx, login)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		h.Sessions.Clear(a.chatID)
		h.reply(a.chatID, messages.StudentNotFound, messages.AdminMenu())
		return
	}
	if err != nil {
		h.Sessions.Clear(a.chatID)
		h.internalError(a.chatID, err, "load student")
		return
	}
	field := models.Field(st.Data["field"])
	h.Sessions.Advance(a.chatID, models.StepUpdateValue, "login", login)
	h.send(a.chatID, messages.AskFieldValue(field))
}

func (h *Handler) updateValue(ctx context.Context, a actor, st session.Session, text string) {
	field := models.Field(st.Data["field"])
	login := st.Data["login"]

	if text == "" {
		h.send(a.chatID, messages.AskFieldValue(field))
		return
	}
	value, err := h.NormalizeValue(field, text)
	if err != nil {
		// остаёмся на том же шаге
		h.send(a.chatID, messages.BadSchedule)
		return
	}

	h.Sessions.Clear(a.chatID)
	err = h.Commit(ctx, login, field, value)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		h.reply(a.chatID, messages.StudentNotFound, messages.AdminMenu())
		return
	}
	if err != nil {
		h.internalError(a.chatID, err, "update field")
		return
	}
	h.reply(a.chatID, messages.FieldUpdated(field), messages.AdminMenu())
}

// NormalizeValue applies the per-field input policy. Schedules are checked
// against the lesson layout when validation is on and stored in canonical
// form; "-" clears the schedule.
func (h *Handler) NormalizeValue(field models.Field, text string) (string, error) {
	if field != models.FieldSchedule {
		return text, nil
	}
	if text == messages.ClearMarker {
		return "", nil
	}
	if !h.opts.ValidateSchedule {
		return text, nil
	}
	t, err := utils.ParseSchedule(text, h.opts.Location)
	if err != nil {
		return "", apperrors.NewValidationError(string(field), text, err.Error())
	}
	return t.Format(utils.ScheduleLayout), nil
}

// Commit overwrites one field of one existing student and tells the student
// about it. It never creates a record.
func (h *Handler) Commit(ctx context.Context, login string, field models.Field, value string) error {
	if !field.Valid() {
		return apperrors.NewValidationError("field", field, "unknown field")
	}
	if err := h.DB.UpdateField(ctx, login, field, value); err != nil {
		return err
	}
	h.log.Info().Str("login", login).Str("field", string(field)).Msg("field updated")

	s, err := h.DB.GetStudent(ctx, login)
	if err != nil || s.ChatID == 0 {
		return nil
	}
	if _, err := h.Bot.Send(tgbotapi.NewMessage(s.ChatID, messages.FieldChanged(field, value))); err != nil {
		h.log.Warn().Err(err).Str("login", login).Msg("notify student about update")
	}
	return nil
}
